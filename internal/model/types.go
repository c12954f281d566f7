package model

import (
	"sort"
	"time"
)

// MatchType classifies what kind of connection a pair is.
type MatchType string

const (
	MatchTypeProfessional MatchType = "professional"
	MatchTypeCreative     MatchType = "creative"
	MatchTypeFriendship   MatchType = "friendship"
	MatchTypeRomantic     MatchType = "romantic"
)

// ValidMatchType reports whether t is one of the closed set of match types.
func ValidMatchType(t MatchType) bool {
	switch t {
	case MatchTypeProfessional, MatchTypeCreative, MatchTypeFriendship, MatchTypeRomantic:
		return true
	}
	return false
}

// MatchStatus is the lifecycle state of a match.
type MatchStatus string

const (
	MatchStatusPending  MatchStatus = "pending"
	MatchStatusAccepted MatchStatus = "accepted"
	MatchStatusDeclined MatchStatus = "declined"
)

// Feedback is a per-side rating of a match.
type Feedback string

const (
	FeedbackNone Feedback = "none"
	FeedbackGood Feedback = "good"
	FeedbackBad  Feedback = "bad"
)

// ScoreSource records where a compatibility score came from.
type ScoreSource string

const (
	SourceLLM       ScoreSource = "llm"
	SourceHeuristic ScoreSource = "heuristic_fallback"
)

// Side identifies one half of a canonical pair.
type Side string

const (
	SideLow  Side = "low"
	SideHigh Side = "high"
)

// Tier is the account tier of a user.
type Tier string

const (
	TierFree Tier = "free"
	TierPaid Tier = "paid"
)

// Profile is a read-only snapshot of a user's matchable attributes.
// It is produced by the onboarding collaborator; the matching engine never
// writes to it during a run. Vector fields may be nil; absence of embeddings
// is a valid state, not an error.
type Profile struct {
	UserID          string   `json:"userId"`
	DisplayName     string   `json:"displayName,omitempty"`
	City            string   `json:"city,omitempty"`
	Bio             string   `json:"bio,omitempty"`
	LookingFor      string   `json:"lookingFor,omitempty"`
	CanHelpWith     string   `json:"canHelpWith,omitempty"`
	Interests       []string `json:"interests,omitempty"`
	Goals           []string `json:"goals,omitempty"`
	ExperienceLevel string   `json:"experienceLevel,omitempty"`
	Communities     []string `json:"communities,omitempty"`
	CurrentEventID  string   `json:"currentEventId,omitempty"`
	Tier            Tier     `json:"tier,omitempty"`

	ProfileVector   []float32 `json:"profileVector,omitempty"`
	InterestsVector []float32 `json:"interestsVector,omitempty"`
	ExpertiseVector []float32 `json:"expertiseVector,omitempty"`

	UpdateTime time.Time `json:"updateTime,omitempty"`
}

// HasVectors reports whether at least one embedding channel is populated.
func (p *Profile) HasVectors() bool {
	return len(p.ProfileVector) > 0 || len(p.InterestsVector) > 0 || len(p.ExpertiseVector) > 0
}

// InCommunity reports whether communityID is in the user's home set.
func (p *Profile) InCommunity(communityID string) bool {
	for _, c := range p.Communities {
		if c == communityID {
			return true
		}
	}
	return false
}

// ChannelScores is the per-vector similarity breakdown for a candidate.
type ChannelScores struct {
	Profile   float64 `json:"profile"`
	Interests float64 `json:"interests"`
	Expertise float64 `json:"expertise"`
}

// CandidateScore is a retrieval result: a candidate worth scoring, with a
// preliminary similarity in [0,1]. Transient, never persisted.
type CandidateScore struct {
	CandidateID string        `json:"candidateId"`
	Similarity  float64       `json:"similarity"`
	Channels    ChannelScores `json:"channels"`
}

// SortCandidates orders candidates by similarity descending, ties broken by
// candidate id ascending so retrieval output is deterministic.
func SortCandidates(cs []CandidateScore) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Similarity != cs[j].Similarity {
			return cs[i].Similarity > cs[j].Similarity
		}
		return cs[i].CandidateID < cs[j].CandidateID
	})
}

// PairScoreResult is the outcome of scoring one candidate pair. Transient.
type PairScoreResult struct {
	Compatibility float64     `json:"compatibility"`
	MatchType     MatchType   `json:"matchType"`
	Explanation   string      `json:"explanation"`
	Icebreaker    string      `json:"icebreaker"`
	Source        ScoreSource `json:"source"`
}

// Match is the persisted record of a discovered pair. The pair is stored in
// canonical order (lower id first) so (A,B) and (B,A) share one identity; the
// scope discriminant plus the canonical pair form the natural key.
type Match struct {
	MatchID            string      `json:"matchId"`
	UserLow            string      `json:"userLow"`
	UserHigh           string      `json:"userHigh"`
	Scope              Scope       `json:"scope"`
	CompatibilityScore float64     `json:"compatibilityScore"`
	MatchType          MatchType   `json:"matchType"`
	Explanation        string      `json:"explanation"`
	Icebreaker         string      `json:"icebreaker"`
	Source             ScoreSource `json:"source"`
	Status             MatchStatus `json:"status"`
	RequiresUpgrade    bool        `json:"requiresUpgrade"`
	NotifiedLow        bool        `json:"notifiedLow"`
	NotifiedHigh       bool        `json:"notifiedHigh"`
	FeedbackLow        Feedback    `json:"feedbackLow"`
	FeedbackHigh       Feedback    `json:"feedbackHigh"`
	CreationTime       time.Time   `json:"creationTime"`
}

// CanonicalPair returns (low, high) for two user ids.
func CanonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// SideOf returns which side of the match userID occupies.
func (m *Match) SideOf(userID string) (Side, bool) {
	switch userID {
	case m.UserLow:
		return SideLow, true
	case m.UserHigh:
		return SideHigh, true
	}
	return "", false
}

// Counterpart returns the other user of the pair relative to userID.
func (m *Match) Counterpart(userID string) string {
	if userID == m.UserLow {
		return m.UserHigh
	}
	return m.UserLow
}

// Notified reports the notification flag for one side.
func (m *Match) Notified(side Side) bool {
	if side == SideLow {
		return m.NotifiedLow
	}
	return m.NotifiedHigh
}
