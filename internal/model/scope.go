package model

import "fmt"

// ScopeKind discriminates the population boundary a match was computed in.
type ScopeKind string

const (
	ScopeEvent          ScopeKind = "event"
	ScopeCommunity      ScopeKind = "community"
	ScopeCity           ScopeKind = "city"
	ScopeGlobal         ScopeKind = "global"
	ScopeCrossCommunity ScopeKind = "cross_community"
)

// Scope is a tagged variant selecting the candidate population. Key holds the
// event id, community id, or city name; for CrossCommunity it holds the
// excluded community id; for Global it is empty. At most one scope dimension
// is ever populated, which the (Kind, Key) encoding makes structural.
type Scope struct {
	Kind ScopeKind `json:"kind"`
	Key  string    `json:"key,omitempty"`
}

func EventScope(eventID string) Scope       { return Scope{Kind: ScopeEvent, Key: eventID} }
func CommunityScope(id string) Scope        { return Scope{Kind: ScopeCommunity, Key: id} }
func CityScope(city string) Scope           { return Scope{Kind: ScopeCity, Key: city} }
func GlobalScope() Scope                    { return Scope{Kind: ScopeGlobal} }
func CrossCommunityScope(excl string) Scope { return Scope{Kind: ScopeCrossCommunity, Key: excl} }

// Validate checks the kind is known and the key is present where required.
func (s Scope) Validate() error {
	switch s.Kind {
	case ScopeGlobal:
		if s.Key != "" {
			return fmt.Errorf("%w: global scope takes no key", ErrValidation)
		}
		return nil
	case ScopeEvent, ScopeCommunity, ScopeCity, ScopeCrossCommunity:
		if s.Key == "" {
			return fmt.Errorf("%w: %s scope requires a key", ErrValidation, s.Kind)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown scope kind %q", ErrValidation, s.Kind)
}

// ContextText renders a short human-readable description used as LLM context.
func (s Scope) ContextText() string {
	switch s.Kind {
	case ScopeEvent:
		return fmt.Sprintf("both are attending event %s", s.Key)
	case ScopeCommunity:
		return fmt.Sprintf("both belong to community %s", s.Key)
	case ScopeCity:
		return fmt.Sprintf("both live in %s", s.Key)
	case ScopeCrossCommunity:
		return "they come from different communities"
	default:
		return ""
	}
}

func (s Scope) String() string {
	if s.Key == "" {
		return string(s.Kind)
	}
	return fmt.Sprintf("%s(%s)", s.Kind, s.Key)
}
