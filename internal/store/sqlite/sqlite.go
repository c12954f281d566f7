package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sphere-social/sphere-matching/internal/model"
	"github.com/sphere-social/sphere-matching/internal/store"
)

// New opens (or creates) a SQLite-backed store at path.
func New(path string) (store.Store, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	return NewWithDB(db), nil
}

// NewWithDB wires the store onto an existing connection (used by factory and tests).
func NewWithDB(db *sql.DB) store.Store { return &liteStore{db: db} }

type liteStore struct{ db *sql.DB }

func (s *liteStore) Profiles() store.Profiles { return &profiles{db: s.db} }
func (s *liteStore) Matches() store.Matches   { return &matches{db: s.db} }

// HealthPing implements health.HealthPinger.
func (s *liteStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- Profiles ---

type profiles struct{ db *sql.DB }

const profileColumns = `user_id, display_name, city, bio, looking_for, can_help_with,
       interests, goals, experience_level, communities, current_event_id, tier,
       profile_vector, interests_vector, expertise_vector, update_time`

func (p *profiles) Get(ctx context.Context, userID string) (*model.Profile, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id = ?`, userID)
	out, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	return out, err
}

func (p *profiles) Upsert(ctx context.Context, in *model.Profile) (*model.Profile, error) {
	interests, _ := json.Marshal(in.Interests)
	goals, _ := json.Marshal(in.Goals)
	communities, _ := json.Marshal(in.Communities)
	tier := in.Tier
	if tier == "" {
		tier = model.TierFree
	}
	now := time.Now().UTC()
	_, err := p.db.ExecContext(ctx, `
        INSERT INTO profiles (user_id, display_name, city, bio, looking_for, can_help_with,
                              interests, goals, experience_level, communities, current_event_id, tier,
                              profile_vector, interests_vector, expertise_vector, update_time)
        VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
        ON CONFLICT (user_id) DO UPDATE SET
            display_name=excluded.display_name, city=excluded.city, bio=excluded.bio,
            looking_for=excluded.looking_for, can_help_with=excluded.can_help_with,
            interests=excluded.interests, goals=excluded.goals,
            experience_level=excluded.experience_level, communities=excluded.communities,
            current_event_id=excluded.current_event_id, tier=excluded.tier,
            profile_vector=excluded.profile_vector, interests_vector=excluded.interests_vector,
            expertise_vector=excluded.expertise_vector, update_time=excluded.update_time
    `, in.UserID, in.DisplayName, in.City, in.Bio, in.LookingFor, in.CanHelpWith,
		string(interests), string(goals), in.ExperienceLevel, string(communities),
		in.CurrentEventID, string(tier),
		vecJSON(in.ProfileVector), vecJSON(in.InterestsVector), vecJSON(in.ExpertiseVector), now)
	if err != nil {
		return nil, err
	}
	out := *in
	out.Tier = tier
	out.UpdateTime = now
	return &out, nil
}

func (p *profiles) ListByScope(ctx context.Context, scope model.Scope, excludeUserID string) ([]*model.Profile, error) {
	var query string
	args := []interface{}{excludeUserID}
	switch scope.Kind {
	case model.ScopeEvent:
		query = `SELECT ` + profileColumns + ` FROM profiles WHERE user_id <> ? AND current_event_id = ?`
		args = append(args, scope.Key)
	case model.ScopeCommunity:
		query = `SELECT ` + profileColumns + ` FROM profiles WHERE user_id <> ?
                 AND EXISTS (SELECT 1 FROM json_each(communities) WHERE json_each.value = ?)`
		args = append(args, scope.Key)
	case model.ScopeCity:
		query = `SELECT ` + profileColumns + ` FROM profiles WHERE user_id <> ? AND city = ?`
		args = append(args, scope.Key)
	case model.ScopeCrossCommunity:
		query = `SELECT ` + profileColumns + ` FROM profiles WHERE user_id <> ?
                 AND NOT EXISTS (SELECT 1 FROM json_each(communities) WHERE json_each.value = ?)`
		args = append(args, scope.Key)
	case model.ScopeGlobal:
		query = `SELECT ` + profileColumns + ` FROM profiles WHERE user_id <> ?`
	default:
		return nil, fmt.Errorf("%w: unknown scope kind %q", model.ErrValidation, scope.Kind)
	}
	query += ` ORDER BY user_id`

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.Profile
	for rows.Next() {
		pr, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

func (p *profiles) SetVectors(ctx context.Context, userID string, profile, interests, expertise []float32) error {
	res, err := p.db.ExecContext(ctx, `
        UPDATE profiles SET profile_vector = ?, interests_vector = ?, expertise_vector = ?, update_time = ?
        WHERE user_id = ?
    `, vecJSON(profile), vecJSON(interests), vecJSON(expertise), time.Now().UTC(), userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// --- Matches ---

type matches struct{ db *sql.DB }

const matchColumns = `match_id, user_low, user_high, scope_kind, scope_key,
       compatibility_score, match_type, explanation, icebreaker, source, status,
       requires_upgrade, notified_low, notified_high, feedback_low, feedback_high, creation_time`

// Upsert resolves concurrent same-pair writes with ON CONFLICT so a losing
// writer sees the winner's row instead of a UNIQUE violation. SQLite has no
// equivalent of the xmax trick the Postgres adapter uses; created is detected
// by checking whether our freshly generated match_id survived the insert
// (the conflict-update never touches match_id).
func (m *matches) Upsert(ctx context.Context, in *model.Match) (*model.Match, bool, error) {
	low, high := model.CanonicalPair(in.UserLow, in.UserHigh)

	var existingID string
	err := m.db.QueryRowContext(ctx, `
        SELECT match_id FROM matches
        WHERE user_low = ? AND user_high = ? AND scope_kind = ? AND scope_key = ?
    `, low, high, string(in.Scope.Kind), in.Scope.Key).Scan(&existingID)
	if err != nil && err != sql.ErrNoRows {
		return nil, false, err
	}

	id := in.MatchID
	if id == "" {
		id = uuid.New().String()
	}
	// Score fields refresh on conflict; status, notified and feedback belong
	// to later user actions and are left untouched.
	_, err = m.db.ExecContext(ctx, `
        INSERT INTO matches (match_id, user_low, user_high, scope_kind, scope_key,
                             compatibility_score, match_type, explanation, icebreaker,
                             source, requires_upgrade, creation_time)
        VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
        ON CONFLICT (user_low, user_high, scope_kind, scope_key) DO UPDATE SET
            compatibility_score=excluded.compatibility_score,
            match_type=excluded.match_type,
            explanation=excluded.explanation,
            icebreaker=excluded.icebreaker,
            source=excluded.source
    `, id, low, high, string(in.Scope.Kind), in.Scope.Key,
		in.CompatibilityScore, string(in.MatchType), in.Explanation, in.Icebreaker,
		string(in.Source), in.RequiresUpgrade, time.Now().UTC())
	if err != nil {
		return nil, false, err
	}

	var out model.Match
	row := m.db.QueryRowContext(ctx, `
        SELECT `+matchColumns+` FROM matches
        WHERE user_low = ? AND user_high = ? AND scope_kind = ? AND scope_key = ?
    `, low, high, string(in.Scope.Kind), in.Scope.Key)
	if err := scanMatchInto(row, &out); err != nil {
		return nil, false, err
	}
	created := existingID == "" && out.MatchID == id
	return &out, created, nil
}

func (m *matches) Get(ctx context.Context, matchID string) (*model.Match, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM matches WHERE match_id = ?`, matchID)
	var out model.Match
	if err := scanMatchInto(row, &out); err != nil {
		if err == sql.ErrNoRows {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return &out, nil
}

func (m *matches) TopN(ctx context.Context, userID string, scope model.Scope, n int) ([]*model.Match, error) {
	rows, err := m.db.QueryContext(ctx, `
        SELECT `+matchColumns+` FROM matches
        WHERE (user_low = ? OR user_high = ?) AND scope_kind = ? AND scope_key = ?
        ORDER BY compatibility_score DESC, creation_time ASC
        LIMIT ?
    `, userID, userID, string(scope.Kind), scope.Key, n)
	if err != nil {
		return nil, err
	}
	return collectMatches(rows)
}

func (m *matches) ListForUser(ctx context.Context, userID string) ([]*model.Match, error) {
	rows, err := m.db.QueryContext(ctx, `
        SELECT `+matchColumns+` FROM matches
        WHERE user_low = ? OR user_high = ?
        ORDER BY compatibility_score DESC, creation_time ASC
    `, userID, userID)
	if err != nil {
		return nil, err
	}
	return collectMatches(rows)
}

func (m *matches) ListUnnotified(ctx context.Context, userID string) ([]*model.Match, error) {
	rows, err := m.db.QueryContext(ctx, `
        SELECT `+matchColumns+` FROM matches
        WHERE (user_low = ? AND notified_low = 0) OR (user_high = ? AND notified_high = 0)
        ORDER BY creation_time ASC
    `, userID, userID)
	if err != nil {
		return nil, err
	}
	return collectMatches(rows)
}

func (m *matches) PairedUserIDs(ctx context.Context, userID string, scope model.Scope) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `
        SELECT CASE WHEN user_low = ? THEN user_high ELSE user_low END
        FROM matches
        WHERE (user_low = ? OR user_high = ?) AND scope_kind = ? AND scope_key = ?
    `, userID, userID, userID, string(scope.Kind), scope.Key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (m *matches) UpdateStatus(ctx context.Context, matchID string, status model.MatchStatus) (*model.Match, error) {
	if status != model.MatchStatusAccepted && status != model.MatchStatusDeclined {
		return nil, fmt.Errorf("%w: cannot transition to %q", model.ErrValidation, status)
	}
	res, err := m.db.ExecContext(ctx, `
        UPDATE matches SET status = ? WHERE match_id = ? AND status = 'pending'
    `, string(status), matchID)
	if err != nil {
		return nil, err
	}
	n, _ := res.RowsAffected()
	existing, gerr := m.Get(ctx, matchID)
	if gerr != nil {
		return nil, gerr
	}
	if n == 0 {
		return existing, model.ErrStaleTransition
	}
	return existing, nil
}

func (m *matches) SetNotified(ctx context.Context, matchID string, side model.Side) error {
	col, err := sideColumn("notified", side)
	if err != nil {
		return err
	}
	res, err := m.db.ExecContext(ctx, `UPDATE matches SET `+col+` = 1 WHERE match_id = ?`, matchID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (m *matches) SetFeedback(ctx context.Context, matchID string, side model.Side, fb model.Feedback) error {
	switch fb {
	case model.FeedbackNone, model.FeedbackGood, model.FeedbackBad:
	default:
		return fmt.Errorf("%w: unknown feedback %q", model.ErrValidation, fb)
	}
	col, err := sideColumn("feedback", side)
	if err != nil {
		return err
	}
	res, err := m.db.ExecContext(ctx, `UPDATE matches SET `+col+` = ? WHERE match_id = ?`, string(fb), matchID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProfile(row rowScanner) (*model.Profile, error) {
	var out model.Profile
	var interests, goals, communities string
	var profVec, intVec, expVec sql.NullString
	var tier string
	if err := row.Scan(&out.UserID, &out.DisplayName, &out.City, &out.Bio, &out.LookingFor,
		&out.CanHelpWith, &interests, &goals, &out.ExperienceLevel, &communities,
		&out.CurrentEventID, &tier, &profVec, &intVec, &expVec, &out.UpdateTime); err != nil {
		return nil, err
	}
	out.Tier = model.Tier(tier)
	_ = json.Unmarshal([]byte(interests), &out.Interests)
	_ = json.Unmarshal([]byte(goals), &out.Goals)
	_ = json.Unmarshal([]byte(communities), &out.Communities)
	out.ProfileVector = vecFromJSON(profVec)
	out.InterestsVector = vecFromJSON(intVec)
	out.ExpertiseVector = vecFromJSON(expVec)
	return &out, nil
}

func scanMatchInto(row rowScanner, out *model.Match) error {
	var kind, key, mtype, source, status, fbLow, fbHigh string
	if err := row.Scan(&out.MatchID, &out.UserLow, &out.UserHigh, &kind, &key,
		&out.CompatibilityScore, &mtype, &out.Explanation, &out.Icebreaker, &source, &status,
		&out.RequiresUpgrade, &out.NotifiedLow, &out.NotifiedHigh, &fbLow, &fbHigh,
		&out.CreationTime); err != nil {
		return err
	}
	out.Scope = model.Scope{Kind: model.ScopeKind(kind), Key: key}
	out.MatchType = model.MatchType(mtype)
	out.Source = model.ScoreSource(source)
	out.Status = model.MatchStatus(status)
	out.FeedbackLow = model.Feedback(fbLow)
	out.FeedbackHigh = model.Feedback(fbHigh)
	return nil
}

func collectMatches(rows *sql.Rows) ([]*model.Match, error) {
	defer func() { _ = rows.Close() }()
	var out []*model.Match
	for rows.Next() {
		var m model.Match
		if err := scanMatchInto(rows, &m); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func sideColumn(prefix string, side model.Side) (string, error) {
	switch side {
	case model.SideLow:
		return prefix + "_low", nil
	case model.SideHigh:
		return prefix + "_high", nil
	}
	return "", fmt.Errorf("%w: unknown side %q", model.ErrValidation, side)
}

func vecJSON(v []float32) interface{} {
	if len(v) == 0 {
		return nil
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func vecFromJSON(s sql.NullString) []float32 {
	if !s.Valid || s.String == "" {
		return nil
	}
	var v []float32
	_ = json.Unmarshal([]byte(s.String), &v)
	return v
}
