package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/sphere-social/sphere-matching/internal/model"
	"github.com/sphere-social/sphere-matching/internal/store"
)

// Open opens a PostgreSQL connection using the pgx stdlib driver and verifies connectivity.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewWithDB constructs a native Postgres store backed directly by database/sql.
func NewWithDB(db *sql.DB) store.Store { return &pgStore{db: db} }

type pgStore struct{ db *sql.DB }

func (s *pgStore) Profiles() store.Profiles { return &profiles{db: s.db} }
func (s *pgStore) Matches() store.Matches   { return &matches{db: s.db} }

// HealthPing implements health.HealthPinger for the Postgres-backed store.
func (s *pgStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Bootstrap performs a connectivity check to ensure Postgres is reachable.
// Schema setup is handled by deployment migrations; this is ping-only.
func Bootstrap(ctx context.Context, dsn string) error {
	if dsn == "" {
		return nil
	}
	db, err := Open(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return db.PingContext(ctx)
}

// --- Profiles ---

type profiles struct{ db *sql.DB }

const profileColumns = `user_id, display_name, city, bio, looking_for, can_help_with,
       interests, goals, experience_level, communities, current_event_id, tier,
       profile_vector, interests_vector, expertise_vector, update_time`

func (p *profiles) Get(ctx context.Context, userID string) (*model.Profile, error) {
	row := p.db.QueryRowContext(ctx, `
        SELECT `+profileColumns+` FROM profiles WHERE user_id=$1
    `, userID)
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
	var updated time.Time
	row := p.db.QueryRowContext(ctx, `
        INSERT INTO profiles (user_id, display_name, city, bio, looking_for, can_help_with,
                              interests, goals, experience_level, communities, current_event_id, tier,
                              profile_vector, interests_vector, expertise_vector)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
        ON CONFLICT (user_id) DO UPDATE SET
            display_name=EXCLUDED.display_name, city=EXCLUDED.city, bio=EXCLUDED.bio,
            looking_for=EXCLUDED.looking_for, can_help_with=EXCLUDED.can_help_with,
            interests=EXCLUDED.interests, goals=EXCLUDED.goals,
            experience_level=EXCLUDED.experience_level, communities=EXCLUDED.communities,
            current_event_id=EXCLUDED.current_event_id, tier=EXCLUDED.tier,
            profile_vector=EXCLUDED.profile_vector, interests_vector=EXCLUDED.interests_vector,
            expertise_vector=EXCLUDED.expertise_vector, update_time=now()
        RETURNING update_time
    `, in.UserID, in.DisplayName, in.City, in.Bio, in.LookingFor, in.CanHelpWith,
		interests, goals, in.ExperienceLevel, communities, in.CurrentEventID, string(tier),
		vecJSON(in.ProfileVector), vecJSON(in.InterestsVector), vecJSON(in.ExpertiseVector))
	if err := row.Scan(&updated); err != nil {
		return nil, err
	}
	out := *in
	out.Tier = tier
	out.UpdateTime = updated
	return &out, nil
}

func (p *profiles) ListByScope(ctx context.Context, scope model.Scope, excludeUserID string) ([]*model.Profile, error) {
	var query string
	args := []interface{}{excludeUserID}
	switch scope.Kind {
	case model.ScopeEvent:
		query = `SELECT ` + profileColumns + ` FROM profiles WHERE user_id<>$1 AND current_event_id=$2`
		args = append(args, scope.Key)
	case model.ScopeCommunity:
		query = `SELECT ` + profileColumns + ` FROM profiles WHERE user_id<>$1 AND communities ? $2`
		args = append(args, scope.Key)
	case model.ScopeCity:
		query = `SELECT ` + profileColumns + ` FROM profiles WHERE user_id<>$1 AND city=$2`
		args = append(args, scope.Key)
	case model.ScopeCrossCommunity:
		query = `SELECT ` + profileColumns + ` FROM profiles WHERE user_id<>$1 AND NOT (communities ? $2)`
		args = append(args, scope.Key)
	case model.ScopeGlobal:
		query = `SELECT ` + profileColumns + ` FROM profiles WHERE user_id<>$1`
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
        UPDATE profiles SET profile_vector=$1, interests_vector=$2, expertise_vector=$3, update_time=now()
        WHERE user_id=$4
    `, vecJSON(profile), vecJSON(interests), vecJSON(expertise), userID)
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

func (m *matches) Upsert(ctx context.Context, in *model.Match) (*model.Match, bool, error) {
	low, high := model.CanonicalPair(in.UserLow, in.UserHigh)
	id := in.MatchID
	if id == "" {
		id = uuid.New().String()
	}
	// xmax = 0 distinguishes a fresh insert from a conflict-update. Score
	// fields refresh on conflict; status, notified and feedback are owned by
	// later user actions and are left untouched.
	row := m.db.QueryRowContext(ctx, `
        INSERT INTO matches (match_id, user_low, user_high, scope_kind, scope_key,
                             compatibility_score, match_type, explanation, icebreaker, source, requires_upgrade)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        ON CONFLICT (user_low, user_high, scope_kind, scope_key) DO UPDATE SET
            compatibility_score=EXCLUDED.compatibility_score,
            match_type=EXCLUDED.match_type,
            explanation=EXCLUDED.explanation,
            icebreaker=EXCLUDED.icebreaker,
            source=EXCLUDED.source
        RETURNING `+matchColumns+`, (xmax = 0) AS created
    `, id, low, high, string(in.Scope.Kind), in.Scope.Key,
		in.CompatibilityScore, string(in.MatchType), in.Explanation, in.Icebreaker,
		string(in.Source), in.RequiresUpgrade)

	var out model.Match
	var created bool
	if err := scanMatchInto(row, &out, &created); err != nil {
		return nil, false, err
	}
	return &out, created, nil
}

func (m *matches) Get(ctx context.Context, matchID string) (*model.Match, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM matches WHERE match_id=$1`, matchID)
	var out model.Match
	if err := scanMatchInto(row, &out, nil); err != nil {
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
        WHERE (user_low=$1 OR user_high=$1) AND scope_kind=$2 AND scope_key=$3
        ORDER BY compatibility_score DESC, creation_time ASC
        LIMIT $4
    `, userID, string(scope.Kind), scope.Key, n)
	if err != nil {
		return nil, err
	}
	return collectMatches(rows)
}

func (m *matches) ListForUser(ctx context.Context, userID string) ([]*model.Match, error) {
	rows, err := m.db.QueryContext(ctx, `
        SELECT `+matchColumns+` FROM matches
        WHERE user_low=$1 OR user_high=$1
        ORDER BY compatibility_score DESC, creation_time ASC
    `, userID)
	if err != nil {
		return nil, err
	}
	return collectMatches(rows)
}

func (m *matches) ListUnnotified(ctx context.Context, userID string) ([]*model.Match, error) {
	rows, err := m.db.QueryContext(ctx, `
        SELECT `+matchColumns+` FROM matches
        WHERE (user_low=$1 AND NOT notified_low) OR (user_high=$1 AND NOT notified_high)
        ORDER BY creation_time ASC
    `, userID)
	if err != nil {
		return nil, err
	}
	return collectMatches(rows)
}

func (m *matches) PairedUserIDs(ctx context.Context, userID string, scope model.Scope) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `
        SELECT CASE WHEN user_low=$1 THEN user_high ELSE user_low END
        FROM matches
        WHERE (user_low=$1 OR user_high=$1) AND scope_kind=$2 AND scope_key=$3
    `, userID, string(scope.Kind), scope.Key)
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
	row := m.db.QueryRowContext(ctx, `
        UPDATE matches SET status=$2 WHERE match_id=$1 AND status='pending'
        RETURNING `+matchColumns+`
    `, matchID, string(status))
	var out model.Match
	err := scanMatchInto(row, &out, nil)
	if err == nil {
		return &out, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}
	// Either the match is missing or it already left pending.
	existing, gerr := m.Get(ctx, matchID)
	if gerr != nil {
		return nil, gerr
	}
	return existing, model.ErrStaleTransition
}

func (m *matches) SetNotified(ctx context.Context, matchID string, side model.Side) error {
	col, err := sideColumn("notified", side)
	if err != nil {
		return err
	}
	res, err := m.db.ExecContext(ctx, `UPDATE matches SET `+col+`=TRUE WHERE match_id=$1`, matchID)
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
	res, err := m.db.ExecContext(ctx, `UPDATE matches SET `+col+`=$2 WHERE match_id=$1`, matchID, string(fb))
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
	var interests, goals, communities []byte
	var profVec, intVec, expVec []byte
	var tier string
	if err := row.Scan(&out.UserID, &out.DisplayName, &out.City, &out.Bio, &out.LookingFor,
		&out.CanHelpWith, &interests, &goals, &out.ExperienceLevel, &communities,
		&out.CurrentEventID, &tier, &profVec, &intVec, &expVec, &out.UpdateTime); err != nil {
		return nil, err
	}
	out.Tier = model.Tier(tier)
	_ = json.Unmarshal(interests, &out.Interests)
	_ = json.Unmarshal(goals, &out.Goals)
	_ = json.Unmarshal(communities, &out.Communities)
	out.ProfileVector = vecFromJSON(profVec)
	out.InterestsVector = vecFromJSON(intVec)
	out.ExpertiseVector = vecFromJSON(expVec)
	return &out, nil
}

func scanMatchInto(row rowScanner, out *model.Match, created *bool) error {
	var kind, key, mtype, source, status, fbLow, fbHigh string
	dest := []interface{}{
		&out.MatchID, &out.UserLow, &out.UserHigh, &kind, &key,
		&out.CompatibilityScore, &mtype, &out.Explanation, &out.Icebreaker, &source, &status,
		&out.RequiresUpgrade, &out.NotifiedLow, &out.NotifiedHigh, &fbLow, &fbHigh, &out.CreationTime,
	}
	if created != nil {
		dest = append(dest, created)
	}
	if err := row.Scan(dest...); err != nil {
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
		if err := scanMatchInto(rows, &m, nil); err != nil {
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
	return b
}

func vecFromJSON(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	var v []float32
	_ = json.Unmarshal(b, &v)
	return v
}
