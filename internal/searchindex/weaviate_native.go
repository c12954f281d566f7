package searchindex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	weaviate "github.com/weaviate/weaviate-go-client/v5/weaviate"
	filters "github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	gql "github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"

	"github.com/sphere-social/sphere-matching/internal/model"
)

const profileClass = "ProfileVector"

// objectNamespace seeds deterministic object ids so one user+channel maps to
// exactly one index object across upserts.
var objectNamespace = uuid.MustParse("7b5a1f3e-9c44-4d8a-b1e2-0f6d3a2c5e80")

// weavNative is a native implementation of Index using the Weaviate Go client.
type weavNative struct {
	client  *weaviate.Client
	baseURL string // host:port without scheme
}

// NewWeaviateNativeIndex constructs an Index backed by Weaviate at baseURL.
// baseURL should be host:port (without scheme), e.g., "localhost:8081".
func NewWeaviateNativeIndex(baseURL string) (Index, error) {
	cfg := weaviate.Config{Scheme: "http", Host: baseURL}
	cl, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &weavNative{client: cl, baseURL: baseURL}, nil
}

func (w *weavNative) SimilarProfiles(ctx context.Context, channel Channel, vec []float32, scope model.Scope, limit int) ([]VectorHit, error) {
	log.Debug().Str("channel", string(channel)).Str("scope", scope.String()).Int("limit", limit).Int("vectorLength", len(vec)).Msg("weaviate similarity search starting")

	near := (&gql.NearVectorArgumentBuilder{}).WithVector(vec)

	where := filters.Where().WithOperator(filters.And).WithOperands(scopeOperands(channel, scope))

	req := w.client.GraphQL().Get().
		WithClassName(profileClass).
		WithWhere(where).
		WithNearVector(near).
		WithLimit(limit).
		WithFields(
			gql.Field{Name: "userId"},
			gql.Field{Name: "_additional", Fields: []gql.Field{{Name: "certainty"}}},
		)

	resp, err := req.Do(ctx)
	if err != nil {
		log.Error().Err(err).Str("channel", string(channel)).Msg("weaviate graphql query failed")
		return nil, err
	}
	if len(resp.Errors) > 0 {
		log.Error().Interface("errors", resp.Errors).Str("channel", string(channel)).Msg("weaviate graphql errors")
		return nil, fmt.Errorf("weaviate graphql: %s", formatGraphQLErrors(resp.Errors))
	}

	getData, ok := resp.Data["Get"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	val := getData[profileClass]
	if val == nil {
		return []VectorHit{}, nil
	}
	raw, ok := val.([]interface{})
	if !ok {
		log.Warn().Interface("val", val).Msg("ProfileVector result is not an array")
		return nil, nil
	}

	out := make([]VectorHit, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		hit := VectorHit{}
		hit.UserID, _ = m["userId"].(string)
		if add, ok := m["_additional"].(map[string]interface{}); ok {
			switch v := add["certainty"].(type) {
			case float64:
				hit.Certainty = v
			case string:
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					hit.Certainty = f
				}
			}
		}
		if hit.UserID != "" {
			out = append(out, hit)
		}
	}
	log.Debug().Int("resultCount", len(out)).Str("channel", string(channel)).Msg("weaviate similarity search completed")
	return out, nil
}

// scopeOperands builds the filter clauses for a search. The channel clause is
// always present; event, community and city add a population clause. Global
// and cross-community cannot be expressed index-side and stay unrestricted.
func scopeOperands(channel Channel, scope model.Scope) []*filters.WhereBuilder {
	ops := []*filters.WhereBuilder{
		filters.Where().WithPath([]string{"channel"}).WithOperator(filters.Equal).WithValueText(string(channel)),
	}
	switch scope.Kind {
	case model.ScopeEvent:
		ops = append(ops, filters.Where().WithPath([]string{"currentEventId"}).WithOperator(filters.Equal).WithValueText(scope.Key))
	case model.ScopeCommunity:
		ops = append(ops, filters.Where().WithPath([]string{"communities"}).WithOperator(filters.ContainsAny).WithValueText(scope.Key))
	case model.ScopeCity:
		ops = append(ops, filters.Where().WithPath([]string{"city"}).WithOperator(filters.Equal).WithValueText(scope.Key))
	}
	return ops
}

func (w *weavNative) UpsertProfile(ctx context.Context, p *model.Profile) error {
	if w == nil || w.client == nil || p == nil || p.UserID == "" {
		return nil
	}
	channels := []struct {
		name Channel
		vec  []float32
	}{
		{ChannelProfile, p.ProfileVector},
		{ChannelInterests, p.InterestsVector},
		{ChannelExpertise, p.ExpertiseVector},
	}
	for _, ch := range channels {
		id := objectID(p.UserID, ch.name)
		// delete-then-create keeps the object in step with the profile;
		// the delete is best-effort since the object may not exist yet
		_ = w.client.Data().Deleter().WithClassName(profileClass).WithID(id).Do(ctx)
		if len(ch.vec) == 0 {
			continue
		}
		props := map[string]interface{}{
			"userId":         p.UserID,
			"channel":        string(ch.name),
			"city":           p.City,
			"communities":    p.Communities,
			"currentEventId": p.CurrentEventID,
		}
		if _, err := w.client.Data().Creator().WithClassName(profileClass).WithID(id).WithProperties(props).WithVector(ch.vec).Do(ctx); err != nil {
			return fmt.Errorf("index %s channel for %s: %w", ch.name, p.UserID, err)
		}
	}
	return nil
}

func (w *weavNative) DeleteProfile(ctx context.Context, userID string) error {
	if w == nil || w.client == nil || userID == "" {
		return nil
	}
	for _, ch := range []Channel{ChannelProfile, ChannelInterests, ChannelExpertise} {
		_ = w.client.Data().Deleter().WithClassName(profileClass).WithID(objectID(userID, ch)).Do(ctx)
	}
	return nil
}

func objectID(userID string, channel Channel) string {
	return uuid.NewSHA1(objectNamespace, []byte(userID+"/"+string(channel))).String()
}

// HealthPing implements health.HealthPinger for the weaviate-based index.
// It calls GET http://<baseURL>/v1/meta and expects 200 OK.
func (w *weavNative) HealthPing(ctx context.Context) error {
	if w == nil || w.baseURL == "" {
		return fmt.Errorf("weaviate baseURL missing")
	}
	url := w.baseURL
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/v1/meta", nil)
	if err != nil {
		return err
	}
	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("weaviate status %d", resp.StatusCode)
	}
	return nil
}

// formatGraphQLErrors returns a compact string with messages extracted for logging.
func formatGraphQLErrors(errs interface{}) string {
	if b, err := json.Marshal(errs); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%v", errs)
}
