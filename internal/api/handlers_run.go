package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/sphere-social/sphere-matching/internal/api/respond"
	"github.com/sphere-social/sphere-matching/internal/matching"
	"github.com/sphere-social/sphere-matching/internal/model"
	"github.com/sphere-social/sphere-matching/internal/workqueue"
)

// MatchRunner executes one matching run for a user in a scope.
type MatchRunner interface {
	Run(ctx context.Context, userID string, scope model.Scope) (*matching.RunResult, error)
}

// RunHandler triggers matching runs, either synchronously or through the
// background executor keyed by user id so overlapping triggers serialize.
type RunHandler struct {
	runner MatchRunner
	exec   *workqueue.ShardExecutor
	log    zerolog.Logger
}

func NewRunHandler(runner MatchRunner, exec *workqueue.ShardExecutor, log zerolog.Logger) *RunHandler {
	return &RunHandler{runner: runner, exec: exec, log: log}
}

type runRequest struct {
	UserID string      `json:"userId"`
	Scope  model.Scope `json:"scope"`
	Wait   bool        `json:"wait,omitempty"`
}

// TriggerRun POST /v0/matching/runs
// With "wait": true the run executes inline and the response carries the run
// result. Otherwise the run is queued and the response is 202.
func (h *RunHandler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if req.UserID == "" {
		respond.WriteBadRequest(w, "userId required")
		return
	}
	if err := req.Scope.Validate(); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}

	if req.Wait {
		result, err := h.runner.Run(r.Context(), req.UserID, req.Scope)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		respond.WriteJSON(w, http.StatusOK, result)
		return
	}

	// The job must outlive the request: net/http cancels r.Context() as soon
	// as the 202 is written, and the executor skips cancelled jobs.
	userID, scope := req.UserID, req.Scope
	err := h.exec.Submit(context.WithoutCancel(r.Context()), userID, workqueue.JobFunc(func(ctx context.Context) error {
		_, err := h.runner.Run(ctx, userID, scope)
		if err != nil {
			h.log.Error().Err(err).Str("user_id", userID).Stringer("scope", scope).Msg("queued matching run failed")
		}
		return err
	}))
	if err != nil {
		if errors.Is(err, workqueue.ErrQueueFull) {
			respond.WriteTooManyRequests(w, "run queue is full, retry later")
			return
		}
		respond.WriteInternalError(w, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"userId": userID,
		"scope":  scope,
		"queued": true,
	})
}
