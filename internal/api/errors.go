package api

import (
	"errors"
	"net/http"

	"github.com/sphere-social/sphere-matching/internal/api/respond"
	"github.com/sphere-social/sphere-matching/internal/model"
)

// writeDomainError maps the model error taxonomy onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		respond.WriteNotFound(w, err.Error())
	case errors.Is(err, model.ErrValidation):
		respond.WriteBadRequest(w, err.Error())
	case errors.Is(err, model.ErrStaleTransition), errors.Is(err, model.ErrConflict):
		respond.WriteConflict(w, err.Error())
	default:
		respond.WriteInternalError(w, err.Error())
	}
}
