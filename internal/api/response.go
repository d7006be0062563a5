package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/liftlog-io/liftlog/internal/apperr"
	"github.com/liftlog-io/liftlog/internal/auth"
	"github.com/rs/zerolog/hlog"
)

type detail struct {
	Detail any `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// toAppError maps domain errors onto the public taxonomy.
func toAppError(err error) *apperr.AppError {
	switch {
	case errors.Is(err, auth.ErrEmailTaken):
		return apperr.Conflict("Email already registered").WithCause(err)
	case errors.Is(err, auth.ErrInvalidCredentials):
		return apperr.BadCredentials("Incorrect email or password").WithCause(err)
	case errors.Is(err, auth.ErrInvalidToken):
		return apperr.Unauthorized(unauthorizedDetail).WithCause(err)
	case errors.Is(err, auth.ErrPasswordTooLong):
		return apperr.Validation(apperr.FieldError{
			Loc:  []string{"body", "password"},
			Msg:  "Password must be at most 72 bytes",
			Type: "string_too_long",
		}).WithCause(err)
	}
	return apperr.From(err)
}

// writeError renders err as {"detail": ...}. Server-side failures are logged
// and the client only sees a generic message.
func (api *Api) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := toAppError(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(appErr.Cause).Str("code", string(appErr.Code)).Msg("request failed")
	}
	for k, v := range appErr.Headers {
		w.Header().Set(k, v)
	}
	writeJSON(w, appErr.HTTPStatus, detail{Detail: appErr.Detail})
}

func (api *Api) unauthorized(w http.ResponseWriter, r *http.Request) {
	api.writeError(w, r, apperr.Unauthorized(unauthorizedDetail))
}
