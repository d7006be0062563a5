package api

import (
	"net/http"

	"github.com/liftlog-io/liftlog/internal/apperr"
	"github.com/liftlog-io/liftlog/internal/auth"
)

type workoutCreateRequest struct {
	Name *string `json:"name" validate:"required,max=255"`
}

// CreateWorkout handles POST /workouts/ for the authenticated user.
func (api *Api) CreateWorkout(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		api.writeError(w, r, apperr.Unauthorized(unauthorizedDetail))
		return
	}

	var req workoutCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, err)
		return
	}

	workout, err := api.workouts.CreateWorkout(r.Context(), user.ID, *req.Name)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, workout)
}

// ListWorkouts handles GET /workouts/.
func (api *Api) ListWorkouts(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		api.writeError(w, r, apperr.Unauthorized(unauthorizedDetail))
		return
	}

	workouts, err := api.workouts.ListWorkoutsByUser(r.Context(), user.ID)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, workouts)
}
