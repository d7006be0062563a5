package api

import (
	"net/http"

	"github.com/liftlog-io/liftlog/internal/apperr"
	"github.com/liftlog-io/liftlog/internal/auth"
)

type userCreateRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
	// No password policy: any string is accepted, only absence is rejected.
	Password *string `json:"password" validate:"required"`
}

type loginForm struct {
	Username string `form:"username" validate:"required"`
	Password string `form:"password" validate:"required"`
}

// CreateUser handles POST /users/.
func (api *Api) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req userCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, err)
		return
	}

	user, err := api.auth.Register(r.Context(), req.Email, *req.Password)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user.Read())
}

// Login handles POST /login. The email travels in the username field.
func (api *Api) Login(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(w, r); err != nil {
		api.writeError(w, r, err)
		return
	}
	form := loginForm{
		Username: r.PostForm.Get("username"),
		Password: r.PostForm.Get("password"),
	}
	if err := validateStruct(&form, "body"); err != nil {
		api.writeError(w, r, err)
		return
	}

	token, err := api.auth.Login(r.Context(), form.Username, form.Password)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

// Me handles GET /users/me.
func (api *Api) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		api.writeError(w, r, apperr.Unauthorized(unauthorizedDetail))
		return
	}
	writeJSON(w, http.StatusOK, user.Read())
}
