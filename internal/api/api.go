package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/liftlog-io/liftlog/internal/apperr"
	"github.com/liftlog-io/liftlog/internal/auth"
	"github.com/liftlog-io/liftlog/internal/config"
	"github.com/liftlog-io/liftlog/internal/logging"
	"github.com/liftlog-io/liftlog/internal/models"
	"github.com/rs/zerolog"
)

const unauthorizedDetail = "Could not validate credentials"

// Authenticator is the auth service as the handlers see it.
type Authenticator interface {
	auth.Authenticator
	Register(ctx context.Context, email, password string) (*models.User, error)
	Login(ctx context.Context, email, password string) (*models.Token, error)
}

// WorkoutStore persists workouts for authenticated users.
type WorkoutStore interface {
	CreateWorkout(ctx context.Context, userID int64, name string) (*models.Workout, error)
	ListWorkoutsByUser(ctx context.Context, userID int64) ([]models.Workout, error)
}

// Api holds the HTTP router and the services behind it.
type Api struct {
	Config   config.Config
	Router   *chi.Mux
	auth     Authenticator
	workouts WorkoutStore
	log      zerolog.Logger
}

// NewApi builds the router. A zero port or a missing dependency is an error.
func NewApi(cfg config.Config, authn Authenticator, workouts WorkoutStore, log zerolog.Logger) (*Api, error) {
	if cfg.Server.Port == 0 {
		return nil, errors.New("must have at least a port to start API")
	}
	if authn == nil || workouts == nil {
		return nil, errors.New("api needs an authenticator and a workout store")
	}

	api := &Api{
		Config:   cfg,
		Router:   chi.NewRouter(),
		auth:     authn,
		workouts: workouts,
		log:      log,
	}
	api.setupRoutes()
	return api, nil
}

func (api *Api) setupRoutes() {
	r := api.Router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(api.log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/heartbeat"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   api.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"WWW-Authenticate"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		api.writeError(w, r, apperr.NotFound("Not Found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, detail{Detail: "Method Not Allowed"})
	})

	// Public routes
	r.Post("/users/", api.CreateUser)
	r.Post("/users", api.CreateUser)
	r.Post("/login", api.Login)

	// Bearer-token routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(api.auth, api.unauthorized, api.writeError))
		r.Get("/users/me", api.Me)
		r.Post("/workouts/", api.CreateWorkout)
		r.Post("/workouts", api.CreateWorkout)
		r.Get("/workouts/", api.ListWorkouts)
		r.Get("/workouts", api.ListWorkouts)
	})
}

// Serve listens on the configured port until ctx is cancelled, then drains
// in-flight requests for up to the shutdown timeout.
func (api *Api) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf("0.0.0.0:%d", api.Config.Server.Port),
		Handler:      api.Router,
		ReadTimeout:  api.Config.Server.ReadTimeout,
		WriteTimeout: api.Config.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		api.log.Info().Str("addr", srv.Addr).Msg("starting API server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	api.log.Info().Msg("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), api.Config.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

