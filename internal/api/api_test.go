package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/liftlog-io/liftlog/internal/auth"
	"github.com/liftlog-io/liftlog/internal/config"
	"github.com/liftlog-io/liftlog/internal/database"
	"github.com/liftlog-io/liftlog/internal/models"
	"github.com/liftlog-io/liftlog/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"
)

func testConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{
			Port:            8080,
			ShutdownTimeout: time.Second,
			AllowedOrigins:  []string{"http://localhost:*"},
		},
		Auth: config.AuthConfig{
			SecretKey:         "test-secret",
			Algorithm:         "HS256",
			TokenTTL:          30 * time.Minute,
			PasswordAlgorithm: "bcrypt",
			BcryptCost:        bcrypt.MinCost,
		},
	}
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// APITestSuite drives the router end to end over a migrated SQLite file.
type APITestSuite struct {
	suite.Suite
	clock  *testClock
	store  *store.Store
	tokens *auth.TokenManager
	server *httptest.Server
	db     *database.DB
}

func (s *APITestSuite) SetupTest() {
	ctx := context.Background()
	s.clock = &testClock{t: time.Now().Truncate(time.Second)}

	db, err := database.Open(ctx, config.DatabaseConfig{URL: "sqlite:///" + filepath.Join(s.T().TempDir(), "api.db")}, zerolog.Nop())
	s.Require().NoError(err)
	s.Require().NoError(database.Migrate(ctx, db, zerolog.Nop()))
	s.db = db
	s.store = store.New(db)

	cfg := testConfig()
	s.tokens, err = auth.NewTokenManager(cfg.Auth, auth.WithClock(s.clock.Now))
	s.Require().NoError(err)
	hasher, err := auth.NewHasher(cfg.Auth)
	s.Require().NoError(err)
	svc, err := auth.NewService(s.store, hasher, s.tokens, zerolog.Nop())
	s.Require().NoError(err)

	api, err := NewApi(cfg, svc, s.store, zerolog.Nop())
	s.Require().NoError(err)
	s.server = httptest.NewServer(api.Router)
}

func (s *APITestSuite) TearDownTest() {
	s.server.Close()
	s.db.Close()
}

func TestAPITestSuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}

func (s *APITestSuite) do(method, path, token string, body io.Reader, contentType string) *http.Response {
	req, err := http.NewRequest(method, s.server.URL+path, body)
	s.Require().NoError(err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	s.T().Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *APITestSuite) register(email, password string) *http.Response {
	body := fmt.Sprintf(`{"email":%q,"password":%q}`, email, password)
	return s.do(http.MethodPost, "/users/", "", strings.NewReader(body), "application/json")
}

func (s *APITestSuite) login(email, password string) *http.Response {
	form := url.Values{"username": {email}, "password": {password}}
	return s.do(http.MethodPost, "/login", "", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
}

func (s *APITestSuite) loginToken(email, password string) string {
	resp := s.login(email, password)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var tok models.Token
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&tok))
	return tok.AccessToken
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (s *APITestSuite) assertUnauthorized(resp *http.Response) {
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
	s.Equal("Bearer", resp.Header.Get("WWW-Authenticate"))
	s.Equal(map[string]any{"detail": "Could not validate credentials"}, decode[map[string]any](s.T(), resp))
}

func (s *APITestSuite) TestRoundTrip() {
	resp := s.register("alice@example.com", "hunter2")
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	created := decode[map[string]any](s.T(), resp)
	s.Equal("alice@example.com", created["email"])
	s.NotContains(created, "hashed_password")
	s.NotContains(created, "password")

	token := s.loginToken("alice@example.com", "hunter2")

	resp = s.do(http.MethodGet, "/users/me", token, nil, "")
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	me := decode[map[string]any](s.T(), resp)
	s.Equal(created, me)
}

func (s *APITestSuite) TestLoginResponseShape() {
	s.Require().Equal(http.StatusOK, s.register("bob@example.com", "pw").StatusCode)

	resp := s.login("bob@example.com", "pw")
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	body := decode[map[string]string](s.T(), resp)
	s.Equal("bearer", body["token_type"])
	s.NotEmpty(body["access_token"])
}

func (s *APITestSuite) TestDuplicateRegistration() {
	s.Require().Equal(http.StatusOK, s.register("dup@example.com", "a").StatusCode)

	resp := s.register("dup@example.com", "b")
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.Equal(map[string]any{"detail": "Email already registered"}, decode[map[string]any](s.T(), resp))
}

func (s *APITestSuite) TestConcurrentDuplicateRegistration() {
	const n = 6
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := `{"email":"race@example.com","password":"pw"}`
			resp, err := http.Post(s.server.URL+"/users/", "application/json", strings.NewReader(body))
			if err != nil {
				return
			}
			defer resp.Body.Close()
			codes[i] = resp.StatusCode
		}(i)
	}
	wg.Wait()

	ok, conflict := 0, 0
	for _, c := range codes {
		switch c {
		case http.StatusOK:
			ok++
		case http.StatusBadRequest:
			conflict++
		}
	}
	s.Equal(1, ok)
	s.Equal(n-1, conflict)
}

func (s *APITestSuite) TestLoginFailuresLookAlike() {
	s.Require().Equal(http.StatusOK, s.register("carol@example.com", "right").StatusCode)

	wrong := s.login("carol@example.com", "wrong")
	unknown := s.login("nobody@example.com", "right")

	for _, resp := range []*http.Response{wrong, unknown} {
		s.Equal(http.StatusBadRequest, resp.StatusCode)
		s.Empty(resp.Header.Get("WWW-Authenticate"))
		s.Equal(map[string]any{"detail": "Incorrect email or password"}, decode[map[string]any](s.T(), resp))
	}
}

func (s *APITestSuite) TestMeRejections() {
	s.Require().Equal(http.StatusOK, s.register("dave@example.com", "pw").StatusCode)
	token := s.loginToken("dave@example.com", "pw")

	s.Run("no token", func() {
		s.assertUnauthorized(s.do(http.MethodGet, "/users/me", "", nil, ""))
	})
	s.Run("garbage token", func() {
		s.assertUnauthorized(s.do(http.MethodGet, "/users/me", "garbage", nil, ""))
	})
	s.Run("wrong scheme", func() {
		req, _ := http.NewRequest(http.MethodGet, s.server.URL+"/users/me", nil)
		req.Header.Set("Authorization", "Basic "+token)
		resp, err := http.DefaultClient.Do(req)
		s.Require().NoError(err)
		defer resp.Body.Close()
		s.assertUnauthorized(resp)
	})
	s.Run("expired token", func() {
		s.clock.Advance(31 * time.Minute)
		defer s.clock.Advance(-31 * time.Minute)
		s.assertUnauthorized(s.do(http.MethodGet, "/users/me", token, nil, ""))
	})
	s.Run("deleted user", func() {
		u, err := s.store.GetUserByEmail(context.Background(), "dave@example.com")
		s.Require().NoError(err)
		s.Require().NoError(s.store.DeleteUser(context.Background(), u.ID))
		s.assertUnauthorized(s.do(http.MethodGet, "/users/me", token, nil, ""))
	})
}

func (s *APITestSuite) TestValidationErrors() {
	tests := []struct {
		name string
		body string
		loc  []any
	}{
		{"malformed json", `{"email":`, []any{"body"}},
		{"missing password", `{"email":"x@example.com"}`, []any{"body", "password"}},
		{"bad email", `{"email":"not-an-email","password":"pw"}`, []any{"body", "email"}},
		{"trailing garbage", `{"email":"tail@example.com","password":"pw"}garbage`, []any{"body"}},
		{"two documents", `{"email":"tail@example.com","password":"pw"} {}`, []any{"body"}},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			resp := s.do(http.MethodPost, "/users/", "", strings.NewReader(tt.body), "application/json")
			s.Equal(http.StatusUnprocessableEntity, resp.StatusCode)
			body := decode[map[string][]map[string]any](s.T(), resp)
			s.Require().NotEmpty(body["detail"])
			s.Equal(tt.loc, body["detail"][0]["loc"])
		})
	}
	s.Run("rejected body creates no user", func() {
		resp := s.do(http.MethodPost, "/login", "", strings.NewReader("username=tail%40example.com&password=pw"), "application/x-www-form-urlencoded")
		s.Equal(http.StatusBadRequest, resp.StatusCode)
	})

	s.Run("login missing field", func() {
		resp := s.do(http.MethodPost, "/login", "", strings.NewReader("username=x%40example.com"), "application/x-www-form-urlencoded")
		s.Equal(http.StatusUnprocessableEntity, resp.StatusCode)
	})
	s.Run("password over bcrypt limit", func() {
		resp := s.register("long@example.com", strings.Repeat("p", 73))
		s.Equal(http.StatusUnprocessableEntity, resp.StatusCode)
	})
}

func (s *APITestSuite) TestEmptyPasswordAccepted() {
	resp := s.register("empty@example.com", "")
	s.Equal(http.StatusOK, resp.StatusCode)
}

func (s *APITestSuite) TestWorkouts() {
	s.Require().Equal(http.StatusOK, s.register("erin@example.com", "pw").StatusCode)
	s.Require().Equal(http.StatusOK, s.register("frank@example.com", "pw").StatusCode)
	erin := s.loginToken("erin@example.com", "pw")
	frank := s.loginToken("frank@example.com", "pw")

	resp := s.do(http.MethodPost, "/workouts/", erin, strings.NewReader(`{"name":"leg day"}`), "application/json")
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	w := decode[models.Workout](s.T(), resp)
	s.Equal("leg day", w.Name)
	s.NotZero(w.ID)
	s.False(w.Timestamp.IsZero())

	resp = s.do(http.MethodPost, "/workouts/", frank, strings.NewReader(`{"name":"push"}`), "application/json")
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	resp = s.do(http.MethodGet, "/workouts/", erin, nil, "")
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	list := decode[[]models.Workout](s.T(), resp)
	s.Require().Len(list, 1)
	s.Equal(w.ID, list[0].ID)
	s.Equal(w.UserID, list[0].UserID)

	s.assertUnauthorized(s.do(http.MethodGet, "/workouts/", "", nil, ""))

	resp = s.do(http.MethodPost, "/workouts/", erin, strings.NewReader(`{}`), "application/json")
	s.Equal(http.StatusUnprocessableEntity, resp.StatusCode)
}

func (s *APITestSuite) TestEmptyWorkoutListIsArray() {
	s.Require().Equal(http.StatusOK, s.register("gina@example.com", "pw").StatusCode)
	token := s.loginToken("gina@example.com", "pw")

	resp := s.do(http.MethodGet, "/workouts", token, nil, "")
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	s.JSONEq(`[]`, string(raw))
}

func (s *APITestSuite) TestHeartbeatAndNotFound() {
	resp := s.do(http.MethodGet, "/heartbeat", "", nil, "")
	s.Equal(http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	s.Equal(".", string(raw))

	// Heartbeat answers ahead of the auth middleware.
	resp = s.do(http.MethodGet, "/heartbeat", "garbage", nil, "")
	s.Equal(http.StatusOK, resp.StatusCode)

	resp = s.do(http.MethodGet, "/nonexistent", "", nil, "")
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func TestNewApi(t *testing.T) {
	svc := stubAuth{}
	workouts := stubWorkouts{}

	t.Run("ValidConfig", func(t *testing.T) {
		api, err := NewApi(testConfig(), svc, workouts, zerolog.Nop())
		require.NoError(t, err)
		assert.Equal(t, 8080, api.Config.Server.Port)
	})

	t.Run("InvalidConfigZeroPort", func(t *testing.T) {
		cfg := testConfig()
		cfg.Server.Port = 0
		_, err := NewApi(cfg, svc, workouts, zerolog.Nop())
		assert.ErrorContains(t, err, "must have at least a port")
	})

	t.Run("MissingDependencies", func(t *testing.T) {
		_, err := NewApi(testConfig(), nil, workouts, zerolog.Nop())
		assert.Error(t, err)
	})
}

type stubAuth struct{ err error }

func (s stubAuth) Authenticate(context.Context, string) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.User{ID: 1, Email: "stub@example.com"}, nil
}

func (s stubAuth) Register(context.Context, string, string) (*models.User, error) {
	return nil, s.err
}

func (s stubAuth) Login(context.Context, string, string) (*models.Token, error) {
	return nil, s.err
}

type stubWorkouts struct{ err error }

func (s stubWorkouts) CreateWorkout(context.Context, int64, string) (*models.Workout, error) {
	return nil, s.err
}

func (s stubWorkouts) ListWorkoutsByUser(context.Context, int64) ([]models.Workout, error) {
	return nil, s.err
}

func TestInternalErrorsAreGeneric(t *testing.T) {
	leak := errors.New(`pq: relation "users" does not exist`)
	api, err := NewApi(testConfig(), stubAuth{err: leak}, stubWorkouts{err: leak}, zerolog.Nop())
	require.NoError(t, err)

	requests := map[string]*http.Request{
		"register": httptest.NewRequest(http.MethodPost, "/users/", strings.NewReader(`{"email":"a@example.com","password":"x"}`)),
		"login":    httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("username=a%40example.com&password=x")),
		"me":       httptest.NewRequest(http.MethodGet, "/users/me", nil),
	}
	requests["login"].Header.Set("Content-Type", "application/x-www-form-urlencoded")
	requests["me"].Header.Set("Authorization", "Bearer whatever")

	for name, req := range requests {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			api.Router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusInternalServerError, w.Code)
			assert.JSONEq(t, `{"detail":"Internal server error"}`, w.Body.String())
			assert.NotContains(t, w.Body.String(), "pq:")
		})
	}
}

func TestWorkoutStoreFailure(t *testing.T) {
	api, err := NewApi(testConfig(), stubAuth{}, stubWorkouts{err: errors.New("db error: locked")}, zerolog.Nop())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/workouts/", nil)
	req.Header.Set("Authorization", "Bearer t")
	w := httptest.NewRecorder()
	api.Router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "locked")
}

func TestServe(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Port = 18089
	api, err := NewApi(cfg, stubAuth{}, stubWorkouts{}, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- api.Serve(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://localhost:18089/heartbeat")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}
