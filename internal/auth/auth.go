// Package auth implements password hashing, access tokens, the registration
// and login flows, and the bearer-token request guard.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/liftlog-io/liftlog/internal/models"
	"github.com/liftlog-io/liftlog/internal/store"
	"github.com/rs/zerolog"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("incorrect email or password")
)

// UserStore is the slice of the store the auth flows use.
type UserStore interface {
	CreateUser(ctx context.Context, email, hashedPassword string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// Service runs registration, login and token authentication.
type Service struct {
	users  UserStore
	hasher Hasher
	tokens *TokenManager
	log    zerolog.Logger

	// dummyHash is verified against when the email is unknown so both login
	// failures cost the same.
	dummyHash string
}

// NewService precomputes the dummy hash used for unknown emails.
func NewService(users UserStore, hasher Hasher, tokens *TokenManager, log zerolog.Logger) (*Service, error) {
	dummy, err := hasher.Hash("liftlog-timing-equaliser")
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	return &Service{
		users:     users,
		hasher:    hasher,
		tokens:    tokens,
		log:       log.With().Str("component", "auth").Logger(),
		dummyHash: dummy,
	}, nil
}

// Register creates a user. The lookup catches the common duplicate; the
// store's unique constraint catches the concurrent one. Both give ErrEmailTaken.
func (s *Service) Register(ctx context.Context, email, password string) (*models.User, error) {
	_, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, ErrEmailTaken
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	user, err := s.users.CreateUser(ctx, email, hash)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			s.log.Info().Msg("registration lost unique-email race")
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.log.Info().Int64("user_id", user.ID).Msg("user registered")
	return user, nil
}

// Login checks the credentials and returns a bearer token. Unknown email and
// wrong password are both ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (*models.Token, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("lookup user: %w", err)
		}
		s.hasher.Verify(password, s.dummyHash)
		return nil, ErrInvalidCredentials
	}

	if !s.hasher.Verify(password, user.HashedPassword) {
		return nil, ErrInvalidCredentials
	}

	access, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	return &models.Token{AccessToken: access, TokenType: models.TokenTypeBearer}, nil
}

// Authenticate resolves a bearer token to a stored user. A token whose
// subject no longer exists is ErrInvalidToken. Nothing is cached.
func (s *Service) Authenticate(ctx context.Context, token string) (*models.User, error) {
	id, err := s.tokens.Validate(token)
	if err != nil {
		return nil, ErrInvalidToken
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return user, nil
}
