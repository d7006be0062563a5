package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/liftlog-io/liftlog/internal/models"
)

// CreateUser inserts a user. A clash on the email column, even one that a
// concurrent insert won, returns ErrDuplicateEmail.
func (q *Queries) CreateUser(ctx context.Context, email, hashedPassword string) (*models.User, error) {
	var id int64
	err := q.db.QueryRowContext(ctx,
		q.rebind(`INSERT INTO users (email, hashed_password) VALUES (?, ?) RETURNING id`),
		email, hashedPassword,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return &models.User{ID: id, Email: email, HashedPassword: hashedPassword}, nil
}

// GetUserByEmail matches the email exactly.
func (q *Queries) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return q.getUser(ctx, `SELECT id, email, hashed_password FROM users WHERE email = ?`, email)
}

// GetUserByID returns ErrNotFound when no user has id.
func (q *Queries) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return q.getUser(ctx, `SELECT id, email, hashed_password FROM users WHERE id = ?`, id)
}

func (q *Queries) getUser(ctx context.Context, query string, arg any) (*models.User, error) {
	u := &models.User{}
	err := q.db.QueryRowContext(ctx, q.rebind(query), arg).Scan(&u.ID, &u.Email, &u.HashedPassword)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

// DeleteUser removes the user and, through the foreign key, their workouts.
func (q *Queries) DeleteUser(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx, q.rebind(`DELETE FROM users WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
