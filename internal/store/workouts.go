package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/liftlog-io/liftlog/internal/models"
)

// CreateWorkout stores a workout for userID and returns it with the
// database-assigned id and timestamp.
func (q *Queries) CreateWorkout(ctx context.Context, userID int64, name string) (*models.Workout, error) {
	var id int64
	err := q.db.QueryRowContext(ctx,
		q.rebind(`INSERT INTO workouts (name, user_id) VALUES (?, ?) RETURNING id`),
		name, userID,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	// Read back through the table so the driver sees the column's declared type.
	return q.GetWorkout(ctx, id)
}

// GetWorkout returns ErrNotFound when no workout has id.
func (q *Queries) GetWorkout(ctx context.Context, id int64) (*models.Workout, error) {
	w := &models.Workout{}
	err := q.db.QueryRowContext(ctx,
		q.rebind(`SELECT id, name, timestamp, user_id FROM workouts WHERE id = ?`), id,
	).Scan(&w.ID, &w.Name, &w.Timestamp, &w.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return w, nil
}

// ListWorkoutsByUser returns the user's workouts in insertion order. An
// unknown user simply has none.
func (q *Queries) ListWorkoutsByUser(ctx context.Context, userID int64) ([]models.Workout, error) {
	rows, err := q.db.QueryContext(ctx,
		q.rebind(`SELECT id, name, timestamp, user_id FROM workouts WHERE user_id = ? ORDER BY id`), userID,
	)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	workouts := []models.Workout{}
	for rows.Next() {
		var w models.Workout
		if err := rows.Scan(&w.ID, &w.Name, &w.Timestamp, &w.UserID); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		workouts = append(workouts, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return workouts, nil
}

// CreateWorkout on the Store runs the insert and read-back in one transaction.
func (s *Store) CreateWorkout(ctx context.Context, userID int64, name string) (*models.Workout, error) {
	var w *models.Workout
	err := s.WithTx(ctx, func(q *Queries) error {
		var err error
		w, err = q.CreateWorkout(ctx, userID, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}
