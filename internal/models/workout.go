package models

import "time"

// Workout belongs to exactly one user. Timestamp is assigned by the database on insert.
type Workout struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	UserID    int64     `json:"user_id" db:"user_id"`
}
