// Package submission persists completed intakes to an append-only store.
package submission

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/enrollbot/intake/flow"
)

// Sink appends submissions. Implementations serialize concurrent writers and
// never mutate or reorder earlier records.
type Sink interface {
	Append(ctx context.Context, sub flow.Submission) error
}

// Record is the stored form of a submission.
type Record struct {
	ID        string    `json:"id" db:"id"`
	Timestamp time.Time `json:"timestamp" db:"created_at"`
	UserID    int64     `json:"user_id" db:"user_id"`
	Name      string    `json:"name" db:"name"`
	Age       string    `json:"age" db:"age"`
	Course    string    `json:"course" db:"course"`
	Phone     string    `json:"phone" db:"phone"`
	Language  string    `json:"language" db:"language"`
}

// NewRecord stamps sub with a fresh id and the given time.
func NewRecord(sub flow.Submission, now time.Time) Record {
	return Record{
		ID:        uuid.NewString(),
		Timestamp: now.UTC(),
		UserID:    sub.UserID,
		Name:      sub.Name,
		Age:       sub.Age,
		Course:    sub.Course,
		Phone:     sub.Phone,
		Language:  sub.Language,
	}
}

// WriteError reports a failed append.
type WriteError struct {
	Sink string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("submission sink %s: write failed: %v", e.Sink, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Code identifies the error kind in handler summaries.
func (e *WriteError) Code() string { return "WRITE_ERROR" }
