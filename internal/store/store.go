// Package store defines the adapter over the document database that backs
// live sessions. The store doubles as the message bus: every write to a
// document triggers a change notification, and each subscriber re-reads the
// full document on notification rather than trusting the notification
// payload. Delivery is at-least-once; duplicates and stale notifications are
// normal and must be tolerated by consumers.
package store

import (
	"context"

	"github.com/quizdash/quizdash/internal/domain"
)

// Fields is a partial, last-write-wins update. Keys are the Field* constants;
// absent keys leave the stored value untouched.
type Fields map[string]any

// Session document fields.
const (
	FieldPhase             = "phase"
	FieldQuestionIndex     = "question_index"
	FieldQuestionStartTime = "question_start_time"
	FieldQuestionDuration  = "question_duration"
	FieldTimeRemaining     = "time_remaining"
	FieldIsActive          = "is_active"
)

// Player document fields.
const (
	FieldScore   = "score"
	FieldStreak  = "streak"
	FieldAnswers = "answers"
)

// CancelFunc releases a subscription. Safe to call more than once.
type CancelFunc func()

// Store is the session document store. Session documents are single-writer
// (host) / multi-reader; player documents are keyed by (pin, playerID) so
// concurrent joins and answers never contend on a shared record.
type Store interface {
	GetSession(ctx context.Context, pin string) (domain.Session, error)
	PutSession(ctx context.Context, s domain.Session) error
	UpdateSession(ctx context.Context, pin string, f Fields) error

	GetPlayer(ctx context.Context, pin, playerID string) (domain.PlayerSession, error)
	PutPlayer(ctx context.Context, p domain.PlayerSession) error
	UpdatePlayer(ctx context.Context, pin, playerID string, f Fields) error
	ListPlayers(ctx context.Context, pin string) ([]domain.PlayerSession, error)

	// SubscribeSession streams full snapshots of one session document.
	SubscribeSession(ctx context.Context, pin string) (<-chan domain.Session, CancelFunc, error)
	// SubscribePlayers streams full snapshots of the player-document set.
	SubscribePlayers(ctx context.Context, pin string) (<-chan []domain.PlayerSession, CancelFunc, error)
}
