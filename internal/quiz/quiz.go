// Package quiz provides read-only access to quiz content. Questions are
// immutable once a game starts; the session engine never writes here.
package quiz

import (
	"context"

	"github.com/quizdash/quizdash/internal/domain"
	"github.com/quizdash/quizdash/internal/errors"
)

// Provider fetches quiz content by reference.
type Provider interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// StaticProvider serves a fixed set of quizzes from memory. Used in tests
// and single-node demo deployments.
type StaticProvider struct {
	quizzes map[string]domain.Quiz
}

func NewStaticProvider(quizzes ...domain.Quiz) *StaticProvider {
	m := make(map[string]domain.Quiz, len(quizzes))
	for _, q := range quizzes {
		m[q.ID] = q
	}
	return &StaticProvider{quizzes: m}
}

func (p *StaticProvider) GetQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	q, ok := p.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, errors.New(errors.CodeNotFound,
			errors.WithMessagef("quiz not found: id=%s", quizID))
	}
	return q, nil
}
