package quiz_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quizdash/quizdash/internal/domain"
	"github.com/quizdash/quizdash/internal/errors"
	"github.com/quizdash/quizdash/internal/quiz"
)

func TestStaticProvider(t *testing.T) {
	p := quiz.NewStaticProvider(
		domain.Quiz{ID: "quiz-1", Title: "capitals"},
		domain.Quiz{ID: "quiz-2", Title: "flags"},
	)

	q, err := p.GetQuiz(context.Background(), "quiz-2")
	require.NoError(t, err)
	require.Equal(t, "flags", q.Title)

	_, err = p.GetQuiz(context.Background(), "quiz-3")
	require.True(t, errors.Is(err, errors.CodeNotFound))
}
