package quiz

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quizdash/quizdash/internal/domain"
	"github.com/quizdash/quizdash/internal/errors"
)

type PostgresConfig struct {
	DB *pgxpool.Pool
}

// PostgresProvider reads quiz content from the quiz-authoring database.
type PostgresProvider struct {
	db *pgxpool.Pool
}

func NewPostgresProvider(c PostgresConfig) *PostgresProvider {
	return &PostgresProvider{db: c.DB}
}

func (p *PostgresProvider) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	q := domain.Quiz{ID: quizID}

	const quizStmt = `SELECT title FROM quizzes WHERE quiz_id = $1;`
	if err := p.db.QueryRow(ctx, quizStmt, quizID).Scan(&q.Title); err != nil {
		if err == pgx.ErrNoRows {
			return domain.Quiz{}, errors.New(errors.CodeNotFound,
				errors.WithMessagef("quiz not found: id=%s", quizID))
		}
		return domain.Quiz{}, fmt.Errorf("select quiz: %w", err)
	}

	questions, err := p.listQuestions(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	q.Questions = questions

	return q, nil
}

func (p *PostgresProvider) listQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	const stmt = `
SELECT question_id, question_text, time_limit, points
FROM questions
WHERE quiz_id = $1
ORDER BY position;`

	rows, err := p.db.Query(ctx, stmt, quizID)
	if err != nil {
		return nil, fmt.Errorf("select questions: %w", err)
	}

	questions, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Question, error) {
		var q domain.Question
		if err := r.Scan(&q.ID, &q.Text, &q.TimeLimit, &q.Points); err != nil {
			return domain.Question{}, err
		}
		return q, nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect questions: %w", err)
	}

	for i := range questions {
		answers, err := p.listAnswers(ctx, questions[i].ID)
		if err != nil {
			return nil, err
		}
		questions[i].Answers = answers
	}

	return questions, nil
}

func (p *PostgresProvider) listAnswers(ctx context.Context, questionID string) ([]domain.Answer, error) {
	const stmt = `
SELECT answer_text, is_correct
FROM answers
WHERE question_id = $1
ORDER BY position;`

	rows, err := p.db.Query(ctx, stmt, questionID)
	if err != nil {
		return nil, fmt.Errorf("select answers: %w", err)
	}

	answers, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Answer, error) {
		var a domain.Answer
		if err := r.Scan(&a.Text, &a.IsCorrect); err != nil {
			return domain.Answer{}, err
		}
		return a, nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect answers: %w", err)
	}

	return answers, nil
}
