package session

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/quizdash/quizdash/internal/domain"
	"github.com/quizdash/quizdash/internal/errors"
	"github.com/quizdash/quizdash/internal/quiz"
	"github.com/quizdash/quizdash/internal/store"
)

// pinAttempts bounds retries when a generated PIN collides with a live
// session.
const pinAttempts = 10

type Config struct {
	Store   store.Store
	Quizzes quiz.Provider
	Clock   clockwork.Clock
}

// Service handles the session lifecycle edges the coordinator does not own:
// creating a game and admitting players while it waits to start.
type Service struct {
	store   store.Store
	quizzes quiz.Provider
	clock   clockwork.Clock
}

func NewService(c Config) *Service {
	s := &Service{
		store:   c.Store,
		quizzes: c.Quizzes,
		clock:   c.Clock,
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	return s
}

// CreateSessionRequest represents a host's request to open a new game.
type CreateSessionRequest struct {
	HostID string
	QuizID string
}

// CreateSession opens a new game in the waiting phase under a fresh 6-digit
// PIN, unique among concurrently active sessions.
func (s *Service) CreateSession(ctx context.Context, req CreateSessionRequest) (*domain.Session, error) {
	if req.HostID == "" || req.QuizID == "" {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("host id and quiz id are required"))
	}

	// The quiz must resolve before a PIN is burned on it.
	if _, err := s.quizzes.GetQuiz(ctx, req.QuizID); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < pinAttempts; attempt++ {
		pin, err := generatePIN()
		if err != nil {
			return nil, fmt.Errorf("generate pin: %w", err)
		}

		_, err = s.store.GetSession(ctx, pin)
		if err == nil {
			continue // collision with a live session
		}
		if !errors.Is(err, errors.CodeNotFound) {
			return nil, err
		}

		ss := domain.Session{
			PIN:                  pin,
			QuizID:               req.QuizID,
			HostID:               req.HostID,
			Phase:                domain.PhaseWaiting,
			CurrentQuestionIndex: -1,
			CreatedAt:            s.clock.Now().UTC(),
		}
		if err := s.store.PutSession(ctx, ss); err != nil {
			return nil, err
		}
		return &ss, nil
	}

	return nil, errors.New(errors.CodeInternal,
		errors.WithMessagef("could not allocate a unique pin after %d attempts", pinAttempts))
}

// JoinRequest represents a player asking to enter a waiting game.
type JoinRequest struct {
	PIN      string
	Nickname string
}

// Join admits a player into a session. Players may only join while the
// session is waiting, and nicknames are unique within a session,
// case-sensitively: a collision is rejected, never merged.
func (s *Service) Join(ctx context.Context, req JoinRequest) (*domain.PlayerSession, error) {
	if req.Nickname == "" {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("nickname is required"))
	}

	sess, err := s.store.GetSession(ctx, req.PIN)
	if err != nil {
		return nil, err
	}

	if sess.Phase != domain.PhaseWaiting {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("session is not accepting players: pin=%s phase=%s", req.PIN, sess.Phase))
	}

	players, err := s.store.ListPlayers(ctx, req.PIN)
	if err != nil {
		return nil, err
	}

	maxSeq := 0
	for _, p := range players {
		if p.Nickname == req.Nickname {
			return nil, errors.New(errors.CodeAlreadyExists,
				errors.WithMessagef("nickname already taken: pin=%s nickname=%s", req.PIN, req.Nickname))
		}
		if p.JoinSeq > maxSeq {
			maxSeq = p.JoinSeq
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate player ID: %w", err)
	}

	player := domain.PlayerSession{
		PIN:      req.PIN,
		PlayerID: id.String(),
		Nickname: req.Nickname,
		Answers:  make(map[int]domain.AnswerRecord),
		JoinedAt: s.clock.Now().UTC(),
		JoinSeq:  maxSeq + 1,
	}
	if err := s.store.PutPlayer(ctx, player); err != nil {
		return nil, err
	}

	return &player, nil
}

// generatePIN draws a uniformly random 6-digit code, leading zeros kept.
func generatePIN() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
