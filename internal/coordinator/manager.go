package coordinator

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/quizdash/quizdash/internal/event"
	"github.com/quizdash/quizdash/internal/quiz"
	"github.com/quizdash/quizdash/internal/store"
)

type ManagerConfig struct {
	Store    store.Store
	Quizzes  quiz.Provider
	EventBus *event.Bus
	Clock    clockwork.Clock
}

// Manager hands out one coordinator per live session. The quiz content is
// fetched once on first use and pinned for the session's lifetime: questions
// are immutable after a game starts.
type Manager struct {
	store   store.Store
	quizzes quiz.Provider
	eb      *event.Bus
	clock   clockwork.Clock

	mu     sync.Mutex
	coords map[string]*Coordinator
}

func NewManager(c ManagerConfig) *Manager {
	clock := c.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Manager{
		store:   c.Store,
		quizzes: c.Quizzes,
		eb:      c.EventBus,
		clock:   clock,
		coords:  make(map[string]*Coordinator),
	}
}

// Get returns the coordinator for a session, creating it on first use.
func (m *Manager) Get(ctx context.Context, pin string) (*Coordinator, error) {
	m.mu.Lock()
	if co, ok := m.coords[pin]; ok {
		m.mu.Unlock()
		return co, nil
	}
	m.mu.Unlock()

	// Resolve outside the lock; store and quiz fetches may block.
	sess, err := m.store.GetSession(ctx, pin)
	if err != nil {
		return nil, err
	}
	q, err := m.quizzes.GetQuiz(ctx, sess.QuizID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if co, ok := m.coords[pin]; ok {
		return co, nil
	}

	co := New(Config{
		PIN:      pin,
		Quiz:     q,
		Store:    m.store,
		EventBus: m.eb,
		Clock:    m.clock,
	})
	m.coords[pin] = co
	return co, nil
}

// Release disposes a session's coordinator, cancelling its countdown and
// subscriptions.
func (m *Manager) Release(pin string) {
	m.mu.Lock()
	co := m.coords[pin]
	delete(m.coords, pin)
	m.mu.Unlock()

	if co != nil {
		co.Cleanup()
	}
}

// Shutdown releases every coordinator.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	coords := m.coords
	m.coords = make(map[string]*Coordinator)
	m.mu.Unlock()

	for _, co := range coords {
		co.Cleanup()
	}
}
