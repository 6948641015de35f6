// Package memory is an in-process implementation of store.Store with the same
// snapshot-on-notify contract as the network-backed store. It backs unit
// tests and single-node deployments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/quizdash/quizdash/internal/domain"
	"github.com/quizdash/quizdash/internal/errors"
	"github.com/quizdash/quizdash/internal/store"
)

const subscriberBuffer = 16

type Store struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
	players  map[string]map[string]domain.PlayerSession

	sessionSubs map[string]map[chan domain.Session]struct{}
	playerSubs  map[string]map[chan []domain.PlayerSession]struct{}
}

func New() *Store {
	return &Store{
		sessions:    make(map[string]domain.Session),
		players:     make(map[string]map[string]domain.PlayerSession),
		sessionSubs: make(map[string]map[chan domain.Session]struct{}),
		playerSubs:  make(map[string]map[chan []domain.PlayerSession]struct{}),
	}
}

func (s *Store) GetSession(_ context.Context, pin string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ss, ok := s.sessions[pin]
	if !ok {
		return domain.Session{}, errors.New(errors.CodeNotFound,
			errors.WithMessagef("session not found: pin=%s", pin))
	}
	return ss, nil
}

func (s *Store) PutSession(_ context.Context, ss domain.Session) error {
	s.mu.Lock()
	s.sessions[ss.PIN] = ss
	s.mu.Unlock()

	s.notifySession(ss.PIN)
	return nil
}

func (s *Store) UpdateSession(_ context.Context, pin string, f store.Fields) error {
	s.mu.Lock()
	ss, ok := s.sessions[pin]
	if !ok {
		s.mu.Unlock()
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("session not found: pin=%s", pin))
	}
	if err := applySessionFields(&ss, f); err != nil {
		s.mu.Unlock()
		return err
	}
	s.sessions[pin] = ss
	s.mu.Unlock()

	s.notifySession(pin)
	return nil
}

func (s *Store) GetPlayer(_ context.Context, pin, playerID string) (domain.PlayerSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.players[pin][playerID]
	if !ok {
		return domain.PlayerSession{}, errors.New(errors.CodeNotFound,
			errors.WithMessagef("player not found: pin=%s player=%s", pin, playerID))
	}
	return clonePlayer(p), nil
}

func (s *Store) PutPlayer(_ context.Context, p domain.PlayerSession) error {
	s.mu.Lock()
	if s.players[p.PIN] == nil {
		s.players[p.PIN] = make(map[string]domain.PlayerSession)
	}
	s.players[p.PIN][p.PlayerID] = clonePlayer(p)
	s.mu.Unlock()

	s.notifyPlayers(p.PIN)
	return nil
}

func (s *Store) UpdatePlayer(_ context.Context, pin, playerID string, f store.Fields) error {
	s.mu.Lock()
	p, ok := s.players[pin][playerID]
	if !ok {
		s.mu.Unlock()
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("player not found: pin=%s player=%s", pin, playerID))
	}
	if err := applyPlayerFields(&p, f); err != nil {
		s.mu.Unlock()
		return err
	}
	s.players[pin][playerID] = p
	s.mu.Unlock()

	s.notifyPlayers(pin)
	return nil
}

func (s *Store) ListPlayers(_ context.Context, pin string) ([]domain.PlayerSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.snapshotPlayersLocked(pin), nil
}

func (s *Store) SubscribeSession(_ context.Context, pin string) (<-chan domain.Session, store.CancelFunc, error) {
	ch := make(chan domain.Session, subscriberBuffer)

	s.mu.Lock()
	if s.sessionSubs[pin] == nil {
		s.sessionSubs[pin] = make(map[chan domain.Session]struct{})
	}
	s.sessionSubs[pin][ch] = struct{}{}
	ss, ok := s.sessions[pin]
	s.mu.Unlock()

	// Initial snapshot, so late subscribers converge without waiting for the
	// next write.
	if ok {
		ch <- ss
	}

	cancel := func() {
		s.mu.Lock()
		if _, live := s.sessionSubs[pin][ch]; live {
			delete(s.sessionSubs[pin], ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel, nil
}

func (s *Store) SubscribePlayers(_ context.Context, pin string) (<-chan []domain.PlayerSession, store.CancelFunc, error) {
	ch := make(chan []domain.PlayerSession, subscriberBuffer)

	s.mu.Lock()
	if s.playerSubs[pin] == nil {
		s.playerSubs[pin] = make(map[chan []domain.PlayerSession]struct{})
	}
	s.playerSubs[pin][ch] = struct{}{}
	snapshot := s.snapshotPlayersLocked(pin)
	s.mu.Unlock()

	ch <- snapshot

	cancel := func() {
		s.mu.Lock()
		if _, live := s.playerSubs[pin][ch]; live {
			delete(s.playerSubs[pin], ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel, nil
}

func (s *Store) notifySession(pin string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ss, ok := s.sessions[pin]
	if !ok {
		return
	}
	for ch := range s.sessionSubs[pin] {
		sendSnapshot(ch, ss)
	}
}

// sendSnapshot runs under the store lock and must never block. A slow
// subscriber has its oldest buffered snapshot dropped so the latest one
// lands; when a racing notifier refills the freed slot the snapshot is
// dropped outright. Consumers re-derive state from full snapshots, so
// skipped intermediates are harmless.
func sendSnapshot[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

func (s *Store) notifyPlayers(pin string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.snapshotPlayersLocked(pin)
	for ch := range s.playerSubs[pin] {
		sendSnapshot(ch, snapshot)
	}
}

func (s *Store) snapshotPlayersLocked(pin string) []domain.PlayerSession {
	players := make([]domain.PlayerSession, 0, len(s.players[pin]))
	for _, p := range s.players[pin] {
		players = append(players, clonePlayer(p))
	}
	// Stable order keeps snapshots deterministic for consumers and tests.
	sort.Slice(players, func(i, j int) bool {
		return players[i].JoinSeq < players[j].JoinSeq
	})
	return players
}

func applySessionFields(ss *domain.Session, f store.Fields) error {
	for k, v := range f {
		switch k {
		case store.FieldPhase:
			p, ok := v.(domain.Phase)
			if !ok || !p.Valid() {
				return badField(k, v)
			}
			ss.Phase = p
		case store.FieldQuestionIndex:
			n, ok := v.(int)
			if !ok {
				return badField(k, v)
			}
			ss.CurrentQuestionIndex = n
		case store.FieldQuestionStartTime:
			t, ok := v.(*time.Time)
			if !ok {
				return badField(k, v)
			}
			ss.QuestionStartTime = t
		case store.FieldQuestionDuration:
			n, ok := v.(int)
			if !ok {
				return badField(k, v)
			}
			ss.QuestionDuration = n
		case store.FieldTimeRemaining:
			n, ok := v.(int)
			if !ok {
				return badField(k, v)
			}
			ss.TimeRemaining = n
		case store.FieldIsActive:
			b, ok := v.(bool)
			if !ok {
				return badField(k, v)
			}
			ss.IsActive = b
		default:
			return badField(k, v)
		}
	}
	return nil
}

func applyPlayerFields(p *domain.PlayerSession, f store.Fields) error {
	for k, v := range f {
		switch k {
		case store.FieldScore:
			n, ok := v.(int)
			if !ok {
				return badField(k, v)
			}
			p.Score = n
		case store.FieldStreak:
			n, ok := v.(int)
			if !ok {
				return badField(k, v)
			}
			p.Streak = n
		case store.FieldAnswers:
			m, ok := v.(map[int]domain.AnswerRecord)
			if !ok {
				return badField(k, v)
			}
			p.Answers = cloneAnswers(m)
		default:
			return badField(k, v)
		}
	}
	return nil
}

func badField(k string, v any) error {
	return errors.New(errors.CodeInvalidArgument,
		errors.WithMessagef("unsupported field update: %s=%v", k, v))
}

func clonePlayer(p domain.PlayerSession) domain.PlayerSession {
	p.Answers = cloneAnswers(p.Answers)
	return p
}

func cloneAnswers(m map[int]domain.AnswerRecord) map[int]domain.AnswerRecord {
	if m == nil {
		return nil
	}
	out := make(map[int]domain.AnswerRecord, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
