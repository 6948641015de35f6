// Package flow validates and computes game-phase transitions from session
// snapshots. The machine is advisory: the store's reported phase is always
// adopted as truth, and the side-effect hook may log or count but never
// writes back, so two machines observing the same stream can never fight
// each other with competing writes.
package flow

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/quizdash/quizdash/internal/domain"
)

// DefaultRefractory damps transition storms caused by duplicate change
// notifications: after a guard-driven transition the machine ignores further
// automatic transitions for this window.
const DefaultRefractory = 500 * time.Millisecond

// Hook observes applied transitions. It must not mutate the session store.
type Hook func(from, to domain.Phase, forced bool)

type transition struct {
	from  domain.Phase
	to    domain.Phase
	guard func(s domain.Session, totalQuestions int) bool
}

// transitions is scanned in order; the first matching guard from the current
// phase wins. PhaseFinal is terminal and has no outgoing rows.
var transitions = []transition{
	{
		from: domain.PhaseWaiting,
		to:   domain.PhaseQuestion,
		guard: func(s domain.Session, _ int) bool {
			return s.IsActive && s.QuestionStartTime != nil
		},
	},
	{
		from: domain.PhaseQuestion,
		to:   domain.PhaseResults,
		guard: func(s domain.Session, _ int) bool {
			return !s.IsActive || s.TimeRemaining <= 0
		},
	},
	{
		from: domain.PhaseResults,
		to:   domain.PhaseQuestion,
		guard: func(s domain.Session, _ int) bool {
			return s.IsActive && s.QuestionStartTime != nil
		},
	},
	{
		from: domain.PhaseResults,
		to:   domain.PhaseFinal,
		guard: func(s domain.Session, totalQuestions int) bool {
			return s.CurrentQuestionIndex >= totalQuestions-1
		},
	},
	{
		// Host force-end while a question is live. In practice the adoption
		// rule catches this first, since the store already reports final.
		from: domain.PhaseQuestion,
		to:   domain.PhaseFinal,
		guard: func(s domain.Session, _ int) bool {
			return !s.IsActive && s.Phase == domain.PhaseFinal
		},
	},
}

type Config struct {
	// Initial phase; defaults to waiting.
	Initial domain.Phase
	// TotalQuestions in the quiz, needed by the results→final guard.
	TotalQuestions int
	Clock          clockwork.Clock
	Refractory     time.Duration
	Hook           Hook
}

// Machine mirrors the phase of one session. It runs identically on host and
// player clients; only the coordinator's writes are authoritative.
type Machine struct {
	clock          clockwork.Clock
	refractory     time.Duration
	totalQuestions int
	hook           Hook

	phase       domain.Phase
	lastApplied time.Time
}

func NewMachine(c Config) *Machine {
	m := &Machine{
		clock:          c.Clock,
		refractory:     c.Refractory,
		totalQuestions: c.TotalQuestions,
		hook:           c.Hook,
		phase:          c.Initial,
	}
	if m.clock == nil {
		m.clock = clockwork.NewRealClock()
	}
	if m.refractory <= 0 {
		m.refractory = DefaultRefractory
	}
	if m.phase == "" {
		m.phase = domain.PhaseWaiting
	}
	return m
}

// Phase returns the machine's current phase.
func (m *Machine) Phase() domain.Phase {
	return m.phase
}

// Observe feeds one store snapshot through the machine and returns the phase
// after reconciliation.
//
// If the snapshot reports a different phase the machine adopts it
// immediately, no guards consulted: the store is the source of truth and a
// malformed or surprising snapshot degrades to adoption, never an error.
// Otherwise the transition table is scanned from the current phase, subject
// to the refractory window.
func (m *Machine) Observe(s domain.Session) domain.Phase {
	if s.Phase.Valid() && s.Phase != m.phase {
		m.apply(s.Phase, false)
		return m.phase
	}

	if m.phase.Terminal() {
		return m.phase
	}

	if !m.lastApplied.IsZero() && m.clock.Since(m.lastApplied) < m.refractory {
		return m.phase
	}

	for _, tr := range transitions {
		if tr.from != m.phase {
			continue
		}
		if tr.guard(s, m.totalQuestions) {
			m.apply(tr.to, false)
			break
		}
	}
	return m.phase
}

// ForceTransition bypasses guards and the refractory window. Used only for
// host-initiated early termination.
func (m *Machine) ForceTransition(to domain.Phase) domain.Phase {
	if !to.Valid() {
		return m.phase
	}
	m.apply(to, true)
	return m.phase
}

func (m *Machine) apply(to domain.Phase, forced bool) {
	from := m.phase
	m.phase = to
	m.lastApplied = m.clock.Now()
	if m.hook != nil && from != to {
		m.hook(from, to, forced)
	}
}
