package flow_test

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/quizdash/quizdash/internal/domain"
	"github.com/quizdash/quizdash/internal/flow"
)

func TestMachine_GuardedTransitions(t *testing.T) {
	now := time.Now().UTC()

	tests := map[string]struct {
		initial  domain.Phase
		total    int
		snapshot domain.Session
		want     domain.Phase
	}{
		"waiting advances to question when a question is armed": {
			initial: domain.PhaseWaiting,
			total:   3,
			snapshot: domain.Session{
				Phase:             domain.PhaseWaiting,
				IsActive:          true,
				QuestionStartTime: &now,
			},
			want: domain.PhaseQuestion,
		},

		"waiting holds without an armed question": {
			initial: domain.PhaseWaiting,
			total:   3,
			snapshot: domain.Session{
				Phase: domain.PhaseWaiting,
			},
			want: domain.PhaseWaiting,
		},

		"question advances to results when the timer expires": {
			initial: domain.PhaseQuestion,
			total:   3,
			snapshot: domain.Session{
				Phase:         domain.PhaseQuestion,
				IsActive:      true,
				TimeRemaining: 0,
			},
			want: domain.PhaseResults,
		},

		"question advances to results when deactivated": {
			initial: domain.PhaseQuestion,
			total:   3,
			snapshot: domain.Session{
				Phase:         domain.PhaseQuestion,
				IsActive:      false,
				TimeRemaining: 12,
			},
			want: domain.PhaseResults,
		},

		"question holds while the timer runs": {
			initial: domain.PhaseQuestion,
			total:   3,
			snapshot: domain.Session{
				Phase:         domain.PhaseQuestion,
				IsActive:      true,
				TimeRemaining: 12,
			},
			want: domain.PhaseQuestion,
		},

		"results advances to next question when one is armed": {
			initial: domain.PhaseResults,
			total:   3,
			snapshot: domain.Session{
				Phase:                domain.PhaseResults,
				IsActive:             true,
				QuestionStartTime:    &now,
				CurrentQuestionIndex: 1,
			},
			want: domain.PhaseQuestion,
		},

		"results advances to final after the last question": {
			initial: domain.PhaseResults,
			total:   3,
			snapshot: domain.Session{
				Phase:                domain.PhaseResults,
				CurrentQuestionIndex: 2,
			},
			want: domain.PhaseFinal,
		},

		"results holds mid-game with no armed question": {
			initial: domain.PhaseResults,
			total:   3,
			snapshot: domain.Session{
				Phase:                domain.PhaseResults,
				CurrentQuestionIndex: 1,
			},
			want: domain.PhaseResults,
		},

		"final is terminal": {
			initial: domain.PhaseFinal,
			total:   3,
			snapshot: domain.Session{
				Phase:             domain.PhaseFinal,
				IsActive:          true,
				QuestionStartTime: &now,
			},
			want: domain.PhaseFinal,
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			m := flow.NewMachine(flow.Config{
				Initial:        tt.initial,
				TotalQuestions: tt.total,
				Clock:          clockwork.NewFakeClock(),
			})

			require.Equal(t, tt.want, m.Observe(tt.snapshot))
			require.Equal(t, tt.want, m.Phase())
		})
	}
}

func TestMachine_AdoptsReportedPhase(t *testing.T) {
	m := flow.NewMachine(flow.Config{
		Initial:        domain.PhaseQuestion,
		TotalQuestions: 3,
		Clock:          clockwork.NewFakeClock(),
	})

	// The store is the source of truth; a snapshot reporting a different
	// phase is adopted immediately, guards not consulted.
	got := m.Observe(domain.Session{Phase: domain.PhaseFinal, IsActive: true})
	require.Equal(t, domain.PhaseFinal, got)

	// An invalid phase degrades to keeping the current one.
	got = m.Observe(domain.Session{Phase: domain.Phase("bogus")})
	require.Equal(t, domain.PhaseFinal, got)
}

func TestMachine_RefractoryWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	now := time.Now().UTC()

	var applied []domain.Phase
	m := flow.NewMachine(flow.Config{
		Initial:        domain.PhaseWaiting,
		TotalQuestions: 1,
		Clock:          clock,
		Hook: func(_, to domain.Phase, _ bool) {
			applied = append(applied, to)
		},
	})

	armed := domain.Session{
		Phase:             domain.PhaseWaiting,
		IsActive:          true,
		QuestionStartTime: &now,
	}
	require.Equal(t, domain.PhaseQuestion, m.Observe(armed))

	// Duplicate notifications inside the window must not cascade into
	// further automatic transitions.
	dup := domain.Session{Phase: domain.PhaseQuestion, IsActive: true, TimeRemaining: 0}
	require.Equal(t, domain.PhaseQuestion, m.Observe(dup))
	require.Equal(t, domain.PhaseQuestion, m.Observe(dup))

	clock.Advance(flow.DefaultRefractory + time.Millisecond)
	require.Equal(t, domain.PhaseResults, m.Observe(dup))

	require.Equal(t, []domain.Phase{domain.PhaseQuestion, domain.PhaseResults}, applied)
}

func TestMachine_ForceTransition(t *testing.T) {
	var forced bool
	m := flow.NewMachine(flow.Config{
		Initial:        domain.PhaseQuestion,
		TotalQuestions: 3,
		Clock:          clockwork.NewFakeClock(),
		Hook: func(_, _ domain.Phase, f bool) {
			forced = f
		},
	})

	require.Equal(t, domain.PhaseFinal, m.ForceTransition(domain.PhaseFinal))
	require.True(t, forced, "hook reports forced transitions")

	// Garbage targets are ignored.
	require.Equal(t, domain.PhaseFinal, m.ForceTransition(domain.Phase("bogus")))
}
