// Package coordinator owns the authoritative per-session game state. One
// coordinator runs on the host side of each session: it applies host and
// player commands, drives the server-side countdown, and republishes state
// through the store. Players and ancillary screens only ever read.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/quizdash/quizdash/internal/domain"
	"github.com/quizdash/quizdash/internal/errors"
	"github.com/quizdash/quizdash/internal/event"
	"github.com/quizdash/quizdash/internal/flow"
	"github.com/quizdash/quizdash/internal/scoring"
	"github.com/quizdash/quizdash/internal/store"
	"github.com/quizdash/quizdash/internal/telemetry"
)

type Config struct {
	PIN      string
	Quiz     domain.Quiz
	Store    store.Store
	EventBus *event.Bus
	Clock    clockwork.Clock
}

type Coordinator struct {
	pin   string
	quiz  domain.Quiz
	store store.Store
	eb    *event.Bus
	clock clockwork.Clock

	machineMu sync.Mutex
	machine   *flow.Machine

	mu        sync.Mutex
	countdown *countdown
	cancels   []store.CancelFunc
}

func New(c Config) *Coordinator {
	co := &Coordinator{
		pin:   c.PIN,
		quiz:  c.Quiz,
		store: c.Store,
		eb:    c.EventBus,
		clock: c.Clock,
	}
	if co.clock == nil {
		co.clock = clockwork.NewRealClock()
	}

	co.machine = flow.NewMachine(flow.Config{
		TotalQuestions: len(c.Quiz.Questions),
		Clock:          co.clock,
		Hook: func(from, to domain.Phase, forced bool) {
			telemetry.PhaseTransitions.WithLabelValues(string(from), string(to)).Inc()
			slog.Info("coordinator: phase transition",
				"pin", co.pin, "from", from, "to", to, "forced", forced)
		},
	})

	return co
}

// StartQuestion arms question index and begins the 1Hz countdown. Calling it
// again for the same index restarts the timer; the previous countdown is
// always cancelled first, so two intervals can never run concurrently.
func (c *Coordinator) StartQuestion(ctx context.Context, callerID string, index, duration int) error {
	sess, err := c.authorize(ctx, callerID)
	if err != nil {
		return err
	}

	if sess.Phase.Terminal() {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("cannot start a question: session is final: pin=%s", c.pin))
	}
	if index < 0 || index >= len(c.quiz.Questions) {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("question index out of range: %d of %d", index, len(c.quiz.Questions)))
	}
	if index < sess.CurrentQuestionIndex {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("question index may not go backwards: %d < %d", index, sess.CurrentQuestionIndex))
	}
	if duration <= 0 {
		duration = c.quiz.Questions[index].TimeLimit
	}

	c.stopCountdown()

	start := c.clock.Now().UTC()
	err = c.store.UpdateSession(ctx, c.pin, store.Fields{
		store.FieldPhase:             domain.PhaseQuestion,
		store.FieldQuestionIndex:     index,
		store.FieldQuestionStartTime: &start,
		store.FieldQuestionDuration:  duration,
		store.FieldTimeRemaining:     duration,
		store.FieldIsActive:          true,
	})
	if err != nil {
		return fmt.Errorf("start question: %w", err)
	}

	c.eb.Publish(ctx, domain.EventPhaseChanged{
		PIN:  c.pin,
		From: sess.Phase,
		To:   domain.PhaseQuestion,
	})

	c.beginCountdown(start, duration)
	return nil
}

// EndQuestion closes the current question and moves the session to results.
func (c *Coordinator) EndQuestion(ctx context.Context, callerID string) error {
	sess, err := c.authorize(ctx, callerID)
	if err != nil {
		return err
	}
	if sess.Phase != domain.PhaseQuestion {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("no open question to end: pin=%s phase=%s", c.pin, sess.Phase))
	}
	return c.finishQuestion(ctx, sess.Phase)
}

// finishQuestion is shared by the host command and the countdown expiry path.
func (c *Coordinator) finishQuestion(ctx context.Context, from domain.Phase) error {
	c.stopCountdown()

	err := c.store.UpdateSession(ctx, c.pin, store.Fields{
		store.FieldPhase:             domain.PhaseResults,
		store.FieldQuestionStartTime: (*time.Time)(nil),
		store.FieldTimeRemaining:     0,
		store.FieldIsActive:          false,
	})
	if err != nil {
		return fmt.Errorf("end question: %w", err)
	}

	c.eb.Publish(ctx, domain.EventPhaseChanged{
		PIN:  c.pin,
		From: from,
		To:   domain.PhaseResults,
	})
	return nil
}

// NextQuestion advances past the results screen: to the final phase when the
// last question has been played, otherwise back to waiting with the index
// advanced, where the host explicitly starts the next question.
func (c *Coordinator) NextQuestion(ctx context.Context, callerID string) error {
	sess, err := c.authorize(ctx, callerID)
	if err != nil {
		return err
	}
	if sess.Phase.Terminal() {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("session already final: pin=%s", c.pin))
	}

	c.stopCountdown()

	if sess.CurrentQuestionIndex >= len(c.quiz.Questions)-1 {
		err = c.store.UpdateSession(ctx, c.pin, store.Fields{
			store.FieldPhase:             domain.PhaseFinal,
			store.FieldQuestionStartTime: (*time.Time)(nil),
			store.FieldTimeRemaining:     0,
			store.FieldIsActive:          false,
		})
		if err != nil {
			return fmt.Errorf("finish game: %w", err)
		}

		c.eb.Publish(ctx, domain.EventPhaseChanged{
			PIN:  c.pin,
			From: sess.Phase,
			To:   domain.PhaseFinal,
		})
		return nil
	}

	err = c.store.UpdateSession(ctx, c.pin, store.Fields{
		store.FieldPhase:             domain.PhaseWaiting,
		store.FieldQuestionIndex:     sess.CurrentQuestionIndex + 1,
		store.FieldQuestionStartTime: (*time.Time)(nil),
		store.FieldTimeRemaining:     0,
		store.FieldIsActive:          false,
	})
	if err != nil {
		return fmt.Errorf("advance question: %w", err)
	}

	c.eb.Publish(ctx, domain.EventPhaseChanged{
		PIN:  c.pin,
		From: sess.Phase,
		To:   domain.PhaseWaiting,
	})
	return nil
}

// EndGame terminates the session early, bypassing the usual guards.
func (c *Coordinator) EndGame(ctx context.Context, callerID string) error {
	sess, err := c.authorize(ctx, callerID)
	if err != nil {
		return err
	}
	if sess.Phase.Terminal() {
		return nil
	}

	c.stopCountdown()

	err = c.store.UpdateSession(ctx, c.pin, store.Fields{
		store.FieldPhase:             domain.PhaseFinal,
		store.FieldQuestionStartTime: (*time.Time)(nil),
		store.FieldTimeRemaining:     0,
		store.FieldIsActive:          false,
	})
	if err != nil {
		return fmt.Errorf("end game: %w", err)
	}

	c.machineMu.Lock()
	c.machine.ForceTransition(domain.PhaseFinal)
	c.machineMu.Unlock()

	c.eb.Publish(ctx, domain.EventPhaseChanged{
		PIN:    c.pin,
		From:   sess.Phase,
		To:     domain.PhaseFinal,
		Forced: true,
	})
	return nil
}

type SubmitAnswerRequest struct {
	PlayerID    string
	AnswerIndex int
}

type SubmitAnswerResponse struct {
	QuestionIndex int
	IsCorrect     bool
	Points        int
	TotalScore    int
	Streak        int
}

// SubmitAnswer records a player's answer for the current question: exactly
// once per (player, question index). The score, streak and answer record land
// in a single write to the player's own document, so a failure leaves no
// partial state and concurrent submissions from different players never
// contend.
func (c *Coordinator) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) (*SubmitAnswerResponse, error) {
	sess, err := c.store.GetSession(ctx, c.pin)
	if err != nil {
		return nil, err
	}

	if sess.Phase != domain.PhaseQuestion || sess.QuestionStartTime == nil {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("no question is open for answers: pin=%s phase=%s", c.pin, sess.Phase))
	}

	idx := sess.CurrentQuestionIndex
	if idx < 0 || idx >= len(c.quiz.Questions) {
		return nil, errors.New(errors.CodeInternal,
			errors.WithMessagef("session question index out of range: %d", idx))
	}

	player, err := c.store.GetPlayer(ctx, c.pin, req.PlayerID)
	if err != nil {
		return nil, err
	}

	if _, answered := player.Answers[idx]; answered {
		return nil, errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("answer already submitted: pin=%s player=%s question=%d", c.pin, req.PlayerID, idx))
	}

	q := c.quiz.Questions[idx]
	now := c.clock.Now().UTC()
	remaining := sess.RemainingAt(now)

	res := scoring.Score(q, req.AnswerIndex, remaining, q.TimeLimit)

	streak := 0
	if res.IsCorrect {
		streak = player.Streak + 1
	}
	total := player.Score + res.Points

	answers := make(map[int]domain.AnswerRecord, len(player.Answers)+1)
	for k, v := range player.Answers {
		answers[k] = v
	}
	answers[idx] = domain.AnswerRecord{
		AnswerIndex:   req.AnswerIndex,
		IsCorrect:     res.IsCorrect,
		Points:        res.Points,
		TimeRemaining: remaining,
		SubmittedAt:   now,
	}

	err = c.store.UpdatePlayer(ctx, c.pin, req.PlayerID, store.Fields{
		store.FieldScore:   total,
		store.FieldStreak:  streak,
		store.FieldAnswers: answers,
	})
	if err != nil {
		return nil, fmt.Errorf("record answer: %w", err)
	}

	telemetry.AnswersSubmitted.WithLabelValues(strconv.FormatBool(res.IsCorrect)).Inc()

	c.eb.Publish(ctx, domain.EventScoreUpdated{
		PIN:        c.pin,
		PlayerID:   player.PlayerID,
		Nickname:   player.Nickname,
		TotalScore: total,
		JoinSeq:    player.JoinSeq,
		UpdateTime: now,
	})

	return &SubmitAnswerResponse{
		QuestionIndex: idx,
		IsCorrect:     res.IsCorrect,
		Points:        res.Points,
		TotalScore:    total,
		Streak:        streak,
	}, nil
}

// SubscribeToGameState streams reconciled session snapshots to the callback.
// TimeRemaining is always recomputed from the wall clock while a question is
// live; the cached value in the snapshot may be a tick stale. The returned
// disposer is safe to call more than once; Cleanup also releases it.
func (c *Coordinator) SubscribeToGameState(ctx context.Context, callback func(domain.Session)) (store.CancelFunc, error) {
	ch, cancel, err := c.store.SubscribeSession(ctx, c.pin)
	if err != nil {
		return nil, err
	}

	go func() {
		for snap := range ch {
			if snap.Phase == domain.PhaseQuestion && snap.QuestionStartTime != nil {
				snap.TimeRemaining = snap.RemainingAt(c.clock.Now())
			}

			c.machineMu.Lock()
			c.machine.Observe(snap)
			c.machineMu.Unlock()

			callback(snap)
		}
	}()

	c.mu.Lock()
	c.cancels = append(c.cancels, cancel)
	c.mu.Unlock()

	return cancel, nil
}

// Phase returns the locally mirrored phase.
func (c *Coordinator) Phase() domain.Phase {
	c.machineMu.Lock()
	defer c.machineMu.Unlock()
	return c.machine.Phase()
}

// Quiz exposes the immutable quiz content backing this session.
func (c *Coordinator) Quiz() domain.Quiz {
	return c.quiz
}

// Cleanup cancels the countdown and every live subscription. Safe to call
// multiple times.
func (c *Coordinator) Cleanup() {
	c.stopCountdown()

	c.mu.Lock()
	cancels := c.cancels
	c.cancels = nil
	c.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

func (c *Coordinator) authorize(ctx context.Context, callerID string) (domain.Session, error) {
	sess, err := c.store.GetSession(ctx, c.pin)
	if err != nil {
		return domain.Session{}, err
	}
	if callerID != sess.HostID {
		return domain.Session{}, errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("only the host may control the session: pin=%s", c.pin))
	}
	return sess, nil
}

// countdown is the cooperative 1Hz ticker behind an active question. Only one
// may exist per coordinator; it is the sole writer of time_remaining while a
// question runs.
type countdown struct {
	stop chan struct{}
	once sync.Once
}

func (cd *countdown) cancel() {
	cd.once.Do(func() { close(cd.stop) })
}

func (c *Coordinator) beginCountdown(start time.Time, duration int) {
	cd := &countdown{stop: make(chan struct{})}

	c.mu.Lock()
	c.countdown = cd
	c.mu.Unlock()

	go c.runCountdown(cd, start, duration)
}

func (c *Coordinator) stopCountdown() {
	c.mu.Lock()
	cd := c.countdown
	c.countdown = nil
	c.mu.Unlock()

	if cd != nil {
		cd.cancel()
	}
}

func (c *Coordinator) runCountdown(cd *countdown, start time.Time, duration int) {
	ticker := c.clock.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-cd.stop:
			return
		case now := <-ticker.Chan():
			// Remaining time derives from elapsed wall clock, not from the
			// previously persisted value, so a missed or failed tick heals
			// itself on the next one.
			remaining := duration - int(now.Sub(start)/time.Second)
			if remaining < 0 {
				remaining = 0
			}

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			err := c.store.UpdateSession(ctx, c.pin, store.Fields{
				store.FieldTimeRemaining: remaining,
			})
			cancel()
			if err != nil {
				telemetry.CountdownWriteFailures.Inc()
				slog.Warn("coordinator: countdown tick write failed, retrying next tick",
					"pin", c.pin, "remaining", remaining, "error", err)
				continue
			}

			if remaining <= 0 {
				cd.cancel()

				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := c.finishQuestion(ctx, domain.PhaseQuestion); err != nil {
					slog.Error("coordinator: auto-close question failed",
						"pin", c.pin, "error", err)
				}
				cancel()
				return
			}
		}
	}
}
