package domain

import (
	"time"
)

// Phase is the coarse-grained stage of a session's lifecycle.
type Phase string

const (
	PhaseWaiting  Phase = "waiting"
	PhaseQuestion Phase = "question"
	PhaseResults  Phase = "results"
	PhaseFinal    Phase = "final"
)

// Valid reports whether p is one of the defined phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseWaiting, PhaseQuestion, PhaseResults, PhaseFinal:
		return true
	}
	return false
}

// Terminal reports whether the phase has no outgoing transitions.
func (p Phase) Terminal() bool { return p == PhaseFinal }

// Session is one running instance of a quiz, identified by a PIN.
// The session document is single-writer (host) / multi-reader (players).
type Session struct {
	PIN    string
	QuizID string
	HostID string

	Phase Phase
	// CurrentQuestionIndex is -1 before the first question and monotonically
	// non-decreasing for the rest of the game.
	CurrentQuestionIndex int
	// QuestionStartTime is set when the phase becomes question, nil otherwise.
	QuestionStartTime *time.Time
	// QuestionDuration is the allotted seconds for the current question.
	QuestionDuration int
	// TimeRemaining is a cached value; the authoritative one is always
	// max(0, QuestionDuration - (now - QuestionStartTime)).
	TimeRemaining int
	// IsActive is true only while a question's countdown is running.
	IsActive bool

	CreatedAt time.Time
}

// RemainingAt recomputes the seconds left at the given instant. It never
// trusts the cached TimeRemaining while a question is live.
func (s Session) RemainingAt(now time.Time) int {
	if s.Phase != PhaseQuestion || s.QuestionStartTime == nil {
		return 0
	}
	elapsed := int(now.Sub(*s.QuestionStartTime) / time.Second)
	remaining := s.QuestionDuration - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// AnswerRecord is one player's answer to one question.
type AnswerRecord struct {
	AnswerIndex   int       `json:"answer_index"`
	IsCorrect     bool      `json:"is_correct"`
	Points        int       `json:"points"`
	TimeRemaining int       `json:"time_remaining"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// PlayerSession is a player's join record and answer/score ledger within a
// session. Each record is single-writer (that player) / multi-reader.
type PlayerSession struct {
	PIN      string
	PlayerID string
	Nickname string

	Score  int
	Streak int
	// Answers maps question index to the recorded answer. One answer per
	// question per player; a second submission is rejected, not overwritten.
	Answers map[int]AnswerRecord

	JoinedAt time.Time
	// JoinSeq orders players by arrival within a session, used as the
	// deterministic leaderboard tie-break.
	JoinSeq int
}

// Answer is one of a question's up-to-four options.
type Answer struct {
	Text      string
	IsCorrect bool
}

// Question is owned by the external quiz entity and consumed read-only.
// Text and correctness flags must never reach a player client before reveal.
type Question struct {
	ID        string
	Text      string
	Answers   []Answer
	TimeLimit int
	Points    int
}

// Quiz is a collection of questions, immutable once a game starts.
type Quiz struct {
	ID        string
	Title     string
	Questions []Question
}

// Leaderboard is the ordered scoreboard for a session, ranked by score
// descending with ties broken by arrival order.
type Leaderboard struct {
	PIN     string
	Entries []LeaderboardEntry
}

type LeaderboardEntry struct {
	PlayerID string
	Nickname string
	Score    int
}
