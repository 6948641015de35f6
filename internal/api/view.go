package api

import (
	"time"

	"github.com/quizdash/quizdash/internal/domain"
)

// Wire views. While a question is open for answers, player-facing payloads
// carry index-aligned answer buttons only: no question text, no answer texts,
// no correctness. The full question becomes public once it is revealed.

type SessionView struct {
	PIN                  string     `json:"pin"`
	Phase                string     `json:"phase"`
	CurrentQuestionIndex int        `json:"current_question_index"`
	QuestionStartTime    *time.Time `json:"question_start_time,omitempty"`
	QuestionDuration     int        `json:"question_duration"`
	TimeRemaining        int        `json:"time_remaining"`
	IsActive             bool       `json:"is_active"`

	TotalQuestions int `json:"total_questions,omitempty"`

	Question *QuestionView `json:"question,omitempty"`
}

type QuestionView struct {
	// Text is absent from player views until the question is revealed.
	Text    string       `json:"text,omitempty"`
	Answers []AnswerView `json:"answers"`
	Points  int          `json:"points"`
}

type AnswerView struct {
	Index int    `json:"index"`
	Text  string `json:"text,omitempty"`
	// IsCorrect is populated for the host, and for everyone after reveal.
	IsCorrect *bool `json:"is_correct,omitempty"`
}

type PlayerView struct {
	PlayerID string `json:"player_id"`
	Nickname string `json:"nickname"`
	Score    int    `json:"score"`
	Streak   int    `json:"streak"`
	JoinSeq  int    `json:"join_seq"`
}

type LeaderboardView struct {
	PIN     string                 `json:"pin"`
	Entries []LeaderboardEntryView `json:"entries"`
}

type LeaderboardEntryView struct {
	Rank     int    `json:"rank"`
	PlayerID string `json:"player_id"`
	Nickname string `json:"nickname"`
	Score    int    `json:"score"`
}

func hostSessionView(s domain.Session) SessionView {
	return SessionView{
		PIN:                  s.PIN,
		Phase:                string(s.Phase),
		CurrentQuestionIndex: s.CurrentQuestionIndex,
		QuestionStartTime:    s.QuestionStartTime,
		QuestionDuration:     s.QuestionDuration,
		TimeRemaining:        s.TimeRemaining,
		IsActive:             s.IsActive,
	}
}

// stateView projects a session snapshot for one audience. The host always
// sees the full question. While the question is open, players get only the
// answer indexes to pick from; once the phase moves to results or final the
// question is revealed to them as well.
func stateView(s domain.Session, quiz domain.Quiz, asHost bool) SessionView {
	v := hostSessionView(s)
	v.TotalQuestions = len(quiz.Questions)

	idx := s.CurrentQuestionIndex
	if idx < 0 || idx >= len(quiz.Questions) {
		return v
	}
	q := quiz.Questions[idx]

	switch {
	case asHost:
		v.Question = fullQuestionView(q)
	case s.Phase == domain.PhaseQuestion:
		v.Question = buttonQuestionView(q)
	case s.Phase == domain.PhaseResults || s.Phase == domain.PhaseFinal:
		v.Question = fullQuestionView(q)
	}

	return v
}

func fullQuestionView(q domain.Question) *QuestionView {
	qv := &QuestionView{
		Text:    q.Text,
		Answers: make([]AnswerView, 0, len(q.Answers)),
		Points:  q.Points,
	}
	for i, ans := range q.Answers {
		correct := ans.IsCorrect
		qv.Answers = append(qv.Answers, AnswerView{Index: i, Text: ans.Text, IsCorrect: &correct})
	}
	return qv
}

func buttonQuestionView(q domain.Question) *QuestionView {
	qv := &QuestionView{
		Answers: make([]AnswerView, 0, len(q.Answers)),
		Points:  q.Points,
	}
	for i := range q.Answers {
		qv.Answers = append(qv.Answers, AnswerView{Index: i})
	}
	return qv
}

func playerView(p domain.PlayerSession) PlayerView {
	return PlayerView{
		PlayerID: p.PlayerID,
		Nickname: p.Nickname,
		Score:    p.Score,
		Streak:   p.Streak,
		JoinSeq:  p.JoinSeq,
	}
}

func leaderboardView(l domain.Leaderboard) LeaderboardView {
	v := LeaderboardView{
		PIN:     l.PIN,
		Entries: make([]LeaderboardEntryView, 0, len(l.Entries)),
	}
	for i, e := range l.Entries {
		v.Entries = append(v.Entries, LeaderboardEntryView{
			Rank:     i + 1,
			PlayerID: e.PlayerID,
			Nickname: e.Nickname,
			Score:    e.Score,
		})
	}
	return v
}
