package domain

import "time"

const (
	EventNamePhaseChanged       = "session.phase_changed"
	EventNameScoreUpdated       = "score.updated"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

type EventPhaseChanged struct {
	PIN  string
	From Phase
	To   Phase
	// Forced is true for host-initiated early termination.
	Forced bool
}

func (EventPhaseChanged) Name() string { return EventNamePhaseChanged }

type EventScoreUpdated struct {
	PIN        string
	PlayerID   string
	Nickname   string
	TotalScore int
	// JoinSeq carries the player's arrival order so projections can keep the
	// score-tie ordering deterministic.
	JoinSeq    int
	UpdateTime time.Time
}

func (EventScoreUpdated) Name() string { return EventNameScoreUpdated }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
