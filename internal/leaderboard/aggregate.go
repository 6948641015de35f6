package leaderboard

import (
	"sort"

	"github.com/quizdash/quizdash/internal/domain"
)

// Movement is the position-change indicator shown during a reveal.
type Movement string

const (
	MovementUp   Movement = "up"
	MovementDown Movement = "down"
	MovementSame Movement = "same"
	MovementNew  Movement = "new"
)

// Entry is one ranked row.
type Entry struct {
	Rank     int    `json:"rank"`
	PlayerID string `json:"player_id"`
	Nickname string `json:"nickname"`
	Score    int    `json:"score"`
	Streak   int    `json:"streak"`
}

// RevealEntry adds the position delta driven by the current question.
type RevealEntry struct {
	Entry
	PreviousRank int      `json:"previous_rank,omitempty"`
	Movement     Movement `json:"movement"`
}

// Compute ranks players by score descending, ties broken by arrival order
// (earliest JoinedAt first, then join sequence). The result is deterministic
// for a given input set regardless of the order snapshots arrive in.
func Compute(players []domain.PlayerSession) []Entry {
	ranked := make([]domain.PlayerSession, len(players))
	copy(ranked, players)
	sortByScore(ranked, func(p domain.PlayerSession) int { return p.Score })

	entries := make([]Entry, 0, len(ranked))
	for i, p := range ranked {
		entries = append(entries, Entry{
			Rank:     i + 1,
			PlayerID: p.PlayerID,
			Nickname: p.Nickname,
			Score:    p.Score,
			Streak:   p.Streak,
		})
	}
	return entries
}

// ComputeReveal ranks players for the post-question reveal, attaching each
// player's rank before the given question's points were applied. A player
// with no computable previous rank (no points and no answers recorded before
// this question) is flagged as new.
func ComputeReveal(players []domain.PlayerSession, questionIndex int) []RevealEntry {
	previous := make([]domain.PlayerSession, len(players))
	copy(previous, players)
	sortByScore(previous, func(p domain.PlayerSession) int {
		return p.Score - p.Answers[questionIndex].Points
	})

	prevRank := make(map[string]int, len(previous))
	for i, p := range previous {
		prevRank[p.PlayerID] = i + 1
	}

	entries := make([]RevealEntry, 0, len(players))
	for _, e := range Compute(players) {
		re := RevealEntry{Entry: e}

		p := find(players, e.PlayerID)
		if !hasHistoryBefore(p, questionIndex) {
			re.Movement = MovementNew
		} else {
			re.PreviousRank = prevRank[e.PlayerID]
			switch {
			case e.Rank < re.PreviousRank:
				re.Movement = MovementUp
			case e.Rank > re.PreviousRank:
				re.Movement = MovementDown
			default:
				re.Movement = MovementSame
			}
		}
		entries = append(entries, re)
	}
	return entries
}

func sortByScore(players []domain.PlayerSession, score func(domain.PlayerSession) int) {
	sort.SliceStable(players, func(i, j int) bool {
		si, sj := score(players[i]), score(players[j])
		if si != sj {
			return si > sj
		}
		if !players[i].JoinedAt.Equal(players[j].JoinedAt) {
			return players[i].JoinedAt.Before(players[j].JoinedAt)
		}
		return players[i].JoinSeq < players[j].JoinSeq
	})
}

// hasHistoryBefore reports whether the player's ledger gives them a
// computable rank prior to the given question.
func hasHistoryBefore(p domain.PlayerSession, questionIndex int) bool {
	if p.Score-p.Answers[questionIndex].Points > 0 {
		return true
	}
	for idx := range p.Answers {
		if idx < questionIndex {
			return true
		}
	}
	return false
}

func find(players []domain.PlayerSession, playerID string) domain.PlayerSession {
	for _, p := range players {
		if p.PlayerID == playerID {
			return p
		}
	}
	return domain.PlayerSession{}
}
