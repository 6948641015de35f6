package leaderboard_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quizdash/quizdash/internal/domain"
	"github.com/quizdash/quizdash/internal/leaderboard"
)

func TestCompute_OrdersByScoreThenArrival(t *testing.T) {
	base := time.Date(2025, 3, 1, 19, 0, 0, 0, time.UTC)

	players := []domain.PlayerSession{
		{PlayerID: "p3", Nickname: "cleo", Score: 500, JoinedAt: base.Add(3 * time.Second), JoinSeq: 3},
		{PlayerID: "p1", Nickname: "ada", Score: 500, JoinedAt: base.Add(1 * time.Second), JoinSeq: 1},
		{PlayerID: "p2", Nickname: "bob", Score: 900, JoinedAt: base.Add(2 * time.Second), JoinSeq: 2},
	}

	got := leaderboard.Compute(players)

	require.Equal(t, []string{"bob", "ada", "cleo"}, nicknames(got))
	require.Equal(t, []int{1, 2, 3}, ranks(got))
}

func TestCompute_DeterministicAcrossInputOrder(t *testing.T) {
	base := time.Date(2025, 3, 1, 19, 0, 0, 0, time.UTC)

	players := []domain.PlayerSession{
		{PlayerID: "p1", Nickname: "ada", Score: 750, JoinedAt: base, JoinSeq: 1},
		{PlayerID: "p2", Nickname: "bob", Score: 750, JoinedAt: base, JoinSeq: 2},
		{PlayerID: "p3", Nickname: "cleo", Score: 750, JoinedAt: base, JoinSeq: 3},
		{PlayerID: "p4", Nickname: "dan", Score: 0, JoinedAt: base, JoinSeq: 4},
	}

	want := leaderboard.Compute(players)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		shuffled := make([]domain.PlayerSession, len(players))
		copy(shuffled, players)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})

		require.Equal(t, want, leaderboard.Compute(shuffled),
			"identical record sets must rank identically regardless of snapshot delivery order")
	}
}

func TestCompute_TotalOrder(t *testing.T) {
	base := time.Date(2025, 3, 1, 19, 0, 0, 0, time.UTC)

	players := []domain.PlayerSession{
		{PlayerID: "p1", Score: 300, JoinedAt: base.Add(time.Second), JoinSeq: 1},
		{PlayerID: "p2", Score: 100, JoinedAt: base.Add(2 * time.Second), JoinSeq: 2},
		{PlayerID: "p3", Score: 300, JoinedAt: base.Add(3 * time.Second), JoinSeq: 3},
		{PlayerID: "p4", Score: 50, JoinedAt: base.Add(4 * time.Second), JoinSeq: 4},
	}

	got := leaderboard.Compute(players)
	for i := 1; i < len(got); i++ {
		prev, cur := got[i-1], got[i]
		require.GreaterOrEqual(t, prev.Score, cur.Score)
		require.Equal(t, i+1, cur.Rank)
	}
}

func TestComputeReveal_Movements(t *testing.T) {
	base := time.Date(2025, 3, 1, 19, 0, 0, 0, time.UTC)

	players := []domain.PlayerSession{
		{
			PlayerID: "p1", Nickname: "ada", Score: 500, JoinedAt: base, JoinSeq: 1,
			Answers: map[int]domain.AnswerRecord{
				0: {AnswerIndex: 0, IsCorrect: true, Points: 500},
				1: {AnswerIndex: 2, IsCorrect: false, Points: 0},
			},
		},
		{
			PlayerID: "p2", Nickname: "bob", Score: 1100, JoinedAt: base.Add(time.Second), JoinSeq: 2,
			Answers: map[int]domain.AnswerRecord{
				0: {AnswerIndex: 0, IsCorrect: true, Points: 400},
				1: {AnswerIndex: 1, IsCorrect: true, Points: 700},
			},
		},
		{
			// Joined during the waiting phase before question 1: no history.
			PlayerID: "p3", Nickname: "cleo", Score: 600, JoinedAt: base.Add(time.Minute), JoinSeq: 3,
			Answers: map[int]domain.AnswerRecord{
				1: {AnswerIndex: 1, IsCorrect: true, Points: 600},
			},
		},
	}

	got := leaderboard.ComputeReveal(players, 1)

	require.Equal(t, []string{"bob", "cleo", "ada"}, revealNicknames(got))

	// Before question 1: ada 500, bob 400, cleo unranked.
	byNick := map[string]leaderboard.RevealEntry{}
	for _, e := range got {
		byNick[e.Nickname] = e
	}

	require.Equal(t, leaderboard.MovementUp, byNick["bob"].Movement)
	require.Equal(t, 2, byNick["bob"].PreviousRank)
	require.Equal(t, leaderboard.MovementDown, byNick["ada"].Movement)
	require.Equal(t, 1, byNick["ada"].PreviousRank)
	require.Equal(t, leaderboard.MovementNew, byNick["cleo"].Movement)
	require.Zero(t, byNick["cleo"].PreviousRank)
}

func TestComputeReveal_SameWhenNothingChanges(t *testing.T) {
	base := time.Date(2025, 3, 1, 19, 0, 0, 0, time.UTC)

	players := []domain.PlayerSession{
		{
			PlayerID: "p1", Nickname: "ada", Score: 500, JoinedAt: base, JoinSeq: 1,
			Answers: map[int]domain.AnswerRecord{
				0: {IsCorrect: true, Points: 500},
				1: {IsCorrect: false, Points: 0},
			},
		},
		{
			PlayerID: "p2", Nickname: "bob", Score: 300, JoinedAt: base.Add(time.Second), JoinSeq: 2,
			Answers: map[int]domain.AnswerRecord{
				0: {IsCorrect: true, Points: 300},
				1: {IsCorrect: false, Points: 0},
			},
		},
	}

	for _, e := range leaderboard.ComputeReveal(players, 1) {
		require.Equal(t, leaderboard.MovementSame, e.Movement)
	}
}

func nicknames(entries []leaderboard.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Nickname)
	}
	return out
}

func ranks(entries []leaderboard.Entry) []int {
	out := make([]int, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Rank)
	}
	return out
}

func revealNicknames(entries []leaderboard.RevealEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Nickname)
	}
	return out
}
