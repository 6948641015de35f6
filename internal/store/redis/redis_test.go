package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/quizdash/quizdash/internal/domain"
	"github.com/quizdash/quizdash/internal/errors"
	"github.com/quizdash/quizdash/internal/store"
	redisstore "github.com/quizdash/quizdash/internal/store/redis"
)

func makeStore(t *testing.T) *redisstore.Store {
	t.Helper()

	rs := miniredis.RunT(t)
	rc := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	t.Cleanup(func() { _ = rc.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")

	return redisstore.New(redisstore.Config{
		Redis:  rc,
		Prefix: "quizdash-test",
	})
}

func TestStore_SessionRoundTrip(t *testing.T) {
	s := makeStore(t)
	ctx := context.Background()

	start := time.Now().UTC().Truncate(time.Millisecond)
	want := domain.Session{
		PIN:                  "424242",
		QuizID:               "quiz-1",
		HostID:               "host-1",
		Phase:                domain.PhaseQuestion,
		CurrentQuestionIndex: 2,
		QuestionStartTime:    &start,
		QuestionDuration:     30,
		TimeRemaining:        21,
		IsActive:             true,
		CreatedAt:            time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, s.PutSession(ctx, want))

	got, err := s.GetSession(ctx, "424242")
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestStore_SessionNullStartTime(t *testing.T) {
	s := makeStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutSession(ctx, domain.Session{
		PIN:                  "424242",
		Phase:                domain.PhaseWaiting,
		CurrentQuestionIndex: -1,
		CreatedAt:            time.Now().UTC(),
	}))

	got, err := s.GetSession(ctx, "424242")
	require.NoError(t, err)
	require.Nil(t, got.QuestionStartTime)
	require.Equal(t, -1, got.CurrentQuestionIndex)
}

func TestStore_UpdateSessionPartial(t *testing.T) {
	s := makeStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutSession(ctx, domain.Session{
		PIN:                  "424242",
		HostID:               "host-1",
		Phase:                domain.PhaseQuestion,
		CurrentQuestionIndex: 0,
		IsActive:             true,
		CreatedAt:            time.Now().UTC(),
	}))

	err := s.UpdateSession(ctx, "424242", store.Fields{
		store.FieldPhase:             domain.PhaseResults,
		store.FieldIsActive:          false,
		store.FieldTimeRemaining:     0,
		store.FieldQuestionStartTime: (*time.Time)(nil),
	})
	require.NoError(t, err)

	got, err := s.GetSession(ctx, "424242")
	require.NoError(t, err)
	require.Equal(t, domain.PhaseResults, got.Phase)
	require.False(t, got.IsActive)
	require.Nil(t, got.QuestionStartTime)
	require.Equal(t, "host-1", got.HostID, "untouched fields survive a partial update")
}

func TestStore_UpdateMissingSession(t *testing.T) {
	s := makeStore(t)

	err := s.UpdateSession(context.Background(), "000000", store.Fields{
		store.FieldPhase: domain.PhaseResults,
	})
	require.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestStore_PlayerRoundTrip(t *testing.T) {
	s := makeStore(t)
	ctx := context.Background()

	want := domain.PlayerSession{
		PIN:      "424242",
		PlayerID: "p1",
		Nickname: "ada",
		Score:    750,
		Streak:   1,
		Answers: map[int]domain.AnswerRecord{
			0: {AnswerIndex: 1, IsCorrect: true, Points: 750, TimeRemaining: 15, SubmittedAt: time.Now().UTC().Truncate(time.Millisecond)},
		},
		JoinedAt: time.Now().UTC().Truncate(time.Millisecond),
		JoinSeq:  1,
	}
	require.NoError(t, s.PutPlayer(ctx, want))

	got, err := s.GetPlayer(ctx, "424242", "p1")
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestStore_ListPlayersJoinOrder(t *testing.T) {
	s := makeStore(t)
	ctx := context.Background()

	// Insert out of join order; listing must come back in arrival order.
	for _, p := range []domain.PlayerSession{
		{PIN: "424242", PlayerID: "p3", Nickname: "cleo", JoinSeq: 3, JoinedAt: time.Now().UTC()},
		{PIN: "424242", PlayerID: "p1", Nickname: "ada", JoinSeq: 1, JoinedAt: time.Now().UTC()},
		{PIN: "424242", PlayerID: "p2", Nickname: "bob", JoinSeq: 2, JoinedAt: time.Now().UTC()},
	} {
		require.NoError(t, s.PutPlayer(ctx, p))
	}

	players, err := s.ListPlayers(ctx, "424242")
	require.NoError(t, err)
	require.Len(t, players, 3)
	require.Equal(t, "ada", players[0].Nickname)
	require.Equal(t, "bob", players[1].Nickname)
	require.Equal(t, "cleo", players[2].Nickname)
}

func TestStore_SubscribeSession(t *testing.T) {
	s := makeStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutSession(ctx, domain.Session{
		PIN:       "424242",
		Phase:     domain.PhaseWaiting,
		CreatedAt: time.Now().UTC(),
	}))

	ch, cancel, err := s.SubscribeSession(ctx, "424242")
	require.NoError(t, err)
	defer cancel()

	initial := recvSession(t, ch)
	require.Equal(t, domain.PhaseWaiting, initial.Phase)

	require.NoError(t, s.UpdateSession(ctx, "424242", store.Fields{
		store.FieldPhase: domain.PhaseResults,
	}))

	// At-least-once delivery: keep reading until the new phase lands.
	require.Eventually(t, func() bool {
		select {
		case snap := <-ch:
			return snap.Phase == domain.PhaseResults
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	cancel() // cancel must be idempotent
}

func TestStore_SubscribePlayers(t *testing.T) {
	s := makeStore(t)
	ctx := context.Background()

	ch, cancel, err := s.SubscribePlayers(ctx, "424242")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, s.PutPlayer(ctx, domain.PlayerSession{
		PIN:      "424242",
		PlayerID: "p1",
		Nickname: "ada",
		JoinSeq:  1,
		JoinedAt: time.Now().UTC(),
	}))

	require.Eventually(t, func() bool {
		select {
		case players := <-ch:
			return len(players) == 1 && players[0].Nickname == "ada"
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func recvSession(t *testing.T, ch <-chan domain.Session) domain.Session {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session snapshot")
		return domain.Session{}
	}
}
