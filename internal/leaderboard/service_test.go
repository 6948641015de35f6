package leaderboard_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/quizdash/quizdash/internal/domain"
	"github.com/quizdash/quizdash/internal/event"
	"github.com/quizdash/quizdash/internal/leaderboard"
)

func TestService_UpdateLeaderboard(t *testing.T) {
	s := makeService(t)

	err := s.UpdateLeaderboard(context.Background(), domain.EventScoreUpdated{
		PIN:        "123456",
		PlayerID:   "p1",
		Nickname:   "ada",
		TotalScore: 750,
		JoinSeq:    1,
		UpdateTime: time.Now(),
	})
	require.NoError(t, err)

	resp, err := s.GetLeaderboard(context.Background(), leaderboard.GetLeaderboardRequest{
		PIN: "123456",
	})
	require.NoError(t, err)

	want := &domain.Leaderboard{
		PIN: "123456",
		Entries: []domain.LeaderboardEntry{
			{PlayerID: "p1", Nickname: "ada", Score: 750},
		},
	}
	require.Equal(t, want, resp)
}

func TestService_TiesRankByArrival(t *testing.T) {
	s := makeService(t)
	ctx := context.Background()

	// Same score, later arrival first into redis; arrival order must still win.
	for _, e := range []domain.EventScoreUpdated{
		{PIN: "123456", PlayerID: "p2", Nickname: "bob", TotalScore: 500, JoinSeq: 2, UpdateTime: time.Now()},
		{PIN: "123456", PlayerID: "p1", Nickname: "ada", TotalScore: 500, JoinSeq: 1, UpdateTime: time.Now()},
		{PIN: "123456", PlayerID: "p3", Nickname: "cleo", TotalScore: 900, JoinSeq: 3, UpdateTime: time.Now()},
	} {
		require.NoError(t, s.UpdateLeaderboard(ctx, e))
	}

	resp, err := s.GetLeaderboard(ctx, leaderboard.GetLeaderboardRequest{PIN: "123456"})
	require.NoError(t, err)

	require.Equal(t, []domain.LeaderboardEntry{
		{PlayerID: "p3", Nickname: "cleo", Score: 900},
		{PlayerID: "p1", Nickname: "ada", Score: 500},
		{PlayerID: "p2", Nickname: "bob", Score: 500},
	}, resp.Entries)
}

func TestService_PublishLeaderboardUpdated(t *testing.T) {
	type (
		inputs struct {
			receivedEvents []domain.EventScoreUpdated
		}

		outputs struct {
			publishedEvents []domain.EventLeaderboardUpdated
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"should publish leaderboard.updated after receiving score.updated": {
			arrange: func() inputs {
				return inputs{
					receivedEvents: []domain.EventScoreUpdated{
						{
							PIN:        "123456",
							PlayerID:   "p1",
							Nickname:   "ada",
							TotalScore: 750,
							JoinSeq:    1,
							UpdateTime: time.Now(),
						},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 1, "should receive 1 leaderboard updated event")
				require.Equal(t, domain.Leaderboard{
					PIN: "123456",
					Entries: []domain.LeaderboardEntry{
						{PlayerID: "p1", Nickname: "ada", Score: 750},
					},
				}, out.publishedEvents[0].Leaderboard)
			},
		},

		"should publish 2 events after score updates in 2 different sessions": {
			arrange: func() inputs {
				return inputs{
					receivedEvents: []domain.EventScoreUpdated{
						{PIN: "111111", PlayerID: "p1", Nickname: "ada", TotalScore: 500, JoinSeq: 1, UpdateTime: time.Now()},
						{PIN: "222222", PlayerID: "p2", Nickname: "bob", TotalScore: 600, JoinSeq: 1, UpdateTime: time.Now()},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 2, "should receive 2 leaderboard updated events")
			},
		},

		"should publish 1 event for a burst of score updates within the publish interval": {
			arrange: func() inputs {
				return inputs{
					receivedEvents: []domain.EventScoreUpdated{
						{PIN: "123456", PlayerID: "p1", Nickname: "ada", TotalScore: 500, JoinSeq: 1, UpdateTime: time.Now()},
						{PIN: "123456", PlayerID: "p2", Nickname: "bob", TotalScore: 600, JoinSeq: 2, UpdateTime: time.Now()},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 1, "should receive 1 leaderboard updated event")
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in, out := tt.arrange(), outputs{}

			eb := event.NewBus()

			var mu sync.Mutex
			eb.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
				mu.Lock()
				out.publishedEvents = append(out.publishedEvents, e.(domain.EventLeaderboardUpdated))
				mu.Unlock()
				return nil
			})

			s := makeService(t,
				withEventBus(eb),
			)

			for _, e := range in.receivedEvents {
				err := s.UpdateLeaderboard(context.Background(), e)
				require.NoError(t, err)
			}

			eb.Stop()

			tt.assert(t, out)
		})
	}
}

func makeService(t *testing.T, opts ...options) *leaderboard.Service {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")

	c := leaderboard.Config{
		EventBus: event.NewBus(),
		Redis:    rc,
	}

	for _, opt := range opts {
		opt(&c)
	}

	return leaderboard.NewService(c)
}

type options func(c *leaderboard.Config)

func withEventBus(eb *event.Bus) options {
	return func(c *leaderboard.Config) {
		c.EventBus = eb
	}
}
