package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quizdash/quizdash/internal/domain"
	"github.com/quizdash/quizdash/internal/errors"
	"github.com/quizdash/quizdash/internal/event"
)

const (
	publishInterval = 200 * time.Millisecond

	// Ranking scores are packed into the sorted-set score as
	// score*2^seqBits + (2^seqBits-1 - joinSeq), so that redis orders score
	// ties by arrival without a second index. float64 holds 53 integer bits;
	// with 20 bits for the sequence that leaves plenty for any realistic
	// point total.
	seqBits = 20
	seqMax  = 1<<seqBits - 1
)

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
}

// Service mirrors per-session scores into a redis sorted set and publishes
// throttled leaderboard.updated events. The sorted set is a projection for
// cheap cross-instance reads; reveal deltas always come from the pure
// aggregator over the player records.
type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	s.eb.Subscribe(domain.EventNameScoreUpdated, func(ctx context.Context, e event.Event) error {
		return s.UpdateLeaderboard(ctx, e.(domain.EventScoreUpdated))
	})

	return s
}

type GetLeaderboardRequest struct {
	PIN string
}

// GetLeaderboard returns the ranked players of a session, score descending,
// ties broken by arrival order.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	res, err := s.redis.ZRevRangeWithScores(ctx, s.leaderboardKey(req.PIN), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	if len(res) == 0 {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("leaderboard not found: pin=%s", req.PIN))
	}

	entries := make([]domain.LeaderboardEntry, 0, len(res))
	for _, z := range res {
		var m member
		if err := json.Unmarshal([]byte(z.Member.(string)), &m); err != nil {
			return nil, fmt.Errorf("decode leaderboard member: %w", err)
		}
		entries = append(entries, domain.LeaderboardEntry{
			PlayerID: m.PlayerID,
			Nickname: m.Nickname,
			Score:    unpackScore(z.Score),
		})
	}

	return &domain.Leaderboard{
		PIN:     req.PIN,
		Entries: entries,
	}, nil
}

// UpdateLeaderboard overwrites the player's ranking score in the projection.
func (s *Service) UpdateLeaderboard(ctx context.Context, e domain.EventScoreUpdated) error {
	m, err := json.Marshal(member{PlayerID: e.PlayerID, Nickname: e.Nickname})
	if err != nil {
		return fmt.Errorf("encode leaderboard member: %w", err)
	}

	if err := s.redis.ZAdd(ctx, s.leaderboardKey(e.PIN), redis.Z{
		Score:  packScore(e.TotalScore, e.JoinSeq),
		Member: string(m),
	}).Err(); err != nil {
		return fmt.Errorf("update leaderboard: %w", err)
	}

	return s.schedulePublishLeaderboard(ctx, e)
}

// schedulePublishLeaderboard throttles leaderboard.updated: many scores land
// in a short burst after a question closes, and one event per burst is
// enough for every screen to repaint.
func (s *Service) schedulePublishLeaderboard(ctx context.Context, e domain.EventScoreUpdated) error {
	ok, err := s.redis.SetNX(ctx, s.throttleKey(e.PIN), e.UpdateTime.UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	return s.publishLeaderboard(ctx, e)
}

func (s *Service) publishLeaderboard(ctx context.Context, e domain.EventScoreUpdated) error {
	l, err := s.GetLeaderboard(ctx, GetLeaderboardRequest{PIN: e.PIN})
	if err != nil {
		return fmt.Errorf("get leaderboard failed: pin=%s: %w", e.PIN, err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: *l,
	})

	return s.redis.Set(ctx, s.throttleKey(e.PIN), e.UpdateTime.UnixMilli(), publishInterval).Err()
}

type member struct {
	PlayerID string `json:"player_id"`
	Nickname string `json:"nickname"`
}

func packScore(score, joinSeq int) float64 {
	seq := joinSeq
	if seq > seqMax {
		seq = seqMax
	}
	return float64(score)*float64(1<<seqBits) + float64(seqMax-seq)
}

func unpackScore(packed float64) int {
	return int(int64(packed) >> seqBits)
}

func (s *Service) leaderboardKey(pin string) string {
	return fmt.Sprintf("%s:%s:leaderboard", s.prefix, pin)
}

func (s *Service) throttleKey(pin string) string {
	return fmt.Sprintf("%s:%s:time", s.prefix, pin)
}
