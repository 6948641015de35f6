// Package redis implements store.Store on redis. Each session and each
// (session, player) pair is one hash, so partial updates are per-field
// last-write-wins with no read-modify-write. Change notification rides
// pub/sub: writers publish a bare marker to the document's channel and
// subscribers re-read the full hash, which keeps the contract honest under
// duplicate or reordered deliveries.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quizdash/quizdash/internal/domain"
	"github.com/quizdash/quizdash/internal/errors"
	"github.com/quizdash/quizdash/internal/store"
)

const subscriberBuffer = 16

type Config struct {
	Redis  redis.UniversalClient
	Prefix string
}

type Store struct {
	redis  redis.UniversalClient
	prefix string
}

func New(c Config) *Store {
	return &Store{
		redis:  c.Redis,
		prefix: c.Prefix,
	}
}

func (s *Store) GetSession(ctx context.Context, pin string) (domain.Session, error) {
	vals, err := s.redis.HGetAll(ctx, s.sessionKey(pin)).Result()
	if err != nil {
		return domain.Session{}, errors.Transient(err)
	}
	if len(vals) == 0 {
		return domain.Session{}, errors.New(errors.CodeNotFound,
			errors.WithMessagef("session not found: pin=%s", pin))
	}
	return decodeSession(vals)
}

func (s *Store) PutSession(ctx context.Context, ss domain.Session) error {
	if err := s.redis.HSet(ctx, s.sessionKey(ss.PIN), encodeSession(ss)).Err(); err != nil {
		return errors.Transient(err)
	}
	return s.notify(ctx, s.sessionChannel(ss.PIN))
}

func (s *Store) UpdateSession(ctx context.Context, pin string, f store.Fields) error {
	n, err := s.redis.Exists(ctx, s.sessionKey(pin)).Result()
	if err != nil {
		return errors.Transient(err)
	}
	if n == 0 {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("session not found: pin=%s", pin))
	}

	enc, err := encodeSessionFields(f)
	if err != nil {
		return err
	}
	if err := s.redis.HSet(ctx, s.sessionKey(pin), enc).Err(); err != nil {
		return errors.Transient(err)
	}
	return s.notify(ctx, s.sessionChannel(pin))
}

func (s *Store) GetPlayer(ctx context.Context, pin, playerID string) (domain.PlayerSession, error) {
	vals, err := s.redis.HGetAll(ctx, s.playerKey(pin, playerID)).Result()
	if err != nil {
		return domain.PlayerSession{}, errors.Transient(err)
	}
	if len(vals) == 0 {
		return domain.PlayerSession{}, errors.New(errors.CodeNotFound,
			errors.WithMessagef("player not found: pin=%s player=%s", pin, playerID))
	}
	return decodePlayer(vals)
}

func (s *Store) PutPlayer(ctx context.Context, p domain.PlayerSession) error {
	enc, err := encodePlayer(p)
	if err != nil {
		return err
	}

	pipe := s.redis.TxPipeline()
	pipe.HSet(ctx, s.playerKey(p.PIN, p.PlayerID), enc)
	pipe.SAdd(ctx, s.playersKey(p.PIN), p.PlayerID)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Transient(err)
	}
	return s.notify(ctx, s.playersChannel(p.PIN))
}

func (s *Store) UpdatePlayer(ctx context.Context, pin, playerID string, f store.Fields) error {
	n, err := s.redis.Exists(ctx, s.playerKey(pin, playerID)).Result()
	if err != nil {
		return errors.Transient(err)
	}
	if n == 0 {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("player not found: pin=%s player=%s", pin, playerID))
	}

	enc, err := encodePlayerFields(f)
	if err != nil {
		return err
	}
	if err := s.redis.HSet(ctx, s.playerKey(pin, playerID), enc).Err(); err != nil {
		return errors.Transient(err)
	}
	return s.notify(ctx, s.playersChannel(pin))
}

func (s *Store) ListPlayers(ctx context.Context, pin string) ([]domain.PlayerSession, error) {
	ids, err := s.redis.SMembers(ctx, s.playersKey(pin)).Result()
	if err != nil {
		return nil, errors.Transient(err)
	}

	players := make([]domain.PlayerSession, 0, len(ids))
	for _, id := range ids {
		p, err := s.GetPlayer(ctx, pin, id)
		if errors.Is(err, errors.CodeNotFound) {
			// Index entry without its hash: a join that half-landed. Skip it;
			// the next write converges the set.
			continue
		}
		if err != nil {
			return nil, err
		}
		players = append(players, p)
	}

	sortPlayers(players)
	return players, nil
}

func (s *Store) SubscribeSession(ctx context.Context, pin string) (<-chan domain.Session, store.CancelFunc, error) {
	return subscribe(ctx, s.redis, s.sessionChannel(pin), func(ctx context.Context) (domain.Session, error) {
		return s.GetSession(ctx, pin)
	})
}

func (s *Store) SubscribePlayers(ctx context.Context, pin string) (<-chan []domain.PlayerSession, store.CancelFunc, error) {
	return subscribe(ctx, s.redis, s.playersChannel(pin), func(ctx context.Context) ([]domain.PlayerSession, error) {
		return s.ListPlayers(ctx, pin)
	})
}

// subscribe re-reads the document on every notification and forwards the
// fresh snapshot, dropping the oldest buffered one when the consumer lags.
func subscribe[T any](ctx context.Context, rc redis.UniversalClient, channel string, read func(context.Context) (T, error)) (<-chan T, store.CancelFunc, error) {
	sub := rc.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, errors.Transient(err)
	}

	out := make(chan T, subscriberBuffer)
	done := make(chan struct{})

	forward := func(snapshot T) {
		select {
		case out <- snapshot:
		default:
			select {
			case <-out:
			default:
			}
			out <- snapshot
		}
	}

	go func() {
		defer close(out)

		// Initial snapshot so late subscribers converge immediately.
		if snapshot, err := read(ctx); err == nil {
			forward(snapshot)
		}

		msgs := sub.Channel()
		for {
			select {
			case <-done:
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				snapshot, err := read(ctx)
				if err != nil {
					// Stale or dropped notification; the next one re-reads.
					slog.DebugContext(ctx, "store: re-read after notify failed",
						"channel", channel, "error", err)
					continue
				}
				forward(snapshot)
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = sub.Close()
		})
	}
	return out, cancel, nil
}

func (s *Store) notify(ctx context.Context, channel string) error {
	// Payload is a bare marker: subscribers always re-read the document.
	if err := s.redis.Publish(ctx, channel, "1").Err(); err != nil {
		return errors.Transient(err)
	}
	return nil
}

func (s *Store) sessionKey(pin string) string {
	return fmt.Sprintf("%s:session:%s", s.prefix, pin)
}

func (s *Store) playerKey(pin, playerID string) string {
	return fmt.Sprintf("%s:player:%s:%s", s.prefix, pin, playerID)
}

func (s *Store) playersKey(pin string) string {
	return fmt.Sprintf("%s:players:%s", s.prefix, pin)
}

func (s *Store) sessionChannel(pin string) string {
	return fmt.Sprintf("%s:notify:session:%s", s.prefix, pin)
}

func (s *Store) playersChannel(pin string) string {
	return fmt.Sprintf("%s:notify:players:%s", s.prefix, pin)
}

const (
	hashPIN       = "pin"
	hashQuizID    = "quiz_id"
	hashHostID    = "host_id"
	hashCreatedAt = "created_at"
	hashPlayerID  = "player_id"
	hashNickname  = "nickname"
	hashJoinedAt  = "joined_at"
	hashJoinSeq   = "join_seq"
)

func encodeSession(ss domain.Session) map[string]any {
	m := map[string]any{
		hashPIN:                      ss.PIN,
		hashQuizID:                   ss.QuizID,
		hashHostID:                   ss.HostID,
		store.FieldPhase:             string(ss.Phase),
		store.FieldQuestionIndex:     strconv.Itoa(ss.CurrentQuestionIndex),
		store.FieldQuestionDuration:  strconv.Itoa(ss.QuestionDuration),
		store.FieldTimeRemaining:     strconv.Itoa(ss.TimeRemaining),
		store.FieldIsActive:          encodeBool(ss.IsActive),
		store.FieldQuestionStartTime: encodeTimePtr(ss.QuestionStartTime),
		hashCreatedAt:                strconv.FormatInt(ss.CreatedAt.UnixMilli(), 10),
	}
	return m
}

func encodeSessionFields(f store.Fields) (map[string]any, error) {
	m := make(map[string]any, len(f))
	for k, v := range f {
		switch k {
		case store.FieldPhase:
			p, ok := v.(domain.Phase)
			if !ok || !p.Valid() {
				return nil, badField(k, v)
			}
			m[k] = string(p)
		case store.FieldQuestionIndex, store.FieldQuestionDuration, store.FieldTimeRemaining:
			n, ok := v.(int)
			if !ok {
				return nil, badField(k, v)
			}
			m[k] = strconv.Itoa(n)
		case store.FieldIsActive:
			b, ok := v.(bool)
			if !ok {
				return nil, badField(k, v)
			}
			m[k] = encodeBool(b)
		case store.FieldQuestionStartTime:
			t, ok := v.(*time.Time)
			if !ok {
				return nil, badField(k, v)
			}
			m[k] = encodeTimePtr(t)
		default:
			return nil, badField(k, v)
		}
	}
	return m, nil
}

func decodeSession(vals map[string]string) (domain.Session, error) {
	ss := domain.Session{
		PIN:    vals[hashPIN],
		QuizID: vals[hashQuizID],
		HostID: vals[hashHostID],
		Phase:  domain.Phase(vals[store.FieldPhase]),
	}
	if !ss.Phase.Valid() {
		return domain.Session{}, errors.New(errors.CodeInternal,
			errors.WithMessagef("corrupt session document: phase=%q", vals[store.FieldPhase]))
	}

	var err error
	if ss.CurrentQuestionIndex, err = strconv.Atoi(vals[store.FieldQuestionIndex]); err != nil {
		return domain.Session{}, errors.Internal(err)
	}
	if ss.QuestionDuration, err = strconv.Atoi(vals[store.FieldQuestionDuration]); err != nil {
		return domain.Session{}, errors.Internal(err)
	}
	if ss.TimeRemaining, err = strconv.Atoi(vals[store.FieldTimeRemaining]); err != nil {
		return domain.Session{}, errors.Internal(err)
	}
	ss.IsActive = vals[store.FieldIsActive] == "1"
	if ss.QuestionStartTime, err = decodeTimePtr(vals[store.FieldQuestionStartTime]); err != nil {
		return domain.Session{}, errors.Internal(err)
	}
	if ss.CreatedAt, err = decodeTime(vals[hashCreatedAt]); err != nil {
		return domain.Session{}, errors.Internal(err)
	}
	return ss, nil
}

func encodePlayer(p domain.PlayerSession) (map[string]any, error) {
	answers, err := json.Marshal(p.Answers)
	if err != nil {
		return nil, errors.Internal(err)
	}
	return map[string]any{
		hashPIN:            p.PIN,
		hashPlayerID:       p.PlayerID,
		hashNickname:       p.Nickname,
		store.FieldScore:   strconv.Itoa(p.Score),
		store.FieldStreak:  strconv.Itoa(p.Streak),
		store.FieldAnswers: string(answers),
		hashJoinedAt:       strconv.FormatInt(p.JoinedAt.UnixMilli(), 10),
		hashJoinSeq:        strconv.Itoa(p.JoinSeq),
	}, nil
}

func encodePlayerFields(f store.Fields) (map[string]any, error) {
	m := make(map[string]any, len(f))
	for k, v := range f {
		switch k {
		case store.FieldScore, store.FieldStreak:
			n, ok := v.(int)
			if !ok {
				return nil, badField(k, v)
			}
			m[k] = strconv.Itoa(n)
		case store.FieldAnswers:
			answers, ok := v.(map[int]domain.AnswerRecord)
			if !ok {
				return nil, badField(k, v)
			}
			b, err := json.Marshal(answers)
			if err != nil {
				return nil, errors.Internal(err)
			}
			m[k] = string(b)
		default:
			return nil, badField(k, v)
		}
	}
	return m, nil
}

func decodePlayer(vals map[string]string) (domain.PlayerSession, error) {
	p := domain.PlayerSession{
		PIN:      vals[hashPIN],
		PlayerID: vals[hashPlayerID],
		Nickname: vals[hashNickname],
	}

	var err error
	if p.Score, err = strconv.Atoi(vals[store.FieldScore]); err != nil {
		return domain.PlayerSession{}, errors.Internal(err)
	}
	if p.Streak, err = strconv.Atoi(vals[store.FieldStreak]); err != nil {
		return domain.PlayerSession{}, errors.Internal(err)
	}
	if raw := vals[store.FieldAnswers]; raw != "" {
		if err = json.Unmarshal([]byte(raw), &p.Answers); err != nil {
			return domain.PlayerSession{}, errors.Internal(err)
		}
	}
	if p.JoinedAt, err = decodeTime(vals[hashJoinedAt]); err != nil {
		return domain.PlayerSession{}, errors.Internal(err)
	}
	if p.JoinSeq, err = strconv.Atoi(vals[hashJoinSeq]); err != nil {
		return domain.PlayerSession{}, errors.Internal(err)
	}
	return p, nil
}

func sortPlayers(players []domain.PlayerSession) {
	sort.Slice(players, func(i, j int) bool {
		return players[i].JoinSeq < players[j].JoinSeq
	})
}

func badField(k string, v any) error {
	return errors.New(errors.CodeInvalidArgument,
		errors.WithMessagef("unsupported field update: %s=%v", k, v))
}

func encodeBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func encodeTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func decodeTimePtr(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := decodeTime(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func decodeTime(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
