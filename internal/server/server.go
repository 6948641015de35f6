// Package server wires the process together: infrastructure clients,
// services, and the HTTP surface.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/quizdash/quizdash/internal/api"
	"github.com/quizdash/quizdash/internal/coordinator"
	"github.com/quizdash/quizdash/internal/event"
	"github.com/quizdash/quizdash/internal/leaderboard"
	"github.com/quizdash/quizdash/internal/quiz"
	"github.com/quizdash/quizdash/internal/session"
	"github.com/quizdash/quizdash/internal/store"
	redisstore "github.com/quizdash/quizdash/internal/store/redis"
	"github.com/quizdash/quizdash/internal/telemetry"
)

type RedisConfig struct {
	Addrs  []string
	Pass   string
	Prefix string
}

type Config struct {
	HTTP struct {
		Port int32
	}

	Redis struct {
		// Store backs the session/player documents and their change
		// notifications.
		Store       RedisConfig
		Leaderboard RedisConfig
		Pubsub      RedisConfig
	}

	Postgres struct {
		Quiz struct {
			Addr string
			User string
			Pass string
			Name string
		}
	}
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			store       redis.UniversalClient
			leaderboard redis.UniversalClient
			pubsub      redis.UniversalClient
		}

		postgres struct {
			quiz *pgxpool.Pool
		}
	}

	store   store.Store
	quizzes quiz.Provider

	service struct {
		session      *session.Service
		leaderboard  *leaderboard.Service
		coordinators *coordinator.Manager
	}

	http *http.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(addrs []string, pass string) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.store, err = connect(s.c.Redis.Store.Addrs, s.c.Redis.Store.Pass)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}

	s.infra.redis.leaderboard, err = connect(s.c.Redis.Leaderboard.Addrs, s.c.Redis.Leaderboard.Pass)
	if err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}

	s.infra.redis.pubsub, err = connect(s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initPostgres() (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	q := s.c.Postgres.Quiz
	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", q.User, q.Pass, q.Addr, q.Name))
	if err != nil {
		return fmt.Errorf("quiz: %w", err)
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return fmt.Errorf("quiz: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("quiz: %w", err)
	}

	s.infra.postgres.quiz = db
	return nil
}

func (s *Server) initService() {
	s.store = redisstore.New(redisstore.Config{
		Redis:  s.infra.redis.store,
		Prefix: s.c.Redis.Store.Prefix,
	})

	s.quizzes = quiz.NewPostgresProvider(quiz.PostgresConfig{
		DB: s.infra.postgres.quiz,
	})

	s.service.session = session.NewService(session.Config{
		Store:   s.store,
		Quizzes: s.quizzes,
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus: s.eb,
		Redis:    s.infra.redis.leaderboard,
		Prefix:   s.c.Redis.Leaderboard.Prefix,
	})

	s.service.coordinators = coordinator.NewManager(coordinator.ManagerConfig{
		Store:    s.store,
		Quizzes:  s.quizzes,
		EventBus: s.eb,
	})
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	api.New(api.Config{
		Router:       e,
		EventBus:     s.eb,
		Session:      s.service.session,
		Coordinators: s.service.coordinators,
		Leaderboard:  s.service.leaderboard,
		Store:        s.store,
		Redis:        s.infra.redis.pubsub,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.service.coordinators.Shutdown()
	s.eb.Stop()

	s.infra.postgres.quiz.Close()
	for _, r := range []redis.UniversalClient{
		s.infra.redis.store,
		s.infra.redis.leaderboard,
		s.infra.redis.pubsub,
	} {
		if err := r.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "error", err)
		}
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
