package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/quizbot/internal/api"
	"github.com/victornm/quizbot/internal/authoring"
	"github.com/victornm/quizbot/internal/event"
	"github.com/victornm/quizbot/internal/gateway"
	"github.com/victornm/quizbot/internal/leaderboard"
	"github.com/victornm/quizbot/internal/member"
	"github.com/victornm/quizbot/internal/question"
	"github.com/victornm/quizbot/internal/round"
	"github.com/victornm/quizbot/internal/session"
	"github.com/victornm/quizbot/internal/telemetry"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	Redis struct {
		Leaderboard struct {
			Addrs  []string
			Pass   string
			Prefix string
		}

		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	Postgres struct {
		Quiz struct {
			Addr string
			User string
			Pass string
			Name string
		}
	}

	Quiz struct {
		QuestionTimeout time.Duration
		MaxQuestions    int
	}

	Authoring struct {
		ThemeTimeout        time.Duration
		TitleTimeout        time.Duration
		PropositionsTimeout time.Duration
	}

	Gateway struct {
		BotUserID     string
		CommandPrefix string
	}
}

// DefaultConfig returns the values used for every setting the config file leaves out.
func DefaultConfig() Config {
	var c Config
	c.HTTP.Port = 8080
	c.Redis.Leaderboard.Prefix = "quizbot"
	c.Redis.Pubsub.Prefix = "quizbot"
	c.Quiz.QuestionTimeout = 30 * time.Second
	c.Quiz.MaxQuestions = 50
	c.Authoring.ThemeTimeout = 30 * time.Second
	c.Authoring.TitleTimeout = 60 * time.Second
	c.Authoring.PropositionsTimeout = 180 * time.Second
	c.Gateway.CommandPrefix = "!"
	return c
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			leaderboard redis.UniversalClient
			pubsub      redis.UniversalClient
		}

		postgres struct {
			quiz *pgxpool.Pool
		}
	}

	service struct {
		member      *member.Service
		question    *question.Store
		gateway     *gateway.Gateway
		session     *session.Registry
		round       *round.Service
		authoring   *authoring.Service
		leaderboard *leaderboard.Service
	}

	api  *api.API
	http *http.Server

	listen struct {
		cancel context.CancelFunc
		done   sync.WaitGroup
	}
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()
	telemetry.ObserveQuiz(s.eb, prometheus.DefaultRegisterer)

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
	connect := func(addr, user, pass, name string) (*pgxpool.Pool, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", user, pass, addr, name))
		if err != nil {
			return nil, err
		}

		db, err := pgxpool.NewWithConfig(ctx, cc)
		if err != nil {
			return nil, err
		}

		if err := db.Ping(ctx); err != nil {
			return nil, err
		}

		return db, nil
	}

	pc := s.c.Postgres.Quiz
	s.infra.postgres.quiz, err = connect(pc.Addr, pc.User, pc.Pass, pc.Name)
	if err != nil {
		return fmt.Errorf("postgres: quiz: %w", err)
	}

	return nil
}

func (s *Server) initService() {
	s.service.member = member.NewService(member.Config{
		EventBus: s.eb,
		DB:       s.infra.postgres.quiz,
	})

	s.service.question = question.NewStore(question.Config{
		EventBus: s.eb,
		DB:       s.infra.postgres.quiz,
	})

	s.service.gateway = gateway.New(gateway.Config{
		Redis:     s.infra.redis.pubsub,
		Prefix:    s.c.Redis.Pubsub.Prefix,
		BotUserID: s.c.Gateway.BotUserID,
	})

	s.service.session = session.NewRegistry(session.Config{
		EventBus: s.eb,
		Members:  s.service.member,
		Chat:     s.service.gateway,
		Timeout:  s.c.Quiz.QuestionTimeout,
	})

	s.service.round = round.NewService(round.Config{
		EventBus:     s.eb,
		Questions:    s.service.question,
		Members:      s.service.member,
		Chat:         s.service.gateway,
		Sessions:     s.service.session,
		MaxQuestions: s.c.Quiz.MaxQuestions,
	})

	s.service.authoring = authoring.NewService(authoring.Config{
		Questions:           s.service.question,
		Members:             s.service.member,
		Chat:                s.service.gateway,
		ThemeTimeout:        s.c.Authoring.ThemeTimeout,
		TitleTimeout:        s.c.Authoring.TitleTimeout,
		PropositionsTimeout: s.c.Authoring.PropositionsTimeout,
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus: s.eb,
		Redis:    s.infra.redis.leaderboard,
		Prefix:   s.c.Redis.Leaderboard.Prefix,
	})
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	s.api = api.New(api.Config{
		Router:        e,
		EventBus:      s.eb,
		Rounds:        s.service.round,
		Sessions:      s.service.session,
		Authoring:     s.service.authoring,
		Members:       s.service.member,
		Leaderboard:   s.service.leaderboard,
		Gateway:       s.service.gateway,
		BotUserID:     s.c.Gateway.BotUserID,
		CommandPrefix: s.c.Gateway.CommandPrefix,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	lctx, cancel := context.WithCancel(context.Background())
	s.listen.cancel = cancel
	s.listen.done.Add(1)

	var eg errgroup.Group
	eg.Go(func() error {
		defer s.listen.done.Done()
		slog.InfoContext(ctx, "server: gateway listening")
		return s.service.gateway.Listen(lctx, s.api)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err := eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	if s.listen.cancel != nil {
		s.listen.cancel()
		s.listen.done.Wait()
	}

	// Rounds and dialogues in progress finish with their own timeouts.
	s.service.round.Wait()
	s.service.authoring.Wait()

	s.eb.Stop()

	s.infra.postgres.quiz.Close()
	for _, r := range []redis.UniversalClient{s.infra.redis.leaderboard, s.infra.redis.pubsub} {
		if err := r.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "error", err)
		}
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
