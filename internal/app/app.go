// Package app wires configuration into the services shared by every binary.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/unclebandit/leadhunter-backend/internal/clock"
	"github.com/unclebandit/leadhunter-backend/internal/config"
	"github.com/unclebandit/leadhunter-backend/internal/controller"
	"github.com/unclebandit/leadhunter-backend/internal/db"
	"github.com/unclebandit/leadhunter-backend/internal/handler"
	"github.com/unclebandit/leadhunter-backend/internal/llm"
	"github.com/unclebandit/leadhunter-backend/internal/lock"
	"github.com/unclebandit/leadhunter-backend/internal/mailer"
	"github.com/unclebandit/leadhunter-backend/internal/outreach"
	"github.com/unclebandit/leadhunter-backend/internal/queue"
	"github.com/unclebandit/leadhunter-backend/internal/repository"
	"github.com/unclebandit/leadhunter-backend/internal/repository/memory"
	"github.com/unclebandit/leadhunter-backend/internal/scoring"
	"github.com/unclebandit/leadhunter-backend/internal/search"
	"github.com/unclebandit/leadhunter-backend/internal/service"
)

type App struct {
	Config *config.Config
	Log    *zap.Logger
	Clock  clock.Clock
	Store  *repository.Store
	Queue  queue.Queue
	Locker lock.Locker

	Ledger    *service.RunLedger
	Hunt      *service.HuntService
	Send      *service.SendService
	Followup  *service.FollowupService
	Scheduler *service.Scheduler
	Campaigns *service.CampaignService
	Events    *service.DeliveryEventService

	closers []func() error
}

// Build connects every backend named by cfg. Optional providers that are not
// configured are left nil and surface as configuration errors from the stage
// that needs them.
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger) (_ *App, err error) {
	a := &App{Config: cfg, Log: log}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	a.Clock = clock.New(loc)

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}
	if err := a.openQueue(); err != nil {
		return nil, err
	}
	if err := a.openLocker(ctx); err != nil {
		return nil, err
	}

	completer, err := a.openLLM(ctx)
	if err != nil {
		return nil, err
	}
	mail, err := a.openMailer(ctx)
	if err != nil {
		return nil, err
	}

	a.Ledger = service.NewRunLedger(a.Store.Runs, a.Clock, log)
	disp := &service.Dispatcher{
		Store: a.Store,
		Mail:  mail,
		Clock: a.Clock,
		Log:   log,
		From: service.Identity{
			FromName:       cfg.FromName,
			FromEmail:      cfg.FromEmail,
			Title:          cfg.SignatureTitle,
			BookingURL:     cfg.BookingURL,
			UnsubscribeURL: cfg.UnsubscribeURL,
		},
		Policy: service.DispatchPolicy{
			PlatformDailyLimit: cfg.PlatformDailyLimit,
			Cooldown:           cfg.SendCooldown,
		},
	}

	a.Hunt = &service.HuntService{
		Store:  a.Store,
		Scorer: scoring.NewLLMScorer(completer, log),
		Ledger: a.Ledger,
		Clock:  a.Clock,
		Log:    log,
	}
	if cfg.ApolloAPIKey != "" {
		a.Hunt.Search = search.NewApollo(cfg.ApolloAPIKey, cfg.ApolloAPIURL, log)
	}
	var writer outreach.Writer
	if completer != nil {
		writer = outreach.NewLLMWriter(completer)
		a.Hunt.Writer = writer
	}

	a.Send = &service.SendService{Store: a.Store, Dispatcher: disp, Ledger: a.Ledger, Clock: a.Clock, Log: log}
	a.Followup = &service.FollowupService{Store: a.Store, Writer: writer, Dispatcher: disp, Ledger: a.Ledger, Clock: a.Clock, Log: log}
	a.Scheduler = &service.Scheduler{
		Store:    a.Store,
		Hunt:     a.Hunt,
		Send:     a.Send,
		Followup: a.Followup,
		Ledger:   a.Ledger,
		Locker:   a.Locker,
		Clock:    a.Clock,
		Log:      log,
	}
	a.Campaigns = &service.CampaignService{Store: a.Store, Ledger: a.Ledger, Followup: a.Followup, Clock: a.Clock, Log: log}
	a.Events = &service.DeliveryEventService{Store: a.Store, Clock: a.Clock, Log: log}

	log.Info("Application wired",
		zap.String("store", cfg.StoreDriver),
		zap.Bool("amqp", cfg.AMQPURL != ""),
		zap.Bool("redis_lock", cfg.RedisAddr != ""),
		zap.String("llm", cfg.LLMProvider),
		zap.Bool("search", a.Hunt.Search != nil),
		zap.Bool("mail", disp.Configured()))
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	if a.Config.StoreDriver == "memory" {
		a.Store = memory.New().Store()
		return nil
	}
	conn, err := db.Open(ctx, a.Config.DSN(), a.Log)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, conn.Close)
	if err := db.Migrate(ctx, conn); err != nil {
		return err
	}
	a.Store = repository.NewPostgresStore(conn)
	return nil
}

func (a *App) openQueue() error {
	if a.Config.AMQPURL == "" {
		q := queue.NewInMemoryQueue(a.Log)
		a.Queue = q
		a.closers = append(a.closers, q.Close)
		return nil
	}
	q, err := queue.DialAMQP(a.Config.AMQPURL, a.Log)
	if err != nil {
		return err
	}
	a.Queue = q
	a.closers = append(a.closers, q.Close)
	return nil
}

func (a *App) openLocker(ctx context.Context) error {
	if a.Config.RedisAddr == "" {
		a.Locker = lock.NewLocalLocker()
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: a.Config.RedisAddr})
	a.closers = append(a.closers, client.Close)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to reach redis at %s: %w", a.Config.RedisAddr, err)
	}
	a.Locker = lock.NewRedisLocker(client)
	return nil
}

func (a *App) openLLM(ctx context.Context) (llm.Completer, error) {
	switch a.Config.LLMProvider {
	case "":
		return nil, nil
	case "bedrock":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(a.Config.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		return llm.NewBedrock(bedrockruntime.NewFromConfig(awsCfg), a.Config.BedrockModelID), nil
	case "gemini":
		g, err := llm.NewGemini(ctx, a.Config.GeminiAPIKey, a.Config.GeminiModel)
		if err != nil {
			return nil, err
		}
		return g, nil
	}
	return nil, fmt.Errorf("unsupported LLM_PROVIDER %q", a.Config.LLMProvider)
}

func (a *App) openMailer(ctx context.Context) (mailer.Sender, error) {
	if a.Config.FromEmail == "" {
		return nil, nil
	}
	client, err := mailer.NewSESClient(ctx, a.Config.SESAccessKey, a.Config.SESSecretKey, a.Config.AWSRegion)
	if err != nil {
		return nil, err
	}
	return mailer.NewSESSender(client, a.Config.SESConfigurationSet, a.Log), nil
}

// StartSubscriber applies queued delivery events through the lifecycle.
func (a *App) StartSubscriber() error {
	return queue.StartDeliveryEventSubscriber(a.Queue, a.Events, a.Log)
}

// Runner drives the scheduler on the configured interval.
func (a *App) Runner() *service.Runner {
	return service.NewRunner(a.Scheduler, a.Config.SchedulerInterval, a.Log)
}

// Router is the HTTP API with the delivery webhooks mounted.
func (a *App) Router() http.Handler {
	ctrl := &controller.CampaignController{
		Hunt:       a.Hunt,
		Send:       a.Send,
		Followup:   a.Followup,
		Campaigns:  a.Campaigns,
		Scheduler:  a.Scheduler,
		CronSecret: a.Config.CronSecret,
		Log:        a.Log,
	}
	hooks := &handler.DeliveryHandler{
		Queue:   a.Queue,
		Clock:   a.Clock,
		Log:     a.Log,
		Confirm: &http.Client{Timeout: 10 * time.Second},
	}
	return controller.NewRouter(ctrl, hooks, a.Log)
}

// Close releases backends in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
