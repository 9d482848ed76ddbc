package app

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/2003deepak/MarkMe-sub000/internal/consumer"
	"github.com/2003deepak/MarkMe-sub000/internal/feed"
	transport "github.com/2003deepak/MarkMe-sub000/internal/http"
	"github.com/2003deepak/MarkMe-sub000/internal/http/handlers"
	"github.com/2003deepak/MarkMe-sub000/internal/ledger"
	"github.com/2003deepak/MarkMe-sub000/internal/queue"
	"github.com/2003deepak/MarkMe-sub000/internal/repository"
	"github.com/2003deepak/MarkMe-sub000/internal/scheduler"
	"github.com/2003deepak/MarkMe-sub000/internal/service"
	"github.com/2003deepak/MarkMe-sub000/internal/store"
)

type Config struct {
	IdentityBaseURL      string
	QueueName            string
	Lead                 time.Duration
	Tolerance            time.Duration
	StaleAfter           time.Duration
	LedgerTTL            time.Duration
	MaterializeAt        string
	MaterializeImmediate bool
	PromoteInterval      time.Duration
}

type App struct {
	handler      http.Handler
	queue        *queue.RedisQueue
	materializer *scheduler.Materializer
	firing       *consumer.FiringConsumer
	aggregation  *consumer.AggregationConsumer
	attendance   *store.AttendanceStore
	summaries    *store.SummaryStore
	cfg          Config
}

func New(
	db *sql.DB,
	mongoDB *mongo.Database,
	redisClient *redis.Client,
	attendanceFeed feed.AttendanceFeed,
	logger *log.Logger,
	cfg Config,
) (*App, error) {
	if cfg.QueueName == "" {
		cfg.QueueName = "session_firing"
	}
	if cfg.PromoteInterval <= 0 {
		cfg.PromoteInterval = time.Second
	}

	txManager := repository.NewPostgresTxManager(db)
	overrideReader := repository.NewOverridePostgresRepository(db)

	jobLedger := ledger.NewRedisLedger(redisClient)
	delayQueue := queue.NewRedisQueue(redisClient, cfg.QueueName)

	attendanceStore := store.NewAttendanceStore(mongoDB)
	summaryStore := store.NewSummaryStore(mongoDB)
	studentStore := store.NewStudentStore(mongoDB)
	subjectStore := store.NewSubjectStore(mongoDB)

	identityClient := service.NewIdentityHTTPClient(cfg.IdentityBaseURL, service.DefaultIdentityHTTPClient())
	exceptionService := service.NewExceptionService(
		txManager,
		identityClient,
		jobLedger,
		delayQueue,
		subjectStore,
		logger,
		cfg.Lead,
		cfg.LedgerTTL,
	)

	materializer, err := scheduler.NewMaterializer(txManager, jobLedger, delayQueue, logger, scheduler.Config{
		Lead:      cfg.Lead,
		LedgerTTL: cfg.LedgerTTL,
		RunAt:     cfg.MaterializeAt,
		Immediate: cfg.MaterializeImmediate,
	})
	if err != nil {
		return nil, err
	}

	firing := consumer.NewFiringConsumer(delayQueue, jobLedger, overrideReader, attendanceStore, logger, consumer.FiringConfig{
		Lead:       cfg.Lead,
		Tolerance:  cfg.Tolerance,
		StaleAfter: cfg.StaleAfter,
		LedgerTTL:  cfg.LedgerTTL,
	})

	aggregation := consumer.NewAggregationConsumer(attendanceFeed, attendanceStore, studentStore, summaryStore, logger)

	overrideHandler := handlers.NewOverrideHandler(exceptionService)
	router := transport.NewRouter(overrideHandler)

	return &App{
		handler:      router.Handler(),
		queue:        delayQueue,
		materializer: materializer,
		firing:       firing,
		aggregation:  aggregation,
		attendance:   attendanceStore,
		summaries:    summaryStore,
		cfg:          cfg,
	}, nil
}

func (a *App) Handler() http.Handler {
	return a.handler
}

func (a *App) EnsureIndexes(ctx context.Context) error {
	if err := a.attendance.EnsureIndexes(ctx); err != nil {
		return err
	}
	return a.summaries.EnsureIndexes(ctx)
}

func (a *App) RunMaterializer(ctx context.Context) error {
	return a.materializer.Run(ctx)
}

func (a *App) RunQueuePromoter(ctx context.Context) error {
	return a.queue.RunPromoter(ctx, a.cfg.PromoteInterval)
}

func (a *App) RunFiringConsumer(ctx context.Context) error {
	return a.firing.Run(ctx)
}

func (a *App) RunAggregationConsumer(ctx context.Context) error {
	return a.aggregation.Run(ctx)
}
