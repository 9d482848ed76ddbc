package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"

	"github.com/2003deepak/MarkMe-sub000/internal/app"
	"github.com/2003deepak/MarkMe-sub000/internal/feed"
	"github.com/2003deepak/MarkMe-sub000/migrations"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags|log.LUTC)

	_ = godotenv.Load()
	config, err := loadConfig()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}

	debugEnabled := strings.EqualFold(strings.TrimSpace(config.LogLevel), "debug")
	debugf := func(format string, args ...any) {
		if debugEnabled {
			logger.Printf("[DEBUG] "+format, args...)
		}
	}

	debugf("config loaded: http_addr=%s identity_base_url=%s mongo_db=%s queue=%s materialize_at=%s immediate=%t",
		config.HTTPAddr,
		config.IdentityBaseURL,
		config.MongoDatabase,
		config.QueueName,
		config.MaterializeAt,
		config.MaterializeImmediate,
	)

	db, err := sql.Open("pgx", config.DatabaseURL)
	if err != nil {
		logger.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(config.DBMaxOpenConns)
	db.SetMaxIdleConns(config.DBMaxIdleConns)
	db.SetConnMaxLifetime(config.DBConnMaxLifetime)

	if err := db.Ping(); err != nil {
		logger.Fatalf("failed to connect to database: %v", err)
	}
	debugf("database connection successful")

	if err := migrations.Up(db); err != nil {
		logger.Fatalf("failed to run migrations: %v", err)
	}
	debugf("migrations completed successfully")

	connectCtx, connectCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer connectCancel()

	mongoClient, err := mongo.Connect(connectCtx, options.Client().ApplyURI(config.MongoURI))
	if err != nil {
		logger.Fatalf("failed to connect to mongo: %v", err)
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mongoClient.Disconnect(disconnectCtx)
	}()
	if err := mongoClient.Ping(connectCtx, nil); err != nil {
		logger.Fatalf("failed to ping mongo: %v", err)
	}
	mongoDB := mongoClient.Database(config.MongoDatabase)
	debugf("mongo connection successful")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(connectCtx).Err(); err != nil {
		logger.Fatalf("failed to ping redis: %v", err)
	}
	debugf("redis connection successful")

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	attendanceFeed, err := feed.OpenMongoFeed(shutdownCtx, mongoDB)
	if err != nil {
		logger.Fatalf("failed to open attendance feed: %v", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = attendanceFeed.Close(closeCtx)
	}()

	application, err := app.New(db, mongoDB, redisClient, attendanceFeed, logger, app.Config{
		IdentityBaseURL:      config.IdentityBaseURL,
		QueueName:            config.QueueName,
		Lead:                 config.FiringLead,
		Tolerance:            config.FiringTolerance,
		StaleAfter:           config.StaleAfter,
		LedgerTTL:            config.LedgerTTL,
		MaterializeAt:        config.MaterializeAt,
		MaterializeImmediate: config.MaterializeImmediate,
	})
	if err != nil {
		logger.Fatalf("failed to build application: %v", err)
	}

	if err := application.EnsureIndexes(connectCtx); err != nil {
		logger.Fatalf("failed to ensure mongo indexes: %v", err)
	}

	server := &http.Server{
		Addr:              config.HTTPAddr,
		Handler:           application.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(shutdownCtx)
	group.Go(func() error { return ignoreCancelled(application.RunMaterializer(groupCtx)) })
	group.Go(func() error { return ignoreCancelled(application.RunQueuePromoter(groupCtx)) })
	group.Go(func() error { return ignoreCancelled(application.RunFiringConsumer(groupCtx)) })
	group.Go(func() error { return ignoreCancelled(application.RunAggregationConsumer(groupCtx)) })
	group.Go(func() error {
		<-groupCtx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(ctx)
	})
	group.Go(func() error {
		logger.Printf("markme scheduler listening on %s", config.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		logger.Fatalf("runtime error: %v", err)
	}
	logger.Printf("shutdown complete")
}

func ignoreCancelled(err error) error {
	if err == nil || err == context.Canceled {
		return nil
	}
	return err
}

type config struct {
	DatabaseURL          string
	MongoURI             string
	MongoDatabase        string
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	HTTPAddr             string
	LogLevel             string
	IdentityBaseURL      string
	QueueName            string
	FiringLead           time.Duration
	FiringTolerance      time.Duration
	StaleAfter           time.Duration
	LedgerTTL            time.Duration
	MaterializeAt        string
	MaterializeImmediate bool
	DBMaxOpenConns       int
	DBMaxIdleConns       int
	DBConnMaxLifetime    time.Duration
}

func loadConfig() (config, error) {
	var cfg config

	var err error
	if cfg.DatabaseURL, err = getRequiredEnv("DATABASE_URL"); err != nil {
		return cfg, err
	}
	if cfg.MongoURI, err = getRequiredEnv("MONGO_URI"); err != nil {
		return cfg, err
	}
	cfg.MongoDatabase = getEnv("MONGO_DB", "markme")
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return cfg, err
	}
	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	if cfg.IdentityBaseURL, err = getRequiredEnv("IDENTITY_BASE_URL"); err != nil {
		return cfg, err
	}
	cfg.QueueName = getEnv("QUEUE_NAME", "session_firing")
	if cfg.FiringLead, err = getEnvDuration("FIRING_LEAD", 15*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.FiringTolerance, err = getEnvDuration("FIRING_TOLERANCE", 2*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.StaleAfter, err = getEnvDuration("STALE_AFTER", 2*time.Hour); err != nil {
		return cfg, err
	}
	if cfg.LedgerTTL, err = getEnvDuration("LEDGER_TTL", 48*time.Hour); err != nil {
		return cfg, err
	}
	cfg.MaterializeAt = getEnv("MATERIALIZE_AT", "20:00")
	cfg.MaterializeImmediate = strings.EqualFold(getEnv("MATERIALIZE_IMMEDIATE", "false"), "true")
	if cfg.DBMaxOpenConns, err = getEnvInt("DB_MAX_OPEN_CONNS", 10); err != nil {
		return cfg, err
	}
	if cfg.DBMaxIdleConns, err = getEnvInt("DB_MAX_IDLE_CONNS", 5); err != nil {
		return cfg, err
	}
	if cfg.DBConnMaxLifetime, err = getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func getRequiredEnv(key string) (string, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return "", &configError{message: "missing required environment variable: " + key}
	}
	return value, nil
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, &configError{message: "invalid int for " + key + ": " + err.Error()}
	}
	return parsed, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, &configError{message: "invalid duration for " + key + ": " + err.Error()}
	}
	return parsed, nil
}

type configError struct {
	message string
}

func (e *configError) Error() string {
	return e.message
}

var _ error = (*configError)(nil)
