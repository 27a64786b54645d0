package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/sami157/dining-management-server/config"
	"github.com/sami157/dining-management-server/middlewares"
	"github.com/sami157/dining-management-server/models"
	"github.com/sami157/dining-management-server/store"
	"github.com/sami157/dining-management-server/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	redisConnectTimeout = 20 * time.Second
	financeLockTTL      = 2 * time.Minute
	shutdownTimeout     = 30 * time.Second
)

func messLocation(name string, logger *logrus.Logger) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "timezone", "name": name}).Warn("unknown timezone; using UTC+6")
		return time.FixedZone("Asia/Dhaka", 6*60*60)
	}
	return loc
}

// prepareDatabase runs migrations unless disabled and pins READ COMMITTED.
func prepareDatabase(db *gorm.DB, s config.Settings, logger *logrus.Logger) error {
	if s.SkipMigrations {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	} else if err := models.MigrateTable(db); err != nil {
		return err
	}
	return db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
}

// connectRedis is best effort: without redis the app runs with database locks
// only, no meal rate cache and no rate limiting.
func connectRedis(ctx context.Context, s config.Settings, logger *logrus.Logger) (*redis.Client, workflow.Locker) {
	ctx, cancel := context.WithTimeout(ctx, redisConnectTimeout)
	defer cancel()
	client, lockClient, err := config.ConnectRedisWithRetry(ctx, s.RedisAddress)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "redis"}).Warn("redis unavailable; continuing without it: " + err.Error())
		return nil, nil
	}
	return client, workflow.NewRedisLocker(lockClient, financeLockTTL, logger)
}

func scheduleBalanceChecks(spec string, loc *time.Location, finance *workflow.FinanceWorkflow, logger *logrus.Logger) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(loc))
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := finance.CheckBalances(ctx); err != nil {
			config.LogError(logger, "server.go", "scheduleBalanceChecks", "checking balances", spec, err)
		}
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func main() {
	settings := config.LoadSettings()
	logger := config.NewLogger(settings.LogLevel)
	if settings.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	db, err := config.ConnectDatabaseWithRetry(sigCtx, settings)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "database"}).Fatal("database never became reachable: " + err.Error())
	}
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	if err := prepareDatabase(db, settings, logger); err != nil {
		logger.WithFields(logrus.Fields{"field": "database"}).Fatal("failed to prepare database: " + err.Error())
	}

	st := store.NewMySQLStore(db)
	rdb, redisLocker := connectRedis(sigCtx, settings, logger)

	loc := messLocation(settings.MessTimezone, logger)
	financeOpts := []workflow.FinanceOption{
		workflow.WithLocker(workflow.ChainLockers(redisLocker, workflow.LockFunc(st.Lock))),
	}
	if settings.MealRateCacheEnabled && rdb != nil {
		financeOpts = append(financeOpts, workflow.WithMealRateCache(config.NewRedisCache(rdb, "dining:"), settings.MealRateCacheTTL))
	}
	finance := workflow.NewFinanceWorkflow(st, logger, financeOpts...)
	members := workflow.NewMemberWorkflow(st, logger)
	meals := workflow.NewMealWorkflow(st, logger, loc, time.Now)

	var limiter *middlewares.RateLimiter
	if settings.RateLimitEnabled && rdb != nil {
		limiter = middlewares.NewRateLimiter(rdb, settings.RateLimitMaxRequests, settings.RateLimitWindow)
	}

	r := newRouter(routerDeps{
		settings:    settings,
		logger:      logger,
		ping:        st.Ping,
		finance:     finance,
		members:     members,
		meals:       meals,
		rateLimiter: limiter,
		loc:         loc,
		now:         time.Now,
	})

	checks, err := scheduleBalanceChecks(settings.BalanceCheckCron, loc, finance, logger)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "cron"}).Fatal("invalid BALANCE_CHECK_CRON: " + err.Error())
	}
	checks.Start()

	srv := &http.Server{
		Addr:    ":" + settings.Port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()
	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
		"port": settings.Port,
	}).Info("dining management server listening")
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background jobs first so they don't start new work while we're draining.
	<-checks.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb != nil {
		_ = rdb.Close()
	}
}
