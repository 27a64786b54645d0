package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ConnectDatabaseWithRetry keeps dialing MySQL until it answers or ctx is done.
// The caller owns the returned handle and must close it on shutdown.
func ConnectDatabaseWithRetry(ctx context.Context, s Settings) (*gorm.DB, error) {
	dsn := mysqlDSN(s)
	var attempt int
	for {
		attempt++
		db, err := gorm.Open(mysql.Open(dsn), gormConfig())
		if err == nil {
			if sqlDB, derr := db.DB(); derr == nil && sqlDB != nil {
				if s.DBMaxOpenConns > 0 {
					sqlDB.SetMaxOpenConns(s.DBMaxOpenConns)
				}
				if s.DBMaxIdleConns >= 0 {
					sqlDB.SetMaxIdleConns(s.DBMaxIdleConns)
				}
				if s.DBConnMaxLifetime > 0 {
					sqlDB.SetConnMaxLifetime(s.DBConnMaxLifetime)
				}
				if s.DBConnMaxIdleTime > 0 {
					sqlDB.SetConnMaxIdleTime(s.DBConnMaxIdleTime)
				}
			}

			if pluginErr := db.Use(otelgorm.NewPlugin()); pluginErr != nil {
				log.Printf("db connected but failed to install otelgorm plugin: %v", pluginErr)
			}
			log.Printf("connected to database (attempt=%d)", attempt)
			return db, nil
		}

		sleep := backoff(attempt)
		log.Printf("failed to connect database (attempt=%d): %v; retrying in %s", attempt, err, sleep)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// mysqlDSN targets a unix socket when DB_HOST is a path (Cloud SQL style
// /cloudsql/<CONNECTION_NAME>) and TCP otherwise. Times are stored in UTC.
func mysqlDSN(s Settings) string {
	network, address := "tcp", s.DBHost+":"+s.DBPort
	if strings.HasPrefix(s.DBHost, "/") {
		network, address = "unix", s.DBHost
	}
	return fmt.Sprintf("%s:%s@%s(%s)/%s?parseTime=true&loc=UTC&charset=utf8mb4",
		s.DBUser, s.DBPassword, network, address, s.DBName)
}

func backoff(attempt int) time.Duration {
	sleep := time.Second * time.Duration(1<<min(attempt, 5))
	if sleep > 30*time.Second {
		sleep = 30 * time.Second
	}
	return sleep
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: logger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			logger.Config{
				LogLevel:                  logger.Error,
				SlowThreshold:             time.Second,
				IgnoreRecordNotFoundError: true,
			},
		),
	}
}
