package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	db *gorm.DB
)

func GetDB() *gorm.DB {
	return db
}

func init() {
	// Load env from .env
	godotenv.Load()
}

// dbSettings is the count database connection, read from env:
// - DB_USER, DB_PASSWORD, DB_HOST, DB_PORT, DB_NAME
// - DB_MAX_OPEN_CONNS (default 50), DB_MAX_IDLE_CONNS (default 25)
// - DB_CONN_MAX_LIFETIME_SECONDS (default 300), DB_CONN_MAX_IDLE_TIME_SECONDS (default 60)
// - DB_LOG_LEVEL=silent|error|warn|info (default error)
type dbSettings struct {
	User, Password, Host, Port, Name string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	LogLevel        string
}

func loadDBSettings() dbSettings {
	return dbSettings{
		User:            os.Getenv("DB_USER"),
		Password:        os.Getenv("DB_PASSWORD"),
		Host:            os.Getenv("DB_HOST"),
		Port:            os.Getenv("DB_PORT"),
		Name:            os.Getenv("DB_NAME"),
		MaxOpenConns:    intFromEnv("DB_MAX_OPEN_CONNS", 50),
		MaxIdleConns:    intFromEnv("DB_MAX_IDLE_CONNS", 25),
		ConnMaxLifetime: time.Duration(intFromEnv("DB_CONN_MAX_LIFETIME_SECONDS", 300)) * time.Second,
		ConnMaxIdleTime: time.Duration(intFromEnv("DB_CONN_MAX_IDLE_TIME_SECONDS", 60)) * time.Second,
		LogLevel:        os.Getenv("DB_LOG_LEVEL"),
	}
}

// dsn pins every pooled connection to UTC and READ COMMITTED: slot searches re-read
// committed rows after a duplicate-key retry.
func (s dbSettings) dsn() string {
	cfg := mysqlDriver.NewConfig()
	cfg.User = s.User
	cfg.Passwd = s.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%s", s.Host, s.Port)
	cfg.DBName = s.Name
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Params = map[string]string{"transaction_isolation": "'READ-COMMITTED'"}
	return cfg.FormatDSN()
}

func gormLogLevel(v string) logger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "silent":
		return logger.Silent
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	default:
		return logger.Error
	}
}

// gormLogger routes gorm's statements through the service logger.
func gormLogger(level logger.LogLevel) logger.Interface {
	return logger.New(
		log.New(GetLogger().WriterLevel(logrus.WarnLevel), "", 0),
		logger.Config{
			LogLevel:                  level,
			SlowThreshold:             time.Second,
			IgnoreRecordNotFoundError: true,
		},
	)
}

// retryBackoff doubles from 2s and caps at 30s.
func retryBackoff(attempt int) time.Duration {
	sleep := time.Second * time.Duration(1<<min(attempt, 5))
	if sleep > 30*time.Second {
		sleep = 30 * time.Second
	}
	return sleep
}

// ConnectDatabaseWithRetry connects and sets the global DB.
// Call this from main() AFTER the HTTP server is listening.
func ConnectDatabaseWithRetry() {
	settings := loadDBSettings()
	gormConfig := &gorm.Config{Logger: gormLogger(gormLogLevel(settings.LogLevel))}

	for attempt := 1; ; attempt++ {
		conn, err := gorm.Open(mysql.Open(settings.dsn()), gormConfig)
		if err == nil {
			if sqlDB, derr := conn.DB(); derr == nil && sqlDB != nil {
				if settings.MaxOpenConns > 0 {
					sqlDB.SetMaxOpenConns(settings.MaxOpenConns)
				}
				if settings.MaxIdleConns >= 0 {
					sqlDB.SetMaxIdleConns(settings.MaxIdleConns)
				}
				if settings.ConnMaxLifetime > 0 {
					sqlDB.SetConnMaxLifetime(settings.ConnMaxLifetime)
				}
				if settings.ConnMaxIdleTime > 0 {
					sqlDB.SetConnMaxIdleTime(settings.ConnMaxIdleTime)
				}
			}
			if pluginErr := conn.Use(otelgorm.NewPlugin()); pluginErr != nil {
				GetLogger().WithField("field", "database").Warn("otelgorm plugin not installed: " + pluginErr.Error())
			}
			db = conn
			GetLogger().WithFields(logrus.Fields{"field": "database", "attempt": attempt}).Info("connected to count database")
			return
		}

		sleep := retryBackoff(attempt)
		GetLogger().WithFields(logrus.Fields{"field": "database", "attempt": attempt}).
			Warn(fmt.Sprintf("failed to connect count database: %v; retrying in %s", err, sleep))
		time.Sleep(sleep)
	}
}
