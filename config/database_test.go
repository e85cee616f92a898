package config

import (
	"testing"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm/logger"
)

func TestDBSettingsDSN(t *testing.T) {
	t.Setenv("DB_USER", "counter")
	t.Setenv("DB_PASSWORD", "p@ss")
	t.Setenv("DB_HOST", "10.0.0.5")
	t.Setenv("DB_PORT", "3307")
	t.Setenv("DB_NAME", "stockcount")
	t.Setenv("DB_MAX_OPEN_CONNS", "12")
	t.Setenv("DB_CONN_MAX_LIFETIME_SECONDS", "")

	s := loadDBSettings()
	if s.MaxOpenConns != 12 || s.MaxIdleConns != 25 || s.ConnMaxLifetime != 300*time.Second {
		t.Fatalf("pool settings: %+v", s)
	}

	cfg, err := mysqlDriver.ParseDSN(s.dsn())
	if err != nil {
		t.Fatalf("ParseDSN: %v", err)
	}
	if cfg.User != "counter" || cfg.Passwd != "p@ss" || cfg.Addr != "10.0.0.5:3307" || cfg.DBName != "stockcount" {
		t.Fatalf("connection fields: %+v", cfg)
	}
	if !cfg.ParseTime || cfg.Loc != time.UTC {
		t.Fatalf("time handling: parseTime=%t loc=%v", cfg.ParseTime, cfg.Loc)
	}
	if cfg.Params["transaction_isolation"] != "'READ-COMMITTED'" {
		t.Fatalf("isolation: %v", cfg.Params)
	}
}

func TestGormLogLevel(t *testing.T) {
	cases := map[string]logger.LogLevel{
		"":       logger.Error,
		"silent": logger.Silent,
		" WARN ": logger.Warn,
		"info":   logger.Info,
		"debug":  logger.Error,
	}
	for in, want := range cases {
		if got := gormLogLevel(in); got != want {
			t.Fatalf("gormLogLevel(%q) = %v want %v", in, got, want)
		}
	}
}

func TestRetryBackoff(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{5, 30 * time.Second},
		{9, 30 * time.Second},
	}
	for _, tc := range cases {
		if got := retryBackoff(tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: got %s want %s", tc.attempt, got, tc.want)
		}
	}
}

func TestAuthRequired(t *testing.T) {
	cases := []struct {
		env, goEnv string
		want       bool
	}{
		{"", "", false},
		{"", "production", true},
		{"false", "production", false},
		{"true", "", true},
	}
	for _, tc := range cases {
		t.Setenv("AUTH_REQUIRED", tc.env)
		t.Setenv("GO_ENV", tc.goEnv)
		if got := AuthRequired(); got != tc.want {
			t.Fatalf("AUTH_REQUIRED=%q GO_ENV=%q: got %t", tc.env, tc.goEnv, got)
		}
	}
}
