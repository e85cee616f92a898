package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultCompanyCode = "3"

// CompanyCode is the ERP company used when a request does not name one.
//
// Set via env:
// - ERP_COMPANY_CODE=3
func CompanyCode() string {
	v := strings.TrimSpace(os.Getenv("ERP_COMPANY_CODE"))
	if v == "" {
		return defaultCompanyCode
	}
	return v
}

// SystemAuditUserId is the collaborator credited with automatic CORRECT audits.
// Zero disables auto-resolution.
//
// Set via env:
// - SYSTEM_AUDIT_USER_ID=1
func SystemAuditUserId() int {
	return intFromEnv("SYSTEM_AUDIT_USER_ID", 0)
}

// StockOracleTimeout bounds a single live stock lookup against the ERP.
//
// Set via env:
// - STOCK_ORACLE_TIMEOUT_SECONDS (default 30)
func StockOracleTimeout() time.Duration {
	return time.Duration(intFromEnv("STOCK_ORACLE_TIMEOUT_SECONDS", 30)) * time.Second
}

// StockOracleCacheTTL is how long a live stock answer is reused. Zero disables the cache.
//
// Set via env:
// - STOCK_ORACLE_CACHE_SECONDS (default 15)
func StockOracleCacheTTL() time.Duration {
	return time.Duration(intFromEnv("STOCK_ORACLE_CACHE_SECONDS", 15)) * time.Second
}

// StockOracleConcurrency caps parallel ERP lookups during a round close.
//
// Set via env:
// - STOCK_ORACLE_CONCURRENCY (default 4)
func StockOracleConcurrency() int {
	n := intFromEnv("STOCK_ORACLE_CONCURRENCY", 4)
	if n <= 0 {
		return 1
	}
	return n
}

func IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production")
}

// AuthRequired makes @auth fields reject requests without a bearer token. Tokens are
// always checked when present. Defaults to true in production.
//
// Set via env:
// - AUTH_REQUIRED=true
func AuthRequired() bool {
	if strings.TrimSpace(os.Getenv("AUTH_REQUIRED")) == "" {
		return IsProduction()
	}
	return boolFromEnv("AUTH_REQUIRED")
}

func boolFromEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// SkipMigrations lets AutoMigrate run as a separate job instead of on startup.
//
// Set via env:
// - SKIP_MIGRATIONS=true
func SkipMigrations() bool {
	return boolFromEnv("SKIP_MIGRATIONS")
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
