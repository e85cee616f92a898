package config

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
)

var (
	erpDB   *sql.DB
	erpDBMu sync.RWMutex
)

// GetERPDB returns the read-only handle to the legacy ERP, or nil when not configured.
func GetERPDB() *sql.DB {
	erpDBMu.RLock()
	defer erpDBMu.RUnlock()
	return erpDB
}

// ConnectERP opens the legacy ERP handle. The ERP is a best-effort collaborator:
// a failed ping is logged and the handle is kept so later lookups can recover.
//
// Set via env:
// - ERP_DB_HOST, ERP_DB_PORT, ERP_DB_USER, ERP_DB_PASSWORD, ERP_DB_NAME
// - ERP_DB_MAX_OPEN_CONNS (default 10)
func ConnectERP() error {
	host := strings.TrimSpace(os.Getenv("ERP_DB_HOST"))
	if host == "" {
		log.Printf("ERP_DB_HOST not set; live stock lookups will fall back to snapshots")
		return nil
	}
	port := strings.TrimSpace(os.Getenv("ERP_DB_PORT"))
	if port == "" {
		port = "3306"
	}

	cfg := mysql.NewConfig()
	cfg.User = os.Getenv("ERP_DB_USER")
	cfg.Passwd = os.Getenv("ERP_DB_PASSWORD")
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%s", host, port)
	cfg.DBName = os.Getenv("ERP_DB_NAME")
	cfg.ParseTime = true
	cfg.Timeout = 10 * time.Second
	cfg.ReadTimeout = StockOracleTimeout()

	handle, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return err
	}
	handle.SetMaxOpenConns(intFromEnv("ERP_DB_MAX_OPEN_CONNS", 10))
	handle.SetMaxIdleConns(2)
	handle.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := handle.PingContext(pingCtx); err != nil {
		log.Printf("erp database not reachable yet (addr=%s): %v", cfg.Addr, err)
	} else {
		log.Printf("connected to erp database (addr=%s)", cfg.Addr)
	}

	erpDBMu.Lock()
	erpDB = handle
	erpDBMu.Unlock()
	return nil
}

func CloseERP() {
	erpDBMu.Lock()
	defer erpDBMu.Unlock()
	if erpDB != nil {
		_ = erpDB.Close()
		erpDB = nil
	}
}
