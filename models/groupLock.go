package models

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/stockcount_backend/config"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const groupLockWaitSeconds = 30

const (
	maxGroupTxAttempts = 4
	groupTxBackoff     = 50 * time.Millisecond
)

// withGroupLock runs fc while holding a MySQL advisory lock for the count group.
// GET_LOCK is connection-scoped, so fc receives the pinned connection and must run its
// transaction on it; the lock is released only after that transaction has committed.
func withGroupLock(db *gorm.DB, purpose string, groupKey string, fc func(conn *gorm.DB) error) error {
	lockName := fmt.Sprintf("%s:%s", purpose, groupKey)
	// MySQL caps lock names at 64 characters.
	if len(lockName) > 64 {
		lockName = lockName[:64]
	}
	return db.Connection(func(conn *gorm.DB) error {
		var ok int
		if err := conn.Raw("SELECT GET_LOCK(?, ?)", lockName, groupLockWaitSeconds).Scan(&ok).Error; err != nil {
			return err
		}
		if ok != 1 {
			return fmt.Errorf("could not acquire %s lock for group_key=%s", purpose, groupKey)
		}
		defer func() {
			var released int
			_ = conn.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&released).Error
		}()
		return fc(conn)
	})
}

// isRetryableTxErr reports a deadlock (1213) or lock wait timeout (1205). MySQL has rolled
// the statement or the whole transaction back, so the transaction can be replayed from the start.
func isRetryableTxErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1213 || mysqlErr.Number == 1205
	}
	return false
}

// retryTx replays fc while it fails with a deadlock or lock wait timeout.
func retryTx(ctx context.Context, operation string, fc func() error) error {
	var err error
	for attempt := 1; attempt <= maxGroupTxAttempts; attempt++ {
		err = fc()
		if err == nil || !isRetryableTxErr(err) {
			return err
		}
		config.GetLogger().WithFields(logrus.Fields{
			"operation": operation,
			"attempt":   attempt,
		}).Warn("transaction rolled back by lock conflict, retrying: " + err.Error())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * groupTxBackoff):
		}
	}
	return err
}

// sortItemRows orders rows by (count_date, product_code) so concurrent groups take
// item key locks in the same order.
func sortItemRows(rows []CountItem) {
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].CountDate.Equal(rows[j].CountDate) {
			return rows[i].CountDate.Before(rows[j].CountDate)
		}
		return rows[i].ProductCode < rows[j].ProductCode
	})
}
