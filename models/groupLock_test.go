package models

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
)

func TestIsRetryableTxErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadlock", &mysqlDriver.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"}, true},
		{"lock wait timeout", &mysqlDriver.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"}, true},
		{"wrapped deadlock", fmt.Errorf("claim slot: %w", &mysqlDriver.MySQLError{Number: 1213}), true},
		{"duplicate key", &mysqlDriver.MySQLError{Number: 1062}, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isRetryableTxErr(tc.err); got != tc.want {
				t.Fatalf("got %t want %t", got, tc.want)
			}
		})
	}
}

func TestRetryTx(t *testing.T) {
	deadlock := &mysqlDriver.MySQLError{Number: 1213}

	t.Run("replays until success", func(t *testing.T) {
		calls := 0
		err := retryTx(context.Background(), "test", func() error {
			calls++
			if calls < 3 {
				return deadlock
			}
			return nil
		})
		if err != nil || calls != 3 {
			t.Fatalf("got %v after %d calls", err, calls)
		}
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := retryTx(context.Background(), "test", func() error {
			calls++
			return deadlock
		})
		if !isRetryableTxErr(err) || calls != maxGroupTxAttempts {
			t.Fatalf("got %v after %d calls", err, calls)
		}
	})

	t.Run("other errors are not replayed", func(t *testing.T) {
		calls := 0
		boom := errors.New("boom")
		err := retryTx(context.Background(), "test", func() error {
			calls++
			return boom
		})
		if !errors.Is(err, boom) || calls != 1 {
			t.Fatalf("got %v after %d calls", err, calls)
		}
	})

	t.Run("cancelled context stops backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		calls := 0
		err := retryTx(ctx, "test", func() error {
			calls++
			return deadlock
		})
		if !errors.Is(err, context.Canceled) || calls != 1 {
			t.Fatalf("got %v after %d calls", err, calls)
		}
	})
}

func TestSortItemRows(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2026, 2, d, 0, 0, 0, 0, time.UTC) }
	loc := func(v string) *string { return &v }
	rows := []CountItem{
		{ProductCode: 20, CountDate: day(2), Location: loc("a")},
		{ProductCode: 10, CountDate: day(2), Location: loc("b")},
		{ProductCode: 30, CountDate: day(1), Location: loc("c")},
		{ProductCode: 10, CountDate: day(2), Location: loc("d")},
	}
	sortItemRows(rows)

	want := []string{"c", "b", "d", "a"}
	for i, row := range rows {
		if *row.Location != want[i] {
			t.Fatalf("position %d: got %s want %s", i, *row.Location, want[i])
		}
	}
}
