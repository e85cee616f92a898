package graph

import (
	"context"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/stockcount_backend/models"
	"bitbucket.org/mmdatafocus/stockcount_backend/utils"
)

func strPtr(s string) *string { return &s }

func TestRequestUserId(t *testing.T) {
	withUser := utils.SetUserIdInContext(context.Background(), 7)
	tests := []struct {
		name      string
		ctx       context.Context
		fromInput int
		want      int
		wantErr   bool
	}{
		{"input wins", withUser, 3, 3, false},
		{"token fallback", withUser, 0, 7, false},
		{"missing", context.Background(), 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := requestUserId(tt.ctx, tt.fromInput)
			if (err != nil) != tt.wantErr {
				t.Fatalf("requestUserId() error = %v, wantErr %t", err, tt.wantErr)
			}
			if tt.wantErr && !utils.IsValidationError(err) {
				t.Fatalf("requestUserId() error = %v, want validation error", err)
			}
			if got != tt.want {
				t.Fatalf("requestUserId() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDayBounds(t *testing.T) {
	now := time.Date(2026, 3, 4, 15, 30, 0, 0, time.UTC)
	tests := []struct {
		name      string
		from, to  *string
		wantStart time.Time
		wantEnd   time.Time
		wantErr   bool
	}{
		{"defaults to today", nil, nil, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 4, 23, 59, 59, 999999999, time.UTC), false},
		{"blank is today", strPtr(" "), strPtr(""), time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 4, 23, 59, 59, 999999999, time.UTC), false},
		{"explicit range", strPtr("2026-03-01"), strPtr("2026-03-02"), time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 2, 23, 59, 59, 999999999, time.UTC), false},
		{"reversed", strPtr("2026-03-05"), strPtr("2026-03-01"), time.Time{}, time.Time{}, true},
		{"malformed", strPtr("03/01/2026"), nil, time.Time{}, time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := dayBounds(tt.from, tt.to, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("dayBounds() error = %v, wantErr %t", err, tt.wantErr)
			}
			if !start.Equal(tt.wantStart) || !end.Equal(tt.wantEnd) {
				t.Fatalf("dayBounds() = [%v, %v], want [%v, %v]", start, end, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestRoundItemsUsesAttachedItems(t *testing.T) {
	round := &models.CountRound{GroupKey: "g-1", Items: []models.CountItem{{ID: 1}, {ID: 2}}}
	items, err := roundItems(context.Background(), round)
	if err != nil {
		t.Fatalf("roundItems() error = %v", err)
	}
	if len(items) != 2 || items[0].ID != 1 || items[1].ID != 2 {
		t.Fatalf("roundItems() = %+v, want the attached items", items)
	}
	items[0].NeedsReview = true
	if !round.Items[0].NeedsReview {
		t.Fatalf("roundItems() should point into the round's items")
	}
}

func TestServicesNotReady(t *testing.T) {
	r := &Resolver{Services: func() *Services { return nil }}
	if _, err := r.services(); err != errNotReady {
		t.Fatalf("services() error = %v, want %v", err, errNotReady)
	}
	if _, err := (&Resolver{}).services(); err != errNotReady {
		t.Fatalf("services() without provider error = %v, want %v", err, errNotReady)
	}
	if _, err := (&queryResolver{r}).AuditHistory(context.Background(), 1); err != errNotReady {
		t.Fatalf("AuditHistory() error = %v, want %v", err, errNotReady)
	}
}
