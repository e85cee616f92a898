package models

import (
	"errors"
	"math"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/stockcount_backend/utils"
	"github.com/shopspring/decimal"
)

func TestVersionedItemKey(t *testing.T) {
	base := BaseItemKey(4711, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC))
	if base != "4711-2026-03-09" {
		t.Fatalf("base key: got %q", base)
	}
	cases := []struct {
		version int
		want    string
	}{
		{0, "4711-2026-03-09"},
		{1, "4711-2026-03-09"},
		{2, "4711-2026-03-09-v2"},
		{7, "4711-2026-03-09-v7"},
	}
	for _, tc := range cases {
		if got := VersionedItemKey(base, tc.version); got != tc.want {
			t.Fatalf("version %d: got %q want %q", tc.version, got, tc.want)
		}
	}
}

func TestFindItemSlot(t *testing.T) {
	base := "10-2026-03-09"
	cases := []struct {
		name        string
		usage       map[string]int64
		from        int
		wantKey     string
		wantSlot    int
		wantVersion int
	}{
		{"empty key takes slot 1", map[string]int64{}, 1, base, 1, 1},
		{"one row takes slot 2", map[string]int64{base: 1}, 1, base, 2, 1},
		{"full key moves to v2", map[string]int64{base: 2}, 1, base + "-v2", 1, 2},
		{"v2 half full", map[string]int64{base: 2, base + "-v2": 1}, 1, base + "-v2", 2, 2},
		{"skips to v3", map[string]int64{base: 2, base + "-v2": 2}, 1, base + "-v3", 1, 3},
		{"never steps back below from", map[string]int64{base: 0, base + "-v2": 2}, 2, base + "-v3", 1, 3},
		{"from zero starts at one", map[string]int64{}, 0, base, 1, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var visited []string
			key, slot, version, err := findItemSlot(base, tc.from, func(key string) (int64, error) {
				visited = append(visited, key)
				return tc.usage[key], nil
			})
			if err != nil {
				t.Fatalf("findItemSlot: %v", err)
			}
			if key != tc.wantKey || slot != tc.wantSlot || version != tc.wantVersion {
				t.Fatalf("got (%q, %d, %d) want (%q, %d, %d); visited %v", key, slot, version, tc.wantKey, tc.wantSlot, tc.wantVersion, visited)
			}
		})
	}
}

func TestFindItemSlotPropagatesUsageError(t *testing.T) {
	boom := errors.New("boom")
	_, _, _, err := findItemSlot("1-2026-01-01", 1, func(string) (int64, error) { return 0, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected usage error; got %v", err)
	}
}

func TestParseCountDate(t *testing.T) {
	now := time.Date(2026, 5, 20, 17, 45, 0, 0, time.UTC)
	today := time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		in   string
		want time.Time
	}{
		{"2026-01-02", time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)},
		{" 2026-01-02 ", time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"2026-01-02T23:10:00Z", time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"2026-01-02T01:00:00+03:00", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"", today},
		{"not a date", today},
		{"2026-02-30", today},
	}
	for _, tc := range cases {
		if got := parseCountDate(tc.in, now); !got.Equal(tc.want) {
			t.Fatalf("parseCountDate(%q): got %s want %s", tc.in, got, tc.want)
		}
	}
}

func TestFiniteDecimal(t *testing.T) {
	if got := finiteDecimal(math.NaN()); !got.IsZero() {
		t.Fatalf("NaN: got %s", got)
	}
	if got := finiteDecimal(math.Inf(1)); !got.IsZero() {
		t.Fatalf("+Inf: got %s", got)
	}
	if got := finiteDecimal(12.345678); !got.Equal(decimal.RequireFromString("12.3457")) {
		t.Fatalf("rounding: got %s", got)
	}
}

func TestSanitizeRow(t *testing.T) {
	now := time.Date(2026, 5, 20, 9, 0, 0, 0, time.UTC)

	if _, err := (NewCountItemRow{ProductCode: 0}).sanitize("g", now); !utils.IsValidationError(err) {
		t.Fatalf("expected ValidationError for product_code 0; got %v", err)
	}

	item, err := NewCountItemRow{
		ProductCode:   55,
		Description:   "  Brake pad \x00",
		Location:      "   ",
		StockSnapshot: 8,
		ExitQty:       math.Inf(-1),
	}.sanitize("grp", now)
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	if item.GroupKey != "grp" || item.ProductCode != 55 {
		t.Fatalf("unexpected identity: %+v", item)
	}
	if item.Description == nil || *item.Description != "Brake pad" {
		t.Fatalf("description not cleaned: %v", item.Description)
	}
	if item.Location != nil {
		t.Fatalf("blank location should be nil; got %q", *item.Location)
	}
	if !item.StockSnapshot.Equal(decimal.NewFromInt(8)) || !item.ExitQty.IsZero() {
		t.Fatalf("quantities: snapshot=%s exit=%s", item.StockSnapshot, item.ExitQty)
	}
	if !item.CountDate.Equal(time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("count date: %s", item.CountDate)
	}
	if item.ItemKey != "" || item.KeySlot != 0 {
		t.Fatalf("key must be assigned on insert, got %q/%d", item.ItemKey, item.KeySlot)
	}
}

func TestDistinctItemKeysKeepsOrder(t *testing.T) {
	items := []CountItem{{ItemKey: "b"}, {ItemKey: "a"}, {ItemKey: "b"}, {ItemKey: "c"}}
	got := distinctItemKeys(items)
	want := []string{"b", "a", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestNewCountGroupValidate(t *testing.T) {
	cases := []struct {
		name  string
		input NewCountGroup
		ok    bool
	}{
		{"round 1", NewCountGroup{CollaboratorName: "ana", RoundNumber: 1}, true},
		{"round 3", NewCountGroup{CollaboratorName: "ana", RoundNumber: 3}, true},
		{"round 4", NewCountGroup{CollaboratorName: "ana", RoundNumber: 4}, false},
		{"round 0", NewCountGroup{CollaboratorName: "ana", RoundNumber: 0}, false},
		{"bad mode", NewCountGroup{CollaboratorName: "ana", RoundNumber: 1, Mode: "Weekly"}, false},
		{"long key", NewCountGroup{CollaboratorName: "ana", RoundNumber: 1, GroupKey: string(make([]byte, 65))}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := tc.input
			err := input.validate()
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && !utils.IsValidationError(err) {
				t.Fatalf("expected ValidationError; got %v", err)
			}
			if tc.ok && input.Mode != CountModeScheduled {
				t.Fatalf("mode should default to Scheduled; got %q", input.Mode)
			}
		})
	}
}
