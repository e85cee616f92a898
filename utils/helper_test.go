package utils

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	got, err := ParseDate(" 2026-03-09 ")
	if err != nil || !got.Equal(time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("got %s, %v", got, err)
	}
	for _, bad := range []string{"", "2026-3-9", "09/03/2026", "2026-02-30", "2026-03-09T10:00:00Z"} {
		if _, err := ParseDate(bad); !IsValidationError(err) {
			t.Fatalf("%q: expected ValidationError; got %v", bad, err)
		}
	}
}

func TestDayRange(t *testing.T) {
	start, end := DayRange(time.Date(2026, 3, 9, 15, 4, 5, 0, time.UTC))
	if !start.Equal(time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("start: %s", start)
	}
	if !end.Equal(time.Date(2026, 3, 9, 23, 59, 59, 999999999, time.UTC)) {
		t.Fatalf("end: %s", end)
	}
}

func TestValidateCompanyCode(t *testing.T) {
	for _, ok := range []string{"3", "0042"} {
		if err := ValidateCompanyCode(ok); err != nil {
			t.Fatalf("%q: %v", ok, err)
		}
	}
	for _, bad := range []string{"", "3 ", "-1", "3'; --", "x"} {
		if err := ValidateCompanyCode(bad); !IsValidationError(err) {
			t.Fatalf("%q: expected ValidationError; got %v", bad, err)
		}
	}
}

func TestErrorTaxonomy(t *testing.T) {
	ve := NewValidationError("qty", "must be %s", "positive")
	if ve.Error() != "qty: must be positive" {
		t.Fatalf("validation message: %q", ve.Error())
	}
	if !IsValidationError(fmt.Errorf("wrapped: %w", ve)) || IsConflictError(ve) {
		t.Fatalf("validation classification")
	}
	ce := NewConflictError("round %d is locked", 2)
	if ce.Error() != "round 2 is locked" {
		t.Fatalf("conflict message: %q", ce.Error())
	}
	if !IsConflictError(fmt.Errorf("wrapped: %w", ce)) || IsValidationError(ce) {
		t.Fatalf("conflict classification")
	}
	if !errors.Is(fmt.Errorf("load: %w", ErrorRecordNotFound), ErrorRecordNotFound) {
		t.Fatalf("not found classification")
	}
}

func TestUniqueSlice(t *testing.T) {
	got := UniqueSlice([]int{3, 1, 3, 2, 1})
	want := []int{3, 1, 2}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestParseDecimal(t *testing.T) {
	d, err := ParseDecimal(" 12.50 ")
	if err != nil || d.String() != "12.5" {
		t.Fatalf("got %s, %v", d, err)
	}
	if _, err := ParseDecimal(""); err == nil {
		t.Fatalf("expected error for empty input")
	}
}
