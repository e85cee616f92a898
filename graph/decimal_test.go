package graph

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestUnmarshalDecimal(t *testing.T) {
	cases := []struct {
		in       interface{}
		expected string
	}{
		{"20000", "20000"},
		{"1,250", "1250"},
		{"  12.50 ", "12.5"},
		{"-3", "-3"},
		{json.Number("7.125"), "7.125"},
		{int64(4), "4"},
		{9, "9"},
		{2.5, "2.5"},
	}
	for _, tc := range cases {
		d, err := UnmarshalDecimal(tc.in)
		if err != nil {
			t.Fatalf("UnmarshalDecimal(%v) error: %v", tc.in, err)
		}
		if d.String() != tc.expected {
			t.Fatalf("UnmarshalDecimal(%v) expected %s, got %s", tc.in, tc.expected, d.String())
		}
	}
}

func TestUnmarshalDecimalRejects(t *testing.T) {
	for _, in := range []interface{}{"", "  ", "twelve", "1.2.3", json.Number("x"), true, nil} {
		if _, err := UnmarshalDecimal(in); err == nil {
			t.Fatalf("UnmarshalDecimal(%v) should fail", in)
		}
	}
}

func TestMarshalDecimal(t *testing.T) {
	var buf bytes.Buffer
	MarshalDecimal(decimal.RequireFromString("-3.5000")).MarshalGQL(&buf)
	if buf.String() != "-3.5" {
		t.Fatalf("got %s", buf.String())
	}
}
