package models

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestCountModeUnmarshal(t *testing.T) {
	cases := []struct {
		in      string
		want    CountMode
		wantErr bool
	}{
		{`""`, CountModeScheduled, false},
		{`"Scheduled"`, CountModeScheduled, false},
		{`"AdHoc"`, CountModeAdHoc, false},
		{`"adhoc"`, "", true},
		{`3`, "", true},
	}
	for _, tc := range cases {
		var m CountMode
		err := json.Unmarshal([]byte(tc.in), &m)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%s: expected error", tc.in)
			}
			continue
		}
		if err != nil || m != tc.want {
			t.Fatalf("%s: got %q, %v", tc.in, m, err)
		}
	}
}

func TestAuditMovementKindUnmarshal(t *testing.T) {
	var input struct {
		Kind AuditMovementKind `json:"movement_kind"`
	}
	for _, k := range []string{"REDUCE", "INCLUDE", "CORRECT"} {
		if err := json.Unmarshal([]byte(`{"movement_kind":"`+k+`"}`), &input); err != nil {
			t.Fatalf("%s: %v", k, err)
		}
		if string(input.Kind) != k {
			t.Fatalf("got %q want %q", input.Kind, k)
		}
	}
	if err := json.Unmarshal([]byte(`{"movement_kind":"MOVE"}`), &input); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestIsValidRoundNumber(t *testing.T) {
	for n := -1; n <= 5; n++ {
		want := n >= 1 && n <= 3
		if got := IsValidRoundNumber(n); got != want {
			t.Fatalf("IsValidRoundNumber(%d) = %t", n, got)
		}
	}
}

func TestEnumGQLRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	AuditMovementInclude.MarshalGQL(&buf)
	RoundStateLocked.MarshalGQL(&buf)
	if buf.String() != `"INCLUDE""Locked"` {
		t.Fatalf("marshal: got %s", buf.String())
	}

	var mode CountMode
	if err := mode.UnmarshalGQL("AdHoc"); err != nil || mode != CountModeAdHoc {
		t.Fatalf("count mode: %q %v", mode, err)
	}
	if err := mode.UnmarshalGQL(""); err == nil {
		t.Fatalf("empty count mode should be rejected")
	}
	var kind AuditMovementKind
	if err := kind.UnmarshalGQL("MOVE"); err == nil {
		t.Fatalf("unknown movement kind should be rejected")
	}
	var status AuditStatus
	if err := status.UnmarshalGQL(3); err == nil {
		t.Fatalf("non-string audit status should be rejected")
	}
	var state RoundState
	if err := state.UnmarshalGQL("Released"); err != nil || state != RoundStateReleased {
		t.Fatalf("round state: %q %v", state, err)
	}
}
