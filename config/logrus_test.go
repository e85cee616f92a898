package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/stockcount_backend/appctx"
	"github.com/sirupsen/logrus"
)

func TestNewLogger(t *testing.T) {
	cases := []struct {
		level, format string
		wantLevel     logrus.Level
		wantJSON      bool
	}{
		{"", "", logrus.WarnLevel, true},
		{"debug", "json", logrus.DebugLevel, true},
		{"nonsense", "TEXT", logrus.WarnLevel, false},
	}
	for _, tc := range cases {
		l := newLogger(tc.level, tc.format)
		if l.GetLevel() != tc.wantLevel {
			t.Fatalf("%q: level %s", tc.level, l.GetLevel())
		}
		if _, isJSON := l.Formatter.(*logrus.JSONFormatter); isJSON != tc.wantJSON {
			t.Fatalf("%q: json formatter %t", tc.format, isJSON)
		}
	}
}

func TestRequestLoggerAndLogError(t *testing.T) {
	var buf bytes.Buffer
	prev := logg
	logg = newLogger("info", "json")
	logg.SetOutput(&buf)
	defer func() { logg = prev }()

	ctx := appctx.Set(context.Background(), appctx.ContextKeyCorrelationId, "cid-1")
	ctx = appctx.Set(ctx, appctx.ContextKeyUserName, "ana")
	RequestLogger(ctx).Warn("slow oracle")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if line["correlation_id"] != "cid-1" || line["user"] != "ana" || line["message"] != "slow oracle" || line["severity"] != "warning" {
		t.Fatalf("unexpected entry: %v", line)
	}

	buf.Reset()
	LogError(logg, "CountRound", "CreateCountGroup", "claim slot", nil, errors.New("boom"))
	line = nil
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if _, ok := line["data"]; ok || line["context"] != "claim slot" || line["message"] != "boom" {
		t.Fatalf("unexpected entry: %v", line)
	}
}
