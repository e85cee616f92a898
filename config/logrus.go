package config

import (
	"context"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/stockcount_backend/appctx"
	"github.com/sirupsen/logrus"
)

var (
	logg *logrus.Logger
)

func GetLogger() *logrus.Logger {
	return logg
}

// Set via env:
// - LOG_LEVEL=warn (any logrus level)
// - LOG_FORMAT=json|text
func init() {
	logg = newLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
}

func newLogger(level string, format string) *logrus.Logger {
	l := logrus.New()
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{logrus.FieldKeyMsg: "message", logrus.FieldKeyLevel: "severity"},
		})
	}
	l.SetLevel(logrus.WarnLevel)
	if lvl, err := logrus.ParseLevel(strings.TrimSpace(level)); err == nil {
		l.SetLevel(lvl)
	}
	l.SetOutput(os.Stdout)
	return l
}

// RequestLogger tags entries with the request's correlation id and collaborator.
func RequestLogger(ctx context.Context) *logrus.Entry {
	fields := logrus.Fields{}
	if cid, ok := appctx.GetString(ctx, appctx.ContextKeyCorrelationId); ok && cid != "" {
		fields["correlation_id"] = cid
	}
	if user, ok := appctx.GetString(ctx, appctx.ContextKeyUserName); ok && user != "" {
		fields["user"] = user
	}
	return logg.WithFields(fields)
}

// LogError reports a failed step of a reconciliation operation; data is the key it was working on.
func LogError(logger *logrus.Logger, moduleName string, funcName string, step string, data any, err error) {
	fields := logrus.Fields{
		"module":   moduleName,
		"funcName": funcName,
		"context":  step,
	}
	if data != nil {
		fields["data"] = data
	}
	logger.WithFields(fields).Error(err.Error())
}
