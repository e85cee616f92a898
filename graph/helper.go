package graph

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/stockcount_backend/middlewares"
	"bitbucket.org/mmdatafocus/stockcount_backend/models"
	"bitbucket.org/mmdatafocus/stockcount_backend/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// requestUserId prefers the id in the input and falls back to the token's collaborator.
func requestUserId(ctx context.Context, fromInput int) (int, error) {
	if fromInput > 0 {
		return fromInput, nil
	}
	if id, ok := utils.GetUserIdFromContext(ctx); ok && id > 0 {
		return id, nil
	}
	return 0, utils.NewValidationError("user_id", "is required")
}

// parseDay reads an optional YYYY-MM-DD argument; absent or blank means today (UTC).
func parseDay(v *string, now time.Time) (time.Time, error) {
	s := strings.TrimSpace(utils.DereferencePtr(v, ""))
	if s == "" {
		s = now.UTC().Format(utils.DateLayout)
	}
	return utils.ParseDate(s)
}

// dayBounds spans from the start of the from day to the end of the to day.
func dayBounds(from *string, to *string, now time.Time) (time.Time, time.Time, error) {
	fromDay, err := parseDay(from, now)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	toDay, err := parseDay(to, now)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start, _ := utils.DayRange(fromDay)
	_, end := utils.DayRange(toDay)
	if end.Before(start) {
		return time.Time{}, time.Time{}, utils.NewValidationError("to", "must not be before from")
	}
	return start, end, nil
}

func (r *Resolver) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	tracer := r.Tracer
	if tracer == nil {
		tracer = otel.Tracer("stockcount-backend")
	}
	return tracer.Start(ctx, name)
}

// roundItems answers the shared items a round already carries, or loads them per group.
func roundItems(ctx context.Context, round *models.CountRound) ([]*models.CountItem, error) {
	if round.Items != nil {
		items := make([]*models.CountItem, 0, len(round.Items))
		for i := range round.Items {
			items = append(items, &round.Items[i])
		}
		return items, nil
	}
	return middlewares.GetGroupItems(ctx, round.GroupKey)
}

var errNotReady = errors.New("services are not ready")

func (r *Resolver) services() (*Services, error) {
	if r.Services == nil {
		return nil, errNotReady
	}
	s := r.Services()
	if s == nil {
		return nil, errNotReady
	}
	return s, nil
}
