package graph

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"bitbucket.org/mmdatafocus/stockcount_backend/stockoracle"
	"bitbucket.org/mmdatafocus/stockcount_backend/utils"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

func TestErrorPresenter(t *testing.T) {
	ctx := utils.SetCorrelationIdInContext(context.Background(), "cid-1")
	tests := []struct {
		name        string
		err         error
		wantCode    interface{}
		wantMessage string
	}{
		{"validation", utils.NewValidationError("user_id", "is required"), "BAD_USER_INPUT", "user_id: is required"},
		{"conflict", fmt.Errorf("close: %w", utils.NewConflictError("round is locked")), "CONFLICT", "close: round is locked"},
		{"not found", fmt.Errorf("collaborator 4: %w", utils.ErrorRecordNotFound), "NOT_FOUND", "collaborator 4: record not found"},
		{"oracle down", stockoracle.ErrNotConfigured, "UNAVAILABLE", stockoracle.ErrNotConfigured.Error()},
		{"internal", errors.New("dial tcp: refused"), "INTERNAL", "internal server error"},
		{"graphql error kept", gqlerror.Errorf("Access Denied"), nil, "Access Denied"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ErrorPresenter(ctx, tt.err)
			if got.Message != tt.wantMessage {
				t.Fatalf("message = %q, want %q", got.Message, tt.wantMessage)
			}
			if got.Extensions["code"] != tt.wantCode {
				t.Fatalf("code = %v, want %v", got.Extensions["code"], tt.wantCode)
			}
		})
	}

	masked := ErrorPresenter(ctx, errors.New("boom"))
	if masked.Extensions["correlation_id"] != "cid-1" {
		t.Fatalf("correlation_id = %v, want cid-1", masked.Extensions["correlation_id"])
	}
	field := ErrorPresenter(ctx, utils.NewValidationError("counted_qty", "must not be negative"))
	if field.Extensions["field"] != "counted_qty" {
		t.Fatalf("field = %v, want counted_qty", field.Extensions["field"])
	}
}

func TestRecoverFunc(t *testing.T) {
	err := RecoverFunc(context.Background(), "nil map")
	if err == nil || err.Error() != "internal server error" {
		t.Fatalf("RecoverFunc() = %v, want masked error", err)
	}
}
