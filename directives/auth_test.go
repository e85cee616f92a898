package directives

import (
	"context"
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/stockcount_backend/models"
	"bitbucket.org/mmdatafocus/stockcount_backend/utils"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

func TestAuth(t *testing.T) {
	activeCollaborator = func(ctx context.Context, id int) (*models.Collaborator, error) {
		switch id {
		case 1:
			return &models.Collaborator{ID: 1, Name: "ana"}, nil
		case 2:
			return nil, utils.NewValidationError("user_id", "collaborator %d is inactive", id)
		default:
			return nil, errors.New("db down")
		}
	}

	var seenUser string
	next := func(ctx context.Context) (interface{}, error) {
		seenUser, _ = utils.GetUserNameFromContext(ctx)
		return "ok", nil
	}
	withUser := func(id int) context.Context {
		return utils.SetUserIdInContext(context.Background(), id)
	}

	cases := []struct {
		name     string
		required string
		ctx      context.Context
		wantCode string
		wantErr  bool
		wantUser string
	}{
		{"anonymous allowed when optional", "false", context.Background(), "", false, ""},
		{"anonymous denied when required", "true", context.Background(), "UNAUTHENTICATED", true, ""},
		{"active collaborator", "true", withUser(1), "", false, "ana"},
		{"inactive collaborator", "false", withUser(2), "FORBIDDEN", true, ""},
		{"lookup failure surfaces", "false", withUser(3), "", true, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("AUTH_REQUIRED", tc.required)
			seenUser = ""
			res, err := Auth(tc.ctx, nil, next)
			if !tc.wantErr {
				if err != nil || res != "ok" {
					t.Fatalf("got %v, %v", res, err)
				}
				if seenUser != tc.wantUser {
					t.Fatalf("user in context: got %q want %q", seenUser, tc.wantUser)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected an error")
			}
			if tc.wantCode == "" {
				return
			}
			var gqlErr *gqlerror.Error
			if !errors.As(err, &gqlErr) || gqlErr.Extensions["code"] != tc.wantCode {
				t.Fatalf("got %v", err)
			}
		})
	}
}
