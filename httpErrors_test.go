package main

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"bitbucket.org/mmdatafocus/stockcount_backend/stockoracle"
	"bitbucket.org/mmdatafocus/stockcount_backend/utils"
	"github.com/gin-gonic/gin"
)

func TestRespondErrorStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", utils.NewValidationError("qty", "must not be negative"), http.StatusBadRequest},
		{"wrapped validation", fmt.Errorf("record: %w", utils.NewValidationError("qty", "bad")), http.StatusBadRequest},
		{"conflict", utils.NewConflictError("round locked"), http.StatusConflict},
		{"not found", utils.ErrorRecordNotFound, http.StatusNotFound},
		{"oracle not configured", stockoracle.ErrNotConfigured, http.StatusServiceUnavailable},
		{"other", errors.New("driver: bad connection"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			respondError(c, tc.err)
			if w.Code != tc.want {
				t.Fatalf("got %d want %d (%s)", w.Code, tc.want, w.Body.String())
			}
		})
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := splitAndTrim(" https://a.example , ,https://b.example")
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Fatalf("got %v", got)
	}
	if splitAndTrim("  ") != nil {
		t.Fatalf("blank input should give nil")
	}
}
