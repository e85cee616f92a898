package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/stockcount_backend/graph"
	"bitbucket.org/mmdatafocus/stockcount_backend/models/reports"
	"bitbucket.org/mmdatafocus/stockcount_backend/utils"
	"github.com/gin-gonic/gin"
)

type pendingExportQuery struct {
	Date  string `form:"date" binding:"omitempty,datetime=2006-01-02"`
	Floor string `form:"floor" binding:"omitempty,max=50"`
}

// pendingReviewExportHandler streams the pending review list of a day (default today) as xlsx.
func pendingReviewExportHandler(current func() *graph.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var query pendingExportQuery
		if err := c.ShouldBindQuery(&query); err != nil {
			respondBindError(c, err)
			return
		}
		if query.Date == "" {
			query.Date = time.Now().UTC().Format(utils.DateLayout)
		}
		date, err := utils.ParseDate(query.Date)
		if err != nil {
			respondError(c, err)
			return
		}
		s := current()
		if s == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		items, err := s.Ledger.PendingReview(c.Request.Context(), date, strings.TrimSpace(query.Floor))
		if err != nil {
			respondError(c, err)
			return
		}
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=pending-review-%s.xlsx", date.Format(utils.DateLayout)))
		c.Status(http.StatusOK)
		if err := reports.WritePendingReview(c.Writer, items); err != nil {
			_ = c.Error(err)
		}
	}
}
