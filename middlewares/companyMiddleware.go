package middlewares

import (
	"net/http"
	"strings"

	"bitbucket.org/mmdatafocus/stockcount_backend/config"
	"bitbucket.org/mmdatafocus/stockcount_backend/utils"
	"github.com/gin-gonic/gin"
)

// CompanyMiddleware picks the ERP company for the request from the "x-company-code"
// header, defaulting to ERP_COMPANY_CODE.
func CompanyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		code := strings.TrimSpace(c.GetHeader("x-company-code"))
		if code == "" {
			code = config.CompanyCode()
		}
		if err := utils.ValidateCompanyCode(code); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			c.Abort()
			return
		}
		c.Request = c.Request.WithContext(utils.SetCompanyCodeInContext(c.Request.Context(), code))
		c.Next()
	}
}
