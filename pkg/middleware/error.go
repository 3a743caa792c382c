package middleware

import (
	"errors"
	"net/http"

	"flyerportal/pkg/errutil"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Error renders the last error attached with c.Error. BaseErrors keep their
// status; anything else is logged and reported as an internal error.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		ginErr := c.Errors.Last()
		if ginErr == nil || c.Writer.Written() {
			return
		}

		var be errutil.BaseError
		if errors.As(ginErr.Err, &be) {
			c.JSON(be.Code.HTTPStatus(), be.JSON())
			return
		}

		zap.L().Error("unhandled request error",
			zap.String("path", c.FullPath()),
			zap.String("request_id", RequestID(c)),
			zap.Error(ginErr.Err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Internal server error",
		})
	}
}
