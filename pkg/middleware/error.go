package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"rewards-engine/pkg/errutil"
)

// Error renders the last error attached with c.Error when the handler did
// not write a response itself.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err

		var be errutil.BaseError
		if errors.As(err, &be) {
			c.JSON(be.Status().HTTPStatus(), be.JSON())
			return
		}

		c.JSON(http.StatusInternalServerError, errutil.BaseError{
			Code:    errutil.StatusInternal,
			Message: "internal error",
		}.JSON())
	}
}
