package purchase

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"rewards-engine/pkg/errutil"
)

func RegisterRoutes(r *gin.Engine, s *Service) {
	r.POST("/v1/purchases", s.handlePurchase)
	r.GET("/v1/purchases/:signature", s.handleLookup)
	r.POST("/v1/campaigns/:campaignId/entries/:wallet/sync", s.handleSync)
}

func (s *Service) handlePurchase(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errutil.Fail(errutil.KindInvalidRequest, "request body must be a JSON purchase", errutil.WithCause(err)))
		return
	}

	resp, err := s.Purchase(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Service) handleLookup(c *gin.Context) {
	resp, err := s.Lookup(c.Request.Context(), c.Param("signature"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Service) handleSync(c *gin.Context) {
	entry, err := s.SyncEntries(c.Request.Context(), c.Param("campaignId"), c.Param("wallet"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func writeError(c *gin.Context, err error) {
	var e *errutil.Error
	if !errors.As(err, &e) {
		e = errutil.Fail(errutil.KindUnavailable, notVisibleDetail, errutil.WithCause(err))
	}

	_ = c.Error(err).SetType(gin.ErrorTypePrivate)

	if e.Retryable() && e.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(int(e.RetryAfter.Seconds())))
	}
	c.AbortWithStatusJSON(e.Status().HTTPStatus(), errorFrom(e))
}
