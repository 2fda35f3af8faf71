package membership

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rewards-engine/pkg/errutil"
)

func RegisterRoutes(r *gin.Engine, s *Service) {
	r.GET("/v1/memberships/:wallet", s.handleGet)
}

func (s *Service) handleGet(c *gin.Context) {
	snap, err := s.GetMembership(c.Request.Context(), c.Param("wallet"))
	if err != nil {
		_ = c.Error(errutil.Internal("failed to load membership", err))
		return
	}
	c.JSON(http.StatusOK, snap)
}
