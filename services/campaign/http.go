package campaign

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rewards-engine/pkg/errutil"
)

func RegisterRoutes(r *gin.Engine, s *Service) {
	g := r.Group("/v1/campaigns")
	g.GET("/:campaignId", s.handleGet)
}

func (s *Service) handleGet(c *gin.Context) {
	ctx := c.Request.Context()
	key := c.Param("campaignId")

	cmp, err := s.GetCampaign(ctx, key)
	if err == nil && cmp == nil {
		cmp, err = s.GetCampaignBySlug(ctx, key)
	}
	if err != nil {
		_ = c.Error(errutil.Internal("failed to load campaign", err))
		return
	}
	if cmp == nil {
		_ = c.Error(errutil.NotFound("campaign not found", nil))
		return
	}
	c.JSON(http.StatusOK, cmp)
}
