package ledger

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rewards-engine/pkg/db/pagination"
	"rewards-engine/pkg/errutil"
)

func RegisterRoutes(r *gin.Engine, s *Service) {
	g := r.Group("/v1/campaigns/:campaignId")
	g.GET("/purchases", s.handleListPurchases)
	g.GET("/entries/:wallet", s.handleGetEntry)
	g.GET("/chain/verify", s.handleVerifyChain)
}

func (s *Service) handleListPurchases(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		_ = c.Error(errutil.BadRequest("invalid pagination", err))
		return
	}

	records, info, err := s.ListPurchases(c.Request.Context(), c.Param("campaignId"), page)
	if err != nil {
		_ = c.Error(errutil.Internal("failed to list purchases", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      records,
		"page_info": info,
	})
}

func (s *Service) handleGetEntry(c *gin.Context) {
	entry, err := s.GetEntry(c.Request.Context(), c.Param("campaignId"), c.Param("wallet"))
	if err != nil {
		_ = c.Error(errutil.Internal("failed to load entries", err))
		return
	}
	if entry == nil {
		_ = c.Error(errutil.NotFound("no entries for wallet in campaign", nil))
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (s *Service) handleVerifyChain(c *gin.Context) {
	report, err := s.VerifyChain(c.Request.Context(), c.Param("campaignId"))
	if err != nil {
		_ = c.Error(errutil.Internal("failed to verify purchase chain", err))
		return
	}
	c.JSON(http.StatusOK, report)
}
