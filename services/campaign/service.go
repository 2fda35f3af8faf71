package campaign

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"rewards-engine/pkg/celengine"
	"rewards-engine/pkg/errutil"
	"rewards-engine/pkg/logger"
	"rewards-engine/pkg/repository"
	"rewards-engine/pkg/sequence"
)

type Service struct {
	db    *gorm.DB
	node  *snowflake.Node
	seq   sequence.Generator
	rules *celengine.Engine

	campaign repository.Repository[Campaign]
}

type ServiceParams struct {
	fx.In

	DB    *gorm.DB
	Node  *snowflake.Node
	Seq   sequence.Generator `optional:"true"`
	Rules *celengine.Engine  `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		seq:      p.Seq,
		rules:    p.Rules,
		campaign: repository.ProvideStore[Campaign](p.DB),
	}
}

// GetCampaign loads a campaign with its packages. A missing campaign is
// returned as nil without error.
func (s *Service) GetCampaign(ctx context.Context, id string) (*Campaign, error) {
	return s.loadCampaign(ctx, "id = ?", id)
}

func (s *Service) GetCampaignBySlug(ctx context.Context, slugName string) (*Campaign, error) {
	return s.loadCampaign(ctx, "slug = ?", slugName)
}

func (s *Service) loadCampaign(ctx context.Context, query string, arg string) (*Campaign, error) {
	var c Campaign
	err := s.db.WithContext(ctx).Preload("Packages").Where(query, arg).Take(&c).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		logger.L(ctx).Error("failed to load campaign", zap.String("lookup", arg), zap.Error(err))
		return nil, err
	}
	return &c, nil
}

type PackageParams struct {
	Name     string
	Entries  int64
	PriceUSD decimal.Decimal
	// Eligibility requires the celengine rules to be configured.
	Eligibility string
}

type CreateParams struct {
	Name        string
	Slug        string
	Description string
	Status      Status
	StartAt     *time.Time
	EndAt       *time.Time
	Packages    []PackageParams
}

func (s *Service) CreateCampaign(ctx context.Context, p CreateParams) (*Campaign, error) {
	if p.Name == "" {
		return nil, errutil.BadRequest("name is required", nil)
	}
	for _, pkg := range p.Packages {
		if pkg.Entries <= 0 || !pkg.PriceUSD.IsPositive() {
			return nil, errutil.BadRequest("package entries and price must be positive", nil)
		}
		if pkg.Eligibility == "" {
			continue
		}
		if s.rules == nil {
			return nil, errutil.BadRequest("package eligibility rules are not enabled", nil)
		}
		if err := s.rules.Validate(pkg.Eligibility); err != nil {
			return nil, errutil.BadRequest("invalid package eligibility expression", err)
		}
	}
	if p.Status == "" {
		p.Status = StatusUpcoming
	}

	id := s.node.Generate().String()
	slugName := p.Slug
	if slugName == "" {
		slugName = slug.Make(p.Name)
	}
	if slugName == "" {
		slugName = id
	}
	exist, err := s.campaign.FindOne(ctx, &Campaign{Slug: slugName})
	if err != nil {
		logger.L(ctx).Error("failed to check campaign slug", zap.String("slug", slugName), zap.Error(err))
		return nil, err
	}
	if exist != nil {
		return nil, errutil.Conflict("campaign slug already exists", nil)
	}

	c := Campaign{
		ID:          id,
		Slug:        slugName,
		Name:        p.Name,
		Description: p.Description,
		Status:      p.Status,
		StartAt:     p.StartAt,
		EndAt:       p.EndAt,
	}
	if s.seq != nil {
		code, err := s.seq.NextCampaignCode(ctx)
		if err != nil {
			zap.L().Warn("failed to generate campaign code", zap.Error(err))
		}
		c.Code = code
	}
	for _, pkg := range p.Packages {
		c.Packages = append(c.Packages, Package{
			ID:          s.node.Generate().String(),
			CampaignID:  c.ID,
			Name:        pkg.Name,
			Entries:     pkg.Entries,
			PriceUSD:    pkg.PriceUSD,
			Eligibility: pkg.Eligibility,
		})
	}

	if err := s.campaign.Create(ctx, &c); err != nil {
		logger.L(ctx).Error("failed to create campaign", zap.Error(err))
		return nil, err
	}

	return &c, nil
}

// UpdateStatus moves a campaign along upcoming -> active -> ended -> drawn.
func (s *Service) UpdateStatus(ctx context.Context, id string, to Status) (*Campaign, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.campaign.WithTrx(tx).FindOne(ctx, &Campaign{ID: id})
		if err != nil {
			return err
		}
		if current == nil {
			return errutil.NotFound("campaign not found", nil)
		}
		if !current.Status.CanTransitionTo(to) {
			return errutil.UnprocessableEntity("invalid status transition from "+string(current.Status)+" to "+string(to), nil)
		}
		return s.campaign.WithTrx(tx).Update(ctx, id, map[string]any{
			"status":     to,
			"updated_at": time.Now(),
		})
	})
	if err != nil {
		return nil, err
	}

	return s.GetCampaign(ctx, id)
}
