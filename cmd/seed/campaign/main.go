package main

import (
	"context"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"rewards-engine/pkg/celengine"
	"rewards-engine/pkg/config"
	"rewards-engine/pkg/db"
	"rewards-engine/pkg/gen"
	"rewards-engine/pkg/logger"
	"rewards-engine/services/campaign"
	"rewards-engine/services/ledger"
	"rewards-engine/services/membership"
	"rewards-engine/services/task"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		gen.Module,
		celengine.Module,
		campaign.Module,
		fx.Invoke(migrate, seed),
		fx.WithLogger(func() fxevent.Logger { return fxevent.NopLogger }),
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
	_ = app.Stop(ctx)
}

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&campaign.Campaign{},
		&campaign.Package{},
		&membership.Membership{},
		&ledger.PurchaseRecord{},
		&ledger.CampaignEntry{},
		&task.Job{},
	)
}

func seed(svc *campaign.Service) error {
	now := time.Now().UTC()
	end := now.Add(30 * 24 * time.Hour)

	c, err := svc.CreateCampaign(context.Background(), campaign.CreateParams{
		Name:        "Launch Giveaway",
		Description: "Demo campaign created by the seed command",
		Status:      campaign.StatusActive,
		StartAt:     &now,
		EndAt:       &end,
		Packages: []campaign.PackageParams{
			{Name: "Starter", Entries: 10, PriceUSD: decimal.NewFromInt(10)},
			{Name: "Plus", Entries: 60, PriceUSD: decimal.NewFromInt(50)},
			{Name: "Whale", Entries: 150, PriceUSD: decimal.NewFromInt(100)},
			{Name: "Gold Vault", Entries: 400, PriceUSD: decimal.NewFromInt(250), Eligibility: `tier in ["GOLD", "PLATINUM"]`},
		},
	})
	if err != nil {
		return err
	}

	zap.L().Info("seeded campaign", zap.String("campaign_id", c.ID), zap.Int("packages", len(c.Packages)))
	for _, p := range c.Packages {
		zap.L().Info("package", zap.String("package_id", p.ID), zap.String("name", p.Name), zap.String("usd_price", p.PriceUSD.String()))
	}
	return nil
}
