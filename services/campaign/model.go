package campaign

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusUpcoming Status = "upcoming"
	StatusActive   Status = "active"
	StatusEnded    Status = "ended"
	StatusDrawn    Status = "drawn"
)

// next lists the statuses a campaign may move to from each status.
var next = map[Status][]Status{
	StatusUpcoming: {StatusActive, StatusEnded},
	StatusActive:   {StatusEnded},
	StatusEnded:    {StatusDrawn},
}

func (s Status) CanTransitionTo(to Status) bool {
	for _, n := range next[s] {
		if n == to {
			return true
		}
	}
	return false
}

// Campaign is a time-boxed reward pool with purchasable entry packages.
// TotalEntries is only changed by the purchase ledger.
type Campaign struct {
	ID           string     `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	Code         string     `gorm:"column:code;type:varchar(32);index" json:"code"`
	Slug         string     `gorm:"column:slug;type:varchar(255);uniqueIndex" json:"slug"`
	Name         string     `gorm:"column:name;type:varchar(255);not null" json:"name"`
	Description  string     `gorm:"column:description;type:text" json:"description"`
	Status       Status     `gorm:"column:status;type:varchar(20);not null;default:'upcoming'" json:"status"`
	StartAt      *time.Time `gorm:"column:start_at" json:"startAt,omitempty"`
	EndAt        *time.Time `gorm:"column:end_at" json:"endAt,omitempty"`
	TotalEntries int64      `gorm:"column:total_entries;not null;default:0" json:"totalEntries"`
	Packages     []Package  `gorm:"foreignKey:CampaignID" json:"packages"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

type Package struct {
	ID         string          `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	CampaignID string          `gorm:"column:campaign_id;type:varchar(32);index;not null" json:"campaignId"`
	Name       string          `gorm:"column:name;type:varchar(255)" json:"name"`
	Entries    int64           `gorm:"column:entries;not null" json:"entries"`
	PriceUSD   decimal.Decimal `gorm:"column:price_usd;type:decimal(20,8);not null" json:"usdPrice"`
	// Eligibility is an optional boolean expression over the buyer's
	// membership, e.g. `tier in ["GOLD", "PLATINUM"]`.
	Eligibility string    `gorm:"column:eligibility;type:text" json:"eligibility,omitempty"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"-"`
}

// IsOpen reports whether purchases are accepted at now.
func (c *Campaign) IsOpen(now time.Time) bool {
	if c.Status != StatusActive {
		return false
	}
	if c.StartAt != nil && now.Before(*c.StartAt) {
		return false
	}
	if c.EndAt != nil && now.After(*c.EndAt) {
		return false
	}
	return true
}

func (c *Campaign) Package(id string) *Package {
	for i := range c.Packages {
		if c.Packages[i].ID == id {
			return &c.Packages[i]
		}
	}
	return nil
}
