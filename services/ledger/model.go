package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	GenesisHash = "GENESIS"

	StatusConfirmed = "CONFIRMED"
)

// PurchaseRecord is one accepted payment. Signature is the idempotency key;
// records are chained per campaign through PreviousHash.
type PurchaseRecord struct {
	ID               string          `gorm:"column:id;primaryKey;type:varchar(32)" json:"purchaseId"`
	CampaignID       string          `gorm:"column:campaign_id;type:varchar(32);index;not null" json:"campaignId"`
	PackageID        string          `gorm:"column:package_id;type:varchar(32);not null" json:"packageId"`
	Wallet           string          `gorm:"column:wallet;type:varchar(64);index;not null" json:"wallet"`
	Signature        string          `gorm:"column:signature;type:varchar(128);uniqueIndex;not null" json:"paymentSignature"`
	Currency         string          `gorm:"column:currency;type:varchar(16);not null" json:"currency"`
	Amount           decimal.Decimal `gorm:"column:amount;type:decimal(38,9);not null" json:"actualPaidAmount"`
	ActualUSD        decimal.Decimal `gorm:"column:actual_usd;type:decimal(20,8);not null" json:"actualPaidUsd"`
	EntriesPurchased int64           `gorm:"column:entries_purchased;not null" json:"entriesPurchased"`
	Multiplier       int64           `gorm:"column:multiplier;not null" json:"multiplierApplied"`
	EntriesAwarded   int64           `gorm:"column:entries_awarded;not null" json:"entriesAwarded"`
	Status           string          `gorm:"column:status;type:varchar(16);not null" json:"status"`
	Degraded         bool            `gorm:"column:degraded;not null;default:false" json:"degradedPrice"`
	PreviousHash     string          `gorm:"column:previous_hash;type:varchar(64)" json:"previousHash"`
	Hash             string          `gorm:"column:hash;type:varchar(64)" json:"hash"`
	CreatedAt        time.Time       `gorm:"column:created_at" json:"createdAt"`
}

func (p *PurchaseRecord) HashFields() map[string]string {
	return map[string]string{
		"id":                p.ID,
		"campaign_id":       p.CampaignID,
		"package_id":        p.PackageID,
		"wallet":            p.Wallet,
		"signature":         p.Signature,
		"currency":          p.Currency,
		"amount":            p.Amount.String(),
		"actual_usd":        p.ActualUSD.String(),
		"entries_purchased": fmt.Sprintf("%d", p.EntriesPurchased),
		"multiplier":        fmt.Sprintf("%d", p.Multiplier),
		"entries_awarded":   fmt.Sprintf("%d", p.EntriesAwarded),
		"created_at":        p.CreatedAt.UTC().Format(time.RFC3339Nano),
		"previous_hash":     p.PreviousHash,
	}
}

func (p *PurchaseRecord) GenerateHash() string {
	fields := p.HashFields()
	var keys []string
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, fields[k]))
	}

	joined := strings.Join(parts, "|")
	hash := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(hash[:])
}

// CampaignEntry is a wallet's standing in one campaign. FinalEntries is
// always recomputed from the other components.
type CampaignEntry struct {
	ID               string          `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	CampaignID       string          `gorm:"column:campaign_id;type:varchar(32);not null;uniqueIndex:idx_campaign_wallet" json:"campaignId"`
	Wallet           string          `gorm:"column:wallet;type:varchar(64);not null;uniqueIndex:idx_campaign_wallet" json:"wallet"`
	BaseEntries      int64           `gorm:"column:base_entries;not null;default:0" json:"baseEntries"`
	VIPEntries       int64           `gorm:"column:vip_entries;not null;default:0" json:"vipEntries"`
	PurchasedEntries int64           `gorm:"column:purchased_entries;not null;default:0" json:"purchasedEntries"`
	Multiplier       int64           `gorm:"column:multiplier;not null;default:1" json:"multiplier"`
	FinalEntries     int64           `gorm:"column:final_entries;not null;default:0" json:"finalEntries"`
	TotalSpentUSD    decimal.Decimal `gorm:"column:total_spent_usd;type:decimal(20,8);not null;default:0" json:"totalSpentUsd"`
	Signatures       datatypes.JSON  `gorm:"column:signatures" json:"signatures"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (e *CampaignEntry) SignatureList() ([]string, error) {
	var out []string
	if len(e.Signatures) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(e.Signatures, &out); err != nil {
		return nil, fmt.Errorf("decode signatures of entry %s: %w", e.ID, err)
	}
	return out, nil
}

func (e *CampaignEntry) appendSignature(sig string) error {
	list, err := e.SignatureList()
	if err != nil {
		return err
	}
	b, err := json.Marshal(append(list, sig))
	if err != nil {
		return err
	}
	e.Signatures = datatypes.JSON(b)
	return nil
}
