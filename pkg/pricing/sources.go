package pricing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

const (
	DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3"
	DefaultJupiterURL   = "https://api.jup.ag/price/v2"
)

func newHTTPClient(timeout time.Duration) *resty.Client {
	return resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
}

// CoinGecko queries /simple/price by coin id.
type CoinGecko struct {
	name     string
	baseURL  string
	apiKey   string
	nativeID string
	rewardID string
	client   *resty.Client
}

func NewCoinGecko(name, baseURL, apiKey, nativeID, rewardID string, timeout time.Duration) *CoinGecko {
	if baseURL == "" {
		baseURL = DefaultCoinGeckoURL
	}
	if name == "" {
		name = "coingecko"
	}
	return &CoinGecko{
		name:     name,
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		nativeID: nativeID,
		rewardID: rewardID,
		client:   newHTTPClient(timeout),
	}
}

func (c *CoinGecko) Name() string { return c.name }

type coinGeckoPrice struct {
	USD           decimal.Decimal `json:"usd"`
	LastUpdatedAt int64           `json:"last_updated_at"`
}

func (c *CoinGecko) Fetch(ctx context.Context) (Quote, error) {
	var out map[string]coinGeckoPrice

	req := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"ids":                     c.nativeID + "," + c.rewardID,
			"vs_currencies":           "usd",
			"include_last_updated_at": "true",
		}).
		SetResult(&out)
	if c.apiKey != "" {
		req.SetHeader("x-cg-pro-api-key", c.apiKey)
	}

	resp, err := req.Get(c.baseURL + "/simple/price")
	if err != nil {
		return Quote{}, err
	}
	if resp.IsError() {
		return Quote{}, fmt.Errorf("coingecko: status %d", resp.StatusCode())
	}

	native, ok := out[c.nativeID]
	if !ok {
		return Quote{}, fmt.Errorf("coingecko: no price for %s", c.nativeID)
	}
	reward, ok := out[c.rewardID]
	if !ok {
		return Quote{}, fmt.Errorf("coingecko: no price for %s", c.rewardID)
	}

	return Quote{NativeUSD: native.USD, RewardTokenUSD: reward.USD}, nil
}

// Jupiter queries the price API by mint address.
type Jupiter struct {
	name       string
	baseURL    string
	nativeMint string
	rewardMint string
	client     *resty.Client
}

func NewJupiter(name, baseURL, nativeMint, rewardMint string, timeout time.Duration) *Jupiter {
	if baseURL == "" {
		baseURL = DefaultJupiterURL
	}
	if name == "" {
		name = "jupiter"
	}
	return &Jupiter{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		nativeMint: nativeMint,
		rewardMint: rewardMint,
		client:     newHTTPClient(timeout),
	}
}

func (j *Jupiter) Name() string { return j.name }

type jupiterResponse struct {
	Data map[string]*struct {
		ID    string          `json:"id"`
		Price decimal.Decimal `json:"price"`
	} `json:"data"`
}

func (j *Jupiter) Fetch(ctx context.Context) (Quote, error) {
	var out jupiterResponse

	resp, err := j.client.R().
		SetContext(ctx).
		SetQueryParam("ids", j.nativeMint+","+j.rewardMint).
		SetResult(&out).
		Get(j.baseURL)
	if err != nil {
		return Quote{}, err
	}
	if resp.IsError() {
		return Quote{}, fmt.Errorf("jupiter: status %d", resp.StatusCode())
	}

	native := out.Data[j.nativeMint]
	if native == nil {
		return Quote{}, fmt.Errorf("jupiter: no price for %s", j.nativeMint)
	}
	reward := out.Data[j.rewardMint]
	if reward == nil {
		return Quote{}, fmt.Errorf("jupiter: no price for %s", j.rewardMint)
	}

	return Quote{NativeUSD: native.Price, RewardTokenUSD: reward.Price}, nil
}
