package purchase

import (
	"rewards-engine/pkg/errutil"
	"rewards-engine/services/ledger"
)

type Request struct {
	CampaignID       string `json:"campaignId"`
	PackageID        string `json:"packageId"`
	Wallet           string `json:"wallet"`
	PaymentSignature string `json:"paymentSignature"`
	Currency         string `json:"currency"`
}

type Response struct {
	Success           bool   `json:"success"`
	PurchaseID        string `json:"purchaseId"`
	EntriesAwarded    int64  `json:"entriesAwarded"`
	MultiplierApplied int64  `json:"multiplierApplied"`
	ActualPaidUSD     string `json:"actualPaidUsd"`
	ActualPaidAmount  string `json:"actualPaidAmount"`
	Currency          string `json:"currency"`
	DegradedPrice     bool   `json:"degradedPrice,omitempty"`
}

func responseFrom(rec *ledger.PurchaseRecord) *Response {
	return &Response{
		Success:           true,
		PurchaseID:        rec.ID,
		EntriesAwarded:    rec.EntriesAwarded,
		MultiplierApplied: rec.Multiplier,
		ActualPaidUSD:     rec.ActualUSD.StringFixed(2),
		ActualPaidAmount:  rec.Amount.String(),
		Currency:          rec.Currency,
		DegradedPrice:     rec.Degraded,
	}
}

type ErrorResponse struct {
	Success    bool             `json:"success"`
	ErrorKind  errutil.Kind     `json:"errorKind"`
	Detail     string           `json:"detail"`
	Retryable  bool             `json:"retryable"`
	RetryAfter int64            `json:"retryAfterSeconds,omitempty"`
	Details    []errutil.Detail `json:"details,omitempty"`
}

func errorFrom(e *errutil.Error) ErrorResponse {
	resp := ErrorResponse{
		ErrorKind: e.Kind,
		Detail:    e.Detail,
		Retryable: e.Retryable(),
		Details:   e.Details,
	}
	if resp.Retryable {
		resp.RetryAfter = int64(e.RetryAfter.Seconds())
	}
	return resp
}
