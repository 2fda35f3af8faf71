package chain

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
)

type solanaFetcher struct {
	client *rpc.Client
}

// NewSolanaFetcher returns a Fetcher backed by a Solana JSON-RPC endpoint.
func NewSolanaFetcher(url string) Fetcher {
	return &solanaFetcher{client: rpc.New(url)}
}

func (f *solanaFetcher) GetTransaction(ctx context.Context, signature string) (*Transaction, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, err
	}

	maxVersion := uint64(0)
	out, err := f.client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if out == nil || out.Transaction == nil || out.Meta == nil {
		return nil, ErrNotFound
	}

	return convertTransaction(signature, out)
}

func convertTransaction(signature string, out *rpc.GetTransactionResult) (*Transaction, error) {
	decoded, err := out.Transaction.GetTransaction()
	if err != nil {
		return nil, err
	}

	meta := out.Meta
	keys := make([]string, 0, len(decoded.Message.AccountKeys)+len(meta.LoadedAddresses.Writable)+len(meta.LoadedAddresses.ReadOnly))
	for _, k := range decoded.Message.AccountKeys {
		keys = append(keys, k.String())
	}
	for _, k := range meta.LoadedAddresses.Writable {
		keys = append(keys, k.String())
	}
	for _, k := range meta.LoadedAddresses.ReadOnly {
		keys = append(keys, k.String())
	}

	tx := &Transaction{
		Signature:             signature,
		Slot:                  out.Slot,
		AccountKeys:           keys,
		NumRequiredSignatures: int(decoded.Message.Header.NumRequiredSignatures),
		Fee:                   meta.Fee,
		PreBalances:           meta.PreBalances,
		PostBalances:          meta.PostBalances,
		Failed:                meta.Err != nil,
	}
	if out.BlockTime != nil {
		bt := out.BlockTime.Time().UTC()
		tx.BlockTime = &bt
	}
	if meta.Err != nil {
		tx.Err = errString(meta.Err)
	}

	if tx.PreTokenBalances, err = convertTokenBalances(meta.PreTokenBalances); err != nil {
		return nil, err
	}
	if tx.PostTokenBalances, err = convertTokenBalances(meta.PostTokenBalances); err != nil {
		return nil, err
	}

	return tx, nil
}

func convertTokenBalances(in []rpc.TokenBalance) ([]TokenBalance, error) {
	out := make([]TokenBalance, 0, len(in))
	for _, b := range in {
		tb := TokenBalance{
			AccountIndex: b.AccountIndex,
			Mint:         b.Mint.String(),
			Amount:       decimal.Zero,
		}
		if b.Owner != nil {
			tb.Owner = b.Owner.String()
		}
		if b.UiTokenAmount != nil {
			amount, err := decimal.NewFromString(b.UiTokenAmount.Amount)
			if err != nil {
				return nil, err
			}
			tb.Amount = amount
			tb.Decimals = int32(b.UiTokenAmount.Decimals)
		}
		out = append(out, tb)
	}
	return out, nil
}

func errString(v any) string {
	switch e := v.(type) {
	case string:
		return e
	case error:
		return e.Error()
	default:
		return "instruction error"
	}
}
