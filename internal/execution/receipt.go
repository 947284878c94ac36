package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	clierr "github.com/ggonzalez94/frax-migrate/internal/errors"
)

type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// waitForReceipt polls until hash is mined, the step timeout elapses or ctx ends.
// Transient polling failures are ignored until the deadline.
func waitForReceipt(ctx context.Context, reader ReceiptReader, hash common.Hash, poll, timeout time.Duration) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		receipt, err := reader.TransactionReceipt(waitCtx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		select {
		case <-waitCtx.Done():
			return nil, clierr.Wrap(clierr.CodeActionTimeout, fmt.Sprintf("timed out waiting for receipt %s", hash.Hex()), waitCtx.Err())
		case <-ticker.C:
		}
	}
}

func receiptResult(call Call, receipt *types.Receipt) (Receipt, error) {
	out := Receipt{TxHash: receipt.TxHash, GasUsed: receipt.GasUsed}
	if receipt.BlockNumber != nil {
		out.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return out, clierr.New(clierr.CodeReverted, fmt.Sprintf("%s.%s reverted in tx %s", call.Contract, call.Method, receipt.TxHash.Hex()))
	}
	return out, nil
}
