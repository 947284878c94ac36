package execution

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	clierr "github.com/ggonzalez94/frax-migrate/internal/errors"
	"github.com/ggonzalez94/frax-migrate/internal/execution/signer"
)

// SignerTransactor signs EIP-1559 transactions locally and broadcasts them.
// Concurrent callers receive consecutive nonces.
type SignerTransactor struct {
	client  ChainClient
	signer  signer.Signer
	chainID *big.Int
	opts    ExecuteOptions

	mu         sync.Mutex
	nextNonce  uint64
	nonceKnown bool
}

func NewSignerTransactor(ctx context.Context, client ChainClient, txSigner signer.Signer, opts ExecuteOptions) (*SignerTransactor, error) {
	if client == nil {
		return nil, clierr.New(clierr.CodeInternal, "missing chain client")
	}
	if txSigner == nil {
		return nil, clierr.New(clierr.CodeSigner, "missing signer")
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read chain id", err)
	}
	return &SignerTransactor{client: client, signer: txSigner, chainID: chainID, opts: opts.normalized()}, nil
}

func (t *SignerTransactor) From() common.Address { return t.signer.Address() }

func (t *SignerTransactor) ChainID() *big.Int { return new(big.Int).Set(t.chainID) }

func (t *SignerTransactor) Transact(ctx context.Context, call Call) (Receipt, error) {
	if call.Target == (common.Address{}) {
		return Receipt{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("missing target for %s.%s", call.Contract, call.Method))
	}
	from := t.signer.Address()
	target := call.Target
	msg := ethereum.CallMsg{From: from, To: &target, Value: new(big.Int), Data: call.Data}

	if t.opts.Simulate {
		if _, err := t.client.CallContract(ctx, msg, nil); err != nil {
			return Receipt{}, wrapEVMExecutionError(clierr.CodeActionSim, fmt.Sprintf("simulate %s.%s (eth_call)", call.Contract, call.Method), err)
		}
	}
	gasLimit, err := t.client.EstimateGas(ctx, msg)
	if err != nil {
		return Receipt{}, wrapEVMExecutionError(clierr.CodeActionSim, fmt.Sprintf("estimate gas for %s.%s", call.Contract, call.Method), err)
	}
	gasLimit = applyGasMultiplier(gasLimit, t.opts.GasMultiplier)

	tipCap, err := resolveTipCap(ctx, t.client, t.opts.MaxPriorityFeeGwei)
	if err != nil {
		return Receipt{}, err
	}
	header, err := t.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return Receipt{}, clierr.Wrap(clierr.CodeUnavailable, "fetch latest header", err)
	}
	feeCap, err := resolveFeeCap(header.BaseFee, tipCap, t.opts.MaxFeeGwei)
	if err != nil {
		return Receipt{}, err
	}

	signed, err := t.signAndSend(ctx, &types.DynamicFeeTx{
		ChainID:   t.chainID,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &target,
		Value:     new(big.Int),
		Data:      call.Data,
	})
	if err != nil {
		return Receipt{}, err
	}
	call.submitted(signed.Hash())

	receipt, err := waitForReceipt(ctx, t.client, signed.Hash(), t.opts.PollInterval, t.opts.StepTimeout)
	if err != nil {
		return Receipt{TxHash: signed.Hash()}, err
	}
	out, err := receiptResult(call, receipt)
	if err != nil {
		if _, replayErr := t.client.CallContract(ctx, msg, receipt.BlockNumber); replayErr != nil {
			if reason := decodeRevertFromError(replayErr); reason != "" {
				return out, clierr.Wrap(clierr.CodeReverted, fmt.Sprintf("%s: revert %s", err.Error(), reason), replayErr)
			}
		}
		return out, err
	}
	return out, nil
}

// signAndSend assigns the next nonce, signs and broadcasts while holding the
// nonce lock. A failed broadcast drops the cached nonce so the next call
// re-reads the pending nonce from the node.
func (t *SignerTransactor) signAndSend(ctx context.Context, tx *types.DynamicFeeTx) (*types.Transaction, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.nonceKnown {
		nonce, err := t.client.PendingNonceAt(ctx, t.signer.Address())
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUnavailable, "fetch nonce", err)
		}
		t.nextNonce = nonce
		t.nonceKnown = true
	}
	tx.Nonce = t.nextNonce

	signed, err := t.signer.SignTx(t.chainID, types.NewTx(tx))
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "sign transaction", err)
	}
	if err := t.client.SendTransaction(ctx, signed); err != nil {
		t.nonceKnown = false
		return nil, wrapEVMExecutionError(clierr.CodeUnavailable, "broadcast transaction", err)
	}
	t.nextNonce++
	return signed, nil
}
