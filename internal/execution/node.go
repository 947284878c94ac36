package execution

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	clierr "github.com/ggonzalez94/frax-migrate/internal/errors"
)

// RawCaller is satisfied by *rpc.Client.
type RawCaller interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
}

type sendTxArgs struct {
	From common.Address  `json:"from"`
	To   *common.Address `json:"to"`
	Gas  *hexutil.Uint64 `json:"gas,omitempty"`
	Data hexutil.Bytes   `json:"data"`
}

// NodeTransactor sends from an account the node keeps unlocked, as a local
// test chain does. The node assigns nonces and signs.
type NodeTransactor struct {
	caller RawCaller
	client ChainClient
	from   common.Address
	opts   ExecuteOptions
}

// NewNodeTransactor uses from when set, otherwise eth_accounts[index].
func NewNodeTransactor(ctx context.Context, caller RawCaller, client ChainClient, from common.Address, index int, opts ExecuteOptions) (*NodeTransactor, error) {
	if caller == nil || client == nil {
		return nil, clierr.New(clierr.CodeInternal, "missing rpc client")
	}
	if from == (common.Address{}) {
		var accounts []common.Address
		if err := caller.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
			return nil, clierr.Wrap(clierr.CodeUnavailable, "list node accounts", err)
		}
		if index < 0 || index >= len(accounts) {
			return nil, clierr.New(clierr.CodeSigner, fmt.Sprintf("node exposes %d accounts; operator index %d is out of range", len(accounts), index))
		}
		from = accounts[index]
	}
	return &NodeTransactor{caller: caller, client: client, from: from, opts: opts.normalized()}, nil
}

func (t *NodeTransactor) From() common.Address { return t.from }

func (t *NodeTransactor) Transact(ctx context.Context, call Call) (Receipt, error) {
	if call.Target == (common.Address{}) {
		return Receipt{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("missing target for %s.%s", call.Contract, call.Method))
	}
	target := call.Target
	msg := ethereum.CallMsg{From: t.from, To: &target, Value: new(big.Int), Data: call.Data}
	if t.opts.Simulate {
		if _, err := t.client.CallContract(ctx, msg, nil); err != nil {
			return Receipt{}, wrapEVMExecutionError(clierr.CodeActionSim, fmt.Sprintf("simulate %s.%s (eth_call)", call.Contract, call.Method), err)
		}
	}
	gas, err := t.client.EstimateGas(ctx, msg)
	if err != nil {
		return Receipt{}, wrapEVMExecutionError(clierr.CodeActionSim, fmt.Sprintf("estimate gas for %s.%s", call.Contract, call.Method), err)
	}
	gasLimit := hexutil.Uint64(applyGasMultiplier(gas, t.opts.GasMultiplier))

	var hash common.Hash
	args := sendTxArgs{From: t.from, To: &target, Gas: &gasLimit, Data: call.Data}
	if err := t.caller.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return Receipt{}, wrapEVMExecutionError(clierr.CodeUnavailable, "eth_sendTransaction", err)
	}
	call.submitted(hash)
	receipt, err := waitForReceipt(ctx, t.client, hash, t.opts.PollInterval, t.opts.StepTimeout)
	if err != nil {
		return Receipt{TxHash: hash}, err
	}
	return receiptResult(call, receipt)
}
