package execution

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Call is one state-changing contract invocation issued by the operator.
type Call struct {
	Stage       string
	Type        StepType
	Contract    string
	Method      string
	Target      common.Address
	Data        []byte
	Description string

	// Submitted, when set, is called with the hash once the node has
	// accepted the transaction and before the receipt wait starts.
	Submitted func(common.Hash)
}

func (c Call) submitted(hash common.Hash) {
	if c.Submitted != nil {
		c.Submitted(hash)
	}
}

type Receipt struct {
	TxHash      common.Hash `json:"tx_hash"`
	BlockNumber uint64      `json:"block_number"`
	GasUsed     uint64      `json:"gas_used"`
}

// Transactor submits a call and blocks until it is mined.
type Transactor interface {
	From() common.Address
	Transact(ctx context.Context, call Call) (Receipt, error)
}

// ChainClient is the subset of *ethclient.Client the transactors use.
type ChainClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

type ExecuteOptions struct {
	Simulate           bool
	PollInterval       time.Duration
	StepTimeout        time.Duration
	GasMultiplier      float64
	MaxFeeGwei         string
	MaxPriorityFeeGwei string
}

func DefaultExecuteOptions() ExecuteOptions {
	return ExecuteOptions{
		Simulate:      true,
		PollInterval:  2 * time.Second,
		StepTimeout:   2 * time.Minute,
		GasMultiplier: 1.2,
	}
}

func (o ExecuteOptions) normalized() ExecuteOptions {
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.StepTimeout <= 0 {
		o.StepTimeout = 2 * time.Minute
	}
	if o.GasMultiplier <= 1 {
		o.GasMultiplier = 1.2
	}
	return o
}

func applyGasMultiplier(gas uint64, multiplier float64) uint64 {
	return uint64(float64(gas) * multiplier)
}
