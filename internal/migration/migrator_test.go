package migration

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/frax-migrate/internal/contracts"
	clierr "github.com/ggonzalez94/frax-migrate/internal/errors"
	"github.com/ggonzalez94/frax-migrate/internal/execution"
	"github.com/ggonzalez94/frax-migrate/internal/registry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

var operator = common.HexToAddress("0x00000000000000000000000000000000000000aa")

type staticResolver struct {
	set   contracts.Set
	err   error
	calls int
}

func (r *staticResolver) Resolve(context.Context) (contracts.Set, error) {
	r.calls++
	return r.set, r.err
}

func testSet() contracts.Set {
	handles := make([]contracts.Handle, 0, len(registry.Catalog()))
	for i, spec := range registry.Catalog() {
		handles = append(handles, contracts.Handle{
			Name:     spec.Name,
			Artifact: spec.LocalArtifact,
			Address:  common.BigToAddress(big.NewInt(int64(0x1000 + i))),
		})
	}
	return contracts.NewSet(handles...)
}

type sentCall struct {
	call    execution.Call
	method  string
	args    []any
	started int
	ended   int
}

// recorder is a Transactor that decodes every call and records its start and
// end positions in one global sequence.
type recorder struct {
	mu      sync.Mutex
	seq     int
	calls   []*sentCall
	failOn  func(execution.Call) bool
	barrier map[string]int
	started map[string]int

	inFlight func(common.Hash)
}

func newRecorder() *recorder {
	return &recorder{barrier: map[string]int{}, started: map[string]int{}}
}

func (r *recorder) From() common.Address { return operator }

func (r *recorder) Transact(ctx context.Context, call execution.Call) (execution.Receipt, error) {
	method, args := decode(call.Data)

	r.mu.Lock()
	r.seq++
	sc := &sentCall{call: call, method: method, args: args, started: r.seq}
	r.calls = append(r.calls, sc)
	r.started[call.Stage]++
	if want := r.barrier[call.Stage]; want > 0 {
		deadline := time.Now().Add(2 * time.Second)
		for r.started[call.Stage] < want && time.Now().Before(deadline) {
			r.mu.Unlock()
			time.Sleep(time.Millisecond)
			r.mu.Lock()
		}
		if r.started[call.Stage] < want {
			r.mu.Unlock()
			return execution.Receipt{}, errors.New("batch members were not started together")
		}
	}
	hash := common.BigToHash(big.NewInt(int64(sc.started)))
	inFlight := r.inFlight
	r.mu.Unlock()

	if call.Submitted != nil {
		call.Submitted(hash)
	}
	if inFlight != nil {
		inFlight(hash)
	}
	time.Sleep(time.Millisecond)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	sc.ended = r.seq
	if r.failOn != nil && r.failOn(call) {
		return execution.Receipt{TxHash: hash}, clierr.New(clierr.CodeReverted, "reverted")
	}
	return execution.Receipt{TxHash: hash, BlockNumber: uint64(sc.ended)}, nil
}

func (r *recorder) byStage(stage string) []*sentCall {
	var out []*sentCall
	for _, c := range r.calls {
		if c.call.Stage == stage {
			out = append(out, c)
		}
	}
	return out
}

func decode(data []byte) (string, []any) {
	for _, contractABI := range []abi.ABI{registry.ERC20, registry.SwapToPrice, registry.PairOracle} {
		method, err := contractABI.MethodById(data[:4])
		if err != nil {
			continue
		}
		args, err := method.Inputs.Unpack(data[4:])
		if err != nil {
			return method.Name, nil
		}
		return method.Name, args
	}
	return "", nil
}

func addressOf(t *testing.T, set contracts.Set, name registry.Name) common.Address {
	t.Helper()
	addr, err := set.Address(name)
	require.NoError(t, err)
	return addr
}

func TestRunIssuesEveryStageInOrder(t *testing.T) {
	set := testSet()
	rec := newRecorder()
	report, err := New(&staticResolver{set: set}, rec, Options{}).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 43, report.Calls)
	require.Len(t, report.Stages, 6)

	order := []string{StageApproveRouter, StageApproveSwapHelper, StageSwapToPrice, StageOraclePeriodShrink, StageOracleUpdate, StageOraclePeriodRestore}
	for i, name := range order {
		require.Equal(t, name, report.Stages[i].Name)
	}

	for i := 0; i+1 < len(order); i++ {
		lastEnd := 0
		for _, c := range rec.byStage(order[i]) {
			lastEnd = max(lastEnd, c.ended)
		}
		for _, c := range rec.byStage(order[i+1]) {
			require.Greater(t, c.started, lastEnd, "%s started before %s settled", order[i+1], order[i])
		}
	}
}

func TestApprovalsCoverFiveTokensForBothSpenders(t *testing.T) {
	set := testSet()
	rec := newRecorder()
	_, err := New(&staticResolver{set: set}, rec, Options{}).Run(context.Background())
	require.NoError(t, err)

	want := map[registry.Name]*big.Int{}
	for _, a := range DefaultPlan().Allowances {
		want[a.Token] = a.Amount
	}
	require.Equal(t, "1000000000000000000000000", want[registry.FRAX].String())
	require.Equal(t, "5000000000000000000000000", want[registry.FXS].String())

	approvals := append(rec.byStage(StageApproveRouter), rec.byStage(StageApproveSwapHelper)...)
	require.Len(t, approvals, 10)
	for stage, spender := range map[string]registry.Name{StageApproveRouter: registry.Router, StageApproveSwapHelper: registry.SwapHelper} {
		seen := map[registry.Name]bool{}
		for _, c := range rec.byStage(stage) {
			require.Equal(t, "approve", c.method)
			token := registry.Name(c.call.Contract)
			require.Equal(t, addressOf(t, set, token), c.call.Target)
			require.Equal(t, addressOf(t, set, spender), c.args[0])
			require.Zero(t, want[token].Cmp(c.args[1].(*big.Int)), "amount for %s", token)
			seen[token] = true
		}
		require.Len(t, seen, 5)
	}
}

func TestSwapsFollowDeclaredOrderAndPrices(t *testing.T) {
	set := testSet()
	rec := newRecorder()
	_, err := New(&staticResolver{set: set}, rec, Options{}).Run(context.Background())
	require.NoError(t, err)

	expected := []struct {
		a, b           registry.Name
		priceA, priceB int64
	}{
		{registry.FRAX, registry.WETH, 365000000, 1000000},
		{registry.FRAX, registry.USDC, 1008000, 997000},
		{registry.FRAX, registry.USDT, 990000, 1005000},
		{registry.FXS, registry.WETH, 1855000000, 1000000},
		{registry.FXS, registry.USDC, 5200000, 1000000},
		{registry.FXS, registry.USDT, 5100000, 1000000},
	}
	swaps := rec.byStage(StageSwapToPrice)
	require.Len(t, swaps, len(expected))
	maxSpend, _ := new(big.Int).SetString("100000000000000000000", 10)
	for i, want := range expected {
		c := swaps[i]
		require.Equal(t, "swapToPrice", c.method)
		require.Equal(t, addressOf(t, set, registry.SwapHelper), c.call.Target)
		require.Equal(t, addressOf(t, set, want.a), c.args[0])
		require.Equal(t, addressOf(t, set, want.b), c.args[1])
		require.Zero(t, big.NewInt(want.priceA).Cmp(c.args[2].(*big.Int)))
		require.Zero(t, big.NewInt(want.priceB).Cmp(c.args[3].(*big.Int)))
		require.Zero(t, maxSpend.Cmp(c.args[4].(*big.Int)))
		require.Zero(t, maxSpend.Cmp(c.args[5].(*big.Int)))
		require.Equal(t, operator, c.args[6])
		require.Zero(t, big.NewInt(2105300114).Cmp(c.args[7].(*big.Int)))
		if i > 0 {
			require.Greater(t, c.started, swaps[i-1].ended, "swaps must not overlap")
		}
	}
}

func TestOraclePhasesCoverAllNineOracles(t *testing.T) {
	set := testSet()
	rec := newRecorder()
	_, err := New(&staticResolver{set: set}, rec, Options{}).Run(context.Background())
	require.NoError(t, err)

	phases := []struct {
		stage  string
		method string
		period int64
	}{
		{StageOraclePeriodShrink, "setPeriod", 1},
		{StageOracleUpdate, "update", 0},
		{StageOraclePeriodRestore, "setPeriod", 3600},
	}
	for _, phase := range phases {
		calls := rec.byStage(phase.stage)
		require.Len(t, calls, 9, phase.stage)
		targets := map[common.Address]bool{}
		for _, c := range calls {
			require.Equal(t, phase.method, c.method)
			if phase.period > 0 {
				require.Zero(t, big.NewInt(phase.period).Cmp(c.args[0].(*big.Int)))
			}
			targets[c.call.Target] = true
		}
		for _, oracle := range registry.Oracles() {
			require.True(t, targets[addressOf(t, set, oracle)], "%s missing from %s", oracle, phase.stage)
		}
	}
}

func TestBatchStartsEveryCallBeforeWaiting(t *testing.T) {
	rec := newRecorder()
	rec.barrier[StageApproveRouter] = 5
	rec.barrier[StageOracleUpdate] = 9
	_, err := New(&staticResolver{set: testSet()}, rec, Options{}).Run(context.Background())
	require.NoError(t, err)
}

func TestBatchFailureStopsLaterStages(t *testing.T) {
	set := testSet()
	rec := newRecorder()
	failing := addressOf(t, set, registry.OracleFXSUSDC)
	rec.failOn = func(c execution.Call) bool {
		return c.Stage == StageOracleUpdate && c.Target == failing
	}
	metrics := NewMetrics(prometheus.NewRegistry())

	report, err := New(&staticResolver{set: set}, rec, Options{Metrics: metrics}).Run(context.Background())
	require.Error(t, err)
	require.True(t, clierr.HasCode(err, clierr.CodeReverted), "got %v", err)
	require.Contains(t, err.Error(), StageOracleUpdate)

	require.Len(t, rec.byStage(StageOracleUpdate), 9, "siblings of the failing call still run")
	require.Empty(t, rec.byStage(StageOraclePeriodRestore))
	require.Len(t, report.Stages, 5)
	require.NotEmpty(t, report.Stages[4].Error)

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.callsTotal.WithLabelValues(StageOracleUpdate, "update", "error")))
	require.Equal(t, 8.0, testutil.ToFloat64(metrics.callsTotal.WithLabelValues(StageOracleUpdate, "update", "ok")))
	require.Equal(t, 0.0, testutil.ToFloat64(metrics.callsTotal.WithLabelValues(StageOraclePeriodRestore, "setPeriod", "ok")))
}

func TestSequentialFailureStopsRemainingSwaps(t *testing.T) {
	rec := newRecorder()
	rec.failOn = func(c execution.Call) bool { return c.Description == "FRAX / USDT" }
	report, err := New(&staticResolver{set: testSet()}, rec, Options{}).Run(context.Background())
	require.Error(t, err)
	require.Len(t, rec.byStage(StageSwapToPrice), 3)
	require.Empty(t, rec.byStage(StageOraclePeriodShrink))
	require.Len(t, report.Stages[2].Calls, 3)
}

func TestResolverFailureSendsNothing(t *testing.T) {
	rec := newRecorder()
	resolver := &staticResolver{err: clierr.New(clierr.CodeRegistry, "unknown network X")}
	_, err := New(resolver, rec, Options{}).Run(context.Background())
	require.True(t, clierr.HasCode(err, clierr.CodeRegistry))
	require.Empty(t, rec.calls)
}

func TestRunRecordsJournal(t *testing.T) {
	action := execution.NewAction("run_test", "migration", "ganache")
	journal := execution.NewJournal(&action, nil, nil)
	_, err := New(&staticResolver{set: testSet()}, newRecorder(), Options{Journal: journal}).Run(context.Background())
	require.NoError(t, err)

	snap := journal.Snapshot()
	require.Equal(t, execution.ActionStatusCompleted, snap.Status)
	require.Len(t, snap.Steps, 43)
	for _, step := range snap.Steps {
		require.Equal(t, execution.StepStatusConfirmed, step.Status)
		require.NotEmpty(t, step.TxHash)
	}
}

func TestRunJournalsSubmittedHashBeforeReceipt(t *testing.T) {
	action := execution.NewAction("run_test", "migration", "mainnet")
	journal := execution.NewJournal(&action, nil, nil)
	rec := newRecorder()
	var mu sync.Mutex
	submitted := 0
	rec.inFlight = func(hash common.Hash) {
		for _, step := range journal.Snapshot().Steps {
			if step.TxHash == hash.Hex() && step.Status == execution.StepStatusSubmitted {
				mu.Lock()
				submitted++
				mu.Unlock()
			}
		}
	}
	_, err := New(&staticResolver{set: testSet()}, rec, Options{Journal: journal}).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 43, submitted)
}

type emptyCode struct{}

func (emptyCode) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) { return nil, nil }

func TestCodeCheckFailsBeforeSending(t *testing.T) {
	rec := newRecorder()
	_, err := New(&staticResolver{set: testSet()}, rec, Options{CodeReader: emptyCode{}}).Run(context.Background())
	require.True(t, clierr.HasCode(err, clierr.CodeDeployment))
	require.Empty(t, rec.calls)
}
