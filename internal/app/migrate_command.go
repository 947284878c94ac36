package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/frax-migrate/internal/artifacts"
	"github.com/ggonzalez94/frax-migrate/internal/config"
	"github.com/ggonzalez94/frax-migrate/internal/contracts"
	clierr "github.com/ggonzalez94/frax-migrate/internal/errors"
	"github.com/ggonzalez94/frax-migrate/internal/execution"
	execsigner "github.com/ggonzalez94/frax-migrate/internal/execution/signer"
	"github.com/ggonzalez94/frax-migrate/internal/migration"
	"github.com/ggonzalez94/frax-migrate/internal/model"
	"github.com/ggonzalez94/frax-migrate/internal/registry"
	"github.com/ggonzalez94/frax-migrate/internal/rpcx"
	"github.com/ggonzalez94/frax-migrate/internal/schema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

const migrationActionKind = "migration"

func (s *runtimeState) bindMigrationFlags(cmd *cobra.Command, sending bool) {
	f := cmd.Flags()
	f.StringVar(&s.run.Mode, "mode", "", "Run mode: ganache resolves local build artifacts, anything else is a registry network")
	f.StringVar(&s.run.RPCURL, "rpc-url", "", "JSON-RPC endpoint (http, ws or ipc)")
	f.StringVar(&s.run.Registry, "registry", "", "Address registry file (.yaml, .json or .toml)")
	f.StringVar(&s.run.ArtifactsDir, "artifacts-dir", "", "Build artifact directory for local mode")
	f.StringVar(&s.run.NetworkID, "network-id", "", "Artifact network id (default: the node's net_version)")
	f.StringVar(&s.run.Signer, "signer", "", "Signer: node (unlocked node account) or local (private key)")
	f.IntVar(&s.run.OperatorIndex, "operator-index", -1, "Node account index used as operator")
	f.StringVar(&s.run.KeySource, "key-source", "", "Local key source: auto|env|file|keystore")
	f.StringVar(&s.run.FromAddress, "from-address", "", "Operator address; must match the signer when both are set")
	f.BoolVar(&s.skipCode, "skip-code-check", false, "Do not check that resolved addresses hold contract code")
	for _, name := range []string{"mode", "rpc-url", "registry", "artifacts-dir", "network-id", "signer", "operator-index", "key-source", "from-address", "skip-code-check"} {
		schema.MarkFlag(f, name, schema.GroupResolution, migrationFlagEnv[name])
	}
	if !sending {
		return
	}
	f.BoolVar(&s.simulate, "simulate", true, "Simulate each call before sending it")
	f.StringVar(&s.run.PollInterval, "poll-interval", "", "Receipt polling interval")
	f.StringVar(&s.run.StepTimeout, "step-timeout", "", "Per-call receipt timeout")
	f.Float64Var(&s.run.GasMultiplier, "gas-multiplier", 0, "Gas limit multiplier over the estimate")
	f.StringVar(&s.run.MaxFeeGwei, "max-fee-gwei", "", "EIP-1559 max fee cap in gwei")
	f.StringVar(&s.run.MaxPriorityFeeGwei, "max-priority-fee-gwei", "", "EIP-1559 priority fee cap in gwei")
	for _, name := range []string{"simulate", "poll-interval", "step-timeout", "gas-multiplier", "max-fee-gwei", "max-priority-fee-gwei"} {
		schema.MarkFlag(f, name, schema.GroupExecution, migrationFlagEnv[name])
	}
}

var migrationFlagEnv = map[string]string{
	"mode":           "MIGRATION_MODE",
	"rpc-url":        "NETWORK_ENDPOINT",
	"registry":       "FRAXMIG_REGISTRY",
	"artifacts-dir":  "FRAXMIG_ARTIFACTS_DIR",
	"network-id":     "FRAXMIG_NETWORK_ID",
	"signer":         "FRAXMIG_SIGNER",
	"operator-index": "FRAXMIG_OPERATOR_INDEX",
	"key-source":     "FRAXMIG_KEY_SOURCE",
	"from-address":   "FRAXMIG_FROM_ADDRESS",
	"simulate":       "FRAXMIG_SIMULATE",
}

func (s *runtimeState) newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Approve, swap to target prices and refresh the pair oracles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), s.settings.Timeout)
			defer cancel()
			m := s.settings.Migration

			set, err := s.resolveContracts(ctx)
			if err != nil {
				return err
			}
			conn, err := s.dial(ctx)
			if err != nil {
				return err
			}
			transactor, err := s.newTransactor(ctx, conn)
			if err != nil {
				return err
			}
			if err := s.ensureActionStore(); err != nil {
				return err
			}

			action := execution.NewAction(execution.NewActionID(), migrationActionKind, m.Mode)
			action.FromAddress = transactor.From().Hex()
			if chainID, err := conn.Eth.ChainID(ctx); err == nil {
				action.ChainID = chainID.String()
			}
			s.lastActionID = action.ActionID
			journal := execution.NewJournal(&action, s.actionStore, s.log())

			reg := prometheus.NewRegistry()
			opts := migration.Options{
				Plan:    migration.DefaultPlan(),
				Journal: journal,
				Metrics: migration.NewMetrics(reg),
				Logger:  s.log().With("action_id", action.ActionID),
			}
			report, runErr := migration.New(contracts.Fixed(set), transactor, opts).Run(ctx)

			var warnings []string
			if path := strings.TrimSpace(s.settings.MetricsFile); path != "" {
				if err := prometheus.WriteToTextfile(path, reg); err != nil {
					warnings = append(warnings, fmt.Sprintf("write metrics file: %v", err))
				}
			}
			if runErr != nil {
				s.lastWarnings = append(warnings, fmt.Sprintf("inspect with: fraxmig actions status --action-id %s", action.ActionID))
				return runErr
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), model.MigrationResult{
				ActionID: action.ActionID,
				Mode:     m.Mode,
				Report:   report,
			}, warnings)
		},
	}
	s.bindMigrationFlags(cmd, true)
	schema.MarkEffect(cmd, schema.EffectSends)
	return cmd
}

func (s *runtimeState) newPlanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Resolve contracts and print every encoded call without sending",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), s.settings.Timeout)
			defer cancel()

			set, err := s.resolveContracts(ctx)
			if err != nil {
				return err
			}
			operator, err := s.operator(ctx)
			if err != nil {
				return err
			}
			stages, err := migration.BuildStages(set, operator, migration.DefaultPlan())
			if err != nil {
				return err
			}
			plan := migration.Describe(s.settings.Migration.Mode, operator, stages)
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), plan, nil)
		},
	}
	s.bindMigrationFlags(cmd, false)
	schema.MarkEffect(cmd, schema.EffectReads)
	return cmd
}

func (s *runtimeState) newContractsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contracts",
		Short: "Print the resolved contract addresses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), s.settings.Timeout)
			defer cancel()
			set, err := s.resolveContracts(ctx)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), set.All(), nil)
		},
	}
	s.bindMigrationFlags(cmd, false)
	schema.MarkEffect(cmd, schema.EffectReads)
	return cmd
}

func (s *runtimeState) dial(ctx context.Context) (*rpcx.Conn, error) {
	if s.conn != nil {
		return s.conn, nil
	}
	conn, err := rpcx.Dial(ctx, s.settings.Migration.RPCURL, s.settings.Migration.StepTimeout, s.settings.Retries)
	if err != nil {
		return nil, err
	}
	s.conn = conn
	return conn, nil
}

// resolveContracts resolves every catalog entry and, unless disabled, checks
// that each address holds code.
func (s *runtimeState) resolveContracts(ctx context.Context) (contracts.Set, error) {
	resolver, err := s.newResolver(ctx)
	if err != nil {
		return contracts.Set{}, err
	}
	set, err := resolver.Resolve(ctx)
	if err != nil {
		return contracts.Set{}, err
	}
	s.log().Debug("contracts resolved", "count", set.Len())
	if s.settings.Migration.SkipCodeCheck {
		return set, nil
	}
	conn, err := s.dial(ctx)
	if err != nil {
		return contracts.Set{}, err
	}
	if err := contracts.VerifyCode(ctx, conn.Eth, set); err != nil {
		return contracts.Set{}, err
	}
	return set, nil
}

func (s *runtimeState) newResolver(ctx context.Context) (contracts.Resolver, error) {
	m := s.settings.Migration
	if m.Local() {
		networkID := m.NetworkID
		if networkID == "" {
			conn, err := s.dial(ctx)
			if err != nil {
				return nil, err
			}
			if networkID, err = conn.NetworkID(ctx); err != nil {
				return nil, err
			}
		}
		return contracts.NewLocalResolver(artifacts.NewDir(m.ArtifactsDir, networkID)), nil
	}
	if strings.TrimSpace(m.RegistryPath) == "" {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("mode %q needs an address registry; set --registry or FRAXMIG_REGISTRY", m.Mode))
	}
	book, err := registry.LoadBook(m.RegistryPath)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeRegistry, "load address registry", err)
	}
	return contracts.NewRegistryResolver(book, m.Mode), nil
}

// operator returns the sending address without building a transactor, so a
// dry run never needs chain state beyond what the signer kind requires.
func (s *runtimeState) operator(ctx context.Context) (common.Address, error) {
	m := s.settings.Migration
	if m.FromAddress != "" {
		return common.HexToAddress(m.FromAddress), nil
	}
	if m.SignerKind() == config.SignerLocal {
		txSigner, err := execsigner.NewLocalSignerFromEnv(m.KeySource)
		if err != nil {
			return common.Address{}, clierr.Wrap(clierr.CodeSigner, "load local signer", err)
		}
		return txSigner.Address(), nil
	}
	conn, err := s.dial(ctx)
	if err != nil {
		return common.Address{}, err
	}
	node, err := execution.NewNodeTransactor(ctx, conn.RPC, conn.Eth, common.Address{}, m.OperatorIndex, s.executeOptions())
	if err != nil {
		return common.Address{}, err
	}
	return node.From(), nil
}

func (s *runtimeState) newTransactor(ctx context.Context, conn *rpcx.Conn) (execution.Transactor, error) {
	m := s.settings.Migration
	var from common.Address
	if m.FromAddress != "" {
		from = common.HexToAddress(m.FromAddress)
	}
	opts := s.executeOptions()

	if m.SignerKind() == config.SignerNode {
		return execution.NewNodeTransactor(ctx, conn.RPC, conn.Eth, from, m.OperatorIndex, opts)
	}
	txSigner, err := execsigner.NewLocalSignerFromEnv(m.KeySource)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "load local signer", err)
	}
	s.log().Info("local signer loaded", "address", txSigner.Address().Hex(), "source", txSigner.Origin())
	if from != (common.Address{}) && from != txSigner.Address() {
		return nil, clierr.New(clierr.CodeSigner, fmt.Sprintf("signer address %s does not match --from-address %s", txSigner.Address().Hex(), from.Hex()))
	}
	return execution.NewSignerTransactor(ctx, conn.Eth, txSigner, opts)
}

func (s *runtimeState) executeOptions() execution.ExecuteOptions {
	m := s.settings.Migration
	return execution.ExecuteOptions{
		Simulate:           m.Simulate,
		PollInterval:       m.PollInterval,
		StepTimeout:        m.StepTimeout,
		GasMultiplier:      m.GasMultiplier,
		MaxFeeGwei:         m.MaxFeeGwei,
		MaxPriorityFeeGwei: m.MaxPriorityFeeGwei,
	}
}
