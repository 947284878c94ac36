package app

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ggonzalez94/frax-migrate/internal/config"
	clierr "github.com/ggonzalez94/frax-migrate/internal/errors"
	"github.com/ggonzalez94/frax-migrate/internal/execution"
	"github.com/ggonzalez94/frax-migrate/internal/logging"
	"github.com/ggonzalez94/frax-migrate/internal/model"
	"github.com/ggonzalez94/frax-migrate/internal/out"
	"github.com/ggonzalez94/frax-migrate/internal/policy"
	"github.com/ggonzalez94/frax-migrate/internal/rpcx"
	"github.com/ggonzalez94/frax-migrate/internal/schema"
	"github.com/ggonzalez94/frax-migrate/internal/version"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdout: stdout,
		stderr: stderr,
		now:    time.Now,
	}
}

type runtimeState struct {
	runner       *Runner
	flags        config.GlobalFlags
	run          config.MigrationFlags
	simulate     bool
	skipCode     bool
	settings     config.Settings
	root         *cobra.Command
	lastCommand  string
	lastActionID string
	lastWarnings []string

	logger      *slog.Logger
	logCloser   io.Closer
	actionStore *execution.Store
	conn        *rpcx.Conn
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r, run: config.NoMigrationFlags()}
	root := state.newRootCommand()
	state.root = root
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.Execute()
	err = normalizeRunError(err)
	if err == nil {
		state.close()
		return 0
	}

	state.renderError("", err, state.lastWarnings)
	state.close()
	return clierr.ExitCode(err)
}

func (s *runtimeState) close() {
	if s.conn != nil {
		s.conn.Close()
	}
	if s.actionStore != nil {
		_ = s.actionStore.Close()
	}
	if s.logCloser != nil {
		_ = s.logCloser.Close()
	}
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Seed FRAX pool prices and refresh the pair oracles",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			run := s.run
			if f := cmd.Flags().Lookup("simulate"); f != nil && f.Changed {
				run.Simulate = &s.simulate
			}
			if f := cmd.Flags().Lookup("skip-code-check"); f != nil && f.Changed {
				run.SkipCodeCheck = &s.skipCode
			}
			settings, err := config.Load(s.flags, run)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			s.settings = settings
			s.lastCommand = trimRootPath(cmd.CommandPath())
			if err := policy.CheckCommandAllowed(settings.EnableCommands, s.lastCommand); err != nil {
				return err
			}

			logger, closer, err := logging.Setup(logging.Options{
				Level:  settings.LogLevel,
				Format: settings.LogFormat,
				File:   settings.LogFile,
				Stderr: s.runner.stderr,
			}, settings.Migration.Mode)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "configure logging", err)
			}
			s.logger, s.logCloser = logger, closer
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	cmd.PersistentFlags().BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	cmd.PersistentFlags().BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	cmd.PersistentFlags().StringVar(&s.flags.Select, "select", "", "Select fields from data (comma-separated, dotted paths allowed)")
	cmd.PersistentFlags().BoolVar(&s.flags.ResultsOnly, "results-only", false, "Output only data payload")
	cmd.PersistentFlags().StringVar(&s.flags.EnableCommands, "enable-commands", "", "Allowlist command paths (comma-separated)")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "Overall command timeout")
	cmd.PersistentFlags().IntVar(&s.flags.Retries, "retries", -1, "Retries per RPC request")
	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVar(&s.flags.EnvFile, "env-file", "", "Load environment variables from this file (default ./.env when present)")
	cmd.PersistentFlags().StringVar(&s.flags.LogLevel, "log-level", "", "Log level: debug|info|warn|error")
	cmd.PersistentFlags().StringVar(&s.flags.LogFormat, "log-format", "", "Log format: text|json")
	cmd.PersistentFlags().StringVar(&s.flags.LogFile, "log-file", "", "Write logs to a rotating file instead of stderr")
	cmd.PersistentFlags().StringVar(&s.flags.MetricsFile, "metrics-file", "", "Write Prometheus metrics in text format after a run")

	for _, name := range []string{"json", "plain", "select", "results-only"} {
		schema.MarkFlag(cmd.PersistentFlags(), name, schema.GroupOutput, "")
	}
	schema.MarkFlag(cmd.PersistentFlags(), "enable-commands", "", "FRAXMIG_ENABLE_COMMANDS")
	schema.MarkFlag(cmd.PersistentFlags(), "timeout", "", "FRAXMIG_TIMEOUT")
	schema.MarkFlag(cmd.PersistentFlags(), "retries", "", "FRAXMIG_RETRIES")
	schema.MarkFlag(cmd.PersistentFlags(), "log-level", "", "FRAXMIG_LOG_LEVEL")
	schema.MarkFlag(cmd.PersistentFlags(), "log-format", "", "FRAXMIG_LOG_FORMAT")
	schema.MarkFlag(cmd.PersistentFlags(), "log-file", "", "FRAXMIG_LOG_FILE")
	schema.MarkFlag(cmd.PersistentFlags(), "metrics-file", "", "FRAXMIG_METRICS_FILE")

	cmd.AddCommand(s.newRunCommand())
	cmd.AddCommand(s.newPlanCommand())
	cmd.AddCommand(s.newContractsCommand())
	cmd.AddCommand(s.newActionsCommand())
	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	schema.MarkEffect(cmd, schema.EffectLocal)
	return cmd
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print machine-readable command schema",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) > 0 {
				path = strings.Join(args, " ")
			}
			data, err := schema.Build(s.root, path)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "build schema", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil)
		},
	}
	schema.MarkEffect(cmd, schema.EffectLocal)
	return cmd
}

func (s *runtimeState) emitSuccess(commandPath string, data any, warnings []string) error {
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Error:    nil,
		Warnings: warnings,
		Meta:     s.meta(commandPath),
	}
	return out.Render(s.runner.stdout, env, s.settings)
}

func (s *runtimeState) renderError(commandPath string, err error, warnings []string) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	code := clierr.ExitCode(err)
	typ := clierr.TypeName(clierr.CodeInternal)
	message := err.Error()
	if cErr, ok := clierr.As(err); ok {
		message = cErr.Message
		if cErr.Cause != nil {
			message = fmt.Sprintf("%s: %v", cErr.Message, cErr.Cause)
		}
		typ = clierr.TypeName(cErr.Code)
	}

	settings := s.settings
	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	settings.ResultsOnly = false
	settings.SelectFields = nil
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Data:    []any{},
		Error: &model.ErrorBody{
			Code:    code,
			Type:    typ,
			Message: message,
		},
		Warnings: warnings,
		Meta:     s.meta(commandPath),
	}
	_ = out.Render(s.runner.stderr, env, settings)
}

func (s *runtimeState) meta(commandPath string) model.EnvelopeMeta {
	return model.EnvelopeMeta{
		RequestID: uuid.NewString(),
		Timestamp: s.runner.now().UTC(),
		Command:   commandPath,
		Mode:      s.settings.Migration.Mode,
		ActionID:  s.lastActionID,
	}
}

func (s *runtimeState) log() *slog.Logger {
	if s.logger == nil {
		return slog.Default()
	}
	return s.logger
}

func (s *runtimeState) ensureActionStore() error {
	if s.actionStore != nil {
		return nil
	}
	store, err := execution.OpenStore(s.settings.ActionStorePath, s.settings.ActionLockPath)
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "open action store", err)
	}
	s.actionStore = store
	return nil
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
