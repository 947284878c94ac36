package app

import (
	"errors"
	"strings"

	clierr "github.com/ggonzalez94/frax-migrate/internal/errors"
	"github.com/ggonzalez94/frax-migrate/internal/execution"
	"github.com/ggonzalez94/frax-migrate/internal/schema"
	"github.com/spf13/cobra"
)

func (s *runtimeState) newActionsCommand() *cobra.Command {
	root := &cobra.Command{Use: "actions", Short: "Inspect recorded migration runs"}

	var listStatus, listMode string
	var listLimit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status := strings.ToLower(strings.TrimSpace(listStatus))
			switch execution.ActionStatus(status) {
			case "", execution.ActionStatusPlanned, execution.ActionStatusRunning, execution.ActionStatusCompleted, execution.ActionStatusFailed:
			default:
				return clierr.New(clierr.CodeUsage, "--status must be planned|running|completed|failed")
			}
			if err := s.ensureActionStore(); err != nil {
				return err
			}
			items, err := s.actionStore.List(execution.ListFilter{
				Status: status,
				Mode:   strings.TrimSpace(listMode),
				Kind:   migrationActionKind,
				Limit:  listLimit,
			})
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "list actions", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), items, nil)
		},
	}
	listCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status")
	listCmd.Flags().StringVar(&listMode, "mode", "", "Filter by run mode")
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum runs to return")

	var actionID string
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show one run with its per-call steps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(actionID)
			if id == "" {
				return clierr.New(clierr.CodeUsage, "--action-id is required")
			}
			if err := s.ensureActionStore(); err != nil {
				return err
			}
			action, err := s.actionStore.Get(id)
			if err != nil {
				if errors.Is(err, execution.ErrActionNotFound) {
					return clierr.Wrap(clierr.CodeUsage, "load action", err)
				}
				return clierr.Wrap(clierr.CodeInternal, "load action", err)
			}
			s.lastActionID = action.ActionID
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), action, nil)
		},
	}
	statusCmd.Flags().StringVar(&actionID, "action-id", "", "Run identifier (run_...)")

	schema.MarkEffect(listCmd, schema.EffectLocal)
	schema.MarkEffect(statusCmd, schema.EffectLocal)
	root.AddCommand(listCmd)
	root.AddCommand(statusCmd)
	return root
}
