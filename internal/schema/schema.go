package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Effect says what a command does to the chain.
type Effect string

const (
	EffectSends Effect = "sends_transactions"
	EffectReads Effect = "reads_chain"
	EffectLocal Effect = "local"
)

// Flag groups shared between commands.
const (
	GroupResolution = "resolution"
	GroupExecution  = "execution"
	GroupOutput     = "output"
)

const (
	effectKey = "fraxmig_effect"
	groupKey  = "fraxmig_group"
	envKey    = "fraxmig_env"
)

type CommandSchema struct {
	Path        string          `json:"path"`
	Use         string          `json:"use"`
	Short       string          `json:"short"`
	Effect      Effect          `json:"effect,omitempty"`
	Flags       []FlagSchema    `json:"flags,omitempty"`
	Inherited   []string        `json:"inherited_flags,omitempty"`
	Subcommands []CommandSchema `json:"subcommands,omitempty"`
}

type FlagSchema struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Usage   string `json:"usage"`
	Default string `json:"default,omitempty"`
	Group   string `json:"group,omitempty"`
	Env     string `json:"env,omitempty"`
}

// MarkEffect tags cmd with what it does to the chain.
func MarkEffect(cmd *cobra.Command, effect Effect) {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[effectKey] = string(effect)
}

// MarkFlag records the group of a flag and the environment variable that
// also sets it. Empty values are skipped, as are unknown flags.
func MarkFlag(flags *pflag.FlagSet, name, group, env string) {
	if flags.Lookup(name) == nil {
		return
	}
	if group != "" {
		_ = flags.SetAnnotation(name, groupKey, []string{group})
	}
	if env != "" {
		_ = flags.SetAnnotation(name, envKey, []string{env})
	}
}

// Build describes the command at commandPath below root, or root itself
// when the path is empty.
func Build(root *cobra.Command, commandPath string) (CommandSchema, error) {
	parts := strings.Fields(commandPath)
	if len(parts) == 0 {
		return describe(root), nil
	}
	cmd, rest, err := root.Find(parts)
	if err != nil || len(rest) > 0 || cmd == root {
		return CommandSchema{}, fmt.Errorf("command not found: %s", strings.Join(parts, " "))
	}
	return describe(cmd), nil
}

func describe(cmd *cobra.Command) CommandSchema {
	s := CommandSchema{
		Path:   strings.TrimSpace(cmd.CommandPath()),
		Use:    cmd.Use,
		Short:  cmd.Short,
		Effect: Effect(cmd.Annotations[effectKey]),
		Flags:  flagSchemas(cmd.NonInheritedFlags()),
	}
	cmd.InheritedFlags().VisitAll(func(f *pflag.Flag) {
		s.Inherited = append(s.Inherited, f.Name)
	})
	sort.Strings(s.Inherited)
	for _, sub := range cmd.Commands() {
		if !sub.IsAvailableCommand() {
			continue
		}
		s.Subcommands = append(s.Subcommands, describe(sub))
	}
	return s
}

func flagSchemas(flags *pflag.FlagSet) []FlagSchema {
	var items []FlagSchema
	flags.VisitAll(func(f *pflag.Flag) {
		items = append(items, FlagSchema{
			Name:    f.Name,
			Type:    f.Value.Type(),
			Usage:   f.Usage,
			Default: f.DefValue,
			Group:   first(f.Annotations[groupKey]),
			Env:     first(f.Annotations[envKey]),
		})
	})
	return items
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
