package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ModeLocal = "ganache"

	SignerLocal = "local"
	SignerNode  = "node"
)

type GlobalFlags struct {
	ConfigPath     string
	EnvFile        string
	JSON           bool
	Plain          bool
	Select         string
	ResultsOnly    bool
	EnableCommands string
	Timeout        string
	Retries        int
	LogLevel       string
	LogFormat      string
	LogFile        string
	MetricsFile    string
}

// MigrationFlags are the run flags. Empty strings, negative ints, zero floats
// and nil bools mean the flag was not given.
type MigrationFlags struct {
	Mode               string
	RPCURL             string
	Registry           string
	ArtifactsDir       string
	NetworkID          string
	Signer             string
	OperatorIndex      int
	KeySource          string
	FromAddress        string
	Simulate           *bool
	PollInterval       string
	StepTimeout        string
	GasMultiplier      float64
	MaxFeeGwei         string
	MaxPriorityFeeGwei string
	SkipCodeCheck      *bool
}

// NoMigrationFlags is the zero value with every "unset" marker applied.
func NoMigrationFlags() MigrationFlags {
	return MigrationFlags{OperatorIndex: -1}
}

type Settings struct {
	OutputMode      string
	SelectFields    []string
	ResultsOnly     bool
	EnableCommands  []string
	Timeout         time.Duration
	Retries         int
	LogLevel        string
	LogFormat       string
	LogFile         string
	MetricsFile     string
	ActionStorePath string
	ActionLockPath  string
	Migration       Migration
}

type Migration struct {
	Mode               string
	RPCURL             string
	RegistryPath       string
	ArtifactsDir       string
	NetworkID          string
	Signer             string
	OperatorIndex      int
	KeySource          string
	FromAddress        string
	Simulate           bool
	PollInterval       time.Duration
	StepTimeout        time.Duration
	GasMultiplier      float64
	MaxFeeGwei         string
	MaxPriorityFeeGwei string
	SkipCodeCheck      bool
}

// Local reports whether the run resolves contracts from local build artifacts.
func (m Migration) Local() bool {
	return strings.EqualFold(strings.TrimSpace(m.Mode), ModeLocal)
}

// SignerKind returns the configured signer, defaulting to the node's unlocked
// accounts on a local chain and a local key elsewhere.
func (m Migration) SignerKind() string {
	if s := strings.ToLower(strings.TrimSpace(m.Signer)); s != "" {
		return s
	}
	if m.Local() {
		return SignerNode
	}
	return SignerLocal
}

type fileConfig struct {
	Output         string   `yaml:"output"`
	EnableCommands []string `yaml:"enable_commands"`
	Timeout        string   `yaml:"timeout"`
	Retries        *int     `yaml:"retries"`
	Log            struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		File   string `yaml:"file"`
	} `yaml:"log"`
	MetricsFile string `yaml:"metrics_file"`
	Execution   struct {
		ActionsPath        string   `yaml:"actions_path"`
		ActionsLockPath    string   `yaml:"actions_lock_path"`
		Simulate           *bool    `yaml:"simulate"`
		PollInterval       string   `yaml:"poll_interval"`
		StepTimeout        string   `yaml:"step_timeout"`
		GasMultiplier      *float64 `yaml:"gas_multiplier"`
		MaxFeeGwei         string   `yaml:"max_fee_gwei"`
		MaxPriorityFeeGwei string   `yaml:"max_priority_fee_gwei"`
	} `yaml:"execution"`
	Migration struct {
		Mode          string `yaml:"mode"`
		RPCURL        string `yaml:"rpc_url"`
		Registry      string `yaml:"registry"`
		ArtifactsDir  string `yaml:"artifacts_dir"`
		NetworkID     string `yaml:"network_id"`
		Signer        string `yaml:"signer"`
		OperatorIndex *int   `yaml:"operator_index"`
		KeySource     string `yaml:"key_source"`
		FromAddress   string `yaml:"from_address"`
		SkipCodeCheck *bool  `yaml:"skip_code_check"`
	} `yaml:"migration"`
}

func Load(flags GlobalFlags, run MigrationFlags) (Settings, error) {
	if err := loadEnvFile(flags.EnvFile); err != nil {
		return Settings{}, err
	}

	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}
	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}
	if err := applyEnv(&settings); err != nil {
		return Settings{}, err
	}
	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}
	if err := applyMigrationFlags(run, &settings.Migration); err != nil {
		return Settings{}, err
	}

	if settings.Timeout <= 0 {
		settings.Timeout = 15 * time.Minute
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if err := validate(settings); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

// loadEnvFile loads KEY=VALUE pairs into the process environment without
// overriding variables that are already set. An explicit path must exist;
// ./.env is optional.
func loadEnvFile(path string) error {
	if strings.TrimSpace(path) != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func defaultSettings() (Settings, error) {
	dataDir, err := defaultDataDir()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:      "json",
		Timeout:         15 * time.Minute,
		Retries:         2,
		LogLevel:        "info",
		LogFormat:       "text",
		ActionStorePath: filepath.Join(dataDir, "actions.db"),
		ActionLockPath:  filepath.Join(dataDir, "actions.lock"),
		Migration: Migration{
			Mode:          ModeLocal,
			RPCURL:        "http://127.0.0.1:8545",
			ArtifactsDir:  filepath.Join("build", "contracts"),
			OperatorIndex: 1,
			KeySource:     "auto",
			Simulate:      true,
			PollInterval:  2 * time.Second,
			StepTimeout:   2 * time.Minute,
			GasMultiplier: 1.2,
		},
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "fraxmig", "config.yaml"), nil
}

func defaultDataDir() (string, error) {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(base, "fraxmig"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
		settings.Timeout = d
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if len(cfg.EnableCommands) > 0 {
		settings.EnableCommands = cfg.EnableCommands
	}
	setString(&settings.LogLevel, cfg.Log.Level)
	setString(&settings.LogFormat, cfg.Log.Format)
	setString(&settings.LogFile, cfg.Log.File)
	setString(&settings.MetricsFile, cfg.MetricsFile)
	setString(&settings.ActionStorePath, cfg.Execution.ActionsPath)
	setString(&settings.ActionLockPath, cfg.Execution.ActionsLockPath)

	m := &settings.Migration
	if cfg.Execution.Simulate != nil {
		m.Simulate = *cfg.Execution.Simulate
	}
	if cfg.Execution.PollInterval != "" {
		d, err := time.ParseDuration(cfg.Execution.PollInterval)
		if err != nil {
			return fmt.Errorf("config execution.poll_interval: %w", err)
		}
		m.PollInterval = d
	}
	if cfg.Execution.StepTimeout != "" {
		d, err := time.ParseDuration(cfg.Execution.StepTimeout)
		if err != nil {
			return fmt.Errorf("config execution.step_timeout: %w", err)
		}
		m.StepTimeout = d
	}
	if cfg.Execution.GasMultiplier != nil {
		m.GasMultiplier = *cfg.Execution.GasMultiplier
	}
	setString(&m.MaxFeeGwei, cfg.Execution.MaxFeeGwei)
	setString(&m.MaxPriorityFeeGwei, cfg.Execution.MaxPriorityFeeGwei)

	setString(&m.Mode, cfg.Migration.Mode)
	setString(&m.RPCURL, cfg.Migration.RPCURL)
	setString(&m.RegistryPath, cfg.Migration.Registry)
	setString(&m.ArtifactsDir, cfg.Migration.ArtifactsDir)
	setString(&m.NetworkID, cfg.Migration.NetworkID)
	setString(&m.Signer, cfg.Migration.Signer)
	setString(&m.KeySource, cfg.Migration.KeySource)
	setString(&m.FromAddress, cfg.Migration.FromAddress)
	if cfg.Migration.OperatorIndex != nil {
		m.OperatorIndex = *cfg.Migration.OperatorIndex
	}
	if cfg.Migration.SkipCodeCheck != nil {
		m.SkipCodeCheck = *cfg.Migration.SkipCodeCheck
	}
	return nil
}

func applyEnv(settings *Settings) error {
	if v := os.Getenv("FRAXMIG_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("FRAXMIG_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("FRAXMIG_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	if v := os.Getenv("FRAXMIG_ENABLE_COMMANDS"); v != "" {
		settings.EnableCommands = splitList(v)
	}
	setString(&settings.LogLevel, os.Getenv("FRAXMIG_LOG_LEVEL"))
	setString(&settings.LogFormat, os.Getenv("FRAXMIG_LOG_FORMAT"))
	setString(&settings.LogFile, os.Getenv("FRAXMIG_LOG_FILE"))
	setString(&settings.MetricsFile, os.Getenv("FRAXMIG_METRICS_FILE"))
	setString(&settings.ActionStorePath, os.Getenv("FRAXMIG_ACTIONS_PATH"))
	setString(&settings.ActionLockPath, os.Getenv("FRAXMIG_ACTIONS_LOCK_PATH"))

	m := &settings.Migration
	setString(&m.Mode, os.Getenv("MIGRATION_MODE"))
	setString(&m.RPCURL, os.Getenv("NETWORK_ENDPOINT"))
	setString(&m.RegistryPath, os.Getenv("FRAXMIG_REGISTRY"))
	setString(&m.ArtifactsDir, os.Getenv("FRAXMIG_ARTIFACTS_DIR"))
	setString(&m.NetworkID, os.Getenv("FRAXMIG_NETWORK_ID"))
	setString(&m.Signer, os.Getenv("FRAXMIG_SIGNER"))
	setString(&m.KeySource, os.Getenv("FRAXMIG_KEY_SOURCE"))
	setString(&m.FromAddress, os.Getenv("FRAXMIG_FROM_ADDRESS"))
	if v := os.Getenv("FRAXMIG_OPERATOR_INDEX"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse FRAXMIG_OPERATOR_INDEX: %w", err)
		}
		m.OperatorIndex = n
	}
	if v := os.Getenv("FRAXMIG_SIMULATE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			m.Simulate = b
		}
	}
	return nil
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if strings.TrimSpace(flags.Select) != "" {
		settings.SelectFields = splitList(flags.Select)
	}
	if strings.TrimSpace(flags.EnableCommands) != "" {
		settings.EnableCommands = splitList(flags.EnableCommands)
	}
	settings.ResultsOnly = flags.ResultsOnly

	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	setString(&settings.LogLevel, flags.LogLevel)
	setString(&settings.LogFormat, flags.LogFormat)
	setString(&settings.LogFile, flags.LogFile)
	setString(&settings.MetricsFile, flags.MetricsFile)

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}
	return nil
}

func applyMigrationFlags(flags MigrationFlags, m *Migration) error {
	setString(&m.Mode, flags.Mode)
	setString(&m.RPCURL, flags.RPCURL)
	setString(&m.RegistryPath, flags.Registry)
	setString(&m.ArtifactsDir, flags.ArtifactsDir)
	setString(&m.NetworkID, flags.NetworkID)
	setString(&m.Signer, flags.Signer)
	setString(&m.KeySource, flags.KeySource)
	setString(&m.FromAddress, flags.FromAddress)
	setString(&m.MaxFeeGwei, flags.MaxFeeGwei)
	setString(&m.MaxPriorityFeeGwei, flags.MaxPriorityFeeGwei)
	if flags.OperatorIndex >= 0 {
		m.OperatorIndex = flags.OperatorIndex
	}
	if flags.Simulate != nil {
		m.Simulate = *flags.Simulate
	}
	if flags.SkipCodeCheck != nil {
		m.SkipCodeCheck = *flags.SkipCodeCheck
	}
	if flags.GasMultiplier != 0 {
		m.GasMultiplier = flags.GasMultiplier
	}
	if flags.PollInterval != "" {
		d, err := time.ParseDuration(flags.PollInterval)
		if err != nil {
			return fmt.Errorf("parse --poll-interval: %w", err)
		}
		m.PollInterval = d
	}
	if flags.StepTimeout != "" {
		d, err := time.ParseDuration(flags.StepTimeout)
		if err != nil {
			return fmt.Errorf("parse --step-timeout: %w", err)
		}
		m.StepTimeout = d
	}
	return nil
}

func validate(s Settings) error {
	m := s.Migration
	if strings.TrimSpace(m.Mode) == "" {
		return fmt.Errorf("missing migration mode; set --mode or MIGRATION_MODE")
	}
	switch m.SignerKind() {
	case SignerLocal, SignerNode:
	default:
		return fmt.Errorf("unsupported signer %q (expected %s|%s)", m.Signer, SignerLocal, SignerNode)
	}
	if m.OperatorIndex < 0 {
		return fmt.Errorf("operator index must be >= 0")
	}
	if m.FromAddress != "" && !common.IsHexAddress(m.FromAddress) {
		return fmt.Errorf("invalid --from-address %q", m.FromAddress)
	}
	if m.GasMultiplier <= 1 {
		return fmt.Errorf("--gas-multiplier must be > 1")
	}
	if m.PollInterval <= 0 || m.StepTimeout <= 0 {
		return fmt.Errorf("--poll-interval and --step-timeout must be positive")
	}
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
