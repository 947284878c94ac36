package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupJSONRenamesKeysAndTagsMode(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := Setup(Options{Level: "debug", Format: "json", Stderr: &buf}, "ganache")
	require.NoError(t, err)
	defer closer.Close()
	t.Cleanup(func() { slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil))) })

	logger.Debug("FIRST SWAPS", "stage", "swap-to-price")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "FIRST SWAPS", line["message"])
	require.Equal(t, "ganache", line["mode"])
	require.Equal(t, "swap-to-price", line["stage"])
	require.Contains(t, line, "timestamp")
}

func TestSetupLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := Setup(Options{Level: "warn", Stderr: &buf}, "")
	require.NoError(t, err)
	t.Cleanup(func() { slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil))) })

	logger.Info("hidden")
	logger.Warn("visible")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "visible")
}

func TestSetupWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fraxmig.log")
	logger, closer, err := Setup(Options{File: path, Format: "json"}, "mainnet")
	require.NoError(t, err)
	t.Cleanup(func() { slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil))) })

	logger.Info("UPDATE THE PRICES")
	require.NoError(t, closer.Close())

	buf, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(buf), "UPDATE THE PRICES"))
}

func TestSetupRejectsUnknownValues(t *testing.T) {
	_, _, err := Setup(Options{Level: "loud"}, "")
	require.Error(t, err)
	_, _, err = Setup(Options{Format: "xml"}, "")
	require.Error(t, err)
}
