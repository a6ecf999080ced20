package host

import (
	"bytes"
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nelssec/sastscan/internal/logging"
)

func TestFreeSpace(t *testing.T) {
	t.Parallel()

	free, err := FreeSpace(t.TempDir())

	require.NoError(t, err)
	require.Greater(t, free, uint64(0))
}

func TestFreeSpace_MissingDir(t *testing.T) {
	t.Parallel()

	_, err := FreeSpace(filepath.Join(t.TempDir(), "missing"))

	require.Error(t, err)
}

func TestLowSpace_MissingDir(t *testing.T) {
	t.Parallel()

	low, free, err := LowSpace(filepath.Join(t.TempDir(), "missing"))

	require.Error(t, err)
	require.False(t, low)
	require.Zero(t, free)
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	require.NotEmpty(t, Describe())
}

func TestPreflight_LogsHost(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	ctx := logging.WithLogger(context.Background(), logging.New(&buf, "text", "debug"))

	Preflight(ctx, t.TempDir())

	require.Contains(t, buf.String(), "msg=Host")
}

func TestPreflight_MissingDirDoesNotFail(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	ctx := logging.WithLogger(context.Background(), logging.New(&buf, "text", "debug"))

	Preflight(ctx, filepath.Join(t.TempDir(), "missing"))

	require.Contains(t, buf.String(), "Skipping free space check")
}

func TestPreflight_WarnsOnLowSpace(t *testing.T) {
	// Not parallel: raises the package threshold.
	old := minFreeBytes
	minFreeBytes = math.MaxUint64
	t.Cleanup(func() { minFreeBytes = old })

	var buf bytes.Buffer
	ctx := logging.WithLogger(context.Background(), logging.New(&buf, "text", "info"))

	Preflight(ctx, t.TempDir())

	out := buf.String()
	require.Contains(t, out, "level=WARN")
	require.Contains(t, out, "Low free space in target directory")
	require.Regexp(t, `free="?[0-9.]+ [KMGTPE]?i?B"?`, out)
	require.Contains(t, out, `recommended="16 EiB"`)
}
