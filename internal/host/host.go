// Package host reports facts about the machine running the scan.
package host

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/disk"
	pshost "github.com/shirou/gopsutil/v3/host"

	"github.com/nelssec/sastscan/internal/logging"
)

// MinFreeBytes is the free space below which packaging is likely to fail.
const MinFreeBytes uint64 = 512 << 20

var minFreeBytes = MinFreeBytes

func Describe() string {
	info, err := pshost.Info()
	if err != nil {
		return "unknown host"
	}

	platform := strings.TrimSpace(info.Platform + " " + info.PlatformVersion)
	if platform == "" {
		platform = info.OS
	}
	return fmt.Sprintf("%s (%s, %s)", info.Hostname, platform, info.KernelArch)
}

func FreeSpace(dir string) (uint64, error) {
	usage, err := disk.Usage(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read disk usage for %s: %w", dir, err)
	}
	return usage.Free, nil
}

// LowSpace reports whether dir has less than MinFreeBytes available.
func LowSpace(dir string) (bool, uint64, error) {
	free, err := FreeSpace(dir)
	if err != nil {
		return false, 0, err
	}
	return free < minFreeBytes, free, nil
}

// Preflight logs the host and warns when dir is short on space. It never
// fails the run.
func Preflight(ctx context.Context, dir string) {
	logger := logging.FromContext(ctx)
	logger.Debug("Host", "host", Describe(), "dir", dir)

	low, free, err := LowSpace(dir)
	if err != nil {
		logger.Debug("Skipping free space check", "error", err)
		return
	}
	if low {
		logger.Warn("Low free space in target directory, IRX generation may fail",
			"dir", dir,
			"free", humanize.IBytes(free),
			"recommended", humanize.IBytes(minFreeBytes),
		)
	}
}
