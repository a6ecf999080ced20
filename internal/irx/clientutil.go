// Package irx produces IRX archives with the AppScan SAClientUtil command
// line tool.
package irx

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/nelssec/sastscan/internal/logging"
)

var candidates = []string{"appscan.sh", "appscan", "appscan.bat"}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Archive is a generated IRX file. Name is the file's base name without the
// .irx extension.
type Archive struct {
	Name string
	Path string
}

type ClientUtil struct {
	binary string
	// Dir is the directory packaged and where the archive is written. Empty
	// means the current working directory.
	Dir string
}

// DetectClientUtil returns the tool at path, or searches PATH for it when
// path is empty.
func DetectClientUtil(path string) (*ClientUtil, error) {
	if path != "" {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("appscan client not found at %s: %w", path, err)
		}
		if info.IsDir() || info.Mode()&0111 == 0 {
			return nil, fmt.Errorf("appscan client at %s is not executable", path)
		}
		return &ClientUtil{binary: path}, nil
	}

	for _, name := range candidates {
		if p, err := exec.LookPath(name); err == nil {
			return &ClientUtil{binary: p}, nil
		}
	}

	return nil, fmt.Errorf("SAClientUtil not found in PATH (looked for %s); install it or set --appscan", strings.Join(candidates, ", "))
}

func (u *ClientUtil) Name() string {
	return filepath.Base(u.binary)
}

// SafeName maps a scan name onto characters usable in a file name.
func SafeName(name string) string {
	safe := strings.Trim(unsafeChars.ReplaceAllString(name, "_"), "_.")
	if safe == "" {
		return "Static_Scan"
	}
	return safe
}

// Prepare runs "appscan prepare" over the working directory. configPath is an
// optional appscan-config.xml.
func (u *ClientUtil) Prepare(ctx context.Context, scanName, configPath string) (*Archive, error) {
	name := SafeName(scanName)

	args := []string{"prepare", "-n", name}
	if configPath != "" {
		abs, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path: %w", err)
		}
		args = append(args, "-c", abs)
	}

	cmd := exec.CommandContext(ctx, u.binary, args...)
	cmd.Dir = u.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger := logging.FromContext(ctx)
	logger.Debug("Running SAClientUtil", "binary", u.binary, "args", args)

	err := cmd.Run()
	logger.Debug("SAClientUtil finished", "stdout", stdout.String(), "stderr", stderr.String())
	if err != nil {
		return nil, fmt.Errorf("appscan prepare failed: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}

	path, err := u.findArchive(name)
	if err != nil {
		return nil, err
	}

	return &Archive{
		Name: strings.TrimSuffix(filepath.Base(path), ".irx"),
		Path: path,
	}, nil
}

// findArchive returns <name>.irx, or the newest <name>*.irx when the tool
// decorated the file name.
func (u *ClientUtil) findArchive(name string) (string, error) {
	dir := u.Dir
	if dir == "" {
		dir = "."
	}

	exact := filepath.Join(dir, name+".irx")
	if _, err := os.Stat(exact); err == nil {
		return exact, nil
	}

	matches, err := filepath.Glob(filepath.Join(dir, name+"*.irx"))
	if err != nil || len(matches) == 0 {
		return "", fmt.Errorf("appscan prepare did not produce %s", name+".irx")
	}

	newest := matches[0]
	var newestMod int64
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		if mod := info.ModTime().UnixNano(); mod > newestMod {
			newest, newestMod = m, mod
		}
	}
	return newest, nil
}
