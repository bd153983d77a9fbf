// Package abi implements the ABI compatibility workflow: dump the exported
// interface of a shared library, locate the baseline dump of a previous
// release, and compare the two.
package abi

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agilira/go-errors"

	"github.com/goplus/abiguard/internal/errcode"
	"github.com/goplus/abiguard/internal/recipe"
	"github.com/goplus/abiguard/x/tool"
)

const (
	// PackageRootToken is replaced by the library package root in header lists.
	PackageRootToken = "@PACKAGE_ROOT@"
	// HeadersListFile is the substituted header list written next to the dump.
	HeadersListFile = "abi_check_headers.txt"
	// ReportFile is the compliance report written next to the dump.
	ReportFile = "report_plugin.html"
)

// DumpRequest describes one run of the ABI dumper.
type DumpRequest struct {
	// Dumper is the path of the abi-dumper executable.
	Dumper string
	// LibraryPath is the built shared library.
	LibraryPath string
	// HeadersFile lists the public headers, one per line.
	HeadersFile string
	// PackageRoot replaces PackageRootToken in HeadersFile.
	PackageRoot string
	Version     string

	BuildRoot string
	DumpDir   string
	DumpFile  string
}

// OutputDir returns <BuildRoot>/<DumpDir>.
func (r *DumpRequest) OutputDir() string {
	return filepath.Join(r.BuildRoot, r.DumpDir)
}

// DumpPath returns the path of the dump file the request produces.
func (r *DumpRequest) DumpPath() string {
	return filepath.Join(r.OutputDir(), r.DumpFile)
}

// CreateDump runs the dumper described by req. A nonzero exit of the dumper
// is returned in the Outcome; the caller must check that the returned dump
// path exists before comparing it.
func CreateDump(ctx context.Context, runner *tool.Runner, req DumpRequest) (tool.Outcome, string, error) {
	if err := tool.Require(req.Dumper); err != nil {
		return tool.Outcome{}, "", err
	}
	if err := requireFile(req.LibraryPath, "shared library not found"); err != nil {
		return tool.Outcome{}, "", err
	}
	headers, err := readHeaders(req.HeadersFile, req.PackageRoot)
	if err != nil {
		return tool.Outcome{}, "", err
	}

	outDir := req.OutputDir()
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return tool.Outcome{}, "", fmt.Errorf("failed to create dump directory: %w", err)
	}
	listPath := filepath.Join(outDir, HeadersListFile)
	if err := os.WriteFile(listPath, []byte(strings.Join(headers, "\n")+"\n"), 0o644); err != nil {
		return tool.Outcome{}, "", fmt.Errorf("failed to write header list: %w", err)
	}

	dumpPath := req.DumpPath()
	if err := os.Remove(dumpPath); err != nil && !os.IsNotExist(err) {
		return tool.Outcome{}, "", fmt.Errorf("failed to remove previous dump: %w", err)
	}

	out, err := runner.Run(ctx, req.Dumper, req.LibraryPath,
		"-o", dumpPath,
		"-lver", recipe.VersionTag(req.Version),
		"-public-headers", listPath)
	if err != nil {
		return tool.Outcome{}, "", err
	}
	return out, dumpPath, nil
}

// readHeaders returns the header paths of file with PackageRootToken
// replaced by root. Blank lines and # comments are dropped.
func readHeaders(file, root string) ([]string, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Wrap(err, errcode.InvalidInput, "failed to read header list").WithContext("path", file)
	}
	root = filepath.ToSlash(root)
	var headers []string
	s := bufio.NewScanner(bytes.NewReader(data))
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		headers = append(headers, strings.ReplaceAll(line, PackageRootToken, root))
	}
	if err := s.Err(); err != nil {
		return nil, errors.Wrap(err, errcode.InvalidInput, "failed to read header list").WithContext("path", file)
	}
	if len(headers) == 0 {
		return nil, errors.New(errcode.InvalidInput, "header list is empty").WithContext("path", file)
	}
	return headers, nil
}

func requireFile(path, msg string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrap(err, errcode.InvalidInput, msg).WithContext("path", path)
	}
	if info.IsDir() {
		return errors.New(errcode.InvalidInput, msg).WithContext("path", path)
	}
	return nil
}
