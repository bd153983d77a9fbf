package abi

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/agilira/go-errors"

	"github.com/goplus/abiguard/internal/errcode"
	"github.com/goplus/abiguard/x/tool"
)

// CheckRequest describes one run of the compliance checker.
type CheckRequest struct {
	// Checker is the path of the abi-compliance-checker executable.
	Checker string
	// Library is the library name the checker reports.
	Library   string
	Reference string
	Dump      string
	// ReportDir receives ReportFile.
	ReportDir string
}

// CheckCompliance compares req.Dump against req.Reference. An ABI break is
// a nonzero exit in the Outcome, never an error.
func CheckCompliance(ctx context.Context, runner *tool.Runner, req CheckRequest) (tool.Outcome, error) {
	if err := tool.Require(req.Checker); err != nil {
		return tool.Outcome{}, err
	}
	if _, err := os.Stat(req.Reference); err != nil {
		return tool.Outcome{}, errors.Wrap(err, errcode.ReferenceMissing, "reference dump not found").
			WithContext("path", req.Reference)
	}
	if _, err := os.Stat(req.Dump); err != nil {
		return tool.Outcome{}, errors.Wrap(err, errcode.DumpMissing, "dump not found").
			WithContext("path", req.Dump)
	}
	if err := os.MkdirAll(req.ReportDir, 0o755); err != nil {
		return tool.Outcome{}, fmt.Errorf("failed to create report directory: %w", err)
	}
	return runner.Run(ctx, req.Checker,
		"-l", req.Library,
		"-old", req.Reference,
		"-new", req.Dump,
		"-report-path", filepath.Join(req.ReportDir, ReportFile))
}
