package abi

import (
	"context"
	goerrors "errors"
	"fmt"
	"os"

	"github.com/agilira/go-errors"
	"github.com/qiniu/x/log"

	"github.com/goplus/abiguard/internal/errcode"
	"github.com/goplus/abiguard/internal/result"
	"github.com/goplus/abiguard/internal/store"
	"github.com/goplus/abiguard/pkgs/ref"
	"github.com/goplus/abiguard/x/tool"
)

// ErrStageFailed is returned when a tool reported a failure. Its result
// record has already been written.
var ErrStageFailed = goerrors.New("abi stage failed")

// Pipeline runs the dump stage and, when Check is set, the compliance
// stage against a baseline from Store.
type Pipeline struct {
	Runner *tool.Runner
	Dump   DumpRequest

	Check     bool
	Store     *store.Store
	Reference ref.Ref
	Checker   string
	// Library is the library name passed to the checker.
	Library string
}

func (p *Pipeline) stages() []result.Stage {
	if p.Check {
		return []result.Stage{result.StageDump, result.StageCheck}
	}
	return []result.Stage{result.StageDump}
}

// Run executes the pipeline. Every stage it reaches leaves a result record,
// including stages stopped by a hard error.
func (p *Pipeline) Run(ctx context.Context) error {
	buildRoot := p.Dump.BuildRoot
	unlock, err := lockBuildRoot(buildRoot)
	if err != nil {
		return err
	}
	defer unlock()

	w := result.NewWriter(buildRoot)
	for _, stage := range p.stages() {
		if err := w.Remove(stage); err != nil {
			return fmt.Errorf("failed to remove stale %s record: %w", stage, err)
		}
	}

	dumpPath, err := p.dump(ctx, w)
	if err != nil {
		return err
	}
	if !p.Check {
		return nil
	}
	return p.check(ctx, w, dumpPath)
}

func (p *Pipeline) dump(ctx context.Context, w *result.Writer) (string, error) {
	out, dumpPath, err := CreateDump(ctx, p.Runner, p.Dump)
	if err != nil {
		return "", p.abort(w, result.StageDump, err)
	}
	if !out.OK() {
		if err := p.record(w, result.StageDump, result.Error(result.MsgDumpFailed, "")); err != nil {
			return "", err
		}
		log.Warnf("Abi dumper failed: %s", out)
		return "", fmt.Errorf("%s: %w", result.StageDump, ErrStageFailed)
	}
	if _, err := os.Stat(dumpPath); err != nil {
		err = errors.Wrap(err, errcode.DumpMissing, "dumper exited successfully without writing the dump").
			WithContext("path", dumpPath)
		return "", p.abort(w, result.StageDump, err)
	}
	if err := p.record(w, result.StageDump, result.Ok); err != nil {
		return "", err
	}
	log.Info("Abi dumper finished successfully")
	return dumpPath, nil
}

func (p *Pipeline) check(ctx context.Context, w *result.Writer, dumpPath string) error {
	refDump, err := ResolveReference(p.Store, p.Reference, p.Dump.Version)
	if err != nil {
		return p.abort(w, result.StageCheck, err)
	}
	out, err := CheckCompliance(ctx, p.Runner, CheckRequest{
		Checker:   p.Checker,
		Library:   p.Library,
		Reference: refDump,
		Dump:      dumpPath,
		ReportDir: p.Dump.OutputDir(),
	})
	if err != nil {
		return p.abort(w, result.StageCheck, err)
	}
	if !out.OK() {
		if err := p.record(w, result.StageCheck, result.Error(result.MsgCheckFailed, "")); err != nil {
			return err
		}
		log.Warnf("Abi compliance checker failed: %s", out)
		return fmt.Errorf("%s: %w", result.StageCheck, ErrStageFailed)
	}
	if err := p.record(w, result.StageCheck, result.Ok); err != nil {
		return err
	}
	log.Info("Abi compliance checker finished successfully")
	return nil
}

// abort records a stage stopped by the hard error cause and returns cause.
func (p *Pipeline) abort(w *result.Writer, stage result.Stage, cause error) error {
	if err := p.record(w, stage, result.Error(result.AbortedMessage(stage), cause.Error())); err != nil {
		log.Warnf("failed to record aborted %s stage: %v", stage, err)
	}
	return cause
}

func (p *Pipeline) record(w *result.Writer, stage result.Stage, outcome result.Outcome) error {
	path, err := w.Write(stage, outcome)
	if err != nil {
		return fmt.Errorf("failed to write %s result: %w", stage, err)
	}
	log.Debugf("wrote %s", path)
	return nil
}
