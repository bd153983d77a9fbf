package build

import (
	"context"
	goerrors "errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/agilira/go-errors"
	"github.com/qiniu/x/log"

	"github.com/goplus/abiguard/internal/abi"
	"github.com/goplus/abiguard/internal/errcode"
	"github.com/goplus/abiguard/internal/qa"
	"github.com/goplus/abiguard/internal/recipe"
	"github.com/goplus/abiguard/pkgs/ref"
	"github.com/goplus/abiguard/x/cmake"
)

// Build runs the build hook of the recipe kind. A tool-reported ABI failure
// returns abi.ErrStageFailed after the build folder is complete, so the
// package hook can still collect the result records.
func (b *Builder) Build(ctx context.Context) error {
	deps, err := b.dependencies()
	if err != nil {
		return err
	}
	r := b.Recipe
	log.Infof("building %s (%s) in %s", r.Ref(), r.Kind, b.BuildDir)

	switch r.Kind {
	case recipe.KindLibrary, recipe.KindTests:
		err = b.buildCMake(ctx, deps)
	case recipe.KindAbiDump, recipe.KindAbiCheck:
		err = b.buildABI(ctx, deps)
	case recipe.KindSca:
		err = b.buildSca(ctx, deps)
	case recipe.KindDocs:
		err = b.buildDocs(ctx, deps)
	default:
		err = errors.New(errcode.InvalidRecipe, fmt.Sprintf("unknown kind %q", r.Kind))
	}
	stageFailed := goerrors.Is(err, abi.ErrStageFailed)
	if err != nil && !stageFailed {
		return err
	}

	info := &buildInfo{
		Ref:          r.Ref().String(),
		Kind:         r.Kind,
		Dependencies: make(map[string]string, len(deps)),
		StageFailed:  stageFailed,
		BuildTime:    time.Now(),
	}
	for _, d := range deps {
		info.Dependencies[d.Key] = d.Root()
	}
	if err := saveBuildInfo(b.BuildDir, info); err != nil {
		return fmt.Errorf("failed to save build info: %w", err)
	}
	return err
}

// newCMake returns a cmake driver configured from the recipe and the
// resolved dependencies.
func (b *Builder) newCMake(deps []Dependency) (*cmake.CMake, error) {
	cfg := b.Recipe.CMake
	c := cmake.New(b.Runner, filepath.Join(b.SourceDir, cfg.SourceDir), b.BuildDir, b.stagingDir())
	c.Generator(cfg.Generator)
	c.BuildType(cfg.BuildType)
	for _, d := range deps {
		c.Use(d.Root())
	}
	for key, v := range cfg.Defines {
		c.DefineValue(key, v)
	}
	for key, name := range cfg.EnvDefines {
		v, ok := b.Config.Lookup(name)
		if !ok {
			return nil, errors.New(errcode.InvalidRecipe, fmt.Sprintf("env_defines names unknown option %q", name)).
				WithContext("recipe", b.Recipe.Name)
		}
		if bv, err := strconv.ParseBool(v); err == nil {
			c.DefineBool(key, bv)
		} else {
			c.Define(key, v)
		}
	}
	for key, req := range cfg.RootDefines {
		d, err := findDependency(deps, req)
		if err != nil {
			return nil, err
		}
		c.DefinePath(key, d.Root())
	}
	vars := make(map[string]string, 2)
	for name, dir := range map[string]string{"source_folder": b.SourceDir, "build_folder": b.BuildDir} {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, err
		}
		vars[name] = filepath.ToSlash(abs)
	}
	for key, tmpl := range cfg.PathDefines {
		c.DefinePath(key, ref.Expand(tmpl, vars))
	}
	return c, nil
}

// buildCMake builds, installs and tests the library or its functional tests.
func (b *Builder) buildCMake(ctx context.Context, deps []Dependency) error {
	c, err := b.newCMake(deps)
	if err != nil {
		return err
	}
	if err := c.Configure(ctx); err != nil {
		return err
	}
	if err := c.Build(ctx); err != nil {
		return err
	}
	if err := c.Install(ctx); err != nil {
		return err
	}
	out, err := c.Test(ctx, b.testResultPath(b.stagingDir()))
	if err != nil {
		return err
	}
	if !out.OK() {
		log.Warnf("ctest reported failing tests: %s", out)
	}

	if err := b.writeChangelog(ctx, deps); err != nil {
		return err
	}
	b.scanBlackDuck(ctx, deps)
	return nil
}

// buildDocs builds and installs the architecture documentation. It does
// nothing when ENABLE_DOCUMENTATION is off.
func (b *Builder) buildDocs(ctx context.Context, deps []Dependency) error {
	if !b.Config.EnableDocumentation {
		log.Info("Environment variable 'ENABLE_DOCUMENTATION' is off. Skipping the documentation build")
		return nil
	}
	c, err := b.newCMake(deps)
	if err != nil {
		return err
	}
	if err := c.Configure(ctx); err != nil {
		return err
	}
	if err := c.Build(ctx); err != nil {
		return err
	}
	return c.Install(ctx)
}

func (b *Builder) writeChangelog(ctx context.Context, deps []Dependency) error {
	r := b.Recipe
	if r.Changelog == nil {
		return nil
	}
	if !qa.ShouldGenerateChangelog(b.Config) {
		log.Info("Environment variable 'JENKINS_URL' not set. Building without doc/changelog.md")
		return nil
	}
	log.Info("writing change log")
	exe, err := toolPath(deps, r.Changelog.Tool)
	if err != nil {
		return err
	}
	c := &qa.Changelog{
		Runner:      b.Runner,
		Tool:        exe,
		Config:      r.Changelog,
		Credentials: b.Config.Credentials,
	}
	return c.Generate(ctx, b.SourceDir, filepath.Join(b.BuildDir, "doc", "changelog.md"), r.Version)
}

// scanBlackDuck runs the Black Duck scan when it should run. Failures are
// only logged.
func (b *Builder) scanBlackDuck(ctx context.Context, deps []Dependency) {
	r := b.Recipe
	if r.BlackDuck == nil || !qa.ShouldRunBlackDuck(b.Config, r.BlackDuck.Channels, r.Channel) {
		log.Info("Skipping Black Duck scan")
		return
	}
	log.Info("Executing Black Duck scan")
	exe, err := toolPath(deps, r.BlackDuck.Tool)
	if err != nil {
		log.Warnf("An error occurred while running the Black Duck scan: %v", err)
		return
	}
	scanner := &qa.BlackDuck{Runner: b.Runner, Tool: exe, Config: r.BlackDuck}
	scanner.ScanBestEffort(ctx, qa.ScanTarget{
		Name:       r.Name,
		Version:    r.Version,
		Channel:    r.Channel,
		SourcePath: b.Config.Workspace,
	})
}

func (b *Builder) buildABI(ctx context.Context, deps []Dependency) error {
	r := b.Recipe
	a := r.ABI
	product, err := findDependency(deps, a.Package)
	if err != nil {
		return err
	}
	dumper, err := toolPath(deps, a.Dumper)
	if err != nil {
		return err
	}
	p := &abi.Pipeline{
		Runner: b.Runner,
		Dump: abi.DumpRequest{
			Dumper:      dumper,
			LibraryPath: filepath.Join(product.Root(), filepath.FromSlash(a.LibraryPath)),
			HeadersFile: filepath.Join(r.Dir, filepath.FromSlash(a.HeadersFile)),
			PackageRoot: product.Root(),
			Version:     r.Version,
			BuildRoot:   b.BuildDir,
			DumpDir:     a.DumpDir,
			DumpFile:    a.DumpFile,
		},
	}
	if r.Kind == recipe.KindAbiCheck {
		checker, err := toolPath(deps, a.Checker)
		if err != nil {
			return err
		}
		baseline, err := findDependency(deps, a.Reference)
		if err != nil {
			return err
		}
		p.Check = true
		p.Store = b.Store
		p.Reference = baseline.Ref
		p.Checker = checker
		p.Library = a.Library
	}
	return p.Run(ctx)
}

func (b *Builder) buildSca(ctx context.Context, deps []Dependency) error {
	r := b.Recipe
	c, err := b.newCMake(deps)
	if err != nil {
		return err
	}

	if b.Config.EnableFileFormatting {
		log.Info("Executing file formatting with clang format.")
		script := filepath.Join(b.SourceDir, filepath.FromSlash(r.Sonar.FormatScript))
		if err := qa.CheckFormatting(ctx, c, b.SourceDir, script); err != nil {
			return err
		}
	} else {
		log.Info("Skipping file formatting with clang format.")
	}

	coverage := b.Config.RunCodeCoverageCheck && runtime.GOOS == "linux"
	if coverage && r.Sonar.CoverageDefine != "" {
		c.Define(r.Sonar.CoverageDefine, "TRUE")
	}
	scanner, err := toolPath(deps, r.Sonar.Scanner)
	if err != nil {
		return err
	}
	wrapper, err := toolPath(deps, r.Sonar.BuildWrapper)
	if err != nil {
		return err
	}
	s := &qa.Sonar{
		Runner:       b.Runner,
		CMake:        c,
		Scanner:      scanner,
		BuildWrapper: wrapper,
		SourceDir:    b.SourceDir,
		BuildDir:     b.BuildDir,
		Version:      r.Version,
		Token:        b.Config.Credentials.SonarToken,
		Coverage:     coverage,
		TestResult:   b.testResultPath(b.BuildDir),
	}
	return s.Run(ctx)
}
