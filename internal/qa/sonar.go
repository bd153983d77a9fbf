package qa

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/qiniu/x/log"

	"github.com/goplus/abiguard/internal/recipe"
	"github.com/goplus/abiguard/x/cmake"
	"github.com/goplus/abiguard/x/tool"
)

// Sonar runs a build under the SonarQube build wrapper, optionally collects
// gcov coverage, and uploads the analysis with the scanner.
type Sonar struct {
	Runner *tool.Runner
	// CMake is configured with the defines of the analysed build.
	CMake *cmake.CMake

	Scanner      string
	BuildWrapper string

	SourceDir string
	BuildDir  string
	Version   string
	Token     string

	Coverage bool
	// TestResult is the JUnit file of the coverage test run.
	TestResult string
}

// WrapperOutputDir returns the build wrapper output directory.
func (s *Sonar) WrapperOutputDir() string {
	return filepath.Join(s.BuildDir, "sonar_build_output")
}

// CoverageDir returns the directory receiving the gcov reports.
func (s *Sonar) CoverageDir() string {
	return filepath.Join(s.BuildDir, "code_coverage")
}

// Run performs the analysis.
func (s *Sonar) Run(ctx context.Context) error {
	if err := s.prepareTools(); err != nil {
		return err
	}
	if err := s.CMake.Configure(ctx); err != nil {
		return fmt.Errorf("failed to configure: %w", err)
	}
	if err := s.CMake.BuildWrapped(ctx, s.BuildWrapper, s.WrapperOutputDir()); err != nil {
		return fmt.Errorf("failed to build under the sonar build wrapper: %w", err)
	}

	coverageDir := s.CoverageDir()
	if err := os.MkdirAll(coverageDir, 0o755); err != nil {
		return err
	}
	if s.Coverage {
		log.Info("Executing code coverage check.")
		if err := s.coverage(ctx, coverageDir); err != nil {
			return err
		}
	} else {
		log.Info("Skipping code coverage check.")
	}

	return s.Runner.RunChecked(ctx, s.Scanner,
		"-Dsonar.login="+s.Token,
		"-Dsonar.projectBaseDir="+s.SourceDir,
		"-Dsonar.projectVersion="+recipe.BaseVersion(s.Version),
		"-Dsonar.cfamily.build-wrapper-output="+s.WrapperOutputDir(),
		"-Dsonar.cfamily.gcov.reportsPath="+coverageDir)
}

// prepareTools makes the unpacked scanner, its bundled java and the build
// wrapper executable.
func (s *Sonar) prepareTools() error {
	exes := []string{s.Scanner, s.BuildWrapper}
	java := filepath.Join(filepath.Dir(filepath.Dir(s.Scanner)), "jre", "bin", "java")
	if _, err := os.Stat(java); err == nil {
		exes = append(exes, java)
	}
	for _, exe := range exes {
		if err := tool.MakeExecutable(exe); err != nil {
			return fmt.Errorf("failed to make %s executable: %w", exe, err)
		}
		if err := tool.Require(exe); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sonar) coverage(ctx context.Context, dir string) error {
	out, err := s.CMake.Test(ctx, s.TestResult)
	if err != nil {
		return err
	}
	if !out.OK() {
		log.Warnf("ctest reported failing tests: %s", out)
	}

	objects, err := objectFiles(s.BuildDir, dir)
	if err != nil {
		return err
	}
	if len(objects) == 0 {
		log.Warn("no object files found, skipping gcov")
		return nil
	}
	r := *s.Runner
	r.Dir = dir
	return r.RunChecked(ctx, "gcov", append([]string{"--preserve-paths"}, objects...)...)
}

// objectFiles returns the .o files below root, relative to dir.
func objectFiles(root, dir string) ([]string, error) {
	var objects []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".o" {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		objects = append(objects, rel)
		return nil
	})
	return objects, err
}
