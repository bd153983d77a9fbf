// Package build implements the lifecycle hooks of a recipe: export,
// build-requirements, build and package.
package build

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agilira/go-errors"

	"github.com/goplus/abiguard/internal/env"
	"github.com/goplus/abiguard/internal/errcode"
	"github.com/goplus/abiguard/internal/recipe"
	"github.com/goplus/abiguard/internal/store"
	"github.com/goplus/abiguard/pkgs/ref"
	"github.com/goplus/abiguard/x/tool"
)

// CommandPathKey is the user info entry of a tool package holding the path
// of its executable, relative to the package root.
const CommandPathKey = "command_path"

// Builder runs the hooks of one recipe.
type Builder struct {
	Recipe *recipe.Recipe
	Config *env.Config
	Store  *store.Store
	Runner *tool.Runner

	SourceDir string
	BuildDir  string
}

// NewBuilder returns a Builder whose tools are bounded by the configured
// tool timeout. An empty sourceDir means the recipe directory.
func NewBuilder(r *recipe.Recipe, cfg *env.Config, s *store.Store, sourceDir, buildDir string) *Builder {
	if sourceDir == "" {
		sourceDir = r.Dir
	}
	return &Builder{
		Recipe:    r,
		Config:    cfg,
		Store:     s,
		Runner:    &tool.Runner{Timeout: cfg.ToolTimeout},
		SourceDir: sourceDir,
		BuildDir:  buildDir,
	}
}

// Dependency is a requirement resolved in the store.
type Dependency struct {
	Key     string
	Ref     ref.Ref
	Package *store.Package
}

// Root returns the package root of d.
func (d *Dependency) Root() string { return d.Package.RootPath }

// BuildRequirements resolves the build requirements of the recipe. When
// some are missing, the error lists all of them.
func (b *Builder) BuildRequirements() ([]Dependency, error) {
	return b.resolve(b.Recipe.BuildRequires)
}

// dependencies resolves the requirements and build requirements.
func (b *Builder) dependencies() ([]Dependency, error) {
	reqs := append(append([]recipe.Requirement(nil), b.Recipe.Requires...), b.Recipe.BuildRequires...)
	return b.resolve(reqs)
}

func (b *Builder) resolve(reqs []recipe.Requirement) ([]Dependency, error) {
	deps := make([]Dependency, 0, len(reqs))
	var missing []string
	for _, req := range reqs {
		pkg, err := b.Store.Lookup(req.Ref)
		if errcode.Is(err, errcode.PackageNotFound) {
			missing = append(missing, req.Ref.String())
			continue
		}
		if err != nil {
			return nil, err
		}
		deps = append(deps, Dependency{Key: req.Key, Ref: req.Ref, Package: pkg})
	}
	if len(missing) > 0 {
		list := strings.Join(missing, ";")
		return nil, errors.New(errcode.PackageNotFound, "unresolved requirements: "+list).
			WithContext("recipe", b.Recipe.Name).WithContext("refs", list)
	}
	return deps, nil
}

func findDependency(deps []Dependency, key string) (*Dependency, error) {
	for i := range deps {
		if deps[i].Key == key {
			return &deps[i], nil
		}
	}
	return nil, errors.New(errcode.InvalidRecipe, fmt.Sprintf("%q is not a requirement of the recipe", key))
}

// toolPath returns the executable of the tool package required as key.
func toolPath(deps []Dependency, key string) (string, error) {
	d, err := findDependency(deps, key)
	if err != nil {
		return "", err
	}
	rel, ok := d.Package.UserInfo(CommandPathKey)
	if !ok || rel == "" {
		return "", errors.New(errcode.ToolNotFound, "tool package has no "+CommandPathKey).
			WithContext("ref", d.Ref.String())
	}
	path := filepath.Join(d.Root(), filepath.FromSlash(rel))
	if _, err := os.Stat(path); err != nil {
		return "", errors.Wrap(err, errcode.ToolNotFound, "tool executable missing from its package").
			WithContext("ref", d.Ref.String()).WithContext("path", path)
	}
	return path, nil
}

// stagingDir is the cmake install prefix, packaged as is.
func (b *Builder) stagingDir() string {
	return filepath.Join(b.BuildDir, "package")
}

// testResultPath returns the JUnit file ctest writes for the recipe.
func (b *Builder) testResultPath(root string) string {
	return filepath.Join(root, "test", "results", "function", b.Recipe.CMake.TestResult)
}
