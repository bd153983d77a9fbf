// Package recipe loads build recipes: the product data shared by all
// recipes of a repository, and one entry per recipe with its kind, exports,
// requirements and kind specific settings.
package recipe

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/agilira/go-errors"
	"gopkg.in/yaml.v3"

	"github.com/goplus/abiguard/internal/errcode"
	"github.com/goplus/abiguard/pkgs/ref"
)

// File names looked up in a recipe directory.
const (
	FileName    = "recipe.yml"
	VersionFile = "version"
)

// Kind selects the lifecycle implementation of a recipe.
type Kind string

const (
	KindLibrary  Kind = "library"
	KindTests    Kind = "tests"
	KindAbiDump  Kind = "abi_dump"
	KindAbiCheck Kind = "abi_check"
	KindSca      Kind = "sca"
	KindDocs     Kind = "docs"
)

var kinds = []Kind{KindLibrary, KindTests, KindAbiDump, KindAbiCheck, KindSca, KindDocs}

// Build requirement keys used when a recipe doesn't name its own.
const (
	DefaultDumper            = "abi_dumper"
	DefaultChecker           = "abi_compliance_checker"
	DefaultSonarScanner      = "sonar_scanner"
	DefaultSonarBuildWrapper = "sonar_build_wrapper"
	DefaultBlackDuck         = "blackduck_detect"
	DefaultChangelog         = "changelog_generator"
)

// File is the content of recipe.yml.
type File struct {
	Product           string            `yaml:"product"`
	License           string            `yaml:"license"`
	URL               string            `yaml:"url"`
	User              string            `yaml:"user"`
	Channel           string            `yaml:"channel"`
	Requirements      map[string]string `yaml:"requirements"`
	BuildRequirements map[string]string `yaml:"build_requirements"`
	Recipes           []Entry           `yaml:"recipes"`
}

// Entry is one recipe of a recipe.yml.
type Entry struct {
	Name              string           `yaml:"name"`
	Kind              Kind             `yaml:"kind"`
	Description       string           `yaml:"description"`
	Exports           []string         `yaml:"exports"`
	Requirements      []string         `yaml:"requirements"`
	BuildRequirements []string         `yaml:"build_requirements"`
	CMake             *CMakeConfig     `yaml:"cmake"`
	ABI               *ABIConfig       `yaml:"abi"`
	BlackDuck         *BlackDuckConfig `yaml:"blackduck"`
	Sonar             *SonarConfig     `yaml:"sonar"`
	Changelog         *ChangelogConfig `yaml:"changelog"`
}

// CMakeConfig configures the cmake based kinds.
type CMakeConfig struct {
	SourceDir string         `yaml:"source_dir"`
	Generator string         `yaml:"generator"`
	BuildType string         `yaml:"build_type"`
	Defines   map[string]any `yaml:"defines"`
	// EnvDefines maps a cmake variable to the environment option feeding it.
	EnvDefines map[string]string `yaml:"env_defines"`
	// RootDefines maps a cmake variable to the build requirement whose
	// package root it receives.
	RootDefines map[string]string `yaml:"root_defines"`
	// PathDefines maps a cmake variable to a path template in which
	// ${source_folder} and ${build_folder} expand.
	PathDefines map[string]string `yaml:"path_defines"`
	// TestResult is the JUnit file ctest writes below test/results/function.
	TestResult string `yaml:"test_result"`
}

// ABIConfig configures the abi_dump and abi_check kinds.
type ABIConfig struct {
	// Library is the file name of the shared library, as the checker reports it.
	Library string `yaml:"library"`
	// LibraryPath locates the library inside the product package.
	LibraryPath string `yaml:"library_path"`
	// Package is the build requirement key of the product package.
	Package string `yaml:"package"`
	// HeadersFile lists public headers, relative to the recipe directory.
	HeadersFile string `yaml:"headers_file"`
	DumpFile    string `yaml:"dump_file"`
	DumpDir     string `yaml:"dump_dir"`
	// Reference is the build requirement key of the baseline dump package.
	Reference string `yaml:"reference"`
	Dumper    string `yaml:"dumper"`
	Checker   string `yaml:"checker"`
}

// BlackDuckConfig configures the Black Duck scan of the library kind.
type BlackDuckConfig struct {
	Tool           string   `yaml:"tool"`
	ProjectName    string   `yaml:"project_name"`
	ProjectGroup   string   `yaml:"project_group"`
	Tags           []string `yaml:"tags"`
	Channels       []string `yaml:"channels"`
	AdditionalArgs []string `yaml:"additional_args"`
}

// SonarConfig configures the sca kind.
type SonarConfig struct {
	Scanner      string `yaml:"scanner"`
	BuildWrapper string `yaml:"build_wrapper"`
	// FormatScript is the clang-format cmake script, relative to the
	// source folder.
	FormatScript string `yaml:"format_script"`
	// CoverageDefine is set to TRUE when coverage is collected.
	CoverageDefine string `yaml:"coverage_define"`
}

// ChangelogConfig configures changelog generation of the library kind.
type ChangelogConfig struct {
	Tool                string `yaml:"tool"`
	Input               string `yaml:"input"`
	AtlassianURL        string `yaml:"atlassian_url"`
	JiraProject         string `yaml:"jira_project"`
	AdditionalJiraQuery string `yaml:"additional_jira_query"`
	BitbucketRepo       string `yaml:"bitbucket_repo"`
	BitbucketProject    string `yaml:"bitbucket_project"`
	ProductName         string `yaml:"product_name"`
	// JiraVersion names the Jira fix version; ${version} expands to the
	// version without its build suffix.
	JiraVersion string `yaml:"jira_version"`
}

// Requirement is a resolved requirement entry.
type Requirement struct {
	Key string
	Ref ref.Ref
}

// Recipe is a loaded recipe with its requirements resolved to references.
type Recipe struct {
	Entry

	Dir     string
	Product string
	License string
	URL     string
	Version string
	User    string
	Channel string

	Requires      []Requirement
	BuildRequires []Requirement
}

// Ref returns the package reference the recipe produces.
func (r *Recipe) Ref() ref.Ref {
	return ref.Ref{Name: r.Name, Version: r.Version, User: r.User, Channel: r.Channel}
}

// BuildRequirement returns the reference of the build requirement key.
func (r *Recipe) BuildRequirement(key string) (ref.Ref, bool) {
	for _, req := range r.BuildRequires {
		if req.Key == key {
			return req.Ref, true
		}
	}
	return ref.Ref{}, false
}

// Options override the user and channel of recipe.yml.
type Options struct {
	User    string
	Channel string
}

// Load reads recipe.yml and the version file from dir and returns the recipe
// called name.
func Load(dir, name string, opts Options) (*Recipe, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return nil, errors.Wrap(err, errcode.InvalidRecipe, "failed to read recipe file").WithContext("dir", dir)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, errcode.InvalidRecipe, "failed to parse recipe file").WithContext("dir", dir)
	}
	version, err := ReadVersion(dir)
	if err != nil {
		return nil, err
	}
	return f.Resolve(dir, name, version, opts)
}

// ReadVersion reads and validates the version file of dir.
func ReadVersion(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, VersionFile))
	if err != nil {
		return "", errors.Wrap(err, errcode.InvalidRecipe, "failed to read version file").WithContext("dir", dir)
	}
	version := strings.TrimSpace(string(data))
	if !ValidVersion(version) {
		return "", errors.New(errcode.InvalidRecipe, fmt.Sprintf("invalid version %q", version)).WithContext("dir", dir)
	}
	return version, nil
}

// Names returns the recipe names of f in file order.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.Recipes))
	for _, e := range f.Recipes {
		names = append(names, e.Name)
	}
	return names
}

// Resolve builds the recipe called name from f.
func (f *File) Resolve(dir, name, version string, opts Options) (*Recipe, error) {
	idx := slices.IndexFunc(f.Recipes, func(e Entry) bool { return e.Name == name })
	if idx < 0 {
		return nil, errors.New(errcode.InvalidRecipe, fmt.Sprintf("no recipe %q, have %s", name, strings.Join(f.Names(), ", ")))
	}
	r := &Recipe{
		Entry:   f.Recipes[idx],
		Dir:     dir,
		Product: f.Product,
		License: f.License,
		URL:     f.URL,
		Version: version,
		User:    cmp.Or(opts.User, f.User),
		Channel: cmp.Or(opts.Channel, f.Channel),
	}
	if !slices.Contains(kinds, r.Kind) {
		return nil, invalid(r, fmt.Sprintf("unknown kind %q", r.Kind))
	}
	if err := r.Ref().Validate(); err != nil {
		return nil, errors.Wrap(err, errcode.InvalidRecipe, "invalid recipe reference").WithContext("recipe", name)
	}

	vars := map[string]string{"version": r.Version, "user": r.User, "channel": r.Channel}
	var err error
	if r.Requires, err = resolveRequirements(r.Requirements, f.Requirements, vars); err != nil {
		return nil, errors.Wrap(err, errcode.InvalidRecipe, "invalid requirements").WithContext("recipe", name)
	}
	if r.BuildRequires, err = resolveRequirements(r.BuildRequirements, f.BuildRequirements, vars); err != nil {
		return nil, errors.Wrap(err, errcode.InvalidRecipe, "invalid build requirements").WithContext("recipe", name)
	}
	if err := r.applyDefaults(); err != nil {
		return nil, err
	}
	return r, nil
}

// resolveRequirements turns entries into references. An entry is either a
// key of shared, or a reference template whose key is the package name.
func resolveRequirements(entries []string, shared map[string]string, vars map[string]string) ([]Requirement, error) {
	reqs := make([]Requirement, 0, len(entries))
	for _, entry := range entries {
		key, tmpl := entry, entry
		if s, ok := shared[entry]; ok {
			tmpl = s
		} else if !strings.Contains(entry, "@") {
			return nil, fmt.Errorf("unknown requirement %q", entry)
		}
		r, err := ref.Parse(ref.Expand(tmpl, vars))
		if err != nil {
			return nil, err
		}
		if key == tmpl {
			key = r.Name
		}
		reqs = append(reqs, Requirement{Key: key, Ref: r})
	}
	return reqs, nil
}

func (r *Recipe) applyDefaults() error {
	switch r.Kind {
	case KindAbiDump, KindAbiCheck:
		if r.ABI == nil {
			return invalid(r, "missing abi section")
		}
		a := r.ABI
		a.DumpDir = cmp.Or(a.DumpDir, string(r.Kind))
		a.Dumper = cmp.Or(a.Dumper, DefaultDumper)
		a.Checker = cmp.Or(a.Checker, DefaultChecker)
		if a.Library == "" {
			a.Library = filepath.Base(a.LibraryPath)
		}
		required := []string{a.LibraryPath, a.Package, a.HeadersFile, a.DumpFile}
		keys := []string{a.Package, a.Dumper}
		if r.Kind == KindAbiCheck {
			required = append(required, a.Reference)
			keys = append(keys, a.Reference, a.Checker)
		}
		if slices.Contains(required, "") {
			msg := "abi section needs library_path, package, headers_file and dump_file"
			if r.Kind == KindAbiCheck {
				msg = "abi section needs library_path, package, headers_file, dump_file and reference"
			}
			return invalid(r, msg)
		}
		for _, key := range keys {
			if _, ok := r.BuildRequirement(key); !ok {
				return invalid(r, fmt.Sprintf("abi section names %q, which is not a build requirement", key))
			}
		}
	case KindLibrary, KindTests:
		if r.CMake == nil {
			r.CMake = &CMakeConfig{}
		}
		c := r.CMake
		if c.SourceDir == "" && r.Kind == KindTests {
			c.SourceDir = "test"
		}
		c.SourceDir = cmp.Or(c.SourceDir, ".")
		c.BuildType = cmp.Or(c.BuildType, "Release")
		defaultResult := "tester_result_private_tests.xml"
		if r.Kind == KindTests {
			defaultResult = "tester_result_functional_tests.xml"
		}
		c.TestResult = cmp.Or(c.TestResult, defaultResult)
		if b := r.BlackDuck; b != nil {
			b.Tool = cmp.Or(b.Tool, DefaultBlackDuck)
			b.ProjectName = cmp.Or(b.ProjectName, r.Product)
		}
		if c := r.Changelog; c != nil {
			c.Tool = cmp.Or(c.Tool, DefaultChangelog)
			c.Input = cmp.Or(c.Input, "doc/changelog.md")
			c.ProductName = cmp.Or(c.ProductName, r.Product)
			c.JiraVersion = cmp.Or(c.JiraVersion, c.ProductName+" ${version}")
		}
	case KindSca:
		if r.CMake == nil {
			r.CMake = &CMakeConfig{}
		}
		r.CMake.SourceDir = cmp.Or(r.CMake.SourceDir, ".")
		r.CMake.BuildType = cmp.Or(r.CMake.BuildType, "Release")
		r.CMake.TestResult = cmp.Or(r.CMake.TestResult, "tester_result_functional_tests.xml")
		if r.Sonar == nil {
			r.Sonar = &SonarConfig{}
		}
		r.Sonar.Scanner = cmp.Or(r.Sonar.Scanner, DefaultSonarScanner)
		r.Sonar.BuildWrapper = cmp.Or(r.Sonar.BuildWrapper, DefaultSonarBuildWrapper)
		r.Sonar.FormatScript = cmp.Or(r.Sonar.FormatScript, "cmake/cortex_clang_format_target.cmake")
	case KindDocs:
		if r.CMake == nil {
			r.CMake = &CMakeConfig{}
		}
		r.CMake.SourceDir = cmp.Or(r.CMake.SourceDir, ".")
		r.CMake.BuildType = cmp.Or(r.CMake.BuildType, "Release")
	}
	return nil
}

func invalid(r *Recipe, msg string) error {
	return errors.New(errcode.InvalidRecipe, msg).WithContext("recipe", r.Name)
}
