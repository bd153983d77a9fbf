// Package cmake wraps the cmake configure/build/install workflow and ctest.
package cmake

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"

	"github.com/goplus/abiguard/x/tool"
)

type defineValue struct {
	value    string
	typeName string
}

// CMake drives CMake-based builds.
type CMake struct {
	runner     *tool.Runner
	sourceDir  string
	buildDir   string
	installDir string
	generator  string
	buildType  string
	toolchain  string
	defines    map[string]defineValue
	env        map[string]string
}

// New returns a ready-to-use CMake running its tools through runner.
func New(runner *tool.Runner, sourceDir, buildDir, installDir string) *CMake {
	if runner == nil {
		runner = &tool.Runner{}
	}
	return &CMake{
		runner:     runner,
		sourceDir:  sourceDir,
		buildDir:   buildDir,
		installDir: installDir,
		defines:    make(map[string]defineValue),
		env:        make(map[string]string),
	}
}

// Source overrides the source directory.
func (c *CMake) Source(dir string) { c.sourceDir = dir }

// Generator sets the CMake generator (e.g. "Ninja", "Unix Makefiles").
func (c *CMake) Generator(name string) { c.generator = name }

// BuildType sets CMAKE_BUILD_TYPE (e.g. "Release", "Debug").
func (c *CMake) BuildType(name string) { c.buildType = name }

// Toolchain sets CMAKE_TOOLCHAIN_FILE.
func (c *CMake) Toolchain(path string) { c.toolchain = path }

// Define adds a -D<key>:STRING=<value> definition.
func (c *CMake) Define(key, value string) {
	c.defines[key] = defineValue{value: value, typeName: "STRING"}
}

// DefineBool adds a -D<key>:BOOL=ON/OFF definition.
func (c *CMake) DefineBool(key string, value bool) {
	v := "OFF"
	if value {
		v = "ON"
	}
	c.defines[key] = defineValue{value: v, typeName: "BOOL"}
}

// DefinePath adds a -D<key>:PATH=<value> definition.
func (c *CMake) DefinePath(key, value string) {
	c.defines[key] = defineValue{value: filepath.ToSlash(value), typeName: "PATH"}
}

// DefineValue adds a definition typed after v, as decoded from a recipe file.
func (c *CMake) DefineValue(key string, v any) {
	switch v := v.(type) {
	case bool:
		c.DefineBool(key, v)
	case int:
		c.Define(key, strconv.Itoa(v))
	case float64:
		c.Define(key, strconv.FormatFloat(v, 'f', -1, 64))
	case string:
		c.Define(key, v)
	case nil:
		c.Define(key, "")
	default:
		c.Define(key, fmt.Sprint(v))
	}
}

// Use sets up the environment of the tools run by c so that CMake and the
// compilers find headers, libraries and pkg-config files of a dependency
// installed at root.
func (c *CMake) Use(root string) {
	includeDir := filepath.Join(root, "include")
	libDir := filepath.Join(root, "lib")
	pkgconfigDir := filepath.Join(libDir, "pkgconfig")

	if isDir(pkgconfigDir) {
		c.prependPath("PKG_CONFIG_PATH", pkgconfigDir)
	}
	c.prependPath("CMAKE_PREFIX_PATH", root)
	if isDir(includeDir) {
		c.prependPath("CMAKE_INCLUDE_PATH", includeDir)
	}
	if isDir(libDir) {
		c.prependPath("CMAKE_LIBRARY_PATH", libDir)
	}

	if runtime.GOOS == "windows" {
		if isDir(includeDir) {
			c.prependPath("INCLUDE", includeDir)
		}
		if isDir(libDir) {
			c.prependPath("LIB", libDir)
		}
	} else {
		if isDir(includeDir) {
			c.appendFlag("CPPFLAGS", "-I"+includeDir)
		}
		if isDir(libDir) {
			c.appendFlag("LDFLAGS", "-L"+libDir)
		}
	}
}

// Configure runs "cmake -S <source> -B <build>" with all configured options.
// Extra args are appended at the end.
func (c *CMake) Configure(ctx context.Context, args ...string) error {
	if err := os.MkdirAll(c.buildDir, 0o755); err != nil {
		return err
	}
	cmakeArgs := []string{"-S", c.sourceDir, "-B", c.buildDir}
	if c.generator != "" {
		cmakeArgs = append(cmakeArgs, "-G", c.generator)
	}
	if c.installDir != "" {
		c.DefinePath("CMAKE_INSTALL_PREFIX", c.installDir)
	}
	if c.toolchain != "" {
		c.DefinePath("CMAKE_TOOLCHAIN_FILE", c.toolchain)
	}
	if c.buildType != "" {
		c.Define("CMAKE_BUILD_TYPE", c.buildType)
	}
	cmakeArgs = append(cmakeArgs, c.definesArgs()...)
	cmakeArgs = append(cmakeArgs, args...)
	return c.run(ctx, "cmake", cmakeArgs...)
}

// Build runs "cmake --build <build>" with optional extra arguments.
func (c *CMake) Build(ctx context.Context, args ...string) error {
	return c.run(ctx, "cmake", c.buildArgs(args)...)
}

// BuildWrapped runs the build under wrapper, which receives
// "--out-dir <outDir>" followed by the cmake build command line.
func (c *CMake) BuildWrapped(ctx context.Context, wrapper, outDir string, args ...string) error {
	wrapped := append([]string{"--out-dir", outDir, "cmake"}, c.buildArgs(args)...)
	return c.run(ctx, wrapper, wrapped...)
}

func (c *CMake) buildArgs(args []string) []string {
	cmakeArgs := []string{"--build", c.buildDir}
	if c.buildType != "" {
		cmakeArgs = append(cmakeArgs, "--config", c.buildType)
	}
	return append(cmakeArgs, args...)
}

// Install runs "cmake --install <build>" with optional extra arguments.
func (c *CMake) Install(ctx context.Context, args ...string) error {
	cmakeArgs := []string{"--install", c.buildDir}
	if c.installDir != "" {
		cmakeArgs = append(cmakeArgs, "--prefix", c.installDir)
	}
	cmakeArgs = append(cmakeArgs, args...)
	return c.run(ctx, "cmake", cmakeArgs...)
}

// Test runs ctest in the build directory and writes a JUnit report to
// junitPath. Failing tests are reported in the Outcome, not as an error.
func (c *CMake) Test(ctx context.Context, junitPath string) (tool.Outcome, error) {
	if err := os.MkdirAll(filepath.Dir(junitPath), 0o755); err != nil {
		return tool.Outcome{}, err
	}
	args := []string{"--test-dir", c.buildDir}
	if c.buildType != "" {
		args = append(args, "-C", c.buildType)
	}
	args = append(args, "--output-junit", junitPath,
		"--test-output-size-failed", "0", "--test-output-size-passed", "0")
	return c.withEnv().Run(ctx, "ctest", args...)
}

// Script runs "cmake -D... -P <script>" with the given definitions only.
func (c *CMake) Script(ctx context.Context, script string, defines map[string]string) error {
	keys := make([]string, 0, len(defines))
	for k := range defines {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]string, 0, len(keys)+2)
	for _, k := range keys {
		args = append(args, "-D"+k+"="+defines[k])
	}
	args = append(args, "-P", script)
	return c.run(ctx, "cmake", args...)
}

// OutputDir returns installDir if set, otherwise buildDir.
func (c *CMake) OutputDir() string {
	if c.installDir != "" {
		return c.installDir
	}
	return c.buildDir
}

func (c *CMake) run(ctx context.Context, name string, args ...string) error {
	return c.withEnv().RunChecked(ctx, name, args...)
}

// withEnv returns a copy of the runner carrying the environment set by Use.
func (c *CMake) withEnv() *tool.Runner {
	r := *c.runner
	r.Env = append(append([]string(nil), r.Env...), c.envList()...)
	return &r
}

func (c *CMake) envList() []string {
	keys := make([]string, 0, len(c.env))
	for k := range c.env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	list := make([]string, 0, len(keys))
	for _, k := range keys {
		list = append(list, k+"="+c.env[k])
	}
	return list
}

func (c *CMake) definesArgs() []string {
	if len(c.defines) == 0 {
		return nil
	}
	keys := make([]string, 0, len(c.defines))
	for k := range c.defines {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]string, 0, len(keys))
	for _, k := range keys {
		d := c.defines[k]
		args = append(args, "-D"+k+":"+d.typeName+"="+d.value)
	}
	return args
}

func (c *CMake) getenv(key string) string {
	if v, ok := c.env[key]; ok {
		return v
	}
	return os.Getenv(key)
}

// prependPath prepends value to a PATH-style variable.
func (c *CMake) prependPath(key, value string) {
	if cur := c.getenv(key); cur != "" {
		value += string(os.PathListSeparator) + cur
	}
	c.env[key] = value
}

// appendFlag appends a space-separated flag to a variable.
func (c *CMake) appendFlag(key, flag string) {
	if cur := c.getenv(key); cur != "" {
		flag = cur + " " + flag
	}
	c.env[key] = flag
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
