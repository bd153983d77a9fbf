// Package env reads the environment options of the recipes once, at process
// start, against an explicit schema.
package env

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/agilira/go-errors"

	"github.com/goplus/abiguard/internal/errcode"
)

// Config holds every environment option the recipes consume.
type Config struct {
	DoxygenDisableWarningsAsErrors bool
	EnableDocumentation            bool
	EnableFunctionalTests          bool
	EnableFileFormatting           bool
	RunCodeCoverageCheck           bool
	RunBlackDuckCheck              bool

	// BlackDuckNode is set on CI nodes that are allowed to run Black Duck.
	BlackDuckNode string
	CTestTestDir  string
	JenkinsURL    string
	Workspace     string
	ChangeID      string

	Home        string
	ToolTimeout time.Duration

	Credentials Credentials
}

// Credentials are passed through to downstream services untouched.
type Credentials struct {
	JiraUser            string
	JiraToken           string
	BitbucketToken      string
	ArtifactoryUser     string
	ArtifactoryPassword string
	SonarToken          string
}

// Option describes one environment variable of the schema.
type Option struct {
	Env     string
	Default string
	Effect  string
	Secret  bool

	set func(c *Config, v string) error
	get func(c *Config) string
}

// Schema lists the environment options in display order.
var Schema = []Option{
	boolOpt("DOXYGEN_DISABLE_WARNINGS_AS_ERRORS", false, "do not treat doxygen warnings as errors",
		func(c *Config) *bool { return &c.DoxygenDisableWarningsAsErrors }),
	boolOpt("ENABLE_DOCUMENTATION", true, "build the docs recipe and the documentation targets",
		func(c *Config) *bool { return &c.EnableDocumentation }),
	boolOpt("ENABLE_FUNCTIONAL_TESTS", false, "configure and run the functional tests",
		func(c *Config) *bool { return &c.EnableFunctionalTests }),
	boolOpt("ENABLE_FILE_FORMATTING", false, "run the clang-format check in the sca recipe",
		func(c *Config) *bool { return &c.EnableFileFormatting }),
	boolOpt("RUN_CODE_COVERAGE_CHECK", false, "collect gcov coverage for the Sonar scan",
		func(c *Config) *bool { return &c.RunCodeCoverageCheck }),
	boolOpt("RUN_BLACK_DUCK_CHECK", false, "run the Black Duck scan on non-release channels",
		func(c *Config) *bool { return &c.RunBlackDuckCheck }),
	strOpt("JENKINS_NODE_TO_RUN_BLACK_DUCK_CHECK", "", "marks a node able to run Black Duck", false,
		func(c *Config) *string { return &c.BlackDuckNode }),
	strOpt("CTEST_TEST_DIR", "", "build folder used by coverage runs", false,
		func(c *Config) *string { return &c.CTestTestDir }),
	strOpt("JENKINS_URL", "", "generate doc/changelog.md when set", false,
		func(c *Config) *string { return &c.JenkinsURL }),
	strOpt("WORKSPACE", "", "source path scanned by Black Duck", false,
		func(c *Config) *string { return &c.Workspace }),
	strOpt("CHANGE_ID", "", "pull request id recorded in exported recipes", false,
		func(c *Config) *string { return &c.ChangeID }),
	strOpt("ABIGUARD_HOME", "", "package store root (default <UserCacheDir>/.abiguard/packages)", false,
		func(c *Config) *string { return &c.Home }),
	{
		Env:     "ABIGUARD_TOOL_TIMEOUT",
		Default: "0s",
		Effect:  "abort an external tool after this long (0 waits forever)",
		set: func(c *Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return err
			}
			if d < 0 {
				return fmt.Errorf("negative duration %s", v)
			}
			c.ToolTimeout = d
			return nil
		},
		get: func(c *Config) string { return c.ToolTimeout.String() },
	},
	strOpt("JIRA_USR", "", "Jira user for the changelog generator", false,
		func(c *Config) *string { return &c.Credentials.JiraUser }),
	strOpt("JIRA_PSW", "", "Jira API token for the changelog generator", true,
		func(c *Config) *string { return &c.Credentials.JiraToken }),
	strOpt("BITBUCKET_PSW", "", "Bitbucket API token for the changelog generator", true,
		func(c *Config) *string { return &c.Credentials.BitbucketToken }),
	strOpt("ARTIFACTORY_USR", "", "Artifactory user for tool downloads", false,
		func(c *Config) *string { return &c.Credentials.ArtifactoryUser }),
	strOpt("ARTIFACTORY_PSW", "", "Artifactory password for tool downloads", true,
		func(c *Config) *string { return &c.Credentials.ArtifactoryPassword }),
	strOpt("SONAR_PSW", "", "SonarQube login token", true,
		func(c *Config) *string { return &c.Credentials.SonarToken }),
}

func boolOpt(name string, def bool, effect string, field func(*Config) *bool) Option {
	return Option{
		Env:     name,
		Default: strconv.FormatBool(def),
		Effect:  effect,
		set: func(c *Config, v string) error {
			b, err := parseBool(v)
			if err != nil {
				return err
			}
			*field(c) = b
			return nil
		},
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
	}
}

func strOpt(name, def, effect string, secret bool, field func(*Config) *string) Option {
	return Option{
		Env:     name,
		Default: def,
		Effect:  effect,
		Secret:  secret,
		set: func(c *Config, v string) error {
			*field(c) = v
			return nil
		},
		get: func(c *Config) string { return *field(c) },
	}
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off", "":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", v)
}

// Load builds a Config from lookup, applying defaults for unset variables.
// Every option is validated; the first invalid value is returned as an error.
func Load(lookup func(string) (string, bool)) (*Config, error) {
	c := &Config{}
	for _, opt := range Schema {
		v, ok := lookup(opt.Env)
		if !ok {
			v = opt.Default
		}
		if err := opt.set(c, v); err != nil {
			return nil, errors.Wrap(err, errcode.InvalidConfig, "invalid value for "+opt.Env).
				WithContext("env", opt.Env)
		}
	}
	return c, nil
}

// FromOS loads the Config from the process environment.
func FromOS() (*Config, error) {
	return Load(os.LookupEnv)
}

// Value returns the current value of opt in c, masking secrets.
func (c *Config) Value(opt Option) string {
	v := opt.get(c)
	if opt.Secret && v != "" {
		return "****"
	}
	return v
}

// StoreDir returns the package store root, creating it with 0700 permissions
// if it doesn't exist. ABIGUARD_HOME wins over <UserCacheDir>/.abiguard/packages.
func (c *Config) StoreDir() (string, error) {
	dir := c.Home
	if dir == "" {
		userCacheDir, err := os.UserCacheDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(userCacheDir, ".abiguard", "packages")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}

// Lookup returns the unmasked value of the option read from the
// environment variable name.
func (c *Config) Lookup(name string) (string, bool) {
	for _, opt := range Schema {
		if opt.Env == name {
			return opt.get(c), true
		}
	}
	return "", false
}
