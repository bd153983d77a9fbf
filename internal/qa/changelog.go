package qa

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goplus/abiguard/internal/env"
	"github.com/goplus/abiguard/internal/recipe"
	"github.com/goplus/abiguard/pkgs/ref"
	"github.com/goplus/abiguard/x/tool"
)

// ShouldGenerateChangelog reports whether the build runs on CI, the only
// place where the Jira and Bitbucket credentials are available.
func ShouldGenerateChangelog(cfg *env.Config) bool {
	return cfg.JenkinsURL != ""
}

// Changelog runs the changelog generator.
type Changelog struct {
	Runner      *tool.Runner
	Tool        string
	Config      *recipe.ChangelogConfig
	Credentials env.Credentials
}

// Generate writes the changelog of version to output, starting from the
// template in sourceDir. Credentials reach the generator through its
// environment.
func (c *Changelog) Generate(ctx context.Context, sourceDir, output, version string) error {
	if err := tool.Require(c.Tool); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return fmt.Errorf("failed to create changelog directory: %w", err)
	}
	r := *c.Runner
	r.Env = append(append([]string(nil), r.Env...),
		"JIRA_USR="+c.Credentials.JiraUser,
		"JIRA_PSW="+c.Credentials.JiraToken,
		"BITBUCKET_PSW="+c.Credentials.BitbucketToken,
	)
	return r.RunChecked(ctx, c.Tool, c.Args(sourceDir, output, version)...)
}

// Args returns the generator arguments.
func (c *Changelog) Args(sourceDir, output, version string) []string {
	jiraVersion := ref.Expand(c.Config.JiraVersion, map[string]string{"version": recipe.BaseVersion(version)})
	args := []string{
		"--input", filepath.Join(sourceDir, c.Config.Input),
		"--output", output,
		"--atlassian-url", c.Config.AtlassianURL,
		"--jira-project", c.Config.JiraProject,
		"--jira-version", jiraVersion,
		"--bitbucket-repo", c.Config.BitbucketRepo,
		"--bitbucket-project", c.Config.BitbucketProject,
		"--product-name", c.Config.ProductName,
	}
	if c.Config.AdditionalJiraQuery != "" {
		args = append(args, "--additional-jira-query", c.Config.AdditionalJiraQuery)
	}
	return args
}
