// Package qa runs the quality scans attached to the recipes: the Black Duck
// license scan, the SonarQube analysis, the clang-format check and the
// changelog generator.
package qa

import (
	"context"
	"slices"
	"strings"

	"github.com/qiniu/x/log"

	"github.com/goplus/abiguard/internal/env"
	"github.com/goplus/abiguard/internal/recipe"
	"github.com/goplus/abiguard/x/tool"
)

var defaultBlackDuckChannels = []string{"stable", "integration"}

// ShouldRunBlackDuck reports whether the Black Duck scan runs for a package
// on channel. The node must be allowed to run it, and either the channel is
// one of channels or RUN_BLACK_DUCK_CHECK is set.
func ShouldRunBlackDuck(cfg *env.Config, channels []string, channel string) bool {
	if cfg.BlackDuckNode == "" {
		return false
	}
	if len(channels) == 0 {
		channels = defaultBlackDuckChannels
	}
	return cfg.RunBlackDuckCheck || slices.Contains(channels, channel)
}

// ScanTarget identifies the scanned package version.
type ScanTarget struct {
	Name       string
	Version    string
	Channel    string
	SourcePath string
}

// BlackDuck runs the detect scanner.
type BlackDuck struct {
	Runner *tool.Runner
	Tool   string
	Config *recipe.BlackDuckConfig
}

// Args returns the detect arguments for t.
func (b *BlackDuck) Args(t ScanTarget) []string {
	args := []string{
		"--detect.project.name=" + b.Config.ProjectName,
		"--detect.project.version.name=" + t.Name + " " + t.Version + " " + t.Channel,
		"--detect.source.path=" + t.SourcePath,
		"--detect.tools=DETECTOR,SIGNATURE_SCAN",
	}
	if b.Config.ProjectGroup != "" {
		args = append(args, "--detect.project.group.name="+b.Config.ProjectGroup)
	}
	if len(b.Config.Tags) > 0 {
		args = append(args, "--detect.project.tags="+strings.Join(b.Config.Tags, ","))
	}
	return append(args, b.Config.AdditionalArgs...)
}

// Scan runs the scanner and fails on any error.
func (b *BlackDuck) Scan(ctx context.Context, t ScanTarget) error {
	if err := tool.Require(b.Tool); err != nil {
		return err
	}
	return b.Runner.RunChecked(ctx, b.Tool, b.Args(t)...)
}

// ScanBestEffort runs Scan and turns a failure into a warning. It reports
// whether the scan succeeded.
func (b *BlackDuck) ScanBestEffort(ctx context.Context, t ScanTarget) bool {
	if err := b.Scan(ctx, t); err != nil {
		log.Warnf("An error occurred while running the Black Duck scan: %v", err)
		return false
	}
	return true
}
