package qa

import (
	"context"

	"github.com/goplus/abiguard/x/cmake"
)

const clangFormatOptions = "--Werror --dry-run --style=file --verbose --fallback-style=none"

// CheckFormatting runs the clang-format cmake script in dry-run mode over
// sourceDir. Any formatting difference fails the check.
func CheckFormatting(ctx context.Context, c *cmake.CMake, sourceDir, script string) error {
	return c.Script(ctx, script, map[string]string{
		"cortex_cmake_clang_format_working_directory": sourceDir,
		"cortex_cmake_enable_file_formatting":         "ON",
		"cortex_cmake_clang_format_options":           clangFormatOptions,
	})
}
