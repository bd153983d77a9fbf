// Package errcode lists the codes of hard errors, the failures that stop a
// lifecycle hook immediately instead of being reported as a test result.
package errcode

import (
	goerrors "errors"

	"github.com/agilira/go-errors"
)

const (
	ToolNotFound     = "ABIGUARD_TOOL_NOT_FOUND"
	ToolFailed       = "ABIGUARD_TOOL_FAILED"
	ToolTimeout      = "ABIGUARD_TOOL_TIMEOUT"
	InvalidInput     = "ABIGUARD_INVALID_INPUT"
	DumpMissing      = "ABIGUARD_DUMP_MISSING"
	ReferenceMissing = "ABIGUARD_REFERENCE_MISSING"
	PackageNotFound  = "ABIGUARD_PACKAGE_NOT_FOUND"
	InvalidRecipe    = "ABIGUARD_INVALID_RECIPE"
	InvalidConfig    = "ABIGUARD_INVALID_CONFIG"
	BuildRootLocked  = "ABIGUARD_BUILD_ROOT_LOCKED"
)

// Of returns the code carried by err or by any error it wraps, and "" if
// there is none.
func Of(err error) string {
	var coder errors.ErrorCoder
	if goerrors.As(err, &coder) {
		return string(coder.ErrorCode())
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	return err != nil && Of(err) == code
}
