//go:build !unix

package tool

// Windows has no execute permission bit; existence is all that can be checked.
func checkExecutable(path string) error {
	return nil
}
