// Command check-build-requirements reports which of a list of package
// references cannot be resolved in the package store.
//
// Usage:
//
//	check-build-requirements -p "cmake/3.23.2@fep/stable;gtest/1.10.0@fep/stable"
//
// It exits 0 when every reference resolves. Otherwise it prints the
// unresolved references joined by ";" and exits 1.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/qiniu/x/log"
	"github.com/spf13/pflag"

	"github.com/goplus/abiguard/internal/env"
	"github.com/goplus/abiguard/internal/store"
	"github.com/goplus/abiguard/pkgs/ref"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("check-build-requirements", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	packages := fs.StringP("package", "p", "", "Package references separated by ';'")
	storeDir := fs.String("store", "", "Package store root (default $ABIGUARD_HOME or <UserCacheDir>/.abiguard/packages)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if !fs.Changed("package") {
		fmt.Fprintln(stderr, "check-build-requirements: -p/--package is required")
		fs.PrintDefaults()
		return 2
	}

	dir := *storeDir
	if dir == "" {
		cfg, err := env.FromOS()
		if err != nil {
			log.Error(err)
			return 2
		}
		if dir, err = cfg.StoreDir(); err != nil {
			log.Error("failed to get store dir:", err)
			return 2
		}
	}

	unresolved := missing(store.New(dir), ref.SplitList(*packages))
	if len(unresolved) == 0 {
		return 0
	}
	fmt.Fprintln(stdout, strings.Join(unresolved, ";"))
	return 1
}

// missing returns the entries of refs that do not parse or are not packaged
// in s, in input order.
func missing(s *store.Store, refs []string) []string {
	var out []string
	for _, raw := range refs {
		r, err := ref.Parse(raw)
		if err != nil {
			log.Debugf("%s: %v", raw, err)
			out = append(out, raw)
			continue
		}
		if _, err := s.Lookup(r); err != nil {
			log.Debugf("%s: %v", raw, err)
			out = append(out, raw)
		}
	}
	return out
}
