package abi

import (
	"os"
	"path/filepath"

	"github.com/agilira/go-errors"
	"github.com/qiniu/x/log"

	"github.com/goplus/abiguard/internal/errcode"
	"github.com/goplus/abiguard/internal/recipe"
	"github.com/goplus/abiguard/internal/store"
	"github.com/goplus/abiguard/pkgs/ref"
)

// DumpFileKey is the user info entry of a dump package holding the path of
// its dump, relative to the package root.
const DumpFileKey = "plugin_dump_file_name"

// ResolveReference returns the absolute path of the baseline dump packaged
// as r. currentVersion is the version being checked; a baseline that is not
// older than it only triggers a warning.
func ResolveReference(s *store.Store, r ref.Ref, currentVersion string) (string, error) {
	pkg, err := s.Lookup(r)
	if err != nil {
		return "", err
	}
	rel, ok := pkg.UserInfo(DumpFileKey)
	if !ok || rel == "" {
		return "", errors.New(errcode.ReferenceMissing, "reference package has no "+DumpFileKey).
			WithContext("ref", r.String())
	}
	if !filepath.IsLocal(filepath.FromSlash(rel)) {
		return "", errors.New(errcode.ReferenceMissing, "reference dump path leaves the package").
			WithContext("ref", r.String()).WithContext("path", rel)
	}
	path := filepath.Join(pkg.RootPath, filepath.FromSlash(rel))
	info, err := os.Stat(path)
	if err != nil {
		return "", errors.Wrap(err, errcode.ReferenceMissing, "reference dump not found").
			WithContext("ref", r.String()).WithContext("path", path)
	}
	if info.IsDir() {
		return "", errors.New(errcode.ReferenceMissing, "reference dump is a directory").
			WithContext("ref", r.String()).WithContext("path", path)
	}
	if currentVersion != "" && recipe.CompareVersions(r.Version, currentVersion) >= 0 {
		log.Warnf("reference %s is not older than the checked version %s", r, currentVersion)
	}
	return path, nil
}
