package build

import (
	"cmp"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/agilira/go-errors"
	"github.com/qiniu/x/log"

	"github.com/goplus/abiguard/internal/errcode"
	"github.com/goplus/abiguard/internal/recipe"
)

const exportInfoFile = "export.json"

// exportInfo describes an exported recipe.
type exportInfo struct {
	Ref string `json:"ref"`
	// Revision is the pull request the recipe was exported from, or "auto".
	Revision string   `json:"revision"`
	Files    []string `json:"files"`
}

// Export copies the recipe file, the version file and the exports of the
// recipe into the export folder of its reference, replacing earlier
// exports. It returns the export folder.
func (b *Builder) Export() (string, error) {
	r := b.Recipe
	dir, err := b.Store.ExportDir(r.Ref())
	if err != nil {
		return "", err
	}
	files, err := b.exportFiles()
	if err != nil {
		return "", err
	}
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("failed to clear export folder: %w", err)
	}
	for _, rel := range files {
		if _, err := copyTree(filepath.Join(r.Dir, rel), filepath.Join(dir, rel)); err != nil {
			return "", fmt.Errorf("failed to export %s: %w", rel, err)
		}
	}

	info := exportInfo{
		Ref:      r.Ref().String(),
		Revision: cmp.Or(b.Config.ChangeID, "auto"),
		Files:    make([]string, 0, len(files)),
	}
	for _, rel := range files {
		info.Files = append(info.Files, filepath.ToSlash(rel))
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, exportInfoFile), data, 0o644); err != nil {
		return "", err
	}
	log.Infof("exported %s to %s", info.Ref, dir)
	return dir, nil
}

// exportFiles returns the recipe-relative paths to export.
func (b *Builder) exportFiles() ([]string, error) {
	r := b.Recipe
	files := []string{recipe.FileName, recipe.VersionFile}
	patterns := slices.Clone(r.Exports)
	if r.ABI != nil {
		patterns = append(patterns, r.ABI.HeadersFile)
	}
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(r.Dir, filepath.FromSlash(pattern)))
		if err != nil {
			return nil, errors.Wrap(err, errcode.InvalidRecipe, "invalid export pattern").
				WithContext("recipe", r.Name).WithContext("pattern", pattern)
		}
		if len(matches) == 0 {
			log.Warnf("export pattern %q matches nothing", pattern)
		}
		for _, m := range matches {
			rel, err := filepath.Rel(r.Dir, m)
			if err != nil {
				return nil, err
			}
			if !slices.Contains(files, rel) {
				files = append(files, rel)
			}
		}
	}
	return files, nil
}
