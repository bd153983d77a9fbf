package build

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/qiniu/x/log"

	"github.com/goplus/abiguard/internal/abi"
	"github.com/goplus/abiguard/internal/recipe"
	"github.com/goplus/abiguard/internal/store"
)

// Package copies the artifacts of the last build into a staging folder
// and installs it as the package of the recipe reference. The previous
// package stays in place until the new one is complete.
func (b *Builder) Package() (*store.Package, error) {
	info, err := b.requireBuild()
	if err != nil {
		return nil, err
	}
	r := b.Recipe
	dir, err := b.Store.NewStaging()
	if err != nil {
		return nil, fmt.Errorf("failed to create package staging folder: %w", err)
	}
	defer os.RemoveAll(dir)

	var userInfo map[string]string
	switch r.Kind {
	case recipe.KindLibrary:
		err = b.packageLibrary(dir)
	case recipe.KindTests:
		_, err = copyTree(b.stagingDir(), dir)
	case recipe.KindAbiDump, recipe.KindAbiCheck:
		userInfo, err = b.packageABI(dir)
	case recipe.KindSca:
		log.Info("sca recipes package no files")
	case recipe.KindDocs:
		err = b.packageDocs(dir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to package %s: %w", r.Ref(), err)
	}
	if info.StageFailed {
		log.Warnf("packaging %s with failed ABI results", r.Ref())
	}

	pkg, err := b.Store.Install(r.Ref(), dir, userInfo)
	if err != nil {
		return nil, err
	}
	log.Infof("packaged %s to %s", r.Ref(), pkg.RootPath)
	return pkg, nil
}

func (b *Builder) packageLibrary(dir string) error {
	if _, err := copyTree(b.stagingDir(), dir); err != nil {
		return err
	}
	license := filepath.Join("doc", "license")
	if ok, err := copyTree(filepath.Join(b.SourceDir, license), filepath.Join(dir, license)); err != nil {
		return err
	} else if !ok {
		log.Warnf("no license documents in %s", filepath.Join(b.SourceDir, license))
	}

	changelog := filepath.Join("doc", "changelog.md")
	ok, err := copyTree(filepath.Join(b.BuildDir, changelog), filepath.Join(dir, changelog))
	if err != nil || ok {
		return err
	}
	// No changelog was generated: package the template.
	ok, err = copyTree(filepath.Join(b.SourceDir, changelog), filepath.Join(dir, changelog))
	if err == nil && !ok {
		log.Warnf("no changelog in %s", b.SourceDir)
	}
	return err
}

// packageDocs packages the install output and the doc folders of the
// source and build folders. Generated files win over sources.
func (b *Builder) packageDocs(dir string) error {
	if _, err := copyTree(b.stagingDir(), dir); err != nil {
		return err
	}
	for _, root := range []string{b.SourceDir, b.BuildDir} {
		if _, err := copyTree(filepath.Join(root, "doc"), filepath.Join(dir, "doc")); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) packageABI(dir string) (map[string]string, error) {
	a := b.Recipe.ABI
	if _, err := copyTree(filepath.Join(b.BuildDir, a.DumpDir), filepath.Join(dir, a.DumpDir)); err != nil {
		return nil, err
	}
	if _, err := copyTree(filepath.Join(b.BuildDir, "test"), filepath.Join(dir, "test")); err != nil {
		return nil, err
	}
	if b.Recipe.Kind != recipe.KindAbiDump {
		return nil, nil
	}
	return map[string]string{abi.DumpFileKey: path.Join(a.DumpDir, a.DumpFile)}, nil
}
