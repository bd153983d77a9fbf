// Package store manages the local package store: exported recipes and built
// packages, keyed by package reference.
package store

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/agilira/go-errors"
	"github.com/zeebo/blake3"

	"github.com/goplus/abiguard/internal/errcode"
	"github.com/goplus/abiguard/pkgs/ref"
)

// Store directory layout:
//
//	dir/
//	  <name>/<version>/<user>/<channel>/
//	    export/           # recipe files copied by the export hook
//	    package/          # package root, what dependents see
//	      .package.json   # manifest: user info and content digests
//	      ...
const manifestFile = ".package.json"

// Manifest describes a packaged reference.
type Manifest struct {
	Ref         string            `json:"ref"`
	UserInfo    map[string]string `json:"user_info,omitempty"`
	Digests     map[string]string `json:"digests,omitempty"`
	PackageTime time.Time         `json:"package_time"`
}

// Package is a resolved package in the store.
type Package struct {
	Ref      ref.Ref
	RootPath string
	Manifest Manifest
}

// UserInfo returns the user info value stored under key.
func (p *Package) UserInfo(key string) (string, bool) {
	v, ok := p.Manifest.UserInfo[key]
	return v, ok
}

// Store is a package store rooted at a directory.
type Store struct {
	dir string
}

// New creates a Store rooted at dir.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store root.
func (s *Store) Dir() string { return s.dir }

func (s *Store) refDir(r ref.Ref) (string, error) {
	escaped, err := ref.EscapePath(r)
	if err != nil {
		return "", errors.Wrap(err, errcode.InvalidRecipe, "invalid package reference").WithContext("ref", r.String())
	}
	return filepath.Join(s.dir, escaped), nil
}

// PackageDir returns the package root of r. The directory may not exist yet.
func (s *Store) PackageDir(r ref.Ref) (string, error) {
	dir, err := s.refDir(r)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "package"), nil
}

// ExportDir returns the export folder of r. The directory may not exist yet.
func (s *Store) ExportDir(r ref.Ref) (string, error) {
	dir, err := s.refDir(r)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "export"), nil
}

// Lookup resolves a packaged reference. Only references that went through
// Commit resolve.
func (s *Store) Lookup(r ref.Ref) (*Package, error) {
	root, err := s.PackageDir(r)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(root, manifestFile))
	if err != nil {
		return nil, errors.Wrap(err, errcode.PackageNotFound, "package not found in store").
			WithContext("ref", r.String())
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, errcode.PackageNotFound, "corrupt package manifest").
			WithContext("ref", r.String())
	}
	return &Package{Ref: r, RootPath: root, Manifest: m}, nil
}

// Commit records the current content of r's package folder along with
// userInfo, making the package resolvable.
func (s *Store) Commit(r ref.Ref, userInfo map[string]string) (*Package, error) {
	root, err := s.PackageDir(r)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	m, err := writeManifest(root, r, userInfo)
	if err != nil {
		return nil, err
	}
	return &Package{Ref: r, RootPath: root, Manifest: m}, nil
}

// NewStaging creates an empty folder inside the store for assembling a
// package that Install later moves into place.
func (s *Store) NewStaging() (string, error) {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return "", err
	}
	dir, err := os.MkdirTemp(s.dir, ".stage-*")
	if err != nil {
		return "", err
	}
	return dir, os.Chmod(dir, 0o755)
}

// Install commits the content of the staging folder dir as the package r,
// replacing the stored package only once the manifest is written. A failed
// Install leaves the previous package resolvable.
func (s *Store) Install(r ref.Ref, dir string, userInfo map[string]string) (*Package, error) {
	root, err := s.PackageDir(r)
	if err != nil {
		return nil, err
	}
	m, err := writeManifest(dir, r, userInfo)
	if err != nil {
		return nil, err
	}
	if err := replaceDir(dir, root); err != nil {
		return nil, err
	}
	return &Package{Ref: r, RootPath: root, Manifest: m}, nil
}

func writeManifest(root string, r ref.Ref, userInfo map[string]string) (Manifest, error) {
	digests, err := digestTree(root)
	if err != nil {
		return Manifest{}, err
	}
	m := Manifest{
		Ref:         r.String(),
		UserInfo:    userInfo,
		Digests:     digests,
		PackageTime: time.Now().UTC(),
	}
	data, err := json.MarshalIndent(&m, "", "  ")
	if err != nil {
		return Manifest{}, err
	}
	if err := os.WriteFile(filepath.Join(root, manifestFile), data, 0o644); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Verify recomputes the digests of p and reports the first mismatch.
func (p *Package) Verify() error {
	digests, err := digestTree(p.RootPath)
	if err != nil {
		return err
	}
	for rel, want := range p.Manifest.Digests {
		if got, ok := digests[rel]; !ok || got != want {
			return errors.New(errcode.PackageNotFound, "package content does not match its manifest").
				WithContext("ref", p.Ref.String()).WithContext("file", rel)
		}
	}
	return nil
}

// digestTree returns the blake3 digest of every regular file below root,
// keyed by slash separated relative path. The manifest itself is skipped.
func digestTree(root string) (map[string]string, error) {
	digests := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == manifestFile {
			return nil
		}
		sum, err := digestFile(path)
		if err != nil {
			return err
		}
		digests[rel] = sum
		return nil
	})
	return digests, err
}

func digestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// List returns the references of all committed packages, sorted.
func (s *Store) List() ([]ref.Ref, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*", "*", "*", "*", "package", manifestFile))
	if err != nil {
		return nil, err
	}
	var refs []ref.Ref
	for _, m := range matches {
		rel, err := filepath.Rel(s.dir, m)
		if err != nil {
			return nil, err
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) < 4 {
			continue
		}
		refs = append(refs, ref.Ref{Name: parts[0], Version: parts[1], User: parts[2], Channel: parts[3]})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].String() < refs[j].String() })
	return refs, nil
}
