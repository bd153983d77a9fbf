package store

import (
	"archive/tar"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/goplus/abiguard/pkgs/ref"
)

// Archive writes the committed package r to dest as a zstd compressed tar.
// The manifest is the first entry so Import can read the reference early.
// On failure dest is removed.
func (s *Store) Archive(r ref.Ref, dest string) (err error) {
	pkg, err := s.Lookup(r)
	if err != nil {
		return err
	}

	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(dest)
		}
	}()

	enc, err := zstd.NewWriter(f)
	if err != nil {
		return err
	}
	if err = writeTar(enc, pkg.RootPath); err != nil {
		enc.Close()
		return err
	}
	if err = enc.Close(); err != nil {
		return err
	}
	return f.Close()
}

func writeTar(w io.Writer, root string) error {
	tw := tar.NewWriter(w)
	if err := addFile(tw, root, manifestFile); err != nil {
		return err
	}
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if filepath.ToSlash(rel) == manifestFile {
			return nil
		}
		return addFile(tw, root, rel)
	})
	if err != nil {
		return err
	}
	return tw.Close()
}

func addFile(tw *tar.Writer, root, rel string) error {
	path := filepath.Join(root, rel)
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = filepath.ToSlash(rel)
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = io.Copy(tw, file)
	return err
}

// Import installs a package archive produced by Archive, replacing any
// package already stored under the same reference. The archive content is
// verified against its manifest before the stored package is touched.
func (s *Store) Import(src string) (*Package, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return nil, err
	}
	tmpDir, err := s.NewStaging()
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmpDir)

	tr := tar.NewReader(dec)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read package archive: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		rel, err := filepath.Localize(header.Name)
		if err != nil {
			return nil, fmt.Errorf("unsafe path %q in package archive: %w", header.Name, err)
		}
		if err := extractFile(tr, filepath.Join(tmpDir, rel), header.FileInfo().Mode()); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, manifestFile))
	if err != nil {
		return nil, fmt.Errorf("package archive has no manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("corrupt manifest in package archive: %w", err)
	}
	r, err := ref.Parse(m.Ref)
	if err != nil {
		return nil, err
	}

	staged := &Package{Ref: r, RootPath: tmpDir, Manifest: m}
	if err := staged.Verify(); err != nil {
		return nil, err
	}

	root, err := s.PackageDir(r)
	if err != nil {
		return nil, err
	}
	if err := replaceDir(tmpDir, root); err != nil {
		return nil, err
	}
	return &Package{Ref: r, RootPath: root, Manifest: m}, nil
}

// replaceDir moves the directory src to dst, replacing dst. The previous
// dst is kept aside until the move succeeded and restored otherwise.
func replaceDir(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	old := dst + ".old"
	if err := os.RemoveAll(old); err != nil {
		return err
	}
	if err := os.Rename(dst, old); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Rename(src, dst); err != nil {
		os.Rename(old, dst)
		return err
	}
	return os.RemoveAll(old)
}

func extractFile(r io.Reader, dest string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
