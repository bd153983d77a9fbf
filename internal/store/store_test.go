package store

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/goplus/abiguard/internal/errcode"
	"github.com/goplus/abiguard/pkgs/ref"
)

var dumpRef = ref.Ref{Name: "fep_sdk_participant_abi_dump", Version: "3.3.0", User: "fep", Channel: "stable"}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// commitDump stores a package that looks like a packaged abi dump.
func commitDump(t *testing.T, s *Store) *Package {
	t.Helper()
	root, err := s.PackageDir(dumpRef)
	if err != nil {
		t.Fatalf("PackageDir() error = %v", err)
	}
	writeFile(t, filepath.Join(root, "abi_dump", "fep_components_plugin_dump.dump"), "$VAR1 = {};\n")
	writeFile(t, filepath.Join(root, "test", "result", "test_abi_dump.xml"), "<testsuite/>\n")
	pkg, err := s.Commit(dumpRef, map[string]string{"plugin_dump_file_name": "abi_dump/fep_components_plugin_dump.dump"})
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	return pkg
}

func TestLookupNotFound(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.Lookup(dumpRef)
	if !errcode.Is(err, errcode.PackageNotFound) {
		t.Fatalf("Lookup() error = %v, want code %s", err, errcode.PackageNotFound)
	}

	// A package folder without a manifest is not a package.
	root, _ := s.PackageDir(dumpRef)
	writeFile(t, filepath.Join(root, "partial"), "x")
	if _, err := s.Lookup(dumpRef); !errcode.Is(err, errcode.PackageNotFound) {
		t.Errorf("Lookup() of uncommitted package error = %v", err)
	}
}

func TestCommitAndLookup(t *testing.T) {
	s := New(t.TempDir())
	committed := commitDump(t, s)

	pkg, err := s.Lookup(dumpRef)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if pkg.RootPath != committed.RootPath {
		t.Errorf("RootPath = %q, want %q", pkg.RootPath, committed.RootPath)
	}
	if want := filepath.Join(s.Dir(), "fep_sdk_participant_abi_dump", "3.3.0", "fep", "stable", "package"); pkg.RootPath != want {
		t.Errorf("RootPath = %q, want %q", pkg.RootPath, want)
	}
	if v, ok := pkg.UserInfo("plugin_dump_file_name"); !ok || v != "abi_dump/fep_components_plugin_dump.dump" {
		t.Errorf("UserInfo() = %q, %v", v, ok)
	}
	if len(pkg.Manifest.Digests) != 2 {
		t.Errorf("Digests = %v, want 2 entries", pkg.Manifest.Digests)
	}
	if _, ok := pkg.Manifest.Digests[manifestFile]; ok {
		t.Error("manifest must not digest itself")
	}
	if err := pkg.Verify(); err != nil {
		t.Errorf("Verify() error = %v", err)
	}

	writeFile(t, filepath.Join(pkg.RootPath, "abi_dump", "fep_components_plugin_dump.dump"), "tampered")
	if err := pkg.Verify(); err == nil {
		t.Error("Verify() should detect modified content")
	}
}

func TestArchiveImport(t *testing.T) {
	src := New(t.TempDir())
	committed := commitDump(t, src)

	archive := filepath.Join(t.TempDir(), "abi_dump.tar.zst")
	if err := src.Archive(dumpRef, archive); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}

	dst := New(filepath.Join(t.TempDir(), "store"))
	pkg, err := dst.Import(archive)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if pkg.Ref != dumpRef {
		t.Errorf("Ref = %v, want %v", pkg.Ref, dumpRef)
	}
	if !reflect.DeepEqual(pkg.Manifest.UserInfo, committed.Manifest.UserInfo) {
		t.Errorf("UserInfo = %v, want %v", pkg.Manifest.UserInfo, committed.Manifest.UserInfo)
	}
	if !reflect.DeepEqual(pkg.Manifest.Digests, committed.Manifest.Digests) {
		t.Errorf("Digests = %v, want %v", pkg.Manifest.Digests, committed.Manifest.Digests)
	}

	got, err := dst.Lookup(dumpRef)
	if err != nil {
		t.Fatalf("Lookup() after import error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(got.RootPath, "abi_dump", "fep_components_plugin_dump.dump"))
	if err != nil || string(data) != "$VAR1 = {};\n" {
		t.Errorf("imported dump = %q, %v", data, err)
	}

	// Importing again replaces the package in place.
	if _, err := dst.Import(archive); err != nil {
		t.Fatalf("second Import() error = %v", err)
	}
}

func TestList(t *testing.T) {
	s := New(t.TempDir())
	commitDump(t, s)
	other := ref.Ref{Name: "abi_dumper", Version: "1.2", User: "fep", Channel: "stable"}
	if _, err := s.Commit(other, map[string]string{"command_path": "bin/abi-dumper"}); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	refs, err := s.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []ref.Ref{other, dumpRef}
	if !reflect.DeepEqual(refs, want) {
		t.Errorf("List() = %v, want %v", refs, want)
	}
}

func TestImportRejectsTamperedArchive(t *testing.T) {
	dst := New(t.TempDir())
	good := commitDump(t, dst)

	src := New(t.TempDir())
	tampered := commitDump(t, src)
	writeFile(t, filepath.Join(tampered.RootPath, "abi_dump", "fep_components_plugin_dump.dump"), "tampered")
	archive := filepath.Join(t.TempDir(), "abi_dump.tar.zst")
	if err := src.Archive(dumpRef, archive); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}

	if _, err := dst.Import(archive); !errcode.Is(err, errcode.PackageNotFound) {
		t.Fatalf("Import() of tampered archive error = %v, want code %s", err, errcode.PackageNotFound)
	}
	pkg, err := dst.Lookup(dumpRef)
	if err != nil {
		t.Fatalf("Lookup() after failed import error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(pkg.RootPath, "abi_dump", "fep_components_plugin_dump.dump"))
	if err != nil || string(data) != "$VAR1 = {};\n" {
		t.Errorf("stored dump after failed import = %q, %v", data, err)
	}
	if !reflect.DeepEqual(pkg.Manifest.Digests, good.Manifest.Digests) {
		t.Errorf("Digests = %v, want %v", pkg.Manifest.Digests, good.Manifest.Digests)
	}
	if err := pkg.Verify(); err != nil {
		t.Errorf("Verify() after failed import error = %v", err)
	}
	assertNoStaging(t, dst)
}

func TestInstallReplacesPackage(t *testing.T) {
	s := New(t.TempDir())
	commitDump(t, s)

	dir, err := s.NewStaging()
	if err != nil {
		t.Fatalf("NewStaging() error = %v", err)
	}
	writeFile(t, filepath.Join(dir, "abi_dump", "fep_components_plugin_dump.dump"), "$VAR1 = { new };\n")
	pkg, err := s.Install(dumpRef, dir, map[string]string{"plugin_dump_file_name": "abi_dump/fep_components_plugin_dump.dump"})
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(pkg.RootPath, "test")); !os.IsNotExist(err) {
		t.Errorf("content of the previous package survived Install: %v", err)
	}
	got, err := s.Lookup(dumpRef)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if len(got.Manifest.Digests) != 1 {
		t.Errorf("Digests = %v, want 1 entry", got.Manifest.Digests)
	}
	if err := got.Verify(); err != nil {
		t.Errorf("Verify() error = %v", err)
	}
	if info, err := os.Stat(got.RootPath); err != nil || info.Mode().Perm() != 0o755 {
		t.Errorf("package folder mode = %v, %v", info, err)
	}
	assertNoStaging(t, s)
}

func TestInstallFailureKeepsPackage(t *testing.T) {
	s := New(t.TempDir())
	commitDump(t, s)

	_, err := s.Install(dumpRef, filepath.Join(t.TempDir(), "missing"), nil)
	if err == nil {
		t.Fatal("Install() of a missing staging folder succeeded")
	}
	pkg, err := s.Lookup(dumpRef)
	if err != nil {
		t.Fatalf("Lookup() after failed Install error = %v", err)
	}
	if err := pkg.Verify(); err != nil {
		t.Errorf("Verify() error = %v", err)
	}
}

func TestArchiveRemovesPartialFile(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("file permissions are not enforced for root")
	}
	s := New(t.TempDir())
	pkg := commitDump(t, s)
	unreadable := filepath.Join(pkg.RootPath, "abi_dump", "fep_components_plugin_dump.dump")
	if err := os.Chmod(unreadable, 0); err != nil {
		t.Fatal(err)
	}
	defer os.Chmod(unreadable, 0o644)

	dest := filepath.Join(t.TempDir(), "abi_dump.tar.zst")
	if err := s.Archive(dumpRef, dest); err == nil {
		t.Fatal("Archive() of an unreadable package succeeded")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Errorf("partial archive left behind: %v", err)
	}
}

func assertNoStaging(t *testing.T, s *Store) {
	t.Helper()
	for _, pattern := range []string{".stage-*", ".import-*", filepath.Join("*", "*", "*", "*", "package.old")} {
		matches, _ := filepath.Glob(filepath.Join(s.Dir(), pattern))
		if len(matches) != 0 {
			t.Errorf("leftover folders %v", matches)
		}
	}
}
