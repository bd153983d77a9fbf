package recipe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/goplus/abiguard/internal/errcode"
	"github.com/goplus/abiguard/pkgs/ref"
)

const productDir = "testdata/product"

func TestLoadLibrary(t *testing.T) {
	r, err := Load(productDir, "fep_sdk_participant", Options{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if r.Kind != KindLibrary || r.Version != "3.3.1+12" || r.User != "fep" || r.Channel != "testing" {
		t.Errorf("unexpected recipe: %+v", r)
	}
	if got := r.Ref().String(); got != "fep_sdk_participant/3.3.1+12@fep/testing" {
		t.Errorf("Ref() = %q", got)
	}
	if len(r.Requires) != 2 || r.Requires[0].Key != "boost" || r.Requires[0].Ref.Version != "1.73.0" {
		t.Errorf("Requires = %+v", r.Requires)
	}
	if r.CMake.SourceDir != "." || r.CMake.BuildType != "Release" || r.CMake.TestResult != "tester_result_private_tests.xml" {
		t.Errorf("cmake defaults = %+v", r.CMake)
	}
	if r.BlackDuck.Tool != DefaultBlackDuck || r.BlackDuck.ProjectName != "fep_sdk_participant" {
		t.Errorf("blackduck defaults = %+v", r.BlackDuck)
	}
	if r.Changelog.Tool != DefaultChangelog || r.Changelog.Input != "doc/changelog.md" || r.Changelog.JiraVersion != "FEP SDK ${version}" {
		t.Errorf("changelog defaults = %+v", r.Changelog)
	}
	if r.License != "MPL-2.0" {
		t.Errorf("License = %q", r.License)
	}
}

func TestLoadAbiCheck(t *testing.T) {
	r, err := Load(productDir, "fep_sdk_participant_abi_check", Options{Channel: "stable"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if r.ABI.DumpDir != "abi_check" || r.ABI.Library != "libfep_components_plugin.so" {
		t.Errorf("abi defaults = %+v", r.ABI)
	}
	if r.ABI.Dumper != DefaultDumper || r.ABI.Checker != DefaultChecker {
		t.Errorf("abi tools = %q, %q", r.ABI.Dumper, r.ABI.Checker)
	}
	product, ok := r.BuildRequirement("product")
	if !ok {
		t.Fatal("product build requirement missing")
	}
	want := ref.Ref{Name: "fep_sdk_participant", Version: "3.3.1+12", User: "fep", Channel: "stable"}
	if product != want {
		t.Errorf("product = %v, want %v", product, want)
	}
	baseline, ok := r.BuildRequirement("reference_abi")
	if !ok || baseline.Channel != "FEPSDK_3693_abi_after_private_export" {
		t.Errorf("reference_abi = %v, %v", baseline, ok)
	}
}

func TestLoadInlineRequirementKey(t *testing.T) {
	r, err := Load(productDir, "fep_sdk_participant_sca", Options{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, ok := r.BuildRequirement("sonar_scanner"); !ok {
		t.Error("inline reference should be keyed by package name")
	}
	if r.Sonar.Scanner != DefaultSonarScanner || r.Sonar.BuildWrapper != DefaultSonarBuildWrapper ||
		r.Sonar.FormatScript != "cmake/cortex_clang_format_target.cmake" {
		t.Errorf("sonar defaults = %+v", r.Sonar)
	}
}

func TestLoadTestsDefaults(t *testing.T) {
	r, err := Load(productDir, "fep_sdk_participant_tests", Options{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if r.CMake.SourceDir != "test" || r.CMake.TestResult != "tester_result_functional_tests.xml" {
		t.Errorf("cmake defaults = %+v", r.CMake)
	}
}

func TestLoadDocs(t *testing.T) {
	r, err := Load(productDir, "fep_sdk_participant_arc", Options{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if r.Kind != KindDocs || r.CMake.SourceDir != "." || r.CMake.BuildType != "Release" {
		t.Errorf("docs defaults = %+v", r.CMake)
	}
	if got := r.CMake.PathDefines["fep_participant_plantuml_output_root_dir"]; got != "${build_folder}/doc/arc/input/images" {
		t.Errorf("path define = %q, want the template untouched", got)
	}
	if _, ok := r.BuildRequirement("plantuml"); !ok {
		t.Error("plantuml build requirement missing")
	}
}

func TestLoadErrors(t *testing.T) {
	write := func(t *testing.T, recipe, version string) string {
		dir := t.TempDir()
		os.WriteFile(filepath.Join(dir, FileName), []byte(recipe), 0o644)
		if version != "" {
			os.WriteFile(filepath.Join(dir, VersionFile), []byte(version), 0o644)
		}
		return dir
	}
	const base = "product: p\nuser: u\nchannel: c\n"
	tests := []struct {
		name, recipe, version, load string
	}{
		{"unknown recipe", base + "recipes: [{name: a, kind: library}]\n", "1.0.0", "b"},
		{"unknown kind", base + "recipes: [{name: a, kind: coverage}]\n", "1.0.0", "a"},
		{"bad version", base + "recipes: [{name: a, kind: library}]\n", "one", "a"},
		{"missing version", base + "recipes: [{name: a, kind: library}]\n", "", "a"},
		{"unknown requirement", base + "recipes: [{name: a, kind: library, requirements: [boost]}]\n", "1.0.0", "a"},
		{"missing abi", base + "recipes: [{name: a, kind: abi_dump}]\n", "1.0.0", "a"},
		{"abi tool not required", base + "build_requirements: {p: p/1.0@u/c}\n" +
			"recipes: [{name: a, kind: abi_dump, build_requirements: [p], abi: {library_path: lib/x.so, package: p, headers_file: h, dump_file: d}}]\n", "1.0.0", "a"},
		{"abi check without reference", base + "build_requirements: {p: p/1.0@u/c, abi_dumper: d/1@u/c, abi_compliance_checker: c/1@u/c}\n" +
			"recipes: [{name: a, kind: abi_check, build_requirements: [p, abi_dumper, abi_compliance_checker], abi: {library_path: lib/x.so, package: p, headers_file: h, dump_file: d}}]\n", "1.0.0", "a"},
		{"bad yaml", "recipes: [", "1.0.0", "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := write(t, tt.recipe, tt.version)
			_, err := Load(dir, tt.load, Options{})
			if !errcode.Is(err, errcode.InvalidRecipe) {
				t.Errorf("Load() error = %v, want code %s", err, errcode.InvalidRecipe)
			}
		})
	}
}

func TestVersions(t *testing.T) {
	if !ValidVersion("3.3.0") || !ValidVersion("v3.3.0+42") || ValidVersion("") || ValidVersion("3.x") {
		t.Error("ValidVersion mismatch")
	}
	if got := BaseVersion("3.3.0+42"); got != "3.3.0" {
		t.Errorf("BaseVersion() = %q", got)
	}
	if got := BaseVersion("3.3.0"); got != "3.3.0" {
		t.Errorf("BaseVersion() = %q", got)
	}
	if got := VersionTag("3.3.0"); got != "3_3_0" {
		t.Errorf("VersionTag() = %q", got)
	}
	if CompareVersions("3.3.0", "3.3.1+12") >= 0 {
		t.Error("3.3.0 should sort before 3.3.1+12")
	}
	if CompareVersions("3.4.0", "3.3.1") <= 0 {
		t.Error("3.4.0 should sort after 3.3.1")
	}
}
