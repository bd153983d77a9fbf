package internal

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goplus/abiguard/internal/build"
	"github.com/goplus/abiguard/internal/env"
	"github.com/goplus/abiguard/internal/store"
	"github.com/goplus/abiguard/pkgs/ref"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestDefaultBuildFolder(t *testing.T) {
	tests := []struct {
		dir, name, folder string
		want              string
	}{
		{".", "fep_sdk_participant", "", filepath.Join("build", "fep_sdk_participant")},
		{"/src", "fep_sdk_participant_abi_check", "", filepath.Join("/src", "build", "fep_sdk_participant_abi_check")},
		{"/src", "fep_sdk_participant", "/tmp/out", "/tmp/out"},
	}
	for _, tt := range tests {
		t.Run(tt.name+tt.folder, func(t *testing.T) {
			if got := defaultBuildFolder(tt.dir, tt.name, tt.folder); got != tt.want {
				t.Errorf("defaultBuildFolder(%q, %q, %q) = %q, want %q", tt.dir, tt.name, tt.folder, got, tt.want)
			}
		})
	}
}

func TestPrintEnvMasksSecrets(t *testing.T) {
	cfg, err := env.Load(func(name string) (string, bool) {
		switch name {
		case "JIRA_PSW":
			return "s3cret", true
		case "JENKINS_URL":
			return "https://ci.example.com", true
		}
		return "", false
	})
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := printEnv(&buf, cfg); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if strings.Contains(out, "s3cret") {
		t.Errorf("printEnv leaked a secret:\n%s", out)
	}
	for _, want := range []string{"VARIABLE", "JIRA_PSW", "****", "https://ci.example.com", "ABIGUARD_TOOL_TIMEOUT"} {
		if !strings.Contains(out, want) {
			t.Errorf("printEnv output missing %q:\n%s", want, out)
		}
	}
	if lines := strings.Count(out, "\n"); lines != len(env.Schema)+1 {
		t.Errorf("printEnv printed %d lines, want %d", lines, len(env.Schema)+1)
	}
}

func TestPrintDependencies(t *testing.T) {
	r := ref.Ref{Name: "cmake", Version: "3.23.2", User: "fep", Channel: "stable"}
	deps := []build.Dependency{{Key: "cmake", Ref: r, Package: &store.Package{Ref: r, RootPath: "/store/cmake"}}}
	var buf bytes.Buffer
	printDependencies(&buf, deps)
	if got, want := buf.String(), "cmake/3.23.2@fep/stable -> /store/cmake\n"; got != want {
		t.Errorf("printDependencies = %q, want %q", got, want)
	}
}

func TestExportAndList(t *testing.T) {
	storeDir := t.TempDir()
	t.Setenv("ABIGUARD_HOME", storeDir)
	recipeDir, err := filepath.Abs(filepath.Join("..", "..", "..", "internal", "build", "testdata", "product"))
	if err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "export", "--recipe-dir", recipeDir, "--recipe", "fep_sdk_participant", "--store", storeDir)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	exportDir := strings.TrimSpace(out)
	if _, err := os.Stat(filepath.Join(exportDir, "recipe.yml")); err != nil {
		t.Errorf("exported recipe missing: %v", err)
	}

	out, err = execute(t, "list", "--store", storeDir)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if out != "" {
		t.Errorf("exported but unpackaged recipe listed: %q", out)
	}

	r := ref.Ref{Name: "fep_sdk_participant_abi_dump", Version: "3.3.0", User: "fep", Channel: "stable"}
	if _, err := store.New(storeDir).Commit(r, nil); err != nil {
		t.Fatal(err)
	}
	out, err = execute(t, "list", "--store", storeDir)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if want := r.String() + "\n"; out != want {
		t.Errorf("list = %q, want %q", out, want)
	}
}

func TestNewBuilderRequiresRecipe(t *testing.T) {
	t.Setenv("ABIGUARD_HOME", t.TempDir())
	if _, err := execute(t, "build", "--recipe", ""); err == nil {
		t.Fatal("build without --recipe succeeded")
	}
}
