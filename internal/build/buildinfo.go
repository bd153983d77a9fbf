package build

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/agilira/go-errors"

	"github.com/goplus/abiguard/internal/errcode"
	"github.com/goplus/abiguard/internal/recipe"
)

// Build folder layout:
//
//	buildDir/
//	  .abiguard_build.json   # written by the build hook, read by package
//	  package/               # cmake install prefix (library, tests)
//	  <dump_dir>/            # abi dump, header list and report
//	  test/result/           # result records
const buildInfoFile = ".abiguard_build.json"

// buildInfo records the last build of a build folder.
type buildInfo struct {
	Ref          string            `json:"ref"`
	Kind         recipe.Kind       `json:"kind"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
	StageFailed  bool              `json:"stage_failed,omitempty"`
	BuildTime    time.Time         `json:"build_time"`
}

func loadBuildInfo(buildDir string) (*buildInfo, error) {
	data, err := os.ReadFile(filepath.Join(buildDir, buildInfoFile))
	if err != nil {
		return nil, err
	}
	var info buildInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func saveBuildInfo(buildDir string, info *buildInfo) error {
	if err := os.MkdirAll(buildDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(buildDir, buildInfoFile), data, 0o644)
}

// requireBuild checks that buildDir holds a build of the recipe.
func (b *Builder) requireBuild() (*buildInfo, error) {
	info, err := loadBuildInfo(b.BuildDir)
	if err != nil {
		return nil, errors.Wrap(err, errcode.InvalidInput, "no build found, run the build hook first").
			WithContext("path", b.BuildDir)
	}
	if want := b.Recipe.Ref().String(); info.Ref != want {
		return nil, errors.New(errcode.InvalidInput, "build folder holds "+info.Ref+", not "+want).
			WithContext("path", b.BuildDir)
	}
	return info, nil
}
