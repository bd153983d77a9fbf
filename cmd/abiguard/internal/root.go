package internal

import (
	"fmt"
	"path/filepath"

	"github.com/qiniu/x/log"
	"github.com/spf13/cobra"

	"github.com/goplus/abiguard/internal/build"
	"github.com/goplus/abiguard/internal/env"
	"github.com/goplus/abiguard/internal/recipe"
	"github.com/goplus/abiguard/internal/store"
)

var (
	recipeDir    string
	recipeName   string
	buildFolder  string
	sourceFolder string
	storeDir     string
	userName     string
	channelName  string
	verbose      bool
)

// config is loaded once before any command runs.
var config *env.Config

var rootCmd = &cobra.Command{
	Use:   "abiguard",
	Short: "abiguard runs the build recipes of a C++ library product",
	Long: `abiguard runs the lifecycle hooks of the build recipes of a C++ library product:
the library itself, its functional tests, its ABI dump and ABI compliance check,
and its static analysis.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&recipeDir, "recipe-dir", ".", "Directory holding recipe.yml and version")
	pf.StringVar(&recipeName, "recipe", "", "Name of the recipe to run")
	pf.StringVar(&buildFolder, "build-folder", "", "Build folder (default <recipe-dir>/build/<recipe>)")
	pf.StringVar(&sourceFolder, "source-folder", "", "Source folder (default <recipe-dir>)")
	pf.StringVar(&storeDir, "store", "", "Package store root (default $ABIGUARD_HOME or <UserCacheDir>/.abiguard/packages)")
	pf.StringVar(&userName, "user", "", "Override the user of recipe.yml")
	pf.StringVar(&channelName, "channel", "", "Override the channel of recipe.yml")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Print debug output, including tool command lines")
}

func setup(cmd *cobra.Command, args []string) error {
	if verbose {
		log.SetOutputLevel(log.Ldebug)
	} else {
		log.SetOutputLevel(log.Linfo)
	}
	cfg, err := env.FromOS()
	if err != nil {
		return err
	}
	config = cfg
	return nil
}

func openStore() (*store.Store, error) {
	dir := storeDir
	if dir == "" {
		var err error
		if dir, err = config.StoreDir(); err != nil {
			return nil, fmt.Errorf("failed to get store dir: %w", err)
		}
	}
	return store.New(dir), nil
}

// newBuilder loads the recipe selected by the flags.
func newBuilder() (*build.Builder, error) {
	if recipeName == "" {
		return nil, fmt.Errorf("no recipe selected, use --recipe")
	}
	r, err := recipe.Load(recipeDir, recipeName, recipe.Options{User: userName, Channel: channelName})
	if err != nil {
		return nil, err
	}
	s, err := openStore()
	if err != nil {
		return nil, err
	}
	return build.NewBuilder(r, config, s, sourceFolder, defaultBuildFolder(recipeDir, recipeName, buildFolder)), nil
}

func defaultBuildFolder(dir, name, folder string) string {
	if folder != "" {
		return folder
	}
	return filepath.Join(dir, "build", name)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
