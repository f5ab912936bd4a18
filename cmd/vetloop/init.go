package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kberard/vetloop/internal/config"
)

var initForce bool

// defaultProjectConfig is what 'vetloop init' writes. Kept as a typed struct
// so the generated file stays in sync with the config schema.
type defaultProjectConfig struct {
	MaxLoops int                 `yaml:"max_loops"`
	Layers   map[string][]string `yaml:"layers"`
	Verify   struct {
		Light    string `yaml:"light"`
		Standard string `yaml:"standard"`
		Thorough string `yaml:"thorough"`
	} `yaml:"verify"`
	Fix string `yaml:"fix,omitempty"`
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter .vetloop/config.yml",
	Run: func(cmd *cobra.Command, args []string) {
		path := config.ProjectConfigPath()
		if _, err := os.Stat(path); err == nil && !initForce {
			exitOnError(fmt.Errorf("%s already exists (use --force to overwrite)", path))
		}

		var cfg defaultProjectConfig
		cfg.MaxLoops = 3
		cfg.Layers = map[string][]string{
			"api":    {"cmd/"},
			"domain": {"internal/"},
		}
		cfg.Verify.Light = "go vet ./..."
		cfg.Verify.Standard = "go test ./..."
		cfg.Verify.Thorough = "go test -race -count=1 ./..."

		data, err := yaml.Marshal(&cfg)
		exitOnError(err)

		exitOnError(os.MkdirAll(filepath.Dir(path), 0o755))
		exitOnError(os.WriteFile(path, data, 0o644))

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s wrote %s\n", green("ok"), path)
		fmt.Println("\nNext steps:")
		fmt.Println("  vetloop doctor    # check the configured commands")
		fmt.Println("  vetloop classify  # see how your pending change scores")
		fmt.Println("  vetloop run       # verify it")
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config")
}
