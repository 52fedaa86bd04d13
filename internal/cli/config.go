package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/curator/internal/model"
)

const configHierarchy = `Configuration hierarchy (highest to lowest priority):
  1. CLI flags
  2. Environment variables (CURATOR_*, e.g. CURATOR_EXTRACTOR_ENDPOINT)
  3. Config file (~/.curator/config.yaml)
  4. Defaults`

func newConfigCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage Curator configuration",
		Long:  "Manage Curator configuration files and settings.\n\n" + configHierarchy,
	}
	cmd.AddCommand(newConfigShowCmd(o), newConfigInitCmd(o))
	return cmd
}

func newConfigShowCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long:  `Display the configuration after merging defaults, the config file, environment variables and flags.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}

			if used := o.v.ConfigFileUsed(); used != "" {
				fmt.Fprintf(o.stderr, "Configuration file: %s\n\n", used)
			} else {
				fmt.Fprintf(o.stderr, "No configuration file found (using defaults)\n\n")
			}

			yamlData, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			_, err = o.stdout.Write(yamlData)
			return err
		},
	}
}

func newConfigInitCmd(o *options) *cobra.Command {
	var path string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Long:  `Create a configuration file with every option at its default value, including the reference rubric and taxonomy rules.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if path == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return fmt.Errorf("find home directory: %w", err)
				}
				path = filepath.Join(home, ".curator", "config.yaml")
			}

			if _, err := os.Stat(path); err == nil && !force {
				return model.Errorf(model.ReasonInvalidInput,
					"config file already exists: %s (use --force to overwrite)", path)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}

			yamlData, err := yaml.Marshal(model.DefaultConfig())
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}

			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("create config file: %w", err)
			}
			defer func() {
				if closeErr := f.Close(); closeErr != nil && err == nil {
					err = fmt.Errorf("close config file: %w", closeErr)
				}
			}()

			if _, err := fmt.Fprintf(f, "# Curator configuration\n#\n# %s\n\n", indentComment(configHierarchy)); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			if _, err := f.Write(yamlData); err != nil {
				return fmt.Errorf("write config: %w", err)
			}

			fmt.Fprintf(o.stdout, "Created default configuration: %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "config file path (default: $HOME/.curator/config.yaml)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func indentComment(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		out = append(out, s[i])
		if s[i] == '\n' {
			out = append(out, "# "...)
		}
	}
	return string(out)
}
