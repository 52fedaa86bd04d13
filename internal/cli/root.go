package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/curator/internal/model"
)

// Version is set at build time
var Version = "0.1.0"

// options holds the state shared by every command of one invocation
type options struct {
	cfgFile string
	v       *viper.Viper
	stdout  io.Writer
	stderr  io.Writer
	stdin   io.Reader
}

// NewRootCmd builds the command tree with its own viper instance
func NewRootCmd() *cobra.Command {
	o := &options{v: viper.New(), stdout: os.Stdout, stderr: os.Stderr, stdin: os.Stdin}

	rootCmd := &cobra.Command{
		Use:   "curator",
		Short: "Curator - content intake, scoring and classification",
		Long: `Curator takes articles and raw text, scores them against a weighted
rubric, rejects near-duplicates, classifies them into maturity tiers and a
multi-axis taxonomy, and files them in a registry.

Scores are deterministic: the same text and configuration always produce
the same tier. Practice tier requires a recorded human validation.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			o.stdout = cmd.OutOrStdout()
			o.stderr = cmd.ErrOrStderr()
			o.stdin = cmd.InOrStdin()
			return o.initConfig()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&o.cfgFile, "config", "", "config file (default: $HOME/.curator/config.yaml)")
	flags.BoolP("verbose", "v", false, "verbose output")
	flags.Bool("json-logs", false, "log as JSON")
	flags.String("registry", "", "registry database path (overrides registry.path)")
	flags.String("extractor", "", "extractor endpoint URL (overrides extractor.endpoint)")

	_ = o.v.BindPFlag("output.verbose", flags.Lookup("verbose"))
	_ = o.v.BindPFlag("output.json_logs", flags.Lookup("json-logs"))
	_ = o.v.BindPFlag("registry.path", flags.Lookup("registry"))
	_ = o.v.BindPFlag("extractor.endpoint", flags.Lookup("extractor"))

	rootCmd.AddCommand(
		newVersionCmd(o),
		newSubmitCmd(o),
		newBatchCmd(o),
		newItemCmd(o),
		newConfigCmd(o),
	)
	return rootCmd
}

// Execute runs the command line and returns the process exit code
func Execute() int {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		var quiet *reportedError
		if !errors.As(err, &quiet) {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
		return ExitCode(err)
	}
	return 0
}

func newVersionCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Display the version number of Curator.`,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(o.stdout, "curator v%s\n", Version)
		},
	}
}

// initConfig layers the built-in defaults, the config file and CURATOR_*
// environment variables. Flags bound to keys win over all three.
func (o *options) initConfig() error {
	v := o.v

	defaults, err := yaml.Marshal(model.DefaultConfig())
	if err != nil {
		return fmt.Errorf("encode defaults: %w", err)
	}
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return fmt.Errorf("load defaults: %w", err)
	}

	v.SetEnvPrefix("CURATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Keys absent from the encoded defaults still need an env binding
	_ = v.BindEnv("extractor.http_proxy")
	_ = v.BindEnv("extractor.https_proxy")

	if o.cfgFile != "" {
		v.SetConfigFile(o.cfgFile)
		if err := v.MergeInConfig(); err != nil {
			return model.Wrap(model.ReasonInvalidInput, err, "read config file")
		}
		return nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	v.AddConfigPath(filepath.Join(home, ".curator"))
	v.SetConfigName("config")
	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return model.Wrap(model.ReasonInvalidInput, err, "read config file")
	}
	return nil
}

// loadConfig decodes and validates the layered configuration
func (o *options) loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	// Lists replace the defaults instead of merging into them
	cfg.Rubric.Criteria = nil
	cfg.Taxonomy.Rules = nil
	cfg.Taxonomy.Vocabulary = nil

	if err := o.v.Unmarshal(cfg); err != nil {
		return nil, model.Wrap(model.ReasonInvalidInput, err, "decode configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
