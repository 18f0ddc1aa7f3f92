// Package main implements the mirror-clone command-line tool for mirroring
// remote content repositories into a local or remote target store.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/skyzh/mirror-clone/internal/mirror"
)

const (
	defaultConfigPath = "/etc/mirror-clone/mirror.toml"
)

var (
	// Build information - set via build flags
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"

	// Command-line flags
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "mirror-clone",
	Short: "Mirror remote content repositories",
	Long: `mirror-clone keeps a local or remote target store in sync with a large
upstream repository: it snapshots both sides, plans the difference, and
transfers the missing objects with bounded concurrency.`,
}

var transferCmd = &cobra.Command{
	Use:   "transfer",
	Short: "Snapshot both sides and transfer the missing objects",
	Long: `Snapshots the configured source and target concurrently, plans the set
difference, and transfers every missing object.

Usage:
  # Run a full transfer
  mirror-clone transfer

  # Use a custom configuration file
  mirror-clone transfer --config /path/to/mirror.toml

  # Override the log level
  mirror-clone transfer --log-level debug

  # Show a progress bar
  mirror-clone transfer --progress

Individual object failures are logged and skipped; only snapshot failures
abort the run.`,
	Run: runTransfer,
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot [source|target]",
	Short: "Write one side's ordered key list",
	Long: `Scans a single side and writes its ordered list of canonical keys, one
per line, for consumption by downstream tooling.

Examples:
  mirror-clone snapshot source
  mirror-clone snapshot target --output keys.txt
  mirror-clone snapshot source --output keys.txt.xz --compress`,
	Args: cobra.ExactArgs(1),
	Run:  runSnapshot,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long:  `Validate the configuration file and report any issues.`,
	Run:   runValidate,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information including build details",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("mirror-clone %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", buildDate)
	},
}

func init() {
	rootCmd.AddCommand(transferCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "configuration file path")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("verbose-errors", false, "show detailed error information including stack traces")

	transferCmd.Flags().Bool("progress", false, "show a progress bar")
	transferCmd.Flags().Bool("debug", false, "truncate scans to a bounded prefix for fast local testing")

	snapshotCmd.Flags().Bool("progress", false, "show a progress bar")
	snapshotCmd.Flags().Bool("debug", false, "truncate the scan to a bounded prefix")
	snapshotCmd.Flags().StringP("output", "o", "", "write the key list to a file instead of stdout")
	snapshotCmd.Flags().Bool("compress", false, "xz-compress the key list")
}

// formatError returns a human-friendly error message, optionally with stack trace.
func formatError(err error, verbose bool) string {
	if verbose {
		return fmt.Sprintf("%+v", err)
	}

	flattened := errors.FlattenDetails(err)
	if flattened != "" {
		return flattened
	}

	return err.Error()
}

// loadConfig decodes and validates the configuration file, then applies
// its log settings and any command-line overrides.
func loadConfig(cmd *cobra.Command) (*mirror.Config, error) {
	verboseErrors, _ := cmd.Flags().GetBool("verbose-errors")

	config := mirror.NewConfig()
	meta, err := toml.DecodeFile(configPath, config)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Error("configuration file not found", "path", configPath)
			slog.Info("create a configuration file at the default location or pass one with --config")
			return nil, err
		}
		slog.Error("failed to decode config file",
			"error", formatError(err, verboseErrors), "path", configPath)
		return nil, err
	}

	// Undecoded keys usually mean a section name typo.
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		slog.Error("configuration contains unknown sections",
			"sections", fmt.Sprintf("%v", undecoded), "path", configPath)
		return nil, errors.New("configuration validation failed")
	}

	if err := config.Log.Apply(); err != nil {
		return nil, err
	}
	if logLevel != "" {
		config.Log.Level = logLevel
		if err := config.Log.Apply(); err != nil {
			return nil, err
		}
	}

	if progress, _ := cmd.Flags().GetBool("progress"); progress {
		config.Transfer.Progress = true
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		config.Transfer.Debug = true
	}

	return config, nil
}

func runTransfer(cmd *cobra.Command, _ []string) {
	verboseErrors, _ := cmd.Flags().GetBool("verbose-errors")

	config, err := loadConfig(cmd)
	if err != nil {
		os.Exit(1)
	}
	if err := config.Check(); err != nil {
		slog.Error("invalid configuration", "error", formatError(err, verboseErrors))
		os.Exit(1)
	}

	if err := mirror.Run(config); err != nil {
		slog.Error("transfer failed", "error", formatError(err, verboseErrors))
		if !verboseErrors {
			slog.Info("run with --verbose-errors for detailed stack traces")
		}
		os.Exit(1)
	}
}

func runSnapshot(cmd *cobra.Command, args []string) {
	verboseErrors, _ := cmd.Flags().GetBool("verbose-errors")

	config, err := loadConfig(cmd)
	if err != nil {
		os.Exit(1)
	}

	output, _ := cmd.Flags().GetString("output")
	compress, _ := cmd.Flags().GetBool("compress")
	if err := snapshotToOutput(config, args[0], output, compress); err != nil {
		slog.Error("snapshot failed", "error", formatError(err, verboseErrors))
		if !verboseErrors {
			slog.Info("run with --verbose-errors for detailed stack traces")
		}
		os.Exit(1)
	}
}

// snapshotToOutput writes one side's key list to the given file, or to
// stdout when output is empty. The file is closed on every path before
// the caller decides to exit, so a failed flush-on-close surfaces as an
// error instead of being skipped.
func snapshotToOutput(config *mirror.Config, side, output string, compress bool) error {
	if output == "" {
		return mirror.RunSnapshot(config, side, os.Stdout, compress)
	}

	f, err := os.Create(output) // #nosec G304 - user-chosen output path
	if err != nil {
		return errors.Wrapf(err, "create output file %s", output)
	}
	if err := mirror.RunSnapshot(config, side, f, compress); err != nil {
		if closeErr := f.Close(); closeErr != nil {
			slog.Error("failed to close output file", "path", output, "error", closeErr)
		}
		return err
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "close output file %s", output)
	}
	return nil
}

func runValidate(cmd *cobra.Command, _ []string) {
	verboseErrors, _ := cmd.Flags().GetBool("verbose-errors")

	config, err := loadConfig(cmd)
	if err != nil {
		os.Exit(1)
	}

	var validationErrors []error
	if err := config.Log.Apply(); err != nil {
		validationErrors = append(validationErrors, errors.Wrap(err, "log config"))
	}
	if err := config.Check(); err != nil {
		validationErrors = append(validationErrors, err)
	}

	if len(validationErrors) > 0 {
		slog.Error("the toml configuration file is not valid")
		for _, err := range validationErrors {
			slog.Error(formatError(err, verboseErrors))
		}
		os.Exit(1)
	}

	slog.Info("the toml configuration file passes validation checks")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
