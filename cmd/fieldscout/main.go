// Package main is the fieldscout CLI entry point.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/fieldscout/internal/cli"
	"github.com/hyperjump/fieldscout/internal/config"
	"github.com/hyperjump/fieldscout/pkg/utils"
)

// version is set at build time via -ldflags "-X main.version=1.0.0".
var version = "dev"

const defaultConfigPath = "/usr/local/etc/fieldscout/config.yaml"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	debug      bool
	output     string
}

// session is what a command needs after flags are parsed.
type session struct {
	cfg        *config.Config
	configPath string
	debug      bool
	format     cli.OutputFormat
	logger     *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "fieldscout",
		Short:         "fieldscout - on-device leaf disease analysis and advice",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfigPath, "config file path")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "output format: text or json")

	root.AddCommand(
		newServeCmd(opts),
		newAnalyzeCmd(opts),
		newCaptureCmd(opts),
		newFieldCmd(opts),
		newAdviseCmd(opts),
		newAdviceCmd(opts),
		newKBCmd(opts),
		newExportCmd(opts),
		newStatusCmd(opts),
		newWatchCmd(opts),
		newVersionCmd(),
	)
	return root
}

// open loads and validates config and builds the logger. cliLogger selects
// the quieter logger used by one-shot commands.
func (o *rootOptions) open(cliLogger bool) (*session, error) {
	format, err := cli.ParseFormat(o.output)
	if err != nil {
		return nil, err
	}
	cfg, path, err := loadConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	debug := cfg.Debug || o.debug
	newLogger := utils.NewLogger
	if cliLogger {
		newLogger = utils.NewCLILogger
	}
	logger, err := newLogger(debug)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("config loaded", zap.String("config_path", path), zap.Bool("debug", debug))
	return &session{cfg: cfg, configPath: path, debug: debug, format: format, logger: logger}, nil
}

func (s *session) close() {
	_ = s.logger.Sync()
}

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// joinArgs joins positional words into one string, trimming blanks.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(strings.Fields(strings.Join(args, " ")), " "))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "fieldscout version %s\n", version)
		},
	}
}
