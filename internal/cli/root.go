// Package cli provides the opsconsole command-line interface.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/openrag/opsconsole/internal/config"
)

const serviceName = "opsconsole"

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version   string
	BuildTime string
}

type app struct {
	build      BuildInfo
	configPath string
	cfg        *config.Config
}

// NewRootCommand builds the opsconsole command tree.
func NewRootCommand(build BuildInfo) *cobra.Command {
	a := &app{build: build}

	root := &cobra.Command{
		Use:   serviceName,
		Short: "Operator console for a RAG deployment",
		Long: `opsconsole watches the services of a RAG deployment and serves the API
behind the operator console: service health, the dashboard snapshot, paged
document and query history listings, and account administration.`,
		Version:       build.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a.cfg = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to the config file (default: ./opsconsole.yaml)")

	root.AddCommand(a.serveCommand())
	root.AddCommand(a.checkCommand())
	return root
}

// Execute runs the command tree and returns the process exit code.
func Execute(build BuildInfo) int {
	if err := NewRootCommand(build).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func (a *app) newLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(a.cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", a.build.Version).
		Logger()
}
