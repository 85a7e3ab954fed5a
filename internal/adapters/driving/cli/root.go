// Package cli provides the cobra command tree for autorfp.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/autorfp/internal/core/domain"
	"github.com/custodia-labs/autorfp/internal/core/ports/driving"
	"github.com/custodia-labs/autorfp/internal/logger"
)

// version is set at build time via ldflags.
var version = "dev"

// Services are wired into the command tree by the composition root.
var (
	workflowService  driving.WorkflowService
	retentionService driving.RetentionService
	settingsService  driving.SettingsService
	settingsChecker  SettingsChecker
	unavailable      error
)

// SettingsChecker probes the configured providers.
type SettingsChecker interface {
	ValidateModel(ctx context.Context, s domain.ModelSettings) error
	ValidateEmbedding(ctx context.Context, s domain.EmbeddingSettings) error
}

// Services groups everything the commands need.
type Services struct {
	Workflows driving.WorkflowService
	Retention driving.RetentionService
	Settings  driving.SettingsService
	Checker   SettingsChecker

	// Unavailable explains why Workflows is nil, if it is.
	Unavailable error
}

// Options carries the persistent flags into the bootstrap function.
type Options struct {
	Verbose   bool
	ConfigDir string
	DataDir   string

	// LongRunning is set for commands that stay up, such as the dashboard
	// and the MCP server. Background maintenance only runs for these.
	LongRunning bool
}

// Bootstrap builds the services for one invocation. The returned cleanup
// runs after the command finishes.
type Bootstrap func(ctx context.Context, opts Options) (*Services, func() error, error)

var (
	bootstrap Bootstrap
	cleanup   func() error
)

// Command annotations read by setup.
const (
	// noServices marks commands that run without bootstrapping.
	noServices = "no-services"

	// longRunning marks commands that keep the process alive.
	longRunning = "long-running"
)

var rootCmd = &cobra.Command{
	Use:   "autorfp",
	Short: "Analyse procurement documents and draft a response",
	Long: `autorfp runs a multi-stage agent pipeline over RFP documents.

Each run ingests the documents, extracts categorised requirements,
generates clarification questions, answers them from the documents and
compiles a draft response. Runs are persisted and can be inspected,
retried from any step, or cancelled.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
		return teardown()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("config", "", "Config directory (default ~/.autorfp)")
	rootCmd.PersistentFlags().String("data-dir", "", "Data directory (default ~/.autorfp/data)")
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	version = v
}

// SetServices wires services directly, bypassing bootstrap.
func SetServices(s *Services) {
	if s == nil {
		s = &Services{}
	}
	workflowService = s.Workflows
	retentionService = s.Retention
	settingsService = s.Settings
	settingsChecker = s.Checker
	unavailable = s.Unavailable
}

// Execute runs the command tree. The bootstrap function is called once the
// persistent flags are parsed.
func Execute(ctx context.Context, b Bootstrap) error {
	bootstrap = b
	defer func() {
		if err := teardown(); err != nil {
			logger.Warn("cleanup: %v", err)
		}
	}()
	return rootCmd.ExecuteContext(ctx)
}

func setup(cmd *cobra.Command, _ []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")
	logger.SetVerbose(verbose)
	logger.SetTimestamps(cmd.Annotations[longRunning] != "")

	if bootstrap == nil || cmd.Annotations[noServices] != "" {
		return nil
	}

	opts := Options{Verbose: verbose, LongRunning: cmd.Annotations[longRunning] != ""}
	opts.ConfigDir, _ = cmd.Flags().GetString("config")
	opts.DataDir, _ = cmd.Flags().GetString("data-dir")

	services, done, err := bootstrap(cmd.Context(), opts)
	if err != nil {
		return err
	}
	SetServices(services)
	cleanup = done
	return nil
}

func teardown() error {
	if cleanup == nil {
		return nil
	}
	done := cleanup
	cleanup = nil
	return done()
}

func requireWorkflows() error {
	if workflowService == nil && unavailable != nil {
		return fmt.Errorf("workflows unavailable: %w; run 'autorfp settings check'", unavailable)
	}
	if workflowService == nil {
		return errors.New("workflow service not configured")
	}
	return nil
}
