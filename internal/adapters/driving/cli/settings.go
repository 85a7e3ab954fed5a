package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/autorfp/internal/core/domain"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage application settings",
	Long: `View and configure the model provider, agents, retrieval, storage and
retention.

Settings are stored in ~/.autorfp/config.toml. API keys are never stored;
each provider reads its key from the environment variable named by its
api_key_env setting.`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runSettingsShow,
}

var settingsGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one setting",
	Args:  cobra.ExactArgs(1),
	RunE:  runSettingsGet,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one setting",
	Long: `Change one setting by its config key, for example:

  autorfp settings set agent.retry_attempts 5
  autorfp settings set retrieval.provider http
  autorfp settings set retrieval.url https://search.internal/answer

Run 'autorfp settings keys' for the full list.`,
	Args: cobra.ExactArgs(2),
	RunE: runSettingsSet,
}

var settingsKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List settable config keys",
	Args:  cobra.NoArgs,
	RunE:  runSettingsKeys,
}

var settingsProviderCmd = &cobra.Command{
	Use:   "provider [name] [model]",
	Short: "Choose the model provider",
	Long: `Choose the model provider and, optionally, the model.

Without arguments the providers are listed and you are prompted for a
choice. An empty model selects the provider default.`,
	Args: cobra.MaximumNArgs(2),
	RunE: runSettingsProvider,
}

var settingsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate settings and probe the configured providers",
	Args:  cobra.NoArgs,
	RunE:  runSettingsCheck,
}

// lookupEnv reads provider API keys; swapped in tests.
var lookupEnv = os.Getenv

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsKeysCmd)
	settingsCmd.AddCommand(settingsProviderCmd)
	settingsCmd.AddCommand(settingsCheckCmd)
	rootCmd.AddCommand(settingsCmd)
}

func requireSettings() error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}
	return nil
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if err := requireSettings(); err != nil {
		return err
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("Current Settings")
	cmd.Println("================")
	cmd.Println()

	m := settings.Model
	cmd.Println("[Model]")
	cmd.Printf("  Provider: %s\n", m.Provider.Description())
	name := m.Name
	if name == "" {
		name = domain.DefaultModels()[m.Provider] + " (default)"
	}
	cmd.Printf("  Model: %s\n", name)
	if m.BaseURL != "" {
		cmd.Printf("  Base URL: %s\n", m.BaseURL)
	}
	if m.Provider == domain.ModelProviderBedrock {
		cmd.Printf("  Region: %s\n", m.Region)
	}
	if m.Provider.RequiresAPIKey() {
		cmd.Printf("  API Key: %s\n", describeKey(m.APIKeyEnv))
	}
	cmd.Printf("  Timeout: %s\n", m.Timeout)
	cmd.Println()

	a := settings.Agent
	cmd.Println("[Agents]")
	cmd.Printf("  Retry attempts: %d\n", a.RetryAttempts)
	cmd.Printf("  Base delay: %s\n", a.BaseDelay)
	cmd.Printf("  Truncation limit: %d chars\n", a.TruncationLimit)
	cmd.Printf("  Streaming: %s\n", yesNo(a.Stream))
	cmd.Println()

	r := settings.Retrieval
	cmd.Println("[Retrieval]")
	cmd.Printf("  Provider: %s\n", r.Provider)
	if r.Provider == domain.RetrievalHTTP {
		cmd.Printf("  URL: %s\n", r.URL)
		cmd.Printf("  Rate limit: %.1f/s\n", r.RatePerSecond)
	}
	cmd.Printf("  Workers: %d\n", r.Workers)
	cmd.Printf("  Top K: %d\n", r.TopK)
	cmd.Println()

	e := settings.Embedding
	cmd.Println("[Embedding]")
	cmd.Printf("  Provider: %s\n", e.Provider)
	if e.Provider != domain.EmbeddingNone && e.Provider != "" {
		if e.Model != "" {
			cmd.Printf("  Model: %s\n", e.Model)
		}
		if e.Provider == domain.EmbeddingOpenAI {
			cmd.Printf("  API Key: %s\n", describeKey(e.APIKeyEnv))
		}
	}
	cmd.Println()

	s := settings.Storage
	cmd.Println("[Storage]")
	cmd.Printf("  Backend: %s\n", s.Backend)
	switch s.Backend {
	case domain.StorageSQLite:
		path := s.Path
		if path == "" {
			path = "(default)"
		}
		cmd.Printf("  Path: %s\n", path)
	case domain.StoragePostgres:
		cmd.Printf("  DSN: %s\n", maskDSN(s.DSN))
	case domain.StorageMemory:
	}
	cmd.Println()

	cmd.Println("[Retention]")
	cmd.Printf("  Window: %s\n", settings.Retention.Window)
	cmd.Printf("  Sweep interval: %s\n", settings.Retention.Interval)
	cmd.Println()

	if err := settingsService.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
		cmd.Println("Run 'autorfp settings set <key> <value>' to fix configuration issues.")
	} else {
		cmd.Println("Configuration is valid.")
	}

	return nil
}

func runSettingsGet(cmd *cobra.Command, args []string) error {
	if err := requireSettings(); err != nil {
		return err
	}

	key := args[0]
	value, err := settingsService.Value(key)
	if err != nil {
		return fmt.Errorf("%w; run 'autorfp settings keys'", err)
	}
	if key == "storage.dsn" {
		value = maskDSN(value)
	}
	cmd.Println(value)
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	if err := requireSettings(); err != nil {
		return err
	}

	key, value := args[0], args[1]
	if err := settingsService.Set(key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	cmd.Printf("Set %s = %s\n", key, value)

	if err := settingsService.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
	}
	return nil
}

func runSettingsKeys(cmd *cobra.Command, _ []string) error {
	if err := requireSettings(); err != nil {
		return err
	}
	for _, k := range settingsService.Keys() {
		cmd.Println(k)
	}
	return nil
}

func runSettingsProvider(cmd *cobra.Command, args []string) error {
	if err := requireSettings(); err != nil {
		return err
	}

	providers := domain.AllModelProviders()
	var provider domain.ModelProvider
	var model string

	if len(args) > 0 {
		provider = domain.ModelProvider(strings.ToLower(args[0]))
		if len(args) > 1 {
			model = args[1]
		}
	} else {
		reader := bufio.NewReader(cmd.InOrStdin())
		cmd.Println("Select Model Provider")
		for i, p := range providers {
			cmd.Printf("  %d. %s\n", i+1, p.Description())
		}
		cmd.Print("\nEnter choice [1]: ")
		provider = providers[parseChoice(readLine(reader), len(providers), 1)-1]

		def := domain.DefaultModels()[provider]
		cmd.Printf("Enter model name [%s]: ", def)
		model = readLine(reader)
	}

	if !provider.IsValid() {
		return fmt.Errorf("unknown provider %q", provider)
	}
	if err := settingsService.SetModelProvider(provider, model); err != nil {
		return fmt.Errorf("failed to configure model provider: %w", err)
	}

	if model == "" {
		model = domain.DefaultModels()[provider]
	}
	cmd.Printf("Model provider configured: %s (%s)\n", provider.Description(), model)

	if provider.RequiresAPIKey() {
		settings, err := settingsService.Get()
		if err == nil && lookupEnv(settings.Model.APIKeyEnv) == "" {
			cmd.Printf("Note: set %s before running workflows.\n", settings.Model.APIKeyEnv)
		}
	}
	return nil
}

func runSettingsCheck(cmd *cobra.Command, _ []string) error {
	if err := requireSettings(); err != nil {
		return err
	}

	if err := settingsService.Validate(); err != nil {
		cmd.Printf("Settings:  FAILED: %v\n", err)
		return fmt.Errorf("invalid settings: %w", err)
	}
	cmd.Println("Settings:  OK")

	if settingsChecker == nil {
		return nil
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	var failed bool
	cmd.Print("Model:     ")
	if err := settingsChecker.ValidateModel(cmd.Context(), settings.Model); err != nil {
		cmd.Printf("FAILED: %v\n", err)
		failed = true
	} else {
		cmd.Println("OK")
	}

	if settings.Embedding.Provider != domain.EmbeddingNone && settings.Embedding.Provider != "" {
		cmd.Print("Embedding: ")
		if err := settingsChecker.ValidateEmbedding(cmd.Context(), settings.Embedding); err != nil {
			cmd.Printf("FAILED: %v\n", err)
			failed = true
		} else {
			cmd.Println("OK")
		}
	}

	if failed {
		return errors.New("provider check failed")
	}
	return nil
}

// Helper functions.

//nolint:errcheck // CLI helper, error ignored for UX
func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func parseChoice(input string, maxVal, defaultVal int) int {
	if input == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(input)
	if err != nil || val < 1 || val > maxVal {
		return defaultVal
	}
	return val
}

// describeKey reports whether the named variable holds a key, masked.
func describeKey(env string) string {
	if env == "" {
		return "(no variable configured)"
	}
	key := lookupEnv(env)
	if key == "" {
		return fmt.Sprintf("(not set, export %s)", env)
	}
	return fmt.Sprintf("%s (from %s)", maskAPIKey(key), env)
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// maskDSN hides the password of a postgres connection string.
func maskDSN(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	creds, host, ok := strings.Cut(rest, "@")
	if !ok {
		return dsn
	}
	user, _, hasPassword := strings.Cut(creds, ":")
	if !hasPassword {
		return dsn
	}
	return scheme + "://" + user + ":****@" + host
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
