package driving

import "github.com/custodia-labs/autorfp/internal/core/domain"

// SettingsService manages application settings.
type SettingsService interface {
	// Get retrieves current application settings.
	Get() (*domain.AppSettings, error)

	// Save persists application settings.
	Save(settings *domain.AppSettings) error

	// Set updates a single setting by its config key (e.g. "agent.retry_attempts").
	Set(key, value string) error

	// Value returns the current value of one config key.
	Value(key string) (string, error)

	// Keys returns the settable config keys.
	Keys() []string

	// SetModelProvider configures the model provider. An empty model
	// selects the provider default.
	SetModelProvider(provider domain.ModelProvider, model string) error

	// Validate checks the current settings.
	Validate() error

	// GetDefaults returns default settings.
	GetDefaults() domain.AppSettings
}
