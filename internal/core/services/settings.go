package services

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/autorfp/internal/core/domain"
	"github.com/custodia-labs/autorfp/internal/core/ports/driven"
	"github.com/custodia-labs/autorfp/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyModelProvider     = "model.provider"
	keyModelName         = "model.name"
	keyModelBaseURL      = "model.base_url"
	keyModelAPIKeyEnv    = "model.api_key_env"
	keyModelRegion       = "model.region"
	keyModelTimeout      = "model.timeout_seconds"
	keyRetryAttempts     = "agent.retry_attempts"
	keyBaseDelay         = "agent.base_delay_ms"
	keyTruncationLimit   = "agent.truncation_limit"
	keyStream            = "agent.stream"
	keyRetrievalProvider = "retrieval.provider"
	keyRetrievalURL      = "retrieval.url"
	keyRetrievalRate     = "retrieval.rate_per_second"
	keyRetrievalWorkers  = "retrieval.workers"
	keyRetrievalTopK     = "retrieval.top_k"
	keyEmbeddingProvider = "embedding.provider"
	keyEmbeddingModel    = "embedding.model"
	keyEmbeddingBaseURL  = "embedding.base_url"
	keyEmbeddingKeyEnv   = "embedding.api_key_env"
	keyStorageBackend    = "storage.backend"
	keyStoragePath       = "storage.path"
	keyStorageDSN        = "storage.dsn"
	keyRetentionDays     = "retention.days"
	keyRetentionInterval = "retention.interval_minutes"
)

type valueKind int

const (
	kindString valueKind = iota
	kindInt
	kindFloat
	kindBool
)

// setting maps one config key onto a field of AppSettings.
type setting struct {
	kind valueKind
	get  func(*domain.AppSettings) any
	set  func(*domain.AppSettings, any)
}

var settingsTable = map[string]setting{
	keyModelProvider: {kindString,
		func(a *domain.AppSettings) any { return string(a.Model.Provider) },
		func(a *domain.AppSettings, v any) { a.Model.Provider = domain.ModelProvider(v.(string)) }},
	keyModelName: {kindString,
		func(a *domain.AppSettings) any { return a.Model.Name },
		func(a *domain.AppSettings, v any) { a.Model.Name = v.(string) }},
	keyModelBaseURL: {kindString,
		func(a *domain.AppSettings) any { return a.Model.BaseURL },
		func(a *domain.AppSettings, v any) { a.Model.BaseURL = v.(string) }},
	keyModelAPIKeyEnv: {kindString,
		func(a *domain.AppSettings) any { return a.Model.APIKeyEnv },
		func(a *domain.AppSettings, v any) { a.Model.APIKeyEnv = v.(string) }},
	keyModelRegion: {kindString,
		func(a *domain.AppSettings) any { return a.Model.Region },
		func(a *domain.AppSettings, v any) { a.Model.Region = v.(string) }},
	keyModelTimeout: {kindInt,
		func(a *domain.AppSettings) any { return int(a.Model.Timeout / time.Second) },
		func(a *domain.AppSettings, v any) { a.Model.Timeout = time.Duration(v.(int)) * time.Second }},
	keyRetryAttempts: {kindInt,
		func(a *domain.AppSettings) any { return a.Agent.RetryAttempts },
		func(a *domain.AppSettings, v any) { a.Agent.RetryAttempts = v.(int) }},
	keyBaseDelay: {kindInt,
		func(a *domain.AppSettings) any { return int(a.Agent.BaseDelay / time.Millisecond) },
		func(a *domain.AppSettings, v any) { a.Agent.BaseDelay = time.Duration(v.(int)) * time.Millisecond }},
	keyTruncationLimit: {kindInt,
		func(a *domain.AppSettings) any { return a.Agent.TruncationLimit },
		func(a *domain.AppSettings, v any) { a.Agent.TruncationLimit = v.(int) }},
	keyStream: {kindBool,
		func(a *domain.AppSettings) any { return a.Agent.Stream },
		func(a *domain.AppSettings, v any) { a.Agent.Stream = v.(bool) }},
	keyRetrievalProvider: {kindString,
		func(a *domain.AppSettings) any { return string(a.Retrieval.Provider) },
		func(a *domain.AppSettings, v any) { a.Retrieval.Provider = domain.RetrievalProvider(v.(string)) }},
	keyRetrievalURL: {kindString,
		func(a *domain.AppSettings) any { return a.Retrieval.URL },
		func(a *domain.AppSettings, v any) { a.Retrieval.URL = v.(string) }},
	keyRetrievalRate: {kindFloat,
		func(a *domain.AppSettings) any { return a.Retrieval.RatePerSecond },
		func(a *domain.AppSettings, v any) { a.Retrieval.RatePerSecond = v.(float64) }},
	keyRetrievalWorkers: {kindInt,
		func(a *domain.AppSettings) any { return a.Retrieval.Workers },
		func(a *domain.AppSettings, v any) { a.Retrieval.Workers = v.(int) }},
	keyRetrievalTopK: {kindInt,
		func(a *domain.AppSettings) any { return a.Retrieval.TopK },
		func(a *domain.AppSettings, v any) { a.Retrieval.TopK = v.(int) }},
	keyEmbeddingProvider: {kindString,
		func(a *domain.AppSettings) any { return string(a.Embedding.Provider) },
		func(a *domain.AppSettings, v any) { a.Embedding.Provider = domain.EmbeddingProvider(v.(string)) }},
	keyEmbeddingModel: {kindString,
		func(a *domain.AppSettings) any { return a.Embedding.Model },
		func(a *domain.AppSettings, v any) { a.Embedding.Model = v.(string) }},
	keyEmbeddingBaseURL: {kindString,
		func(a *domain.AppSettings) any { return a.Embedding.BaseURL },
		func(a *domain.AppSettings, v any) { a.Embedding.BaseURL = v.(string) }},
	keyEmbeddingKeyEnv: {kindString,
		func(a *domain.AppSettings) any { return a.Embedding.APIKeyEnv },
		func(a *domain.AppSettings, v any) { a.Embedding.APIKeyEnv = v.(string) }},
	keyStorageBackend: {kindString,
		func(a *domain.AppSettings) any { return string(a.Storage.Backend) },
		func(a *domain.AppSettings, v any) { a.Storage.Backend = domain.StorageBackend(v.(string)) }},
	keyStoragePath: {kindString,
		func(a *domain.AppSettings) any { return a.Storage.Path },
		func(a *domain.AppSettings, v any) { a.Storage.Path = v.(string) }},
	keyStorageDSN: {kindString,
		func(a *domain.AppSettings) any { return a.Storage.DSN },
		func(a *domain.AppSettings, v any) { a.Storage.DSN = v.(string) }},
	keyRetentionDays: {kindInt,
		func(a *domain.AppSettings) any { return int(a.Retention.Window / (24 * time.Hour)) },
		func(a *domain.AppSettings, v any) { a.Retention.Window = time.Duration(v.(int)) * 24 * time.Hour }},
	keyRetentionInterval: {kindInt,
		func(a *domain.AppSettings) any { return int(a.Retention.Interval / time.Minute) },
		func(a *domain.AppSettings, v any) { a.Retention.Interval = time.Duration(v.(int)) * time.Minute }},
}

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore) *SettingsService {
	return &SettingsService{configStore: configStore}
}

// Get retrieves current application settings. Missing or mistyped values
// fall back to defaults.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	settings := domain.DefaultAppSettings()
	for key, st := range settingsTable {
		raw, ok := s.configStore.Get(key)
		if !ok {
			continue
		}
		if v, ok := coerce(st.kind, raw); ok {
			st.set(&settings, v)
		}
	}

	// Unrecognised enum values fall back to defaults
	defaults := domain.DefaultAppSettings()
	if !settings.Model.Provider.IsValid() {
		settings.Model.Provider = defaults.Model.Provider
	}
	if !settings.Retrieval.Provider.IsValid() {
		settings.Retrieval.Provider = defaults.Retrieval.Provider
	}
	if !settings.Embedding.Provider.IsValid() {
		settings.Embedding.Provider = defaults.Embedding.Provider
	}
	if !settings.Storage.Backend.IsValid() {
		settings.Storage.Backend = defaults.Storage.Backend
	}
	return &settings, nil
}

// Save persists application settings.
func (s *SettingsService) Save(settings *domain.AppSettings) error {
	for _, key := range s.Keys() {
		if err := s.configStore.Set(key, settingsTable[key].get(settings)); err != nil {
			return fmt.Errorf("save %s: %w", key, err)
		}
	}
	return nil
}

// Set parses value for key, validates the resulting settings and persists the key.
func (s *SettingsService) Set(key, value string) error {
	st, ok := settingsTable[key]
	if !ok {
		return &domain.InvalidInputError{Field: key, Reason: "unknown setting"}
	}
	v, err := parseValue(st.kind, value)
	if err != nil {
		return &domain.InvalidInputError{Field: key, Reason: err.Error()}
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}
	st.set(settings, v)
	if err := settings.Validate(); err != nil {
		return err
	}
	if err := s.configStore.Set(key, v); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Value returns the current value of key, formatted as Set accepts it.
func (s *SettingsService) Value(key string) (string, error) {
	st, ok := settingsTable[key]
	if !ok {
		return "", &domain.InvalidInputError{Field: key, Reason: "unknown setting"}
	}
	settings, err := s.Get()
	if err != nil {
		return "", err
	}
	return fmt.Sprint(st.get(settings)), nil
}

// Keys returns the settable config keys in sorted order.
func (s *SettingsService) Keys() []string {
	keys := make([]string, 0, len(settingsTable))
	for k := range settingsTable {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SetModelProvider configures the model provider.
func (s *SettingsService) SetModelProvider(provider domain.ModelProvider, model string) error {
	if !provider.IsValid() {
		return fmt.Errorf("%w: model provider %q", domain.ErrUnsupportedType, provider)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}

	settings.Model.Provider = provider

	// Set model - use provided or default
	if model != "" {
		settings.Model.Name = model
	} else {
		settings.Model.Name = domain.DefaultModels()[provider]
	}

	switch provider {
	case domain.ModelProviderOllama:
		// Local providers need a base URL
		if settings.Model.BaseURL == "" {
			settings.Model.BaseURL = "http://localhost:11434"
		}
		settings.Model.APIKeyEnv = ""
	case domain.ModelProviderOpenAI:
		settings.Model.BaseURL = ""
		settings.Model.APIKeyEnv = "OPENAI_API_KEY"
	case domain.ModelProviderAnthropic:
		settings.Model.BaseURL = ""
		settings.Model.APIKeyEnv = "ANTHROPIC_API_KEY"
	case domain.ModelProviderBedrock:
		// Bedrock authenticates through the AWS credential chain
		settings.Model.BaseURL = ""
		settings.Model.APIKeyEnv = ""
	}

	return s.Save(settings)
}

// Validate checks the current settings.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return settings.Validate()
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

// coerce converts a stored value to the kind a setting expects.
// TOML integers decode as int64 and floats as float64.
func coerce(kind valueKind, raw any) (any, bool) {
	switch kind {
	case kindString:
		v, ok := raw.(string)
		return v, ok
	case kindInt:
		switch v := raw.(type) {
		case int:
			return v, true
		case int64:
			return int(v), true
		case float64:
			return int(v), true
		}
	case kindFloat:
		switch v := raw.(type) {
		case float64:
			return v, true
		case int64:
			return float64(v), true
		case int:
			return float64(v), true
		}
	case kindBool:
		v, ok := raw.(bool)
		return v, ok
	}
	return nil, false
}

func parseValue(kind valueKind, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch kind {
	case kindInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("expected an integer, got %q", value)
		}
		if n < 0 {
			return nil, fmt.Errorf("must not be negative")
		}
		return n, nil
	case kindFloat:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("expected a number, got %q", value)
		}
		if f < 0 {
			return nil, fmt.Errorf("must not be negative")
		}
		return f, nil
	case kindBool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("expected true or false, got %q", value)
		}
		return b, nil
	default:
		return value, nil
	}
}
