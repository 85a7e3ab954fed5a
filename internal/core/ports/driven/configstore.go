package driven

// ConfigStore holds settings under flat dotted keys such as "model.provider"
// or "retention.days". The settings service reads raw values with Get and
// coerces them itself; the typed getters serve ad hoc callers and tests.
type ConfigStore interface {
	// Get returns the raw value stored under key. Values decoded from a
	// file keep their decoded type (string, int64, float64, bool).
	Get(key string) (any, bool)

	// GetString returns the value as a string, or "" when unset or not a string.
	GetString(key string) string

	// GetInt returns the value as an int, truncating floats. Zero when unset.
	GetInt(key string) int

	// GetBool returns the value as a bool. False when unset.
	GetBool(key string) bool

	// GetStringSlice returns list values, skipping non-string items.
	GetStringSlice(key string) []string

	// Set stores value under key and persists it before returning. A failed
	// write leaves the previous value in place.
	Set(key string, value any) error

	// Save writes every key to the backing file.
	Save() error

	// Load replaces the in-memory values with the backing file's contents.
	Load() error

	// Path is the backing file, or ":memory:" for stores that persist nothing.
	Path() string
}
