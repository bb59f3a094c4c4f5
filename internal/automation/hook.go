package automation

import "context"

// Hook represents a handler that can be executed when an Event occurs.
type Hook interface {
	// Execute runs the hook with the given event.
	Execute(ctx context.Context, event Event) error

	// Type returns the hook type identifier.
	Type() string

	// ID returns a unique identifier for this hook instance.
	ID() string
}

// Config represents the configuration for the hook manager.
type Config struct {
	// Timeout is a duration string (default: 30s). NewManager only checks
	// that it parses and logs a warning if not; it does not apply it to
	// hooks, each of which uses the timeout given to its own constructor.
	Timeout string `json:"timeout"`

	// Maximum number of concurrent hook executions (default: 10).
	Concurrency int `json:"concurrency"`

	// Whether to enable structured stdio output: "json", "env", or "".
	StdioFormat string `json:"stdio_format"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:     "30s",
		Concurrency: 10,
		StdioFormat: "",
	}
}
