package config

import (
	"fmt"

	"github.com/Opizontas-Studio/dc-license-bot/runtime/logger"
)

// LoggingConfigSpec defines the logging configuration parameters.
type LoggingConfigSpec struct {
	// DefaultLevel is the default log level for all modules.
	// Supported values: trace, debug, info, warn, error.
	DefaultLevel string `yaml:"defaultLevel,omitempty" mapstructure:"defaultLevel"`

	// Format specifies the output format: "json" or "text".
	Format string `yaml:"format,omitempty" mapstructure:"format"`

	// CommonFields are key-value pairs added to every log entry.
	CommonFields map[string]string `yaml:"commonFields,omitempty" mapstructure:"commonFields"`

	// Modules configures logging for specific modules.
	// Module names use dot notation (e.g., runtime.workflow).
	Modules []ModuleLoggingConfig `yaml:"modules,omitempty" mapstructure:"modules"`
}

// ModuleLoggingConfig configures logging for a specific module.
type ModuleLoggingConfig struct {
	// Name is the module name pattern using dot notation.
	// More specific names take precedence over less specific ones.
	Name string `yaml:"name" mapstructure:"name"`

	// Level overrides the default level for matching loggers.
	Level string `yaml:"level" mapstructure:"level"`
}

// LogLevel constants for programmatic use.
const (
	LogLevelTrace = "trace"
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// LogFormat constants for programmatic use.
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// DefaultLoggingConfig returns a LoggingConfigSpec with sensible defaults.
func DefaultLoggingConfig() LoggingConfigSpec {
	return LoggingConfigSpec{
		DefaultLevel: LogLevelInfo,
		Format:       LogFormatText,
	}
}

// Validate validates the LoggingConfigSpec.
func (c *LoggingConfigSpec) Validate() error {
	if c.DefaultLevel != "" && !isValidLogLevel(c.DefaultLevel) {
		return &ValidationError{
			Field:   "logging.defaultLevel",
			Message: "must be one of: trace, debug, info, warn, error",
			Value:   c.DefaultLevel,
		}
	}

	if c.Format != "" && c.Format != LogFormatJSON && c.Format != LogFormatText {
		return &ValidationError{
			Field:   "logging.format",
			Message: "must be one of: json, text",
			Value:   c.Format,
		}
	}

	for i, mod := range c.Modules {
		if mod.Name == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("logging.modules[%d].name", i),
				Message: "module name is required",
			}
		}
		if mod.Level != "" && !isValidLogLevel(mod.Level) {
			return &ValidationError{
				Field:   "logging.modules[" + mod.Name + "].level",
				Message: "must be one of: trace, debug, info, warn, error",
				Value:   mod.Level,
			}
		}
	}

	return nil
}

// LoggerSpec converts the section into the shape logger.Configure accepts.
func (c *LoggingConfigSpec) LoggerSpec() *logger.LoggingConfigSpec {
	spec := &logger.LoggingConfigSpec{
		DefaultLevel: c.DefaultLevel,
		Format:       c.Format,
		CommonFields: c.CommonFields,
	}
	for _, m := range c.Modules {
		spec.Modules = append(spec.Modules, logger.ModuleLoggingSpec{Name: m.Name, Level: m.Level})
	}
	return spec
}

func isValidLogLevel(level string) bool {
	switch level {
	case LogLevelTrace, LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	default:
		return false
	}
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
	Value   string
}

func (e *ValidationError) Error() string {
	if e.Value != "" {
		return "config validation error: " + e.Field + ": " + e.Message + " (got: " + e.Value + ")"
	}
	return "config validation error: " + e.Field + ": " + e.Message
}
