package ecs

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration wraps time.Duration so TOML files can spell values like "16ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	d.Duration = parsed
	return err
}

// SchedulerConfig is the on-disk tuning surface for a scheduler: worker
// pool sizing, default tick rate, per-work-group error policy overrides,
// and which instrumentation sinks to enable.
type SchedulerConfig struct {
	AsyncWorkers    int                 `toml:"async_workers"`
	SingleThreaded  bool                `toml:"single_threaded"`
	TickRate        Duration            `toml:"tick_rate"`
	ErrorPolicies   map[string]string   `toml:"error_policies"`
	Instrumentation InstrumentationTOML `toml:"instrumentation"`
}

// InstrumentationTOML mirrors the parts of InstrumentationConfig that make
// sense as static, file-driven settings; sinks requiring live Go values
// (an observer, a custom tracer) are still wired up by the caller after
// Apply runs.
type InstrumentationTOML struct {
	EnableTrace             bool   `toml:"enable_trace"`
	EnableMetrics           bool   `toml:"enable_metrics"`
	EnableStructuredLogging bool   `toml:"enable_structured_logging"`
	LoggingFormat           string `toml:"logging_format"`
	EnablePrometheus        bool   `toml:"enable_prometheus"`
	EnableSigNoz            bool   `toml:"enable_signoz"`
}

func defaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		AsyncWorkers: 0,
		TickRate:     Duration{16 * time.Millisecond},
	}
}

// LoadSchedulerConfig reads and parses a scheduler configuration file. An
// absent or malformed error-policy name is left unresolved here; Apply
// reports it at bind time instead, so one bad entry doesn't block loading
// the rest of the file.
func LoadSchedulerConfig(path string) (*SchedulerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ecs: read scheduler config %s: %w", path, err)
	}
	cfg := defaultSchedulerConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("ecs: parse scheduler config %s: %w", path, err)
	}
	return cfg, nil
}

// Apply configures builder from the parsed file: async worker count,
// single-threaded chunk dispatch, instrumentation toggles, and any named
// error-policy overrides.
func (c *SchedulerConfig) Apply(builder SchedulerBuilder) (SchedulerBuilder, error) {
	builder = builder.WithAsyncWorkers(c.AsyncWorkers).WithSingleThreaded(c.SingleThreaded)

	inst := InstrumentationConfig{
		EnableTrace:   c.Instrumentation.EnableTrace,
		EnableMetrics: c.Instrumentation.EnableMetrics,
		Observation: ObservationSettings{
			EnableStructuredLogging: c.Instrumentation.EnableStructuredLogging,
			EnablePrometheus:        c.Instrumentation.EnablePrometheus,
			EnableSigNoz:            c.Instrumentation.EnableSigNoz,
		},
	}
	if c.Instrumentation.LoggingFormat == "key_value" {
		inst.Observation.LoggingFormat = ObservationLogFormatKeyValue
	}
	builder = builder.WithInstrumentation(inst)

	for id, name := range c.ErrorPolicies {
		policy, err := parseErrorPolicy(name)
		if err != nil {
			return nil, fmt.Errorf("ecs: work group %s: %w", id, err)
		}
		builder = builder.WithErrorPolicy(WorkGroupID(id), policy)
	}
	return builder, nil
}

func parseErrorPolicy(name string) (ErrorPolicy, error) {
	switch name {
	case "abort":
		return ErrorPolicyAbort, nil
	case "continue":
		return ErrorPolicyContinue, nil
	case "retry":
		return ErrorPolicyRetry, nil
	default:
		return 0, fmt.Errorf("unknown error policy %q", name)
	}
}
