// Package config loads the engine configuration: defaults, then an optional
// YAML file, then environment overrides.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/approval"
	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/saga"
)

type Config struct {
	Saga     SagaConfig     `yaml:"saga"`
	Approval ApprovalConfig `yaml:"approval"`
	Database DatabaseConfig `yaml:"database"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type SagaConfig struct {
	ParallelCompensation bool        `yaml:"parallel_compensation"`
	Retry                RetryConfig `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts     int      `yaml:"max_attempts"`
	InitialInterval Duration `yaml:"initial_interval"`
	MaxInterval     Duration `yaml:"max_interval"`
	// Backoff is "fixed" or "exponential".
	Backoff string `yaml:"backoff"`
}

type ApprovalConfig struct {
	AutoApproveThreshold float64  `yaml:"auto_approve_threshold"`
	ManagerThreshold     float64  `yaml:"manager_threshold"`
	DecisionTimeout      Duration `yaml:"decision_timeout"`
}

type DatabaseConfig struct {
	// URL is a PostgreSQL connection string. Empty selects the in-memory stores.
	URL string `yaml:"url"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type LoggingConfig struct {
	Env   string `yaml:"env"`
	Level string `yaml:"level"`
}

// Duration reads Go duration strings such as "1s" or "24h".
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return errors.Wrapf(err, "line %d", value.Line)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func Default() *Config {
	retry := saga.DefaultRetryPolicy()
	policy := approval.DefaultPolicy()
	return &Config{
		Saga: SagaConfig{
			ParallelCompensation: true,
			Retry: RetryConfig{
				MaxAttempts:     retry.MaxAttempts,
				InitialInterval: Duration(retry.InitialInterval),
				MaxInterval:     Duration(retry.MaxInterval),
				Backoff:         string(retry.Backoff),
			},
		},
		Approval: ApprovalConfig{
			AutoApproveThreshold: policy.AutoApproveThreshold,
			ManagerThreshold:     policy.ManagerThreshold,
			DecisionTimeout:      Duration(policy.DecisionTimeout),
		},
		Metrics: MetricsConfig{Addr: ":2112"},
		Logging: LoggingConfig{Env: "development", Level: "info"},
	}
}

// Load reads path on top of the defaults; a missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.Wrapf(err, "parse config %s", path)
			}
		case !os.IsNotExist(err):
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	strs := map[string]*string{
		"SAGA_RETRY_BACKOFF": &c.Saga.Retry.Backoff,
		"DATABASE_URL":       &c.Database.URL,
		"METRICS_ADDR":       &c.Metrics.Addr,
		"LOG_LEVEL":          &c.Logging.Level,
		"ENV":                &c.Logging.Env,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	if v, ok := lookup("SAGA_PARALLEL_COMPENSATION"); ok {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(err, "SAGA_PARALLEL_COMPENSATION")
		}
		c.Saga.ParallelCompensation = parsed
	}
	if v, ok := lookup("SAGA_RETRY_MAX_ATTEMPTS"); ok {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "SAGA_RETRY_MAX_ATTEMPTS")
		}
		c.Saga.Retry.MaxAttempts = parsed
	}

	durations := map[string]*Duration{
		"SAGA_RETRY_INITIAL_INTERVAL":    &c.Saga.Retry.InitialInterval,
		"SAGA_RETRY_MAX_INTERVAL":        &c.Saga.Retry.MaxInterval,
		"SAGA_APPROVAL_DECISION_TIMEOUT": &c.Approval.DecisionTimeout,
	}
	for key, dst := range durations {
		if v, ok := lookup(key); ok {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return errors.Wrap(err, key)
			}
			*dst = Duration(parsed)
		}
	}

	floats := map[string]*float64{
		"SAGA_APPROVAL_AUTO_APPROVE_THRESHOLD": &c.Approval.AutoApproveThreshold,
		"SAGA_APPROVAL_MANAGER_THRESHOLD":      &c.Approval.ManagerThreshold,
	}
	for key, dst := range floats {
		if v, ok := lookup(key); ok {
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return errors.Wrap(err, key)
			}
			*dst = parsed
		}
	}
	return nil
}

func (c *Config) Validate() error {
	r := c.Saga.Retry
	if r.MaxAttempts < 1 {
		return errors.Errorf("saga.retry.max_attempts must be at least 1, got %d", r.MaxAttempts)
	}
	if r.InitialInterval <= 0 {
		return errors.Errorf("saga.retry.initial_interval must be positive, got %s", r.InitialInterval.Std())
	}
	if r.MaxInterval < r.InitialInterval {
		return errors.Errorf("saga.retry.max_interval %s is below initial_interval %s",
			r.MaxInterval.Std(), r.InitialInterval.Std())
	}
	switch saga.BackoffKind(strings.ToLower(r.Backoff)) {
	case saga.BackoffFixed, saga.BackoffExponential:
	default:
		return errors.Errorf("saga.retry.backoff must be fixed or exponential, got %q", r.Backoff)
	}
	return errors.WithMessage(c.ApprovalPolicy().Validate(), "approval")
}

func (c *Config) RetryPolicy() saga.RetryPolicy {
	return saga.RetryPolicy{
		MaxAttempts:     c.Saga.Retry.MaxAttempts,
		InitialInterval: c.Saga.Retry.InitialInterval.Std(),
		MaxInterval:     c.Saga.Retry.MaxInterval.Std(),
		Backoff:         saga.BackoffKind(strings.ToLower(c.Saga.Retry.Backoff)),
	}
}

func (c *Config) CompensationMode() saga.CompensationMode {
	if c.Saga.ParallelCompensation {
		return saga.ParallelCompensation
	}
	return saga.SequentialCompensation
}

func (c *Config) ApprovalPolicy() approval.Policy {
	return approval.Policy{
		AutoApproveThreshold: c.Approval.AutoApproveThreshold,
		ManagerThreshold:     c.Approval.ManagerThreshold,
		DecisionTimeout:      c.Approval.DecisionTimeout.Std(),
	}
}
