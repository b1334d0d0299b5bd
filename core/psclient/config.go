package psclient

import (
	"os"

	"github.com/paystream/sdk-go/core/registry"
	"github.com/paystream/sdk-go/core/types"
	"github.com/paystream/sdk-go/core/util"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config configures a client from a YAML document. Absent fields keep
// their defaults; the policy fields are pointers so a config can
// override one boundary without restating the others.
type Config struct {
	// RegistryPath selects the durable SQLite registry when set;
	// otherwise the in-memory registry is used.
	RegistryPath string `yaml:"registry_path"`

	// EscrowAccount overrides the escrow holding account.
	EscrowAccount string `yaml:"escrow_account"`

	MinRatePerSecond     *int64 `yaml:"min_rate_per_second"`
	RequireExactDivision *bool  `yaml:"require_exact_division"`
	RequireFutureStart   *bool  `yaml:"require_future_start"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	return &cfg, nil
}

// Policy resolves the creation policy: defaults with the config's
// overrides applied.
func (cfg *Config) Policy() types.Policy {
	policy := types.DefaultPolicy()
	if v := util.TransformOrNil(cfg.MinRatePerSecond, func(r int64) any { return r }); v != nil {
		policy.MinRatePerSecond = v.(int64)
	}
	if v := util.TransformOrNil(cfg.RequireExactDivision, func(b bool) any { return b }); v != nil {
		policy.RequireExactDivision = v.(bool)
	}
	if v := util.TransformOrNil(cfg.RequireFutureStart, func(b bool) any { return b }); v != nil {
		policy.RequireFutureStart = v.(bool)
	}
	return policy
}

// Options expands the config into client options. Extra options are
// applied after the config's, so callers can still override.
func (cfg *Config) Options() ([]Option, error) {
	options := []Option{WithPolicy(cfg.Policy())}

	if cfg.RegistryPath != "" {
		r, err := registry.OpenSQLite(cfg.RegistryPath)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		options = append(options, WithRegistry(r))
	}
	if cfg.EscrowAccount != "" {
		escrow, err := util.NewAccountID(cfg.EscrowAccount)
		if err != nil {
			return nil, errors.Wrap(err, "escrow account")
		}
		options = append(options, WithEscrowAccount(escrow))
	}
	return options, nil
}

// NewClientFromConfig builds a client from a config plus any extra options.
func NewClientFromConfig(cfg *Config, extra ...Option) (*Client, error) {
	options, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	return NewClient(append(options, extra...)...)
}
