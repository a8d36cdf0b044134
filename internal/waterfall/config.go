package waterfall

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/enrich-waterfall/internal/model"
)

// Config is the file-based waterfall configuration shared by all tenants.
// Stored per-tenant configs take precedence over it.
type Config struct {
	Defaults FieldConfig            `yaml:"defaults"`
	Fields   map[string]FieldConfig `yaml:"fields"`
}

// FieldConfig overrides policy values for one field. Unset values inherit
// from Defaults, then from the built-in defaults.
type FieldConfig struct {
	Providers      []string `yaml:"providers"`
	MaxAttempts    int      `yaml:"max_attempts"`
	TimeoutMs      int      `yaml:"timeout_ms"`
	MinConfidence  *float64 `yaml:"min_confidence"`
	CacheTTLDays   *int     `yaml:"cache_ttl_days"`
	MaxCostPerLead *float64 `yaml:"max_cost_per_lead"`
}

func (fc FieldConfig) apply(dst *model.WaterfallConfig) {
	if len(fc.Providers) > 0 {
		dst.ProviderOrder = append([]string(nil), fc.Providers...)
	}
	if fc.MaxAttempts > 0 {
		dst.MaxAttempts = fc.MaxAttempts
	}
	if fc.TimeoutMs > 0 {
		dst.TimeoutMs = fc.TimeoutMs
	}
	if fc.MinConfidence != nil {
		dst.MinConfidence = *fc.MinConfidence
	}
	if fc.CacheTTLDays != nil {
		dst.CacheTTLDays = *fc.CacheTTLDays
	}
	if fc.MaxCostPerLead != nil {
		v := *fc.MaxCostPerLead
		dst.MaxCostPerLead = &v
	}
}

// LoadConfig reads waterfall config from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "waterfall: read config %s", path)
	}
	return ParseConfig(data)
}

// ParseConfig parses and validates YAML waterfall config.
func ParseConfig(data []byte) (*Config, error) {
	// The YAML has a top-level "waterfall" key
	var wrapper struct {
		Waterfall Config `yaml:"waterfall"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "waterfall: parse config")
	}

	cfg := &wrapper.Waterfall
	fields := make(map[string]FieldConfig, len(cfg.Fields))
	for key, fc := range cfg.Fields {
		fields[strings.ToLower(strings.TrimSpace(key))] = fc
	}
	cfg.Fields = fields

	for key := range cfg.Fields {
		if err := cfg.Policy("", key).Validate(); err != nil {
			return nil, eris.Wrapf(err, "waterfall: field %s", key)
		}
	}
	return cfg, nil
}

// Policy returns the effective file-level policy for a field. A nil Config
// yields the built-in defaults.
func (c *Config) Policy(tenantID, field string) model.WaterfallConfig {
	p := model.DefaultWaterfallConfig(tenantID, field)
	if c == nil {
		return p
	}
	c.Defaults.apply(&p)
	if fc, ok := c.Fields[field]; ok {
		fc.apply(&p)
	}
	return p
}

// HasField reports whether the file configures the field explicitly.
func (c *Config) HasField(field string) bool {
	if c == nil {
		return false
	}
	_, ok := c.Fields[field]
	return ok
}
