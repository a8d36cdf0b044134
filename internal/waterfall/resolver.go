package waterfall

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-waterfall/internal/model"
)

// ConfigStore persists tenant waterfall configs.
type ConfigStore interface {
	GetWaterfallConfig(ctx context.Context, tenantID, field string) (*model.WaterfallConfig, error)
	SaveWaterfallConfig(ctx context.Context, cfg model.WaterfallConfig) error
	ListWaterfallConfigs(ctx context.Context, tenantID string) ([]model.WaterfallConfig, error)
	DeleteWaterfallConfig(ctx context.Context, tenantID, field string) error
}

// ConfigSource names where an effective policy came from.
type ConfigSource string

const (
	SourceStored   ConfigSource = "stored"
	SourceFile     ConfigSource = "file"
	SourceDefaults ConfigSource = "defaults"
)

// ConfigResolver answers the effective policy for (tenant, field): a stored
// tenant config wins, then the YAML file, then the built-in defaults.
type ConfigResolver struct {
	store ConfigStore
	file  *Config
	now   func() time.Time
}

// NewConfigResolver creates a resolver. Either argument may be nil.
func NewConfigResolver(store ConfigStore, file *Config) *ConfigResolver {
	return &ConfigResolver{store: store, file: file, now: time.Now}
}

// Get returns a copy of the effective policy for a field.
func (r *ConfigResolver) Get(ctx context.Context, tenantID, field string) (model.WaterfallConfig, ConfigSource, error) {
	field = strings.ToLower(strings.TrimSpace(field))
	if r.store != nil {
		stored, err := r.store.GetWaterfallConfig(ctx, tenantID, field)
		switch {
		case err == nil:
			return stored.Clone(), SourceStored, nil
		case !errors.Is(err, model.ErrNotFound):
			return r.fallback(tenantID, field), SourceDefaults, eris.Wrapf(err, "waterfall: load config %s", field)
		}
	}
	p := r.fallback(tenantID, field)
	if r.file.HasField(field) {
		return p, SourceFile, nil
	}
	return p, SourceDefaults, nil
}

func (r *ConfigResolver) fallback(tenantID, field string) model.WaterfallConfig {
	return r.file.Policy(tenantID, field)
}

// Put validates and stores a tenant config, replacing any previous one.
// In-flight jobs keep the snapshot they started with.
func (r *ConfigResolver) Put(ctx context.Context, cfg model.WaterfallConfig) (model.WaterfallConfig, error) {
	if r.store == nil {
		return model.WaterfallConfig{}, eris.New("waterfall: no config store")
	}
	cfg.Field = strings.ToLower(strings.TrimSpace(cfg.Field))
	if cfg.TenantID == "" {
		return model.WaterfallConfig{}, model.ValidationErrors{{Field: "tenant_id", Reason: "required"}}
	}
	if err := cfg.Validate(); err != nil {
		return model.WaterfallConfig{}, err
	}
	now := r.now().UTC()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now
	if err := r.store.SaveWaterfallConfig(ctx, cfg); err != nil {
		return model.WaterfallConfig{}, eris.Wrapf(err, "waterfall: save config %s", cfg.Field)
	}
	return cfg.Clone(), nil
}

// Delete removes a tenant config so the field falls back to file or defaults.
func (r *ConfigResolver) Delete(ctx context.Context, tenantID, field string) error {
	if r.store == nil {
		return eris.Wrapf(model.ErrNotFound, "waterfall config %s", field)
	}
	return r.store.DeleteWaterfallConfig(ctx, tenantID, strings.ToLower(strings.TrimSpace(field)))
}

// List returns the tenant's stored configs.
func (r *ConfigResolver) List(ctx context.Context, tenantID string) ([]model.WaterfallConfig, error) {
	if r.store == nil {
		return nil, nil
	}
	cfgs, err := r.store.ListWaterfallConfigs(ctx, tenantID)
	if err != nil {
		return nil, eris.Wrap(err, "waterfall: list configs")
	}
	return cfgs, nil
}
