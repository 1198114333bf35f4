package core

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
	"gopkg.in/yaml.v3"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// YAMLFileLoader reads a YAML config file. A missing optional file yields an
// empty layer.
type YAMLFileLoader struct {
	Path     string
	Optional bool
}

func (l YAMLFileLoader) LoadRaw(context.Context) (map[string]any, error) {
	path := strings.TrimSpace(l.Path)
	if path == "" {
		return map[string]any{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if l.Optional && os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, ConfigError("core: read config file failed", map[string]any{
			"path":  path,
			"error": err.Error(),
		})
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, ConfigError("core: decode config file failed", map[string]any{
			"path":  path,
			"error": err.Error(),
		})
	}
	return raw, nil
}

type envBinding struct {
	name  string
	path  []string
	multi bool
}

var envBindings = []envBinding{
	{name: "SERVICE_NAME", path: []string{"service_name"}},
	{name: "SUBSCRIPTION_ID", path: []string{"subscription", "id"}},
	{name: "SUBSCRIPTION_RESOURCE", path: []string{"subscription", "resource"}},
	{name: "NOTIFICATION_URL", path: []string{"subscription", "notification_url"}},
	{name: "CLIENT_STATE", path: []string{"subscription", "client_state"}},
	{name: "RENEWAL_SCHEDULE", path: []string{"subscription", "schedule"}},
	{name: "RENEWAL_WINDOW", path: []string{"subscription", "renewal_window"}},
	{name: "TENANT_ID", path: []string{"identity", "tenant_id"}},
	{name: "CLIENT_ID", path: []string{"identity", "client_id"}},
	{name: "CLIENT_SECRET", path: []string{"identity", "client_secret"}},
	{name: "AUTHORITY_URL", path: []string{"identity", "authority_url"}},
	{name: "GRAPH_BASE_URL", path: []string{"graph", "base_url"}},
	{name: "INTEREST_KEYWORDS", path: []string{"receiver", "interest_keywords"}, multi: true},
	{name: "INTEREST_PATTERN", path: []string{"receiver", "interest_pattern"}},
	{name: "STORAGE_BACKEND", path: []string{"storage", "backend"}},
	{name: "STORAGE_ROOT", path: []string{"storage", "root"}},
	{name: "JOB_BACKEND_URL", path: []string{"jobs", "backend_url"}},
	{name: "JOB_TEMPLATE", path: []string{"jobs", "template"}},
	{name: "JOB_MODEL", path: []string{"jobs", "model"}},
	{name: "JOB_SCOPES", path: []string{"jobs", "scopes"}, multi: true},
	{name: "DATABASE_DRIVER", path: []string{"database", "driver"}},
	{name: "DATABASE_DSN", path: []string{"database", "dsn"}},
	{name: "LISTEN_ADDR", path: []string{"server", "addr"}},
}

// EnvConfigLoader maps process environment variables onto config keys.
type EnvConfigLoader struct {
	Lookup func(key string) (string, bool)
}

func (l EnvConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	lookup := l.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	raw := map[string]any{}
	for _, binding := range envBindings {
		value, ok := lookup(binding.name)
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if binding.multi {
			setPath(raw, binding.path, splitList(value))
			continue
		}
		setPath(raw, binding.path, value)
	}
	return raw, nil
}

// LayeredConfigLoader merges a config file layer under an environment layer.
type LayeredConfigLoader struct {
	File RawConfigLoader
	Env  RawConfigLoader
}

func (l LayeredConfigLoader) LoadRaw(ctx context.Context) (map[string]any, error) {
	fileLayer, err := loadRawLayer(ctx, l.File)
	if err != nil {
		return nil, err
	}
	envLayer, err := loadRawLayer(ctx, l.Env)
	if err != nil {
		return nil, err
	}
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("file", 10),
			fileLayer,
			opts.WithSnapshotID[map[string]any]("file"),
		),
		opts.NewLayer(
			opts.NewScope("env", 20),
			envLayer,
			opts.WithSnapshotID[map[string]any]("env"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("core: config stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return nil, fmt.Errorf("core: config merge failed: %w", err)
	}
	return merged.Value, nil
}

func loadRawLayer(ctx context.Context, loader RawConfigLoader) (map[string]any, error) {
	if loader == nil {
		return map[string]any{}, nil
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	if err := normalizeDurations(raw); err != nil {
		return Config{}, err
	}
	return cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// LoadConfig resolves defaults, an optional YAML file, the environment and
// runtime overrides, in increasing priority.
func LoadConfig(ctx context.Context, path string, runtime Config) (Config, error) {
	defaults := DefaultConfig()
	provider := NewCfgxConfigProvider(LayeredConfigLoader{
		File: YAMLFileLoader{Path: path},
		Env:  EnvConfigLoader{},
	})
	loaded, err := provider.Load(ctx, defaults)
	if err != nil {
		return Config{}, err
	}
	return GoOptionsResolver{}.Resolve(defaults, loaded, runtime)
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	putString(layer, "service_name", cfg.ServiceName, includeZero)

	subscription := map[string]any{}
	putString(subscription, "id", cfg.Subscription.ID, includeZero)
	putString(subscription, "resource", cfg.Subscription.Resource, includeZero)
	putString(subscription, "notification_url", cfg.Subscription.NotificationURL, includeZero)
	putString(subscription, "client_state", cfg.Subscription.ClientState, includeZero)
	putDuration(subscription, "renewal_window", cfg.Subscription.RenewalWindow, includeZero)
	putDuration(subscription, "max_lifetime", cfg.Subscription.MaxLifetime, includeZero)
	putString(subscription, "schedule", cfg.Subscription.Schedule, includeZero)
	putDuration(subscription, "renew_timeout", cfg.Subscription.RenewTimeout, includeZero)
	putSection(layer, "subscription", subscription)

	identity := map[string]any{}
	putString(identity, "tenant_id", cfg.Identity.TenantID, includeZero)
	putString(identity, "client_id", cfg.Identity.ClientID, includeZero)
	putString(identity, "client_secret", cfg.Identity.ClientSecret, includeZero)
	putString(identity, "authority_url", cfg.Identity.AuthorityURL, includeZero)
	putStrings(identity, "scopes", cfg.Identity.Scopes, includeZero)
	putSection(layer, "identity", identity)

	graph := map[string]any{}
	putString(graph, "base_url", cfg.Graph.BaseURL, includeZero)
	putDuration(graph, "timeout", cfg.Graph.Timeout, includeZero)
	putSection(layer, "graph", graph)

	receiver := map[string]any{}
	if includeZero || cfg.Receiver.MaxAttempts != 0 {
		receiver["max_attempts"] = cfg.Receiver.MaxAttempts
	}
	putDuration(receiver, "initial_backoff", cfg.Receiver.InitialBackoff, includeZero)
	putDuration(receiver, "max_backoff", cfg.Receiver.MaxBackoff, includeZero)
	if includeZero || cfg.Receiver.Concurrency != 0 {
		receiver["concurrency"] = cfg.Receiver.Concurrency
	}
	if includeZero || cfg.Receiver.MaxBodyBytes != 0 {
		receiver["max_body_bytes"] = cfg.Receiver.MaxBodyBytes
	}
	putStrings(receiver, "interest_keywords", cfg.Receiver.InterestKeywords, includeZero)
	putString(receiver, "interest_pattern", cfg.Receiver.InterestPattern, includeZero)
	putSection(layer, "receiver", receiver)

	storage := map[string]any{}
	putString(storage, "backend", cfg.Storage.Backend, includeZero)
	putString(storage, "root", cfg.Storage.Root, includeZero)
	putSection(layer, "storage", storage)

	jobs := map[string]any{}
	putString(jobs, "backend_url", cfg.Jobs.BackendURL, includeZero)
	putString(jobs, "template", cfg.Jobs.Template, includeZero)
	putString(jobs, "model", cfg.Jobs.Model, includeZero)
	putStrings(jobs, "scopes", cfg.Jobs.Scopes, includeZero)
	putSection(layer, "jobs", jobs)

	database := map[string]any{}
	putString(database, "driver", cfg.Database.Driver, includeZero)
	putString(database, "dsn", cfg.Database.DSN, includeZero)
	putSection(layer, "database", database)

	server := map[string]any{}
	putString(server, "addr", cfg.Server.Addr, includeZero)
	putSection(layer, "server", server)
	return layer
}

var durationKeys = [][]string{
	{"subscription", "renewal_window"},
	{"subscription", "max_lifetime"},
	{"subscription", "renew_timeout"},
	{"graph", "timeout"},
	{"receiver", "initial_backoff"},
	{"receiver", "max_backoff"},
}

// normalizeDurations converts textual durations ("70h") into time.Duration so
// the decoder can assign them directly.
func normalizeDurations(raw map[string]any) error {
	for _, path := range durationKeys {
		section, ok := raw[path[0]].(map[string]any)
		if !ok {
			continue
		}
		value, ok := section[path[1]]
		if !ok {
			continue
		}
		switch typed := value.(type) {
		case string:
			parsed, err := time.ParseDuration(strings.TrimSpace(typed))
			if err != nil {
				return ConfigError("core: invalid duration", map[string]any{
					"key":   strings.Join(path, "."),
					"value": typed,
				})
			}
			section[path[1]] = parsed
		case int:
			section[path[1]] = time.Duration(typed) * time.Second
		}
	}
	return nil
}

func setPath(raw map[string]any, path []string, value any) {
	current := raw
	for _, key := range path[:len(path)-1] {
		next, ok := current[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[key] = next
		}
		current = next
	}
	current[path[len(path)-1]] = value
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func putString(layer map[string]any, key, value string, includeZero bool) {
	if includeZero || strings.TrimSpace(value) != "" {
		layer[key] = value
	}
}

func putDuration(layer map[string]any, key string, value time.Duration, includeZero bool) {
	if includeZero || value != 0 {
		layer[key] = value
	}
}

func putStrings(layer map[string]any, key string, values []string, includeZero bool) {
	if includeZero || len(values) > 0 {
		layer[key] = append([]string(nil), values...)
	}
}

func putSection(layer map[string]any, key string, section map[string]any) {
	if len(section) > 0 {
		layer[key] = section
	}
}
