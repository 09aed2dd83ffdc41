package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidEmbeddingProviders lists the known embedding backend names.
// Used by [Validate] to warn about unrecognised names.
var ValidEmbeddingProviders = []string{"openai", "ollama"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Catalog
	if cfg.Catalog.PostgresDSN == "" {
		slog.Warn("catalog.postgres_dsn is empty; the engine will run against the in-memory store only")
	}
	if cfg.Catalog.EmbeddingDimensions < 0 {
		errs = append(errs, fmt.Errorf("catalog.embedding_dimensions %d must not be negative", cfg.Catalog.EmbeddingDimensions))
	}

	// Providers
	validateProviderEntry("providers.embeddings", cfg.Providers.Embeddings, &errs)
	for i, entry := range cfg.Providers.EmbeddingsFallbacks {
		validateProviderEntry(fmt.Sprintf("providers.embeddings_fallbacks[%d]", i), entry, &errs)
	}
	if cfg.Providers.Embeddings.Name == "" && len(cfg.Providers.EmbeddingsFallbacks) > 0 {
		errs = append(errs, errors.New("providers.embeddings_fallbacks is set but providers.embeddings is not configured"))
	}
	if cfg.Providers.Embeddings.Name == "" {
		slog.Warn("providers.embeddings is not configured; semantic search will be unavailable")
	}
	if cfg.Providers.Embeddings.Name != "" && cfg.Catalog.EmbeddingDimensions == 0 {
		slog.Warn("providers.embeddings is configured but catalog.embedding_dimensions is not set; the backend's model dimension will be used")
	}

	// Matching
	m := cfg.Matching
	if m.TopK < 0 {
		errs = append(errs, fmt.Errorf("matching.top_k %d must not be negative", m.TopK))
	}
	if w := m.Aboutness.MetaWeight; w < 0 || w > 1 {
		errs = append(errs, fmt.Errorf("matching.aboutness.meta_weight %.2f is out of range [0, 1]", w))
	}
	if w := m.Aboutness.AboutnessWeight; w < 0 || w > 1 {
		errs = append(errs, fmt.Errorf("matching.aboutness.aboutness_weight %.2f is out of range [0, 1]", w))
	}
	if m.Calibration.Min != 0 || m.Calibration.Max != 0 {
		if m.Calibration.Min < 0 || m.Calibration.Max > 1 || m.Calibration.Min >= m.Calibration.Max {
			errs = append(errs, fmt.Errorf("matching.calibration min/max %.2f/%.2f must satisfy 0 <= min < max <= 1", m.Calibration.Min, m.Calibration.Max))
		}
	}
	if s := m.Calibration.SingleCandidate; s < 0 || s > 1 {
		errs = append(errs, fmt.Errorf("matching.calibration.single_candidate %.2f is out of range [0, 1]", s))
	}
	if t := m.Diversity.Threshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("matching.diversity.threshold %.2f is out of range [0, 1]", t))
	}
	if m.Diversity.MaxAlternates < 0 {
		errs = append(errs, fmt.Errorf("matching.diversity.max_alternates %d must not be negative", m.Diversity.MaxAlternates))
	}
	if m.RecencyFloor < 0 {
		errs = append(errs, fmt.Errorf("matching.recency_floor %d must not be negative", m.RecencyFloor))
	}
	if m.FallbackLimit < 0 {
		errs = append(errs, fmt.Errorf("matching.fallback_limit %d must not be negative", m.FallbackLimit))
	}

	// Moderation
	if cfg.Moderation.Mode != "" && !cfg.Moderation.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("moderation.mode %q is invalid; valid values: off, allow-all, blocklist", cfg.Moderation.Mode))
	}
	if cfg.Moderation.Mode != ModerationBlocklist && (len(cfg.Moderation.Block) > 0 || len(cfg.Moderation.Replace) > 0) {
		slog.Warn("moderation block/replace lists are set but mode is not blocklist; they will be ignored",
			"mode", cfg.Moderation.Mode)
	}

	return errors.Join(errs...)
}

// validateProviderEntry checks one embedding backend block, appending hard
// errors to errs and logging soft warnings.
func validateProviderEntry(prefix string, entry ProviderEntry, errs *[]error) {
	if entry.Name == "" {
		return
	}
	if !slices.Contains(ValidEmbeddingProviders, entry.Name) {
		slog.Warn("unknown embedding provider name — may be a typo",
			"field", prefix,
			"name", entry.Name,
			"known", ValidEmbeddingProviders,
		)
	}
	if entry.Name == "openai" && entry.APIKey == "" {
		*errs = append(*errs, fmt.Errorf("%s.api_key is required for the openai backend", prefix))
	}
	if entry.Name == "ollama" && entry.Model == "" {
		*errs = append(*errs, fmt.Errorf("%s.model is required for the ollama backend", prefix))
	}
}
