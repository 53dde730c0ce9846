package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/uidetective/uidetect/apiclient"
)

const defaultStoreDir = "uidetect-history"

// modelEntry is one configured endpoint. API keys are referenced by
// environment variable name, never stored in the file.
type modelEntry struct {
	apiclient.ModelConfig `yaml:",inline"`

	APIKeyRef string `yaml:"api_key_ref"`
}

type fileConfig struct {
	StoreDir       string       `yaml:"store_dir"`
	SystemTemplate string       `yaml:"system_template"`
	DinoPrompt     string       `yaml:"dino_prompt"`
	Models         []modelEntry `yaml:"models"`
}

func loadConfig(path string) (*fileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}

	var cfg fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	if cfg.StoreDir == "" {
		cfg.StoreDir = defaultStoreDir
	}
	if len(cfg.Models) == 0 {
		return nil, fmt.Errorf("config has no models")
	}

	seen := map[string]struct{}{}
	for i := range cfg.Models {
		m := &cfg.Models[i]
		if strings.TrimSpace(m.ID) == "" {
			return nil, fmt.Errorf("models[%d].id is required", i)
		}
		if _, ok := seen[m.ID]; ok {
			return nil, fmt.Errorf("duplicate model id %q", m.ID)
		}
		seen[m.ID] = struct{}{}

		if ref := strings.TrimSpace(m.APIKeyRef); ref != "" {
			key := strings.TrimSpace(os.Getenv(ref))
			if key == "" {
				return nil, fmt.Errorf("models[%d]: env %s is empty", i, ref)
			}
			m.APIKey = key
		}
		m.ModelConfig = m.ModelConfig.WithDefaults()
		if err := m.ModelConfig.Validate(); err != nil {
			return nil, fmt.Errorf("models[%d] (%s): %w", i, m.ID, err)
		}
	}
	return &cfg, nil
}

// enabledModels returns the configs that will participate in a batch.
func (c *fileConfig) enabledModels() []apiclient.ModelConfig {
	var out []apiclient.ModelConfig
	for _, m := range c.Models {
		if m.Enabled {
			out = append(out, m.ModelConfig)
		}
	}
	return out
}

func (c *fileConfig) allModels() []apiclient.ModelConfig {
	out := make([]apiclient.ModelConfig, 0, len(c.Models))
	for _, m := range c.Models {
		out = append(out, m.ModelConfig)
	}
	return out
}
