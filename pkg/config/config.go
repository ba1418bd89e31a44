package config

import (
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no config path is given. A missing file there is
// not an error.
const DefaultPath = "cookframe.yaml"

type Config struct {
	App       AppConfig                 `yaml:"app"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Agents    AgentsConfig              `yaml:"agents"`
	Image     ImageConfig               `yaml:"image"`
	Memory    MemoryConfig              `yaml:"memory"`
	Logging   LoggingConfig             `yaml:"logging"`
	Policy    PolicyConfig              `yaml:"policy"`
	Search    SearchConfig              `yaml:"search"`
}

type AppConfig struct {
	Name      string `yaml:"name"`
	OutputDir string `yaml:"output_dir"`
	PromptDir string `yaml:"prompt_dir"`
	// ReportPath is where the prompts command writes its report.
	ReportPath string `yaml:"report_path"`
}

type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url,omitempty"`
	Enabled bool   `yaml:"enabled"`
}

// AgentConfig binds one role to a provider. Empty fields fall back to the
// provider's settings.
type AgentConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

type AgentsConfig struct {
	InstructionParser AgentConfig `yaml:"instruction_parser"`
	SceneDescriptor   AgentConfig `yaml:"scene_descriptor"`
	RecipeParser      AgentConfig `yaml:"recipe_parser"`
	ConceptPrompter   AgentConfig `yaml:"concept_prompter"`
}

type ImageConfig struct {
	Provider          string `yaml:"provider"`
	Model             string `yaml:"model"`
	IncludeContinuity bool   `yaml:"include_continuity"`
}

type MemoryConfig struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Dir    string `yaml:"dir"`
	Events bool   `yaml:"events"`
	Banner bool   `yaml:"banner"`
}

type PolicyConfig struct {
	DenyTools    []string `yaml:"deny_tools"`
	DenyPatterns []string `yaml:"deny_patterns"`
}

type SearchConfig struct {
	Enabled    bool `yaml:"enabled"`
	MaxResults int  `yaml:"max_results"`
}

// envKeys lists the environment variables that fill a provider's empty api_key.
var envKeys = map[string][]string{
	"anthropic":  {"ANTHROPIC_API_KEY"},
	"openai":     {"OPENAI_API_KEY"},
	"openrouter": {"OPENROUTER_API_KEY"},
	"gemini":     {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
}

func Defaults() *Config {
	return &Config{
		App: AppConfig{
			Name:       "cookframe",
			OutputDir:  ".",
			ReportPath: "gemini_prompts.txt",
		},
		Providers: map[string]ProviderConfig{
			"anthropic":  {Model: "claude-sonnet-4-5-20250929", Enabled: true},
			"openai":     {Model: "gpt-4o-mini"},
			"openrouter": {Model: "google/gemini-2.5-flash-image-preview", BaseURL: "https://openrouter.ai/api/v1"},
			"gemini":     {Model: "gemini-2.5-flash-image", Enabled: true},
		},
		Agents: AgentsConfig{
			InstructionParser: AgentConfig{Provider: "anthropic", MaxTokens: 2048},
			SceneDescriptor:   AgentConfig{Provider: "anthropic", MaxTokens: 2048},
			RecipeParser:      AgentConfig{Provider: "anthropic", MaxTokens: 4096},
			ConceptPrompter:   AgentConfig{Provider: "anthropic", MaxTokens: 1024},
		},
		Image: ImageConfig{
			Provider:          "gemini",
			IncludeContinuity: true,
		},
		Memory: MemoryConfig{
			Type: "sqlite",
			Path: "cookframe.db",
		},
		Logging: LoggingConfig{
			Dir:    "logs",
			Banner: true,
		},
		Search: SearchConfig{
			MaxResults: 3,
		},
	}
}

// Load reads .env, then the YAML file at path over the defaults, then fills
// missing provider keys from the environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: failed to load .env: %v", err)
	}

	cfg := Defaults()
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	if err := mergeFile(cfg, path); err != nil {
		if explicit || !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config %s: %w", path, err)
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// providerOverride is a provider entry as written in the file. Unset fields
// keep their default.
type providerOverride struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	Enabled *bool  `yaml:"enabled"`
}

func mergeFile(dst *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	base := dst.Providers
	if err := yaml.Unmarshal(data, dst); err != nil {
		return err
	}

	var file struct {
		Providers map[string]providerOverride `yaml:"providers"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return err
	}
	merged := make(map[string]ProviderConfig, len(base)+len(file.Providers))
	for name, p := range base {
		merged[name] = p
	}
	for name, o := range file.Providers {
		p := merged[name]
		if o.APIKey != "" {
			p.APIKey = o.APIKey
		}
		if o.Model != "" {
			p.Model = o.Model
		}
		if o.BaseURL != "" {
			p.BaseURL = o.BaseURL
		}
		if o.Enabled != nil {
			p.Enabled = *o.Enabled
		}
		merged[name] = p
	}
	dst.Providers = merged
	return nil
}

func (c *Config) applyEnv() {
	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}
	for name, keys := range envKeys {
		p := c.Providers[name]
		if p.APIKey != "" {
			continue
		}
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				p.APIKey = v
				c.Providers[name] = p
				break
			}
		}
	}
	if dir := os.Getenv("COOKFRAME_OUTPUT_DIR"); dir != "" {
		c.App.OutputDir = dir
	}
}

// Validate checks that every role points at a configured provider.
func (c *Config) Validate() error {
	if c.App.OutputDir == "" {
		return fmt.Errorf("app.output_dir is required")
	}
	roles := map[string]AgentConfig{
		"instruction_parser": c.Agents.InstructionParser,
		"scene_descriptor":   c.Agents.SceneDescriptor,
		"recipe_parser":      c.Agents.RecipeParser,
		"concept_prompter":   c.Agents.ConceptPrompter,
	}
	for role, a := range roles {
		if a.Provider == "" {
			continue
		}
		if _, ok := c.Providers[a.Provider]; !ok {
			return fmt.Errorf("agents.%s.provider %q is not configured", role, a.Provider)
		}
	}
	switch c.Image.Provider {
	case "gemini", "openrouter":
	default:
		return fmt.Errorf("image.provider must be gemini or openrouter, got %q", c.Image.Provider)
	}
	if _, ok := c.Providers[c.Image.Provider]; !ok {
		return fmt.Errorf("image.provider %q is not configured", c.Image.Provider)
	}
	return nil
}

// GetDefaultProvider returns the first enabled provider by name.
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if p := c.Providers[name]; p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// ResolveAgent returns the provider name and settings a role runs on, with
// the role's model override applied.
func (c *Config) ResolveAgent(a AgentConfig) (string, ProviderConfig, error) {
	name := a.Provider
	var p ProviderConfig
	if name == "" {
		name, p = c.GetDefaultProvider()
		if name == "" {
			return "", ProviderConfig{}, fmt.Errorf("no enabled provider configured")
		}
	} else {
		var ok bool
		if p, ok = c.Providers[name]; !ok {
			return "", ProviderConfig{}, fmt.Errorf("provider %q is not configured", name)
		}
	}
	if a.Model != "" {
		p.Model = a.Model
	}
	return name, p, nil
}

// ImageProvider returns the provider settings used by the image generator.
func (c *Config) ImageProvider() ProviderConfig {
	p := c.Providers[c.Image.Provider]
	if c.Image.Model != "" {
		p.Model = c.Image.Model
	}
	return p
}
