package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rc-ventura/educajus-br-ai/internal/domain"
)

// Config holds the educajus API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Auth      AuthConfig      `yaml:"auth"`
	Index     IndexConfig     `yaml:"index"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Intake    IntakeConfig    `yaml:"intake"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Review    ReviewConfig    `yaml:"review"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// IndexConfig selects and configures the vector index backend.
type IndexConfig struct {
	Driver  string        `yaml:"driver"` // chromem, redis (default: chromem)
	Chromem ChromemConfig `yaml:"chromem"`
	Redis   RedisConfig   `yaml:"redis"`
}

// ChromemConfig holds settings for the embedded chromem-go backend.
type ChromemConfig struct {
	Path       string `yaml:"path"`       // artifact directory written by the indexer
	Collection string `yaml:"collection"` // default: cdc
	Watch      bool   `yaml:"watch"`      // reload snapshot when the manifest changes
}

// RedisConfig holds settings for the Redis Search backend.
type RedisConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	Alias            string   `yaml:"alias"`      // serving index alias, swapped on rebuild
	KeyPrefix        string   `yaml:"key_prefix"` // default: educajus:
	MetadataPath     string   `yaml:"metadata_path"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds embedding provider and vectorizer settings.
type EmbeddingConfig struct {
	APIKey              string `yaml:"api_key"`
	BaseURL             string `yaml:"base_url"`
	Provider            string `yaml:"provider"` // label for metrics (default: openai)
	Model               string `yaml:"model"`
	Dimensions          int    `yaml:"dimensions"`
	QueryInstruction    string `yaml:"query_instruction"`
	DocumentInstruction string `yaml:"document_instruction"`
}

// LLMConfig holds chat-completion settings for the classifier and the drafter.
type LLMConfig struct {
	APIKey             string  `yaml:"api_key"`
	BaseURL            string  `yaml:"base_url"`
	Model              string  `yaml:"model"`
	Temperature        float32 `yaml:"temperature"`
	ClassifyTimeoutSec int     `yaml:"classify_timeout_sec"`
	DraftTimeoutSec    int     `yaml:"draft_timeout_sec"`
}

// IntakeConfig is the intake guard policy. Severity mapping, masking and scope
// term lists live here so policy tuning never touches detection code.
type IntakeConfig struct {
	// Severity maps finding kind -> "block" | "warn".
	Severity map[string]string `yaml:"severity"`
	// MaskToken replaces confirmed findings in the cleaned query.
	MaskToken string `yaml:"mask_token"`
	// WarnDisclosure is "expose" (warnings returned to the caller) or "log".
	WarnDisclosure string `yaml:"warn_disclosure"`
	// InScopeTerms and OutOfScopeTerms feed the fallback keyword classifier.
	InScopeTerms    []string `yaml:"in_scope_terms"`
	OutOfScopeTerms []string `yaml:"out_of_scope_terms"`
}

// RetrievalConfig holds retrieval settings.
type RetrievalConfig struct {
	DefaultK    int `yaml:"default_k"`
	MaxK        int `yaml:"max_k"`
	MinEvidence int `yaml:"min_evidence"` // below this the pipeline reports no evidence
}

// ReviewConfig holds the human-review queue settings.
type ReviewConfig struct {
	Path string `yaml:"path"` // JSONL file; empty disables the queue
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Index.Driver == "" {
		c.Index.Driver = "chromem"
	}
	if c.Index.Chromem.Collection == "" {
		c.Index.Chromem.Collection = "cdc"
	}
	if c.Index.Redis.Alias == "" {
		c.Index.Redis.Alias = "educajus:cdc:idx"
	}
	if c.Index.Redis.KeyPrefix == "" {
		c.Index.Redis.KeyPrefix = "educajus:"
	}
	if c.Index.Redis.ReadinessTimeout <= 0 {
		c.Index.Redis.ReadinessTimeout = 10
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.LLM.ClassifyTimeoutSec <= 0 {
		c.LLM.ClassifyTimeoutSec = 5
	}
	if c.LLM.DraftTimeoutSec <= 0 {
		c.LLM.DraftTimeoutSec = 30
	}
	if len(c.Intake.Severity) == 0 {
		c.Intake.Severity = DefaultSeverityPolicy()
	}
	if c.Intake.MaskToken == "" {
		c.Intake.MaskToken = "[dado-removido]"
	}
	if c.Intake.WarnDisclosure == "" {
		c.Intake.WarnDisclosure = "log"
	}
	if len(c.Intake.InScopeTerms) == 0 {
		c.Intake.InScopeTerms = defaultInScopeTerms
	}
	if len(c.Intake.OutOfScopeTerms) == 0 {
		c.Intake.OutOfScopeTerms = defaultOutOfScopeTerms
	}
	if c.Retrieval.DefaultK <= 0 {
		c.Retrieval.DefaultK = 5
	}
	if c.Retrieval.MaxK <= 0 {
		c.Retrieval.MaxK = 10
	}
	if c.Retrieval.MinEvidence <= 0 {
		c.Retrieval.MinEvidence = 2
	}
}

// DefaultSeverityPolicy is the shipped kind -> severity table: personal
// identifiers block, case numbers pass with a warning.
func DefaultSeverityPolicy() map[string]string {
	return map[string]string{
		string(domain.FindingCPF):        string(domain.SeverityBlock),
		string(domain.FindingCNPJ):       string(domain.SeverityBlock),
		string(domain.FindingEmail):      string(domain.SeverityBlock),
		string(domain.FindingPhone):      string(domain.SeverityBlock),
		string(domain.FindingCaseNumber): string(domain.SeverityWarn),
	}
}

// Curated term lists for the fallback keyword classifier (pt-BR).
var (
	defaultInScopeTerms = []string{
		"consumidor", "cdc", "fornecedor", "produto", "serviço",
		"compra", "loja", "garantia", "troca", "devolução", "arrependimento",
		"vício", "defeito", "cobrança", "propaganda", "oferta", "contrato",
		"procon", "reclamação", "entrega", "reembolso", "cancelamento",
	}
	defaultOutOfScopeTerms = []string{
		"criminal", "penal", "crime", "divórcio", "pensão", "trabalhista",
		"demissão", "inventário", "herança", "imposto", "tributário",
		"previdência", "aposentadoria", "eleitoral",
	}
)

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Index.Driver {
	case "chromem":
		if c.Index.Chromem.Path == "" {
			return fmt.Errorf("index.chromem.path is required for the chromem driver")
		}
	case "redis":
		if len(c.Index.Redis.Addrs) == 0 {
			return fmt.Errorf("index.redis.addrs is required for the redis driver")
		}
		if c.Index.Redis.MetadataPath == "" {
			return fmt.Errorf("index.redis.metadata_path is required for the redis driver")
		}
	default:
		return fmt.Errorf("index.driver must be \"chromem\" or \"redis\", got %q", c.Index.Driver)
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}
	for kind, sev := range c.Intake.Severity {
		switch domain.FindingKind(kind) {
		case domain.FindingCPF, domain.FindingCNPJ, domain.FindingEmail,
			domain.FindingPhone, domain.FindingCaseNumber:
			// known kind
		default:
			return fmt.Errorf("intake.severity has unknown finding kind %q", kind)
		}
		if sev != string(domain.SeverityBlock) && sev != string(domain.SeverityWarn) {
			return fmt.Errorf("intake.severity.%s must be \"block\" or \"warn\", got %q", kind, sev)
		}
	}
	switch c.Intake.WarnDisclosure {
	case "expose", "log":
		// ok
	default:
		return fmt.Errorf("intake.warn_disclosure must be \"expose\" or \"log\", got %q", c.Intake.WarnDisclosure)
	}
	if c.Retrieval.DefaultK > c.Retrieval.MaxK {
		return fmt.Errorf("retrieval.default_k (%d) exceeds retrieval.max_k (%d)",
			c.Retrieval.DefaultK, c.Retrieval.MaxK)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
