package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the reconciliation engine.
// Configuration can come from a YAML file (config.yaml) or environment
// variables; environment variables override YAML values. Secrets (database
// passwords, LLM API keys) must only come from environment variables.
type Config struct {
	Env     string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version string `yaml:"-"` // Set at load time, not from config

	// LLM configuration
	LLM LLMConfig `yaml:"llm"`

	// Source/target database connections for the executor.
	// When UseEnvDBConfigs is true these may be omitted from requests.
	UseEnvDBConfigs bool     `yaml:"use_env_db_configs" env:"USE_ENV_DB_CONFIGS" env-default:"false"`
	SourceDB        DBConfig `yaml:"source_db" env-prefix:"SOURCE_DB_"`
	TargetDB        DBConfig `yaml:"target_db" env-prefix:"TARGET_DB_"`

	// Storage layout
	Storage StorageConfig `yaml:"storage"`

	// WorkerPoolSize is the default per-request parallelism for rule and
	// definition fan-out.
	WorkerPoolSize int `yaml:"worker_pool_size" env:"WORKER_POOL_SIZE" env-default:"4"`
}

// LLMConfig holds LLM transport settings. When Enabled is false all LLM paths
// fall back to deterministic logic.
type LLMConfig struct {
	Enabled        bool    `yaml:"enabled" env:"LLM_ENABLED" env-default:"true"`
	Provider       string  `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"` // openai | anthropic
	Endpoint       string  `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:"https://api.openai.com/v1"`
	Model          string  `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o"`
	Temperature    float64 `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0.1"`
	MaxTokens      int     `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"4096"`
	TimeoutSeconds int     `yaml:"timeout_seconds" env:"LLM_TIMEOUT_SECONDS" env-default:"45"`
	MaxRetries     int     `yaml:"max_retries" env:"LLM_MAX_RETRIES" env-default:"2"`
	APIKey         string  `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
}

// DBConfig holds one reconciliation backend connection.
type DBConfig struct {
	Type        string `yaml:"type" env:"TYPE" env-default:"postgresql"`
	Host        string `yaml:"host" env:"HOST" env-default:"localhost"`
	Port        int    `yaml:"port" env:"PORT" env-default:"5432"`
	Database    string `yaml:"database" env:"DATABASE"`
	Username    string `yaml:"username" env:"USERNAME"`
	Password    string `yaml:"-" env:"PASSWORD"` // Secret - not in YAML
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME" env-default:""`
	Schema      string `yaml:"schema" env:"SCHEMA" env-default:""`
}

// StorageConfig holds the on-disk layout under the application root.
type StorageConfig struct {
	SchemaDir    string `yaml:"schema_dir" env:"SCHEMA_DIR" env-default:"schemas"`
	KGDir        string `yaml:"kg_dir" env:"KG_STORAGE_DIR" env-default:"kg_storage"`
	RulesDir     string `yaml:"rules_dir" env:"RULES_DIR" env-default:"data/reconciliation_rules"`
	ResultsDir   string `yaml:"results_dir" env:"RESULT_STORAGE_DIR" env-default:"results"`
	KPIConfigDir string `yaml:"kpi_config_dir" env:"KPI_CONFIG_DIR" env-default:"kpi_configs"`
	KPIResultDir string `yaml:"kpi_result_dir" env:"KPI_RESULT_DIR" env-default:"kpi_results"`
	EvidenceDir  string `yaml:"evidence_dir" env:"KPI_EVIDENCE_DIR" env-default:"kpi_evidence"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. A missing config.yaml is not an error; env defaults apply.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch strings.ToLower(c.LLM.Provider) {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("invalid llm provider %q (want openai or anthropic)", c.LLM.Provider)
	}
	if c.WorkerPoolSize < 1 {
		return fmt.Errorf("worker_pool_size must be >= 1, got %d", c.WorkerPoolSize)
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("llm max_retries must be >= 0, got %d", c.LLM.MaxRetries)
	}
	return nil
}

// DSN builds a database/sql connection string for the configured backend type.
func (c *DBConfig) DSN() (driver, dsn string, err error) {
	switch strings.ToLower(c.Type) {
	case "mysql":
		return "mysql", fmt.Sprintf("%s:%s@tcp(%s:%d)/%s",
			c.Username, c.Password, c.Host, c.Port, c.Database), nil
	case "postgresql", "postgres":
		return "pgx", fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
			c.Username, c.Password, c.Host, c.Port, c.Database), nil
	case "sqlserver", "mssql":
		return "sqlserver", fmt.Sprintf("sqlserver://%s:%s@%s:%d?database=%s",
			c.Username, c.Password, c.Host, c.Port, c.Database), nil
	case "oracle":
		// No Oracle driver ships with this module; callers register one under
		// the "oracle" name before opening.
		service := c.ServiceName
		if service == "" {
			service = c.Database
		}
		return "oracle", fmt.Sprintf("oracle://%s:%s@%s:%d/%s",
			c.Username, c.Password, c.Host, c.Port, service), nil
	}
	return "", "", fmt.Errorf("unsupported database type %q", c.Type)
}
