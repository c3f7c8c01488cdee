package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Port          string `mapstructure:"PORT"`
	Env           string `mapstructure:"ENV"`
	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	DBMaxConns    int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns    int32  `mapstructure:"DB_MIN_CONNS"`
	BlobDir       string `mapstructure:"BLOB_DIR"`
	MigrationsDir string `mapstructure:"MIGRATIONS_DIR"`
	IntakeActor   string `mapstructure:"INTAKE_ACTOR"`
	AdminJWTKey   string `mapstructure:"ADMIN_JWT_KEY"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("BLOB_DIR", "./data/queue")
	v.SetDefault("MIGRATIONS_DIR", "./migrations")
	v.SetDefault("INTAKE_ACTOR", "intake-processor")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("BLOB_DIR")
	v.BindEnv("MIGRATIONS_DIR")
	v.BindEnv("INTAKE_ACTOR")
	v.BindEnv("ADMIN_JWT_KEY")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run. Outside of
// development the admin API requires a signing key so that queue
// operations cannot be triggered anonymously.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AdminJWTKey == "" {
		return fmt.Errorf("ADMIN_JWT_KEY is required when ENV=%q", c.Env)
	}
	if c.BlobDir == "" {
		return fmt.Errorf("BLOB_DIR must not be empty")
	}
	if c.IntakeActor == "" {
		return fmt.Errorf("INTAKE_ACTOR must not be empty")
	}
	return nil
}
