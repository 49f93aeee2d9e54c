package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const maskedSecret = "****"

// Config holds the settings of a backfill run, read from the environment.
type Config struct {
	MongoURL    string `env:"MONGO_URL" envDefault:"mongodb://localhost:27017" validate:"required,startswith=mongodb"`
	Username    string `env:"MONGO_USERNAME"`
	Password    string `env:"MONGO_PASSWORD"`
	Database    string `env:"MONGO_DATABASE" envDefault:"test" validate:"required"`
	Timeout     int    `env:"MONGO_TIMEOUT" envDefault:"10" validate:"min=1,max=300"`
	MaxPoolSize int    `env:"MONGO_MAX_POOL_SIZE" envDefault:"10" validate:"min=1"`
	MinPoolSize int    `env:"MONGO_MIN_POOL_SIZE" envDefault:"0" validate:"min=0,ltefield=MaxPoolSize"`
	SSLEnabled  bool   `env:"MONGO_SSL_ENABLED" envDefault:"false"`
	SSLInsecure bool   `env:"MONGO_SSL_INSECURE" envDefault:"false"`

	Collection        string `env:"BACKFILL_COLLECTION" envDefault:"user" validate:"required,excludes=$"`
	Field             string `env:"BACKFILL_FIELD" envDefault:"notes" validate:"required,excludes=.,excludes=$"`
	RulesFile         string `env:"BACKFILL_RULES_FILE"`
	SkipUnchanged     bool   `env:"BACKFILL_SKIP_UNCHANGED" envDefault:"false"`
	HistoryCollection string `env:"BACKFILL_HISTORY_COLLECTION" validate:"omitempty,excludes=$"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads the given dotenv files, skipping the ones that do not exist, and
// then parses and validates the environment. Variables already set in the
// environment win over file values.
func Load(paths ...string) (*Config, error) {
	var files []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			files = append(files, p)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
	}
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return nil, fmt.Errorf("load env files: %w", err)
		}
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// GetConnectionString returns MongoURL with the configured credentials set.
func (c *Config) GetConnectionString() string {
	if c.Username == "" {
		return c.MongoURL
	}
	u, err := url.Parse(c.MongoURL)
	if err != nil {
		return c.MongoURL
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.Username, c.Password)
	} else {
		u.User = url.User(c.Username)
	}
	return u.String()
}

// Masked returns a copy with secrets replaced, safe to print.
func (c *Config) Masked() Config {
	out := *c
	if out.Password != "" {
		out.Password = maskedSecret
	}
	if u, err := url.Parse(out.MongoURL); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), maskedSecret)
			out.MongoURL = u.String()
		}
	}
	return out
}
