package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks the environment variables read by Load.
const EnvPrefix = "FAM_"

// DotenvVar names the variable holding an optional .env file path.
const DotenvVar = EnvPrefix + "DOTENV"

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env        string           `koanf:"env" validate:"required,oneof=dev prod"`
	Log        LogConfig        `koanf:"log"`
	Policy     PolicyConfig     `koanf:"policy"`
	Categories CategoriesConfig `koanf:"categories"`
	Activity   ActivityConfig   `koanf:"activity"`
}

type LogConfig struct {
	// Level controls log verbosity: "debug", "info", "warn", or "error".
	Level string `koanf:"level" validate:"required,oneof=debug info warn error"`
	// File, when set, sends logs to a rotating file instead of stderr.
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `koanf:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `koanf:"max_age_days" validate:"gte=0"`
}

type PolicyConfig struct {
	// Directory holds the YAML/JSON/TOML policy files.
	Directory string `koanf:"dir" validate:"required"`
	// Timezone is the household's IANA zone; time restrictions are read in it.
	Timezone string `koanf:"timezone" validate:"required,tz"`
}

type CategoriesConfig struct {
	// Directory holds one list per category; empty disables categorization.
	Directory string  `koanf:"dir"`
	DB        string  `koanf:"db" validate:"required_with=Directory"`
	CacheSize int     `koanf:"cache_size" validate:"gte=0"`
	FPRate    float64 `koanf:"fp_rate" validate:"fprate"`
}

type ActivityConfig struct {
	DB string `koanf:"db" validate:"required"`
}

// DEFAULT_APP_CONFIG defines the default configuration of the filtering daemon.
var DEFAULT_APP_CONFIG = AppConfig{
	Env: "prod",
	Log: LogConfig{
		Level:      "info",
		MaxSizeMB:  100,
		MaxBackups: 3,
		MaxAgeDays: 28,
	},
	Policy: PolicyConfig{
		Directory: "/etc/famfilter/policy.d/",
		Timezone:  "UTC",
	},
	Categories: CategoriesConfig{
		Directory: "/etc/famfilter/categories.d/",
		DB:        "/var/lib/famfilter/categories.db",
		CacheSize: 10000,
		FPRate:    0.01,
	},
	Activity: ActivityConfig{
		DB: "/var/lib/famfilter/activity.db",
	},
}

// Location resolves the configured policy timezone.
func (c AppConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Policy.Timezone)
}

// sections are the nested keys an env var may address, e.g. FAM_LOG_LEVEL → log.level.
var sections = []string{"log", "policy", "categories", "activity"}

// envKey maps a variable name to its koanf key.
func envKey(name string) string {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	for _, s := range sections {
		if strings.HasPrefix(key, s+"_") {
			return s + "." + strings.TrimPrefix(key, s+"_")
		}
	}
	return key
}

func validTimezone(fl validator.FieldLevel) bool {
	_, err := time.LoadLocation(fl.Field().String())
	return err == nil
}

// validFPRate accepts a Bloom false-positive rate strictly between 0 and 1.
func validFPRate(fl validator.FieldLevel) bool {
	p := fl.Field().Float()
	return p > 0 && p < 1
}

// dotenvLoader loads the file named by FAM_DOTENV into the process
// environment. Variables already set win; a missing file is ignored.
var dotenvLoader = func() error {
	path := os.Getenv(DotenvVar)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// envLoader loads FAM_-prefixed environment variables; it can be mocked in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return envKey(key), strings.TrimSpace(value)
		},
	}), nil)
}

// defaultLoader loads DEFAULT_APP_CONFIG through the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

var registerValidation = func(v *validator.Validate) error {
	if err := v.RegisterValidation("tz", validTimezone); err != nil {
		return err
	}
	return v.RegisterValidation("fprate", validFPRate)
}

// Load reads defaults, an optional .env file and FAM_ variables, and returns
// a validated AppConfig.
func Load() (*AppConfig, error) {
	if err := dotenvLoader(); err != nil {
		return nil, fmt.Errorf("error loading dotenv: %w", err)
	}

	k := koanf.New(".")
	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}
	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return &cfg, nil
}
