package config

import (
	"os"

	"github.com/ghodss/yaml"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	homedir "github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/kelda/licensemaker/pkg/errors"
	"github.com/kelda/licensemaker/pkg/license"
)

const (
	// EnvPrefix namespaces environment overrides, e.g. LICENSEMAKER_KEY_DIR.
	EnvPrefix = "LICENSEMAKER"

	// DefaultFile is read when present and no --config is given.
	DefaultFile = "licensemaker.yaml"

	// DotEnvFile is loaded into the environment before overrides are read.
	DotEnvFile = ".env"
)

// Config anchors every path the tool touches. Relative paths resolve against
// the working directory.
type Config struct {
	// Only the prefixed variables are read. An explicit envconfig name would
	// also match the bare one, e.g. PRODUCT.
	KeyDir     string `json:"key_dir,omitempty" split_words:"true"`
	LicenseDir string `json:"license_dir,omitempty" split_words:"true"`
	Product    string `json:"product,omitempty" split_words:"true"`
	LogLevel   string `json:"log_level,omitempty" split_words:"true"`
}

func Default() Config {
	return Config{
		KeyDir:     "keys",
		LicenseDir: "licenses",
		Product:    license.DefaultProduct,
		LogLevel:   "info",
	}
}

// Load resolves the configuration. Later sources win: defaults, the YAML file,
// the environment (including .env), and finally the non-empty fields of flags.
// An explicit path that doesn't exist is an error; the default file is
// optional.
func Load(fs afero.Fs, path string, flags Config) (Config, error) {
	cfg := Default()

	if path == "" {
		exists, err := afero.Exists(fs, DefaultFile)
		if err != nil {
			return Config{}, errors.WithKind(errors.IOFailure,
				errors.WithContext("stat config file", err))
		}
		if exists {
			path = DefaultFile
		}
	}
	if path != "" {
		if err := cfg.mergeFile(fs, path); err != nil {
			return Config{}, err
		}
	}

	if err := loadDotEnv(fs, DotEnvFile); err != nil {
		return Config{}, err
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, errors.WithKind(errors.InvalidArguments,
			errors.WithContext("read environment", err))
	}

	cfg = cfg.Merge(flags)
	if err := cfg.expand(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Merge returns c with every non-empty field of o applied on top.
func (c Config) Merge(o Config) Config {
	if o.KeyDir != "" {
		c.KeyDir = o.KeyDir
	}
	if o.LicenseDir != "" {
		c.LicenseDir = o.LicenseDir
	}
	if o.Product != "" {
		c.Product = o.Product
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	return c
}

func (c Config) Validate() error {
	switch {
	case c.KeyDir == "":
		return errors.WithKind(errors.InvalidArguments,
			errors.NewFriendlyError("The key directory cannot be empty."))
	case c.LicenseDir == "":
		return errors.WithKind(errors.InvalidArguments,
			errors.NewFriendlyError("The license directory cannot be empty."))
	case c.Product == "":
		return errors.WithKind(errors.InvalidArguments,
			errors.NewFriendlyError("The product name cannot be empty."))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return errors.WithKind(errors.InvalidArguments,
			errors.NewFriendlyError("Unknown log level %q.", c.LogLevel))
	}
	return nil
}

// Level is the parsed LogLevel. Call Validate first.
func (c Config) Level() log.Level {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return level
}

func (c *Config) mergeFile(fs afero.Fs, path string) error {
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return errors.WithKind(errors.IOFailure,
			errors.WithContext("read config file", err))
	}
	// Unmarshalling into the existing struct keeps defaults for absent keys.
	if err := yaml.Unmarshal(b, c); err != nil {
		return errors.WithKind(errors.IOFailure, errors.NewFriendlyError(
			"Failed to parse config file (%s)\nError: %s", path, err))
	}
	log.WithField("path", path).Debug("Loaded config file")
	return nil
}

func (c *Config) expand() error {
	for _, p := range []*string{&c.KeyDir, &c.LicenseDir} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return errors.WithKind(errors.InvalidArguments,
				errors.WithContext("expand "+*p, err))
		}
		*p = expanded
	}
	return nil
}

// loadDotEnv exports the variables in path that aren't already set, the same
// way godotenv.Load does, but reads through fs.
func loadDotEnv(fs afero.Fs, path string) error {
	f, err := fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.WithKind(errors.IOFailure,
			errors.WithContext("open "+path, err))
	}
	defer f.Close()

	vars, err := godotenv.Parse(f)
	if err != nil {
		return errors.WithKind(errors.IOFailure,
			errors.WithContext("parse "+path, err))
	}
	for k, v := range vars {
		if _, ok := os.LookupEnv(k); ok {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			return errors.WithContext("set "+k, err)
		}
	}
	return nil
}
