package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/imdario/mergo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v2"
)

const (
	// DefaultIssuePattern matches issue IDs like "ABC-123".
	DefaultIssuePattern = `([A-Z]+-\d+)`

	envSettings = "GITHOOK_SETTINGS"
)

// Log formats.
const (
	LogFormatAuto = "auto"
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config contains the application configuration.
type Config struct {
	LogLevel  logrus.Level `yaml:"logLevel" toml:"logLevel"`
	LogFormat string       `yaml:"logFormat" toml:"logFormat"`
	Server    Server       `yaml:"server" toml:"server"`
	Tracker   Tracker      `yaml:"tracker" toml:"tracker"`
	Hook      Hook         `yaml:"hook" toml:"hook"`
	Replay    Replay       `yaml:"replay" toml:"replay"`
}

// Server contains configuration for the HTTP server.
type Server struct {
	ListenAddress   string        `yaml:"listenAddress" toml:"listenAddress"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" toml:"shutdownTimeout"`
	Secret          string        `yaml:"secret" toml:"secret"`
}

// Tracker contains the connection settings for the issue tracker.
type Tracker struct {
	URL                string        `yaml:"url" toml:"url"`
	Login              string        `yaml:"login" toml:"login"`
	Password           string        `yaml:"password" toml:"password"`
	APIKey             string        `yaml:"apiKey" toml:"apiKey"`
	Token              string        `yaml:"token" toml:"token"`
	Timeout            time.Duration `yaml:"timeout" toml:"timeout"`
	InsecureSkipVerify bool          `yaml:"insecureSkipVerify" toml:"insecureSkipVerify"`
}

// Hook configures how push events are turned into issue comments.
type Hook struct {
	IssuePattern    string `yaml:"issuePattern" toml:"issuePattern"`
	DefaultUser     string `yaml:"defaultUser" toml:"defaultUser"`
	Command         string `yaml:"command" toml:"command"`
	// CommentTemplate replaces the built-in comment layout when set.
	CommentTemplate string `yaml:"commentTemplate" toml:"commentTemplate"`
}

// Replay selects commits of a local repository to run through the hook once.
type Replay struct {
	Path     string `yaml:"path" toml:"path"`
	Ref      string `yaml:"ref" toml:"ref"`
	Limit    int    `yaml:"limit" toml:"limit"`
	Homepage string `yaml:"homepage" toml:"homepage"`
}

var defaultConfig = Config{
	LogLevel:  logrus.InfoLevel,
	LogFormat: LogFormatAuto,
	Server: Server{
		ListenAddress:   ":8080",
		ShutdownTimeout: 2 * time.Second,
	},
	Hook: Hook{
		IssuePattern: DefaultIssuePattern,
		Command:      "comment",
	},
	Replay: Replay{
		Ref:   "HEAD",
		Limit: 1,
	},
}

// GetConfig parses the command-line parameters and created the configuration.
func GetConfig(args []string) (Config, error) {
	configFile := "githook.yml"
	if env := os.Getenv(envSettings); env != "" {
		configFile = env
	}
	var replay Replay

	flags := pflag.NewFlagSet(args[0], pflag.ContinueOnError)
	flags.StringVarP(&configFile, "config-file", "c", configFile, "Path to configuration file (YAML or TOML).")
	flags.StringVar(&replay.Path, "replay-path", "", "Process commits of the local repository at this path and exit.")
	flags.StringVar(&replay.Ref, "replay-ref", "", "Revision to start the replay from.")
	flags.IntVar(&replay.Limit, "replay-limit", 0, "Number of commits to replay.")

	err := flags.Parse(args[1:])
	if err != nil {
		return Config{}, fmt.Errorf("can not parse command-line parameters: %w", err)
	}

	if configFile == "" {
		return Config{}, errors.New("config-file can not be empty")
	}

	cfg, err := Load(configFile)
	if err != nil {
		return Config{}, err
	}

	if err := mergo.Merge(&cfg.Replay, replay, mergo.WithOverride); err != nil {
		return Config{}, fmt.Errorf("can not apply replay parameters: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Load reads the configuration file, applies environment overrides and fills in defaults.
func Load(configFile string) (Config, error) {
	var cfg Config
	switch strings.ToLower(filepath.Ext(configFile)) {
	case ".toml":
		if _, err := toml.DecodeFile(configFile, &cfg); err != nil {
			return Config{}, fmt.Errorf("can not parse configuration file %q: %w", configFile, err)
		}
	default:
		file, err := os.Open(configFile)
		if err != nil {
			return Config{}, fmt.Errorf("can not open configuration file %q: %w", configFile, err)
		}
		defer file.Close()

		if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("can not parse configuration file: %w", err)
		}
	}

	applyEnvironment(&cfg, os.LookupEnv)
	if err := setDefaults(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func applyEnvironment(cfg *Config, lookup func(string) (string, bool)) {
	for name, target := range map[string]*string{
		"YOUTRACK_URL":      &cfg.Tracker.URL,
		"YOUTRACK_USERNAME": &cfg.Tracker.Login,
		"YOUTRACK_PASSWORD": &cfg.Tracker.Password,
		"YOUTRACK_APIKEY":   &cfg.Tracker.APIKey,
		"YOUTRACK_TOKEN":    &cfg.Tracker.Token,
		"GITHOOK_SECRET":    &cfg.Server.Secret,
	} {
		if value, ok := lookup(name); ok && value != "" {
			*target = value
		}
	}
}

func setDefaults(cfg *Config) error {
	if err := mergo.Merge(cfg, defaultConfig); err != nil {
		return fmt.Errorf("can not apply defaults: %w", err)
	}

	cfg.Tracker.URL = strings.TrimRight(cfg.Tracker.URL, "/")
	return nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	switch c.LogFormat {
	case LogFormatAuto, LogFormatText, LogFormatJSON:
	default:
		return fmt.Errorf("unknown logFormat: %s", c.LogFormat)
	}

	if c.Tracker.URL == "" {
		return errors.New("tracker url can not be empty")
	}

	if c.Tracker.APIKey == "" && c.Tracker.Token == "" {
		switch {
		case c.Tracker.Login == "":
			return errors.New("tracker needs either apiKey, token or login and password")
		case c.Tracker.Password == "":
			return errors.New("tracker login needs a password")
		}
	}

	if c.Hook.DefaultUser == "" {
		return errors.New("hook defaultUser can not be empty")
	}

	if c.Replay.Limit < 0 {
		return errors.New("replay limit can not be negative")
	}

	return nil
}
