package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

type Config struct {
	LogJSON       bool          `mapstructure:"log_json"`
	NoColor       bool          `mapstructure:"no_color"`
	LogLevel      string        `mapstructure:"log_level"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	Defaults      Defaults      `mapstructure:"defaults"`
	Notifications Notifications `mapstructure:"notifications"`
	Jobs          []JobConfig   `mapstructure:"jobs"`
}

// Defaults apply to the backup command and to every job that does not set
// the field itself.
type Defaults struct {
	Blacklist          []string `mapstructure:"blacklist"`
	RespectIgnoreFiles bool     `mapstructure:"respect_ignore_files"`
	IgnoreFile         string   `mapstructure:"ignore_file"`
	IncludeSourceRoot  bool     `mapstructure:"include_source_root"`
	CollisionPolicy    string   `mapstructure:"collision_policy"`
}

type Notifications struct {
	Slack    SlackConfig     `mapstructure:"slack"`
	Webhooks []WebhookConfig `mapstructure:"webhooks"`
}

type SlackConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Template   string `mapstructure:"template"`
}

type WebhookConfig struct {
	URL      string            `mapstructure:"url"`
	Method   string            `mapstructure:"method"`
	Template string            `mapstructure:"template"`
	Headers  map[string]string `mapstructure:"headers"`
}

type JobConfig struct {
	ID                 string   `mapstructure:"id"`
	Sources            []string `mapstructure:"sources"`
	Target             string   `mapstructure:"target"`
	Blacklist          []string `mapstructure:"blacklist"`
	RespectIgnoreFiles *bool    `mapstructure:"respect_ignore_files"` // Use pointer to distinguish between false and inherit
	IgnoreFile         string   `mapstructure:"ignore_file"`
	IncludeSourceRoot  *bool    `mapstructure:"include_source_root"`
	CollisionPolicy    string   `mapstructure:"collision_policy"`
	Schedule           string   `mapstructure:"schedule"`
	Retries            int      `mapstructure:"retries"`
	RetryDelay         string   `mapstructure:"retry_delay"`
}

// WithDefaults fills every unset field of j from d. Blacklists are merged,
// defaults first.
func (j JobConfig) WithDefaults(d Defaults) JobConfig {
	out := j
	out.Blacklist = append(append([]string{}, d.Blacklist...), j.Blacklist...)

	if out.RespectIgnoreFiles == nil {
		v := d.RespectIgnoreFiles
		out.RespectIgnoreFiles = &v
	}
	if out.IncludeSourceRoot == nil {
		v := d.IncludeSourceRoot
		out.IncludeSourceRoot = &v
	}
	if out.IgnoreFile == "" {
		out.IgnoreFile = d.IgnoreFile
	}
	if out.CollisionPolicy == "" {
		out.CollisionPolicy = d.CollisionPolicy
	}
	return out
}

var (
	mu           sync.RWMutex
	globalConfig *Config
)

func Initialize(configPath string) error {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("dirbackup")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".dirbackup"))
		}
	}

	v.SetEnvPrefix("DIRBACKUP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	v.SetDefault("log_json", false)
	v.SetDefault("no_color", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("max_concurrent", 1)
	v.SetDefault("defaults.blacklist", []string{})
	v.SetDefault("defaults.respect_ignore_files", false)
	v.SetDefault("defaults.ignore_file", "")
	v.SetDefault("defaults.include_source_root", false)
	v.SetDefault("defaults.collision_policy", "overwrite")

	readFile := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		readFile = false
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	set(&cfg)

	if readFile {
		v.OnConfigChange(func(e fsnotify.Event) {
			var next Config
			if err := v.Unmarshal(&next); err == nil {
				set(&next)
			}
		})
		v.WatchConfig()
	}

	return nil
}

func set(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = cfg
}

func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	if globalConfig == nil {
		return &Config{
			LogLevel:      "info",
			MaxConcurrent: 1,
			Defaults:      Defaults{CollisionPolicy: "overwrite"},
		}
	}
	return globalConfig
}

// Job returns the job with the given id, defaults applied.
func (c *Config) Job(id string) (JobConfig, bool) {
	for _, j := range c.Jobs {
		if j.ID == id {
			return j.WithDefaults(c.Defaults), true
		}
	}
	return JobConfig{}, false
}
