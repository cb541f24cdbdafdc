package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	DefaultCategory     = "anime"
	DefaultPullInterval = time.Minute * 30
	DefaultFetchTimeout = time.Second * 10
)

type Config struct {
	Client   Client   `json:"client" yaml:"client" mapstructure:"client"`
	Settings Settings `json:"settings" yaml:"settings" mapstructure:"settings"`
	Shows    []Show   `json:"shows" yaml:"shows" mapstructure:"shows" validate:"dive"`
}

// Client configures the download client episodes are submitted to
type Client struct {
	Implementation string `json:"implementation" yaml:"implementation" mapstructure:"implementation" validate:"oneof=qbittorrent transmission"`
	Scheme         string `json:"scheme" yaml:"scheme" mapstructure:"scheme" validate:"oneof=http https"`
	Host           string `json:"host" yaml:"host" mapstructure:"host" validate:"required"`
	Port           int    `json:"port" yaml:"port" mapstructure:"port" validate:"gte=0,lte=65535"`
	Username       string `json:"username" yaml:"username" mapstructure:"username"`
	Password       string `json:"password" yaml:"password" mapstructure:"password"`
	SavePathRoot   string `json:"savePathRoot" yaml:"savePathRoot" mapstructure:"savePathRoot" validate:"required"`
}

type Settings struct {
	PullInterval time.Duration `json:"pullInterval" yaml:"pullInterval" mapstructure:"pullInterval" validate:"gt=0"`
	FetchTimeout time.Duration `json:"fetchTimeout" yaml:"fetchTimeout" mapstructure:"fetchTimeout" validate:"gt=0"`
	LogDir       string        `json:"logDir" yaml:"logDir" mapstructure:"logDir"`
	LockFile     string        `json:"lockFile" yaml:"lockFile" mapstructure:"lockFile"`
	// StatusPort serves the status api when non zero
	StatusPort int `json:"statusPort" yaml:"statusPort" mapstructure:"statusPort" validate:"gte=0,lte=65535"`
}

// Show is a single subscription feed and where its episodes belong
type Show struct {
	URL             string   `json:"url" yaml:"url" mapstructure:"url" validate:"required,url"`
	Title           string   `json:"title" yaml:"title" mapstructure:"title" validate:"required"`
	Season          int      `json:"season" yaml:"season" mapstructure:"season" validate:"gte=0"`
	ExcludePatterns []string `json:"excludePatterns" yaml:"excludePatterns" mapstructure:"excludePatterns"`
	Category        string   `json:"category" yaml:"category" mapstructure:"category"`
}

// ConfigError is returned for configuration that cannot be read or is not valid
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %v", e.Op, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

type ConfigUnmarshaler interface {
	ReadInConfig() error
	Unmarshal(any, ...viper.DecoderConfigOption) error
	ConfigFileUsed() string
}

// New reads a new configuration, fills show defaults and validates the result
func New(cu ConfigUnmarshaler) (Config, error) {
	var c Config

	if cu.ConfigFileUsed() != "" {
		err := cu.ReadInConfig()
		if err != nil {
			return c, &ConfigError{Op: "read", Err: err}
		}
	}

	err := cu.Unmarshal(&c)
	if err != nil {
		return c, &ConfigError{Op: "unmarshal", Err: err}
	}

	for i := range c.Shows {
		if c.Shows[i].Category == "" {
			c.Shows[i].Category = DefaultCategory
		}
	}

	return c, c.Validate()
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and that every exclude pattern compiles
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return &ConfigError{Op: "validate", Err: err}
	}

	for _, s := range c.Shows {
		if _, err := s.CompileExcludes(); err != nil {
			return err
		}
	}

	return nil
}

// CompileExcludes compiles the show's exclude patterns in order
func (s Show) CompileExcludes() ([]*regexp.Regexp, error) {
	var errs []error

	res := make([]*regexp.Regexp, 0, len(s.ExcludePatterns))
	for _, p := range s.ExcludePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("show %q: %w", s.Title, err))
			continue
		}
		res = append(res, re)
	}

	if len(errs) > 0 {
		return nil, &ConfigError{Op: "exclude patterns", Err: errors.Join(errs...)}
	}

	return res, nil
}

// ExpandPath expands a leading ~ to the user's home directory and makes the path absolute
func ExpandPath(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}

	return filepath.Abs(p)
}

type renderConfig struct {
	Client   renderClient   `toml:"client"`
	Settings renderSettings `toml:"settings"`
	Shows    []renderShow   `toml:"shows"`
}

type renderClient struct {
	Implementation string `toml:"implementation"`
	Scheme         string `toml:"scheme"`
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	SavePathRoot   string `toml:"savePathRoot"`
}

type renderSettings struct {
	PullInterval string `toml:"pullInterval"`
	FetchTimeout string `toml:"fetchTimeout"`
	LogDir       string `toml:"logDir"`
	LockFile     string `toml:"lockFile"`
	StatusPort   int    `toml:"statusPort"`
}

type renderShow struct {
	URL             string   `toml:"url"`
	Title           string   `toml:"title"`
	Season          int      `toml:"season"`
	ExcludePatterns []string `toml:"excludePatterns"`
	Category        string   `toml:"category"`
}

const redacted = "********"

// Render returns the configuration as toml with the client password redacted
func Render(c Config) ([]byte, error) {
	password := c.Client.Password
	if password != "" {
		password = redacted
	}

	r := renderConfig{
		Client: renderClient{
			Implementation: c.Client.Implementation,
			Scheme:         c.Client.Scheme,
			Host:           c.Client.Host,
			Port:           c.Client.Port,
			Username:       c.Client.Username,
			Password:       password,
			SavePathRoot:   c.Client.SavePathRoot,
		},
		Settings: renderSettings{
			PullInterval: c.Settings.PullInterval.String(),
			FetchTimeout: c.Settings.FetchTimeout.String(),
			LogDir:       c.Settings.LogDir,
			LockFile:     c.Settings.LockFile,
			StatusPort:   c.Settings.StatusPort,
		},
	}

	for _, s := range c.Shows {
		r.Shows = append(r.Shows, renderShow(s))
	}

	return toml.Marshal(r)
}
