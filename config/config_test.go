package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/kasuboski/bangumiz/config/mocks"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func validConfig() Config {
	return Config{
		Client: Client{
			Implementation: "qbittorrent",
			Scheme:         "http",
			Host:           "localhost",
			Port:           8080,
			SavePathRoot:   "/media",
		},
		Settings: Settings{
			PullInterval: DefaultPullInterval,
			FetchTimeout: DefaultFetchTimeout,
		},
		Shows: []Show{
			{URL: "https://example.com/rss", Title: "Show", Season: 1, Category: DefaultCategory},
		},
	}
}

func TestNew(t *testing.T) {
	t.Run("fail to read in config", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		cu := mocks.NewMockConfigUnmarshaler(ctrl)

		wantErr := errors.New("expected testing error")
		cu.EXPECT().ConfigFileUsed().Times(1).Return("fake-config.toml")
		cu.EXPECT().ReadInConfig().Times(1).Return(wantErr)
		c, err := New(cu)

		var configErr *ConfigError
		require.True(t, errors.As(err, &configErr))
		assert.Equal(t, "read", configErr.Op)
		assert.ErrorIs(t, err, wantErr)

		wantConfig := Config{}
		if !reflect.DeepEqual(c, wantConfig) {
			t.Errorf("TestNew() config = %v, want %v", c, wantConfig)
		}
	})

	t.Run("fail to unmarshal", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		cu := mocks.NewMockConfigUnmarshaler(ctrl)

		cu.EXPECT().ConfigFileUsed().Return("")
		cu.EXPECT().Unmarshal(gomock.Any()).Return(errors.New("bad type"))

		_, err := New(cu)
		var configErr *ConfigError
		require.True(t, errors.As(err, &configErr))
		assert.Equal(t, "unmarshal", configErr.Op)
	})

	t.Run("success with file", func(t *testing.T) {
		cu := viper.New()
		cu.SetConfigFile("./testing/config.toml")
		c, err := New(cu)
		require.NoError(t, err)

		wantConfig := Config{
			Client: Client{
				Implementation: "qbittorrent",
				Scheme:         "http",
				Host:           "qbittorrent.local",
				Port:           8080,
				Username:       "admin",
				Password:       "secret",
				SavePathRoot:   "/media/anime",
			},
			Settings: Settings{
				PullInterval: time.Minute * 15,
				FetchTimeout: time.Second * 5,
				LogDir:       "logs",
				LockFile:     "bangumiz.lock",
			},
			Shows: []Show{
				{
					URL:             "https://mikanani.me/RSS/Bangumi?bangumiId=1",
					Title:           "Frieren",
					Season:          1,
					ExcludePatterns: []string{"EP01", `\[720p\]`},
					Category:        DefaultCategory,
				},
				{
					URL:      "https://mikanani.me/RSS/Bangumi?bangumiId=2",
					Title:    "Dungeon Meshi",
					Season:   2,
					Category: "tv",
				},
			},
		}

		assert.Equal(t, wantConfig, c)
	})

	t.Run("success without file", func(t *testing.T) {
		cu := viper.New()
		cu.SetConfigFile("")
		cu.SetDefault("client.implementation", "transmission")
		cu.SetDefault("client.scheme", "https")
		cu.SetDefault("client.host", "localhost")
		cu.SetDefault("client.savePathRoot", "/downloads")
		cu.SetDefault("settings.pullInterval", "1h")
		cu.SetDefault("settings.fetchTimeout", "10s")
		c, err := New(cu)
		require.NoError(t, err)

		wantConfig := Config{
			Client: Client{
				Implementation: "transmission",
				Scheme:         "https",
				Host:           "localhost",
				SavePathRoot:   "/downloads",
			},
			Settings: Settings{
				PullInterval: time.Hour,
				FetchTimeout: time.Second * 10,
			},
		}

		assert.Equal(t, wantConfig, c)
	})

	t.Run("invalid file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		require.NoError(t, os.WriteFile(path, []byte("[client]\nimplementation = \"deluge\"\n"), 0o644))

		cu := viper.New()
		cu.SetConfigFile(path)
		_, err := New(cu)

		var configErr *ConfigError
		require.True(t, errors.As(err, &configErr))
		assert.Equal(t, "validate", configErr.Op)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "unknown implementation", mutate: func(c *Config) { c.Client.Implementation = "deluge" }, wantErr: "Implementation"},
		{name: "bad scheme", mutate: func(c *Config) { c.Client.Scheme = "ftp" }, wantErr: "Scheme"},
		{name: "missing host", mutate: func(c *Config) { c.Client.Host = "" }, wantErr: "Host"},
		{name: "port out of range", mutate: func(c *Config) { c.Client.Port = 70000 }, wantErr: "Port"},
		{name: "missing save path", mutate: func(c *Config) { c.Client.SavePathRoot = "" }, wantErr: "SavePathRoot"},
		{name: "zero interval", mutate: func(c *Config) { c.Settings.PullInterval = 0 }, wantErr: "PullInterval"},
		{name: "show missing title", mutate: func(c *Config) { c.Shows[0].Title = "" }, wantErr: "Title"},
		{name: "show bad url", mutate: func(c *Config) { c.Shows[0].URL = "not a url" }, wantErr: "URL"},
		{name: "negative season", mutate: func(c *Config) { c.Shows[0].Season = -1 }, wantErr: "Season"},
		{name: "bad exclude pattern", mutate: func(c *Config) { c.Shows[0].ExcludePatterns = []string{"("} }, wantErr: "exclude patterns"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(&c)

			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}

			var configErr *ConfigError
			require.True(t, errors.As(err, &configErr), "expected ConfigError, got %v", err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestShow_CompileExcludes(t *testing.T) {
	s := Show{Title: "Show", ExcludePatterns: []string{"EP01", `\[720p\]`}}

	res, err := s.CompileExcludes()
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.True(t, res[0].MatchString("Show EP01v2"))
	assert.False(t, res[0].MatchString("Show EP02"))
	assert.True(t, res[1].MatchString("Show - 03 [720p]"))
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandPath("~/media")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "media"), got)

	got, err = ExpandPath("/srv/media/../anime")
	require.NoError(t, err)
	assert.Equal(t, "/srv/anime", got)

	got, err = ExpandPath("relative")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
}

func TestRender(t *testing.T) {
	c := validConfig()
	c.Client.Password = "secret"
	c.Shows[0].ExcludePatterns = []string{"EP01"}

	b, err := Render(c)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "secret")

	var got renderConfig
	require.NoError(t, toml.Unmarshal(b, &got))
	assert.Equal(t, redacted, got.Client.Password)
	assert.Equal(t, "30m0s", got.Settings.PullInterval)
	require.Len(t, got.Shows, 1)
	assert.Equal(t, []string{"EP01"}, got.Shows[0].ExcludePatterns)
	assert.Equal(t, "Show", got.Shows[0].Title)
}
