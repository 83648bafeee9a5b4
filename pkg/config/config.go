package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/arkturian/share-proxy/pkg/logging"
)

// Override maps a host substring to an upstream API base URL.
// Entries are checked in order, so more specific hosts must come first.
type Override struct {
	Host    string `mapstructure:"host"`
	BaseURL string `mapstructure:"baseUrl"`
}

type Config struct {
	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`

	Media struct {
		// Root directory holding {eventId}/manifest.json plus media files.
		Root string `mapstructure:"root"`
	} `mapstructure:"media"`

	Cache struct {
		EventsDir  string        `mapstructure:"eventsDir"`
		ProxyDir   string        `mapstructure:"proxyDir"`
		ObjectsDir string        `mapstructure:"objectsDir"`
		TTL        time.Duration `mapstructure:"ttl"`
		MaxBytes   int64         `mapstructure:"maxBytes"`
	} `mapstructure:"cache"`

	Upstream struct {
		BaseURL   string     `mapstructure:"baseUrl"`
		APIKey    string     `mapstructure:"apiKey"`
		Overrides []Override `mapstructure:"overrides"`
	} `mapstructure:"upstream"`

	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"logging"`
}

var (
	once sync.Once

	mu sync.RWMutex

	config Config
)

func InitConfig() error {
	var initErr error
	once.Do(func() {
		initErr = LoadAndWatch()
	})
	return initErr
}

func Get() Config {
	mu.RLock()
	defer mu.RUnlock()
	return config
}

func LoadAndWatch() error {
	pflag.String("server.addr", "", "HTTP listen address (e.g. ':8080')")
	pflag.String("media.root", "", "Root directory for event media")
	pflag.String("upstream.baseUrl", "", "Upstream storage API base URL")
	pflag.Parse()

	if err := viper.BindPFlags(pflag.CommandLine); err != nil {
		return fmt.Errorf("failed to bind pflags: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/share-proxy/")

	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("media.root", "/var/lib/share-proxy/events")
	viper.SetDefault("cache.eventsDir", "/tmp/events-cache")
	viper.SetDefault("cache.proxyDir", "/tmp/imageproxy-cache")
	viper.SetDefault("cache.objectsDir", "/tmp/share_proxy_cache")
	viper.SetDefault("cache.ttl", 24*time.Hour)
	viper.SetDefault("cache.maxBytes", int64(500*1024*1024))
	viper.SetDefault("upstream.apiKey", "")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetEnvPrefix("SHARE_PROXY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			logging.Logger.Info("Config file not found, using defaults")
		} else {
			return fmt.Errorf("fatal error reading config file: %w", err)
		}
	}

	mu.Lock()
	if err := viper.Unmarshal(&config); err != nil {
		mu.Unlock()
		return fmt.Errorf("cannot decode configuration: %w", err)
	}
	mu.Unlock()

	viper.OnConfigChange(func(e fsnotify.Event) {
		logging.Logger.Info("Config file changed, reloading", zap.String("file", e.Name))

		mu.Lock()
		defer mu.Unlock()

		if err := viper.Unmarshal(&config); err != nil {
			logging.Logger.Error("Failed to reload configuration", zap.Error(err))
		}
	})
	viper.WatchConfig()

	return nil
}

// ResolveUpstreamBase derives the upstream storage API base URL from the
// request host. Host overrides win in order, then a configured baseUrl,
// then the share.{domain} convention: share.example.com -> api.example.com.
func ResolveUpstreamBase(host string, cfg Config) string {
	host = strings.ToLower(host)
	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}

	for _, o := range cfg.Upstream.Overrides {
		if o.Host != "" && strings.Contains(host, o.Host) && o.BaseURL != "" {
			return o.BaseURL
		}
	}

	if cfg.Upstream.BaseURL != "" {
		return cfg.Upstream.BaseURL
	}

	baseDomain := strings.TrimPrefix(host, "share.")
	if baseDomain == "" {
		return ""
	}
	return "https://api." + baseDomain
}
