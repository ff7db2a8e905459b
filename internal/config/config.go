package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Account AccountConfig
	Feed    FeedConfig
	Broker  BrokerConfig
	Runtime RuntimeConfig
}

type AccountConfig struct {
	ID          string
	Currency    string
	InitBalance float64
}

type FeedConfig struct {
	WSUrl    string
	Token    string
	Symbols  []string
	ChanSize int
}

type BrokerConfig struct {
	WorkerQueueSize   int
	EventQueueSize    int
	ShutdownGraceSecs int
}

type RuntimeConfig struct {
	MetricsAddr string
	Log         LogConfig
}

type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

func Load() (*Config, error) {
	cfg := &Config{}
	viper.AddConfigPath("configs")
	viper.SetConfigName("config")
	viper.ReadInConfig()

	viper.SetDefault("account.id", "SIM")
	viper.SetDefault("account.currency", "CNY")
	viper.SetDefault("account.init_balance", 10000000.0)
	viper.SetDefault("feed.chan_size", 256)
	viper.SetDefault("broker.worker_queue_size", 256)
	viper.SetDefault("broker.event_queue_size", 4096)
	viper.SetDefault("broker.shutdown_grace_secs", 10)

	cfg.Account = AccountConfig{
		ID:          viper.GetString("account.id"),
		Currency:    viper.GetString("account.currency"),
		InitBalance: viper.GetFloat64("account.init_balance"),
	}
	if cfg.Account.InitBalance <= 0 {
		return nil, fmt.Errorf("init_balance must be positive, got %f", cfg.Account.InitBalance)
	}

	cfg.Feed = FeedConfig{
		WSUrl:    viper.GetString("feed.ws_url"),
		Token:    envSub("feed.token"),
		Symbols:  viper.GetStringSlice("feed.symbols"),
		ChanSize: viper.GetInt("feed.chan_size"),
	}

	cfg.Broker = BrokerConfig{
		WorkerQueueSize:   viper.GetInt("broker.worker_queue_size"),
		EventQueueSize:    viper.GetInt("broker.event_queue_size"),
		ShutdownGraceSecs: viper.GetInt("broker.shutdown_grace_secs"),
	}

	cfg.Runtime = RuntimeConfig{
		MetricsAddr: viper.GetString("runtime.metrics_addr"),
		Log: LogConfig{
			Level:      viper.GetString("runtime.log.level"),
			Format:     viper.GetString("runtime.log.format"),
			File:       viper.GetString("runtime.log.file"),
			MaxSize:    viper.GetInt("runtime.log.max_size"),
			MaxBackups: viper.GetInt("runtime.log.max_backups"),
			MaxAge:     viper.GetInt("runtime.log.max_age"),
			Compress:   viper.GetBool("runtime.log.compress"),
		},
	}

	return cfg, nil
}

func envSub(key string) string {
	val := viper.GetString(key)
	if val == "" {
		return ""
	}

	re := regexp.MustCompile(`\$\{(\w+)\}`)
	return re.ReplaceAllStringFunc(val, func(match string) string {
		envKey := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(envKey)
	})
}
