package slpg

import (
	"fmt"
	"time"

	"github.com/jinzhu/configor"
)

type Config struct {
	// info for connecting to the full node (bitcoin cash node / bchd)
	Core struct {
		RPCHost string `default:"localhost"`
		RPCPort int    `default:"8332"`
		RPCUser string `default:"slpgraph"`
		RPCPass string `default:"slpgraph"`
		ZMQPort int    `default:"28332"`
		// per-request timeout, in seconds
		Timeout int `default:"10"`
		// bounded retry for timeouts and transport errors
		MaxRetries   int `default:"3"`
		RetryDelayMs int `default:"250"`
		MaxDelayMs   int `default:"4000"`
		// raw transactions kept in memory for the validator
		RawTxCacheSize int `default:"10000"`
		// poll getblockcount after this long without a ZMQ block, in seconds
		TipPollInterval int `default:"660"`
	}

	// remote indexed-query service (BitDB compatible)
	BitDB struct {
		URL     string `default:"http://localhost:3000/q/"`
		APIKey  string
		Timeout int `default:"30"`
	}

	Graph struct {
		Workers int `default:"4"`
		// genesis txids of the tokens to track in server mode
		Tokens []string
		// wait this long after a block notification before refreshing, in seconds
		RefreshDelay int `default:"5"`
		// validator verdicts kept in memory, shared by every tracked token
		ValidationCacheSize int `default:"100000"`
	}

	Store struct {
		DBFile string `default:"slpgraph.db"`
		// when set, snapshots go to postgres instead of DBFile
		PostgresDSN string
	}

	WebAPI struct {
		Bind string `default:"localhost"`
		Port string `default:"8081"`
	}

	Loggers map[string]LoggersConfig
}

type LoggersConfig struct {
	Path  string
	Types []string

	// rotation, see lumberjack.Logger
	MaxSizeMB  int `default:"100"`
	MaxBackups int `default:"5"`
}

func (c Config) RPCTimeout() time.Duration {
	return time.Duration(c.Core.Timeout) * time.Second
}

func (c Config) RetryDelay() time.Duration {
	return time.Duration(c.Core.RetryDelayMs) * time.Millisecond
}

func (c Config) MaxRetryDelay() time.Duration {
	return time.Duration(c.Core.MaxDelayMs) * time.Millisecond
}

func (c Config) TipPollInterval() time.Duration {
	return time.Duration(c.Core.TipPollInterval) * time.Second
}

func (c Config) RefreshDelay() time.Duration {
	return time.Duration(c.Graph.RefreshDelay) * time.Second
}

// LoadConfig reads a TOML/YAML/JSON config file, applying `default` tags
// and SLPGRAPH_* environment overrides.
func LoadConfig(confPath string) (Config, error) {
	c := Config{}
	loader := configor.New(&configor.Config{ENVPrefix: "SLPGRAPH"})
	if confPath == "" {
		err := loader.Load(&c)
		return c, err
	}
	err := loader.Load(&c, confPath)
	return c, err
}

// TestConfig returns a config with defaults applied, for tests.
func TestConfig() Config {
	c := Config{}
	if err := configor.New(&configor.Config{ENVPrefix: "SLPGRAPH_TEST"}).Load(&c); err != nil {
		panic(fmt.Sprintf("test config defaults: %v", err))
	}
	c.Store.DBFile = ":memory:"
	c.Core.RetryDelayMs = 1
	c.Core.MaxDelayMs = 5
	c.Core.RawTxCacheSize = 100
	c.Graph.Workers = 4
	return c
}
