package ops

import (
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/yanun0323/errors"
)

// DBConfig holds the persistence endpoint settings.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
}

// APIConfig holds the query surface endpoint settings.
type APIConfig struct {
	Host string
	Port int
}

// Config is the resolved runtime configuration. Every field is read from an
// upper-snake environment variable (durations as *_MS milliseconds, nested
// fields as DB_* and API_*); an optional YAML file provides overrides for
// local runs.
type Config struct {
	UseSyntheticFeed bool
	Symbols          []string
	TickInterval     time.Duration
	InitialCash      float64

	MaxOrderValue   float64
	MaxPositionSize int64
	MaxDrawdownPct  float64
	StopLossPct     float64

	RiskWait        time.Duration
	SlippageBps     int64
	MaxQtyPerSignal int64

	WindowSize int
	EntryZ     float64

	DB  DBConfig
	API APIConfig

	LogLevel      string
	PyroscopeAddr string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("use_synthetic_feed", true)
	v.SetDefault("symbols", "AAPL,MSFT,GOOGL")
	v.SetDefault("tick_interval_ms", 500)
	v.SetDefault("initial_cash", 100000.0)

	v.SetDefault("max_order_value", 5000.0)
	v.SetDefault("max_position_size", 10000)
	v.SetDefault("max_drawdown_pct", 0.05)
	v.SetDefault("stop_loss_pct", 0.02)

	v.SetDefault("risk_wait_ms", 50)
	v.SetDefault("slippage_bps", 5)
	v.SetDefault("max_qty_per_signal", 100)

	v.SetDefault("window_size", 20)
	v.SetDefault("entry_z", 2.0)

	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", 5432)
	v.SetDefault("db_user", "trader")
	v.SetDefault("db_password", "trader")
	v.SetDefault("db_name", "trading")

	v.SetDefault("api_host", "0.0.0.0")
	v.SetDefault("api_port", 8000)

	v.SetDefault("log_level", "info")
	v.SetDefault("pyroscope_addr", "")
}

// Load resolves configuration from defaults, an optional config file and
// the environment, in increasing order of precedence.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrap(err, "read config file").With("path", path)
		}
	}
	v.AutomaticEnv()

	cfg := Config{
		UseSyntheticFeed: v.GetBool("use_synthetic_feed"),
		Symbols:          splitSymbols(v.GetString("symbols")),
		TickInterval:     time.Duration(v.GetInt("tick_interval_ms")) * time.Millisecond,
		InitialCash:      v.GetFloat64("initial_cash"),

		MaxOrderValue:   v.GetFloat64("max_order_value"),
		MaxPositionSize: v.GetInt64("max_position_size"),
		MaxDrawdownPct:  v.GetFloat64("max_drawdown_pct"),
		StopLossPct:     v.GetFloat64("stop_loss_pct"),

		RiskWait:        time.Duration(v.GetInt("risk_wait_ms")) * time.Millisecond,
		SlippageBps:     v.GetInt64("slippage_bps"),
		MaxQtyPerSignal: v.GetInt64("max_qty_per_signal"),

		WindowSize: v.GetInt("window_size"),
		EntryZ:     v.GetFloat64("entry_z"),

		DB: DBConfig{
			Host:     v.GetString("db_host"),
			Port:     v.GetInt("db_port"),
			User:     v.GetString("db_user"),
			Password: v.GetString("db_password"),
			Name:     v.GetString("db_name"),
		},
		API: APIConfig{
			Host: v.GetString("api_host"),
			Port: v.GetInt("api_port"),
		},

		LogLevel:      v.GetString("log_level"),
		PyroscopeAddr: v.GetString("pyroscope_addr"),
	}

	if len(cfg.Symbols) == 0 {
		return Config{}, errors.New("at least one symbol is required")
	}
	if cfg.MaxDrawdownPct <= 0 || cfg.MaxDrawdownPct >= 1 {
		return Config{}, errors.Errorf("max_drawdown_pct out of range: %f", cfg.MaxDrawdownPct)
	}
	return cfg, nil
}

func splitSymbols(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		symbol := strings.ToUpper(strings.TrimSpace(part))
		if symbol != "" {
			out = append(out, symbol)
		}
	}
	return out
}
