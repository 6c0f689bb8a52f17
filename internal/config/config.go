package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// ChannelRange is a half-open channel window [Min, Max)
type ChannelRange struct {
	Min int
	Max int
}

// Valid reports whether the window is non-empty and fits in nch channels
func (r ChannelRange) Valid(nch int) bool {
	return r.Min >= 0 && r.Min < r.Max && r.Max <= nch
}

// Config holds the pipeline configuration. It is built once by Load and
// passed by value into each component.
type Config struct {
	Antennas        int
	Channels        int
	CalChannels     ChannelRange
	SEFDChannels    ChannelRange
	ClosureChannels ChannelRange
	BandwidthHz     float64
	StrictRaw       bool
	CompressASCII   bool
	OutputDir       string

	// Optional services; empty disables them
	DBConnStr string
	NATSURL   string
	RedisAddr string
}

// Default returns the configuration of the 7-element array with the
// 1024-channel correlator
func Default() Config {
	return Config{
		Antennas:        7,
		Channels:        1024,
		CalChannels:     ChannelRange{Min: 20, Max: 760},
		SEFDChannels:    ChannelRange{Min: 20, Max: 740},
		ClosureChannels: ChannelRange{Min: 5, Max: 750},
		BandwidthHz:     1.6e9 * 720. / 1024.,
	}
}

// Load loads the configuration from environment variables and .env file
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := Default()
	var err error

	if cfg.Antennas, err = intEnv("NA", cfg.Antennas); err != nil {
		return nil, err
	}
	if cfg.Channels, err = intEnv("NCH", cfg.Channels); err != nil {
		return nil, err
	}
	if cfg.CalChannels, err = rangeEnv("CAL_CHMIN", "CAL_CHMAX", cfg.CalChannels); err != nil {
		return nil, err
	}
	if cfg.SEFDChannels, err = rangeEnv("SEFD_CHMIN", "SEFD_CHMAX", cfg.SEFDChannels); err != nil {
		return nil, err
	}
	if cfg.ClosureChannels, err = rangeEnv("CLOSURE_CHMIN", "CLOSURE_CHMAX", cfg.ClosureChannels); err != nil {
		return nil, err
	}
	if cfg.BandwidthHz, err = floatEnv("SEFD_BANDWIDTH_HZ", cfg.BandwidthHz); err != nil {
		return nil, err
	}
	if cfg.StrictRaw, err = boolEnv("STRICT_RAW", false); err != nil {
		return nil, err
	}
	if cfg.CompressASCII, err = boolEnv("ASCII_COMPRESS", false); err != nil {
		return nil, err
	}

	cfg.OutputDir = os.Getenv("OUTPUT_DIR")
	cfg.DBConnStr = os.Getenv("DB_CONN_STR")
	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")

	if cfg.Antennas < 2 {
		return nil, fmt.Errorf("NA must be at least 2, got %d", cfg.Antennas)
	}
	if cfg.Channels < 1 {
		return nil, fmt.Errorf("NCH must be positive, got %d", cfg.Channels)
	}

	return &cfg, nil
}

// Baselines returns the number of antenna pairs for the configured array
func (c Config) Baselines() int {
	return c.Antennas * (c.Antennas - 1) / 2
}

func intEnv(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func floatEnv(key string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func boolEnv(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func rangeEnv(minKey, maxKey string, def ChannelRange) (ChannelRange, error) {
	lo, err := intEnv(minKey, def.Min)
	if err != nil {
		return ChannelRange{}, err
	}
	hi, err := intEnv(maxKey, def.Max)
	if err != nil {
		return ChannelRange{}, err
	}
	return ChannelRange{Min: lo, Max: hi}, nil
}
