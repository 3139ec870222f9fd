//go:build unix

package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/spf13/viper"
)

// Configuration keys, also used as flag names. The environment variable
// for each is EVENTFD_ followed by the upper-cased key, with dashes
// replaced by underscores (e.g. EVENTFD_LOG_LEVEL).
const (
	keyConfig      = `config`
	keyLogLevel    = `log-level`
	keyAddr        = `addr`
	keyReadTimeout = `read-timeout`
	keyAcceptRate  = `accept-rate`
	keyPipe        = `pipe`
	keyCount       = `count`

	envPrefix = `EVENTFD`

	defaultLogLevel    = `info`
	defaultServeAddr   = `127.0.0.1:9999`
	defaultDemoAddr    = `127.0.0.1:0`
	defaultReadTimeout = 5 * time.Second
)

// config is the resolved configuration, shared by all commands.
type config struct {
	LogLevel    logiface.Level
	Addr        string
	ReadTimeout time.Duration
	AcceptRate  int
	Pipe        bool
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(`-`, `_`))
	v.AutomaticEnv()
	v.SetDefault(keyLogLevel, defaultLogLevel)
	v.SetDefault(keyReadTimeout, defaultReadTimeout)
	return v
}

// readConfigFile loads the file named by the config key, if any.
func readConfigFile(v *viper.Viper) error {
	path := v.GetString(keyConfig)
	if path == `` {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %q: %w", path, err)
	}
	return nil
}

func loadConfig(v *viper.Viper) (*config, error) {
	level, err := parseLevel(v.GetString(keyLogLevel))
	if err != nil {
		return nil, err
	}

	cfg := &config{
		LogLevel:    level,
		Addr:        v.GetString(keyAddr),
		ReadTimeout: v.GetDuration(keyReadTimeout),
		AcceptRate:  v.GetInt(keyAcceptRate),
		Pipe:        v.GetBool(keyPipe),
	}

	if cfg.ReadTimeout < 0 {
		return nil, fmt.Errorf("invalid %s: must not be negative", keyReadTimeout)
	}
	if cfg.AcceptRate < 0 {
		return nil, fmt.Errorf("invalid %s: must not be negative", keyAcceptRate)
	}

	return cfg, nil
}

// parseLevel accepts the syslog keywords used by logiface (e.g. "info",
// "warning", "err"), plus a few common aliases.
func parseLevel(s string) (logiface.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case `disabled`, `off`, `none`:
		return logiface.LevelDisabled, nil
	case `emerg`, `emergency`:
		return logiface.LevelEmergency, nil
	case `alert`:
		return logiface.LevelAlert, nil
	case `crit`, `critical`:
		return logiface.LevelCritical, nil
	case `err`, `error`:
		return logiface.LevelError, nil
	case `warning`, `warn`:
		return logiface.LevelWarning, nil
	case `notice`:
		return logiface.LevelNotice, nil
	case `info`, `informational`:
		return logiface.LevelInformational, nil
	case `debug`:
		return logiface.LevelDebug, nil
	case `trace`:
		return logiface.LevelTrace, nil
	default:
		return 0, fmt.Errorf("invalid %s: %q", keyLogLevel, s)
	}
}

// newLogger builds a JSON logger writing to w.
func newLogger(w io.Writer, level logiface.Level) *logiface.Logger[logiface.Event] {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	).Logger()
}
