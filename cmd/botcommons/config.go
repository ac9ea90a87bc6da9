package main

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// config holds every setting the commands share. Flags fill it first;
// BOTCOMMONS_* variables then fill whatever was not set on the command line.
type config struct {
	userAgent    string
	timeout      time.Duration
	rps          int
	burst        int
	maxInFlight  int
	globalRate   int
	globalWindow bool
	proxy        string
	noProxy      string
	redisAddr    string
	redisPrefix  string
	noProgress   bool
	verbose      bool
}

// envBinding ties an environment variable to the flag it backs.
type envBinding struct {
	env   string
	flag  string
	apply func(cfg *config, value string) error
}

var envBindings = []envBinding{
	{env: "BOTCOMMONS_USER_AGENT", flag: "user-agent", apply: func(c *config, v string) error {
		c.userAgent = v
		return nil
	}},
	{env: "BOTCOMMONS_TIMEOUT_MS", flag: "timeout", apply: func(c *config, v string) error {
		ms, err := parseIntEnv("BOTCOMMONS_TIMEOUT_MS", v)
		c.timeout = time.Duration(ms) * time.Millisecond
		return err
	}},
	{env: "BOTCOMMONS_RPS", flag: "rps", apply: func(c *config, v string) error {
		n, err := parseIntEnv("BOTCOMMONS_RPS", v)
		c.rps = int(n)
		return err
	}},
	{env: "BOTCOMMONS_BURST", flag: "burst", apply: func(c *config, v string) error {
		n, err := parseIntEnv("BOTCOMMONS_BURST", v)
		c.burst = int(n)
		return err
	}},
	{env: "BOTCOMMONS_MAX_IN_FLIGHT", flag: "max-in-flight", apply: func(c *config, v string) error {
		n, err := parseIntEnv("BOTCOMMONS_MAX_IN_FLIGHT", v)
		c.maxInFlight = int(n)
		return err
	}},
	{env: "BOTCOMMONS_GLOBAL_RATE", flag: "global-rate", apply: func(c *config, v string) error {
		n, err := parseIntEnv("BOTCOMMONS_GLOBAL_RATE", v)
		c.globalRate = int(n)
		return err
	}},
	{env: "BOTCOMMONS_GLOBAL_WINDOW", flag: "global-window", apply: func(c *config, v string) error {
		b, err := parseBoolEnv("BOTCOMMONS_GLOBAL_WINDOW", v)
		c.globalWindow = b
		return err
	}},
	{env: "BOTCOMMONS_PROXY", flag: "proxy", apply: func(c *config, v string) error {
		c.proxy = v
		return nil
	}},
	{env: "BOTCOMMONS_NO_PROXY", flag: "no-proxy", apply: func(c *config, v string) error {
		c.noProxy = v
		return nil
	}},
	{env: "BOTCOMMONS_REDIS_ADDR", flag: "redis", apply: func(c *config, v string) error {
		c.redisAddr = v
		return nil
	}},
	{env: "BOTCOMMONS_REDIS_PREFIX", flag: "redis-prefix", apply: func(c *config, v string) error {
		c.redisPrefix = v
		return nil
	}},
	{env: "BOTCOMMONS_VERBOSE", flag: "verbose", apply: func(c *config, v string) error {
		b, err := parseBoolEnv("BOTCOMMONS_VERBOSE", v)
		c.verbose = b
		return err
	}},
}

// applyEnvOverrides copies environment values into cfg for every flag
// that changed reports as unset.
func applyEnvOverrides(cfg *config, environ []string, changed func(flag string) bool) error {
	if cfg == nil {
		return errors.New("config is required")
	}

	values := envMap(environ)
	for _, b := range envBindings {
		value, ok := values[b.env]
		if !ok || changed(b.flag) {
			continue
		}
		if err := b.apply(cfg, value); err != nil {
			return err
		}
	}

	return nil
}

func envMap(environ []string) map[string]string {
	values := make(map[string]string)
	for _, entry := range environ {
		key, value, ok := strings.Cut(entry, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		values[key] = value
	}
	return values
}

func parseBoolEnv(name, value string) (bool, error) {
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, errors.New("invalid env value for " + name)
	}
	return parsed, nil
}

func parseIntEnv(name, value string) (int64, error) {
	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, errors.New("invalid env value for " + name)
	}
	return parsed, nil
}
