package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment selects a set of API base URLs.
type Environment string

const (
	Production Environment = "production"
	Test       Environment = "test"
	Local      Environment = "local"
)

// Endpoints are the base URLs of one environment.
type Endpoints struct {
	API    string // serves /statistics
	Health string // serves /ping
}

var environments = map[Environment]Endpoints{
	Production: {API: "https://medal-pusher.trap.games/api/v4", Health: "https://medal-pusher.trap.games/api"},
	Test:       {API: "https://medal-pusher-test.trap.games/api/v4", Health: "https://medal-pusher-test.trap.games/api"},
	Local:      {API: "http://localhost:8080/api/v4", Health: "http://localhost:8080/api"},
}

// EndpointsFor returns the compiled-in URLs for env.
func EndpointsFor(env Environment) (Endpoints, bool) {
	e, ok := environments[env]
	return e, ok
}

type Config struct {
	Port         int
	Env          Environment
	APIBase      string
	HealthBase   string
	PingInterval time.Duration
	Lang         string
	// DataHosts are extra hosts save-data URLs may point at.
	DataHosts []string
	// Args are the positional arguments left after flags.
	Args []string
}

// Parse reads flags, then environment variables, then a .env file, then
// the environment defaults. Flags win.
func Parse(name string, args []string) (Config, error) {
	var (
		cfg      Config
		env      string
		interval string
		envFile  string
		hosts    string
	)

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "p", 0, "Dashboard port")
	fs.StringVar(&env, "env", "", "API environment (production, test or local)")
	fs.StringVar(&cfg.APIBase, "api", "", "Statistics API base URL (overrides -env)")
	fs.StringVar(&cfg.HealthBase, "health", "", "Health check base URL (overrides -env)")
	fs.StringVar(&interval, "ping-interval", "", "Online check interval, e.g. 30s")
	fs.StringVar(&cfg.Lang, "lang", "", "Display language for number formatting")
	fs.StringVar(&hosts, "data-hosts", "", "Comma-separated extra hosts allowed in save-data URLs")
	fs.StringVar(&envFile, "env-file", ".env", "Optional dotenv file")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.Args = fs.Args()

	lookup, err := newLookup(envFile)
	if err != nil {
		return Config{}, err
	}

	if cfg.Port == 0 {
		if portStr := lookup("PORT"); portStr != "" {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return Config{}, errors.New("invalid PORT env variable")
			}
			cfg.Port = port
		} else {
			cfg.Port = 8081
		}
	}

	if env == "" {
		env = lookup("DASHBOARD_ENV")
	}
	if env == "" {
		env = string(Production)
	}
	cfg.Env = Environment(strings.ToLower(env))
	defaults, ok := environments[cfg.Env]
	if !ok {
		return Config{}, fmt.Errorf("unknown environment %q", env)
	}

	if cfg.APIBase == "" {
		cfg.APIBase = lookup("DATA_API_BASE")
	}
	if cfg.APIBase == "" {
		cfg.APIBase = defaults.API
	}
	if cfg.HealthBase == "" {
		cfg.HealthBase = lookup("HEALTH_API_BASE")
	}
	if cfg.HealthBase == "" {
		cfg.HealthBase = defaults.Health
	}

	if interval == "" {
		interval = lookup("PING_INTERVAL")
	}
	cfg.PingInterval = 30 * time.Second
	if interval != "" {
		d, err := time.ParseDuration(interval)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("invalid ping interval %q", interval)
		}
		cfg.PingInterval = d
	}

	if cfg.Lang == "" {
		cfg.Lang = lookup("DASHBOARD_LANG")
	}
	if cfg.Lang == "" {
		cfg.Lang = "ja"
	}

	if hosts == "" {
		hosts = lookup("DATA_HOSTS")
	}
	for _, h := range strings.Split(hosts, ",") {
		if h = strings.TrimSpace(h); h != "" {
			cfg.DataHosts = append(cfg.DataHosts, h)
		}
	}

	return cfg, nil
}

// newLookup layers the process environment over the optional dotenv file.
func newLookup(path string) (func(string) string, error) {
	file := map[string]string{}
	if path != "" {
		m, err := godotenv.Read(path)
		switch {
		case err == nil:
			file = m
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}
	return func(key string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return file[key]
	}, nil
}
