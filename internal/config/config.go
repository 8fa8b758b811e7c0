package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultSyncInterval   = time.Minute
	minSyncInterval       = time.Second
	defaultTimeout        = 10 * time.Second
	defaultLogLevel       = "info"
	defaultLogEnv         = "prod"
	defaultMetricsAddress = ":9090"
	defaultTTL            = 600
	defaultDNSServer      = "resolver1.opendns.com:53"
	defaultDNSName        = "myip.opendns.com"

	PublicMethodWeb = "web"
	PublicMethodDNS = "dns"
)

var defaultPublicURLs = []string{
	"https://ip.3322.net",
	"https://api.ipify.org",
	"https://ifconfig.me/ip",
}

type Config struct {
	SyncInterval time.Duration `yaml:"syncInterval"`
	Timeout      time.Duration `yaml:"timeout"`
	Log          Log           `yaml:"log"`
	Metrics      Metrics       `yaml:"metrics"`
	Resolver     Resolver      `yaml:"resolver"`
	Accounts     []Account     `yaml:"accounts"`
}

type Log struct {
	Level string `yaml:"level"`
	Env   string `yaml:"env"`
}

type Metrics struct {
	Enabled *bool  `yaml:"enabled"`
	Address string `yaml:"address"`
}

// IsEnabled reports whether the metrics and status server should run.
// The server is on unless explicitly disabled.
func (m Metrics) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

type Resolver struct {
	Public PublicResolver `yaml:"public"`
	Local  LocalResolver  `yaml:"local"`
}

type PublicResolver struct {
	Method    string   `yaml:"method"`
	URLs      []string `yaml:"urls"`
	DNSServer string   `yaml:"dnsServer"`
	DNSName   string   `yaml:"dnsName"`
	// Static pins the public address instead of looking it up.
	Static string `yaml:"static"`
}

type LocalResolver struct {
	Interface string `yaml:"interface"`
	Static    string `yaml:"static"`
}

// Account is one provider credential set and the domains it manages.
type Account struct {
	Provider string            `yaml:"provider"`
	ID       string            `yaml:"id"`
	Token    string            `yaml:"token"`
	Settings map[string]string `yaml:"settings"`
	Domains  []Domain          `yaml:"domains"`
}

type Domain struct {
	Name    string   `yaml:"name"`
	Records []Record `yaml:"records"`
}

// Record is a configured record to track. Public selects the public
// address; otherwise the record mirrors the local address.
type Record struct {
	Name   string `yaml:"name"`
	Public bool   `yaml:"public"`
	TTL    int    `yaml:"ttl"`
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		f.Close()
		return nil, fmt.Errorf("decode config file: %w", err)
	}
	if err := f.Close(); err != nil {
		slog.Default().Warn("fail close config file", "path", path, "error", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	cfg.expandEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.SyncInterval == 0 {
		cfg.SyncInterval = defaultSyncInterval
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaultLogLevel
	}
	if cfg.Log.Env == "" {
		cfg.Log.Env = defaultLogEnv
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = defaultMetricsAddress
	}

	pub := &cfg.Resolver.Public
	if pub.Method == "" {
		pub.Method = PublicMethodWeb
	}
	if len(pub.URLs) == 0 {
		pub.URLs = append([]string(nil), defaultPublicURLs...)
	}
	if pub.DNSServer == "" {
		pub.DNSServer = defaultDNSServer
	}
	if pub.DNSName == "" {
		pub.DNSName = defaultDNSName
	}

	for i := range cfg.Accounts {
		for j := range cfg.Accounts[i].Domains {
			records := cfg.Accounts[i].Domains[j].Records
			for k := range records {
				if records[k].TTL == 0 {
					records[k].TTL = defaultTTL
				}
			}
		}
	}
}

func (cfg *Config) applyEnv() {
	if syncInterval := os.Getenv("DDNS_SYNC_INTERVAL"); syncInterval != "" {
		if interval, err := time.ParseDuration(syncInterval); err == nil {
			cfg.SyncInterval = interval
		} else {
			slog.Default().Warn("fail parse sync interval to duration from string", "interval", syncInterval, "error", err)
		}
	}
	if timeout := os.Getenv("DDNS_SYNC_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.Timeout = d
		} else {
			slog.Default().Warn("fail parse timeout to duration from string", "timeout", timeout, "error", err)
		}
	}
	if loglevel := os.Getenv("DDNS_SYNC_LOG_LEVEL"); loglevel != "" {
		cfg.Log.Level = loglevel
	}
	if logenv := os.Getenv("DDNS_SYNC_LOG_ENV"); logenv != "" {
		cfg.Log.Env = logenv
	}
	if addr := os.Getenv("DDNS_SYNC_METRICS_ADDRESS"); addr != "" {
		cfg.Metrics.Address = addr
	}
	if method := os.Getenv("DDNS_SYNC_PUBLIC_METHOD"); method != "" {
		cfg.Resolver.Public.Method = method
	}
	if iface := os.Getenv("DDNS_SYNC_LOCAL_INTERFACE"); iface != "" {
		cfg.Resolver.Local.Interface = iface
	}
}

// expandEnv resolves ${VAR} references in credentials and provider settings.
func (cfg *Config) expandEnv() {
	for i := range cfg.Accounts {
		a := &cfg.Accounts[i]
		a.ID = os.ExpandEnv(a.ID)
		a.Token = os.ExpandEnv(a.Token)
		for k, v := range a.Settings {
			a.Settings[k] = os.ExpandEnv(v)
		}
	}
}

func (cfg *Config) Validate() error {
	var errs []error
	if cfg.SyncInterval < minSyncInterval {
		errs = append(errs, fmt.Errorf("syncInterval must be at least %s, got %s", minSyncInterval, cfg.SyncInterval))
	}
	if cfg.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative"))
	}
	switch cfg.Resolver.Public.Method {
	case PublicMethodWeb, PublicMethodDNS:
	default:
		errs = append(errs, fmt.Errorf("unknown public resolver method %q", cfg.Resolver.Public.Method))
	}
	if len(cfg.Accounts) == 0 {
		errs = append(errs, fmt.Errorf("no accounts configured"))
	}
	for i, a := range cfg.Accounts {
		if a.Provider == "" {
			errs = append(errs, fmt.Errorf("account %d: missing required field 'provider'", i))
		}
		for j, d := range a.Domains {
			if d.Name == "" {
				errs = append(errs, fmt.Errorf("account %d domain %d: missing required field 'name'", i, j))
			}
			for k, r := range d.Records {
				if r.Name == "" {
					errs = append(errs, fmt.Errorf("account %d domain %q record %d: missing required field 'name'", i, d.Name, k))
				}
				if r.TTL < 0 {
					errs = append(errs, fmt.Errorf("account %d domain %q record %q: ttl must not be negative", i, d.Name, r.Name))
				}
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
