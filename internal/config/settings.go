package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"fwblock/internal/blocklist"
	"fwblock/internal/support"
)

type Config struct {
	DataFile   string `json:"data_file"`
	ExportFile string `json:"export_file"`

	// Storage selects the persistence backend: "file" or "postgres".
	Storage string `json:"storage"`

	DefaultDays int                  `json:"default_days"`
	CountryDays map[string]int       `json:"country_days"`
	PortGroups  map[string]PortGroup `json:"port_groups"`
	Reasons     []string             `json:"reasons"`

	// HardDelete makes sweeps delete stale records instead of expiring them.
	HardDelete bool `json:"hard_delete"`

	Lookup LookupConfig `json:"lookup"`
	FTP    FTPConfig    `json:"ftp"`

	ReloadCommand []string `json:"reload_command"`

	API struct {
		Listen string `json:"listen"`
	} `json:"api"`
}

type PortGroup struct {
	Ports  []int `json:"ports"`
	Days   *int  `json:"days,omitempty"`
	Reason *int  `json:"reason,omitempty"`
}

type LookupConfig struct {
	URL            string `json:"url"`
	CountryField   string `json:"country_field"`
	OrgField       string `json:"org_field"`
	TimeoutSeconds uint32 `json:"timeout_seconds"`
	GeoLiteDir     string `json:"geolite_dir"`
	Resolver       string `json:"resolver"`
	CacheTTLHours  uint32 `json:"cache_ttl_hours"`
	SOCKS5         string `json:"socks5"`
}

type FTPConfig struct {
	Host           string `json:"host"`
	User           string `json:"user"`
	Password       string `json:"password"`
	RemotePath     string `json:"remote_path"`
	TimeoutSeconds uint32 `json:"timeout_seconds"`
	SOCKS5         string `json:"socks5"`
}

const (
	defaultSettingsPath = "data/settings.json"
	StorageFile         = "file"
	StoragePostgres     = "postgres"
)

var (
	//go:embed default_settings.json
	defaultConfig []byte

	configValue atomic.Value
	configMu    sync.Mutex
)

func init() {
	configValue.Store(Config{})
}

// SettingsPath returns the settings file location, overridable with FWBLOCK_SETTINGS.
func SettingsPath() string {
	return support.GetEnv("FWBLOCK_SETTINGS", defaultSettingsPath)
}

// ReadSettings loads the settings file, writing the embedded defaults first
// when it does not exist yet.
func ReadSettings(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("read settings: %w", err)
		}

		log.Warn("Settings file not found, creating with default configuration", "path", path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create settings dir: %w", err)
		}
		if err := os.WriteFile(path, defaultConfig, 0o644); err != nil {
			return fmt.Errorf("write default settings: %w", err)
		}
		data = defaultConfig
	}

	cfg, err := Parse(data)
	if err != nil {
		return fmt.Errorf("settings %s: %w", path, err)
	}

	SetConfig(cfg)
	log.Debug("Settings file loaded successfully", "path", path)
	return nil
}

// Parse decodes and validates a settings document. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the embedded default configuration.
func Default() Config {
	cfg, err := Parse(defaultConfig)
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults invalid: %v", err))
	}
	return cfg
}

func (c *Config) applyDefaults() {
	if c.DataFile == "" {
		c.DataFile = "data/blocklist.json"
	}
	if c.ExportFile == "" {
		c.ExportFile = "data/blocklist.deny"
	}
	if c.Storage == "" {
		c.Storage = StorageFile
	}
	if c.Lookup.TimeoutSeconds == 0 {
		c.Lookup.TimeoutSeconds = 5
	}
	if c.FTP.TimeoutSeconds == 0 {
		c.FTP.TimeoutSeconds = 30
	}
	if c.API.Listen == "" {
		c.API.Listen = ":8085"
	}
	c.CountryDays = normalizeCountryDays(c.CountryDays)
}

// Validate checks the cross-field rules the decoder cannot express.
func (c Config) Validate() error {
	var errs []error

	switch c.Storage {
	case StorageFile, StoragePostgres:
	default:
		errs = append(errs, fmt.Errorf("storage: unknown backend %q", c.Storage))
	}

	if c.DefaultDays < 0 {
		errs = append(errs, errors.New("default_days: must not be negative"))
	}
	for code, days := range c.CountryDays {
		if days < 0 {
			errs = append(errs, fmt.Errorf("country_days[%s]: must not be negative", code))
		}
	}

	for id, group := range c.PortGroups {
		if strings.TrimSpace(id) == "" {
			errs = append(errs, errors.New("port_groups: empty group id"))
		}
		if len(group.Ports) == 0 {
			errs = append(errs, fmt.Errorf("port_groups[%s]: no ports", id))
		}
		for _, p := range group.Ports {
			if p < 1 || p > 65535 {
				errs = append(errs, fmt.Errorf("port_groups[%s]: bad port %d", id, p))
			}
		}
		if group.Days != nil && *group.Days < 0 {
			errs = append(errs, fmt.Errorf("port_groups[%s]: days must not be negative", id))
		}
		if group.Reason != nil && (*group.Reason < 0 || *group.Reason >= len(c.Reasons)) {
			errs = append(errs, fmt.Errorf("port_groups[%s]: reason index %d out of range", id, *group.Reason))
		}
	}

	if c.Lookup.URL != "" && !strings.Contains(c.Lookup.URL, "{ip}") {
		errs = append(errs, errors.New("lookup.url: missing {ip} placeholder"))
	}

	return errors.Join(errs...)
}

// Policy converts the settings into the block list policy.
func (c Config) Policy() blocklist.Policy {
	groups := make(map[string]blocklist.PortGroup, len(c.PortGroups))
	for id, g := range c.PortGroups {
		groups[id] = blocklist.PortGroup{
			Ports:  append([]int(nil), g.Ports...),
			Days:   g.Days,
			Reason: g.Reason,
		}
	}

	countryDays := make(map[string]int, len(c.CountryDays))
	for code, days := range c.CountryDays {
		countryDays[code] = days
	}

	return blocklist.Policy{
		PortGroups:  groups,
		Reasons:     append([]string(nil), c.Reasons...),
		CountryDays: countryDays,
		DefaultDays: c.DefaultDays,
	}
}

func (l LookupConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

func (l LookupConfig) CacheTTL() time.Duration {
	return time.Duration(l.CacheTTLHours) * time.Hour
}

func (f FTPConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

func SetConfig(cfg Config) {
	configMu.Lock()
	defer configMu.Unlock()
	configValue.Store(cfg)
}

func GetConfig() Config {
	return configValue.Load().(Config)
}

func normalizeCountryDays(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for code, days := range in {
		out[strings.ToUpper(strings.TrimSpace(code))] = days
	}
	return out
}
