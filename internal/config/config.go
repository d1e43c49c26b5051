// Package config builds the proxy's Config record from CLI flags,
// environment variables, and an optional YAML file, in that priority
// order, and hosts the live-reload swap point used by the reload
// listener.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type ProxyConfig struct {
	Host              string `yaml:"host"`
	Port              int    `yaml:"port"`
	TargetDate        string `yaml:"target_date"`
	DateToleranceDays int    `yaml:"date_tolerance_days"`
}

type CacheConfig struct {
	RedisURL  string `yaml:"redis_url"`
	HotTTLDays int   `yaml:"hot_ttl_days"`
}

type AccessConfig struct {
	Mode string `yaml:"mode"` // "open" or "allowlist"
}

type TransformConfig struct {
	RemoveWaybackToolbar bool `yaml:"remove_wayback_toolbar"`
	RemoveWaybackScripts bool `yaml:"remove_wayback_scripts"`
	FixBaseTags          bool `yaml:"fix_base_tags"`
	FixAssetURLs         bool `yaml:"fix_asset_urls"`
	NormalizeLinks       bool `yaml:"normalize_links"`
}

type HeaderBarConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Position      string `yaml:"position"`
	Text          string `yaml:"text"`
	SpeedSelector bool   `yaml:"speed_selector"`
}

type ThrottleConfig struct {
	Speed string `yaml:"speed"`
}

type AdminConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Password string `yaml:"password"`
}

// ColdStoreConfig is a supplemented section (not in spec.md's §6 table)
// gating the optional S3 export of the curated tier.
type ColdStoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bucket  string `yaml:"bucket"`
	Prefix  string `yaml:"prefix"`
	Region  string `yaml:"region"`
}

// Config mirrors §6's YAML surface exactly, plus the ColdStore and
// LandingPage/ErrorPages fields the external-collaborator boundary
// still needs a place to live.
type Config struct {
	Proxy       ProxyConfig     `yaml:"proxy"`
	Cache       CacheConfig     `yaml:"cache"`
	Access      AccessConfig    `yaml:"access"`
	Transform   TransformConfig `yaml:"transform"`
	HeaderBar   HeaderBarConfig `yaml:"header_bar"`
	Throttle    ThrottleConfig  `yaml:"throttle"`
	Admin       AdminConfig     `yaml:"admin"`
	ColdStore   ColdStoreConfig `yaml:"coldstore"`
	ErrorPages  string          `yaml:"error_pages"`
	LandingPage bool            `yaml:"landing_page"`

	ConfigPath string `yaml:"-"` // the YAML file this was loaded from, if any
}

func defaults() *Config {
	return &Config{
		Proxy: ProxyConfig{
			Host:              "0.0.0.0",
			Port:              8080,
			DateToleranceDays: 30,
		},
		Cache: CacheConfig{
			RedisURL:   "redis://localhost:6379/0",
			HotTTLDays: 7,
		},
		Access: AccessConfig{Mode: "open"},
		Transform: TransformConfig{
			RemoveWaybackToolbar: true,
			RemoveWaybackScripts: true,
			FixBaseTags:          true,
			FixAssetURLs:         true,
			NormalizeLinks:       true,
		},
		HeaderBar: HeaderBarConfig{
			Enabled:       true,
			Position:      "top",
			Text:          "Wayback Cache Proxy",
			SpeedSelector: true,
		},
		Throttle:   ThrottleConfig{Speed: "unlimited"},
		Admin:      AdminConfig{Enabled: true},
		LandingPage: true,
	}
}

// Load builds a Config from, in increasing priority: defaults, a YAML
// file (--config / CONFIG; positional args are ignored), a .env
// file loaded via godotenv (operator convenience, mirrors the teacher's
// own dependency), environment variables, then CLI flags.
func Load(args []string) (*Config, error) {
	_ = godotenv.Load() // ignore absence; .env is optional

	fs := flag.NewFlagSet("wayback-cache-proxy", flag.ContinueOnError)
	configPath := fs.String("config", getEnv("CONFIG", ""), "path to YAML config file")
	port := fs.Int("port", 0, "listen port")
	date := fs.String("date", "", "target snapshot date, YYYYMMDD")
	redis := fs.String("redis", "", "redis connection URL")
	headerBar := fs.String("header-bar", "", "enable/disable header bar: true|false")
	headerBarPosition := fs.String("header-bar-position", "", "header bar position: top|bottom")
	headerBarText := fs.String("header-bar-text", "", "header bar brand text")
	speed := fs.String("speed", "", "throttle speed: 14.4k|28.8k|56k|isdn|dsl|unlimited")
	speedSelector := fs.String("speed-selector", "", "enable client speed dropdown: true|false")
	admin := fs.String("admin", "", "enable admin surface: true|false")
	adminPassword := fs.String("admin-password", "", "admin surface password")
	allowlist := fs.String("allowlist", "", "access mode: open|allowlist")
	errorPages := fs.String("error-pages", "", "path to themed error page templates")
	noLandingPage := fs.Bool("no-landing-page", false, "disable the landing page at proxy root")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	cfg := defaults()

	if *configPath == "" {
		*configPath = getEnv("CONFIG", "")
	}
	if *configPath != "" {
		if err := loadYAMLInto(cfg, *configPath); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", *configPath, err)
		}
		cfg.ConfigPath = *configPath
	}

	applyEnv(cfg)

	if *port != 0 {
		cfg.Proxy.Port = *port
	}
	if *date != "" {
		cfg.Proxy.TargetDate = *date
	}
	if *redis != "" {
		cfg.Cache.RedisURL = *redis
	}
	if *headerBar != "" {
		cfg.HeaderBar.Enabled = parseBool(*headerBar, cfg.HeaderBar.Enabled)
	}
	if *headerBarPosition != "" {
		cfg.HeaderBar.Position = *headerBarPosition
	}
	if *headerBarText != "" {
		cfg.HeaderBar.Text = *headerBarText
	}
	if *speed != "" {
		cfg.Throttle.Speed = *speed
	}
	if *speedSelector != "" {
		cfg.HeaderBar.SpeedSelector = parseBool(*speedSelector, cfg.HeaderBar.SpeedSelector)
	}
	if *admin != "" {
		cfg.Admin.Enabled = parseBool(*admin, cfg.Admin.Enabled)
	}
	if *adminPassword != "" {
		cfg.Admin.Password = *adminPassword
	}
	if *allowlist != "" {
		cfg.Access.Mode = *allowlist
	}
	if *errorPages != "" {
		cfg.ErrorPages = *errorPages
	}
	if *noLandingPage {
		cfg.LandingPage = false
	}

	return cfg, Validate(cfg)
}

// loadYAMLInto decodes file over the existing cfg (already at
// defaults), so any section the file omits keeps its default value.
// Unknown keys are rejected per spec.md §6.
func loadYAMLInto(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(strings.NewReader(string(raw)))
	dec.KnownFields(true)
	return dec.Decode(cfg)
}

// applyEnv overlays environment variables named per spec.md §6: the
// flag name uppercased with "-" replaced by "_" (e.g. REDIS_URL,
// TARGET_DATE).
func applyEnv(cfg *Config) {
	if v := getEnv("PORT", ""); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Proxy.Port = p
		}
	}
	if v := getEnv("TARGET_DATE", ""); v != "" {
		cfg.Proxy.TargetDate = v
	}
	if v := getEnv("REDIS_URL", ""); v != "" {
		cfg.Cache.RedisURL = v
	}
	if v := getEnv("HEADER_BAR", ""); v != "" {
		cfg.HeaderBar.Enabled = parseBool(v, cfg.HeaderBar.Enabled)
	}
	if v := getEnv("HEADER_BAR_POSITION", ""); v != "" {
		cfg.HeaderBar.Position = v
	}
	if v := getEnv("HEADER_BAR_TEXT", ""); v != "" {
		cfg.HeaderBar.Text = v
	}
	if v := getEnv("SPEED", ""); v != "" {
		cfg.Throttle.Speed = v
	}
	if v := getEnv("SPEED_SELECTOR", ""); v != "" {
		cfg.HeaderBar.SpeedSelector = parseBool(v, cfg.HeaderBar.SpeedSelector)
	}
	if v := getEnv("ADMIN", ""); v != "" {
		cfg.Admin.Enabled = parseBool(v, cfg.Admin.Enabled)
	}
	if v := getEnv("ADMIN_PASSWORD", ""); v != "" {
		cfg.Admin.Password = v
	}
	if v := getEnv("ALLOWLIST", ""); v != "" {
		cfg.Access.Mode = v
	}
	if v := getEnv("ERROR_PAGES", ""); v != "" {
		cfg.ErrorPages = v
	}
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func parseBool(s string, def bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return v
}

var validSpeeds = map[string]bool{
	"14.4k": true, "28.8k": true, "56k": true, "isdn": true, "dsl": true, "unlimited": true,
}

// Validate checks the handful of fields with a closed set of legal
// values or a required format; everything else is free-form.
func Validate(cfg *Config) error {
	if cfg.Proxy.Port <= 0 || cfg.Proxy.Port > 65535 {
		return fmt.Errorf("invalid proxy.port %d", cfg.Proxy.Port)
	}
	if cfg.Proxy.TargetDate != "" {
		if _, err := parseYYYYMMDD(cfg.Proxy.TargetDate); err != nil {
			return fmt.Errorf("invalid proxy.target_date %q: %w", cfg.Proxy.TargetDate, err)
		}
	}
	if cfg.Access.Mode != "open" && cfg.Access.Mode != "allowlist" {
		return fmt.Errorf("invalid access.mode %q, must be open or allowlist", cfg.Access.Mode)
	}
	if !validSpeeds[cfg.Throttle.Speed] {
		return fmt.Errorf("invalid throttle.speed %q", cfg.Throttle.Speed)
	}
	return nil
}

func parseYYYYMMDD(s string) (string, error) {
	if len(s) != 8 {
		return "", fmt.Errorf("must be 8 digits YYYYMMDD")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("must be all digits")
		}
	}
	return s, nil
}
