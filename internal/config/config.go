// Package config handles loading and validation of service configuration.
// Supports both development (env vars) and production (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/shopspring/decimal"

	"storefront/internal/adapter"
	"storefront/internal/model"
)

// Config holds all service configuration.
// Environment determines whether store credentials load from env vars
// (development) or Secret Manager (production).
type Config struct {
	// Server settings
	Port        string
	Environment string // "development" or "production"
	LogLevel    string // "debug", "info", "warn", "error"

	// GCP settings (required in production)
	GCPProject    string
	StoreSecretID string

	// Store API credentials (loaded from secrets in production)
	Store StoreConfig

	// Cart core tuning
	LedgerPath             string // empty = in-memory ledger
	DomesticCountry        string
	AddressDebounce        time.Duration
	CartTTL                time.Duration
	CouponListTTL          time.Duration
	AppConfigTTL           time.Duration
	PurchaseLimit          int
	CustomizationSurcharge decimal.Decimal

	// Fallback pricing constants, used when the backend cannot serve its own.
	Fallback model.AppConfig
}

// StoreConfig contains the pricing backend credentials.
// In production, this is loaded from Secret Manager as JSON.
type StoreConfig struct {
	StoreURL string `json:"store_url"`
	APIKey   string `json:"api_key"`
}

// tunables are the raw, unparsed cart core settings shared by the env and
// file loaders.
type tunables struct {
	LedgerPath             string `json:"ledger_path"`
	DomesticCountry        string `json:"domestic_country"`
	AddressDebounce        string `json:"address_debounce"`
	CartTTL                string `json:"cart_ttl"`
	CouponListTTL          string `json:"coupon_list_ttl"`
	AppConfigTTL           string `json:"app_config_ttl"`
	PurchaseLimit          string `json:"purchase_limit"`
	CustomizationSurcharge string `json:"customization_surcharge"`
	FallbackCODFee         string `json:"fallback_cod_fee"`
	FallbackFreeShipping   string `json:"fallback_free_shipping_threshold"`
	FallbackShippingCost   string `json:"fallback_shipping_cost"`
}

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
// Validates all required fields and returns an error if any are missing.
func Load(ctx context.Context) (*Config, error) {
	// If CONFIG_FILE is set, load everything from the JSON file
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	cfg := &Config{
		Port:          envOrDefault("PORT", "8080"),
		Environment:   envOrDefault("ENVIRONMENT", "development"),
		LogLevel:      envOrDefault("LOG_LEVEL", "info"),
		GCPProject:    os.Getenv("GCP_PROJECT"),
		StoreSecretID: os.Getenv("STORE_SECRET_ID"),
	}

	var err error
	if cfg.Environment == "production" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		if cfg.StoreSecretID == "" {
			return nil, fmt.Errorf("STORE_SECRET_ID required in production environment")
		}
		err = cfg.loadFromSecretManager(ctx)
	} else {
		cfg.Store = StoreConfig{
			StoreURL: os.Getenv("STORE_URL"),
			APIKey:   os.Getenv("STORE_API_KEY"),
		}
	}
	if err != nil {
		return nil, fmt.Errorf("loading store config: %w", err)
	}

	if err := cfg.applyTunables(tunablesFromEnv()); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile reads all configuration from a JSON file.
// Used for local development to avoid multiple ENV vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var fileConfig struct {
		Port        string      `json:"port"`
		Environment string      `json:"environment"`
		LogLevel    string      `json:"log_level"`
		Store       StoreConfig `json:"store"`
		Cart        tunables    `json:"cart"`
	}
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{
		Port:        withDefault(fileConfig.Port, "8080"),
		Environment: withDefault(fileConfig.Environment, "development"),
		LogLevel:    withDefault(fileConfig.LogLevel, "info"),
		Store:       fileConfig.Store,
	}
	if err := cfg.applyTunables(fileConfig.Cart); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// loadFromSecretManager fetches store credentials from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{secret_id}/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.GCPProject, c.StoreSecretID)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	if err := json.Unmarshal(result.Payload.Data, &c.Store); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}
	return nil
}

func tunablesFromEnv() tunables {
	return tunables{
		LedgerPath:             os.Getenv("LEDGER_PATH"),
		DomesticCountry:        os.Getenv("DOMESTIC_COUNTRY"),
		AddressDebounce:        os.Getenv("ADDRESS_DEBOUNCE"),
		CartTTL:                os.Getenv("CART_TTL"),
		CouponListTTL:          os.Getenv("COUPON_LIST_TTL"),
		AppConfigTTL:           os.Getenv("APP_CONFIG_TTL"),
		PurchaseLimit:          os.Getenv("PURCHASE_LIMIT"),
		CustomizationSurcharge: os.Getenv("CUSTOMIZATION_SURCHARGE"),
		FallbackCODFee:         os.Getenv("FALLBACK_COD_FEE"),
		FallbackFreeShipping:   os.Getenv("FALLBACK_FREE_SHIPPING_THRESHOLD"),
		FallbackShippingCost:   os.Getenv("FALLBACK_SHIPPING_COST"),
	}
}

// applyTunables parses t into c, filling defaults for empty values.
func (c *Config) applyTunables(t tunables) error {
	c.LedgerPath = t.LedgerPath
	c.DomesticCountry = strings.ToUpper(withDefault(t.DomesticCountry, "IN"))

	durations := []struct {
		name string
		raw  string
		def  time.Duration
		dst  *time.Duration
	}{
		{"ADDRESS_DEBOUNCE", t.AddressDebounce, time.Second, &c.AddressDebounce},
		{"CART_TTL", t.CartTTL, 5 * time.Minute, &c.CartTTL},
		{"COUPON_LIST_TTL", t.CouponListTTL, 30 * time.Minute, &c.CouponListTTL},
		{"APP_CONFIG_TTL", t.AppConfigTTL, 24 * time.Hour, &c.AppConfigTTL},
	}
	for _, d := range durations {
		v, err := parseDuration(d.name, d.raw, d.def)
		if err != nil {
			return err
		}
		*d.dst = v
	}

	c.PurchaseLimit = 99
	if t.PurchaseLimit != "" {
		n, err := strconv.Atoi(t.PurchaseLimit)
		if err != nil || n < 1 {
			return fmt.Errorf("invalid PURCHASE_LIMIT %q: must be a positive integer", t.PurchaseLimit)
		}
		c.PurchaseLimit = n
	}

	amounts := []struct {
		name string
		raw  string
		def  int64
		dst  *decimal.Decimal
	}{
		{"CUSTOMIZATION_SURCHARGE", t.CustomizationSurcharge, 50, &c.CustomizationSurcharge},
		{"FALLBACK_COD_FEE", t.FallbackCODFee, 20, &c.Fallback.CODFee},
		{"FALLBACK_FREE_SHIPPING_THRESHOLD", t.FallbackFreeShipping, 500, &c.Fallback.FreeShippingThreshold},
		{"FALLBACK_SHIPPING_COST", t.FallbackShippingCost, 79, &c.Fallback.ShippingCost},
	}
	for _, a := range amounts {
		v, err := parseAmount(a.name, a.raw, a.def)
		if err != nil {
			return err
		}
		*a.dst = v
	}
	return nil
}

func parseDuration(name, raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive duration", name, raw)
	}
	return d, nil
}

func parseAmount(name, raw string, def int64) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.NewFromInt(def), nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		return decimal.Zero, fmt.Errorf("invalid %s %q: must be a non-negative amount", name, raw)
	}
	return d, nil
}

// validate checks that all required configuration fields are present.
func (c *Config) validate() error {
	if c.Store.StoreURL == "" {
		return fmt.Errorf("store_url is required")
	}
	u, err := url.Parse(c.Store.StoreURL)
	if err != nil {
		return fmt.Errorf("invalid store_url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid store_url %q: must be an absolute http(s) URL", c.Store.StoreURL)
	}
	return nil
}

// BuildAdapterConfig returns the backend connection settings.
func (c *Config) BuildAdapterConfig() adapter.Config {
	return adapter.Config{
		StoreURL: strings.TrimSuffix(c.Store.StoreURL, "/"),
		APIKey:   c.Store.APIKey,
	}
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
