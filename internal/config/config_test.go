package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// clearEnv blanks every key Load reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CONFIG_FILE", "PORT", "ENVIRONMENT", "LOG_LEVEL", "GCP_PROJECT", "STORE_SECRET_ID",
		"STORE_URL", "STORE_API_KEY", "LEDGER_PATH", "DOMESTIC_COUNTRY", "ADDRESS_DEBOUNCE",
		"CART_TTL", "COUPON_LIST_TTL", "APP_CONFIG_TTL", "PURCHASE_LIMIT",
		"CUSTOMIZATION_SURCHARGE", "FALLBACK_COD_FEE", "FALLBACK_FREE_SHIPPING_THRESHOLD",
		"FALLBACK_SHIPPING_COST",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("STORE_URL", "https://shop.example.com")
	t.Setenv("STORE_API_KEY", "sk_test123")
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DOMESTIC_COUNTRY", "in")
	t.Setenv("ADDRESS_DEBOUNCE", "750ms")
	t.Setenv("PURCHASE_LIMIT", "10")
	t.Setenv("FALLBACK_COD_FEE", "35.50")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Port = %s, want 9090", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.LogLevel)
	}
	if cfg.Store.StoreURL != "https://shop.example.com" || cfg.Store.APIKey != "sk_test123" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.DomesticCountry != "IN" {
		t.Errorf("DomesticCountry = %s, want IN", cfg.DomesticCountry)
	}
	if cfg.AddressDebounce != 750*time.Millisecond {
		t.Errorf("AddressDebounce = %v, want 750ms", cfg.AddressDebounce)
	}
	if cfg.PurchaseLimit != 10 {
		t.Errorf("PurchaseLimit = %d, want 10", cfg.PurchaseLimit)
	}
	if !cfg.Fallback.CODFee.Equal(decimal.RequireFromString("35.5")) {
		t.Errorf("Fallback.CODFee = %s, want 35.5", cfg.Fallback.CODFee)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_URL", "https://shop.example.com")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "8080" || cfg.Environment != "development" || cfg.LogLevel != "info" {
		t.Errorf("server defaults = %s/%s/%s", cfg.Port, cfg.Environment, cfg.LogLevel)
	}
	if cfg.DomesticCountry != "IN" {
		t.Errorf("DomesticCountry = %s, want IN", cfg.DomesticCountry)
	}
	if cfg.AddressDebounce != time.Second || cfg.CartTTL != 5*time.Minute ||
		cfg.CouponListTTL != 30*time.Minute || cfg.AppConfigTTL != 24*time.Hour {
		t.Errorf("durations = %v %v %v %v", cfg.AddressDebounce, cfg.CartTTL, cfg.CouponListTTL, cfg.AppConfigTTL)
	}
	if cfg.PurchaseLimit != 99 {
		t.Errorf("PurchaseLimit = %d, want 99", cfg.PurchaseLimit)
	}
	if !cfg.CustomizationSurcharge.Equal(decimal.NewFromInt(50)) {
		t.Errorf("CustomizationSurcharge = %s, want 50", cfg.CustomizationSurcharge)
	}
	if !cfg.Fallback.FreeShippingThreshold.Equal(decimal.NewFromInt(500)) ||
		!cfg.Fallback.ShippingCost.Equal(decimal.NewFromInt(79)) ||
		!cfg.Fallback.CODFee.Equal(decimal.NewFromInt(20)) {
		t.Errorf("Fallback = %+v", cfg.Fallback)
	}
	if cfg.LedgerPath != "" {
		t.Errorf("LedgerPath = %q, want empty", cfg.LedgerPath)
	}
}

func TestLoadInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"missing store url", "STORE_URL", "", "store_url is required"},
		{"relative store url", "STORE_URL", "shop.example.com", "invalid store_url"},
		{"ftp store url", "STORE_URL", "ftp://shop.example.com", "invalid store_url"},
		{"bad debounce", "ADDRESS_DEBOUNCE", "soon", "invalid ADDRESS_DEBOUNCE"},
		{"negative ttl", "CART_TTL", "-5m", "invalid CART_TTL"},
		{"zero purchase limit", "PURCHASE_LIMIT", "0", "invalid PURCHASE_LIMIT"},
		{"bad surcharge", "CUSTOMIZATION_SURCHARGE", "fifty", "invalid CUSTOMIZATION_SURCHARGE"},
		{"negative fee", "FALLBACK_COD_FEE", "-1", "invalid FALLBACK_COD_FEE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("STORE_URL", "https://shop.example.com")
			t.Setenv(tt.key, tt.value)

			_, err := Load(context.Background())
			if err == nil {
				t.Fatalf("Expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Error = %q, want containing %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoadProductionRequiresGCP(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"missing project", map[string]string{"STORE_SECRET_ID": "store"}, "GCP_PROJECT required"},
		{"missing secret id", map[string]string{"GCP_PROJECT": "proj"}, "STORE_SECRET_ID required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("ENVIRONMENT", "production")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(context.Background())
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestBuildAdapterConfig(t *testing.T) {
	cfg := &Config{Store: StoreConfig{StoreURL: "https://shop.example.com/", APIKey: "key"}}

	ac := cfg.BuildAdapterConfig()
	if ac.StoreURL != "https://shop.example.com" {
		t.Errorf("StoreURL = %s, want no trailing slash", ac.StoreURL)
	}
	if ac.APIKey != "key" {
		t.Errorf("APIKey = %s, want key", ac.APIKey)
	}
}

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("TEST_ENV_VAR", "custom")
	if got := envOrDefault("TEST_ENV_VAR", "default"); got != "custom" {
		t.Errorf("envOrDefault with set var = %q, want custom", got)
	}
	if got := envOrDefault("TEST_ENV_VAR_UNSET", "default"); got != "default" {
		t.Errorf("envOrDefault with unset var = %q, want default", got)
	}
}

func TestWithDefault(t *testing.T) {
	if got := withDefault("value", "default"); got != "value" {
		t.Errorf("withDefault(value, default) = %q, want value", got)
	}
	if got := withDefault("", "default"); got != "default" {
		t.Errorf("withDefault('', default) = %q, want default", got)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", writeConfig(t, `{
		"port": "9090",
		"environment": "test",
		"log_level": "debug",
		"store": {"store_url": "https://file-shop.com", "api_key": "sk_file"},
		"cart": {
			"ledger_path": "/tmp/storefront",
			"cart_ttl": "2m",
			"fallback_shipping_cost": "49"
		}
	}`))
	// Env tuning is ignored when a file is used
	t.Setenv("CART_TTL", "9m")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "9090" || cfg.Environment != "test" {
		t.Errorf("Port/Environment = %s/%s", cfg.Port, cfg.Environment)
	}
	if cfg.Store.StoreURL != "https://file-shop.com" || cfg.Store.APIKey != "sk_file" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.LedgerPath != "/tmp/storefront" {
		t.Errorf("LedgerPath = %s", cfg.LedgerPath)
	}
	if cfg.CartTTL != 2*time.Minute {
		t.Errorf("CartTTL = %v, want 2m", cfg.CartTTL)
	}
	if !cfg.Fallback.ShippingCost.Equal(decimal.NewFromInt(49)) {
		t.Errorf("Fallback.ShippingCost = %s, want 49", cfg.Fallback.ShippingCost)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	t.Run("file not found", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CONFIG_FILE", "/nonexistent/config.json")
		if _, err := Load(context.Background()); err == nil {
			t.Error("expected error for nonexistent file")
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CONFIG_FILE", writeConfig(t, "{invalid json"))
		if _, err := Load(context.Background()); err == nil {
			t.Error("expected error for invalid JSON")
		}
	})

	t.Run("missing store url", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CONFIG_FILE", writeConfig(t, `{"port": "9090"}`))
		_, err := Load(context.Background())
		if err == nil || !strings.Contains(err.Error(), "store_url is required") {
			t.Errorf("expected store_url error, got: %v", err)
		}
	})
}
