package iap

import (
	"testing"
	"time"

	"matchBack/internal/models"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.BatchSize != 5 || cfg.ConnectAttempts != 3 || cfg.ConnectDelay != time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.WellKnownSKUs[models.CategoryBoost] == "" {
		t.Fatal("expected a well-known boost SKU")
	}
	if len(cfg.FallbackSKUs) == 0 {
		t.Fatal("expected fallback SKUs")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("IAP_BATCH_SIZE", "10")
	t.Setenv("IAP_CONNECT_DELAY_MS", "250")
	t.Setenv("IAP_FALLBACK_SKUS", " boost_3 , ,premium_weekly")
	t.Setenv("IAP_SKU_CREDIT", "giftcredits_5")
	t.Setenv("IAP_ARCHIVE_PREFIX", "/archive/iap/")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.BatchSize != 10 {
		t.Errorf("BatchSize = %d", cfg.BatchSize)
	}
	if cfg.ConnectDelay != 250*time.Millisecond {
		t.Errorf("ConnectDelay = %s", cfg.ConnectDelay)
	}
	if len(cfg.FallbackSKUs) != 2 || cfg.FallbackSKUs[0] != "boost_3" || cfg.FallbackSKUs[1] != "premium_weekly" {
		t.Errorf("FallbackSKUs = %v", cfg.FallbackSKUs)
	}
	if cfg.WellKnownSKUs[models.CategoryCredit] != "giftcredits_5" {
		t.Errorf("credit SKU = %q", cfg.WellKnownSKUs[models.CategoryCredit])
	}
	if cfg.ArchivePrefix != "archive/iap" {
		t.Errorf("ArchivePrefix = %q", cfg.ArchivePrefix)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	t.Setenv("IAP_BATCH_SIZE", "0")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for zero batch size")
	}
	t.Setenv("IAP_BATCH_SIZE", "abc")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected parse error")
	}
}
