package iap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"matchBack/internal/models"
)

const (
	defaultBatchSize              = 5
	defaultConnectAttempts        = 3
	defaultConnectDelay           = time.Second
	defaultCatalogRefreshInterval = 30 * time.Minute
	defaultCatalogCacheTTL        = 5 * time.Minute
	defaultArchiveInterval        = time.Hour
	defaultArchiveBatch           = 500
	defaultArchivePrefix          = "iap/ledger-failures"
)

var defaultFallbackSKUs = []string{
	"premium_monthly",
	"premium_3month",
	"premium_yearly",
	"boost_1",
	"boost_5",
	"boost_10",
	"superlike_5",
	"superlike_15",
	"msgcredits_10",
	"giftcredits_10",
}

var defaultWellKnownSKUs = map[models.ProductCategory]string{
	models.CategorySubscription: "premium_monthly",
	models.CategoryBoost:        "boost_1",
	models.CategorySuperLike:    "superlike_5",
	models.CategoryCredit:       "msgcredits_10",
}

// Config holds runtime configuration for the purchase module.
type Config struct {
	BatchSize              int
	ConnectAttempts        int
	ConnectDelay           time.Duration
	FallbackSKUs           []string
	WellKnownSKUs          map[models.ProductCategory]string
	CatalogRefreshInterval time.Duration
	CatalogCacheTTL        time.Duration
	ArchiveInterval        time.Duration
	ArchiveBatch           int
	ArchivePrefix          string
	JournalKey             string
}

// LoadConfig reads purchase configuration from environment variables and applies defaults.
func LoadConfig() (Config, error) {
	cfg := Config{
		BatchSize:              defaultBatchSize,
		ConnectAttempts:        defaultConnectAttempts,
		ConnectDelay:           defaultConnectDelay,
		FallbackSKUs:           append([]string(nil), defaultFallbackSKUs...),
		WellKnownSKUs:          make(map[models.ProductCategory]string, len(defaultWellKnownSKUs)),
		CatalogRefreshInterval: defaultCatalogRefreshInterval,
		CatalogCacheTTL:        defaultCatalogCacheTTL,
		ArchiveInterval:        defaultArchiveInterval,
		ArchiveBatch:           defaultArchiveBatch,
		ArchivePrefix:          defaultArchivePrefix,
	}
	for k, v := range defaultWellKnownSKUs {
		cfg.WellKnownSKUs[k] = v
	}

	if v, err := readIntEnv("IAP_BATCH_SIZE"); err != nil {
		return Config{}, fmt.Errorf("parse IAP_BATCH_SIZE: %w", err)
	} else if v != nil {
		cfg.BatchSize = *v
	}

	if v, err := readIntEnv("IAP_CONNECT_ATTEMPTS"); err != nil {
		return Config{}, fmt.Errorf("parse IAP_CONNECT_ATTEMPTS: %w", err)
	} else if v != nil {
		cfg.ConnectAttempts = *v
	}

	if v, err := readDurationEnv("IAP_CONNECT_DELAY_MS", time.Millisecond); err != nil {
		return Config{}, fmt.Errorf("parse IAP_CONNECT_DELAY_MS: %w", err)
	} else if v != nil {
		cfg.ConnectDelay = *v
	}

	if v := os.Getenv("IAP_FALLBACK_SKUS"); strings.TrimSpace(v) != "" {
		cfg.FallbackSKUs = splitList(v)
	}

	for env, category := range map[string]models.ProductCategory{
		"IAP_SKU_SUBSCRIPTION": models.CategorySubscription,
		"IAP_SKU_BOOST":        models.CategoryBoost,
		"IAP_SKU_SUPERLIKE":    models.CategorySuperLike,
		"IAP_SKU_CREDIT":       models.CategoryCredit,
	} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			cfg.WellKnownSKUs[category] = v
		}
	}

	if v, err := readDurationEnv("IAP_CATALOG_REFRESH_SECONDS", time.Second); err != nil {
		return Config{}, fmt.Errorf("parse IAP_CATALOG_REFRESH_SECONDS: %w", err)
	} else if v != nil {
		cfg.CatalogRefreshInterval = *v
	}

	if v, err := readDurationEnv("IAP_CATALOG_CACHE_TTL_SECONDS", time.Second); err != nil {
		return Config{}, fmt.Errorf("parse IAP_CATALOG_CACHE_TTL_SECONDS: %w", err)
	} else if v != nil {
		cfg.CatalogCacheTTL = *v
	}

	if v, err := readDurationEnv("IAP_ARCHIVE_INTERVAL_SECONDS", time.Second); err != nil {
		return Config{}, fmt.Errorf("parse IAP_ARCHIVE_INTERVAL_SECONDS: %w", err)
	} else if v != nil {
		cfg.ArchiveInterval = *v
	}

	if v, err := readIntEnv("IAP_ARCHIVE_BATCH"); err != nil {
		return Config{}, fmt.Errorf("parse IAP_ARCHIVE_BATCH: %w", err)
	} else if v != nil {
		cfg.ArchiveBatch = *v
	}

	if v := strings.Trim(strings.TrimSpace(os.Getenv("IAP_ARCHIVE_PREFIX")), "/"); v != "" {
		cfg.ArchivePrefix = v
	}
	cfg.JournalKey = strings.TrimSpace(os.Getenv("IAP_JOURNAL_KEY"))

	if cfg.BatchSize <= 0 {
		return Config{}, fmt.Errorf("IAP_BATCH_SIZE must be positive")
	}
	if cfg.ConnectAttempts <= 0 {
		return Config{}, fmt.Errorf("IAP_CONNECT_ATTEMPTS must be positive")
	}
	if cfg.ConnectDelay < 0 {
		return Config{}, fmt.Errorf("IAP_CONNECT_DELAY_MS must not be negative")
	}
	if cfg.CatalogRefreshInterval <= 0 {
		return Config{}, fmt.Errorf("IAP_CATALOG_REFRESH_SECONDS must be positive")
	}
	if cfg.CatalogCacheTTL <= 0 {
		return Config{}, fmt.Errorf("IAP_CATALOG_CACHE_TTL_SECONDS must be positive")
	}
	if cfg.ArchiveInterval <= 0 {
		return Config{}, fmt.Errorf("IAP_ARCHIVE_INTERVAL_SECONDS must be positive")
	}
	if cfg.ArchiveBatch <= 0 {
		return Config{}, fmt.Errorf("IAP_ARCHIVE_BATCH must be positive")
	}

	return cfg, nil
}

func readIntEnv(name string) (*int, error) {
	val := os.Getenv(name)
	if val == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(val)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func readDurationEnv(name string, unit time.Duration) (*time.Duration, error) {
	v, err := readIntEnv(name)
	if err != nil || v == nil {
		return nil, err
	}
	d := time.Duration(*v) * unit
	return &d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
