package iap

import (
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"

	"matchBack/internal/iap/billing"
	"matchBack/internal/iap/journal"
	"matchBack/internal/iap/notify"
	"matchBack/internal/repositories"
)

// Logger is the minimal logging interface required by the purchase module.
type Logger interface {
	Infof(string, ...interface{})
	Errorf(string, ...interface{})
}

// Deps aggregates runtime dependencies for the purchase module. Redis,
// Messaging, Archive and PlayMetadata are optional; the features built on
// them are off when they are nil.
type Deps struct {
	DB           *sql.DB
	Dialect      repositories.Dialect
	Redis        *redis.Client
	Messaging    notify.Sender
	Archive      journal.Uploader
	PlayMetadata billing.MetadataSource
	Logger       Logger
	Config       Config
}

// Validate ensures that the deps struct contains the essentials before bootstrapping services.
func (d *Deps) Validate() error {
	if d == nil {
		return fmt.Errorf("iap deps are nil")
	}
	if d.DB == nil {
		return fmt.Errorf("iap deps DB is required")
	}
	if d.Logger == nil {
		return fmt.Errorf("iap deps Logger is required")
	}
	if d.Archive != nil && d.Redis == nil {
		return fmt.Errorf("iap deps Archive requires Redis")
	}
	if d.Config.BatchSize == 0 {
		cfg, err := LoadConfig()
		if err != nil {
			return err
		}
		d.Config = cfg
	}
	return nil
}
