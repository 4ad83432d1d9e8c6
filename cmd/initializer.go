package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"matchBack/internal/config"
	"matchBack/internal/handlers"
	"matchBack/internal/iap"
	"matchBack/internal/iap/billing"
	"matchBack/internal/iap/journal"
	"matchBack/internal/iap/notify"
	"matchBack/internal/repositories"
	"matchBack/utils"
)

type application struct {
	errorLog        *log.Logger
	infoLog         *log.Logger
	db              *sql.DB
	redis           *redis.Client
	tokens          *utils.Manager
	purchases       *iap.Module
	purchaseHandler *handlers.PurchaseHandler
	entitlementRepo *repositories.EntitlementRepository
}

// stdLogger adapts the info/error log pair to the Infof/Errorf interface
// used by internal modules.
type stdLogger struct {
	infoLog  *log.Logger
	errorLog *log.Logger
}

func (l stdLogger) Infof(format string, args ...interface{}) {
	l.infoLog.Output(2, fmt.Sprintf(format, args...))
}

func (l stdLogger) Errorf(format string, args ...interface{}) {
	l.errorLog.Output(2, fmt.Sprintf(format, args...))
}

func initializeApp(ctx context.Context, cfg config.Config, db *sql.DB, errorLog *log.Logger, infoLog *log.Logger) (*application, error) {
	logger := stdLogger{infoLog: infoLog, errorLog: errorLog}

	tokens, err := utils.NewManager(cfg.JWT.Secret)
	if err != nil {
		return nil, fmt.Errorf("jwt: %w", err)
	}

	iapCfg, err := iap.LoadConfig()
	if err != nil {
		return nil, err
	}
	dialect := repositories.DialectFor(cfg.Database.Driver)
	deps := &iap.Deps{
		DB:      db,
		Dialect: dialect,
		Logger:  logger,
		Config:  iapCfg,
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			errorLog.Printf("redis unavailable, catalog cache and failure journal disabled: %v", err)
			_ = rdb.Close()
			rdb = nil
		} else {
			deps.Redis = rdb
		}
	}

	if rdb != nil && cfg.S3.Bucket != "" {
		archive, err := journal.NewS3Archive(journal.S3Config{
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
		})
		if err != nil {
			errorLog.Printf("s3 archive disabled: %v", err)
		} else {
			deps.Archive = archive
		}
	}

	if cfg.Firebase.CredentialsFile != "" {
		creds, err := os.ReadFile(cfg.Firebase.CredentialsFile)
		if err != nil {
			errorLog.Printf("firebase disabled: %v", err)
		} else if client, err := notify.NewMessagingClient(ctx, string(creds)); err != nil {
			errorLog.Printf("firebase disabled: %v", err)
		} else {
			deps.Messaging = client
		}
	}

	if cfg.GooglePlay.PackageName != "" && cfg.GooglePlay.ServiceAccountFile != "" {
		sa, err := os.ReadFile(cfg.GooglePlay.ServiceAccountFile)
		if err != nil {
			errorLog.Printf("google play metadata disabled: %v", err)
		} else if play, err := billing.NewPlayCatalog(ctx, billing.PlayConfig{PackageName: cfg.GooglePlay.PackageName, ServiceAccountJSON: string(sa)}); err != nil {
			errorLog.Printf("google play metadata disabled: %v", err)
		} else {
			deps.PlayMetadata = play
		}
	}

	module, err := iap.NewModule(ctx, deps)
	if err != nil {
		return nil, fmt.Errorf("iap: %w", err)
	}

	return &application{
		errorLog:        errorLog,
		infoLog:         infoLog,
		db:              db,
		redis:           rdb,
		tokens:          tokens,
		purchases:       module,
		purchaseHandler: handlers.NewPurchaseHandler(module.Sessions(), module.Entitlements(), module.Tokens()),
		entitlementRepo: repositories.NewEntitlementRepository(db, dialect),
	}, nil
}

func openDB(driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(repositories.DialectFor(driver).DriverName(), dsn)
	if err != nil {
		log.Printf("Failed to open DB: %v", err)
		return nil, err
	}
	if err = db.Ping(); err != nil {
		log.Printf("Failed to ping DB: %v", err)
		return nil, err
	}
	db.SetMaxIdleConns(35)
	log.Println("Successfully connected to database")
	return db, nil
}

func addSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Cross-Origin-Resource-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}
