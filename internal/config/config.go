// Package config loads per-service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const minJWTSecretLen = 32

// Common holds settings every service shares.
type Common struct {
	Port         string `env:"PORT"`
	LogLevel     string `env:"LOG_LEVEL"     envDefault:"info"`
	MetricsToken string `env:"METRICS_TOKEN"`
}

type Storefront struct {
	Common

	AuthURL    string `env:"AUTH_URL"    envDefault:"http://auth:8081"`
	CatalogURL string `env:"CATALOG_URL" envDefault:"http://catalog:8082"`

	BridgeDriver string `env:"BRIDGE_DRIVER" envDefault:"memory"`
	SQLitePath   string `env:"SQLITE_PATH"   envDefault:"storefront.db"`
	RedisAddr    string `env:"REDIS_ADDR"    envDefault:"localhost:6379"`
	RedisPass    string `env:"REDIS_PASSWORD"`
	RedisDB      int    `env:"REDIS_DB"`
	PostgresDSN  string `env:"POSTGRES_DSN"`

	NATSURL string `env:"NATS_URL"`

	ClientIdleTTL   time.Duration `env:"CLIENT_IDLE_TTL"  envDefault:"24h"`
	GuardWait       time.Duration `env:"GUARD_WAIT"       envDefault:"3s"`
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"3s"`
	SecureCookies   bool          `env:"SECURE_COOKIES"`
}

type Catalog struct {
	Common

	PostgresDSN string `env:"POSTGRES_DSN"`
	Seed        bool   `env:"CATALOG_SEED" envDefault:"true"`
}

type Auth struct {
	Common

	JWTSecret   string        `env:"JWT_SECRET"`
	TokenTTL    time.Duration `env:"TOKEN_TTL"    envDefault:"1h"`
	PostgresDSN string        `env:"POSTGRES_DSN"`

	AdminEmail    string `env:"ADMIN_EMAIL"`
	AdminPassword string `env:"ADMIN_PASSWORD"`

	FirebaseProjectID  string `env:"FIREBASE_PROJECT_ID"`
	FirestoreProjectID string `env:"FIRESTORE_PROJECT_ID"`
	GoogleCredentials  string `env:"GOOGLE_APPLICATION_CREDENTIALS"`
	AdminsCollection   string `env:"ADMINS_COLLECTION" envDefault:"admins"`
}

var bridgeDrivers = map[string]bool{
	"memory":   true,
	"sqlite":   true,
	"redis":    true,
	"postgres": true,
}

func LoadStorefront() (Storefront, error) {
	cfg := Storefront{Common: Common{Port: "8080"}}
	if err := parse(&cfg); err != nil {
		return Storefront{}, err
	}
	if !bridgeDrivers[cfg.BridgeDriver] {
		return Storefront{}, fmt.Errorf("unknown BRIDGE_DRIVER %q", cfg.BridgeDriver)
	}
	if cfg.BridgeDriver == "postgres" && cfg.PostgresDSN == "" {
		return Storefront{}, errors.New("POSTGRES_DSN is required for the postgres bridge")
	}
	return cfg, nil
}

func LoadCatalog() (Catalog, error) {
	cfg := Catalog{Common: Common{Port: "8082"}}
	if err := parse(&cfg); err != nil {
		return Catalog{}, err
	}
	return cfg, nil
}

func LoadAuth() (Auth, error) {
	cfg := Auth{Common: Common{Port: "8081"}}
	if err := parse(&cfg); err != nil {
		return Auth{}, err
	}
	if len(cfg.JWTSecret) < minJWTSecretLen {
		return Auth{}, fmt.Errorf("JWT_SECRET is required and must be at least %d chars", minJWTSecretLen)
	}
	if (cfg.AdminEmail == "") != (cfg.AdminPassword == "") {
		return Auth{}, errors.New("ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}
	return cfg, nil
}

// parse keeps any value already set on target when the variable is unset.
func parse(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
