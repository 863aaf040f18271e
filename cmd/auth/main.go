package main

import (
	"context"
	"database/sql"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"Storefront/internal/auth"
	"Storefront/internal/config"
	"Storefront/pkg/kit"
)

func main() {
	service := "auth"

	cfg, err := config.LoadAuth()
	if err != nil {
		kit.NewLogger(service, "info").Fatal("load config", zap.Error(err))
	}

	log := kit.NewLogger(service, cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var cleanup []func(context.Context) error

	store, closeStore := openStore(ctx, cfg, log)
	if closeStore != nil {
		cleanup = append(cleanup, closeStore)
	}

	if cfg.AdminEmail != "" {
		if err := auth.EnsureAdmin(ctx, store, cfg.AdminEmail, cfg.AdminPassword, "u_"+uuid.NewString()); err != nil {
			log.Fatal("bootstrap admin", zap.Error(err))
		}
	}

	var clientOpts []option.ClientOption
	if cfg.GoogleCredentials != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.GoogleCredentials))
	}

	roles := auth.AnyRoles{auth.StoreRoles{Store: store}}
	if cfg.FirestoreProjectID != "" {
		fs, err := firestore.NewClient(context.Background(), cfg.FirestoreProjectID, clientOpts...)
		if err != nil {
			log.Fatal("firestore client", zap.Error(err))
		}
		cleanup = append(cleanup, func(context.Context) error { return fs.Close() })
		roles = append(roles, auth.FirestoreRoles{Client: fs, Collection: cfg.AdminsCollection})
		log.Info("role documents: firestore", zap.String("project", cfg.FirestoreProjectID))
	}

	s := &auth.Server{
		Log:      log,
		Store:    store,
		JWT:      auth.NewTokenMaker(cfg.JWTSecret),
		Revoked:  auth.NewRevocations(),
		Roles:    roles,
		TokenTTL: cfg.TokenTTL,
	}

	if cfg.FirebaseProjectID != "" {
		app, err := firebase.NewApp(context.Background(), &firebase.Config{ProjectID: cfg.FirebaseProjectID}, clientOpts...)
		if err != nil {
			log.Warn("firebase app init failed; federated sign-in disabled", zap.Error(err))
		} else if fbAuth, err := app.Auth(context.Background()); err != nil {
			log.Warn("firebase auth init failed; federated sign-in disabled", zap.Error(err))
		} else {
			s.Federated = auth.FirebaseVerifier{Auth: fbAuth}
			log.Info("federated sign-in: firebase", zap.String("project", cfg.FirebaseProjectID))
		}
	}

	reg := prometheus.NewRegistry()
	h := auth.NewHandler(s, auth.HTTPDeps{
		Log:            log,
		Service:        service,
		Registry:       reg,
		MetricsEnabled: true,
		MetricsToken:   cfg.MetricsToken,
	})

	if err := kit.RunHTTPServer(":"+cfg.Port, h, log, cleanup...); err != nil {
		log.Fatal("http server stopped", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg config.Auth, log *zap.Logger) (auth.UserStore, func(context.Context) error) {
	if cfg.PostgresDSN == "" {
		log.Info("user store: memory")
		return auth.NewMemStore(), nil
	}

	db, err := sql.Open("pgx", cfg.PostgresDSN)
	if err != nil {
		log.Fatal("open postgres", zap.Error(err))
	}
	pg := auth.NewPostgresStore(db)
	if err := pg.Migrate(ctx); err != nil {
		log.Fatal("migrate users", zap.Error(err))
	}
	log.Info("user store: postgres")
	return pg, func(context.Context) error { return db.Close() }
}
