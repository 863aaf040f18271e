package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"Storefront/internal/config"
	"Storefront/internal/directory"
	"Storefront/internal/identity"
	"Storefront/internal/notify"
	"Storefront/internal/persist"
	"Storefront/internal/storefront"
	"Storefront/pkg/kit"
)

func main() {
	service := "storefront"

	cfg, err := config.LoadStorefront()
	if err != nil {
		kit.NewLogger(service, "info").Fatal("load config", zap.Error(err))
	}

	log := kit.NewLogger(service, cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	startCtx, cancelStart := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelStart()

	bridge, err := persist.Open(startCtx, cfg)
	if err != nil {
		log.Fatal("open bridge", zap.String("driver", cfg.BridgeDriver), zap.Error(err))
	}
	log.Info("bridge ready", zap.String("driver", cfg.BridgeDriver))

	deps := storefront.RegistryDeps{
		Bridge:  bridge,
		Log:     log,
		IdleTTL: cfg.ClientIdleTTL,
	}

	var publisher *notify.NATSPublisher
	if cfg.NATSURL != "" {
		publisher, err = notify.ConnectNATS(cfg.NATSURL, log)
		if err != nil {
			log.Fatal("connect nats", zap.Error(err))
		}
		deps.Publisher = publisher
		log.Info("change notifications: nats", zap.String("url", cfg.NATSURL))
	}

	idp := identity.NewClient(cfg.AuthURL, cfg.UpstreamTimeout)
	deps.Provider, deps.Roles = idp, idp
	clients := storefront.NewRegistry(deps)

	runCtx, stopSweeper := context.WithCancel(context.Background())
	go clients.Run(runCtx)

	reg := prometheus.NewRegistry()
	catalogClient := directory.NewClient(cfg.CatalogURL, cfg.UpstreamTimeout)

	s := &storefront.Server{
		Log:       log,
		Directory: directory.New(catalogClient, log, reg),
		Clients:   clients,
		Probes: []storefront.Probe{
			{Name: "auth", Ping: idp.Ping},
			{Name: "catalog", Ping: catalogClient.Ping},
			{Name: "bridge", Ping: clients.Ping},
		},
		GuardWait:     cfg.GuardWait,
		CookieMaxAge:  cfg.ClientIdleTTL,
		SecureCookies: cfg.SecureCookies,
	}

	h := storefront.NewHandler(s, storefront.HTTPDeps{
		Log:            log,
		Service:        service,
		Registry:       reg,
		MetricsEnabled: true,
		MetricsToken:   cfg.MetricsToken,
	})

	cleanup := func(context.Context) error {
		stopSweeper()
		clients.Close()
		if publisher != nil {
			publisher.Close()
		}
		return bridge.Close()
	}

	if err := kit.RunHTTPServer(":"+cfg.Port, h, log, cleanup); err != nil {
		log.Fatal("http server stopped", zap.Error(err))
	}
}
