// Command node runs a Smart Charging Network node: the federation hub that
// routes, authenticates and proxies SCPI messages between the platforms
// connected to it and the rest of the network.
//
// Configuration comes from the environment, optionally seeded from a dotenv
// file:
//
//	go run ./cmd/node --env .env
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/Smart-Charging/scn-node/api"
	"github.com/Smart-Charging/scn-node/config"
	"github.com/Smart-Charging/scn-node/registry"
	"github.com/Smart-Charging/scn-node/relay"
	"github.com/Smart-Charging/scn-node/routing"
	"github.com/Smart-Charging/scn-node/rules"
	"github.com/Smart-Charging/scn-node/store"
	"github.com/Smart-Charging/scn-node/wallet"
)

func main() {
	envFile := flag.String("env", "", "path to a dotenv file")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load(*envFile)
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	var st store.Store
	if cfg.Database != nil {
		pg, err := store.NewPostgres(cfg.Database)
		if err != nil {
			logger.Fatal("could not connect to database", zap.Error(err))
		}
		defer pg.Close()
		st = pg
	} else {
		logger.Warn("no database configured, using in-memory store")
		st = store.NewMemory()
	}

	reg, err := registry.Dial(cfg.Web3Provider, common.HexToAddress(cfg.RegistryContract))
	if err != nil {
		logger.Fatal("could not connect to registry", zap.Error(err))
	}

	w, err := wallet.New(cfg.PrivateKey, reg)
	if err != nil {
		logger.Fatal("invalid node private key", zap.Error(err))
	}
	logger.Info("node wallet ready", zap.String("address", w.Address().Hex()))

	router := routing.New(st, reg, w, cfg.NodeURL)
	client := relay.NewClient(cfg.RequestTimeout, logger)
	builder := relay.NewBuilder(router, client, w, relay.Config{
		NodeURL:    cfg.NodeURL,
		PrivateKey: cfg.PrivateKey,
		Signatures: cfg.Signatures,
	}, logger)

	srv := api.NewServer(&api.ServerConfig{
		ListenAddr:               cfg.ListenAddr,
		Log:                      logger,
		GracefulShutdownDuration: 10 * time.Second,
		ReadTimeout:              15 * time.Second,
		WriteTimeout:             15 * time.Second,
	},
		api.NewModulesHandler(builder),
		api.NewMessageHandler(builder),
		api.NewVersionsHandler(st, cfg.NodeURL),
		api.NewCredentialsHandler(st, router, client, cfg.NodeURL, cfg.Signatures),
		api.NewRulesHandler(rules.New(st)),
		api.NewRegistryHandler(reg, w, cfg.NodeURL),
		api.NewAdminHandler(st, cfg.APIKey, cfg.NodeURL),
	)

	srv.RunInBackground()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	srv.Shutdown()
}
