// vaultd runs the conversion vault: it wires the ledger, request store,
// oracles, yield venue and token collaborators, restores persisted state and
// serves the monitoring API until interrupted.
package main

import (
	"context"
	"flag"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/synthvault/govault/internal/chain"
	"github.com/synthvault/govault/internal/config"
	"github.com/synthvault/govault/internal/events"
	"github.com/synthvault/govault/internal/ledger"
	"github.com/synthvault/govault/internal/metrics"
	"github.com/synthvault/govault/internal/oracle"
	"github.com/synthvault/govault/internal/reqstore"
	"github.com/synthvault/govault/internal/server"
	"github.com/synthvault/govault/internal/token"
	"github.com/synthvault/govault/internal/vault"
	"github.com/synthvault/govault/internal/venue"
	"github.com/synthvault/govault/pkg/logger"
)

var ledgerKey = []byte("ledger:snapshot")

func main() {
	configPath := flag.String("config", "vault.yaml", "configuration file path")
	envFile := flag.String("env", ".env", "env file with secrets (optional)")
	flag.Parse()

	if _, err := os.Stat(*envFile); err == nil {
		if err := godotenv.Load(*envFile); err != nil {
			logrus.WithError(err).Fatal("load env file")
		}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.OutputFile,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}); err != nil {
		logrus.WithError(err).Fatal("init logger")
	}

	var db *badger.DB
	if cfg.Store.Path != "" {
		db, err = badger.Open(badger.DefaultOptions(cfg.Store.Path).WithLogger(nil))
	} else {
		db, err = badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	}
	if err != nil {
		logrus.WithError(err).Fatal("open store")
	}
	defer db.Close()
	store := reqstore.OpenWithDB(db)

	led := ledger.New()
	if err := loadLedger(db, led); err != nil {
		logrus.WithError(err).Fatal("restore ledger")
	}

	var ev *events.Log
	if cfg.Store.EventSink != "" {
		ev, err = events.NewLogWithSink(cfg.Store.EventSink)
		if err != nil {
			logrus.WithError(err).Fatal("open event sink")
		}
	} else {
		ev = events.NewLog()
	}
	defer ev.Close()

	deps := vault.Deps{
		Ledger: led,
		Store:  store,
		Events: ev,
	}

	admin := common.HexToAddress(cfg.Vault.Admin)
	if cfg.Chain.DryRun {
		vaultAddr := common.HexToAddress(cfg.Vault.Address)
		deps.Reference = token.NewFakeERC20()
		deps.Synth = token.NewFakeERC20()
		deps.Pool = venue.NewFake(vaultAddr)
		deps.Heights = chain.NewCounter(1)
		logrus.Warn("dry-run mode: in-memory collaborators, no chain access")
	} else {
		key, err := crypto.HexToECDSA(os.Getenv("VAULT_PRIVATE_KEY"))
		if err != nil {
			logrus.WithError(err).Fatal("parse VAULT_PRIVATE_KEY")
		}
		reference, err := token.NewERC20(cfg.Chain.RPCURL, common.HexToAddress(cfg.Vault.Asset), cfg.Chain.ChainID, key)
		if err != nil {
			logrus.WithError(err).Fatal("wire reference token")
		}
		synth, err := token.NewERC20(cfg.Chain.RPCURL, common.HexToAddress(cfg.Token.Synth), cfg.Chain.ChainID, key)
		if err != nil {
			logrus.WithError(err).Fatal("wire synthetic token")
		}
		pool, err := venue.NewAavePool(venue.AavePoolConfig{
			RPCURL:      cfg.Chain.RPCURL,
			PoolAddress: common.HexToAddress(cfg.Venue.Pool),
			AToken:      common.HexToAddress(cfg.Venue.AToken),
			ChainID:     cfg.Chain.ChainID,
		}, key)
		if err != nil {
			logrus.WithError(err).Fatal("wire yield venue")
		}
		heights, err := chain.NewEthHeights(cfg.Chain.RPCURL)
		if err != nil {
			logrus.WithError(err).Fatal("wire height source")
		}
		deps.Reference = reference
		deps.Synth = synth
		deps.Pool = pool
		deps.Heights = heights
	}

	v, err := vault.New(vault.Config{
		Address:        common.HexToAddress(cfg.Vault.Address),
		Asset:          common.HexToAddress(cfg.Vault.Asset),
		Admin:          admin,
		CooldownBlocks: cfg.Vault.CooldownBlocks,
		ProtocolFeeBps: cfg.Vault.ProtocolFeeBps,
		PythMaxAge:     cfg.Vault.PythValidTimePeriod,
	}, deps)
	if err != nil {
		logrus.WithError(err).Fatal("build vault")
	}

	if cfg.Chain.DryRun {
		// fixed 1:1 prices so the dry-run daemon can mint and redeem
		decimals := cfg.Oracle.PushDecimals
		info := oracle.PriceFeedInfo{Source: admin, Decimals: decimals}
		one := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
		if err := v.SetPriceFeed(admin, info, oracle.NewStaticPush(one, decimals)); err != nil {
			logrus.WithError(err).Fatal("set push feed")
		}
		if err := v.SetPullFeed(admin, oracle.NewStaticPull(100_000_000, -8)); err != nil {
			logrus.WithError(err).Fatal("set pull feed")
		}
	} else {
		info := oracle.PriceFeedInfo{
			Source:   common.HexToAddress(cfg.Oracle.PushFeed),
			Decimals: cfg.Oracle.PushDecimals,
		}
		push, err := oracle.NewChainlinkFeed(cfg.Chain.RPCURL, info)
		if err != nil {
			logrus.WithError(err).Fatal("wire push feed")
		}
		if err := v.SetPriceFeed(admin, info, push); err != nil {
			logrus.WithError(err).Fatal("set push feed")
		}
		if err := v.SetPullFeed(admin, oracle.NewPythFeed(cfg.Oracle.PythEndpoint, cfg.Oracle.PythPriceID)); err != nil {
			logrus.WithError(err).Fatal("set pull feed")
		}
	}

	debugCtx, debugCancel := context.WithCancel(context.Background())
	defer debugCancel()
	if cfg.HTTP.DebugListen != "" {
		if _, err := metrics.StartAsync(debugCtx, cfg.HTTP.DebugListen); err != nil {
			logrus.WithError(err).Fatal("start debug server")
		}
		logrus.WithField("listen", cfg.HTTP.DebugListen).Info("debug server up")
	}

	srv := &http.Server{
		Addr:    cfg.HTTP.Listen,
		Handler: server.New(server.Config{
			AssetDecimals: cfg.Token.AssetDecimals,
			SynthDecimals: cfg.Token.SynthDecimals,
		}, v, ev).Router(),
	}
	go func() {
		logrus.WithField("listen", cfg.HTTP.Listen).Info("monitoring API up")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("http server")
		}
	}()

	// persist the ledger periodically and on shutdown
	snapshotTicker := time.NewTicker(30 * time.Second)
	defer snapshotTicker.Stop()
	go func() {
		for range snapshotTicker.C {
			if err := saveLedger(db, led); err != nil {
				logrus.WithError(err).Warn("ledger snapshot failed")
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logrus.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if err := saveLedger(db, led); err != nil {
		logrus.WithError(err).Error("final ledger snapshot failed")
	}
}

func saveLedger(db *badger.DB, led *ledger.Ledger) error {
	raw, err := led.MarshalBinary()
	if err != nil {
		return err
	}
	return db.Update(func(txn *badger.Txn) error {
		return txn.Set(ledgerKey, raw)
	})
}

func loadLedger(db *badger.DB, led *ledger.Ledger) error {
	return db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(ledgerKey)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(led.UnmarshalBinary)
	})
}
