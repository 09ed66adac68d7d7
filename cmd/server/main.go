package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"matchd/api"
	"matchd/config"
	"matchd/domain/book"
	"matchd/engine"
	"matchd/events"
	"matchd/fees"
	"matchd/infra/logging"
	"matchd/infra/sequence"
	"matchd/infra/wal"
	"matchd/ledger"
	"matchd/marketdata"
	"matchd/settlement"
	"matchd/snapshot"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New()
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// ---------------- Ledger ----------------

	store, err := ledger.OpenStore(filepath.Join(cfg.DataDir, "ledger"))
	if err != nil {
		logger.Fatal("ledger store init failed", zap.Error(err))
	}
	defer store.Close()

	led, err := ledger.NewPersistentLedger(store)
	if err != nil {
		logger.Fatal("ledger restore failed", zap.Error(err))
	}

	// ---------------- Outbox ----------------

	outbox, err := events.OpenOutbox(filepath.Join(cfg.DataDir, "outbox"))
	if err != nil {
		logger.Fatal("outbox init failed", zap.Error(err))
	}
	defer outbox.Close()

	// ---------------- WAL ----------------

	walDir := filepath.Join(cfg.DataDir, "wal")
	w, err := wal.Open(wal.Config{
		Dir:         walDir,
		SegmentSize: cfg.WALSegmentSize,
	})
	if err != nil {
		logger.Fatal("WAL init failed", zap.Error(err))
	}
	defer w.Close()

	// ---------------- Recovery ----------------

	orderBook := book.New()
	eng := engine.New(orderBook)
	seqGen := sequence.New(0)

	snapDir := filepath.Join(cfg.DataDir, "snapshots")
	snapSeq, err := snapshot.Load(snapDir, orderBook)
	if err != nil {
		logger.Fatal("snapshot load failed", zap.Error(err))
	}
	if snapSeq > 0 {
		seqGen.Reset(snapSeq)
		logger.Info("snapshot restored", zap.Uint64("seq", snapSeq))
	}

	if err := settlement.Replay(walDir, snapSeq, eng, seqGen, logger); err != nil {
		logger.Fatal("WAL replay failed", zap.Error(err))
	}
	if err := settlement.Reconcile(orderBook, led, cfg.Market.BaseAsset, cfg.Market.QuoteAsset); err != nil {
		logger.Fatal("ledger reconciliation failed", zap.Error(err))
	}

	// ---------------- Market data ----------------

	ticks := marketdata.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.TicksTopic, logger)
	defer ticks.Close()

	// ---------------- Coordinator ----------------

	feeCalc, err := fees.NewCalculator(cfg.Market.FeeBps)
	if err != nil {
		logger.Fatal("fee config invalid", zap.Error(err))
	}

	hub := api.NewHub(logger)

	coord, err := settlement.NewCoordinator(
		settlement.Config{
			BaseAsset:    cfg.Market.BaseAsset,
			QuoteAsset:   cfg.Market.QuoteAsset,
			FeeRecipient: cfg.Market.FeeRecipient,
		},
		eng,
		seqGen,
		led,
		feeCalc,
		w,
		outbox,
		settlement.Hooks{
			OnEvent: hub.Broadcast,
			OnTrade: func(t engine.Trade) {
				ticks.Publish(ctx, marketdata.Tick{
					TakerID: t.TakerID,
					MakerID: t.MakerID,
					Price:   t.Price,
					Amount:  t.Amount,
				})
			},
		},
		logger,
	)
	if err != nil {
		logger.Fatal("coordinator init failed", zap.Error(err))
	}

	// ---------------- Jobs ----------------

	audit, err := events.NewBroadcaster(outbox, cfg.Kafka.Brokers, cfg.Kafka.AuditTopic, cfg.Kafka.DrainInterval, logger)
	if err != nil {
		logger.Fatal("broadcaster init failed", zap.Error(err))
	}
	defer audit.Close()
	go audit.Run(ctx)

	go coord.RunSnapshotJob(ctx, snapDir, cfg.SnapshotInterval, outbox)

	// ---------------- API ----------------

	srv := api.NewServer(coord, led, hub, logger)
	logger.Info("starting",
		zap.String("pair", cfg.Market.BaseAsset+"/"+cfg.Market.QuoteAsset),
		zap.Int64("fee_bps", cfg.Market.FeeBps),
	)
	if err := srv.Start(cfg.ListenAddr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
