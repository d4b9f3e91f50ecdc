package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"solana-sniper/internal/config"
	"solana-sniper/internal/dedupe"
	"solana-sniper/internal/dispatcher"
	"solana-sniper/internal/domain"
	"solana-sniper/internal/evaluate"
	"solana-sniper/internal/executor"
	"solana-sniper/internal/idhash"
	"solana-sniper/internal/observability"
	"solana-sniper/internal/solana"
	"solana-sniper/internal/source"
	"solana-sniper/internal/storage"
	chstore "solana-sniper/internal/storage/clickhouse"
	"solana-sniper/internal/storage/memory"
	"solana-sniper/internal/storage/migrations"
	pgstore "solana-sniper/internal/storage/postgres"
	"solana-sniper/internal/wallet"
)

const lamportsPerSOL = 1_000_000_000

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: sniper <command> [flags]

Commands:
  start           run the sniping pipeline until SIGINT/SIGTERM or 'stop'
  stop            signal a running instance via its pidfile
  create-wallets  provision new wallet keypair files
  check-balance   print on-chain balances of provisioned wallets
  feed-wallet     transfer SOL between provisioned wallets
  snipe           wait for one specific mint to list and buy it
  report          summarize persisted trades and attempt trails
`)
}

func main() {
	_ = godotenv.Load()

	logger := log.New(os.Stdout, "[sniper] ", log.LstdFlags)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "start":
		err = runStart(logger, os.Args[2:])
	case "stop":
		err = runStop(logger, os.Args[2:])
	case "create-wallets":
		err = runCreateWallets(logger, os.Args[2:])
	case "check-balance":
		err = runCheckBalance(logger, os.Args[2:])
	case "feed-wallet":
		err = runFeedWallet(logger, os.Args[2:])
	case "snipe":
		err = runSnipe(logger, os.Args[2:])
	case "report":
		err = runReport(logger, os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Error: %v", err)
	}
	logger.Println("Done")
}

// runStart runs the full detection-to-execution pipeline.
func runStart(logger *log.Logger, args []string) error {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	fs.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(logger, cfg.MetricsAddr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go handleSignals(logger, cancel, done)

	if err := writePidFile(cfg.PidFile); err != nil {
		return fmt.Errorf("write pidfile: %w", err)
	}
	defer os.Remove(cfg.PidFile)

	rpc := solana.NewHTTPClient(cfg.RPC.HTTPURL)

	wsCfg := solana.DefaultWSConfig()
	wsCfg.ReconnectDelay = cfg.RPC.ReconnectDelay
	wsCfg.MaxReconnectDelay = cfg.RPC.MaxReconnectDelay
	ws, err := solana.NewWSClient(ctx, cfg.RPC.WSURL, &wsCfg)
	if err != nil {
		return fmt.Errorf("connect websocket: %w", err)
	}
	defer ws.Close()

	walletStore, tradeStore, attemptStore, cleanup, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	pool, err := wallet.NewPool(ctx, walletStore, rpc,
		wallet.WithMinBalance(cfg.Wallets.MinBalanceLamports()),
		wallet.WithLeaseWait(cfg.Wallets.LeaseWait),
		wallet.WithRefreshInterval(cfg.Wallets.RefreshInterval),
	)
	if err != nil {
		return fmt.Errorf("load wallet pool: %w", err)
	}
	defer pool.Close()
	pool.StartRefresher(ctx)

	engine, err := executor.NewEngine(rpc, pool, attemptStore, tradeStore, executor.Config{
		MaxSpendLamports:  cfg.Execution.MaxSpendLamports(),
		SlippageTolerance: cfg.Execution.SlippageTolerance,
		MaxRetries:        cfg.Execution.MaxRetries,
		RetryDelay:        cfg.Execution.RetryDelay,
		AttemptTimeout:    cfg.Execution.AttemptTimeout,
	})
	if err != nil {
		return fmt.Errorf("create execution engine: %w", err)
	}

	eval := evaluate.New(evaluate.FilterConfig{
		MinQuoteLamports: cfg.Filters.MinQuoteLamports(),
		MaxPairAge:       cfg.Filters.MaxPairAge,
		Allowlist:        cfg.Filters.Allowlist,
		Denylist:         cfg.Filters.Denylist,
		ExecutionWindow:  cfg.Execution.ExecutionWindow,
	})
	seen := dedupe.NewSeenSet(cfg.Dedup.Window, cfg.Dedup.Buckets)

	src := source.New(ws, rpc,
		source.WithBufferSize(cfg.Source.BufferSize),
		source.WithMaxOutage(cfg.Source.MaxOutage),
	)
	events, err := src.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to pool events: %w", err)
	}

	logger.Printf("Pipeline running: cap %.3f SOL/trade, slippage %.0f%%, liquidity floor %.2f SOL",
		cfg.Execution.MaxSOLPerTrade, cfg.Execution.SlippageTolerance*100, cfg.Filters.MinQuoteSOL)

	disp := dispatcher.New(eval, seen, pool, engine, tradeStore,
		dispatcher.WithShutdownGrace(cfg.Execution.ShutdownGrace))
	disp.Run(ctx, events)

	close(done)
	if srcErr := src.Err(); srcErr != nil {
		return fmt.Errorf("event source failed: %w", srcErr)
	}
	return nil
}

// openStores picks storage backends from config: postgres for wallets
// and trades and clickhouse for the attempt audit log when DSNs are
// set, the file keystore and in-memory stores otherwise.
func openStores(ctx context.Context, cfg *config.Config) (storage.WalletStore, storage.TradeStore, storage.AttemptStore, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	var walletStore storage.WalletStore
	var tradeStore storage.TradeStore = memory.NewTradeStore()
	var attemptStore storage.AttemptStore = memory.NewAttemptStore()

	if cfg.DB.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.DB.PostgresDSN)
		if err != nil {
			return nil, nil, nil, cleanup, fmt.Errorf("connect to postgres: %w", err)
		}
		cleanups = append(cleanups, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			cleanup()
			return nil, nil, nil, func() {}, fmt.Errorf("run postgres migrations: %w", err)
		}
		walletStore = pgstore.NewWalletStore(pool)
		tradeStore = pgstore.NewTradeStore(pool)
	} else {
		ks, err := wallet.NewKeystore(cfg.Wallets.Dir)
		if err != nil {
			return nil, nil, nil, cleanup, fmt.Errorf("open keystore: %w", err)
		}
		walletStore = ks
	}

	if cfg.DB.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.DB.ClickhouseDSN)
		if err != nil {
			cleanup()
			return nil, nil, nil, func() {}, fmt.Errorf("run clickhouse migrations: %w", err)
		}
		cleanups = append(cleanups, func() { conn.Close() })
		attemptStore = chstore.NewAttemptStore(conn)
	}

	return walletStore, tradeStore, attemptStore, cleanup, nil
}

// runStop signals the running instance recorded in the pidfile.
func runStop(logger *log.Logger, args []string) error {
	fs := flag.NewFlagSet("stop", flag.ExitOnError)
	pidFile := fs.String("pid-file", "sniper.pid", "Pidfile of the running instance")
	fs.Parse(args)

	data, err := os.ReadFile(*pidFile)
	if err != nil {
		return fmt.Errorf("read pidfile: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return fmt.Errorf("parse pidfile %s: %w", *pidFile, err)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal process %d: %w", pid, err)
	}
	logger.Printf("Sent SIGTERM to pid %d", pid)
	return nil
}

// runCreateWallets provisions new keypair files in the keystore.
func runCreateWallets(logger *log.Logger, args []string) error {
	fs := flag.NewFlagSet("create-wallets", flag.ExitOnError)
	count := fs.Int("count", 1, "Number of wallets to create")
	dir := fs.String("dir", "", "Keystore directory (defaults to config)")
	fs.Parse(args)

	if *count < 1 {
		return fmt.Errorf("-count must be at least 1")
	}

	ks, err := openKeystore(*dir)
	if err != nil {
		return err
	}
	wallets, err := ks.CreateWallets(*count)
	if err != nil {
		return fmt.Errorf("create wallets: %w", err)
	}
	for _, w := range wallets {
		logger.Printf("Created wallet %s", w.Pubkey)
	}
	return nil
}

// runCheckBalance prints on-chain balances for one wallet or all.
func runCheckBalance(logger *log.Logger, args []string) error {
	fs := flag.NewFlagSet("check-balance", flag.ExitOnError)
	index := fs.Int("wallet", -1, "Wallet index, -1 for all")
	dir := fs.String("dir", "", "Keystore directory (defaults to config)")
	fs.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ks, err := openKeystore(*dir)
	if err != nil {
		return err
	}
	rpc := solana.NewHTTPClient(cfg.RPC.HTTPURL)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var wallets []*domain.Wallet
	if *index >= 0 {
		w, err := ks.GetByIndex(ctx, *index)
		if err != nil {
			return fmt.Errorf("load wallet %d: %w", *index, err)
		}
		wallets = append(wallets, w)
	} else {
		wallets, err = ks.List(ctx)
		if err != nil {
			return fmt.Errorf("list wallets: %w", err)
		}
	}
	if len(wallets) == 0 {
		return errors.New("no wallets provisioned, run create-wallets first")
	}

	for _, w := range wallets {
		lamports, err := rpc.GetBalance(ctx, w.Pubkey)
		if err != nil {
			logger.Printf("%s: balance fetch failed: %v", w.Pubkey, err)
			continue
		}
		logger.Printf("%s: %.6f SOL", w.Pubkey, float64(lamports)/lamportsPerSOL)
	}
	return nil
}

// runFeedWallet moves SOL between two provisioned wallets.
func runFeedWallet(logger *log.Logger, args []string) error {
	fs := flag.NewFlagSet("feed-wallet", flag.ExitOnError)
	from := fs.Int("from", -1, "Source wallet index")
	to := fs.Int("to", -1, "Destination wallet index")
	amount := fs.Float64("amount", 0, "Amount in SOL")
	dir := fs.String("dir", "", "Keystore directory (defaults to config)")
	fs.Parse(args)

	if *from < 0 || *to < 0 || *amount <= 0 {
		return fmt.Errorf("-from, -to and a positive -amount are required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ks, err := openKeystore(*dir)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	src, err := ks.GetByIndex(ctx, *from)
	if err != nil {
		return fmt.Errorf("load source wallet %d: %w", *from, err)
	}
	dst, err := ks.GetByIndex(ctx, *to)
	if err != nil {
		return fmt.Errorf("load destination wallet %d: %w", *to, err)
	}
	signer, err := solana.KeypairFromBytes(src.PrivateKey)
	if err != nil {
		return fmt.Errorf("decode source keypair: %w", err)
	}

	rpc := solana.NewHTTPClient(cfg.RPC.HTTPURL)
	bh, err := rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return fmt.Errorf("fetch blockhash: %w", err)
	}

	lamports := uint64(*amount * lamportsPerSOL)
	tx, err := solana.BuildTransaction(signer, bh.Blockhash,
		solana.SystemTransfer(src.Pubkey, dst.Pubkey, lamports))
	if err != nil {
		return fmt.Errorf("build transfer: %w", err)
	}

	sig, err := rpc.SendTransaction(ctx, tx)
	if err != nil {
		return fmt.Errorf("submit transfer: %w", err)
	}
	logger.Printf("Submitted %s: %.6f SOL %s -> %s", sig, *amount, src.Pubkey, dst.Pubkey)

	if err := awaitSignature(ctx, rpc, sig); err != nil {
		return err
	}
	logger.Printf("Transfer confirmed")
	return nil
}

// runSnipe waits for one specific mint to list on Raydium and buys it
// with one wallet, then exits.
func runSnipe(logger *log.Logger, args []string) error {
	fs := flag.NewFlagSet("snipe", flag.ExitOnError)
	mint := fs.String("mint", "", "Base mint to wait for")
	index := fs.Int("wallet", 0, "Wallet index to buy with")
	amount := fs.Float64("amount", 0, "Spend cap in SOL (defaults to config)")
	dir := fs.String("dir", "", "Keystore directory (defaults to config)")
	fs.Parse(args)

	if *mint == "" {
		return fmt.Errorf("-mint is required")
	}
	if err := solana.ValidatePubkey(*mint); err != nil {
		return fmt.Errorf("invalid mint: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *amount > 0 {
		cfg.Execution.MaxSOLPerTrade = *amount
	}

	ks, err := openKeystore(*dir)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go handleSignals(logger, cancel, done)
	defer close(done)

	w, err := ks.GetByIndex(ctx, *index)
	if err != nil {
		return fmt.Errorf("load wallet %d: %w", *index, err)
	}

	// A single-wallet pool keeps the lease bookkeeping identical to
	// the full pipeline.
	store := memory.NewWalletStore()
	if err := store.Insert(ctx, w); err != nil {
		return fmt.Errorf("stage wallet: %w", err)
	}

	rpc := solana.NewHTTPClient(cfg.RPC.HTTPURL)
	pool, err := wallet.NewPool(ctx, store, rpc,
		wallet.WithMinBalance(cfg.Wallets.MinBalanceLamports()))
	if err != nil {
		return fmt.Errorf("load wallet pool: %w", err)
	}
	defer pool.Close()

	trades := memory.NewTradeStore()
	attempts := memory.NewAttemptStore()
	engine, err := executor.NewEngine(rpc, pool, attempts, trades, executor.Config{
		MaxSpendLamports:  cfg.Execution.MaxSpendLamports(),
		SlippageTolerance: cfg.Execution.SlippageTolerance,
		MaxRetries:        cfg.Execution.MaxRetries,
		RetryDelay:        cfg.Execution.RetryDelay,
		AttemptTimeout:    cfg.Execution.AttemptTimeout,
	})
	if err != nil {
		return fmt.Errorf("create execution engine: %w", err)
	}

	wsCfg := solana.DefaultWSConfig()
	wsCfg.ReconnectDelay = cfg.RPC.ReconnectDelay
	wsCfg.MaxReconnectDelay = cfg.RPC.MaxReconnectDelay
	ws, err := solana.NewWSClient(ctx, cfg.RPC.WSURL, &wsCfg)
	if err != nil {
		return fmt.Errorf("connect websocket: %w", err)
	}
	defer ws.Close()

	src := source.New(ws, rpc,
		source.WithBufferSize(cfg.Source.BufferSize),
		source.WithMaxOutage(cfg.Source.MaxOutage),
	)
	events, err := src.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to pool events: %w", err)
	}

	logger.Printf("Waiting for %s to list, buying up to %.3f SOL with wallet %s",
		*mint, cfg.Execution.MaxSOLPerTrade, w.Pubkey)

	for ev := range events {
		if ev.BaseMint != *mint {
			continue
		}
		logger.Printf("Pool %s detected for %s, executing", ev.PoolAddress, *mint)

		h, err := pool.Lease(ctx)
		if err != nil {
			return fmt.Errorf("lease wallet: %w", err)
		}
		opp := &domain.Opportunity{
			Event:    ev,
			DedupKey: idhash.ComputeDedupKey(ev.BaseMint, ev.QuoteMint),
			Deadline: time.Now().Add(cfg.Execution.ExecutionWindow),
		}
		res := engine.Execute(ctx, opp, h)
		if res.Status != domain.StatusConfirmed {
			return fmt.Errorf("snipe %s: %s (%s)", *mint, res.Status, res.Reason)
		}
		logger.Printf("Confirmed %s in %d attempts", res.TxSignature, res.Attempts)
		return nil
	}

	if srcErr := src.Err(); srcErr != nil {
		return fmt.Errorf("event source failed: %w", srcErr)
	}
	return ctx.Err()
}

// runReport summarizes persisted trades, optionally with the full
// attempt trail for one dedup key.
func runReport(logger *log.Logger, args []string) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	since := fs.Duration("since", 24*time.Hour, "Report window")
	dedupKey := fs.String("dedup-key", "", "Also print the attempt trail for this dedup key")
	fs.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.DB.PostgresDSN == "" {
		return errors.New("report needs db.postgres_dsn, trades are not persisted otherwise")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	_, tradeStore, attemptStore, cleanup, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	end := time.Now().UnixMilli()
	start := end - since.Milliseconds()
	trades, err := tradeStore.GetByTimeRange(ctx, start, end)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}

	var spent uint64
	byStatus := make(map[domain.ExecutionStatus]int)
	for _, t := range trades {
		byStatus[t.Status]++
		spent += t.SpentLamports
		logger.Printf("%s  %-9s  %-24s  mint=%s attempts=%d spent=%.4f SOL  %s",
			time.UnixMilli(t.CompletedAt).Format(time.RFC3339),
			t.Status, t.DedupKey, t.BaseMint, t.Attempts,
			float64(t.SpentLamports)/lamportsPerSOL, t.Reason)
	}
	logger.Printf("Last %v: %d trades (%d confirmed, %d failed, %d abandoned), %.4f SOL spent",
		*since, len(trades),
		byStatus[domain.StatusConfirmed], byStatus[domain.StatusFailed], byStatus[domain.StatusAbandoned],
		float64(spent)/lamportsPerSOL)

	if *dedupKey != "" {
		attempts, err := attemptStore.GetByDedupKey(ctx, *dedupKey)
		if err != nil {
			return fmt.Errorf("query attempts: %w", err)
		}
		for _, a := range attempts {
			logger.Printf("attempt %d  %-9s  wallet=%s sig=%s %s",
				a.Seq, a.Outcome, a.Wallet, a.TxSignature, a.Err)
		}
	}
	return nil
}

func openKeystore(dir string) (*wallet.Keystore, error) {
	if dir == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		dir = cfg.Wallets.Dir
	}
	ks, err := wallet.NewKeystore(dir)
	if err != nil {
		return nil, fmt.Errorf("open keystore %s: %w", dir, err)
	}
	return ks, nil
}

func serveMetrics(logger *log.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	logger.Printf("Starting metrics server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Printf("Metrics server error: %v", err)
	}
}

// handleSignals cancels ctx on the first SIGINT/SIGTERM and forces
// exit on a second signal or a stuck shutdown.
func handleSignals(logger *log.Logger, cancel context.CancelFunc, done <-chan struct{}) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
	cancel()

	select {
	case sig := <-sigCh:
		logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
		os.Exit(1)
	case <-time.After(30 * time.Second):
		logger.Println("Graceful shutdown timed out after 30s, forcing exit")
		os.Exit(1)
	case <-done:
	}
}

func writePidFile(path string) error {
	if path == "" {
		return nil
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644)
}

func awaitSignature(ctx context.Context, rpc solana.RPCClient, sig string) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("confirmation wait: %w", ctx.Err())
		case <-ticker.C:
		}
		statuses, err := rpc.GetSignatureStatuses(ctx, []string{sig})
		if err != nil || len(statuses) == 0 || statuses[0] == nil {
			continue
		}
		if statuses[0].Err != nil {
			return fmt.Errorf("transaction %s failed on chain: %v", sig, statuses[0].Err)
		}
		if statuses[0].Confirmed() {
			return nil
		}
	}
}
