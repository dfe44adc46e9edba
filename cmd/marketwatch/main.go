// Command marketwatch watches BSC and Ethereum DEX pair/pool creation and
// flags anomalous early trading activity, per SPEC_FULL.md. Structurally
// this main is rnts08-eth-watchtower's flag-parse/metrics-register/
// signal-wire/Run split, generalized from one chain to two chains run
// concurrently.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/daisy9542/meme-alert-bot/internal/aggregator"
	"github.com/daisy9542/meme-alert-bot/internal/alert"
	"github.com/daisy9542/meme-alert-bot/internal/chainconn"
	"github.com/daisy9542/meme-alert-bot/internal/config"
	"github.com/daisy9542/meme-alert-bot/internal/domain"
	"github.com/daisy9542/meme-alert-bot/internal/ethreader"
	"github.com/daisy9542/meme-alert-bot/internal/fdv"
	"github.com/daisy9542/meme-alert-bot/internal/gate"
	"github.com/daisy9542/meme-alert-bot/internal/ingress"
	"github.com/daisy9542/meme-alert-bot/internal/logging"
	"github.com/daisy9542/meme-alert-bot/internal/metrics"
	"github.com/daisy9542/meme-alert-bot/internal/notifier"
	"github.com/daisy9542/meme-alert-bot/internal/pricer"
	"github.com/daisy9542/meme-alert-bot/internal/priceoracle"
	"github.com/daisy9542/meme-alert-bot/internal/safety"
	"github.com/daisy9542/meme-alert-bot/internal/subscriber"
	"github.com/daisy9542/meme-alert-bot/internal/tax"
	"github.com/daisy9542/meme-alert-bot/internal/watchlist"
	"github.com/daisy9542/meme-alert-bot/internal/window"
)

const (
	maintenanceInterval = 30 * time.Second
	rpcStaleAfter        = 3 * time.Minute
)

// wellKnownBaseTokens fills in the on-chain addresses domain.baseTokens
// only names by symbol, the same way rnts08-eth-watchtower hardcodes
// signature and router addresses directly in code rather than through
// configuration.
func wellKnownBaseTokens() {
	domain.SetBaseTokenAddress(domain.ChainBSC, "WBNB", common.HexToAddress("0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"))
	domain.SetBaseTokenAddress(domain.ChainBSC, "USDT", common.HexToAddress("0x55d398326f99059fF775485246999027B3197955"))
	domain.SetBaseTokenAddress(domain.ChainBSC, "USDC", common.HexToAddress("0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d"))
	domain.SetBaseTokenAddress(domain.ChainBSC, "DAI", common.HexToAddress("0x1AF3F329e8BE154074D8769D1FFa4eE058B1DBc3"))
	domain.SetBaseTokenAddress(domain.ChainBSC, "BUSD", common.HexToAddress("0xe9e7CEA3DedcA5984780Bafc599bD69ADd087D56"))

	domain.SetBaseTokenAddress(domain.ChainETH, "WETH", common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"))
	domain.SetBaseTokenAddress(domain.ChainETH, "USDT", common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"))
	domain.SetBaseTokenAddress(domain.ChainETH, "USDC", common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"))
	domain.SetBaseTokenAddress(domain.ChainETH, "DAI", common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"))
}

// chainRuntime bundles the collaborators wired for one chain.
type chainRuntime struct {
	chain   domain.Chain
	pool    *chainconn.Pool
	client  ethreader.ChainClient
	reader  *ethreader.Reader
	pricer  *pricer.Pricer
	checker *safety.Checker
	subDeps subscriber.Deps

	lastActivity sync.Map // single entry under key "t", value: time.Time
}

func (r *chainRuntime) touch() {
	r.lastActivity.Store("t", time.Now())
}

func (r *chainRuntime) last() time.Time {
	if v, ok := r.lastActivity.Load("t"); ok {
		return v.(time.Time)
	}
	return time.Now()
}

func main() {
	metricsAddr := flag.String("metrics", "", "Address to serve Prometheus metrics (overrides METRICS_ADDR)")
	testConfig := flag.Bool("t", false, "Test configuration and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Configuration error: %v\n", err)
		os.Exit(1)
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Printf("Configuration validation failed: %v\n", err)
		os.Exit(1)
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *testConfig {
		fmt.Println("Configuration OK")
		os.Exit(0)
	}

	logger := logging.Default()
	wellKnownBaseTokens()

	m := metrics.New()
	metrics.Register(m)

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		logger.Printf("metrics server listening on %s", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, nil); err != nil {
			logger.Printf("metrics server error: %v", err)
		}
	}()

	logger.Println("marketwatch starting")

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Println("shutdown signal received, stopping...")
		rootCancel()
	}()

	agg := aggregator.New(cfg.AggregatorBaseURL, m)
	oracle := priceoracle.New(agg)
	taxEst := tax.New()
	wl := watchlist.New(logger, m)
	windows := window.New(m)
	fdvTracker := fdv.New()
	slots := ingress.NewSlotBudget(cfg.MaxActiveMarkets, m)
	dedup := ingress.NewDedup(5*time.Minute, m)

	runtimes := make(map[domain.Chain]*chainRuntime)
	for _, chain := range []domain.Chain{domain.ChainBSC, domain.ChainETH} {
		rawURL := cfg.BSCWSS
		if chain == domain.ChainETH {
			rawURL = cfg.ETHWSS
		}

		pool := chainconn.New(chain, rawURL, m, logger)
		client, err := pool.DialWithRetry(rootCtx)
		if err != nil {
			log.Fatalf("marketwatch: could not connect to %s: %v", chain, err)
		}

		reader := ethreader.New(client)
		pr := pricer.New(reader, oracle.GetBaseTokenUSD)
		checker := safety.NewChecker(reader, oracle.GetBaseTokenUSD, taxEst, m)

		rt := &chainRuntime{
			chain:   chain,
			pool:    pool,
			client:  client,
			reader:  reader,
			pricer:  pr,
			checker: checker,
		}
		rt.touch()
		runtimes[chain] = rt
	}

	logNotifier := notifier.NewLogNotifier(logger)
	thresholds := alert.Thresholds{
		MinLiqUSD:           cfg.MinLiqUSD,
		BuyVol1mUSD:         cfg.BuyVol1mUSD,
		BuyTxs1m:            cfg.BuyTxs1m,
		VolumeMultiplier:    cfg.VolumeMultiplier,
		FDVMultiplier:       cfg.FDVMultiplier,
		WhaleSingleBuyUSD:   cfg.WhaleSingleBuyUSD,
		WhaleLiquidityRatio: cfg.WhaleLiquidityRatio,
	}

	// One AlertEvaluator per chain: each needs the reader/pricer dialed
	// against that chain's own RPC pool, even though they share the
	// process-wide window/FDV/watchlist state keyed by MarketKey.
	resources := make(map[domain.Chain]gate.ChainResources)
	for chain, rt := range runtimes {
		evaluator := alert.New(alert.Deps{
			Windows:   windows,
			FDV:       fdvTracker,
			Watchlist: wl,
			Reader:    rt.reader,
			Pricer:    rt.pricer,
			Spot:      oracle,
			Notifier:  logNotifier,
			Metrics:   m,
			Log:       logger,
		}, thresholds)

		rt.subDeps = subscriber.Deps{
			ChainClient: rt.client,
			Reader:      rt.reader,
			Pricer:      rt.pricer,
			Spot:        oracle,
			Windows:     windows,
			Taxes:       taxEst,
			Watchlist:   wl,
			Alerts:      &activityTrackingAlertSink{sink: evaluator, rt: rt},
			Metrics:     m,
			Log:         logger,
		}
		resources[chain] = gate.ChainResources{Checker: rt.checker, SubDeps: rt.subDeps}
	}

	pipeline := gate.New(resources, wl, slots, agg, cfg.MinLiqUSD, cfg.MaxTaxPct, m, logger)

	candidates := make(chan domain.Candidate, 256)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-rootCtx.Done():
				return
			case cand := <-candidates:
				pipeline.Admit(rootCtx, cand)
			}
		}
	}()

	var watchers []*ingress.FactoryWatcher
	for _, factory := range domain.Factories {
		rt, ok := runtimes[factory.Chain]
		if !ok {
			continue
		}
		fw, err := ingress.StartFactoryWatcher(rootCtx, rt.client, factory, candidates, m, logger)
		if err != nil {
			logger.Printf("failed to start factory watcher %s/%s: %v", factory.Chain, factory.Type, err)
			continue
		}
		watchers = append(watchers, fw)
	}

	var pollers []*ingress.TrendingPoller
	for chain, slug := range map[domain.Chain]string{domain.ChainBSC: "bsc", domain.ChainETH: "ethereum"} {
		pollers = append(pollers, ingress.StartTrendingPoller(rootCtx, agg, ingress.TrendingConfig{
			Chain:     chain,
			ChainSlug: slug,
			Interval:  cfg.TrendingPollInterval,
			TopK:      cfg.TrendingTopK,
			MinLiqUSD: cfg.TrendingMinLiqUSD,
		}, dedup, candidates, m, logger))
	}

	for chain, rt := range runtimes {
		wg.Add(1)
		go func(chain domain.Chain, rt *chainRuntime) {
			defer wg.Done()
			rt.pool.Watchdog(rootCtx, rt.client, rt.last, rpcStaleAfter, func() {
				logger.Printf("chain %s RPC stalled, reconnect required (manual restart)", chain)
			})
		}(chain, rt)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(maintenanceInterval)
		defer ticker.Stop()
		for {
			select {
			case <-rootCtx.Done():
				return
			case <-ticker.C:
				now := time.Now()
				wl.SweepIdle(now, pipeline.Stop)
				windows.SweepIdle(now)
				pipeline.RetryPending(rootCtx)
				wl.LogSummary()
			}
		}
	}()

	<-rootCtx.Done()

	for _, fw := range watchers {
		fw.Stop()
	}
	for _, p := range pollers {
		p.Stop()
	}
	wg.Wait()
	for _, rt := range runtimes {
		rt.client.Close()
	}
	logger.Println("graceful shutdown complete")
}

// activityTrackingAlertSink wraps the AlertEvaluator so every dispatched
// trade also counts as chain activity for the watchdog's staleness check,
// without giving the subscriber package a dependency on chainconn.
type activityTrackingAlertSink struct {
	sink subscriber.AlertSink
	rt   *chainRuntime
}

func (a *activityTrackingAlertSink) Evaluate(ctx context.Context, req domain.TradeAlertRequest) {
	a.rt.touch()
	a.sink.Evaluate(ctx, req)
}
