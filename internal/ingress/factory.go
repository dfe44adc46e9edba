// Package ingress implements C9 Ingress: the factory-event watcher and
// trending poller that feed candidates into the Watchlist, plus the
// subscription slot budget and trending dedup set, per spec.md §4.1.
package ingress

import (
	"context"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/daisy9542/meme-alert-bot/internal/domain"
	"github.com/daisy9542/meme-alert-bot/internal/ethreader"
	"github.com/daisy9542/meme-alert-bot/internal/logging"
	"github.com/daisy9542/meme-alert-bot/internal/metrics"
)

// FactoryWatcher subscribes to one factory contract's new-pair/new-pool
// events and emits candidates, directly generalizing
// rnts08-eth-watchtower's subscribeLogs helper (query + handler + name,
// shared subscribe/dispatch/reconnect loop) from "one subscription per
// signature shared across all tracked contracts" to "one subscription per
// factory."
type FactoryWatcher struct {
	client     ethreader.ChainClient
	factory    domain.FactoryContract
	candidates chan<- domain.Candidate
	metrics    *metrics.Metrics
	log        *logging.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// StartFactoryWatcher installs the subscription and begins dispatching.
func StartFactoryWatcher(ctx context.Context, client ethreader.ChainClient, factory domain.FactoryContract, candidates chan<- domain.Candidate, m *metrics.Metrics, log *logging.Logger) (*FactoryWatcher, error) {
	subCtx, cancel := context.WithCancel(ctx)
	fw := &FactoryWatcher{client: client, factory: factory, candidates: candidates, metrics: m, log: log, cancel: cancel}

	var topic common.Hash
	if factory.Type == domain.MarketV2 {
		topic = ethreader.V2PairCreatedTopic
	} else {
		topic = ethreader.V3PoolCreatedTopic
	}
	query := ethereum.FilterQuery{
		Addresses: []common.Address{factory.Address},
		Topics:    [][]common.Hash{{topic}},
	}

	logsChan := make(chan types.Log)
	sub, err := client.SubscribeFilterLogs(subCtx, query, logsChan)
	if err != nil {
		cancel()
		return nil, err
	}

	fw.wg.Add(1)
	go fw.loop(subCtx, sub, logsChan)
	return fw, nil
}

// Stop cancels the subscription and waits for the dispatch loop to exit.
func (fw *FactoryWatcher) Stop() {
	fw.cancel()
	fw.wg.Wait()
}

func (fw *FactoryWatcher) loop(ctx context.Context, sub ethereum.Subscription, logsChan <-chan types.Log) {
	defer fw.wg.Done()
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			if err != nil && fw.log != nil {
				fw.log.Printf("factory watcher %s/%s subscription error: %v", fw.factory.Chain, fw.factory.Type, err)
			}
			return
		case l := <-logsChan:
			fw.handleLog(ctx, l)
		}
	}
}

func (fw *FactoryWatcher) handleLog(ctx context.Context, l types.Log) {
	var cand domain.Candidate
	switch fw.factory.Type {
	case domain.MarketV2:
		ev, err := ethreader.DecodeV2PairCreated(l)
		if err != nil {
			return
		}
		cand = domain.Candidate{
			Key:    domain.NewMarketKey(fw.factory.Chain, domain.MarketV2, ev.Pair),
			Token0: ev.Token0,
			Token1: ev.Token1,
			Source: "factory",
		}
	default:
		ev, err := ethreader.DecodeV3PoolCreated(l)
		if err != nil {
			return
		}
		fee := ev.Fee
		cand = domain.Candidate{
			Key:    domain.NewMarketKey(fw.factory.Chain, domain.MarketV3, ev.Pool),
			Token0: ev.Token0,
			Token1: ev.Token1,
			Fee:    &fee,
			Source: "factory",
		}
	}
	if fw.metrics != nil {
		fw.metrics.CandidatesIngested.WithLabelValues(fw.factory.Chain.String(), "factory").Inc()
	}
	select {
	case fw.candidates <- cand:
	case <-ctx.Done():
	}
}
