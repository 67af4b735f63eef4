package node

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/w3f-community/iroha/chains/iroha"
	"github.com/w3f-community/iroha/chains/substrate"
	"github.com/w3f-community/iroha/monitor"
	"github.com/w3f-community/iroha/service/relay"
	"github.com/w3f-community/iroha/service/signer"
	"github.com/w3f-community/iroha/service/watcher"
	leveldbstore "github.com/w3f-community/iroha/store/leveldb"
	"github.com/w3f-community/iroha/util"
)

/*
	Run starts the bridge node and blocks until ctx is canceled or a watcher
	fails beyond its restart tolerance. Startup errors (bad config, unusable
	key material, unreachable chain endpoints) are returned before any
	background work begins.
*/
func Run(ctx context.Context, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	keyring, err := signer.LoadKeyring(cfg.SignerKeyPath)
	if err != nil {
		return fmt.Errorf("can't load signer keys: %w", err)
	}

	st, err := leveldbstore.Open(cfg.StateDir)
	if err != nil {
		return err
	}
	defer st.Close()

	irohaAdapter, err := iroha.NewAdapter(ctx, &iroha.Config{
		Endpoint:       cfg.IrohaEndpoint,
		BridgeAccount:  cfg.BridgeAccount,
		PollInterval:   cfg.pollInterval(),
		FetchTolerance: cfg.SubscriptionTolerance,
	})
	if err != nil {
		return err
	}

	substrateAdapter, err := substrate.NewAdapter(ctx, &substrate.Config{
		Endpoint:       cfg.SubstrateEndpoint,
		PollInterval:   cfg.pollInterval(),
		FetchTolerance: cfg.SubscriptionTolerance,
	})
	if err != nil {
		return err
	}
	defer substrateAdapter.Close()

	engine := relay.NewEngine(&relay.Config{
		RetryMaxAttempts: cfg.RetryMaxAttempts,
		RetryBaseDelay:   cfg.retryBaseDelay(),
		RetryMaxDelay:    cfg.retryMaxDelay(),
		Assets:           cfg.Assets,
		Workers:          cfg.Workers,
	}, st, keyring, irohaAdapter, substrateAdapter)

	// Resume whatever the previous process left unfinished before new
	// observations start flowing.
	if err := engine.Recover(ctx); err != nil {
		return err
	}

	go monitor.NewMetricsServer(cfg.Monitoring).Serve(ctx)

	watcherCfg := &watcher.Config{
		RestartDelay: cfg.watcherRestartDelay(),
		MaxRestarts:  cfg.watcherMaxRestarts(),
	}
	irohaWatcher := util.StartJob(ctx, "iroha-watcher",
		watcher.New(watcherCfg, irohaAdapter, st, engine).Run)
	substrateWatcher := util.StartJob(ctx, "substrate-watcher",
		watcher.New(watcherCfg, substrateAdapter, st, engine).Run)

	logrus.Info("Bridge node is running")

	select {
	case <-ctx.Done():
	case <-irohaWatcher.Stopped():
	case <-substrateWatcher.Stopped():
	}

	logrus.Info("Shutting down")

	// Watchers fully stopped first so nothing can enter the engine anymore,
	// then drain in-flight transfers to a consistent checkpoint.
	irohaWatcher.Stop(util.FinishedContext())
	substrateWatcher.Stop(util.FinishedContext())
	<-irohaWatcher.Stopped()
	<-substrateWatcher.Stopped()

	engine.Stop(cfg.drainTimeout())

	if err := irohaWatcher.Error(); err != nil {
		return err
	}
	return substrateWatcher.Error()
}
