// internal/bot/runner.go
package bot

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/quorlin/swapcord/internal/config"
	"github.com/quorlin/swapcord/internal/dispatch"
	"github.com/quorlin/swapcord/internal/jupiter"
	"github.com/quorlin/swapcord/internal/limiter"
	"github.com/quorlin/swapcord/internal/logger"
	"github.com/quorlin/swapcord/internal/settings"
	"github.com/quorlin/swapcord/internal/signer"
	"github.com/quorlin/swapcord/internal/storage"
	"github.com/quorlin/swapcord/internal/storage/postgres"
	"github.com/quorlin/swapcord/internal/swap"
	"github.com/quorlin/swapcord/internal/wallet"
)

// maxConcurrentSwaps caps swap executions across all sessions; quote and
// metadata traffic is governed separately by the limiter.
const maxConcurrentSwaps = 4

// Runner wires configuration into the full service graph and owns its
// lifetime.
type Runner struct {
	log      *logger.Logger
	zl       *zap.Logger
	cfg      *config.Config
	router   *Router
	store    storage.Storage
	shutdown *ShutdownHandler
}

func NewRunner() *Runner {
	return &Runner{}
}

// Initialize loads configuration and builds every service. Nothing makes a
// network call yet; the first session does.
func (r *Runner) Initialize(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	r.cfg = cfg

	logCfg := logger.DefaultConfig()
	logCfg.Development = cfg.DebugLogging
	log, err := logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	r.log = log
	r.zl = log.Logger

	wallets, err := wallet.Load(cfg.WalletsPath)
	if err != nil {
		return fmt.Errorf("load wallets: %w", err)
	}
	r.zl.Info("loaded wallets", zap.Int("count", wallets.Len()))

	disp := dispatch.New(r.zl)
	gate := limiter.New(r.zl, limiter.Config{
		Spacing:       time.Duration(cfg.RPCDelay) * time.Millisecond,
		MaxInflight:   int64(cfg.MaxInflight),
		JobRetries:    uint(cfg.JobRetries),
		JobRetryDelay: time.Duration(cfg.JobRetryDelay) * time.Millisecond,
	})

	jup := jupiter.NewClient(disp, gate, jupiter.Config{
		APIEndpoints: cfg.JupiterAPIList,
		TokenAPIURL:  cfg.TokenAPIURL,
	}, r.zl)

	selector := dispatch.NewConnectionSelector(disp, cfg.RPCList, r.zl)
	signClient := signer.NewClient(cfg.SignerURL, r.zl)
	pipeline := swap.NewPipeline(signClient, selector, r.zl)

	r.store = storage.Noop{}
	if cfg.PostgresURL != "" {
		store, err := postgres.NewStorage(cfg.PostgresURL, r.zl)
		if err != nil {
			return fmt.Errorf("init storage: %w", err)
		}
		if err := store.RunMigrations(); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		r.store = store
	}

	deps := Deps{
		Jupiter:        jup,
		Pipeline:       pipeline,
		Balances:       NewRPCBalances(disp, gate, cfg.RPCList, r.zl),
		Recorder:       r.store,
		Cap:            limiter.NewLocalCap(maxConcurrentSwaps),
		Logger:         r.zl,
		AnnounceTrades: cfg.AnnounceTrades,
	}

	router, err := NewRouter(deps, wallets, settings.Default(), r.zl)
	if err != nil {
		return fmt.Errorf("init router: %w", err)
	}
	r.router = router

	r.shutdown = NewShutdownHandler(r.zl, 30*time.Second)
	r.shutdown.AddFunc("logger", r.log.Sync)
	r.shutdown.AddFunc("storage", r.store.Close)
	r.shutdown.AddFunc("sessions", func() error {
		router.Wait()
		return nil
	})

	r.zl.Info("runner initialized",
		zap.Int("rpc_endpoints", len(cfg.RPCList)),
		zap.Int("jupiter_endpoints", len(cfg.JupiterAPIList)),
		zap.Bool("persistence", cfg.PostgresURL != ""))
	return nil
}

// Router exposes the command router to the chat transport.
func (r *Runner) Router() *Router { return r.router }

// WaitForShutdown blocks until a termination signal, then closes services.
func (r *Runner) WaitForShutdown() {
	r.shutdown.HandleShutdown()
}
