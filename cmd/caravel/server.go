package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/caravel-io/caravel/pkg/config"
	"github.com/caravel-io/caravel/pkg/events"
	"github.com/caravel-io/caravel/pkg/lock"
	"github.com/caravel-io/caravel/pkg/log"
	"github.com/caravel-io/caravel/pkg/manager"
	"github.com/caravel-io/caravel/pkg/metrics"
	"github.com/caravel-io/caravel/pkg/planner"
	"github.com/caravel-io/caravel/pkg/ratelimit"
	"github.com/caravel-io/caravel/pkg/storage"
	"github.com/caravel-io/caravel/pkg/terraform"
	"github.com/caravel-io/caravel/pkg/worker"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the orchestrator server",
	Long: `Run the Caravel orchestrator: storage, distributed locking, the
deployment manager, a pool of worker agents, and the metrics endpoint.

With no redis_addr configured the server runs single-node with an
in-process lock backend.`,
	RunE: runServer,
}

func init() {
	serverCmd.Flags().StringP("config", "c", "", "Path to YAML config file")
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open store: %v", err)
	}
	defer store.Close()

	var locker lock.Locker
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(cmd.Context()).Err(); err != nil {
			return fmt.Errorf("failed to reach redis at %s: %v", cfg.RedisAddr, err)
		}
		locker = lock.NewRedisLocker(client)
		fmt.Printf("✓ Distributed locking via redis (%s)\n", cfg.RedisAddr)
	} else {
		locker = lock.NewLocalLocker()
		fmt.Println("✓ In-process locking (single node)")
	}

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	mgr := manager.New(store, locker, planner.New(), broker)

	collector := metrics.NewCollector(mgr, 15*time.Second)
	collector.Start()
	defer collector.Stop()

	executor, err := terraform.NewSimulator(cfg.Terraform.BaseDir)
	if err != nil {
		return fmt.Errorf("failed to create executor: %v", err)
	}
	runner := worker.NewTerraformRunner(executor, executor.BaseDir())

	agents := make([]*worker.Agent, 0, cfg.Worker.Count)
	for i := 0; i < cfg.Worker.Count; i++ {
		agent := worker.NewAgent(worker.Config{
			PollInterval:  cfg.PollInterval(),
			MaxConcurrent: int64(cfg.Worker.MaxConcurrent),
		}, store, runner, mgr, broker)
		agent.Start(cmd.Context())
		agents = append(agents, agent)
	}
	fmt.Printf("✓ %d worker agent(s) started\n", len(agents))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	// Event log: mirror every domain event into the structured log.
	sub := broker.Subscribe()
	group.Go(func() error {
		defer broker.Unsubscribe(sub)
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case event, ok := <-sub:
				if !ok {
					return nil
				}
				log.WithComponent("events").Info().
					Str("event_type", event.Type).
					Str("correlation_id", event.CorrelationID).
					Msg("domain event")
			}
		}
	})

	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: rateLimited(metrics.Handler(), ratelimit.New(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.BurstSize)),
	}
	group.Go(func() error {
		fmt.Printf("✓ Metrics listening on %s\n", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	fmt.Println()
	fmt.Println("Server is running. Press Ctrl+C to stop.")

	<-ctx.Done()
	fmt.Println("\nShutting down...")

	for _, agent := range agents {
		agent.Stop()
	}
	if err := group.Wait(); err != nil {
		return fmt.Errorf("shutdown error: %v", err)
	}

	fmt.Println("✓ Shutdown complete")
	return nil
}

// rateLimited throttles the handler per client ip.
func rateLimited(next http.Handler, limiter *ratelimit.Limiter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			client = r.RemoteAddr
		}
		if !limiter.Allow(client) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
