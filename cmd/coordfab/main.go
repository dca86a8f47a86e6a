// Command coordfab runs the coordination fabric: it loads configuration,
// opens the durable store, and serves forge webhooks through the
// coordinator gateway until told to stop.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/swebotic/coordfab/internal/bus"
	"github.com/swebotic/coordfab/internal/complexity"
	"github.com/swebotic/coordfab/internal/config"
	"github.com/swebotic/coordfab/internal/coordinator"
	"github.com/swebotic/coordfab/internal/escalation"
	"github.com/swebotic/coordfab/internal/events"
	"github.com/swebotic/coordfab/internal/forge"
	"github.com/swebotic/coordfab/internal/metrics"
	"github.com/swebotic/coordfab/internal/notifications"
	"github.com/swebotic/coordfab/internal/planner"
	"github.com/swebotic/coordfab/internal/prworkflow"
	"github.com/swebotic/coordfab/internal/ratelimit"
	"github.com/swebotic/coordfab/internal/registry"
	"github.com/swebotic/coordfab/internal/review"
	"github.com/swebotic/coordfab/internal/sandbox"
	"github.com/swebotic/coordfab/internal/scheduler"
	"github.com/swebotic/coordfab/internal/server"
	"github.com/swebotic/coordfab/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "configs/coordfab.yaml", "fabric configuration file")
	forgeToken := flag.String("forge-token", os.Getenv("COORDFAB_FORGE_TOKEN"), "bearer token for the forge API")
	addr := flag.String("addr", "", "override the configured HTTP listen address")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		if loaded, err := config.Load(*configPath); err == nil {
			cfg = loaded
		} else if !os.IsNotExist(err) {
			log.Fatalf("coordfab: load config: %v", err)
		}
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	st, err := store.Open(cfg.Store.SQLitePath, cfg.Store.PlanDir)
	if err != nil {
		log.Fatalf("coordfab: open store: %v", err)
	}
	defer st.Close()

	lim := ratelimit.New(cfg.RateLimits, st)
	lim.ObservePlatformLimits(5000, time.Now().Add(time.Hour)) // assume full headroom until the first forge response arrives

	fc := forge.New(cfg.Forge.BaseURL, *forgeToken, cfg.Forge.APIVersion, lim, http.DefaultClient)

	reg := registry.New(st)
	if err := reg.LoadFromStore(); err != nil {
		log.Fatalf("coordfab: hydrate agent registry: %v", err)
	}

	sb, err := sandbox.New(cfg.Sandbox)
	if err != nil {
		log.Fatalf("coordfab: build sandbox: %v", err)
	}
	reviewEngine := review.New(sb, nil)
	qualityTracker := review.NewQualityTracker(st)
	workflow := prworkflow.New(st, fc, reviewEngine, cfg.Forge.BotLogin).WithQualityTracker(qualityTracker)

	sched := scheduler.New(reg, st)
	pl := planner.New()

	var analyzer complexity.Analyzer = complexity.NewRuleBased()
	if cfg.Complexity.LLMAssisted {
		analyzer = complexity.NewLLMAssisted(complexity.NewRuleBased(), nil)
	}

	gw := coordinator.New(analyzer, fc, reg, pl, sched)

	eventBus := events.NewBus()
	collector := metrics.NewCollector()
	notifier := notifications.NewManager(notifications.Config{
		AppID:          "coordfab",
		DashboardURL:   "http://" + cfg.Server.Addr,
		EnableToast:    true,
		EnableTerminal: true,
		EnableBanner:   true,
	})

	if cfg.EventBus.NATSURL != "" {
		client, err := bus.Connect(cfg.EventBus.NATSURL)
		if err != nil {
			log.Fatalf("coordfab: connect to event bus: %v", err)
		}
		defer client.Close()
		bridge := bus.NewBridge(client, eventBus, log.Default())
		bridgeStop := make(chan struct{})
		defer close(bridgeStop)
		if err := bridge.Start(bridgeStop); err != nil {
			log.Fatalf("coordfab: start event bus bridge: %v", err)
		}
		log.Printf("coordfab: bridged to event bus at %s", cfg.EventBus.NATSURL)
	}

	srv := server.New(gw, reg, st, lim, collector, notifier, eventBus, log.Default()).
		WithEscalationThresholds(escalation.Thresholds{
			MaxFilesSimple:      cfg.Escalation.MaxFilesSimple,
			MaxComponentsSimple: cfg.Escalation.MaxComponentsSimple,
			MaxFailedAttempts:   cfg.Escalation.MaxFailedAttempts,
			MaxStuckTime:        time.Duration(cfg.Escalation.MaxStuckTimeMinutes * float64(time.Minute)),
		}).
		WithPRWorkflow(workflow, fc)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go srv.Run(ctx)

	httpServer := &http.Server{Addr: cfg.Server.Addr, Handler: srv}
	go func() {
		log.Printf("coordfab: listening on %s", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("coordfab: server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("coordfab: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("coordfab: shutdown: %v", err)
	}
}
