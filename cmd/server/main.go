package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	persistlog "voxelstream.ai/internal/persistence/log"
	"voxelstream.ai/internal/sim/tuning"
	"voxelstream.ai/internal/sim/world"
	"voxelstream.ai/internal/sim/world/feature/streaming/worker"
	"voxelstream.ai/internal/transport/observer"
	"voxelstream.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id (metrics label and index key)")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		disableDB  = flag.Bool("disable_db", false, "disable the telemetry index")
		seed       = flag.Int64("seed", 0, "override the tuning seed (0 keeps it)")
		async      = flag.Bool("async", true, "generate queued chunks on a worker pool")
		workers    = flag.Int("workers", 2, "generation workers when -async")
		tier       = flag.String("tier", "", "performance tier to apply at startup (default: tuning tier)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)
	worldLogger := log.New(os.Stdout, "[world] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	if *seed != 0 {
		tune.Seed = *seed
	}
	if strings.TrimSpace(*tier) != "" {
		tune.Tier = strings.TrimSpace(*tier)
	}
	cfg, err := tune.World()
	if err != nil {
		logger.Fatalf("tuning: %v", err)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	// Optional: read-model index backend. Nothing in the stream reads it back.
	idx, err := openRuntimeIndex(worldDir, *worldID, *disableDB, logger)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertConfig(tune); err != nil {
			logger.Printf("index backend: upsert config: %v", err)
		}
	}

	eventLog := persistlog.NewEventLogger(worldDir)
	editLog := persistlog.NewEditLogger(worldDir)
	defer eventLog.Close()
	defer editLog.Close()

	opts := world.Options{
		Logger:     worldLogger,
		EventSinks: []world.EventSink{eventLog},
		EditSinks:  []world.EditSink{editLog},
	}
	if idx != nil {
		opts.EventSinks = append(opts.EventSinks, idx)
		opts.EditSinks = append(opts.EditSinks, idx)
	}
	if *async {
		opts.Executor = worker.NewDispatcher(*workers, 64)
	}

	w, err := world.New(cfg, opts)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}
	if tune.Tier != "" {
		if err := w.ApplyTier(tune.Tier); err != nil {
			logger.Fatalf("tier: %v", err)
		}
	}
	logger.Printf("world=%s seed=%d biome=%s tier=%s cache=%d async=%v", *worldID, cfg.Seed, cfg.Biome, tune.Tier, cfg.CacheCapacity, *async)

	ctx, cancel := signalContext()
	defer cancel()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeWorldMetrics(rw, *worldID, w.Metrics())
		writeIndexMetrics(rw, idx)
	})

	enableAdminHTTP := envBool("VS_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("VS_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only inspection endpoints (read-only).
		obsSrv := observer.NewServer(w, logger)
		mux.HandleFunc("/admin/v1/stream/state", obsSrv.StateHandler())
		mux.HandleFunc("/admin/v1/stream/chunks", obsSrv.ChunksHandler())
		mux.HandleFunc("/admin/v1/stream/tuning", obsSrv.ConfigHandler(tune))
	} else {
		logger.Printf("admin endpoints disabled (VS_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (VS_ENABLE_PPROF_HTTP=false)")
	}
	wsLogger := log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lmicroseconds)
	wsSrv := ws.NewServer(w, wsLogger)
	wsSrv.SetEditLimit(time.Duration(tune.RateLimits.EditWindowMS)*time.Millisecond, tune.RateLimits.EditMax)
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	cancel()
	<-runDone
	w.Close()
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func writeWorldMetrics(rw http.ResponseWriter, worldID string, m world.Metrics) {
	// Minimal Prometheus exposition format.
	fmt.Fprintf(rw, "# HELP voxelstream_world_tick Current stream tick.\n")
	fmt.Fprintf(rw, "# TYPE voxelstream_world_tick gauge\n")
	fmt.Fprintf(rw, "voxelstream_world_tick{world=%q} %d\n", worldID, m.Tick)

	fmt.Fprintf(rw, "# HELP voxelstream_chunks Chunk counts by residency state.\n")
	fmt.Fprintf(rw, "# TYPE voxelstream_chunks gauge\n")
	fmt.Fprintf(rw, "voxelstream_chunks{world=%q,state=%q} %d\n", worldID, "resident", m.Resident)
	fmt.Fprintf(rw, "voxelstream_chunks{world=%q,state=%q} %d\n", worldID, "visible", m.Visible)
	fmt.Fprintf(rw, "voxelstream_chunks{world=%q,state=%q} %d\n", worldID, "fading_in", m.FadingIn)
	fmt.Fprintf(rw, "voxelstream_chunks{world=%q,state=%q} %d\n", worldID, "fading_out", m.FadingOut)
	fmt.Fprintf(rw, "voxelstream_chunks{world=%q,state=%q} %d\n", worldID, "dirty", m.Dirty)
	fmt.Fprintf(rw, "voxelstream_chunks{world=%q,state=%q} %d\n", worldID, "cached", m.Cached)
	fmt.Fprintf(rw, "voxelstream_chunks{world=%q,state=%q} %d\n", worldID, "abandoned", m.Abandoned)

	fmt.Fprintf(rw, "# HELP voxelstream_cache_capacity Hibernation cache bound.\n")
	fmt.Fprintf(rw, "# TYPE voxelstream_cache_capacity gauge\n")
	fmt.Fprintf(rw, "voxelstream_cache_capacity{world=%q} %d\n", worldID, m.CacheCapacity)

	fmt.Fprintf(rw, "# HELP voxelstream_queue_depth Pending generation requests.\n")
	fmt.Fprintf(rw, "# TYPE voxelstream_queue_depth gauge\n")
	fmt.Fprintf(rw, "voxelstream_queue_depth{world=%q} %d\n", worldID, m.Queued)

	inflight := 0
	if m.InFlight {
		inflight = 1
	}
	fmt.Fprintf(rw, "# HELP voxelstream_inflight Whether a generation request is outstanding.\n")
	fmt.Fprintf(rw, "# TYPE voxelstream_inflight gauge\n")
	fmt.Fprintf(rw, "voxelstream_inflight{world=%q} %d\n", worldID, inflight)

	fmt.Fprintf(rw, "# HELP voxelstream_ledger_records Modification ledger size.\n")
	fmt.Fprintf(rw, "# TYPE voxelstream_ledger_records gauge\n")
	fmt.Fprintf(rw, "voxelstream_ledger_records{world=%q} %d\n", worldID, m.LedgerRecords)

	fmt.Fprintf(rw, "# HELP voxelstream_subscribers Attached observer sessions.\n")
	fmt.Fprintf(rw, "# TYPE voxelstream_subscribers gauge\n")
	fmt.Fprintf(rw, "voxelstream_subscribers{world=%q} %d\n", worldID, m.Subscribers)

	fmt.Fprintf(rw, "# HELP voxelstream_step_ms Last tick step duration in milliseconds.\n")
	fmt.Fprintf(rw, "# TYPE voxelstream_step_ms gauge\n")
	fmt.Fprintf(rw, "voxelstream_step_ms{world=%q} %.3f\n", worldID, m.StepMS)

	t := m.Totals
	fmt.Fprintf(rw, "# HELP voxelstream_events_total Stream lifecycle transitions.\n")
	fmt.Fprintf(rw, "# TYPE voxelstream_events_total counter\n")
	for _, c := range []struct {
		kind string
		n    uint64
	}{
		{"generated", t.Generated},
		{"retrieved", t.Retrieved},
		{"hibernated", t.Hibernated},
		{"destroyed", t.Destroyed},
		{"evicted", t.Evicted},
		{"stale", t.Stale},
		{"failed", t.Failures},
		{"abandoned", t.Abandoned},
		{"rebuilt", t.Rebuilds},
		{"edit", t.Edits},
		{"border", t.Borders},
	} {
		fmt.Fprintf(rw, "voxelstream_events_total{world=%q,kind=%q} %d\n", worldID, c.kind, c.n)
	}
}
