package main

import (
	"context"
	"encoding/json"
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

	"github.com/santhosh-tekuri/jsonschema/v5"

	persistlog "skirmish.gg/internal/persistence/log"
	"skirmish.gg/internal/sim/arena"
	"skirmish.gg/internal/sim/catalog"
	"skirmish.gg/internal/sim/tuning"
	"skirmish.gg/internal/transport/ws"
)

func main() {
	var (
		addr        = flag.String("addr", ":8080", "http listen address")
		configDir   = flag.String("configs", "./configs", "config directory")
		matchesPath = flag.String("matches", "", "path to matches.yaml (default: <configs>/matches.yaml)")
		tuningPath  = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		schemaDir   = flag.String("schemas", "./schemas", "protocol schema directory (empty to disable edge validation)")
		dataDir     = flag.String("data", "./data", "runtime data directory")
		disableLogs = flag.Bool("disable_tick_logs", false, "disable per-match tick logs")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cat, err := catalog.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalog: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}

	mp := strings.TrimSpace(*matchesPath)
	if mp == "" {
		mp = filepath.Join(*configDir, "matches.yaml")
	}
	cfg, err := arena.Load(mp)
	if err != nil {
		logger.Fatalf("load matches: %v", err)
	}

	var newSink arena.SinkFactory
	if !*disableLogs {
		base := filepath.Join(*dataDir, "matches")
		newSink = func(matchID string) arena.TickSink {
			return persistlog.NewTickLogger(base, matchID)
		}
	}

	mgr, err := arena.NewManager(cat, tune, logger, newSink)
	if err != nil {
		logger.Fatalf("arena: %v", err)
	}
	defer mgr.Close()

	for _, spec := range cfg.Matches {
		roster, set := spec.Build()
		if _, err := mgr.Create(roster, set); err != nil {
			logger.Fatalf("create match %s: %v", spec.ID, err)
		}
	}

	var cmdSchema *jsonschema.Schema
	if strings.TrimSpace(*schemaDir) != "" {
		path := filepath.Join(*schemaDir, "command.schema.json")
		cmdSchema, err = jsonschema.Compile(path)
		if err != nil {
			if os.IsNotExist(err) {
				logger.Printf("command schema not found (%s); edge validation disabled", path)
			} else {
				logger.Fatalf("compile command schema: %v", err)
			}
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		fmt.Fprintf(rw, "# HELP skirmish_match_tick Current match tick.\n")
		fmt.Fprintf(rw, "# TYPE skirmish_match_tick gauge\n")
		fmt.Fprintf(rw, "# HELP skirmish_match_status Match status (0=waiting 1=running 2=ended).\n")
		fmt.Fprintf(rw, "# TYPE skirmish_match_status gauge\n")
		for _, id := range mgr.MatchIDs() {
			rt := mgr.Runtime(id)
			if rt == nil {
				continue
			}
			m := rt.Match()
			fmt.Fprintf(rw, "skirmish_match_tick{match=%q} %d\n", id, m.CurrentTick())
			fmt.Fprintf(rw, "skirmish_match_status{match=%q} %d\n", id, int(m.Status()))
		}
	})
	mux.HandleFunc("/v1/matches", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		type ref struct {
			ID     string `json:"id"`
			Tick   uint64 `json:"tick"`
			Status string `json:"status"`
			Winner string `json:"winner,omitempty"`
		}
		out := []ref{}
		for _, id := range mgr.MatchIDs() {
			rt := mgr.Runtime(id)
			if rt == nil {
				continue
			}
			m := rt.Match()
			out = append(out, ref{
				ID:     id,
				Tick:   m.CurrentTick(),
				Status: m.Status().String(),
				Winner: string(m.Winner()),
			})
		}
		_ = json.NewEncoder(rw).Encode(out)
	})
	mux.HandleFunc("/v1/ws", ws.NewServer(mgr, logger, cmdSchema).Handler())
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)

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

	logger.Printf("listening on %s (%d matches)", *addr, len(cfg.Matches))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
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
