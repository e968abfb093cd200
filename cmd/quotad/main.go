package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/quotalab/quotad/pkg/api"
	"github.com/quotalab/quotad/pkg/config"
	"github.com/quotalab/quotad/pkg/engine"
	"github.com/quotalab/quotad/pkg/provider"
	"github.com/quotalab/quotad/pkg/provider/registry"
	"github.com/quotalab/quotad/pkg/store"
	redisstore "github.com/quotalab/quotad/pkg/store/redis"
)

func main() {
	// Credentials commonly live in a .env next to the daemon.
	_ = godotenv.Load()

	cfg, err := LoadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "quotad: %v\n", err)
		os.Exit(2)
	}

	if cfg.LogDir != "" {
		log.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogDir, "quotad.log"),
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}))
	}
	log.SetFlags(0)
	log.Printf(`{"level":"info","msg":"system_started","component":"quotad"}`)

	if err := config.WriteDefault(cfg.AccountsPath); err != nil {
		log.Printf(`{"level":"fatal","msg":"accounts_init_failed","error":"%v"}`, err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Printf(`{"level":"fatal","msg":"store_init_failed","error":"%v"}`, err)
		os.Exit(1)
	}
	defer st.Close()
	log.Printf(`{"level":"info","msg":"store_initialized","path":"%s"}`, cfg.DBPath)

	// Cycle states go to Redis when configured, SQLite otherwise.
	// Fetch history always stays in SQLite.
	var states store.CycleStateStore = st
	if cfg.RedisAddr != "" {
		rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		states = redisstore.NewStateStore(rdb)
		defer rdb.Close()
		log.Printf(`{"level":"info","msg":"redis_state_store","addr":"%s"}`, cfg.RedisAddr)
	}

	loadCtx, loadCancel := context.WithTimeout(context.Background(), 10*time.Second)
	learned, err := states.LoadAll(loadCtx)
	loadCancel()
	if err != nil {
		log.Printf(`{"level":"warn","msg":"state_load_failed","error":"%v"}`, err)
		learned = nil
	}

	orch := engine.NewOrchestrator(registry.BuildAll(), learned)
	orch.SetLogf(log.Printf)
	proj := engine.NewProjection()

	var d *daemon
	manager, err := config.NewManager(cfg.AccountsPath, log.Printf, func(accounts []provider.Account) {
		log.Printf(`{"level":"info","msg":"accounts_reloaded","count":%d}`, len(accounts))
		if d != nil {
			d.RefreshAll(context.Background())
		}
	})
	if err != nil {
		log.Printf(`{"level":"fatal","msg":"accounts_load_failed","error":"%v"}`, err)
		os.Exit(1)
	}
	defer manager.Close()

	d = newDaemon(manager, orch, proj, states, st, cfg.PollInterval, log.Printf)

	srv := api.NewServer(proj, d, manager, st, cfg.Addr)
	go func() {
		if err := srv.Start(); err != nil {
			log.Printf(`{"level":"fatal","msg":"server_failed","error":"%v"}`, err)
			os.Exit(1)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d.Run(ctx)

	log.Printf(`{"level":"info","msg":"shutdown_initiated"}`)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Printf(`{"level":"error","msg":"server_stop_failed","error":"%v"}`, err)
	}

	// Final flush so the learning engine resumes where it left off.
	if err := states.SaveAll(shutdownCtx, orch.States()); err != nil {
		log.Printf(`{"level":"error","msg":"final_state_flush_failed","error":"%v"}`, err)
	}

	log.Printf(`{"level":"info","msg":"shutdown_complete"}`)
}
