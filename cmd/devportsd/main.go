package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/projectdiscovery/goflags"

	"github.com/sageships/DevPorts/internal/config"
	"github.com/sageships/DevPorts/internal/server"
	"github.com/sageships/DevPorts/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	flagSet := goflags.NewFlagSet()
	flagSet.SetDescription("devportsd watches local development server ports for the DevPorts menu bar shell.")
	flagSet.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address of the control API")
	flagSet.StringVar(&cfg.DBPath, "db", cfg.DBPath, "path to the sqlite database")
	flagSet.DurationVar(&cfg.RefreshInterval, "interval", cfg.RefreshInterval, "auto refresh interval")
	if err := flagSet.Parse(); err != nil {
		log.Fatalf("flags: %v", err)
	}

	st, err := store.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := st.EnsureAdmin(ctx, cfg.AdminUser, cfg.AdminPassword); err != nil {
		log.Fatalf("ensure admin: %v", err)
	}

	srv, err := server.New(cfg, st)
	if err != nil {
		log.Fatalf("server init: %v", err)
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Handler(),
	}

	go func() {
		log.Printf("devportsd listening on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	// 优雅地关闭服务
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
