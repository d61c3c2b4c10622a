package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shellbox/shellbox/internal/api"
	"github.com/shellbox/shellbox/internal/auth"
	"github.com/shellbox/shellbox/internal/config"
	"github.com/shellbox/shellbox/internal/podman"
	"github.com/shellbox/shellbox/internal/sandbox"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	podmanClient, err := podman.NewClient()
	if err != nil {
		log.Fatalf("failed to initialize podman: %v", err)
	}
	version, err := podmanClient.Version(ctx)
	if err != nil {
		log.Fatalf("failed to get podman version: %v", err)
	}
	log.Printf("shellbox: using podman %s", version)

	mgr := sandbox.NewManager(sandbox.NewPodmanRuntime(podmanClient), sandbox.Options{
		MaxSandboxes:    cfg.MaxSandboxes,
		DefaultImage:    cfg.DefaultImage,
		ExecTimeout:     time.Duration(cfg.ExecTimeoutSec) * time.Second,
		AdmissionWait:   time.Duration(cfg.AdmissionWaitSec) * time.Second,
		TrajectoryLimit: cfg.TrajectoryLimit,
		DataDir:         cfg.DataDir,
	})

	ptyMgr := sandbox.NewPTYManager(podmanClient.BinaryPath(), podmanClient.AuthFile())
	defer ptyMgr.CloseAll()

	var issuer *auth.JWTIssuer
	if cfg.JWTSecret != "" {
		issuer = auth.NewJWTIssuer(cfg.JWTSecret)
		log.Println("shellbox: sandbox token issuer configured")
	}
	if cfg.APIKey == "" {
		log.Println("shellbox: no API key configured, authentication disabled")
	}
	if cfg.DataDir != "" {
		log.Printf("shellbox: event log data directory: %s", cfg.DataDir)
	}

	server := api.NewServer(mgr, ptyMgr, cfg.APIKey, issuer)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		log.Printf("shellbox: listening on %s (capacity %d)", addr, cfg.MaxSandboxes)
		if err := server.Start(addr); err != nil {
			log.Printf("shellbox: server stopped: %v", err)
		}
	}()

	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, syscall.SIGINT, syscall.SIGTERM)
	<-sigC

	log.Println("shellbox: shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Close(); err != nil {
		log.Printf("shellbox: closing server: %v", err)
	}
	ptyMgr.CloseAll()
	mgr.Shutdown(shutdownCtx)
	log.Println("shellbox: goodbye")
}
