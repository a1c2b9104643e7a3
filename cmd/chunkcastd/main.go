// Command chunkcastd runs the RTMP ingest/relay server: it wires
// configuration, metrics, the stream registry, command dispatch, and
// the admin HTTP API together and serves until interrupted.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"chunkcast/internal/adminapi"
	"chunkcast/internal/auth"
	"chunkcast/internal/command"
	"chunkcast/internal/config"
	"chunkcast/internal/conn"
	"chunkcast/internal/handler"
	"chunkcast/internal/listener"
	"chunkcast/internal/metrics"
	"chunkcast/internal/registry"
	"chunkcast/internal/session"
)

func main() {
	log.Println("starting chunkcastd")

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	tr := session.NewTracker()

	reg := registry.New(registry.Config{
		BroadcastCapacity:    cfg.BroadcastCapacity,
		PublisherGracePeriod: cfg.PublisherGracePeriod,
		IdleStreamTimeout:    cfg.IdleStreamTimeout,
		CleanupInterval:      cfg.CleanupInterval,
		MaxGopSize:           cfg.GopBufferMaxSize,
		GopBufferEnabled:     cfg.GopBufferEnabled,
	}, m)

	var h handler.Handler = handler.Default{}
	var tokens *auth.Manager
	if cfg.PublishTokensRequired {
		tokens = auth.New(cfg.DefaultTokenExpiration, cfg.MaxTokenExpiration)
		h = auth.Gate{Handler: h, Manager: tokens}
		log.Println("publish tokens required for every publish attempt")
	}

	disp := command.New(command.Config{
		ChunkSize:        cfg.ChunkSize,
		WindowAckSize:    cfg.WindowAckSize,
		PeerBandwidth:    cfg.PeerBandwidth,
		Strict:           cfg.Strict,
		AllowAMF3Command: cfg.AllowAMF3Command,
	}, reg, h, m)

	ln := listener.New(listener.Config{
		BindAddr:       cfg.BindAddr,
		MaxConnections: cfg.MaxConnections,
		TCPNoDelay:     cfg.TCPNoDelay,
		Conn: conn.Config{
			Strict:            cfg.Strict,
			ConnectionTimeout: cfg.ConnectionTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
	}, disp, reg, h, m, tr)

	go reg.RunCleanupLoop(ctx, func(removed []registry.Key) {
		for _, key := range removed {
			log.Printf("registry: swept expired stream %s", key)
		}
	})

	go func() {
		if err := ln.Serve(ctx); err != nil {
			log.Printf("rtmp listener stopped: %v", err)
		}
	}()

	admin := adminapi.New(adminapi.Config{
		Registry:       reg,
		Tokens:         tokens,
		Sessions:       tr,
		Metrics:        m,
		RTMPAddr:       "rtmp://" + cfg.BindAddr,
		MetricsEnabled: cfg.MetricsEnabled,
	})

	log.Printf("rtmp bind: %s, admin api: %s", cfg.BindAddr, cfg.AdminAddr)
	if err := admin.Run(cfg.AdminAddr); err != nil {
		log.Fatalf("admin api failed: %v", err)
	}
}
