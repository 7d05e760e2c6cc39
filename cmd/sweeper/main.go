package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rollcall/internal/attendance"
	"rollcall/internal/config"
	"rollcall/internal/notify"
	"rollcall/internal/store"
)

// Sweeper flips sessions whose check-in window has lapsed and publishes
// the expiry events. The API enforces expiry on read regardless; running
// the sweeper only bounds how stale the is_expired flag can get.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	if cfg.StoreBackend == "memory" {
		log.Fatal("sweeper requires the postgres store backend; the memory store is process-local and is swept by the API itself")
	}

	openCtx, openCancel := context.WithTimeout(ctx, 10*time.Second)
	db, err := store.Open(openCtx, cfg.DatabaseURL)
	openCancel()
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var pub notify.Publisher
	if cfg.NotifyBackend == "memory" {
		log.Println("WARNING: memory notify backend in a standalone sweeper; expiry events will not reach anyone")
		pub = notify.NewInMemory()
	} else {
		pub = notify.NewRedisPublisher(redisClient.Client, "")
	}

	svc := attendance.NewService(attendance.NewRepository(db.Client), nil, pub, attendance.Config{
		Window:         cfg.SessionWindow,
		DefaultRadiusM: cfg.GeofenceRadiusM,
		AccuracyWarnM:  cfg.AccuracyWarnM,
	})

	log.Printf("sweeper started, checking every %s", cfg.SweepInterval)
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("sweeper stopped")
			return
		case <-ticker.C:
			n, err := svc.ExpireDueSessions(ctx, cfg.SweepBatch)
			if err != nil {
				log.Printf("sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("expired %d session(s)", n)
			}
		}
	}
}
