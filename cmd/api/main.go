package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/config"
	"rollcall/internal/httpapi"
	"rollcall/internal/httpmiddleware"
	"rollcall/internal/identity"
	"rollcall/internal/metrics"
	"rollcall/internal/notify"
	"rollcall/internal/schedule"
	"rollcall/internal/semester"
	"rollcall/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stores. The memory backend serves demos and tests; everything else
	// goes through Postgres.
	var (
		db        *store.DB
		att       attendance.Store
		semesters semester.Store
		meetings  schedule.Store
	)
	if cfg.StoreBackend == "memory" {
		log.Println("using in-memory store (single process, non-durable)")
		att = attendance.NewMemStore()
		semesters = semester.NewMemStore()
		meetings = schedule.NewMemStore()
	} else {
		openCtx, openCancel := context.WithTimeout(ctx, 10*time.Second)
		var err error
		db, err = store.Open(openCtx, cfg.DatabaseURL)
		openCancel()
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			return err
		}
		att = attendance.NewRepository(db.Client)
		semesters = semester.NewRepository(db.Client)
		meetings = schedule.NewRepository(db.Client)
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var pub notify.Publisher
	if cfg.NotifyBackend == "memory" {
		pub = notify.NewInMemory()
	} else {
		pub = notify.NewRedisPublisher(redisClient.Client, "")
	}

	// With no identity service the engine falls back to its built-in rule:
	// only the class's own lecturer may manage its sessions.
	var authz attendance.Authorizer
	if !cfg.IdentitySkip {
		idc := identity.New(cfg.IdentityServiceURL, false)
		if err := idc.Health(ctx); err != nil {
			log.Printf("WARNING: identity service not reachable: %v", err)
		}
		authz = idc
	}

	svc := attendance.NewService(att, authz, pub, attendance.Config{
		Window:         cfg.SessionWindow,
		DefaultRadiusM: cfg.GeofenceRadiusM,
		AccuracyWarnM:  cfg.AccuracyWarnM,
	})

	// Expiry sweep shares the process so the memory backend gets expiry
	// events too; cmd/sweeper covers deployments that want it separate.
	go sweepLoop(ctx, svc, cfg.SweepInterval, cfg.SweepBatch)

	r := gin.New()

	r.Use(gin.Recovery())

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))

	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))

	r.Use(securityHeaders())

	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		dbHealthy := db == nil || db.Healthy(c.Request.Context())
		redisHealthy := redisClient.Healthy(c.Request.Context())
		status := http.StatusOK
		if !dbHealthy || (cfg.NotifyBackend != "memory" && !redisHealthy) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "db": dbHealthy, "redis": redisHealthy})
	})

	// Dev-only token mint so the API is drivable without the identity
	// system. Never registered outside dev.
	if cfg.Env == "dev" {
		r.POST("/v1/dev/tokens", func(c *gin.Context) {
			var req struct {
				Subject string `json:"subject" binding:"required"`
				Role    string `json:"role" binding:"required"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if req.Role != auth.RoleLecturer && req.Role != auth.RoleStudent {
				c.JSON(http.StatusBadRequest, gin.H{"error": "role must be lecturer or student"})
				return
			}
			tokens, err := auth.Issue(req.Subject, req.Role, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
				return
			}
			c.JSON(http.StatusCreated, gin.H{
				"access_token":  tokens.AccessToken,
				"refresh_token": tokens.RefreshToken,
				"expires_at":    tokens.AccessExp.Unix(),
			})
		})
		log.Println("dev token endpoint enabled: POST /v1/dev/tokens")
	}

	h := httpapi.New(svc, semesters, meetings)
	h.Routes(r, auth.Middleware(cfg.JWTSigningKey, cfg.JWTIssuer))

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")
	cancel()

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// sweepLoop expires lapsed sessions on a ticker until ctx is cancelled.
func sweepLoop(ctx context.Context, svc *attendance.Service, every time.Duration, batch int) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.ExpireDueSessions(ctx, batch)
			if err != nil {
				log.Printf("sweep failed: %v", err)
				continue
			}
			if n > 0 {
				metrics.SessionsExpired.Add(float64(n))
				log.Printf("sweep expired %d session(s)", n)
			}
		}
	}
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 1 && origins[0] == "*" {
		c.AllowAllOrigins = true
		c.AllowCredentials = false
	} else {
		c.AllowOrigins = origins
	}
	return c
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
