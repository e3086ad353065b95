package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-ticketvote/internal/backend"
	"go-ticketvote/internal/config"
	"go-ticketvote/internal/database"
	"go-ticketvote/internal/events"
	"go-ticketvote/internal/guard"
	"go-ticketvote/internal/handlers"
	"go-ticketvote/internal/mailer"
	"go-ticketvote/internal/notification"
	"go-ticketvote/internal/notification/fcm"
	"go-ticketvote/internal/notification/telegram"
	"go-ticketvote/internal/notification/whatsapp"
	"go-ticketvote/internal/orchestrator"
	"go-ticketvote/internal/payment"
	"go-ticketvote/internal/payment/credo"
	"go-ticketvote/internal/rabbitmq"
	"go-ticketvote/internal/scheduler"
	"go-ticketvote/internal/websocket"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
)

func main() {
	// Print banner
	printBanner()

	if err := godotenv.Load(); err != nil {
		log.Println("⚠ No .env file found, using environment only")
	}

	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.InitDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := db.EnsureDefaultAdmin(cfg.AdminUser, cfg.AdminPass); err != nil {
		log.Fatalf("Failed to create admin user: %v", err)
	}
	log.Println("✓ Database initialized successfully")

	// Settings saved from the admin side override the environment
	if v, err := db.GetSetting("credo_public_key"); err == nil && v != "" {
		cfg.CredoPublicKey = v
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(cfg.AllowedOrigins)
	go wsHub.Run(ctx)
	log.Println("✓ WebSocket hub started")

	bus := events.NewBus()
	sessions := payment.NewSessions()
	platform := backend.NewClient(cfg.BackendURL, cfg.BackendAPIKey, cfg.BackendTimeout)
	widget := credo.New(cfg, sessions)

	var payerGuard guard.Guard = guard.NewMemory()
	if cfg.RedisAddr != "" {
		rg, err := guard.NewRedis(ctx, cfg.RedisAddr)
		if err != nil {
			log.Printf("⚠ Redis unavailable, payer guard is per-process: %v", err)
		} else {
			defer rg.Close()
			payerGuard = rg
			log.Println("✓ Redis payer guard connected")
		}
	}

	o := orchestrator.New(platform, widget, bus,
		orchestrator.WithStore(db),
		orchestrator.WithGuard(payerGuard, cfg.SessionTTL),
		orchestrator.WithAlerts(newDispatcher(ctx, cfg)),
		orchestrator.WithReferences(payment.NewReferenceGenerator(cfg.RegistrationNumber)),
	)

	go websocket.RelayTallies(ctx, bus.Votes, wsHub)

	publisher := rabbitmq.Connect(cfg.RabbitMQURL)
	defer publisher.Close()
	go rabbitmq.RelayOutcomes(ctx, bus, publisher, cfg.RabbitMQExchange)

	// Initialize Scheduler
	sched := scheduler.New(sessions, db, cfg.SessionTTL, cfg.AttemptRetention)
	if err := sched.Start(cfg.SweepSchedule); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	log.Println("✓ Scheduler started")

	// Initialize HTTP handlers
	h := handlers.NewHandler(db, wsHub, o, sessions, platform, bus, cfg)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           c.Handler(h.Router()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("✓ HTTP server starting on port %d", cfg.ServerPort)
	log.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Printf("🔧 API: http://localhost:%d/api", cfg.ServerPort)
	log.Printf("🎟  Tickets: ws://localhost:%d/ws/tickets", cfg.ServerPort)
	log.Printf("🗳  Voting: ws://localhost:%d/ws/voting", cfg.ServerPort)
	log.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("🛑 Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠ HTTP shutdown: %v", err)
	}

	<-sched.Stop().Done()

	// Open checkouts can no longer be completed; end them so every attempt is recorded
	if refs := sessions.Expire(time.Now().Add(time.Hour)); len(refs) > 0 {
		log.Printf("[PAYMENT] Abandoned %d open checkout(s) on shutdown", len(refs))
	}
	o.Wait()
	stop()
}

// newDispatcher wires only the channels that are configured
func newDispatcher(ctx context.Context, cfg *config.Config) *notification.Dispatcher {
	d := &notification.Dispatcher{
		Mail: mailer.New(mailer.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPass,
			From:     cfg.SMTPFrom,
		}),
		WhatsApp:  whatsapp.New(cfg.WAProviderURL, cfg.WAApiKey),
		OpsDevice: cfg.FCMOpsToken,
	}

	if tg := telegram.New(cfg.TelegramToken, cfg.TelegramChatID); tg.Enabled() {
		d.Escalate = tg
		log.Println("✓ Telegram escalation enabled")
	}
	if push := fcm.New(ctx, cfg.FirebaseCredentialsFile); push.Enabled() {
		d.Push = push
	}
	return d
}

func printBanner() {
	banner := `
  ████████╗██╗ ██████╗██╗  ██╗███████╗████████╗    ██╗   ██╗ ██████╗ ████████╗███████╗
  ╚══██╔══╝██║██╔════╝██║ ██╔╝██╔════╝╚══██╔══╝    ██║   ██║██╔═══██╗╚══██╔══╝██╔════╝
     ██║   ██║██║     █████╔╝ █████╗     ██║       ██║   ██║██║   ██║   ██║   █████╗
     ██║   ██║██║     ██╔═██╗ ██╔══╝     ██║       ╚██╗ ██╔╝██║   ██║   ██║   ██╔══╝
     ██║   ██║╚██████╗██║  ██╗███████╗   ██║        ╚████╔╝ ╚██████╔╝   ██║   ███████╗
     ╚═╝   ╚═╝ ╚═════╝╚═╝  ╚═╝╚══════╝   ╚═╝         ╚═══╝   ╚═════╝    ╚═╝   ╚══════╝

  Ticket sales and voting payments over Credo checkout
  Version: 1.0.0
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
`
	fmt.Println(banner)
}
