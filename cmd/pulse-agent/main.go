package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pulsechat/pulse-go/internal/chatsync"
	"github.com/pulsechat/pulse-go/internal/config"
	"github.com/pulsechat/pulse-go/internal/pushws"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", strings.TrimSpace(os.Getenv("PULSE_CONFIG")), "YAML config file path")
	apiURL := flag.String("api-url", "", "REST API base URL (overrides config)")
	pushURL := flag.String("push-url", "", "push channel websocket URL (overrides config)")
	token := flag.String("token", "", "bearer token (overrides config)")
	userID := flag.String("user", "", "session user id (overrides config)")
	statusInterval := flag.Duration("status-interval", 30*time.Second, "interval for sync status log lines")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if strings.TrimSpace(*apiURL) != "" {
		cfg.Server.APIBaseURL = strings.TrimSpace(*apiURL)
	}
	if strings.TrimSpace(*pushURL) != "" {
		cfg.Server.PushURL = strings.TrimSpace(*pushURL)
	}
	if strings.TrimSpace(*token) != "" {
		cfg.Auth.Token = strings.TrimSpace(*token)
	}
	if strings.TrimSpace(*userID) != "" {
		cfg.Session.UserID = strings.TrimSpace(*userID)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reload := make(chan struct{}, 1)
	if strings.TrimSpace(*configPath) != "" {
		stopWatch, err := config.Watch(*configPath, func() {
			select {
			case reload <- struct{}{}:
			default:
			}
		})
		if err != nil {
			log.Printf("config watch unavailable: %v", err)
		} else {
			defer func() { _ = stopWatch() }()
		}
	}

	for {
		if done := runSession(rootCtx, cfg, reload, *statusInterval); done {
			return
		}
		// Config changed: re-read it and reconnect with fresh credentials.
		next, err := config.Load(*configPath)
		if err != nil {
			log.Printf("config reload failed, keeping previous settings: %v", err)
		} else if err := next.Validate(); err != nil {
			log.Printf("reloaded config invalid, keeping previous settings: %v", err)
		} else {
			cfg = next
		}
		log.Printf("config changed, reconnecting")
	}
}

// runSession connects one client and blocks until shutdown or a config
// change. Returns true when the agent should exit.
func runSession(ctx context.Context, cfg config.Config, reload <-chan struct{}, statusInterval time.Duration) bool {
	logger := log.Default()
	remote := chatsync.NewHTTPClient(cfg.Server.APIBaseURL, cfg.Auth.Token, nil)
	channel := pushws.NewSocket(cfg.Server.PushURL, cfg.Auth.Token, logger)

	var alerter chatsync.Alerter = chatsync.NopAlerter{}
	if cfg.Alerts.Enabled {
		alerter = logAlerter{logger: logger}
	}

	client, err := chatsync.New(chatsync.Options{
		SelfUserID:     cfg.Session.UserID,
		Remote:         remote,
		Channel:        channel,
		Alerter:        alerter,
		Logger:         logger,
		AlertBodyLimit: cfg.Alerts.BodyLimit,
	})
	if err != nil {
		log.Fatalf("failed to build sync client: %v", err)
	}

	defer client.Disconnect()
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		if err := client.Connect(ctx); err != nil {
			log.Printf("push channel connect failed, retrying: %v", err)
			select {
			case <-ctx.Done():
				return true
			case <-reload:
				return false
			case <-time.After(5 * time.Second):
			}
			continue
		}
		log.Printf("connected as %s", cfg.Session.UserID)

		// Block until the channel dies, the config changes, or we are
		// told to shut down. A fresh Connect re-fetches the snapshots,
		// which is what reconciles anything missed while detached.
		disconnected := false
		for !disconnected {
			select {
			case <-ctx.Done():
				log.Printf("shutting down: %v", ctx.Err())
				return true
			case <-reload:
				return false
			case <-client.Disconnected():
				log.Printf("push channel lost, reconnecting")
				disconnected = true
			case <-ticker.C:
				log.Printf("sync status: conversations=%d unread=%d notifications=%d unread_notifications=%d online=%d",
					client.Conversations.Len(),
					client.Unread.Global(),
					client.Notifications.Len(),
					client.Notifications.Unread(),
					len(client.Presence.Online()))
			}
		}
	}
}

// logAlerter stands in for the browser notification surface in the
// headless agent: alerts land in the log instead of on the desktop.
type logAlerter struct {
	logger *log.Logger
}

func (a logAlerter) Notify(alert chatsync.Alert) {
	a.logger.Printf("alert from %s (conversation %s): %s", alert.Title, alert.ConversationID, alert.Body)
}
