// Package app builds the shared infrastructure every route module and
// command draws on.
package app

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"go.uber.org/multierr"

	"github.com/nikhil/creatortent/internal/ai"
	"github.com/nikhil/creatortent/internal/auth"
	"github.com/nikhil/creatortent/internal/config"
	"github.com/nikhil/creatortent/internal/encryption"
	"github.com/nikhil/creatortent/internal/inquiry"
	"github.com/nikhil/creatortent/internal/logger"
	"github.com/nikhil/creatortent/internal/mailbox"
	"github.com/nikhil/creatortent/internal/metrics"
	"github.com/nikhil/creatortent/internal/middleware"
	"github.com/nikhil/creatortent/internal/models"
	"github.com/nikhil/creatortent/internal/oauthstate"
	"github.com/nikhil/creatortent/internal/scheduler"
	emailService "github.com/nikhil/creatortent/internal/service/email"
	notificationService "github.com/nikhil/creatortent/internal/service/notifications"
	"github.com/nikhil/creatortent/internal/store"
)

// Container holds long-lived dependencies. It is built once per process.
type Container struct {
	Config  *config.Config
	Log     *logger.Logger
	Store   *store.Store
	Hub     *models.Hub
	Metrics *metrics.Metrics
	JWT     *auth.JWTManager
	Cipher  *encryption.Cipher
	Limiter *middleware.RateLimiter

	Redis     *redis.Client
	States    oauthstate.Store
	Providers map[string]*mailbox.OAuthProvider
	Mailboxes *mailbox.Factory
	Assistant *ai.Assistant

	Notifications *notificationService.NotificationService
	Pipeline      *inquiry.Pipeline
	Scheduler     *scheduler.Scheduler
}

// New wires a Container over an open database pool.
func New(ctx context.Context, cfg *config.Config, db *sqlx.DB) (*Container, error) {
	log := logger.NewLogger("creatortent")

	key, err := cfg.EncryptionKeyBytes()
	if err != nil {
		return nil, err
	}
	cipher, err := encryption.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init encryption: %w", err)
	}

	prompts, err := ai.LoadPrompts()
	if err != nil {
		return nil, err
	}
	var gen ai.Generator
	if cfg.GeminiAPIKey != "" {
		g, err := ai.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		gen = g
	} else {
		log.Warn("GEMINI_API_KEY not set; inquiries will not be classified")
	}

	c := &Container{
		Config:  cfg,
		Log:     log,
		Store:   store.New(db),
		Hub:     models.NewHub(),
		Metrics: metrics.New(),
		JWT:     auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL),
		Cipher:  cipher,
		Limiter: middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, log),
		Providers: mailbox.NewProviders(mailbox.Credentials{
			CallbackBase:          cfg.APIBaseURL,
			GoogleClientID:        cfg.GoogleClientID,
			GoogleClientSecret:    cfg.GoogleClientSecret,
			MicrosoftClientID:     cfg.MicrosoftClientID,
			MicrosoftClientSecret: cfg.MicrosoftClientSecret,
			YahooClientID:         cfg.YahooClientID,
			YahooClientSecret:     cfg.YahooClientSecret,
		}),
		Assistant: ai.NewAssistant(gen, prompts, cfg.AIRequestsPerMinute),
	}
	c.Mailboxes = mailbox.NewFactory(c.Providers)

	if cfg.RedisAddr != "" {
		c.Redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		c.States = oauthstate.NewRedisStore(c.Redis)
	} else {
		c.States = oauthstate.NewMemoryStore()
	}

	c.Notifications = notificationService.NewNotificationService(c.Store, c.Hub)
	c.Pipeline = inquiry.New(c.Store, c.Mailboxes, c.Assistant, prompts, c.Notifications, c.Cipher, c.Metrics, cfg.SyncLookback)
	c.Scheduler = scheduler.New(c.Store, c.Pipeline, cfg.SyncConcurrency)

	log.Info("Container ready", "providers", len(c.Providers), "redis", c.Redis != nil, "ai", gen != nil)
	return c, nil
}

// Close releases external connections.
func (c *Container) Close() error {
	var err error
	if c.Redis != nil {
		err = multierr.Append(err, c.Redis.Close())
	}
	return multierr.Append(err, c.Store.Close())
}

// OAuthFlows exposes the configured providers to the email service.
func (c *Container) OAuthFlows() map[string]emailService.OAuthFlow {
	flows := make(map[string]emailService.OAuthFlow, len(c.Providers))
	for name, p := range c.Providers {
		flows[name] = p
	}
	return flows
}
