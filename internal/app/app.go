package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"famfinance/internal/amqp"
	"famfinance/internal/banking"
	"famfinance/internal/config"
	"famfinance/internal/database"
	"famfinance/internal/log"
	"famfinance/internal/repository"
	"famfinance/internal/security"
	"famfinance/internal/service"
)

// App holds the wired services shared by the server and the CLI
type App struct {
	Config *config.Config
	Logger *log.Logger
	DB     *database.DB
	AMQP   *amqp.Client

	Tokens *security.TokenIssuer
	CSRF   *security.CSRFGenerator

	Auth         *service.AuthService
	Access       *service.AccessService
	Families     *service.FamilyService
	Budgets      *service.BudgetService
	Reminders    *service.ReminderService
	Transactions *service.TransactionService
	Bank         *service.BankService
	EmailQueue   *service.EmailQueue
}

// NewLogger builds the process logger from configuration and makes it the default
func NewLogger(cfg *config.Config) *log.Logger {
	logger := log.New(log.Config{
		Level:  log.ParseLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
		Output: os.Stdout,
	})
	log.SetDefault(logger)
	return logger
}

// New opens the database, applies pending migrations and wires every service.
// Callers must Close the returned App.
func New(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid timezone: %w", err)
	}

	// Initialize database with config (supports sqlite, postgres, mysql)
	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	logger.Info("database connection established", "type", cfg.DatabaseType)

	applied, err := db.RunMigrations(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if len(applied) > 0 {
		logger.Info("migrations applied", "files", applied)
	}

	mailer, err := service.NewSESMailer(ctx, cfg.AWSRegion, cfg.SESFromEmail, cfg.SESFromName, cfg.EmailDebug, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	// Initialize repositories
	users := repository.NewUserRepository(db)
	families := repository.NewFamilyRepository(db)
	invitations := repository.NewInvitationRepository(db)
	categories := repository.NewCategoryRepository(db)
	budgets := repository.NewBudgetRepository(db)
	reminders := repository.NewReminderRepository(db)
	transactions := repository.NewTransactionRepository(db)
	banks := repository.NewBankRepository(db)
	jobs := repository.NewEmailJobRepository(db)

	a := &App{
		Config: cfg,
		Logger: logger,
		DB:     db,
		Tokens: security.NewTokenIssuer(cfg.JWTSecret, cfg.SessionDuration),
		CSRF:   security.NewCSRFGenerator(cfg.CSRFKey()),
	}

	// Initialize services
	composer := service.NewEmailComposer(cfg.AppBaseURL)
	a.EmailQueue = service.NewEmailQueue(jobs, mailer, cfg.EmailBatchSize, cfg.EmailMaxAttempts, logger)
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			// The cron sweep still drains the queue without a broker
			logger.Warn("amqp unavailable, emails will be sent by the queue sweep only", log.FieldError, err)
		} else {
			a.AMQP = client
			a.EmailQueue.SetPublisher(client)
		}
	}

	a.Auth = service.NewAuthService(db, users, a.Tokens, mailer, a.EmailQueue, composer, logger)
	a.Access = service.NewAccessService(db, users, families, logger)
	a.Families = service.NewFamilyService(db, families, invitations, a.EmailQueue, composer, cfg.InvitationTTL, logger)
	a.Budgets = service.NewBudgetService(db, budgets, categories, transactions, loc, logger)
	a.Reminders = service.NewReminderService(reminders, families, mailer, composer, cfg.ReminderBatchSize, logger)
	a.Transactions = service.NewTransactionService(transactions, categories, loc, logger)

	bankCfg := banking.Config{
		BaseURL:      cfg.AggregatorBaseURL,
		TokenURL:     cfg.AggregatorTokenURL,
		ClientID:     cfg.AggregatorClientID,
		ClientSecret: cfg.AggregatorClientSecret,
	}
	var bankClient banking.Client
	if bankCfg.Enabled() {
		bankClient = banking.NewHTTPClient(ctx, bankCfg)
	} else {
		logger.Info("bank linking disabled: AGGREGATOR_BASE_URL not configured")
	}
	a.Bank = service.NewBankService(bankClient, banks, transactions, logger)

	return a, nil
}

// Close releases the broker connection and the database
func (a *App) Close() error {
	if a.AMQP != nil {
		if err := a.AMQP.Close(); err != nil {
			a.Logger.Warn("failed to close amqp client", log.FieldError, err)
		}
	}
	return a.DB.Close()
}

// CleanupLoop periodically removes expired reset tokens and invitations until ctx is done
func (a *App) CleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Cleanup(ctx)
		}
	}
}

// Cleanup runs one pass of expired-record removal
func (a *App) Cleanup(ctx context.Context) {
	if n, err := a.Auth.CleanupExpiredTokens(ctx); err != nil {
		a.Logger.Error("failed to clean up reset tokens", log.FieldError, err)
	} else if n > 0 {
		a.Logger.Info("expired reset tokens removed", "count", n)
	}

	if n, err := a.Families.CleanupExpiredInvitations(ctx); err != nil {
		a.Logger.Error("failed to clean up invitations", log.FieldError, err)
	} else if n > 0 {
		a.Logger.Info("expired invitations removed", "count", n)
	}
}
