// Package app assembles the bot from configuration: storage backends, the
// ledger, the approval workflow, the dialog engine and the chat transport.
package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/buhgalteriya/buhgalteriya/internal/bot"
	"github.com/buhgalteriya/buhgalteriya/internal/config"
	"github.com/buhgalteriya/buhgalteriya/internal/conversation"
	"github.com/buhgalteriya/buhgalteriya/internal/events"
	"github.com/buhgalteriya/buhgalteriya/internal/expense"
	"github.com/buhgalteriya/buhgalteriya/internal/identity"
	"github.com/buhgalteriya/buhgalteriya/internal/ledger"
	"github.com/buhgalteriya/buhgalteriya/internal/notification"
	"github.com/buhgalteriya/buhgalteriya/internal/receipts"
	"github.com/buhgalteriya/buhgalteriya/internal/routes"
	"github.com/buhgalteriya/buhgalteriya/internal/stats"
	"github.com/buhgalteriya/buhgalteriya/internal/transport/telegram"
)

// App holds the wired components. DB and Cache may be nil in development, in
// which case in-memory backends are used.
type App struct {
	cfg    config.Config
	db     *pgxpool.Pool
	cache  *redis.Client
	logger *slog.Logger

	Telegram    *telegram.Client
	Identities  *identity.Service
	Ledger      ledger.Ledger
	ExpenseRepo expense.Repository
	Expenses    *expense.Service
	Receipts    receipts.Store
	Reporter    *stats.Reporter
	Engine      *conversation.Engine
	Router      *bot.Router
	Inbox       *bot.Inbox

	kafka *events.KafkaPublisher
}

// New wires every component. base is the context inbound events are
// processed with; cancelling it aborts in-flight handling.
func New(base context.Context, cfg config.Config, db *pgxpool.Pool, cache *redis.Client, logger *slog.Logger) (*App, error) {
	if db == nil && !cfg.IsDev() {
		return nil, errors.New("database is required outside development")
	}
	a := &App{cfg: cfg, db: db, cache: cache, logger: logger}
	a.Telegram = telegram.NewClient(cfg.TelegramAPIURL, cfg.TelegramToken, 0)

	var publisher events.Publisher = events.Noop{}
	if len(cfg.KafkaBrokers) > 0 {
		a.kafka = events.NewKafkaPublisher(cfg.KafkaBrokers)
		publisher = a.kafka
	}

	var (
		l            ledger.Ledger
		identityRepo identity.Repository
	)
	if db != nil {
		l = ledger.NewPostgresLedger(db)
		identityRepo = identity.NewPostgresRepository(db)
		a.ExpenseRepo = expense.NewPostgresRepository(db)
		a.Receipts = receipts.NewPostgresStore(db)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory storage")
		l = ledger.NewInMemory()
		identityRepo = identity.NewMemoryRepository()
		a.ExpenseRepo = expense.NewMemoryRepository()
		a.Receipts = receipts.NewMemoryStore()
	}
	if a.kafka != nil {
		l = ledger.WithEvents(l, publisher, logger)
	}
	a.Ledger = l

	var store conversation.Store
	if cache != nil {
		store = conversation.NewRedisStore(cache, cfg.ConversationTTL)
	} else {
		store = conversation.NewMemoryStore()
	}

	notifiers := []notification.Notifier{a.Telegram}
	if cfg.IsDev() {
		notifiers = append(notifiers, notification.NewLoggerNotifier(logger))
	}
	dispatcher := notification.NewDispatcher(logger, notifiers...)

	var archiver *receipts.Archiver
	if cfg.ArchiveReceipts {
		archiver = receipts.NewArchiver(a.Telegram, a.Receipts, logger)
	}

	a.Identities = identity.NewService(identityRepo, l, cfg.Roster)
	a.Expenses = expense.NewService(a.ExpenseRepo, l, a.Identities, dispatcher, publisher, cfg.DebitPolicy, cfg.Currency, logger)
	finalizer := bot.NewFinalizer(a.Expenses, l, archiver, dispatcher, cfg.Currency, logger)
	a.Engine = conversation.NewEngine(store, finalizer, a.Identities, cfg.Roster.Categories, logger)
	a.Reporter = stats.NewReporter(a.Identities, l, a.ExpenseRepo)
	a.Router = bot.NewRouter(bot.Deps{
		Resolver: a.Identities,
		Engine:   a.Engine,
		Expenses: a.Expenses,
		Ledger:   l,
		Reporter: a.Reporter,
		Notifier: dispatcher,
		Answerer: a.Telegram,
		Currency: cfg.Currency,
		Logger:   logger,
	})
	a.Inbox = bot.NewInbox(base, a.Router)
	return a, nil
}

// RouteDeps exposes the components the HTTP layer serves. The webhook is
// only mounted in webhook delivery mode.
func (a *App) RouteDeps() routes.Deps {
	d := routes.Deps{
		Cfg:      a.cfg,
		DB:       a.db,
		Cache:    a.cache,
		Logger:   a.logger,
		Answerer: a.Telegram,
		Accounts: a.Identities,
		Ledger:   a.Ledger,
		Expenses: a.ExpenseRepo,
		Receipts: a.Receipts,
		Reporter: a.Reporter,
	}
	if a.cfg.DeliveryMode == config.DeliveryWebhook {
		d.Updates = a.Inbox
	}
	return d
}

// Poller builds the long-polling loop feeding the inbox.
func (a *App) Poller() *telegram.Poller {
	return telegram.NewPoller(a.Telegram, a.Telegram, a.Inbox, a.cfg.PollTimeout, a.logger)
}

// Close drains queued events and flushes the event stream.
func (a *App) Close() error {
	a.Inbox.Close()
	if a.kafka != nil {
		return a.kafka.Close()
	}
	return nil
}
