package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Zuo-Peng/guruchat/internal/api"
	"github.com/Zuo-Peng/guruchat/internal/catalog"
	"github.com/Zuo-Peng/guruchat/internal/config"
	"github.com/Zuo-Peng/guruchat/internal/identity"
	"github.com/Zuo-Peng/guruchat/internal/logging"
	"github.com/Zuo-Peng/guruchat/internal/session"
	"github.com/Zuo-Peng/guruchat/internal/store"
)

// app is the wiring shared by every subcommand that talks to the backend.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	db     *store.DB
	userID string
	client *api.Client
}

func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log, err := logging.New(cfg.LogPath, cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	db, err := store.OpenDB(cfg.DBPath)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}

	userID, err := identity.New(db).UserID()
	if err != nil {
		db.Close()
		_ = log.Sync()
		return nil, err
	}

	client := api.New(cfg.APIURL, userID,
		api.WithTimeout(cfg.RequestTimeout.Duration),
		api.WithLogger(log.Named("api")),
	)
	log.Debug("app ready", zap.String("api_url", cfg.APIURL), zap.String("user_id", userID))

	return &app{cfg: cfg, log: log, db: db, userID: userID, client: client}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.log.Warn("close db", zap.Error(err))
	}
	_ = a.log.Sync()
}

func (a *app) controller(style string, opts ...session.Option) *session.Controller {
	if style == "" {
		style = a.cfg.Style
	}
	opts = append([]session.Option{
		session.WithLogger(a.log.Named("session")),
		session.WithStateStore(a.db),
		session.WithStyle(style),
		session.WithModel(a.cfg.Model),
		session.WithMaxPersonas(a.cfg.MaxPersonas),
	}, opts...)
	return session.New(a.client, a.userID, opts...)
}

func (a *app) catalog() *catalog.Catalog {
	return catalog.New(a.client, catalog.WithLogger(a.log.Named("catalog")))
}

// lastSession returns the session the previous run ended on.
func (a *app) lastSession() (string, error) {
	id, ok, err := a.db.Get(store.KeyLastSessionID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("no previous session to resume")
	}
	return id, nil
}

func checkStyle(style string) error {
	switch style {
	case "", config.StyleNormal, config.StyleSpicy:
		return nil
	}
	return fmt.Errorf("invalid style %q (want %s or %s)", style, config.StyleNormal, config.StyleSpicy)
}
