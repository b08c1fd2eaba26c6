package commands

import (
	"fmt"
	"io"

	"github.com/gigurra/subsmart/internal"
	"github.com/gigurra/subsmart/internal/settings"
	"github.com/gigurra/subsmart/internal/sqlite"
	"github.com/rs/zerolog"
)

// app is the wired service and everything it needs closed on shutdown.
type app struct {
	service     *internal.Service
	categorizer *internal.RuleCategorizer
	closers     []io.Closer
}

func (a *app) Close() error {
	if a.categorizer != nil {
		a.categorizer.Close()
	}
	var first error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// buildApp opens the configured store and loads detection rules.
func buildApp(s settings.Settings, log zerolog.Logger) (*app, error) {
	rules := internal.NewDefaultConfig()
	if s.Rules.Path != "" {
		var err error
		if rules, err = internal.LoadConfig(s.Rules.Path); err != nil {
			return nil, err
		}
		log.Info().Str("path", s.Rules.Path).Msg("Loaded detection rules")
	}

	a := &app{}
	var store internal.Store
	switch s.Database.Driver {
	case "memory":
		store = internal.NewMemoryStore()
		log.Warn().Msg("Using in-memory store, data is lost on exit")
	default:
		db, err := sqlite.OpenStore(s.Database.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db)
		store = db
		log.Info().Str("path", s.Database.Path).Msg("Opened database")
	}

	categorizer, err := internal.NewCategorizer(rules)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("building categorizer: %w", err)
	}
	a.categorizer = categorizer

	engineCfg := rules.EngineConfig()
	engineLog := log.With().Str("component", "detector").Logger()
	engineCfg.Logger = &engineLog
	engine := internal.NewEngine(store, engineCfg)

	a.service = internal.NewService(store, engine, categorizer, log.With().Str("component", "service").Logger())
	return a, nil
}
