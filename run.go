package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gigurra/subsmart/internal"
	"github.com/gigurra/subsmart/internal/logger"
	"github.com/gigurra/subsmart/internal/sqlite"
	"github.com/rs/zerolog"
)

// run executes one CLI invocation, writing results to w.
func run(params *Params, w io.Writer) error {
	ctx := context.Background()

	log := zerolog.Nop()
	if params.Verbose {
		log = logger.New().Level(zerolog.DebugLevel)
	}

	asOf := internal.Day(time.Now())
	if params.AsOf != "" {
		var err error
		if asOf, err = internal.ParseDate(params.AsOf); err != nil {
			return fmt.Errorf("invalid --as-of: %w", err)
		}
	}
	userID := int64(params.User)
	if userID <= 0 {
		return fmt.Errorf("--user must be positive")
	}

	cfg, err := loadConfig(params.Config)
	if err != nil {
		return err
	}

	txs, err := internal.ParseFile(params.File)
	if err != nil {
		return fmt.Errorf("parsing file: %w", err)
	}

	if params.SuggestGroups {
		internal.PrintGroupSuggestions(w, internal.SuggestGroups(txs, cfg.Normalizer(), cfg.ClassifierOptions()))
		return nil
	}

	store, closeStore, err := openStore(params.DB)
	if err != nil {
		return err
	}
	defer closeStore()

	categorizer, err := internal.NewCategorizer(cfg)
	if err != nil {
		return fmt.Errorf("building categorizer: %w", err)
	}
	defer categorizer.Close()

	engineCfg := cfg.EngineConfig()
	engineCfg.Logger = &log
	svc := internal.NewService(store, internal.NewEngine(store, engineCfg), categorizer, log)

	ingest, err := svc.Import(ctx, userID, txs)
	if err != nil {
		return err
	}
	for _, e := range ingest.Errors {
		log.Debug().Int("row", e.Index).Err(e.Err).Msg("skipped transaction")
	}
	res, err := svc.DetectStored(ctx, userID)
	if err != nil {
		return fmt.Errorf("detecting subscriptions: %w", err)
	}

	table := params.Output != "json"
	if table {
		fmt.Fprintf(w, "Loaded %d charges (%d new)\n", len(txs), ingest.Stored)
		internal.PrintDetectSummary(w, res)
	}

	switch {
	case params.InitConfig != "":
		subs, err := svc.Subscriptions(ctx, internal.SubscriptionFilter{UserID: userID})
		if err != nil {
			return err
		}
		if err := internal.GenerateConfigTemplate(subs, categorizer).Save(params.InitConfig); err != nil {
			return err
		}
		fmt.Fprintf(w, "Wrote %s\n", params.InitConfig)
		return nil

	case params.Prorate != "":
		return prorate(ctx, svc, params, userID, cfg.Normalizer().Normalize(params.Prorate), asOf, w)

	case params.Insights:
		snap, err := svc.Insights(ctx, userID, asOf)
		if err != nil {
			return err
		}
		if !table {
			return internal.WriteJSON(w, internal.ToJSONInsights(snap, categorizer))
		}
		internal.PrintInsightsTable(w, snap)
		return nil
	}

	all, err := svc.Subscriptions(ctx, internal.SubscriptionFilter{UserID: userID})
	if err != nil {
		return err
	}
	display := internal.FilterByStatus(all, params.Show)
	if !table {
		internal.SortSubscriptions(display, params.Sort, params.SortDir)
		return internal.PrintSubscriptionsJSON(w, display, categorizer)
	}
	if len(all) == 0 {
		fmt.Fprintln(w, "No subscriptions detected.")
		return nil
	}
	internal.PrintSubscriptionsTable(w, all, display, internal.OutputOptions{
		ShowFilter: params.Show,
		SortField:  params.Sort,
		SortDir:    params.SortDir,
	}, categorizer)
	return nil
}

func prorate(ctx context.Context, svc *internal.Service, params *Params, userID int64, merchantKey string, asOf time.Time, w io.Writer) error {
	date := asOf
	if params.CancelDate != "" {
		var err error
		if date, err = internal.ParseDate(params.CancelDate); err != nil {
			return fmt.Errorf("invalid --cancel-date: %w", err)
		}
	}

	sub, err := svc.SubscriptionByMerchant(ctx, userID, merchantKey)
	if err != nil {
		return err
	}

	var p internal.ProrationResult
	if params.Cancel {
		sub, p, err = svc.Cancel(ctx, sub.ID, date)
	} else {
		p, err = svc.Prorate(ctx, sub.ID, date)
	}
	if err != nil {
		return err
	}

	if params.Output == "json" {
		return internal.WriteJSON(w, internal.ToJSONProration(sub.ID, p))
	}
	internal.PrintProrationTable(w, sub, p)
	if params.Cancel {
		fmt.Fprintf(w, "%s is now cancelled\n", sub.MerchantKey)
	}
	return nil
}

// loadConfig reads the rules file; the default path is optional.
func loadConfig(path string) (*internal.Config, error) {
	if path != "" {
		return internal.LoadConfig(path)
	}
	path = internal.DefaultConfigPath()
	if path == "" {
		return internal.NewDefaultConfig(), nil
	}
	cfg, err := internal.LoadConfig(path)
	if errors.Is(err, os.ErrNotExist) {
		return internal.NewDefaultConfig(), nil
	}
	return cfg, err
}

func openStore(path string) (internal.Store, func(), error) {
	if path == "" {
		return internal.NewMemoryStore(), func() {}, nil
	}
	s, err := sqlite.OpenStore(path)
	if err != nil {
		return nil, nil, err
	}
	return s, func() { s.Close() }, nil
}
