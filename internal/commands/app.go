package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/truenorth-finance/truenorth/internal/activitylog"
	"github.com/truenorth-finance/truenorth/internal/categorize"
	"github.com/truenorth-finance/truenorth/internal/config"
	"github.com/truenorth-finance/truenorth/internal/llm"
	"github.com/truenorth-finance/truenorth/internal/logger"
	"github.com/truenorth-finance/truenorth/internal/model"
	"github.com/truenorth-finance/truenorth/internal/recurring"
	"github.com/truenorth-finance/truenorth/internal/store"
)

// DBFileName is the bolt database inside the data directory.
const DBFileName = "truenorth.db"

const sourceCLI = "cli"

// app is everything a command needs once the data directory is open.
type app struct {
	dataDir string
	cfg     *config.Config
	log     zerolog.Logger
	loc     *time.Location
	db      *store.BoltPersister
	store   *store.Store
}

// openApp loads config, opens the database and builds the store. The data
// directory must have been created by init.
func openApp(opts *globalOptions) (*app, error) {
	dir := opts.dataDir
	if _, err := os.Stat(filepath.Join(dir, config.FileName)); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s is not a truenorth data directory (run truenorth init)", dir)
	}

	cfg, err := config.LoadWithEnv(filepath.Join(dir, config.FileName))
	if err != nil {
		return nil, err
	}

	levelName := cfg.LogLevel
	if opts.logLevel != "" {
		levelName = opts.logLevel
	}
	level, err := logger.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	log := logger.New(level)

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	db, err := store.OpenBolt(filepath.Join(dir, DBFileName))
	if err != nil {
		return nil, err
	}
	s, err := store.New(db,
		store.WithLogger(log),
		store.WithDetector(recurring.NewDetector(cfg.Recurring, log)),
		store.WithClock(func() time.Time { return time.Now().In(loc) }),
	)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &app{dataDir: dir, cfg: cfg, log: log, loc: loc, db: db, store: s}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

// logContext returns ctx carrying the app logger.
func (a *app) logContext(ctx context.Context) context.Context {
	return logger.WithContext(ctx, a.log)
}

// today is the local calendar date expressed in UTC, matching how
// transaction dates are stored.
func (a *app) today() time.Time {
	n := time.Now().In(a.loc)
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
}

// record appends to the activity log. Failures are logged, never fatal.
func (a *app) record(action, details, ref string, count int) {
	a.recordFrom(sourceCLI, action, details, ref, count)
}

func (a *app) recordFrom(source, action, details, ref string, count int) {
	entry := activitylog.Entry{
		Timestamp: time.Now().UTC(),
		Source:    source,
		Action:    action,
		Details:   details,
		Ref:       ref,
		Count:     count,
	}
	if err := activitylog.Append(a.dataDir, []activitylog.Entry{entry}); err != nil {
		a.log.Warn().Err(err).Str("action", action).Msg("writing activity log")
	}
}

// analyzer builds the classifier for the configured provider. It fails when
// no API key is configured.
func (a *app) analyzer(ctx context.Context) (categorize.Analyzer, string, error) {
	p, err := llm.NewProvider(ctx, a.cfg.ProviderConfig())
	if err != nil {
		return nil, "", err
	}
	c := a.cfg.Classifier
	return llm.NewClassifier(p,
		llm.WithPolicy(llm.DefaultPolicy(c.MaxAttempts, c.RateLimitBase)),
		llm.WithBatchSize(c.BatchSize),
		llm.WithChunkDelay(c.ChunkDelay),
		llm.WithLogger(a.log),
	), p.Name(), nil
}

// analyzerOrRules falls back to rules only when no provider can be built.
func (a *app) analyzerOrRules(ctx context.Context) (categorize.Analyzer, string) {
	an, name, err := a.analyzer(ctx)
	if err != nil {
		a.log.Warn().Err(err).Msg("classifier unavailable, applying rules only")
		return rulesOnly{}, "rules"
	}
	return an, name
}

// progress logs classifier progress after each chunk.
func (a *app) progress(completed, total int) {
	a.log.Info().Int("completed", completed).Int("total", total).Msg("classifying")
}

// rulesOnly leaves whatever the rules did not match uncategorized.
type rulesOnly struct{}

func (rulesOnly) AnalyzeBatch(_ context.Context, txns []model.Transaction, _ int, onProgress func(completed, total int)) (map[string]model.AnalysisResult, error) {
	if onProgress != nil {
		onProgress(len(txns), len(txns))
	}
	return map[string]model.AnalysisResult{}, nil
}

// findTransaction resolves a full ID or an unambiguous ID prefix.
func (a *app) findTransaction(ref string) (model.Transaction, error) {
	if t, err := a.store.Transaction(ref); err == nil {
		return t, nil
	}
	var matches []model.Transaction
	for _, t := range a.store.Transactions() {
		if strings.HasPrefix(t.ID, ref) {
			matches = append(matches, t)
		}
	}
	switch len(matches) {
	case 0:
		return model.Transaction{}, fmt.Errorf("transaction %s: %w", ref, store.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return model.Transaction{}, fmt.Errorf("transaction prefix %q matches %d transactions", ref, len(matches))
	}
}

// withApp opens the app, runs fn and closes it.
func withApp(opts *globalOptions, fn func(a *app) error) error {
	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
