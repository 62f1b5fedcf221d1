package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"conconi/internal/analysis"
	"conconi/internal/auth"
	"conconi/internal/config"
	"conconi/internal/fitfile"
	"conconi/internal/report"
	"conconi/internal/service"
	"conconi/internal/store"
	"conconi/internal/strava"
)

type command struct {
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"analyze":       {"estimate the threshold of a FIT recording", cmdAnalyze},
	"history":       {"list saved tests", cmdHistory},
	"show":          {"show one saved test", cmdShow},
	"delete":        {"delete a saved test", cmdDelete},
	"redate":        {"move a saved test to another date", cmdRedate},
	"export":        {"export a saved test as Parquet", cmdExport},
	"strava-login":  {"connect a Strava account", cmdStravaLogin},
	"strava-import": {"analyze a Strava activity", cmdStravaImport},
}

var commandOrder = []string{"analyze", "history", "show", "delete", "redate", "export", "strava-login", "strava-import"}

// app holds what the commands share. The store is opened on first use.
type app struct {
	cfg    *config.Config
	log    zerolog.Logger
	stdout io.Writer
	store  *store.Store
}

func (a *app) openStore() (*store.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	path, err := a.cfg.DatabasePath()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	a.log.Debug().Str("path", path).Msg("database opened")
	a.store = st
	return st, nil
}

func (a *app) close() {
	if a.store != nil {
		a.store.Close()
	}
}

func (a *app) service(opts analysis.Options) (*service.ThresholdService, error) {
	st, err := a.openStore()
	if err != nil {
		return nil, err
	}
	return service.NewThresholdService(analysis.NewAnalyzer(opts), st, a.log), nil
}

// user resolves the athlete: flag, then config, then the login name
func (a *app) user(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if a.cfg.User != "" {
		return a.cfg.User
	}
	return os.Getenv("USER")
}

func today() string {
	return time.Now().Format(time.DateOnly)
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parse handles -h by printing flags and returning errUsage
func parse(fs *flag.FlagSet, args []string) error {
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return errUsage
		}
		return err
	}
	return nil
}

type analyzeFlags struct {
	user, date string
	save       bool
	seed       uint64
	json       bool
}

func (f *analyzeFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.user, "user", "", "athlete the test belongs to")
	fs.StringVar(&f.date, "date", "", "test date YYYY-MM-DD (default: recording start, else today)")
	fs.BoolVar(&f.save, "save", false, "save the result")
	fs.Uint64Var(&f.seed, "seed", 0, "bootstrap seed (0 = config)")
	fs.BoolVar(&f.json, "json", false, "print the estimate as JSON")
}

// analyzeAndReport is shared by the file and Strava commands
func (a *app) analyzeAndReport(ctx context.Context, src service.SampleSource, f analyzeFlags) error {
	opts := a.cfg.Analysis.Options()
	if f.seed != 0 {
		opts.Seed = f.seed
	}
	svc, err := a.service(opts)
	if err != nil {
		return err
	}

	out, err := svc.AnalyzeSource(ctx, src)
	if err != nil {
		return err
	}

	if f.json {
		if err := a.printJSON(out.Estimate); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(a.stdout, report.Estimate(out.Source, out.Estimate))
	}

	if !f.save {
		return nil
	}
	rec, err := svc.Save(ctx, a.user(f.user), f.date, out)
	if err != nil {
		return saveError(err)
	}
	if !f.json {
		fmt.Fprintf(a.stdout, "Saved as %s's test on %s\n", rec.User, rec.Date)
	}
	return nil
}

// saveError explains how to resolve a date collision: one test is kept
// per user and day.
func saveError(err error) error {
	if errors.Is(err, store.ErrTestExists) {
		return fmt.Errorf("saving test: %w; pass -date to file it under another day, or delete the existing test first", err)
	}
	return fmt.Errorf("saving test: %w", err)
}

func cmdAnalyze(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	file := fs.String("file", "", "FIT file of the ramp test")
	var f analyzeFlags
	f.register(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("analyze: -file is required")
	}
	return a.analyzeAndReport(ctx, fitfile.Source{Path: *file, Log: a.log}, f)
}

func cmdHistory(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	user := fs.String("user", "", "athlete")
	asJSON := fs.Bool("json", false, "print as JSON")
	if err := parse(fs, args); err != nil {
		return err
	}

	svc, err := a.service(a.cfg.Analysis.Options())
	if err != nil {
		return err
	}
	name := a.user(*user)
	records, err := svc.History(ctx, name)
	if err != nil {
		return err
	}
	if *asJSON {
		return a.printJSON(records)
	}
	fmt.Fprintln(a.stdout, report.History(name, records, time.Now()))
	return nil
}

func cmdShow(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	user := fs.String("user", "", "athlete")
	date := fs.String("date", today(), "test date YYYY-MM-DD")
	if err := parse(fs, args); err != nil {
		return err
	}

	svc, err := a.service(a.cfg.Analysis.Options())
	if err != nil {
		return err
	}
	detail, err := svc.Detail(ctx, a.user(*user), *date)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, report.Record(detail))
	return nil
}

func cmdDelete(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	user := fs.String("user", "", "athlete")
	date := fs.String("date", today(), "test date YYYY-MM-DD")
	if err := parse(fs, args); err != nil {
		return err
	}

	svc, err := a.service(a.cfg.Analysis.Options())
	if err != nil {
		return err
	}
	if err := svc.Delete(ctx, a.user(*user), *date); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Deleted test on %s\n", *date)
	return nil
}

func cmdRedate(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("redate", flag.ContinueOnError)
	user := fs.String("user", "", "athlete")
	date := fs.String("date", today(), "current test date YYYY-MM-DD")
	to := fs.String("to", "", "new test date YYYY-MM-DD")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *to == "" {
		return errors.New("redate: -to is required")
	}

	svc, err := a.service(a.cfg.Analysis.Options())
	if err != nil {
		return err
	}
	if err := svc.Redate(ctx, a.user(*user), *date, *to); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Moved test from %s to %s\n", *date, *to)
	return nil
}

func cmdExport(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	user := fs.String("user", "", "athlete")
	date := fs.String("date", today(), "test date YYYY-MM-DD")
	out := fs.String("out", "", "output Parquet file")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *out == "" {
		*out = fmt.Sprintf("conconi-%s.parquet", *date)
	}

	svc, err := a.service(a.cfg.Analysis.Options())
	if err != nil {
		return err
	}
	f, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("creating %s: %w", *out, err)
	}
	if err := svc.ExportParquet(ctx, a.user(*user), *date, f); err != nil {
		f.Close()
		os.Remove(*out)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Wrote %s\n", *out)
	return nil
}

func (a *app) oauthConfig() *oauth2.Config {
	return auth.NewOAuthConfig(auth.Config{
		ClientID:     a.cfg.Strava.ClientID,
		ClientSecret: a.cfg.Strava.ClientSecret,
	})
}

func cmdStravaLogin(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("strava-login", flag.ContinueOnError)
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := a.cfg.ValidateStrava(); err != nil {
		return err
	}
	st, err := a.openStore()
	if err != nil {
		return err
	}

	result, err := auth.Authenticate(ctx, a.oauthConfig(), a.stdout)
	if err != nil {
		return fmt.Errorf("strava login: %w", err)
	}
	if err := st.SaveAuth(ctx, result.Record()); err != nil {
		return fmt.Errorf("saving auth: %w", err)
	}
	fmt.Fprintf(a.stdout, "\nConnected Strava athlete %d\n", result.AthleteID)
	return nil
}

// stravaClient builds an API client from the stored login, persisting
// refreshed tokens back to the store.
func (a *app) stravaClient(ctx context.Context) (*strava.Client, error) {
	if err := a.cfg.ValidateStrava(); err != nil {
		return nil, err
	}
	st, err := a.openStore()
	if err != nil {
		return nil, err
	}
	rec, err := st.GetAuth(ctx)
	if errors.Is(err, store.ErrNoAuth) {
		return nil, errors.New("not connected to Strava: run 'conconi strava-login' first")
	}
	if err != nil {
		return nil, err
	}

	ts := auth.NewTokenSource(a.oauthConfig(), auth.TokenFromRecord(rec), func(ctx context.Context, tok *oauth2.Token) error {
		return st.UpdateTokens(ctx, tok.AccessToken, tok.RefreshToken, tok.Expiry)
	}, a.log)
	return strava.NewClient(ts, strava.WithLogger(a.log)), nil
}

func cmdStravaImport(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("strava-import", flag.ContinueOnError)
	activity := fs.Int64("activity", 0, "Strava activity ID")
	var f analyzeFlags
	f.register(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	if *activity <= 0 {
		return errors.New("strava-import: -activity is required")
	}

	client, err := a.stravaClient(ctx)
	if err != nil {
		return err
	}
	if err := a.analyzeAndReport(ctx, strava.StreamSource{Client: client, ActivityID: *activity}, f); err != nil {
		return err
	}
	short, daily := client.RateLimitStatus()
	a.log.Debug().Int("short_remaining", short).Int("daily_remaining", daily).Msg("strava rate limit")
	return nil
}

func cmdInit(w io.Writer) error {
	path, err := config.CreateExample()
	if err != nil {
		return fmt.Errorf("creating example config: %w", err)
	}
	fmt.Fprintf(w, "Config file: %s\n", path)
	fmt.Fprintln(w, "Set \"user\", and add Strava credentials from https://www.strava.com/settings/api to import activities.")
	return nil
}
