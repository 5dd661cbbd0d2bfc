package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"fwblock/internal/app/server"
	"fwblock/internal/app/version"
	"fwblock/internal/blocklist"
	"fwblock/internal/config"
	"fwblock/internal/database"
	"fwblock/internal/enrich"
	"fwblock/internal/storage"
	"fwblock/internal/support"
)

var errUsage = errors.New("usage")

type persistence interface {
	blocklist.Persister
	server.Loader
}

type command struct {
	run     func(a *app, ctx context.Context, args []string) error
	mutates bool
}

var commands = map[string]command{
	"add":     {run: (*app).runAdd, mutates: true},
	"remove":  {run: (*app).runRemove, mutates: true},
	"import":  {run: (*app).runImport, mutates: true},
	"sweep":   {run: (*app).runSweep, mutates: true},
	"list":    {run: (*app).runList},
	"find":    {run: (*app).runFind},
	"country": {run: (*app).runCountry},
	"ttl":     {run: (*app).runTTL},
	"export":  {run: (*app).runExport},
	"upload":  {run: (*app).runUpload},
	"reload":  {run: (*app).runReload},
	"serve":   {run: (*app).runServe},

	"geolite-update": {run: (*app).runGeoLiteUpdate},
}

type app struct {
	cfg     config.Config
	out     io.Writer
	now     func() time.Time
	persist persistence
	closers []func()
}

func Run() error {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found. Falling back to system environment variables.")
	}

	log.SetLevel(parseLogLevel(support.GetEnv("FWBLOCK_LOG_LEVEL", "info")))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx, os.Args[1:], os.Stdout, time.Now)
}

func run(ctx context.Context, args []string, out io.Writer, now func() time.Time) error {
	if len(args) == 0 {
		usage(out)
		return nil
	}

	name, rest := args[0], args[1:]
	switch name {
	case "-h", "--help", "help":
		usage(out)
		return nil
	case "-v", "--version", "version":
		fmt.Fprintln(out, version.Get())
		return nil
	case "token":
		return runToken(rest, out)
	case "seal":
		return runSeal(rest, out)
	}

	cmd, ok := commands[name]
	if !ok {
		usage(out)
		return fmt.Errorf("%w: unknown command %q", errUsage, name)
	}

	if err := config.ReadSettings(config.SettingsPath()); err != nil {
		return err
	}

	a, err := newApp(config.GetConfig(), out, now)
	if err != nil {
		return err
	}
	defer a.close()

	if cmd.mutates {
		unlock, err := acquireWriter(ctx)
		if err != nil {
			return err
		}
		defer unlock()
	}

	return cmd.run(a, ctx, rest)
}

func newApp(cfg config.Config, out io.Writer, now func() time.Time) (*app, error) {
	a := &app{cfg: cfg, out: out, now: now}

	switch cfg.Storage {
	case config.StoragePostgres:
		db, err := database.Open()
		if err != nil {
			return nil, err
		}
		a.persist = database.NewStore(db)
		a.closers = append(a.closers, func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		})
	default:
		a.persist = storage.NewFile(cfg.DataFile)
	}

	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	if err := support.CloseRedisClient(); err != nil {
		log.Debug("Closing redis client failed", "error", err)
	}
}

// loadStore reads the persisted list. A list that cannot be read is logged
// and replaced by an empty one.
func (a *app) loadStore(ctx context.Context) *blocklist.Store {
	store := blocklist.NewStore(a.cfg.Policy(), a.persist, blocklist.WithClock(a.now))

	records, err := a.persist.Load(ctx)
	if err != nil {
		log.Warn("Could not load block list, starting empty", "error", &blocklist.PersistenceError{Op: "load", Err: err})
		return store
	}

	if dropped := store.Load(records); dropped > 0 {
		log.Warn("Dropped unparsable records while loading", "count", dropped)
	}
	return store
}

func (a *app) expiryEngine() *blocklist.ExpiryEngine {
	return blocklist.NewExpiryEngine(a.cfg.Policy())
}

// newEnricher builds the lookup chain from the settings. It returns nil when
// no lookup source is configured.
func (a *app) newEnricher() *enrich.Enricher {
	lc := a.cfg.Lookup
	var chain enrich.Chain

	dialer, err := support.NewDialer(lc.SOCKS5, lc.Timeout())
	if err != nil {
		log.Warn("Lookup proxy unusable, dialing directly", "error", err)
		dialer = nil
	}

	if lc.URL != "" {
		chain = append(chain, enrich.NewHTTP(lc.URL, lc.Timeout(), dialer))
	}
	if lc.GeoLiteDir != "" {
		geo, err := enrich.OpenGeoLite(lc.GeoLiteDir)
		if err != nil {
			log.Debug("GeoLite lookup disabled", "error", err)
		} else {
			chain = append(chain, geo)
			a.closers = append(a.closers, func() { _ = geo.Close() })
		}
	}
	if lc.Resolver != "" {
		chain = append(chain, enrich.NewResolver(lc.Resolver, lc.Timeout()))
	}

	if len(chain) == 0 {
		return nil
	}

	client, err := support.GetRedisClient()
	if err != nil && !errors.Is(err, support.ErrRedisDisabled) {
		log.Warn("Lookup cache unavailable", "error", err)
	}

	return enrich.NewEnricher(enrich.NewCache(chain, client, lc.CacheTTL()), lc.CountryField, lc.OrgField)
}

// handleSave logs persistence failures so the command can finish; other
// errors are returned.
func handleSave(err error) error {
	var perr *blocklist.PersistenceError
	if errors.As(err, &perr) {
		log.Warn("Block list change kept in memory only", "error", err)
		return nil
	}
	return err
}

func acquireWriter(ctx context.Context) (func(), error) {
	client, err := support.GetRedisClient()
	if errors.Is(err, support.ErrRedisDisabled) {
		return func() {}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("writer lock: %w", err)
	}

	lock, err := support.AcquireWriterLock(ctx, client, support.DefaultWriterLockKey, support.DefaultWriterLockTTL)
	if err != nil {
		return nil, fmt.Errorf("writer lock: %w", err)
	}

	return func() {
		if err := lock.Err(); err != nil {
			log.Warn("Writer lock was lost while the command ran", "error", err)
		}
		lock.Release()
	}, nil
}

func parseLogLevel(raw string) log.Level {
	level, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		log.Warn("invalid log level, using info", "value", raw)
		return log.InfoLevel
	}
	return level
}

// splitFlagsAndPositionals lets flags follow positional arguments.
func splitFlagsAndPositionals(args []string, valueFlags map[string]bool) (flagArgs []string, posArgs []string) {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if strings.HasPrefix(a, "-") && a != "-" {
			flagArgs = append(flagArgs, a)
			if strings.Contains(a, "=") {
				continue
			}
			if valueFlags[strings.TrimLeft(a, "-")] && i+1 < len(args) {
				flagArgs = append(flagArgs, args[i+1])
				i++
			}
			continue
		}
		posArgs = append(posArgs, a)
	}
	return flagArgs, posArgs
}

func usage(out io.Writer) {
	fmt.Fprint(out, `
Usage:
  fwblock add <addr> [-g GROUP] [-r REASON|INDEX] [-d DAYS] [-c COUNTRY] [-o ORG] [--no-lookup]
  fwblock remove <addr> [-g GROUP]
  fwblock list [--expired|--all] [--json]
  fwblock find <prefix> [--json]
  fwblock country <code> [--json]
  fwblock import <file|url> [-g GROUP] [-r REASON|INDEX] [--no-lookup]
  fwblock sweep [--hard] [--dry-run]
  fwblock ttl <addr> [-g GROUP]
  fwblock export
  fwblock upload
  fwblock reload
  fwblock serve [-listen ADDR]
  fwblock geolite-update
  fwblock token [-sub NAME] [-ttl 24h]
  fwblock seal <value>
  fwblock version

Addresses are IPv4, optionally with a /0-/32 suffix.
`)
}
