package app

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"fwblock/internal/app/server"
	"fwblock/internal/auth"
	"fwblock/internal/blocklist"
	"fwblock/internal/domain"
	"fwblock/internal/enrich"
	"fwblock/internal/feed"
	"fwblock/internal/geolite"
	"fwblock/internal/publish"
	"fwblock/internal/security"
	"fwblock/internal/support"
)

const feedTimeout = 30 * time.Second

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func (a *app) runAdd(ctx context.Context, args []string) error {
	fs := newFlagSet("add", a.out)
	group := fs.String("g", "", "port group id")
	reason := fs.String("r", "", "reason text or catalog index")
	days := fs.Int("d", -1, "TTL in days (0 = never)")
	country := fs.String("c", "", "country code")
	org := fs.String("o", "", "organisation")
	noLookup := fs.Bool("no-lookup", false, "skip address lookup")

	flagArgs, pos := splitFlagsAndPositionals(args, map[string]bool{"g": true, "r": true, "d": true, "c": true, "o": true})
	if err := fs.Parse(flagArgs); err != nil {
		return err
	}
	if len(pos) != 1 {
		return fmt.Errorf("%w: fwblock add <addr> [-g GROUP] [-r REASON] [-d DAYS] [-c COUNTRY] [-o ORG] [--no-lookup]", errUsage)
	}

	meta := domain.Metadata{Country: *country, Org: *org, Reason: *reason}
	if *days >= 0 {
		d := *days
		meta.Days = &d
	}

	if !*noLookup && (meta.Country == "" || meta.Org == "") {
		meta = meta.Merge(a.newEnricher().Metadata(ctx, pos[0]))
	}

	store := a.loadStore(ctx)
	cand := blocklist.Candidate{Address: pos[0], PortScope: *group, Metadata: meta}
	outcome, err := store.Insert(ctx, cand)
	if err := handleSave(err); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%s %s\n", formatTarget(cand.Address, cand.PortScope), outcome)
	return nil
}

func (a *app) runRemove(ctx context.Context, args []string) error {
	fs := newFlagSet("remove", a.out)
	group := fs.String("g", "", "port group id")

	flagArgs, pos := splitFlagsAndPositionals(args, map[string]bool{"g": true})
	if err := fs.Parse(flagArgs); err != nil {
		return err
	}
	if len(pos) != 1 {
		return fmt.Errorf("%w: fwblock remove <addr> [-g GROUP]", errUsage)
	}

	store := a.loadStore(ctx)
	removed, err := store.Remove(ctx, pos[0], *group)
	if err := handleSave(err); err != nil {
		return err
	}

	if !removed {
		fmt.Fprintf(a.out, "%s not found\n", formatTarget(pos[0], *group))
		return nil
	}
	fmt.Fprintf(a.out, "%s removed\n", formatTarget(pos[0], *group))
	return nil
}

func (a *app) runImport(ctx context.Context, args []string) error {
	fs := newFlagSet("import", a.out)
	group := fs.String("g", "", "port group id for every address")
	reason := fs.String("r", "", "reason text or catalog index for every address")
	noLookup := fs.Bool("no-lookup", false, "skip address lookup")

	flagArgs, pos := splitFlagsAndPositionals(args, map[string]bool{"g": true, "r": true})
	if err := fs.Parse(flagArgs); err != nil {
		return err
	}
	if len(pos) != 1 {
		return fmt.Errorf("%w: fwblock import <file|url> [-g GROUP] [-r REASON] [--no-lookup]", errUsage)
	}

	addresses, err := a.readAddresses(ctx, pos[0])
	if err != nil {
		return err
	}

	var enricher *enrich.Enricher
	if !*noLookup {
		enricher = a.newEnricher()
	}

	candidates := make([]blocklist.Candidate, 0, len(addresses))
	for _, addr := range addresses {
		meta := domain.Metadata{Reason: *reason}
		meta = meta.Merge(enricher.Metadata(ctx, addr))
		candidates = append(candidates, blocklist.Candidate{Address: addr, PortScope: *group, Metadata: meta})
	}

	store := a.loadStore(ctx)
	results, err := store.Import(ctx, candidates)
	if err := handleSave(err); err != nil {
		return err
	}

	counts := make(map[blocklist.Outcome]int)
	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			log.Warn("Import entry rejected", "address", res.Candidate.Address, "error", res.Err)
			continue
		}
		counts[res.Outcome]++
	}

	fmt.Fprintf(a.out, "imported %d: %d inserted, %d reactivated, %d already present, %d already covered, %d rejected\n",
		len(results), counts[blocklist.Inserted], counts[blocklist.Reactivated],
		counts[blocklist.AlreadyPresent], counts[blocklist.AlreadyCovered], failed)
	return nil
}

func (a *app) readAddresses(ctx context.Context, source string) ([]string, error) {
	if !feed.IsURL(source) {
		return readAddressFile(source)
	}

	dialer, err := support.NewDialer(a.cfg.Lookup.SOCKS5, a.cfg.Lookup.Timeout())
	if err != nil {
		return nil, err
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext

	addresses, err := feed.Fetch(ctx, &http.Client{Timeout: feedTimeout, Transport: transport}, source)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", source, err)
	}
	log.Info("Feed downloaded", "source", source, "entries", len(addresses))
	return addresses, nil
}

// readAddressFile returns the first field of every non-empty line; "#" starts
// a comment.
func readAddressFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line, _, _ := strings.Cut(scanner.Text(), "#")
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		out = append(out, fields[0])
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read import file: %w", err)
	}
	return out, nil
}

func (a *app) runSweep(ctx context.Context, args []string) error {
	fs := newFlagSet("sweep", a.out)
	hard := fs.Bool("hard", a.cfg.HardDelete, "delete stale records instead of expiring them")
	dryRun := fs.Bool("dry-run", false, "only report stale records")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store := a.loadStore(ctx)
	engine := a.expiryEngine()
	now := a.now()

	if *dryRun {
		for _, rec := range engine.Stale(store, now) {
			fmt.Fprintf(a.out, "stale %s # %s\n", formatTarget(rec.Address, rec.PortScope), store.Describe(rec))
		}
	}

	count, err := engine.Sweep(ctx, store, now, blocklist.SweepOptions{HardDelete: *hard, DryRun: *dryRun})
	if err := handleSave(err); err != nil {
		return err
	}

	switch {
	case *dryRun:
		fmt.Fprintf(a.out, "%d record(s) would be swept\n", count)
	case *hard:
		fmt.Fprintf(a.out, "%d record(s) deleted\n", count)
	default:
		fmt.Fprintf(a.out, "%d record(s) expired\n", count)
	}
	return nil
}

func (a *app) runList(ctx context.Context, args []string) error {
	fs := newFlagSet("list", a.out)
	expired := fs.Bool("expired", false, "list expired records")
	all := fs.Bool("all", false, "list active and expired records")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store := a.loadStore(ctx)
	var records []domain.BlockRecord
	switch {
	case *all:
		records = store.Records()
	case *expired:
		records = store.Expired()
	default:
		records = store.Active()
	}
	return a.printRecords(store, records, *asJSON)
}

func (a *app) runFind(ctx context.Context, args []string) error {
	return a.runQuery(ctx, "find", args, "fwblock find <prefix> [--json]", (*blocklist.Store).FindByPrefix)
}

func (a *app) runCountry(ctx context.Context, args []string) error {
	return a.runQuery(ctx, "country", args, "fwblock country <code> [--json]", (*blocklist.Store).FindByCountry)
}

func (a *app) runQuery(ctx context.Context, name string, args []string, usageLine string, query func(*blocklist.Store, string) []domain.BlockRecord) error {
	fs := newFlagSet(name, a.out)
	asJSON := fs.Bool("json", false, "print JSON")

	flagArgs, pos := splitFlagsAndPositionals(args, nil)
	if err := fs.Parse(flagArgs); err != nil {
		return err
	}
	if len(pos) != 1 {
		return fmt.Errorf("%w: %s", errUsage, usageLine)
	}

	store := a.loadStore(ctx)
	return a.printRecords(store, query(store, pos[0]), *asJSON)
}

func (a *app) runTTL(ctx context.Context, args []string) error {
	fs := newFlagSet("ttl", a.out)
	group := fs.String("g", "", "port group id")

	flagArgs, pos := splitFlagsAndPositionals(args, map[string]bool{"g": true})
	if err := fs.Parse(flagArgs); err != nil {
		return err
	}
	if len(pos) != 1 {
		return fmt.Errorf("%w: fwblock ttl <addr> [-g GROUP]", errUsage)
	}

	store := a.loadStore(ctx)
	rec, ok := store.Find(pos[0], *group)
	if !ok {
		return fmt.Errorf("%s is not in the block list", formatTarget(pos[0], *group))
	}

	engine := a.expiryEngine()
	expires := "never"
	if at, ok := engine.ExpiresAt(&rec); ok {
		expires = at.UTC().Format(time.RFC3339)
	}

	status := "active"
	if rec.IsExpired() {
		status = "expired"
	}
	fmt.Fprintf(a.out, "%s: %s, ttl %dd, expires %s\n", formatTarget(rec.Address, rec.PortScope), status, engine.ResolveTTLDays(&rec), expires)
	return nil
}

func (a *app) runExport(ctx context.Context, _ []string) error {
	store := a.loadStore(ctx)
	lines := store.ExportLines()
	if err := publish.WriteExport(a.cfg.ExportFile, lines); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d line(s) written to %s\n", len(lines), a.cfg.ExportFile)
	return nil
}

func (a *app) runUpload(ctx context.Context, args []string) error {
	if err := a.runExport(ctx, args); err != nil {
		return err
	}

	password, err := security.Open(a.cfg.FTP.Password)
	if err != nil {
		return fmt.Errorf("ftp password: %w", err)
	}

	target := publish.FTPTarget{
		Host:       a.cfg.FTP.Host,
		User:       a.cfg.FTP.User,
		Password:   password,
		RemotePath: a.cfg.FTP.RemotePath,
		Timeout:    a.cfg.FTP.Timeout(),
		SOCKS5:     a.cfg.FTP.SOCKS5,
	}
	if err := publish.UploadFTP(ctx, target, a.cfg.ExportFile); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "uploaded %s to %s\n", a.cfg.ExportFile, a.cfg.FTP.Host)
	return nil
}

func (a *app) runReload(ctx context.Context, _ []string) error {
	output, err := publish.Reload(ctx, a.cfg.ReloadCommand)
	if err != nil {
		return err
	}
	if output != "" {
		fmt.Fprintln(a.out, output)
	}
	return nil
}

func (a *app) runServe(ctx context.Context, args []string) error {
	fs := newFlagSet("serve", a.out)
	listen := fs.String("listen", a.cfg.API.Listen, "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return server.New(a.persist, a.cfg.Policy()).ListenAndServe(ctx, *listen)
}

func (a *app) runGeoLiteUpdate(ctx context.Context, _ []string) error {
	dir := a.cfg.Lookup.GeoLiteDir
	if dir == "" {
		return fmt.Errorf("lookup.geolite_dir is not configured")
	}

	updater := &geolite.Updater{
		APIKey: support.GetEnv("MAXMIND_LICENSE_KEY", ""),
		Dir:    dir,
	}
	if err := updater.Update(ctx); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "GeoLite databases updated in %s\n", dir)
	return nil
}

func runToken(args []string, out io.Writer) error {
	fs := newFlagSet("token", out)
	subject := fs.String("sub", "fwblock", "token subject")
	ttl := fs.Duration("ttl", auth.DefaultTokenTTL, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	token, err := auth.GenerateJWT(*subject, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}

func runSeal(args []string, out io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: fwblock seal <value>", errUsage)
	}

	sealed, err := security.Seal(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(out, sealed)
	return nil
}

func (a *app) printRecords(store *blocklist.Store, records []domain.BlockRecord, asJSON bool) error {
	if asJSON {
		if records == nil {
			records = []domain.BlockRecord{}
		}
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	for _, rec := range records {
		marker := ""
		if rec.IsExpired() {
			marker = " [expired " + rec.DtExpired.UTC().Format(time.RFC3339) + "]"
		}
		fmt.Fprintf(a.out, "%s # %s%s\n", formatTarget(rec.Address, rec.PortScope), store.Describe(rec), marker)
	}
	return nil
}

func formatTarget(address, scope string) string {
	if scope == "" {
		return address
	}
	return address + " [" + scope + "]"
}
