// Package ctl implements subkeeperctl, the one-shot operations tool. Each
// command runs once against the configured database and exits, so cron or
// an operator can drive the same jobs the server schedules.
package ctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/dmitrijs2005/subkeeper/internal/server/catalog"
	"github.com/dmitrijs2005/subkeeper/internal/server/config"
	"github.com/dmitrijs2005/subkeeper/internal/server/services"
	"github.com/spf13/pflag"
)

// Ops is what the commands need from the storage and service layers.
type Ops interface {
	Migrate(ctx context.Context) error
	MigrationStatus(ctx context.Context) error
	SeedCatalog(ctx context.Context, c *catalog.Catalog) (*services.SeedReport, error)
	Sweep(ctx context.Context) (*services.SweepReport, error)
	OtpCleanup(ctx context.Context) (int64, error)
	Reconcile(ctx context.Context, userID string) (*services.Reconciliation, error)
	UploadAvatar(ctx context.Context, userID, contentType string, body io.Reader, size int64) (string, error)
	Close() error
}

// Opener connects Ops for a loaded configuration.
type Opener func(ctx context.Context, cfg *config.Config) (Ops, error)

var ErrUnbalanced = errors.New("wallet balance does not match its ledger")

const usage = `usage: subkeeperctl [flags] <command> [args]

commands:
  migrate              apply pending schema migrations
  status               print the migration status
  seed-catalog         upsert the plan catalog (--catalog or the built-in one)
  sweep                send due renewal reminders and expire lapsed subscriptions
  otp-cleanup          delete expired credential-change codes
  reconcile <user-id>  compare a wallet balance with the sum of its ledger
  upload-avatar <user-id> <file>
                       store an image as the user's avatar

flags:
`

// Run parses args, executes one command and reports on out.
func Run(ctx context.Context, args []string, out io.Writer, open Opener) error {
	var envFile, jsonFile, dsn, catalogFile string

	fs := pflag.NewFlagSet("subkeeperctl", pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&envFile, "env", "", "dotenv file with SUBKEEPER_* variables")
	fs.StringVarP(&jsonFile, "config", "c", "", "JSON config file")
	fs.StringVarP(&dsn, "dsn", "d", "", "PostgreSQL DSN (overrides the config)")
	fs.StringVar(&catalogFile, "catalog", "", "plan catalog YAML (overrides the config)")
	fs.Usage = func() {
		fmt.Fprint(out, usage)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cmd := fs.Arg(0)
	rest := fs.Args()
	if len(rest) > 0 {
		rest = rest[1:]
	}
	switch cmd {
	case "":
		fs.Usage()
		return errors.New("no command given")
	case "help":
		fs.Usage()
		return nil
	case "migrate", "status", "seed-catalog", "sweep", "otp-cleanup":
		if len(rest) != 0 {
			return fmt.Errorf("%s: unexpected argument %q", cmd, rest[0])
		}
	case "reconcile":
		if len(rest) != 1 || strings.TrimSpace(rest[0]) == "" {
			return errors.New("reconcile: exactly one user id is required")
		}
	case "upload-avatar":
		if len(rest) != 2 {
			return errors.New("upload-avatar: a user id and a file are required")
		}
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}

	cfg := config.LoadFiles(envFile, jsonFile)
	if dsn != "" {
		cfg.DatabaseDSN = dsn
	}
	if catalogFile != "" {
		cfg.CatalogFile = catalogFile
	}

	ops, err := open(ctx, cfg)
	if err != nil {
		return err
	}
	defer ops.Close()

	return execute(ctx, cmd, rest, cfg, ops, out)
}

func execute(ctx context.Context, cmd string, args []string, cfg *config.Config, ops Ops, out io.Writer) error {
	switch cmd {
	case "migrate":
		if err := ops.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		fmt.Fprintln(out, "migrations applied")

	case "status":
		return ops.MigrationStatus(ctx)

	case "seed-catalog":
		c, err := catalog.LoadFile(cfg.CatalogFile)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		r, err := ops.SeedCatalog(ctx, c)
		if err != nil {
			return fmt.Errorf("seed catalog: %w", err)
		}
		fmt.Fprintf(out, "features=%d plans=%d prices=%d\n", r.Features, r.Plans, r.Prices)

	case "sweep":
		r, err := ops.Sweep(ctx)
		if r != nil {
			fmt.Fprintf(out, "reminders_sent=%d reminders_failed=%d expired=%d\n", r.RemindersSent, r.RemindersFailed, r.Expired)
		}
		if err != nil {
			return fmt.Errorf("sweep: %w", err)
		}

	case "otp-cleanup":
		n, err := ops.OtpCleanup(ctx)
		if err != nil {
			return fmt.Errorf("otp cleanup: %w", err)
		}
		fmt.Fprintf(out, "deleted=%d\n", n)

	case "reconcile":
		r, err := ops.Reconcile(ctx, args[0])
		if err != nil {
			return fmt.Errorf("reconcile: %w", err)
		}
		fmt.Fprintf(out, "wallet=%s balance=%d ledger=%d\n", r.WalletID, r.Balance, r.Sum)
		if !r.Balanced() {
			return ErrUnbalanced
		}

	case "upload-avatar":
		f, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer f.Close()
		st, err := f.Stat()
		if err != nil {
			return err
		}
		ct, err := sniff(f)
		if err != nil {
			return err
		}
		key, err := ops.UploadAvatar(ctx, args[0], ct, f, st.Size())
		if err != nil {
			return fmt.Errorf("upload avatar: %w", err)
		}
		fmt.Fprintf(out, "avatar=%s\n", key)
	}
	return nil
}

// sniff detects the content type from the head of f and rewinds it.
func sniff(f *os.File) (string, error) {
	head := make([]byte, 512)
	n, err := f.Read(head)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	ct := http.DetectContentType(head[:n])
	if !strings.HasPrefix(ct, "image/") {
		return "", fmt.Errorf("upload-avatar: %s is not an image", ct)
	}
	return ct, nil
}
