// Command bankfeed imports bank statements and categorizes the resulting
// transactions.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/arthaledger/bankfeed/internal/categorize"
	"github.com/arthaledger/bankfeed/internal/config"
	"github.com/arthaledger/bankfeed/internal/domain"
	"github.com/arthaledger/bankfeed/internal/importer"
	"github.com/arthaledger/bankfeed/internal/logger"
	"github.com/arthaledger/bankfeed/internal/money"
	"github.com/arthaledger/bankfeed/internal/registry"
	"github.com/arthaledger/bankfeed/internal/rules"
	"github.com/arthaledger/bankfeed/internal/scanner"
	"github.com/arthaledger/bankfeed/internal/server"
	"github.com/arthaledger/bankfeed/internal/store"
	"github.com/arthaledger/bankfeed/internal/ui"
)

const version = "0.1.0"

func usage() {
	fmt.Fprint(os.Stderr, `bankfeed - bank statement import and transaction categorization

Usage:
  bankfeed <command> [flags]

Commands:
  account       Create or show a bank account
  preview       Parse a statement file without storing anything
  import        Import a statement file into an account
  import-dir    Import every statement file under a directory
  undo          Remove an import batch (reconciled rows are kept)
  add           Add a manual transaction
  recompute     Recompute an account balance from its transactions
  categorize    Assign a category to a transaction
  uncategorize  Reverse a transaction's categorization
  reconcile     Mark a transaction reconciled (or -clear it)
  serve         Run the HTTP API server
  formats       List supported statement formats
  version       Show version

Run "bankfeed <command> -h" for command flags.
`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	if err := run(os.Args[1], os.Args[2:]); err != nil {
		ui.Error(err.Error())
		os.Exit(1)
	}
}

type app struct {
	store    *store.Store
	importer *importer.Service
	cat      *categorize.Service
}

func run(command string, args []string) error {
	if command == "version" {
		fmt.Printf("bankfeed version %s\n", version)
		return nil
	}
	if command == "formats" {
		for _, name := range registry.New().ListAdapters() {
			fmt.Println(name)
		}
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level)

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	var engine *rules.Engine
	if cfg.Rules.Path != "" {
		engine, err = rules.LoadFile(cfg.Rules.Path)
		if err != nil {
			return fmt.Errorf("load rules %s: %w", cfg.Rules.Path, err)
		}
	}

	a := &app{
		store:    st,
		importer: importer.New(st, registry.New(), engine, log),
		cat:      categorize.New(st, log),
	}

	ctx := context.Background()
	switch command {
	case "account":
		return a.cmdAccount(ctx, args)
	case "preview":
		return a.cmdPreview(ctx, args)
	case "import":
		return a.cmdImport(ctx, args)
	case "import-dir":
		return a.cmdImportDir(ctx, args)
	case "serve":
		return a.cmdServe(ctx, args, log)
	case "undo":
		return a.cmdUndo(ctx, args)
	case "add":
		return a.cmdAdd(ctx, args)
	case "recompute":
		return a.cmdRecompute(ctx, args)
	case "categorize":
		return a.cmdCategorize(ctx, args)
	case "uncategorize":
		return a.cmdUncategorize(ctx, args)
	case "reconcile":
		return a.cmdReconcile(ctx, args)
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func (a *app) cmdAccount(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("account", flag.ExitOnError)
	name := fs.String("name", "", "Account name (creates the account)")
	opening := fs.String("opening", "0", "Opening balance, e.g. 12500.50")
	id := fs.Int64("id", 0, "Account id to show")
	_ = fs.Parse(args)

	if *name != "" {
		bal, err := money.Parse(*opening)
		if err != nil {
			return fmt.Errorf("opening balance: %w", err)
		}
		acct := &domain.BankAccount{
			Name:           *name,
			OpeningBalance: bal,
			CurrentBalance: bal,
			IsActive:       true,
		}
		if err := a.store.CreateAccount(ctx, acct); err != nil {
			return err
		}
		ui.Success(fmt.Sprintf("Created account %d (%s), balance %s", acct.ID, acct.Name, acct.CurrentBalance))
		return nil
	}

	if *id == 0 {
		return fmt.Errorf("either -name (create) or -id (show) is required")
	}
	acct, err := a.store.GetAccount(ctx, *id)
	if err != nil {
		return err
	}
	fmt.Printf("Account %d: %s\n", acct.ID, acct.Name)
	fmt.Printf("  opening balance: %s\n", acct.OpeningBalance)
	fmt.Printf("  current balance: %s\n", acct.CurrentBalance)
	return nil
}

func (a *app) cmdPreview(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("preview", flag.ExitOnError)
	file := fs.String("file", "", "Statement file (required)")
	format := fs.String("format", registry.FormatAuto, "Declared format or bank, e.g. ICICI, MT940")
	_ = fs.Parse(args)
	if *file == "" {
		return fmt.Errorf("-file is required")
	}

	content, err := os.ReadFile(*file)
	if err != nil {
		return err
	}
	p, err := a.importer.Preview(ctx, content, filepath.Base(*file), *format)
	if err != nil {
		return err
	}

	ui.Header("Statement Preview")
	ui.Info(fmt.Sprintf("Detected format: %s", p.DetectedFormat))
	for field, source := range p.Mapping.Source {
		ui.Info(fmt.Sprintf("  %-12s ← %s", field, source))
	}
	for _, w := range p.Warnings {
		ui.Warning(w.String())
	}
	for _, r := range p.Rows {
		mark := " "
		if r.DuplicateInFile {
			mark = "D"
		}
		fmt.Printf("%s %s  %-40.40s  dep %12s  wd %12s\n",
			mark, r.TransactionDate, r.Description, r.Deposit, r.Withdrawal)
	}
	ui.Success(fmt.Sprintf("%d rows parsed, %d warnings", len(p.Rows), len(p.Warnings)))
	return nil
}

func (a *app) cmdImport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	account := fs.Int64("account", 0, "Account id (required)")
	file := fs.String("file", "", "Statement file (required)")
	format := fs.String("format", registry.FormatAuto, "Declared format or bank")
	_ = fs.Parse(args)
	if *account == 0 || *file == "" {
		return fmt.Errorf("-account and -file are required")
	}

	content, err := os.ReadFile(*file)
	if err != nil {
		return err
	}
	res, err := a.importer.ImportStatement(ctx, *account, content, filepath.Base(*file), *format)
	if err != nil {
		return err
	}

	for _, w := range res.Warnings {
		ui.Warning(w.String())
	}
	ui.Success(fmt.Sprintf("Imported %d of %d transactions (%d duplicates skipped) as batch %s",
		res.Imported, res.Total, res.Skipped, res.BatchID))
	ui.Info(fmt.Sprintf("Account balance: %s", res.Balance))
	return nil
}

func (a *app) cmdImportDir(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import-dir", flag.ExitOnError)
	account := fs.Int64("account", 0, "Account id (required)")
	dir := fs.String("dir", "", "Directory to scan (required)")
	_ = fs.Parse(args)
	if *account == 0 || *dir == "" {
		return fmt.Errorf("-account and -dir are required")
	}

	found, err := scanner.New(*dir).Scan()
	if err != nil {
		return err
	}
	if len(found) == 0 {
		ui.Warning("No statement files found")
		return nil
	}

	var imported, skipped, failed int
	for _, f := range found {
		content, err := os.ReadFile(f.Path)
		if err != nil {
			ui.Error(fmt.Sprintf("%s: %v", f.Path, err))
			failed++
			continue
		}
		format := f.DeclaredFormat
		if format == "" {
			format = registry.FormatAuto
		}
		res, err := a.importer.ImportStatement(ctx, *account, content, filepath.Base(f.Path), format)
		if err != nil {
			ui.Error(fmt.Sprintf("%s: %v", f.Path, err))
			failed++
			continue
		}
		ui.Info(fmt.Sprintf("%s: %d imported, %d skipped (batch %s)", f.Path, res.Imported, res.Skipped, res.BatchID))
		imported += res.Imported
		skipped += res.Skipped
	}

	ui.Success(fmt.Sprintf("%d files processed: %d transactions imported, %d duplicates skipped, %d files failed",
		len(found), imported, skipped, failed))
	return nil
}

func (a *app) cmdServe(ctx context.Context, args []string, log zerolog.Logger) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", ":8080", "Listen address")
	_ = fs.Parse(args)

	srv := server.New(a.store, a.importer, a.cat, log)
	httpSrv := &http.Server{
		Addr:              *addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()
	log.Info().Str("addr", *addr).Msg("http server listening")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-stop:
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func (a *app) cmdUndo(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("undo", flag.ExitOnError)
	account := fs.Int64("account", 0, "Account id (required)")
	batch := fs.String("batch", "", "Import batch id (required)")
	_ = fs.Parse(args)
	if *account == 0 || *batch == "" {
		return fmt.Errorf("-account and -batch are required")
	}

	res, err := a.importer.DeleteBatch(ctx, *account, *batch)
	if err != nil {
		return err
	}
	ui.Success(fmt.Sprintf("Removed %d transactions, kept %d reconciled", res.Deleted, res.Kept))
	ui.Info(fmt.Sprintf("Account balance: %s", res.Balance))
	return nil
}

func (a *app) cmdAdd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	account := fs.Int64("account", 0, "Account id (required)")
	date := fs.String("date", "", "Transaction date YYYY-MM-DD (required)")
	desc := fs.String("desc", "", "Description (required)")
	deposit := fs.String("deposit", "", "Deposit amount")
	withdrawal := fs.String("withdrawal", "", "Withdrawal amount")
	ref := fs.String("ref", "", "Reference number")
	_ = fs.Parse(args)
	if *account == 0 || *date == "" || *desc == "" {
		return fmt.Errorf("-account, -date and -desc are required")
	}

	t := &domain.BankTransaction{
		BankAccountID:   *account,
		TransactionDate: *date,
		ValueDate:       *date,
		Description:     *desc,
		ReferenceNumber: *ref,
	}
	var err error
	if *deposit != "" {
		if t.DepositAmount, err = money.Parse(*deposit); err != nil {
			return fmt.Errorf("deposit: %w", err)
		}
	}
	if *withdrawal != "" {
		if t.WithdrawalAmount, err = money.Parse(*withdrawal); err != nil {
			return fmt.Errorf("withdrawal: %w", err)
		}
	}
	if err := a.importer.AddManual(ctx, t); err != nil {
		return err
	}
	ui.Success(fmt.Sprintf("Added transaction %d", t.ID))
	return nil
}

func (a *app) cmdRecompute(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("recompute", flag.ExitOnError)
	account := fs.Int64("account", 0, "Account id (required)")
	_ = fs.Parse(args)
	if *account == 0 {
		return fmt.Errorf("-account is required")
	}
	bal, err := a.importer.RecomputeBalance(ctx, *account)
	if err != nil {
		return err
	}
	ui.Success(fmt.Sprintf("Account balance: %s", bal))
	return nil
}

func (a *app) cmdCategorize(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("categorize", flag.ExitOnError)
	txn := fs.Int64("txn", 0, "Transaction id (required)")
	category := fs.String("category", "", "Category key (required)")
	customer := fs.Int64("customer", 0, "Customer id (customer_payment, retainer_payment)")
	vendor := fs.Int64("vendor", 0, "Vendor id (vendor_payment, vendor_credit_refund)")
	sub := fs.Int64("sub", 0, "Expense/income account id")
	transfer := fs.Int64("transfer", 0, "Counterpart bank account id (transfer_to/from)")
	targets := fs.String("targets", "", "Invoice/bill allocations: id[:amount],... (empty = auto)")
	advance := fs.Bool("advance", false, "Store unallocated excess on the payment as an advance")
	_ = fs.Parse(args)
	if *txn == 0 || *category == "" {
		return fmt.Errorf("-txn and -category are required")
	}

	req := categorize.Request{
		Category:             domain.Category(*category),
		CustomerID:           *customer,
		VendorID:             *vendor,
		SubAccountID:         *sub,
		TransferAccountID:    *transfer,
		StoreExcessAsAdvance: *advance,
	}
	var err error
	if req.Targets, err = parseTargets(*targets); err != nil {
		return err
	}
	if err := a.cat.Categorize(ctx, *txn, req); err != nil {
		return err
	}
	ui.Success(fmt.Sprintf("Transaction %d categorized as %s", *txn, *category))
	return nil
}

func (a *app) cmdUncategorize(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("uncategorize", flag.ExitOnError)
	txn := fs.Int64("txn", 0, "Transaction id (required)")
	_ = fs.Parse(args)
	if *txn == 0 {
		return fmt.Errorf("-txn is required")
	}
	if err := a.cat.Uncategorize(ctx, *txn); err != nil {
		return err
	}
	ui.Success(fmt.Sprintf("Transaction %d uncategorized", *txn))
	return nil
}

func (a *app) cmdReconcile(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reconcile", flag.ExitOnError)
	txn := fs.Int64("txn", 0, "Transaction id (required)")
	clear := fs.Bool("clear", false, "Clear the reconciled flag instead of setting it")
	_ = fs.Parse(args)
	if *txn == 0 {
		return fmt.Errorf("-txn is required")
	}
	if err := a.importer.SetReconciled(ctx, *txn, !*clear); err != nil {
		return err
	}
	state := "reconciled"
	if *clear {
		state = "unreconciled"
	}
	ui.Success(fmt.Sprintf("Transaction %d %s", *txn, state))
	return nil
}

// parseTargets parses "12,15:500.00,18" into allocation targets.
func parseTargets(s string) ([]categorize.Target, error) {
	if s == "" {
		return nil, nil
	}
	var out []categorize.Target
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idStr, amtStr, hasAmt := strings.Cut(part, ":")
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid target %q: %w", part, err)
		}
		tgt := categorize.Target{ID: id}
		if hasAmt {
			if tgt.Amount, err = money.Parse(amtStr); err != nil {
				return nil, fmt.Errorf("invalid target amount %q: %w", part, err)
			}
		}
		out = append(out, tgt)
	}
	return out, nil
}
