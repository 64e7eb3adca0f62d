package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kingpin"

	"saldo/internal/amqp"
	"saldo/internal/cli"
	"saldo/internal/core"
	"saldo/internal/export"
	"saldo/internal/services"
)

func main() {
	cmdAdd := kingpin.Command("add", "Record a transaction")
	addDescription := cmdAdd.Arg("description", "Transaction description").Required().String()
	addAmount := cmdAdd.Arg("amount", "Amount, dot as decimal separator").Required().String()
	addType := cmdAdd.Arg("type", "Transaction type").Required().Enum("income", "expense", "receita", "despesa")
	addMonth := cmdAdd.Flag("month", "Month as YYYY-MM (default: current month)").String()

	cmdMonths := kingpin.Command("months", "List months, most recent first")

	cmdShow := kingpin.Command("show", "Show balance and transactions of a month")
	showMonth := cmdShow.Arg("month", "Month as YYYY-MM (default: most recent)").String()
	showJSON := cmdShow.Flag("json", "Print the month view as JSON").Bool()

	cmdExport := kingpin.Command("export", "Write an XLSX workbook")
	exportOutput := cmdExport.Flag("output", "Output file").Short('o').Default("saldo.xlsx").String()
	exportMonths := cmdExport.Flag("month", "Month to export, repeatable (default: all)").Strings()

	cmd := kingpin.Parse()

	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig(cli.SetupLogger(slog.LevelWarn))
	// Info records would interleave with command output.
	logger := cli.SetupLogger(max(cfg.SlogLevel(), slog.LevelWarn))

	ctx := context.Background()
	store := cli.InitStorage(ctx, logger, cfg)

	opts := []services.Option{
		services.WithStorageKey(cfg.StorageKey),
		services.WithLocale(core.LocaleFor(cfg.Locale)),
	}
	var amqpClient *amqp.Client
	if cmd == cmdAdd.FullCommand() && cfg.AMQPURL != "" {
		c, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, transaction will not be mirrored", "error", err)
		} else {
			amqpClient = c
			opts = append(opts, services.WithPublisher(c))
		}
	}

	tracker := services.NewTracker(store.Store, opts...)
	tracker.Load(ctx)

	var err error
	switch cmd {
	case cmdAdd.FullCommand():
		err = runAdd(ctx, tracker, os.Stdout, *addDescription, *addAmount, *addType, *addMonth)
	case cmdMonths.FullCommand():
		runMonths(tracker, os.Stdout)
	case cmdShow.FullCommand():
		err = runShow(tracker, os.Stdout, *showMonth, *showJSON)
	case cmdExport.FullCommand():
		err = runExport(tracker, os.Stdout, *exportOutput, *exportMonths)
	}

	if amqpClient != nil {
		_ = amqpClient.Close()
	}
	_ = store.Close()
	if err != nil {
		kingpin.Fatalf("%s", err)
	}
}

func runAdd(ctx context.Context, tr *services.Tracker, w io.Writer, description, amount, typ, month string) error {
	tx, err := core.NewTransaction(description, amount, typ)
	if err != nil {
		return err
	}

	var key core.MonthKey
	if month == "" {
		key, err = tr.Record(ctx, tx)
	} else {
		key, err = core.ParseMonthKey(month)
		if err == nil {
			err = tr.RecordIn(ctx, key, tx)
		}
	}
	if err != nil {
		return err
	}

	view, err := tr.View(key)
	if err != nil {
		return err
	}
	loc := tr.Locale()
	fmt.Fprintf(w, "%s: %s %s (%s)\n", view.Label, tx.Description, loc.FormatMoney(tx.Value()), loc.TypeLabel(tx.Type))
	fmt.Fprintf(w, "%s\n", view.FormattedBalance)
	return nil
}

func runMonths(tr *services.Tracker, w io.Writer) {
	months := tr.Months()
	if len(months) == 0 {
		fmt.Fprintln(w, tr.Locale().NoDataLabel)
		return
	}
	for _, m := range months {
		fmt.Fprintf(w, "%s  %s\n", m.Key, m.Label)
	}
}

func runShow(tr *services.Tracker, w io.Writer, month string, asJSON bool) error {
	key := tr.Snapshot().Selected()
	if month != "" {
		var err error
		if key, err = core.ParseMonthKey(month); err != nil {
			return err
		}
	}
	if key == "" {
		fmt.Fprintln(w, tr.Locale().NoDataLabel)
		return nil
	}
	view, err := tr.View(key)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}

	loc := tr.Locale()
	fmt.Fprintln(w, view.Label)
	fmt.Fprintln(w, view.FormattedBalance)
	for _, row := range view.Transactions {
		fmt.Fprintf(w, "  %-40s %-10s %15s\n", row.Description, loc.TypeLabel(row.Type), row.FormattedAmount)
	}
	return nil
}

func runExport(tr *services.Tracker, w io.Writer, output string, months []string) error {
	keys := make([]core.MonthKey, 0, len(months))
	for _, m := range months {
		k, err := core.ParseMonthKey(m)
		if err != nil {
			return fmt.Errorf("%w: %q", err, m)
		}
		keys = append(keys, k)
	}

	buf, err := export.MonthsXLSX(tr.Snapshot(), tr.Locale(), keys...)
	if err != nil {
		return err
	}
	if err := os.WriteFile(output, buf, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}
	fmt.Fprintf(w, "%s (%d bytes)\n", output, len(buf))
	return nil
}
