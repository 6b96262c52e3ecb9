package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/buidl-renaissance/collector-quest-sub003/config"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/bootstrap"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/data"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/domain/model"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/poller"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/service"
)

const defaultMigrationTimeout = 5 * time.Minute

// defaultAPIURL prefers GENPIPE_API_URL and falls back to the local HTTP listener.
func defaultAPIURL(cfg config.HTTPConfig) string {
	if v := strings.TrimSpace(os.Getenv("GENPIPE_API_URL")); v != "" {
		return v
	}
	addr := cfg.Addr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func runMigrate(cmdCtx *commandContext, args []string) error {
	fs := newFlagSet("migrate", cmdCtx.Out)
	timeout := fs.Duration("timeout", defaultMigrationTimeout, "maximum time to wait for migrations")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, *timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(ctx, cmdCtx.Config.Postgres, cmdCtx.Logger)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", cerr)
		}
	}()
	return bootstrap.RunMigrations(ctx, db, cmdCtx.Logger)
}

type dispatchOptions struct {
	API     string
	Request model.DispatchRequest
	Wait     bool
	Interval time.Duration
	Timeout  time.Duration
}

func parseDispatchFlags(cmdCtx *commandContext, args []string) (dispatchOptions, error) {
	var opts dispatchOptions
	fs := newFlagSet("dispatch", cmdCtx.Out)
	fs.StringVar(&opts.API, "api", defaultAPIURL(cmdCtx.Config.HTTP), "generations API base URL")
	fs.StringVar(&opts.Request.EventName, "event", "", "event name, e.g. generate-text")
	fs.StringVar(&opts.Request.ObjectType, "type", "", "object type")
	fs.StringVar(&opts.Request.ObjectID, "id", "", "object id")
	fs.StringVar(&opts.Request.ObjectKey, "key", "", "object key")
	data := fs.String("data", "", "JSON input for the workflow")
	fs.BoolVar(&opts.Request.Force, "force", false, "regenerate even if a completed result exists")
	fs.BoolVar(&opts.Wait, "wait", false, "poll until the generation finishes")
	fs.DurationVar(&opts.Interval, "interval", poller.DefaultInterval, "poll interval for -wait")
	fs.DurationVar(&opts.Timeout, "timeout", poller.DefaultTimeout, "how long -wait polls before giving up")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if *data != "" {
		if !json.Valid([]byte(*data)) {
			return opts, errors.New("-data must be valid JSON")
		}
		opts.Request.Data = json.RawMessage(*data)
	}
	opts.Request.Normalize()
	if err := opts.Request.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

func runDispatch(cmdCtx *commandContext, args []string) error {
	opts, err := parseDispatchFlags(cmdCtx, args)
	if err != nil {
		return err
	}
	client := poller.NewHTTPClient(opts.API, nil)
	out, err := client.Dispatch(cmdCtx.Ctx, opts.Request)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmdCtx.Out, "id: %s\nstatus: %s\nreused: %t\n", out.ID, out.Status, out.Reused)
	if !opts.Wait {
		return nil
	}
	return awaitAndPrint(cmdCtx, client, out.ID, poller.Options{Interval: opts.Interval, Timeout: opts.Timeout})
}

func runStatus(cmdCtx *commandContext, args []string) error {
	fs := newFlagSet("status", cmdCtx.Out)
	api := fs.String("api", defaultAPIURL(cmdCtx.Config.HTTP), "generations API base URL")
	id, err := parseID(fs, args)
	if err != nil {
		return err
	}
	res, err := poller.NewHTTPClient(*api, nil).Fetch(cmdCtx.Ctx, id)
	if err != nil {
		return err
	}
	return printResult(cmdCtx.Out, res)
}

func runAwait(cmdCtx *commandContext, args []string) error {
	fs := newFlagSet("await", cmdCtx.Out)
	api := fs.String("api", defaultAPIURL(cmdCtx.Config.HTTP), "generations API base URL")
	interval := fs.Duration("interval", poller.DefaultInterval, "poll interval")
	timeout := fs.Duration("timeout", poller.DefaultTimeout, "give up after this long; negative waits forever")
	id, err := parseID(fs, args)
	if err != nil {
		return err
	}
	client := poller.NewHTTPClient(*api, nil)
	return awaitAndPrint(cmdCtx, client, id, poller.Options{Interval: *interval, Timeout: *timeout})
}

func awaitAndPrint(cmdCtx *commandContext, f poller.Fetcher, id string, opts poller.Options) error {
	opts.OnProgress = func(p poller.Progress) {
		if p.Step == "" {
			return
		}
		fmt.Fprintf(cmdCtx.Out, "progress: %s %s\n", p.Step, p.Message)
	}
	payload, err := poller.Await[json.RawMessage](cmdCtx.Ctx, f, id, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmdCtx.Out, "result: %s\n", compactJSON(payload))
	return nil
}

func runCancel(cmdCtx *commandContext, args []string) error {
	fs := newFlagSet("cancel", cmdCtx.Out)
	api := fs.String("api", defaultAPIURL(cmdCtx.Config.HTTP), "generations API base URL")
	id, err := parseID(fs, args)
	if err != nil {
		return err
	}
	res, err := poller.NewHTTPClient(*api, nil).Cancel(cmdCtx.Ctx, id)
	if err != nil {
		return err
	}
	return printResult(cmdCtx.Out, res)
}

func runSweep(cmdCtx *commandContext, args []string) error {
	fs := newFlagSet("sweep", cmdCtx.Out)
	retention := fs.Duration("retention", cmdCtx.Config.Sweeper.Retention, "delete results older than this")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, 10*time.Minute)
	defer cancel()

	db, err := bootstrap.ConnectDB(ctx, cmdCtx.Config.Postgres, cmdCtx.Logger)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", cerr)
		}
	}()

	cfg := cmdCtx.Config.Sweeper
	cfg.Retention = *retention
	svc, err := service.NewSweepService(service.SweepServiceOptions{
		Repo:   data.NewSweepRepo(db, nil),
		Config: cfg,
		Logger: cmdCtx.Logger,
	})
	if err != nil {
		return err
	}
	report, err := svc.RunOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmdCtx.Out, "results deleted: %d\nevents deleted: %d\nduration: %s\n",
		report.Results, report.Events, report.Duration.Round(time.Millisecond))
	return nil
}

func parseID(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() != 1 || strings.TrimSpace(fs.Arg(0)) == "" {
		return "", fmt.Errorf("%s: exactly one generation id is required", fs.Name())
	}
	return strings.TrimSpace(fs.Arg(0)), nil
}

func printResult(w io.Writer, res *model.GenerationResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	rows := [][2]string{
		{"ID", res.ID},
		{"Event", res.EventName},
		{"Target", res.Target().Key()},
		{"Status", string(res.Status)},
		{"Step", deref(res.Step)},
		{"Message", deref(res.Message)},
		{"Error", deref(res.Error)},
		{"Cancel requested", fmt.Sprintf("%t", res.CancelRequested)},
		{"Created", res.CreatedAt.Format(time.RFC3339)},
		{"Updated", res.UpdatedAt.Format(time.RFC3339)},
	}
	for _, row := range rows {
		if row[1] == "" {
			continue
		}
		fmt.Fprintf(tw, "%s:\t%s\n", row[0], row[1])
	}
	if len(res.Result) > 0 {
		fmt.Fprintf(tw, "Result:\t%s\n", compactJSON(res.Result))
	}
	return tw.Flush()
}

func compactJSON(raw json.RawMessage) string {
	var b bytes.Buffer
	if err := json.Compact(&b, raw); err != nil {
		return string(raw)
	}
	return b.String()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
