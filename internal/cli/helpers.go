package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ashokba6266/s3-vpc-endpoint/internal/aws"
	"github.com/ashokba6266/s3-vpc-endpoint/internal/config"
	"github.com/ashokba6266/s3-vpc-endpoint/internal/report"
	"github.com/ashokba6266/s3-vpc-endpoint/internal/sequencer"
	"github.com/ashokba6266/s3-vpc-endpoint/internal/state"
)

// run bundles everything a subcommand needs: configuration, the locked state
// store, AWS clients and the reporter for this invocation.
type run struct {
	cfg      *config.Config
	backend  state.Backend
	store    *state.Store
	clients  *aws.Clients
	reporter *report.Reporter
}

// openRun loads configuration, locks the state backend and reads the store.
// withClients controls whether the AWS SDK is configured; commands that only
// read local state skip it.
func openRun(ctx context.Context, command string, withClients bool) (*run, error) {
	cfgPath := flagConfig
	if cfgPath == "" {
		cfgPath = config.DefaultPath
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if flagState != "" {
		cfg.StatePath = flagState
	}
	if flagReport != "" {
		cfg.ReportPath = flagReport
	}

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := backend.Lock(); err != nil {
		return nil, err
	}

	store, err := state.Load(ctx, backend)
	if err != nil {
		backend.Unlock()
		return nil, err
	}

	r := &run{
		cfg:      cfg,
		backend:  backend,
		store:    store,
		reporter: report.NewReporter(command),
	}

	if withClients {
		clients, err := aws.NewClients(ctx, cfg.Region)
		if err != nil {
			backend.Unlock()
			return nil, err
		}
		r.clients = clients
	}

	return r, nil
}

func openBackend(ctx context.Context, cfg *config.Config) (state.Backend, error) {
	switch cfg.Backend.Type {
	case "s3":
		return state.NewS3Backend(ctx, cfg.Backend.S3)
	default:
		return state.NewFileBackend(cfg.StatePath), nil
	}
}

func (r *run) close() {
	if err := r.backend.Unlock(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to release state lock: %v\n", err)
	}
}

// finish renders the run summary and writes the report document.
func (r *run) finish() {
	fmt.Println()
	r.reporter.Render(os.Stdout)
	if err := r.reporter.Write(r.cfg.ReportPath); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

// printEvent gives live per-step progress on stdout.
func printEvent(e sequencer.Event) {
	switch e.Status {
	case "started":
		verb := "Creating"
		if e.Op == "delete" {
			verb = "Deleting"
		}
		fmt.Printf("%s %s... ", verb, e.Step)
	case "completed":
		fmt.Printf("\033[32mOK\033[0m (%s)\n", e.Duration.Round(10*time.Millisecond))
	case "skipped":
		fmt.Println("already exists, skipping")
	case "failed":
		fmt.Println("\033[31mFAILED\033[0m")
	}
}

// provisionStage is the shared body of the three provisioning subcommands.
func provisionStage(ctx context.Context, command string, stepsFor func(*aws.Clients, *config.Config) []sequencer.Step) error {
	r, err := openRun(ctx, command, true)
	if err != nil {
		return err
	}
	defer r.close()

	seq := sequencer.New(r.store, r.reporter)
	seq.OnEvent(printEvent)

	err = seq.Provision(ctx, stepsFor(r.clients, r.cfg))
	r.finish()
	if err != nil {
		return err
	}

	if skipped := r.reporter.Summarize().Skipped; skipped > 0 {
		return &PartialError{Reason: fmt.Sprintf("%d step(s) skipped, resources already present", skipped)}
	}
	return nil
}
