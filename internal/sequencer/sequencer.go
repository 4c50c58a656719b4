package sequencer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ashokba6266/s3-vpc-endpoint/internal/logging"
	"github.com/ashokba6266/s3-vpc-endpoint/internal/report"
	"github.com/ashokba6266/s3-vpc-endpoint/internal/state"
)

// Event reports step progress during a run.
type Event struct {
	Step     string
	Op       string // "create", "skip", "delete"
	Status   string // "started", "completed", "skipped", "failed"
	Duration time.Duration
	Err      error
}

// EventFunc is called for each step event if set.
type EventFunc func(Event)

// Sequencer executes steps against a state store, strictly sequentially.
// Later steps read identifiers written by earlier ones, so there is never
// more than one provider call in flight.
type Sequencer struct {
	store    *state.Store
	reporter *report.Reporter
	retry    *RetryPolicy
	onEvent  EventFunc
}

func New(store *state.Store, reporter *report.Reporter) *Sequencer {
	return &Sequencer{
		store:    store,
		reporter: reporter,
		retry:    DefaultRetryPolicy(),
	}
}

// OnEvent registers a progress callback.
func (s *Sequencer) OnEvent(fn EventFunc) {
	s.onEvent = fn
}

func (s *Sequencer) emit(e Event) {
	if s.onEvent != nil {
		s.onEvent(e)
	}
}

// Provision runs steps in dependency order. Each step's existence check runs
// first; steps whose resources are already present are skipped. State is
// saved after every successful create so partial progress survives a crash.
// The first failure aborts remaining steps; partially-created infrastructure
// is left in place for inspection.
func (s *Sequencer) Provision(ctx context.Context, steps []Step) error {
	ordered, err := order(steps, s.store)
	if err != nil {
		return err
	}

	for _, step := range ordered {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("provisioning interrupted: %w", err)
		}

		name := step.Name()
		start := time.Now()
		s.emit(Event{Step: name, Op: "create", Status: "started"})

		exists, err := step.Exists(ctx, s.store)
		if err != nil {
			perr := &ProviderError{Step: name, Op: "exists", Cause: err}
			s.record(report.Outcome{Step: name, Status: report.StatusFailed, Detail: err.Error(), Duration: time.Since(start)})
			s.emit(Event{Step: name, Op: "create", Status: "failed", Duration: time.Since(start), Err: perr})
			return perr
		}

		if exists {
			logging.Debug("resource already present, skipping", "step", name)
			s.record(report.Outcome{Step: name, Status: report.StatusSkipped, Duration: time.Since(start)})
			s.emit(Event{Step: name, Op: "skip", Status: "skipped", Duration: time.Since(start)})
			continue
		}

		var produced map[string]string
		err = RetryWithBackoff(ctx, s.retry, func() error {
			var createErr error
			produced, createErr = step.Create(ctx, s.store)
			return createErr
		}, IsTransientError)
		if err != nil {
			perr := &ProviderError{Step: name, Op: "create", Cause: err}
			s.record(report.Outcome{Step: name, Status: report.StatusFailed, Detail: err.Error(), Duration: time.Since(start)})
			s.emit(Event{Step: name, Op: "create", Status: "failed", Duration: time.Since(start), Err: perr})
			return perr
		}

		for _, role := range step.Produces() {
			id, ok := produced[role]
			if !ok || id == "" {
				perr := &ProviderError{Step: name, Op: "create",
					Cause: fmt.Errorf("provider response missing identifier for role %q", role)}
				s.record(report.Outcome{Step: name, Status: report.StatusFailed, Detail: perr.Cause.Error(), Duration: time.Since(start)})
				return perr
			}
			s.store.Put(role, id)
		}

		if err := s.store.Save(ctx); err != nil {
			return fmt.Errorf("step %s succeeded but state save failed: %w", name, err)
		}

		logging.Info("resource created", "step", name, "duration", time.Since(start))
		s.record(report.Outcome{Step: name, Status: report.StatusCreated, Duration: time.Since(start)})
		s.emit(Event{Step: name, Op: "create", Status: "completed", Duration: time.Since(start)})
	}

	return nil
}

// Teardown runs steps in reverse dependency order, deleting every step whose
// produced roles are still recorded. Delete failures do not stop the sweep;
// they are aggregated and returned together at the end. When the sweep
// empties the store, the persisted document is removed entirely.
func (s *Sequencer) Teardown(ctx context.Context, steps []Step) error {
	ordered, err := order(steps, s.store)
	if err != nil {
		// Teardown of roles recorded by a newer or edited config must still
		// work, so only cycles are fatal here.
		var cycle *CycleError
		if errors.As(err, &cycle) {
			return err
		}
		ordered = steps
	}

	var errs []error
	for _, step := range reverse(ordered) {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("teardown interrupted: %w", err))
			break
		}

		name := step.Name()
		if !s.anyRecorded(step) {
			continue
		}

		start := time.Now()
		s.emit(Event{Step: name, Op: "delete", Status: "started"})

		err := RetryWithBackoff(ctx, s.retry, func() error {
			return step.Delete(ctx, s.store)
		}, IsTransientError)
		if err != nil {
			perr := &ProviderError{Step: name, Op: "delete", Cause: err}
			errs = append(errs, perr)
			s.record(report.Outcome{Step: name, Status: report.StatusFailed, Detail: err.Error(), Duration: time.Since(start)})
			s.emit(Event{Step: name, Op: "delete", Status: "failed", Duration: time.Since(start), Err: perr})
			continue
		}

		for _, role := range step.Produces() {
			s.store.Remove(role)
		}
		if err := s.store.Save(ctx); err != nil {
			errs = append(errs, fmt.Errorf("step %s deleted but state save failed: %w", name, err))
			continue
		}

		logging.Info("resource deleted", "step", name, "duration", time.Since(start))
		s.record(report.Outcome{Step: name, Status: report.StatusDeleted, Duration: time.Since(start)})
		s.emit(Event{Step: name, Op: "delete", Status: "completed", Duration: time.Since(start)})
	}

	if len(errs) == 0 && s.store.Empty() {
		if err := s.store.Destroy(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%d step(s) failed during teardown: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

func (s *Sequencer) anyRecorded(step Step) bool {
	for _, role := range step.Produces() {
		if s.store.Has(role) {
			return true
		}
	}
	return false
}

func (s *Sequencer) record(o report.Outcome) {
	if s.reporter != nil {
		s.reporter.Record(o)
	}
}
