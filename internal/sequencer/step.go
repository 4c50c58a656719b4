// Package sequencer orders and executes idempotent provisioning steps.
//
// A Step declares the state roles it reads (DependsOn) and writes (Produces).
// The sequencer validates the dependency graph up front, runs creation in
// dependency order with an existence check before every create, and runs
// deletion in reverse order as a best-effort sweep.
package sequencer

import (
	"context"

	"github.com/ashokba6266/s3-vpc-endpoint/internal/state"
)

// Step is a single unit of provisioning work.
type Step interface {
	// Name identifies the step in reports and logs.
	Name() string

	// DependsOn lists the state roles this step reads. Each must be
	// produced by an earlier step in the same run or already recorded in
	// the store.
	DependsOn() []string

	// Produces lists the state roles this step writes on create.
	Produces() []string

	// Exists queries the provider for the resources this step manages.
	// It must be free of side effects.
	Exists(ctx context.Context, st *state.Store) (bool, error)

	// Create provisions the resources and returns role -> provider ID for
	// every role in Produces. The sequencer never calls Create when Exists
	// reported true.
	Create(ctx context.Context, st *state.Store) (map[string]string, error)

	// Delete deprovisions the resources. A resource that is already gone
	// is success, not failure.
	Delete(ctx context.Context, st *state.Store) error
}
