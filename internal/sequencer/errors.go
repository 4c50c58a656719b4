package sequencer

import "fmt"

// ProviderError wraps a non-retryable rejection from the cloud provider.
// It is fatal for provisioning; during teardown it is aggregated instead.
type ProviderError struct {
	Step  string
	Op    string // "exists", "create", "delete"
	Cause error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("step %s: %s failed: %v", e.Step, e.Op, e.Cause)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// CycleError indicates the declared dependencies form a cycle.
type CycleError struct {
	Steps []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected among steps: %v", e.Steps)
}
