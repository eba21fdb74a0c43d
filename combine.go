package locstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/sourcegraph/conc"
)

// BackendFailure is one failing side of a combined operation. The failure
// text of the underlying error is preserved verbatim.
type BackendFailure struct {
	ID  BackendID
	Err error
}

// CombinedError is the conjunctive outcome of a dual-backend operation when
// at least one dispatched side failed. Failures are ordered Legacy first.
type CombinedError struct {
	Op       string
	Failures []BackendFailure
}

func (e *CombinedError) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, fmt.Sprintf("%s: %s", f.ID, f.Err))
	}
	return e.Op + ": " + strings.Join(msgs, "; ")
}

// Unwrap exposes the per-backend errors to errors.Is/As.
func (e *CombinedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// combine runs op against each backend selected by sel, concurrently when
// both are selected. An unselected side contributes a vacuous success so it
// never blocks the other. Both launched calls are started before either is
// awaited and both are awaited even after one has failed: during migration
// the backends are expected to converge, and a caller that never learns
// about the failing side of a partial dual-write cannot detect divergence.
// The final outcome is the conjunction of all dispatched results.
func combine(ctx context.Context, op string, sel BackendSet, legacy, replicated func(context.Context) error) error {
	var errs [2]error

	var wg conc.WaitGroup
	if sel.Contains(Legacy) {
		wg.Go(func() { errs[0] = legacy(ctx) })
	}
	if sel.Contains(Replicated) {
		wg.Go(func() { errs[1] = replicated(ctx) })
	}
	wg.Wait()

	var failures []BackendFailure
	if errs[0] != nil {
		failures = append(failures, BackendFailure{ID: Legacy, Err: errs[0]})
	}
	if errs[1] != nil {
		failures = append(failures, BackendFailure{ID: Replicated, Err: errs[1]})
	}
	if len(failures) == 0 {
		return nil
	}
	return &CombinedError{Op: op, Failures: failures}
}
