package child

import (
	"errors"
	"fmt"
)

// DuplicateChildError means a child with the name already exists or has a
// pending operation.
type DuplicateChildError struct {
	Name    string
	Pending PendingOperation
}

func (e *DuplicateChildError) Error() string {
	if e.Pending == None {
		return fmt.Sprintf("child %q already exists", e.Name)
	}
	return fmt.Sprintf("child %q already exists (pending %s)", e.Name, e.Pending)
}

// UnknownChildError means no child with the name exists or is pending creation.
type UnknownChildError struct {
	Name string
}

func (e *UnknownChildError) Error() string {
	return fmt.Sprintf("child %q not found", e.Name)
}

// ChildOperationError is the failure of one child's flushed operation.
type ChildOperationError struct {
	Name      string
	Operation PendingOperation
	Err       error
}

func (e *ChildOperationError) Error() string {
	return fmt.Sprintf("%s child %q: %v", e.Operation.verb(), e.Name, e.Err)
}

func (e *ChildOperationError) Unwrap() error {
	return e.Err
}

// Result is the outcome of one flushed child operation.
type Result struct {
	Name      string
	Operation PendingOperation
	Err       error
}

// FlushReport holds one Result per flushed child, sorted by name.
type FlushReport struct {
	Results []Result
}

func (r *FlushReport) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// Err joins the errors of all failed children, or returns nil.
func (r *FlushReport) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}
	return errors.Join(errs...)
}
