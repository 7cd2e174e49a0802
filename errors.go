package armorch

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSkipped matches every skipped node outcome.
	ErrSkipped = errors.New("node skipped")
	// ErrCancelled is the skip cause of nodes that never started because the
	// run was terminated after an earlier failure.
	ErrCancelled = errors.New("node cancelled after an earlier failure")
)

// CyclicDependencyError means the dependency graph contains a cycle.
// No node is executed when this error is returned.
type CyclicDependencyError struct {
	Path []string
}

func (e *CyclicDependencyError) Error() string {
	if len(e.Path) == 0 {
		return "cyclic dependency detected"
	}
	return "cyclic dependency detected: " + strings.Join(e.Path, " -> ")
}

// NodeExecutionError wraps the failure of one node's task.
type NodeExecutionError struct {
	Key  string
	Name string
	Err  error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("create %s: %v", e.Name, e.Err)
}

func (e *NodeExecutionError) Unwrap() error {
	return e.Err
}

// SkippedError is attached to nodes that were never executed.
// Upstream names the failed dependency when the skip was caused by one.
type SkippedError struct {
	Key      string
	Name     string
	Upstream string
	Cause    error
}

func (e *SkippedError) Error() string {
	switch {
	case e.Upstream != "":
		return fmt.Sprintf("skip %s: dependency %s failed", e.Name, e.Upstream)
	case e.Cause != nil:
		return fmt.Sprintf("skip %s: %v", e.Name, e.Cause)
	default:
		return fmt.Sprintf("skip %s", e.Name)
	}
}

func (e *SkippedError) Is(target error) bool {
	return target == ErrSkipped
}

func (e *SkippedError) Unwrap() error {
	return e.Cause
}

// PrepareError means a task rejected its node while the graph was prepared.
type PrepareError struct {
	Name string
	Err  error
}

func (e *PrepareError) Error() string {
	return fmt.Sprintf("prepare %s: %v", e.Name, e.Err)
}

func (e *PrepareError) Unwrap() error {
	return e.Err
}

// DependencyNotFoundError means a lookup or declaration referenced something
// that is not a dependency.
type DependencyNotFoundError struct {
	From string
	To   string
}

func (e DependencyNotFoundError) Error() string {
	return fmt.Sprintf("dependency not found: %s -> %s", e.From, e.To)
}

// DefinitionNotFoundError means a kind is not registered.
type DefinitionNotFoundError struct {
	Kind string
}

func (e DefinitionNotFoundError) Error() string {
	return fmt.Sprintf("resource definition not found: kind=%q", e.Kind)
}

// DuplicateNodeError means the same ID appears more than once in specs.
type DuplicateNodeError struct {
	ID ID
}

func (e DuplicateNodeError) Error() string {
	return fmt.Sprintf("duplicate resource node: %s", e.ID.String())
}

// NodeNotFoundError means resolving an ID that is not declared.
type NodeNotFoundError struct {
	ID ID
}

func (e NodeNotFoundError) Error() string {
	return fmt.Sprintf("resource node not found: %s", e.ID.String())
}

// TypeMismatchError means a resolved result could not be cast to the requested type.
type TypeMismatchError struct {
	Key      string
	Expected string
	Actual   string
}

func (e TypeMismatchError) Error() string {
	return fmt.Sprintf("result type mismatch for %s: expected=%s actual=%s",
		e.Key, e.Expected, e.Actual)
}
