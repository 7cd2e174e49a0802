// Package reload provides experimental incremental re-apply of deployments.
//
// Reconciler is the core type and performs:
// 1. compile the next deployment from new specs
// 2. reuse the results of unchanged resources
// 3. reapply added, changed and dependent resources
// 4. atomically swap the current deployment
// 5. delete removed resources in reverse-topological order
//
// This package is EXPERIMENTAL and its API may change before v1.
package reload
