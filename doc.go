// Package armorch orchestrates the creation of interdependent cloud resources.
//
// It offers:
// - creatable nodes with stable keys, de-duplicated dependencies and post-run dependents
// - a resolver that validates the graph (cycles) before running anything
// - synchronous and layer-concurrent execution, each node created at most once
// - per-node outcome reports (resolved, failed, skipped) instead of a single error
// - declarative deployments from (kind, name, options) specs through a kind registry
// - reverse-topological destroy and graph export (DOT, Mermaid)
package armorch
