// Package resources holds the building blocks shared by the fluent resource
// definitions: the subscription scope, regions, resource groups and the
// helpers that run a definition's dependency graph.
package resources

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chenyanchen/armorch"
	"github.com/chenyanchen/armorch/transport"
)

// Scope is the subscription and transport every resource of a deployment
// talks to.
type Scope struct {
	SubscriptionID string
	Client         transport.Client
}

func NewScope(subscriptionID string, client transport.Client) *Scope {
	return &Scope{SubscriptionID: subscriptionID, Client: client}
}

// RequiredFieldError means a definition was created without a mandatory setting.
type RequiredFieldError struct {
	Resource string
	Field    string
}

func (e *RequiredFieldError) Error() string {
	return fmt.Sprintf("%s: %s is required", e.Resource, e.Field)
}

// Region is an Azure location. Unknown values are passed through unchanged.
type Region string

const (
	RegionEastUS        Region = "eastus"
	RegionEastUS2       Region = "eastus2"
	RegionWestUS        Region = "westus"
	RegionWestUS2       Region = "westus2"
	RegionCentralUS     Region = "centralus"
	RegionNorthEurope   Region = "northeurope"
	RegionWestEurope    Region = "westeurope"
	RegionUKSouth       Region = "uksouth"
	RegionSoutheastAsia Region = "southeastasia"
	RegionJapanEast     Region = "japaneast"
	RegionAustraliaEast Region = "australiaeast"
)

func PossibleRegionValues() []Region {
	return []Region{
		RegionEastUS,
		RegionEastUS2,
		RegionWestUS,
		RegionWestUS2,
		RegionCentralUS,
		RegionNorthEurope,
		RegionWestEurope,
		RegionUKSouth,
		RegionSoutheastAsia,
		RegionJapanEast,
		RegionAustraliaEast,
	}
}

// ParseRegion normalizes display names such as "West US 2".
func ParseRegion(s string) Region {
	return Region(strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", "")))
}

func (r Region) IsKnown() bool {
	for _, v := range PossibleRegionValues() {
		if v == r {
			return true
		}
	}
	return false
}

func (r Region) String() string {
	return string(r)
}

// NewTask adapts a prepare and a create function to a node task.
// prepare may be nil.
func NewTask(
	prepare func(ctx context.Context, n *armorch.Node) error,
	create func(ctx context.Context, l armorch.Lookup) (any, error),
) armorch.Task {
	return &task{prepare: prepare, create: create}
}

type task struct {
	prepare func(ctx context.Context, n *armorch.Node) error
	create  func(ctx context.Context, l armorch.Lookup) (any, error)
}

func (t *task) Prepare(ctx context.Context, n *armorch.Node) error {
	if t.prepare == nil {
		return nil
	}
	return t.prepare(ctx, n)
}

func (t *task) Create(ctx context.Context, l armorch.Lookup) (any, error) {
	return t.create(ctx, l)
}

// Result is delivered by CreateRootAsync.
type Result[T any] struct {
	Value  T
	Report *armorch.Report
	Err    error
}

// CreateRoot creates node with all of its dependencies and returns its typed
// result. Any failed node of the graph, including post-run work, fails the
// call; when the root itself resolved, its value is returned along with the
// error.
func CreateRoot[T any](ctx context.Context, node *armorch.Node, opts ...armorch.CreateOption) (T, error) {
	report, err := armorch.Create(ctx, node, opts...)
	return rootResult[T](report, err)
}

// CreateRootAsync is CreateRoot with independent nodes created concurrently.
func CreateRootAsync[T any](ctx context.Context, node *armorch.Node, opts ...armorch.CreateOption) <-chan Result[T] {
	out := make(chan Result[T], 1)
	go func() {
		defer close(out)
		res := <-armorch.CreateAsync(ctx, node, opts...)
		v, err := rootResult[T](res.Report, res.Err)
		out <- Result[T]{Value: v, Report: res.Report, Err: err}
	}()
	return out
}

func rootResult[T any](report *armorch.Report, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	root := report.Root()
	if root.State != armorch.StateResolved {
		if err := report.Err(); err != nil {
			return zero, err
		}
		return zero, root.Err
	}
	v, ok := root.Result.(T)
	if !ok {
		return zero, errors.New("unexpected result type for " + root.Name)
	}
	return v, report.Err()
}
