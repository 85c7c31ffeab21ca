// Package pipeline wires the processing stages into a lazily evaluated,
// memoised graph and builds it from a product request.
//
// Nothing runs when a plan is built. Asking a node for its value runs its
// dependencies once; every later request, from any goroutine, reuses the
// stored result. A composite shared by several styles is therefore computed
// a single time.
package pipeline

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/banshee-data/marine-composite/internal/observability"
	"github.com/banshee-data/marine-composite/internal/timeutil"
)

// Graph owns a set of nodes and the instrumentation they report to.
type Graph struct {
	collector *observability.Collector
	tracer    trace.Tracer
	clock     timeutil.Clock

	mu    sync.Mutex
	names []string
}

// GraphOption configures a Graph.
type GraphOption func(*Graph)

// WithCollector reports stage metrics to c.
func WithCollector(c *observability.Collector) GraphOption {
	return func(g *Graph) { g.collector = c }
}

// WithTracer records a span per node execution with t instead of the
// global tracer provider.
func WithTracer(t trace.Tracer) GraphOption {
	return func(g *Graph) { g.tracer = t }
}

// WithClock times stages with c.
func WithClock(c timeutil.Clock) GraphOption {
	return func(g *Graph) { g.clock = c }
}

// NewGraph returns an empty graph.
func NewGraph(opts ...GraphOption) *Graph {
	g := &Graph{}
	for _, o := range opts {
		o(g)
	}
	if g.tracer == nil {
		g.tracer = otel.Tracer(observability.TracerName)
	}
	if g.clock == nil {
		g.clock = timeutil.RealClock{}
	}
	return g
}

// Nodes lists node names in creation order.
func (g *Graph) Nodes() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.names...)
}

// Node is a memoised computation producing a T.
type Node[T any] struct {
	graph *Graph
	name  string
	fn    func(ctx context.Context) (T, error)

	mu   sync.Mutex
	done bool
	val  T
	err  error
	runs int
}

// NewNode adds a node to g. fn runs at most once per successful or failed
// evaluation; cancellation is not remembered, so a later Get retries.
func NewNode[T any](g *Graph, name string, fn func(ctx context.Context) (T, error)) *Node[T] {
	g.mu.Lock()
	g.names = append(g.names, name)
	g.mu.Unlock()
	return &Node[T]{graph: g, name: name, fn: fn}
}

// Name returns the node name.
func (n *Node[T]) Name() string { return n.name }

// Runs returns how many times the node function has executed.
func (n *Node[T]) Runs() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.runs
}

// Get evaluates the node, or returns the stored result.
func (n *Node[T]) Get(ctx context.Context) (T, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.done {
		return n.val, n.err
	}
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}

	ctx, span := n.graph.tracer.Start(ctx, n.name, trace.WithAttributes(attribute.String("reefcomp.stage", n.name)))
	defer span.End()

	start := n.graph.clock.Now()
	n.runs++
	val, err := n.fn(ctx)
	elapsed := n.graph.clock.Since(start)

	switch {
	case err == nil:
		n.graph.collector.ObserveStage(n.name, observability.OutcomeOK, elapsed)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		n.graph.collector.ObserveStage(n.name, observability.OutcomeCanceled, elapsed)
		span.SetStatus(codes.Error, "canceled")
		var zero T
		return zero, err
	default:
		n.graph.collector.ObserveStage(n.name, observability.OutcomeError, elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	n.done, n.val, n.err = true, val, err
	return val, err
}
