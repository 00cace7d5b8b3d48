// Package healthgraph is the health dependency graph (C11): probes form a
// DAG of dependencies, evaluated in topological order, with cycle
// rejection, per-probe timeouts, recovery scheduling, and blast-radius
// ("failure impact") queries. Built on pkg/toposort, generalised to carry
// probe handles and cached results instead of bare node names.
package healthgraph

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sumatoshi-tech/telemetry/internal/terr"
	"github.com/Sumatoshi-tech/telemetry/pkg/alg/stats"
	"github.com/Sumatoshi-tech/telemetry/pkg/toposort"
)

// latencyEMAAlpha smooths probe duration history so a single slow check
// doesn't flip a node's latency trend; recent samples still dominate.
const latencyEMAAlpha = 0.3

// ProbeType classifies a health probe's role.
type ProbeType int

// Supported probe types.
const (
	ProbeLiveness ProbeType = iota
	ProbeReadiness
	ProbeStartup
)

// Status is a probe's evaluated health state.
type Status int

// Supported statuses.
const (
	StatusUnknown Status = iota
	StatusHealthy
	StatusDegraded
	StatusUnhealthy
)

// Operational reports whether status counts as "operational" for the
// purpose of a dependent's dependency check (healthy or degraded).
func (s Status) Operational() bool {
	return s == StatusHealthy || s == StatusDegraded
}

// String renders the status for logs and CLI output.
func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Result is the outcome of evaluating a probe.
type Result struct {
	Status    Status
	Message   string
	Duration  time.Duration
	Timestamp time.Time
	Metadata  map[string]string
}

// ProbeFunc evaluates a node's health.
type ProbeFunc func(ctx context.Context) Result

// RecoveryFunc attempts to recover a node from a non-operational state.
type RecoveryFunc func(ctx context.Context) error

// node holds a probe's registration and cached evaluation state.
type node struct {
	mu sync.Mutex

	name      string
	probeType ProbeType
	critical  bool
	timeout   time.Duration
	probe     ProbeFunc
	recovery  RecoveryFunc

	lastResult       Result
	lastCheck        time.Time
	recoveryAttempts int
	latency          *stats.EMA
}

// Config configures a Graph's scheduler and recovery policy.
type Config struct {
	CheckInterval       time.Duration
	CacheDuration       time.Duration
	AutoRecovery        bool
	RecoveryDelay       time.Duration
	MaxRecoveryAttempts int
}

// Graph is a dependency DAG of health probes.
type Graph struct {
	cfg Config

	mu    sync.RWMutex
	dag   *toposort.Graph
	nodes map[string]*node

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// New constructs a Graph per cfg.
func New(cfg Config) *Graph {
	return &Graph{
		cfg:   cfg,
		dag:   toposort.NewGraph(),
		nodes: make(map[string]*node),
	}
}

// AddNode registers a probe. Duplicate names are rejected with
// already_exists.
func (g *Graph) AddNode(name string, probeType ProbeType, critical bool, timeout time.Duration, probe ProbeFunc) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[name]; exists {
		return terr.New(terr.KindAlreadyExists, "healthgraph.AddNode", "node already registered: "+name)
	}

	g.dag.AddNode(name)
	g.nodes[name] = &node{
		name: name, probeType: probeType, critical: critical, timeout: timeout, probe: probe,
		latency: stats.NewEMA(latencyEMAAlpha),
	}

	return nil
}

// SetRecovery registers a recovery handler for an existing node.
func (g *Graph) SetRecovery(name string, fn RecoveryFunc) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[name]
	if !ok {
		return terr.New(terr.KindNotFound, "healthgraph.SetRecovery", "node not found: "+name)
	}

	n.recovery = fn

	return nil
}

// AddDependency records that dependent depends on dependency (edge
// dependency -> dependent). Both names must already be registered.
// Rejected with invalid_state if the edge would create a cycle, leaving
// the graph unchanged.
func (g *Graph) AddDependency(dependent, dependency string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[dependent]; !ok {
		return terr.New(terr.KindNotFound, "healthgraph.AddDependency", "dependent not found: "+dependent)
	}

	if _, ok := g.nodes[dependency]; !ok {
		return terr.New(terr.KindNotFound, "healthgraph.AddDependency", "dependency not found: "+dependency)
	}

	g.dag.AddEdge(dependency, dependent)

	if _, ok := g.dag.Toposort(); !ok {
		g.dag.RemoveEdge(dependency, dependent)

		return terr.New(terr.KindInvalidState, "healthgraph.AddDependency", "would create a dependency cycle")
	}

	return nil
}

// TopologicalSort returns every registered node name in dependency order
// (dependencies before dependents).
func (g *Graph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	order, ok := g.dag.Toposort()
	if !ok {
		return nil, terr.New(terr.KindInvalidState, "healthgraph.TopologicalSort", "graph contains a cycle")
	}

	return order, nil
}

// ExportGraphviz renders the probe dependency graph as a Graphviz digraph
// named name, nodes positioned by topological order, for piping into
// `dot` to visualize blast radius at a glance. Returns invalid_state if
// the graph currently contains a cycle.
func (g *Graph) ExportGraphviz(name string) (string, error) {
	order, err := g.TopologicalSort()
	if err != nil {
		return "", err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.dag.Serialize(name, order), nil
}

// Check evaluates a single node's probe, applying its configured timeout.
// Returns not_found if name isn't registered.
func (g *Graph) Check(ctx context.Context, name string) (Result, error) {
	g.mu.RLock()
	n, ok := g.nodes[name]
	g.mu.RUnlock()

	if !ok {
		return Result{}, terr.New(terr.KindNotFound, "healthgraph.Check", "node not found: "+name)
	}

	return g.evaluate(ctx, n), nil
}

// CheckWithDependencies evaluates name's dependencies first; if any is
// non-operational, name is reported unhealthy without invoking its own
// probe.
func (g *Graph) CheckWithDependencies(ctx context.Context, name string) (Result, error) {
	g.mu.RLock()
	n, ok := g.nodes[name]
	deps := g.dag.FindParents(name)
	g.mu.RUnlock()

	if !ok {
		return Result{}, terr.New(terr.KindNotFound, "healthgraph.CheckWithDependencies", "node not found: "+name)
	}

	for _, dep := range deps {
		depResult, err := g.cachedOrEvaluate(ctx, dep)
		if err != nil {
			continue
		}

		if !depResult.Status.Operational() {
			return Result{
				Status:    StatusUnhealthy,
				Message:   "dependency not operational: " + dep,
				Timestamp: time.Now(),
			}, nil
		}
	}

	return g.evaluate(ctx, n), nil
}

func (g *Graph) cachedOrEvaluate(ctx context.Context, name string) (Result, error) {
	g.mu.RLock()
	n, ok := g.nodes[name]
	g.mu.RUnlock()

	if !ok {
		return Result{}, terr.New(terr.KindNotFound, "healthgraph.cachedOrEvaluate", "node not found: "+name)
	}

	n.mu.Lock()
	cached := n.lastResult
	fresh := g.cfg.CacheDuration > 0 && time.Since(n.lastCheck) < g.cfg.CacheDuration
	n.mu.Unlock()

	if fresh {
		return cached, nil
	}

	return g.evaluate(ctx, n), nil
}

// evaluate runs n's probe with its timeout, caches the result, and
// triggers recovery scheduling on a non-operational outcome.
func (g *Graph) evaluate(ctx context.Context, n *node) Result {
	start := time.Now()

	resultCh := make(chan Result, 1)

	go func() {
		resultCh <- n.probe(ctx)
	}()

	var result Result

	timeout := n.timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	select {
	case result = <-resultCh:
	case <-time.After(timeout):
		result = Result{Status: StatusUnhealthy, Message: "probe timed out", Timestamp: time.Now()}
	}

	result.Duration = time.Since(start)
	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now()
	}

	n.mu.Lock()
	n.lastResult = result
	n.lastCheck = time.Now()
	n.latency.Update(result.Duration.Seconds())
	n.mu.Unlock()

	if !result.Status.Operational() && g.cfg.AutoRecovery && n.recovery != nil {
		g.scheduleRecovery(n)
	}

	return result
}

func (g *Graph) scheduleRecovery(n *node) {
	n.mu.Lock()
	attempts := n.recoveryAttempts
	n.mu.Unlock()

	if g.cfg.MaxRecoveryAttempts > 0 && attempts >= g.cfg.MaxRecoveryAttempts {
		return
	}

	g.wg.Add(1)

	go func() {
		defer g.wg.Done()

		time.Sleep(g.cfg.RecoveryDelay)

		n.mu.Lock()
		n.recoveryAttempts++
		n.mu.Unlock()

		if err := n.recovery(context.Background()); err == nil {
			n.mu.Lock()
			n.recoveryAttempts = 0
			n.mu.Unlock()
		}
	}()
}

// LatencyEMA returns node's exponentially smoothed probe duration in
// seconds. Returns not_found if name isn't registered, or zero with ok=false
// if the node has never been evaluated.
func (g *Graph) LatencyEMA(name string) (value float64, ok bool, err error) {
	g.mu.RLock()
	n, exists := g.nodes[name]
	g.mu.RUnlock()

	if !exists {
		return 0, false, terr.New(terr.KindNotFound, "healthgraph.LatencyEMA", "node not found: "+name)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	return n.latency.Value(), n.latency.Initialized(), nil
}

// GetFailureImpact returns the transitive closure of name's dependents:
// the set of nodes that would degrade if name failed.
func (g *Graph) GetFailureImpact(name string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[name]; !ok {
		return nil, terr.New(terr.KindNotFound, "healthgraph.GetFailureImpact", "node not found: "+name)
	}

	seen := make(map[string]bool)
	queue := g.dag.FindChildren(name)

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if seen[cur] {
			continue
		}

		seen[cur] = true
		queue = append(queue, g.dag.FindChildren(cur)...)
	}

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}

	return out, nil
}

// Start launches the background scheduler loop, which re-evaluates every
// node in topological order every CheckInterval.
func (g *Graph) Start() {
	if g.cfg.CheckInterval <= 0 {
		return
	}

	if !g.running.CompareAndSwap(false, true) {
		return
	}

	g.done = make(chan struct{})
	g.wg.Add(1)

	go g.schedulerLoop()
}

func (g *Graph) schedulerLoop() {
	defer g.wg.Done()

	ticker := time.NewTicker(g.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.evaluateAll()
		case <-g.done:
			return
		}
	}
}

func (g *Graph) evaluateAll() {
	order, err := g.TopologicalSort()
	if err != nil {
		return
	}

	ctx := context.Background()

	for _, name := range order {
		g.mu.RLock()
		n, ok := g.nodes[name]
		g.mu.RUnlock()

		if ok {
			g.evaluate(ctx, n)
		}
	}
}

// Stop halts the scheduler loop and waits for in-flight recovery
// goroutines to finish. Idempotent.
func (g *Graph) Stop() {
	if !g.running.CompareAndSwap(true, false) {
		return
	}

	close(g.done)
	g.wg.Wait()
}
