package healthgraph_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/telemetry/internal/terr"
	"github.com/Sumatoshi-tech/telemetry/pkg/healthgraph"
)

func healthyProbe(ctx context.Context) healthgraph.Result {
	return healthgraph.Result{Status: healthgraph.StatusHealthy}
}

func unhealthyProbe(ctx context.Context) healthgraph.Result {
	return healthgraph.Result{Status: healthgraph.StatusUnhealthy, Message: "boom"}
}

func addNode(t *testing.T, g *healthgraph.Graph, name string, probe healthgraph.ProbeFunc) {
	t.Helper()
	require.NoError(t, g.AddNode(name, healthgraph.ProbeReadiness, false, time.Second, probe))
}

func TestGraph_CycleRejectionScenario(t *testing.T) {
	g := healthgraph.New(healthgraph.Config{})

	addNode(t, g, "A", healthyProbe)
	addNode(t, g, "B", healthyProbe)
	addNode(t, g, "C", healthyProbe)

	require.NoError(t, g.AddDependency("A", "B"))
	require.NoError(t, g.AddDependency("B", "C"))

	err := g.AddDependency("C", "A")
	require.Error(t, err)

	var te *terr.Error

	require.ErrorAs(t, err, &te)
	assert.Equal(t, terr.KindInvalidState, te.Kind)

	order, err := g.TopologicalSort()
	require.NoError(t, err)
	assert.Len(t, order, 3)
}

func TestGraph_ExportGraphvizRendersDependencyEdges(t *testing.T) {
	g := healthgraph.New(healthgraph.Config{})

	addNode(t, g, "api", healthyProbe)
	addNode(t, g, "db", healthyProbe)

	require.NoError(t, g.AddDependency("api", "db"))

	dot, err := g.ExportGraphviz("ServiceHealth")
	require.NoError(t, err)
	assert.Contains(t, dot, "digraph ServiceHealth {")
	assert.Contains(t, dot, "db")
	assert.Contains(t, dot, "api")
}

func TestGraph_AddNodeRejectsDuplicates(t *testing.T) {
	g := healthgraph.New(healthgraph.Config{})

	addNode(t, g, "A", healthyProbe)

	err := g.AddNode("A", healthgraph.ProbeReadiness, false, time.Second, healthyProbe)
	require.Error(t, err)

	var te *terr.Error

	require.ErrorAs(t, err, &te)
	assert.Equal(t, terr.KindAlreadyExists, te.Kind)
}

func TestGraph_CheckWithDependenciesReportsUnhealthyWithoutInvokingProbe(t *testing.T) {
	g := healthgraph.New(healthgraph.Config{})

	invoked := false
	addNode(t, g, "db", unhealthyProbe)
	require.NoError(t, g.AddNode("api", healthgraph.ProbeReadiness, true, time.Second, func(ctx context.Context) healthgraph.Result {
		invoked = true

		return healthgraph.Result{Status: healthgraph.StatusHealthy}
	}))

	require.NoError(t, g.AddDependency("api", "db"))

	result, err := g.CheckWithDependencies(context.Background(), "api")
	require.NoError(t, err)
	assert.Equal(t, healthgraph.StatusUnhealthy, result.Status)
	assert.False(t, invoked)
}

func TestGraph_CheckTimesOutSlowProbe(t *testing.T) {
	g := healthgraph.New(healthgraph.Config{})

	require.NoError(t, g.AddNode("slow", healthgraph.ProbeReadiness, false, 10*time.Millisecond, func(ctx context.Context) healthgraph.Result {
		time.Sleep(100 * time.Millisecond)

		return healthgraph.Result{Status: healthgraph.StatusHealthy}
	}))

	result, err := g.Check(context.Background(), "slow")
	require.NoError(t, err)
	assert.Equal(t, healthgraph.StatusUnhealthy, result.Status)
}

func TestGraph_GetFailureImpactReturnsTransitiveDependents(t *testing.T) {
	g := healthgraph.New(healthgraph.Config{})

	addNode(t, g, "db", healthyProbe)
	addNode(t, g, "api", healthyProbe)
	addNode(t, g, "web", healthyProbe)

	require.NoError(t, g.AddDependency("api", "db"))
	require.NoError(t, g.AddDependency("web", "api"))

	impact, err := g.GetFailureImpact("db")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"api", "web"}, impact)
}

func TestGraph_RecoveryIsScheduledOnUnhealthyResult(t *testing.T) {
	g := healthgraph.New(healthgraph.Config{AutoRecovery: true, RecoveryDelay: 5 * time.Millisecond, MaxRecoveryAttempts: 3})

	addNode(t, g, "flaky", unhealthyProbe)

	recovered := make(chan struct{}, 1)
	require.NoError(t, g.SetRecovery("flaky", func(ctx context.Context) error {
		recovered <- struct{}{}

		return nil
	}))

	_, err := g.Check(context.Background(), "flaky")
	require.NoError(t, err)

	select {
	case <-recovered:
	case <-time.After(time.Second):
		t.Fatal("recovery handler was not invoked")
	}
}

func TestStatus_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "healthy", healthgraph.StatusHealthy.String())
	assert.Equal(t, "degraded", healthgraph.StatusDegraded.String())
	assert.Equal(t, "unhealthy", healthgraph.StatusUnhealthy.String())
	assert.Equal(t, "unknown", healthgraph.StatusUnknown.String())
}

func TestGraph_LatencyEMA(t *testing.T) {
	t.Parallel()

	g := healthgraph.New(healthgraph.Config{})
	addNode(t, g, "svc", healthyProbe)

	_, ok, err := g.LatencyEMA("svc")
	require.NoError(t, err)
	assert.False(t, ok, "no evaluation has run yet")

	_, err = g.Check(context.Background(), "svc")
	require.NoError(t, err)

	value, ok, err := g.LatencyEMA("svc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.GreaterOrEqual(t, value, 0.0)

	_, _, err = g.LatencyEMA("missing")
	require.Error(t, err)
}
