package actor

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

const reportedCyclesSize = 128

// callGraph tracks which actors are blocked in a call on which other actors. Cycles that were
// already reported are remembered so a repeated deadlock warns once.
type callGraph struct {
	sync.Mutex
	*simple.DirectedGraph
	reported *lru.Cache[string, struct{}]
}

func newCallGraph() *callGraph {
	reported, err := lru.New[string, struct{}](reportedCyclesSize)
	if err != nil {
		panic(err)
	}
	return &callGraph{DirectedGraph: simple.NewDirectedGraph(), reported: reported}
}

// unreported returns the cycles that have not been reported yet and marks them as reported.
func (g *callGraph) unreported(cycles [][]graph.Node) [][]graph.Node {
	var fresh [][]graph.Node
	for _, cycle := range cycles {
		key := cycleKey(cycle)
		if ok, _ := g.reported.ContainsOrAdd(key, struct{}{}); !ok {
			fresh = append(fresh, cycle)
		}
	}
	return fresh
}

// cycleKey identifies a cycle independently of the node it starts at.
func cycleKey(cycle []graph.Node) string {
	if len(cycle) > 1 && cycle[0].ID() == cycle[len(cycle)-1].ID() {
		cycle = cycle[:len(cycle)-1]
	}
	start := 0
	for i, node := range cycle {
		if node.ID() < cycle[start].ID() {
			start = i
		}
	}
	ids := make([]string, 0, len(cycle))
	for i := range cycle {
		ids = append(ids, strconv.FormatInt(cycle[(start+i)%len(cycle)].ID(), 10))
	}
	return strings.Join(ids, "->")
}

// DetectDeadlock records that caller is blocked calling target and checks the graph of pending
// calls for cycles. A directed cycle of calls necessarily indicates a deadlock; each actor in the
// cycle is waiting on another that will never finish its own call. The returned function removes
// the edge once the call completes. It is a no-op unless deadlock detection is enabled on the
// system and both actors are local.
func (s *System) DetectDeadlock(caller, target Handle) func() {
	from, ok1 := caller.(*Ref)
	to, ok2 := target.(*Ref)
	if s.calls == nil || !ok1 || !ok2 {
		return func() {}
	}

	g := s.calls
	g.Lock()
	defer g.Unlock()
	if from == to {
		// gonum's graph panics on self edges.
		s.log.Warnf("self call detected %s", from)
		return func() {}
	}
	g.SetEdge(g.NewEdge(from, to))
	if cycles := g.unreported(topo.DirectedCyclesIn(g)); len(cycles) > 0 {
		s.logDeadlockWarnings(cycles)
	}
	return func() {
		g.Lock()
		defer g.Unlock()
		g.RemoveEdge(from.ID(), to.ID())
	}
}

func (s *System) forgetCalls(r *Ref) {
	if s.calls == nil {
		return
	}
	s.calls.Lock()
	defer s.calls.Unlock()
	if s.calls.Node(r.ID()) != nil {
		s.calls.RemoveNode(r.ID())
	}
}

func (s *System) logDeadlockWarnings(cycles [][]graph.Node) {
	var b strings.Builder
	b.WriteString("potential actor deadlocks (call cycle) detected")
	for i, cycle := range cycles {
		fmt.Fprintf(&b, "\n  %dth deadlock", i)
		for _, node := range cycle {
			fmt.Fprintf(&b, "\n    %s awaiting", node.(*Ref))
		}
	}
	s.log.Warn(b.String())
}
