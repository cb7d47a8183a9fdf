package engine

import (
	"fmt"
	"strings"

	"github.com/stackplan-io/stackplan/internal/ir"
)

// DAG represents a directed acyclic graph of resources for dependency ordering.
type DAG struct {
	nodes    map[string]*dagNode
	order    []string // topological order (creation order)
	revOrder []string // reverse topological order (destruction order)
}

type dagNode struct {
	addr     string
	edges    []string // resources this node depends on
	revEdges []string // resources that depend on this node
}

// BuildDAG constructs a dependency graph from resources. It resolves both
// explicit DependsOn and implicit ptr:// references. Every reference must
// resolve to a declared resource; a dangling reference is a fatal error, as
// is a dependency cycle.
func BuildDAG(resources []*ir.Resource) (*DAG, error) {
	dag := &DAG{
		nodes: make(map[string]*dagNode),
	}

	for _, res := range resources {
		addr := resourceAddr(res)
		if _, dup := dag.nodes[addr]; dup {
			return nil, fmt.Errorf("duplicate resource address %s", addr)
		}
		dag.nodes[addr] = &dagNode{addr: addr}
	}

	for _, res := range resources {
		addr := resourceAddr(res)
		node := dag.nodes[addr]

		for _, dep := range res.DependsOn {
			if _, ok := dag.nodes[dep]; !ok {
				return nil, fmt.Errorf("resource %s depends on undeclared resource %s", addr, dep)
			}
			node.edges = append(node.edges, dep)
		}

		for _, ref := range extractPtrRefs(res.Properties) {
			depAddr := ptrRefToAddr(ref)
			if depAddr == "" {
				return nil, fmt.Errorf("resource %s has malformed reference %q", addr, ref)
			}
			if _, ok := dag.nodes[depAddr]; !ok {
				return nil, fmt.Errorf("resource %s references undeclared resource %s", addr, depAddr)
			}
			node.edges = append(node.edges, depAddr)
		}
	}

	for addr, node := range dag.nodes {
		for _, dep := range node.edges {
			dag.nodes[dep].revEdges = append(dag.nodes[dep].revEdges, addr)
		}
	}

	order, err := dag.topoSort()
	if err != nil {
		return nil, err
	}
	dag.order = order

	dag.revOrder = make([]string, len(order))
	for i, addr := range order {
		dag.revOrder[len(order)-1-i] = addr
	}

	return dag, nil
}

// BuildDAGFromState constructs a dependency graph from state resources (for destroy).
// State dependencies may name resources no longer tracked; those get synthetic nodes
// instead of failing, since destroy must be able to proceed from imperfect state.
func BuildDAGFromState(resources []*ir.ResourceState) (*DAG, error) {
	dag := &DAG{
		nodes: make(map[string]*dagNode),
	}

	for _, res := range resources {
		addr := fmt.Sprintf("%s.%s", res.Type, res.Name)
		node := &dagNode{addr: addr}
		node.edges = append(node.edges, res.Dependencies...)
		dag.nodes[addr] = node
	}

	for _, node := range dag.nodes {
		for _, dep := range node.edges {
			if _, ok := dag.nodes[dep]; !ok {
				dag.nodes[dep] = &dagNode{addr: dep}
			}
		}
	}

	for addr, node := range dag.nodes {
		for _, dep := range node.edges {
			dag.nodes[dep].revEdges = append(dag.nodes[dep].revEdges, addr)
		}
	}

	order, err := dag.topoSort()
	if err != nil {
		return nil, err
	}
	dag.order = order

	dag.revOrder = make([]string, len(order))
	for i, addr := range order {
		dag.revOrder[len(order)-1-i] = addr
	}

	return dag, nil
}

// CreationOrder returns resources in dependency-respecting creation order.
func (d *DAG) CreationOrder() []string {
	return d.order
}

// DestructionOrder returns resources in reverse dependency order (safe for deletion).
func (d *DAG) DestructionOrder() []string {
	return d.revOrder
}

// Dependencies returns the direct dependencies of a given address.
func (d *DAG) Dependencies(addr string) []string {
	if node, ok := d.nodes[addr]; ok {
		return node.edges
	}
	return nil
}

// TransitiveDeps returns every resource the given address depends on,
// directly or indirectly.
func (d *DAG) TransitiveDeps(addr string) []string {
	seen := make(map[string]bool)
	var walk func(string)
	walk = func(a string) {
		node, ok := d.nodes[a]
		if !ok {
			return
		}
		for _, dep := range node.edges {
			if !seen[dep] {
				seen[dep] = true
				walk(dep)
			}
		}
	}
	walk(addr)

	deps := make([]string, 0, len(seen))
	for dep := range seen {
		deps = append(deps, dep)
	}
	return deps
}

// topoSort performs Kahn's algorithm for topological sorting.
func (d *DAG) topoSort() ([]string, error) {
	inDegree := make(map[string]int, len(d.nodes))
	for addr := range d.nodes {
		inDegree[addr] = len(d.nodes[addr].edges)
	}

	var queue []string
	for addr, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, addr)
		}
	}

	var sorted []string
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		sorted = append(sorted, node)

		for _, dependent := range d.nodes[node].revEdges {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(sorted) != len(d.nodes) {
		var stuck []string
		for addr, deg := range inDegree {
			if deg > 0 {
				stuck = append(stuck, addr)
			}
		}
		return nil, fmt.Errorf("dependency cycle detected in resource graph (involving %s)", strings.Join(stuck, ", "))
	}

	return sorted, nil
}

// ResourceAddr returns the address of a resource (type.name).
func ResourceAddr(res *ir.Resource) string {
	return resourceAddr(res)
}

func resourceAddr(res *ir.Resource) string {
	t := res.Type
	if t == "" {
		t = "null_resource"
	}
	return fmt.Sprintf("%s.%s", t, res.Name)
}

// extractPtrRefs extracts all ptr:// references from a property value.
func extractPtrRefs(v any) []string {
	var refs []string
	switch val := v.(type) {
	case string:
		if strings.HasPrefix(val, PtrRefScheme) {
			refs = append(refs, val)
		}
	case map[string]any:
		for _, v := range val {
			refs = append(refs, extractPtrRefs(v)...)
		}
	case map[any]any:
		for _, v := range val {
			refs = append(refs, extractPtrRefs(v)...)
		}
	case []any:
		for _, v := range val {
			refs = append(refs, extractPtrRefs(v)...)
		}
	}
	return refs
}

// PtrRefScheme prefixes cross-resource references inside properties and
// outputs, e.g. "ptr://aws:EC2.SecurityGroup/web/id".
const PtrRefScheme = "ptr://"

// ptrRefToAddr converts a ptr:// reference to a resource address.
// ptr://aws:EC2.SecurityGroup/web/id -> aws:EC2.SecurityGroup.web
func ptrRefToAddr(ref string) string {
	if !strings.HasPrefix(ref, PtrRefScheme) {
		return ""
	}
	path := ref[len(PtrRefScheme):]
	// Format: provider:Type/name/attribute
	parts := strings.SplitN(path, "/", 3)
	if len(parts) < 2 {
		return ""
	}
	return fmt.Sprintf("%s.%s", parts[0], parts[1])
}

// ptrRefAttr returns the attribute segment of a ptr:// reference, or "" if
// the reference has no attribute.
func ptrRefAttr(ref string) string {
	if !strings.HasPrefix(ref, PtrRefScheme) {
		return ""
	}
	parts := strings.SplitN(ref[len(PtrRefScheme):], "/", 3)
	if len(parts) < 3 {
		return ""
	}
	return parts[2]
}
