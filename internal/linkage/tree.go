package linkage

import (
	"container/heap"
	"fmt"
	"math/rand"
	"sort"

	"ltga/internal/genotype"
)

type TraversalOrder string

const (
	// OrderSmallestFirst visits clusters with the fewest gene positions
	// first.
	OrderSmallestFirst TraversalOrder = "smallest_first"
	// OrderLeastLinkedFirst visits clusters in reverse creation order, so
	// the loosest (last-merged) clusters come first.
	OrderLeastLinkedFirst TraversalOrder = "least_linked_first"
)

// Node is one cluster in the tree arena. Leaves hold a single gene position
// and have no children; internal nodes own the union of their children's
// positions and the distance at which the children were merged.
type Node struct {
	Indices  []int
	Left     int
	Right    int
	Distance float64
}

// Merge records one agglomerative step for observability: the two clusters
// joined and the linkage distance between them.
type Merge struct {
	Left     []int
	Right    []int
	Distance float64
}

// Tree is a binary hierarchical clustering over the gene positions
// {0..n-1}: n leaves plus n-1 internal merge nodes, stored as an arena
// addressed by index. It is rebuilt from population statistics every
// generation and carries no identity across rebuilds.
type Tree struct {
	nodes     []Node
	leafCount int
	// creation holds arena indexes in mask order: leaves in the shuffled
	// order clustering started from, then merges in creation order. The
	// root is excluded; mixing with the full genome is a no-op.
	creation []int
}

func (t *Tree) LeafCount() int  { return t.leafCount }
func (t *Tree) MergeCount() int { return len(t.nodes) - t.leafCount }
func (t *Tree) Root() int       { return len(t.nodes) - 1 }
func (t *Tree) Node(i int) Node { return t.nodes[i] }

// Masks returns the cluster index subsets to be tried as crossover masks,
// ordered per the requested traversal. The root cluster is excluded.
func (t *Tree) Masks(order TraversalOrder) [][]int {
	masks := make([][]int, 0, len(t.creation))
	switch order {
	case OrderLeastLinkedFirst:
		for i := len(t.creation) - 1; i >= 0; i-- {
			masks = append(masks, t.nodes[t.creation[i]].Indices)
		}
	default:
		for _, idx := range t.creation {
			masks = append(masks, t.nodes[idx].Indices)
		}
		sort.SliceStable(masks, func(i, j int) bool {
			return len(masks[i]) < len(masks[j])
		})
	}
	return masks
}

// Merges returns the merge sequence in creation order.
func (t *Tree) Merges() []Merge {
	merges := make([]Merge, 0, t.MergeCount())
	for i := t.leafCount; i < len(t.nodes); i++ {
		node := t.nodes[i]
		merges = append(merges, Merge{
			Left:     t.nodes[node.Left].Indices,
			Right:    t.nodes[node.Right].Indices,
			Distance: node.Distance,
		})
	}
	return merges
}

type pairEntry struct {
	dist float64
	a, b int
}

type pairHeap []pairEntry

func (h pairHeap) Len() int            { return len(h) }
func (h pairHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h pairHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *pairHeap) Push(x any)         { *h = append(*h, x.(pairEntry)) }
func (h *pairHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[:n-1]
	return entry
}

// Build runs UPGMA-style agglomerative clustering over the population's
// gene positions using the given metric. Ties for the minimum distance are
// broken uniformly at random from the run's RNG stream, which is what makes
// tree construction reproducible under a fixed seed. Exactly n-1 merges are
// performed; the final active cluster is the root.
func Build(pop *genotype.Population, metric Metric, rng *rand.Rand) (*Tree, error) {
	if metric == nil {
		return nil, fmt.Errorf("linkage metric is required")
	}
	n := pop.GenomeLength()

	nodes := make([]Node, 0, 2*n-1)
	for i := 0; i < n; i++ {
		nodes = append(nodes, Node{Indices: []int{i}, Left: -1, Right: -1})
	}

	leafOrder := rng.Perm(n)
	creation := make([]int, 0, 2*n-2)
	creation = append(creation, leafOrder...)

	if n == 1 {
		return &Tree{nodes: nodes, leafCount: 1, creation: nil}, nil
	}

	active := make(map[int]struct{}, n)
	for _, idx := range leafOrder {
		active[idx] = struct{}{}
	}

	pairs := &pairHeap{}
	for i := 0; i < len(leafOrder); i++ {
		for j := i + 1; j < len(leafOrder); j++ {
			a, b := leafOrder[i], leafOrder[j]
			*pairs = append(*pairs, pairEntry{dist: metric.Distance(nodes[a].Indices, nodes[b].Indices), a: a, b: b})
		}
	}
	heap.Init(pairs)

	candidates := make([]pairEntry, 0, 8)
	for merges := 0; merges < n-1; merges++ {
		candidates = candidates[:0]
		minDist := 0.0
		for pairs.Len() > 0 {
			top := (*pairs)[0]
			if !pairActive(active, top) {
				heap.Pop(pairs)
				continue
			}
			if len(candidates) > 0 && top.dist != minDist {
				break
			}
			minDist = top.dist
			candidates = append(candidates, heap.Pop(pairs).(pairEntry))
		}
		if len(candidates) == 0 {
			return nil, fmt.Errorf("no mergeable cluster pair left after %d merges", merges)
		}

		chosen := candidates[rng.Intn(len(candidates))]
		for _, entry := range candidates {
			if entry != chosen {
				heap.Push(pairs, entry)
			}
		}

		merged := Node{
			Indices:  append(append(make([]int, 0, len(nodes[chosen.a].Indices)+len(nodes[chosen.b].Indices)), nodes[chosen.a].Indices...), nodes[chosen.b].Indices...),
			Left:     chosen.a,
			Right:    chosen.b,
			Distance: chosen.dist,
		}
		mergedIdx := len(nodes)
		nodes = append(nodes, merged)
		delete(active, chosen.a)
		delete(active, chosen.b)

		// Push in sorted index order; map iteration order would leak into
		// heap layout and change which of several tied pairs wins.
		others := make([]int, 0, len(active))
		for other := range active {
			others = append(others, other)
		}
		sort.Ints(others)
		for _, other := range others {
			heap.Push(pairs, pairEntry{
				dist: metric.Distance(merged.Indices, nodes[other].Indices),
				a:    mergedIdx,
				b:    other,
			})
		}
		active[mergedIdx] = struct{}{}

		// The root is not a usable crossover mask.
		if len(active) > 1 {
			creation = append(creation, mergedIdx)
		}
	}

	return &Tree{nodes: nodes, leafCount: n, creation: creation}, nil
}

func pairActive(active map[int]struct{}, entry pairEntry) bool {
	if _, ok := active[entry.a]; !ok {
		return false
	}
	_, ok := active[entry.b]
	return ok
}
