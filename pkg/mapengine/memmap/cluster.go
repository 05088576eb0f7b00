package memmap

import (
	"math"
	"strconv"

	geojson "github.com/paulmach/go.geojson"
	"github.com/sudorandom/event-globe/pkg/geo"
	"github.com/sudorandom/event-globe/pkg/mapengine"
)

type clusterNode struct {
	id       int // 0 for an unclustered point
	lng, lat float64
	members  []int
}

type clusterRef struct {
	zoom, idx int
}

// clusterIndex groups a source's points per integer zoom with a greedy radius pass,
// the same shape as a supercluster: each unassigned point absorbs every unassigned
// neighbour within the pixel radius at that zoom. Levels are built lazily.
type clusterIndex struct {
	points  []*geojson.Feature
	radius  float64
	maxZoom int

	levels   map[int][]clusterNode
	rendered map[int][]*geojson.Feature
	byID     map[int]clusterRef
}

func newClusterIndex(fc *geojson.FeatureCollection, radius, maxZoom float64) *clusterIndex {
	ix := &clusterIndex{
		radius:   radius,
		maxZoom:  int(math.Floor(maxZoom)),
		levels:   make(map[int][]clusterNode),
		rendered: make(map[int][]*geojson.Feature),
		byID:     make(map[int]clusterRef),
	}
	if ix.maxZoom > 30 {
		ix.maxZoom = 30
	}
	if fc != nil {
		for _, f := range fc.Features {
			if f != nil && f.Geometry != nil && f.Geometry.IsPoint() && len(f.Geometry.Point) >= 2 {
				ix.points = append(ix.points, f)
			}
		}
	}
	return ix
}

func (ix *clusterIndex) levelFor(zoom float64) int {
	z := int(math.Floor(zoom))
	if z < 0 {
		z = 0
	}
	if z > ix.maxZoom+1 {
		z = ix.maxZoom + 1
	}
	return z
}

func (ix *clusterIndex) level(z int) []clusterNode {
	if nodes, ok := ix.levels[z]; ok {
		return nodes
	}
	nodes := ix.build(z)
	ix.levels[z] = nodes
	for i, n := range nodes {
		if n.id != 0 {
			ix.byID[n.id] = clusterRef{zoom: z, idx: i}
		}
	}
	return nodes
}

func (ix *clusterIndex) build(z int) []clusterNode {
	n := len(ix.points)
	if z > ix.maxZoom || ix.radius <= 0 {
		nodes := make([]clusterNode, n)
		for i, p := range ix.points {
			nodes[i] = clusterNode{lng: p.Geometry.Point[0], lat: p.Geometry.Point[1], members: []int{i}}
		}
		return nodes
	}

	xs := make([]float64, n)
	ys := make([]float64, n)
	cell := ix.radius
	grid := make(map[[2]int][]int)
	for i, p := range ix.points {
		xs[i], ys[i] = geo.MercatorPixel(p.Geometry.Point[0], p.Geometry.Point[1], float64(z))
		key := [2]int{int(math.Floor(xs[i] / cell)), int(math.Floor(ys[i] / cell))}
		grid[key] = append(grid[key], i)
	}

	assigned := make([]bool, n)
	r2 := ix.radius * ix.radius
	var nodes []clusterNode
	for i := 0; i < n; i++ {
		if assigned[i] {
			continue
		}
		assigned[i] = true
		members := []int{i}
		cx, cy := int(math.Floor(xs[i]/cell)), int(math.Floor(ys[i]/cell))
		for dx := -1; dx <= 1; dx++ {
			for dy := -1; dy <= 1; dy++ {
				for _, j := range grid[[2]int{cx + dx, cy + dy}] {
					if assigned[j] {
						continue
					}
					ddx, ddy := xs[j]-xs[i], ys[j]-ys[i]
					if ddx*ddx+ddy*ddy <= r2 {
						assigned[j] = true
						members = append(members, j)
					}
				}
			}
		}

		node := clusterNode{members: members}
		for _, m := range members {
			node.lng += ix.points[m].Geometry.Point[0]
			node.lat += ix.points[m].Geometry.Point[1]
		}
		node.lng /= float64(len(members))
		node.lat /= float64(len(members))
		if len(members) > 1 {
			node.id = (i << 5) + z + 1
		}
		nodes = append(nodes, node)
	}
	return nodes
}

// features returns what a clustered source renders at the given zoom: synthetic
// cluster features plus the original features for points left on their own.
func (ix *clusterIndex) features(zoom float64) []*geojson.Feature {
	z := ix.levelFor(zoom)
	if out, ok := ix.rendered[z]; ok {
		return out
	}
	nodes := ix.level(z)
	out := make([]*geojson.Feature, 0, len(nodes))
	for _, n := range nodes {
		if n.id == 0 {
			out = append(out, ix.points[n.members[0]])
			continue
		}
		f := geojson.NewPointFeature([]float64{n.lng, n.lat})
		f.ID = n.id
		f.Properties[mapengine.PropCluster] = true
		f.Properties[mapengine.PropClusterID] = n.id
		f.Properties[mapengine.PropPointCount] = len(n.members)
		f.Properties["point_count_abbreviated"] = abbreviate(len(n.members))
		out = append(out, f)
	}
	ix.rendered[z] = out
	return out
}

func (ix *clusterIndex) find(clusterID int) (clusterNode, int, bool) {
	if ref, ok := ix.byID[clusterID]; ok {
		return ix.levels[ref.zoom][ref.idx], ref.zoom, true
	}
	// The id encodes the zoom it was built at.
	z := (clusterID & 31) - 1
	if z < 0 || z > ix.maxZoom {
		return clusterNode{}, 0, false
	}
	ix.level(z)
	if ref, ok := ix.byID[clusterID]; ok {
		return ix.levels[ref.zoom][ref.idx], ref.zoom, true
	}
	return clusterNode{}, 0, false
}

func (ix *clusterIndex) leaves(clusterID, limit, offset int) ([]*geojson.Feature, bool) {
	node, _, ok := ix.find(clusterID)
	if !ok {
		return nil, false
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(node.members) {
		return []*geojson.Feature{}, true
	}
	members := node.members[offset:]
	if limit > 0 && len(members) > limit {
		members = members[:limit]
	}
	out := make([]*geojson.Feature, len(members))
	for i, m := range members {
		out[i] = ix.points[m]
	}
	return out, true
}

// expansionZoom is the first zoom at which the cluster breaks apart.
func (ix *clusterIndex) expansionZoom(clusterID int) (float64, bool) {
	node, z, ok := ix.find(clusterID)
	if !ok {
		return 0, false
	}
	probe := node.members[0]
	for zz := z + 1; zz <= ix.maxZoom; zz++ {
		for _, n := range ix.level(zz) {
			if containsInt(n.members, probe) {
				if len(n.members) < len(node.members) {
					return float64(zz), true
				}
				break
			}
		}
	}
	return float64(ix.maxZoom + 1), true
}

func containsInt(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func abbreviate(n int) string {
	switch {
	case n >= 10000:
		return strconv.Itoa(n/1000) + "k"
	case n >= 1000:
		if tenths := (n % 1000) / 100; tenths != 0 {
			return strconv.Itoa(n/1000) + "." + strconv.Itoa(tenths) + "k"
		}
		return strconv.Itoa(n/1000) + "k"
	}
	return strconv.Itoa(n)
}
