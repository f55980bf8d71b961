package model

import (
	"fmt"
	"sort"

	"ZhaoYaoJing/internal/version"
)

// DependencyNode 已解析的依赖节点
// 由 (名称, 版本, 来源) 三元组唯一标识，同名不同版本的节点合法共存（菱形依赖）
type DependencyNode struct {
	Name    string          `json:"name"`
	Version version.Version `json:"-"`
	Source  string          `json:"source,omitempty"`
	Direct  bool            `json:"direct"`

	// RawVersion 保留锁文件中的原始版本串，含构建元数据
	RawVersion string `json:"version"`
}

// Key 返回节点的唯一标识
func (n DependencyNode) Key() string {
	return fmt.Sprintf("%s@%s@%s", n.Name, n.Version.String(), n.Source)
}

// Edge 依赖图中的一条父子边
type Edge struct {
	Parent string `json:"parent"`
	Child  string `json:"child"`
}

// DependencyGraph 依赖图，解析完成后不可变，整个审计运行独占
type DependencyGraph struct {
	nodes []DependencyNode
	edges []Edge
}

// NewDependencyGraph 以节点和边构造依赖图
// 节点按 (名称, 版本, 来源) 排序后保存，保证后续遍历顺序确定
func NewDependencyGraph(nodes []DependencyNode, edges []Edge) *DependencyGraph {
	sorted := make([]DependencyNode, len(nodes))
	copy(sorted, nodes)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Name != sorted[j].Name {
			return sorted[i].Name < sorted[j].Name
		}
		if c := version.Compare(sorted[i].Version, sorted[j].Version); c != 0 {
			return c < 0
		}
		return sorted[i].Source < sorted[j].Source
	})

	sortedEdges := make([]Edge, len(edges))
	copy(sortedEdges, edges)
	sort.Slice(sortedEdges, func(i, j int) bool {
		if sortedEdges[i].Parent != sortedEdges[j].Parent {
			return sortedEdges[i].Parent < sortedEdges[j].Parent
		}
		return sortedEdges[i].Child < sortedEdges[j].Child
	})

	return &DependencyGraph{nodes: sorted, edges: sortedEdges}
}

// Nodes 按确定顺序返回全部节点
func (g *DependencyGraph) Nodes() []DependencyNode {
	out := make([]DependencyNode, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Edges 按确定顺序返回全部边
func (g *DependencyGraph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Len 返回节点数量
func (g *DependencyGraph) Len() int {
	return len(g.nodes)
}

// Triples 返回全部 (名称, 版本, 来源) 三元组，用于往返一致性校验
func (g *DependencyGraph) Triples() []string {
	var triples []string
	for _, n := range g.nodes {
		triples = append(triples, n.Key())
	}
	return triples
}
