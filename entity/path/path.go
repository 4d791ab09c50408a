package path

import (
	"errors"
	"fmt"
	"sort"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/railsim-ai/entity"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/input"
)

// ErrInvalidPath 路径几何无法解析，整条路径作废
var ErrInvalidPath = errors.New("invalid path")

// NodeType 路径节点类型
type NodeType int32

const (
	NodeNormal       NodeType = iota // 普通节点
	NodeWaitingPoint                 // 等待点
	NodeReversal                     // 折返点
)

func (t NodeType) String() string {
	switch t {
	case NodeWaitingPoint:
		return "waiting_point"
	case NodeReversal:
		return "reversal"
	}
	return "normal"
}

func parseNodeType(s string) (NodeType, error) {
	switch s {
	case "", "normal":
		return NodeNormal, nil
	case "waiting_point":
		return NodeWaitingPoint, nil
	case "reversal":
		return NodeReversal, nil
	}
	return NodeNormal, fmt.Errorf("unknown node type %q", s)
}

// Element 子路径中的一个区段
type Element struct {
	Section   entity.ISection
	Direction entity.Direction
	Start     float64 // 区段起点（沿通过方向偏移为0处）的里程
}

// End 区段终点的里程
func (e *Element) End() float64 {
	return e.Start + e.Section.Length()
}

// SubPath 子路径：两次折返之间方向不变的一段
type SubPath struct {
	Elements []Element
	Start    float64 // 第一个区段起点的里程
	End      float64 // 子路径终点（折返点或路径终点）的里程
}

// Node 路径节点
type Node struct {
	ID            int32
	Type          NodeType
	SubPath       int32
	RouteIndex    int32
	SectionID     int32
	Offset        float64
	WaitTime      int32
	JunctionIndex *int32
	LinkedSignal  int32
	Distance      float64 // 节点的里程
}

// Location 路径上的位置
type Location struct {
	SubPath    int32
	RouteIndex int32
	SectionID  int32            // 用于校验
	Direction  entity.Direction // 通过方向
	Offset     float64          // 沿通过方向的偏移
}

func (l Location) String() string {
	return fmt.Sprintf("(%d,%d,S%d,%v,%.1f)", l.SubPath, l.RouteIndex, l.SectionID, l.Direction, l.Offset)
}

// AIPath AI列车的路径
// 功能：把子路径与节点展开为以里程表示的位置，里程从路径起点沿路径累计
// 说明：折返后新子路径的里程接续折返点，列车车头相应前移一个车长
type AIPath struct {
	name     string
	subPaths []SubPath
	nodes    []Node
}

// New 根据路径数据与区段数据构建路径
// 功能：逐个子路径计算里程并校验节点，任何一处错误都会使整条路径作废
// 参数：pb-路径数据（调用方应先做深拷贝），sm-区段管理器
// 返回：路径或包装了ErrInvalidPath的错误
func New(pb input.Path, sm entity.ISectionManager) (*AIPath, error) {
	if len(pb.SubPaths) == 0 {
		return nil, fmt.Errorf("%w: path %q has no sub path", ErrInvalidPath, pb.Name)
	}
	p := &AIPath{name: pb.Name}

	nodes := make([]Node, 0, len(pb.Nodes))
	for i, pbNode := range pb.Nodes {
		t, err := parseNodeType(pbNode.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: path %q node %d: %v", ErrInvalidPath, pb.Name, i, err)
		}
		nodes = append(nodes, Node{
			ID:            pbNode.ID,
			Type:          t,
			SubPath:       pbNode.SubPath,
			RouteIndex:    pbNode.RouteIndex,
			SectionID:     pbNode.SectionID,
			Offset:        pbNode.Offset,
			WaitTime:      pbNode.WaitTime,
			JunctionIndex: pbNode.JunctionIndex,
			LinkedSignal:  pbNode.LinkedSignal,
		})
	}

	start := 0.
	for k, pbElems := range pb.SubPaths {
		if len(pbElems) == 0 {
			return nil, fmt.Errorf("%w: path %q sub path %d is empty", ErrInvalidPath, pb.Name, k)
		}
		sp := SubPath{Elements: make([]Element, 0, len(pbElems))}
		if k > 0 {
			// 折返点在新子路径第一个区段中的偏移
			prev := &p.subPaths[k-1]
			last := prev.Elements[len(prev.Elements)-1]
			entry := 0.
			if pbElems[0].SectionID == last.Section.ID() {
				entry = last.End() - prev.End
			}
			start = prev.End - entry
		}
		sp.Start = start
		s := start
		for i, e := range pbElems {
			sec, err := sm.GetOrError(e.SectionID)
			if err != nil {
				return nil, fmt.Errorf("%w: path %q sub path %d element %d: %v", ErrInvalidPath, pb.Name, k, i, err)
			}
			if e.Direction != int32(entity.Forward) && e.Direction != int32(entity.Reverse) {
				return nil, fmt.Errorf("%w: path %q sub path %d element %d: bad direction %d", ErrInvalidPath, pb.Name, k, i, e.Direction)
			}
			if i > 0 && e.SectionID == pbElems[i-1].SectionID {
				return nil, fmt.Errorf("%w: path %q sub path %d: section %d repeated", ErrInvalidPath, pb.Name, k, e.SectionID)
			}
			sp.Elements = append(sp.Elements, Element{Section: sec, Direction: entity.Direction(e.Direction), Start: s})
			s += sec.Length()
		}
		sp.End = s
		p.subPaths = append(p.subPaths, sp)
		// 子路径内的折返点提前结束该子路径
		for i := range nodes {
			n := &nodes[i]
			if n.SubPath != int32(k) {
				continue
			}
			if err := p.resolveNode(n); err != nil {
				return nil, fmt.Errorf("%w: path %q node %d: %v", ErrInvalidPath, pb.Name, i, err)
			}
			if n.Type == NodeReversal {
				if k == len(pb.SubPaths)-1 {
					return nil, fmt.Errorf("%w: path %q: reversal in the last sub path", ErrInvalidPath, pb.Name)
				}
				p.subPaths[k].End = n.Distance
			}
		}
	}
	for i, n := range nodes {
		if n.SubPath < 0 || int(n.SubPath) >= len(p.subPaths) {
			return nil, fmt.Errorf("%w: path %q node %d: sub path %d out of range", ErrInvalidPath, pb.Name, i, n.SubPath)
		}
		if n.Distance > p.subPaths[n.SubPath].End {
			return nil, fmt.Errorf("%w: path %q node %d lies beyond the reversal", ErrInvalidPath, pb.Name, i)
		}
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].SubPath != nodes[j].SubPath {
			return nodes[i].SubPath < nodes[j].SubPath
		}
		return nodes[i].Distance < nodes[j].Distance
	})
	p.nodes = nodes
	return p, nil
}

// resolveNode 校验节点并计算里程
func (p *AIPath) resolveNode(n *Node) error {
	sp := &p.subPaths[n.SubPath]
	if n.RouteIndex < 0 || int(n.RouteIndex) >= len(sp.Elements) {
		return fmt.Errorf("route index %d out of range", n.RouteIndex)
	}
	e := &sp.Elements[n.RouteIndex]
	if e.Section.ID() != n.SectionID {
		return fmt.Errorf("section %d mismatches route element %v", n.SectionID, e.Section)
	}
	if n.Offset < 0 || n.Offset > e.Section.Length() {
		return fmt.Errorf("offset %v outside %v", n.Offset, e.Section)
	}
	if n.JunctionIndex != nil && (*n.JunctionIndex < 0 || int(*n.JunctionIndex) >= len(sp.Elements)) {
		return fmt.Errorf("junction index %d out of range", *n.JunctionIndex)
	}
	if n.Type == NodeWaitingPoint && DecodeDelay(n.WaitTime).Kind == WaitInvalid {
		return fmt.Errorf("bad wait time %d", n.WaitTime)
	}
	n.Distance = e.Start + n.Offset
	return nil
}

func (p *AIPath) String() string {
	return fmt.Sprintf("Path %q", p.name)
}

func (p *AIPath) Name() string {
	return p.name
}

// SubPathCount 子路径数量
func (p *AIPath) SubPathCount() int32 {
	return int32(len(p.subPaths))
}

// SubPath 第k个子路径，越界返回nil
func (p *AIPath) SubPath(k int32) *SubPath {
	if k < 0 || int(k) >= len(p.subPaths) {
		return nil
	}
	return &p.subPaths[k]
}

// IsLastSubPath 是否为最后一个子路径
func (p *AIPath) IsLastSubPath(k int32) bool {
	return k == p.SubPathCount()-1
}

// Nodes 全部节点，按子路径与里程排序
func (p *AIPath) Nodes() []Node {
	return p.nodes
}

// DistanceOf 位置对应的里程
// 返回：位置无法解析（越界或区段不符）时返回entity.NeverDistance
func (p *AIPath) DistanceOf(loc Location) float64 {
	sp := p.SubPath(loc.SubPath)
	if sp == nil || loc.RouteIndex < 0 || int(loc.RouteIndex) >= len(sp.Elements) {
		return entity.NeverDistance
	}
	e := &sp.Elements[loc.RouteIndex]
	if loc.SectionID != 0 && e.Section.ID() != loc.SectionID {
		return entity.NeverDistance
	}
	if loc.Offset < 0 || loc.Offset > e.Section.Length() {
		return entity.NeverDistance
	}
	return e.Start + loc.Offset
}

// ElementIndex 里程所在的区段下标
// 说明：恰好位于两区段分界处时取后一个区段；越过子路径末端时取最后一个区段
func (sp *SubPath) ElementIndex(distance float64) int {
	i := sort.Search(len(sp.Elements), func(i int) bool {
		return sp.Elements[i].Start > distance
	}) - 1
	return lo.Clamp(i, 0, len(sp.Elements)-1)
}

// Locate 节点所在的位置
func (n *Node) Locate(p *AIPath) Location {
	e := &p.subPaths[n.SubPath].Elements[n.RouteIndex]
	return Location{
		SubPath:    n.SubPath,
		RouteIndex: n.RouteIndex,
		SectionID:  n.SectionID,
		Direction:  e.Direction,
		Offset:     n.Offset,
	}
}

// SectionOffset 把沿通过方向的偏移换算为沿区段正向的坐标
func SectionOffset(sec entity.ISection, dir entity.Direction, offset float64) float64 {
	if dir == entity.Reverse {
		return sec.Length() - offset
	}
	return offset
}

// Log 以调试级别输出各子路径的里程范围与节点数
func (p *AIPath) Log() {
	for k, sp := range p.subPaths {
		n := lo.CountBy(p.nodes, func(n Node) bool { return n.SubPath == int32(k) })
		log.Debugf("%v sub path %d: [%.1f, %.1f] %d sections, %d nodes", p, k, sp.Start, sp.End, len(sp.Elements), n)
	}
}
