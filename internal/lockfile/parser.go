package lockfile

import (
	"errors"
	"fmt"
	"strings"

	"ZhaoYaoJing/internal/model"
	"ZhaoYaoJing/internal/utils"
	"ZhaoYaoJing/internal/version"

	"github.com/pelletier/go-toml/v2"
)

// FormatError 锁文件结构错误，致命：不完整的依赖图无法审计
type FormatError struct {
	Line   int
	Reason string
}

func (e *FormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("锁文件第 %d 行格式错误: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("锁文件格式错误: %s", e.Reason)
}

// UnresolvedVersionError 锁文件条目的版本号无法解析
type UnresolvedVersionError struct {
	Package string
	Version string
	Err     error
}

func (e *UnresolvedVersionError) Error() string {
	return fmt.Sprintf("依赖 %s 的版本 %q 无法解析: %v", e.Package, e.Version, e.Err)
}

func (e *UnresolvedVersionError) Unwrap() error {
	return e.Err
}

// Cargo.lock 风格的锁文件结构
type lockDocument struct {
	Version  int         `toml:"version"`
	Packages []lockEntry `toml:"package"`
}

type lockEntry struct {
	Name         string   `toml:"name"`
	Version      string   `toml:"version"`
	Source       string   `toml:"source"`
	Checksum     string   `toml:"checksum"`
	Dependencies []string `toml:"dependencies"`
}

// Parser 锁文件解析器
type Parser struct {
	logger *utils.Logger
}

func NewParser() *Parser {
	return &Parser{logger: utils.NewLogger("lockfile")}
}

// 解析过程中的节点状态
type nodeState struct {
	node  model.DependencyNode
	entry lockEntry
}

// Parse 将锁文件字节解析为依赖图，纯转换，无副作用
// 完全相同的 (名称, 版本, 来源) 重复条目幂等合并；
// 同名不同版本的条目原样保留（菱形依赖）
func (p *Parser) Parse(data []byte) (*model.DependencyGraph, error) {
	var doc lockDocument
	if err := toml.Unmarshal(data, &doc); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, _ := derr.Position()
			return nil, &FormatError{Line: row, Reason: derr.Error()}
		}
		return nil, &FormatError{Reason: err.Error()}
	}

	if len(doc.Packages) == 0 {
		return nil, &FormatError{Reason: "未找到任何 [[package]] 条目"}
	}

	// 收集节点，合并完全相同的三元组
	seen := make(map[string]*nodeState)
	byName := make(map[string][]*nodeState)
	var order []*nodeState

	for i, entry := range doc.Packages {
		if entry.Name == "" {
			return nil, &FormatError{Reason: fmt.Sprintf("第 %d 个 [[package]] 条目缺少 name 字段", i+1)}
		}
		if entry.Version == "" {
			return nil, &FormatError{Reason: fmt.Sprintf("依赖 %s 缺少 version 字段", entry.Name)}
		}

		ver, err := version.Parse(entry.Version)
		if err != nil {
			return nil, &UnresolvedVersionError{Package: entry.Name, Version: entry.Version, Err: err}
		}

		node := model.DependencyNode{
			Name:       entry.Name,
			Version:    ver,
			Source:     entry.Source,
			RawVersion: entry.Version,
		}

		key := node.Key()
		if existing, ok := seen[key]; ok {
			p.logger.Debug("合并重复条目: %s", key)
			// 合并时保留依赖列表的并集
			existing.entry.Dependencies = mergeDeps(existing.entry.Dependencies, entry.Dependencies)
			continue
		}

		state := &nodeState{node: node, entry: entry}
		seen[key] = state
		byName[entry.Name] = append(byName[entry.Name], state)
		order = append(order, state)
	}

	// 没有source的条目视为工作区根包，它们的依赖列表标记直接依赖
	directNames := make(map[string]bool)
	rootCount := 0
	for _, state := range order {
		if state.entry.Source == "" {
			state.node.Direct = true
			rootCount++
			for _, dep := range state.entry.Dependencies {
				name, _ := splitDepRef(dep)
				directNames[name] = true
			}
		}
	}
	for _, state := range order {
		if directNames[state.node.Name] {
			state.node.Direct = true
		}
	}

	// 解析依赖引用，构建父子边
	var edges []model.Edge
	edgeSeen := make(map[string]bool)
	for _, state := range order {
		for _, dep := range state.entry.Dependencies {
			child, err := resolveDepRef(dep, byName)
			if err != nil {
				return nil, err
			}
			edge := model.Edge{Parent: state.node.Key(), Child: child.node.Key()}
			ek := edge.Parent + "->" + edge.Child
			if edgeSeen[ek] {
				continue
			}
			edgeSeen[ek] = true
			edges = append(edges, edge)
		}
	}

	nodes := make([]model.DependencyNode, 0, len(order))
	for _, state := range order {
		nodes = append(nodes, state.node)
	}

	p.logger.Debug("锁文件解析完成: %d 个依赖, %d 条边, %d 个根包",
		len(nodes), len(edges), rootCount)

	return model.NewDependencyGraph(nodes, edges), nil
}

// 依赖引用格式为 "name" 或 "name version"
func splitDepRef(ref string) (name, ver string) {
	fields := strings.Fields(ref)
	if len(fields) == 0 {
		return "", ""
	}
	if len(fields) == 1 {
		return fields[0], ""
	}
	return fields[0], fields[1]
}

// resolveDepRef 把依赖引用解析到唯一的节点
// 只写名称时要求全图唯一；带版本时精确匹配
func resolveDepRef(ref string, byName map[string][]*nodeState) (*nodeState, error) {
	name, ver := splitDepRef(ref)
	if name == "" {
		return nil, &FormatError{Reason: "依赖引用为空"}
	}

	candidates := byName[name]
	if len(candidates) == 0 {
		return nil, &FormatError{Reason: fmt.Sprintf("依赖引用 %q 指向未声明的包", ref)}
	}

	if ver == "" {
		if len(candidates) > 1 {
			return nil, &FormatError{Reason: fmt.Sprintf("依赖引用 %q 有 %d 个候选版本，必须带版本号", ref, len(candidates))}
		}
		return candidates[0], nil
	}

	for _, c := range candidates {
		if c.entry.Version == ver {
			return c, nil
		}
	}
	return nil, &FormatError{Reason: fmt.Sprintf("依赖引用 %q 指向不存在的版本", ref)}
}

func mergeDeps(a, b []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, dep := range append(append([]string{}, a...), b...) {
		if !seen[dep] {
			seen[dep] = true
			out = append(out, dep)
		}
	}
	return out
}
