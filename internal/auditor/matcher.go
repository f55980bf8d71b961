package auditor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ZhaoYaoJing/internal/advisorydb"
	"ZhaoYaoJing/internal/model"
	"ZhaoYaoJing/internal/utils"
)

// MatchResult 匹配阶段的全部产出
type MatchResult struct {
	Findings   []model.Finding
	Suppressed []model.SuppressedFinding
	Failures   []model.PackageFailure
}

// Matcher 审计匹配器：把依赖图与通告索引交叉比对
// 输入全部只读，节点之间无共享可变状态，按包并发展开
type Matcher struct {
	index        *advisorydb.Index
	suppressions []model.Suppression
	now          time.Time
	workers      int
	logger       *utils.Logger
}

// NewMatcher 构造匹配器
// now 是本次运行唯一的一次时钟读数，抑制规则过期判定全部以它为准
func NewMatcher(index *advisorydb.Index, suppressions []model.Suppression, now time.Time, workers int) *Matcher {
	if workers <= 0 {
		workers = 8
	}
	return &Matcher{
		index:        index,
		suppressions: suppressions,
		now:          now,
		workers:      workers,
		logger:       utils.NewLogger("matcher"),
	}
}

// 单个节点的匹配产出，按节点下标归位以保证结果顺序与并发调度无关
type nodeResult struct {
	findings   []model.Finding
	suppressed []model.SuppressedFinding
	failure    *model.PackageFailure
}

// Match 对依赖图的每个节点做通告匹配
// 相同 (图, 索引, 抑制规则) 输入产出完全相同的结果序列；
// 单个包的匹配失败只记诊断，不中断其余包
func (m *Matcher) Match(ctx context.Context, graph *model.DependencyGraph) (MatchResult, error) {
	nodes := graph.Nodes()
	results := make([]nodeResult, len(nodes))

	jobs := make(chan int, len(nodes))
	for i := range nodes {
		jobs <- i
	}
	close(jobs)

	workers := m.workers
	if workers > len(nodes) {
		workers = len(nodes)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				results[i] = m.matchNode(nodes[i])
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return MatchResult{}, fmt.Errorf("审计被取消: %w", err)
	}

	// 按节点顺序合并，最终规范排序交给报告层
	var out MatchResult
	for _, r := range results {
		out.Findings = append(out.Findings, r.findings...)
		out.Suppressed = append(out.Suppressed, r.suppressed...)
		if r.failure != nil {
			out.Failures = append(out.Failures, *r.failure)
		}
	}

	m.logger.Debug("匹配完成: %d 个依赖, %d 个命中, %d 个被抑制",
		len(nodes), len(out.Findings), len(out.Suppressed))

	return out, nil
}

// matchNode 匹配单个依赖节点
func (m *Matcher) matchNode(node model.DependencyNode) (result nodeResult) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("匹配 %s 时panic: %v", node.Name, r)
			result = nodeResult{failure: &model.PackageFailure{
				Package: node.Name,
				Reason:  fmt.Sprintf("匹配异常: %v", r),
			}}
		}
	}()

	for _, advisory := range m.index.Query(node.Name) {
		// 已撤回的通告不参与匹配
		if advisory.IsWithdrawn() {
			continue
		}

		if !advisory.Affected.Matches(node.Version) {
			continue
		}

		// 已安装版本本身落在patched范围内才算已修复，
		// 不能只看是否高于某个修复下界：patched可能是多段不相交的范围
		if !advisory.Patched.IsEmpty() && advisory.Patched.Matches(node.Version) {
			continue
		}

		finding := model.Finding{Dependency: node, Advisory: advisory}

		if rule, ok := m.findSuppression(node, advisory); ok {
			m.logger.Debug("命中被抑制: %s@%s %s (%s)",
				node.Name, node.Version.String(), advisory.ID, rule.Reason)
			result.suppressed = append(result.suppressed, model.SuppressedFinding{
				Finding: finding,
				Rule:    rule,
			})
			continue
		}

		result.findings = append(result.findings, finding)
	}

	return result
}

// findSuppression 查找适用于该命中的抑制规则
// 规则需同时满足：ID或包名匹配、版本约束为空或命中、未过期
func (m *Matcher) findSuppression(node model.DependencyNode, advisory model.AdvisoryRecord) (model.Suppression, bool) {
	for _, rule := range m.suppressions {
		if rule.ID != "" && rule.ID != advisory.ID {
			continue
		}
		if rule.Package != "" && rule.Package != node.Name {
			continue
		}
		if !rule.Version.IsEmpty() && !rule.Version.Matches(node.Version) {
			continue
		}
		if rule.Expires != nil && !rule.Expires.After(m.now) {
			// 过期的抑制规则视同不存在
			continue
		}
		return rule, true
	}
	return model.Suppression{}, false
}
