package auditor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ZhaoYaoJing/internal/advisorydb"
	"ZhaoYaoJing/internal/model"
	"ZhaoYaoJing/internal/version"
)

func mustRange(t *testing.T, expr string) version.Range {
	t.Helper()
	r, err := version.ParseRange(expr)
	require.NoError(t, err, "范围表达式 %q 应当合法", expr)
	return r
}

func depNode(name, ver string) model.DependencyNode {
	return model.DependencyNode{
		Name:       name,
		Version:    version.MustParse(ver),
		RawVersion: ver,
		Source:     "registry+https://crates.io",
	}
}

func singleGraph(node model.DependencyNode) *model.DependencyGraph {
	return model.NewDependencyGraph([]model.DependencyNode{node}, nil)
}

func TestMatchBasicFinding(t *testing.T) {
	idx := advisorydb.NewIndex([]model.AdvisoryRecord{
		{
			ID:       "ADV-0001",
			Package:  "libfoo",
			Affected: mustRange(t, ">=1.0.0, <1.3.0"),
			Patched:  mustRange(t, ">=1.3.0"),
			Severity: model.SeverityHigh,
		},
	})

	m := NewMatcher(idx, nil, time.Now(), 1)
	result, err := m.Match(context.Background(), singleGraph(depNode("libfoo", "1.2.0")))
	require.NoError(t, err)

	require.Len(t, result.Findings, 1)
	assert.Equal(t, "ADV-0001", result.Findings[0].Advisory.ID)
	assert.Equal(t, "libfoo", result.Findings[0].Dependency.Name)
	assert.Empty(t, result.Suppressed)
	assert.Empty(t, result.Failures)
}

func TestMatchVersionOutsideAffected(t *testing.T) {
	idx := advisorydb.NewIndex([]model.AdvisoryRecord{
		{
			ID:       "ADV-0001",
			Package:  "libfoo",
			Affected: mustRange(t, ">=1.0.0, <1.3.0"),
			Severity: model.SeverityHigh,
		},
	})

	m := NewMatcher(idx, nil, time.Now(), 1)
	result, err := m.Match(context.Background(), singleGraph(depNode("libfoo", "1.3.0")))
	require.NoError(t, err)
	assert.Empty(t, result.Findings)
}

// patched按实际范围判定，而不是"高于修复下界即安全"：
// 修复范围可以是多段不相交的区间
func TestMatchDisjointPatchedRanges(t *testing.T) {
	idx := advisorydb.NewIndex([]model.AdvisoryRecord{
		{
			ID:       "ADV-0002",
			Package:  "libbar",
			Affected: mustRange(t, ">=1.0.0, <2.0.0"),
			Patched:  mustRange(t, "=1.0.1 || >=1.5.0"),
			Severity: model.SeverityCritical,
		},
	})

	m := NewMatcher(idx, nil, time.Now(), 1)

	cases := []struct {
		ver  string
		want int
	}{
		{"1.0.0", 1}, // 受影响且未修复
		{"1.0.1", 0}, // 落在第一段修复区间
		{"1.0.2", 1}, // 高于1.0.1但仍未修复
		{"1.4.9", 1},
		{"1.5.0", 0}, // 落在第二段修复区间
		{"1.9.0", 0},
	}
	for _, c := range cases {
		result, err := m.Match(context.Background(), singleGraph(depNode("libbar", c.ver)))
		require.NoError(t, err)
		assert.Len(t, result.Findings, c.want, "版本 %s 的命中数不符", c.ver)
	}
}

// 无patched范围表示尚无修复版本，受影响即命中
func TestMatchNoPatchedRange(t *testing.T) {
	idx := advisorydb.NewIndex([]model.AdvisoryRecord{
		{
			ID:       "ADV-0003",
			Package:  "libfoo",
			Affected: mustRange(t, ">=1.0.0"),
			Severity: model.SeverityLow,
		},
	})

	m := NewMatcher(idx, nil, time.Now(), 1)
	result, err := m.Match(context.Background(), singleGraph(depNode("libfoo", "99.0.0")))
	require.NoError(t, err)
	assert.Len(t, result.Findings, 1)
}

func TestMatchWithdrawnExcluded(t *testing.T) {
	withdrawn := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	idx := advisorydb.NewIndex([]model.AdvisoryRecord{
		{
			ID:        "ADV-0004",
			Package:   "libfoo",
			Affected:  mustRange(t, ">=0.1.0"),
			Severity:  model.SeverityCritical,
			Withdrawn: &withdrawn,
		},
	})

	m := NewMatcher(idx, nil, time.Now(), 1)
	result, err := m.Match(context.Background(), singleGraph(depNode("libfoo", "1.0.0")))
	require.NoError(t, err)
	assert.Empty(t, result.Findings, "已撤回的通告不应产生命中")
}

func TestMatchSuppression(t *testing.T) {
	idx := advisorydb.NewIndex([]model.AdvisoryRecord{
		{
			ID:       "ADV-0005",
			Package:  "libfoo",
			Affected: mustRange(t, ">=1.0.0, <2.0.0"),
			Severity: model.SeverityMedium,
		},
	})
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("按ID抑制", func(t *testing.T) {
		rules := []model.Suppression{{ID: "ADV-0005", Reason: "误报，已人工确认"}}
		m := NewMatcher(idx, rules, now, 1)
		result, err := m.Match(context.Background(), singleGraph(depNode("libfoo", "1.5.0")))
		require.NoError(t, err)
		assert.Empty(t, result.Findings)
		require.Len(t, result.Suppressed, 1)
		assert.Equal(t, "ADV-0005", result.Suppressed[0].Finding.Advisory.ID)
		assert.Equal(t, "误报，已人工确认", result.Suppressed[0].Rule.Reason)
	})

	t.Run("ID不匹配则不抑制", func(t *testing.T) {
		rules := []model.Suppression{{ID: "ADV-9999", Reason: "别的通告"}}
		m := NewMatcher(idx, rules, now, 1)
		result, err := m.Match(context.Background(), singleGraph(depNode("libfoo", "1.5.0")))
		require.NoError(t, err)
		assert.Len(t, result.Findings, 1)
		assert.Empty(t, result.Suppressed)
	})

	t.Run("按包名加版本约束抑制", func(t *testing.T) {
		rules := []model.Suppression{{
			Package: "libfoo",
			Version: mustRange(t, "<1.6.0"),
			Reason:  "旧版本不在线上环境",
		}}
		m := NewMatcher(idx, rules, now, 1)

		result, err := m.Match(context.Background(), singleGraph(depNode("libfoo", "1.5.0")))
		require.NoError(t, err)
		assert.Len(t, result.Suppressed, 1)

		// 版本约束不命中时规则不适用
		result, err = m.Match(context.Background(), singleGraph(depNode("libfoo", "1.7.0")))
		require.NoError(t, err)
		assert.Len(t, result.Findings, 1)
		assert.Empty(t, result.Suppressed)
	})

	t.Run("过期规则视同不存在", func(t *testing.T) {
		expired := now.Add(-time.Hour)
		live := now.Add(time.Hour)

		rules := []model.Suppression{{ID: "ADV-0005", Expires: &expired, Reason: "限期豁免"}}
		m := NewMatcher(idx, rules, now, 1)
		result, err := m.Match(context.Background(), singleGraph(depNode("libfoo", "1.5.0")))
		require.NoError(t, err)
		assert.Len(t, result.Findings, 1, "过期规则不应再抑制命中")
		assert.Empty(t, result.Suppressed)

		rules = []model.Suppression{{ID: "ADV-0005", Expires: &live, Reason: "限期豁免"}}
		m = NewMatcher(idx, rules, now, 1)
		result, err = m.Match(context.Background(), singleGraph(depNode("libfoo", "1.5.0")))
		require.NoError(t, err)
		assert.Empty(t, result.Findings)
		assert.Len(t, result.Suppressed, 1)
	})
}

// 相同输入多次运行必须产出完全相同的结果序列，与并发度无关
func TestMatchDeterministic(t *testing.T) {
	var records []model.AdvisoryRecord
	var nodes []model.DependencyNode
	names := []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot"}
	for i, name := range names {
		records = append(records, model.AdvisoryRecord{
			ID:       "ADV-10" + names[i][:1],
			Package:  name,
			Affected: mustRange(t, ">=1.0.0"),
			Severity: model.Severity(i % 5),
		})
		nodes = append(nodes, depNode(name, "1.0.0"), depNode(name, "2.0.0"))
	}
	idx := advisorydb.NewIndex(records)
	graph := model.NewDependencyGraph(nodes, nil)

	baseline, err := NewMatcher(idx, nil, time.Now(), 1).Match(context.Background(), graph)
	require.NoError(t, err)
	require.Len(t, baseline.Findings, len(nodes))

	for run := 0; run < 5; run++ {
		result, err := NewMatcher(idx, nil, time.Now(), 4).Match(context.Background(), graph)
		require.NoError(t, err)
		assert.Equal(t, baseline.Findings, result.Findings, "第 %d 轮并发匹配结果与基线不符", run)
	}
}

func TestMatchCancelled(t *testing.T) {
	idx := advisorydb.NewIndex(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewMatcher(idx, nil, time.Now(), 2)
	_, err := m.Match(ctx, singleGraph(depNode("libfoo", "1.0.0")))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
