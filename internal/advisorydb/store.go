package advisorydb

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"ZhaoYaoJing/internal/model"
	"ZhaoYaoJing/internal/utils"
	"ZhaoYaoJing/internal/version"
)

// 通告feed的JSON结构（RustSec/OSV风味）
type feedDocument struct {
	Generated  string       `json:"generated"`
	Advisories []feedRecord `json:"advisories"`
}

type feedRecord struct {
	ID        string   `json:"id"`
	Package   string   `json:"package"`
	Affected  string   `json:"affected"`
	Patched   string   `json:"patched"`
	Severity  string   `json:"severity"`
	Aliases   []string `json:"aliases"`
	Summary   string   `json:"summary"`
	URL       string   `json:"url"`
	Withdrawn string   `json:"withdrawn"`
}

// LoadStats 一次加载的诊断计数
// 单条记录损坏只计数不中断，整个feed不可解析才算致命
type LoadStats struct {
	Total     int
	Malformed int
	Withdrawn int
}

// ParseFeed 解析通告feed字节为记录列表
// 损坏的记录记入诊断并跳过；feed整体结构非法返回 LoadError
func ParseFeed(data []byte, sourceName string) ([]model.AdvisoryRecord, LoadStats, error) {
	logger := utils.NewLogger("advisorydb")

	var doc feedDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, LoadStats{}, &LoadError{Source: sourceName, Reason: fmt.Sprintf("JSON解析失败: %v", err)}
	}

	var stats LoadStats
	var records []model.AdvisoryRecord

	for i, raw := range doc.Advisories {
		stats.Total++

		record, reason := convertRecord(raw)
		if reason != "" {
			stats.Malformed++
			logger.Warn("跳过第 %d 条损坏的通告记录 (id=%q): %s", i+1, raw.ID, reason)
			continue
		}

		if record.IsWithdrawn() {
			stats.Withdrawn++
		}
		records = append(records, record)
	}

	return records, stats, nil
}

// convertRecord 校验并转换单条feed记录，返回非空reason表示记录损坏
func convertRecord(raw feedRecord) (model.AdvisoryRecord, string) {
	if raw.ID == "" {
		return model.AdvisoryRecord{}, "缺少 id 字段"
	}
	if raw.Package == "" {
		return model.AdvisoryRecord{}, "缺少 package 字段"
	}
	if raw.Affected == "" {
		return model.AdvisoryRecord{}, "缺少 affected 范围"
	}

	affected, err := version.ParseRange(raw.Affected)
	if err != nil {
		return model.AdvisoryRecord{}, fmt.Sprintf("affected 范围非法: %v", err)
	}
	if !affected.Satisfiable() {
		// 矛盾范围允许构造但永远不会匹配，加载阶段直接标记无效
		return model.AdvisoryRecord{}, fmt.Sprintf("affected 范围 %q 不可满足", raw.Affected)
	}

	var patched version.Range
	if raw.Patched != "" {
		patched, err = version.ParseRange(raw.Patched)
		if err != nil {
			return model.AdvisoryRecord{}, fmt.Sprintf("patched 范围非法: %v", err)
		}
	}

	record := model.AdvisoryRecord{
		ID:       raw.ID,
		Package:  raw.Package,
		Affected: affected,
		Patched:  patched,
		Severity: model.ParseSeverity(raw.Severity),
		Aliases:  raw.Aliases,
		Summary:  raw.Summary,
		URL:      raw.URL,
	}

	if raw.Withdrawn != "" {
		ts, err := time.Parse(time.RFC3339, raw.Withdrawn)
		if err != nil {
			return model.AdvisoryRecord{}, fmt.Sprintf("withdrawn 时间戳非法: %v", err)
		}
		record.Withdrawn = &ts
	}

	return record, ""
}

// Index 按包名索引的通告集合
// 每次加载整体重建，构建完成后只读，新索引整体替换旧索引
type Index struct {
	active    map[string][]model.AdvisoryRecord
	withdrawn map[string][]model.AdvisoryRecord
	total     int
}

// NewIndex 从记录列表构建索引
// 已撤回的通告不进匹配索引，单独保留供审查查询
func NewIndex(records []model.AdvisoryRecord) *Index {
	idx := &Index{
		active:    make(map[string][]model.AdvisoryRecord),
		withdrawn: make(map[string][]model.AdvisoryRecord),
	}

	for _, r := range records {
		if r.IsWithdrawn() {
			idx.withdrawn[r.Package] = append(idx.withdrawn[r.Package], r)
		} else {
			idx.active[r.Package] = append(idx.active[r.Package], r)
		}
		idx.total++
	}

	// 包内按通告ID排序，保证查询顺序确定
	for _, m := range []map[string][]model.AdvisoryRecord{idx.active, idx.withdrawn} {
		for pkg := range m {
			recs := m[pkg]
			sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
		}
	}

	return idx
}

// Query 查询某个包的有效通告
// 返回独立副本，可重复遍历；包不存在时返回空，绝不报错
func (idx *Index) Query(pkg string) []model.AdvisoryRecord {
	recs := idx.active[pkg]
	out := make([]model.AdvisoryRecord, len(recs))
	copy(out, recs)
	return out
}

// Withdrawn 查询某个包已撤回的通告，留痕用
func (idx *Index) Withdrawn(pkg string) []model.AdvisoryRecord {
	recs := idx.withdrawn[pkg]
	out := make([]model.AdvisoryRecord, len(recs))
	copy(out, recs)
	return out
}

// Len 返回索引中的通告总数（含已撤回）
func (idx *Index) Len() int {
	return idx.total
}

// Packages 返回索引覆盖的全部包名，升序
func (idx *Index) Packages() []string {
	seen := make(map[string]bool)
	var names []string
	for pkg := range idx.active {
		if !seen[pkg] {
			seen[pkg] = true
			names = append(names, pkg)
		}
	}
	for pkg := range idx.withdrawn {
		if !seen[pkg] {
			seen[pkg] = true
			names = append(names, pkg)
		}
	}
	sort.Strings(names)
	return names
}

// CacheStatus 缓存使用情况，随报告输出
type CacheStatus struct {
	Used    bool
	Stale   bool
	Age     time.Duration
	Fetched time.Time
}

// Provider 通告存储：组合来源、缓存和新鲜度策略
type Provider struct {
	source     Source
	cache      *Cache
	maxAge     time.Duration
	allowStale bool
	force      bool
	logger     *utils.Logger
}

// NewProvider 构造通告存储
// cache 可以为 nil（不落盘）；maxAge<=0 表示缓存永远新鲜
func NewProvider(source Source, cache *Cache, maxAge time.Duration, allowStale, force bool) *Provider {
	return &Provider{
		source:     source,
		cache:      cache,
		maxAge:     maxAge,
		allowStale: allowStale,
		force:      force,
		logger:     utils.NewLogger("advisorydb"),
	}
}

// Load 产出通告索引
// 新鲜度判定只使用调用方传入的单次时钟读数，避免一次运行内时间漂移；
// 过期缓存只在显式允许时降级使用，且必须进诊断，绝不静默
func (p *Provider) Load(ctx context.Context, now time.Time) (*Index, LoadStats, CacheStatus, error) {
	// 缓存命中且新鲜时直接用缓存
	if p.cache != nil && !p.force {
		records, fetchedAt, err := p.cache.Load()
		if err == nil {
			age := now.Sub(fetchedAt)
			if p.maxAge <= 0 || age <= p.maxAge {
				p.logger.Debug("使用本地缓存 (缓存龄 %v)", age)
				return NewIndex(records), statsFromRecords(records), CacheStatus{Used: true, Age: age, Fetched: fetchedAt}, nil
			}
			p.logger.Debug("缓存已过期 (缓存龄 %v > %v)，重新拉取", age, p.maxAge)
		}
	}

	data, fetchedAt, fetchErr := p.source.Fetch(ctx)
	if fetchErr == nil {
		records, stats, err := ParseFeed(data, p.source.Describe())
		if err != nil {
			return nil, LoadStats{}, CacheStatus{}, err
		}

		if p.cache != nil {
			if err := p.cache.Save(records, fetchedAt, p.source.Describe()); err != nil {
				// 缓存写失败不影响本次审计
				p.logger.Warn("写入通告缓存失败: %v", err)
			}
		}
		return NewIndex(records), stats, CacheStatus{}, nil
	}

	// 拉取失败：显式允许时降级到过期缓存，并在诊断中如实上报
	if p.cache != nil && p.allowStale {
		records, cachedAt, cacheErr := p.cache.Load()
		if cacheErr == nil {
			age := now.Sub(cachedAt)
			p.logger.Warn("通告源不可用 (%v)，降级使用过期缓存 (缓存龄 %v)", fetchErr, age)
			return NewIndex(records), statsFromRecords(records), CacheStatus{Used: true, Stale: true, Age: age, Fetched: cachedAt}, nil
		}
		p.logger.Error("过期缓存也不可用: %v", cacheErr)
	}

	return nil, LoadStats{}, CacheStatus{}, fetchErr
}

func statsFromRecords(records []model.AdvisoryRecord) LoadStats {
	stats := LoadStats{Total: len(records)}
	for _, r := range records {
		if r.IsWithdrawn() {
			stats.Withdrawn++
		}
	}
	return stats
}
