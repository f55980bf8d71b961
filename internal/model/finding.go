package model

// Finding 审计命中：一个已安装依赖与一条适用于其版本的通告的配对
// 只存在于单次审计运行内，不做持久化
type Finding struct {
	Dependency DependencyNode `json:"dependency"`
	Advisory   AdvisoryRecord `json:"advisory"`
}

// SuppressedFinding 被抑制规则排除的命中，单独留痕以便审查
type SuppressedFinding struct {
	Finding Finding     `json:"finding"`
	Rule    Suppression `json:"rule"`
}

// PackageFailure 单个包的通告查询失败，不中断其他包的审计
type PackageFailure struct {
	Package string `json:"package"`
	Reason  string `json:"reason"`
}

// Diagnostics 非致命诊断信息，随报告输出，绝不静默吞掉
type Diagnostics struct {
	MalformedRecords int              `json:"malformed_records"`
	WithdrawnRecords int              `json:"withdrawn_records"`
	StaleCache       bool             `json:"stale_cache"`
	CacheAge         string           `json:"cache_age,omitempty"`
	PackageFailures  []PackageFailure `json:"package_failures,omitempty"`
}

// SeveritySummary 各严重等级的命中数量统计
type SeveritySummary struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Unknown  int `json:"unknown,omitempty"`
}

// Total 全部命中数
func (s SeveritySummary) Total() int {
	return s.Critical + s.High + s.Medium + s.Low + s.Unknown
}

// AuditReport 审计报告
// Findings 按严重等级降序、包名升序、通告ID升序排列，保证逐字节稳定输出
type AuditReport struct {
	Lockfile    string              `json:"lockfile"`
	Verdict     string              `json:"verdict"` // pass 或 fail
	Summary     SeveritySummary     `json:"summary"`
	Findings    []Finding           `json:"findings"`
	Suppressed  []SuppressedFinding `json:"suppressed,omitempty"`
	Diagnostics Diagnostics         `json:"diagnostics"`
}

// Failed 判断审计是否未通过
func (r *AuditReport) Failed() bool {
	return r.Verdict == "fail"
}

// AuditOptions 审计运行选项
type AuditOptions struct {
	LockfilePath    string
	AdvisoriesPath  string // 本地文件路径或 http(s) URL
	CachePath       string
	CacheMaxAge     string // 时长表达式，如 24h
	AllowStale      bool
	SuppressionFile string
	IgnoreIDs       string // 逗号分隔的通告ID，命令行快捷抑制
	FailSeverity    string // 触发fail的最低等级，空表示任何命中都fail
	OutputFormat    string // text, json
	OutputFile      string
	Workers         int
	ForceUpdate     bool
	Verbose         bool
}
