package report

import (
	"sort"
	"time"

	"ZhaoYaoJing/internal/advisorydb"
	"ZhaoYaoJing/internal/auditor"
	"ZhaoYaoJing/internal/model"
	"ZhaoYaoJing/internal/utils"
	"ZhaoYaoJing/internal/version"
)

// Builder 报告构建器
// failSeverity 为 SeverityUnknown 时表示任何命中都导致fail（默认行为）
type Builder struct {
	failSeverity model.Severity
	logger       *utils.Logger
}

func NewBuilder(failSeverity model.Severity) *Builder {
	return &Builder{
		failSeverity: failSeverity,
		logger:       utils.NewLogger("report"),
	}
}

// Build 把匹配结果汇总为规范排序的审计报告
// 排序键：严重等级降序 > 包名升序 > 通告ID升序 > 版本升序，
// 全序保证相同输入的输出逐字节一致
func (b *Builder) Build(lockfilePath string, result auditor.MatchResult,
	stats advisorydb.LoadStats, cache advisorydb.CacheStatus) *model.AuditReport {

	findings := make([]model.Finding, len(result.Findings))
	copy(findings, result.Findings)
	sortFindings(findings)

	suppressed := make([]model.SuppressedFinding, len(result.Suppressed))
	copy(suppressed, result.Suppressed)
	sort.Slice(suppressed, func(i, j int) bool {
		return findingLess(suppressed[i].Finding, suppressed[j].Finding)
	})

	failures := make([]model.PackageFailure, len(result.Failures))
	copy(failures, result.Failures)
	sort.Slice(failures, func(i, j int) bool {
		if failures[i].Package != failures[j].Package {
			return failures[i].Package < failures[j].Package
		}
		return failures[i].Reason < failures[j].Reason
	})

	var summary model.SeveritySummary
	for _, f := range findings {
		switch f.Advisory.Severity {
		case model.SeverityCritical:
			summary.Critical++
		case model.SeverityHigh:
			summary.High++
		case model.SeverityMedium:
			summary.Medium++
		case model.SeverityLow:
			summary.Low++
		default:
			summary.Unknown++
		}
	}

	report := &model.AuditReport{
		Lockfile:   lockfilePath,
		Verdict:    b.verdict(findings),
		Summary:    summary,
		Findings:   findings,
		Suppressed: suppressed,
		Diagnostics: model.Diagnostics{
			MalformedRecords: stats.Malformed,
			WithdrawnRecords: stats.Withdrawn,
			StaleCache:       cache.Stale,
			PackageFailures:  failures,
		},
	}

	if cache.Used {
		report.Diagnostics.CacheAge = cache.Age.Truncate(time.Second).String()
	}

	b.logger.Debug("报告构建完成: %d 个命中, 结论 %s", len(findings), report.Verdict)
	return report
}

// verdict 裁定pass/fail
// 被抑制的命中永不影响结论；阈值未配置时任何命中都fail
func (b *Builder) verdict(findings []model.Finding) string {
	for _, f := range findings {
		if b.failSeverity == model.SeverityUnknown || f.Advisory.Severity >= b.failSeverity {
			return "fail"
		}
	}
	return "pass"
}

func sortFindings(findings []model.Finding) {
	sort.Slice(findings, func(i, j int) bool {
		return findingLess(findings[i], findings[j])
	})
}

// findingLess 规范排序的比较函数，末位用版本号保证全序
func findingLess(a, b model.Finding) bool {
	if a.Advisory.Severity != b.Advisory.Severity {
		return a.Advisory.Severity > b.Advisory.Severity
	}
	if a.Dependency.Name != b.Dependency.Name {
		return a.Dependency.Name < b.Dependency.Name
	}
	if a.Advisory.ID != b.Advisory.ID {
		return a.Advisory.ID < b.Advisory.ID
	}
	return version.Compare(a.Dependency.Version, b.Dependency.Version) < 0
}
