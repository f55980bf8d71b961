package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"ZhaoYaoJing/internal/model"
)

type OutputFormatter struct {
	format string
}

func NewOutputFormatter(format string) *OutputFormatter {
	return &OutputFormatter{format: format}
}

// PrintReport 输出审计报告
// 相同报告输入产出逐字节相同的文本，便于CI做快照比对
func (of *OutputFormatter) PrintReport(report *model.AuditReport, outputFile string) error {
	var output string

	switch strings.ToLower(of.format) {
	case "json":
		encoded, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("生成JSON失败: %v", err)
		}
		output = string(encoded) + "\n"
	default:
		output = of.formatText(report)
	}

	if outputFile != "" {
		return os.WriteFile(outputFile, []byte(output), 0644)
	}

	fmt.Print(output)
	return nil
}

// formatText 文本报告
func (of *OutputFormatter) formatText(report *model.AuditReport) string {
	var builder strings.Builder

	builder.WriteString("\n🪞 照妖镜依赖审计 v1.0\n")
	builder.WriteString(strings.Repeat("═", 60) + "\n")
	builder.WriteString(fmt.Sprintf("锁文件: %s\n", report.Lockfile))
	builder.WriteString(fmt.Sprintf("结论: %s\n\n", verdictLabel(report.Verdict)))

	summary := report.Summary
	builder.WriteString(fmt.Sprintf("📊 命中统计: 严重(%d) | 高(%d) | 中(%d) | 低(%d)",
		summary.Critical, summary.High, summary.Medium, summary.Low))
	if summary.Unknown > 0 {
		builder.WriteString(fmt.Sprintf(" | 未知(%d)", summary.Unknown))
	}
	builder.WriteString("\n\n")

	if len(report.Findings) == 0 {
		builder.WriteString("✅ 未发现任何已知漏洞\n")
	} else {
		builder.WriteString("🔍 漏洞命中:\n")
		builder.WriteString(strings.Repeat("─", 80) + "\n")

		w := tabwriter.NewWriter(&builder, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "依赖\t版本\t通告\t等级\t修复版本")
		for _, f := range report.Findings {
			patched := f.Advisory.Patched.String()
			if patched == "" {
				patched = "暂无修复"
			} else {
				patched = "升级至 " + patched
			}

			fmt.Fprintf(w, "%s\t%s\t%s\t%s %s\t%s\n",
				f.Dependency.Name,
				f.Dependency.RawVersion,
				f.Advisory.ID,
				severityIcon(f.Advisory.Severity),
				f.Advisory.Severity.Label(),
				patched,
			)
		}
		w.Flush()
		builder.WriteString("\n")
	}

	if len(report.Suppressed) > 0 {
		builder.WriteString(fmt.Sprintf("🔇 被抑制的命中 (%d):\n", len(report.Suppressed)))
		for _, s := range report.Suppressed {
			builder.WriteString(fmt.Sprintf("  - %s@%s %s (%s)\n",
				s.Finding.Dependency.Name,
				s.Finding.Dependency.RawVersion,
				s.Finding.Advisory.ID,
				s.Rule.Reason,
			))
		}
		builder.WriteString("\n")
	}

	diag := report.Diagnostics
	if diag.MalformedRecords > 0 || diag.WithdrawnRecords > 0 || diag.StaleCache || len(diag.PackageFailures) > 0 {
		builder.WriteString("⚠️  诊断信息:\n")
		if diag.MalformedRecords > 0 {
			builder.WriteString(fmt.Sprintf("  - 丢弃了 %d 条损坏的通告记录\n", diag.MalformedRecords))
		}
		if diag.WithdrawnRecords > 0 {
			builder.WriteString(fmt.Sprintf("  - %d 条已撤回的通告未参与匹配\n", diag.WithdrawnRecords))
		}
		if diag.StaleCache {
			builder.WriteString(fmt.Sprintf("  - 使用了过期的通告缓存 (缓存龄 %s)\n", diag.CacheAge))
		}
		for _, pf := range diag.PackageFailures {
			builder.WriteString(fmt.Sprintf("  - 包 %s 匹配失败: %s\n", pf.Package, pf.Reason))
		}
		builder.WriteString("\n")
	}

	return builder.String()
}

func verdictLabel(verdict string) string {
	if verdict == "pass" {
		return "✅ 通过 (pass)"
	}
	return "❌ 未通过 (fail)"
}

func severityIcon(s model.Severity) string {
	switch s {
	case model.SeverityCritical:
		return "🔴"
	case model.SeverityHigh:
		return "🟠"
	case model.SeverityMedium:
		return "🟡"
	case model.SeverityLow:
		return "🟢"
	}
	return "⚪"
}
