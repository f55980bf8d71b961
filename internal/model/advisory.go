package model

import (
	"fmt"
	"strings"
	"time"

	"ZhaoYaoJing/internal/version"
)

// Severity 漏洞严重等级
type Severity int

const (
	SeverityUnknown Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// ParseSeverity 解析严重等级字符串，大小写不敏感
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return SeverityCritical
	case "high":
		return SeverityHigh
	case "medium", "moderate":
		return SeverityMedium
	case "low":
		return SeverityLow
	}
	return SeverityUnknown
}

// String 返回小写的英文等级名，用于JSON输出
func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityHigh:
		return "high"
	case SeverityMedium:
		return "medium"
	case SeverityLow:
		return "low"
	}
	return "unknown"
}

// Label 返回中文等级名，用于文本报告
func (s Severity) Label() string {
	switch s {
	case SeverityCritical:
		return "严重"
	case SeverityHigh:
		return "高"
	case SeverityMedium:
		return "中"
	case SeverityLow:
		return "低"
	}
	return "未知"
}

// MarshalText 序列化为小写英文等级名
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// AdvisoryRecord 漏洞通告记录
// Patched 为空范围表示官方尚未发布修复版本，此时不做任何推断
type AdvisoryRecord struct {
	ID        string        `json:"id"`
	Package   string        `json:"package"`
	Affected  version.Range `json:"affected"`
	Patched   version.Range `json:"patched"`
	Severity  Severity      `json:"severity"`
	Aliases   []string      `json:"aliases,omitempty"`
	Summary   string        `json:"summary,omitempty"`
	URL       string        `json:"url,omitempty"`
	Withdrawn *time.Time    `json:"withdrawn,omitempty"`
}

// IsWithdrawn 判断通告是否已被撤回
func (a *AdvisoryRecord) IsWithdrawn() bool {
	return a.Withdrawn != nil
}

// Suppression 抑制规则：对已接受的已知风险显式排除
// ID 和 Package 至少填一个；Expires 为空表示永不过期
type Suppression struct {
	ID      string        `json:"id,omitempty"`
	Package string        `json:"package,omitempty"`
	Version version.Range `json:"version,omitempty"`
	Expires *time.Time    `json:"expires,omitempty"`
	Reason  string        `json:"reason"`
}

// SuppressionConfigError 抑制规则配置错误
type SuppressionConfigError struct {
	Index  int
	Reason string
}

func (e *SuppressionConfigError) Error() string {
	return fmt.Sprintf("第 %d 条抑制规则无效: %s", e.Index+1, e.Reason)
}
