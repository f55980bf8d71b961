package auditor

import (
	"fmt"
	"os"
	"strings"
	"time"

	"ZhaoYaoJing/internal/model"
	"ZhaoYaoJing/internal/version"

	"github.com/pelletier/go-toml/v2"
)

// 抑制规则文件结构
type suppressionFile struct {
	Suppressions []suppressionEntry `toml:"suppression"`
}

type suppressionEntry struct {
	ID      string     `toml:"id"`
	Package string     `toml:"package"`
	Version string     `toml:"version"`
	Expires *time.Time `toml:"expires"`
	Reason  string     `toml:"reason"`
}

// LoadSuppressions 从TOML文件加载抑制规则
// 每条规则必须有理由且至少指定通告ID或包名之一，否则整个文件拒绝加载
func LoadSuppressions(path string) ([]model.Suppression, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取抑制规则文件失败: %v", err)
	}

	var doc suppressionFile
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("解析抑制规则文件失败: %v", err)
	}

	var rules []model.Suppression
	for i, entry := range doc.Suppressions {
		rule, err := convertSuppression(i, entry)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	return rules, nil
}

func convertSuppression(index int, entry suppressionEntry) (model.Suppression, error) {
	if entry.ID == "" && entry.Package == "" {
		return model.Suppression{}, &model.SuppressionConfigError{
			Index:  index,
			Reason: "必须指定 id 或 package 之一",
		}
	}
	if strings.TrimSpace(entry.Reason) == "" {
		return model.Suppression{}, &model.SuppressionConfigError{
			Index:  index,
			Reason: "必须填写 reason",
		}
	}

	rule := model.Suppression{
		ID:      entry.ID,
		Package: entry.Package,
		Expires: entry.Expires,
		Reason:  strings.TrimSpace(entry.Reason),
	}

	if entry.Version != "" {
		constraint, err := version.ParseRange(entry.Version)
		if err != nil {
			return model.Suppression{}, &model.SuppressionConfigError{
				Index:  index,
				Reason: fmt.Sprintf("version 约束非法: %v", err),
			}
		}
		rule.Version = constraint
	}

	return rule, nil
}

// ParseIgnoreList 解析命令行 -ignore 传入的通告ID列表（逗号分隔）
// 与文件规则等价，理由固定为命令行忽略
func ParseIgnoreList(list string) []model.Suppression {
	var rules []model.Suppression
	for _, id := range strings.Split(list, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		rules = append(rules, model.Suppression{
			ID:     id,
			Reason: "命令行 -ignore 指定",
		})
	}
	return rules
}
