package version

import (
	"fmt"
	"strings"
)

// MalformedRangeError 版本范围表达式格式错误
type MalformedRangeError struct {
	Input  string
	Reason string
}

func (e *MalformedRangeError) Error() string {
	return fmt.Sprintf("无效的版本范围 %q: %s", e.Input, e.Reason)
}

// comparator 单个比较子句，如 ">=1.2.0"
type comparator struct {
	op  string
	ver Version
}

// Range 版本范围：OR 连接的合取组（AND组之间用 || 分隔，组内用逗号分隔）
// 零值表示空范围，不匹配任何版本
type Range struct {
	raw     string
	clauses [][]comparator
}

// 支持的比较运算符，按前缀长度降序排列保证 "<=" 先于 "<" 被识别
var operators = []string{"<=", ">=", "=", "<", ">"}

// ParseRange 解析版本范围表达式
// 矛盾的合取（如 ">2.0, <1.0"）允许构造，只是永远不会匹配，本身不算错误
func ParseRange(input string) (Range, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Range{}, &MalformedRangeError{Input: input, Reason: "表达式为空"}
	}

	r := Range{raw: raw}
	for _, group := range strings.Split(raw, "||") {
		group = strings.TrimSpace(group)
		if group == "" {
			return Range{}, &MalformedRangeError{Input: input, Reason: "OR分组为空"}
		}

		var clause []comparator
		for _, term := range strings.Split(group, ",") {
			term = strings.TrimSpace(term)
			if term == "" {
				return Range{}, &MalformedRangeError{Input: input, Reason: "比较子句为空"}
			}

			cmp, err := parseComparator(term)
			if err != nil {
				return Range{}, &MalformedRangeError{Input: input, Reason: err.Error()}
			}
			clause = append(clause, cmp)
		}
		r.clauses = append(r.clauses, clause)
	}

	return r, nil
}

func parseComparator(term string) (comparator, error) {
	for _, op := range operators {
		if strings.HasPrefix(term, op) {
			v, err := Parse(strings.TrimSpace(term[len(op):]))
			if err != nil {
				return comparator{}, err
			}
			return comparator{op: op, ver: v}, nil
		}
	}

	// 不允许未知运算符：以非版本字符开头的子句直接报错
	if term[0] == '^' || term[0] == '~' || term[0] == '!' {
		return comparator{}, fmt.Errorf("未知的比较运算符: %q", term)
	}

	// 裸版本号等价于精确匹配
	v, err := Parse(term)
	if err != nil {
		return comparator{}, err
	}
	return comparator{op: "=", ver: v}, nil
}

// IsEmpty 判断是否为空范围（零值）
func (r Range) IsEmpty() bool {
	return len(r.clauses) == 0
}

// Matches 判断版本是否落在范围内
// OR-of-AND 结构从左到右短路求值，相同输入重复求值结果恒定
func (r Range) Matches(v Version) bool {
	for _, clause := range r.clauses {
		if clauseMatches(clause, v) {
			return true
		}
	}
	return false
}

func clauseMatches(clause []comparator, v Version) bool {
	for _, cmp := range clause {
		if !cmp.matches(v) {
			return false
		}
	}
	return true
}

func (c comparator) matches(v Version) bool {
	diff := Compare(v, c.ver)
	switch c.op {
	case "=":
		return diff == 0
	case "<":
		return diff < 0
	case "<=":
		return diff <= 0
	case ">":
		return diff > 0
	case ">=":
		return diff >= 0
	}
	return false
}

// Satisfiable 判断范围是否至少能被一个版本满足
// 用于在加载阶段标记永不匹配的矛盾范围
func (r Range) Satisfiable() bool {
	for _, clause := range r.clauses {
		if clauseSatisfiable(clause) {
			return true
		}
	}
	return false
}

// 合取组可满足性：所有下界的最大值必须不超过所有上界的最小值，
// 且精确匹配必须同时落在其他子句允许的区间内
func clauseSatisfiable(clause []comparator) bool {
	var exact *Version
	var lower *comparator
	var upper *comparator

	for i := range clause {
		cmp := clause[i]
		switch cmp.op {
		case "=":
			if exact != nil && Compare(*exact, cmp.ver) != 0 {
				return false
			}
			v := cmp.ver
			exact = &v
		case ">", ">=":
			if lower == nil || tighterLower(cmp, *lower) {
				lower = &clause[i]
			}
		case "<", "<=":
			if upper == nil || tighterUpper(cmp, *upper) {
				upper = &clause[i]
			}
		}
	}

	if exact != nil {
		return clauseMatches(clause, *exact)
	}

	if lower != nil && upper != nil {
		diff := Compare(lower.ver, upper.ver)
		if diff > 0 {
			return false
		}
		if diff == 0 && (lower.op == ">" || upper.op == "<") {
			return false
		}
	}
	return true
}

func tighterLower(a, b comparator) bool {
	diff := Compare(a.ver, b.ver)
	return diff > 0 || (diff == 0 && a.op == ">" && b.op == ">=")
}

func tighterUpper(a, b comparator) bool {
	diff := Compare(a.ver, b.ver)
	return diff < 0 || (diff == 0 && a.op == "<" && b.op == "<=")
}

// String 返回原始表达式
func (r Range) String() string {
	return r.raw
}

// MarshalText 序列化为原始表达式
func (r Range) MarshalText() ([]byte, error) {
	return []byte(r.raw), nil
}

// UnmarshalText 从文本解析范围，空串视为空范围
func (r *Range) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		*r = Range{}
		return nil
	}
	parsed, err := ParseRange(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
