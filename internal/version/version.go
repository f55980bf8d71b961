package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Version 语义化版本号
// 主版本号.次版本号.修订号，外加可选的预发布标识和构建元数据
// 构建元数据仅用于显示，不参与比较
type Version struct {
	Major int
	Minor int
	Patch int
	Pre   []string
	Build string
}

// MalformedVersionError 版本号格式错误
type MalformedVersionError struct {
	Input string
}

func (e *MalformedVersionError) Error() string {
	return fmt.Sprintf("无效的版本号: %q", e.Input)
}

// Parse 解析语义化版本号字符串
// 允许省略次版本号和修订号（如 "1" 或 "1.2"），缺省部分按 0 处理
func Parse(input string) (Version, error) {
	s := strings.TrimSpace(input)
	s = strings.TrimPrefix(s, "v")
	s = strings.TrimPrefix(s, "V")

	if s == "" {
		return Version{}, &MalformedVersionError{Input: input}
	}

	var v Version

	// 先剥离构建元数据
	if idx := strings.Index(s, "+"); idx != -1 {
		v.Build = s[idx+1:]
		s = s[:idx]
		if v.Build == "" {
			return Version{}, &MalformedVersionError{Input: input}
		}
	}

	// 再剥离预发布标识
	if idx := strings.Index(s, "-"); idx != -1 {
		pre := s[idx+1:]
		s = s[:idx]
		if pre == "" {
			return Version{}, &MalformedVersionError{Input: input}
		}
		for _, id := range strings.Split(pre, ".") {
			if !validIdentifier(id) {
				return Version{}, &MalformedVersionError{Input: input}
			}
			v.Pre = append(v.Pre, id)
		}
	}

	parts := strings.Split(s, ".")
	if len(parts) == 0 || len(parts) > 3 {
		return Version{}, &MalformedVersionError{Input: input}
	}

	nums := make([]int, 3)
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || part == "" {
			return Version{}, &MalformedVersionError{Input: input}
		}
		nums[i] = n
	}

	v.Major, v.Minor, v.Patch = nums[0], nums[1], nums[2]
	return v, nil
}

// MustParse 解析版本号，失败时panic，仅用于测试和常量
func MustParse(input string) Version {
	v, err := Parse(input)
	if err != nil {
		panic(err)
	}
	return v
}

// 预发布标识符只允许字母、数字和连字符
func validIdentifier(id string) bool {
	if id == "" {
		return false
	}
	for _, ch := range id {
		switch {
		case ch >= '0' && ch <= '9':
		case ch >= 'a' && ch <= 'z':
		case ch >= 'A' && ch <= 'Z':
		case ch == '-':
		default:
			return false
		}
	}
	return true
}

// Compare 比较两个版本号，返回 -1、0、1
// 遵循语义化版本优先级规则：数字标识符按数值比较，预发布版本先于正式版本
func Compare(a, b Version) int {
	if a.Major != b.Major {
		return intCompare(a.Major, b.Major)
	}
	if a.Minor != b.Minor {
		return intCompare(a.Minor, b.Minor)
	}
	if a.Patch != b.Patch {
		return intCompare(a.Patch, b.Patch)
	}
	return comparePre(a.Pre, b.Pre)
}

func intCompare(a, b int) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// 比较预发布标识符序列
func comparePre(a, b []string) int {
	// 没有预发布标识的版本优先级更高
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	if len(a) == 0 {
		return 1
	}
	if len(b) == 0 {
		return -1
	}

	for i := 0; i < len(a) && i < len(b); i++ {
		if c := compareIdentifier(a[i], b[i]); c != 0 {
			return c
		}
	}

	// 前缀相同时，标识符更多的优先级更高
	return intCompare(len(a), len(b))
}

func compareIdentifier(a, b string) int {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)

	switch {
	case errA == nil && errB == nil:
		return intCompare(na, nb)
	case errA == nil:
		// 数字标识符优先级低于字母标识符
		return -1
	case errB == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

// String 还原版本号的显示形式，构建元数据一并输出
func (v Version) String() string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "%d.%d.%d", v.Major, v.Minor, v.Patch)
	if len(v.Pre) > 0 {
		builder.WriteString("-")
		builder.WriteString(strings.Join(v.Pre, "."))
	}
	if v.Build != "" {
		builder.WriteString("+")
		builder.WriteString(v.Build)
	}
	return builder.String()
}
