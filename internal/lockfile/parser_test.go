package lockfile

import (
	"errors"
	"reflect"
	"testing"
)

const sampleLockfile = `
version = 3

[[package]]
name = "coemu"
version = "0.1.0"
dependencies = [
 "libfoo",
 "serde 1.0.190",
]

[[package]]
name = "libfoo"
version = "1.2.0"
source = "registry+https://github.com/rust-lang/crates.io-index"
dependencies = [
 "serde 1.0.100",
]

[[package]]
name = "serde"
version = "1.0.190"
source = "registry+https://github.com/rust-lang/crates.io-index"

[[package]]
name = "serde"
version = "1.0.100"
source = "registry+https://github.com/rust-lang/crates.io-index"
`

func TestParse(t *testing.T) {
	graph, err := NewParser().Parse([]byte(sampleLockfile))
	if err != nil {
		t.Fatalf("Parse 不应报错: %v", err)
	}

	if graph.Len() != 4 {
		t.Fatalf("期望 4 个节点, 实际得到 %d", graph.Len())
	}

	// 菱形依赖：serde 的两个版本都保留
	serdeCount := 0
	for _, n := range graph.Nodes() {
		if n.Name == "serde" {
			serdeCount++
		}
	}
	if serdeCount != 2 {
		t.Errorf("期望保留 serde 的 2 个版本, 实际得到 %d", serdeCount)
	}

	// 根包的依赖标记为直接依赖
	for _, n := range graph.Nodes() {
		switch {
		case n.Name == "coemu" && !n.Direct:
			t.Error("工作区根包应标记为直接依赖")
		case n.Name == "libfoo" && !n.Direct:
			t.Error("libfoo 是根包的依赖，应标记为直接依赖")
		}
	}

	if len(graph.Edges()) != 3 {
		t.Errorf("期望 3 条边, 实际得到 %d", len(graph.Edges()))
	}
}

// 完全相同的三元组幂等合并
func TestParseDuplicateMerge(t *testing.T) {
	input := `
[[package]]
name = "libfoo"
version = "1.2.0"
source = "registry+https://github.com/rust-lang/crates.io-index"

[[package]]
name = "libfoo"
version = "1.2.0"
source = "registry+https://github.com/rust-lang/crates.io-index"
`
	graph, err := NewParser().Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse 不应报错: %v", err)
	}
	if graph.Len() != 1 {
		t.Errorf("重复条目应合并为 1 个节点, 实际得到 %d", graph.Len())
	}
}

// 往返性质：两次解析产出相同的三元组集合
func TestParseRoundTrip(t *testing.T) {
	first, err := NewParser().Parse([]byte(sampleLockfile))
	if err != nil {
		t.Fatalf("第一次 Parse 不应报错: %v", err)
	}
	second, err := NewParser().Parse([]byte(sampleLockfile))
	if err != nil {
		t.Fatalf("第二次 Parse 不应报错: %v", err)
	}

	if !reflect.DeepEqual(first.Triples(), second.Triples()) {
		t.Errorf("两次解析的三元组不一致:\n%v\n%v", first.Triples(), second.Triples())
	}
}

func TestParseMalformedToml(t *testing.T) {
	input := "[[package]\nname = \"broken\""

	_, err := NewParser().Parse([]byte(input))
	if err == nil {
		t.Fatal("结构非法的锁文件应当报错")
	}
	var ferr *FormatError
	if !errors.As(err, &ferr) {
		t.Fatalf("应返回 FormatError, 实际得到 %T", err)
	}
	if ferr.Line <= 0 {
		t.Errorf("FormatError 应带行号, 实际得到 %d", ferr.Line)
	}
}

func TestParseMissingFields(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"缺少name", "[[package]]\nversion = \"1.0.0\"\n"},
		{"缺少version", "[[package]]\nname = \"libfoo\"\n"},
		{"无条目", "version = 3\n"},
	}

	for _, tc := range cases {
		_, err := NewParser().Parse([]byte(tc.input))
		if err == nil {
			t.Errorf("%s: 应当报错", tc.name)
			continue
		}
		var ferr *FormatError
		if !errors.As(err, &ferr) {
			t.Errorf("%s: 应返回 FormatError, 实际得到 %T", tc.name, err)
		}
	}
}

func TestParseUnresolvableVersion(t *testing.T) {
	input := "[[package]]\nname = \"libfoo\"\nversion = \"not-a-version\"\n"

	_, err := NewParser().Parse([]byte(input))
	if err == nil {
		t.Fatal("版本无法解析时应当报错")
	}
	var uerr *UnresolvedVersionError
	if !errors.As(err, &uerr) {
		t.Fatalf("应返回 UnresolvedVersionError, 实际得到 %T", err)
	}
	if uerr.Package != "libfoo" {
		t.Errorf("期望报错包名为 libfoo, 实际得到 %s", uerr.Package)
	}
}

// 依赖引用指向多个候选版本时必须带版本号
func TestParseAmbiguousDepRef(t *testing.T) {
	input := `
[[package]]
name = "app"
version = "0.1.0"
dependencies = ["serde"]

[[package]]
name = "serde"
version = "1.0.100"
source = "registry+https://github.com/rust-lang/crates.io-index"

[[package]]
name = "serde"
version = "1.0.190"
source = "registry+https://github.com/rust-lang/crates.io-index"
`
	_, err := NewParser().Parse([]byte(input))
	if err == nil {
		t.Fatal("歧义依赖引用应当报错")
	}
	var ferr *FormatError
	if !errors.As(err, &ferr) {
		t.Fatalf("应返回 FormatError, 实际得到 %T", err)
	}
}

func TestParseUndeclaredDepRef(t *testing.T) {
	input := `
[[package]]
name = "app"
version = "0.1.0"
dependencies = ["ghost"]
`
	_, err := NewParser().Parse([]byte(input))
	if err == nil {
		t.Fatal("未声明的依赖引用应当报错")
	}
}
