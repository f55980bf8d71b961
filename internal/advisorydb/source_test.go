package advisorydb

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFileSource(t *testing.T) {
	src := &FileSource{Path: "testdata/不存在的文件.json"}
	_, _, err := src.Fetch(context.Background())
	if err == nil {
		t.Fatal("文件不存在时应当报错")
	}
	var lerr *LoadError
	if !errors.As(err, &lerr) {
		t.Errorf("应返回 LoadError, 实际得到 %T", err)
	}
}

func TestHTTPSourceFetch(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"advisories": []}`))
	}))
	defer server.Close()

	src := NewHTTPSource(server.URL, "secret-token", 5*time.Second)
	data, fetchedAt, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch 不应报错: %v", err)
	}
	if string(data) != `{"advisories": []}` {
		t.Errorf("响应内容不符: %s", data)
	}
	if fetchedAt.IsZero() {
		t.Error("应返回新鲜度时间戳")
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("令牌应以 Bearer 头发送, 实际得到 %q", gotAuth)
	}
}

func TestHTTPSourceServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "炸了", http.StatusInternalServerError)
	}))
	defer server.Close()

	src := NewHTTPSource(server.URL, "", 5*time.Second)
	_, _, err := src.Fetch(context.Background())
	if err == nil {
		t.Fatal("服务端5xx应当报错")
	}
	var lerr *LoadError
	if !errors.As(err, &lerr) {
		t.Errorf("应返回 LoadError, 实际得到 %T", err)
	}
}

// 超时必须返回专门的 TimeoutError，与一般加载失败区分
func TestHTTPSourceTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer server.Close()

	src := NewHTTPSource(server.URL, "", 100*time.Millisecond)
	_, _, err := src.Fetch(context.Background())
	if err == nil {
		t.Fatal("超时应当报错")
	}
	var terr *TimeoutError
	if !errors.As(err, &terr) {
		t.Errorf("应返回 TimeoutError, 实际得到 %T: %v", err, err)
	}
}

func TestMemorySource(t *testing.T) {
	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	src := &MemorySource{Data: []byte("{}"), At: at, Name: "fixture"}

	data, fetchedAt, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch 不应报错: %v", err)
	}
	if string(data) != "{}" || !fetchedAt.Equal(at) {
		t.Error("内存来源应原样返回数据和时间戳")
	}
	if src.Describe() != "fixture" {
		t.Errorf("Describe 不符: %s", src.Describe())
	}
}
