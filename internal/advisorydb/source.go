package advisorydb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"ZhaoYaoJing/internal/utils"
)

// LoadError 通告来源不可读或结构非法，致命错误
type LoadError struct {
	Source string
	Reason string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("加载通告失败 (%s): %s", e.Source, e.Reason)
}

// TimeoutError 通告拉取超时，与一般加载失败区分开
// 只有配置显式允许时才能降级使用过期缓存
type TimeoutError struct {
	Source string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("拉取通告超时 (%s)", e.Source)
}

// Source 通告来源能力抽象：产出原始通告字节和新鲜度时间戳
// 本地文件、HTTP源、内存fixture都实现这个接口
type Source interface {
	Fetch(ctx context.Context) (data []byte, fetchedAt time.Time, err error)
	Describe() string
}

// FileSource 本地通告文件
type FileSource struct {
	Path string
}

func (s *FileSource) Fetch(ctx context.Context) ([]byte, time.Time, error) {
	info, err := os.Stat(s.Path)
	if err != nil {
		return nil, time.Time{}, &LoadError{Source: s.Describe(), Reason: err.Error()}
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, time.Time{}, &LoadError{Source: s.Describe(), Reason: err.Error()}
	}

	// 文件的修改时间即数据的新鲜度
	return data, info.ModTime(), nil
}

func (s *FileSource) Describe() string {
	return s.Path
}

// HTTPSource 远程HTTP通告源
// Token 来自环境变量，只进请求头，绝不写入日志
type HTTPSource struct {
	URL     string
	Token   string
	Timeout time.Duration

	logger *utils.Logger
	client *http.Client
}

func NewHTTPSource(url, token string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPSource{
		URL:     url,
		Token:   token,
		Timeout: timeout,
		logger:  utils.NewLogger("advisory-http"),
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
	}
}

func (s *HTTPSource) Fetch(ctx context.Context) ([]byte, time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, time.Time{}, &LoadError{Source: s.Describe(), Reason: fmt.Sprintf("创建请求失败: %v", err)}
	}

	req.Header.Set("User-Agent", "ZhaoYaoJing/1.0")
	req.Header.Set("Accept", "application/json")
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}

	s.logger.Debug("请求通告源: %s", s.URL)

	resp, err := s.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, time.Time{}, &TimeoutError{Source: s.Describe()}
		}
		return nil, time.Time{}, &LoadError{Source: s.Describe(), Reason: fmt.Sprintf("HTTP请求失败: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, time.Time{}, &LoadError{Source: s.Describe(), Reason: fmt.Sprintf("服务端返回 %s", resp.Status)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return nil, time.Time{}, &TimeoutError{Source: s.Describe()}
		}
		return nil, time.Time{}, &LoadError{Source: s.Describe(), Reason: fmt.Sprintf("读取响应失败: %v", err)}
	}

	return data, time.Now(), nil
}

func (s *HTTPSource) Describe() string {
	return s.URL
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// MemorySource 内存中的通告数据，测试用
type MemorySource struct {
	Data []byte
	At   time.Time
	Name string
}

func (s *MemorySource) Fetch(ctx context.Context) ([]byte, time.Time, error) {
	return s.Data, s.At, nil
}

func (s *MemorySource) Describe() string {
	if s.Name != "" {
		return s.Name
	}
	return "memory"
}
