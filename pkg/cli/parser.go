package cli

import (
	"flag"
	"fmt"
	"os"
	"time"

	"ZhaoYaoJing/internal/model"
)

type Parser struct {
	Options model.AuditOptions
}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Parse() error {
	var help bool

	flag.StringVar(&p.Options.LockfilePath, "lockfile", "", "锁文件路径 (Cargo.lock 风格TOML)")
	flag.StringVar(&p.Options.AdvisoriesPath, "advisories", "", "通告feed路径或 http(s) URL")
	flag.StringVar(&p.Options.CachePath, "cache", "database/advisory_cache.db", "本地通告缓存文件 (空字符串禁用缓存)")
	flag.StringVar(&p.Options.CacheMaxAge, "cache-max-age", "24h", "缓存最大有效期 (如 30m, 24h)")
	flag.BoolVar(&p.Options.AllowStale, "allow-stale", false, "通告源不可用时允许使用过期缓存")
	flag.StringVar(&p.Options.SuppressionFile, "suppressions", "", "抑制规则文件 (TOML)")
	flag.StringVar(&p.Options.IgnoreIDs, "ignore", "", "忽略的通告ID，逗号分隔")
	flag.StringVar(&p.Options.FailSeverity, "fail-severity", "", "触发fail的最低等级 (low, medium, high, critical)，默认任何命中都fail")
	flag.StringVar(&p.Options.OutputFormat, "format", "text", "输出格式 (text, json)")
	flag.StringVar(&p.Options.OutputFile, "output", "", "输出文件")
	flag.IntVar(&p.Options.Workers, "workers", 8, "并发匹配线程数")
	flag.BoolVar(&p.Options.ForceUpdate, "update", false, "强制刷新通告缓存")
	flag.BoolVar(&p.Options.Verbose, "verbose", false, "显示详细信息")
	flag.BoolVar(&help, "help", false, "显示帮助")

	flag.Parse()

	if help {
		p.printHelp()
		os.Exit(0)
	}

	if p.Options.LockfilePath == "" {
		return fmt.Errorf("必须指定锁文件 (-lockfile)")
	}
	if p.Options.AdvisoriesPath == "" {
		return fmt.Errorf("必须指定通告来源 (-advisories)")
	}

	switch p.Options.OutputFormat {
	case "text", "json":
	default:
		return fmt.Errorf("不支持的输出格式: %s", p.Options.OutputFormat)
	}

	switch p.Options.FailSeverity {
	case "", "low", "medium", "high", "critical":
	default:
		return fmt.Errorf("无效的严重等级: %s", p.Options.FailSeverity)
	}

	if _, err := time.ParseDuration(p.Options.CacheMaxAge); err != nil {
		return fmt.Errorf("无效的缓存有效期: %s", p.Options.CacheMaxAge)
	}

	if p.Options.Workers < 1 {
		return fmt.Errorf("并发线程数必须大于0")
	}

	return nil
}

func (p *Parser) printHelp() {
	fmt.Println("照妖镜 - Go语言依赖漏洞审计工具")
	fmt.Println("")
	fmt.Println("使用方法: ZhaoYaoJing -lockfile <锁文件> -advisories <路径|URL> [选项]")
	fmt.Println("")
	fmt.Println("选项:")
	fmt.Println("  -lockfile string       锁文件路径 (Cargo.lock 风格TOML)")
	fmt.Println("  -advisories string     通告feed路径或 http(s) URL")
	fmt.Println("  -cache string          本地通告缓存文件 (默认: database/advisory_cache.db)")
	fmt.Println("  -cache-max-age string  缓存最大有效期 (默认: 24h)")
	fmt.Println("  -allow-stale           通告源不可用时允许使用过期缓存")
	fmt.Println("  -suppressions string   抑制规则文件 (TOML)")
	fmt.Println("  -ignore string         忽略的通告ID，逗号分隔")
	fmt.Println("  -fail-severity string  触发fail的最低等级 (默认: 任何命中都fail)")
	fmt.Println("  -format string         输出格式 (text, json) (默认: text)")
	fmt.Println("  -output string         输出文件")
	fmt.Println("  -workers int           并发匹配线程数 (默认: 8)")
	fmt.Println("  -update                强制刷新通告缓存")
	fmt.Println("  -verbose               显示详细信息")
	fmt.Println("  -help                  显示帮助")
	fmt.Println("")
	fmt.Println("环境变量:")
	fmt.Println("  ZYJ_ADVISORY_TOKEN     私有通告源的访问令牌 (不会出现在日志中)")
	fmt.Println("")
	fmt.Println("退出码: 0 审计通过, 1 发现漏洞, 2 运行错误")
	fmt.Println("")
	fmt.Println("示例:")
	fmt.Println("  ZhaoYaoJing -lockfile Cargo.lock -advisories advisories.json")
	fmt.Println("  ZhaoYaoJing -lockfile Cargo.lock -advisories https://feed.example.com/db.json -fail-severity high -format json")
}
