package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"ZhaoYaoJing/internal/advisorydb"
	"ZhaoYaoJing/internal/auditor"
	"ZhaoYaoJing/internal/lockfile"
	"ZhaoYaoJing/internal/model"
	"ZhaoYaoJing/internal/report"
	"ZhaoYaoJing/internal/utils"
	"ZhaoYaoJing/pkg/cli"

	"github.com/joho/godotenv"
)

func main() {
	os.Exit(run())
}

func run() int {
	// .env 里通常放 ZYJ_ADVISORY_TOKEN，不存在就跳过
	_ = godotenv.Load()

	// 解析命令行参数
	parser := cli.NewParser()
	if err := parser.Parse(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n\n", err)
		fmt.Fprintf(os.Stderr, "使用方法: %s -lockfile <锁文件> -advisories <路径|URL> [选项]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "使用 -help 查看完整帮助信息\n")
		return 2
	}

	options := parser.Options
	if options.Verbose {
		utils.SetDebug(true)
	}
	logger := utils.NewLogger("main")

	logger.Info("启动照妖镜依赖审计 v1.0")

	// 整个运行只读一次时钟：缓存新鲜度和抑制规则过期判定都以它为准
	now := time.Now()
	startTime := now

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	maxAge, _ := time.ParseDuration(options.CacheMaxAge)

	// 构造通告来源
	var source advisorydb.Source
	if strings.HasPrefix(options.AdvisoriesPath, "http://") ||
		strings.HasPrefix(options.AdvisoriesPath, "https://") {
		token := os.Getenv("ZYJ_ADVISORY_TOKEN")
		source = advisorydb.NewHTTPSource(options.AdvisoriesPath, token, 30*time.Second)
	} else {
		source = &advisorydb.FileSource{Path: options.AdvisoriesPath}
	}

	var cache *advisorydb.Cache
	if options.CachePath != "" {
		cache = advisorydb.NewCache(options.CachePath)
	}
	provider := advisorydb.NewProvider(source, cache, maxAge, options.AllowStale, options.ForceUpdate)

	// 锁文件解析和通告加载互不依赖，并行执行，匹配前汇合
	type graphResult struct {
		graph *model.DependencyGraph
		err   error
	}
	type indexResult struct {
		index *advisorydb.Index
		stats advisorydb.LoadStats
		cache advisorydb.CacheStatus
		err   error
	}

	graphChan := make(chan graphResult, 1)
	indexChan := make(chan indexResult, 1)

	go func() {
		data, err := os.ReadFile(options.LockfilePath)
		if err != nil {
			graphChan <- graphResult{err: fmt.Errorf("读取锁文件失败: %v", err)}
			return
		}
		graph, err := lockfile.NewParser().Parse(data)
		graphChan <- graphResult{graph: graph, err: err}
	}()

	go func() {
		index, stats, cacheStatus, err := provider.Load(ctx, now)
		indexChan <- indexResult{index: index, stats: stats, cache: cacheStatus, err: err}
	}()

	graphRes := <-graphChan
	indexRes := <-indexChan

	if graphRes.err != nil {
		logger.Error("解析锁文件失败: %v", graphRes.err)
		return 2
	}
	if indexRes.err != nil {
		logger.Error("加载通告失败: %v", indexRes.err)
		return 2
	}

	logger.Debug("依赖图: %d 个节点; 通告索引: %d 条记录",
		graphRes.graph.Len(), indexRes.index.Len())

	// 加载抑制规则
	var suppressions []model.Suppression
	if options.SuppressionFile != "" {
		rules, err := auditor.LoadSuppressions(options.SuppressionFile)
		if err != nil {
			logger.Error("加载抑制规则失败: %v", err)
			return 2
		}
		suppressions = rules
	}
	suppressions = append(suppressions, auditor.ParseIgnoreList(options.IgnoreIDs)...)

	// 执行匹配
	matcher := auditor.NewMatcher(indexRes.index, suppressions, now, options.Workers)
	result, err := matcher.Match(ctx, graphRes.graph)
	if err != nil {
		logger.Error("匹配中断: %v", err)
		return 2
	}

	// 构建并输出报告
	builder := report.NewBuilder(model.ParseSeverity(options.FailSeverity))
	auditReport := builder.Build(options.LockfilePath, result, indexRes.stats, indexRes.cache)

	formatter := cli.NewOutputFormatter(options.OutputFormat)
	if err := formatter.PrintReport(auditReport, options.OutputFile); err != nil {
		logger.Error("输出报告失败: %v", err)
		return 2
	}

	if options.Verbose {
		logger.Info("审计完成，总耗时: %v", time.Since(startTime))
	}

	if auditReport.Failed() {
		return 1
	}
	return 0
}
