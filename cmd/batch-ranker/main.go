package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"resume-screener/internal/config"
	"resume-screener/internal/constants"
	"resume-screener/internal/logger"
	"resume-screener/internal/processor"
	"resume-screener/internal/scorer"
	"resume-screener/internal/storage"
	"resume-screener/internal/tracing"
	"resume-screener/internal/types"
	"resume-screener/internal/utils"

	"github.com/spf13/pflag"
)

func main() {
	var (
		configPath string
		resumeDir  string
		jdFile     string
		workers    int
		csvPath    string
		xlsxPath   string
		reportDir  string
	)
	pflag.StringVarP(&configPath, "config", "c", "", "配置文件路径")
	pflag.StringVar(&resumeDir, "resumes", "", "简历所在目录")
	pflag.StringVar(&jdFile, "jd", "", "职位描述文件")
	pflag.IntVar(&workers, "workers", 0, "并发处理的简历数（默认使用配置）")
	pflag.StringVar(&csvPath, "csv", "", "排名结果CSV路径（默认使用配置）")
	pflag.StringVar(&xlsxPath, "xlsx", "", "可选的Excel结果路径")
	pflag.StringVar(&reportDir, "reports", "", "反馈报告输出目录（默认使用配置）")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if closer := logger.Init(logger.Config(cfg.Logger)); closer != nil {
		defer closer.Close()
	}
	log := logger.Component("batch-ranker")

	in := bufio.NewReader(os.Stdin)
	if resumeDir == "" {
		resumeDir = prompt(in, os.Stdout, "简历目录: ")
	}
	if jdFile == "" {
		jdFile = prompt(in, os.Stdout, "职位描述文件: ")
	}
	if resumeDir == "" || jdFile == "" {
		fmt.Fprintln(os.Stderr, "必须提供简历目录和职位描述文件")
		os.Exit(1)
	}

	if workers > 0 {
		cfg.Ranking.Workers = workers
	}
	if csvPath != "" {
		cfg.Ranking.CSVPath = csvPath
	}
	if xlsxPath != "" {
		cfg.Ranking.XLSXPath = xlsxPath
	}
	if reportDir != "" {
		cfg.Ranking.FeedbackDir = reportDir
	}

	files, err := utils.ListFiles(resumeDir, constants.SupportedExtensions)
	if err != nil {
		log.Fatal().Err(err).Str("dir", resumeDir).Msg("读取简历目录失败")
	}
	if len(files) == 0 {
		fmt.Fprintf(os.Stderr, "目录 %s 中没有可处理的简历（支持 %s）\n", resumeDir, strings.Join(constants.SupportedExtensions, ", "))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.InitProvider(ctx, cfg.Tracing)
	if err != nil {
		log.Fatal().Err(err).Msg("初始化链路追踪失败")
	}
	defer shutdownTracing(context.Background()) //nolint:errcheck

	store, err := storage.NewStorage(ctx, cfg, logger.Component("storage"))
	if err != nil {
		log.Fatal().Err(err).Msg("初始化存储失败")
	}
	defer store.Close(log)

	components, err := processor.NewComponents(ctx, cfg, store, logger.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("初始化处理组件失败")
	}

	ranker := components.Ranker.WithProgress(func(done, total int, file string) {
		fmt.Fprintf(os.Stderr, "[%d/%d] %s\n", done, total, file)
	})
	result, err := ranker.Rank(ctx, files, jdFile)
	if err != nil {
		log.Fatal().Err(err).Msg("批量排名失败")
	}

	printResult(os.Stdout, result)
}

func prompt(in *bufio.Reader, out io.Writer, label string) string {
	fmt.Fprint(out, label)
	line, _ := in.ReadString('\n')
	return strings.Trim(strings.TrimSpace(line), `"'`)
}

func printResult(out io.Writer, result *types.BatchResult) {
	fmt.Fprintf(out, "\n职位: %s  排名: %d  跳过: %d  反馈失败: %d\n\n",
		result.Role, len(result.Entries), result.Count(types.ItemSkipped), result.Count(types.ItemFailed))

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tNAME\tSCORE\tSTATUS\tREPORT")
	for _, e := range result.Entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", e.Rank, e.Name, scorer.FormatScore(e.Score), e.Status, e.ReportPath)
	}
	tw.Flush()

	for _, o := range result.Outcomes {
		if o.Status == types.ItemSkipped {
			fmt.Fprintf(out, "跳过 %s: %s\n", o.FileName, o.Reason)
		}
	}
	if result.CSVPath != "" {
		fmt.Fprintf(out, "\nCSV: %s\n", result.CSVPath)
	}
	if result.XLSXPath != "" {
		fmt.Fprintf(out, "Excel: %s\n", result.XLSXPath)
	}
}
