package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"resume-screener/internal/config"
	"resume-screener/internal/logger"
	"resume-screener/internal/parser"
	"resume-screener/internal/processor"
	"resume-screener/internal/scorer"
	"resume-screener/internal/storage"
	"resume-screener/internal/utils"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return nil, err
	}
	logger.Init(logger.Config(cfg.Logger))
	return cfg, nil
}

func requireFile() error {
	if *filePath == "" {
		return errors.New("必须使用 -file 指定简历文件")
	}
	if _, err := os.Stat(*filePath); err != nil {
		return fmt.Errorf("文件不存在: %s", *filePath)
	}
	return nil
}

func extractText(ctx context.Context, cfg *config.Config, path string) (string, error) {
	extractor, err := processor.NewExtractorFromConfig(ctx, cfg, nil, logger.Logger)
	if err != nil {
		return "", err
	}
	src, err := parser.ReadSource(path)
	if err != nil {
		return "", err
	}
	doc, err := extractor.ExtractDocument(ctx, src)
	if err != nil {
		return "", err
	}
	return doc.Text, nil
}

func truncate(text string) string {
	r := []rune(text)
	if *maxLen < 0 || len(r) <= *maxLen {
		return text
	}
	return string(r[:*maxLen]) + fmt.Sprintf("\n... (共 %d 字符)", len(r))
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// handleExtractCommand 提取并打印简历文本
func handleExtractCommand() error {
	if err := requireFile(); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	start := time.Now()
	text, err := extractText(ctx, cfg, *filePath)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(map[string]interface{}{"file": *filePath, "chars": len([]rune(text)), "text": text})
	}
	fmt.Printf("提取完成! 耗时: %v，共 %d 字符\n\n%s\n", time.Since(start), len([]rune(text)), truncate(text))
	return nil
}

// handleChunkCommand 按检索配置分块并打印
func handleChunkCommand() error {
	if err := requireFile(); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	text, err := extractText(ctx, cfg, *filePath)
	if err != nil {
		return err
	}
	chunker, err := parser.NewChunker(cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap)
	if err != nil {
		return err
	}
	chunks := chunker.Split(utils.BaseName(*filePath), text)
	if *asJSON {
		return printJSON(chunks)
	}
	fmt.Printf("分块大小 %d，重叠 %d，共 %d 块\n", chunker.Size(), chunker.Overlap(), len(chunks))
	for _, c := range chunks {
		fmt.Printf("\n--- 块 %d (偏移 %d, 重叠 %d) ---\n%s\n", c.Index, c.Offset, c.Overlap, truncate(c.Text))
	}
	return nil
}

// handleScoreCommand 计算简历与职位描述的相似度
func handleScoreCommand() error {
	if err := requireFile(); err != nil {
		return err
	}
	if *jdPath == "" {
		return errors.New("必须使用 -jd 指定职位描述文件")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	resumeText, err := extractText(ctx, cfg, *filePath)
	if err != nil {
		return err
	}
	jdText, err := extractText(ctx, cfg, *jdPath)
	if err != nil {
		return fmt.Errorf("职位描述: %w", err)
	}
	result := scorer.Score(resumeText, jdText)
	if *asJSON {
		return printJSON(result)
	}
	fmt.Printf("相似度: %s\n匹配词: %v\n", scorer.FormatScore(result.Similarity), result.MatchedTerms)
	if result.Diagnostic != "" {
		fmt.Printf("诊断: %s\n", result.Diagnostic)
	}
	return nil
}

// handleAskCommand 通过检索增强生成回答关于简历的问题
func handleAskCommand() error {
	if err := requireFile(); err != nil {
		return err
	}
	if *question == "" {
		return errors.New("必须使用 -question 指定问题")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.RequestTimeoutSeconds)*time.Second)
	defer cancel()

	components, err := processor.NewComponents(ctx, cfg, nil, logger.Logger)
	if err != nil {
		return err
	}
	src, err := parser.ReadSource(*filePath)
	if err != nil {
		return err
	}
	answer, err := components.Service.Ask(ctx, src, *question)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(map[string]string{"question": *question, "answer": answer})
	}
	fmt.Println(answer)
	return nil
}

// handleHistoryCommand 查询 MySQL 中保存的排名历史
func handleHistoryCommand() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.MySQLEnabled() {
		return errors.New("MySQL 未配置，没有排名历史")
	}
	db, err := storage.NewMySQL(&cfg.MySQL, logger.Logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if *runID != "" {
		run, err := db.GetRankingRun(ctx, *runID)
		if err != nil {
			return err
		}
		if *asJSON {
			return printJSON(run)
		}
		fmt.Printf("批次 %s  职位 %s  %s\n", run.RunID, run.Role, run.CreatedAt.Format(time.DateTime))
		for _, e := range run.Entries {
			fmt.Printf("%3d  %-30s %s  %s\n", e.Rank, e.FileName, scorer.FormatScore(e.Score), e.Status)
		}
		return nil
	}

	runs, err := db.ListRankingRuns(ctx, 20)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(runs)
	}
	for _, r := range runs {
		fmt.Printf("%s  %-24s %3d 份  %s\n", r.RunID, r.Role, r.Total, r.CreatedAt.Format(time.DateTime))
	}
	return nil
}
