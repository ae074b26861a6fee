package main

import (
	"flag"
	"fmt"
	"os"
)

// 命令行参数定义
var (
	command    = flag.String("cmd", "extract", "执行的命令: extract=提取文本, chunk=分块, score=与职位描述评分, ask=问答, history=排名历史")
	configPath = flag.String("config", "", "配置文件路径")
	filePath   = flag.String("file", "", "简历文件路径")
	jdPath     = flag.String("jd", "", "职位描述文件路径（score 使用）")
	question   = flag.String("question", "", "问题（ask 使用）")
	runID      = flag.String("run", "", "排名批次ID（history 使用，为空时列出最近批次）")
	maxLen     = flag.Int("maxlen", 1000, "显示的文本最大长度，设为-1显示全部")
	asJSON     = flag.Bool("json", false, "以JSON格式输出")
)

func main() {
	flag.Parse()

	var err error
	switch *command {
	case "extract":
		err = handleExtractCommand()
	case "chunk":
		err = handleChunkCommand()
	case "score":
		err = handleScoreCommand()
	case "ask":
		err = handleAskCommand()
	case "history":
		err = handleHistoryCommand()
	default:
		fmt.Printf("错误: 未知命令 '%s'。支持的命令: extract, chunk, score, ask, history\n", *command)
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
