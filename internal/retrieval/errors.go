package retrieval

import (
	"errors"
	"fmt"
)

// Stage 检索管道的阶段
type Stage string

const (
	StageChunk    Stage = "chunk"
	StageEmbed    Stage = "embed"
	StageIndex    Stage = "index"
	StageRetrieve Stage = "retrieve"
	StageGenerate Stage = "generate"
)

var (
	// ErrEmptyDocument 文档没有可分块的内容
	ErrEmptyDocument = errors.New("document has no content")
	// ErrEmbedding 向量化服务调用失败
	ErrEmbedding = errors.New("embedding failed")
	// ErrEmptyAnswer 模型返回空内容
	ErrEmptyAnswer = errors.New("language model returned an empty answer")
	// ErrNoContext 检索没有命中任何分块
	ErrNoContext = errors.New("no chunks retrieved")
)

// PipelineError 检索管道某一阶段的失败，调用方用 errors.As 按阶段区分
type PipelineError struct {
	Stage Stage
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("rag pipeline %s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

func stageError(stage Stage, err error) error {
	return &PipelineError{Stage: stage, Err: err}
}

// StageOf 返回错误所属的管道阶段，不是管道错误时返回空串
func StageOf(err error) Stage {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Stage
	}
	return ""
}

// ErrorText 把管道错误渲染为带标记的反馈文本，用于导出和报告
func ErrorText(err error) string {
	if err == nil {
		return ""
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return fmt.Sprintf("RAG pipeline error [%s]: %v", pe.Stage, pe.Err)
	}
	return fmt.Sprintf("RAG pipeline error: %v", err)
}
