package processor

import (
	"errors"
	"fmt"
)

// 定义基础错误类型
var (
	ErrEmptyJobDescription = errors.New("job description yielded no text")
	ErrNoResumes           = errors.New("no resumes to rank")
	ErrExtractionFailed    = errors.New("text extraction failed")
	ErrEmptyQuestion       = errors.New("question is empty")
	ErrAsyncUnavailable    = errors.New("async ranking requires object storage, redis and rabbitmq")
	ErrJobNotFound         = errors.New("ranking job not found")
	ErrJobLocked           = errors.New("ranking job is being processed")
)

// ScreeningError 包含操作与文件信息的错误
type ScreeningError struct {
	Op      string
	File    string
	BaseErr error
	Detail  string
}

func (e *ScreeningError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (操作:%s, 文件:%s): %s", e.BaseErr, e.Op, e.File, e.Detail)
	}
	return fmt.Sprintf("%s (操作:%s, 文件:%s)", e.BaseErr, e.Op, e.File)
}

func (e *ScreeningError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *ScreeningError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

// NewJDError 职位描述提取为空，整批失败
func NewJDError(file, detail string) error {
	return &ScreeningError{
		Op:      "extract_jd",
		File:    file,
		BaseErr: ErrEmptyJobDescription,
		Detail:  detail,
	}
}

// NewExtractError 单份简历提取失败
func NewExtractError(file string, cause error) error {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	return &ScreeningError{
		Op:      "extract",
		File:    file,
		BaseErr: ErrExtractionFailed,
		Detail:  detail,
	}
}
