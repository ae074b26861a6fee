package parser

import (
	"fmt"

	"resume-screener/internal/types"
)

// Chunker 以固定窗口和重叠把文本切成分块，长度按字符(rune)计
type Chunker struct {
	size    int
	overlap int
}

// NewChunker 创建分块器，要求 0 <= overlap < size
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size 返回窗口大小
func (c *Chunker) Size() int { return c.size }

// Overlap 返回重叠大小
func (c *Chunker) Overlap() int { return c.overlap }

// Split 将文本切分为分块。空文本返回空切片；短于窗口的文本返回单个分块。
// 相邻分块重叠 overlap 个字符，所有分块按顺序拼接（去掉重叠部分）可还原原文。
func (c *Chunker) Split(documentID, text string) []types.Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := c.size - c.overlap
	var chunks []types.Chunk
	for start := 0; ; start += step {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}

		overlap := 0
		if start > 0 {
			overlap = c.overlap
		}
		chunks = append(chunks, types.Chunk{
			DocumentID: documentID,
			Index:      len(chunks),
			Offset:     start,
			Text:       string(runes[start:end]),
			Overlap:    overlap,
		})

		if end == len(runes) {
			break
		}
	}
	return chunks
}
