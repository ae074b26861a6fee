package parser

import (
	"archive/zip"
	"bytes"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"resume-screener/internal/types"
)

var (
	pdfMagic  = []byte("%PDF-")
	pngMagic  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	zipMagic  = []byte("PK\x03\x04")
)

// DetectFormat 根据文件内容判断格式，内容无法判断时退回到扩展名。
// 内容嗅探优先，避免扩展名被改错的文件走错提取器。
func DetectFormat(name string, data []byte) types.Format {
	switch {
	case bytes.HasPrefix(data, pdfMagic):
		return types.FormatPDF
	case bytes.HasPrefix(data, pngMagic):
		return types.FormatPNG
	case bytes.HasPrefix(data, jpegMagic):
		return types.FormatJPEG
	case bytes.HasPrefix(data, zipMagic):
		if isDocxPackage(data) {
			return types.FormatDOCX
		}
		return types.FormatUnknown
	}

	if f := FormatFromExtension(name); f != types.FormatUnknown {
		return f
	}

	if len(data) > 0 && utf8.Valid(data) && !bytes.ContainsRune(data, 0) {
		return types.FormatText
	}
	return types.FormatUnknown
}

// FormatFromExtension 仅根据扩展名判断格式
func FormatFromExtension(name string) types.Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return types.FormatPDF
	case ".docx":
		return types.FormatDOCX
	case ".txt", ".text", ".md":
		return types.FormatText
	case ".png":
		return types.FormatPNG
	case ".jpg", ".jpeg":
		return types.FormatJPEG
	}
	return types.FormatUnknown
}

// isDocxPackage 检查ZIP包中是否包含 word/document.xml
func isDocxPackage(data []byte) bool {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return false
	}
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			return true
		}
	}
	return false
}
