package scorer

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"resume-screener/internal/types"
)

// ErrEmptyVocabulary 两篇文档去掉停用词后没有任何词项
var ErrEmptyVocabulary = errors.New("empty vocabulary; perhaps the documents only contain stop words")

// diagnosticPrefix 评分失败时写入 MatchedTerms 的诊断前缀
const diagnosticPrefix = "Error in scoring: "

// LexicalScorer 基于 TF-IDF 余弦相似度的词法评分器，无状态，可并发使用
type LexicalScorer struct {
	stopWords map[string]struct{}
}

// New 创建使用英文停用词表的评分器
func New() *LexicalScorer {
	return &LexicalScorer{stopWords: englishStopWords}
}

// Score 计算简历与职位描述的相似度及共有词。
// 失败时相似度为0，MatchedTerms 只包含一条诊断信息。
func (s *LexicalScorer) Score(resumeText, jdText string) types.ScoreResult {
	similarity, err := s.Similarity(resumeText, jdText)
	if err != nil {
		msg := diagnosticPrefix + err.Error()
		return types.ScoreResult{
			Similarity:   0,
			MatchedTerms: []string{msg},
			Diagnostic:   msg,
		}
	}
	return types.ScoreResult{
		Similarity:   similarity,
		MatchedTerms: MatchedTerms(resumeText, jdText),
	}
}

// Similarity 只在这两篇文档上建立 TF-IDF 空间并返回余弦相似度，结果在 [0,1]
func (s *LexicalScorer) Similarity(a, b string) (float64, error) {
	docs := [2]map[string]float64{s.termCounts(a), s.termCounts(b)}

	df := make(map[string]int)
	for _, d := range docs {
		for term := range d {
			df[term]++
		}
	}
	if len(df) == 0 {
		return 0, ErrEmptyVocabulary
	}

	// 平滑 idf: ln((1+n)/(1+df)) + 1
	n := float64(len(docs))
	for _, d := range docs {
		for term, tf := range d {
			d[term] = tf * (math.Log((1+n)/(1+float64(df[term]))) + 1)
		}
		l2Normalize(d)
	}

	var dot float64
	for term, w := range docs[0] {
		dot += w * docs[1][term]
	}
	return clamp01(dot), nil
}

// termCounts 小写后按由至少两个字母/数字/下划线组成的词切分，过滤停用词
func (s *LexicalScorer) termCounts(text string) map[string]float64 {
	counts := make(map[string]float64)
	for _, tok := range tokenize(strings.ToLower(text)) {
		if _, stop := s.stopWords[tok]; stop {
			continue
		}
		counts[tok]++
	}
	return counts
}

func tokenize(text string) []string {
	var (
		tokens []string
		start  = -1
		runes  int
	)
	flush := func(end int) {
		if start >= 0 && runes >= 2 {
			tokens = append(tokens, text[start:end])
		}
		start, runes = -1, 0
	}
	for i, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			if start < 0 {
				start = i
			}
			runes++
			continue
		}
		flush(i)
	}
	flush(len(text))
	return tokens
}

func l2Normalize(v map[string]float64) {
	var sum float64
	for _, w := range v {
		sum += w * w
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for k, w := range v {
		v[k] = w / norm
	}
}

func clamp01(x float64) float64 {
	switch {
	case math.IsNaN(x), x < 0:
		return 0
	case x > 1:
		return 1
	}
	return x
}

// MatchedTerms 返回两段文本按空白切分后的小写词交集，不过滤停用词，结果已排序
func MatchedTerms(a, b string) []string {
	left := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(a)) {
		left[tok] = struct{}{}
	}

	seen := make(map[string]struct{})
	matched := []string{}
	for _, tok := range strings.Fields(strings.ToLower(b)) {
		if _, ok := left[tok]; !ok {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		matched = append(matched, tok)
	}
	sort.Strings(matched)
	return matched
}

// Score 使用默认评分器的便捷函数
func Score(resumeText, jdText string) types.ScoreResult {
	return New().Score(resumeText, jdText)
}

// FormatScore 以 "0.82 / 1.0" 的形式展示分数
func FormatScore(similarity float64) string {
	return fmt.Sprintf("%.2f / 1.0", similarity)
}
