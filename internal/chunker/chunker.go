// Package chunker 将文档抽取出的纯文本切分为大小受控、语义连贯的片段。
package chunker

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"formfill-go/internal/config"
	"formfill-go/pkg/log"
)

const (
	paragraphSeparator = "\n\n"
	sentenceSeparator  = " "
)

var paragraphBreakRe = regexp.MustCompile(`\n[ \t\r\f\v]*\n`)

// Chunk 是切分结果中的一个片段，Index 从 0 开始，Total 为片段总数。
type Chunk struct {
	Index int
	Total int
	Text  string
}

// Chunker 按段落、句子两级边界切分文本，长度均按 rune 计算。
type Chunker struct {
	threshold int
	target    int
	min       int
	max       int
}

// New 根据配置创建 Chunker，非法或缺省的尺寸会被修正为可用的值。
func New(cfg config.ChunkerConfig) *Chunker {
	c := &Chunker{
		threshold: cfg.SmallDocumentThreshold,
		target:    cfg.TargetSize,
		min:       cfg.MinSize,
		max:       cfg.MaxSize,
	}
	if c.target <= 0 {
		c.target = 1000
	}
	if c.min <= 0 || c.min > c.target {
		c.min = c.target / 5
	}
	// 小片段并入下一片段后不得超过上限。
	if floor := c.min + len(paragraphSeparator) + c.target; c.max < floor {
		log.Warnf("[Chunker] maxSize=%d 过小, 调整为 %d", c.max, floor)
		c.max = floor
	}
	if c.threshold <= 0 {
		c.threshold = c.max
	}
	return c
}

// Split 切分文本。空白文本返回 nil；不超过阈值的文本原样（去除首尾空白）作为唯一片段返回。
// 除最后一个片段外，每个片段长度都落在 [min, max] 区间内。
func (c *Chunker) Split(text string) []Chunk {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if runeLen(trimmed) <= c.threshold {
		return []Chunk{{Index: 0, Total: 1, Text: trimmed}}
	}

	var pieces []string
	for _, para := range splitParagraphs(trimmed) {
		if runeLen(para) <= c.target {
			pieces = append(pieces, para)
			continue
		}
		pieces = append(pieces, c.packSentences(splitSentences(para))...)
	}

	texts := c.mergeSmall(pieces)
	chunks := make([]Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = Chunk{Index: i, Total: len(texts), Text: t}
	}
	return chunks
}

func splitParagraphs(text string) []string {
	var paragraphs []string
	for _, p := range paragraphBreakRe.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return paragraphs
}

// splitSentences 在 .!? 后紧跟空白且随后为大写字母处断句，标点保留在句尾。
func splitSentences(paragraph string) []string {
	runes := []rune(paragraph)
	var sentences []string
	start := 0
	for i := 0; i < len(runes); i++ {
		if runes[i] != '.' && runes[i] != '!' && runes[i] != '?' {
			continue
		}
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if j == i+1 || j >= len(runes) || !unicode.IsUpper(runes[j]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			sentences = append(sentences, s)
		}
		start = j
		i = j - 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// packSentences 贪心地把句子装入片段，直到下一句会超出目标长度。
func (c *Chunker) packSentences(sentences []string) []string {
	var pieces []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if currentLen > 0 {
			pieces = append(pieces, current.String())
			current.Reset()
			currentLen = 0
		}
	}

	for _, s := range sentences {
		sLen := runeLen(s)
		if sLen > c.target {
			flush()
			pieces = append(pieces, hardSplit(s, c.target)...)
			continue
		}
		if currentLen > 0 && currentLen+len(sentenceSeparator)+sLen > c.target {
			flush()
		}
		if currentLen > 0 {
			current.WriteString(sentenceSeparator)
			currentLen += len(sentenceSeparator)
		}
		current.WriteString(s)
		currentLen += sLen
	}
	flush()
	return pieces
}

// hardSplit 处理超长句子：尽量在空白处截断，找不到空白时按 rune 截断。
func hardSplit(s string, limit int) []string {
	var parts []string
	runes := []rune(s)
	for len(runes) > limit {
		cut := limit
		for k := limit; k > 0; k-- {
			if unicode.IsSpace(runes[k]) {
				cut = k
				break
			}
		}
		if part := strings.TrimSpace(string(runes[:cut])); part != "" {
			parts = append(parts, part)
		}
		runes = []rune(strings.TrimLeftFunc(string(runes[cut:]), unicode.IsSpace))
	}
	if rest := strings.TrimSpace(string(runes)); rest != "" {
		parts = append(parts, rest)
	}
	return parts
}

// mergeSmall 把小于 min 的片段向后合并；末尾剩余的小片段在不超过 max 时并入前一个片段。
// 合并结果只受 max 约束，不受 2*min 约束：相邻片段较大时合并结果会超过 2*min，
// 换来除最后一个片段外都不小于 min。New 保证 min+target 不超过 max，因此合并不会越过上限。
func (c *Chunker) mergeSmall(pieces []string) []string {
	var out []string
	acc := ""
	for _, p := range pieces {
		if acc == "" {
			acc = p
		} else {
			acc = acc + paragraphSeparator + p
		}
		if runeLen(acc) >= c.min {
			out = append(out, acc)
			acc = ""
		}
	}
	if acc == "" {
		return out
	}
	if n := len(out); n > 0 && runeLen(out[n-1])+len(paragraphSeparator)+runeLen(acc) <= c.max {
		out[n-1] = out[n-1] + paragraphSeparator + acc
		return out
	}
	return append(out, acc)
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
