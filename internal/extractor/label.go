package extractor

import (
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// docIndex 预先索引 id 与 label[for]，避免每个字段都扫描整棵 DOM。
type docIndex struct {
	byID     map[string]*goquery.Selection
	labelFor map[string]*goquery.Selection
}

func newDocIndex(doc *goquery.Document) *docIndex {
	idx := &docIndex{
		byID:     make(map[string]*goquery.Selection),
		labelFor: make(map[string]*goquery.Selection),
	}
	doc.Find("[id]").Each(func(_ int, s *goquery.Selection) {
		id := strings.TrimSpace(s.AttrOr("id", ""))
		if _, exists := idx.byID[id]; id != "" && !exists {
			idx.byID[id] = s
		}
	})
	doc.Find("label[for]").Each(func(_ int, s *goquery.Selection) {
		target := strings.TrimSpace(s.AttrOr("for", ""))
		if _, exists := idx.labelFor[target]; target != "" && !exists {
			idx.labelFor[target] = s
		}
	})
	return idx
}

type labelStrategy func(s *goquery.Selection, idx *docIndex) string

// 按顺序尝试，第一个非空结果胜出。
var labelChain = []labelStrategy{
	ariaLabel,
	ariaLabelledBy,
	labelForID,
	wrappingLabel,
	precedingSiblingLabel,
	precedingTextNode,
	placeholderLabel,
}

// resolveLabel 保证返回非空标签，最后一级是由标识符合成的标签。
func resolveLabel(s *goquery.Selection, idx *docIndex, name string) string {
	for _, strategy := range labelChain {
		if label := normalizeLabel(strategy(s, idx)); label != "" {
			return label
		}
	}
	return synthesizeLabel(name)
}

func ariaLabel(s *goquery.Selection, _ *docIndex) string {
	return s.AttrOr("aria-label", "")
}

func ariaLabelledBy(s *goquery.Selection, idx *docIndex) string {
	refs := strings.Fields(s.AttrOr("aria-labelledby", ""))
	parts := make([]string, 0, len(refs))
	for _, ref := range refs {
		if target, ok := idx.byID[ref]; ok {
			if text := normalizeLabel(target.Text()); text != "" {
				parts = append(parts, text)
			}
		}
	}
	return strings.Join(parts, " ")
}

func labelForID(s *goquery.Selection, idx *docIndex) string {
	id := strings.TrimSpace(s.AttrOr("id", ""))
	if id == "" {
		return ""
	}
	if label, ok := idx.labelFor[id]; ok {
		return textWithoutControls(label)
	}
	return ""
}

func wrappingLabel(s *goquery.Selection, _ *docIndex) string {
	label := s.Closest("label")
	if label.Length() == 0 {
		return ""
	}
	return textWithoutControls(label)
}

// precedingSiblingLabel 取紧邻的前一个 <label> 或非空 <span>，指向其他字段的 label 不算。
func precedingSiblingLabel(s *goquery.Selection, _ *docIndex) string {
	prev := s.Prev()
	if prev.Length() == 0 {
		return ""
	}
	switch goquery.NodeName(prev) {
	case "label":
		if target, ok := prev.Attr("for"); ok && strings.TrimSpace(target) != strings.TrimSpace(s.AttrOr("id", "")) {
			return ""
		}
		return textWithoutControls(prev)
	case "span":
		return prev.Text()
	}
	return ""
}

// precedingTextNode 在父元素的文本流中向前查找最近的非空文本节点，遇到其他表单控件即停止。
func precedingTextNode(s *goquery.Selection, _ *docIndex) string {
	if len(s.Nodes) == 0 {
		return ""
	}
	for n := s.Nodes[0].PrevSibling; n != nil; n = n.PrevSibling {
		switch n.Type {
		case html.TextNode:
			if text := normalizeLabel(n.Data); text != "" {
				return text
			}
		case html.ElementNode:
			if isControlTag(n.Data) {
				return ""
			}
		}
	}
	return ""
}

func placeholderLabel(s *goquery.Selection, _ *docIndex) string {
	return s.AttrOr("placeholder", "")
}

// textWithoutControls 返回元素文本，但排除其中表单控件自身的值或文本（例如 select 的选项）。
func textWithoutControls(s *goquery.Selection) string {
	clone := s.Clone()
	clone.Find("input, textarea, select, script, style").Remove()
	return clone.Text()
}

func isControlTag(tag string) bool {
	return tag == "input" || tag == "textarea" || tag == "select"
}

// normalizeLabel 合并空白并去掉结尾的冒号与星号。
func normalizeLabel(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimRight(s, ":*：＊ ")
}

// synthesizeLabel 将标识符拆分为单词并逐词首字母大写，例如 firstName -> "First Name"。
func synthesizeLabel(identifier string) string {
	words := splitIdentifier(identifier)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	if label := strings.Join(words, " "); label != "" {
		return label
	}
	return identifier
}

// splitIdentifier 按 camelCase、kebab-case、snake_case 以及字母数字交界切分标识符。
func splitIdentifier(identifier string) []string {
	var words []string
	var current []rune
	flush := func() {
		if len(current) > 0 {
			words = append(words, string(current))
			current = current[:0]
		}
	}

	runes := []rune(identifier)
	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if len(current) > 0 {
			prev := current[len(current)-1]
			switch {
			case unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev)):
				flush()
			case unicode.IsUpper(r) && unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1]):
				flush()
			case unicode.IsDigit(r) != unicode.IsDigit(prev):
				flush()
			}
		}
		current = append(current, r)
	}
	flush()
	return words
}
