// Package extractor 从任意（可能不规范的）HTML 中抽取表单字段描述。
//
// 结构化路径基于 goquery 解析 DOM，按一条标签解析链为每个字段找到可读的标签；
// 当结构化解析不可用时退化为基于正则的 name= 扫描，标签退化为原始标识符。
package extractor

import (
	"fmt"
	"strings"

	"formfill-go/internal/model"
	"formfill-go/pkg/log"

	"github.com/PuerkitoBio/goquery"
)

// 不承载用户数据的 input 类型。
var nonDataInputTypes = map[string]struct{}{
	"hidden": {},
	"submit": {},
	"button": {},
	"reset":  {},
	"image":  {},
}

// 可识别的 input 类型，其余一律按 text 处理。
var recognizedInputTypes = map[string]model.FieldType{
	"text":           model.FieldTypeText,
	"email":          model.FieldTypeEmail,
	"tel":            model.FieldTypeTel,
	"url":            model.FieldTypeURL,
	"password":       model.FieldTypePassword,
	"number":         model.FieldTypeNumber,
	"date":           model.FieldTypeDate,
	"datetime-local": model.FieldTypeDateTimeLocal,
	"time":           model.FieldTypeTime,
	"month":          model.FieldTypeMonth,
	"week":           model.FieldTypeWeek,
	"checkbox":       model.FieldTypeCheckbox,
	"radio":          model.FieldTypeRadio,
}

// Extractor 抽取表单字段。零值不可用，请使用 New 创建。
type Extractor struct {
	structural bool
}

// Option 配置 Extractor。
type Option func(*Extractor)

// WithoutStructuralParsing 关闭 DOM 解析，只使用正则扫描。
func WithoutStructuralParsing() Option {
	return func(e *Extractor) {
		e.structural = false
	}
}

// New 创建一个新的 Extractor。
func New(opts ...Option) *Extractor {
	e := &Extractor{structural: true}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract 返回按文档顺序排列的字段列表。该方法不会失败：
// 结构化解析出错时自动退化为正则扫描，找不到任何字段时返回空列表。
func (e *Extractor) Extract(rawHTML string) []model.FieldDescriptor {
	if e.structural {
		fields, err := extractStructural(rawHTML)
		if err == nil {
			return fields
		}
		log.Warnf("[Extractor] 结构化解析失败，退化为正则扫描: %v", err)
	}
	return extractDegraded(rawHTML)
}

func extractStructural(rawHTML string) (fields []model.FieldDescriptor, err error) {
	defer func() {
		if r := recover(); r != nil {
			fields = nil
			err = fmt.Errorf("panic while walking DOM: %v", r)
		}
	}()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	idx := newDocIndex(doc)
	seen := make(map[string]int)
	fields = []model.FieldDescriptor{}

	doc.Find("input, textarea, select").Each(func(_ int, s *goquery.Selection) {
		if !isDataElement(s) {
			return
		}
		name := identifier(s)
		if name == "" {
			return
		}
		fieldType := inferType(s)

		if pos, dup := seen[name]; dup {
			// 同名 radio 组合并选项，其余重复项丢弃，先出现者优先。
			if fieldType == model.FieldTypeRadio && fields[pos].Type == model.FieldTypeRadio {
				fields[pos].Options = appendOption(fields[pos].Options, radioOption(s))
			}
			return
		}

		field := model.FieldDescriptor{
			Name:        name,
			Label:       resolveLabel(s, idx, name),
			Type:        fieldType,
			Required:    hasAttr(s, "required") || attrEquals(s, "aria-required", "true"),
			Readonly:    hasAttr(s, "readonly"),
			Placeholder: strings.TrimSpace(s.AttrOr("placeholder", "")),
		}
		switch fieldType {
		case model.FieldTypeSelect:
			field.Options = selectOptions(s)
		case model.FieldTypeRadio:
			field.Options = appendOption(nil, radioOption(s))
		}

		seen[name] = len(fields)
		fields = append(fields, field)
	})
	return fields, nil
}

// isDataElement 排除隐藏、禁用与不承载数据的元素。
func isDataElement(s *goquery.Selection) bool {
	if goquery.NodeName(s) == "input" {
		t := strings.ToLower(strings.TrimSpace(s.AttrOr("type", "text")))
		if _, skip := nonDataInputTypes[t]; skip {
			return false
		}
	}
	if hasAttr(s, "disabled") || hasAttr(s, "hidden") {
		return false
	}
	style := strings.ToLower(strings.Join(strings.Fields(s.AttrOr("style", "")), ""))
	if strings.Contains(style, "display:none") {
		return false
	}
	if s.Closest("fieldset[disabled]").Length() > 0 {
		return false
	}
	return true
}

func identifier(s *goquery.Selection) string {
	if name := strings.TrimSpace(s.AttrOr("name", "")); name != "" {
		return name
	}
	return strings.TrimSpace(s.AttrOr("id", ""))
}

func inferType(s *goquery.Selection) model.FieldType {
	switch goquery.NodeName(s) {
	case "textarea":
		return model.FieldTypeTextarea
	case "select":
		return model.FieldTypeSelect
	}
	t := strings.ToLower(strings.TrimSpace(s.AttrOr("type", "")))
	if ft, ok := recognizedInputTypes[t]; ok {
		return ft
	}
	return model.FieldTypeText
}

func selectOptions(s *goquery.Selection) []string {
	var options []string
	s.Find("option").Each(func(_ int, o *goquery.Selection) {
		options = appendOption(options, optionValue(o))
	})
	return options
}

// optionValue 优先取 value 属性，缺失或为空时取文本。
func optionValue(o *goquery.Selection) string {
	if v, ok := o.Attr("value"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return strings.Join(strings.Fields(o.Text()), " ")
}

func radioOption(s *goquery.Selection) string {
	return strings.TrimSpace(s.AttrOr("value", ""))
}

func appendOption(options []string, v string) []string {
	if v == "" {
		return options
	}
	return append(options, v)
}

func hasAttr(s *goquery.Selection, name string) bool {
	_, ok := s.Attr(name)
	return ok
}

func attrEquals(s *goquery.Selection, name, want string) bool {
	v, ok := s.Attr(name)
	return ok && strings.EqualFold(strings.TrimSpace(v), want)
}
