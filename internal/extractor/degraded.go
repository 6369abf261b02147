package extractor

import (
	"regexp"
	"strings"

	"formfill-go/internal/model"
)

var (
	controlTagRe = regexp.MustCompile(`(?is)<\s*(input|textarea|select)\b([^>]*)>`)
	disabledRe   = regexp.MustCompile(`(?i)(?:^|\s)(disabled|hidden)(?:\s|=|/|$)`)
	quotedRe     = regexp.MustCompile(`"[^"]*"|'[^']*'`)
)

func attrPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:^|\s)` + name + `\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s"'>/]+))`)
}

var (
	nameAttrRe = attrPattern("name")
	typeAttrRe = attrPattern("type")
)

// extractDegraded 仅通过正则扫描 input/textarea/select 标签上的 name 属性。
// 标签退化为原始标识符；该路径不会 panic，找不到任何字段时返回空列表。
func extractDegraded(rawHTML string) []model.FieldDescriptor {
	fields := []model.FieldDescriptor{}
	seen := make(map[string]struct{})

	for _, m := range controlTagRe.FindAllStringSubmatch(rawHTML, -1) {
		tag := strings.ToLower(m[1])
		attrs := m[2]

		name := attrValue(nameAttrRe, attrs)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		// 引号内的属性值（如 placeholder 文案）不参与 disabled/hidden 判断
		if disabledRe.MatchString(quotedRe.ReplaceAllString(attrs, `""`)) {
			continue
		}

		fieldType := model.FieldTypeText
		switch tag {
		case "textarea":
			fieldType = model.FieldTypeTextarea
		case "select":
			fieldType = model.FieldTypeSelect
		default:
			t := strings.ToLower(attrValue(typeAttrRe, attrs))
			if _, skip := nonDataInputTypes[t]; skip {
				continue
			}
			if ft, ok := recognizedInputTypes[t]; ok {
				fieldType = ft
			}
		}

		seen[name] = struct{}{}
		fields = append(fields, model.FieldDescriptor{
			Name:  name,
			Label: name,
			Type:  fieldType,
		})
	}
	return fields
}

func attrValue(re *regexp.Regexp, attrs string) string {
	m := re.FindStringSubmatch(attrs)
	if m == nil {
		return ""
	}
	for _, group := range m[1:] {
		if v := strings.TrimSpace(group); v != "" {
			return v
		}
	}
	return ""
}
