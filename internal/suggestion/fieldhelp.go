package suggestion

import (
	"fmt"
	"strings"

	"formfill-go/internal/model"
)

type helpRule struct {
	keywords []string
	hint     string
}

// 按顺序匹配，更具体的关键词放在前面。
var helpRules = []helpRule{
	{[]string{"email", "e-mail", "mail"}, "Enter your email address"},
	{[]string{"linkedin"}, "Enter your LinkedIn profile URL"},
	{[]string{"github"}, "Enter your GitHub profile URL"},
	{[]string{"phone", "mobile", "tel", "cell"}, "Enter your phone number"},
	{[]string{"password", "passwd"}, "Enter a password"},
	{[]string{"username", "user name", "login"}, "Enter your username"},
	{[]string{"first name", "firstname", "given name", "fname"}, "Enter your first name"},
	{[]string{"last name", "lastname", "surname", "family name", "lname"}, "Enter your last name"},
	{[]string{"company", "employer", "organization", "organisation"}, "Enter your company or organization name"},
	{[]string{"job title", "position", "role", "occupation"}, "Enter your job title"},
	{[]string{"name"}, "Enter your full name"},
	{[]string{"street", "address"}, "Enter your street address"},
	{[]string{"city", "town"}, "Enter your city"},
	{[]string{"zip", "postal", "postcode"}, "Enter your postal code"},
	{[]string{"state", "province", "region"}, "Enter your state or region"},
	{[]string{"country"}, "Select your country"},
	{[]string{"birth", "dob"}, "Enter your date of birth"},
	{[]string{"website", "url", "homepage"}, "Enter a website URL"},
	{[]string{"salary", "compensation"}, "Enter your expected salary"},
	{[]string{"cover letter", "message", "comment", "motivation", "about"}, "Write a short message"},
}

// FieldHelp 在没有任何可用候选时，根据字段名与标签的关键词生成一条填写提示，置信度为 0。
func FieldHelp(field model.FieldDescriptor) model.SuggestionCandidate {
	return model.SuggestionCandidate{
		FieldName:   field.Name,
		Value:       helpText(field),
		Confidence:  0,
		Source:      model.SourceLabelFieldHelp,
		Explanation: "No stored context matched this field",
	}
}

func helpText(field model.FieldDescriptor) string {
	haystack := strings.ToLower(field.Label + " " + strings.Join(splitIdentifierWords(field.Name), " ") + " " + field.Name)
	for _, rule := range helpRules {
		for _, kw := range rule.keywords {
			if strings.Contains(haystack, kw) {
				return rule.hint
			}
		}
	}

	switch field.Type {
	case model.FieldTypeEmail:
		return "Enter your email address"
	case model.FieldTypeTel:
		return "Enter your phone number"
	case model.FieldTypeURL:
		return "Enter a website URL"
	case model.FieldTypeDate, model.FieldTypeDateTimeLocal, model.FieldTypeMonth, model.FieldTypeWeek, model.FieldTypeTime:
		return "Pick a date"
	case model.FieldTypeSelect, model.FieldTypeRadio:
		return "Choose one of the available options"
	case model.FieldTypeCheckbox:
		return "Check this box if it applies to you"
	}

	label := strings.TrimSpace(field.Label)
	if label == "" {
		label = field.Name
	}
	return fmt.Sprintf("Enter your %s", strings.ToLower(label))
}

// splitIdentifierWords 粗略拆分 camelCase 与分隔符，仅用于关键词匹配。
func splitIdentifierWords(identifier string) []string {
	var words []string
	var b strings.Builder
	for i, r := range identifier {
		switch {
		case r == '_' || r == '-' || r == '.' || r == '[' || r == ']' || r == ' ':
			if b.Len() > 0 {
				words = append(words, b.String())
				b.Reset()
			}
		case i > 0 && r >= 'A' && r <= 'Z':
			if b.Len() > 0 {
				words = append(words, b.String())
				b.Reset()
			}
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() > 0 {
		words = append(words, b.String())
	}
	return words
}
