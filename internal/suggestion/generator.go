// Package suggestion 负责把字段描述与检索到的上下文交给生成模型，产出、校验并排序各字段的候选值。
package suggestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"formfill-go/internal/config"
	"formfill-go/internal/model"
	"formfill-go/pkg/embedding"
	"formfill-go/pkg/llm"
	"formfill-go/pkg/log"
)

// ErrProviderUnavailable 表示生成或向量化服务不可用。它只在本包内部用于选择降级路径，不会返回给调用方。
var ErrProviderUnavailable = errors.New("suggestion provider unavailable")

const maxSnippetLen = 800

// Retriever 提供按用户过滤的相似度检索。
type Retriever interface {
	Search(ctx context.Context, userID uint, vector []float32, limit int, minScore float64) ([]model.ScoredChunk, error)
}

// Bundle 是一次生成所需的上下文。
type Bundle struct {
	UserID uint
	// Chunks 是已检索到的上下文，只有 key/text/tags/source 会进入提示词。
	Chunks []model.ScoredChunk
	// FormContext 是表单所在页面的 URL 或域名。
	FormContext string
	// FieldContext 是逐字段的自由文本补充说明。
	FieldContext map[string]string
	// Extra 是整体追加的说明，例如精修时的文档摘录与用户指令。
	Extra string
}

// Result 是一次生成的结果。Suggestions 中每个字段都至少有一个候选。
type Result struct {
	Suggestions map[string][]model.SuggestionCandidate
	// UsedEntryIDs 是被候选引用过的上下文条目，调用方据此更新访问统计。
	UsedEntryIDs []string
}

// Generator 组合生成模型、向量化服务与检索器。所有依赖都由构造参数注入。
type Generator struct {
	llm           llm.Client
	embedder      embedding.Client
	retriever     Retriever
	prompt        config.LLMPromptConfig
	targetedLimit int
	minScore      float64
}

// NewGenerator 创建一个新的 Generator。
func NewGenerator(llmClient llm.Client, embedder embedding.Client, retriever Retriever, prompt config.LLMPromptConfig, retrieval config.RetrievalConfig) *Generator {
	targeted := retrieval.TargetedLimit
	if targeted <= 0 {
		targeted = 3
	}
	return &Generator{
		llm:           llmClient,
		embedder:      embedder,
		retriever:     retriever,
		prompt:        prompt,
		targetedLimit: targeted,
		minScore:      retrieval.MinScore,
	}
}

// Generate 为每个字段生成候选。该方法不返回错误：
// 主路径没有产出有效候选的字段会做一次定向检索并单独重新生成；
// 仍然为空或生成服务不可用时，以 Field Help 提示兜底。
func (g *Generator) Generate(ctx context.Context, fields []model.FieldDescriptor, bundle Bundle) Result {
	result := Result{Suggestions: make(map[string][]model.SuggestionCandidate, len(fields))}
	if len(fields) == 0 {
		return result
	}
	used := newUsage()

	primary, err := g.generate(ctx, fields, bundle, bundle.Chunks)
	providerDown := errors.Is(err, ErrProviderUnavailable)
	if err != nil {
		log.Warnf("[Generator] 主路径生成失败, fields: %d, error: %v", len(fields), err)
	}
	used.collect(primary, bundle.Chunks)

	for _, field := range fields {
		candidates := Rank(primary[field.Name])

		if len(candidates) == 0 && !providerDown {
			candidates = g.targeted(ctx, field, bundle, used)
		}
		if len(candidates) == 0 {
			candidates = []model.SuggestionCandidate{FieldHelp(field)}
		}
		result.Suggestions[field.Name] = candidates
	}

	result.UsedEntryIDs = used.ids
	return result
}

// targeted 以 "{label} {name} {context}" 为查询做定向检索，仅用这批更窄的上下文为单个字段重新生成。
func (g *Generator) targeted(ctx context.Context, field model.FieldDescriptor, bundle Bundle, used *usage) []model.SuggestionCandidate {
	fieldContext := bundle.FieldContext[field.Name]
	if fieldContext == "" {
		fieldContext = bundle.Extra
	}
	query := strings.TrimSpace(strings.Join([]string{field.Label, field.Name, fieldContext}, " "))

	vector, err := g.embedder.CreateEmbedding(ctx, query)
	if err != nil {
		log.Warnf("[Generator] 定向检索向量化失败, field: %s, error: %v", field.Name, err)
		return nil
	}
	chunks, err := g.retriever.Search(ctx, bundle.UserID, vector, g.targetedLimit, g.minScore)
	if err != nil {
		log.Warnf("[Generator] 定向检索失败, field: %s, error: %v", field.Name, err)
		return nil
	}
	if len(chunks) == 0 {
		return nil
	}

	out, err := g.generate(ctx, []model.FieldDescriptor{field}, bundle, chunks)
	if err != nil {
		log.Warnf("[Generator] 定向重新生成失败, field: %s, error: %v", field.Name, err)
		return nil
	}
	used.collect(out, chunks)
	return Rank(out[field.Name])
}

// generate 调用一次生成模型并解析结果。
func (g *Generator) generate(ctx context.Context, fields []model.FieldDescriptor, bundle Bundle, chunks []model.ScoredChunk) (map[string][]model.SuggestionCandidate, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: g.buildSystemMessage(chunks)},
		{Role: llm.RoleUser, Content: buildUserMessage(fields, bundle)},
	}
	raw, err := g.llm.Complete(ctx, messages, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	parsed, err := parseCandidates(raw, fields)
	if err != nil {
		return nil, err
	}
	return parsed, nil
}

func (g *Generator) buildSystemMessage(chunks []model.ScoredChunk) string {
	refStart := g.prompt.RefStart
	if refStart == "" {
		refStart = "<<CONTEXT>>"
	}
	refEnd := g.prompt.RefEnd
	if refEnd == "" {
		refEnd = "<<END>>"
	}

	var sys strings.Builder
	if g.prompt.Rules != "" {
		sys.WriteString(strings.TrimSpace(g.prompt.Rules))
		sys.WriteString("\n\n")
	}
	sys.WriteString(refStart)
	sys.WriteString("\n")
	if contextText := buildContextText(chunks); contextText != "" {
		sys.WriteString(contextText)
	} else {
		noRes := g.prompt.NoResultText
		if noRes == "" {
			noRes = "(no stored context)"
		}
		sys.WriteString(noRes)
		sys.WriteString("\n")
	}
	sys.WriteString(refEnd)
	return sys.String()
}

// buildContextText 只输出 key/text/tags/source，不包含向量。降级结果会被标注为低置信度。
func buildContextText(chunks []model.ScoredChunk) string {
	var b strings.Builder
	for i, sc := range chunks {
		c := sc.Chunk
		text := c.Text
		if utf8.RuneCountInString(text) > maxSnippetLen {
			text = string([]rune(text)[:maxSnippetLen]) + "…"
		}
		fmt.Fprintf(&b, "[%d] key: %s | source: %s", i+1, c.Key, c.SourceKind)
		if len(c.Tags) > 0 {
			fmt.Fprintf(&b, " | tags: %s", strings.Join(c.Tags, ", "))
		}
		if sc.Fallback {
			b.WriteString(" | unranked, lower confidence")
		}
		fmt.Fprintf(&b, "\n%s\n", text)
	}
	return b.String()
}

func buildUserMessage(fields []model.FieldDescriptor, bundle Bundle) string {
	var b strings.Builder
	if bundle.FormContext != "" {
		fmt.Fprintf(&b, "Form page: %s\n", bundle.FormContext)
	}
	if extra := strings.TrimSpace(bundle.Extra); extra != "" {
		fmt.Fprintf(&b, "Additional context:\n%s\n", extra)
	}
	b.WriteString("Fields:\n")
	for _, f := range fields {
		fmt.Fprintf(&b, "- name: %s | label: %s | type: %s", f.Name, f.Label, f.Type)
		if f.Placeholder != "" {
			fmt.Fprintf(&b, " | placeholder: %s", f.Placeholder)
		}
		if len(f.Options) > 0 {
			fmt.Fprintf(&b, " | options: %s", strings.Join(f.Options, ", "))
		}
		if f.Required {
			b.WriteString(" | required")
		}
		if fc := strings.TrimSpace(bundle.FieldContext[f.Name]); fc != "" {
			fmt.Fprintf(&b, " | context: %s", fc)
		}
		b.WriteString("\n")
	}
	b.WriteString(`
Return a JSON object of the form {"fields": {"<field name>": [{"value": "...", "confidence": 0-100, "source": "<context key, or AI Suggestion>", "explanation": "..."}]}}.
Give up to 3 candidates per field, best first. Omit a field or return an empty list when the context does not support a value.`)
	return b.String()
}

// usage 记录被候选引用的上下文条目，按首次出现顺序去重。
type usage struct {
	ids  []string
	seen map[string]struct{}
}

func newUsage() *usage {
	return &usage{seen: make(map[string]struct{})}
}

// collect 将来源与某条上下文 key 相符的候选视为引用了该条目。
func (u *usage) collect(suggestions map[string][]model.SuggestionCandidate, chunks []model.ScoredChunk) {
	for _, candidates := range suggestions {
		for _, c := range candidates {
			source := strings.ToLower(strings.TrimSpace(c.Source))
			if source == "" {
				continue
			}
			for _, sc := range chunks {
				key := strings.ToLower(strings.TrimSpace(sc.Chunk.Key))
				if key == "" || sc.Chunk.EntryID == "" {
					continue
				}
				if source == key {
					if _, ok := u.seen[sc.Chunk.EntryID]; !ok {
						u.seen[sc.Chunk.EntryID] = struct{}{}
						u.ids = append(u.ids, sc.Chunk.EntryID)
					}
				}
			}
		}
	}
}
