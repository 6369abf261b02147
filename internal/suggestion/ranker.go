package suggestion

import (
	"sort"
	"strings"

	"formfill-go/internal/model"
)

// Rank 丢弃空值候选，按置信度降序稳定排序（同分保持生成顺序），并按值去重（忽略大小写，保留排名靠前者）。
func Rank(candidates []model.SuggestionCandidate) []model.SuggestionCandidate {
	ranked := make([]model.SuggestionCandidate, 0, len(candidates))
	for _, c := range candidates {
		c.Value = strings.TrimSpace(c.Value)
		if c.Value == "" {
			continue
		}
		ranked = append(ranked, c)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Confidence > ranked[j].Confidence
	})

	seen := make(map[string]struct{}, len(ranked))
	out := ranked[:0]
	for _, c := range ranked {
		key := strings.ToLower(c.Value)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Merge 将新候选放在最前，其后保留至多 keep 个旧候选。结果长度恒为 len(fresh)+min(keep, len(previous))。
func Merge(fresh, previous []model.SuggestionCandidate, keep int) []model.SuggestionCandidate {
	if keep < 0 {
		keep = 0
	}
	if len(previous) > keep {
		previous = previous[:keep]
	}
	merged := make([]model.SuggestionCandidate, 0, len(fresh)+len(previous))
	merged = append(merged, fresh...)
	merged = append(merged, previous...)
	return merged
}

// MarkEnhanced 为候选的来源追加 " (Enhanced)" 后缀，已带后缀的不重复追加。
func MarkEnhanced(candidates []model.SuggestionCandidate) []model.SuggestionCandidate {
	out := make([]model.SuggestionCandidate, len(candidates))
	for i, c := range candidates {
		if !strings.HasSuffix(c.Source, model.EnhancedSuffix) {
			c.Source += model.EnhancedSuffix
		}
		out[i] = c
	}
	return out
}
