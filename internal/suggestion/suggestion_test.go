package suggestion

import (
	"context"
	"errors"
	"strings"
	"testing"

	"formfill-go/internal/config"
	"formfill-go/internal/model"
	"formfill-go/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLLM struct {
	replies  []string
	errs     []error
	calls    int
	messages [][]llm.Message
}

func (f *fakeLLM) Complete(_ context.Context, messages []llm.Message, _ *llm.GenerationParams) (string, error) {
	i := f.calls
	f.calls++
	f.messages = append(f.messages, messages)
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(f.replies) {
		return f.replies[i], nil
	}
	return `{}`, nil
}

type fakeEmbedder struct {
	err     error
	queries []string
}

func (f *fakeEmbedder) CreateEmbedding(_ context.Context, text string) ([]float32, error) {
	f.queries = append(f.queries, text)
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeEmbedder) Dimensions() int { return 3 }

type fakeRetriever struct {
	chunks []model.ScoredChunk
	limits []int
}

func (f *fakeRetriever) Search(_ context.Context, _ uint, _ []float32, limit int, _ float64) ([]model.ScoredChunk, error) {
	f.limits = append(f.limits, limit)
	return f.chunks, nil
}

func newGenerator(l *fakeLLM, e *fakeEmbedder, r *fakeRetriever) *Generator {
	return NewGenerator(l, e, r,
		config.LLMPromptConfig{Rules: "rules", RefStart: "<<CONTEXT>>", RefEnd: "<<END>>"},
		config.RetrievalConfig{TargetedLimit: 3, MinScore: 0.3})
}

var (
	emailField   = model.FieldDescriptor{Name: "email", Label: "Email", Type: model.FieldTypeEmail}
	companyField = model.FieldDescriptor{Name: "company", Label: "Company", Type: model.FieldTypeText}
	sizeField    = model.FieldDescriptor{Name: "size", Label: "Size", Type: model.FieldTypeSelect, Options: []string{"S", "M", "L"}}
)

func profileChunk(id, key, text string) model.ScoredChunk {
	return model.ScoredChunk{Chunk: model.ContextChunk{EntryID: id, UserID: 7, Key: key, Text: text, SourceKind: model.SourceManual}, Score: 0.9}
}

func TestGenerate_PrimaryPathRanksAndTracksUsage(t *testing.T) {
	l := &fakeLLM{replies: []string{"```json\n" + `{"fields": {
		"email": [
			{"value": "jane@old.example", "confidence": 40, "source": "Resume"},
			{"value": "jane@example.com", "confidence": 91.6, "source": "Profile", "explanation": "primary address"},
			{"value": "   ", "confidence": 99},
			{"value": "JANE@example.com", "confidence": 50}
		],
		"company": {"value": "Acme", "confidence": "80", "source": "Resume (Part 2)"},
		"unknown": [{"value": "x", "confidence": 100}]
	}}` + "\n```"}}
	chunks := []model.ScoredChunk{profileChunk("p1", "Profile", "jane@example.com"), profileChunk("r2", "Resume", "Worked at Acme")}
	g := newGenerator(l, &fakeEmbedder{}, &fakeRetriever{})

	res := g.Generate(context.Background(), []model.FieldDescriptor{emailField, companyField}, Bundle{UserID: 7, Chunks: chunks, FormContext: "jobs.example.com"})

	require.Len(t, res.Suggestions, 2)
	email := res.Suggestions["email"]
	require.Len(t, email, 2)
	assert.Equal(t, "jane@example.com", email[0].Value)
	assert.Equal(t, 92, email[0].Confidence)
	assert.Equal(t, "Profile", email[0].Source)
	assert.Equal(t, "jane@old.example", email[1].Value)

	company := res.Suggestions["company"]
	require.Len(t, company, 1)
	assert.Equal(t, 80, company[0].Confidence)

	assert.ElementsMatch(t, []string{"p1", "r2"}, res.UsedEntryIDs)
	assert.Equal(t, 1, l.calls)

	sys := l.messages[0][0].Content
	assert.Contains(t, sys, "<<CONTEXT>>")
	assert.Contains(t, sys, "key: Profile")
	assert.NotContains(t, sys, "0.9")
	assert.Contains(t, l.messages[0][1].Content, "jobs.example.com")
}


func TestGenerate_UsageMatchesExactChunkKey(t *testing.T) {
	l := &fakeLLM{replies: []string{`{"fields": {"company": [{"value": "Acme", "confidence": 80, "source": "Resume (Part 2)"}]}}`}}
	chunks := []model.ScoredChunk{profileChunk("r1", "Resume", "Ada Lovelace"), profileChunk("r2", "Resume (Part 2)", "Worked at Acme")}
	g := newGenerator(l, &fakeEmbedder{}, &fakeRetriever{})

	res := g.Generate(context.Background(), []model.FieldDescriptor{companyField}, Bundle{UserID: 7, Chunks: chunks})

	require.Len(t, res.Suggestions["company"], 1)
	assert.Equal(t, []string{"r2"}, res.UsedEntryIDs)
}
func TestGenerate_TargetedRetrievalForEmptyField(t *testing.T) {
	l := &fakeLLM{replies: []string{
		`{"fields": {"email": [{"value": "jane@example.com", "confidence": 90}], "company": []}}`,
		`{"fields": {"company": [{"value": "Acme Corp", "confidence": 70, "source": "Employment"}]}}`,
	}}
	e := &fakeEmbedder{}
	r := &fakeRetriever{chunks: []model.ScoredChunk{profileChunk("emp", "Employment", "Acme Corp since 2020")}}
	g := newGenerator(l, e, r)

	res := g.Generate(context.Background(), []model.FieldDescriptor{emailField, companyField}, Bundle{
		UserID:       7,
		FieldContext: map[string]string{"company": "current employer"},
	})

	assert.Equal(t, 2, l.calls)
	assert.Equal(t, []string{"Company company current employer"}, e.queries)
	assert.Equal(t, []int{3}, r.limits)
	require.Len(t, res.Suggestions["company"], 1)
	assert.Equal(t, "Acme Corp", res.Suggestions["company"][0].Value)
	assert.Equal(t, []string{"emp"}, res.UsedEntryIDs)

	targetedPrompt := l.messages[1][1].Content
	assert.Contains(t, targetedPrompt, "name: company")
	assert.NotContains(t, targetedPrompt, "name: email")
}

func TestGenerate_ProviderDownFallsBackToFieldHelp(t *testing.T) {
	l := &fakeLLM{errs: []error{errors.New("503")}}
	e := &fakeEmbedder{}
	g := newGenerator(l, e, &fakeRetriever{})

	res := g.Generate(context.Background(), []model.FieldDescriptor{emailField, companyField}, Bundle{UserID: 7})

	assert.Equal(t, 1, l.calls)
	assert.Empty(t, e.queries)
	for _, f := range []model.FieldDescriptor{emailField, companyField} {
		list := res.Suggestions[f.Name]
		require.Len(t, list, 1)
		assert.Equal(t, 0, list[0].Confidence)
		assert.Equal(t, model.SourceLabelFieldHelp, list[0].Source)
		assert.NotEmpty(t, strings.TrimSpace(list[0].Value))
	}
	assert.Equal(t, "Enter your email address", res.Suggestions["email"][0].Value)
	assert.Empty(t, res.UsedEntryIDs)
}

func TestGenerate_StillEmptyAfterTargetedFallsBackToFieldHelp(t *testing.T) {
	l := &fakeLLM{replies: []string{`not json at all`, `{"fields": {"company": [{"value": ""}]}}`}}
	r := &fakeRetriever{chunks: []model.ScoredChunk{profileChunk("x", "Notes", "nothing useful")}}
	g := newGenerator(l, &fakeEmbedder{}, r)

	res := g.Generate(context.Background(), []model.FieldDescriptor{companyField}, Bundle{UserID: 7})

	require.Len(t, res.Suggestions["company"], 1)
	assert.Equal(t, "Enter your company or organization name", res.Suggestions["company"][0].Value)
}

func TestGenerate_EmbeddingFailureSkipsTargeted(t *testing.T) {
	l := &fakeLLM{replies: []string{`{"fields": {}}`}}
	g := newGenerator(l, &fakeEmbedder{err: errors.New("quota")}, &fakeRetriever{})

	res := g.Generate(context.Background(), []model.FieldDescriptor{emailField}, Bundle{UserID: 7})

	assert.Equal(t, 1, l.calls)
	assert.Equal(t, model.SourceLabelFieldHelp, res.Suggestions["email"][0].Source)
}

func TestGenerate_NoFields(t *testing.T) {
	l := &fakeLLM{}
	res := newGenerator(l, &fakeEmbedder{}, &fakeRetriever{}).Generate(context.Background(), nil, Bundle{})
	assert.Empty(t, res.Suggestions)
	assert.Zero(t, l.calls)
}

func TestParseCandidates_UntrustedShapes(t *testing.T) {
	fields := []model.FieldDescriptor{emailField, sizeField, companyField, {Name: "age", Label: "Age", Type: model.FieldTypeNumber}}
	raw := `Sure! {"suggestions": [
		{"fieldName": "size", "value": "m", "confidence": 120},
		{"fieldName": "size", "value": "XL", "confidence": 80},
		{"fieldName": "age", "value": 42, "confidence": -5, "extra": {"nested": true}},
		{"fieldName": "company", "value": ["array"], "confidence": 50}
	], "fields": {"email": "solo@example.com", "company": ["Acme", "Globex"]}}`

	got, err := parseCandidates(raw, fields)

	require.NoError(t, err)
	require.Len(t, got["size"], 1)
	assert.Equal(t, "M", got["size"][0].Value)
	assert.Equal(t, 100, got["size"][0].Confidence)
	require.Len(t, got["age"], 1)
	assert.Equal(t, "42", got["age"][0].Value)
	assert.Equal(t, 0, got["age"][0].Confidence)
	assert.Equal(t, "solo@example.com", got["email"][0].Value)
	assert.Equal(t, model.SourceLabelAI, got["email"][0].Source)
	assert.Len(t, got["company"], 2)
}

func TestParseCandidates_Rejects(t *testing.T) {
	_, err := parseCandidates("no braces", nil)
	assert.Error(t, err)
	_, err = parseCandidates("{broken", nil)
	assert.Error(t, err)
	_, err = parseCandidates(`{"fields": 3}`, nil)
	assert.Error(t, err)
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0, clampConfidence(nil))
	assert.Equal(t, 55, clampConfidence("55%"))
	assert.Equal(t, 0, clampConfidence("high"))
	assert.Equal(t, 100, clampConfidence(100.4))
	assert.Equal(t, 3, clampConfidence(2.5))
}

func TestRank(t *testing.T) {
	in := []model.SuggestionCandidate{
		{Value: "a", Confidence: 50},
		{Value: " ", Confidence: 100},
		{Value: "b", Confidence: 80},
		{Value: "c", Confidence: 50},
		{Value: " B ", Confidence: 10},
		{Value: "", Confidence: 90},
	}

	out := Rank(in)

	values := make([]string, len(out))
	for i, c := range out {
		values[i] = c.Value
	}
	assert.Equal(t, []string{"b", "a", "c"}, values)
}

func TestMerge_LengthProperty(t *testing.T) {
	mk := func(n int, prefix string) []model.SuggestionCandidate {
		out := make([]model.SuggestionCandidate, n)
		for i := range out {
			out[i] = model.SuggestionCandidate{Value: prefix + string(rune('0'+i))}
		}
		return out
	}
	for newN := 0; newN <= 3; newN++ {
		for oldN := 0; oldN <= 5; oldN++ {
			fresh, old := mk(newN, "new"), mk(oldN, "old")
			merged := Merge(fresh, old, 3)
			want := newN + min(3, oldN)
			require.Len(t, merged, want)
			assert.Equal(t, fresh, merged[:newN])
			if oldN > 0 {
				assert.Equal(t, "old0", merged[newN].Value)
			}
		}
	}
}

func TestMarkEnhanced(t *testing.T) {
	out := MarkEnhanced([]model.SuggestionCandidate{
		{Source: "AI Suggestion"},
		{Source: "Field Help (Enhanced)"},
	})
	assert.Equal(t, "AI Suggestion (Enhanced)", out[0].Source)
	assert.Equal(t, "Field Help (Enhanced)", out[1].Source)
}

func TestFieldHelp(t *testing.T) {
	cases := []struct {
		field model.FieldDescriptor
		want  string
	}{
		{model.FieldDescriptor{Name: "userEmail", Label: "Your address"}, "Enter your email address"},
		{model.FieldDescriptor{Name: "firstName", Label: "First Name"}, "Enter your first name"},
		{model.FieldDescriptor{Name: "companyName", Label: "Company Name"}, "Enter your company or organization name"},
		{model.FieldDescriptor{Name: "x1", Label: "Phone"}, "Enter your phone number"},
		{model.FieldDescriptor{Name: "pick", Label: "Pick", Type: model.FieldTypeRadio}, "Choose one of the available options"},
		{model.FieldDescriptor{Name: "q7", Label: "Favourite Colour"}, "Enter your favourite colour"},
	}
	for _, tc := range cases {
		c := FieldHelp(tc.field)
		assert.Equal(t, tc.want, c.Value, tc.field.Name)
		assert.Equal(t, 0, c.Confidence)
		assert.Equal(t, model.SourceLabelFieldHelp, c.Source)
		assert.Equal(t, tc.field.Name, c.FieldName)
	}
}
