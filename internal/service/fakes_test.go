package service

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"formfill-go/internal/model"
	"formfill-go/internal/suggestion"
	"formfill-go/pkg/tasks"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const testDims = 3

type fakeEmbedder struct {
	err   error
	calls []string
}

func (f *fakeEmbedder) CreateEmbedding(_ context.Context, text string) ([]float32, error) {
	f.calls = append(f.calls, text)
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeEmbedder) Dimensions() int { return testDims }

type searchCall struct {
	userID uint
	vector []float32
	limit  int
}

type fakeStore struct {
	mu         sync.Mutex
	chunks     map[string]*model.ContextChunk
	results    []model.ScoredChunk
	searchErr  error
	deleteErr  error
	searches   []searchCall
	accessed   []string
	deletedDoc []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{chunks: map[string]*model.ContextChunk{}}
}

func (f *fakeStore) Write(_ context.Context, chunk *model.ContextChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if chunk.EntryID == "" {
		chunk.EntryID = uuid.NewString()
	}
	c := *chunk
	f.chunks[chunk.EntryID] = &c
	return nil
}

func (f *fakeStore) Search(_ context.Context, userID uint, vector []float32, limit int, _ float64) ([]model.ScoredChunk, error) {
	f.searches = append(f.searches, searchCall{userID: userID, vector: vector, limit: limit})
	return f.results, f.searchErr
}

func (f *fakeStore) RecordAccess(_ uint, entryIDs []string) error {
	f.accessed = append(f.accessed, entryIDs...)
	return nil
}

func (f *fakeStore) DeleteDocument(_ context.Context, _ uint, documentID string) error {
	f.deletedDoc = append(f.deletedDoc, documentID)
	return f.deleteErr
}

func (f *fakeStore) DeleteEntry(_ context.Context, userID uint, entryID string) (bool, error) {
	c, ok := f.chunks[entryID]
	if !ok || c.UserID != userID {
		return false, nil
	}
	delete(f.chunks, entryID)
	return true, nil
}

func (f *fakeStore) List(userID uint, kind model.SourceKind) ([]model.ContextChunk, error) {
	var out []model.ContextChunk
	for _, c := range f.chunks {
		if c.UserID == userID && c.SourceKind == kind {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (f *fakeStore) CountByDocument(userID uint, documentID string) (int64, error) {
	var n int64
	for _, c := range f.chunks {
		if c.UserID == userID && c.Metadata.DocumentID == documentID {
			n++
		}
	}
	return n, nil
}

// fakeGenerator 为每个字段返回 replies 中预设的候选，未预设的字段返回一条 Field Help。
type fakeGenerator struct {
	replies map[string][]model.SuggestionCandidate
	used    []string
	bundles []suggestion.Bundle
	fields  [][]model.FieldDescriptor
}

func (f *fakeGenerator) Generate(_ context.Context, fields []model.FieldDescriptor, bundle suggestion.Bundle) suggestion.Result {
	f.bundles = append(f.bundles, bundle)
	f.fields = append(f.fields, fields)
	out := suggestion.Result{Suggestions: map[string][]model.SuggestionCandidate{}, UsedEntryIDs: f.used}
	for _, field := range fields {
		if c, ok := f.replies[field.Name]; ok {
			out.Suggestions[field.Name] = c
			continue
		}
		out.Suggestions[field.Name] = []model.SuggestionCandidate{suggestion.FieldHelp(field)}
	}
	return out
}

type fakeFormRepo struct {
	records map[string]*model.FormRecord
	saved   map[string][]model.SuggestionCandidate
}

func newFakeFormRepo() *fakeFormRepo {
	return &fakeFormRepo{records: map[string]*model.FormRecord{}, saved: map[string][]model.SuggestionCandidate{}}
}

func (f *fakeFormRepo) Create(record *model.FormRecord) error {
	r := *record
	f.records[record.FormID] = &r
	return nil
}

func (f *fakeFormRepo) FindByFormID(formID string, userID uint) (*model.FormRecord, error) {
	r, ok := f.records[formID]
	if !ok || r.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	out := *r
	out.Suggestions = map[string][]model.SuggestionCandidate{}
	for k, v := range r.Suggestions {
		out.Suggestions[k] = v
	}
	return &out, nil
}

func (f *fakeFormRepo) SaveFieldSuggestions(formID, fieldName string, candidates []model.SuggestionCandidate) error {
	f.saved[fieldName] = candidates
	if r, ok := f.records[formID]; ok {
		if r.Suggestions == nil {
			r.Suggestions = map[string][]model.SuggestionCandidate{}
		}
		r.Suggestions[fieldName] = candidates
	}
	return nil
}

type fakeDocRepo struct {
	docs    map[string]*model.Document
	lookups int
}

func newFakeDocRepo() *fakeDocRepo {
	return &fakeDocRepo{docs: map[string]*model.Document{}}
}

func (f *fakeDocRepo) Create(doc *model.Document) error {
	d := *doc
	d.UpdatedAt = time.Now()
	f.docs[doc.DocumentID] = &d
	return nil
}

func (f *fakeDocRepo) FindByDocumentID(documentID string, userID uint) (*model.Document, error) {
	f.lookups++
	d, ok := f.docs[documentID]
	if !ok || d.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	out := *d
	return &out, nil
}

func (f *fakeDocRepo) FindByUserID(userID uint) ([]model.Document, error) {
	var out []model.Document
	for _, d := range f.docs {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeDocRepo) UpdateStatus(documentID string, status model.DocumentStatus, errMsg string) error {
	d, ok := f.docs[documentID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	d.Status = status
	d.ErrorMessage = errMsg
	return nil
}

func (f *fakeDocRepo) UpdateExtraction(documentID string, text string, chunkCount int) error {
	d, ok := f.docs[documentID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	d.ExtractedText = text
	d.ChunkCount = chunkCount
	return nil
}

func (f *fakeDocRepo) UpdateSummary(documentID string, summary string, entities []string) error {
	d, ok := f.docs[documentID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	d.Summary = summary
	d.Entities = entities
	return nil
}

func (f *fakeDocRepo) Delete(documentID string, userID uint) error {
	d, ok := f.docs[documentID]
	if !ok || d.UserID != userID {
		return gorm.ErrRecordNotFound
	}
	delete(f.docs, documentID)
	return nil
}

type fakeCache struct {
	entries map[string]string
	ttls    map[string]time.Duration
	deleted []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeCache) Get(_ context.Context, _ uint, documentID string) (string, bool, error) {
	v, ok := f.entries[documentID]
	return v, ok, nil
}

func (f *fakeCache) Set(_ context.Context, _ uint, documentID string, excerpt string, ttl time.Duration) error {
	f.entries[documentID] = excerpt
	f.ttls[documentID] = ttl
	return nil
}

func (f *fakeCache) Delete(_ context.Context, _ uint, documentID string) error {
	f.deleted = append(f.deleted, documentID)
	delete(f.entries, documentID)
	return nil
}

type fakeBlobs struct {
	objects   map[string]string
	putErr    error
	removeErr error
	removed   []string
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: map[string]string{}}
}

func (f *fakeBlobs) Put(_ context.Context, objectName string, r io.Reader, _ int64, _ string) error {
	if f.putErr != nil {
		return f.putErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.objects[objectName] = string(b)
	return nil
}

func (f *fakeBlobs) Remove(_ context.Context, objectName string) error {
	f.removed = append(f.removed, objectName)
	if f.removeErr != nil {
		return f.removeErr
	}
	delete(f.objects, objectName)
	return nil
}

type fakeQueue struct {
	err       error
	published []tasks.DocumentIngestTask
}

func (f *fakeQueue) Publish(_ context.Context, task tasks.DocumentIngestTask) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, task)
	return nil
}

var errBoom = errors.New("boom")

func candidate(field, value string, confidence int, source string) model.SuggestionCandidate {
	return model.SuggestionCandidate{FieldName: field, Value: value, Confidence: confidence, Source: source}
}

func values(cs []model.SuggestionCandidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Value
	}
	return out
}

func allHaveSuffix(cs []model.SuggestionCandidate, suffix string) bool {
	for _, c := range cs {
		if !strings.HasSuffix(c.Source, suffix) {
			return false
		}
	}
	return true
}
