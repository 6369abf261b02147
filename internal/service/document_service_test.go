package service

import (
	"context"
	"strings"
	"testing"

	"formfill-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type documentFixture struct {
	svc   DocumentService
	docs  *fakeDocRepo
	store *fakeStore
	blobs *fakeBlobs
	queue *fakeQueue
	cache *fakeCache
}

func newDocumentFixture() *documentFixture {
	f := &documentFixture{
		docs:  newFakeDocRepo(),
		store: newFakeStore(),
		blobs: newFakeBlobs(),
		queue: &fakeQueue{},
		cache: newFakeCache(),
	}
	f.svc = NewDocumentService(f.docs, f.store, f.blobs, f.queue, f.cache)
	return f
}

func upload(t *testing.T, f *documentFixture, userID uint, fileName string) *model.Document {
	t.Helper()
	body := "hello resume"
	doc, err := f.svc.Upload(context.Background(), userID, UploadRequest{
		FileName:    fileName,
		Size:        int64(len(body)),
		ContentType: "text/plain",
		Content:     strings.NewReader(body),
	})
	require.NoError(t, err)
	return doc
}

func TestUploadStoresBlobAndQueuesPendingDocument(t *testing.T) {
	f := newDocumentFixture()
	doc := upload(t, f, 4, "My Resume.pdf")

	assert.Equal(t, model.DocumentPending, doc.Status)
	assert.Equal(t, "My Resume", doc.Title)
	assert.Equal(t, "hello resume", f.blobs.objects[doc.ObjectName])
	assert.True(t, strings.HasPrefix(doc.ObjectName, "documents/4/"+doc.DocumentID+"/"))

	require.Len(t, f.queue.published, 1)
	task := f.queue.published[0]
	assert.Equal(t, doc.DocumentID, task.DocumentID)
	assert.Equal(t, uint(4), task.UserID)
	assert.Equal(t, doc.ObjectName, task.ObjectName)
	assert.Equal(t, "My Resume", task.Title)
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	f := newDocumentFixture()
	_, err := f.svc.Upload(context.Background(), 1, UploadRequest{FileName: "x.exe", Content: strings.NewReader("x")})
	assert.ErrorIs(t, err, ErrUnsupportedFileType)
	assert.Empty(t, f.blobs.objects)
}

func TestUploadRequiresFile(t *testing.T) {
	f := newDocumentFixture()
	_, err := f.svc.Upload(context.Background(), 1, UploadRequest{FileName: "a.txt"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUploadMarksFailedWhenQueueUnavailable(t *testing.T) {
	f := newDocumentFixture()
	f.queue.err = errBoom

	_, err := f.svc.Upload(context.Background(), 1, UploadRequest{FileName: "a.txt", Content: strings.NewReader("x"), Size: 1})
	require.Error(t, err)

	require.Len(t, f.docs.docs, 1)
	for _, d := range f.docs.docs {
		assert.Equal(t, model.DocumentFailed, d.Status)
		assert.NotEmpty(t, d.ErrorMessage)
	}
}

func TestStatusReportsEntryCount(t *testing.T) {
	f := newDocumentFixture()
	doc := upload(t, f, 1, "a.txt")
	for i := 0; i < 2; i++ {
		require.NoError(t, f.store.Write(context.Background(), &model.ContextChunk{
			UserID:   1,
			Metadata: model.ChunkMetadata{DocumentID: doc.DocumentID, ChunkIndex: i, TotalChunks: 2},
		}))
	}
	require.NoError(t, f.docs.UpdateStatus(doc.DocumentID, model.DocumentProcessing, ""))

	status, err := f.svc.Status(context.Background(), 1, doc.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentProcessing, status.Status)
	assert.Equal(t, int64(2), status.EntryCount)

	_, err = f.svc.Status(context.Background(), 2, doc.DocumentID)
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestStatusCarriesFailureMessage(t *testing.T) {
	f := newDocumentFixture()
	doc := upload(t, f, 1, "a.txt")
	require.NoError(t, f.docs.UpdateStatus(doc.DocumentID, model.DocumentFailed, "tika down"))

	status, err := f.svc.Status(context.Background(), 1, doc.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentFailed, status.Status)
	assert.Equal(t, "tika down", status.Error)
}

func TestDeleteContinuesPastFailedSubsteps(t *testing.T) {
	f := newDocumentFixture()
	doc := upload(t, f, 1, "a.txt")
	f.blobs.removeErr = errBoom
	f.store.deleteErr = errBoom

	require.NoError(t, f.svc.Delete(context.Background(), 1, doc.DocumentID))

	assert.Equal(t, []string{doc.ObjectName}, f.blobs.removed)
	assert.Equal(t, []string{doc.DocumentID}, f.store.deletedDoc)
	assert.Equal(t, []string{doc.DocumentID}, f.cache.deleted)
	assert.Empty(t, f.docs.docs)
}

func TestDeleteUnknownDocument(t *testing.T) {
	f := newDocumentFixture()
	doc := upload(t, f, 1, "a.txt")

	err := f.svc.Delete(context.Background(), 2, doc.DocumentID)
	assert.ErrorIs(t, err, ErrDocumentNotFound)
	assert.Empty(t, f.blobs.removed)
}

func TestListIsOwnerScoped(t *testing.T) {
	f := newDocumentFixture()
	upload(t, f, 1, "a.txt")
	upload(t, f, 1, "b.md")
	upload(t, f, 2, "c.txt")

	docs, err := f.svc.List(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}
