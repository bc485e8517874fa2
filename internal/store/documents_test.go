package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"betclever/internal/blob"
	"betclever/internal/models"
	"betclever/internal/upload"
)

var (
	pdf = []byte("%PDF-1.4 test document")
	png = []byte("\x89PNG\r\n\x1a\nrest")
)

func files(names ...string) []upload.File {
	out := make([]upload.File, 0, len(names))
	for _, n := range names {
		if strings.HasSuffix(n, ".png") {
			out = append(out, upload.FromBytes(n, "image/png", png))
			continue
		}
		out = append(out, upload.FromBytes(n, "application/pdf", pdf))
	}
	return out
}

// recordingBlobs keeps content in memory and can fail on a given file name.
type recordingBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	failOn  string
	deleted []string
}

func newRecordingBlobs() *recordingBlobs {
	return &recordingBlobs{objects: map[string][]byte{}}
}

func (r *recordingBlobs) Put(_ context.Context, owner, fileName, _ string, data []byte) (string, error) {
	if fileName == r.failOn {
		return "", errors.New("store unavailable")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ref := "mem://" + owner + "/" + fileName
	r.objects[ref] = append([]byte(nil), data...)
	return ref, nil
}

func (r *recordingBlobs) Get(_ context.Context, ref string) ([]byte, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.objects[ref]
	if !ok {
		return nil, "", errors.New("missing")
	}
	return data, "", nil
}

func (r *recordingBlobs) Delete(_ context.Context, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.objects, ref)
	r.deleted = append(r.deleted, ref)
	return nil
}

func names(docs []models.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.FileName
	}
	return out
}

func TestSaveAllAndGetAll(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	_, err := st.Documents.GetAll(ctx, "7")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = st.Documents.SaveAll(ctx, "7", files("ausweis.pdf", "rueckseite.png"), files("karte.pdf"), files("konto.pdf"))
	require.NoError(t, err)

	set, err := st.Documents.GetAll(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, []string{"ausweis.pdf", "rueckseite.png"}, names(set.Identity))
	assert.Equal(t, []string{"karte.pdf"}, names(set.Card))
	assert.Equal(t, []string{"konto.pdf"}, names(set.Bank))
	assert.True(t, set.Complete())

	doc := set.Identity[1]
	assert.Equal(t, "image/png", doc.FileType)
	assert.Equal(t, int64(len(png)), doc.FileSize)
	assert.True(t, strings.HasPrefix(doc.Content, "data:image/png;base64,"))
	assert.False(t, doc.UploadDate.IsZero())

	data, ct, err := st.Documents.Content(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, png, data)
	assert.Equal(t, "image/png", ct)

	// a second save replaces the whole collection
	_, err = st.Documents.SaveAll(ctx, "7", files("neu.pdf"), nil, nil)
	require.NoError(t, err)
	set, err = st.Documents.GetAll(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, []string{"neu.pdf"}, names(set.Identity))
	assert.Empty(t, set.Card)
	assert.Empty(t, set.Bank)
}

func TestSaveAllFailureKeepsPreviousCollection(t *testing.T) {
	blobs := newRecordingBlobs()
	st, _ := newTestStore(t, WithBlobStore(blobs))
	ctx := context.Background()

	_, err := st.Documents.SaveAll(ctx, "7", files("alt.pdf"), files("karte.pdf"), files("konto.pdf"))
	require.NoError(t, err)

	blobs.failOn = "kaputt.pdf"
	_, err = st.Documents.SaveAll(ctx, "7", files("neu.pdf"), files("kaputt.pdf"), files("konto2.pdf"))
	require.Error(t, err)

	set, err := st.Documents.GetAll(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, []string{"alt.pdf"}, names(set.Identity))
	assert.Equal(t, []string{"karte.pdf"}, names(set.Card))

	blobs.mu.Lock()
	defer blobs.mu.Unlock()
	assert.NotContains(t, blobs.objects, "mem://7/neu.pdf")
	assert.NotContains(t, blobs.objects, "mem://7/konto2.pdf")
	assert.Contains(t, blobs.objects, "mem://7/alt.pdf")
}

func TestSaveAllRejectsOversizeFile(t *testing.T) {
	st, _ := newTestStore(t, WithMaxFileSize(4))
	_, err := st.Documents.SaveAll(context.Background(), "7", files("gross.pdf"), nil, nil)
	assert.ErrorIs(t, err, upload.ErrTooLarge)
}

func TestReplaceBucketsKeepsOthers(t *testing.T) {
	blobs := newRecordingBlobs()
	st, _ := newTestStore(t, WithBlobStore(blobs))
	ctx := context.Background()

	_, err := st.Documents.ReplaceBuckets(ctx, "7", map[models.Bucket][]upload.File{models.BucketIdentity: files("a.pdf")})
	require.NoError(t, err)
	_, err = st.Documents.ReplaceBuckets(ctx, "7", map[models.Bucket][]upload.File{
		models.BucketCard: files("c.pdf"),
		models.BucketBank: files("b.png"),
	})
	require.NoError(t, err)

	set, err := st.Documents.ReplaceBuckets(ctx, "7", map[models.Bucket][]upload.File{models.BucketIdentity: files("a2.pdf")})
	require.NoError(t, err)
	assert.Equal(t, []string{"a2.pdf"}, names(set.Identity))
	assert.Equal(t, []string{"c.pdf"}, names(set.Card))
	assert.Equal(t, []string{"b.png"}, names(set.Bank))
	assert.Contains(t, blobs.deleted, "mem://7/a.pdf")

	_, err = st.Documents.ReplaceBuckets(ctx, "7", map[models.Bucket][]upload.File{"selfie": files("x.pdf")})
	assert.ErrorIs(t, err, ErrUnknownBucket)
}

func TestDeleteOneTouchesOnlyTarget(t *testing.T) {
	blobs := newRecordingBlobs()
	st, _ := newTestStore(t, WithBlobStore(blobs))
	ctx := context.Background()

	_, err := st.Documents.SaveAll(ctx, "7", files("i0.pdf", "i1.pdf", "i2.pdf"), files("c0.pdf"), files("b0.pdf", "b1.pdf"))
	require.NoError(t, err)
	_, err = st.Documents.SaveAll(ctx, "8", files("other.pdf"), files("oc.pdf"), files("ob.pdf"))
	require.NoError(t, err)
	otherBefore, err := st.Documents.GetAll(ctx, "8")
	require.NoError(t, err)

	removed, err := st.Documents.DeleteOne(ctx, "7", models.BucketIdentity, 1)
	require.NoError(t, err)
	assert.Equal(t, "i1.pdf", removed.FileName)
	assert.Equal(t, []string{"mem://7/i1.pdf"}, blobs.deleted)

	set, err := st.Documents.GetAll(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, []string{"i0.pdf", "i2.pdf"}, names(set.Identity))
	assert.Equal(t, []string{"c0.pdf"}, names(set.Card))
	assert.Equal(t, []string{"b0.pdf", "b1.pdf"}, names(set.Bank))

	otherAfter, err := st.Documents.GetAll(ctx, "8")
	require.NoError(t, err)
	assert.Equal(t, otherBefore, otherAfter)

	_, err = st.Documents.DeleteOne(ctx, "7", models.BucketCard, 5)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = st.Documents.DeleteOne(ctx, "7", models.BucketCard, -1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = st.Documents.DeleteOne(ctx, "7", "selfie", 0)
	assert.ErrorIs(t, err, ErrUnknownBucket)
	_, err = st.Documents.DeleteOne(ctx, "99", models.BucketCard, 0)
	assert.ErrorIs(t, err, ErrNotFound)

	set, err = st.Documents.GetAll(ctx, "7")
	require.NoError(t, err)
	assert.Len(t, set.Card, 1)
}

func TestGetDocumentAndPurge(t *testing.T) {
	blobs := newRecordingBlobs()
	st, _ := newTestStore(t, WithBlobStore(blobs))
	ctx := context.Background()

	_, err := st.Documents.SaveAll(ctx, "7", files("i.pdf"), files("c.pdf"), files("b.pdf"))
	require.NoError(t, err)

	doc, err := st.Documents.Get(ctx, "7", models.BucketBank, 0)
	require.NoError(t, err)
	data, ct, err := st.Documents.Content(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, pdf, data)
	assert.Equal(t, "application/pdf", ct)

	_, err = st.Documents.Get(ctx, "7", models.BucketBank, 1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	require.NoError(t, st.Documents.Purge(ctx, "7"))
	_, err = st.Documents.GetAll(ctx, "7")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, blobs.deleted, 3)
}

func TestInlineContentSurvivesBlobStoreSwitch(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()
	_, err := st.Documents.SaveAll(ctx, "7", files("i.pdf"), nil, nil)
	require.NoError(t, err)

	doc, err := st.Documents.Get(ctx, "7", models.BucketIdentity, 0)
	require.NoError(t, err)

	switched := New(st.kv, WithBlobStore(newRecordingBlobs()))
	data, _, err := switched.Documents.Content(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, pdf, data)
	assert.True(t, blob.IsInline(doc.Content))
}
