package upload

import (
	"bytes"
	"mime/multipart"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pdfBytes = []byte("%PDF-1.7\n1 0 obj\n<<>>\nendobj\n")
	pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	jpgBytes = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00")
	exeBytes = []byte("MZ\x90\x00\x03\x00\x00\x00")
)

func TestFilterKeepsOnlyPDFWhenMixedWithExecutable(t *testing.T) {
	accepted, rejected := Filter([]File{
		FromBytes("ausweis.pdf", "application/pdf", pdfBytes),
		FromBytes("setup.exe", "application/x-msdownload", exeBytes),
	}, 1<<20)

	require.Len(t, accepted, 1)
	assert.Equal(t, "ausweis.pdf", accepted[0].Name)
	require.Len(t, rejected, 1)
	assert.Equal(t, "setup.exe", rejected[0].Name)
	assert.Equal(t, ErrBadType.Error(), rejected[0].Reason)
}

func TestFilterFallsBackToExtension(t *testing.T) {
	accepted, rejected := Filter([]File{
		FromBytes("karte.PNG", "", pngBytes),
		FromBytes("konto.jpg", "application/octet-stream", jpgBytes),
	}, 0)
	assert.Empty(t, rejected)
	require.Len(t, accepted, 2)
	assert.Equal(t, "image/png", accepted[0].Type)
	assert.Equal(t, "image/jpeg", accepted[1].Type)
}

func TestFilterRejectsSpoofedType(t *testing.T) {
	_, rejected := Filter([]File{FromBytes("fake.pdf", "application/pdf", exeBytes)}, 0)
	require.Len(t, rejected, 1)
	assert.Equal(t, "fake.pdf", rejected[0].Name)
}

func TestFilterRejectsOversize(t *testing.T) {
	_, rejected := Filter([]File{FromBytes("big.pdf", "application/pdf", pdfBytes)}, 4)
	require.Len(t, rejected, 1)
	assert.Equal(t, ErrTooLarge.Error(), rejected[0].Reason)
}

func TestReadAllLimit(t *testing.T) {
	f := FromBytes("a.pdf", "application/pdf", pdfBytes)
	data, err := f.ReadAll(0)
	require.NoError(t, err)
	assert.Equal(t, pdfBytes, data)

	_, err = f.ReadAll(3)
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = File{Name: "empty"}.Open()
	assert.Error(t, err)
}

func TestFromFileHeader(t *testing.T) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("identity", "pass.pdf")
	require.NoError(t, err)
	_, err = fw.Write(pdfBytes)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))

	fh := req.MultipartForm.File["identity"][0]
	f := FromFileHeader(fh)
	assert.Equal(t, "pass.pdf", f.Name)
	assert.Equal(t, int64(len(pdfBytes)), f.Size)

	// CreateFormFile declares application/octet-stream; the extension decides.
	accepted, rejected := Filter([]File{f}, 0)
	assert.Empty(t, rejected)
	require.Len(t, accepted, 1)
	assert.Equal(t, "application/pdf", accepted[0].Type)
}

func TestIsAllowed(t *testing.T) {
	assert.True(t, IsAllowed("application/pdf"))
	assert.True(t, IsAllowed("image/jpeg; charset=binary"))
	assert.True(t, IsAllowed("image/jpg"))
	assert.False(t, IsAllowed("image/gif"))
	assert.False(t, IsAllowed(""))
}
