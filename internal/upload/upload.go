// Package upload screens incoming document files before they reach the
// document store.
package upload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
)

var (
	ErrTooLarge = errors.New("file exceeds size limit")
	ErrBadType  = errors.New("file type not accepted")
)

// Allowed lists the accepted content types.
var Allowed = []string{"application/pdf", "image/png", "image/jpeg"}

const sniffLen = 512

type File struct {
	Name string
	Type string
	Size int64
	open func() (io.ReadCloser, error)
}

func (f File) Open() (io.ReadCloser, error) {
	if f.open == nil {
		return nil, fmt.Errorf("upload %q has no content", f.Name)
	}
	return f.open()
}

// ReadAll reads the whole file, refusing more than max bytes when max > 0.
func (f File) ReadAll(max int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	r := io.Reader(rc)
	if max > 0 {
		r = io.LimitReader(rc, max+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if max > 0 && int64(len(data)) > max {
		return nil, ErrTooLarge
	}
	return data, nil
}

func FromFileHeader(fh *multipart.FileHeader) File {
	return File{
		Name: fh.Filename,
		Type: fh.Header.Get("Content-Type"),
		Size: fh.Size,
		open: func() (io.ReadCloser, error) { return fh.Open() },
	}
}

func FromBytes(name, contentType string, data []byte) File {
	buf := append([]byte(nil), data...)
	return File{
		Name: name,
		Type: contentType,
		Size: int64(len(buf)),
		open: func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(buf)), nil },
	}
}

type Rejection struct {
	Name   string `json:"file_name"`
	Reason string `json:"reason"`
}

// Filter keeps PDF, PNG and JPEG files no larger than maxSize. The declared
// type (or the extension when none is declared) must be accepted and agree
// with the sniffed content.
func Filter(files []File, maxSize int64) ([]File, []Rejection) {
	accepted := make([]File, 0, len(files))
	var rejected []Rejection
	for _, f := range files {
		if err := check(&f, maxSize); err != nil {
			rejected = append(rejected, Rejection{Name: f.Name, Reason: err.Error()})
			continue
		}
		accepted = append(accepted, f)
	}
	return accepted, rejected
}

func check(f *File, maxSize int64) error {
	if maxSize > 0 && f.Size > maxSize {
		return ErrTooLarge
	}
	declared := normalizeType(f.Type)
	if declared == "" || declared == "application/octet-stream" {
		declared = normalizeType(mime.TypeByExtension(strings.ToLower(filepath.Ext(f.Name))))
	}
	if !IsAllowed(declared) {
		return ErrBadType
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(rc, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return err
	}
	if sniffed := normalizeType(http.DetectContentType(head[:n])); sniffed != declared {
		return ErrBadType
	}
	f.Type = declared
	return nil
}

func IsAllowed(contentType string) bool {
	ct := normalizeType(contentType)
	for _, a := range Allowed {
		if ct == a {
			return true
		}
	}
	return false
}

func normalizeType(ct string) string {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(ct))
	}
	if mt == "image/jpg" || mt == "image/pjpeg" {
		return "image/jpeg"
	}
	return mt
}
