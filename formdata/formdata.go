// Package formdata builds streaming multipart/form-data bodies whose length
// is known before the first byte is sent.
//
// Plain fields are always written before file parts, in the order given.
// Storage providers that accept presigned POST uploads require the file to be
// the last part of the form.
package formdata

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"
)

// Field is a plain form field.
type Field struct {
	Name  string
	Value string
}

// FilePart is a file form part. Open is called once per body reader, so it
// must be able to return a fresh reader every time.
type FilePart struct {
	FieldName   string
	FileName    string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// Body is a reusable multipart body template.
type Body struct {
	contentType string
	segments    []segment
	length      int64
}

type segment struct {
	data []byte
	file *FilePart
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Build lays out fields followed by files.
func Build(fields []Field, files ...FilePart) (*Body, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, f := range fields {
		if err := w.WriteField(f.Name, f.Value); err != nil {
			return nil, fmt.Errorf("write field %s: %w", f.Name, err)
		}
	}

	b := &Body{contentType: w.FormDataContentType()}
	for i := range files {
		file := files[i]
		if file.Open == nil {
			return nil, fmt.Errorf("file part %s has no content", file.FieldName)
		}
		if file.Size < 0 {
			return nil, fmt.Errorf("file part %s has negative size", file.FieldName)
		}

		contentType := file.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			quoteEscaper.Replace(file.FieldName), quoteEscaper.Replace(file.FileName)))
		h.Set("Content-Type", contentType)
		if _, err := w.CreatePart(h); err != nil {
			return nil, fmt.Errorf("create file part %s: %w", file.FieldName, err)
		}

		b.add(buf.Bytes())
		buf.Reset()
		b.segments = append(b.segments, segment{file: &file})
		b.length += file.Size
	}

	if err := w.Close(); err != nil {
		return nil, err
	}
	b.add(buf.Bytes())

	return b, nil
}

func (b *Body) add(data []byte) {
	if len(data) == 0 {
		return
	}
	b.segments = append(b.segments, segment{data: append([]byte(nil), data...)})
	b.length += int64(len(data))
}

// ContentType returns the multipart content type including the boundary.
func (b *Body) ContentType() string {
	return b.contentType
}

// Len returns the exact encoded length in bytes.
func (b *Body) Len() int64 {
	return b.length
}

// NewReader opens every file part and returns a reader over the whole body.
// Closing it closes the opened files.
func (b *Body) NewReader() (io.ReadCloser, error) {
	readers := make([]io.Reader, 0, len(b.segments))
	var closers []io.Closer

	for _, s := range b.segments {
		if s.file == nil {
			readers = append(readers, bytes.NewReader(s.data))
			continue
		}
		rc, err := s.file.Open()
		if err != nil {
			for _, c := range closers {
				_ = c.Close()
			}
			return nil, fmt.Errorf("open %s: %w", s.file.FileName, err)
		}
		closers = append(closers, rc)
		readers = append(readers, io.LimitReader(rc, s.file.Size))
	}

	return &bodyReader{Reader: io.MultiReader(readers...), closers: closers}, nil
}

type bodyReader struct {
	io.Reader
	closers []io.Closer
	closed  bool
}

func (r *bodyReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	var firstErr error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
