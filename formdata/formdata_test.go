package formdata

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trackingCloser struct {
	io.Reader
	closed bool
}

func (c *trackingCloser) Close() error {
	c.closed = true
	return nil
}

func TestBuild_FieldsFirstFileLast(t *testing.T) {
	// Given
	content := strings.Repeat("x", 4096)
	opened := &trackingCloser{}
	body, err := Build(
		[]Field{{Name: "key", Value: "uploads/cv.pdf"}, {Name: "policy", Value: "abc"}, {Name: "x-amz-signature", Value: "sig"}},
		FilePart{
			FieldName:   "file",
			FileName:    "cv.pdf",
			ContentType: "application/pdf",
			Size:        int64(len(content)),
			Open: func() (io.ReadCloser, error) {
				opened.Reader = strings.NewReader(content)
				return opened, nil
			},
		},
	)
	require.NoError(t, err)

	// When
	rc, err := body.NewReader()
	require.NoError(t, err)
	raw, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	// Then
	assert.Equal(t, body.Len(), int64(len(raw)))
	assert.True(t, opened.closed)

	_, params, err := mime.ParseMediaType(body.ContentType())
	require.NoError(t, err)
	mr := multipart.NewReader(strings.NewReader(string(raw)), params["boundary"])

	var names []string
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		names = append(names, part.FormName())
		data, err := io.ReadAll(part)
		require.NoError(t, err)
		if part.FormName() == "file" {
			assert.Equal(t, "cv.pdf", part.FileName())
			assert.Equal(t, "application/pdf", part.Header.Get("Content-Type"))
			assert.Equal(t, content, string(data))
		}
	}
	assert.Equal(t, []string{"key", "policy", "x-amz-signature", "file"}, names)
}

func TestBuild_ReaderIsRepeatable(t *testing.T) {
	body, err := Build(nil, FilePart{
		FieldName: "cv",
		FileName:  "a.txt",
		Size:      3,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("abc")), nil
		},
	})
	require.NoError(t, err)

	first, err := body.NewReader()
	require.NoError(t, err)
	a, err := io.ReadAll(first)
	require.NoError(t, err)

	second, err := body.NewReader()
	require.NoError(t, err)
	b, err := io.ReadAll(second)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Contains(t, string(a), "application/octet-stream")
}

func TestBuild_InvalidFile(t *testing.T) {
	_, err := Build(nil, FilePart{FieldName: "file", FileName: "a"})

	assert.Error(t, err)
}

func TestNewReader_OpenFailure(t *testing.T) {
	body, err := Build(nil, FilePart{
		FieldName: "file",
		FileName:  "gone.pdf",
		Size:      1,
		Open: func() (io.ReadCloser, error) {
			return nil, errors.New("no such file")
		},
	})
	require.NoError(t, err)

	_, err = body.NewReader()

	assert.ErrorContains(t, err, "gone.pdf")
}
