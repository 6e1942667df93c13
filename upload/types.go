// Package upload implements the three-phase direct-to-storage upload:
// request a presigned descriptor from the origin, stream the file to the
// storage provider, then confirm the upload with the origin.
package upload

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/gabriel-vasile/mimetype"
	"github.com/talentbridge/go-apiclient/formdata"
	"github.com/tidwall/gjson"
)

// Descriptor is issued by the origin for one upload.
type Descriptor struct {
	UploadURL string            `json:"uploadUrl"`
	FileKey   string            `json:"fileKey"`
	Fields    map[string]string `json:"fields,omitempty"`

	// field names as they appeared in the origin's response
	order []string
}

// UnmarshalJSON decodes the descriptor and remembers the order of the
// fields object, which storage providers may rely on.
func (d *Descriptor) UnmarshalJSON(data []byte) error {
	type plain Descriptor
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*d = Descriptor(p)

	d.order = nil
	seen := map[string]bool{}
	gjson.GetBytes(data, "fields").ForEach(func(key, _ gjson.Result) bool {
		if k := key.String(); !seen[k] {
			seen[k] = true
			d.order = append(d.order, k)
		}
		return true
	})
	return nil
}

// FieldOrder returns the field names in the order they are sent: the order
// of the origin's response, followed by any other fields sorted by name.
func (d Descriptor) FieldOrder() []string {
	keys := make([]string, 0, len(d.Fields))
	seen := make(map[string]bool, len(d.Fields))
	for _, k := range d.order {
		if _, ok := d.Fields[k]; ok && !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}

	var rest []string
	for k := range d.Fields {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

func (d Descriptor) formFields() []formdata.Field {
	fields := make([]formdata.Field, 0, len(d.Fields))
	for _, k := range d.FieldOrder() {
		fields = append(fields, formdata.Field{Name: k, Value: d.Fields[k]})
	}
	return fields
}

// File is the content to upload. Open is called once per transfer.
type File struct {
	Name string
	Type string
	Size int64
	Open func() (io.ReadCloser, error)
}

// FileFromPath describes a file on disk. The MIME type is sniffed from the
// content.
func FileFromPath(pth string) (*File, error) {
	info, err := os.Stat(pth)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", pth)
	}

	mtype, err := mimetype.DetectFile(pth)
	if err != nil {
		return nil, fmt.Errorf("detect mime type: %w", err)
	}

	return &File{
		Name: filepath.Base(pth),
		Type: mtype.String(),
		Size: info.Size(),
		Open: func() (io.ReadCloser, error) {
			return os.Open(pth)
		},
	}, nil
}

// FilePart returns the form part for f under fieldName.
func (f *File) FilePart(fieldName string) formdata.FilePart {
	return formdata.FilePart{
		FieldName:   fieldName,
		FileName:    f.Name,
		ContentType: f.Type,
		Size:        f.Size,
		Open:        f.Open,
	}
}

// Result is returned by the origin once an upload is confirmed.
type Result struct {
	FileURL  string `json:"fileUrl"`
	FileKey  string `json:"fileKey"`
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

type presignRequest struct {
	FileType   string `json:"fileType"`
	FileName   string `json:"fileName"`
	FileSize   int64  `json:"fileSize"`
	UploadType string `json:"uploadType"`
}

type confirmRequest struct {
	FileKey    string `json:"fileKey"`
	FileName   string `json:"fileName"`
	FileSize   int64  `json:"fileSize"`
	MimeType   string `json:"mimeType"`
	UploadType string `json:"uploadType"`
}
