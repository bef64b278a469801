// ABOUTME: User-selected files and their classification as tabular or generic
// ABOUTME: Provides disk and in-memory File implementations with MIME sniffing

package files

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// DefaultMIMEType is used when a file's type cannot be determined.
const DefaultMIMEType = "application/octet-stream"

// File is a user-selected file. Open may be called more than once.
type File interface {
	Name() string
	MIMEType() string
	Open() (io.ReadCloser, error)
}

// Kind is the routing class of a file.
type Kind int

const (
	// KindGeneric files are sent inline with the message.
	KindGeneric Kind = iota
	// KindTabular files go through the extraction endpoint instead.
	KindTabular
)

func (k Kind) String() string {
	switch k {
	case KindGeneric:
		return "generic"
	case KindTabular:
		return "tabular"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

var (
	tabularMIMEMarkers = []string{"excel", "spreadsheet", "csv"}
	tabularExtensions  = []string{".xlsx", ".xls", ".csv"}
)

// Classify decides how a file is routed. A file is tabular when its MIME
// type mentions excel, spreadsheet or csv, or its name ends in a
// spreadsheet extension (case-insensitive). Everything else is generic.
func Classify(f File) Kind {
	mt := strings.ToLower(f.MIMEType())
	for _, marker := range tabularMIMEMarkers {
		if strings.Contains(mt, marker) {
			return KindTabular
		}
	}
	name := strings.ToLower(f.Name())
	for _, ext := range tabularExtensions {
		if strings.HasSuffix(name, ext) {
			return KindTabular
		}
	}
	return KindGeneric
}

// diskFile is a File backed by a path on the local filesystem.
type diskFile struct {
	path     string
	mimeType string
}

// FromPath returns a File for the file at path. The MIME type is taken
// from the extension, then from the first bytes of the content.
func FromPath(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	f := &diskFile{path: path, mimeType: mime.TypeByExtension(filepath.Ext(path))}
	if f.mimeType == "" {
		f.mimeType = sniff(path)
	}
	return f, nil
}

func (f *diskFile) Name() string     { return filepath.Base(f.path) }
func (f *diskFile) MIMEType() string { return f.mimeType }

func (f *diskFile) Open() (io.ReadCloser, error) {
	return os.Open(f.path)
}

// sniff reads up to 512 bytes and guesses the content type.
func sniff(path string) string {
	fh, err := os.Open(path)
	if err != nil {
		return DefaultMIMEType
	}
	defer fh.Close()

	head := make([]byte, 512)
	n, _ := io.ReadFull(fh, head)
	if n == 0 {
		return DefaultMIMEType
	}
	return http.DetectContentType(head[:n])
}

// memFile is an in-memory File.
type memFile struct {
	name     string
	mimeType string
	data     []byte
}

// FromBytes returns a File holding data in memory.
func FromBytes(name, mimeType string, data []byte) File {
	return &memFile{name: name, mimeType: mimeType, data: data}
}

func (f *memFile) Name() string     { return f.name }
func (f *memFile) MIMEType() string { return f.mimeType }

func (f *memFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.data)), nil
}
