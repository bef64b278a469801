// ABOUTME: Converts generic files into base64 inline attachments
// ABOUTME: Enforces a size limit and refuses tabular files, which must be uploaded instead

package files

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/2389/pitstop/internal/apperr"
	"github.com/2389/pitstop/internal/wire"
)

// DefaultMaxBytes is the inline attachment limit used when Base64Encoder.MaxBytes is zero.
const DefaultMaxBytes = 20 << 20

// ErrTabular is returned when asked to inline a spreadsheet-like file.
var ErrTabular = errors.New("tabular files are uploaded for extraction, not inlined")

// Encoder turns a file into an inline attachment.
type Encoder interface {
	Encode(f File) (wire.InlineData, error)
}

// Base64Encoder reads a whole file and encodes it with standard base64.
type Base64Encoder struct {
	// MaxBytes rejects files larger than this many bytes.
	MaxBytes int64
}

// Encode implements Encoder. Read failures and oversized files wrap
// apperr.ErrUnreadableFile.
func (e Base64Encoder) Encode(f File) (wire.InlineData, error) {
	if Classify(f) == KindTabular {
		return wire.InlineData{}, ErrTabular
	}

	limit := e.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}

	rc, err := f.Open()
	if err != nil {
		return wire.InlineData{}, fmt.Errorf("%w: opening %s: %v", apperr.ErrUnreadableFile, f.Name(), err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return wire.InlineData{}, fmt.Errorf("%w: reading %s: %v", apperr.ErrUnreadableFile, f.Name(), err)
	}
	if int64(len(data)) > limit {
		return wire.InlineData{}, fmt.Errorf("%w: %s exceeds %d bytes", apperr.ErrUnreadableFile, f.Name(), limit)
	}

	mimeType := f.MIMEType()
	if mimeType == "" {
		mimeType = DefaultMIMEType
	}

	return wire.InlineData{
		Data:        base64.StdEncoding.EncodeToString(data),
		MIMEType:    mimeType,
		DisplayName: f.Name(),
	}, nil
}

// Encode encodes f with the default limit.
func Encode(f File) (wire.InlineData, error) {
	return Base64Encoder{}.Encode(f)
}
