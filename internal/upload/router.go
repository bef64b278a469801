// ABOUTME: Routes tabular files through the remote extraction endpoint
// ABOUTME: Turns a successful extraction into the synthesized user message text

package upload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/2389/pitstop/internal/apperr"
	"github.com/2389/pitstop/internal/files"
	"github.com/2389/pitstop/internal/wire"
)

// ErrNotTabular is returned when a generic file is handed to the router.
var ErrNotTabular = errors.New("only tabular files are uploaded for extraction")

// Extractor submits a file to the extraction endpoint.
type Extractor interface {
	Extract(ctx context.Context, f files.File) (*wire.Extraction, error)
}

// Options configures a Router.
type Options struct {
	// CacheTTL is how long a successful extraction is reused. Zero disables caching.
	CacheTTL time.Duration
	// CacheSize bounds the number of cached extractions.
	CacheSize int
}

// Router uploads tabular files and synthesizes the message that carries
// their extracted content to the agent.
type Router struct {
	extractor Extractor
	cache     *resultCache
	logger    *slog.Logger
}

// NewRouter creates a router. Pass nil logger for default.
func NewRouter(extractor Extractor, opts Options, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		extractor: extractor,
		logger:    logger.With("component", "upload"),
	}
	if opts.CacheTTL > 0 && opts.CacheSize > 0 {
		r.cache = newResultCache(opts.CacheTTL, opts.CacheSize)
	}
	return r
}

// SynthesizeText is the user message sent in place of an uploaded file.
func SynthesizeText(filename, content string) string {
	return fmt.Sprintf("I've uploaded a file: %s\n\n%s\n\nPlease analyze this service data and help me add it to the system.",
		filename, content)
}

// Upload extracts f and returns the synthesized message text. Every failure
// wraps apperr.ErrProcessingFailed; transport failures also keep their own
// kind in the chain.
func (r *Router) Upload(ctx context.Context, f files.File) (string, error) {
	if files.Classify(f) != files.KindTabular {
		return "", ErrNotTabular
	}

	var digest string
	if r.cache != nil {
		d, err := fileDigest(f)
		if err != nil {
			return "", fmt.Errorf("%w: %w", apperr.ErrProcessingFailed, err)
		}
		digest = d
		if cached, ok := r.cache.get(digest); ok {
			r.logger.Debug("extraction cache hit", "file", f.Name(), "digest", digest[:12])
			return SynthesizeText(cached.Filename, cached.Content), nil
		}
	}

	r.logger.Info("uploading file for extraction", "file", f.Name(), "mime_type", f.MIMEType())

	result, err := r.extractor.Extract(ctx, f)
	if err != nil {
		return "", fmt.Errorf("%w: %w", apperr.ErrProcessingFailed, err)
	}
	if result == nil {
		return "", fmt.Errorf("%w: no extraction result", apperr.ErrProcessingFailed)
	}
	if result.Failed() {
		msg := result.Message
		if msg == "" {
			msg = "extraction unsuccessful"
		}
		return "", fmt.Errorf("%w: %s", apperr.ErrProcessingFailed, msg)
	}
	if result.Filename == "" && result.Content == "" {
		return "", fmt.Errorf("%w: extraction returned no content", apperr.ErrProcessingFailed)
	}

	extraction := *result
	if extraction.Filename == "" {
		extraction.Filename = f.Name()
	}

	r.logger.Info("file extracted",
		"file", extraction.Filename,
		"records", extraction.RecordCount,
		"columns", len(extraction.Columns),
	)

	if r.cache != nil {
		r.cache.put(digest, extraction)
	}

	return SynthesizeText(extraction.Filename, extraction.Content), nil
}

// Close releases the cache's background cleanup.
func (r *Router) Close() {
	if r.cache != nil {
		r.cache.close()
	}
}

func fileDigest(f files.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("%w: opening %s: %v", apperr.ErrUnreadableFile, f.Name(), err)
	}
	defer rc.Close()

	h := sha256.New()
	if _, err := io.Copy(h, rc); err != nil {
		return "", fmt.Errorf("%w: reading %s: %v", apperr.ErrUnreadableFile, f.Name(), err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
