package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/rendis/flowsketch/internal/logging"
	"github.com/rendis/flowsketch/pkg/schema"
)

// Kind selects the inference path for a piece of content.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

// DefaultMaxImageDim bounds both sides of an image sent to the model.
const DefaultMaxImageDim = 1024

var documentExts = map[string]bool{
	".pdf":  true,
	".docx": true,
	".txt":  true,
	".md":   true,
}

var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
}

// Content is model-ready input: plain text for documents, a normalized PNG for images.
type Content struct {
	Kind     Kind
	Text     string
	Image    []byte
	MIMEType string
	Source   string
	Pages    int // documents with pages only
	Width    int // images only, after normalization
	Height   int
}

// Options configures extraction limits.
type Options struct {
	MaxImageDim int
	MaxFileSize int64 // 0 means unlimited
}

// Extractor turns a source file into Content. It never modifies the source.
type Extractor struct {
	opts   Options
	logger *slog.Logger
}

// New creates an Extractor.
func New(opts Options, logger *slog.Logger) *Extractor {
	if opts.MaxImageDim <= 0 {
		opts.MaxImageDim = DefaultMaxImageDim
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Extractor{opts: opts, logger: logger}
}

// Detect classifies path by its extension, case-insensitively.
func Detect(path string) (Kind, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case documentExts[ext]:
		return KindText, nil
	case imageExts[ext]:
		return KindImage, nil
	default:
		return "", schema.NewErrorf(schema.ErrCodeUnsupportedFormat, "unsupported file format: %q", ext).
			WithStage(schema.StageExtract).
			WithDetails(map[string]any{"extension": ext, "supported": SupportedExtensions()})
	}
}

// Eligible reports whether path names a file the pipeline can process.
func Eligible(path string) bool {
	_, err := Detect(path)
	return err == nil
}

// SupportedExtensions lists every accepted extension, documents first.
func SupportedExtensions() []string {
	return []string{".pdf", ".docx", ".txt", ".md", ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".webp"}
}

// Extract reads path and produces Content for the matching inference path.
func (e *Extractor) Extract(ctx context.Context, path string) (*Content, error) {
	kind, err := Detect(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, extractionError(path, "cannot read source", err)
	}
	if info.IsDir() {
		return nil, extractionError(path, "source is a directory", nil)
	}
	if e.opts.MaxFileSize > 0 && info.Size() > e.opts.MaxFileSize {
		return nil, extractionError(path,
			fmt.Sprintf("file too large: %d bytes (max %d)", info.Size(), e.opts.MaxFileSize), nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(path))
	e.logger.DebugContext(ctx, "extracting content", "path", path, "kind", kind, "ext", ext)

	c := &Content{Kind: kind, Source: path}
	switch {
	case kind == KindImage:
		img, err := normalizeImage(path, e.opts.MaxImageDim)
		if err != nil {
			return nil, extractionError(path, "cannot decode image", err)
		}
		c.Image, c.MIMEType, c.Width, c.Height = img.data, "image/png", img.width, img.height
		e.logger.InfoContext(ctx, "image normalized",
			"width", img.width, "height", img.height, "resized", img.resized, "bytes", len(img.data))
		return c, nil
	case ext == ".pdf":
		c.Text, c.Pages, err = extractPDF(ctx, path)
	case ext == ".docx":
		c.Text, err = extractDocx(path)
	default:
		c.Text, err = extractPlain(path)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, extractionError(path, "cannot extract text", err)
	}
	if strings.TrimSpace(c.Text) == "" {
		return nil, extractionError(path, "document contains no extractable text", nil)
	}

	e.logger.InfoContext(ctx, "text extracted", "chars", len([]rune(c.Text)), "pages", c.Pages)
	return c, nil
}

func extractionError(path, msg string, cause error) *schema.FlowError {
	fe := schema.NewErrorf(schema.ErrCodeExtraction, "%s: %s", filepath.Base(path), msg).
		WithStage(schema.StageExtract)
	if cause != nil {
		fe.WithCause(cause).WithDetails(map[string]any{"cause": cause.Error()})
	}
	return fe
}
