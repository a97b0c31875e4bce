package fetch

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// UnsupportedFormatError marks a document whose extension has no registered
// decoder. Callers record it as a warning and keep going; it is never fatal.
type UnsupportedFormatError struct {
	Ext string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("no text decoder for %q files", e.Ext)
}

// DecoderFunc converts one downloaded document into plain text.
type DecoderFunc func(ctx context.Context, path string) (string, error)

// Registry maps file extensions to text decoders. The decoders shell out to
// office tooling the same way the retrieval pipeline always has; they are
// opaque collaborators, not something this package tries to reimplement.
type Registry struct {
	decoders map[string]DecoderFunc
}

// NewRegistry returns a registry covering the document formats the tracker
// serves: docx, pdf, doc and txt.
func NewRegistry() *Registry {
	r := &Registry{decoders: make(map[string]DecoderFunc)}
	r.Register(".txt", decodeTXT)
	r.Register(".pdf", decodePDF)
	r.Register(".docx", decodeOffice)
	r.Register(".doc", decodeDOC)
	return r
}

func (r *Registry) Register(ext string, fn DecoderFunc) {
	r.decoders[strings.ToLower(ext)] = fn
}

// Decode extracts plain text from the file at path. Unknown extensions
// return empty text and an *UnsupportedFormatError.
func (r *Registry) Decode(ctx context.Context, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	fn, ok := r.decoders[ext]
	if !ok {
		return "", &UnsupportedFormatError{Ext: ext}
	}
	return fn(ctx, path)
}

func decodeTXT(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read text file: %w", err)
	}
	return string(data), nil
}

func decodePDF(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, "pdftotext", path, "-")
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("pdftotext failed: %w", err)
	}
	return out.String(), nil
}

// decodeOffice converts docx (and anything else LibreOffice understands)
// through a headless soffice run into a scratch directory.
func decodeOffice(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	scratch, err := os.MkdirTemp("", "billtracker-decode-")
	if err != nil {
		return "", fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	cmd := exec.CommandContext(ctx, "soffice", "--headless", "--convert-to", "txt:Text", "--outdir", scratch, path)
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("soffice conversion failed: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	converted := filepath.Join(scratch, base+".txt")
	data, err := os.ReadFile(converted)
	if err != nil {
		return "", fmt.Errorf("soffice produced no output: %w", err)
	}
	return string(data), nil
}

// decodeDOC tries LibreOffice first and falls back to antiword for legacy
// .doc files on hosts without a LibreOffice install.
func decodeDOC(ctx context.Context, path string) (string, error) {
	text, err := decodeOffice(ctx, path)
	if err == nil {
		return text, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, "antiword", path)
	cmd.Stdout = &out
	if antiwordErr := cmd.Run(); antiwordErr != nil {
		return "", fmt.Errorf("doc conversion failed: %w", err)
	}
	return out.String(), nil
}
