// Package report renders examinations as docx, xlsx, pdf and csv documents.
package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Pryanik-M/LiveHeart/internal/domain/examination"
)

// Renderer writes a Report in one format.
type Renderer interface {
	Format() string
	ContentType() string
	Render(w io.Writer, r *Report) error
}

// Registry looks renderers up by format name.
type Registry struct {
	mu          sync.RWMutex
	renderers   map[string]Renderer
	institution string
	logger      zerolog.Logger
}

func NewRegistry(institution string, logger zerolog.Logger, renderers ...Renderer) *Registry {
	reg := &Registry{
		renderers:   make(map[string]Renderer),
		institution: institution,
		logger:      logger.With().Str("component", "report").Logger(),
	}
	for _, r := range renderers {
		reg.Register(r)
	}
	return reg
}

// Default returns a registry with every built-in format.
func Default(institution string, logger zerolog.Logger) *Registry {
	return NewRegistry(institution, logger, DOCX{}, XLSX{}, NewPDF(), CSV{})
}

// Register adds or replaces the renderer for its format.
func (reg *Registry) Register(r Renderer) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.renderers[r.Format()] = r
}

// Find returns the renderer for format, or nil.
func (reg *Registry) Find(format string) Renderer {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.renderers[format]
}

func (reg *Registry) Supports(format string) bool {
	return reg.Find(format) != nil
}

// Formats lists the registered formats in name order.
func (reg *Registry) Formats() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]string, 0, len(reg.renderers))
	for f := range reg.renderers {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Export renders e as a downloadable document.
func (reg *Registry) Export(ctx context.Context, e *examination.Examination, format string) (*examination.Document, error) {
	r := reg.Find(format)
	if r == nil {
		return nil, fmt.Errorf("%w: %q", examination.ErrUnknownFormat, format)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content := Build(e, reg.institution)
	var buf bytes.Buffer
	if err := r.Render(&buf, content); err != nil {
		reg.logger.Error().Err(err).Str("format", format).Str("examination_id", e.ID.String()).Msg("render failed")
		return nil, fmt.Errorf("render %s: %w", format, err)
	}
	return &examination.Document{
		Filename:    FileName(content.PatientName, format),
		ContentType: r.ContentType(),
		Body:        buf.Bytes(),
	}, nil
}

var fileNameReplacer = strings.NewReplacer("/", "_", "\\", "_", "\"", "", "\r", "", "\n", "")

// FileName is "Echo_<name>.<ext>".
func FileName(patientName, ext string) string {
	return "Echo_" + fileNameReplacer.Replace(strings.TrimSpace(patientName)) + "." + ext
}
