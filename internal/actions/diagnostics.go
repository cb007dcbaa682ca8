package actions

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/stapply-ai/evals/internal/browser"
)

// minDiagnosticBodyLength gates failure captures: pages with less visible
// text than this are treated as blank or error pages not worth archiving.
const minDiagnosticBodyLength = 50

// Diagnostics captures page artifacts (screenshot, serialized HTML) for
// post-mortem inspection of resolution failures.
type Diagnostics struct {
	dir string
	log *zap.Logger
}

// NewDiagnostics stores artifacts under dir. An empty dir disables capture.
func NewDiagnostics(dir string, log *zap.Logger) *Diagnostics {
	return &Diagnostics{dir: dir, log: log.Named("diagnostics")}
}

// CaptureFailure saves a full-page screenshot and the document HTML as
// <name>.png and <name>.html, but only when the page carries substantial
// visible text. Capture errors are logged, never propagated.
func (d *Diagnostics) CaptureFailure(ctx context.Context, page browser.Page, name string) {
	if d.dir == "" {
		return
	}

	body, err := page.BodyText(ctx)
	if err != nil {
		d.log.Warn("Could not read page text for diagnostics.", zap.Error(err))
		return
	}
	if len(body) <= minDiagnosticBodyLength {
		d.log.Debug("Skipping diagnostics capture, page appears blank.", zap.Int("body_length", len(body)))
		return
	}

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		d.log.Warn("Could not create diagnostics directory.", zap.String("dir", d.dir), zap.Error(err))
		return
	}

	if png, err := page.Screenshot(ctx, true); err != nil {
		d.log.Warn("Diagnostic screenshot failed.", zap.Error(err))
	} else {
		path := filepath.Join(d.dir, name+".png")
		if err := os.WriteFile(path, png, 0o644); err != nil {
			d.log.Warn("Could not write diagnostic screenshot.", zap.String("path", path), zap.Error(err))
		} else {
			d.log.Info("Diagnostic screenshot saved.", zap.String("path", path))
		}
	}

	if html, err := page.Content(ctx); err != nil {
		d.log.Warn("Diagnostic HTML capture failed.", zap.Error(err))
	} else {
		path := filepath.Join(d.dir, name+".html")
		if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
			d.log.Warn("Could not write diagnostic HTML.", zap.String("path", path), zap.Error(err))
		} else {
			d.log.Info("Diagnostic HTML saved.", zap.String("path", path))
		}
	}
}

// CaptureSuccess saves a full-page screenshot as <name>.png with no content
// gating. Errors are logged, never propagated.
func (d *Diagnostics) CaptureSuccess(ctx context.Context, page browser.Page, name string) {
	if d.dir == "" {
		return
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		d.log.Warn("Could not create diagnostics directory.", zap.String("dir", d.dir), zap.Error(err))
		return
	}
	png, err := page.Screenshot(ctx, true)
	if err != nil {
		d.log.Warn("Screenshot failed.", zap.Error(err))
		return
	}
	path := filepath.Join(d.dir, name+".png")
	if err := os.WriteFile(path, png, 0o644); err != nil {
		d.log.Warn("Could not write screenshot.", zap.String("path", path), zap.Error(err))
		return
	}
	d.log.Info("Screenshot saved.", zap.String("path", path))
}
