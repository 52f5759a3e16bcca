package api

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/cyphernode-status/internal/poller"
	"github.com/JakeFAU/cyphernode-status/internal/progress"
	"github.com/JakeFAU/cyphernode-status/internal/progress/sinks"
)

//go:embed templates/index.html
var templateFS embed.FS

// ViewSource provides the tracker's latest view.
type ViewSource interface {
	Snapshot() sinks.View
}

// indexData is passed to the index template. Custom templates receive the
// same data and the barClass function.
type indexData struct {
	Title          string
	BaseHref       string
	RefreshSeconds int
	View           sinks.View
}

var templateFuncs = template.FuncMap{
	"barClass": barClass,
}

// barClass maps a bar style to Bootstrap progress-bar classes.
func barClass(style progress.Style) string {
	switch style {
	case progress.StyleComplete:
		return "bg-success"
	case progress.StyleError:
		return "bg-danger"
	default:
		return "progress-bar-striped progress-bar-animated"
	}
}

func loadIndexTemplate(path string) (*template.Template, error) {
	if path == "" {
		tmpl, err := template.New("index.html").Funcs(templateFuncs).ParseFS(templateFS, "templates/index.html")
		if err != nil {
			return nil, fmt.Errorf("parse built-in index template: %w", err)
		}
		return tmpl, nil
	}
	tmpl, err := template.New(filepath.Base(path)).Funcs(templateFuncs).ParseFiles(path)
	if err != nil {
		return nil, fmt.Errorf("parse index template: %w", err)
	}
	return tmpl, nil
}

func (s *Server) indexPage(w http.ResponseWriter, _ *http.Request) {
	data := indexData{
		Title:          s.cfg.Server.Title,
		BaseHref:       s.cfg.Server.BaseHref,
		RefreshSeconds: int(poller.Interval / time.Second),
		View:           s.view.Snapshot(),
	}
	var buf bytes.Buffer
	if err := s.index.Execute(&buf, data); err != nil {
		s.logger.Error("render index", zap.Error(err))
		http.Error(w, "failed to render status page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Debug("write index", zap.Error(err))
	}
}

func (s *Server) progressView(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.view.Snapshot())
}
