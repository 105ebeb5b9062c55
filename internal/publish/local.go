package publish

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/cjeanneret/snapgate/internal/debug"
)

// Local writes captures under a directory. The "latest" file is replaced on
// every capture; the optional "history" file keeps one copy per capture.
// Filenames are text/template strings over Record, e.g.
// "{{.Host}}_latest.jpg" and "{{.Host}}/{{.TakenAt.Format \"20060102150405\"}}_{{.ID}}.jpg".
type Local struct {
	dir     string
	latest  *template.Template
	history *template.Template
}

// NewLocal parses the filename templates. historyFormat may be empty.
func NewLocal(dir, latestFormat, historyFormat string) (*Local, error) {
	if dir == "" {
		return nil, fmt.Errorf("local storage directory is required")
	}
	if latestFormat == "" {
		return nil, fmt.Errorf("latest filename format is required")
	}
	l := &Local{dir: dir}

	var err error
	if l.latest, err = template.New("latest").Option("missingkey=error").Parse(latestFormat); err != nil {
		return nil, fmt.Errorf("parse latest format: %w", err)
	}
	if historyFormat != "" {
		if l.history, err = template.New("history").Option("missingkey=error").Parse(historyFormat); err != nil {
			return nil, fmt.Errorf("parse history format: %w", err)
		}
	}
	return l, nil
}

func (l *Local) Name() string { return "local" }

func (l *Local) Publish(ctx context.Context, rec Record) (string, error) {
	if !rec.Photo.HasData() {
		debug.Verbose("Local storage: capture %s has no image data, skipped", rec.ID)
		return "", nil
	}

	latestPath, err := l.path(l.latest, rec)
	if err != nil {
		return "", err
	}
	if err := writeFileAtomic(latestPath, rec.Photo.Data); err != nil {
		return "", err
	}
	debug.Verbose("Local storage: latest image saved to %s", latestPath)

	if l.history == nil {
		return latestPath, nil
	}
	if err := ctx.Err(); err != nil {
		return latestPath, err
	}
	historyPath, err := l.path(l.history, rec)
	if err != nil {
		return latestPath, err
	}
	if err := writeFileAtomic(historyPath, rec.Photo.Data); err != nil {
		return latestPath, err
	}
	debug.Verbose("Local storage: history image saved to %s", historyPath)
	return historyPath, nil
}

// path renders a filename template and keeps the result inside dir.
func (l *Local) path(tmpl *template.Template, rec Record) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, rec); err != nil {
		return "", fmt.Errorf("render %s filename: %w", tmpl.Name(), err)
	}
	name := strings.TrimSpace(buf.String())
	if name == "" {
		return "", fmt.Errorf("render %s filename: empty result", tmpl.Name())
	}
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s filename %q escapes the storage directory", tmpl.Name(), name)
	}
	return filepath.Join(l.dir, clean), nil
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapgate-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename to %s: %w", path, err)
	}
	return nil
}
