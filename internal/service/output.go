package service

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"
)

// OutputStdout is the output path that writes to standard output.
const OutputStdout = "-"

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// OutputPath renders the placeholders of an output path pattern:
// {{.Timestamp}} (20060102T150405) and {{.Date}} (2006-01-02).
func OutputPath(pattern string, now time.Time) (string, error) {
	if !strings.Contains(pattern, "{{") {
		return pattern, nil
	}
	t, err := template.New("output").Option("missingkey=error").Parse(pattern)
	if err != nil {
		return "", fmt.Errorf("parse output path: %w", err)
	}
	var b strings.Builder
	err = t.Execute(&b, map[string]string{
		"Timestamp": now.Format("20060102T150405"),
		"Date":      now.Format("2006-01-02"),
	})
	if err != nil {
		return "", fmt.Errorf("render output path: %w", err)
	}
	return b.String(), nil
}

// OpenOutput opens the destination of a dump. "" and "-" mean stdout.
// It returns the writer and the resolved path.
func OpenOutput(pattern string, now time.Time) (io.WriteCloser, string, error) {
	if pattern == "" || pattern == OutputStdout {
		return nopWriteCloser{os.Stdout}, OutputStdout, nil
	}
	path, err := OutputPath(pattern, now)
	if err != nil {
		return nil, "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, "", fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, "", fmt.Errorf("create output: %w", err)
	}
	return f, path, nil
}
