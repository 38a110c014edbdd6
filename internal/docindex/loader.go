package docindex

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrInvalidDocument   = errors.New("invalid document")
)

// Document is the plain text of one source file.
type Document struct {
	Name string // base file name
	Path string
	Text string
}

// CommandRunner runs an external tool and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Loader turns files into plain text.
type Loader struct {
	pdftotext string
	runner    CommandRunner
}

type LoaderOption func(*Loader)

// WithPDFToText sets the pdftotext binary used when the built-in PDF reader
// yields no text. An empty name disables the fallback.
func WithPDFToText(bin string) LoaderOption {
	return func(l *Loader) { l.pdftotext = bin }
}

// WithRunner replaces the command runner. Used by tests.
func WithRunner(r CommandRunner) LoaderOption {
	return func(l *Loader) { l.runner = r }
}

func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{pdftotext: "pdftotext", runner: execRunner{}}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Supported reports whether the loader can read files with this name.
func Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md", ".docx", ".pdf":
		return true
	}
	return false
}

// Load reads one file and extracts its text.
func (l *Loader) Load(ctx context.Context, path string) (Document, error) {
	doc := Document{Name: filepath.Base(path), Path: path}
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		var b []byte
		b, err = os.ReadFile(path)
		doc.Text = string(b)
	case ".docx":
		doc.Text, err = extractDOCX(path)
	case ".pdf":
		doc.Text, err = l.extractPDF(ctx, path)
	default:
		return doc, fmt.Errorf("%s: %w", doc.Name, ErrUnsupportedFormat)
	}
	if err != nil {
		return doc, fmt.Errorf("load %s: %w", doc.Name, err)
	}
	doc.Text = strings.TrimSpace(doc.Text)
	return doc, nil
}

func (l *Loader) extractPDF(ctx context.Context, path string) (string, error) {
	text, readErr := readPDF(path)
	if readErr == nil && strings.TrimSpace(text) != "" {
		return text, nil
	}
	if l.pdftotext == "" {
		if readErr != nil {
			return "", readErr
		}
		return text, nil
	}
	out, err := l.runner.Run(ctx, l.pdftotext, "-layout", "-enc", "UTF-8", path, "-")
	if err != nil {
		if readErr != nil {
			return "", fmt.Errorf("%w (pdftotext: %v)", readErr, err)
		}
		return "", fmt.Errorf("pdftotext: %w", err)
	}
	return string(out), nil
}

// readPDF uses the pure-Go reader. The reader panics on some malformed
// inputs, so panics are turned into errors.
func readPDF(path string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: pdf reader: %v", ErrInvalidDocument, r)
		}
	}()
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	defer f.Close()
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("pdf read: %w", err)
	}
	return string(b), nil
}

// word/document.xml structure, paragraphs of runs of text.
type documentXML struct {
	Body struct {
		Paragraphs []paragraph `xml:"p"`
	} `xml:"body"`
}

type paragraph struct {
	Runs []run `xml:"r"`
}

type run struct {
	Text []textElement `xml:"t"`
}

type textElement struct {
	Content string `xml:",chardata"`
}

func extractDOCX(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	defer zr.Close()

	for _, file := range zr.File {
		if file.Name != "word/document.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}

		var doc documentXML
		if err := xml.Unmarshal(content, &doc); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
		var sb strings.Builder
		for i, para := range doc.Body.Paragraphs {
			if i > 0 {
				sb.WriteString("\n")
			}
			for _, r := range para.Runs {
				for _, t := range r.Text {
					sb.WriteString(t.Content)
				}
			}
		}
		return sb.String(), nil
	}
	return "", fmt.Errorf("%w: word/document.xml missing", ErrInvalidDocument)
}
