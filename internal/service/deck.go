package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/tomato-slides/internal/apperror"
	"github.com/sakif/tomato-slides/internal/model"
)

// ErrConversion means the uploaded PDF could not be rendered to images.
var ErrConversion = errors.New("PDF conversion failed")

const (
	notesFile = "notes.json"
	indexFile = "index.json"
)

var (
	sessionCodePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	slideNumberPattern = regexp.MustCompile(`(\d+)\.png$`)
)

// Converter renders every page of a PDF into outDir as slide-<n>.png. Page
// numbers may be zero-padded; the deck service normalises them.
type Converter interface {
	Convert(ctx context.Context, pdfPath, outDir string) error
}

// TokenIssuer hands out presenter tokens for a session code.
type TokenIssuer interface {
	Generate(sessionCode string) (string, error)
}

// PdftoppmConverter shells out to poppler's pdftoppm.
type PdftoppmConverter struct {
	Binary  string
	DPI     int
	Timeout time.Duration
}

// NewPdftoppmConverter renders at scale × 72 DPI, so scale 3 gives the same
// sharpness projectors have always had.
func NewPdftoppmConverter(binary string, scale float64, timeout time.Duration) *PdftoppmConverter {
	if binary == "" {
		binary = "pdftoppm"
	}
	if scale <= 0 {
		scale = 3
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &PdftoppmConverter{Binary: binary, DPI: int(scale * 72), Timeout: timeout}
}

func (c *PdftoppmConverter) Convert(ctx context.Context, pdfPath, outDir string) error {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.Binary, "-png", "-r", strconv.Itoa(c.DPI), pdfPath, filepath.Join(outDir, "slide"))
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", c.Binary, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// DeckConfig says where decks live on disk and how they are served.
type DeckConfig struct {
	// SlidesDir holds one directory per deck, served under URLPrefix.
	SlidesDir string
	// UploadDir holds PDFs while they are converted.
	UploadDir string
	URLPrefix string
}

// DeckService turns uploaded PDFs into slide decks.
type DeckService struct {
	cfg       DeckConfig
	converter Converter
	tokens    TokenIssuer
	logger    *slog.Logger
}

// NewDeckService creates a DeckService. tokens may be nil, in which case
// uploads carry no presenter token.
func NewDeckService(cfg DeckConfig, converter Converter, tokens TokenIssuer, logger *slog.Logger) *DeckService {
	if cfg.URLPrefix == "" {
		cfg.URLPrefix = "/slides"
	}
	return &DeckService{
		cfg:       cfg,
		converter: converter,
		tokens:    tokens,
		logger:    logger,
	}
}

// UploadResult is a freshly created deck and, when auth is enabled, the token
// that lets its uploader present it.
type UploadResult struct {
	Deck           model.Deck
	PresenterToken string
}

// Upload stores the PDF, renders it and writes the deck's notes and index.
// rawNotes is a JSON array with one entry per slide; non-string entries become
// empty notes. A rendering failure leaves nothing behind and wraps ErrConversion.
func (s *DeckService) Upload(ctx context.Context, pdf io.Reader, rawNotes string) (*UploadResult, error) {
	notes, err := ParseNotes(rawNotes)
	if err != nil {
		return nil, err
	}

	id := xid.New().String()

	pdfPath, err := s.saveUpload(id, pdf)
	if err != nil {
		return nil, err
	}
	defer os.Remove(pdfPath)

	outDir := filepath.Join(s.cfg.SlidesDir, id)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating deck directory: %w", err)
	}

	slides, err := s.render(ctx, pdfPath, outDir, id)
	if err != nil {
		os.RemoveAll(outDir)
		s.logger.Error("pdf conversion failed", slog.String("deck", id), slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %w", ErrConversion, err)
	}

	if err := writeJSONFile(filepath.Join(outDir, notesFile), notes); err != nil {
		os.RemoveAll(outDir)
		return nil, err
	}
	if err := writeJSONFile(filepath.Join(outDir, indexFile), map[string][]string{"slides": slides}); err != nil {
		os.RemoveAll(outDir)
		return nil, err
	}

	result := &UploadResult{Deck: model.Deck{ID: id, Slides: slides, Notes: notes}}
	if s.tokens != nil {
		token, err := s.tokens.Generate(id)
		if err != nil {
			return nil, fmt.Errorf("issuing presenter token: %w", err)
		}
		result.PresenterToken = token
	}

	s.logger.Info("deck created", slog.String("deck", id), slog.Int("slides", len(slides)))
	return result, nil
}

// Notes returns the speaker notes of a deck.
func (s *DeckService) Notes(ctx context.Context, sessionCode string) ([]string, error) {
	if !sessionCodePattern.MatchString(sessionCode) {
		return nil, apperror.NotFound("notes", sessionCode)
	}

	data, err := os.ReadFile(filepath.Join(s.cfg.SlidesDir, sessionCode, notesFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperror.NotFound("notes", sessionCode)
		}
		return nil, fmt.Errorf("reading notes for %s: %w", sessionCode, err)
	}

	var notes []string
	if err := json.Unmarshal(data, &notes); err != nil {
		return nil, fmt.Errorf("decoding notes for %s: %w", sessionCode, err)
	}
	if notes == nil {
		notes = []string{}
	}
	return notes, nil
}

// ParseNotes decodes the notes form field. Missing notes are an empty list.
func ParseNotes(raw string) ([]string, error) {
	notes := []string{}
	if strings.TrimSpace(raw) == "" {
		return notes, nil
	}

	var entries []any
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, apperror.ValidationFailed("notes", "notes must be a JSON array")
	}
	for _, e := range entries {
		text, _ := e.(string)
		notes = append(notes, strings.TrimSpace(text))
	}
	return notes, nil
}

func (s *DeckService) saveUpload(id string, pdf io.Reader) (string, error) {
	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("creating upload directory: %w", err)
	}
	f, err := os.CreateTemp(s.cfg.UploadDir, id+"-*.pdf")
	if err != nil {
		return "", fmt.Errorf("creating upload file: %w", err)
	}
	if _, err := io.Copy(f, pdf); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("saving upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("saving upload: %w", err)
	}
	return f.Name(), nil
}

// render converts the PDF and returns the slide URLs in page order.
func (s *DeckService) render(ctx context.Context, pdfPath, outDir, id string) ([]string, error) {
	if err := s.converter.Convert(ctx, pdfPath, outDir); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, fmt.Errorf("listing rendered slides: %w", err)
	}

	type page struct {
		num  int
		name string
	}
	var pages []page
	for _, e := range entries {
		m := slideNumberPattern.FindStringSubmatch(e.Name())
		if e.IsDir() || m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		pages = append(pages, page{num: n, name: e.Name()})
	}
	if len(pages) == 0 {
		return nil, errors.New("no pages were rendered")
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].num < pages[j].num })

	slides := make([]string, 0, len(pages))
	for _, p := range pages {
		name := fmt.Sprintf("slide-%d.png", p.num)
		if name != p.name {
			if err := os.Rename(filepath.Join(outDir, p.name), filepath.Join(outDir, name)); err != nil {
				return nil, fmt.Errorf("renaming %s: %w", p.name, err)
			}
		}
		slides = append(slides, path.Join(s.cfg.URLPrefix, id, name))
	}
	return slides, nil
}

func writeJSONFile(filename string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(filename), err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(filename), err)
	}
	return nil
}
