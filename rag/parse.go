package rag

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Document is the parsed form of an input file: extracted text plus
// file-level metadata such as type, path, and page count.
type Document struct {
	Content  string
	Metadata map[string]string
}

// Parser extracts a Document from a file on disk.
type Parser interface {
	Parse(filePath string) (Document, error)
}

// ParserManager routes files to a registered Parser based on detected file
// type. PDF and plain-text parsers are registered by default.
type ParserManager struct {
	fileTypeDetector func(string) string
	parsers          map[string]Parser
}

// NewParserManager creates a ParserManager with the default type detector
// and parsers for PDF and text files.
func NewParserManager() *ParserManager {
	pm := &ParserManager{
		fileTypeDetector: defaultFileTypeDetector,
		parsers: map[string]Parser{
			"pdf":  NewPDFParser(),
			"text": NewTextParser(),
		},
	}
	return pm
}

// Parse detects the file type and delegates to the matching parser.
func (pm *ParserManager) Parse(filePath string) (Document, error) {
	fileType := pm.fileTypeDetector(filePath)
	parser, ok := pm.parsers[fileType]
	if !ok {
		GlobalLogger.Error("no parser for file type", "type", fileType, "path", filePath)
		return Document{}, fmt.Errorf("no parser available for file type: %s", fileType)
	}
	doc, err := parser.Parse(filePath)
	if err != nil {
		GlobalLogger.Error("failed to parse document", "path", filePath, "error", err)
		return Document{}, err
	}
	GlobalLogger.Debug("parsed document", "path", filePath, "type", fileType, "chars", len(doc.Content))
	return doc, nil
}

// SetFileTypeDetector replaces the extension-based type detection.
func (pm *ParserManager) SetFileTypeDetector(detector func(string) string) {
	pm.fileTypeDetector = detector
}

// AddParser registers a parser for an additional file type.
func (pm *ParserManager) AddParser(fileType string, parser Parser) {
	pm.parsers[fileType] = parser
}

func defaultFileTypeDetector(filePath string) string {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".pdf":
		return "pdf"
	case ".txt", ".md":
		return "text"
	default:
		return "unknown"
	}
}

// PDFParser extracts text from PDF files page by page and cleans up common
// extraction artifacts.
type PDFParser struct {
	// MaxFileSize rejects PDFs larger than this many bytes. Zero disables
	// the check.
	MaxFileSize int64
}

// NewPDFParser creates a PDFParser without a size limit.
func NewPDFParser() *PDFParser {
	return &PDFParser{}
}

// Parse extracts and cleans the text content of a PDF. The returned
// metadata includes the page count and file size.
func (p *PDFParser) Parse(filePath string) (Document, error) {
	if err := p.Validate(filePath); err != nil {
		return Document{}, err
	}
	content, pages, err := p.extractText(filePath)
	if err != nil {
		return Document{}, fmt.Errorf("failed to extract text: %w", err)
	}
	info, err := os.Stat(filePath)
	if err != nil {
		return Document{}, fmt.Errorf("failed to stat file: %w", err)
	}
	return Document{
		Content: CleanText(content),
		Metadata: map[string]string{
			"file_type": "pdf",
			"file_path": filePath,
			"file_name": filepath.Base(filePath),
			"pages":     strconv.Itoa(pages),
			"file_size": strconv.FormatInt(info.Size(), 10),
		},
	}, nil
}

// Validate checks that the file exists, carries the PDF magic header, and
// is within the configured size limit.
func (p *PDFParser) Validate(filePath string) error {
	info, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if p.MaxFileSize > 0 && info.Size() > p.MaxFileSize {
		return fmt.Errorf("file %s exceeds size limit: %d > %d bytes", filePath, info.Size(), p.MaxFileSize)
	}

	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	header := make([]byte, 4)
	if _, err := f.Read(header); err != nil {
		return fmt.Errorf("failed to read file header: %w", err)
	}
	if string(header) != "%PDF" {
		return fmt.Errorf("file %s is not a PDF", filePath)
	}
	return nil
}

func (p *PDFParser) extractText(filePath string) (string, int, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", 0, fmt.Errorf("failed to get file info: %w", err)
	}

	reader, err := pdf.NewReader(file, info.Size())
	if err != nil {
		return "", 0, fmt.Errorf("failed to create PDF reader: %w", err)
	}

	var textBuilder strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			// A single bad page should not sink the whole document.
			GlobalLogger.Warn("failed to extract page", "path", filePath, "page", i, "error", err)
			continue
		}
		textBuilder.WriteString(content)
		textBuilder.WriteString("\n\n")
	}

	return textBuilder.String(), numPages, nil
}

// TextParser reads plain-text files verbatim.
type TextParser struct{}

// NewTextParser creates a TextParser.
func NewTextParser() *TextParser {
	return &TextParser{}
}

// Parse reads the file content as-is.
func (p *TextParser) Parse(filePath string) (Document, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return Document{}, fmt.Errorf("failed to read file: %w", err)
	}
	return Document{
		Content: string(content),
		Metadata: map[string]string{
			"file_type": "text",
			"file_path": filePath,
			"file_name": filepath.Base(filePath),
		},
	}, nil
}

var (
	whitespaceRE   = regexp.MustCompile(`\s+`)
	pageNumberRE   = regexp.MustCompile(`(?m)^\s*\d+\s*$`)
	controlCharRE  = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
	hyphenBreakRE  = regexp.MustCompile(`(\w)-\n\s*(\w)`)
	repeatedDotsRE = regexp.MustCompile(`\.{4,}`)
)

// CleanText normalizes text extracted from PDFs: control characters and
// leader dots are removed, hyphenated line breaks are rejoined, lines that
// are bare page numbers are dropped, and whitespace is collapsed.
func CleanText(text string) string {
	if text == "" {
		return ""
	}
	text = controlCharRE.ReplaceAllString(text, " ")
	text = hyphenBreakRE.ReplaceAllString(text, "$1$2")
	text = repeatedDotsRE.ReplaceAllString(text, " ")
	text = pageNumberRE.ReplaceAllString(text, " ")
	text = whitespaceRE.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
