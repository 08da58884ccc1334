package documents

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
)

const (
	pdfMargin      = 20.0
	pdfFontSize    = 10.0
	pdfHeadingSize = 13.0
	pdfLineHeight  = 5.0
	pdfCoreFont    = "Helvetica"
	pdfUTF8Font    = "body"
)

// Renderer turns a stored document into a downloadable representation.
type Renderer interface {
	ContentType() string
	Render(ctx context.Context, doc *DocumentDTO) ([]byte, error)
}

// PDFRenderer lays documents out on A4 pages. With FontPath unset it uses the
// core Helvetica font, which only covers Windows-1252; pointing FontPath at a
// TrueType file embeds that font and keeps every UTF-8 character.
type PDFRenderer struct {
	FontPath string
}

func (PDFRenderer) ContentType() string { return "application/pdf" }

func (r PDFRenderer) Render(ctx context.Context, doc *DocumentDTO) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("document is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pdf := r.layout(doc)
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (r PDFRenderer) layout(doc *DocumentDTO) *fpdf.Fpdf {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin)
	pdf.SetCreator("hopl", false)
	if !doc.CreatedAt.IsZero() {
		pdf.SetCreationDate(doc.CreatedAt.UTC())
	}

	family, boldStyle := pdfCoreFont, "B"
	text := pdf.UnicodeTranslatorFromDescriptor("")
	if r.FontPath != "" {
		pdf.AddUTF8Font(pdfUTF8Font, "", r.FontPath)
		family, boldStyle = pdfUTF8Font, ""
		text = func(s string) string { return s }
	}
	pdf.SetTitle(doc.Title, true)
	pdf.AddPage()

	for _, block := range layoutBlocks(doc.Content) {
		switch block.kind {
		case blockBlank:
			pdf.Ln(pdfLineHeight / 2)
		case blockHeading:
			pdf.SetFont(family, boldStyle, pdfHeadingSize)
			pdf.MultiCell(0, pdfLineHeight+1, text(block.text), "", "L", false)
			pdf.Ln(1)
		case blockBullet:
			pdf.SetFont(family, "", pdfFontSize)
			pdf.SetX(pdfMargin + 4)
			pdf.MultiCell(0, pdfLineHeight, text("• "+block.text), "", "L", false)
		default:
			pdf.SetFont(family, "", pdfFontSize)
			pdf.MultiCell(0, pdfLineHeight, text(block.text), "", "J", false)
		}
	}
	return pdf
}

type blockKind int

const (
	blockParagraph blockKind = iota
	blockHeading
	blockBullet
	blockBlank
)

type block struct {
	kind blockKind
	text string
}

// layoutBlocks turns Markdown into printable blocks. Inline emphasis markers
// are dropped; consecutive blank lines collapse into one.
func layoutBlocks(markdown string) []block {
	var out []block
	for _, raw := range strings.Split(strings.ReplaceAll(markdown, "\r\n", "\n"), "\n") {
		b := classifyLine(raw)
		if b.kind == blockBlank && (len(out) == 0 || out[len(out)-1].kind == blockBlank) {
			continue
		}
		out = append(out, b)
	}
	return out
}

func classifyLine(line string) block {
	trimmed := strings.TrimSpace(line)
	if trimmed == "---" || trimmed == "***" || trimmed == "" {
		return block{kind: blockBlank}
	}
	kind := blockParagraph
	if strings.HasPrefix(trimmed, "#") {
		kind = blockHeading
		trimmed = strings.TrimLeft(trimmed, "#")
	}
	trimmed = strings.NewReplacer("**", "", "__", "", "`", "").Replace(trimmed)
	trimmed = strings.TrimPrefix(trimmed, "> ")
	if strings.HasPrefix(trimmed, "*") && strings.HasSuffix(trimmed, "*") && len(trimmed) > 1 {
		trimmed = strings.Trim(trimmed, "*")
	}
	if kind == blockParagraph && (strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ")) {
		kind = blockBullet
		trimmed = trimmed[2:]
	}
	trimmed = strings.TrimSpace(trimmed)
	if trimmed == "" {
		return block{kind: blockBlank}
	}
	return block{kind: kind, text: trimmed}
}
