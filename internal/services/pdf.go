package services

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/go-pdf/fpdf"

	"taamsimcha-backend/internal/models"
)

const pdfFontFamily = "recipe"

// DejaVu Sans covers Hebrew, so shares render without any font configured.
//
//go:embed fonts/DejaVuSansCondensed.ttf
var defaultPDFFont []byte

// PDFRenderer lays out a recipe on A4 with a UTF-8 TrueType font.
type PDFRenderer struct {
	font     []byte
	compress bool
}

// NewPDFRenderer loads fontPath, or the bundled DejaVu font when it is empty.
func NewPDFRenderer(fontPath string) (*PDFRenderer, error) {
	if fontPath == "" {
		return &PDFRenderer{font: defaultPDFFont, compress: true}, nil
	}
	font, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF font: %w", err)
	}
	return &PDFRenderer{font: font, compress: true}, nil
}

func (p *PDFRenderer) Render(recipe *models.Recipe) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(recipe.Title, true)
	pdf.SetMargins(15, 15, 15)
	pdf.SetCompression(p.compress)

	pdf.AddUTF8FontFromBytes(pdfFontFamily, "", p.font)
	text := visualOrder

	pdf.AddPage()

	pdf.SetFont(pdfFontFamily, "", 20)
	pdf.MultiCell(0, 10, text(recipe.Title), "", "C", false)
	pdf.Ln(4)

	section := func(label, value string) {
		pdf.SetFont(pdfFontFamily, "", 13)
		pdf.MultiCell(0, 7, text(label), "", "R", false)
		pdf.SetFont(pdfFontFamily, "", 11)
		for _, line := range strings.Split(value, "\n") {
			pdf.MultiCell(0, 6, text(line), "", "R", false)
		}
		pdf.Ln(3)
	}

	section("תיאור:", deref(recipe.Description, "אין"))
	section("מצרכים:", recipe.Ingredients)
	section("הוראות הכנה:", deref(recipe.Instructions, "אין"))
	if recipe.PrepTime != nil && *recipe.PrepTime != "" {
		section("זמן הכנה:", *recipe.PrepTime)
	}
	section("רמת קושי:", recipe.Difficulty)
	creator := recipe.CreatorName
	if creator == "" {
		creator = "לא ידוע"
	}
	section("נוצר על ידי:", creator)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func deref(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}

// visualOrder reorders a logical-order line for left-to-right glyph placement:
// word order is reversed and Hebrew words are mirrored. Lines without Hebrew
// are returned unchanged.
func visualOrder(line string) string {
	if !strings.ContainsFunc(line, isHebrew) {
		return line
	}
	words := strings.Fields(line)
	for i, j := 0, len(words)-1; i < j; i, j = i+1, j-1 {
		words[i], words[j] = words[j], words[i]
	}
	for i, w := range words {
		if strings.ContainsFunc(w, isHebrew) {
			words[i] = reverseRunes(w)
		}
	}
	return strings.Join(words, " ")
}

func isHebrew(r rune) bool {
	return unicode.Is(unicode.Hebrew, r)
}

func reverseRunes(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}
