package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/lu4p/cat"
	"github.com/xuri/excelize/v2"
)

// textFromBytes extracts text from content based on the given extension.
// ext includes the leading dot (e.g. ".pdf"). Unknown extensions are treated
// as plain text.
func textFromBytes(content []byte, ext string) (string, error) {
	switch ext {
	case ".pdf":
		return pdfText(content)
	case ".docx":
		return docxText(content)
	case ".odt", ".rtf":
		return cat.FromBytes(content)
	case ".xlsx":
		return excelText(content)
	case ".pptx":
		return ooxmlText(content, "ppt/slides/slide", atTag)
	case ".odp":
		return openDocumentText(content, odText, odSpan, odHeading)
	case ".ods":
		return openDocumentText(content, odText, odSpan)
	default:
		return plainText(content)
	}
}

// plainText returns content as string, replacing invalid UTF-8 sequences
// with the replacement character.
func plainText(content []byte) (string, error) {
	if !utf8.Valid(content) {
		return strings.ToValidUTF8(string(content), "�"), nil
	}
	return string(content), nil
}

func pdfText(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}
	var buf bytes.Buffer
	numPages := r.NumPage()
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extract page %d: %w", i, err)
		}
		buf.WriteString(text)
		if i < numPages {
			buf.WriteByte('\n')
		}
	}
	return buf.String(), nil
}

func excelText(content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var buf strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("get rows for sheet %q: %w", sheet, err)
		}
		for _, row := range rows {
			buf.WriteString(strings.Join(row, "\t"))
			buf.WriteByte('\n')
		}
	}
	return buf.String(), nil
}

// Text node patterns for the XML-in-zip formats. All tolerate attributes on
// the opening tag.
var (
	// OOXML: <w:t> in documents, <a:t> in slides.
	wtTag = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)
	atTag = regexp.MustCompile(`<a:t[^>]*>([^<]*)</a:t>`)
	// OpenDocument: paragraph, span, and heading elements.
	odText    = regexp.MustCompile(`<text:p[^>]*>([^<]*)</text:p>`)
	odSpan    = regexp.MustCompile(`<text:span[^>]*>([^<]*)</text:span>`)
	odHeading = regexp.MustCompile(`<text:h[^>]*>([^<]*)</text:h>`)
)

// docxMainContentType identifies the main document part in a .docx package.
const docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"

var docxPartName = []*regexp.Regexp{
	regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"`),
	regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"[^>]+PartName="([^"]+)"`),
}

// docxText extracts text from .docx bytes by collecting every <w:t> node of
// the main document part. Attribute-bearing paragraphs and runs are handled,
// which is why this does not go through lu4p/cat (its paragraph regex
// requires bare <w:p> tags and yields empty output on real-world files).
func docxText(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: not a zip: %w", err)
	}
	docPath := docxMainPartPath(zr)
	docXML, err := zipEntry(zr, docPath)
	if err != nil {
		return "", fmt.Errorf("extract DOCX: %w", err)
	}
	return joinTagText(string(docXML), wtTag), nil
}

// docxMainPartPath reads [Content_Types].xml to locate the main document
// part, falling back to the conventional path.
func docxMainPartPath(zr *zip.Reader) string {
	data, err := zipEntry(zr, "[Content_Types].xml")
	if err != nil {
		return "word/document.xml"
	}
	for _, re := range docxPartName {
		if m := re.FindStringSubmatch(string(data)); len(m) > 1 {
			return strings.TrimPrefix(m[1], "/")
		}
	}
	return "word/document.xml"
}

// ooxmlText extracts text nodes matching pattern from every zip entry whose
// name starts with pathPrefix (e.g. all slides of a .pptx).
func ooxmlText(content []byte, pathPrefix string, pattern *regexp.Regexp) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("not a zip: %w", err)
	}
	var parts []string
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, pathPrefix) || !strings.HasSuffix(f.Name, ".xml") {
			continue
		}
		data, err := readZipFile(f)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", f.Name, err)
		}
		if text := joinTagText(string(data), pattern); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

// openDocumentText extracts text nodes from content.xml of an OpenDocument
// package (.odp, .ods).
func openDocumentText(content []byte, patterns ...*regexp.Regexp) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("not a zip: %w", err)
	}
	data, err := zipEntry(zr, "content.xml")
	if err != nil {
		return "", err
	}
	return joinTagText(string(data), patterns...), nil
}

// joinTagText collects the inner text of every match of the given patterns,
// space-joined in pattern order.
func joinTagText(xml string, patterns ...*regexp.Regexp) string {
	var b strings.Builder
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatch(xml, -1) {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(strings.TrimSpace(m[1]))
		}
	}
	return strings.TrimSpace(b.String())
}

func zipEntry(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name == name {
			return readZipFile(f)
		}
	}
	return nil, fmt.Errorf("%s not found in package", name)
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
