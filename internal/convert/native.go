// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/pdiddy/extract-server/pkg/types"
)

const backendNative = "native"

// nativeFormats maps accepted extensions to their in-process handlers.
var nativeFormats = map[string]func([]byte) (string, string, error){
	"txt":      passthrough,
	"text":     passthrough,
	"log":      passthrough,
	"md":       passthrough,
	"markdown": passthrough,
	"csv":      delimitedToTable(','),
	"tsv":      delimitedToTable('\t'),
	"json":     jsonToCodeBlock,
	"html":     htmlToMarkdown,
	"htm":      htmlToMarkdown,
}

// noisyElements are dropped from HTML before conversion.
const noisyElements = "script, style, noscript, iframe, template, svg"

var multipleNewlinesRe = regexp.MustCompile(`\n{3,}`)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// NativeConverter converts text-based formats in process. Binary document
// formats are left to the markitdown or service backends.
type NativeConverter struct{}

// NewNativeConverter returns a converter for plain text, Markdown, CSV/TSV,
// JSON and HTML.
func NewNativeConverter() *NativeConverter {
	return &NativeConverter{}
}

// Name returns "native".
func (n *NativeConverter) Name() string { return backendNative }

// Accepts reports whether format is one of the text formats handled in process.
func (n *NativeConverter) Accepts(format string) bool {
	_, ok := nativeFormats[format]
	return ok
}

// Convert reads the file at path and converts it according to its extension.
// Content that is not valid UTF-8 is rejected.
func (n *NativeConverter) Convert(ctx context.Context, path string) (*types.Document, error) {
	handler, ok := nativeFormats[FormatOf(path)]
	if !ok {
		return nil, fmt.Errorf("%w: .%s", ErrUnsupportedFormat, FormatOf(path))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%s is not valid UTF-8 text", FormatOf(path))
	}

	out, title, err := handler(data)
	if err != nil {
		return nil, err
	}

	doc := newDocument(path, backendNative, out)
	if doc.Title == "" {
		doc.Title = title
	}
	return doc, nil
}

func passthrough(data []byte) (string, string, error) {
	return strings.ReplaceAll(string(data), "\r\n", "\n"), "", nil
}

// delimitedToTable renders delimited text as a Markdown table with the first
// record as the header row.
func delimitedToTable(sep rune) func([]byte) (string, string, error) {
	return func(data []byte) (string, string, error) {
		r := csv.NewReader(bytes.NewReader(data))
		r.Comma = sep
		r.FieldsPerRecord = -1
		r.LazyQuotes = true

		var rows [][]string
		width := 0
		for {
			rec, err := r.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return "", "", fmt.Errorf("parsing delimited text: %w", err)
			}
			width = max(width, len(rec))
			rows = append(rows, rec)
		}
		if len(rows) == 0 {
			return "", "", nil
		}

		var b strings.Builder
		writeRow := func(cells []string) {
			b.WriteString("|")
			for i := 0; i < width; i++ {
				cell := ""
				if i < len(cells) {
					cell = escapeCell(cells[i])
				}
				b.WriteString(" " + cell + " |")
			}
			b.WriteString("\n")
		}

		writeRow(rows[0])
		b.WriteString("|")
		for i := 0; i < width; i++ {
			b.WriteString(" --- |")
		}
		b.WriteString("\n")
		for _, row := range rows[1:] {
			writeRow(row)
		}
		return b.String(), "", nil
	}
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\r\n", "<br>")
	return strings.ReplaceAll(s, "\n", "<br>")
}

// jsonToCodeBlock pretty-prints a JSON document inside a fenced block.
func jsonToCodeBlock(data []byte) (string, string, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, bytes.TrimSpace(data), "", "  "); err != nil {
		return "", "", fmt.Errorf("parsing JSON: %w", err)
	}
	return "```json\n" + buf.String() + "\n```\n", "", nil
}

// htmlToMarkdown strips scripts and other noise, then converts the remaining
// markup. The <title> element is returned as the fallback title.
func htmlToMarkdown(data []byte) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", "", fmt.Errorf("parsing HTML: %w", err)
	}
	title := strings.TrimSpace(doc.Find("head > title").First().Text())

	doc.Find(noisyElements).Remove()
	doc.Find("head").Remove()

	cleaned, err := doc.Html()
	if err != nil {
		return "", "", fmt.Errorf("rendering cleaned HTML: %w", err)
	}

	converter := md.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(cleaned)
	if err != nil {
		return "", "", fmt.Errorf("converting HTML to Markdown: %w", err)
	}

	markdown = multipleNewlinesRe.ReplaceAllString(strings.TrimSpace(markdown), "\n\n")
	return markdown + "\n", title, nil
}
