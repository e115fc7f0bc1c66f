package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// ErrUnsupportedFormat is returned when a payload has an unrecognized
// content type and cannot be decoded as text either. It is the only
// extraction failure that rejects a file outright.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Source type tags carried on every extracted unit. The fallback tags mark
// degraded extractions so callers can observe them.
const (
	SourcePDF                 = "pdf"
	SourceText                = "text_or_markdown"
	SourceJSONListItem        = "json_list_item"
	SourceJSONObject          = "json_dict"
	SourceJSONScalar          = "json_scalar"
	SourceFallbackJSONError   = "text_fallback_json_error"
	SourceFallbackUnsupported = "text_fallback_unsupported"
)

// Unit is one extracted span of text from an uploaded file. A file yields
// one unit for most formats; a JSON array yields one unit per element,
// OriginalIndex holding the element's position.
type Unit struct {
	Text          string
	SourceType    string
	OriginalIndex int
}

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract converts raw bytes plus a content-type/filename hint into an
// ordered list of text units. Malformed inputs degrade to a tagged fallback
// unit where possible; only a payload that is neither a known format nor
// decodable text returns ErrUnsupportedFormat.
func (e *Extractor) Extract(filename, contentType string, data []byte) ([]Unit, error) {
	switch {
	case contentType == "application/json" || contentType == "text/json" || strings.HasSuffix(filename, ".json"):
		return extractJSON(filename, data), nil

	case contentType == "application/pdf" || strings.HasSuffix(filename, ".pdf"):
		return []Unit{{Text: extractPDF(filename, data), SourceType: SourcePDF}}, nil

	case contentType == "text/plain" || contentType == "text/markdown" ||
		strings.HasPrefix(contentType, "text/") ||
		strings.HasSuffix(filename, ".md") || strings.HasSuffix(filename, ".txt"):
		return []Unit{{Text: decodeText(data), SourceType: SourceText}}, nil

	default:
		text := decodeText(data)
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupportedFormat, filename, contentType)
		}
		slog.Warn("unrecognized content type, degrading to plain text", "filename", filename, "content_type", contentType)
		return []Unit{{Text: text, SourceType: SourceFallbackUnsupported}}, nil
	}
}

// decodeText decodes bytes as UTF-8, falling back to Latin-1 when the bytes
// are not valid UTF-8. Latin-1 maps every byte to a code point, so the
// fallback cannot fail.
func decodeText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes)
}

// extractPDF pulls text page by page, joined with newlines. Pages that
// yield no text contribute nothing; an unreadable document yields an empty
// string, which downstream treats as "nothing extracted" rather than an
// error.
func extractPDF(filename string, data []byte) string {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		slog.Error("failed to open pdf", "filename", filename, "error", err)
		return ""
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			slog.Warn("failed to extract pdf page", "filename", filename, "page", i, "error", err)
			continue
		}
		if text == "" {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String()
}

func extractJSON(filename string, data []byte) []Unit {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var parsed interface{}
	if err := dec.Decode(&parsed); err != nil {
		slog.Warn("json parse failed, degrading to plain text", "filename", filename, "error", err)
		return []Unit{{Text: decodeText(data), SourceType: SourceFallbackJSONError}}
	}

	switch v := parsed.(type) {
	case []interface{}:
		units := make([]Unit, 0, len(v))
		for idx, item := range v {
			units = append(units, Unit{
				Text:          listItemText(item),
				SourceType:    SourceJSONListItem,
				OriginalIndex: idx,
			})
		}
		return units

	case map[string]interface{}:
		pretty, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			pretty = data
		}
		return []Unit{{Text: string(pretty), SourceType: SourceJSONObject}}

	default:
		return []Unit{{Text: scalarText(v), SourceType: SourceJSONScalar}}
	}
}

// listItemText resolves the text of one JSON array element: the "text",
// "content" and "message" fields are probed in order, then the element
// itself if it is a plain string, then its serialized form.
func listItemText(item interface{}) string {
	switch v := item.(type) {
	case map[string]interface{}:
		for _, field := range []string{"text", "content", "message"} {
			if s, ok := v[field].(string); ok {
				return s
			}
		}
		serialized, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(serialized)
	case string:
		return v
	default:
		return scalarText(v)
	}
}

func scalarText(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%v", s)
	}
}
