// Package segment splits extracted contract text into overlapping,
// page-attributed chunks and maps character offsets back to pages.
package segment

import (
	"fmt"
	"strings"

	"github.com/clausescan/clausescan/pkg/models"
)

const (
	// DefaultWindow is the tentative chunk length in characters.
	DefaultWindow = 1000
	// DefaultOverlap is how far each chunk reaches back into its predecessor.
	DefaultOverlap = 200
)

// sentence-ending delimiters, tried in order; the first one present in the
// window wins and the chunk ends right after it.
var delimiters = []string{". ", ".\n", "! ", "?\n"}

// Options controls chunk geometry. Window must exceed Overlap or segmentation
// would never advance; Validate rejects that at configuration time.
type Options struct {
	Window  int
	Overlap int
}

func DefaultOptions() Options {
	return Options{Window: DefaultWindow, Overlap: DefaultOverlap}
}

func (o Options) Validate() error {
	if o.Window <= 0 {
		return fmt.Errorf("chunk window must be positive, got %d", o.Window)
	}
	if o.Overlap < 0 {
		return fmt.Errorf("chunk overlap must be non-negative, got %d", o.Overlap)
	}
	if o.Window <= o.Overlap {
		return fmt.Errorf("chunk window (%d) must be greater than overlap (%d)", o.Window, o.Overlap)
	}
	return nil
}

// Segment advances a window of Options.Window characters over fullText,
// backing each window up to the nearest sentence boundary so chunks do not
// split mid-sentence. Consecutive chunks overlap by Options.Overlap
// characters. Chunks whose trimmed text is empty are not emitted. Each chunk
// carries the page containing its start offset (page 1 when no page matches).
func Segment(fullText string, pages []models.Page, opt Options) []models.Chunk {
	var chunks []models.Chunk
	n := len(fullText)
	start := 0
	index := 0

	for start < n {
		end := start + opt.Window
		if end < n {
			for _, d := range delimiters {
				if p := strings.LastIndex(fullText[start:end], d); p != -1 {
					end = start + p + 1
					break
				}
			}
		} else {
			end = n
		}

		text := strings.TrimSpace(fullText[start:end])
		if text != "" {
			chunks = append(chunks, models.Chunk{
				ChunkIndex: index,
				PageNumber: PageForOffset(start, pages),
				CharStart:  start,
				CharEnd:    end,
				Text:       text,
			})
			index++
		}

		if end >= n {
			break
		}
		// Reach back by the overlap, but never stall: when the sentence
		// boundary lands inside the previous overlap the window restarts
		// at the boundary instead.
		next := end - opt.Overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// PageForOffset returns the page whose inclusive character range contains
// offset. The first matching page wins. Offsets outside every page resolve to
// page 1; strict bounds checking is the caller's job.
func PageForOffset(offset int, pages []models.Page) int {
	for _, p := range pages {
		if p.CharStart <= offset && offset <= p.CharEnd {
			return p.Number
		}
	}
	return 1
}

// BuildPages concatenates per-page texts into a single document text,
// separated by newlines, and records each page's character range. Page texts
// are cleaned first: runs of whitespace collapse to single spaces and NUL
// bytes are dropped. An unreadable page arrives as an empty string and
// occupies an empty range.
func BuildPages(pageTexts []string) (string, []models.Page) {
	var b strings.Builder
	pages := make([]models.Page, 0, len(pageTexts))
	pos := 0
	for i, t := range pageTexts {
		t = cleanText(t)
		pages = append(pages, models.Page{
			Number:    i + 1,
			CharStart: pos,
			CharEnd:   pos + len(t),
		})
		b.WriteString(t)
		b.WriteString("\n")
		pos += len(t) + 1
	}
	return strings.TrimSuffix(b.String(), "\n"), pages
}

func cleanText(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	return strings.Join(strings.Fields(s), " ")
}
