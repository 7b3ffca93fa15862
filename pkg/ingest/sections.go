package ingest

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"finintel/pkg/domain"
)

// NamedSection is a heading-delimited span of a document, generalizing the
// teacher's TenKParser from a fixed SEC Item-number table to an arbitrary
// set of heading patterns — financial reports vary in section naming
// (balance sheet vs. statement of financial position, MD&A vs. directors'
// report) in a way a single filing form never did.
type NamedSection struct {
	Title       string
	Content     string
	StartOffset int
	EndOffset   int
}

// FinancialSectionHeadings are the headings commonly found across annual
// reports, interim filings, and bilancio-style statements. A document
// missing a given heading simply yields no NamedSection for it; nothing
// downstream requires full coverage.
var FinancialSectionHeadings = []string{
	"Business", "Risk Factors", "Properties", "Legal Proceedings",
	"Management's Discussion and Analysis", "Management Discussion and Analysis",
	"Financial Statements", "Balance Sheet", "Stato Patrimoniale",
	"Income Statement", "Statement of Operations", "Conto Economico",
	"Cash Flow Statement", "Statement of Cash Flows", "Rendiconto Finanziario",
	"Notes to Financial Statements", "Nota Integrativa",
	"Controls and Procedures", "Directors and Governance", "Relazione sulla Gestione",
}

func compileHeadingPatterns(headings []string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(headings))
	for _, h := range headings {
		patterns = append(patterns, regexp.MustCompile(`(?i)(?:^|\n)\s*(?:item\s+\d+[a-z]?\.?\s*)?`+regexp.QuoteMeta(h)+`\s*(?:\n|$)`))
	}
	return patterns
}

var financialSectionPatterns = compileHeadingPatterns(FinancialSectionHeadings)

// SplitNamedSections finds every FinancialSectionHeadings match in content
// and slices the text between consecutive matches into NamedSections,
// mirroring TenKParser.ParseSections's offset-sort-and-slice approach but
// over a configurable heading list instead of a fixed Item-number table.
func SplitNamedSections(content string) []NamedSection {
	type boundary struct {
		title  string
		offset int
	}
	var boundaries []boundary
	for i, pattern := range financialSectionPatterns {
		for _, loc := range pattern.FindAllStringIndex(content, -1) {
			boundaries = append(boundaries, boundary{title: FinancialSectionHeadings[i], offset: loc[0]})
		}
	}
	if len(boundaries) == 0 {
		return nil
	}
	for i := 0; i < len(boundaries)-1; i++ {
		for j := i + 1; j < len(boundaries); j++ {
			if boundaries[j].offset < boundaries[i].offset {
				boundaries[i], boundaries[j] = boundaries[j], boundaries[i]
			}
		}
	}

	sections := make([]NamedSection, 0, len(boundaries))
	for i, b := range boundaries {
		end := len(content)
		if i+1 < len(boundaries) {
			end = boundaries[i+1].offset
		}
		sections = append(sections, NamedSection{
			Title:       b.title,
			Content:     strings.TrimSpace(content[b.offset:end]),
			StartOffset: b.offset,
			EndOffset:   end,
		})
	}
	return sections
}

// splitSections breaks page or element text into paragraph-scale narrative
// blocks on blank-line boundaries — the granularity PDFExtractor and
// HTMLExtractor use for both label-near-number scanning and, via
// ChunkParagraphs below, retrieval chunk construction.
func splitSections(text string) []string {
	raw := strings.Split(text, "\n\n")
	var out []string
	for _, s := range raw {
		trimmed := strings.TrimSpace(s)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// estimateTokens approximates token count at ~4 characters per token for
// English/Italian prose, the same rule of thumb tenk_parser.go used to
// decide when a section needed splitting before handing it to an LLM.
func estimateTokens(text string) int {
	return len(text) / 4
}

const maxChunkTokens = 500

// ChunkParagraphs turns a document's narrative blocks into retrieval
// Chunks, splitting any paragraph larger than maxChunkTokens on whitespace
// boundaries so no chunk overflows a model's useful context window.
func ChunkParagraphs(blocks []Block, documentID string) []domain.Chunk {
	var chunks []domain.Chunk
	for _, b := range blocks {
		if b.Kind != BlockNarrative {
			continue
		}
		for _, piece := range splitOversizedParagraph(b.Text, maxChunkTokens) {
			chunks = append(chunks, domain.Chunk{
				ChunkID:    uuid.New().String(),
				DocumentID: documentID,
				Kind:       domain.ChunkNarrative,
				Text:       piece,
				SourceRef:  b.SourceRef,
			})
		}
	}
	return chunks
}

// ChunkTables turns each table Block into a single retrieval Chunk, with
// Text holding a plain-text serialization (row by row, tab-separated) for
// embedding and lexical indexing; the structured Cells stay reachable via
// the caller's retained Block for any consumer that wants row/column
// precision instead of the flattened text.
func ChunkTables(blocks []Block, documentID string) []domain.Chunk {
	var chunks []domain.Chunk
	for _, b := range blocks {
		if b.Kind != BlockTable || len(b.Cells) == 0 {
			continue
		}
		grid := make([][]string, b.Rows)
		for r := range grid {
			grid[r] = make([]string, b.Cols)
		}
		for _, c := range b.Cells {
			if c.Row < len(grid) && c.Col < len(grid[c.Row]) {
				grid[c.Row][c.Col] = c.Value
			}
		}
		var sb strings.Builder
		for _, row := range grid {
			sb.WriteString(strings.Join(row, "\t"))
			sb.WriteString("\n")
		}
		chunks = append(chunks, domain.Chunk{
			ChunkID:    uuid.New().String(),
			DocumentID: documentID,
			Kind:       domain.ChunkTable,
			Text:       strings.TrimSpace(sb.String()),
			SourceRef:  b.SourceRef,
		})
	}
	return chunks
}

func splitOversizedParagraph(text string, maxTokens int) []string {
	if estimateTokens(text) <= maxTokens {
		return []string{text}
	}
	words := strings.Fields(text)
	maxWords := maxTokens * 4 / 6 // ~6 chars/word average including the space
	if maxWords < 1 {
		maxWords = 1
	}
	var out []string
	for len(words) > 0 {
		end := maxWords
		if end > len(words) {
			end = len(words)
		}
		out = append(out, strings.Join(words[:end], " "))
		words = words[end:]
	}
	return out
}
