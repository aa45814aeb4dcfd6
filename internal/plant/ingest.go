package plant

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// IngestResult summarizes one ingested markdown file.
type IngestResult struct {
	Path     string
	Title    string
	DocType  string
	Sections int
}

var equipmentIDPattern = regexp.MustCompile(`\bEQ-[0-9]+\b`)

// IngestFile parses one markdown file and stores each level-two section as
// its own document row, keyed by (path, section) so re-ingesting updates in
// place. Files without level-two headings become a single section.
func (s *Store) IngestFile(ctx context.Context, path string) (*IngestResult, error) {
	return s.ingestFile(ctx, path, filepath.ToSlash(filepath.Clean(path)))
}

// IngestDir ingests every .md file under dir, storing paths relative to dir.
func (s *Store) IngestDir(ctx context.Context, dir string) ([]IngestResult, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read documents directory %s: %w", dir, err)
	}
	sort.Strings(paths)

	results := make([]IngestResult, 0, len(paths))
	for _, path := range paths {
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		result, err := s.ingestFile(ctx, path, filepath.ToSlash(rel))
		if err != nil {
			return results, err
		}
		results = append(results, *result)
	}
	return results, nil
}

func (s *Store) ingestFile(ctx context.Context, path, storedPath string) (*IngestResult, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", path, err)
	}

	parsed := parseMarkdownSections(source)
	title := parsed.title
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), ".md")
	}
	docType := classifyDocType(storedPath, title)
	now := time.Now()

	for _, section := range parsed.sections {
		doc := Document{
			Title:       title,
			DocType:     docType,
			EquipmentID: firstEquipmentID(title + "\n" + section.heading + "\n" + section.content),
			Section:     section.heading,
			Content:     section.content,
			Path:        storedPath,
			IngestedAt:  now,
		}
		if err := s.ReplaceDocument(ctx, doc); err != nil {
			return nil, fmt.Errorf("ingest %s: %w", path, err)
		}
	}

	return &IngestResult{
		Path:     storedPath,
		Title:    title,
		DocType:  docType,
		Sections: len(parsed.sections),
	}, nil
}

type parsedSection struct {
	heading string
	content string
}

type parsedDocument struct {
	title    string
	sections []parsedSection
}

type sectionMark struct {
	heading   string
	lineStart int // offset of the heading line
	bodyStart int // offset just past the heading line
}

// parseMarkdownSections takes the first level-one heading as the document
// title and splits the body at level-two headings. Text before the first
// level-two heading lands in a section with an empty heading.
func parseMarkdownSections(source []byte) parsedDocument {
	root := goldmark.New().Parser().Parse(text.NewReader(source))

	var parsed parsedDocument
	var marks []sectionMark
	bodyStart := 0

	for node := root.FirstChild(); node != nil; node = node.NextSibling() {
		heading, ok := node.(*ast.Heading)
		if !ok || heading.Lines().Len() == 0 {
			continue
		}
		first := heading.Lines().At(0)
		last := heading.Lines().At(heading.Lines().Len() - 1)
		switch heading.Level {
		case 1:
			if parsed.title == "" && len(marks) == 0 {
				parsed.title = headingText(heading, source)
				bodyStart = lineEnd(source, last.Stop)
			}
		case 2:
			marks = append(marks, sectionMark{
				heading:   headingText(heading, source),
				lineStart: lineStart(source, first.Start),
				bodyStart: lineEnd(source, last.Stop),
			})
		}
	}

	if len(marks) == 0 {
		content := strings.TrimSpace(string(source[bodyStart:]))
		parsed.sections = []parsedSection{{heading: "", content: content}}
		return parsed
	}

	// Preamble between the title and the first section keeps an empty heading.
	if preamble := strings.TrimSpace(string(source[bodyStart:marks[0].lineStart])); preamble != "" {
		parsed.sections = append(parsed.sections, parsedSection{heading: "", content: preamble})
	}
	for i, mark := range marks {
		end := len(source)
		if i+1 < len(marks) {
			end = marks[i+1].lineStart
		}
		parsed.sections = append(parsed.sections, parsedSection{
			heading: mark.heading,
			content: strings.TrimSpace(string(source[mark.bodyStart:end])),
		})
	}
	return parsed
}

// headingText collects the plain text of a heading node.
func headingText(node ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(node, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := child.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(source))
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

// lineStart walks back from offset to the start of its line.
func lineStart(source []byte, offset int) int {
	if offset > len(source) {
		offset = len(source)
	}
	for offset > 0 && source[offset-1] != '\n' {
		offset--
	}
	return offset
}

// lineEnd returns the offset just past the newline at or after offset.
func lineEnd(source []byte, offset int) int {
	for offset < len(source) {
		if source[offset] == '\n' {
			return offset + 1
		}
		offset++
	}
	return len(source)
}

func classifyDocType(path, title string) string {
	hint := strings.ToLower(path + " " + title)
	switch {
	case strings.Contains(hint, "incident"):
		return "incident_report"
	case strings.Contains(hint, "procedure") || strings.Contains(hint, "sop"):
		return "procedure"
	case strings.Contains(hint, "datasheet") || strings.Contains(hint, "spec-sheet"):
		return "datasheet"
	default:
		return "manual"
	}
}

func firstEquipmentID(body string) string {
	return equipmentIDPattern.FindString(body)
}
