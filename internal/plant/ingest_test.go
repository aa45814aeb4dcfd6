package plant

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeMarkdown(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write markdown: %v", err)
	}
	return path
}

func TestIngestFile_SplitsSectionsAtLevelTwoHeadings(t *testing.T) {
	store := openTestStore(t)
	dir := t.TempDir()
	path := writeMarkdown(t, dir, "hpx-3000-service.md", `# HPX-3000 Service Notes

Covers field service for EQ-1001 and EQ-1002.

## Impeller clearance

Set the impeller clearance to 0.4 mm with the adjusting nuts.

## Coupling alignment

Align the coupling to within 0.05 mm TIR before startup.
`)

	result, err := store.IngestFile(context.Background(), path)
	if err != nil {
		t.Fatalf("IngestFile() error: %v", err)
	}
	if result.Title != "HPX-3000 Service Notes" {
		t.Fatalf("title = %q, want HPX-3000 Service Notes", result.Title)
	}
	if result.Sections != 3 {
		t.Fatalf("sections = %d, want 3 (preamble plus two headings)", result.Sections)
	}
	if result.DocType != "manual" {
		t.Fatalf("doc type = %q, want manual", result.DocType)
	}

	docs, err := store.SearchDocuments(context.Background(), "impeller clearance", "", 0)
	if err != nil {
		t.Fatalf("SearchDocuments() error: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("documents = %d, want 1", len(docs))
	}
	if docs[0].Section != "Impeller clearance" {
		t.Fatalf("section = %q, want Impeller clearance", docs[0].Section)
	}
	if docs[0].Content != "Set the impeller clearance to 0.4 mm with the adjusting nuts." {
		t.Fatalf("content = %q", docs[0].Content)
	}

	// The preamble names the asset, so it carries the equipment id.
	preamble, err := store.SearchDocuments(context.Background(), "field service", "", 0)
	if err != nil {
		t.Fatalf("SearchDocuments() error: %v", err)
	}
	if len(preamble) != 1 || preamble[0].EquipmentID != "EQ-1001" {
		t.Fatalf("preamble = %+v, want equipment EQ-1001", preamble)
	}
	if preamble[0].Section != "" {
		t.Fatalf("preamble section = %q, want empty", preamble[0].Section)
	}
}

func TestIngestFile_NoHeadingsBecomesSingleSection(t *testing.T) {
	store := openTestStore(t)
	path := writeMarkdown(t, t.TempDir(), "shift-note.md", "Greased the EQ-4001 fan bearings during the night shift.\n")

	result, err := store.IngestFile(context.Background(), path)
	if err != nil {
		t.Fatalf("IngestFile() error: %v", err)
	}
	if result.Sections != 1 {
		t.Fatalf("sections = %d, want 1", result.Sections)
	}
	// Title falls back to the file name.
	if result.Title != "shift-note" {
		t.Fatalf("title = %q, want shift-note", result.Title)
	}

	docs, err := store.SearchDocuments(context.Background(), "fan bearings", "", 0)
	if err != nil {
		t.Fatalf("SearchDocuments() error: %v", err)
	}
	if len(docs) != 1 || docs[0].EquipmentID != "EQ-4001" {
		t.Fatalf("docs = %+v, want one row for EQ-4001", docs)
	}
}

func TestIngestFile_ReingestUpdatesInPlace(t *testing.T) {
	store := openTestStore(t)
	dir := t.TempDir()
	path := writeMarkdown(t, dir, "filters.md", `# Filter schedule

## Intake filters

Replace intake filters every 6 weeks.
`)
	ctx := context.Background()

	if _, err := store.IngestFile(ctx, path); err != nil {
		t.Fatalf("first IngestFile() error: %v", err)
	}
	writeMarkdown(t, dir, "filters.md", `# Filter schedule

## Intake filters

Replace intake filters every 4 weeks in dusty season.
`)
	result, err := store.IngestFile(ctx, path)
	if err != nil {
		t.Fatalf("second IngestFile() error: %v", err)
	}
	if result.Sections != 1 {
		t.Fatalf("sections = %d, want 1", result.Sections)
	}

	docs, err := store.SearchDocuments(ctx, "intake filters", "", 0)
	if err != nil {
		t.Fatalf("SearchDocuments() error: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("documents after re-ingest = %d, want 1", len(docs))
	}
	if docs[0].Content != "Replace intake filters every 4 weeks in dusty season." {
		t.Fatalf("content = %q, want updated text", docs[0].Content)
	}
}

func TestIngestDir_WalksNestedDirectories(t *testing.T) {
	store := openTestStore(t)
	dir := t.TempDir()
	writeMarkdown(t, dir, "overview.md", "# Plant overview\n\nSite layout and contacts.\n")
	writeMarkdown(t, dir, filepath.Join("incidents", "m3-overcurrent.md"), `# M3 overcurrent incident

## Findings

EQ-3001 tripped twice on overcurrent.
`)
	writeMarkdown(t, dir, "README.txt", "not markdown")

	results, err := store.IngestDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("IngestDir() error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("ingested files = %d, want 2", len(results))
	}
	if results[0].Path != "incidents/m3-overcurrent.md" || results[1].Path != "overview.md" {
		t.Fatalf("paths = %q, %q", results[0].Path, results[1].Path)
	}
	if results[0].DocType != "incident_report" {
		t.Fatalf("doc type = %q, want incident_report", results[0].DocType)
	}
}

func TestIngestDir_MissingDirectoryIsNotAnError(t *testing.T) {
	store := openTestStore(t)
	results, err := store.IngestDir(context.Background(), filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("IngestDir() error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("results = %d, want 0", len(results))
	}
}

func TestClassifyDocType(t *testing.T) {
	cases := []struct {
		path  string
		title string
		want  string
	}{
		{"incidents/m3.md", "M3 trip", "incident_report"},
		{"sops/seal.md", "Seal replacement procedure", "procedure"},
		{"datasheets/ga-90.md", "GA-90 datasheet", "datasheet"},
		{"manuals/hpx.md", "HPX-3000 manual", "manual"},
		{"notes.md", "Shift notes", "manual"},
	}
	for _, tc := range cases {
		if got := classifyDocType(tc.path, tc.title); got != tc.want {
			t.Errorf("classifyDocType(%q, %q) = %q, want %q", tc.path, tc.title, got, tc.want)
		}
	}
}
