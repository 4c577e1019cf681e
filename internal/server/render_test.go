package server

import (
	"strings"
	"testing"
)

func TestPaginatePacksEntriesUnderLimit(t *testing.T) {
	entry := strings.Repeat("x", 600) + "\n\n"
	pages := paginate([]string{entry, entry, entry, entry})

	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
	for i, page := range pages {
		if len(page) > pageCharacterLimit {
			t.Fatalf("page %d exceeds limit: %d chars", i, len(page))
		}
	}
}

func TestPaginateEmptyInputYieldsNoPages(t *testing.T) {
	if pages := paginate(nil); len(pages) != 0 {
		t.Fatalf("expected no pages, got %d", len(pages))
	}
}

func TestPaginateOversizedEntryGetsOwnPage(t *testing.T) {
	huge := strings.Repeat("y", pageCharacterLimit+100)
	pages := paginate([]string{"short\n\n", huge})
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
	if pages[1] != huge {
		t.Fatalf("oversized entry split unexpectedly")
	}
}
