package tui

import (
	"fmt"
	"testing"

	"github.com/quocson95/flit/pkg/listing"
)

func fileEntries(n int) []listing.Entry {
	out := make([]listing.Entry, n)
	for i := range out {
		out[i] = listing.Entry{Type: listing.TypeFile, Name: fmt.Sprintf("f%02d.txt", i), Size: int64(i)}
	}
	return out
}

func TestBrowserPagination(t *testing.T) {
	t.Run("Core Functionality: global index decomposes into page and cursor", func(t *testing.T) {
		b := NewBrowserModel()
		b.SetEntries("/", fileEntries(37))
		b.pageSize = 10

		b.page = 2
		b.cursor = 3
		if got := b.GlobalIndex(); got != 23 {
			t.Errorf("GlobalIndex = %d, want 23", got)
		}
		e, ok := b.CurrentEntry()
		if !ok || e.Name != "f23.txt" {
			t.Errorf("CurrentEntry = %+v, %v", e, ok)
		}
	})

	t.Run("Core Functionality: page count covers the remainder page", func(t *testing.T) {
		b := NewBrowserModel()
		b.pageSize = 10
		b.SetEntries("/", fileEntries(37))
		if got := b.PageCount(); got != 4 {
			t.Errorf("PageCount = %d, want 4", got)
		}

		b.SetEntries("/", nil)
		if got := b.PageCount(); got != 1 {
			t.Errorf("PageCount of empty = %d, want 1", got)
		}
	})

	t.Run("Core Functionality: cursor flows across page edges", func(t *testing.T) {
		b := NewBrowserModel()
		b.pageSize = 5
		b.SetEntries("/", fileEntries(12))

		for i := 0; i < 5; i++ {
			b.MoveCursor(1)
		}
		if b.page != 1 || b.cursor != 0 {
			t.Errorf("after walking down: page=%d cursor=%d", b.page, b.cursor)
		}

		b.MoveCursor(-1)
		if b.page != 0 || b.cursor != 4 {
			t.Errorf("after walking back up: page=%d cursor=%d", b.page, b.cursor)
		}
	})

	t.Run("Edge Case: cursor clamps on a short last page", func(t *testing.T) {
		b := NewBrowserModel()
		b.pageSize = 5
		b.SetEntries("/", fileEntries(12))
		b.cursor = 4
		b.NextPage()
		b.NextPage() // last page holds entries 10 and 11
		if b.page != 2 || b.cursor > 1 {
			t.Errorf("page=%d cursor=%d", b.page, b.cursor)
		}
	})

	t.Run("Core Functionality: resize keeps the cursor entry", func(t *testing.T) {
		b := NewBrowserModel()
		b.pageSize = 10
		b.SetEntries("/", fileEntries(40))
		b.page = 2
		b.cursor = 3 // global 23

		b.ResizePage(-5)
		if got := b.GlobalIndex(); got != 23 {
			t.Errorf("GlobalIndex after shrink = %d, want 23", got)
		}
		if b.pageSize != 5 {
			t.Errorf("pageSize = %d", b.pageSize)
		}
	})

	t.Run("Edge Case: page size clamps to bounds", func(t *testing.T) {
		b := NewBrowserModel()
		b.SetEntries("/", fileEntries(10))
		b.ResizePage(-100)
		if b.pageSize != minPageSize {
			t.Errorf("pageSize = %d, want %d", b.pageSize, minPageSize)
		}
		b.ResizePage(1000)
		if b.pageSize != maxPageSize {
			t.Errorf("pageSize = %d, want %d", b.pageSize, maxPageSize)
		}
	})

	t.Run("Core Functionality: page size follows the terminal height", func(t *testing.T) {
		b := NewBrowserModel()
		b.SetEntries("/", fileEntries(60))

		b.SetViewportHeight(30)
		if b.pageSize != 30-viewportChrome {
			t.Errorf("pageSize = %d, want %d", b.pageSize, 30-viewportChrome)
		}
	})

	t.Run("Edge Case: viewport-derived page size clamps to bounds", func(t *testing.T) {
		b := NewBrowserModel()
		b.SetEntries("/", fileEntries(60))

		b.SetViewportHeight(8)
		if b.pageSize != minPageSize {
			t.Errorf("tiny terminal: pageSize = %d, want %d", b.pageSize, minPageSize)
		}
		b.SetViewportHeight(200)
		if b.pageSize != maxPageSize {
			t.Errorf("huge terminal: pageSize = %d, want %d", b.pageSize, maxPageSize)
		}
	})

	t.Run("Core Functionality: viewport resize keeps the cursor entry", func(t *testing.T) {
		b := NewBrowserModel()
		b.pageSize = 10
		b.SetEntries("/", fileEntries(60))
		b.page = 2
		b.cursor = 3 // global 23

		b.SetViewportHeight(30)
		if got := b.GlobalIndex(); got != 23 {
			t.Errorf("GlobalIndex after viewport resize = %d, want 23", got)
		}
	})
}

func TestBrowserSelection(t *testing.T) {
	t.Run("Core Functionality: toggle tracks global indices", func(t *testing.T) {
		b := NewBrowserModel()
		b.pageSize = 5
		b.SetEntries("/", fileEntries(12))

		b.ToggleChecked() // global 0
		b.NextPage()
		b.cursor = 2
		b.ToggleChecked() // global 7

		targets := b.Targets()
		if len(targets) != 2 || targets[0].Name != "f00.txt" || targets[1].Name != "f07.txt" {
			t.Errorf("targets = %+v", targets)
		}
	})

	t.Run("Core Functionality: selection cleared when listing is replaced", func(t *testing.T) {
		b := NewBrowserModel()
		b.SetEntries("/", fileEntries(5))
		b.ToggleChecked()
		if len(b.checked) != 1 {
			t.Fatalf("checked = %v", b.checked)
		}

		b.SetEntries("/other", fileEntries(3))
		if len(b.checked) != 0 {
			t.Errorf("checked survived listing replacement: %v", b.checked)
		}
	})

	t.Run("Core Functionality: no selection falls back to cursor entry", func(t *testing.T) {
		b := NewBrowserModel()
		b.SetEntries("/data", fileEntries(5))
		b.cursor = 2

		targets := b.Targets()
		if len(targets) != 1 || targets[0].Name != "f02.txt" {
			t.Fatalf("targets = %+v", targets)
		}
		if targets[0].OriginPath != "/data" {
			t.Errorf("OriginPath = %q, want /data", targets[0].OriginPath)
		}
	})

	t.Run("Edge Case: search results keep their own origin", func(t *testing.T) {
		b := NewBrowserModel()
		b.SetEntries("/", []listing.Entry{
			{Type: listing.TypeFile, Name: "hit.txt", OriginPath: "/deep/dir"},
		})
		targets := b.Targets()
		if targets[0].OriginPath != "/deep/dir" {
			t.Errorf("OriginPath = %q, want /deep/dir", targets[0].OriginPath)
		}
	})
}

func TestLinkCandidates(t *testing.T) {
	t.Run("Core Functionality: absolute target tried first", func(t *testing.T) {
		got := linkCandidates("/pub", "/var/www/html")
		if len(got) == 0 || got[0] != "/var/www/html" {
			t.Fatalf("candidates = %v", got)
		}
	})

	t.Run("Core Functionality: relative target joined with cwd", func(t *testing.T) {
		got := linkCandidates("/pub", "releases/v2")
		if got[0] != "/pub/releases/v2" {
			t.Fatalf("candidates = %v", got)
		}
	})

	t.Run("Core Functionality: prefix stripping produces fallbacks", func(t *testing.T) {
		got := linkCandidates("/pub", "/home/ftp/pub/latest")
		// The stripped variants let a chrooted server's absolute target
		// resolve relative to the browsing directory.
		want := "/pub/latest"
		found := false
		for _, c := range got {
			if c == want {
				found = true
			}
		}
		if !found {
			t.Errorf("candidates %v missing %q", got, want)
		}
	})

	t.Run("Edge Case: empty target yields nothing", func(t *testing.T) {
		if got := linkCandidates("/pub", "  "); got != nil {
			t.Errorf("candidates = %v", got)
		}
	})
}

func TestFormatters(t *testing.T) {
	t.Run("Core Functionality: sizes", func(t *testing.T) {
		cases := map[int64]string{
			-1:      "-",
			512:     "512 B",
			2048:    "2.0 KB",
			1 << 20: "1.0 MB",
		}
		for in, want := range cases {
			if got := formatSize(in); got != want {
				t.Errorf("formatSize(%d) = %q, want %q", in, got, want)
			}
		}
	})

	t.Run("Edge Case: zero speed renders as unknown", func(t *testing.T) {
		if got := formatSpeed(0); got != "-" {
			t.Errorf("formatSpeed(0) = %q", got)
		}
	})
}
