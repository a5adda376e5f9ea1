package tui

import (
	"fmt"
	"strings"

	"github.com/quocson95/flit/pkg/listing"
	"github.com/quocson95/flit/pkg/remotepath"
)

const (
	minPageSize     = 5
	maxPageSize     = 40
	defaultPageSize = 15

	// viewportChrome is the rows the browse screen spends outside the
	// entry list: title, blank lines, the page/status footer and the
	// transfers panel plus help line below it.
	viewportChrome = 12
)

// BrowserModel is the directory listing screen: one page of entries, a
// cursor inside that page, and a multi-select checked set addressed by
// global entry index.
type BrowserModel struct {
	path     string
	entries  []listing.Entry
	cursor   int // position within the current page
	page     int
	pageSize int
	checked  map[int]struct{}
	status   string
	err      error
	loading  bool
	width    int
	height   int
}

func NewBrowserModel() *BrowserModel {
	return &BrowserModel{
		path:     "/",
		pageSize: defaultPageSize,
		checked:  make(map[int]struct{}),
	}
}

// SetEntries replaces the listing. Any selection referred to the old
// listing's indices, so it is always cleared.
func (b *BrowserModel) SetEntries(path string, entries []listing.Entry) {
	b.path = path
	b.entries = entries
	b.cursor = 0
	b.page = 0
	b.checked = make(map[int]struct{})
	b.err = nil
	b.loading = false
}

func (b *BrowserModel) SetError(err error) {
	b.err = err
	b.loading = false
}

// PageCount is always at least 1 so an empty directory still renders a
// page frame.
func (b *BrowserModel) PageCount() int {
	if len(b.entries) == 0 {
		return 1
	}
	return (len(b.entries) + b.pageSize - 1) / b.pageSize
}

// pageBounds returns the half-open [start, end) range of the current page.
func (b *BrowserModel) pageBounds() (int, int) {
	start := b.page * b.pageSize
	end := start + b.pageSize
	if end > len(b.entries) {
		end = len(b.entries)
	}
	return start, end
}

// GlobalIndex converts the page-local cursor into an index into entries.
func (b *BrowserModel) GlobalIndex() int {
	return b.page*b.pageSize + b.cursor
}

// CurrentEntry returns the entry under the cursor.
func (b *BrowserModel) CurrentEntry() (listing.Entry, bool) {
	i := b.GlobalIndex()
	if i < 0 || i >= len(b.entries) {
		return listing.Entry{}, false
	}
	return b.entries[i], true
}

// MoveCursor moves within the page and flows across page boundaries at
// the edges.
func (b *BrowserModel) MoveCursor(delta int) {
	start, end := b.pageBounds()
	onPage := end - start
	if onPage == 0 {
		return
	}
	next := b.cursor + delta
	switch {
	case next < 0:
		if b.page > 0 {
			b.page--
			b.cursor = b.pageSize - 1
		}
	case next >= onPage:
		if b.page < b.PageCount()-1 {
			b.page++
			b.cursor = 0
		}
	default:
		b.cursor = next
	}
	b.clampCursor()
}

func (b *BrowserModel) NextPage() {
	if b.page < b.PageCount()-1 {
		b.page++
		b.clampCursor()
	}
}

func (b *BrowserModel) PrevPage() {
	if b.page > 0 {
		b.page--
		b.clampCursor()
	}
}

// ResizePage grows or shrinks the page, keeping the cursor on the same
// entry where possible.
func (b *BrowserModel) ResizePage(delta int) {
	b.setPageSize(b.pageSize + delta)
}

// SetViewportHeight fits the page to the terminal: whatever rows remain
// after the screen chrome become the page, clamped to the manual resize
// bounds.
func (b *BrowserModel) SetViewportHeight(h int) {
	b.height = h
	b.setPageSize(h - viewportChrome)
}

func (b *BrowserModel) setPageSize(size int) {
	if size < minPageSize {
		size = minPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	if size == b.pageSize {
		return
	}
	global := b.GlobalIndex()
	b.pageSize = size
	b.page = global / size
	b.cursor = global % size
	b.clampCursor()
}

func (b *BrowserModel) clampCursor() {
	if b.page >= b.PageCount() {
		b.page = b.PageCount() - 1
	}
	if b.page < 0 {
		b.page = 0
	}
	start, end := b.pageBounds()
	onPage := end - start
	if onPage == 0 {
		b.cursor = 0
		return
	}
	if b.cursor >= onPage {
		b.cursor = onPage - 1
	}
	if b.cursor < 0 {
		b.cursor = 0
	}
}

// ToggleChecked flips the selection of the entry under the cursor.
func (b *BrowserModel) ToggleChecked() {
	i := b.GlobalIndex()
	if i < 0 || i >= len(b.entries) {
		return
	}
	if _, ok := b.checked[i]; ok {
		delete(b.checked, i)
	} else {
		b.checked[i] = struct{}{}
	}
}

// Targets resolves what a download acts on: the checked entries if any
// are checked, otherwise the entry under the cursor. Every target carries
// the directory it came from.
func (b *BrowserModel) Targets() []listing.Entry {
	var out []listing.Entry
	if len(b.checked) > 0 {
		for i := range b.entries {
			if _, ok := b.checked[i]; ok {
				e := b.entries[i]
				if e.OriginPath == "" {
					e.OriginPath = b.path
				}
				out = append(out, e)
			}
		}
		return out
	}
	if e, ok := b.CurrentEntry(); ok {
		if e.OriginPath == "" {
			e.OriginPath = b.path
		}
		out = append(out, e)
	}
	return out
}

// linkCandidates lists the paths to try when entering a symlink, most
// specific first. Servers often report targets relative to their own
// filesystem root, so after the literal interpretations we retry with
// leading target components stripped.
func linkCandidates(cwd, target string) []string {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil
	}

	var out []string
	if strings.HasPrefix(target, "/") {
		out = append(out, remotepath.Normalize(target))
	}
	out = append(out, remotepath.Join(cwd, target))

	parts := strings.Split(strings.Trim(target, "/"), "/")
	for i := 1; i < len(parts); i++ {
		out = append(out, remotepath.Join(cwd, strings.Join(parts[i:], "/")))
	}

	// Dedupe while preserving order.
	seen := make(map[string]struct{}, len(out))
	uniq := out[:0]
	for _, p := range out {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		uniq = append(uniq, p)
	}
	return uniq
}

func (b *BrowserModel) View() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(fmt.Sprintf("📁 %s", b.path)))
	s.WriteString("\n\n")

	if b.loading {
		s.WriteString(dimStyle.Render("  Loading..."))
		s.WriteString("\n")
	} else if len(b.entries) == 0 {
		s.WriteString(helpStyle.Render("Empty directory"))
		s.WriteString("\n")
	} else {
		start, end := b.pageBounds()
		for i := start; i < end; i++ {
			e := b.entries[i]
			cursor := "  "
			style := itemStyle
			if i == b.GlobalIndex() {
				cursor = "→ "
				style = selectedItemStyle
			}

			mark := "[ ]"
			if _, ok := b.checked[i]; ok {
				mark = "[x]"
				if i != b.GlobalIndex() {
					style = checkedItemStyle
				}
			}

			icon := "📄"
			switch e.Type {
			case listing.TypeDir:
				icon = "📁"
			case listing.TypeLink:
				icon = "🔗"
			}

			name := e.Name
			if e.Type == listing.TypeLink && e.LinkTarget != "" {
				name = fmt.Sprintf("%s → %s", name, e.LinkTarget)
			}
			if len(name) > 50 {
				name = name[:47] + "..."
			}

			line := fmt.Sprintf("%s %s %s (%s)", mark, icon, name, formatSize(e.Size))
			s.WriteString(cursor + style.Render(line))
			s.WriteString("\n")
		}
	}

	s.WriteString("\n")
	s.WriteString(dimStyle.Render(fmt.Sprintf("  page %d/%d • %d entries • %d selected",
		b.page+1, b.PageCount(), len(b.entries), len(b.checked))))

	if b.status != "" {
		s.WriteString("\n")
		s.WriteString(successStyle.Render(b.status))
	}
	if b.err != nil {
		s.WriteString("\n")
		s.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", b.err)))
	}

	return s.String()
}

func formatSize(bytes int64) string {
	if bytes < 0 {
		return "-"
	}
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func formatSpeed(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "-"
	}
	return formatSize(int64(bytesPerSec)) + "/s"
}
