package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"

	"github.com/quocson95/flit/pkg/listing"
)

const (
	searchMaxDepth   = 5
	searchBufferSize = 256
)

// SearchModel is the recursive find screen. Typing restarts a debounce
// timer; when it fires a walker goroutine streams matches into a buffer
// the UI drains on a flush tick.
type SearchModel struct {
	input    textinput.Model
	basePath string

	results []listing.Entry
	cursor  int
	checked map[int]struct{}
	status  string

	searching bool
	gen       int // invalidates stale debounce timers and walkers
	cancel    context.CancelFunc
	matches   chan listing.Entry
	err       error
}

func NewSearchModel(basePath string) *SearchModel {
	input := textinput.New()
	input.Placeholder = "file name contains..."
	input.CharLimit = 128
	input.Width = 40
	input.Focus()

	return &SearchModel{
		input:    input,
		basePath: basePath,
		checked:  make(map[int]struct{}),
	}
}

// Stop cancels any running walker. Safe to call repeatedly.
func (s *SearchModel) Stop() {
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.searching = false
}

// Restart invalidates the previous walker and clears stale results in
// preparation for a fresh query. The checked set indexes the old result
// list, so it is always cleared with it.
func (s *SearchModel) Restart() int {
	s.Stop()
	s.results = nil
	s.cursor = 0
	s.checked = make(map[int]struct{})
	s.status = ""
	s.err = nil
	return s.gen
}

// Drain moves buffered matches into the visible result list.
func (s *SearchModel) Drain() {
	if s.matches == nil {
		return
	}
	for {
		select {
		case e := <-s.matches:
			s.results = append(s.results, e)
		default:
			return
		}
	}
}

func (s *SearchModel) MoveCursor(delta int) {
	s.cursor += delta
	if s.cursor < 0 {
		s.cursor = 0
	}
	if s.cursor >= len(s.results) {
		s.cursor = len(s.results) - 1
	}
	if s.cursor < 0 {
		s.cursor = 0
	}
}

func (s *SearchModel) CurrentResult() (listing.Entry, bool) {
	if s.cursor < 0 || s.cursor >= len(s.results) {
		return listing.Entry{}, false
	}
	return s.results[s.cursor], true
}

// ToggleChecked flips the selection of the result under the cursor.
// Indices stay valid while a walk streams in: Drain only appends.
func (s *SearchModel) ToggleChecked() {
	if s.cursor < 0 || s.cursor >= len(s.results) {
		return
	}
	if _, ok := s.checked[s.cursor]; ok {
		delete(s.checked, s.cursor)
	} else {
		s.checked[s.cursor] = struct{}{}
	}
}

// Targets resolves what a download acts on: the checked results if any,
// otherwise the result under the cursor. Every result already carries
// the directory it was found in as OriginPath.
func (s *SearchModel) Targets() []listing.Entry {
	if len(s.checked) > 0 {
		out := make([]listing.Entry, 0, len(s.checked))
		for i := range s.results {
			if _, ok := s.checked[i]; ok {
				out = append(out, s.results[i])
			}
		}
		return out
	}
	if e, ok := s.CurrentResult(); ok {
		return []listing.Entry{e}
	}
	return nil
}

func (s *SearchModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("🔍 Search under %s", s.basePath)))
	b.WriteString("\n\n")
	b.WriteString("  " + s.input.View())
	b.WriteString("\n\n")

	if s.searching {
		b.WriteString(dimStyle.Render("  searching..."))
		b.WriteString("\n")
	}

	if len(s.results) == 0 && !s.searching && s.input.Value() != "" {
		b.WriteString(helpStyle.Render("No matches"))
		b.WriteString("\n")
	}

	shown := s.results
	const maxShown = 20
	offset := 0
	if s.cursor >= maxShown {
		offset = s.cursor - maxShown + 1
	}
	if offset+maxShown < len(shown) {
		shown = shown[offset : offset+maxShown]
	} else if offset < len(shown) {
		shown = shown[offset:]
	}

	for i, e := range shown {
		cursor := "  "
		style := itemStyle
		if offset+i == s.cursor {
			cursor = "→ "
			style = selectedItemStyle
		}
		mark := "[ ]"
		if _, ok := s.checked[offset+i]; ok {
			mark = "[x]"
			if offset+i != s.cursor {
				style = checkedItemStyle
			}
		}
		icon := "📄"
		if e.Type == listing.TypeDir {
			icon = "📁"
		}
		line := fmt.Sprintf("%s %s %s/%s", mark, icon, strings.TrimSuffix(e.OriginPath, "/"), e.Name)
		b.WriteString(cursor + style.Render(line))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("  %d matches • %d selected", len(s.results), len(s.checked))))

	if s.status != "" {
		b.WriteString("\n")
		b.WriteString(successStyle.Render(s.status))
	}
	if s.err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", s.err)))
	}

	b.WriteString("\n")
	if s.input.Focused() {
		b.WriteString(helpStyle.Render("type to search • ↑/↓ move • tab: results • enter: go to • ctrl+v: preview • esc: back"))
	} else {
		b.WriteString(helpStyle.Render("↑/↓ move • space: select • d: download • enter: go to • ctrl+v: preview • tab: edit query • esc: back"))
	}
	return b.String()
}
