package tui

import (
	"fmt"
	"strings"
)

// previewMaxBytes caps how much of a remote file is fetched for display.
const previewMaxBytes = 64 * 1024

// PreviewModel shows the head of a remote text file with line scrolling.
type PreviewModel struct {
	path    string
	lines   []string
	offset  int
	loading bool
	err     error
	height  int
}

func NewPreviewModel(path string) *PreviewModel {
	return &PreviewModel{path: path, loading: true, height: 20}
}

func (p *PreviewModel) SetContent(content string) {
	p.lines = strings.Split(content, "\n")
	p.offset = 0
	p.loading = false
	p.err = nil
}

func (p *PreviewModel) SetError(err error) {
	p.err = err
	p.loading = false
}

func (p *PreviewModel) visibleLines() int {
	n := p.height - 8
	if n < 5 {
		n = 5
	}
	return n
}

func (p *PreviewModel) Scroll(delta int) {
	max := len(p.lines) - p.visibleLines()
	if max < 0 {
		max = 0
	}
	p.offset += delta
	if p.offset > max {
		p.offset = max
	}
	if p.offset < 0 {
		p.offset = 0
	}
}

func (p *PreviewModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("📄 %s", p.path)))
	b.WriteString("\n\n")

	switch {
	case p.loading:
		b.WriteString(dimStyle.Render("  Loading preview..."))
	case p.err != nil:
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", p.err)))
	default:
		end := p.offset + p.visibleLines()
		if end > len(p.lines) {
			end = len(p.lines)
		}
		for _, line := range p.lines[p.offset:end] {
			b.WriteString(itemStyle.Render(line))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(dimStyle.Render(fmt.Sprintf("  lines %d-%d of %d (first %s shown)",
			p.offset+1, end, len(p.lines), formatSize(previewMaxBytes))))
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("↑/↓ scroll • pgup/pgdn page • esc/q: back"))
	return b.String()
}
