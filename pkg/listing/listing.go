// Package listing parses raw directory-listing text into structured entries.
//
// Two line grammars are supported, auto-detected per line:
//
//   - Unix-style: perms links owner group size month day time|year name[ -> target]
//   - DOS-style:  MM-DD-YY HH:MMAM|PM <DIR>|size name
//
// Lines that match neither grammar are skipped rather than failing the
// whole listing.
package listing

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// EntryType classifies a directory entry.
type EntryType int

const (
	TypeFile EntryType = iota
	TypeDir
	TypeLink
)

// SizeUnknown marks an entry whose size the server did not report.
const SizeUnknown int64 = -1

// Entry is an immutable directory entry. OriginPath is populated only for
// search results: it is the directory the entry was found in, which may
// differ from the currently browsed path.
type Entry struct {
	Type        EntryType
	Name        string
	Size        int64
	ModTime     time.Time
	Permissions string
	LinkTarget  string
	OriginPath  string
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool { return e.Type == TypeDir }

var months = map[string]time.Month{
	"Jan": time.January, "Feb": time.February, "Mar": time.March,
	"Apr": time.April, "May": time.May, "Jun": time.June,
	"Jul": time.July, "Aug": time.August, "Sep": time.September,
	"Oct": time.October, "Nov": time.November, "Dec": time.December,
}

// ParseLine parses a single listing line. It returns ok=false for lines in
// neither supported grammar.
func ParseLine(line string) (Entry, bool) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return Entry{}, false
	}
	if e, ok := parseUnixLine(line); ok {
		return e, true
	}
	return parseDOSLine(line)
}

// Parse parses a whole raw listing, silently skipping unparseable lines,
// and returns the entries sorted per Sort.
func Parse(raw string) []Entry {
	var entries []Entry
	for _, line := range strings.Split(raw, "\n") {
		if e, ok := ParseLine(line); ok {
			entries = append(entries, e)
		}
	}
	Sort(entries)
	return entries
}

// Sort orders entries in place: all directories before all non-directories,
// then case-sensitive lexicographic by name within each group.
func Sort(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return entries[i].Name < entries[j].Name
	})
}

// parseUnixLine handles the classic ls -l grammar, e.g.
//
//	drwxr-xr-x 2 user group 4096 Jan 28 10:30 configs
//	lrwxrwxrwx 1 user group   10 Jan 28 10:30 latest -> v1.2.3
func parseUnixLine(line string) (Entry, bool) {
	fields := strings.Fields(line)
	if len(fields) < 9 {
		return Entry{}, false
	}

	perms := fields[0]
	if len(perms) < 10 {
		return Entry{}, false
	}
	var typ EntryType
	switch perms[0] {
	case 'd':
		typ = TypeDir
	case 'l':
		typ = TypeLink
	case '-':
		typ = TypeFile
	default:
		return Entry{}, false
	}
	if !isPermString(perms[1:10]) {
		return Entry{}, false
	}

	size, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return Entry{}, false
	}
	month, ok := months[fields[5]]
	if !ok {
		return Entry{}, false
	}
	day, err := strconv.Atoi(fields[6])
	if err != nil || day < 1 || day > 31 {
		return Entry{}, false
	}
	modTime := parseUnixTime(month, day, fields[7])

	// The name is everything after the 8th field, preserving inner spaces.
	name := tailAfterFields(line, 8)
	if name == "" {
		return Entry{}, false
	}

	e := Entry{
		Type:        typ,
		Name:        name,
		Size:        size,
		ModTime:     modTime,
		Permissions: perms,
	}
	if typ == TypeLink {
		if n, target, found := strings.Cut(name, " -> "); found {
			e.Name = n
			e.LinkTarget = target
		}
	}
	if typ == TypeDir {
		// Directory sizes report block usage, not content size.
		e.Size = SizeUnknown
	}
	return e, true
}

// parseDOSLine handles the IIS/Windows grammar, e.g.
//
//	01-28-26  10:30AM       <DIR>          configs
//	01-28-26  10:30AM             4096 readme.txt
func parseDOSLine(line string) (Entry, bool) {
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return Entry{}, false
	}

	modTime, err := time.Parse("01-02-06 03:04PM", fields[0]+" "+fields[1])
	if err != nil {
		return Entry{}, false
	}

	name := tailAfterFields(line, 3)
	if name == "" {
		return Entry{}, false
	}

	if strings.EqualFold(fields[2], "<DIR>") {
		return Entry{
			Type:    TypeDir,
			Name:    name,
			Size:    SizeUnknown,
			ModTime: modTime,
		}, true
	}

	size, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return Entry{}, false
	}
	return Entry{
		Type:    TypeFile,
		Name:    name,
		Size:    size,
		ModTime: modTime,
	}, true
}

func isPermString(s string) bool {
	for _, r := range s {
		switch r {
		case 'r', 'w', 'x', '-', 's', 'S', 't', 'T':
		default:
			return false
		}
	}
	return true
}

// parseUnixTime interprets the month/day plus either an HH:MM time (current
// year implied) or a four-digit year.
func parseUnixTime(month time.Month, day int, timeOrYear string) time.Time {
	if strings.Contains(timeOrYear, ":") {
		hm := strings.SplitN(timeOrYear, ":", 2)
		hour, err1 := strconv.Atoi(hm[0])
		minute, err2 := strconv.Atoi(hm[1])
		if err1 != nil || err2 != nil {
			return time.Time{}
		}
		now := time.Now()
		t := time.Date(now.Year(), month, day, hour, minute, 0, 0, time.UTC)
		// A timestamp in the future belongs to last year.
		if t.After(now.AddDate(0, 0, 1)) {
			t = t.AddDate(-1, 0, 0)
		}
		return t
	}
	year, err := strconv.Atoi(timeOrYear)
	if err != nil || year < 1970 {
		return time.Time{}
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// tailAfterFields returns the remainder of line after skipping n
// whitespace-separated fields, with leading whitespace trimmed.
func tailAfterFields(line string, n int) string {
	rest := line
	for i := 0; i < n; i++ {
		rest = strings.TrimLeft(rest, " \t")
		idx := strings.IndexAny(rest, " \t")
		if idx < 0 {
			return ""
		}
		rest = rest[idx:]
	}
	return strings.TrimLeft(rest, " \t")
}
