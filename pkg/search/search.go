// Package search walks a remote directory tree looking for entries whose
// name contains a pattern.
package search

import (
	"context"
	"log"
	"strings"

	"github.com/quocson95/flit/pkg/listing"
	"github.com/quocson95/flit/pkg/remotepath"
)

// Lister lists one remote directory. Satisfied by ftpclient.Session.
type Lister interface {
	List(path string) ([]listing.Entry, error)
}

// DefaultMaxDepth bounds recursion when the caller passes no limit.
const DefaultMaxDepth = 5

// Search walks the tree under startPath depth-first, in listing order,
// and reports every entry whose name contains pattern (case-insensitive).
// Each match carries the directory it was found in as OriginPath and is
// streamed to onMatch before the walk moves on.
//
// Directories deeper than maxDepth are not entered. A directory that
// fails to list is skipped, not fatal. Cancellation returns the matches
// collected so far together with ctx.Err().
func Search(ctx context.Context, lister Lister, startPath, pattern string, maxDepth int, onMatch func(listing.Entry)) ([]listing.Entry, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	needle := strings.ToLower(pattern)

	var matches []listing.Entry
	err := walk(ctx, lister, remotepath.Normalize(startPath), needle, 0, maxDepth, &matches, onMatch)
	return matches, err
}

func walk(ctx context.Context, lister Lister, dir, needle string, depth, maxDepth int, matches *[]listing.Entry, onMatch func(listing.Entry)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := lister.List(dir)
	if err != nil {
		// One unreadable directory must not kill the whole search.
		log.Printf("[WARN] Search skipping %s: %v", dir, err)
		return nil
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		if strings.Contains(strings.ToLower(e.Name), needle) {
			e.OriginPath = dir
			*matches = append(*matches, e)
			if onMatch != nil {
				onMatch(e)
			}
		}

		if e.Type == listing.TypeDir && depth+1 < maxDepth {
			sub := remotepath.Join(dir, e.Name)
			if err := walk(ctx, lister, sub, needle, depth+1, maxDepth, matches, onMatch); err != nil {
				return err
			}
		}
	}
	return nil
}
