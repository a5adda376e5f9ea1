// Package transfer moves remote files to local disk over dedicated
// connections, with resume, throttled progress and recursive directory
// downloads.
package transfer

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/gonzalop/ftp"

	"github.com/quocson95/flit/pkg/ftpclient"
	"github.com/quocson95/flit/pkg/listing"
	"github.com/quocson95/flit/pkg/remotepath"
)

// ConnFactory opens an authenticated connection dedicated to one transfer.
// It is injected by the session owner; the engine never touches the
// browsing connection.
type ConnFactory func() (*ftp.Client, error)

// Lister lists a remote directory. Satisfied by ftpclient.Session.
type Lister interface {
	List(path string) ([]listing.Entry, error)
}

// Progress is one throttled progress event.
type Progress struct {
	Bytes int64
	Total int64 // listing.SizeUnknown when the server cannot report it
	Speed float64
	ETA   time.Duration // zero when speed or total is unknown
	Done  bool
}

const (
	// Files smaller than this are always restarted; the resume
	// round-trip costs more than the bytes it saves.
	resumeThreshold = 64 * 1024

	progressInterval = 150 * time.Millisecond
)

// cancelWriter aborts the copy loop once the transfer's context is
// cancelled.
type cancelWriter struct {
	ctx context.Context
	w   *ftp.ProgressWriter
}

func (c *cancelWriter) Write(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.w.Write(p)
}

// DownloadFile downloads one remote file to localPath on its own
// connection, resuming a large-enough partial file when the remote size is
// known. Progress events are emitted at most every progressInterval, plus
// a final Done event.
func DownloadFile(ctx context.Context, factory ConnFactory, remotePath, localPath string, onProgress func(Progress)) error {
	remotePath = remotepath.Normalize(remotePath)

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		if os.IsPermission(err) {
			return ftpclient.NewError(ftpclient.KindPermission, "", err)
		}
		return ftpclient.NewError(ftpclient.KindInvalidPath, "", err)
	}

	conn, err := factory()
	if err != nil {
		return err
	}
	defer func() { _ = conn.Quit() }()

	total := listing.SizeUnknown
	if size, err := conn.Size(remotePath); err == nil {
		total = size
	}

	offset := resumeOffset(localPath, total)

	var file *os.File
	if offset > 0 {
		file, err = os.OpenFile(localPath, os.O_WRONLY|os.O_APPEND, 0o644)
		log.Printf("[INFO] Resuming %s at offset %d", remotePath, offset)
	} else {
		file, err = os.Create(localPath)
	}
	if err != nil {
		if os.IsPermission(err) {
			return ftpclient.NewError(ftpclient.KindPermission, "", err)
		}
		return ftpclient.NewError(ftpclient.KindInvalidPath, "", err)
	}
	defer file.Close()

	start := time.Now()
	var lastEmit time.Time
	var written int64

	emit := func(done bool) {
		if onProgress == nil {
			return
		}
		bytes := offset + written
		p := Progress{Bytes: bytes, Total: total, Done: done}
		if !done {
			if elapsed := time.Since(start).Seconds(); elapsed > 0 {
				p.Speed = float64(written) / elapsed
			}
			if p.Speed > 0 && total != listing.SizeUnknown && total > bytes {
				p.ETA = time.Duration(float64(total-bytes)/p.Speed) * time.Second
			}
		}
		onProgress(p)
	}

	w := &cancelWriter{
		ctx: ctx,
		w: &ftp.ProgressWriter{
			Writer: file,
			Callback: func(bytesTransferred int64) {
				// Bytes counts only grow; the writer is never rewound.
				if bytesTransferred > written {
					written = bytesTransferred
				}
				if now := time.Now(); now.Sub(lastEmit) >= progressInterval {
					lastEmit = now
					emit(false)
				}
			},
		},
	}

	if err := conn.RetrieveFrom(remotePath, w, offset); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ftpclient.ClassifyRemote(err, ftpclient.KindDownload)
	}

	if total == listing.SizeUnknown {
		total = offset + written
	}
	if onProgress != nil {
		onProgress(Progress{Bytes: offset + written, Total: total, Done: true})
	}
	return nil
}

// DownloadDir recursively downloads a remote directory tree, preserving
// the relative structure under localPath. Symlinks are skipped (no cycle
// following). The first file failure aborts the whole operation; partial
// files already written stay on disk.
func DownloadDir(ctx context.Context, factory ConnFactory, lister Lister, remotePath, localPath string, onProgress func(Progress)) error {
	var doneBytes int64
	return downloadDir(ctx, factory, lister, remotepath.Normalize(remotePath), localPath, &doneBytes, onProgress)
}

func downloadDir(ctx context.Context, factory ConnFactory, lister Lister, remotePath, localPath string, doneBytes *int64, onProgress func(Progress)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := lister.List(remotePath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(localPath, 0o755); err != nil {
		if os.IsPermission(err) {
			return ftpclient.NewError(ftpclient.KindPermission, "", err)
		}
		return ftpclient.NewError(ftpclient.KindInvalidPath, "", err)
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		rPath := remotepath.Join(remotePath, e.Name)
		lPath := filepath.Join(localPath, e.Name)

		switch e.Type {
		case listing.TypeDir:
			if err := downloadDir(ctx, factory, lister, rPath, lPath, doneBytes, onProgress); err != nil {
				return err
			}
		case listing.TypeLink:
			log.Printf("[INFO] Skipping symlink %s", rPath)
		default:
			base := *doneBytes
			err := DownloadFile(ctx, factory, rPath, lPath, func(p Progress) {
				if onProgress != nil {
					onProgress(Progress{
						Bytes: base + p.Bytes,
						Total: listing.SizeUnknown,
						Speed: p.Speed,
					})
				}
			})
			if err != nil {
				return err
			}
			if e.Size > 0 {
				*doneBytes = base + e.Size
			}
		}
	}

	if onProgress != nil {
		onProgress(Progress{Bytes: *doneBytes, Total: listing.SizeUnknown, Done: true})
	}
	return nil
}

// resumeOffset decides where a download starts. Resume only applies when
// the remote size is known, a smaller local partial exists, and the
// partial clears the resume threshold.
func resumeOffset(localPath string, total int64) int64 {
	if total == listing.SizeUnknown || total <= 0 {
		return 0
	}
	info, err := os.Stat(localPath)
	if err != nil || !info.Mode().IsRegular() {
		return 0
	}
	size := info.Size()
	if size >= resumeThreshold && size < total {
		return size
	}
	return 0
}
