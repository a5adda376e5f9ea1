// Package ftpclient owns the FTP control connection and its lifecycle.
package ftpclient

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/gonzalop/ftp"

	"github.com/quocson95/flit/pkg/config"
	"github.com/quocson95/flit/pkg/listing"
	"github.com/quocson95/flit/pkg/remotepath"
)

// Status is the control connection's lifecycle state.
type Status int

const (
	Disconnected Status = iota
	Connecting
	Connected
)

// State is a read-only snapshot of the session for display.
type State struct {
	Status  Status
	Path    string
	LastErr error
}

// Session owns the single control connection used for browsing, previews
// and metadata. Downloads never run on it; they get their own connections
// via NewTransferConn.
type Session struct {
	cfg config.Session

	// opMu serializes full command cycles on the control connection.
	// ftp.Client does not tolerate interleaved cycles (it tracks a
	// single active data connection), and callers do overlap: a search
	// walk's in-flight listing can still be running when the UI issues
	// the next Navigate or Preview. Lock order is opMu before mu.
	opMu sync.Mutex

	mu         sync.Mutex
	conn       *ftp.Client
	status     Status
	path       string
	lastErr    error
	connecting bool
}

// NewSession creates a session for the given configuration. No connection
// is attempted until Connect.
func NewSession(cfg config.Session) *Session {
	return &Session{cfg: cfg, path: "/"}
}

// dial opens and authenticates a fresh connection from the stored
// configuration.
func (s *Session) dial() (*ftp.Client, error) {
	opts := []ftp.Option{ftp.WithTimeout(s.cfg.Timeout)}
	if s.cfg.Secure {
		opts = append(opts, ftp.WithExplicitTLS(&tls.Config{ServerName: s.cfg.Host}))
	}
	if !s.cfg.Passive {
		opts = append(opts, ftp.WithActiveMode())
	}

	conn, err := ftp.Dial(s.cfg.Addr(), opts...)
	if err != nil {
		return nil, classifyDial(err)
	}
	if err := conn.Login(s.cfg.User, s.cfg.Password); err != nil {
		_ = conn.Quit()
		return nil, classifyLogin(err)
	}
	return conn, nil
}

// Connect establishes the control connection. Only one attempt may be in
// flight; a concurrent call is rejected rather than racing the first.
func (s *Session) Connect() error {
	s.mu.Lock()
	if s.connecting {
		s.mu.Unlock()
		return NewError(KindConnection, "connect already in progress", nil)
	}
	if s.status == Connected && s.conn != nil {
		s.mu.Unlock()
		return nil
	}
	s.connecting = true
	s.status = Connecting
	s.mu.Unlock()

	s.opMu.Lock()
	defer s.opMu.Unlock()
	conn, err := s.dial()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.connecting = false
	if err != nil {
		s.status = Disconnected
		s.conn = nil
		s.lastErr = err
		return err
	}
	s.conn = conn
	s.status = Connected
	s.path = "/"
	s.lastErr = nil
	log.Printf("[INFO] Connected to %s as %s", s.cfg.Addr(), s.cfg.User)
	return nil
}

// Disconnect closes the control connection. It is idempotent and never
// returns close-time errors; cleanup is best effort.
func (s *Session) Disconnect() {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		_ = s.conn.Quit()
		s.conn = nil
	}
	s.status = Disconnected
	s.path = "/"
	s.lastErr = nil
}

// State returns a display snapshot.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{Status: s.status, Path: s.path, LastErr: s.lastErr}
}

// CurrentPath returns the normalized path of the last Navigate.
func (s *Session) CurrentPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// ensureConnected probes the control connection with a cheap PWD and
// transparently re-establishes it once if the server dropped us while
// idle. The caller's own request is then retried once on top. Callers
// must hold opMu.
func (s *Session) ensureConnected() (*ftp.Client, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		if _, err := conn.CurrentDir(); err == nil {
			return conn, nil
		}
		log.Printf("[WARN] Control connection went stale, reconnecting")
		_ = conn.Quit()
	}

	fresh, err := s.dial()
	if err != nil {
		s.mu.Lock()
		s.conn = nil
		s.status = Disconnected
		s.lastErr = err
		s.mu.Unlock()
		return nil, err
	}

	s.mu.Lock()
	s.conn = fresh
	s.status = Connected
	s.mu.Unlock()
	return fresh, nil
}

// List returns the sorted entries of a remote directory. 550-class
// failures surface as KindNotFound.
func (s *Session) List(path string) ([]listing.Entry, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.list(path)
}

// list runs one LIST cycle. Callers must hold opMu.
func (s *Session) list(path string) ([]listing.Entry, error) {
	path = remotepath.Normalize(path)
	conn, err := s.ensureConnected()
	if err != nil {
		return nil, err
	}

	raw, err := conn.List(path)
	if err != nil {
		cerr := ClassifyRemote(err, KindConnection)
		s.recordErr(cerr)
		return nil, cerr
	}
	return convertEntries(raw), nil
}

// Navigate lists path and, on success, makes it the session's current
// directory.
func (s *Session) Navigate(path string) ([]listing.Entry, error) {
	path = remotepath.Normalize(path)
	entries, err := s.List(path)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.path = path
	s.lastErr = nil
	s.mu.Unlock()
	return entries, nil
}

// errPreviewCap aborts a preview RETR once enough bytes arrived.
var errPreviewCap = errors.New("preview byte cap reached")

// cappedWriter accepts at most max bytes, then fails the copy.
type cappedWriter struct {
	buf strings.Builder
	max int
}

func (w *cappedWriter) Write(p []byte) (int, error) {
	remaining := w.max - w.buf.Len()
	if remaining <= 0 {
		return 0, errPreviewCap
	}
	if len(p) > remaining {
		w.buf.Write(p[:remaining])
		return remaining, errPreviewCap
	}
	w.buf.Write(p)
	return len(p), nil
}

// Preview streams at most maxBytes of a remote file and decodes it as
// UTF-8 (invalid sequences replaced). Binary detection is the caller's
// problem.
func (s *Session) Preview(path string, maxBytes int) (string, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	path = remotepath.Normalize(path)
	conn, err := s.ensureConnected()
	if err != nil {
		return "", err
	}

	w := &cappedWriter{max: maxBytes}
	if err := conn.Retrieve(path, w); err != nil && !errors.Is(err, errPreviewCap) {
		cerr := ClassifyRemote(err, KindConnection)
		s.recordErr(cerr)
		return "", cerr
	}
	return strings.ToValidUTF8(w.buf.String(), "�"), nil
}

// FileInfo returns the entry for the exact path by inspecting its parent
// listing. Unknown file sizes are filled in via SIZE when the server
// supports it.
func (s *Session) FileInfo(path string) (listing.Entry, error) {
	path = remotepath.Normalize(path)
	if remotepath.IsRoot(path) {
		return listing.Entry{Type: listing.TypeDir, Name: "/", Size: listing.SizeUnknown}, nil
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	parent := remotepath.Parent(path)
	entries, err := s.list(parent)
	if err != nil {
		return listing.Entry{}, err
	}

	name := remotepath.Base(path)
	for _, e := range entries {
		if e.Name != name {
			continue
		}
		e.OriginPath = parent
		if e.Type == listing.TypeFile && e.Size == listing.SizeUnknown {
			if conn, cerr := s.ensureConnected(); cerr == nil {
				if size, serr := conn.Size(path); serr == nil {
					e.Size = size
				}
			}
		}
		return e, nil
	}
	return listing.Entry{}, NewError(KindNotFound, fmt.Sprintf("no entry %s in %s", name, parent), nil)
}

// NewTransferConn opens and authenticates a brand-new connection for a
// single download. Its lifecycle is entirely independent from browsing.
func (s *Session) NewTransferConn() (*ftp.Client, error) {
	return s.dial()
}

func (s *Session) recordErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// convertEntries maps library entries onto listing entries, preferring a
// reparse of the raw LIST line (it carries permissions and mod times the
// library drops). Dot entries are filtered out.
func convertEntries(raw []*ftp.Entry) []listing.Entry {
	entries := make([]listing.Entry, 0, len(raw))
	for _, r := range raw {
		if r == nil || r.Name == "." || r.Name == ".." {
			continue
		}
		if e, ok := listing.ParseLine(r.Raw); ok {
			entries = append(entries, e)
			continue
		}
		e := listing.Entry{Name: r.Name, Size: r.Size, LinkTarget: r.Target}
		switch r.Type {
		case "dir":
			e.Type = listing.TypeDir
			e.Size = listing.SizeUnknown
		case "link":
			e.Type = listing.TypeLink
		default:
			e.Type = listing.TypeFile
		}
		entries = append(entries, e)
	}
	listing.Sort(entries)
	return entries
}
