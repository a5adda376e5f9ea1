package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gonzalop/ftp/server"

	"github.com/quocson95/flit/pkg/config"
	"github.com/quocson95/flit/pkg/ftpclient"
	"github.com/quocson95/flit/pkg/listing"
)

func startServer(t *testing.T) (config.Session, string) {
	t.Helper()

	rootDir := t.TempDir()
	driver, err := server.NewFSDriver(rootDir,
		server.WithAuthenticator(func(user, pass, host string) (string, bool, error) {
			return rootDir, false, nil
		}),
	)
	if err != nil {
		t.Fatal(err)
	}

	srv, err := server.NewServer("127.0.0.1:0", server.WithDriver(driver))
	if err != nil {
		t.Fatal(err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		if err := srv.Serve(ln); err != nil && err != server.ErrServerClosed {
			t.Logf("server stopped: %v", err)
		}
	}()
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	port, _ := strconv.Atoi(portStr)

	cfg := config.Defaults()
	cfg.Host = host
	cfg.Port = port
	cfg.Timeout = 5 * time.Second
	cfg.DownloadDir = t.TempDir()
	return cfg, rootDir
}

func writeFile(t *testing.T, root string, rel string, content []byte) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		t.Fatal(err)
	}
}

// payload builds deterministic content so partial-file mismatches are
// visible as content diffs, not just length diffs.
func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + i%26)
	}
	return b
}

func newSession(t *testing.T, cfg config.Session) *ftpclient.Session {
	t.Helper()
	s := ftpclient.NewSession(cfg)
	if err := s.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(s.Disconnect)
	return s
}

func TestDownloadFile(t *testing.T) {
	t.Run("Core Functionality: fresh download with progress", func(t *testing.T) {
		cfg, root := startServer(t)
		content := payload(150 * 1024)
		writeFile(t, root, "data.bin", content)
		s := newSession(t, cfg)

		local := filepath.Join(cfg.DownloadDir, "data.bin")
		var mu sync.Mutex
		var events []Progress
		err := DownloadFile(context.Background(), s.NewTransferConn, "/data.bin", local, func(p Progress) {
			mu.Lock()
			events = append(events, p)
			mu.Unlock()
		})
		if err != nil {
			t.Fatalf("DownloadFile: %v", err)
		}

		got, err := os.ReadFile(local)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, content) {
			t.Fatalf("content mismatch: got %d bytes, want %d", len(got), len(content))
		}

		mu.Lock()
		defer mu.Unlock()
		if len(events) == 0 {
			t.Fatal("no progress events")
		}
		var prev int64
		for _, p := range events {
			if p.Bytes < prev {
				t.Fatalf("progress went backwards: %d after %d", p.Bytes, prev)
			}
			prev = p.Bytes
		}
		last := events[len(events)-1]
		if !last.Done || last.Bytes != int64(len(content)) {
			t.Errorf("final event = %+v", last)
		}
	})

	t.Run("Core Functionality: resume appends the remaining bytes", func(t *testing.T) {
		cfg, root := startServer(t)
		content := payload(200 * 1024)
		writeFile(t, root, "big.bin", content)
		s := newSession(t, cfg)

		// A partial above the resume threshold, matching the remote prefix.
		partial := 100 * 1024
		local := filepath.Join(cfg.DownloadDir, "big.bin")
		if err := os.WriteFile(local, content[:partial], 0o644); err != nil {
			t.Fatal(err)
		}

		var first Progress
		var once sync.Once
		err := DownloadFile(context.Background(), s.NewTransferConn, "/big.bin", local, func(p Progress) {
			once.Do(func() { first = p })
		})
		if err != nil {
			t.Fatalf("DownloadFile: %v", err)
		}

		got, err := os.ReadFile(local)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, content) {
			t.Fatalf("resumed content mismatch: got %d bytes, want %d", len(got), len(content))
		}
		// Progress accounts for the bytes already on disk.
		if first.Bytes < int64(partial) {
			t.Errorf("first event Bytes = %d, want >= %d", first.Bytes, partial)
		}
	})

	t.Run("Edge Case: small partial restarts from zero", func(t *testing.T) {
		cfg, root := startServer(t)
		content := payload(32 * 1024)
		writeFile(t, root, "small.bin", content)
		s := newSession(t, cfg)

		local := filepath.Join(cfg.DownloadDir, "small.bin")
		if err := os.WriteFile(local, []byte("stale junk"), 0o644); err != nil {
			t.Fatal(err)
		}

		if err := DownloadFile(context.Background(), s.NewTransferConn, "/small.bin", local, nil); err != nil {
			t.Fatalf("DownloadFile: %v", err)
		}
		got, err := os.ReadFile(local)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, content) {
			t.Fatal("stale partial was not replaced")
		}
	})

	t.Run("Error Handling: missing remote file", func(t *testing.T) {
		cfg, _ := startServer(t)
		s := newSession(t, cfg)

		local := filepath.Join(cfg.DownloadDir, "ghost.bin")
		err := DownloadFile(context.Background(), s.NewTransferConn, "/ghost.bin", local, nil)
		if err == nil {
			t.Fatal("expected error")
		}
		if !ftpclient.IsKind(err, ftpclient.KindNotFound) && !ftpclient.IsKind(err, ftpclient.KindDownload) {
			t.Errorf("unexpected kind: %v", err)
		}
	})

	t.Run("Error Handling: cancelled context aborts", func(t *testing.T) {
		cfg, root := startServer(t)
		writeFile(t, root, "c.bin", payload(256*1024))
		s := newSession(t, cfg)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		local := filepath.Join(cfg.DownloadDir, "c.bin")
		err := DownloadFile(ctx, s.NewTransferConn, "/c.bin", local, nil)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	})
}

func TestDownloadDir(t *testing.T) {
	t.Run("Core Functionality: tree is mirrored", func(t *testing.T) {
		cfg, root := startServer(t)
		writeFile(t, root, "tree/a.txt", payload(100))
		writeFile(t, root, "tree/sub/b.txt", payload(50))
		s := newSession(t, cfg)

		out := filepath.Join(cfg.DownloadDir, "tree")
		if err := DownloadDir(context.Background(), s.NewTransferConn, s, "/tree", out, nil); err != nil {
			t.Fatalf("DownloadDir: %v", err)
		}

		for rel, want := range map[string]int{"a.txt": 100, filepath.Join("sub", "b.txt"): 50} {
			info, err := os.Stat(filepath.Join(out, rel))
			if err != nil {
				t.Fatalf("missing %s: %v", rel, err)
			}
			if info.Size() != int64(want) {
				t.Errorf("%s size = %d, want %d", rel, info.Size(), want)
			}
		}
		// The subdirectory must be a directory, never a flattened file.
		info, err := os.Stat(filepath.Join(out, "sub"))
		if err != nil || !info.IsDir() {
			t.Errorf("sub is not a directory: %v %v", info, err)
		}
	})

	t.Run("Edge Case: empty directory still created", func(t *testing.T) {
		cfg, root := startServer(t)
		if err := os.MkdirAll(filepath.Join(root, "empty"), 0o755); err != nil {
			t.Fatal(err)
		}
		s := newSession(t, cfg)

		out := filepath.Join(cfg.DownloadDir, "empty")
		if err := DownloadDir(context.Background(), s.NewTransferConn, s, "/empty", out, nil); err != nil {
			t.Fatalf("DownloadDir: %v", err)
		}
		if info, err := os.Stat(out); err != nil || !info.IsDir() {
			t.Errorf("empty dir not created: %v %v", info, err)
		}
	})
}

func TestConcurrentTransfers(t *testing.T) {
	t.Run("Core Functionality: downloads do not block browsing", func(t *testing.T) {
		cfg, root := startServer(t)
		for i := 0; i < 2; i++ {
			writeFile(t, root, fmt.Sprintf("f%d.bin", i), payload(128*1024))
		}
		s := newSession(t, cfg)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				remote := fmt.Sprintf("/f%d.bin", i)
				local := filepath.Join(cfg.DownloadDir, fmt.Sprintf("f%d.bin", i))
				errs[i] = DownloadFile(context.Background(), s.NewTransferConn, remote, local, nil)
			}(i)
		}

		// Browsing stays responsive while both transfers run.
		if _, err := s.List("/"); err != nil {
			t.Errorf("List during transfers: %v", err)
		}

		wg.Wait()
		for i, err := range errs {
			if err != nil {
				t.Errorf("transfer %d: %v", i, err)
			}
		}
		for i := 0; i < 2; i++ {
			got, err := os.ReadFile(filepath.Join(cfg.DownloadDir, fmt.Sprintf("f%d.bin", i)))
			if err != nil || len(got) != 128*1024 {
				t.Errorf("file %d: len=%d err=%v", i, len(got), err)
			}
		}
	})
}

func TestResumeOffset(t *testing.T) {
	t.Run("Edge Case: unknown total disables resume", func(t *testing.T) {
		dir := t.TempDir()
		local := filepath.Join(dir, "x")
		if err := os.WriteFile(local, payload(resumeThreshold), 0o644); err != nil {
			t.Fatal(err)
		}
		if got := resumeOffset(local, listing.SizeUnknown); got != 0 {
			t.Errorf("offset = %d, want 0", got)
		}
	})

	t.Run("Edge Case: complete local file restarts", func(t *testing.T) {
		dir := t.TempDir()
		local := filepath.Join(dir, "x")
		if err := os.WriteFile(local, payload(resumeThreshold*2), 0o644); err != nil {
			t.Fatal(err)
		}
		if got := resumeOffset(local, resumeThreshold*2); got != 0 {
			t.Errorf("offset = %d, want 0", got)
		}
	})

	t.Run("Core Functionality: qualifying partial resumes", func(t *testing.T) {
		dir := t.TempDir()
		local := filepath.Join(dir, "x")
		if err := os.WriteFile(local, payload(resumeThreshold), 0o644); err != nil {
			t.Fatal(err)
		}
		if got := resumeOffset(local, resumeThreshold*3); got != resumeThreshold {
			t.Errorf("offset = %d, want %d", got, resumeThreshold)
		}
	})
}
