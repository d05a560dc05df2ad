package upload

import (
    "bytes"
    "context"
    "errors"
    "path/filepath"
    "strings"
    "testing"
    "time"

    "github.com/spf13/afero"

    "github.com/autcn/SiS.Communcation-sub001/pkg/protocol"
    "github.com/autcn/SiS.Communcation-sub001/pkg/transport"
)

// loopConn hands messages straight to a Manager.
type loopConn struct {
    m    *Manager
    conn transport.ConnID
    sent int
    hook func(sent int)
}

func (l *loopConn) Request(ctx context.Context, req protocol.Request) (protocol.Response, error) {
    return l.m.Handle(ctx, l.conn, req)
}

func (l *loopConn) Send(msg protocol.Message) error {
    _, err := l.m.Handle(context.Background(), l.conn, msg)
    l.sent++
    if l.hook != nil { l.hook(l.sent) }
    return err
}

func TestUploaderSendsInChunks(t *testing.T) {
    m, fs := newTestManager(t, nil, Options{})
    lc := &loopConn{m: m, conn: "c1"}
    u := NewUploader(lc, UploaderOptions{ChunkSize: 4})
    payload := []byte("hello, upload world")
    id, err := u.Upload(context.Background(), "greeting.txt", bytes.NewReader(payload), int64(len(payload)), time.Now())
    if err != nil { t.Fatalf("upload: %v", err) }
    if lc.sent != 5 { t.Fatalf("chunks = %d", lc.sent) }
    got, _ := afero.ReadFile(fs, filepath.Join(testDir, "greeting.txt"))
    if !bytes.Equal(got, payload) { t.Fatalf("content = %q", got) }
    if snap, _ := m.Snapshot(id); snap.State != StateCompleted { t.Fatalf("state = %s", snap.State) }
}

func TestUploaderRejected(t *testing.T) {
    m, _ := newTestManager(t, DefaultPolicy{MaxFileSize: 3}, Options{})
    u := NewUploader(&loopConn{m: m, conn: "c1"}, UploaderOptions{})
    _, err := u.Upload(context.Background(), "big.bin", strings.NewReader("12345"), 5, time.Time{})
    if !errors.Is(err, ErrRejected) { t.Fatalf("want ErrRejected, got %v", err) }
}

func TestUploaderCancelsOnContext(t *testing.T) {
    m, _ := newTestManager(t, nil, Options{})
    ctx, cancel := context.WithCancel(context.Background())
    lc := &loopConn{m: m, conn: "c1", hook: func(sent int) {
        if sent == 2 { cancel() }
    }}
    u := NewUploader(lc, UploaderOptions{ChunkSize: 2})
    id, err := u.Upload(ctx, "a.txt", strings.NewReader("0123456789"), 10, time.Time{})
    if !errors.Is(err, context.Canceled) { t.Fatalf("want context.Canceled, got %v", err) }
    if snap, _ := m.Snapshot(id); snap.State != StateCancelled || snap.Received != 4 { t.Fatalf("snapshot: %+v", snap) }
}

func TestUploaderShortSource(t *testing.T) {
    m, _ := newTestManager(t, nil, Options{})
    u := NewUploader(&loopConn{m: m, conn: "c1"}, UploaderOptions{ChunkSize: 4})
    id, err := u.Upload(context.Background(), "a.txt", strings.NewReader("abc"), 10, time.Time{})
    if !errors.Is(err, protocol.ErrCountInvalid) { t.Fatalf("want ErrCountInvalid, got %v", err) }
    if snap, _ := m.Snapshot(id); snap.State != StateCancelled { t.Fatalf("state = %s", snap.State) }
}

func TestUploadFileFromFs(t *testing.T) {
    m, dst := newTestManager(t, nil, Options{})
    src := afero.NewMemMapFs()
    when := time.Date(2021, 1, 2, 3, 4, 5, 0, time.UTC)
    _ = afero.WriteFile(src, "/home/me/report.csv", []byte("a,b\n1,2\n"), 0o644)
    _ = src.Chtimes("/home/me/report.csv", when, when)
    u := NewUploader(&loopConn{m: m, conn: "c1"}, UploaderOptions{Fs: src})
    if _, err := u.UploadFile(context.Background(), "/home/me/report.csv"); err != nil { t.Fatalf("upload: %v", err) }
    fi, err := dst.Stat(filepath.Join(testDir, "report.csv"))
    if err != nil { t.Fatalf("stat: %v", err) }
    if fi.Size() != 8 || !fi.ModTime().Equal(when) { t.Fatalf("size=%d mtime=%v", fi.Size(), fi.ModTime()) }
}

func TestUploaderThrottlesToRate(t *testing.T) {
    m, _ := newTestManager(t, nil, Options{})
    u := NewUploader(&loopConn{m: m, conn: "c1"}, UploaderOptions{ChunkSize: 100, RateBytesPerSec: 200})
    payload := bytes.Repeat([]byte("x"), 400)
    start := time.Now()
    if _, err := u.Upload(context.Background(), "slow.bin", bytes.NewReader(payload), 400, time.Time{}); err != nil {
        t.Fatalf("upload: %v", err)
    }
    // 200 bytes of burst, then 200 more at 200 B/s.
    if el := time.Since(start); el < 800*time.Millisecond { t.Fatalf("finished in %s, not throttled", el) }
}

func TestUploaderThrottleHonoursDeadline(t *testing.T) {
    m, _ := newTestManager(t, nil, Options{})
    u := NewUploader(&loopConn{m: m, conn: "c1"}, UploaderOptions{ChunkSize: 10, RateBytesPerSec: 10})
    ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
    defer cancel()
    id, err := u.Upload(ctx, "late.bin", strings.NewReader(strings.Repeat("y", 50)), 50, time.Time{})
    if err == nil { t.Fatalf("upload finished despite deadline") }
    if snap, _ := m.Snapshot(id); snap.State != StateCancelled || snap.Received != 10 { t.Fatalf("snapshot: %+v", snap) }
}
