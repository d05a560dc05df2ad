package upload

import (
    "context"
    "errors"
    "fmt"
    "io"
    "path/filepath"
    "time"

    "github.com/google/uuid"
    "github.com/spf13/afero"
    "go.uber.org/zap"
    "golang.org/x/time/rate"

    "github.com/autcn/SiS.Communcation-sub001/pkg/message"
    "github.com/autcn/SiS.Communcation-sub001/pkg/protocol"
)

// ErrRejected is returned when the receiver refuses an upload.
var ErrRejected = errors.New("upload rejected")

// ErrNotCompleted is returned when the receiver could not finalize an upload.
var ErrNotCompleted = errors.New("upload not completed")

// DefaultChunkSize is used when no chunk size is configured.
const DefaultChunkSize = 64 * 1024

// Conn is the sending side of one connection.
type Conn interface {
    Request(ctx context.Context, req protocol.Request) (protocol.Response, error)
    Send(msg protocol.Message) error
}

// UploaderOptions tune an Uploader.
type UploaderOptions struct {
    ChunkSize int
    // RateBytesPerSec throttles chunk sends when positive.
    RateBytesPerSec int64
    // Fs is used by UploadFile; defaults to the OS filesystem.
    Fs afero.Fs
}

// Uploader drives the begin/data/end exchange over a Conn.
type Uploader struct {
    conn    Conn
    chunk   int
    limiter *rate.Limiter
    fs      afero.Fs
}

func NewUploader(c Conn, opts UploaderOptions) *Uploader {
    u := &Uploader{conn: c, chunk: opts.ChunkSize, fs: opts.Fs}
    if u.chunk <= 0 { u.chunk = DefaultChunkSize }
    if u.fs == nil { u.fs = afero.NewOsFs() }
    // The burst must hold a whole chunk or WaitN refuses it.
    if opts.RateBytesPerSec > 0 {
        burst := int(min(opts.RateBytesPerSec, int64(1<<30)))
        if burst < u.chunk { burst = u.chunk }
        u.limiter = rate.NewLimiter(rate.Limit(opts.RateBytesPerSec), burst)
    }
    return u
}

// UploadFile uploads path under its base name.
func (u *Uploader) UploadFile(ctx context.Context, path string) (uuid.UUID, error) {
    fi, err := u.fs.Stat(path)
    if err != nil { return uuid.Nil, err }
    if fi.IsDir() { return uuid.Nil, fmt.Errorf("%w: %s is a directory", protocol.ErrMsgDataInvalid, path) }
    f, err := u.fs.Open(path)
    if err != nil { return uuid.Nil, err }
    defer f.Close()
    return u.Upload(ctx, filepath.Base(path), f, fi.Size(), fi.ModTime())
}

// Upload sends size bytes from r as name. When ctx ends mid-transfer the
// session is cancelled on the receiver.
func (u *Uploader) Upload(ctx context.Context, name string, r io.Reader, size int64, modTime time.Time) (uuid.UUID, error) {
    if size < 0 { return uuid.Nil, fmt.Errorf("%w: size %d", protocol.ErrCountInvalid, size) }
    resp, err := u.conn.Request(ctx, &message.UploadFileBeginRequest{FileName: name, FileSize: size})
    if err != nil { return uuid.Nil, fmt.Errorf("begin upload: %w", err) }
    begin, ok := resp.(*message.UploadFileBeginResponse)
    if !ok { return uuid.Nil, fmt.Errorf("%w: begin answered with %s", protocol.ErrMalformedPayload, resp.TypeID()) }
    if !begin.AllowUpload { return uuid.Nil, fmt.Errorf("%w: %s", ErrRejected, begin.Message) }
    id := begin.SessionID

    if err := u.stream(ctx, id, r, size); err != nil {
        u.cancel(id)
        return id, err
    }

    resp, err = u.conn.Request(ctx, &message.UploadFileEndRequest{SessionID: id, LastWriteTime: modTime})
    if err != nil {
        u.cancel(id)
        return id, fmt.Errorf("end upload: %w", err)
    }
    end, ok := resp.(*message.UploadFileEndResponse)
    if !ok { return id, fmt.Errorf("%w: end answered with %s", protocol.ErrMalformedPayload, resp.TypeID()) }
    if !end.Success { return id, fmt.Errorf("%w: %s", ErrNotCompleted, end.Message) }
    return id, nil
}

func (u *Uploader) stream(ctx context.Context, id uuid.UUID, r io.Reader, size int64) error {
    buf := make([]byte, u.chunk)
    for sent := int64(0); sent < size; {
        if err := ctx.Err(); err != nil { return err }
        want := int64(len(buf))
        if rest := size - sent; rest < want { want = rest }
        n, err := io.ReadFull(r, buf[:want])
        if n > 0 {
            if u.limiter != nil {
                if werr := u.limiter.WaitN(ctx, n); werr != nil { return fmt.Errorf("throttle chunk: %w", werr) }
            }
            if serr := u.conn.Send(&message.UploadFileData{SessionID: id, Chunk: buf[:n]}); serr != nil {
                return fmt.Errorf("send chunk: %w", serr)
            }
            sent += int64(n)
        }
        if err != nil {
            if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
                return fmt.Errorf("%w: source ended after %d of %d bytes", protocol.ErrCountInvalid, sent, size)
            }
            return err
        }
    }
    return nil
}

// cancel asks the receiver to drop the session, independent of the caller's
// context which may already be done.
func (u *Uploader) cancel(id uuid.UUID) {
    ctx, stop := context.WithTimeout(context.Background(), 5*time.Second)
    defer stop()
    resp, err := u.conn.Request(ctx, &message.UploadFileCancelRequest{SessionID: id})
    if err != nil {
        zap.L().Debug("upload cancel failed", zap.String("session", id.String()), zap.Error(err))
        return
    }
    if c, ok := resp.(*message.UploadFileCancelResponse); ok && !c.Success {
        zap.L().Debug("upload cancel refused", zap.String("session", id.String()), zap.String("reason", c.Message))
    }
}
