package upload

import (
    "errors"
    "fmt"
    "io"
    "os"
    "path/filepath"
    "time"

    "github.com/google/uuid"
    "github.com/spf13/afero"
    "go.uber.org/zap"

    "github.com/autcn/SiS.Communcation-sub001/pkg/protocol"
)

// partialDir holds uploads that have not been committed yet.
const partialDir = ".partial"

// Store creates sinks for accepted uploads.
type Store interface {
    Create(id uuid.UUID, fileName string) (Sink, error)
}

// Sink receives the bytes of one upload.
type Sink interface {
    io.Writer
    // Commit makes the upload visible under its final name and applies
    // lastWrite when non-zero. It returns the final path.
    Commit(lastWrite time.Time) (string, error)
    // Discard drops partial data.
    Discard() error
}

// FileStore writes uploads into Dir on an afero filesystem. Partial data
// lives under Dir/.partial until committed.
type FileStore struct {
    fs  afero.Fs
    dir string
}

func NewFileStore(fs afero.Fs, dir string) *FileStore {
    if fs == nil { fs = afero.NewOsFs() }
    return &FileStore{fs: fs, dir: dir}
}

// Dir returns the directory completed uploads land in.
func (s *FileStore) Dir() string { return s.dir }

// Create rejects names that are not plain base names, whatever the policy
// admitted, so the committed file always lands directly inside Dir.
func (s *FileStore) Create(id uuid.UUID, fileName string) (Sink, error) {
    if err := ValidateFileName(fileName); err != nil { return nil, err }
    final := filepath.Join(s.dir, fileName)
    if filepath.Dir(final) != filepath.Clean(s.dir) {
        return nil, fmt.Errorf("%w: file name %q escapes the upload directory", protocol.ErrMsgDataInvalid, fileName)
    }
    partDir := filepath.Join(s.dir, partialDir)
    if err := s.fs.MkdirAll(partDir, 0o755); err != nil { return nil, fmt.Errorf("create upload dir: %w", err) }
    part := filepath.Join(partDir, id.String()+".part")
    f, err := s.fs.OpenFile(part, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
    if err != nil { return nil, fmt.Errorf("open partial file: %w", err) }
    return &fileSink{fs: s.fs, f: f, part: part, final: final}, nil
}

type fileSink struct {
    fs    afero.Fs
    f     afero.File
    part  string
    final string
}

func (k *fileSink) Write(p []byte) (int, error) { return k.f.Write(p) }

func (k *fileSink) Commit(lastWrite time.Time) (string, error) {
    if err := k.f.Close(); err != nil { return "", err }
    if err := k.fs.Remove(k.final); err != nil && !errors.Is(err, os.ErrNotExist) {
        return "", fmt.Errorf("replace %s: %w", k.final, err)
    }
    if err := k.fs.Rename(k.part, k.final); err != nil { return "", fmt.Errorf("commit upload: %w", err) }
    // The data is in place once renamed; a timestamp failure does not undo it.
    if !lastWrite.IsZero() {
        if err := k.fs.Chtimes(k.final, lastWrite, lastWrite); err != nil {
            zap.L().Warn("apply last write time", zap.String("path", k.final), zap.Error(err))
        }
    }
    return k.final, nil
}

func (k *fileSink) Discard() error {
    _ = k.f.Close()
    if err := k.fs.Remove(k.part); err != nil && !errors.Is(err, os.ErrNotExist) { return err }
    return nil
}
