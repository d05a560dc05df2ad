package upload

import (
    "context"
    "fmt"
    "strings"

    "github.com/google/uuid"

    "github.com/autcn/SiS.Communcation-sub001/pkg/protocol"
    "github.com/autcn/SiS.Communcation-sub001/pkg/transport"
)

// Admission describes an upload asking to be accepted.
type Admission struct {
    SessionID uuid.UUID
    Conn      transport.ConnID
    FileName  string
    FileSize  int64
}

// Policy decides whether an upload is accepted. A non-nil error rejects it
// and its text is sent back to the uploader.
type Policy interface {
    Admit(ctx context.Context, a Admission) error
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(ctx context.Context, a Admission) error

func (f PolicyFunc) Admit(ctx context.Context, a Admission) error { return f(ctx, a) }

// DefaultPolicy validates the file name and size.
type DefaultPolicy struct {
    // MaxFileSize rejects larger uploads when positive.
    MaxFileSize int64
}

func (p DefaultPolicy) Admit(_ context.Context, a Admission) error {
    if err := ValidateFileName(a.FileName); err != nil { return err }
    if a.FileSize < 0 { return fmt.Errorf("%w: file size %d", protocol.ErrCountInvalid, a.FileSize) }
    if p.MaxFileSize > 0 && a.FileSize > p.MaxFileSize {
        return fmt.Errorf("%w: file size %d exceeds limit %d", protocol.ErrCountInvalid, a.FileSize, p.MaxFileSize)
    }
    return nil
}

// ValidateFileName accepts plain base names only.
func ValidateFileName(name string) error {
    switch {
    case strings.TrimSpace(name) == "":
        return fmt.Errorf("%w: empty file name", protocol.ErrMsgDataInvalid)
    case name == "." || name == ".." || name == partialDir:
        return fmt.Errorf("%w: invalid file name %q", protocol.ErrMsgDataInvalid, name)
    case strings.ContainsAny(name, "/\\:\x00"):
        return fmt.Errorf("%w: file name %q must not contain a path", protocol.ErrMsgDataInvalid, name)
    }
    return nil
}

// Chain admits an upload only if every policy does.
func Chain(ps ...Policy) Policy {
    return PolicyFunc(func(ctx context.Context, a Admission) error {
        for _, p := range ps {
            if err := p.Admit(ctx, a); err != nil { return err }
        }
        return nil
    })
}
