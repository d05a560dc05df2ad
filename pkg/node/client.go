package node

import (
    "context"
    "fmt"
    "io"
    "sync"
    "time"

    "github.com/google/uuid"
    "go.uber.org/zap"

    "github.com/autcn/SiS.Communcation-sub001/pkg/config"
    "github.com/autcn/SiS.Communcation-sub001/pkg/core/netstack"
    "github.com/autcn/SiS.Communcation-sub001/pkg/message"
    "github.com/autcn/SiS.Communcation-sub001/pkg/protocol"
    "github.com/autcn/SiS.Communcation-sub001/pkg/transport"
    "github.com/autcn/SiS.Communcation-sub001/pkg/upload"
)

// ClientOptions configure a Client.
type ClientOptions struct {
    Kind    string
    Address string

    Format         protocol.Format
    RequestTimeout time.Duration
    MaxFrame       int
    InboxSize      int
    Backoff        netstack.Backoff
    Registry       *protocol.Registry
    Upload         upload.UploaderOptions
}

// ClientOptionsFromConfig derives client options from cfg, targeting the
// first configured dial entry.
func ClientOptionsFromConfig(cfg *config.Config) (ClientOptions, error) {
    f, err := protocol.ParseFormat(cfg.Protocol.Format)
    if err != nil { return ClientOptions{}, err }
    kind, target, ok := cfg.FirstDial()
    if !ok { return ClientOptions{}, fmt.Errorf("no dial target configured") }
    return ClientOptions{
        Kind:           kind,
        Address:        target.Address,
        Format:         f,
        RequestTimeout: cfg.Protocol.RequestTimeout(),
        MaxFrame:       cfg.Protocol.MaxFrameBytes,
        InboxSize:      cfg.Protocol.InboxSize,
        Backoff:        netstack.BackoffFromConfig(cfg.Net),
        Upload: upload.UploaderOptions{
            ChunkSize:       cfg.Upload.ChunkBytes,
            RateBytesPerSec: cfg.Upload.RateBytesPerSec,
        },
    }, nil
}

// Client holds one connection to a Server.
type Client struct {
    *endpoint
    opts ClientOptions

    // life serializes Connect and Close; mu guards id only, so handlers may
    // use the client while Close waits for them.
    life   sync.Mutex
    cancel context.CancelFunc
    done   <-chan struct{}

    mu sync.Mutex
    id transport.ConnID
}

func NewClient(opts ClientOptions) (*Client, error) {
    if _, err := transport.ParseKind(opts.Kind); err != nil { return nil, err }
    if opts.Address == "" { return nil, fmt.Errorf("%w: empty address", protocol.ErrMsgDataInvalid) }
    ep, err := newEndpoint("client", opts.Registry, opts.Format, opts.RequestTimeout, opts.InboxSize)
    if err != nil { return nil, err }
    return &Client{endpoint: ep, opts: opts}, nil
}

// Connect dials the server, retrying with backoff. ctx bounds only the dial;
// the connection stays up until Close or until the server drops it.
// Connecting an already connected client is a no-op.
func (c *Client) Connect(ctx context.Context) error {
    c.life.Lock()
    defer c.life.Unlock()
    if c.Connected() { return nil }
    c.teardownLocked()

    tr, err := netstack.NewByKind(c.opts.Kind, c.opts.MaxFrame)
    if err != nil { return err }
    sess, err := netstack.Dial(ctx, tr, c.opts.Address, c.opts.Backoff)
    if err != nil { return err }

    runCtx, cancel := context.WithCancel(context.Background())
    c.setContext(runCtx)
    id, done := netstack.Attach(runCtx, sess, c.conns, events{c.endpoint})
    c.cancel, c.done = cancel, done
    c.setID(id)
    zap.L().Info("client connected", zap.String("kind", c.opts.Kind), zap.String("addr", c.opts.Address), zap.String("conn", string(id)))
    return nil
}

// Close disconnects and waits for queued messages to be processed.
func (c *Client) Close() error {
    c.life.Lock()
    defer c.life.Unlock()
    c.teardownLocked()
    return nil
}

func (c *Client) teardownLocked() {
    if c.cancel == nil { return }
    c.logPending("closing with requests in flight")
    c.cancel()
    <-c.done
    c.waitWorkers()
    c.cancel, c.done = nil, nil
    c.setID("")
}

func (c *Client) setID(id transport.ConnID) {
    c.mu.Lock()
    c.id = id
    c.mu.Unlock()
}

// Connected reports whether the connection is up.
func (c *Client) Connected() bool {
    _, err := c.conn()
    return err == nil
}

func (c *Client) conn() (transport.ConnID, error) {
    c.mu.Lock()
    id := c.id
    c.mu.Unlock()
    if id == "" { return "", protocol.ErrClientNotConnected }
    if _, ok := c.conns.Get(id); !ok { return "", protocol.ErrClientNotConnected }
    return id, nil
}

// ID returns the local id of the current connection.
func (c *Client) ID() transport.ConnID {
    id, _ := c.conn()
    return id
}

// Send delivers msg to the server without waiting for an answer.
func (c *Client) Send(msg protocol.Message) error {
    id, err := c.conn()
    if err != nil { return err }
    return c.send(id, msg)
}

// Request sends req and waits for its response, the configured timeout or
// ctx, whichever comes first.
func (c *Client) Request(ctx context.Context, req protocol.Request) (protocol.Response, error) {
    id, err := c.conn()
    if err != nil { return nil, err }
    return c.call(ctx, id, req)
}

func (c *Client) JoinGroup(group string) error { return c.Send(&message.JoinGroup{Group: group}) }

func (c *Client) LeaveGroup(group string) error { return c.Send(&message.LeaveGroup{Group: group}) }

// SendGroupMessage asks the server to deliver msg to every member of groups
// and returns the number of members it reached.
func (c *Client) SendGroupMessage(ctx context.Context, groups []string, msg protocol.Message) (int, error) {
    if len(groups) == 0 { return 0, fmt.Errorf("%w: no groups", protocol.ErrCountInvalid) }
    frame, err := c.codec.Marshal(msg)
    if err != nil { return 0, err }
    resp, err := Call[*message.GroupSendResponse](ctx, c, &message.GroupSendRequest{Groups: groups, Frame: frame})
    if err != nil { return 0, err }
    return resp.Delivered, nil
}

// Upload sends size bytes from r to the server as name.
func (c *Client) Upload(ctx context.Context, name string, r io.Reader, size int64, modTime time.Time) (uuid.UUID, error) {
    return upload.NewUploader(c, c.opts.Upload).Upload(ctx, name, r, size, modTime)
}

// UploadFile uploads a local file under its base name.
func (c *Client) UploadFile(ctx context.Context, path string) (uuid.UUID, error) {
    return upload.NewUploader(c, c.opts.Upload).UploadFile(ctx, path)
}
