package cmd

import (
    "bytes"
    "context"
    "os"
    "path/filepath"
    "strings"
    "testing"

    "github.com/spf13/afero"

    "github.com/autcn/SiS.Communcation-sub001/pkg/config"
    "github.com/autcn/SiS.Communcation-sub001/pkg/message"
    "github.com/autcn/SiS.Communcation-sub001/pkg/node"
    "github.com/autcn/SiS.Communcation-sub001/pkg/protocol"
    "github.com/autcn/SiS.Communcation-sub001/pkg/transport"
    "github.com/autcn/SiS.Communcation-sub001/pkg/upload"
)

func executeCommand(args ...string) (string, error) {
    buf := new(bytes.Buffer)
    root := RootCmd()
    root.SetOut(buf)
    root.SetErr(buf)
    root.SetArgs(args)
    err := root.Execute()
    return buf.String(), err
}

func writeConfig(t *testing.T) string {
    t.Helper()
    path := filepath.Join(t.TempDir(), "sis.yaml")
    out, err := executeCommand("--config=", "config", "init", path)
    if err != nil { t.Fatalf("config init: %v", err) }
    if !strings.Contains(out, "wrote") { t.Fatalf("unexpected output: %s", out) }
    return path
}

func startServer(t *testing.T, name string, fs afero.Fs) *node.Server {
    t.Helper()
    srv, err := node.NewServer(node.ServerOptions{
        Transports:  []config.TransportConfig{{Kind: "shared", Listen: []string{name}}},
        UploadStore: upload.NewFileStore(fs, "in"),
    })
    if err != nil { t.Fatalf("server: %v", err) }
    node.OnRequest(srv, func(_ context.Context, _ transport.ConnID, req *message.EchoRequest) (protocol.Response, error) {
        return &message.EchoResponse{Text: "re: " + req.Text}, nil
    })
    if err := srv.Start(context.Background()); err != nil { t.Fatalf("start: %v", err) }
    t.Cleanup(func() { _ = srv.Stop() })
    return srv
}

func TestConfigCommandPrintsYAML(t *testing.T) {
    path := writeConfig(t)
    out, err := executeCommand("--config", path, "config")
    if err != nil { t.Fatalf("config: %v", err) }
    for _, want := range []string{"app_name: sis-node", "request_timeout_ms: 30000", "kind: tcp"} {
        if !strings.Contains(out, want) { t.Errorf("missing %q in:\n%s", want, out) }
    }
}

func TestEchoCommand(t *testing.T) {
    path := writeConfig(t)
    startServer(t, "sis-ctl-echo", afero.NewMemMapFs())
    out, err := executeCommand("--config", path, "--kind", "shared", "--addr", "sis-ctl-echo", "echo", "hello", "there")
    if err != nil { t.Fatalf("echo: %v", err) }
    if strings.TrimSpace(out) != "re: hello there" { t.Fatalf("out=%q", out) }
}

func TestSendCommandReportsDelivery(t *testing.T) {
    path := writeConfig(t)
    startServer(t, "sis-ctl-send", afero.NewMemMapFs())
    out, err := executeCommand("--config", path, "--kind", "shared", "--addr", "sis-ctl-send", "send", "-g", "Nobody", "anyone?")
    if err != nil { t.Fatalf("send: %v", err) }
    if !strings.Contains(out, "delivered to 0 member(s) of Nobody") { t.Fatalf("out=%q", out) }
}

func TestUploadCommand(t *testing.T) {
    path := writeConfig(t)
    fs := afero.NewMemMapFs()
    startServer(t, "sis-ctl-upload", fs)

    src := filepath.Join(t.TempDir(), "notes.txt")
    if err := os.WriteFile(src, []byte("some notes"), 0o644); err != nil { t.Fatalf("write: %v", err) }
    out, err := executeCommand("--config", path, "--kind", "shared", "--addr", "sis-ctl-upload", "upload", src)
    if err != nil { t.Fatalf("upload: %v", err) }
    if !strings.Contains(out, "uploaded") { t.Fatalf("out=%q", out) }
    b, err := afero.ReadFile(fs, "in/notes.txt")
    if err != nil || string(b) != "some notes" { t.Fatalf("stored=%q err=%v", b, err) }
}

func TestConnectFailureIsReported(t *testing.T) {
    path := writeConfig(t)
    _, err := executeCommand("--config", path, "--kind", "shared", "--addr", "sis-ctl-nobody", "echo", "x")
    if err == nil || !strings.Contains(err.Error(), "connect shared sis-ctl-nobody") { t.Fatalf("err=%v", err) }
}

func TestTypesCommandListsRegistry(t *testing.T) {
    out, err := executeCommand("--config=", "types")
    if err != nil { t.Fatalf("types: %v", err) }
    lines := strings.Split(strings.TrimSpace(out), "\n")
    if len(lines) != len(message.Shapes()) { t.Fatalf("got %d lines for %d shapes:\n%s", len(lines), len(message.Shapes()), out) }
    prev := ""
    for _, l := range lines {
        id := strings.Fields(l)[0]
        if id < prev { t.Fatalf("%s listed after %s", id, prev) }
        prev = id
    }
    for _, want := range []string{"chat.message", "echo.request", "upload.data"} {
        if !strings.Contains(out, want) { t.Errorf("missing %q", want) }
    }
    for _, l := range lines {
        if strings.HasPrefix(l, "upload.data ") && !strings.Contains(l, "notification") { t.Fatalf("upload.data line: %q", l) }
        if strings.HasPrefix(l, "upload.") != strings.HasSuffix(l, "upload") { t.Fatalf("upload flag: %q", l) }
    }
}
