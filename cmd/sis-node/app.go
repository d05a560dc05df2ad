package main

import (
    "context"
    "os"
    "os/signal"
    "strings"
    "syscall"

    "go.uber.org/zap"

    "github.com/autcn/SiS.Communcation-sub001/pkg/config"
    "github.com/autcn/SiS.Communcation-sub001/pkg/message"
    "github.com/autcn/SiS.Communcation-sub001/pkg/node"
    "github.com/autcn/SiS.Communcation-sub001/pkg/observability"
    "github.com/autcn/SiS.Communcation-sub001/pkg/protocol"
    "github.com/autcn/SiS.Communcation-sub001/pkg/transport"
)

// run is the main entry point after CLI parsing.
func run(opts Options) int {
    cfg, err := config.Load(opts.ConfigPath)
    if err != nil {
        _, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
        return 1
    }

    logger, err := observability.SetupLogger(cfg.Log)
    if err != nil {
        _, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
        return 1
    }
    defer func() { _ = logger.Sync() }()

    zap.L().Info("sis-node starting", zap.String("app", cfg.AppName))
    zap.L().Debug("effective configuration", zap.Any("config", cfg))

    sopts, err := node.ServerOptionsFromConfig(cfg)
    if err != nil {
        zap.L().Error("invalid server options", zap.Error(err))
        return 1
    }
    srv, err := node.NewServer(sopts)
    if err != nil {
        zap.L().Error("failed to create server", zap.Error(err))
        return 1
    }
    registerDemoHandlers(srv, opts.RelayGroup)

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    if err := srv.Start(ctx); err != nil {
        zap.L().Error("failed to start server", zap.Error(err))
        return 1
    }
    zap.L().Info("node is running; press Ctrl+C to exit", zap.Strings("listen", srv.Listeners()))
    <-ctx.Done()

    if err := srv.Stop(); err != nil {
        zap.L().Warn("stop", zap.Error(err))
    }
    return 0
}

// registerDemoHandlers answers echo requests and forwards chat messages sent
// to the server to relayGroup.
func registerDemoHandlers(srv *node.Server, relayGroup string) {
    node.OnRequest(srv, func(_ context.Context, conn transport.ConnID, req *message.EchoRequest) (protocol.Response, error) {
        zap.L().Debug("echo", zap.String("conn", string(conn)), zap.Int("len", len(req.Text)))
        return &message.EchoResponse{Text: req.Text}, nil
    })
    node.OnNotification(srv, func(_ context.Context, conn transport.ConnID, m *message.Chat) {
        if strings.TrimSpace(relayGroup) == "" { return }
        if m.From == "" { m.From = string(conn) }
        n, err := srv.SendGroupMessage([]string{relayGroup}, m)
        if err != nil {
            zap.L().Warn("chat relay failed", zap.Error(err))
            return
        }
        zap.L().Info("chat relayed", zap.String("from", m.From), zap.String("group", relayGroup), zap.Int("delivered", n))
    })
    srv.OnConnect(func(id transport.ConnID) { zap.L().Info("client connected", zap.String("conn", string(id))) })
    srv.OnDisconnect(func(id transport.ConnID) { zap.L().Info("client disconnected", zap.String("conn", string(id))) })
}
