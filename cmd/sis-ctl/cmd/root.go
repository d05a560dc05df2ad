// Package cmd implements the sis-ctl command tree.
package cmd

import (
    "context"
    "fmt"
    "os"
    "time"

    "github.com/spf13/cobra"

    "github.com/autcn/SiS.Communcation-sub001/pkg/config"
    "github.com/autcn/SiS.Communcation-sub001/pkg/node"
    "github.com/autcn/SiS.Communcation-sub001/pkg/observability"
)

var (
    // Global flags
    cfgFile  string
    kindFlag string
    addrFlag string
    timeout  time.Duration
    verbose  bool

    // Shared state set during PersistentPreRun
    cfg *config.Config
)

var rootCmd = &cobra.Command{
    Use:   "sis-ctl",
    Short: "Talk to a sis-node: echo, group messages, uploads",
    Long: `sis-ctl connects to a sis-node over any configured transport
(tcp, udp, quic, pipe or shared) and exchanges typed messages with it.`,
    SilenceUsage:  true,
    SilenceErrors: true,
    PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
        var err error
        cfg, err = config.Load(cfgFile)
        if err != nil {
            return fmt.Errorf("failed to load config: %w", err)
        }
        cfg.Log.Outputs = []string{"stderr"}
        cfg.Log.Rotation.Enable = false
        if verbose {
            cfg.Log.Level = "debug"
        } else {
            cfg.Log.Level = "warn"
        }
        _, err = observability.SetupLogger(cfg.Log)
        return err
    },
}

// Execute runs the root command.
func Execute() {
    if err := rootCmd.Execute(); err != nil {
        fmt.Fprintln(os.Stderr, "Error:", err)
        os.Exit(1)
    }
}

// RootCmd returns the root cobra.Command for testing purposes.
func RootCmd() *cobra.Command {
    return rootCmd
}

func init() {
    rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./sis.yaml or ~/.sis/sis.yaml)")
    rootCmd.PersistentFlags().StringVar(&kindFlag, "kind", "", "transport kind: tcp, udp, quic, pipe, shared")
    rootCmd.PersistentFlags().StringVar(&addrFlag, "addr", "", "server address (overrides the first dial entry)")
    rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "dial and request timeout")
    rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log protocol activity to stderr")
}

// clientOptions builds client options from the loaded config and flags.
func clientOptions() (node.ClientOptions, error) {
    if kindFlag != "" || addrFlag != "" {
        kind, target, _ := cfg.FirstDial()
        if kindFlag != "" { kind = kindFlag }
        if addrFlag != "" { target.Address = addrFlag }
        cfg.Transports = []config.TransportConfig{{Kind: kind, Dial: []config.DialConfig{target}}}
    }
    opts, err := node.ClientOptionsFromConfig(cfg)
    if err != nil { return opts, err }
    if timeout > 0 { opts.RequestTimeout = timeout }
    opts.Backoff.Attempts = 1
    return opts, nil
}

// withClient connects, runs fn and disconnects.
func withClient(ctx context.Context, fn func(ctx context.Context, c *node.Client) error) error {
    opts, err := clientOptions()
    if err != nil { return err }
    c, err := node.NewClient(opts)
    if err != nil { return err }
    dctx, cancel := ctx, context.CancelFunc(func() {})
    if timeout > 0 { dctx, cancel = context.WithTimeout(ctx, timeout) }
    err = c.Connect(dctx)
    cancel()
    if err != nil { return fmt.Errorf("connect %s %s: %w", opts.Kind, opts.Address, err) }
    defer c.Close()
    return fn(ctx, c)
}
