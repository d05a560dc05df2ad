package cmd

import (
    "context"
    "fmt"
    "os"
    "os/signal"
    "strings"

    "github.com/spf13/cobra"

    "github.com/autcn/SiS.Communcation-sub001/pkg/message"
    "github.com/autcn/SiS.Communcation-sub001/pkg/node"
    "github.com/autcn/SiS.Communcation-sub001/pkg/transport"
)

var (
    sendGroups []string
    sendFrom   string
)

var echoCmd = &cobra.Command{
    Use:   "echo <text>",
    Short: "Send an echo request and print the reply",
    Args:  cobra.MinimumNArgs(1),
    RunE: func(cmd *cobra.Command, args []string) error {
        return withClient(cmd.Context(), func(ctx context.Context, c *node.Client) error {
            resp, err := node.Call[*message.EchoResponse](ctx, c, &message.EchoRequest{Text: strings.Join(args, " ")})
            if err != nil {
                return fmt.Errorf("echo failed: %w", err)
            }
            fmt.Fprintln(cmd.OutOrStdout(), resp.Text)
            return nil
        })
    },
}

var sendCmd = &cobra.Command{
    Use:   "send <text>",
    Short: "Send a chat message to one or more groups",
    Args:  cobra.MinimumNArgs(1),
    RunE: func(cmd *cobra.Command, args []string) error {
        return withClient(cmd.Context(), func(ctx context.Context, c *node.Client) error {
            n, err := c.SendGroupMessage(ctx, sendGroups, &message.Chat{From: sendFrom, Text: strings.Join(args, " ")})
            if err != nil {
                return fmt.Errorf("group send failed: %w", err)
            }
            fmt.Fprintf(cmd.OutOrStdout(), "delivered to %d member(s) of %s\n", n, strings.Join(sendGroups, ","))
            return nil
        })
    },
}

var joinCmd = &cobra.Command{
    Use:   "join <group>...",
    Short: "Join groups and print chat messages until interrupted",
    Args:  cobra.MinimumNArgs(1),
    RunE: func(cmd *cobra.Command, args []string) error {
        ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
        defer stop()
        return withClient(ctx, func(ctx context.Context, c *node.Client) error {
            out := cmd.OutOrStdout()
            node.OnNotification(c, func(_ context.Context, _ transport.ConnID, m *message.Chat) {
                fmt.Fprintf(out, "[%s] %s\n", m.From, m.Text)
            })
            for _, g := range args {
                if err := c.JoinGroup(g); err != nil {
                    return fmt.Errorf("join %s: %w", g, err)
                }
            }
            fmt.Fprintf(out, "joined %s; waiting for messages\n", strings.Join(args, ","))
            <-ctx.Done()
            return nil
        })
    },
}

func init() {
    sendCmd.Flags().StringSliceVarP(&sendGroups, "group", "g", []string{"Manager"}, "target group (repeatable)")
    sendCmd.Flags().StringVar(&sendFrom, "from", "sis-ctl", "sender name shown to recipients")
    rootCmd.AddCommand(echoCmd, sendCmd, joinCmd)
}
