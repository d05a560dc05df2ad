package cmd

import (
    "context"
    "fmt"

    "github.com/spf13/cobra"

    "github.com/autcn/SiS.Communcation-sub001/pkg/node"
)

var uploadCmd = &cobra.Command{
    Use:   "upload <file>...",
    Short: "Upload files to the node",
    Args:  cobra.MinimumNArgs(1),
    RunE: func(cmd *cobra.Command, args []string) error {
        return withClient(cmd.Context(), func(ctx context.Context, c *node.Client) error {
            for _, path := range args {
                id, err := c.UploadFile(ctx, path)
                if err != nil {
                    return fmt.Errorf("upload %s: %w", path, err)
                }
                fmt.Fprintf(cmd.OutOrStdout(), "%s uploaded (session %s)\n", path, id)
            }
            return nil
        })
    },
}

func init() {
    rootCmd.AddCommand(uploadCmd)
}
