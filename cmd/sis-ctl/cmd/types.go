package cmd

import (
    "fmt"

    "github.com/spf13/cobra"

    "github.com/autcn/SiS.Communcation-sub001/pkg/message"
)

var typesCmd = &cobra.Command{
    Use:   "types",
    Short: "List the message type ids this build understands",
    RunE: func(cmd *cobra.Command, args []string) error {
        reg, err := message.NewRegistry()
        if err != nil {
            return err
        }
        for _, s := range reg.Shapes() {
            upload := ""
            if s.Upload { upload = "upload" }
            fmt.Fprintf(cmd.OutOrStdout(), "%-28s %-12s %s\n", s.TypeID, s.Kind, upload)
        }
        return nil
    },
}

func init() {
    rootCmd.AddCommand(typesCmd)
}
