package cmd

import (
    "fmt"

    "github.com/spf13/cobra"

    "github.com/autcn/SiS.Communcation-sub001/pkg/config"
)

var configCmd = &cobra.Command{
    Use:   "config",
    Short: "Show the effective configuration",
    RunE: func(cmd *cobra.Command, args []string) error {
        b, err := config.Marshal(cfg)
        if err != nil {
            return err
        }
        fmt.Fprint(cmd.OutOrStdout(), string(b))
        return nil
    },
}

var configInitCmd = &cobra.Command{
    Use:   "init <path>",
    Short: "Write a default configuration file",
    Args:  cobra.ExactArgs(1),
    RunE: func(cmd *cobra.Command, args []string) error {
        if err := config.Save(config.Default(), args[0]); err != nil {
            return fmt.Errorf("failed to write config: %w", err)
        }
        fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
        return nil
    },
}

func init() {
    configCmd.AddCommand(configInitCmd)
    rootCmd.AddCommand(configCmd)
}
