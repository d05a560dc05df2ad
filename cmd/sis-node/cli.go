package main

import (
    "flag"
    "os"
)

// Options holds CLI options for the node.
type Options struct {
    ConfigPath string
    // RelayGroup receives chat messages addressed to the server.
    RelayGroup string
}

// ParseFlags parses CLI flags from args and returns Options.
func ParseFlags(args []string) Options {
    fs := flag.NewFlagSet("sis-node", flag.ExitOnError)
    var opts Options
    fs.StringVar(&opts.ConfigPath, "config", "", "Path to YAML config file")
    fs.StringVar(&opts.RelayGroup, "relay-group", "Manager", "Group that receives chat messages sent to the server")
    _ = fs.Parse(args)
    return opts
}

func main() {
    os.Exit(run(ParseFlags(os.Args[1:])))
}
