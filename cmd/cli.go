// SPDX-License-Identifier: MIT

// Package cmd parses command-line arguments into an Options value the way
// the teacher's cmd/cli.go parses into its Config: a cobra root command
// plus subcommands, a persistent --config flag, and one-off subcommands
// that set Options.Command and let main.go dispatch before standing up
// the serving path.
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"ultrasonic/pkg/build"
)

// Options is what ParseArgs hands back to main.go: which command to run,
// and the config file path to load for the serve/console paths.
type Options struct {
	Command    string
	ConfigPath string
}

const (
	// CommandServe runs the device manager and façade headless until signaled.
	CommandServe = "serve"
	// CommandList enumerates audio devices and exits.
	CommandList = "list"
	// CommandConsole runs the serving path plus the operator TUI in the
	// foreground, rather than running headless.
	CommandConsole = "console"
)

// ParseArgs builds the cobra command tree and executes it against
// os.Args, returning the resolved Options.
func ParseArgs() (*Options, error) {
	buildInfo := build.GetBuildFlags()
	opts := &Options{Command: CommandServe}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         "Headless ultrasonic spectrum service",
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Command = CommandServe
			return nil
		},
	}
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})
	rootCmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "f", "",
		"Path to a YAML config file. Defaults to ./config.yaml if present.")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio input devices and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Command = CommandList
			return nil
		},
	}
	rootCmd.AddCommand(listCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the device manager and HTTP/SSE façade (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Command = CommandServe
			return nil
		},
	}
	rootCmd.AddCommand(serveCmd)

	consoleCmd := &cobra.Command{
		Use:   "console",
		Short: "Run the service with an interactive operator console in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Command = CommandConsole
			return nil
		},
	}
	rootCmd.AddCommand(consoleCmd)

	rootCmd.SetArgs(os.Args[1:])
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}

	return opts, nil
}
