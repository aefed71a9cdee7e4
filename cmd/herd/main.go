package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is stamped by the release build via -ldflags.
var version = "dev"

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		if exitCode == 0 {
			exitCode = 1
		}
	}
	os.Exit(exitCode)
}

// exitCode is what herd exits with; run propagates the child's code here.
var exitCode int

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
}

// buildRoot creates the root command and wires all subcommands.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	runFlags := &RunFlags{}
	statusFlags := &StatusFlags{}
	waitFlags := &WaitFlags{}
	killFlags := &KillFlags{}
	serveFlags := &ServeFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createRunCommand(globalFlags, runFlags),
		createStatusCommand(globalFlags, statusFlags),
		createWaitCommand(globalFlags, waitFlags),
		createKillCommand(globalFlags, killFlags),
		createSweepCommand(globalFlags),
		createServeCommand(globalFlags, serveFlags),
		createVersionCommand(),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "herd",
		Short: "Supervise AI coding agent tasks across processes",
		Long: `Herd launches AI coding agents (claude, codex, gemini) as supervised
tasks and tracks them in a registry shared by every herd invocation under the
same shell session.

Examples:
  herd run claude -- -p "fix the failing test"
  herd status
  herd wait                  # Block until all running tasks finish
  herd kill --pid 12345
  herd serve                 # Monitoring HTTP API + metrics`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the herd version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("herd %s\n", version)
		},
	}
}
