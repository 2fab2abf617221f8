// Package commands implements the nfsmount CLI commands.
package commands

import (
	"time"

	"github.com/spf13/cobra"
)

// Version information injected at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Flags holds the persistent flags shared by every subcommand, synced in
// PersistentPreRun the way the teacher's cmdutil.Flags struct is.
var Flags struct {
	Network string
	Timeout time.Duration
	Profile string
}

var rootCmd = &cobra.Command{
	Use:   "nfsmount",
	Short: "NFS client transport core - connect search and diagnostics",
	Long: `nfsmount drives the Connect Search / Send Engine transport core
directly against an NFS, MOUNT, or portmapper/rpcbind service, without
going through the kernel's mount(2) path.

Use "nfsmount [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		Flags.Network, _ = cmd.Flags().GetString("network")
		Flags.Timeout, _ = cmd.Flags().GetDuration("timeout")
		Flags.Profile, _ = cmd.Flags().GetString("profile")
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().String("network", "tcp", "Transport network (tcp|udp)")
	rootCmd.PersistentFlags().Duration("timeout", 10*time.Second, "Per-call and search timeout")
	rootCmd.PersistentFlags().String("profile", "", "Path to a mount-profile YAML file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(showmountCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
