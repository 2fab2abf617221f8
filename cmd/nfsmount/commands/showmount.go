package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/nfsmount/internal/mount"
)

var showmountExports bool

var showmountCmd = &cobra.Command{
	Use:   "showmount [address]",
	Short: "List a server's active client mounts or exported directories",
	Long: `showmount establishes a MOUNT protocol mount to address and issues
DUMP (the default) to list clients the server has recorded as currently
mounted, or EXPORT with --exports to list the directories it exports and
the client groups authorized to mount each one.`,
	Args: cobra.ExactArgs(1),
	RunE: runShowmount,
}

func init() {
	showmountCmd.Flags().BoolVarP(&showmountExports, "exports", "e", false, "Show exported directories instead of active mounts")
}

func runShowmount(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), Flags.Timeout)
	defer cancel()

	c, err := mount.Dial(ctx, Flags.Network, args[0], nil, Flags.Timeout)
	if err != nil {
		return fmt.Errorf("showmount: %w", err)
	}
	defer c.Close()

	if showmountExports {
		exports, err := c.Export(ctx)
		if err != nil {
			return fmt.Errorf("showmount: %w", err)
		}
		for _, e := range exports {
			fmt.Printf("%s %s\n", e.Directory, strings.Join(e.Groups, ","))
		}
		return nil
	}

	entries, err := c.Dump(ctx)
	if err != nil {
		return fmt.Errorf("showmount: %w", err)
	}
	for _, e := range entries {
		fmt.Printf("%s:%s\n", e.Hostname, e.Directory)
	}
	return nil
}
