package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aweris/locstore"
)

var trimCmd = &cobra.Command{
	Use:   "trim <hash>...",
	Short: "Remove all location records for the given hashes",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTrim,
}

var touchCmd = &cobra.Command{
	Use:   "touch <machine> <hash>...",
	Short: "Refresh expiry of a machine's records",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runTouch,
}

func init() {
	rootCmd.AddCommand(trimCmd)
	rootCmd.AddCommand(touchCmd)
}

func runTrim(cmd *cobra.Command, args []string) error {
	hashes := make([]locstore.ContentHash, len(args))
	for i, a := range args {
		hashes[i] = locstore.ContentHash(a)
	}
	return withRouter(func(ctx context.Context, router *locstore.Router) error {
		if err := router.TrimByHashes(ctx, hashes); err != nil {
			return err
		}
		fmt.Printf("trimmed %d hashes\n", len(hashes))
		return nil
	})
}

func runTouch(cmd *cobra.Command, args []string) error {
	machine := locstore.MachineLocation(args[0])
	hashes := make([]locstore.ContentHash, len(args)-1)
	for i, a := range args[1:] {
		hashes[i] = locstore.ContentHash(a)
	}
	return withRouter(func(ctx context.Context, router *locstore.Router) error {
		if err := router.Touch(ctx, machine, hashes); err != nil {
			return err
		}
		fmt.Printf("touched %d hashes for %s\n", len(hashes), machine)
		return nil
	})
}
