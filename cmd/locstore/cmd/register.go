package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aweris/locstore"
)

var registerTouch bool

var registerCmd = &cobra.Command{
	Use:   "register <machine> <hash[:size]>...",
	Short: "Register blob replicas held by a machine",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runRegister,
}

func init() {
	registerCmd.Flags().BoolVar(&registerTouch, "touch", true, "refresh expiry of already-known records")
	rootCmd.AddCommand(registerCmd)
}

func runRegister(cmd *cobra.Command, args []string) error {
	machine := locstore.MachineLocation(args[0])

	blobs := make([]locstore.BlobRecord, 0, len(args)-1)
	for _, arg := range args[1:] {
		hash, sizeStr, found := strings.Cut(arg, ":")
		rec := locstore.BlobRecord{Hash: locstore.ContentHash(hash)}
		if found {
			size, err := strconv.ParseInt(sizeStr, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid size in %q: %w", arg, err)
			}
			rec.Size = size
		}
		blobs = append(blobs, rec)
	}

	return withRouter(func(ctx context.Context, router *locstore.Router) error {
		if err := router.Register(ctx, machine, blobs, registerTouch); err != nil {
			return err
		}
		fmt.Printf("registered %d blobs for %s\n", len(blobs), machine)
		return nil
	})
}
