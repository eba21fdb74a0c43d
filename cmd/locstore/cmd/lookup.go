package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aweris/locstore"
)

var lookupLocal bool

var lookupCmd = &cobra.Command{
	Use:   "lookup <hash>...",
	Short: "Look up which machines hold the given hashes",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runLookup,
}

func init() {
	lookupCmd.Flags().BoolVar(&lookupLocal, "local", false, "prefer the locally replicated view")
	rootCmd.AddCommand(lookupCmd)
}

func runLookup(cmd *cobra.Command, args []string) error {
	return withRouter(func(ctx context.Context, router *locstore.Router) error {
		hashes := make([]locstore.ContentHash, len(args))
		for i, a := range args {
			hashes[i] = locstore.ContentHash(a)
		}
		origin := locstore.OriginGlobal
		if lookupLocal {
			origin = locstore.OriginLocal
		}

		locs, err := router.Lookup(ctx, hashes, origin)
		if err != nil {
			return err
		}
		for _, h := range hashes {
			set, ok := locs[h]
			if !ok {
				fmt.Printf("%s\t(no locations)\n", h)
				continue
			}
			for _, m := range set.Machines {
				fmt.Printf("%s\t%s\t%d\n", h, m, set.Size)
			}
		}
		return nil
	})
}

// withRouter builds a router from config, starts it, runs fn and stops it.
func withRouter(fn func(ctx context.Context, router *locstore.Router) error) (err error) {
	log := buildLogger()
	defer log.Sync()

	router, err := buildRouter(log)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := router.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if serr := router.Stop(ctx); serr != nil && err == nil {
			err = serr
		}
	}()

	return fn(ctx, router)
}
