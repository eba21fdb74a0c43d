package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/aweris/locstore"
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Sweep expired location metadata from the shared store",
	Args:  cobra.NoArgs,
	RunE:  runGC,
}

var countersCmd = &cobra.Command{
	Use:   "counters",
	Short: "Print the merged counter snapshot of all configured backends",
	Args:  cobra.NoArgs,
	RunE:  runCounters,
}

func init() {
	rootCmd.AddCommand(gcCmd)
	rootCmd.AddCommand(countersCmd)
}

func runGC(cmd *cobra.Command, args []string) error {
	return withRouter(func(ctx context.Context, router *locstore.Router) error {
		if err := router.GarbageCollect(ctx); err != nil {
			return err
		}
		fmt.Println("garbage collection complete")
		return nil
	})
}

func runCounters(cmd *cobra.Command, args []string) error {
	return withRouter(func(ctx context.Context, router *locstore.Router) error {
		counters, err := router.Counters(ctx)
		if err != nil {
			return err
		}
		names := make([]string, 0, len(counters))
		for name := range counters {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("%s\t%d\n", name, counters[name])
		}
		return nil
	})
}
