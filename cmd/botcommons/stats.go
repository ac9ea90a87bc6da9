package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats [BUCKET...]",
		Short: "Print outcome counters shared in Redis",
		Long: `stats reads the counters that fire writes to Redis when --redis is set.
With bucket keys as arguments it prints those buckets as well.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rdb := a.redisClient()
			if rdb == nil {
				return errors.New("stats needs --redis or BOTCOMMONS_REDIS_ADDR")
			}
			defer rdb.Close()

			r := a.redisStats(rdb)
			ctx := cmd.Context()

			total, err := r.Total(ctx)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "BUCKET\tOK\tFAILED\tCANCELLED\tATTEMPTS\tTHROTTLES")
			fmt.Fprintf(tw, "*\t%d\t%d\t%d\t%d\t%d\n", total.Succeeded, total.Failed, total.Cancelled, total.Attempts, total.Throttles)

			for _, key := range args {
				c, err := r.Bucket(ctx, key)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n", key, c.Succeeded, c.Failed, c.Cancelled, c.Attempts, c.Throttles)
			}

			return tw.Flush()
		},
	}
}
