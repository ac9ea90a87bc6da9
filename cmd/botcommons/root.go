package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/adamwoolhether/botcommons"
	"github.com/adamwoolhether/botcommons/client"
	"github.com/adamwoolhether/botcommons/dispatch"
	"github.com/adamwoolhether/botcommons/dispatch/stats"
)

// app carries what every command needs.
type app struct {
	cfg     config
	stdout  io.Writer
	stderr  io.Writer
	environ []string
	logger  *slog.Logger
}

// newRootCmd creates the root command.
func newRootCmd(stdout, stderr io.Writer, environ []string) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr, environ: environ}

	rootCmd := &cobra.Command{
		Use:   "botcommons",
		Short: "Send HTTP requests through a rate-limited dispatcher",
		Long: `botcommons fires batches of HTTP requests through a bucketed,
rate-limited dispatcher and reports how they resolved.

Every flag can also be set with a BOTCOMMONS_* environment variable,
for example BOTCOMMONS_MAX_IN_FLIGHT=4. Flags win over the environment.`,
		Version:       botcommons.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := applyEnvOverrides(&a.cfg, a.environ, cmd.Flags().Changed); err != nil {
				return err
			}

			level := slog.LevelInfo
			if a.cfg.verbose {
				level = slog.LevelDebug
			}
			a.logger = slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: level}))

			return nil
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfg.userAgent, "user-agent", botcommons.DefaultUserAgent, "User-Agent for requests")
	flags.DurationVar(&a.cfg.timeout, "timeout", 30*time.Second, "Per-attempt HTTP timeout")
	flags.IntVar(&a.cfg.rps, "rps", 0, "Client-side requests per second (0 = unpaced)")
	flags.IntVar(&a.cfg.burst, "burst", 1, "Client-side burst when --rps is set")
	flags.IntVar(&a.cfg.maxInFlight, "max-in-flight", 0, "Ceiling on concurrent requests across buckets (0 = none)")
	flags.IntVar(&a.cfg.globalRate, "global-rate", 0, "Requests per second across all buckets (0 = none)")
	flags.BoolVar(&a.cfg.globalWindow, "global-window", false, "Pause every bucket on a global throttle response")
	flags.StringVar(&a.cfg.proxy, "proxy", "", "Proxy URL")
	flags.StringVar(&a.cfg.noProxy, "no-proxy", "", "Hosts that bypass --proxy, comma separated")
	flags.StringVar(&a.cfg.redisAddr, "redis", "", "Redis address for shared outcome counters")
	flags.StringVar(&a.cfg.redisPrefix, "redis-prefix", "", "Key prefix for Redis counters")
	flags.BoolVar(&a.cfg.noProgress, "no-progress", false, "Never draw a progress bar")
	flags.BoolVarP(&a.cfg.verbose, "verbose", "v", false, "Log every exchange")

	rootCmd.AddCommand(
		newFireCmd(a),
		newStatsCmd(a),
		newVersionCmd(a),
	)

	return rootCmd
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(a.stdout, "botcommons %s\n", botcommons.Version)
			return err
		},
	}
}

// redisClient returns nil when no address is configured.
func (a *app) redisClient() *redis.Client {
	if a.cfg.redisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: a.cfg.redisAddr})
}

func (a *app) redisStats(rdb *redis.Client) *stats.Redis {
	var opts []stats.RedisOption
	if a.cfg.redisPrefix != "" {
		opts = append(opts, stats.WithPrefix(a.cfg.redisPrefix))
	}
	return stats.NewRedis(rdb, opts...)
}

// newWeb wires the client and dispatcher from the shared flags.
func (a *app) newWeb(recorder stats.Recorder) (*botcommons.Web, error) {
	clientOpts := []client.Option{
		client.WithLogger(a.logger),
		client.WithTimeout(a.cfg.timeout),
	}
	if a.cfg.rps > 0 {
		clientOpts = append(clientOpts, client.WithThrottle(a.cfg.rps, a.cfg.burst))
	}
	if a.cfg.proxy != "" {
		clientOpts = append(clientOpts, client.WithProxy(a.cfg.proxy, a.cfg.noProxy))
	}

	dispatchOpts := []dispatch.Option{
		dispatch.WithLogger(a.logger),
		dispatch.WithMaxInFlight(a.cfg.maxInFlight),
		dispatch.WithRecorder(recorder),
	}
	if a.cfg.globalWindow {
		dispatchOpts = append(dispatchOpts, dispatch.WithGlobalWindow())
	}
	if a.cfg.globalRate > 0 {
		dispatchOpts = append(dispatchOpts, dispatch.WithGlobalRate(a.cfg.globalRate, a.cfg.globalRate))
	}

	return botcommons.New(
		botcommons.WithUserAgent(a.cfg.userAgent),
		botcommons.WithClientOptions(clientOpts...),
		botcommons.WithDispatchOptions(dispatchOpts...),
	)
}
