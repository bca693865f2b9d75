package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/SunnyJalendra/minidrive-go/internal/api"
	"github.com/SunnyJalendra/minidrive-go/internal/share"
	"github.com/SunnyJalendra/minidrive-go/internal/watch"
)

// eventsRetryDelay is how long the watch loop waits before reconnecting a
// dropped event stream.
const eventsRetryDelay = 5 * time.Second

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Keep the file listing fresh and optionally auto-upload a directory",
		Long: `Run a foreground sync loop: the file listing is refreshed on a fixed
interval and whenever the server pushes a share event. With a directory
argument (or watch_dir in the config file), new and modified files in that
directory are uploaded automatically. Ctrl-C stops everything.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runWatch,
	}

	cmd.Flags().Duration("interval", 0, "refresh interval (default from config)")

	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	env, err := buildEnv()
	if err != nil {
		return err
	}

	if err := env.requireSession(); err != nil {
		return err
	}

	interval, _ := cmd.Flags().GetDuration("interval")
	if interval <= 0 {
		interval = resolvedCfg.Interval()
	}

	watchDir := resolvedCfg.WatchDir
	if len(args) > 0 {
		watchDir = args[0]
	}

	ctx := shutdownContext(context.Background(), env.logger)

	store := openCache(env)
	if store != nil {
		defer store.Close()
	}

	// apply diffs each fresh listing against the previous one and caches
	// it. The scheduler serializes apply calls and discards stale
	// snapshots, so prev only ever moves forward.
	var prev *api.FileListing

	apply := func(listing *api.FileListing) {
		printListingDiff(prev, listing)
		prev = listing

		if store != nil {
			if err := store.SaveListing(ctx, listing); err != nil {
				env.logger.Warn("caching listing failed", "error", err.Error())
			}
		}
	}

	sched := share.NewScheduler(interval, env.client.ListFiles, apply, env.logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sched.Run(ctx)
		return nil
	})

	g.Go(func() error {
		return watchEvents(ctx, env, sched)
	})

	if watchDir != "" {
		observer := watch.NewObserver(watchDir, watch.DefaultDebounce, env.logger)

		g.Go(func() error {
			return observer.Run(ctx, func(ctx context.Context, path string) error {
				if err := uploadFile(ctx, env, path); err != nil {
					return err
				}

				sched.Wake()

				return nil
			})
		})
	}

	statusf("Watching (refresh every %s). Press Ctrl-C to stop.\n", interval)

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}

	return nil
}

// watchEvents subscribes to the server's push stream and wakes the
// scheduler on every event — the CLI analog of refreshing when a window
// regains focus. The stream is best-effort: a dropped connection is
// retried until ctx is canceled.
func watchEvents(ctx context.Context, env *appEnv, sched *share.Scheduler[*api.FileListing]) error {
	for {
		events, err := env.client.Events(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			env.logger.Warn("event stream unavailable, retrying",
				"error", err.Error(),
				"delay", eventsRetryDelay.String(),
			)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(eventsRetryDelay):
				continue
			}
		}

		for ev := range events {
			switch ev.Type {
			case api.EventShareRequested:
				statusf("Access requested on file %s.\n", ev.FileID)
			case api.EventShareResponded:
				statusf("Your access request on file %s was answered.\n", ev.FileID)
			}

			sched.Wake()
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

// printListingDiff reports files that appeared or disappeared between two
// listings. The first listing prints a summary only.
func printListingDiff(prev, next *api.FileListing) {
	if prev == nil {
		statusf("%d owned, %d shared.\n", len(next.Owned), len(next.Shared))
		return
	}

	prevIDs := make(map[string]string, len(prev.Owned)+len(prev.Shared))
	for _, rec := range append(append([]api.FileRecord{}, prev.Owned...), prev.Shared...) {
		prevIDs[rec.ID] = rec.OriginalName
	}

	nextIDs := make(map[string]struct{}, len(next.Owned)+len(next.Shared))

	for _, rec := range append(append([]api.FileRecord{}, next.Owned...), next.Shared...) {
		nextIDs[rec.ID] = struct{}{}

		if _, ok := prevIDs[rec.ID]; !ok {
			statusf("+ %s (%s)\n", rec.OriginalName, rec.ID)
		}
	}

	for id, name := range prevIDs {
		if _, ok := nextIDs[id]; !ok {
			statusf("- %s (%s)\n", name, id)
		}
	}
}
