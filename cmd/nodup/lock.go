package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/git-hulk/go-nodup/guard/engine"
)

var (
	lockManager    *engine.Manager
	lockScheduler  *engine.TimerScheduler
	closeLockStore func() error

	acquireTTL   time.Duration
	releaseDelay time.Duration

	// lockCmd represents the lock command group
	lockCmd = &cobra.Command{
		Use:                "lock",
		Short:              "Perform lock operations",
		PersistentPreRunE:  setupLockManager,
		PersistentPostRunE: closeLockManager,
	}

	acquireCmd = &cobra.Command{
		Use:   "acquire [key]",
		Short: "Acquire a lock, prints the owner token on success",
		Args:  cobra.ExactArgs(1),
		RunE:  runAcquire,
	}

	releaseCmd = &cobra.Command{
		Use:   "release [key] [owner]",
		Short: "Release a lock held by owner",
		Long:  "Release a lock using the key and the owner token returned by the acquire command.",
		Args:  cobra.ExactArgs(2),
		RunE:  runRelease,
	}

	inspectCmd = &cobra.Command{
		Use:   "inspect [key]",
		Short: "Show the record stored under a lock key",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspect,
	}
)

func init() {
	lockCmd.AddCommand(acquireCmd)
	lockCmd.AddCommand(releaseCmd)
	lockCmd.AddCommand(inspectCmd)

	acquireCmd.Flags().DurationVar(&acquireTTL, "ttl", 30*time.Second, "lease duration of the lock")
	releaseCmd.Flags().DurationVar(&releaseDelay, "delay", 0, "keep the lock for this long before releasing it")
}

func setupLockManager(_ *cobra.Command, _ []string) error {
	v := viper.GetViper()
	s, closeStore, err := newStore(v)
	if err != nil {
		return err
	}
	closeLockStore = closeStore
	lockScheduler = engine.NewTimerScheduler(v.GetInt("max-pending-releases"))
	lockManager = engine.NewManager(s, lockScheduler, engine.WithReleaseTimeout(v.GetDuration("timeout")))
	return nil
}

func closeLockManager(_ *cobra.Command, _ []string) error {
	// wait for a delayed release before exiting
	ctx, cancel := context.WithTimeout(context.Background(), releaseDelay+shutdownTimeout)
	defer cancel()
	err := lockScheduler.Shutdown(ctx)
	return errors.Join(err, closeLockStore())
}

func runAcquire(cmd *cobra.Command, args []string) error {
	owner := uuid.NewString()
	ok, err := lockManager.Acquire(cmd.Context(), args[0], owner, acquireTTL)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", engine.ErrNotObtained, args[0])
	}
	fmt.Fprintln(cmd.OutOrStdout(), owner)
	return nil
}

func runRelease(cmd *cobra.Command, args []string) error {
	return lockManager.ReleaseDelayed(cmd.Context(), args[0], args[1], releaseDelay)
}

func runInspect(cmd *cobra.Command, args []string) error {
	record, found, err := lockManager.Inspect(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if !found {
		fmt.Fprintf(cmd.OutOrStdout(), "%s is not locked\n", args[0])
		return nil
	}
	state := "held"
	if record.Expired(time.Now()) {
		state = "expired"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "owner: %s\nexpire_at: %s\nstate: %s\n",
		record.Owner, record.ExpireAt.Format(time.RFC3339Nano), state)
	return nil
}
