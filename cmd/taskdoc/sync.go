package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func runShow(cmd *cobra.Command, args []string) error {
	doc, err := openDocument(args[0])
	if err != nil {
		return err
	}
	defer closeDocument(doc)
	fmt.Fprint(cmd.OutOrStdout(), renderDocument(doc))
	return nil
}

func runSync(cmd *cobra.Command, args []string) error {
	policy, err := conflictPolicy(prefer, interactive)
	if err != nil {
		return err
	}
	doc, err := openDocument(args[0])
	if err != nil {
		return err
	}
	defer closeDocument(doc)
	doc.SetConflictPolicy(policy)

	report, err := doc.MergeDiskChanges()
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), renderReport(report))
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	if !cfg.Watch.Enabled {
		return errors.New("watching is disabled in the configuration")
	}
	doc, err := openDocument(args[0])
	if err != nil {
		return err
	}
	defer closeDocument(doc)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	changed := make(chan struct{}, 1)
	watcher, err := doc.Watch(ctx, cfg.Watch.PollInterval, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return err
	}
	log.Info("Watching for changes, press Ctrl+C to stop", "file", doc.Filename())
	fmt.Fprint(cmd.OutOrStdout(), renderDocument(doc))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return watcher.Stop()
	})
	// The document is only touched from this goroutine until Wait returns
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-changed:
				report, err := doc.MergeDiskChanges()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprint(out, renderReport(report))
				if report.Changed() {
					fmt.Fprint(out, renderDocument(doc))
				}
			}
		}
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
