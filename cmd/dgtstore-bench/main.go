// Command dgtstore-bench is ambient load-testing/inspection tooling
// for a dgtstore directory (SPEC_FULL.md §2 item 8): it is not part of
// the library surface spec.md describes, just a dev-facing CLI in the
// teacher's spf13/cobra idiom.
package main

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgtstore/dgtstore/pkg/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var dir string
	var mapSize string

	root := &cobra.Command{
		Use:   "dgtstore-bench",
		Short: "Load-test and inspect a dgtstore directory",
	}
	root.PersistentFlags().StringVar(&dir, "dir", "", "store root directory (required)")
	root.PersistentFlags().StringVar(&mapSize, "mapsize", "1G", "kv memory-map size")
	root.MarkPersistentFlagRequired("dir")

	openStore := func(ctx context.Context) (*store.Store, error) {
		logger, _ := zap.NewDevelopment()
		return store.Open(ctx, store.Config{Dir: dir, MapSize: mapSize, Logger: logger})
	}

	root.AddCommand(statsCmd(openStore))
	root.AddCommand(loadCmd(openStore))
	root.AddCommand(sweepCmd(openStore))
	return root
}

func statsCmd(openStore func(context.Context) (*store.Store, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print store counters and secondary-index summaries",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			st, err := s.Stats(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("objects=%d deleted=%d bytes=%d\n", st.Objects, st.Deleted, st.Bytes)
			fmt.Printf("types=%s\n", strings.Join(st.Types, ","))
			fmt.Printf("languages=%s\n", strings.Join(st.Languages, ","))
			fmt.Printf("charsets=%s\n", strings.Join(st.Charsets, ","))
			fmt.Printf("encodings=%s\n", strings.Join(st.Encodings, ","))
			return nil
		},
	}
}

func loadCmd(openStore func(context.Context) (*store.Store, error)) *cobra.Command {
	var count int
	var size int

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Add N random blobs of the given size and report throughput",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			buf := make([]byte, size)
			start := time.Now()
			for i := 0; i < count; i++ {
				rand.Read(buf)
				if _, err := s.Add(ctx, bytes.NewReader(buf), store.AddOptions{}); err != nil {
					return err
				}
			}
			elapsed := time.Since(start)
			fmt.Printf("added %d blobs of %d bytes in %s (%.1f/s)\n", count, size, elapsed, float64(count)/elapsed.Seconds())
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 100, "number of blobs to add")
	cmd.Flags().IntVar(&size, "size", 4096, "blob size in bytes")
	return cmd
}

func sweepCmd(openStore func(context.Context) (*store.Store, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Forget every expired cache record",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := s.SweepExpired(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("swept %d expired cache records\n", n)
			return nil
		},
	}
}
