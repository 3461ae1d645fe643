package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const (
	version = "v1.0.0"
)

func main() {
	rootCmd := newRootCommand()
	rootCmd.AddCommand(newVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		cfg     loadConfig
		servers string
	)

	cmd := &cobra.Command{
		Use:   "memcachetest",
		Short: "A load generator for memcached compatible servers",
		Long: `memcachetest populates a cache with a deterministic working set and
then drives a mixed fetch/store load against it, reporting throughput
and latency percentiles per phase.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.servers = strings.Split(servers, ",")
			return runLoad(cmd.OutOrStdout(), &cfg)
		},
	}

	cmd.Flags().StringVarP(&servers, "servers", "s", "localhost:11211", "comma-separated list of host:port")
	cmd.Flags().StringVarP(&cfg.protocol, "protocol", "p", "text", "wire protocol, one of: text, binary")
	cmd.Flags().StringVar(&cfg.hashName, "hash", "simple", "key hash, one of: simple, crc32, murmur3, xxh3")
	cmd.Flags().IntVarP(&cfg.items, "items", "i", 10000, "distinct keys in the working set")
	cmd.Flags().IntVarP(&cfg.valueSize, "size", "z", 1024, "value size in bytes")
	cmd.Flags().IntVarP(&cfg.ops, "ops", "c", 10000, "operations per worker in the mixed phase")
	cmd.Flags().IntVarP(&cfg.workers, "workers", "t", 1, "workers, each with its own client")
	cmd.Flags().IntVar(&cfg.getRatio, "get-ratio", 90, "percentage of fetches in the mixed phase")
	cmd.Flags().BoolVar(&cfg.withBreaker, "breaker", false, "guard each server with a circuit breaker")
	cmd.Flags().DurationVar(&cfg.dialTimeout, "connect-timeout", 5*time.Second, "dial timeout")
	cmd.Flags().DurationVar(&cfg.readTimeout, "read-timeout", 3*time.Second, "read timeout")
	cmd.Flags().DurationVar(&cfg.writeTimeout, "write-timeout", 3*time.Second, "write timeout")

	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("memcachetest version %s\n", version)
		},
	}
}
