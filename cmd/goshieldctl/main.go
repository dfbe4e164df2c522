// goshieldctl manages the block/allow/keyword state shared with a running
// goshield instance. It talks straight to the storage backend, so changes
// take effect on the next lookup without restarting the server.
package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/shortontech/goshield/internal/storage"
	"github.com/shortontech/goshield/pkg/config"
)

var topN int

var rootCmd = &cobra.Command{
	Use:   "goshieldctl",
	Short: "Manage goshield block, allow and keyword state",
	Long: `goshieldctl edits the storage backend used by goshield.

The backend is selected the same way the server selects it: the
GOSHIELD_STORAGE environment variable (memory, csv, postgres, redis)
plus GOSHIELD_DATA_DIR, GOSHIELD_POSTGRES_DSN or GOSHIELD_REDIS_ADDR.
Note that the memory backend is process-local and not useful here.`,
}

func openStore(ctx context.Context) (storage.Store, error) {
	cfg := config.Load()
	if cfg.StorageBackend == "" || cfg.StorageBackend == "memory" {
		return nil, fmt.Errorf("storage backend %q is process-local; set GOSHIELD_STORAGE to csv, postgres or redis", cfg.StorageBackend)
	}
	return storage.Open(ctx, cfg.StorageBackend, storage.Options{
		DataDir:     cfg.DataDir,
		PostgresDSN: cfg.PostgresDSN,
		RedisAddr:   cfg.RedisAddr,
	})
}

// withStore opens the configured backend, runs fn, and closes it.
func withStore(fn func(ctx context.Context, st storage.Store) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(ctx, st)
}

var blockCmd = &cobra.Command{
	Use:   "block",
	Short: "Manage the blacklist",
}

var blockAddCmd = &cobra.Command{
	Use:   "add <ip> [reason]",
	Short: "Blacklist an IP",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason := "manual block"
		if len(args) > 1 {
			reason = args[1]
		}
		return withStore(func(ctx context.Context, st storage.Store) error {
			if err := st.AddIPBlacklist(ctx, args[0], reason, nil); err != nil {
				return err
			}
			fmt.Printf("blocked %s (%s)\n", args[0], reason)
			return nil
		})
	},
}

var blockRemoveCmd = &cobra.Command{
	Use:   "remove <ip>",
	Short: "Remove an IP from the blacklist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, st storage.Store) error {
			if err := st.RemoveIPBlacklist(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("unblocked %s\n", args[0])
			return nil
		})
	},
}

var blockListCmd = &cobra.Command{
	Use:   "list",
	Short: "List blacklisted IPs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, st storage.Store) error {
			entries, err := st.ListBlacklist(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "IP\tWHEN\tREASON")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\n", e.IP, e.Timestamp.Format(time.RFC3339), e.Reason)
			}
			return w.Flush()
		})
	},
}

var allowCmd = &cobra.Command{
	Use:   "allow",
	Short: "Manage the whitelist",
}

var allowAddCmd = &cobra.Command{
	Use:   "add <ip>",
	Short: "Whitelist an IP",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, st storage.Store) error {
			if err := st.AddIPWhitelist(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("whitelisted %s\n", args[0])
			return nil
		})
	},
}

var allowRemoveCmd = &cobra.Command{
	Use:   "remove <ip>",
	Short: "Remove an IP from the whitelist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, st storage.Store) error {
			if err := st.RemoveIPWhitelist(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("removed %s from whitelist\n", args[0])
			return nil
		})
	},
}

var allowListCmd = &cobra.Command{
	Use:   "list",
	Short: "List whitelisted IPs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, st storage.Store) error {
			entries, err := st.ListWhitelist(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "IP\tWHEN")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\n", e.IP, e.Timestamp.Format(time.RFC3339))
			}
			return w.Flush()
		})
	},
}

var keywordCmd = &cobra.Command{
	Use:   "keyword",
	Short: "Manage learned keywords",
}

var keywordAddCmd = &cobra.Command{
	Use:   "add <keyword>",
	Short: "Record a malicious path keyword",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, st storage.Store) error {
			if err := st.AddKeyword(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("recorded keyword %q\n", args[0])
			return nil
		})
	},
}

var keywordTopCmd = &cobra.Command{
	Use:   "top",
	Short: "Show the most frequent learned keywords",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, st storage.Store) error {
			kws, err := st.GetTopKeywords(ctx, topN)
			if err != nil {
				return err
			}
			for _, kw := range kws {
				fmt.Println(kw)
			}
			return nil
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize stored state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, st storage.Store) error {
			black, err := st.ListBlacklist(ctx)
			if err != nil {
				return err
			}
			white, err := st.ListWhitelist(ctx)
			if err != nil {
				return err
			}
			kws, err := st.GetTopKeywords(ctx, topN)
			if err != nil {
				return err
			}
			fmt.Printf("blacklisted: %d\nwhitelisted: %d\ntop keywords: %v\n",
				len(black), len(white), kws)
			return nil
		})
	},
}

func main() {
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	keywordTopCmd.Flags().IntVarP(&topN, "count", "n", 10, "number of keywords to show")
	statsCmd.Flags().IntVarP(&topN, "count", "n", 10, "number of keywords to show")

	blockCmd.AddCommand(blockAddCmd, blockRemoveCmd, blockListCmd)
	allowCmd.AddCommand(allowAddCmd, allowRemoveCmd, allowListCmd)
	keywordCmd.AddCommand(keywordAddCmd, keywordTopCmd)
	rootCmd.AddCommand(blockCmd, allowCmd, keywordCmd, statsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
