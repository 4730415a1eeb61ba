package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	fixturePath string
	kindFlag    string
	strict      bool
	verbose     bool
	timeout     time.Duration
	settle      time.Duration
	watchFor    time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "billingctl",
	Short: "Drive a billing bridge session against a scripted provider",
	Long: `billingctl runs a billing bridge session backed by an in-memory provider
seeded from a YAML fixture, dispatches host commands and prints every reply
and listener event as JSON.

Examples:
  billingctl products inapp coins_100 coins_500 -f fixture.yaml
  billingctl purchase coins_100 -f fixture.yaml
  billingctl restore -f fixture.yaml
  billingctl consume coins_100 -f fixture.yaml --strict
  billingctl watch -f fixture.yaml --for 10s`,
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&fixturePath, "fixture", "f", "", "YAML fixture used to seed the provider")
	flags.BoolVar(&strict, "strict", false, "reply with an error to malformed or unknown requests")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log session activity to stderr")
	flags.DurationVar(&timeout, "timeout", 5*time.Second, "how long to wait for each reply")
	flags.DurationVar(&settle, "settle", 250*time.Millisecond, "how long to wait for commands without a reply")

	purchaseCmd.Flags().StringVarP(&kindFlag, "kind", "k", "inapp", "product kind (inapp, subs)")

	watchCmd.Flags().DurationVar(&watchFor, "for", 0, "stop watching after this long (0 waits for an interrupt)")

	rootCmd.AddCommand(productsCmd, purchaseCmd, restoreCmd, acknowledgeCmd, consumeCmd, manageCmd, watchCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
