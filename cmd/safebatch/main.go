package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ligun0805/safe-batch/internal/config"
	"github.com/ligun0805/safe-batch/internal/logging"
)

// Set with -ldflags "-X main.VERSION=... -X main.GITCOMMIT=...".
var (
	VERSION   = "dev"
	GITCOMMIT = ""
)

var (
	isDebug  bool
	settings config.Settings
)

// errPartialFailure marks a batch that ran but did not fully confirm.
var errPartialFailure = errors.New("batch finished with failed items")

var rootCmd = &cobra.Command{
	Use:   "safebatch",
	Short: "Batch ERC20 transfers through a Safe multisig",
	Long: `safebatch reads TOKEN,TO,AMOUNT rows, builds one Safe transaction per
transfer with consecutive nonces, signs each one and executes them in order.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.LoadDotEnv()
		settings = config.Load()
		logging.Init(settings.LogLevel, isDebug)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("safebatch", VERSION, GITCOMMIT)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 for a batch with failed items and 1 for anything that
// stopped the run before or outside submission.
func exitCode(err error) int {
	if errors.Is(err, errPartialFailure) {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	slog.Error("safebatch failed", "error", err)
	return 1
}
