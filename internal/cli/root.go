// Package cli wires the engine, evaluator, providers and state store into
// the stackform command tree.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/stackform-io/stackform/internal/logging"
)

var (
	logLevel  string
	logFormat string

	backendType string
	statePath   string
	s3Bucket    string
	s3Key       string
	s3Region    string
	s3LockTable string

	awsRegion   string
	parallelism int
)

var rootCmd = &cobra.Command{
	Use:   "stackform",
	Short: "Declarative resource orchestration with PKL",
	Long: `Stackform reconciles declared resources against their real counterparts.

It evaluates PKL declarations into a dependency graph, computes a
deterministic plan of creates, updates, replacements and destroys, and
applies it with per-resource state commits so an interrupted run never
loses track of what it built.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logLevel, logFormat)
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&logFormat, "log-format", "text", "Log format (text, json)")
	pf.StringVar(&backendType, "backend", "local", "State backend (local, s3)")
	pf.StringVar(&statePath, "state", "", "State file path for the local backend")
	pf.StringVar(&s3Bucket, "s3-bucket", "", "S3 bucket for the s3 backend")
	pf.StringVar(&s3Key, "s3-key", "stackform.state.json", "S3 object key for the s3 backend")
	pf.StringVar(&s3Region, "s3-region", "", "AWS region for the s3 backend")
	pf.StringVar(&s3LockTable, "s3-lock-table", "", "DynamoDB table for s3 backend locking")
	pf.StringVar(&awsRegion, "region", "", "AWS region for the aws provider")
	pf.IntVar(&parallelism, "parallelism", 0, "Maximum concurrent provider operations (0 = default)")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(outputCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(versionCmd)
}
