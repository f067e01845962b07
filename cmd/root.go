/*
Copyright © 2025 ECR Mirror menbiyagoral@gmail.com
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"ecrmirror/pkg/registry"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "MIRROR"

const (
	flagRegion     = "region"
	flagAuthFile   = "authfile"
	flagAuthSecret = "auth-secret"
	flagEngine     = "engine"
	flagSkopeo     = "skopeo"
	flagVerbosity  = "verbosity"
	flagLogOpt     = "logopt"
	flagConfig     = "config"
)

var (
	log = logrus.New()
	cfg = viper.New()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ecrmirror",
	Short: "Mirror container images into ECR",
	Long: `ecrmirror keeps container images mirrored between registries, including
private and public Amazon ECR registries.

The controller reads source to destination mappings from a DynamoDB table,
compares digests and submits one AWS Batch job per source whose destinations
are out of date. Each job runs the mirror command, which logs into every ECR
registry involved and copies the image to each destination.

Examples:
  ecrmirror controller mirrors mirror-queue mirror-job
  ecrmirror controller mirrors mirror-queue mirror-job app 1.4.2
  ecrmirror mirror docker.io/library/nginx:1.27 123456789012.dkr.ecr.eu-west-1.amazonaws.com/nginx:1.27`,
	PersistentPreRunE: rootPreRun,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

// Execute adds all child commands to the root command and exits with the
// code carried by the returned error.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := execute(ctx)
	stop()

	if err != nil {
		log.WithFields(logrus.Fields{"error": err}).Error("Failed")
		os.Exit(exitCode(err))
	}
}

// execute runs the command tree. On a usage error the failing command's usage
// goes to stderr.
func execute(ctx context.Context) error {
	c, err := rootCmd.ExecuteContextC(ctx)
	if err != nil && exitCode(err) == registry.CodeUsage {
		c.PrintErrln(c.UsageString())
	}
	return err
}

func init() {
	log.SetOutput(os.Stderr)
	log.Formatter = &logrus.TextFormatter{FullTimestamp: true}

	flags := rootCmd.PersistentFlags()
	flags.StringP(flagRegion, "r", "", "AWS region for the table, queue and home registry (default: from the AWS config)")
	flags.String(flagAuthFile, registry.DefaultAuthFile, "Registry auth-file used by every login, inspect and copy")
	flags.String(flagAuthSecret, "", "SSM parameter name or Secrets Manager ARN whose value seeds the auth-file")
	flags.String(flagEngine, engineSkopeo, "Registry engine (skopeo, crane)")
	flags.String(flagSkopeo, "skopeo", "Path to the skopeo binary")
	flags.StringP(flagVerbosity, "v", logrus.InfoLevel.String(), "Log level (debug, info, warn, error, fatal, panic)")
	flags.StringArray(flagLogOpt, []string{}, "Log options (json)")
	flags.String(flagConfig, "", "Config file (yaml)")
	_ = rootCmd.MarkPersistentFlagFilename(flagConfig, "yaml", "yml")

	for _, name := range []string{flagRegion, flagAuthFile, flagAuthSecret, flagEngine, flagSkopeo, flagVerbosity, flagLogOpt} {
		_ = cfg.BindPFlag(name, flags.Lookup(name))
	}

	cfg.SetEnvPrefix(envPrefix)
	cfg.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	cfg.AutomaticEnv()

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	rootCmd.AddCommand(newControllerCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newMirrorCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func rootPreRun(cmd *cobra.Command, _ []string) error {
	if path, _ := cmd.Flags().GetString(flagConfig); path != "" {
		cfg.SetConfigFile(path)
		if err := cfg.ReadInConfig(); err != nil {
			return usageError(fmt.Errorf("failed to read config %s: %w", path, err))
		}
	}

	lvl, err := logrus.ParseLevel(cfg.GetString(flagVerbosity))
	if err != nil {
		return usageError(err)
	}
	log.SetLevel(lvl)

	for _, opt := range cfg.GetStringSlice(flagLogOpt) {
		if opt == "json" {
			log.Formatter = new(logrus.JSONFormatter)
		}
	}

	return nil
}
