package main

import (
	"context"
	"errors"
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"

	"text2phenotype.com/postag/logger"
)

type Config struct {
	ProfilesDir   string `envconfig:"POSTAG_PROFILES_DIR" default:"profiles"`
	Profile       string `envconfig:"POSTAG_PROFILE" default:"default"`
	RestAPIActive bool   `envconfig:"POSTAG_REST_API_ACTIVE" default:"false"`
	RestAPIPort   string `envconfig:"POSTAG_REST_API_PORT" default:"10000"`
}

func readConfig() (Config, error) {
	var config Config
	err := envconfig.Process("", &config)
	return config, err
}

func main() {
	logger.SetupLogging()
	mainLogger := logger.NewLogger("Main")

	err := NewCLI().ExecuteContext(context.Background())
	var exit exitCode
	if errors.As(err, &exit) {
		os.Exit(int(exit))
	}
	if err != nil {
		mainLogger.Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

// NewCLI builds the command tree. Flags override the environment.
func NewCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "postag",
		Short: "Part-of-speech tagging of raw text",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmd.SilenceUsage = true
		},
	}
	rootCmd.PersistentFlags().String("profiles-dir", "", "Directory of tagger profiles (env POSTAG_PROFILES_DIR)")
	rootCmd.PersistentFlags().StringP("profile", "p", "", "Tagger profile name (env POSTAG_PROFILE)")

	tagCmd := &cobra.Command{
		Use:   "tag <input.txt> <output.json>",
		Short: "Tag a text file and write the tags as JSON",
		Args:  cobra.ExactArgs(2),
		RunE:  TagHandler,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tagger over HTTP",
		Args:  cobra.NoArgs,
		RunE:  ServeHandler,
	}
	serveCmd.Flags().String("port", "", "Port to listen on (env POSTAG_REST_API_PORT)")

	workCmd := &cobra.Command{
		Use:   "work",
		Short: "Consume tagging tasks from the queue",
		Args:  cobra.NoArgs,
		RunE:  WorkHandler,
	}

	profilesCmd := &cobra.Command{
		Use:     "profiles",
		Aliases: []string{"ls"},
		Short:   "List tagger profiles",
		Args:    cobra.NoArgs,
		RunE:    ProfilesHandler,
	}

	wrapCmd := &cobra.Command{
		Use:   "wrap -- <command> [args...]",
		Short: "Run a command and turn its panic output into a log record",
		Args:  cobra.MinimumNArgs(1),
		RunE:  WrapHandler,
	}

	rootCmd.AddCommand(tagCmd, serveCmd, workCmd, profilesCmd, wrapCmd)
	return rootCmd
}
