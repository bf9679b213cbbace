package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/jmerrifield20/threatlens/pkg/client"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL string
	authToken string
	cfgFile   string
	verbose   bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "threatctl",
	Short: "ThreatLens threat modeling CLI",
	Long: `threatctl analyzes threat models described in YAML or JSON.

Without a server it runs the analysis in-process with the built-in pattern
catalog. With --server (or THREATLENS_SERVER) it talks to a threatd
instance instead:

  threatctl analyze model.yaml
  threatctl --server http://localhost:8080 analyze model.yaml --format json`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.threatlens")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("THREATLENS")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = strings.TrimSpace(viper.GetString("server"))
		}
		if authToken == "" {
			authToken = strings.TrimSpace(viper.GetString("token"))
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.threatlens/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "threatd base URL; analyze locally when empty")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "Bearer token for the server")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log analysis progress to stderr")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(patternsCmd)
	rootCmd.AddCommand(ledgerCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)
}

// remote reports whether commands should talk to a server.
func remote() bool { return serverURL != "" }

func newClient() (*client.Client, error) {
	opts := []client.Option{client.WithUserAgent("threatctl/" + version)}
	if authToken != "" {
		opts = append(opts, client.WithBearerToken(authToken))
	}
	return client.New(serverURL, opts...)
}

func newLogger() *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the threatctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "threatctl %s (ThreatLens)\n", version)
	},
}
