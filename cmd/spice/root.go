package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	spice "github.com/spiceai/spice-sql-go"
	"github.com/spiceai/spice-sql-go/logger"
)

var (
	envFile    string
	apiKey     string
	flightURL  string
	httpURL    string
	local      bool
	logLevel   string
	maxRetries int
)

var rootCmd = &cobra.Command{
	Use:   "spice",
	Short: "Query a Spice runtime or the Spice cloud",
	Long: `spice runs sql over Arrow Flight, submits async queries and reads their
results, and refreshes accelerated datasets.

Settings are read from flags, then from SPICE_* environment variables, which
may also be placed in a .env file.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadEnvFile(envFile, cmd.Flags().Changed("env-file")); err != nil {
			return err
		}
		return logger.SetLogLevel(logLevel)
	},
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&envFile, "env-file", ".env", "file of SPICE_* variables to load")
	flags.StringVar(&apiKey, "api-key", "", "api key, overrides SPICE_API_KEY")
	flags.StringVar(&flightURL, "flight-url", "", "flight host:port, overrides SPICE_FLIGHT_URL")
	flags.StringVar(&httpURL, "http-url", "", "REST base url, overrides SPICE_HTTP_URL")
	flags.BoolVar(&local, "local", false, "use the runtime on localhost")
	flags.StringVar(&logLevel, "log-level", "warn", "log level: trace, debug, info, warn, error or disabled")
	flags.IntVar(&maxRetries, "max-retries", -1, "query retries, -1 keeps the default")

	rootCmd.AddCommand(queryCmd, submitCmd, resultsCmd, refreshCmd, versionCmd)
}

// a missing default .env file is not an error
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return errors.Wrapf(err, "env file %s", path)
	}
	return errors.Wrapf(godotenv.Load(path), "env file %s", path)
}

func newClient() (*spice.Client, error) {
	opts := []spice.ClientOption{spice.WithUserAgentEntry("spice-cli/" + Version)}
	if local {
		opts = append(opts, spice.WithLocalRuntime())
	}
	opts = append(opts, spice.WithParams(spice.ParamsFromEnv()))
	if apiKey != "" {
		opts = append(opts, spice.WithAPIKey(apiKey))
	}
	if flightURL != "" {
		opts = append(opts, spice.WithFlightAddress(flightURL))
	}
	if httpURL != "" {
		opts = append(opts, spice.WithHTTPURL(httpURL))
	}
	if maxRetries >= 0 {
		opts = append(opts, spice.WithMaxRetries(maxRetries))
	}
	return spice.NewClient(opts...)
}
