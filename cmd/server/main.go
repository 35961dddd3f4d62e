/*
main.go - Application entry point

PURPOSE:
  The "library" command. Starts the HTTP server and runs the
  administrative tasks that need direct storage access.

COMMANDS:
  serve          Run the HTTP API with graceful shutdown
  seed           Load categories, books and admins from a YAML fixture
  create-admin   Create a single admin account

CONFIGURATION:
  --config points at a YAML file. Every key can be overridden with a
  LIBRARY_* environment variable (see config/config.go).

EXAMPLES:
  # Run with a config file
  ./library serve --config ./library.yaml

  # Bootstrap the first super-admin
  LIBRARY_AUTH_JWT_SECRET=dev ./library create-admin \
    --email root@library.test --password changeme --role super-admin ...

  # Load fixtures
  ./library seed --file ./fixtures.yaml

SEE ALSO:
  - serve.go: Server wiring and shutdown
  - config/config.go: Configuration keys
*/
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var flagConfig string

var rootCmd = &cobra.Command{
	Use:           "library",
	Short:         "Library management backend",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file path (default: $LIBRARY_CONFIG)")
	rootCmd.AddCommand(serveCmd, seedCmd, newCreateAdminCmd())
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}
