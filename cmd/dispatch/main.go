// Command dispatch is the CLI client for the dispatchd delegation server.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/dispatch/internal/version"
)

const defaultServer = "http://localhost:9070"

var (
	serverURL string
	token     string

	cli *Client
)

var rootCmd = &cobra.Command{
	Use:           "dispatch",
	Short:         "Delegate tasks to the best-matching agent",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cli = &Client{
			BaseURL:    serverURL,
			Token:      token,
			HTTPClient: &http.Client{Timeout: 15 * time.Second},
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("dispatch %s (%s, built %s)\n", version.Version, version.Commit, version.BuildDate)
	},
}

var loginCmd = &cobra.Command{
	Use:   "login <username>",
	Short: "Obtain an API token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password := os.Getenv("DISPATCH_PASSWORD")
		if password == "" {
			return fmt.Errorf("set DISPATCH_PASSWORD in the environment")
		}
		var resp struct {
			Token string `json:"token"`
		}
		if err := cli.post("/api/auth/login", map[string]string{
			"username": args[0],
			"password": password,
		}, &resp); err != nil {
			return err
		}
		fmt.Println(resp.Token)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer, "dispatchd server URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("DISPATCH_TOKEN"), "API auth token")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(loginCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
