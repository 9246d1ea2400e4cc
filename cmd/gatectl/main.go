// Package main implements the gatectl CLI for manual operations against the
// gatehoused HTTP status API.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the gatehoused HTTP server
	serverURL string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gatectl",
	Short: "CLI for gatehoused status and gate checks",
	Long: `gatectl is a command-line interface for the gatehoused HTTP status API.
It reports the project's inferred phase state, lists findings, and evaluates
gate decisions for concrete actions.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:9180", "gatehoused server URL")
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(findingsCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(routeCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(advanceCmd)
	rootCmd.AddCommand(analyzeCmd)
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

// getJSON fetches path and pretty-prints the JSON response body.
func getJSON(path string) error {
	resp, err := httpClient().Get(serverURL + path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s: %s", resp.Status, body)
	}
	return printJSON(body)
}

// postJSON posts payload to path and pretty-prints the JSON response body.
func postJSON(path string, payload any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := httpClient().Post(serverURL+path, "application/json", bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusNoContent {
		fmt.Println("ok")
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s: %s", resp.Status, body)
	}
	return printJSON(body)
}

func printJSON(body []byte) error {
	var buf any
	if err := json.Unmarshal(body, &buf); err != nil {
		fmt.Println(string(body))
		return nil
	}
	pretty, err := json.MarshalIndent(buf, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(pretty))
	return nil
}
