package cli

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh [namespace]",
	Short: "Trigger a refresh run on a live tokend instance",
	Args:  cobra.ExactArgs(1),
	Run:   runRefresh,
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}

func runRefresh(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if cfg.Server.AdminToken == "" {
		slog.Error("Refresh trigger requires server.admin_token in config")
		os.Exit(1)
	}

	url := fmt.Sprintf("http://localhost:%d/v1/refresh?namespace=%s", cfg.Server.Port, args[0])
	req, err := http.NewRequest(http.MethodPost, url, nil)
	if err != nil {
		slog.Error("Failed to build request", "error", err)
		os.Exit(1)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.Server.AdminToken)

	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		slog.Error("Refresh request failed", "error", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		slog.Error("Refresh rejected", "status", resp.StatusCode, "body", string(body))
		os.Exit(1)
	}
	fmt.Println(string(body))
}
