package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/keepmind9/botkit/internal/api"
	"github.com/keepmind9/botkit/internal/dispatch"
	"github.com/spf13/cobra"
)

var (
	statusAddr  string
	statusToken string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show botkit status",
	Long:  "Query a running botkit through its admin API and display handler and queue information",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		client := &apiClient{base: "http://" + statusAddr, token: statusToken, http: http.DefaultClient}

		var health api.HealthzResponse
		if err := client.get(ctx, "/healthz", &health); err != nil {
			fmt.Printf("❌ botkit is not reachable at %s: %v\n", statusAddr, err)
			os.Exit(1)
		}
		var queues []dispatch.QueueStatus
		if err := client.get(ctx, "/v1/queues", &queues); err != nil {
			fmt.Printf("❌ Failed to read queues: %v\n", err)
			os.Exit(1)
		}

		fmt.Println("botkit status:")
		fmt.Printf("  - Status: %s\n", health.Status)
		fmt.Printf("  - Uptime: %s\n", time.Duration(health.UptimeSeconds)*time.Second)
		fmt.Printf("  - Handlers: %d\n", health.Handlers)
		fmt.Printf("  - Active queues: %d\n", len(queues))
		for _, q := range queues {
			fmt.Printf("    - %s: %d pending, active=%v\n", q.SenderID, q.Pending, q.Active)
		}
	},
}

type apiClient struct {
	base  string
	token string
	http  *http.Client
}

func (c *apiClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr api.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "127.0.0.1:8090", "Admin API address")
	statusCmd.Flags().StringVar(&statusToken, "token", os.Getenv("BOTKIT_API_TOKEN"), "Admin API bearer token")
}
