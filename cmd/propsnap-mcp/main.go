package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/propsnap/models"
)

const targetsHeader = "X-Propsnap-Targets"

func main() {
	apiURL := os.Getenv("PROPSNAP_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("PROPSNAP_API_KEY")

	s := server.NewMCPServer(
		"propsnap",
		"0.1.0",
		server.WithToolCapabilities(false),
	)

	snapshotTool := mcp.NewTool("snapshot_listings",
		mcp.WithDescription("Search Indian real-estate listing sites for a property in a city and return one stacked screenshot of every site's results page. Sites that fail are left out of the image and reported in the text summary."),
		mcp.WithString("property",
			mcp.Required(),
			mcp.Description("Property, project or locality name, e.g. 'Prestige Lakeside Habitat'"),
		),
		mcp.WithString("city",
			mcp.Required(),
			mcp.Description("City the property is in, e.g. 'Bangalore'"),
		),
		mcp.WithString("format",
			mcp.Description("Image format: 'png' (default) or 'jpeg'"),
			mcp.Enum("png", "jpeg"),
		),
		mcp.WithString("targets",
			mcp.Description("Comma-separated site names to restrict the run to (see list_targets). Empty = all sites"),
		),
	)
	s.AddTool(snapshotTool, handleSnapshot(apiURL, apiKey))

	listTool := mcp.NewTool("list_targets",
		mcp.WithDescription("List the listing sites snapshot_listings searches, in the order they appear in the image."),
	)
	s.AddTool(listTool, handleListTargets(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

func handleSnapshot(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 120 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		property, err := request.RequireString("property")
		if err != nil {
			return mcp.NewToolResultError("property is required"), nil
		}
		city, err := request.RequireString("city")
		if err != nil {
			return mcp.NewToolResultError("city is required"), nil
		}

		params := url.Values{}
		params.Set("property", property)
		params.Set("city", city)
		if f := request.GetString("format", ""); f != "" {
			params.Set("format", f)
		}
		if t := request.GetString("targets", ""); t != "" {
			params.Set("targets", t)
		}

		resp, body, err := get(ctx, client, apiURL+"/api/v1/snapshot?"+params.Encode(), apiKey)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if resp.StatusCode != http.StatusOK {
			return mcp.NewToolResultError(errorMessage(resp.StatusCode, body)), nil
		}

		mimeType := resp.Header.Get("Content-Type")
		if mimeType == "" {
			mimeType = "image/png"
		}
		summary := fmt.Sprintf("Listings for %s, %s", property, city)
		if statuses := resp.Header.Get(targetsHeader); statuses != "" {
			summary += "\nTargets: " + strings.ReplaceAll(statuses, ",", ", ")
		}
		return mcp.NewToolResultImage(summary, base64.StdEncoding.EncodeToString(body), mimeType), nil
	}
}

func handleListTargets(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 15 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resp, body, err := get(ctx, client, apiURL+"/api/v1/targets", apiKey)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if resp.StatusCode != http.StatusOK {
			return mcp.NewToolResultError(errorMessage(resp.StatusCode, body)), nil
		}

		var list models.TargetsResponse
		if err := json.Unmarshal(body, &list); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}

		var b strings.Builder
		for i, t := range list.Targets {
			fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, t.Name, t.BaseURL)
		}
		return mcp.NewToolResultText(b.String()), nil
	}
}

func get(ctx context.Context, client *http.Client, rawURL, apiKey string) (*http.Response, []byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if apiKey != "" {
		httpReq.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp, body, nil
}

// errorMessage renders an ErrorResponse body, including per-target statuses
// when the snapshot ran but nothing was captured.
func errorMessage(status int, body []byte) string {
	var e models.ErrorResponse
	if err := json.Unmarshal(body, &e); err != nil || e.Error == "" {
		return fmt.Sprintf("API returned HTTP %d", status)
	}
	msg := e.Error
	if e.Code != "" {
		msg = fmt.Sprintf("[%s] %s", e.Code, e.Error)
	}
	for _, t := range e.Targets {
		msg += fmt.Sprintf("\n- %s: %s", t.Name, t.Status)
		if t.Detail != "" {
			msg += " (" + t.Detail + ")"
		}
	}
	return msg
}
