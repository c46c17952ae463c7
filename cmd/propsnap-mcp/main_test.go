package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/propsnap/models"
)

func callTool(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func TestHandleSnapshot_ReturnsImage(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/snapshot", r.URL.Path)
		assert.Equal(t, "Sobha Dream Acres", r.URL.Query().Get("property"))
		assert.Equal(t, "Bangalore", r.URL.Query().Get("city"))
		assert.Equal(t, "jpeg", r.URL.Query().Get("format"))
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set(targetsHeader, "NoBroker=ready,Housing=ELEMENT_NOT_FOUND")
		_, _ = w.Write(png)
	}))
	defer srv.Close()

	res, err := handleSnapshot(srv.URL, "secret")(context.Background(), callTool(map[string]any{
		"property": "Sobha Dream Acres",
		"city":     "Bangalore",
		"format":   "jpeg",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.Len(t, res.Content, 2)

	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "NoBroker=ready, Housing=ELEMENT_NOT_FOUND")

	img, ok := res.Content[1].(mcp.ImageContent)
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", img.MIMEType)
	assert.Equal(t, base64.StdEncoding.EncodeToString(png), img.Data)
}

func TestHandleSnapshot_MissingArgs(t *testing.T) {
	h := handleSnapshot("http://127.0.0.1:0", "")
	res, err := h(context.Background(), callTool(map[string]any{"property": "Lodha"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestHandleSnapshot_SurfacesTargetStatuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(models.ErrorResponse{
			Error: "no target produced a screenshot",
			Code:  models.ErrCodeNoImage,
			Targets: []models.TargetStatus{
				{Name: "NoBroker", Status: "NAVIGATION_TIMEOUT", Detail: "navigation timed out"},
			},
		})
	}))
	defer srv.Close()

	res, err := handleSnapshot(srv.URL, "")(context.Background(), callTool(map[string]any{
		"property": "DLF Camellias",
		"city":     "Gurgaon",
	}))
	require.NoError(t, err)
	require.True(t, res.IsError)

	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "[NO_IMAGE]")
	assert.Contains(t, text.Text, "NoBroker: NAVIGATION_TIMEOUT (navigation timed out)")
}

func TestHandleListTargets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(models.TargetsResponse{Targets: []models.TargetInfo{
			{Name: "NoBroker", BaseURL: "https://www.nobroker.in/"},
			{Name: "MagicBricks", BaseURL: "https://www.magicbricks.com/"},
		}})
	}))
	defer srv.Close()

	res, err := handleListTargets(srv.URL, "")(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	assert.Equal(t, "1. NoBroker (https://www.nobroker.in/)\n2. MagicBricks (https://www.magicbricks.com/)\n", text.Text)
}

func TestErrorMessage_NonJSON(t *testing.T) {
	assert.Equal(t, "API returned HTTP 500", errorMessage(500, []byte("oops")))
}
