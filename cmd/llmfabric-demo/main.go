// Command llmfabric-demo wires together the completion façade and the MCP
// coordinator against a local stdio tool server, the smallest end-to-end
// path through the ambient stack: configured client, structured extraction,
// and a coordinated tool call.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"goa.design/clue/log"

	"github.com/corenexus/llmfabric/mcp"
	"github.com/corenexus/llmfabric/model"
	"github.com/corenexus/llmfabric/provider/anthropic"
	"github.com/corenexus/llmfabric/structured"
)

type weatherReport struct {
	City        string  `json:"city"`
	TempCelsius float64 `json:"temp_celsius"`
}

func main() {
	ctx := log.Context(context.Background())

	client, err := buildClient()
	if err != nil {
		log.Print(ctx, log.KV{K: "event", V: "client_unavailable"}, log.KV{K: "error", V: err.Error()})
		os.Exit(1)
	}

	co := mcp.New(mcp.Options{HealthCheckInterval: 30 * time.Second})
	defer co.StopAll(ctx)

	if server := os.Getenv("LLMFABRIC_DEMO_MCP_SERVER"); server != "" {
		result := co.StartAllAndWait(ctx, []mcp.ServerSpec{
			{ID: "tools", Transport: mcp.TransportStdio, Command: server},
		})
		for _, f := range result.FailedServers {
			log.Print(ctx, log.KV{K: "event", V: "mcp_server_failed"}, log.KV{K: "server", V: f.ServerID}, log.KV{K: "error", V: f.Message})
		}
	}

	maxTokens := 256
	req := &model.CompletionRequest{
		Messages: []model.Message{
			model.System("Report the current weather as strict JSON."),
			model.UserText("What's the weather in Lisbon?"),
		},
		Config: model.CompletionConfig{MaxTokens: &maxTokens},
	}

	resp, err := structured.Generate[weatherReport](ctx, client, req, structured.ModeNative)
	if err != nil {
		log.Print(ctx, log.KV{K: "event", V: "structured_generate_failed"}, log.KV{K: "error", V: err.Error()})
		os.Exit(1)
	}

	out, _ := json.Marshal(resp.Data)
	fmt.Println(string(out))

	for _, tool := range co.AvailableTools() {
		fmt.Printf("available tool: %s.%s\n", tool.ServerID, tool.Name)
	}
}

func buildClient() (model.Client, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
	}
	return anthropic.NewFromAPIKey(apiKey, "claude-sonnet-4-5")
}
