package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	timelinemcp "github.com/devricklin/chat-timeline/internal/mcp"
)

// Tools is the timeline backend behind the MCP tools
type Tools interface {
	GetTimeline(limit int) (*timelinemcp.TimelineResult, error)
	Vote(pollID string, optionIDs []string) error
	MarkVisible(ids []string) ([]int64, error)
	SendMessage(content string) error
	React(messageID, emoji string) error
}

// TimelineMCPServer exposes the open conversation as MCP tools
type TimelineMCPServer struct {
	server *mcp.Server
	tools  Tools
}

// NewServer creates a new timeline MCP server
func NewServer(tools Tools) *TimelineMCPServer {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "chat-timeline",
		Version: "v1.0.0",
	}, nil)

	s := &TimelineMCPServer{
		server: server,
		tools:  tools,
	}
	s.registerTools()

	return s
}

// registerTools registers all timeline MCP tools
func (s *TimelineMCPServer) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "timeline_get",
		Description: "Get the merged timeline of the open group conversation, grouped by day. Returns the newest messages and polls with their vote counts.",
	}, s.handleGetTimeline)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "timeline_vote",
		Description: "Vote on a poll of the open conversation. The vote is shown immediately and confirmed by the server.",
	}, s.handleVote)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "timeline_mark_visible",
		Description: "Report timeline items as seen. Returns the message ids acknowledged with a read receipt.",
	}, s.handleMarkVisible)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "timeline_send_message",
		Description: "Send a text message to the open group conversation.",
	}, s.handleSendMessage)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "timeline_react",
		Description: "Add an emoji reaction to a message of the open group conversation.",
	}, s.handleReact)
}

// GetTimelineInput limits the number of items returned
type GetTimelineInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of items to return, newest last (default 50)"`
}

// GetTimelineOutput contains the flattened timeline
type GetTimelineOutput struct {
	Timeline *timelinemcp.TimelineResult `json:"timeline,omitempty"`
	Error    string                      `json:"error,omitempty"`
}

func (s *TimelineMCPServer) handleGetTimeline(ctx context.Context, req *mcp.CallToolRequest, input GetTimelineInput) (*mcp.CallToolResult, GetTimelineOutput, error) {
	result, err := s.tools.GetTimeline(input.Limit)
	if err != nil {
		return nil, GetTimelineOutput{Error: err.Error()}, nil
	}
	return nil, GetTimelineOutput{Timeline: result}, nil
}

// VoteInput is the input for the vote tool
type VoteInput struct {
	PollID    string   `json:"poll_id" jsonschema:"The id of the poll"`
	OptionIDs []string `json:"option_ids" jsonschema:"The ids of the chosen options"`
}

// ActionOutput is the output of tools that only report success
type ActionOutput struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (s *TimelineMCPServer) handleVote(ctx context.Context, req *mcp.CallToolRequest, input VoteInput) (*mcp.CallToolResult, ActionOutput, error) {
	if err := s.tools.Vote(input.PollID, input.OptionIDs); err != nil {
		return nil, ActionOutput{Success: false, Error: err.Error()}, nil
	}
	return nil, ActionOutput{Success: true}, nil
}

// MarkVisibleInput lists the ids of the items on screen
type MarkVisibleInput struct {
	IDs []string `json:"ids" jsonschema:"The ids of the visible timeline items"`
}

// MarkVisibleOutput lists the acknowledged message ids
type MarkVisibleOutput struct {
	Acknowledged []int64 `json:"acknowledged"`
	Error        string  `json:"error,omitempty"`
}

func (s *TimelineMCPServer) handleMarkVisible(ctx context.Context, req *mcp.CallToolRequest, input MarkVisibleInput) (*mcp.CallToolResult, MarkVisibleOutput, error) {
	acked, err := s.tools.MarkVisible(input.IDs)
	if err != nil {
		return nil, MarkVisibleOutput{Acknowledged: []int64{}, Error: err.Error()}, nil
	}
	return nil, MarkVisibleOutput{Acknowledged: acked}, nil
}

// SendMessageInput is the input for the send_message tool
type SendMessageInput struct {
	Content string `json:"content" jsonschema:"The message content to send"`
}

func (s *TimelineMCPServer) handleSendMessage(ctx context.Context, req *mcp.CallToolRequest, input SendMessageInput) (*mcp.CallToolResult, ActionOutput, error) {
	if err := s.tools.SendMessage(input.Content); err != nil {
		return nil, ActionOutput{Success: false, Error: err.Error()}, nil
	}
	return nil, ActionOutput{Success: true}, nil
}

// ReactInput is the input for the react tool
type ReactInput struct {
	MessageID string `json:"message_id" jsonschema:"The id of the message to react to"`
	Emoji     string `json:"emoji" jsonschema:"The emoji to add"`
}

func (s *TimelineMCPServer) handleReact(ctx context.Context, req *mcp.CallToolRequest, input ReactInput) (*mcp.CallToolResult, ActionOutput, error) {
	if err := s.tools.React(input.MessageID, input.Emoji); err != nil {
		return nil, ActionOutput{Success: false, Error: err.Error()}, nil
	}
	return nil, ActionOutput{Success: true}, nil
}

// Run starts the MCP server with stdio transport
func (s *TimelineMCPServer) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// GetServer returns the underlying MCP server
func (s *TimelineMCPServer) GetServer() *mcp.Server {
	return s.server
}
