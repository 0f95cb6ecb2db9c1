// ABOUTME: MCP server assembly
// ABOUTME: Registers every scheduling tool, resource and prompt on one server
package handlers

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/spruce/backend"
	"github.com/harperreed/spruce/mutation"
)

// NewServer builds the MCP server. The executor's store should already be loaded and kept
// current by a sync subscription.
func NewServer(exec *mutation.Executor, b backend.Backend, version string) *mcp.Server {
	prospects := NewProspectHandlers(exec)
	reminders := NewReminderHandlers(exec)
	locations := NewLocationHandlers(b)
	resources := NewResourceHandlers(exec, b)
	prompts := NewPromptHandlers(exec)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "spruce",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_prospect",
		Description: "Book a new cleaning prospect with at least one service",
	}, prospects.CreateProspect)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_prospect",
		Description: "Fetch one prospect with its services and reminders",
	}, prospects.GetProspect)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_prospect",
		Description: "Change fields of an existing prospect; unset fields keep their value",
	}, prospects.UpdateProspect)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_prospect",
		Description: "Delete a prospect and everything attached to it",
	}, prospects.DeleteProspect)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "move_prospect",
		Description: "Move a prospect to a status column at a given position on the board",
	}, prospects.MoveProspect)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "retry_prospect",
		Description: "Resubmit a prospect whose creation failed",
	}, prospects.RetryProspect)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_prospects",
		Description: "List prospects, optionally within a start-time range or one status column",
	}, prospects.ListProspects)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_reminder",
		Description: "Add a follow-up reminder to a prospect (one per day, limited per prospect)",
	}, reminders.AddReminder)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "toggle_reminder",
		Description: "Mark a reminder done or open",
	}, reminders.ToggleReminder)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_reminder",
		Description: "Remove a reminder from a prospect",
	}, reminders.DeleteReminder)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_locations",
		Description: "List service-area locations",
	}, locations.ListLocations)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_location",
		Description: "Add a service-area location",
	}, locations.AddLocation)

	server.AddResource(&mcp.Resource{
		Name:        "board",
		URI:         uriScheme + "board",
		MIMEType:    "application/json",
		Description: "Kanban board: prospects grouped by status in board order",
	}, resources.ReadResource)

	server.AddResource(&mcp.Resource{
		Name:        "prospects",
		URI:         uriScheme + "prospects",
		MIMEType:    "application/json",
		Description: "Every loaded prospect ordered by start time",
	}, resources.ReadResource)

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		Name:        "prospect",
		URITemplate: uriScheme + "prospects/{id}",
		MIMEType:    "application/json",
		Description: "One prospect by ID",
	}, resources.ReadResource)

	server.AddResource(&mcp.Resource{
		Name:        "locations",
		URI:         uriScheme + "locations",
		MIMEType:    "application/json",
		Description: "Service-area locations",
	}, resources.ReadResource)

	server.AddPrompt(&mcp.Prompt{
		Name:        "daily-agenda",
		Description: "Briefing of one day's bookings and due reminders",
		Arguments: []*mcp.PromptArgument{
			{Name: "date", Description: "Day as YYYY-MM-DD (default today)"},
		},
	}, prompts.GetPrompt)

	server.AddPrompt(&mcp.Prompt{
		Name:        "follow-up-plan",
		Description: "Suggest follow-up reminders for one prospect",
		Arguments: []*mcp.PromptArgument{
			{Name: "prospect_id", Description: "Prospect ID", Required: true},
		},
	}, prompts.GetPrompt)

	return server
}
