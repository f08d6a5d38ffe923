package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/nvoss/meridian/internal/mcpserver"
	"github.com/nvoss/meridian/internal/projectstore"
	"github.com/nvoss/meridian/internal/query"
	"github.com/nvoss/meridian/internal/stream"
	"github.com/nvoss/meridian/internal/stubserver"
)

func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Submit a business analysis query",
	Long: `Submit a business analysis query under a project and stream the
multi-agent progress until the result is ready.

Examples:
  meridian ask --project p-1 "What drove the Q3 margin drop?"
  meridian ask --project p-1 --file ./financials.pdf "Summarize the attached financials"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, _ := cmd.Flags().GetString("project")
		filePaths, _ := cmd.Flags().GetStringArray("file")
		sync, _ := cmd.Flags().GetBool("sync")
		queryText := strings.Join(args, " ")

		app, err := newApp(func(percent int) {
			fmt.Fprintf(os.Stderr, "  uploading attachments: %3d%%\r", percent)
		})
		if err != nil {
			return err
		}
		defer app.Close()

		ctx, stop := commandContext()
		defer stop()

		var handle *query.Handle
		switch {
		case sync:
			handle, err = submitSync(ctx, app, projectID, queryText)
		case len(filePaths) > 0:
			attachments, rerr := readFiles(filePaths)
			if rerr != nil {
				return rerr
			}
			handle, err = app.orch.SubmitWithFiles(ctx, projectID, query.Request{QueryText: queryText}, attachments)
		default:
			handle, err = app.orch.Submit(ctx, projectID, query.Request{QueryText: queryText})
		}
		if err != nil {
			return err
		}
		for _, name := range handle.FailedFiles {
			printWarning("Attachment %s could not be ingested; the analysis runs without it.", name)
		}

		ev, err := watchQuery(handle)
		if err != nil {
			return err
		}
		saveHistory(ctx, app, projectID, handle, queryText, ev)
		return renderResult(ev)
	},
}

func init() {
	askCmd.Flags().String("project", "", "project id to run the query under")
	askCmd.Flags().StringArray("file", nil, "attach a local file (repeatable)")
	askCmd.Flags().Bool("sync", false, "re-issue the query with explicit project context")
	askCmd.MarkFlagRequired("project")
}

func submitSync(ctx context.Context, a *app, projectID, queryText string) (*query.Handle, error) {
	projectName := ""
	if p, err := a.store.GetProject(ctx, projectID); err == nil {
		projectName = p.Name
	}
	// Best-effort: tell the backend which files it should already have.
	if err := a.registry.Refresh(ctx, projectID); err != nil {
		printWarning("Could not list uploaded files: %v", err)
	}
	return a.orch.SubmitSync(ctx, projectID, queryText, projectName, a.registry.Names())
}

// saveHistory records the exchange in the project store. History is a
// convenience; failures never affect the command's outcome.
func saveHistory(ctx context.Context, a *app, projectID string, handle *query.Handle, queryText string, ev *stream.StatusEvent) {
	if projectID == "" {
		return
	}
	_, err := a.store.SaveChatMessage(ctx, projectstore.ChatMessage{
		ProjectID: projectID,
		Role:      "user",
		Content:   queryText,
		EntryID:   handle.EntryID,
	})
	if err == nil {
		content := ev.Message
		if len(ev.Result) > 0 {
			content = string(ev.Result)
		}
		_, err = a.store.SaveChatMessage(ctx, projectstore.ChatMessage{
			ProjectID: projectID,
			Role:      "assistant",
			Content:   content,
			EntryID:   handle.EntryID,
		})
	}
	if err != nil {
		printWarning("Could not save chat history: %v", err)
	}
}

// --- followup ---

var followupCmd = &cobra.Command{
	Use:   "followup <query-id> <question>",
	Short: "Ask a follow-up question on a previous analysis",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, _ := cmd.Flags().GetString("project")
		filePaths, _ := cmd.Flags().GetStringArray("file")
		parentID := args[0]
		queryText := strings.Join(args[1:], " ")

		app, err := newApp(nil)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx, stop := commandContext()
		defer stop()

		var handle *query.Handle
		if len(filePaths) > 0 {
			if projectID == "" {
				return fmt.Errorf("--project is required when attaching files")
			}
			attachments, rerr := readFiles(filePaths)
			if rerr != nil {
				return rerr
			}
			handle, err = app.orch.SubmitFollowupWithFiles(ctx, projectID, parentID, query.Request{QueryText: queryText}, attachments)
		} else {
			handle, err = app.orch.SubmitFollowup(ctx, parentID, query.Request{QueryText: queryText})
		}
		if err != nil {
			return err
		}
		for _, name := range handle.FailedFiles {
			printWarning("Attachment %s could not be ingested; the follow-up runs without it.", name)
		}

		ev, err := watchQuery(handle)
		if err != nil {
			return err
		}
		saveHistory(ctx, app, projectID, handle, queryText, ev)
		return renderResult(ev)
	},
}

func init() {
	followupCmd.Flags().String("project", "", "project id (required with --file)")
	followupCmd.Flags().StringArray("file", nil, "attach a local file (repeatable)")
}

// --- result ---

var resultCmd = &cobra.Command{
	Use:   "result <query-id>",
	Short: "Fetch the stored result of a completed or failed query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(nil)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx, stop := commandContext()
		defer stop()

		ev, err := app.orch.FetchFullResult(ctx, args[0], "")
		if err != nil {
			return err
		}
		return renderResult(ev)
	},
}

// --- refresh ---

var refreshCmd = &cobra.Command{
	Use:   "refresh <project-id>",
	Short: "Recompute prior analyses for a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		targetQueryID, _ := cmd.Flags().GetString("query")

		app, err := newApp(nil)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx, stop := commandContext()
		defer stop()

		handle, err := app.orch.Refresh(ctx, args[0], targetQueryID)
		if err != nil {
			return err
		}
		ev, err := watchQuery(handle)
		if err != nil {
			return err
		}
		return renderResult(ev)
	},
}

func init() {
	refreshCmd.Flags().String("query", "", "query id to re-attach to (default: first refreshed query)")
}

// --- approve ---

var approveCmd = &cobra.Command{
	Use:   "approve <query-id> <message>",
	Short: "Send approval feedback for an analysis awaiting review",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(nil)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx, stop := commandContext()
		defer stop()

		queryID := args[0]
		message := strings.Join(args[1:], " ")
		if err := app.orch.SubmitApprovalFeedback(ctx, queryID, message); err != nil {
			return err
		}
		printSuccess("Feedback recorded for query %s", queryID)
		return nil
	},
}

// --- files ---

var filesCmd = &cobra.Command{
	Use:   "files <project-id>",
	Short: "List files known to a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(nil)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx, stop := commandContext()
		defer stop()

		if err := app.registry.Refresh(ctx, args[0]); err != nil {
			return err
		}
		names := app.registry.Names()
		if len(names) == 0 {
			fmt.Println("No files found.")
			return nil
		}

		rows := make([][]string, 0, len(names))
		for _, name := range names {
			id, _ := app.registry.Lookup(name)
			rows = append(rows, []string{name, id})
		}
		fmt.Println(renderTable([]string{"Name", "File ID"}, rows))
		return nil
	},
}

// --- project ---

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage analysis projects",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")

		app, err := newApp(nil)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx, stop := commandContext()
		defer stop()

		p, err := app.store.CreateProject(ctx, args[0], description)
		if err != nil {
			return err
		}
		printSuccess("Created project %s (%s)", p.Name, p.ID)
		return nil
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(nil)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx, stop := commandContext()
		defer stop()

		projects, err := app.store.ListProjects(ctx)
		if err != nil {
			return err
		}
		if len(projects) == 0 {
			fmt.Println("No projects found.")
			return nil
		}

		rows := make([][]string, 0, len(projects))
		for _, p := range projects {
			rows = append(rows, []string{p.ID, p.Name, p.Description, formatTime(p.CreatedAt)})
		}
		fmt.Println(renderTable([]string{"ID", "Name", "Description", "Created"}, rows))
		return nil
	},
}

var projectDeleteCmd = &cobra.Command{
	Use:   "delete <project-id>",
	Short: "Delete a project and its chat history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This deletes the project and its chat history. Use --confirm to proceed.")
			return nil
		}

		app, err := newApp(nil)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx, stop := commandContext()
		defer stop()

		if err := app.store.DeleteProject(ctx, args[0]); err != nil {
			if errors.Is(err, projectstore.ErrNotFound) {
				return fmt.Errorf("project %s does not exist", args[0])
			}
			return err
		}
		printSuccess("Deleted project %s", args[0])
		return nil
	},
}

var projectHistoryCmd = &cobra.Command{
	Use:   "history <project-id>",
	Short: "Show a project's chat history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(nil)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx, stop := commandContext()
		defer stop()

		messages, err := app.store.ListChatMessages(ctx, args[0])
		if err != nil {
			return err
		}
		if len(messages) == 0 {
			fmt.Println("No history yet.")
			return nil
		}
		for _, m := range messages {
			content := m.Content
			if len(content) > 400 {
				content = content[:400] + "..."
			}
			fmt.Printf("%s %s\n%s\n\n",
				colorize(colorBold, "["+m.Role+"]"), formatTime(m.CreatedAt), content)
		}
		return nil
	},
}

func init() {
	projectCreateCmd.Flags().String("description", "", "project description")
	projectDeleteCmd.Flags().Bool("confirm", false, "confirm deletion")
	projectCmd.AddCommand(projectCreateCmd)
	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectDeleteCmd)
	projectCmd.AddCommand(projectHistoryCmd)
}

// --- stub ---

var stubCmd = &cobra.Command{
	Use:   "stub",
	Short: "Run a local stand-in backend for offline development",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		token, _ := cmd.Flags().GetString("token")

		ctx, stop := commandContext()
		defer stop()

		srv := &http.Server{
			Addr:    addr,
			Handler: stubserver.New(token).Handler(),
		}

		errCh := make(chan error, 1)
		go func() {
			printStep("Stub backend listening on %s", addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case <-ctx.Done():
			printStep("Shutting down...")
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("stub server error: %w", err)
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	stubCmd.Flags().String("addr", "127.0.0.1:8600", "listen address")
	stubCmd.Flags().String("token", "", "bearer token to require (empty disables auth)")
}

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve Meridian tools over MCP on stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(nil)
		if err != nil {
			return err
		}
		defer app.Close()

		s := mcpserver.New(mcpserver.Deps{
			Orchestrator: app.orch,
			Store:        app.store,
		})
		return server.ServeStdio(s)
	},
}
