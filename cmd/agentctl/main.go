// agentctl submits a task to a running agentd and streams its events to the
// terminal. With -approve the staged changeset is applied automatically once
// the task reaches awaiting_approval; otherwise the task is left waiting and
// can be decided later via POST /api/task/{id}/approve.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"agentd/pkg/events"
	"agentd/pkg/proto"
)

func main() {
	var serverAddr string
	var repoURL string
	var branch string
	var autoApprove bool
	flag.StringVar(&serverAddr, "server", "localhost:8080", "agentd host:port")
	flag.StringVar(&repoURL, "repo", "", "Repository URL to clone for the task")
	flag.StringVar(&branch, "branch", "", "Branch to check out (requires -repo)")
	flag.BoolVar(&autoApprove, "approve", false, "Apply the changeset without prompting")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] \"task description\"\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	req := proto.TaskRequest{
		Task:    flag.Arg(0),
		RepoURL: repoURL,
		Branch:  branch,
	}

	exitCode := 0
	taskID := ""
	client := events.NewClient("ws://"+serverAddr+"/ws/task", func(env proto.Envelope) {
		switch env.Type {
		case proto.EventPhase:
			var data proto.PhaseData
			if env.DecodeData(&data) != nil {
				return
			}
			if data.TaskID != "" {
				taskID = data.TaskID
			}
			fmt.Printf("phase: %s\n", data.Phase)
			if data.Phase == proto.PhaseAwaitingApproval {
				handleApproval(serverAddr, taskID, autoApprove)
			}
		case proto.EventToolCall:
			var data proto.ToolCallData
			if env.DecodeData(&data) == nil {
				fmt.Printf("  tool: %s %s\n", data.Name, compactArgs(data.Args))
			}
		case proto.EventSummary:
			var data proto.SummaryData
			if env.DecodeData(&data) == nil {
				fmt.Printf("summary:\n%s\n", indent(data.Text))
			}
		case proto.EventPlan:
			var data proto.PlanData
			if env.DecodeData(&data) == nil {
				fmt.Println("plan:")
				for i, step := range data.Steps {
					fmt.Printf("  %d. %s\n", i+1, step.Description)
				}
			}
		case proto.EventComplete:
			var data proto.CompleteData
			if env.DecodeData(&data) == nil {
				fmt.Printf("complete: %d change(s)\n", len(data.Changes))
				for _, ch := range data.Changes {
					fmt.Printf("  %s %s\n", ch.ChangeType, ch.Path)
				}
			}
		case proto.EventError:
			var data proto.ErrorData
			if env.DecodeData(&data) == nil {
				fmt.Fprintf(os.Stderr, "error [%s]: %s\n", data.Code, data.Message)
			}
			exitCode = 1
		}
	})

	if err := client.Run(context.Background(), req); err != nil {
		fmt.Fprintf(os.Stderr, "stream failed: %v\n", err)
		if taskID != "" {
			fmt.Fprintf(os.Stderr, "re-query with: GET http://%s/api/task/%s\n", serverAddr, taskID)
		}
		os.Exit(1)
	}
	os.Exit(exitCode)
}

// handleApproval decides the pending changeset over REST. Without -approve it
// prompts on stdin; a non-interactive run leaves the task waiting.
func handleApproval(serverAddr, taskID string, autoApprove bool) {
	if taskID == "" {
		return
	}

	approved := autoApprove
	if !autoApprove {
		fmt.Printf("Apply staged changes for task %s? [y/N] ", taskID)
		var answer string
		if _, err := fmt.Scanln(&answer); err != nil {
			return
		}
		approved = strings.EqualFold(answer, "y") || strings.EqualFold(answer, "yes")
	}

	body, _ := json.Marshal(map[string]bool{"approved": approved})
	url := fmt.Sprintf("http://%s/api/task/%s/approve", serverAddr, taskID)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "approval request failed: %v\n", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "approval rejected by server: %s\n", resp.Status)
	}
}

func compactArgs(args map[string]any) string {
	raw, err := json.Marshal(args)
	if err != nil {
		return ""
	}
	if len(raw) > 120 {
		return string(raw[:117]) + "..."
	}
	return string(raw)
}

func indent(text string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, line := range lines {
		lines[i] = "  " + line
	}
	return strings.Join(lines, "\n")
}
