package orch

import (
	"fmt"
	"strings"

	"agentd/pkg/proto"
)

const understandingPrompt = `You are a coding agent exploring a repository to understand a task.
You have read-only tools: read_file, list_directory, search_code, index_symbols.
Explore only what the task requires. When you understand enough, stop calling
tools and reply with a concise summary of the relevant code: the files
involved, how they interact, and what will need to change.`

const planningPrompt = `You are a coding agent planning how to carry out a task.
Reply with a numbered list of concrete steps, one per line, in execution
order. You may append a tool hint in brackets, e.g. "[write_file]". Do not
call tools and do not include anything except the numbered list.`

const executingPrompt = `You are a coding agent carrying out a planned task.
You have the full toolset: read_file, list_directory, search_code,
index_symbols, write_file, delete_file, run_command. File mutations are
staged for human review, never applied directly, so stage every change the
task needs. The plan is a guide, not a straitjacket; adapt if the code
demands it. When all changes are staged, stop calling tools and reply with a
short description of what you changed.`

func understandingUserMessage(task string) string {
	return fmt.Sprintf("Task: %s\n\nExplore the repository and summarize what is relevant to this task.", task)
}

func planningUserMessage(task, summary string) string {
	return fmt.Sprintf("Task: %s\n\nRepository summary:\n%s\n\nProduce the numbered plan.", task, summary)
}

const planCorrectionMessage = `Your previous reply did not contain a numbered list of steps.
Reply again with only a numbered list, one step per line, like:
1. First step
2. Second step`

func executingUserMessage(task, summary string, plan []proto.PlanStep) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\nRepository summary:\n%s\n\nPlan:\n", task, summary)
	for i, step := range plan {
		fmt.Fprintf(&b, "%d. %s", i+1, step.Description)
		if step.Tool != "" {
			fmt.Fprintf(&b, " [%s]", step.Tool)
		}
		b.WriteByte('\n')
	}
	b.WriteString("\nCarry out the plan, staging every file change.")
	return b.String()
}
