package orch

import (
	"fmt"
	"regexp"
	"strings"

	"agentd/pkg/proto"
)

// stepPattern matches one numbered plan line: "1. description" or
// "2) description". Surrounding prose is ignored.
var stepPattern = regexp.MustCompile(`^\s*\d+[.)]\s+(.+)$`)

// toolHintPattern matches a trailing tool hint: "[write_file]" or
// "[tool: write_file]".
var toolHintPattern = regexp.MustCompile(`\[(?:tool:\s*)?([a-z_]+)\]\s*$`)

// ParsePlan extracts ordered plan steps from the planning generation. The
// model is asked for a numbered list; lines that are not numbered steps are
// treated as prose and skipped. An output with no steps is a parse error.
func ParsePlan(text string) ([]proto.PlanStep, error) {
	var steps []proto.PlanStep

	for _, line := range strings.Split(text, "\n") {
		m := stepPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		desc := strings.TrimSpace(m[1])

		step := proto.PlanStep{Status: proto.StepPending}
		if hint := toolHintPattern.FindStringSubmatch(desc); hint != nil {
			step.Tool = hint[1]
			desc = strings.TrimSpace(strings.TrimSuffix(desc, hint[0]))
		}
		if desc == "" {
			continue
		}
		step.Description = desc
		steps = append(steps, step)
	}

	if len(steps) == 0 {
		return nil, fmt.Errorf("no numbered plan steps found in output")
	}
	return steps, nil
}
