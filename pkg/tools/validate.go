package tools

import (
	"fmt"
	"sort"
	"strings"
)

// ValidateArgs checks args against the tool's input schema: every required
// property must be present and every supplied property must match its declared
// type. Violations are returned as a single descriptive error suitable for
// feeding back to the model.
func ValidateArgs(schema InputSchema, args map[string]any) error {
	var problems []string

	for _, req := range schema.Required {
		if _, ok := args[req]; !ok {
			problems = append(problems, fmt.Sprintf("missing required argument %q", req))
		}
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		prop, known := schema.Properties[key]
		if !known {
			problems = append(problems, fmt.Sprintf("unknown argument %q", key))
			continue
		}
		if err := checkType(key, prop, args[key]); err != nil {
			problems = append(problems, err.Error())
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid arguments: %s", strings.Join(problems, "; "))
	}
	return nil
}

func checkType(key string, prop Property, value any) error {
	switch prop.Type {
	case "string":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("argument %q must be a string", key)
		}
		if len(prop.Enum) > 0 && !containsString(prop.Enum, s) {
			return fmt.Errorf("argument %q must be one of %s", key, strings.Join(prop.Enum, ", "))
		}
	case "integer":
		switch v := value.(type) {
		case float64:
			if v != float64(int64(v)) {
				return fmt.Errorf("argument %q must be an integer", key)
			}
		case int, int64:
		default:
			return fmt.Errorf("argument %q must be an integer", key)
		}
	case "number":
		switch value.(type) {
		case float64, int, int64:
		default:
			return fmt.Errorf("argument %q must be a number", key)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("argument %q must be a boolean", key)
		}
	case "array":
		if _, ok := value.([]any); !ok {
			return fmt.Errorf("argument %q must be an array", key)
		}
	case "object":
		if _, ok := value.(map[string]any); !ok {
			return fmt.Errorf("argument %q must be an object", key)
		}
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
