package threadagent

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/elee1766/threadagent/src/toolexec"
	"github.com/shirou/gopsutil/v3/host"
	jsonschema "github.com/swaggest/jsonschema-go"
)

const (
	introSection = `You are an assistant working inside a conversation thread. Use the instructions below and the tools available to you to help the user.

IMPORTANT: Never generate or guess URLs unless you are confident they help the user. You may use URLs provided by the user or found in local files.`

	styleSection = `# Tone and style
Be concise and direct. Your output is shown in a terminal and may use Github-flavored markdown.
Only use tools to complete tasks. Never use tool arguments to talk to the user.
Do not add preamble or postamble unless the user asks for it.`

	toolPolicySection = `# Tool usage policy
- Propose at most ONE tool call per response. Any further tool calls in the same response are discarded.
- After a tool call, wait for its result in the next turn before deciding what to do next.
- Some tools require the user's approval. When you call one, execution pauses until the user decides. If they decline, the result tells you why; take the reason into account and do not repeat the same call unchanged.
- Read a file before you replace it.
- Tool results may include <system-reminder> tags. They carry information from the system, not from the user.`
)

// environmentInfo describes the host the tools run on.
func environmentInfo(now time.Time) string {
	cwd, _ := os.Getwd()
	return fmt.Sprintf(`Here is useful information about the environment you are running in:
<env>
Working directory: %s
Platform: %s
OS Version: %s
Today's date: %s
</env>`, cwd, runtime.GOOS, osVersion(), now.Format("2006-01-02"))
}

func osVersion() string {
	info, err := host.Info()
	if err != nil {
		return runtime.GOOS
	}
	if info.PlatformVersion != "" {
		return fmt.Sprintf("%s %s", info.Platform, info.PlatformVersion)
	}
	if info.Platform != "" {
		return info.Platform
	}
	return runtime.GOOS
}

func schemaType(schema *jsonschema.Schema) string {
	if schema.Type == nil {
		return "object"
	}
	if schema.Type.SimpleTypes != nil {
		return string(*schema.Type.SimpleTypes)
	}
	if len(schema.Type.SliceOfSimpleTypeValues) > 0 {
		return string(schema.Type.SliceOfSimpleTypeValues[0])
	}
	return "object"
}

func enumSuffix(schema *jsonschema.Schema) string {
	if len(schema.Enum) == 0 {
		return ""
	}
	values := make([]string, 0, len(schema.Enum))
	for _, e := range schema.Enum {
		values = append(values, fmt.Sprintf(`"%v"`, e))
	}
	return fmt.Sprintf(" (enum: %s)", strings.Join(values, " | "))
}

// formatSchemaForPrompt renders a JSON schema as compact indented text.
func formatSchemaForPrompt(schema *jsonschema.Schema, indentLevel int) string {
	if schema == nil {
		return "unknown"
	}

	indent := strings.Repeat("  ", indentLevel)
	var parts []string

	if schema.Description != nil && *schema.Description != "" {
		parts = append(parts, fmt.Sprintf("%s# %s", indent, *schema.Description))
	}

	line := indent + schemaType(schema) + enumSuffix(schema)
	if schema.Items == nil && len(schema.Properties) > 0 && len(schema.Required) > 0 {
		line += fmt.Sprintf(" (required: %s)", strings.Join(schema.Required, ", "))
	}
	parts = append(parts, line)

	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		prop := schema.Properties[name].TypeObject
		if prop == nil {
			continue
		}
		line := fmt.Sprintf("%s  %s: %s%s", indent, name, schemaType(prop), enumSuffix(prop))
		if prop.Description != nil && *prop.Description != "" {
			line += " # " + *prop.Description
		}
		parts = append(parts, line)
	}

	if schema.Items != nil && schema.Items.SchemaOrBool != nil && schema.Items.SchemaOrBool.TypeObject != nil {
		items := formatSchemaForPrompt(schema.Items.SchemaOrBool.TypeObject, indentLevel+1)
		parts = append(parts, fmt.Sprintf("%s  items: %s", indent, strings.TrimSpace(items)))
	}

	return strings.Join(parts, "\n")
}

// formatToolsForPrompt lists every registered tool with its schema and
// approval classification.
func formatToolsForPrompt(registry *toolexec.Registry) string {
	if registry == nil {
		return "No tools available."
	}
	entries := registry.Entries()
	if len(entries) == 0 {
		return "No tools available."
	}

	blocks := make([]string, 0, len(entries))
	for _, entry := range entries {
		tool := entry.Tool
		approval := "runs immediately"
		if entry.RequiresApproval {
			approval = "requires user approval"
		}
		parts := []string{
			fmt.Sprintf("Tool: %s (%s)", tool.GetName(), approval),
			fmt.Sprintf("Description: %s", tool.GetDescription()),
			"Input Schema:",
		}
		if tool.GetParameters() != nil {
			parts = append(parts, formatSchemaForPrompt(tool.GetParameters(), 1))
		} else {
			parts = append(parts, "  # No schema defined")
		}
		blocks = append(blocks, strings.Join(parts, "\n"))
	}

	return fmt.Sprintf("You have access to the following tools:\n\n%s", strings.Join(blocks, "\n\n---\n\n"))
}

// GenerateSystemPrompt assembles the system prompt for the tools in registry.
func GenerateSystemPrompt(registry *toolexec.Registry) string {
	return generateSystemPrompt(registry, time.Now())
}

func generateSystemPrompt(registry *toolexec.Registry, now time.Time) string {
	sections := []string{
		introSection,
		styleSection,
		toolPolicySection,
		environmentInfo(now),
		formatToolsForPrompt(registry),
	}
	return strings.Join(sections, "\n\n")
}
