// Package threadagent provides the tools an agent can call and the system
// prompt that describes them.
package threadagent

import (
	"fmt"
	"net/http"

	"github.com/elee1766/threadagent/src/agent"
	"github.com/elee1766/threadagent/src/threadagent/tools/tool_listdir"
	"github.com/elee1766/threadagent/src/threadagent/tools/tool_readfile"
	"github.com/elee1766/threadagent/src/threadagent/tools/tool_searchfiles"
	"github.com/elee1766/threadagent/src/threadagent/tools/tool_webfetch"
	"github.com/elee1766/threadagent/src/threadagent/tools/tool_writefile"
	"github.com/elee1766/threadagent/src/toolexec"
	"github.com/spf13/afero"
)

// ToolsConfig selects the filesystem and HTTP client the tools use.
type ToolsConfig struct {
	Fs         afero.Fs
	HTTPClient *http.Client
	// Disabled names tools that are not registered.
	Disabled []string
}

// DefaultApprovalRequired lists the tools that wait for a decision unless
// configuration says otherwise.
var DefaultApprovalRequired = []string{tool_writefile.Name}

// ToolNames lists every tool this package provides.
func ToolNames() []string {
	return []string{
		tool_listdir.Name,
		tool_readfile.Name,
		tool_searchfiles.Name,
		tool_webfetch.Name,
		tool_writefile.Name,
	}
}

// Tools builds every tool over cfg.
func Tools(cfg ToolsConfig) ([]agent.Tool, error) {
	fs := cfg.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	builders := []func() (agent.Tool, error){
		func() (agent.Tool, error) { return tool_listdir.Tool(fs) },
		func() (agent.Tool, error) { return tool_readfile.Tool(fs) },
		func() (agent.Tool, error) { return tool_searchfiles.Tool(fs) },
		func() (agent.Tool, error) { return tool_webfetch.Tool(cfg.HTTPClient) },
		func() (agent.Tool, error) { return tool_writefile.Tool(fs) },
	}

	disabled := make(map[string]bool, len(cfg.Disabled))
	for _, name := range cfg.Disabled {
		disabled[name] = true
	}

	tools := make([]agent.Tool, 0, len(builders))
	for _, build := range builders {
		tool, err := build()
		if err != nil {
			return nil, err
		}
		if disabled[tool.GetName()] {
			continue
		}
		tools = append(tools, tool)
	}
	return tools, nil
}

// RegisterTools adds every enabled tool to registry.
func RegisterTools(registry *toolexec.Registry, cfg ToolsConfig) error {
	tools, err := Tools(cfg)
	if err != nil {
		return err
	}
	for _, tool := range tools {
		if err := registry.Register(tool); err != nil {
			return fmt.Errorf("register %s: %w", tool.GetName(), err)
		}
	}
	return nil
}
