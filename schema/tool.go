package schema

import (
	"bytes"
	"encoding/json"
)

type (
	// Tool describes a tool advertised by tools/list
	Tool struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		InputSchema ToolInputSchema `json:"inputSchema"`
	}

	// ToolInputSchema is a JSON schema shaped parameter descriptor
	ToolInputSchema struct {
		Type       string                  `json:"type"`
		Properties map[string]ToolProperty `json:"properties"`
		Required   []string                `json:"required"`
	}

	// ToolProperty describes a single tool parameter
	ToolProperty struct {
		Type        string `json:"type"`
		Description string `json:"description,omitempty"`
	}

	// ListToolsResult represents tools/list result
	ListToolsResult struct {
		Tools []Tool `json:"tools"`
	}

	// CallToolRequestParams holds tools/call parameters
	CallToolRequestParams struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments,omitempty"`
	}

	// TextContent represents a text content element of a tool result
	TextContent struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}

	// CallToolResult represents tools/call result
	CallToolResult struct {
		Content []TextContent `json:"content"`
	}
)

func objectSchema(required []string, properties map[string]ToolProperty) ToolInputSchema {
	if properties == nil {
		properties = map[string]ToolProperty{}
	}
	if required == nil {
		required = []string{}
	}
	return ToolInputSchema{Type: "object", Properties: properties, Required: required}
}

func property(kind, description string) ToolProperty {
	return ToolProperty{Type: kind, Description: description}
}

// Tools returns the static tool catalog. Changing the required parameter set of a tool
// breaks external clients.
func Tools() []Tool {
	return []Tool{
		{
			Name:        "getOpenEditors",
			Description: "Get a list of all currently open editor tabs in the IDE. Returns file paths, active state, language, and dirty (unsaved changes) status.",
			InputSchema: objectSchema(nil, nil),
		},
		{
			Name:        "getWorkspaceFolders",
			Description: "Get the workspace folder paths currently open in the IDE. Returns root paths for each workspace.",
			InputSchema: objectSchema(nil, nil),
		},
		{
			Name:        "getDiagnostics",
			Description: "Get language diagnostics (errors, warnings) for a file in the IDE editor.",
			InputSchema: objectSchema(nil, map[string]ToolProperty{
				"uri": property("string", ""),
			}),
		},
		{
			Name:        "checkDocumentDirty",
			Description: "Check whether a document open in the IDE editor has unsaved changes.",
			InputSchema: objectSchema([]string{"filePath"}, map[string]ToolProperty{
				"filePath": property("string", ""),
			}),
		},
		{
			Name:        "saveDocument",
			Description: "Save a document that is open in the IDE editor to disk.",
			InputSchema: objectSchema([]string{"filePath"}, map[string]ToolProperty{
				"filePath": property("string", ""),
			}),
		},
		{
			Name:        "getCurrentSelection",
			Description: "Get the currently selected text and cursor position in the active IDE editor tab.",
			InputSchema: objectSchema(nil, nil),
		},
		{
			Name:        "getLatestSelection",
			Description: "Get the most recent text selection made in any IDE editor tab.",
			InputSchema: objectSchema(nil, nil),
		},
		{
			Name:        "openFile",
			Description: "Open a file in an IDE editor tab. Use this tool whenever you need to show the user a file; do NOT use shell 'open' or other OS commands. Supports optional line range or text range selection to highlight a specific section.",
			InputSchema: objectSchema([]string{"filePath"}, map[string]ToolProperty{
				"filePath":  property("string", "Absolute path to the file to open"),
				"startLine": property("number", "Line number to start selection (1-based)"),
				"endLine":   property("number", "Line number to end selection (1-based)"),
				"startText": property("string", "Text string to find and start selection at"),
				"endText":   property("string", "Text string to find and end selection at"),
			}),
		},
		{
			Name:        "openDiff",
			Description: "Show a diff of proposed file changes in the IDE for the user to review, accept, or reject. Use this tool instead of directly writing files when you want the user to review changes. This is a blocking call: it waits for the user to accept or reject before returning.",
			InputSchema: objectSchema([]string{"new_file_path", "new_file_contents"}, map[string]ToolProperty{
				"old_file_path":     property("string", "Path to the original file (used to read current content)"),
				"new_file_path":     property("string", "Path where the modified file should be saved"),
				"new_file_contents": property("string", "The complete new file contents to show in the diff"),
				"tab_name":          property("string", "Display name for the diff tab"),
			}),
		},
		{
			Name:        "closeAllDiffTabs",
			Description: "Close all open diff review tabs in the IDE, rejecting any pending changes.",
			InputSchema: objectSchema(nil, nil),
		},
	}
}

// NewListToolsResult returns tools/list result
func NewListToolsResult() *ListToolsResult {
	return &ListToolsResult{Tools: Tools()}
}

// NewTextResult wraps an opaque tool payload as serialized text content
func NewTextResult(payload json.RawMessage) *CallToolResult {
	text := "null"
	if len(payload) > 0 {
		compacted := &bytes.Buffer{}
		if err := json.Compact(compacted, payload); err == nil {
			text = compacted.String()
		} else {
			text = string(payload)
		}
	}
	return &CallToolResult{Content: []TextContent{{Type: "text", Text: text}}}
}
