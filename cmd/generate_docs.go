package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/template"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/inboxdigest/internal/config"
	"github.com/teemow/inboxdigest/internal/logging"
	"github.com/teemow/inboxdigest/internal/server"
)

// Tool categories in the order they are documented.
const (
	categoryMail    = "Mail Tools"
	categorySummary = "Summary Tools"
	categoryDigest  = "Digest Tools"
	categoryCache   = "Cache Tools"
	categoryOther   = "Other"
)

var categoryOrder = []string{categoryMail, categorySummary, categoryDigest, categoryCache, categoryOther}

var mailTools = map[string]bool{
	"auth_status": true,
	"list_labels": true,
	"list_emails": true,
	"get_email":   true,
}

func newGenerateDocsCmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate MCP tool documentation",
		Long: `Write a markdown reference of every MCP tool served by "inboxdigest serve",
built from the registered tool definitions. Tools that need --yolo are marked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerateDocs(cmd.OutOrStdout(), cmd.ErrOrStderr(), outputFile)
		},
	}
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	return cmd
}

func runGenerateDocs(stdout, stderr io.Writer, outputFile string) error {
	docs, err := collectToolDocs()
	if err != nil {
		return err
	}

	var sb strings.Builder
	if err := toolsReference.Execute(&sb, docs); err != nil {
		return fmt.Errorf("failed to render tool documentation: %w", err)
	}

	if outputFile == "" {
		_, err = io.WriteString(stdout, sb.String())
		return err
	}
	if err := os.WriteFile(outputFile, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	fmt.Fprintf(stderr, "Documentation written to: %s\n", outputFile)
	return nil
}

type toolArg struct {
	Name        string
	Type        string
	Required    bool
	Description string
}

type toolDoc struct {
	Name        string
	Description string
	Write       bool
	Args        []toolArg
}

type toolCategory struct {
	Name   string
	Anchor string
	Tools  []toolDoc
}

// collectToolDocs groups every tool by category. Tools missing from the
// read-only registration are the ones that need --yolo.
func collectToolDocs() ([]toolCategory, error) {
	all, err := listTools(false)
	if err != nil {
		return nil, err
	}
	readOnly, err := listTools(true)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]toolDoc)
	for name, tool := range all {
		_, safe := readOnly[name]
		cat := getCategoryFromToolName(name)
		grouped[cat] = append(grouped[cat], newToolDoc(tool, !safe))
	}

	var out []toolCategory
	for _, cat := range categoryOrder {
		tools := grouped[cat]
		if len(tools) == 0 {
			continue
		}
		slices.SortFunc(tools, func(a, b toolDoc) int { return strings.Compare(a.Name, b.Name) })
		out = append(out, toolCategory{
			Name:   cat,
			Anchor: strings.ToLower(strings.ReplaceAll(cat, " ", "-")),
			Tools:  tools,
		})
	}
	return out, nil
}

func newToolDoc(tool mcp.Tool, write bool) toolDoc {
	doc := toolDoc{Name: tool.Name, Description: tool.Description, Write: write}
	for name, raw := range tool.InputSchema.Properties {
		prop, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		arg := toolArg{
			Name:     name,
			Type:     "any",
			Required: slices.Contains(tool.InputSchema.Required, name),
		}
		if t, ok := prop["type"].(string); ok {
			arg.Type = t
		}
		if d, ok := prop["description"].(string); ok {
			arg.Description = d
		}
		doc.Args = append(doc.Args, arg)
	}
	slices.SortFunc(doc.Args, func(a, b toolArg) int { return strings.Compare(a.Name, b.Name) })
	return doc
}

// listTools registers the tools on a throwaway server backed by memory
// stores and returns them by name.
func listTools(readOnly bool) (map[string]mcp.Tool, error) {
	cfg := config.Default()
	cfg.Store = config.StoreMemory

	sc, err := server.NewServerContext(context.Background(), cfg, server.WithLogger(logging.Discard()))
	if err != nil {
		return nil, fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() { _ = sc.Shutdown() }()

	mcpSrv := mcpserver.NewMCPServer("inboxdigest", version, mcpserver.WithToolCapabilities(true))
	if err := registerAllTools(mcpSrv, sc, readOnly); err != nil {
		return nil, err
	}

	tools := make(map[string]mcp.Tool)
	for name, st := range mcpSrv.ListTools() {
		tools[name] = st.Tool
	}
	return tools, nil
}

func getCategoryFromToolName(name string) string {
	switch {
	case name == "cleanup_cache":
		return categoryCache
	case strings.Contains(name, "digest"):
		return categoryDigest
	case strings.Contains(name, "summar"):
		return categorySummary
	case mailTools[name]:
		return categoryMail
	}
	return categoryOther
}

var toolsReference = template.Must(template.New("tools").Parse(`# MCP Tools Reference

Every tool served by ` + "`inboxdigest serve`" + `. This file is generated from the tool definitions.

## Table of Contents

{{range .}}- [{{.Name}}](#{{.Anchor}})
{{end}}
## Read-Only Mode

The server starts read-only. Tools marked **requires --yolo** change state and are only registered by ` + "`inboxdigest serve --yolo`" + `.
{{range .}}
## {{.Name}}
{{range .Tools}}
### {{.Name}}

{{if .Description}}{{.Description}}

{{end}}{{if .Write}}**requires --yolo**

{{end}}{{if .Args}}| Argument | Type | Required | Description |
|----------|------|----------|-------------|
{{range .Args}}| ` + "`{{.Name}}`" + ` | {{.Type}} | {{if .Required}}yes{{else}}no{{end}} | {{.Description}} |
{{end}}
{{end}}{{end}}{{end}}`))
