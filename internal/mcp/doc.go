// Package mcp exposes guidekeeper to MCP clients over stdio.
//
// Three tools are registered: guides_plan previews the layers for a scope,
// guides_update runs the orchestrator and waits for the report, and
// guides_runs reads run history. Diff summaries returned to clients pass
// through the secret scrubber.
package mcp
