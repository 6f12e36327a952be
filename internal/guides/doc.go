// Package guides maps changed files to the guide files that cover them and
// orders those guides into bottom-up update layers.
//
// Guide paths are slash-separated and relative to the repository root, for
// example "a/b/agents.md" or "agents.md" for the root guide. A guide covers
// every file below its directory.
//
// The pipeline is:
//
//	changed files --Mapper.Map--> affected guides --BuildForest--> forest --BuildLayers--> layers
//
// Layer 0 holds the leaves of the forest. Every guide is placed after all of
// its children, so a parent always sees the summarized edits of its subtree.
package guides
