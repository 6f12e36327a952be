// Package services holds the collaborators shared by every guidekeeper
// surface (CLI, HTTP, MCP and the commit watcher).
//
// A Registry is assembled once per process and handed to each surface.
// Runs go through the Runner so that at most one run is active at a time,
// whichever surface started it.
package services
