// Package workspace manages the scratch directories a pipeline run works in.
//
// Ephemeral workspaces are unique per run (docpublisher-<run>-XXXX) and are
// removed on Cleanup. Persistent workspaces use a fixed path that survives
// across runs; the daemon keeps its dependency cache markers there.
package workspace
