package config

import "strings"

// LinkCheckBackend selects how links are verified.
type LinkCheckBackend string

const (
	LinkCheckBuiltin LinkCheckBackend = "builtin"
	LinkCheckCommand LinkCheckBackend = "command"
)

// PublishTarget selects the hosting target.
type PublishTarget string

const (
	PublishDirectory PublishTarget = "directory"
	PublishGit       PublishTarget = "git"
)

// LockBackend selects the deploy lock implementation.
type LockBackend string

const (
	LockSQLite LockBackend = "sqlite"
	LockMemory LockBackend = "memory"
)

// NormalizeLinkCheckBackend returns the typed backend or "" when unknown.
func NormalizeLinkCheckBackend(raw string) LinkCheckBackend {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(LinkCheckBuiltin):
		return LinkCheckBuiltin
	case string(LinkCheckCommand):
		return LinkCheckCommand
	default:
		return ""
	}
}

// NormalizePublishTarget returns the typed target or "" when unknown.
func NormalizePublishTarget(raw string) PublishTarget {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(PublishDirectory), "dir":
		return PublishDirectory
	case string(PublishGit), "git-branch":
		return PublishGit
	default:
		return ""
	}
}

// NormalizeLockBackend returns the typed backend or "" when unknown.
func NormalizeLockBackend(raw string) LockBackend {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(LockSQLite):
		return LockSQLite
	case string(LockMemory):
		return LockMemory
	default:
		return ""
	}
}
