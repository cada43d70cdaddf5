// Package git wraps go-git for the operations docpublisher needs: resolving
// revisions, finding merge bases, diffing trees between two commits, and
// writing a directory tree as a commit on a deployment branch.
//
// Everything runs in-process on the object store; only pushing to a remote
// URL goes through a go-git transport.
package git
