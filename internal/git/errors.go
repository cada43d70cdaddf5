package git

import (
	stderrors "errors"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"git.home.luguber.info/inful/docpublisher/internal/foundation/errors"
)

// ClassifyGitError translates go-git errors into ClassifiedErrors.
func ClassifyGitError(err error, op, target string) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.AsClassified(err); ok {
		return err
	}

	builder := errors.WrapError(err, errors.CategoryGit, "git "+op+" failed").
		WithContext("op", op).
		WithContext("target", target)

	l := strings.ToLower(err.Error())
	switch {
	case stderrors.Is(err, transport.ErrAuthenticationRequired),
		stderrors.Is(err, transport.ErrAuthorizationFailed),
		strings.Contains(l, "authentication") || strings.Contains(l, "not authorized"):
		builder.WithCategory(errors.CategoryAuth)
	case stderrors.Is(err, git.ErrRepositoryNotExists),
		stderrors.Is(err, transport.ErrRepositoryNotFound):
		builder.WithCategory(errors.CategoryNotFound)
	case strings.Contains(l, "connection reset") || strings.Contains(l, "timeout") || strings.Contains(l, "no route to host"):
		builder.WithCategory(errors.CategoryNetwork).Transient()
	case strings.Contains(l, "non-fast-forward"):
		builder.WithContext("diverged", true)
	}
	return builder.Build()
}
