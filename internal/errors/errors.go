// Package errors renders command failures for the terminal.
package errors

import (
	"errors"
	"fmt"
	"os"

	"github.com/julianstephens/daylit-sync/internal/cli"
	"github.com/julianstephens/daylit-sync/internal/config"
	"github.com/julianstephens/daylit-sync/internal/keyring"
	"github.com/julianstephens/daylit-sync/internal/logger"
	"github.com/julianstephens/daylit-sync/internal/repository"
)

// hints are checked in order; the first sentinel matched wins.
var hints = []struct {
	target error
	hint   string
}{
	{cli.ErrNoOwner, "run: daylit-sync config set owner <user-id>"},
	{repository.ErrUnauthenticated, "run: daylit-sync config set owner <user-id>"},
	{repository.ErrWriteFailed, "nothing was saved; run \"daylit-sync doctor\" to check the backend, or drop --offline"},
	{config.ErrSecretNotFound, "store it with: daylit-sync config set-secret <name>"},
	{config.ErrSecretInFile, "move the value to the keyring with: daylit-sync config set-secret <name>"},
	{keyring.ErrKeyringUnavailable, "set the secret through DAYLIT_SYNC_<NAME> instead"},
}

// Hint returns a follow-up suggestion for known failures, or "".
func Hint(err error) string {
	for _, h := range hints {
		if errors.Is(err, h.target) {
			return h.hint
		}
	}
	return ""
}

// Format renders err with an "Error: " prefix and, when one applies, a hint
// on the next line.
func Format(err error) string {
	if err == nil {
		return ""
	}
	msg := fmt.Sprintf("Error: %v", err)
	if hint := Hint(err); hint != "" {
		msg += "\n       " + hint
	}
	return msg
}

// Fatal logs err and exits with status 1. A nil err is ignored.
func Fatal(err error) {
	if err != nil {
		logger.Error("Command execution failed", "error", err)
		fmt.Fprintf(os.Stderr, "%s\n", Format(err))
		os.Exit(1)
	}
}
