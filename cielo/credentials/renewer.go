package credentials

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
)

// CommandRenewer runs an external helper that captures a fresh token (typically by driving
// a logged-in browser session) and prints it on stdout. The last non-empty line is used; a
// leading "Bearer " is stripped.
type CommandRenewer struct {
	name string
	args []string
}

func NewCommandRenewer(command []string) (*CommandRenewer, error) {
	if len(command) == 0 || command[0] == "" {
		return nil, errors.New("renew command is empty")
	}
	return &CommandRenewer{name: command[0], args: command[1:]}, nil
}

func (r *CommandRenewer) Renew(ctx context.Context) (string, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, r.name, r.args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", errors.Wrapf(err, "%s: %s", r.name, strings.TrimSpace(stderr.String()))
	}

	token := parseToken(stdout.String())
	if token == "" {
		return "", errors.Errorf("%s printed no token", r.name)
	}
	return token, nil
}

func parseToken(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if len(line) > 7 && strings.EqualFold(line[:7], "bearer ") {
			line = strings.TrimSpace(line[7:])
		}
		return line
	}
	return ""
}
