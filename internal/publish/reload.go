package publish

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/charmbracelet/log"
)

var ErrNoReloadCommand = errors.New("publish: reload command not configured")

// Reload runs the firewall reload command and returns its combined output.
func Reload(ctx context.Context, argv []string) (string, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return "", ErrNoReloadCommand
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	out, err := cmd.CombinedOutput()
	output := strings.TrimSpace(string(out))
	if err != nil {
		return output, fmt.Errorf("reload %s: %w: %s", strings.Join(argv, " "), err, output)
	}

	log.Info("Firewall reloaded", "command", argv[0])
	return output, nil
}
