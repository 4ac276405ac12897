package share

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// exitCanceled is the status a share command uses to report that the user
// dismissed it.
const exitCanceled = 130

// Command shares by running an external program with the file path as its
// last argument (a mail client, a messaging CLI, xdg-open).
type Command struct {
	Name string
	Args []string
}

func (c Command) CanShare(f File) bool {
	if c.Name == "" || f.MIMEType != MIMEType {
		return false
	}
	_, err := exec.LookPath(c.Name)
	return err == nil
}

func (c Command) Share(ctx context.Context, f File, msg Message) error {
	dir, err := os.MkdirTemp("", "pdfmark-share")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, filepath.Base(f.Name))
	if err := os.WriteFile(path, f.Data, 0o600); err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, c.Name, append(append([]string(nil), c.Args...), path)...)
	cmd.Env = append(os.Environ(), "SHARE_TITLE="+msg.Title, "SHARE_TEXT="+msg.Text)
	out, err := cmd.CombinedOutput()
	if ctx.Err() != nil {
		return ErrCanceled
	}
	var exit *exec.ExitError
	if errors.As(err, &exit) && exit.ExitCode() == exitCanceled {
		return ErrCanceled
	}
	if err != nil {
		return fmt.Errorf("%s: %w: %s", c.Name, err, out)
	}
	return nil
}
