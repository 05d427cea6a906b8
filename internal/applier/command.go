package applier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"autoprofile/internal/profile"
)

// Command runs a hook for every apply: argv with the profile id appended,
// the profile as JSON on stdin, and AUTOPROFILE_PROFILE_ID/NAME in the
// environment. A non-zero exit fails the apply.
type Command struct {
	argv    []string
	timeout time.Duration

	mu      sync.Mutex
	current string
}

func NewCommand(argv []string, timeout time.Duration) (*Command, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, errors.New("applier command is empty")
	}
	return &Command{argv: argv, timeout: timeout}, nil
}

func (c *Command) Apply(ctx context.Context, p profile.Profile) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile %s: %w", p.ID, err)
	}

	args := append(append([]string(nil), c.argv[1:]...), p.ID)
	cmd := exec.CommandContext(ctx, c.argv[0], args...) //nolint:gosec // argv comes from the daemon config
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Env = append(os.Environ(),
		"AUTOPROFILE_PROFILE_ID="+p.ID,
		"AUTOPROFILE_PROFILE_NAME="+p.Name,
	)
	cmd.WaitDelay = time.Second

	start := time.Now()
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return fmt.Errorf("apply %s: %w: %s", p.ID, err, strings.TrimSpace(string(out)))
	}
	c.mu.Lock()
	c.current = p.ID
	c.mu.Unlock()
	log.Info().Str("profile", p.ID).Dur("took", time.Since(start)).Msg("profile applied")
	return nil
}

func (c *Command) CurrentProfileID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}
