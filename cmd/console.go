package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/OccDeser/uniclip/pkg/shortcut"
	"github.com/OccDeser/uniclip/pkg/types"
	"go.uber.org/zap"
)

const historyPollInterval = 250 * time.Millisecond

type broadcaster interface {
	Broadcast(ctx context.Context, data []byte) (types.BroadcastReport, error)
}

type clipboardHistory interface {
	Append(data []byte)
	Latest() ([]byte, error)
	TakeUpdated() bool
}

// console reads lines from in. A line naming a registered shortcut
// ("alt+c") triggers it; any other line is shared as clipboard content.
type console struct {
	in        io.Reader
	out       io.Writer
	node      broadcaster
	clips     clipboardHistory
	shortcuts *shortcut.Registry
	logger    *zap.Logger
}

func newConsole(
	in io.Reader,
	out io.Writer,
	node broadcaster,
	clips clipboardHistory,
	shortcuts *shortcut.Registry,
	logger *zap.Logger,
) *console {
	return &console{
		in:        in,
		out:       out,
		node:      node,
		clips:     clips,
		shortcuts: shortcuts,
		logger:    logger,
	}
}

// registerDefaultShortcuts binds Alt+C (share the newest entry again) and
// Alt+V (print the newest entry)
func (c *console) registerDefaultShortcuts(ctx context.Context) error {
	if err := c.shortcuts.Register(shortcut.NewCombo("alt", "c"), func() {
		data, err := c.clips.Latest()
		if err != nil {
			fmt.Fprintln(c.out, "nothing to share")
			return
		}
		c.share(ctx, data)
	}); err != nil {
		return err
	}

	return c.shortcuts.Register(shortcut.NewCombo("alt", "v"), func() {
		data, err := c.clips.Latest()
		if err != nil {
			fmt.Fprintln(c.out, "clipboard is empty")
			return
		}
		fmt.Fprintf(c.out, "%s\n", data)
	})
}

func (c *console) run(ctx context.Context) error {
	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if combo, err := shortcut.ParseCombo(line); err == nil && c.shortcuts.Registered(combo) {
			c.shortcuts.Dispatch(combo)
			continue
		}

		c.share(ctx, []byte(line))
	}
	return scanner.Err()
}

// share broadcasts data and records it locally
func (c *console) share(ctx context.Context, data []byte) {
	report, err := c.node.Broadcast(ctx, data)
	if err != nil {
		c.logger.Error("Failed to share clipboard", zap.Error(err))
		fmt.Fprintf(c.out, "share failed: %v\n", err)
		return
	}

	c.clips.Append(data)
	fmt.Fprintf(c.out, "shared %d bytes with %d/%d peers\n",
		len(data), report.Delivered, report.Attempted)
}

// watchHistory prints the newest entry whenever the history changes
func (c *console) watchHistory(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !c.clips.TakeUpdated() {
			continue
		}
		if data, err := c.clips.Latest(); err == nil {
			fmt.Fprintf(c.out, "clipboard: %s\n", data)
		}
	}
}
