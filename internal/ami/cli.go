package ami

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	cmdShowEndpoints = "pjsip show endpoints"
	cmdQueueShow     = "queue show"
	cmdShowVersion   = "core show version"
	cmdShowUptime    = "core show uptime"
	cmdShowChannels  = "core show channels"
	cmdReloadPJSIP   = "pjsip reload"
	cmdReloadQueues  = "queue reload all"

	unknown = "Unknown"
)

// Commander sends CLI commands over a manager session.
type Commander interface {
	SendCommand(ctx context.Context, command string) (string, error)
	State() State
}

type SystemInfo struct {
	Version        string `json:"version"`
	Uptime         string `json:"uptime"`
	ActiveChannels int    `json:"activeChannels"`
	Connected      bool   `json:"connected"`
}

type CLIOption func(*CLI)

func WithParser(p Parser) CLIOption {
	return func(c *CLI) { c.parser = p }
}

func WithNotifier(n Notifier) CLIOption {
	return func(c *CLI) { c.notifier = n }
}

func WithCLILogger(l *zap.Logger) CLIOption {
	return func(c *CLI) { c.log = l }
}

// CLI answers status queries and reloads by scraping CLI output.
type CLI struct {
	cmd      Commander
	parser   Parser
	notifier Notifier
	log      *zap.Logger
}

func NewCLI(cmd Commander, opts ...CLIOption) *CLI {
	c := &CLI{
		cmd:    cmd,
		parser: TextParser{},
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CLI) SIPPeers(ctx context.Context) ([]Peer, error) {
	out, err := c.cmd.SendCommand(ctx, cmdShowEndpoints)
	if err != nil {
		return nil, fmt.Errorf("get SIP peers: %w", err)
	}
	return c.parser.ParsePeers(out), nil
}

func (c *CLI) Queues(ctx context.Context) ([]QueueStatus, error) {
	out, err := c.cmd.SendCommand(ctx, cmdQueueShow)
	if err != nil {
		return nil, fmt.Errorf("get queues status: %w", err)
	}
	return c.parser.ParseQueues(out), nil
}

// SystemInfo never fails; each part falls back to Unknown or 0 on its own.
func (c *CLI) SystemInfo(ctx context.Context) SystemInfo {
	info := SystemInfo{
		Version:   unknown,
		Uptime:    unknown,
		Connected: c.cmd.State() == StateConnected,
	}

	if out, err := c.cmd.SendCommand(ctx, cmdShowVersion); err == nil {
		info.Version = firstLine(out)
	} else {
		c.log.Debug("version unavailable", zap.Error(err))
	}
	if out, err := c.cmd.SendCommand(ctx, cmdShowUptime); err == nil {
		info.Uptime = firstLine(out)
	} else {
		c.log.Debug("uptime unavailable", zap.Error(err))
	}
	if out, err := c.cmd.SendCommand(ctx, cmdShowChannels); err == nil {
		info.ActiveChannels = c.parser.ParseChannelCount(out)
	} else {
		c.log.Debug("channel count unavailable", zap.Error(err))
	}

	return info
}

func (c *CLI) Ping(ctx context.Context) bool {
	_, err := c.cmd.SendCommand(ctx, cmdShowVersion)
	return err == nil
}

func (c *CLI) ReloadPJSIP(ctx context.Context) error {
	return c.reload(ctx, "pjsip", cmdReloadPJSIP)
}

func (c *CLI) ReloadQueues(ctx context.Context) error {
	return c.reload(ctx, "queues", cmdReloadQueues)
}

// ReloadAll reloads PJSIP then queues, stopping at the first failure.
func (c *CLI) ReloadAll(ctx context.Context) error {
	if err := c.ReloadPJSIP(ctx); err != nil {
		return err
	}
	if err := c.ReloadQueues(ctx); err != nil {
		return err
	}
	c.notify(Notification{Kind: NotifyReloaded, Module: "all"})
	return nil
}

func (c *CLI) reload(ctx context.Context, module, command string) error {
	if _, err := c.cmd.SendCommand(ctx, command); err != nil {
		c.log.Error("reload failed", zap.String("module", module), zap.Error(err))
		c.notify(Notification{Kind: NotifyReloadFailed, Module: module, Err: err})
		return fmt.Errorf("reload %s: %w", module, err)
	}
	c.log.Info("reloaded", zap.String("module", module))
	c.notify(Notification{Kind: NotifyReloaded, Module: module})
	return nil
}

func (c *CLI) notify(n Notification) {
	if c.notifier != nil {
		c.notifier.Notify(n)
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimLeft(s, "\r\n"), "\n")
	line = strings.TrimSpace(line)
	if line == "" {
		return unknown
	}
	return line
}
