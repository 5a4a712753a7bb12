package ux

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// ConsoleSubscriber renders events to a terminal. It falls back to a quiet,
// color-free line-per-event mode when the output is not a TTY (piped,
// redirected, or the -quiet/-passive display level), matching the default
// display rule in the command-line surface.
type ConsoleSubscriber struct {
	baseSubscriber

	out     io.Writer
	quiet   bool
	tty     bool
	bars    map[string]*progressbar.ProgressBar
	colorOK bool
}

// NewConsoleSubscriber creates a console renderer writing to out (typically
// os.Stdout). quiet suppresses all but error/restart-required output,
// matching the `-q|-quiet|-s|-silent` switches.
func NewConsoleSubscriber(out *os.File, quiet bool) *ConsoleSubscriber {
	tty := isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd())
	return &ConsoleSubscriber{
		baseSubscriber: baseSubscriber{id: "console", ctx: context.Background()},
		out:            out,
		quiet:          quiet,
		tty:            tty,
		bars:           make(map[string]*progressbar.ProgressBar),
		colorOK:        tty,
	}
}

// Send renders one event.
func (c *ConsoleSubscriber) Send(event Event) error {
	if c.quiet && event.Type != EventTypeError && event.Type != EventTypeRestartRequired {
		return nil
	}

	switch event.Type {
	case EventTypeCacheAcquireProg:
		return c.renderCacheProgress(event)
	case EventTypeExecuteProgress:
		return c.renderExecuteProgress(event)
	case EventTypeError:
		c.colorLine(color.FgRed, "error: %v", event.Data["message"])
	case EventTypeFilesInUse:
		c.colorLine(color.FgYellow, "files in use for %v: %v", event.Data["package_id"], event.Data["files"])
	case EventTypeRestartRequired:
		c.colorLine(color.FgYellow, "restart required")
	case EventTypeDetectPackage:
		c.colorLine(color.FgCyan, "detected %v present=%v version=%v", event.Data["package_id"], event.Data["present"], event.Data["version"])
	case EventTypePlanPackage:
		c.colorLine(color.FgCyan, "plan %v -> %v", event.Data["package_id"], event.Data["action"])
	default:
		fmt.Fprintf(c.out, "%s\n", event.Type)
	}
	return nil
}

func (c *ConsoleSubscriber) renderCacheProgress(event Event) error {
	if !c.tty {
		return nil
	}
	payloadID, _ := event.Data["payload_id"].(string)
	total, _ := event.Data["bytes_total"].(int64)
	done, _ := event.Data["bytes_done"].(int64)

	bar, ok := c.bars[payloadID]
	if !ok {
		bar = progressbar.DefaultBytes(total, "caching "+payloadID)
		c.bars[payloadID] = bar
	}
	return bar.Set64(done)
}

func (c *ConsoleSubscriber) renderExecuteProgress(event Event) error {
	if !c.tty {
		return nil
	}
	packageID, _ := event.Data["package_id"].(string)
	pct, _ := event.Data["overall_percentage"].(int)

	bar, ok := c.bars[packageID]
	if !ok {
		bar = progressbar.Default(100, "executing "+packageID)
		c.bars[packageID] = bar
	}
	return bar.Set(pct)
}

func (c *ConsoleSubscriber) colorLine(attr color.Attribute, format string, args ...interface{}) {
	if c.colorOK {
		color.New(attr).Fprintf(c.out, format+"\n", args...)
		return
	}
	fmt.Fprintf(c.out, format+"\n", args...)
}

// Close is a no-op for the console subscriber; there is nothing to release.
func (c *ConsoleSubscriber) Close() error {
	return nil
}
