package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/akarpov/botconsole/internal/app"
)

// consoleNotifier renders controller notices as toast-style lines on the
// console, above the next prompt.
type consoleNotifier struct {
	mu  sync.Mutex
	out io.Writer
}

func newConsoleNotifier(out io.Writer) *consoleNotifier {
	return &consoleNotifier{out: out}
}

func (n *consoleNotifier) Notify(notice app.Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()

	prefix := "[i]"
	switch notice.Kind {
	case app.NoticeSuccess:
		prefix = "[+]"
	case app.NoticeError:
		prefix = "[!]"
	}
	if notice.Detail != "" {
		fmt.Fprintf(n.out, "\n%s %s: %s\n", prefix, notice.Title, notice.Detail)
		return
	}
	fmt.Fprintf(n.out, "\n%s %s\n", prefix, notice.Title)
}

// console is the interactive owner surface. It renders the current screen,
// reads one command per line, and forwards actions to the controller. All
// state lives in the controller; the console only draws and dispatches.
type console struct {
	ctrl *app.Controller
	in   io.Reader
	out  io.Writer
}

func newConsole(ctrl *app.Controller, in io.Reader, out io.Writer) *console {
	return &console{ctrl: ctrl, in: in, out: out}
}

// Run drives the read-render loop until the owner quits, input ends, or the
// context is cancelled.
func (c *console) Run(ctx context.Context) error {
	lines := make(chan string)
	scanDone := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanDone <- sc.Err()
	}()

	c.render()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-scanDone:
			return err
		case line := <-lines:
			if quit := c.handle(ctx, strings.TrimSpace(line)); quit {
				return nil
			}
			c.render()
		}
	}
}

func (c *console) render() {
	switch c.ctrl.Screen() {
	case app.ScreenHome:
		c.renderHome()
	case app.ScreenCreate:
		fmt.Fprintln(c.out, "\n-- connect a bot --")
		fmt.Fprintln(c.out, "Paste the bot token from @BotFather, or 'b' to go back.")
	case app.ScreenSettings:
		bot := c.ctrl.CurrentBot()
		fmt.Fprintln(c.out, "\n-- settings --")
		if bot != nil {
			fmt.Fprintf(c.out, "Current welcome text: %s\n", bot.WelcomeText)
		}
		fmt.Fprintln(c.out, "Enter new welcome text, or 'b' to go back.")
	case app.ScreenMessages:
		c.renderMessages()
	}
	fmt.Fprint(c.out, "> ")
}

func (c *console) renderHome() {
	fmt.Fprintln(c.out, "\n== botconsole ==")

	if identity := c.ctrl.Identity(); identity != "" {
		fmt.Fprintf(c.out, "Device: %s\n", identity)
	} else {
		fmt.Fprintln(c.out, "Device: unidentified (local storage unavailable)")
	}

	if bot := c.ctrl.CurrentBot(); bot != nil {
		state := "inactive"
		if bot.Active {
			state = "active"
		}
		fmt.Fprintf(c.out, "Bot: @%s (%s)\n", bot.Username, state)
		fmt.Fprintln(c.out, "[s] settings  [m] messages  [d] disconnect  [q] quit")
	} else {
		fmt.Fprintln(c.out, "Bot: none connected")
		fmt.Fprintln(c.out, "[c] connect a bot  [q] quit")
	}
}

func (c *console) renderMessages() {
	fmt.Fprintln(c.out, "\n-- messages --")
	msgs := c.ctrl.Messages()
	if len(msgs) == 0 {
		fmt.Fprintln(c.out, "No messages yet.")
	}
	for _, m := range msgs {
		fmt.Fprintf(c.out, "%s  %s: %s\n", m.CreatedAt.Format("2006-01-02 15:04"), m.Sender(), m.Text)
	}
	fmt.Fprintln(c.out, "[r] refresh  [b] back")
}

// handle dispatches one input line on the current screen. It reports whether
// the owner asked to quit.
func (c *console) handle(ctx context.Context, line string) bool {
	switch c.ctrl.Screen() {
	case app.ScreenHome:
		return c.handleHome(ctx, line)
	case app.ScreenCreate:
		c.handleCreate(ctx, line)
	case app.ScreenSettings:
		c.handleSettings(ctx, line)
	case app.ScreenMessages:
		c.handleMessages(ctx, line)
	}
	return false
}

func (c *console) handleHome(ctx context.Context, line string) bool {
	var err error
	switch strings.ToLower(line) {
	case "q", "quit", "exit":
		return true
	case "c":
		err = c.ctrl.OpenCreate()
	case "s":
		err = c.ctrl.OpenSettings()
	case "m":
		err = c.ctrl.OpenMessages()
	case "d":
		err = c.ctrl.Disconnect(ctx)
	case "":
	default:
		fmt.Fprintln(c.out, "Unknown command.")
	}
	c.report(err)
	return false
}

func (c *console) handleCreate(ctx context.Context, line string) {
	switch strings.ToLower(line) {
	case "b", "back":
		c.report(c.ctrl.Back())
	case "":
	default:
		c.report(c.ctrl.Connect(ctx, line))
	}
}

func (c *console) handleSettings(ctx context.Context, line string) {
	switch strings.ToLower(line) {
	case "b", "back":
		c.report(c.ctrl.Back())
	case "":
	default:
		c.report(c.ctrl.SaveWelcome(ctx, line))
	}
}

func (c *console) handleMessages(ctx context.Context, line string) {
	switch strings.ToLower(line) {
	case "b", "back":
		c.report(c.ctrl.Back())
	case "r", "refresh":
		c.report(c.ctrl.Refresh(ctx))
	case "":
	default:
		fmt.Fprintln(c.out, "Unknown command.")
	}
}

// report prints controller precondition failures (busy, no bot). Remote-call
// failures never arrive here; they surface through the notifier.
func (c *console) report(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(c.out, "[!] %s\n", err)
}
