package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/bamsammich/shuttle/internal/engine"
)

// TermConfirmer asks the user about conflicts on a terminal. Prompts from
// concurrent workers are serialized; only the asking unit waits.
type TermConfirmer struct {
	in   io.Reader
	out  io.Writer
	op   string
	mu   sync.Mutex
	once sync.Once

	lines chan string
	all   bool // "all" answered: proceed without asking again
}

// NewTermConfirmer reads answers from in and writes prompts to out.
func NewTermConfirmer(in io.Reader, out io.Writer, op string) *TermConfirmer {
	return &TermConfirmer{in: in, out: out, op: op}
}

// startReader feeds input lines to a channel so a prompt can be abandoned
// when ctx is cancelled.
func (c *TermConfirmer) startReader() {
	c.lines = make(chan string)
	go func() {
		defer close(c.lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			c.lines <- sc.Text()
		}
	}()
}

// Confirm implements engine.Confirmer.
func (c *TermConfirmer) Confirm(ctx context.Context, conflict engine.Conflict) (engine.Decision, error) {
	c.once.Do(c.startReader)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.all {
		return engine.Proceed, nil
	}

	for {
		fmt.Fprint(c.out, prompt(c.op, conflict))
		select {
		case <-ctx.Done():
			fmt.Fprintln(c.out)
			return engine.Abort, ctx.Err()
		case line, ok := <-c.lines:
			if !ok {
				// EOF: treat as "no" for this and every later prompt.
				fmt.Fprintln(c.out)
				return engine.Skip, nil
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "y", "yes":
				return engine.Proceed, nil
			case "", "n", "no":
				return engine.Skip, nil
			case "a", "all":
				c.all = true
				return engine.Proceed, nil
			case "q", "quit", "abort":
				return engine.Abort, nil
			}
		}
	}
}

func prompt(op string, c engine.Conflict) string {
	if c.Reason == "remove" {
		return fmt.Sprintf("remove %s %s? [y/N/a/q] ", c.Kind, c.Path)
	}
	detail := c.Reason
	if c.Kind == engine.File && c.DstSize > 0 {
		detail = fmt.Sprintf("%s, %s over %s", c.Reason, FormatBytes(c.SrcSize), FormatBytes(c.DstSize))
	}
	return fmt.Sprintf("%s: overwrite %s (%s)? [y/N/a/q] ", opVerb(op), c.Path, detail)
}
