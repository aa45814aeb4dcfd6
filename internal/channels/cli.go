// Package channels provides runtime.Listener implementations for each
// supported input channel (terminal REPL and Telegram).
package channels

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"golang.org/x/term"

	"github.com/millwright-ai/millwright/internal/runtime"
)

const (
	defaultReplPrompt    = "you> "
	defaultDispatchQueue = 20
	// Allow queued input to finish when stdin closes before shutting down the dispatcher.
	dispatchDrainTimeout = 5 * time.Second
)

var _ runtime.Listener = (*CLIListener)(nil)

// CLIWriter writes assistant responses to terminal output.
type CLIWriter struct {
	out io.Writer
}

// WriteMessage writes one assistant message line.
func (w *CLIWriter) WriteMessage(_ context.Context, text string) error {
	_, err := fmt.Fprintf(w.out, "millwright> %s\n\n", text)
	return err
}

// CLIListener listens for interactive terminal input and dispatches messages.
type CLIListener struct {
	in  io.Reader
	out io.Writer

	rl       *readline.Instance
	fallback *bufio.Reader
}

// NewCLI creates a new CLI listener over stdin/stdout style streams.
func NewCLI(in io.Reader, out io.Writer) *CLIListener {
	return &CLIListener{in: in, out: out}
}

// Writer returns the response writer for this terminal, for callers that need
// to address the channel outside the dispatch loop (such as scheduled jobs).
func (c *CLIListener) Writer() *CLIWriter {
	return &CLIWriter{out: c.out}
}

// Listen runs the interactive loop until EOF, /quit, /exit, or fatal handler error.
func (c *CLIListener) Listen(ctx context.Context, handler runtime.Handler) error {
	if handler == nil {
		return fmt.Errorf("handler is required")
	}
	if err := c.ensureInputReady(); err != nil {
		return err
	}
	if c.rl != nil {
		defer c.rl.Close()
	}

	if _, err := fmt.Fprintln(c.out, "Interactive mode. Type /quit or /exit to stop."); err != nil {
		return err
	}

	writer := &CLIWriter{out: c.out}
	dispatchCtx, cancelDispatch := context.WithCancel(ctx)

	dispatcher := runtime.NewDispatcher(handler, defaultDispatchQueue)
	if err := dispatcher.Start(dispatchCtx); err != nil {
		cancelDispatch()
		return err
	}
	defer func() {
		cancelDispatch()
		dispatcher.Wait()
	}()

	inputCh := make(chan inputEvent)
	go c.readInputLoop(ctx, inputCh)

	for {
		select {
		case <-ctx.Done():
			dispatcher.Stop()
			return nil
		case event, ok := <-inputCh:
			if !ok {
				c.drainDispatcher(dispatcher)
				return nil
			}
			if event.err != nil {
				if errors.Is(event.err, io.EOF) {
					c.drainDispatcher(dispatcher)
					return nil
				}
				if errors.Is(event.err, context.Canceled) {
					dispatcher.Stop()
					return nil
				}
				return event.err
			}

			line := strings.TrimSpace(event.line)
			if line == "" {
				continue
			}

			switch strings.ToLower(line) {
			case "/stop", "stop":
				dispatcher.Stop()
				writer.WriteMessage(ctx, "Stopped.")
				continue
			case "/quit", "quit", "/exit", "exit":
				dispatcher.Stop()
				writer.WriteMessage(ctx, "Stopped.")
				return nil
			}

			if err := dispatcher.Enqueue(ctx, &runtime.Message{Text: line}, writer); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
		}
	}
}

func (c *CLIListener) drainDispatcher(dispatcher *runtime.Dispatcher) {
	drainCtx, cancel := context.WithTimeout(context.Background(), dispatchDrainTimeout)
	defer cancel()
	if err := dispatcher.WaitUntilIdle(drainCtx); err != nil {
		dispatcher.Stop()
	}
}

func (c *CLIListener) ensureInputReady() error {
	if c.rl != nil || c.fallback != nil {
		return nil
	}

	rl, err := newReadline(c.in, c.out)
	if err == nil {
		c.rl = rl
		return nil
	}

	c.fallback = bufio.NewReader(c.in)
	return nil
}

func (c *CLIListener) readLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if c.rl != nil {
		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				return "", io.EOF
			}
			return "", err
		}
		return line, nil
	}

	if _, err := fmt.Fprint(c.out, defaultReplPrompt); err != nil {
		return "", err
	}
	line, err := c.fallback.ReadString('\n')
	if err != nil {
		if len(line) > 0 {
			return line, nil
		}
		return "", err
	}
	return line, nil
}

func (c *CLIListener) readInputLoop(ctx context.Context, out chan<- inputEvent) {
	defer close(out)
	for {
		line, err := c.readLine(ctx)
		select {
		case out <- inputEvent{line: line, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

type inputEvent struct {
	line string
	err  error
}

func newReadline(in io.Reader, out io.Writer) (*readline.Instance, error) {
	stdin, ok := in.(io.ReadCloser)
	if !ok {
		return nil, fmt.Errorf("stdin is not read-closer")
	}
	inFile, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(inFile.Fd())) {
		return nil, fmt.Errorf("stdin is not terminal")
	}
	outFile, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(outFile.Fd())) {
		return nil, fmt.Errorf("stdout is not terminal")
	}

	return readline.NewEx(&readline.Config{
		Prompt:          defaultReplPrompt,
		HistoryFile:     filepath.Join(os.TempDir(), ".millwright_history"),
		HistoryLimit:    200,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdin:           stdin,
		Stdout:          out,
		Stderr:          out,
	})
}
