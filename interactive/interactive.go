// interactive/interactive.go
package interactive

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/sammcj/mcpagent/config"
	"github.com/sammcj/mcpagent/types"
)

const promptText = "Please enter your question (type 'exit' to end the conversation): "

// Processor runs one conversation turn
type Processor interface {
	ProcessMessage(ctx context.Context, input string) (string, error)
}

// Interactive reads user input line by line and hands each line to the bridge
type Interactive struct {
	logger   *log.Logger
	in       io.Reader
	out      io.Writer
	styles   Styles
	bridge   Processor
	shutdown *ShutdownManager
	debug    bool
}

// New creates a console session
func New(cfg *config.Config, bridge Processor, in io.Reader, out io.Writer, styles Styles, logger *log.Logger) *Interactive {
	return &Interactive{
		logger:   logger,
		in:       in,
		out:      out,
		styles:   styles,
		bridge:   bridge,
		shutdown: NewShutdownManager(logger),
		debug:    strings.ToLower(cfg.Logging.Level) == "debug",
	}
}

type line struct {
	text string
	err  error
}

// readLines feeds input lines to a channel so the loop can also watch for shutdown
func (i *Interactive) readLines(quit <-chan struct{}) <-chan line {
	lines := make(chan line)
	go func() {
		defer close(lines)
		reader := bufio.NewReader(i.in)
		for {
			text, err := reader.ReadString('\n')
			select {
			case lines <- line{text: text, err: err}:
			case <-quit:
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return lines
}

// Start runs the prompt loop until the user exits, input ends, or an
// unrecoverable error occurs
func (i *Interactive) Start(ctx context.Context) error {
	stop := i.shutdown.Listen()
	defer stop()

	quit := make(chan struct{})
	defer close(quit)

	lines := i.readLines(quit)
	for {
		fmt.Fprint(i.out, "\n"+i.styles.Prompt.Render(promptText))

		var l line
		select {
		case <-ctx.Done():
			return nil
		case <-i.shutdown.Done():
			fmt.Fprintln(i.out, "\nGoodbye!")
			return nil
		case next, ok := <-lines:
			if !ok {
				return nil
			}
			l = next
		}

		input := strings.TrimSpace(l.text)
		if input != "" {
			if done, err := i.handle(ctx, input); done || err != nil {
				return err
			}
		}

		if l.err != nil {
			if l.err != io.EOF {
				i.logger.Printf("Error reading input: %v", l.err)
				return fmt.Errorf("failed to read input: %w", l.err)
			}
			fmt.Fprintln(i.out)
			return nil
		}
	}
}

// handle processes one non-empty line. done reports that the session should end.
func (i *Interactive) handle(ctx context.Context, input string) (done bool, err error) {
	if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
		fmt.Fprintln(i.out, "Goodbye!")
		return true, nil
	}

	if i.debug {
		i.logger.Printf("Sending message to bridge: %s", input)
	}

	turnCtx, endTurn := i.shutdown.BeginTurn(ctx)
	response, err := i.bridge.ProcessMessage(turnCtx, input)
	endTurn()

	if errors.Is(err, types.ErrRoundLimit) {
		i.logger.Printf("Turn cut off: %v", err)
		fmt.Fprintf(i.out, "\n%s\n", i.styles.Muted.Render("(turn stopped: the model kept requesting tools past the round limit)"))
		return false, nil
	}
	if err != nil {
		i.logger.Printf("Error from bridge: %v", err)
		if !types.IsRecoverable(err) {
			fmt.Fprintf(i.out, "\n%s\n", i.styles.Error.Render("Fatal error: "+err.Error()))
			return true, err
		}
		fmt.Fprintf(i.out, "\n%s\n", i.styles.Error.Render("Error: "+err.Error()))
		return false, nil
	}

	if response == "" && i.debug {
		i.logger.Printf("Warning: Empty response received from bridge")
	}
	return false, nil
}
