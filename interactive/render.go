// interactive/render.go
package interactive

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/sammcj/mcpagent/bridge"
)

// Styles holds the console styles
type Styles struct {
	Think  lipgloss.Style
	Answer lipgloss.Style
	Header lipgloss.Style
	Muted  lipgloss.Style
	Error  lipgloss.Style
	Prompt lipgloss.Style
}

// DefaultStyles returns the console styles for out. Colour is dropped when
// out is not a terminal.
func DefaultStyles(out io.Writer) Styles {
	r := lipgloss.NewRenderer(out)
	return Styles{
		Think:  r.NewStyle().Foreground(lipgloss.Color("#928374")).Italic(true),
		Answer: r.NewStyle().Foreground(lipgloss.Color("#ebdbb2")),
		Header: r.NewStyle().Foreground(lipgloss.Color("#83a598")).Bold(true),
		Muted:  r.NewStyle().Foreground(lipgloss.Color("#928374")),
		Error:  r.NewStyle().Foreground(lipgloss.Color("#fb4934")).Bold(true),
		Prompt: r.NewStyle().Foreground(lipgloss.Color("#b8bb26")).Bold(true),
	}
}

// ConsoleRenderer writes streamed output under a thinking and an answer section
type ConsoleRenderer struct {
	out    io.Writer
	styles Styles
}

// NewConsoleRenderer creates a renderer writing to out
func NewConsoleRenderer(out io.Writer, styles Styles) *ConsoleRenderer {
	return &ConsoleRenderer{out: out, styles: styles}
}

// Header prints the label for a new output section
func (r *ConsoleRenderer) Header(ch bridge.Channel, afterTools bool) {
	label := headerLabel(ch, afterTools)
	if label == "" {
		return
	}
	fmt.Fprintf(r.out, "\n%s\n", r.styles.Header.Render(label))
}

// Text prints a streamed fragment
func (r *ConsoleRenderer) Text(ch bridge.Channel, text string) {
	style := r.styles.Answer
	if ch == bridge.ChannelReasoning {
		style = r.styles.Think
	}
	fmt.Fprint(r.out, style.Render(text))
}

// EndRound terminates the current output line
func (r *ConsoleRenderer) EndRound() {
	fmt.Fprintln(r.out)
}

func headerLabel(ch bridge.Channel, afterTools bool) string {
	prefix, suffix := "", ""
	if afterTools {
		prefix, suffix = "🔧", "(Tools)"
	}
	switch ch {
	case bridge.ChannelReasoning:
		return prefix + "🤔 AI Think" + suffix + ":"
	case bridge.ChannelAnswer:
		return prefix + "✅ AI" + suffix + ":"
	}
	return ""
}
