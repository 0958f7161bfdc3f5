package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"cogito/internal/kernel"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	degradedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	metaStyle     = lipgloss.NewStyle().Faint(true)
)

// renderResult prints the final answer as rendered markdown with a short
// execution footer.
func renderResult(result *kernel.ExecutionResult) error {
	if result == nil || result.Answer == nil {
		fmt.Println("no answer produced")
		return nil
	}
	answer := result.Answer

	fmt.Println(headerStyle.Render("Answer"))
	if answer.Degraded {
		fmt.Println(degradedStyle.Render("(degraded: some of the run did not complete)"))
	}

	rendered := answer.AnswerText
	if r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100)); err == nil {
		if out, rerr := r.Render(answer.AnswerText); rerr == nil {
			rendered = out
		}
	}
	fmt.Println(rendered)

	var meta []string
	meta = append(meta, fmt.Sprintf("run %s", result.CorrelationID))
	meta = append(meta, fmt.Sprintf("%d pass(es)", len(result.Passes)))
	meta = append(meta, fmt.Sprintf("ttl %d/%d", result.TTLRemaining, result.TTLAllocated))
	if answer.Confidence > 0 {
		meta = append(meta, fmt.Sprintf("confidence %.2f", answer.Confidence))
	}
	if missing, ok := answer.Metadata["missing_fields"].([]string); ok && len(missing) > 0 {
		meta = append(meta, "missing: "+strings.Join(missing, ", "))
	}
	fmt.Println(metaStyle.Render(strings.Join(meta, " | ")))

	for _, note := range answer.Notes {
		fmt.Fprintln(os.Stderr, metaStyle.Render("note: "+note))
	}
	return nil
}
