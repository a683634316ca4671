package executor

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
)

// Decision answers whether an existing result file may be overwritten
type Decision int

const (
	Yes Decision = iota // overwrite this file
	No                  // keep the file and skip the mode
	All                 // overwrite this and every later file of the run
)

func (d Decision) String() string {
	switch d {
	case Yes:
		return "y"
	case No:
		return "n"
	case All:
		return "all"
	}
	return fmt.Sprintf("Decision(%d)", int(d))
}

// ParseDecision reads an operator answer. Empty input means yes.
func ParseDecision(answer string) (Decision, bool) {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "", "y", "yes":
		return Yes, true
	case "n", "no":
		return No, true
	case "a", "all":
		return All, true
	}
	return No, false
}

// Confirmer decides what to do with a result file that already exists
type Confirmer interface {
	ConfirmOverwrite(path string) (Decision, error)
}

// AlwaysOverwrite never asks
type AlwaysOverwrite struct{}

// ConfirmOverwrite implements Confirmer
func (AlwaysOverwrite) ConfirmOverwrite(string) (Decision, error) { return Yes, nil }

// PromptConfirmer asks the operator. On a terminal it shows a selection,
// otherwise it reads a y/n/all line from In.
type PromptConfirmer struct {
	In  io.Reader
	Out io.Writer

	reader *bufio.Reader
}

// NewPromptConfirmer prompts on stdin/stdout
func NewPromptConfirmer() *PromptConfirmer {
	return &PromptConfirmer{In: os.Stdin, Out: os.Stdout}
}

// ConfirmOverwrite implements Confirmer
func (p *PromptConfirmer) ConfirmOverwrite(path string) (Decision, error) {
	if f, ok := p.In.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return p.selectDecision(path)
	}
	return p.lineDecision(path)
}

func (p *PromptConfirmer) selectDecision(path string) (Decision, error) {
	choice := Yes
	err := huh.NewForm(huh.NewGroup(
		huh.NewSelect[Decision]().
			Title(fmt.Sprintf("%s exists. Overwrite?", path)).
			Options(
				huh.NewOption("yes", Yes),
				huh.NewOption("no, skip this benchmark mode", No),
				huh.NewOption("all, overwrite every existing file", All),
			).
			Value(&choice),
	)).Run()
	if err != nil {
		return No, fmt.Errorf("overwrite prompt failed: %w", err)
	}
	return choice, nil
}

func (p *PromptConfirmer) lineDecision(path string) (Decision, error) {
	if p.reader == nil {
		p.reader = bufio.NewReader(p.In)
	}
	for {
		fmt.Fprintf(p.Out, "%s exists. Overwrite? (y/n/all) [y]: ", path)
		line, err := p.reader.ReadString('\n')
		if err != nil && line == "" {
			if err == io.EOF {
				return Yes, nil
			}
			return No, fmt.Errorf("failed to read answer: %w", err)
		}
		if d, ok := ParseDecision(line); ok {
			return d, nil
		}
		fmt.Fprintln(p.Out, "Error: invalid input")
	}
}
