// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package manualsetup

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/moby/term"
)

// NewPrompter returns an interactive menu when in is a terminal and a plain line prompter otherwise.
func NewPrompter(in io.Reader, out io.Writer) Prompter {
	if _, isTerminal := term.GetFdInfo(in); isTerminal {
		return &FormPrompter{Input: in, Output: out}
	}
	return NewLinePrompter(in, out)
}

// FormPrompter renders the menu as a selection form.
type FormPrompter struct {
	Input  io.Reader
	Output io.Writer
}

func (p *FormPrompter) Prompt(ctx context.Context, state State, menu []MenuItem) (string, error) {
	options := make([]huh.Option[string], 0, len(menu))
	for _, item := range menu {
		options = append(options, huh.NewOption(item.Label, strconv.Itoa(int(item.Choice))))
	}

	var answer string
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(Question(state)).
				Options(options...).
				Value(&answer),
		).Title("Manual engine setup"),
	).WithInput(p.Input).WithOutput(p.Output).RunWithContext(ctx)
	if err != nil {
		return "", err
	}
	return answer, nil
}

// LinePrompter prints the numbered menu and reads one answer line.
type LinePrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func NewLinePrompter(in io.Reader, out io.Writer) *LinePrompter {
	return &LinePrompter{in: bufio.NewReader(in), out: out}
}

func (p *LinePrompter) Prompt(ctx context.Context, state State, menu []MenuItem) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s:\n", Question(state))
	choices := make([]string, 0, len(menu))
	for _, item := range menu {
		fmt.Fprintf(&b, "  (%d) %s\n", item.Choice, item.Label)
		choices = append(choices, strconv.Itoa(int(item.Choice)))
	}
	fmt.Fprintf(&b, "(%s): ", strings.Join(choices, ", "))
	if _, err := io.WriteString(p.out, b.String()); err != nil {
		return "", fmt.Errorf("error writing menu: %w", err)
	}

	answer, err := p.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && answer != "" {
			return strings.TrimSpace(answer), nil
		}
		return "", fmt.Errorf("error reading answer: %w", err)
	}
	return strings.TrimSpace(answer), nil
}
