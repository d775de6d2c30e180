// Package repair decides whether a proposed repair is carried out.
package repair

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/containerd/errdefs"
)

// Policy is the global answer strategy for repair questions.
type Policy int

const (
	// Interactive asks on the terminal for every question.
	Interactive Policy = iota
	// Auto answers every question with its proposed default.
	Auto
	// AssumeYes answers yes to every question.
	AssumeYes
	// AssumeNo answers no to every question and makes no changes.
	AssumeNo
)

// String returns the policy name as accepted by ParsePolicy.
func (p Policy) String() string {
	switch p {
	case Interactive:
		return "ask"
	case Auto:
		return "auto"
	case AssumeYes:
		return "yes"
	case AssumeNo:
		return "no"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy parses a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "", "ask", "interactive":
		return Interactive, nil
	case "auto", "preen":
		return Auto, nil
	case "yes", "y":
		return AssumeYes, nil
	case "no", "n":
		return AssumeNo, nil
	}
	return 0, fmt.Errorf("unknown repair policy %q: %w", s, errdefs.ErrInvalidArgument)
}

// Decider answers repair questions.
type Decider interface {
	Decide(question string, def bool) bool
	Policy() Policy
}

// Prompter is the Decider used by the command. Non-interactive policies
// echo the question with the chosen answer to Out; Interactive reads the
// answer from In.
type Prompter struct {
	policy Policy
	in     *bufio.Reader
	out    io.Writer
}

// NewPrompter returns a Prompter for policy reading from in and writing
// to out.
func NewPrompter(policy Policy, in io.Reader, out io.Writer) *Prompter {
	return &Prompter{policy: policy, in: bufio.NewReader(in), out: out}
}

// Policy returns the prompter's policy.
func (p *Prompter) Policy() Policy { return p.policy }

// Decide answers question. def is the proposed answer.
func (p *Prompter) Decide(question string, def bool) bool {
	switch p.policy {
	case Auto:
	case AssumeYes:
		def = true
	case AssumeNo:
		def = false
	default:
		return p.ask(question, def)
	}
	fmt.Fprintf(p.out, "%s? %s\n", question, yn(def))
	return def
}

// ask prompts until it reads y, yes, n, no or an empty line. An empty line
// or end of input selects def.
func (p *Prompter) ask(question string, def bool) bool {
	fmt.Fprintf(p.out, "%s ? [%s]: \n", question, yn(def))
	for {
		line, err := p.in.ReadString('\n')
		if line == "" && err != nil {
			return def
		}
		switch strings.ToLower(strings.TrimRight(line, "\r\n")) {
		case "":
			return def
		case "y", "yes":
			return true
		case "n", "no":
			return false
		}
		if err != nil {
			return def
		}
		fmt.Fprint(p.out, "Illegal answer. Please input y/n or yes/no:")
	}
}

// Fixed is a Decider that gives the same answer to every question.
type Fixed bool

// Decide returns the fixed answer.
func (f Fixed) Decide(string, bool) bool { return bool(f) }

// Policy returns AssumeYes or AssumeNo.
func (f Fixed) Policy() Policy {
	if f {
		return AssumeYes
	}
	return AssumeNo
}

// ReadOnly wraps d so that every question is answered no while the
// questions are still shown the way d would show them.
func ReadOnly(d Decider) Decider {
	if d.Policy() == AssumeNo {
		return d
	}
	if p, ok := d.(*Prompter); ok {
		return &Prompter{policy: AssumeNo, in: p.in, out: p.out}
	}
	return Fixed(false)
}

func yn(b bool) string {
	if b {
		return "y"
	}
	return "n"
}
