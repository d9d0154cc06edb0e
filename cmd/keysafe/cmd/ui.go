package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"

	"github.com/jmcleod/keysafe/auth"
)

var (
	success = color.New(color.FgGreen).SprintFunc()
	failure = color.New(color.FgRed).SprintFunc()
	warning = color.New(color.FgYellow).SprintFunc()
	info    = color.New(color.FgCyan).SprintFunc()
	muted   = color.New(color.FgHiBlack).SprintFunc()
)

// approvalSpinner shows a wait indicator while a keychain or hardware
// token approval is pending. Passphrase prompts own the terminal, so they
// get none.
type approvalSpinner struct {
	w      io.Writer
	silent bool

	mu sync.Mutex
	s  *spinner.Spinner
}

func newApprovalSpinner(w io.Writer, silent bool) *approvalSpinner {
	return &approvalSpinner{w: w, silent: silent}
}

func (a *approvalSpinner) observe(t auth.Transition) {
	if a.silent {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case t.To == auth.StatePrompted && t.Variant != auth.VariantPassphrase:
		a.s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(a.w))
		a.s.Suffix = " " + waitMessage(t)
		_ = a.s.Color("cyan")
		a.s.Start()
	case t.To.Terminal() && a.s != nil:
		if t.To != auth.StateApproved {
			a.s.FinalMSG = fmt.Sprintf("%s approval %s\n", failure("✗"), strings.ReplaceAll(t.To.String(), "_", " "))
		}
		a.s.Stop()
		a.s = nil
	}
}

func waitMessage(t auth.Transition) string {
	switch t.Variant {
	case auth.VariantFIDO2:
		return "Touch your security key to " + t.Operation + "..."
	case auth.VariantKeychain:
		return "Waiting for keychain approval to " + t.Operation + "..."
	default:
		return "Waiting for approval..."
	}
}

// confirm asks a yes/no question on w and reads the answer from r.
func confirm(r io.Reader, w io.Writer, question string) bool {
	fmt.Fprintf(w, "%s [y/N]: ", question)
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
