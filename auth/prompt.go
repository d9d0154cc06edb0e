package auth

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Prompt describes a passphrase request.
type Prompt struct {
	Message string
	// Confirm asks for the passphrase twice.
	Confirm bool
	Silent  bool
}

// PassphraseSource supplies passphrases. It returns ErrCancelled when the
// user gives up and must honor ctx.
type PassphraseSource interface {
	Passphrase(ctx context.Context, p Prompt) ([]byte, error)
}

// PassphraseFunc adapts a function to PassphraseSource.
type PassphraseFunc func(ctx context.Context, p Prompt) ([]byte, error)

func (f PassphraseFunc) Passphrase(ctx context.Context, p Prompt) ([]byte, error) {
	return f(ctx, p)
}

// TerminalSource reads from a terminal without echo, or a line at a time
// when In is not a terminal. If Env names a set variable, its value is used
// instead of prompting.
type TerminalSource struct {
	In  *os.File
	Out io.Writer
	Env string
}

// NewTerminalSource reads from stdin and prompts on stderr.
func NewTerminalSource(env string) *TerminalSource {
	return &TerminalSource{In: os.Stdin, Out: os.Stderr, Env: env}
}

func (t *TerminalSource) Passphrase(ctx context.Context, p Prompt) ([]byte, error) {
	if t.Env != "" {
		if v, ok := os.LookupEnv(t.Env); ok && v != "" {
			return []byte(v), nil
		}
	}
	interactive := term.IsTerminal(int(t.In.Fd()))
	if p.Silent && interactive {
		return nil, fmt.Errorf("%w: passphrase prompt suppressed in silent mode", ErrAuthenticationRequired)
	}
	first, err := t.read(ctx, p.Message, interactive, p.Silent)
	if err != nil {
		return nil, err
	}
	if !p.Confirm || !interactive {
		return first, nil
	}
	second, err := t.read(ctx, "Confirm passphrase: ", interactive, p.Silent)
	if err != nil {
		return nil, err
	}
	if string(first) != string(second) {
		return nil, ErrPassphraseMismatch
	}
	return first, nil
}

func (t *TerminalSource) read(ctx context.Context, msg string, interactive, silent bool) ([]byte, error) {
	if !silent && t.Out != nil && interactive {
		fmt.Fprint(t.Out, msg)
	}
	type result struct {
		b   []byte
		err error
	}
	ch := make(chan result, 1)
	go func() {
		if interactive {
			b, err := term.ReadPassword(int(t.In.Fd()))
			if t.Out != nil && !silent {
				fmt.Fprintln(t.Out)
			}
			ch <- result{b, err}
			return
		}
		line, err := sharedLineReader(t.In).readLine()
		if err == io.EOF && line != "" {
			err = nil
		}
		ch <- result{[]byte(strings.TrimRight(line, "\r\n")), err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.err == io.EOF {
			return nil, ErrCancelled
		}
		if r.err != nil {
			return nil, fmt.Errorf("reading passphrase: %w", r.err)
		}
		if len(r.b) == 0 {
			return nil, ErrCancelled
		}
		return r.b, nil
	}
}

// lineReader buffers a non-terminal input. One is shared by every source
// reading the same file, so a line buffered by one read is not lost to the
// next.
type lineReader struct {
	mu sync.Mutex
	r  *bufio.Reader
}

func (l *lineReader) readLine() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.ReadString('\n')
}

var (
	lineReadersMu sync.Mutex
	lineReaders   = map[*os.File]*lineReader{}
)

func sharedLineReader(f *os.File) *lineReader {
	lineReadersMu.Lock()
	defer lineReadersMu.Unlock()
	l, ok := lineReaders[f]
	if !ok {
		l = &lineReader{r: bufio.NewReader(f)}
		lineReaders[f] = l
	}
	return l
}
