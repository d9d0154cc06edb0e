package auth

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipeInput(t *testing.T, data string) *os.File {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	_, err = w.WriteString(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	t.Cleanup(func() { r.Close() })
	return r
}

func TestTerminalSourcesShareInput(t *testing.T) {
	in := pipeInput(t, "value\npassphrase\n")
	value := &TerminalSource{In: in, Out: io.Discard}
	pass := &TerminalSource{In: in, Out: io.Discard}

	got, err := value.Passphrase(t.Context(), Prompt{Message: "Value: "})
	require.NoError(t, err)
	assert.Equal(t, "value", string(got))

	got, err = pass.Passphrase(t.Context(), Prompt{Message: "Passphrase: "})
	require.NoError(t, err)
	assert.Equal(t, "passphrase", string(got))

	_, err = pass.Passphrase(t.Context(), Prompt{Message: "Passphrase: "})
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestTerminalSourceLastLineWithoutNewline(t *testing.T) {
	in := pipeInput(t, "only\r\n")
	got, err := (&TerminalSource{In: in}).Passphrase(t.Context(), Prompt{})
	require.NoError(t, err)
	assert.Equal(t, "only", string(got))

	in = pipeInput(t, "trailing")
	got, err = (&TerminalSource{In: in}).Passphrase(t.Context(), Prompt{})
	require.NoError(t, err)
	assert.Equal(t, "trailing", string(got))
}

func TestTerminalSourceEnvironment(t *testing.T) {
	t.Setenv("KEYSAFE_TEST_PASSPHRASE", "from env")
	in := pipeInput(t, "from stdin\n")
	src := &TerminalSource{In: in, Env: "KEYSAFE_TEST_PASSPHRASE"}
	got, err := src.Passphrase(t.Context(), Prompt{})
	require.NoError(t, err)
	assert.Equal(t, "from env", string(got))
}
