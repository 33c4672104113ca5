package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseArgv(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr string
	}{
		{name: "empty", input: "", want: nil},
		{name: "simple", input: "wl-copy --trim-newline", want: []string{"wl-copy", "--trim-newline"}},
		{name: "quoted spaces", input: `mycmd --name "hello world"`, want: []string{"mycmd", "--name", "hello world"}},
		{name: "single quote", input: `mycmd --name 'hello world'`, want: []string{"mycmd", "--name", "hello world"}},
		{name: "escaped space", input: `mycmd hello\ world`, want: []string{"mycmd", "hello world"}},
		{name: "empty quoted argument", input: `notify-send "" body`, want: []string{"notify-send", "", "body"}},
		{name: "adjacent quotes join", input: `echo a"b c"d`, want: []string{"echo", "ab cd"}},
		{name: "backslash literal in single quotes", input: `printf 'a\nb'`, want: []string{"printf", `a\nb`}},
		{name: "leading comment", input: `# wl-copy --trim-newline`, want: nil},
		{name: "unterminated quote", input: `mycmd "oops`, wantErr: "unterminated quote"},
		{name: "unterminated escape", input: `mycmd hello\`, wantErr: "unterminated escape"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseArgv(tc.input)
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestParseCommandKeepsRaw(t *testing.T) {
	cmd, err := ParseCommand("  wl-copy --trim-newline ")
	require.NoError(t, err)
	require.Equal(t, CommandConfig{Raw: "wl-copy --trim-newline", Argv: []string{"wl-copy", "--trim-newline"}}, cmd)

	_, err = ParseCommand(`mycmd "oops`)
	require.Error(t, err)
}

func TestMustCommandPanicsOnInvalidInput(t *testing.T) {
	require.Panics(t, func() {
		_ = mustCommand(`mycmd "unterminated`)
	})
}
