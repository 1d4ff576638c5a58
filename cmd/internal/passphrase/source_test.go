package passphrase

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func fixedEnv(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestSourcePrefersEnvironment(t *testing.T) {
	s := NewSource("AGRI_SECRET", "secret")
	s.lookup = fixedEnv(map[string]string{"AGRI_SECRET": "from-env"})
	s.prompt = func(string) (string, error) { t.Fatal("prompt should not run"); return "", nil }

	value, err := s.Get()
	require.NoError(t, err)
	require.Equal(t, "from-env", value)
}

func TestSourceRejectsBlankEnvironment(t *testing.T) {
	s := NewSource("AGRI_SECRET", "secret")
	s.lookup = fixedEnv(map[string]string{"AGRI_SECRET": "   "})
	_, err := s.Get()
	require.ErrorContains(t, err, "set but empty")
}

func TestSourcePromptsOnceAndCaches(t *testing.T) {
	calls := 0
	s := NewSource("AGRI_SECRET", "keystore passphrase")
	s.lookup = fixedEnv(nil)
	s.prompt = func(label string) (string, error) {
		calls++
		require.Equal(t, "keystore passphrase", label)
		return "hunter2", nil
	}
	for i := 0; i < 3; i++ {
		value, err := s.Get()
		require.NoError(t, err)
		require.Equal(t, "hunter2", value)
	}
	require.Equal(t, 1, calls)
}

func TestSourcePromptFailure(t *testing.T) {
	s := NewSource("", "secret")
	s.prompt = func(string) (string, error) { return "", errors.New("no tty") }
	_, err := s.Get()
	require.EqualError(t, err, "no tty")

	s = NewSource("", "secret")
	s.prompt = func(string) (string, error) { return " ", nil }
	_, err = s.Get()
	require.ErrorContains(t, err, "cannot be empty")
}
