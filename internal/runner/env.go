package runner

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// envRefPrefix marks a value that is read from the harness environment.
const envRefPrefix = "env:"

// resolveEnv turns extra into sorted "K=V" entries. A value of the form
// "env:NAME" is replaced by the harness's NAME, which must be set.
func resolveEnv(extra map[string]string) ([]string, error) {
	if len(extra) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		v := extra[k]
		if ref, ok := strings.CutPrefix(v, envRefPrefix); ok {
			v = os.Getenv(ref)
			if v == "" {
				return nil, fmt.Errorf("%w: %s: variable %q is not set", ErrEngineEnv, k, ref)
			}
		}
		out = append(out, k+"="+v)
	}
	return out, nil
}

// engineEnv is the environment the engine runs with: the harness's own
// plus extra, where extra wins.
func engineEnv(extra map[string]string) ([]string, error) {
	add, err := resolveEnv(extra)
	if err != nil || add == nil {
		return nil, err
	}
	return append(os.Environ(), add...), nil
}
