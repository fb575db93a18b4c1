package system

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"syscall"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// ErrUnknownSignal is returned by ParseSignal for names the platform lacks.
var ErrUnknownSignal = errors.New("unknown signal")

// ParseSignal resolves a signal by name ("SIGTERM", "term") or number.
// An empty name means SIGTERM.
func ParseSignal(name string) (syscall.Signal, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	if n == "" {
		return syscall.SIGTERM, nil
	}
	if num, err := strconv.Atoi(n); err == nil && num > 0 {
		return syscall.Signal(num), nil
	}
	if !strings.HasPrefix(n, "SIG") {
		n = "SIG" + n
	}
	if sig := signalNum(n); sig != 0 {
		return sig, nil
	}
	if hint := suggestSignal(n); hint != "" {
		return 0, fmt.Errorf("%w %q, did you mean %s?", ErrUnknownSignal, name, hint)
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownSignal, name)
}

// SignalName returns the conventional name of sig, e.g. "SIGKILL".
func SignalName(sig syscall.Signal) string {
	if name := signalName(sig); name != "" {
		return name
	}
	return "SIG" + strconv.Itoa(int(sig))
}

func suggestSignal(name string) string {
	best, bestDist := "", 3
	for _, candidate := range signalNames() {
		if d := fuzzy.LevenshteinDistance(name, candidate); d < bestDist {
			best, bestDist = candidate, d
		}
	}
	return best
}
