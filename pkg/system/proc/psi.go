package proc

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ReadPressure returns the "some avg10" value for a PSI resource
// ("cpu", "io" or "memory") as a fraction in [0,1].
//
// Kernels without CONFIG_PSI do not expose /proc/pressure at all; a
// missing file reports absent (nil) rather than an error so callers can
// degrade to fewer signals.
func ReadPressure(resource string) (*float64, error) {
	data, err := os.ReadFile("/proc/pressure/" + resource)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read pressure %s: %w", resource, err)
	}
	return ParsePressure(string(data))
}

// ParsePressure extracts the "some avg10" percentage from PSI file
// content and converts it to a fraction. A file without a some line
// reports absent.
func ParsePressure(content string) (*float64, error) {
	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "some ") {
			continue
		}
		for _, field := range strings.Fields(line)[1:] {
			v, ok := strings.CutPrefix(field, "avg10=")
			if !ok {
				continue
			}
			pct, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("parse avg10 %q: %w", v, err)
			}
			frac := pct / 100.0
			return &frac, nil
		}
	}
	return nil, nil
}
