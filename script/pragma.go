package script

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Version is the runtime version scripts can require with a leading
// "--@requires <constraint>" comment, e.g. "--@requires >= 0.2, < 1.0".
const Version = "0.3.0"

var (
	runtimeVersion  = semver.MustParse(Version)
	requiresPattern = regexp.MustCompile(`^--@requires\s+(.+)$`)
)

// checkRequirements inspects the leading comment block of a body.
func checkRequirements(body string) error {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "--") {
			return nil
		}
		m := requiresPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		constraint, err := semver.NewConstraint(strings.TrimSpace(m[1]))
		if err != nil {
			return fmt.Errorf("invalid requirement %q: %w", m[1], err)
		}
		if !constraint.Check(runtimeVersion) {
			return fmt.Errorf("requires runtime %s, running %s", strings.TrimSpace(m[1]), Version)
		}
	}
	return nil
}
