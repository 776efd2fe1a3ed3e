package summary

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/manicule/manicule/internal/ghapp"
)

// Change is one categorized observation from a pull-request diff. Line keeps
// the originating raw patch line so downstream prompts can quote evidence.
type Change struct {
	Summary string
	Line    string
}

// Summary is the structured, categorized digest of a pull request's diff.
// It is transient: produced per event, discarded after doc generation.
type Summary struct {
	APIChanges      []Change
	BehaviorChanges []Change
	ConfigChanges   []Change
	General         []Change
	TouchedFiles    []string
}

// Empty reports whether the summary contains no categorized changes.
func (s *Summary) Empty() bool {
	return len(s.APIChanges) == 0 && len(s.BehaviorChanges) == 0 &&
		len(s.ConfigChanges) == 0 && len(s.General) == 0
}

var (
	// routeCallPattern matches Express/Fiber-style route registrations:
	// router.get("/users/:id"), app.post('/login'), ...
	routeCallPattern = regexp.MustCompile(`(?i)\b(?:router|app|r|api|mux)\.(get|post|put|delete|patch)\(\s*["'` + "`" + `]([^"'` + "`" + `]+)`)

	// quotedPathPattern matches a quoted URL-path-like token: "/api/users".
	quotedPathPattern = regexp.MustCompile(`["'` + "`" + `](/[A-Za-z0-9_\-{}:.]+(?:/[A-Za-z0-9_\-{}:.]*)*)["'` + "`" + `]`)

	// envAccessPattern matches environment variable access in common languages.
	envAccessPattern = regexp.MustCompile(`process\.env\.|os\.Getenv|os\.environ|ENV\[|getenv\(`)

	// behaviorKeywordPattern matches control-flow and side-effect keywords.
	behaviorKeywordPattern = regexp.MustCompile(`\b(if|else|switch|for|while|return|throw|panic|await|try|catch|new)\b`)
)

// configExtensions are file extensions treated as configuration by heuristic (b).
var configExtensions = map[string]bool{
	".env":  true,
	".yaml": true,
	".yml":  true,
	".toml": true,
	".ini":  true,
	".conf": true,
}

// Summarize converts a set of changed-file patches into a categorized change
// summary. It is a pure function: the same input always yields the same
// output, and no external calls are made. A line may land in several
// categories; a line matching none is recorded under General so no signal is
// silently dropped.
func Summarize(files []ghapp.ChangedFile) *Summary {
	s := &Summary{}

	seen := map[string]map[string]bool{
		"api":      {},
		"behavior": {},
		"config":   {},
		"general":  {},
	}

	add := func(category string, dst *[]Change, summary, line string) {
		if seen[category][line] {
			return
		}
		seen[category][line] = true
		*dst = append(*dst, Change{Summary: summary, Line: line})
	}

	for _, file := range files {
		s.TouchedFiles = append(s.TouchedFiles, file.Filename)

		if file.Patch == "" {
			add("general", &s.General,
				fmt.Sprintf("%s changed, no patch available (%s)", file.Filename, file.Status),
				file.Filename)
			continue
		}

		configFile := isConfigFile(file.Filename)

		for _, line := range strings.Split(file.Patch, "\n") {
			// Only added/removed content lines; skip the +++/--- file headers.
			if strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---") {
				continue
			}
			if !strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "-") {
				continue
			}

			verb := "Added"
			if strings.HasPrefix(line, "-") {
				verb = "Removed"
			}
			content := strings.TrimSpace(line[1:])
			if content == "" {
				continue
			}

			matched := false

			if route, ok := matchRoute(content); ok {
				add("api", &s.APIChanges,
					fmt.Sprintf("%s route %s in %s", verb, route, file.Filename), line)
				matched = true
			} else if path, ok := matchQuotedPath(content); ok {
				add("api", &s.APIChanges,
					fmt.Sprintf("%s reference to %s in %s", verb, path, file.Filename), line)
				matched = true
			}

			if configFile || envAccessPattern.MatchString(content) {
				add("config", &s.ConfigChanges,
					fmt.Sprintf("%s configuration line in %s", verb, file.Filename), line)
				matched = true
			}

			if behaviorKeywordPattern.MatchString(content) {
				add("behavior", &s.BehaviorChanges,
					fmt.Sprintf("%s logic in %s", verb, file.Filename), line)
				matched = true
			}

			if !matched {
				add("general", &s.General,
					fmt.Sprintf("%s line in %s", verb, file.Filename), line)
			}
		}
	}

	return s
}

// matchRoute extracts "METHOD /path" from a route registration line.
func matchRoute(line string) (string, bool) {
	m := routeCallPattern.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return strings.ToUpper(m[1]) + " " + m[2], true
}

// matchQuotedPath extracts a quoted URL-path-like token.
func matchQuotedPath(line string) (string, bool) {
	m := quotedPathPattern.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// isConfigFile reports whether a filename looks configuration-related by
// name or extension.
func isConfigFile(name string) bool {
	base := strings.ToLower(filepath.Base(name))
	if strings.Contains(base, "config") {
		return true
	}
	if strings.HasPrefix(base, ".env") {
		return true
	}
	return configExtensions[filepath.Ext(base)]
}
