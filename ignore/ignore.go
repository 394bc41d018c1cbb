// Package ignore parses .dfmignore glob rules and matches workspace
// paths against them, providing the base rule set used throughout
// scanning plus an extended tier that additionally excludes the
// working meshes/ directory when scanning for project commits.
package ignore

import (
	"bufio"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/go-git/go-billy/v6"
)

// DefaultFileName is the ignore-rules file forester looks for at the
// repository root.
const DefaultFileName = ".dfmignore"

// Rules is a compiled set of glob-derived patterns.
type Rules struct {
	patterns []*regexp.Regexp
}

// defaultRules is the rule set applied when no .dfmignore file exists
// or the file is present but empty. meshes/ is deliberately NOT in
// this list: it is excluded only by ExtendedRules, since meshes are
// handled through a separate commit pipeline.
func defaultRules() []string {
	return []string{
		".DFM/",
		"*.blend1",
		"*.blend2",
		"*.blend3",
		".DS_Store",
		"Thumbs.db",
		"desktop.ini",
		"*.tmp",
		"*.temp",
		"*.swp",
		"*.swo",
		"*~",
		"__pycache__/",
		"*.pyc",
		"*.pyo",
		"*.max",
		"*.ma",
		"*.mb",
		"*.3ds",
	}
}

// Load reads rules from fs at ignoreFile; if the file doesn't exist or
// is empty once comments/blank lines are stripped, the default rule
// set is compiled instead.
func Load(fs billy.Filesystem, ignoreFile string) (*Rules, error) {
	f, err := fs.Open(ignoreFile)
	if err != nil {
		return compile(defaultRules())
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", ignoreFile, err)
	}
	if len(lines) == 0 {
		lines = defaultRules()
	}
	return compile(lines)
}

func compile(rules []string) (*Rules, error) {
	r := &Rules{}
	for _, rule := range rules {
		pattern := globToRegex(rule)
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			// Skip invalid patterns rather than failing the whole load.
			continue
		}
		r.patterns = append(r.patterns, compiled)
	}
	return r, nil
}

// globToRegex translates one glob rule into an anchored regex,
// supporting *, **, ?, [abc], a leading / (root-relative) and a
// trailing / (directory only).
func globToRegex(pattern string) string {
	rootRelative := strings.HasPrefix(pattern, "/")
	dirOnly := strings.HasSuffix(pattern, "/")

	body := pattern
	if rootRelative {
		body = body[1:]
	}
	if dirOnly {
		body = strings.TrimSuffix(body, "/")
	}

	var out strings.Builder
	i := 0
	for i < len(body) {
		switch {
		case strings.HasPrefix(body[i:], "**"):
			out.WriteString(".*")
			i += 2
		case body[i] == '*':
			out.WriteString("[^/]*")
			i++
		case body[i] == '?':
			out.WriteString(".")
			i++
		case body[i] == '[':
			end := strings.IndexByte(body[i:], ']')
			if end == -1 {
				out.WriteString(regexp.QuoteMeta(string(body[i])))
				i++
				continue
			}
			out.WriteString(body[i : i+end+1])
			i += end + 1
		default:
			out.WriteString(regexp.QuoteMeta(string(body[i])))
			i++
		}
	}

	result := out.String()
	if dirOnly {
		result += "/.*"
	}
	if rootRelative {
		return "^" + result
	}
	return ".*" + result
}

// ShouldIgnore reports whether rel (forward-slash, relative to the
// workspace root) matches any compiled pattern.
func (r *Rules) ShouldIgnore(rel string) bool {
	normalized := path.Clean(strings.ReplaceAll(rel, "\\", "/"))
	for _, p := range r.patterns {
		if p.MatchString(normalized) {
			return true
		}
	}
	return false
}

// ExtendedRules wraps Rules and additionally excludes the working
// meshes/ directory, used when scanning for project (non-mesh-only)
// commits since meshes go through a different pipeline.
type ExtendedRules struct {
	*Rules
	meshesPattern *regexp.Regexp
}

// NewExtended builds an ExtendedRules from an already-loaded base
// Rules.
func NewExtended(base *Rules) *ExtendedRules {
	return &ExtendedRules{
		Rules:         base,
		meshesPattern: regexp.MustCompile(globToRegex("meshes/")),
	}
}

// ShouldIgnore reports whether rel should be ignored under either the
// base rules or the meshes/ exclusion.
func (r *ExtendedRules) ShouldIgnore(rel string) bool {
	normalized := path.Clean(strings.ReplaceAll(rel, "\\", "/"))
	if r.meshesPattern.MatchString(normalized) {
		return true
	}
	return r.Rules.ShouldIgnore(rel)
}

// CreateDefaultFile writes .dfmignore with the default rule set and a
// short header comment, unless the file already exists.
func CreateDefaultFile(fs billy.Filesystem, ignoreFile string) error {
	if _, err := fs.Stat(ignoreFile); err == nil {
		return nil
	}
	f, err := fs.Create(ignoreFile)
	if err != nil {
		return fmt.Errorf("create %s: %w", ignoreFile, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "# Forester ignore rules")
	fmt.Fprintln(w, "# Lines starting with # are comments")
	fmt.Fprintln(w)
	for _, rule := range defaultRules() {
		fmt.Fprintln(w, rule)
	}
	return w.Flush()
}
