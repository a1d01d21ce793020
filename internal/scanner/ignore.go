package scanner

import (
	"bufio"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Pattern is one gitignore-style rule from a .gcgignore file or the
// exclude list of the configuration.
type Pattern struct {
	raw      string
	negate   bool // starts with !
	dirOnly  bool // ends with /
	anchored bool // starts with / or has a slash inside
	segments []string
}

// ParsePattern parses a gitignore-style pattern.
func ParsePattern(line string) Pattern {
	p := Pattern{raw: line}
	if strings.HasPrefix(line, "!") {
		p.negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		p.anchored = true
		line = line[1:]
	} else if strings.Contains(line, "/") && !strings.HasPrefix(line, "**/") {
		p.anchored = true
	}
	p.segments = strings.Split(line, "/")
	return p
}

func (p Pattern) String() string { return p.raw }

// IsNegation reports whether a match re-includes the path.
func (p Pattern) IsNegation() bool {
	return p.negate
}

// Match reports whether rel, a slash separated path relative to the scan
// root, or one of its parent directories matches the pattern.
func (p Pattern) Match(rel string, isDir bool) bool {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for n := 1; n <= len(parts); n++ {
		prefixIsDir := n < len(parts) || isDir
		if p.dirOnly && !prefixIsDir {
			continue
		}
		if p.matchPrefix(parts[:n]) {
			return true
		}
	}
	return false
}

func (p Pattern) matchPrefix(parts []string) bool {
	if p.anchored {
		return matchSegments(p.segments, parts)
	}
	for start := 0; start < len(parts); start++ {
		if matchSegments(p.segments, parts[start:]) {
			return true
		}
	}
	return false
}

// matchSegments matches the whole of parts. "**" spans any number of
// segments; other segments use path.Match globbing.
func matchSegments(pattern, parts []string) bool {
	if len(pattern) == 0 {
		return len(parts) == 0
	}
	if pattern[0] == "**" {
		for i := 0; i <= len(parts); i++ {
			if matchSegments(pattern[1:], parts[i:]) {
				return true
			}
		}
		return false
	}
	if len(parts) == 0 {
		return false
	}
	if ok, err := path.Match(pattern[0], parts[0]); err != nil || !ok {
		return false
	}
	return matchSegments(pattern[1:], parts[1:])
}

// ignored applies patterns in order; the last matching pattern wins.
func ignored(rel string, isDir bool, patterns []Pattern) bool {
	out := false
	for _, p := range patterns {
		if p.Match(rel, isDir) {
			out = !p.negate
		}
	}
	return out
}

// loadIgnoreFile reads patterns from dir/name. A missing file yields none.
// Patterns of nested files are re-rooted at the scan root through prefix.
func loadIgnoreFile(dir, name, prefix string) ([]Pattern, error) {
	file, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var patterns []Pattern
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, reroot(line, prefix))
	}
	return patterns, scanner.Err()
}

func reroot(line, prefix string) Pattern {
	if prefix == "" {
		return ParsePattern(line)
	}
	negate := strings.HasPrefix(line, "!")
	body := strings.TrimPrefix(line, "!")
	p := ParsePattern(body)
	if p.anchored {
		body = "/" + prefix + "/" + strings.TrimPrefix(body, "/")
	} else {
		body = "/" + prefix + "/**/" + body
	}
	if negate {
		body = "!" + body
	}
	return ParsePattern(body)
}
