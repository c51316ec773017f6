// Package prompts parses the prompt file format spec.md section 6 names:
// named sections delimited by "### PROMPT: <NAME>" (or "### <NAME>") to
// "=== END PROMPT ===", resolved by exact name then "<NAME>_PROMPT", with
// "{page}"/"{PAGE_NUMBER}" page-number substitution for OCR prompts.
package prompts

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

var (
	startPromptPrefix = "### PROMPT:"
	startShortPrefix  = "###"
	endMarker         = "=== END PROMPT ==="
)

// Set holds the named prompt sections parsed from a prompt file.
type Set struct {
	byName map[string]string
}

// Parse reads the prompt file format from lines, one file line per element.
func Parse(lines []string) (*Set, error) {
	s := &Set{byName: make(map[string]string)}

	var currentName string
	var currentBody strings.Builder
	inSection := false

	flush := func() {
		if inSection {
			s.byName[currentName] = strings.TrimRight(currentBody.String(), "\n")
		}
	}

	for _, line := range lines {
		trimmed := strings.TrimRight(line, "\r\n")

		if strings.TrimSpace(trimmed) == endMarker {
			flush()
			inSection = false
			currentBody.Reset()
			continue
		}

		if name, ok := sectionHeader(trimmed); ok {
			flush()
			currentName = name
			currentBody.Reset()
			inSection = true
			continue
		}

		if inSection {
			currentBody.WriteString(trimmed)
			currentBody.WriteString("\n")
		}
	}
	flush()

	return s, nil
}

// ParseString is a convenience wrapper over Parse for a full file body.
func ParseString(content string) (*Set, error) {
	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("prompts: scan: %w", err)
	}
	return Parse(lines)
}

func sectionHeader(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, startPromptPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(trimmed, startPromptPrefix)), true
	}
	if strings.HasPrefix(trimmed, startShortPrefix) {
		name := strings.TrimSpace(strings.TrimPrefix(trimmed, startShortPrefix))
		if name != "" && !strings.HasPrefix(name, "#") {
			return name, true
		}
	}
	return "", false
}

// Resolve looks up name, falling back to "<name>_PROMPT", and returns
// the raw template (before page substitution).
func (s *Set) Resolve(name string) (string, bool) {
	if body, ok := s.byName[name]; ok {
		return body, true
	}
	if body, ok := s.byName[name+"_PROMPT"]; ok {
		return body, true
	}
	return "", false
}

// ResolveOCRPage resolves name and substitutes the page-number
// placeholders ("{page}", "{PAGE_NUMBER}") with pageIndex.
func (s *Set) ResolveOCRPage(name string, pageIndex int) (string, bool) {
	body, ok := s.Resolve(name)
	if !ok {
		return "", false
	}
	page := strconv.Itoa(pageIndex)
	body = strings.ReplaceAll(body, "{page}", page)
	body = strings.ReplaceAll(body, "{PAGE_NUMBER}", page)
	return body, true
}
