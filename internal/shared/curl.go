// Utilities for parsing pasted browser request headers.
package shared

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
)

var (
	curlHeaderRegex = regexp.MustCompile(`-H\s+'([^']+)'|-H\s+"([^"]+)"`)
	curlCookieRegex = regexp.MustCompile(`(?:-b|--cookie)\s+'([^']+)'|(?:-b|--cookie)\s+"([^"]+)"`)
	requestLine     = regexp.MustCompile(`^(GET|POST|PUT|PATCH|DELETE|OPTIONS|HEAD)\s+\S+(\s+HTTP/[\d.]+)?$`)
)

// Headers maps lowercased header names to values.
type Headers map[string]string

// Get looks a header up case-insensitively.
func (h Headers) Get(name string) string {
	return h[strings.ToLower(name)]
}

// Lines renders headers as newline-separated "name: value" pairs.
func (h Headers) Lines() string {
	lines := make([]string, 0, len(h))
	for key, value := range h {
		lines = append(lines, fmt.Sprintf("%s: %s", key, value))
	}
	return strings.Join(lines, "\n")
}

// ParseHeadersFile reads a file containing either a copied cURL command or raw header lines.
func ParseHeadersFile(path string) (Headers, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read headers file: %w", err)
	}
	return ParseRawHeaders(string(content))
}

// ParseRawHeaders parses a pasted block of request headers.
//
// Both "Copy as cURL" output and "Name: value" lines copied from browser dev tools are accepted.
// Request lines and HTTP/2 pseudo-headers are skipped. Header names are lowercased.
func ParseRawHeaders(raw string) (Headers, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: headers are empty", ErrInvalidInput)
	}

	if strings.HasPrefix(raw, "curl ") || strings.HasPrefix(raw, "curl\t") {
		return parseCurlCommand(raw)
	}

	headers := make(Headers)
	scanner := bufio.NewScanner(strings.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") || requestLine.MatchString(line) {
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		headers[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if len(headers) == 0 {
		return nil, fmt.Errorf("%w: no headers found", ErrInvalidInput)
	}
	return headers, nil
}

func parseCurlCommand(cmd string) (Headers, error) {
	cmd = strings.ReplaceAll(cmd, "\\\r\n", " ")
	cmd = strings.ReplaceAll(cmd, "\\\n", " ")
	cmd = strings.ReplaceAll(cmd, "^\n", " ")

	headers := make(Headers)
	for _, match := range curlHeaderRegex.FindAllStringSubmatch(cmd, -1) {
		line := firstGroup(match)
		key, value, ok := strings.Cut(line, ":")
		if !ok || strings.HasPrefix(line, ":") {
			continue
		}
		headers[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}

	if match := curlCookieRegex.FindStringSubmatch(cmd); match != nil {
		if _, ok := headers["cookie"]; !ok {
			headers["cookie"] = strings.TrimSpace(firstGroup(match))
		}
	}

	if len(headers) == 0 {
		return nil, fmt.Errorf("%w: no headers found in curl command", ErrInvalidInput)
	}
	return headers, nil
}

func firstGroup(match []string) string {
	if match[1] != "" {
		return match[1]
	}
	return match[2]
}
