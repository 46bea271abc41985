package extract

import (
	"regexp"
	"strings"
)

// noisePatterns strip the filler small local models wrap around their JSON:
// bookkeeping words echoed from the prompt (已收/應收), explanation lines and
// answer markers. Patterns run in order over the whole output.
var noisePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^已收\s*`),
	regexp.MustCompile(`(?m)^應收\s*`),
	regexp.MustCompile(`(?m)^說明：.*\n?`),
	regexp.MustCompile(`(?m)^解釋：.*\n?`),
	regexp.MustCompile(`(?m)^答案：\s*`),
	regexp.MustCompile(`\n已收\s*$`),
	regexp.MustCompile(`\n應收\s*$`),
}

var quoteNormalizer = strings.NewReplacer(
	"“", `"`, // left curly double quote
	"”", `"`, // right curly double quote
	"＂", `"`, // fullwidth quotation mark
)

// repair is the bounded cleanup pass between the two decode attempts:
// drop code fences, strip known noise, normalize quote characters, then
// keep only the outermost JSON object. It never loops and never touches
// output that is already clean JSON (that decoded on the first attempt).
func repair(raw string) string {
	s := strings.TrimSpace(raw)
	s = stripFences(s)
	for _, p := range noisePatterns {
		s = p.ReplaceAllString(s, "")
	}
	s = quoteNormalizer.Replace(s)
	s = firstObject(s)
	return strings.TrimSpace(s)
}

// stripFences removes a ```json ... ``` (or bare ```) wrapper if present.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	// Drop the opening fence line (``` or ```json).
	idx := strings.Index(s, "\n")
	if idx == -1 {
		return s
	}
	s = strings.TrimSpace(s[idx+1:])
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// firstObject keeps the span from the first '{' to the last '}', the same
// greedy extraction the prompt's "ONLY a valid JSON object" instruction
// assumes. Input without braces is returned unchanged so the decode error
// reflects the original text.
func firstObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}
