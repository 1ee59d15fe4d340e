package evidence

import (
	"regexp"
	"strings"
)

// NotFound is the marker rendered when no evidence span exists.
const NotFound = "Not Found"

var (
	digitRe      = regexp.MustCompile(`\d`)
	headingRe    = regexp.MustCompile(`^[A-Z0-9\s\-\(\)\[\]#:·•]+$`)
	unitMarkers  = []string{"%", "mpa", "pcs", "lot", "0/", "sop", "coa", "cpk", "ppm"}
	actionVerbs  = []string{"screen", "sort", "inspect", "segreg", "hold", "stop ship", "lock", "verify", "update", "train", "recipe"}
	headingHints = []string{"(ica)", "(pca)", "interim containment", "permanent corrective", "validation of", "system/process controls"}
)

// Snippet picks the most evidence-like line from text: prefers lines
// hitting the given keywords, then lines with numbers, units, or concrete
// action verbs, and skips heading-like lines. Returns NotFound when the
// text has no usable content. Long snippets are truncated with an ellipsis.
func Snippet(text string, maxLen int, keywords []string) string {
	if maxLen <= 3 {
		maxLen = 160
	}
	var lines []string
	for _, ln := range strings.Split(text, "\n") {
		ln = strings.Join(strings.Fields(ln), " ")
		if ln != "" {
			lines = append(lines, ln)
		}
	}
	if len(lines) == 0 {
		return NotFound
	}

	candidates := make([]string, 0, len(lines))
	for _, ln := range lines {
		if !headingLike(ln) {
			candidates = append(candidates, ln)
		}
	}
	if len(candidates) == 0 {
		candidates = lines
	}

	best, bestScore := "", -1
	for _, ln := range candidates {
		if s := scoreLine(ln, keywords); s > bestScore {
			best, bestScore = ln, s
		}
	}
	if best == "" {
		return NotFound
	}
	if len(best) > maxLen {
		best = strings.TrimRight(best[:maxLen-3], " ") + "..."
	}
	return best
}

func headingLike(line string) bool {
	if len(line) < 18 {
		return true
	}
	if headingRe.MatchString(line) {
		return true
	}
	lower := strings.ToLower(line)
	hasDigit := digitRe.MatchString(line)
	for _, h := range headingHints {
		if strings.Contains(lower, h) && !hasDigit {
			return true
		}
	}
	if strings.HasSuffix(line, ":") && !hasDigit {
		return true
	}
	return false
}

func scoreLine(line string, keywords []string) int {
	lower := strings.ToLower(line)
	s := 0
	hits := 0
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			hits++
		}
	}
	if hits > 0 {
		if hits > 3 {
			hits = 3
		}
		s += 5 + hits
	}
	if digitRe.MatchString(line) {
		s += 3
	}
	for _, u := range unitMarkers {
		if strings.Contains(lower, u) {
			s += 2
			break
		}
	}
	for _, v := range actionVerbs {
		if strings.Contains(lower, v) {
			s += 2
			break
		}
	}
	if len(line) >= 40 {
		s++
	}
	return s
}
