// Package evidence finds verbatim supporting quotes inside section text.
// Matching is conservative on purpose: case-insensitive and
// whitespace-collapsed, but otherwise an exact substring: no stemming,
// no fuzzy distance, no punctuation stripping. Anything looser would let
// the downstream narrative stage cite text that is not actually there.
package evidence

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Citation is a verbatim quoted span from one section.
type Citation struct {
	Section string `json:"section"`
	Quote   string `json:"quote"`
	Start   int    `json:"start"` // byte offset into the section text
	End     int    `json:"end"`
}

// Normalize lowercases s and collapses whitespace runs to single spaces.
// This is the only transformation allowed before matching.
func Normalize(s string) string {
	norm, _, _ := normalizeWithMap(s)
	return strings.TrimSpace(norm)
}

// normalizeWithMap returns the normalized text plus byte-offset maps back
// into the original: starts[i] is the original offset where normalized
// byte i begins, ends[i] where it ends.
func normalizeWithMap(s string) (string, []int, []int) {
	var b strings.Builder
	var starts, ends []int
	inSpace := false
	for i, r := range s {
		size := utf8.RuneLen(r)
		if unicode.IsSpace(r) {
			if inSpace {
				continue
			}
			inSpace = true
			b.WriteByte(' ')
			starts = append(starts, i)
			ends = append(ends, i+size)
			continue
		}
		inSpace = false
		lr := unicode.ToLower(r)
		n := utf8.RuneLen(lr)
		b.WriteRune(lr)
		for k := 0; k < n; k++ {
			starts = append(starts, i)
			ends = append(ends, i+size)
		}
	}
	return b.String(), starts, ends
}

// Locate finds the first verbatim occurrence of claim within sectionText
// and returns a citation quoting the original span. The second return is
// false when no span matches; callers treat that as "unverifiable", not
// as an error.
func Locate(section, sectionText, claim string) (Citation, bool) {
	spans := LocateAll(section, sectionText, claim)
	if len(spans) == 0 {
		return Citation{}, false
	}
	return spans[0], true
}

// LocateAll returns every non-overlapping verbatim occurrence of claim in
// sectionText, in text order. The gate uses the count to refuse ambiguous
// attributions.
func LocateAll(section, sectionText, claim string) []Citation {
	nclaim := Normalize(claim)
	if nclaim == "" {
		return nil
	}
	norm, starts, ends := normalizeWithMap(sectionText)

	var out []Citation
	from := 0
	for {
		j := strings.Index(norm[from:], nclaim)
		if j < 0 {
			break
		}
		j += from
		k := j + len(nclaim)
		out = append(out, Citation{
			Section: section,
			Quote:   sectionText[starts[j]:ends[k-1]],
			Start:   starts[j],
			End:     ends[k-1],
		})
		from = k
	}
	return out
}

// ExpandToLine widens a citation to the full line containing it, so the
// quote carries enough context to be read on its own. The widened quote
// remains a verbatim substring of the section.
func ExpandToLine(sectionText string, c Citation) Citation {
	start := strings.LastIndexByte(sectionText[:c.Start], '\n') + 1
	end := strings.IndexByte(sectionText[c.End:], '\n')
	if end < 0 {
		end = len(sectionText)
	} else {
		end += c.End
	}
	for start < end && (sectionText[start] == ' ' || sectionText[start] == '\t') {
		start++
	}
	for end > start && (sectionText[end-1] == ' ' || sectionText[end-1] == '\t' || sectionText[end-1] == '\r') {
		end--
	}
	return Citation{Section: c.Section, Quote: sectionText[start:end], Start: start, End: end}
}

// Line returns the full original line containing the citation, trimmed.
// Rejection reports quote whole lines so reviewers see the claim in
// context; the line is still a verbatim substring of the section.
func Line(sectionText string, c Citation) string {
	start := strings.LastIndexByte(sectionText[:c.Start], '\n') + 1
	end := strings.IndexByte(sectionText[c.End:], '\n')
	if end < 0 {
		end = len(sectionText)
	} else {
		end += c.End
	}
	return strings.TrimSpace(sectionText[start:end])
}
