// Package words implements banword matching and the in-memory watch-list
// cache the bot consults on every incoming message.
package words

import "strings"

// List identifies which watch-list a term matched from.
type List string

const (
	ListGlobal   List = "global"
	ListWeekly   List = "weekly"
	ListPersonal List = "personal"
)

// Result is the outcome of matching a message against the watch-lists.
type Result struct {
	Matched bool
	Term    string
	List    List
}

// Match checks text against the three watch-lists and returns the first hit.
//
// Matching is case-insensitive substring containment, deliberately without
// word-boundary checks. Evaluation order is global, then weekly, then
// personal; the first matching term wins, so a message containing both a
// global and a personal term reports only the global one.
func Match(text string, global, weekly, personal []string) Result {
	lowered := strings.ToLower(text)

	for _, set := range []struct {
		list  List
		terms []string
	}{
		{ListGlobal, global},
		{ListWeekly, weekly},
		{ListPersonal, personal},
	} {
		for _, term := range set.terms {
			if term == "" {
				continue
			}
			if strings.Contains(lowered, term) {
				return Result{Matched: true, Term: term, List: set.list}
			}
		}
	}
	return Result{}
}

// Normalize lower-cases and trims a term the way all watch-lists store them.
func Normalize(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}

// NormalizeAll normalizes and deduplicates a term list, preserving order and
// dropping empties.
func NormalizeAll(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		n := Normalize(t)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
