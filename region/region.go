// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package region

import (
	"sort"
	"strings"
	"unicode"
)

var abbreviations = map[string]string{
	"AL": "Alabama", "AK": "Alaska", "AZ": "Arizona", "AR": "Arkansas", "CA": "California",
	"CO": "Colorado", "CT": "Connecticut", "DE": "Delaware", "DC": "District of Columbia",
	"FL": "Florida", "GA": "Georgia", "HI": "Hawaii", "ID": "Idaho", "IL": "Illinois",
	"IN": "Indiana", "IA": "Iowa", "KS": "Kansas", "KY": "Kentucky", "LA": "Louisiana",
	"ME": "Maine", "MD": "Maryland", "MA": "Massachusetts", "MI": "Michigan", "MN": "Minnesota",
	"MS": "Mississippi", "MO": "Missouri", "MT": "Montana", "NE": "Nebraska", "NV": "Nevada",
	"NH": "New Hampshire", "NJ": "New Jersey", "NM": "New Mexico", "NY": "New York",
	"NC": "North Carolina", "ND": "North Dakota", "OH": "Ohio", "OK": "Oklahoma", "OR": "Oregon",
	"PA": "Pennsylvania", "RI": "Rhode Island", "SC": "South Carolina", "SD": "South Dakota",
	"TN": "Tennessee", "TX": "Texas", "UT": "Utah", "VT": "Vermont", "VA": "Virginia",
	"WA": "Washington", "WV": "West Virginia", "WI": "Wisconsin", "WY": "Wyoming",
	"PR": "Puerto Rico", "GU": "Guam", "VI": "U.S. Virgin Islands", "AS": "American Samoa",
	"MP": "Northern Mariana Islands",
}

var aliases = map[string]string{
	"washington dc":     "District of Columbia",
	"washington d c":    "District of Columbia",
	"d c":               "District of Columbia",
	"cali":              "California",
	"penn":              "Pennsylvania",
	"mass":              "Massachusetts",
	"jersey":            "New Jersey",
	"virgin islands":    "U.S. Virgin Islands",
	"us virgin islands": "U.S. Virgin Islands",
}

// phrases holds normalized names and aliases, longest first so that
// "west virginia" wins over "virginia".
var phrases []string
var phraseRegion = map[string]string{}

func init() {
	for _, name := range abbreviations {
		phraseRegion[normalize(name)] = name
	}
	for alias, name := range aliases {
		phraseRegion[alias] = name
	}
	for p := range phraseRegion {
		phrases = append(phrases, p)
	}
	sort.Slice(phrases, func(i, j int) bool {
		if len(phrases[i]) != len(phrases[j]) {
			return len(phrases[i]) > len(phrases[j])
		}
		return phrases[i] < phrases[j]
	})
}

// normalize lowercases, turns punctuation into spaces and collapses runs of
// whitespace.
func normalize(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}

// Parse resolves free text to a canonical U.S. state or territory name.
// It accepts full names anywhere in the text, a bare abbreviation in any
// case, or an upper-case abbreviation inside a sentence. Text naming more
// than one region is ambiguous and does not resolve.
func Parse(text string) (string, bool) {
	norm := normalize(text)
	if norm == "" {
		return "", false
	}
	if name, ok := phraseRegion[norm]; ok {
		return name, true
	}
	if name, ok := abbreviations[strings.ToUpper(norm)]; ok {
		return name, true
	}

	found := map[string]bool{}
	padded := " " + norm + " "
	for _, p := range phrases {
		if strings.Contains(padded, " "+p+" ") {
			found[phraseRegion[p]] = true
			// consume the phrase so "virginia" does not also match inside "west virginia"
			padded = strings.ReplaceAll(padded, " "+p+" ", "  ")
		}
	}
	for _, tok := range strings.FieldsFunc(text, func(r rune) bool { return !unicode.IsLetter(r) }) {
		if len(tok) == 2 && tok == strings.ToUpper(tok) {
			if name, ok := abbreviations[tok]; ok {
				found[name] = true
			}
		}
	}

	if len(found) != 1 {
		return "", false
	}
	for name := range found {
		return name, true
	}
	return "", false
}

// Abbreviation returns the postal abbreviation for a canonical name.
func Abbreviation(name string) (string, bool) {
	for abbr, n := range abbreviations {
		if n == name {
			return abbr, true
		}
	}
	return "", false
}
