// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package relay

import (
	"regexp"
	"strings"
)

// <target> or <target|label> as the chat platform encodes links
var linkPattern = regexp.MustCompile(`<([^<>|]+)(?:\|([^<>]*))?>`)

var entityReplacer = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&amp;", "&")

// ProcessText turns chat markup into plain SMS text. Link brackets are
// removed, links whose label repeats the target collapse to one copy,
// and HTML entities are decoded. It reports whether anything changed.
func ProcessText(text string) (string, bool) {
	out := linkPattern.ReplaceAllStringFunc(text, func(m string) string {
		parts := linkPattern.FindStringSubmatch(m)
		target, label := parts[1], parts[2]
		bare := strings.TrimPrefix(strings.TrimPrefix(target, "mailto:"), "tel:")
		switch {
		case strings.HasPrefix(target, "#"), strings.HasPrefix(target, "@"), strings.HasPrefix(target, "!"):
			// channel, user and special mentions keep their label only
			if label != "" {
				return label
			}
			return target
		case label == "" || label == target || label == bare:
			return bare
		case strings.TrimPrefix(strings.TrimPrefix(target, "https://"), "http://") == label:
			return target
		default:
			return label + " (" + bare + ")"
		}
	})
	out = entityReplacer.Replace(out)
	return out, out != text
}
