package connector

import (
	"fmt"
	"regexp"
)

// promptRegex recognizes a terminal line of the form
// "<name><ws><sigil>" where name is 1..32 characters drawn from the
// configured charset and sigil is one of #, >, $. Matching is
// line-anchored at the end of output after the last newline.
func promptRegex(charset string) *regexp.Regexp {
	if charset == "" {
		charset = defaultPromptCharset
	}
	pattern := fmt.Sprintf(`^([%s]{1,32})\s*[#>$]\s*$`, charset)
	return regexp.MustCompile(pattern)
}

func (c *Connector) promptRe() *regexp.Regexp {
	return promptRegex(c.osSpec.PromptNameCharset)
}
