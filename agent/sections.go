package agent

import (
	"regexp"
	"strconv"
	"strings"
)

// Section is a structured slice of the final artifact, recovered from
// numbered headings.
type Section struct {
	Number      int    `json:"number"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

var sectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:Scene|Section|Part|Step)\s*(\d+)[:\s]+([^\n]+)`),
	regexp.MustCompile(`(?m)^(\d+)\.\s+\*\*([^*]+)\*\*`),
	regexp.MustCompile(`(?m)^###\s*(\d+)[.:\s]+(.+)$`),
}

// ExtractSections scrapes up to ten numbered sections from the artifact.
// The first pattern that matches anything wins.
func ExtractSections(content string) []Section {
	for _, pat := range sectionPatterns {
		matches := pat.FindAllStringSubmatch(content, 10)
		if len(matches) == 0 {
			continue
		}
		sections := make([]Section, 0, len(matches))
		for _, m := range matches {
			num, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			title := strings.TrimSpace(m[2])
			if len(title) > 100 {
				title = title[:100]
			}
			sections = append(sections, Section{
				Number:      num,
				Title:       title,
				Description: "Content for " + title,
			})
		}
		if len(sections) > 0 {
			return sections
		}
	}
	return nil
}
