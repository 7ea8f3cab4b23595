package slack

import "strings"

// toMrkdwn converts the markdown subset of rendered summaries: "## " headings
// become bold lines and "- " items become bullets
func toMrkdwn(md string) string {
	lines := strings.Split(strings.TrimSpace(md), "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "## "):
			lines[i] = "*" + strings.TrimPrefix(line, "## ") + "*"
		case strings.HasPrefix(line, "- "):
			lines[i] = "• " + strings.TrimPrefix(line, "- ")
		}
	}
	return strings.Join(lines, "\n")
}
