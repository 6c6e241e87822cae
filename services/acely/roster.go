package acely

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

type RosterEntry struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	DashboardURL string `json:"dashboard_url"`
}

// ParseRoster reads the Manage Users table and returns one entry per row
// that carries both an email address and a student dashboard link. Emails
// are lowercased so target filtering is case-insensitive.
func ParseRoster(doc *goquery.Document) []RosterEntry {
	var entries []RosterEntry
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		email := findRowEmail(row)
		if email == "" {
			return
		}

		link := row.Find("a[href*='/student-dashboard/']").First()
		if link.Length() == 0 {
			return
		}

		entries = append(entries, RosterEntry{
			Name:         strings.TrimSpace(link.Text()),
			Email:        email,
			DashboardURL: link.AttrOr("href", ""),
		})
	})
	return entries
}

func findRowEmail(row *goquery.Selection) string {
	var email string
	row.Find("td,span").EachWithBreak(func(_ int, cell *goquery.Selection) bool {
		text := strings.TrimSpace(cell.Text())
		if strings.Contains(text, "@") && strings.Contains(text, ".") && !strings.Contains(text, " ") {
			email = strings.ToLower(text)
			return false
		}
		return true
	})
	return email
}

// FilterRoster keeps only the entries whose email appears in targets. An
// empty target list keeps the whole roster. The second return value lists
// target emails that never showed up on the page.
func FilterRoster(entries []RosterEntry, targets []string) (kept []RosterEntry, missing []string) {
	if len(targets) == 0 {
		return entries, nil
	}

	byEmail := make(map[string]RosterEntry, len(entries))
	for _, e := range entries {
		byEmail[e.Email] = e
	}

	for _, target := range targets {
		target = strings.ToLower(strings.TrimSpace(target))
		if target == "" || strings.HasPrefix(target, "#") {
			continue
		}
		if entry, ok := byEmail[target]; ok {
			kept = append(kept, entry)
		} else {
			missing = append(missing, target)
		}
	}
	return kept, missing
}
