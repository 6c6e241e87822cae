package mathacademy

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Student is one row of the teacher dashboard.
type Student struct {
	ID string `json:"student_id"`
	// DisplayName is the dashboard's "Last, First" rendering.
	DisplayName string `json:"display_name"`
	// Name is DisplayName flipped to "First Last".
	Name            string `json:"name"`
	CourseName      string `json:"course_name"`
	PercentComplete string `json:"percent_complete"`
	LastActivity    string `json:"last_activity"`
	DailyXP         string `json:"daily_xp"`
	WeeklyXP        string `json:"weekly_xp"`
}

// ParseDashboard reads every student row off the teacher dashboard.
func ParseDashboard(doc *goquery.Document) []Student {
	var students []Student
	doc.Find("td[id^='studentName-']").Each(func(_ int, cell *goquery.Selection) {
		link := cell.Find("a.studentNameLink").First()
		if link.Length() == 0 {
			return
		}
		id := strings.TrimPrefix(cell.AttrOr("id", ""), "studentName-")
		if id == "" {
			return
		}

		row := cell.Closest("tr")
		displayName := strings.TrimSpace(link.Text())
		students = append(students, Student{
			ID:              id,
			DisplayName:     displayName,
			Name:            flipDisplayName(displayName),
			CourseName:      strings.TrimSpace(row.Find("td.courseName").First().Text()),
			PercentComplete: strings.TrimSpace(row.Find("td.studentProgress a.tableLink").First().Text()),
			LastActivity:    strings.TrimSpace(row.Find("td.fieldData:nth-child(4)").First().Text()),
			DailyXP:         strings.TrimSpace(row.Find("td.studentDayXP").First().Text()),
			WeeklyXP:        strings.TrimSpace(row.Find("td.studentWeekXP").First().Text()),
		})
	})
	return students
}

// flipDisplayName turns the dashboard's "Last, First" into "First Last".
func flipDisplayName(name string) string {
	parts := strings.SplitN(name, ", ", 2)
	if len(parts) == 2 {
		return strings.TrimSpace(parts[1]) + " " + strings.TrimSpace(parts[0])
	}
	return strings.TrimSpace(name)
}

type Task struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	CompletedAt string `json:"completion_time"`
	EarnedXP    int    `json:"earned_xp"`
	PossibleXP  int    `json:"possible_xp"`
	RawPoints   string `json:"raw_points"`
}

type DayActivity struct {
	Date    string `json:"date"`
	TotalXP string `json:"daily_xp"`
	Tasks   []Task `json:"tasks"`
}

type Activity struct {
	EstimatedCompletion string        `json:"estimated_completion"`
	Days                []DayActivity `json:"daily_activity"`
}

var pointsPattern = regexp.MustCompile(`(\d+)\s*/\s*(\d+)\s*XP`)

// ParseActivity walks a student activity page. The page is one long table
// where date header rows delimit runs of task rows. Only completed tasks
// with parsed XP are kept.
func ParseActivity(doc *goquery.Document) Activity {
	activity := Activity{
		EstimatedCompletion: extractEstimatedCompletion(doc),
	}

	var current *DayActivity
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		header := row.Find("td.dateHeader").First()
		if header.Length() > 0 {
			xp := strings.TrimSpace(header.Find("span.dateTotalXP").Text())
			date := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(header.Text()), xp))
			if xp == "" {
				xp = "0 XP"
			}
			activity.Days = append(activity.Days, DayActivity{Date: date, TotalXP: xp})
			current = &activity.Days[len(activity.Days)-1]
			return
		}

		id := row.AttrOr("id", "")
		if !strings.HasPrefix(id, "task-") || current == nil {
			return
		}
		task := Task{
			ID:          strings.TrimPrefix(id, "task-"),
			Type:        strings.TrimSpace(row.Find("td.taskTypeColumn").First().Text()),
			Name:        strings.TrimSpace(row.Find("div.taskName").First().Text()),
			CompletedAt: strings.TrimSpace(row.Find("td.taskCompletedColumn").First().Text()),
			RawPoints:   strings.TrimSpace(row.Find("span.taskPoints").First().Text()),
		}
		m := pointsPattern.FindStringSubmatch(task.RawPoints)
		if task.CompletedAt == "" || m == nil {
			return
		}
		task.EarnedXP, _ = strconv.Atoi(m[1])
		task.PossibleXP, _ = strconv.Atoi(m[2])
		current.Tasks = append(current.Tasks, task)
	})

	return activity
}

func extractEstimatedCompletion(doc *goquery.Document) string {
	const marker = "Estimated completion is"
	text := doc.Text()
	idx := strings.Index(text, marker)
	if idx < 0 {
		return ""
	}
	rest := strings.TrimSpace(text[idx+len(marker):])
	if end := strings.IndexAny(rest, ".\n"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

type ProgressSegment struct {
	Width float64 `json:"width"`
	Color string  `json:"color"`
}

type Topic struct {
	Number string `json:"number"`
	Name   string `json:"name"`
	URL    string `json:"url"`
}

type Module struct {
	Name   string  `json:"name"`
	Topics []Topic `json:"topics"`
}

type Unit struct {
	Number      string            `json:"number"`
	Name        string            `json:"name"`
	TopicsLabel string            `json:"topics_label"`
	Segments    []ProgressSegment `json:"progress_segments"`
	Modules     []Module          `json:"modules"`
}

var (
	widthPattern = regexp.MustCompile(`width:\s*([\d.]+)%`)
	colorPattern = regexp.MustCompile(`background-color:\s*([^;]+)`)
)

// ParseProgress walks a student progress page unit by unit.
func ParseProgress(doc *goquery.Document) []Unit {
	var units []Unit
	doc.Find("div.unit").Each(func(_ int, unitSel *goquery.Selection) {
		header := unitSel.Find("div.unitHeader").First()
		unit := Unit{
			Number:      strings.TrimSpace(header.Find("div.unitNumber").First().Text()),
			Name:        strings.TrimSpace(header.Find("span.unitName").First().Text()),
			TopicsLabel: strings.TrimSpace(header.Find("div.unitNumTopics").First().Text()),
		}

		unitSel.Find("table.unitProgressBar tr").First().Find("td").Each(func(_ int, cell *goquery.Selection) {
			style := cell.AttrOr("style", "")
			var seg ProgressSegment
			if m := widthPattern.FindStringSubmatch(style); m != nil {
				seg.Width, _ = strconv.ParseFloat(m[1], 64)
			}
			if m := colorPattern.FindStringSubmatch(style); m != nil {
				seg.Color = strings.TrimSpace(m[1])
			}
			unit.Segments = append(unit.Segments, seg)
		})

		unitSel.Find("div.module").Each(func(_ int, moduleSel *goquery.Selection) {
			module := Module{
				Name: strings.TrimSpace(moduleSel.Find("div").First().Text()),
			}
			moduleSel.Find("tr").Each(func(_ int, topicRow *goquery.Selection) {
				nameLink := topicRow.Find("td.topicName a").First()
				if nameLink.Length() == 0 {
					return
				}
				module.Topics = append(module.Topics, Topic{
					Number: strings.TrimSpace(topicRow.Find("td.topicNumber").First().Text()),
					Name:   strings.TrimSpace(nameLink.Text()),
					URL:    nameLink.AttrOr("href", ""),
				})
			})
			unit.Modules = append(unit.Modules, module)
		})

		units = append(units, unit)
	})
	return units
}

var lastActivityPattern = regexp.MustCompile(`Last activity on (\w+), (\w+) (\d+)(?:st|nd|rd|th)?`)

var monthsByName = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// ParseLastActivity resolves the dashboard's relative "Last activity on ..."
// label to a concrete day. The label never carries a year so the current one
// is assumed.
func ParseLastActivity(text string, now time.Time) (time.Time, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false
	}
	lower := strings.ToLower(text)
	if strings.Contains(lower, "today") {
		return startOfDay(now), true
	}
	if strings.Contains(lower, "yesterday") {
		return startOfDay(now.AddDate(0, 0, -1)), true
	}

	m := lastActivityPattern.FindStringSubmatch(text)
	if m == nil || len(m[2]) < 3 {
		return time.Time{}, false
	}
	month, ok := monthsByName[strings.ToLower(m[2])[:3]]
	if !ok {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(m[3])
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(now.Year(), month, day, 0, 0, 0, 0, now.Location()), true
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
