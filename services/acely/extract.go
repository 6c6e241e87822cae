package acely

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

type AreaStat struct {
	Area     string `json:"area"`
	Accuracy string `json:"accuracy"`
}

type MockExam struct {
	ExamNumber     int    `json:"exam_number"`
	Title          string `json:"exam_title"`
	CompletionDate string `json:"completion_date"`
	Score          string `json:"score"`
}

type WeekActivity struct {
	Range string   `json:"range"`
	Days  []string `json:"days"`
}

// DashboardData holds everything extracted from a single student dashboard.
// Pointer fields are nil when the dashboard shows "N/A" or omits the widget.
type DashboardData struct {
	JoinDate                  string         `json:"join_date"`
	MostRecentScore           *float64       `json:"most_recent_score"`
	ThisWeekAccuracy          *float64       `json:"this_week_accuracy"`
	LastWeekAccuracy          *float64       `json:"last_week_accuracy"`
	QuestionsAnsweredThisWeek *int           `json:"questions_answered_this_week"`
	QuestionsAnsweredLastWeek *int           `json:"questions_answered_last_week"`
	DailyActivity             []WeekActivity `json:"daily_activity_calendar"`
	StrongestArea             *AreaStat      `json:"strongest_area"`
	WeakestArea               *AreaStat      `json:"weakest_area"`
	MockExams                 []MockExam     `json:"mock_exam_results"`
}

var (
	percentPattern   = regexp.MustCompile(`(\d+(?:\.\d+)?)%`)
	numberPattern    = regexp.MustCompile(`\d+(?:\.\d+)?`)
	intPattern       = regexp.MustCompile(`\d+`)
	vsSplitPattern   = regexp.MustCompile(`\s*vs\.?\s+`)
	examDatePattern  = regexp.MustCompile(`(January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},\s+\d{4}`)
	examScorePattern = regexp.MustCompile(`^\d{2,4}(-\d{2,4})?$`)
	weekRangePattern = regexp.MustCompile(`\d{1,2}/\d{1,2}\s*-\s*\d{1,2}/\d{1,2}`)
)

// ExtractDashboard pulls every analytic off a rendered student dashboard page.
// Missing widgets leave their fields zero rather than failing the whole page.
func ExtractDashboard(doc *goquery.Document) DashboardData {
	var data DashboardData
	data.JoinDate = extractJoinDate(doc)
	data.MostRecentScore = extractMostRecentScore(doc)
	data.ThisWeekAccuracy, data.LastWeekAccuracy = extractWeeklyComparison(doc, "Accuracy", parsePercentValue)
	data.QuestionsAnsweredThisWeek, data.QuestionsAnsweredLastWeek = extractQuestionCounts(doc)
	data.DailyActivity = extractDailyActivity(doc)
	data.StrongestArea = extractAreaStat(doc, "Strongest")
	data.WeakestArea = extractAreaStat(doc, "Weakest")
	data.MockExams = extractMockExams(doc)
	return data
}

func extractJoinDate(doc *goquery.Document) string {
	var joined string
	doc.Find("div,span").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(ownText(s))
		if strings.HasPrefix(text, "Joined:") {
			joined = strings.TrimSpace(strings.TrimPrefix(text, "Joined:"))
			return false
		}
		return true
	})
	return joined
}

func extractMostRecentScore(doc *goquery.Document) *float64 {
	var score *float64
	doc.Find("span[class*='decoration-yellow-800']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return true
		}
		score = &v
		return false
	})
	return score
}

// extractWeeklyComparison finds the stat card labelled by label and parses its
// headline value, which renders either as a single value or as
// "<this week> vs. <last week> last week".
func extractWeeklyComparison(doc *goquery.Document, label string, parse func(string) *float64) (thisWeek, lastWeek *float64) {
	card := findStatCard(doc, label)
	if card == nil {
		return nil, nil
	}
	text := strings.TrimSpace(card.Find("[class*='text-3xl']").First().Text())
	if text == "" {
		return nil, nil
	}
	this, last := splitComparison(text)
	return parse(this), parse(last)
}

func extractQuestionCounts(doc *goquery.Document) (thisWeek, lastWeek *int) {
	card := findStatCard(doc, "Questions Answered")
	if card == nil {
		return nil, nil
	}
	text := strings.TrimSpace(card.Find("[class*='text-3xl']").First().Text())
	if text == "" {
		return nil, nil
	}
	this, last := splitComparison(text)
	return parseIntValue(this), parseIntValue(last)
}

// findStatCard returns the innermost bordered card whose text mentions label.
func findStatCard(doc *goquery.Document, label string) *goquery.Selection {
	var card *goquery.Selection
	doc.Find("div[class*='rounded-lg'][class*='border']").Each(func(_ int, s *goquery.Selection) {
		if !strings.Contains(s.Text(), label) {
			return
		}
		if card == nil || s.Text() != "" && len(s.Text()) <= len(card.Text()) {
			card = s
		}
	})
	return card
}

// splitComparison splits "85% vs. 67% last week" into its two halves. A value
// without a comparison yields an empty second half.
func splitComparison(text string) (thisWeek, lastWeek string) {
	parts := vsSplitPattern.Split(text, 2)
	if len(parts) == 2 {
		return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	}
	return strings.TrimSpace(text), ""
}

func parsePercentValue(text string) *float64 {
	if text == "" || strings.EqualFold(strings.TrimSpace(text), "N/A") {
		return nil
	}
	m := numberPattern.FindString(text)
	if m == "" {
		return nil
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseIntValue(text string) *int {
	m := intPattern.FindString(text)
	if m == "" {
		return nil
	}
	v, err := strconv.Atoi(m)
	if err != nil {
		return nil
	}
	return &v
}

func extractAreaStat(doc *goquery.Document, label string) *AreaStat {
	card := findStatCard(doc, label)
	if card == nil {
		return nil
	}

	area := strings.TrimSpace(card.Find("div[class*='text-lg'][class*='font-medium']").First().Text())
	if area == "" {
		area = strings.TrimSpace(card.Find("[class*='truncate']").First().Text())
	}

	var accuracy string
	card.Find("div").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())
		if strings.Contains(text, "accuracy") || strings.Contains(text, "%") {
			if m := percentPattern.FindString(text); m != "" {
				accuracy = m
				return false
			}
		}
		return true
	})

	if area == "" || accuracy == "" {
		return nil
	}
	return &AreaStat{Area: area, Accuracy: accuracy}
}

func extractMockExams(doc *goquery.Document) []MockExam {
	heading := doc.Find("h2").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Contains(s.Text(), "Mock Exam Results")
	})
	if heading.Length() == 0 {
		return nil
	}

	var exams []MockExam
	heading.Parent().Find("li").Each(func(i int, item *goquery.Selection) {
		exam := MockExam{ExamNumber: i + 1}
		exam.Title = strings.TrimSpace(item.Find("h3").First().Text())

		item.Find("span,div").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := strings.TrimSpace(s.Text())
			if strings.Contains(text, "Completed") {
				if m := examDatePattern.FindString(text); m != "" {
					exam.CompletionDate = m
				} else {
					exam.CompletionDate = text
				}
				return false
			}
			return true
		})

		item.Find("span[class*='text-4xl'],span[class*='text-3xl']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := strings.TrimSpace(s.Text())
			if examScorePattern.MatchString(text) {
				exam.Score = text
				return false
			}
			return true
		})

		if exam.Title != "" && exam.Score != "" {
			exams = append(exams, exam)
		}
	})
	return exams
}

func extractDailyActivity(doc *goquery.Document) []WeekActivity {
	var weeks []WeekActivity
	doc.Find("div[class*='flex-row'][class*='justify-between']").Each(func(_ int, row *goquery.Selection) {
		rangeText := strings.TrimSpace(row.Find("div[class*='text-sm'][class*='font-medium'][class*='text-neutral-600']").First().Text())
		if !weekRangePattern.MatchString(rangeText) {
			return
		}
		week := WeekActivity{Range: rangeText}
		row.Find("[data-tip]").Each(func(_ int, day *goquery.Selection) {
			week.Days = append(week.Days, day.AttrOr("data-tip", ""))
		})
		weeks = append(weeks, week)
	})
	return weeks
}

// ownText returns the text directly inside a node, excluding children. The
// join date renders as a leaf div so this keeps container divs from matching.
func ownText(s *goquery.Selection) string {
	var out strings.Builder
	for _, node := range s.Nodes {
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			if child.Type == html.TextNode {
				out.WriteString(child.Data)
			}
		}
	}
	return out.String()
}
