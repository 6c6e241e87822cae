package acely

// StudentData pairs a roster entry with what was extracted from its dashboard.
type StudentData struct {
	RosterEntry
	Data DashboardData `json:"data_extracted"`
}

// Row mirrors the columns of the shared acely_students table.
type Row struct {
	Name                      string         `json:"name"`
	Email                     string         `json:"email"`
	URL                       string         `json:"url"`
	JoinDate                  string         `json:"join_date,omitempty"`
	MostRecentScore           *float64       `json:"most_recent_score"`
	ThisWeekAccuracy          *float64       `json:"this_week_accuracy"`
	LastWeekAccuracy          *float64       `json:"last_week_accuracy"`
	QuestionsAnsweredThisWeek *int           `json:"questions_answered_this_week"`
	QuestionsAnsweredLastWeek *int           `json:"questions_answered_last_week"`
	DailyActivity             []WeekActivity `json:"daily_activity"`
	StrongestArea             string         `json:"strongest_area,omitempty"`
	WeakestArea               string         `json:"weakest_area,omitempty"`
	StrongestAreaAccuracy     string         `json:"strongest_area_accuracy,omitempty"`
	WeakestAreaAccuracy       string         `json:"weakest_area_accuracy,omitempty"`
	MockExamResults           []MockExam     `json:"mock_exam_results"`
}

// TransformRow flattens extracted dashboard data into an upsert row keyed
// on the student's email.
func TransformRow(student StudentData) Row {
	row := Row{
		Name:                      student.Name,
		Email:                     student.Email,
		URL:                       student.DashboardURL,
		JoinDate:                  student.Data.JoinDate,
		MostRecentScore:           student.Data.MostRecentScore,
		ThisWeekAccuracy:          student.Data.ThisWeekAccuracy,
		LastWeekAccuracy:          student.Data.LastWeekAccuracy,
		QuestionsAnsweredThisWeek: student.Data.QuestionsAnsweredThisWeek,
		QuestionsAnsweredLastWeek: student.Data.QuestionsAnsweredLastWeek,
		DailyActivity:             student.Data.DailyActivity,
		MockExamResults:           student.Data.MockExams,
	}
	if student.Data.StrongestArea != nil {
		row.StrongestArea = student.Data.StrongestArea.Area
		row.StrongestAreaAccuracy = student.Data.StrongestArea.Accuracy
	}
	if student.Data.WeakestArea != nil {
		row.WeakestArea = student.Data.WeakestArea.Area
		row.WeakestAreaAccuracy = student.Data.WeakestArea.Accuracy
	}
	return row
}
