package timegrid

import (
	"fmt"
	"time"

	"golang.org/x/text/language"
)

// DateLabel is the display form of one calendar column.
type DateLabel struct {
	Date    string `json:"date"`
	Label   string `json:"label"`
	Weekday string `json:"weekday"`
	IsToday bool   `json:"isToday"`
}

type dateFormatter struct {
	weekdays [7]string // Sunday first, matching time.Weekday
	label    func(t time.Time) string
}

var supportedLocales = []language.Tag{
	language.English, // Fallback
	language.SimplifiedChinese,
	language.TraditionalChinese,
}

var localeMatcher = language.NewMatcher(supportedLocales)

var formatters = []dateFormatter{
	{
		weekdays: [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"},
		label:    func(t time.Time) string { return t.Format("Jan 2") },
	},
	{
		weekdays: [7]string{"周日", "周一", "周二", "周三", "周四", "周五", "周六"},
		label:    func(t time.Time) string { return fmt.Sprintf("%d月%d日", t.Month(), t.Day()) },
	},
	{
		weekdays: [7]string{"週日", "週一", "週二", "週三", "週四", "週五", "週六"},
		label:    func(t time.Time) string { return fmt.Sprintf("%d月%d日", t.Month(), t.Day()) },
	},
}

// FormatDate returns the display label, short weekday name and today flag for
// date. Unknown or empty locales fall back to English.
func FormatDate(date string, now time.Time, locale string) (DateLabel, error) {
	t, err := ParseDate(date)
	if err != nil {
		return DateLabel{}, err
	}

	f := formatters[matchLocale(locale)]
	return DateLabel{
		Date:    date,
		Label:   f.label(t),
		Weekday: f.weekdays[t.Weekday()],
		IsToday: date == now.Format(DateLayout),
	}, nil
}

func matchLocale(locale string) int {
	if locale == "" {
		return 0
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return 0
	}
	_, idx, conf := localeMatcher.Match(tag)
	if conf == language.No {
		return 0
	}
	return idx
}
