package us

import (
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"

	"stockcast/internal/domain"
)

// A trading day's daily bar is considered final after this ET wall-clock
// time, once extended-hours data has settled.
const (
	settledHour   = 20
	settledMinute = 5
)

// LatestFinishedTradingDay returns the most recent trading day whose session
// has settled, using the Alpaca trading calendar API.
func LatestFinishedTradingDay(apiKey, apiSecret, baseURL string) (time.Time, error) {
	client := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})

	et, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.Time{}, fmt.Errorf("loading ET timezone: %w", err)
	}

	now := time.Now().In(et)
	calendar, err := client.GetCalendar(alpaca.GetCalendarRequest{
		Start: now.AddDate(0, 0, -10),
		End:   now,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("GetCalendar: %w", err)
	}

	days := make([]string, len(calendar))
	for i, d := range calendar {
		days[i] = d.Date
	}
	return latestSettled(days, now)
}

// latestSettled picks the newest trading day in days (ascending YYYY-MM-DD)
// that is finished as of now. Today only counts after the settle cutoff.
func latestSettled(days []string, now time.Time) (time.Time, error) {
	today := now.Format(domain.DateLayout)
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), settledHour, settledMinute, 0, 0, now.Location())

	for i := len(days) - 1; i >= 0; i-- {
		day, err := time.Parse(domain.DateLayout, days[i])
		if err != nil {
			continue
		}
		switch {
		case days[i] == today && now.After(cutoff):
			return day, nil
		case days[i] < today:
			return day, nil
		}
	}
	return time.Time{}, fmt.Errorf("no finished trading day in calendar")
}
