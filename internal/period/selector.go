package period

import (
	"time"

	"github.com/passbi/passbi_journeys/internal/models"
)

// Selector maps calendar dates to schedule periods using a holiday calendar.
// It is immutable after construction and safe for concurrent use.
type Selector struct {
	holidays []models.HolidayPeriod
}

// NewSelector creates a selector over the given holiday list
func NewSelector(holidays []models.HolidayPeriod) *Selector {
	h := make([]models.HolidayPeriod, len(holidays))
	copy(h, holidays)
	return &Selector{holidays: h}
}

// PeriodForDate returns the schedule period that covers date.
// Weekends win over holidays; weekdays inside a holiday run the school-off schedule.
func (s *Selector) PeriodForDate(date time.Time) models.PeriodID {
	switch date.Weekday() {
	case time.Saturday:
		return models.PeriodSaturday
	case time.Sunday:
		return models.PeriodSunday
	}

	if _, ok := s.HolidayFor(date); ok {
		return models.PeriodWeekdaySchoolOff
	}
	return models.PeriodWeekdaySchoolOn
}

// HolidayFor returns the first holiday containing date
func (s *Selector) HolidayFor(date time.Time) (models.HolidayPeriod, bool) {
	for _, h := range s.holidays {
		if h.Contains(date) {
			return h, true
		}
	}
	return models.HolidayPeriod{}, false
}

// Holidays returns a copy of the loaded holiday list
func (s *Selector) Holidays() []models.HolidayPeriod {
	h := make([]models.HolidayPeriod, len(s.holidays))
	copy(h, s.holidays)
	return h
}
