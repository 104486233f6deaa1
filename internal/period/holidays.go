package period

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/passbi/passbi_journeys/internal/logging"
	"github.com/passbi/passbi_journeys/internal/models"
	"gopkg.in/yaml.v3"
)

// entries without an end date run this long (summer holidays)
const defaultHolidayMonths = 2

// holidayRecord is one raw entry of the holiday document
type holidayRecord struct {
	Name      string `yaml:"name"`
	StartDate string `yaml:"start_date" validate:"required"`
	EndDate   string `yaml:"end_date"`
}

type holidayDocument struct {
	Holidays []yaml.Node `yaml:"holidays"`
}

// LoadHolidaysFile reads a holiday document from path
func LoadHolidaysFile(path string, logger *slog.Logger) ([]models.HolidayPeriod, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read holiday calendar: %w", err)
	}
	return LoadHolidays(bytes.NewReader(data), logger)
}

// LoadHolidays parses a YAML or JSON holiday document, either a top-level list
// or a list under "holidays". Malformed entries are logged and skipped; only a
// document that cannot be parsed at all is an error.
func LoadHolidays(r io.Reader, logger *slog.Logger) ([]models.HolidayPeriod, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read holiday calendar: %w", err)
	}

	nodes, err := holidayNodes(data)
	if err != nil {
		return nil, err
	}

	v := validator.New()
	holidays := make([]models.HolidayPeriod, 0, len(nodes))
	for i, node := range nodes {
		h, err := decodeHoliday(node, v)
		if err != nil {
			if logger != nil {
				logger.Warn("skipping malformed holiday entry",
					slog.Int("index", i),
					slog.String("error", err.Error()))
			}
			continue
		}
		holidays = append(holidays, h)
	}

	logging.LogOperation(logger, "holiday_calendar_loaded",
		slog.Int("entries", len(nodes)),
		slog.Int("kept", len(holidays)))

	return holidays, nil
}

func holidayNodes(data []byte) ([]yaml.Node, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse holiday calendar: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, nil
	}

	switch doc := root.Content[0]; doc.Kind {
	case yaml.SequenceNode:
		return derefNodes(doc.Content), nil
	case yaml.MappingNode:
		var wrapped holidayDocument
		if err := doc.Decode(&wrapped); err != nil {
			return nil, fmt.Errorf("failed to parse holiday calendar: %w", err)
		}
		return wrapped.Holidays, nil
	default:
		return nil, fmt.Errorf("holiday calendar must be a list or a mapping with a holidays key")
	}
}

func derefNodes(nodes []*yaml.Node) []yaml.Node {
	out := make([]yaml.Node, len(nodes))
	for i, n := range nodes {
		out[i] = *n
	}
	return out
}

func decodeHoliday(node yaml.Node, v *validator.Validate) (models.HolidayPeriod, error) {
	var rec holidayRecord
	if err := node.Decode(&rec); err != nil {
		return models.HolidayPeriod{}, err
	}
	if err := v.Struct(rec); err != nil {
		return models.HolidayPeriod{}, err
	}

	start, err := ParseDate(rec.StartDate)
	if err != nil {
		return models.HolidayPeriod{}, fmt.Errorf("invalid start_date: %w", err)
	}

	end := start.AddDate(0, defaultHolidayMonths, 0)
	if strings.TrimSpace(rec.EndDate) != "" {
		end, err = ParseDate(rec.EndDate)
		if err != nil {
			return models.HolidayPeriod{}, fmt.Errorf("invalid end_date: %w", err)
		}
	}
	if end.Before(start) {
		return models.HolidayPeriod{}, fmt.Errorf("end_date %s precedes start_date %s", rec.EndDate, rec.StartDate)
	}

	return models.HolidayPeriod{
		Name:  strings.TrimSpace(rec.Name),
		Start: start,
		End:   end,
	}, nil
}

// ParseDate accepts an ISO 8601 calendar date or an RFC 3339 timestamp,
// keeping only the calendar day (as written, not converted)
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD: %q", s)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}
