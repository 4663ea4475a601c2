package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"course-payments/internal/domain"
)

// Cohort is a scheduled run of a course.
type Cohort struct {
	ID        string
	CourseID  string
	Name      string
	StartDate time.Time
	EndDate   *time.Time
}

// UserCohort links a user to the cohort they attend for a course.
// IsPaymentActive gates content access.
type UserCohort struct {
	ID              string
	UserID          string
	CourseID        string
	CohortID        string
	IsPaymentActive bool
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Course is read only here; courses are managed elsewhere.
type Course struct {
	ID    string
	Title string
}

var months = map[string]time.Month{}

func init() {
	for m := time.January; m <= time.December; m++ {
		name := strings.ToLower(m.String())
		months[name] = m
		months[name[:3]] = m
	}
	months["sept"] = time.September
}

// ParseCohortName turns "<Month> <Year> Cohort" into the cohort's start date on anchorDay (UTC).
// The trailing "Cohort" is optional and matching is case-insensitive.
func ParseCohortName(name string, anchorDay int) (time.Time, error) {
	fields := strings.Fields(strings.ToLower(name))
	if len(fields) > 0 && fields[len(fields)-1] == "cohort" {
		fields = fields[:len(fields)-1]
	}
	if len(fields) != 2 {
		return time.Time{}, fmt.Errorf("%w: %q", domain.ErrInvalidCohortName, name)
	}
	month, ok := months[strings.TrimSuffix(fields[0], ",")]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: unknown month in %q", domain.ErrInvalidCohortName, name)
	}
	year, err := strconv.Atoi(fields[1])
	if err != nil || year < 2000 || year > 2100 {
		return time.Time{}, fmt.Errorf("%w: bad year in %q", domain.ErrInvalidCohortName, name)
	}
	if anchorDay <= 0 || anchorDay > 28 {
		anchorDay = DefaultPlanAmounts().Anchor
	}
	return time.Date(year, month, anchorDay, 0, 0, 0, 0, time.UTC), nil
}

// CohortName renders the canonical cohort name for a start date.
func CohortName(start time.Time) string {
	return fmt.Sprintf("%s %d Cohort", start.Month().String(), start.Year())
}
