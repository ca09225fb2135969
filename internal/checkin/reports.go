package checkin

import (
	"context"
	"errors"
	"time"

	"github.com/inodev-web/alouaoui-school-sub001/internal/db"
	"github.com/inodev-web/alouaoui-school-sub001/internal/model"
)

// SessionReport is a session's full attendee list ordered by check-in time.
type SessionReport struct {
	Session   model.ScanSession
	Attendees []db.SessionAttendee
}

func (c *Coordinator) SessionAttendance(ctx context.Context, sessionID string) (SessionReport, error) {
	session, err := c.store.GetSessionByID(ctx, sessionID)
	if err != nil {
		return SessionReport{}, err
	}
	attendees, err := c.store.ListSessionAttendance(ctx, sessionID)
	if err != nil {
		return SessionReport{}, err
	}
	return SessionReport{Session: session, Attendees: attendees}, nil
}

// TeacherSummary aggregates one teacher's presence counts over a range.
type TeacherSummary struct {
	TeacherID     int64   `json:"teacher_id"`
	TeacherName   string  `json:"teacher_name"`
	SessionDays   int64   `json:"session_days"`
	TotalPresent  int64   `json:"total_present"`
	AveragePerDay float64 `json:"average_per_day"`
}

// StatsReport groups attendance counts by teacher and by day over the range.
type StatsReport struct {
	From     time.Time            `json:"from"`
	To       time.Time            `json:"to"`
	Days     []db.TeacherDayStat  `json:"-"`
	Teachers []TeacherSummary     `json:"teachers"`
	ByDay    map[string][]DayStat `json:"by_day"`
}

type DayStat struct {
	TeacherID    int64  `json:"teacher_id"`
	TeacherName  string `json:"teacher_name"`
	PresentCount int64  `json:"present_count"`
}

func (c *Coordinator) AttendanceStats(ctx context.Context, from, to time.Time) (StatsReport, error) {
	rows, err := c.store.AttendanceStats(ctx, from, to)
	if err != nil {
		return StatsReport{}, err
	}

	report := StatsReport{
		From:  from,
		To:    to,
		Days:  rows,
		ByDay: make(map[string][]DayStat),
	}
	totals := make(map[int64]*TeacherSummary)
	var order []int64
	for _, row := range rows {
		day := row.Day.Format("2006-01-02")
		report.ByDay[day] = append(report.ByDay[day], DayStat{
			TeacherID:    row.TeacherID,
			TeacherName:  row.TeacherName,
			PresentCount: row.PresentCount,
		})
		summary, ok := totals[row.TeacherID]
		if !ok {
			summary = &TeacherSummary{TeacherID: row.TeacherID, TeacherName: row.TeacherName}
			totals[row.TeacherID] = summary
			order = append(order, row.TeacherID)
		}
		summary.SessionDays++
		summary.TotalPresent += row.PresentCount
	}
	for _, id := range order {
		summary := totals[id]
		if summary.SessionDays > 0 {
			summary.AveragePerDay = float64(summary.TotalPresent) / float64(summary.SessionDays)
		}
		report.Teachers = append(report.Teachers, *summary)
	}
	return report, nil
}

// HistoryPage is one page of a student's attendance history.
type HistoryPage struct {
	Student model.Account
	Rows    []db.StudentHistoryRow
	Total   int64
	Page    int32
	PerPage int32
}

// ErrForbidden means the viewer may not read the requested student's history.
var ErrForbidden = errors.New("history not visible to this viewer")

// StudentHistory resolves and authorizes the target before touching the
// paginated query: admins see anyone, students only themselves.
func (c *Coordinator) StudentHistory(ctx context.Context, viewerID int64, viewerRole model.Role, ref model.AccountRef, from, to time.Time, page, perPage int32) (HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	account, err := c.store.ResolveAccount(ctx, ref)
	if err != nil {
		return HistoryPage{}, err
	}
	if account.Role != model.RoleStudent {
		return HistoryPage{}, db.ErrNotFound
	}
	if viewerRole != model.RoleAdmin && account.ID != viewerID {
		return HistoryPage{}, ErrForbidden
	}
	rows, total, err := c.store.StudentHistory(ctx, account.ID, from, to, perPage, (page-1)*perPage)
	if err != nil {
		return HistoryPage{}, err
	}
	return HistoryPage{Student: account, Rows: rows, Total: total, Page: page, PerPage: perPage}, nil
}

// IsNotFound lets transport code classify report-path lookups without
// depending on the storage package directly.
func IsNotFound(err error) bool {
	return errors.Is(err, db.ErrNotFound)
}
