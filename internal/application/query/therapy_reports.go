package query

import (
	"context"
	"time"

	"github.com/dyslexia-hub/therapy-workflow/internal/application/port"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/archive"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
	"github.com/dyslexia-hub/therapy-workflow/pkg/logger"
)

// ReportDTO is an archived therapy session.
type ReportDTO struct {
	ID               string          `json:"id"`
	SessionNumber    int             `json:"session_number"`
	Outcome          string          `json:"session_outcome"`
	SessionStartDate time.Time       `json:"session_start_date"`
	SessionEndDate   time.Time       `json:"session_end_date"`
	SchemaVersion    int             `json:"schema_version"`
	Checksum         string          `json:"checksum"`
	ArchivedBy       string          `json:"archived_by"`
	CreatedAt        time.Time       `json:"created_at"`
	AssignmentCount  int             `json:"assignment_count"`
	ProgressCount    int             `json:"progress_count"`
	Snapshot         archive.Payload `json:"snapshot"`
}

func NewReportDTO(r *archive.Report) ReportDTO {
	return ReportDTO{
		ID:               r.ID,
		SessionNumber:    r.SessionNumber,
		Outcome:          string(r.Outcome),
		SessionStartDate: r.SessionStartDate,
		SessionEndDate:   r.SessionEndDate,
		SchemaVersion:    r.SchemaVersion,
		Checksum:         r.Checksum,
		ArchivedBy:       r.ArchivedBy,
		CreatedAt:        r.CreatedAt,
		AssignmentCount:  len(r.Payload.Assignments),
		ProgressCount:    len(r.Payload.Progress),
		Snapshot:         r.Payload,
	}
}

// ReportCache holds verified report lists per case.
type ReportCache interface {
	// GetReports returns the cached list. ok is false on a miss.
	GetReports(ctx context.Context, caseID string) (reports []ReportDTO, ok bool, err error)
	SetReports(ctx context.Context, caseID string, reports []ReportDTO) error
	Invalidate(ctx context.Context, caseID string) error
}

// TherapyReportsHandler serves archived sessions. Every report is checksum
// verified before it is returned or cached.
type TherapyReportsHandler struct {
	uow   port.UnitOfWork
	cache ReportCache
	log   *logger.Logger
}

// NewTherapyReportsHandler creates the handler. cache may be nil.
func NewTherapyReportsHandler(uow port.UnitOfWork, cache ReportCache, log *logger.Logger) *TherapyReportsHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &TherapyReportsHandler{uow: uow, cache: cache, log: log}
}

// ListReports returns every archived session of the case, oldest first.
func (h *TherapyReportsHandler) ListReports(ctx context.Context, caseID string, actor shared.Actor) ([]ReportDTO, error) {
	repos := h.uow.Repositories()
	if _, err := authorize(ctx, repos, caseID, actor); err != nil {
		return nil, err
	}

	if h.cache != nil {
		cached, ok, err := h.cache.GetReports(ctx, caseID)
		if err != nil {
			h.log.Warn("report cache read failed", logger.CaseID(caseID), logger.Err(err))
		} else if ok {
			return cached, nil
		}
	}

	reports, err := repos.Reports.List(ctx, caseID)
	if err != nil {
		return nil, err
	}
	out := make([]ReportDTO, 0, len(reports))
	for _, r := range reports {
		if err := r.Verify(); err != nil {
			h.log.Error("report integrity check failed", logger.CaseID(caseID), logger.SessionNumber(r.SessionNumber))
			return nil, err
		}
		out = append(out, NewReportDTO(r))
	}

	if h.cache != nil {
		if err := h.cache.SetReports(ctx, caseID, out); err != nil {
			h.log.Warn("report cache write failed", logger.CaseID(caseID), logger.Err(err))
		}
	}
	return out, nil
}

// GetReport returns one archived session.
func (h *TherapyReportsHandler) GetReport(ctx context.Context, caseID string, session int, actor shared.Actor) (*ReportDTO, error) {
	repos := h.uow.Repositories()
	if _, err := authorize(ctx, repos, caseID, actor); err != nil {
		return nil, err
	}
	r, err := repos.Reports.Get(ctx, caseID, session)
	if err != nil {
		return nil, err
	}
	if err := r.Verify(); err != nil {
		return nil, err
	}
	dto := NewReportDTO(r)
	return &dto, nil
}
