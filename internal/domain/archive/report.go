package archive

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/dyslexia-hub/therapy-workflow/internal/domain/activity"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/evaluation"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
)

// Outcome of an archived session.
type Outcome string

const (
	OutcomeOngoing    Outcome = "ongoing"
	OutcomeTerminated Outcome = "terminated"
	OutcomeContinued  Outcome = "continued"
)

func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeOngoing, OutcomeTerminated, OutcomeContinued:
		return true
	default:
		return false
	}
}

// Report is the immutable record of one therapy session of a case.
type Report struct {
	ID               string
	CaseID           string
	SessionNumber    int
	Outcome          Outcome
	SessionStartDate time.Time
	SessionEndDate   time.Time
	SchemaVersion    int
	Payload          Payload
	Checksum         string
	ArchivedBy       string
	CreatedAt        time.Time
}

// SnapshotInput is the live state a snapshot is built from.
type SnapshotInput struct {
	ReportID      string
	CaseID        string
	LatestSession int
	Assignments   []*activity.Assignment
	Records       []*activity.ProgressRecord
	Evaluation    *evaluation.FinalEvaluation
	ArchivedBy    string
	Now           time.Time
}

// SnapshotFromCurrentData builds the report of the live session. The session
// number follows the latest archived one. The outcome is ongoing until Seal.
func SnapshotFromCurrentData(in SnapshotInput) *Report {
	names := make(map[string]string, len(in.Assignments))
	payload := Payload{
		Assignments: make([]AssignmentSnapshotV1, 0, len(in.Assignments)),
		Progress:    make([]ProgressSnapshotV1, 0, len(in.Records)),
		Evaluation:  SnapshotEvaluation(in.Evaluation),
	}

	start := in.Now
	for i, a := range in.Assignments {
		names[a.ID] = a.Name
		payload.Assignments = append(payload.Assignments, SnapshotAssignment(a))
		if i == 0 || a.CreatedAt.Before(start) {
			start = a.CreatedAt
		}
	}
	for _, r := range in.Records {
		payload.Progress = append(payload.Progress, SnapshotProgress(r, names[r.AssignmentID]))
	}

	return &Report{
		ID:               in.ReportID,
		CaseID:           in.CaseID,
		SessionNumber:    in.LatestSession + 1,
		Outcome:          OutcomeOngoing,
		SessionStartDate: start.UTC(),
		SessionEndDate:   in.Now.UTC(),
		SchemaVersion:    SchemaVersion,
		Payload:          payload,
		ArchivedBy:       in.ArchivedBy,
		CreatedAt:        in.Now.UTC(),
	}
}

// Seal sets the final outcome and computes the checksum. A report is not
// modified after it is sealed.
func (r *Report) Seal(outcome Outcome) error {
	if !outcome.IsValid() {
		return shared.Errorf("archive", "Seal", shared.ErrInvalidInput, "unknown outcome %q", outcome)
	}
	r.Outcome = outcome
	sum, err := r.computeChecksum()
	if err != nil {
		return err
	}
	r.Checksum = sum
	return nil
}

// Verify recomputes the checksum and compares it to the stored one.
func (r *Report) Verify() error {
	sum, err := r.computeChecksum()
	if err != nil {
		return err
	}
	if sum != r.Checksum {
		return shared.WrapError("archive", "Verify", shared.ErrInternal,
			"report failed integrity check", shared.ErrChecksumMismatch)
	}
	return nil
}

type canonicalReport struct {
	CaseID           string    `json:"caseId"`
	SessionNumber    int       `json:"sessionNumber"`
	Outcome          Outcome   `json:"outcome"`
	SessionStartDate time.Time `json:"sessionStartDate"`
	SessionEndDate   time.Time `json:"sessionEndDate"`
	SchemaVersion    int       `json:"schemaVersion"`
	Payload          Payload   `json:"payload"`
}

// CanonicalPayload returns the deterministic encoding the checksum covers.
func (r *Report) CanonicalPayload() ([]byte, error) {
	b, err := json.Marshal(canonicalReport{
		CaseID:           r.CaseID,
		SessionNumber:    r.SessionNumber,
		Outcome:          r.Outcome,
		SessionStartDate: r.SessionStartDate.UTC(),
		SessionEndDate:   r.SessionEndDate.UTC(),
		SchemaVersion:    r.SchemaVersion,
		Payload:          r.Payload,
	})
	if err != nil {
		return nil, shared.WrapError("archive", "Encode", shared.ErrInternal, "encode snapshot", err)
	}
	return b, nil
}

func (r *Report) computeChecksum() (string, error) {
	b, err := r.CanonicalPayload()
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Repository persists session reports. Reports are insert-only.
type Repository interface {
	// Create stores a report. Returns ErrReportExists when the session number is taken.
	Create(ctx context.Context, r *Report) error

	// LatestSessionNumber returns the highest archived session number, or 0.
	LatestSessionNumber(ctx context.Context, caseID string) (int, error)

	// List returns the reports of a case ordered by session number.
	List(ctx context.Context, caseID string) ([]*Report, error)

	// Get returns one report. Returns ErrReportNotFound when missing.
	Get(ctx context.Context, caseID string, session int) (*Report, error)

	// ListAll pages through every report ordered by case then session. It
	// returns at most limit reports positioned after the given cursor; an empty
	// cursor starts from the beginning.
	ListAll(ctx context.Context, after Cursor, limit int) ([]*Report, error)
}

// Cursor identifies a report position for ListAll.
type Cursor struct {
	CaseID        string
	SessionNumber int
}

// Cursor returns the position of r.
func (r *Report) Cursor() Cursor {
	return Cursor{CaseID: r.CaseID, SessionNumber: r.SessionNumber}
}
