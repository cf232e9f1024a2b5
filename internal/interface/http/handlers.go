package http

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dyslexia-hub/therapy-workflow/internal/application/command"
	"github.com/dyslexia-hub/therapy-workflow/internal/application/query"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CASES
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleListCases(c *gin.Context) {
	cases, err := s.deps.Cases.ListCases(c.Request.Context(), actorFrom(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	out := make([]query.CaseDTO, len(cases))
	for i, cs := range cases {
		out[i] = query.NewCaseDTO(cs, nil)
	}
	writeList(c, out)
}

func (s *Server) handleOpenCase(c *gin.Context) {
	var req openCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cmd, err := req.command()
	if err != nil {
		badRequest(c, err)
		return
	}
	cs, err := s.deps.Cases.OpenCase(c.Request.Context(), actorFrom(c), cmd)
	if err != nil {
		s.respondError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, query.NewCaseDTO(cs, nil))
}

func (s *Server) handleGetCase(c *gin.Context) {
	roster, err := s.deps.Cases.GetCase(c.Request.Context(), c.Param("caseID"), actorFrom(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, query.NewCaseDTO(roster.Case, roster.Links))
}

func (s *Server) handleLinkCaregiver(c *gin.Context) {
	var req linkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	role, err := shared.ParseRole(req.Role)
	if err != nil {
		s.respondError(c, err)
		return
	}
	link, err := s.deps.Cases.LinkCaregiver(c.Request.Context(), c.Param("caseID"), actorFrom(c), req.UserID, role)
	if err != nil {
		s.respondError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, query.LinkDTO{UserID: link.UserID, Role: link.Role.String()})
}

func (s *Server) handleUnlinkCaregiver(c *gin.Context) {
	if err := s.deps.Cases.UnlinkCaregiver(c.Request.Context(), c.Param("caseID"), actorFrom(c), c.Param("userID")); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ══════════════════════════════════════════════════════════════════════════════
// STAGES
// ══════════════════════════════════════════════════════════════════════════════

type stageResponse struct {
	CaseID          string `json:"case_id"`
	CurrentStage    int    `json:"current_stage"`
	CompletedStages []int  `json:"completed_stages"`
}

func newStageResponse(r command.StageResult) stageResponse {
	completed := r.CompletedStages
	if completed == nil {
		completed = []int{}
	}
	return stageResponse{CaseID: r.CaseID, CurrentStage: r.CurrentStage, CompletedStages: completed}
}

func (s *Server) handleGetStage(c *gin.Context) {
	res, err := s.deps.Stages.Get(c.Request.Context(), c.Param("caseID"), actorFrom(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newStageResponse(res))
}

func (s *Server) handleCompleteStage(c *gin.Context) {
	res, err := s.deps.Stages.CompleteStage(c.Request.Context(), c.Param("caseID"), actorFrom(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newStageResponse(res))
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION LIFECYCLE AND REPORTS
// ══════════════════════════════════════════════════════════════════════════════

type transitionResponse struct {
	Report     query.ReportDTO      `json:"report"`
	Evaluation *query.EvaluationDTO `json:"evaluation"`
	Stage      stageResponse        `json:"stage_progress"`
}

func newTransitionResponse(r command.TransitionResult) transitionResponse {
	return transitionResponse{
		Report:     query.NewReportDTO(r.Report),
		Evaluation: query.NewEvaluationDTO(r.Evaluation),
		Stage:      newStageResponse(r.Stage),
	}
}

func (s *Server) handleTerminate(c *gin.Context) {
	var req terminateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := s.deps.Archiver.Terminate(c.Request.Context(), c.Param("caseID"), actorFrom(c), req.Reason)
	if err != nil {
		s.respondError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newTransitionResponse(res))
}

func (s *Server) handleRestart(c *gin.Context) {
	res, err := s.deps.Archiver.Restart(c.Request.Context(), c.Param("caseID"), actorFrom(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newTransitionResponse(res))
}

func (s *Server) handleListReports(c *gin.Context) {
	reports, err := s.deps.Reports.ListReports(c.Request.Context(), c.Param("caseID"), actorFrom(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	writeList(c, reports)
}

func (s *Server) handleGetReport(c *gin.Context) {
	session, err := strconv.Atoi(c.Param("session"))
	if err != nil || session < 1 {
		badRequest(c, fmt.Errorf("session must be a positive integer"))
		return
	}
	report, err := s.deps.Reports.GetReport(c.Request.Context(), c.Param("caseID"), session, actorFrom(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, report)
}

// sessionQuery reads the optional ?session= parameter. Zero means the live session.
func sessionQuery(c *gin.Context) (int, error) {
	raw := c.Query("session")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("session must be a positive integer")
	}
	return n, nil
}
