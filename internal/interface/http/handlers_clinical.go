package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dyslexia-hub/therapy-workflow/config"
	"github.com/dyslexia-hub/therapy-workflow/internal/application/query"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/assessment"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/evaluation"
)

// ══════════════════════════════════════════════════════════════════════════════
// HANDWRITING (STAGE 1)
// ══════════════════════════════════════════════════════════════════════════════

const imageField = "image"

func (s *Server) handleListHandwriting(c *gin.Context) {
	analyses, err := s.deps.Handwriting.ListAnalyses(c.Request.Context(), c.Param("caseID"), actorFrom(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	out := make([]query.HandwritingDTO, len(analyses))
	for i, a := range analyses {
		out[i] = query.NewHandwritingDTO(a)
	}
	writeList(c, out)
}

func (s *Server) handleAnalyzeHandwriting(c *gin.Context) {
	actor := actorFrom(c)
	if s.deps.Features != nil && !s.deps.Features.EnabledFor(config.FeatureHandwritingAnalysis, actor.UserID) {
		writeJSONError(c, http.StatusServiceUnavailable, "feature_disabled", "handwriting analysis is disabled")
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxUploadBytes)
	image, err := readUpload(c)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(c, http.StatusRequestEntityTooLarge, "payload_too_large",
				fmt.Sprintf("image exceeds %d bytes", s.config.MaxUploadBytes))
			return
		}
		badRequest(c, err)
		return
	}

	res, err := s.deps.Handwriting.AnalyzeHandwriting(c.Request.Context(), c.Param("caseID"), actor, image)
	if err != nil {
		s.respondError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, query.NewHandwritingDTO(res))
}

func readUpload(c *gin.Context) ([]byte, error) {
	fh, err := c.FormFile(imageField)
	if err != nil {
		return nil, fmt.Errorf("multipart field %q: %w", imageField, err)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// ══════════════════════════════════════════════════════════════════════════════
// TASKS AND ASSESSMENT (STAGES 2-4)
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleListTasks(c *gin.Context) {
	tasks, err := s.deps.Tasks.ListTasks(c.Request.Context(), c.Param("caseID"), actorFrom(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	writeList(c, query.NewTaskDTOs(tasks))
}

func (s *Server) handleDefineTasks(c *gin.Context) {
	var req defineTasksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	tasks, err := s.deps.Tasks.DefineTasks(c.Request.Context(), c.Param("caseID"), actorFrom(c), req.inputs())
	if err != nil {
		s.respondError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, query.NewTaskDTOs(tasks))
}

func (s *Server) handleScoreTasks(c *gin.Context) {
	var req scoreTasksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	tasks, err := s.deps.Tasks.ScoreTasks(c.Request.Context(), c.Param("caseID"), actorFrom(c), req.entries())
	if err != nil {
		s.respondError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, query.NewTaskDTOs(tasks))
}

func (s *Server) handleGetSummary(c *gin.Context) {
	summary, err := s.deps.Assessment.GetSummary(c.Request.Context(), c.Param("caseID"), actorFrom(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, query.NewSummaryDTO(summary))
}

func (s *Server) handleUpsertSummary(c *gin.Context) {
	var req summaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	summary, err := s.deps.Assessment.CreateOrUpdateSummary(c.Request.Context(), c.Param("caseID"), actorFrom(c),
		assessment.SummaryInput{Cutoff: req.Cutoff, Notes: req.Notes, Recommendations: req.Recommendations})
	if err != nil {
		s.respondError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, query.NewSummaryDTO(summary))
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITIES (STAGES 5-6)
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleListActivities(c *gin.Context) {
	tracked, err := s.deps.Tracking.ListForTracking(c.Request.Context(), c.Param("caseID"), actorFrom(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	writeList(c, tracked)
}

func (s *Server) handleAssignActivities(c *gin.Context) {
	var req assignActivitiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	created, err := s.deps.Activities.AssignActivities(c.Request.Context(), c.Param("caseID"), actorFrom(c), req.inputs())
	if err != nil {
		s.respondError(c, err)
		return
	}
	out := make([]query.AssignmentDTO, len(created))
	for i, a := range created {
		out[i] = query.NewAssignmentDTO(a)
	}
	writeJSON(c, http.StatusCreated, out)
}

func (s *Server) handleUpdateAssignment(c *gin.Context) {
	var req updateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	updated, err := s.deps.Activities.UpdateAssignment(c.Request.Context(), c.Param("caseID"), c.Param("assignmentID"), actorFrom(c), req.patch())
	if err != nil {
		s.respondError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, query.NewAssignmentDTO(updated))
}

func (s *Server) handleRecordProgress(c *gin.Context) {
	var req recordProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	in, err := req.input()
	if err != nil {
		badRequest(c, err)
		return
	}
	record, err := s.deps.Activities.RecordProgress(c.Request.Context(), c.Param("caseID"), c.Param("assignmentID"), actorFrom(c), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, query.NewProgressDTO(record))
}

func (s *Server) handleUpdateProgress(c *gin.Context) {
	var req updateProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	patch, err := req.patch()
	if err != nil {
		badRequest(c, err)
		return
	}
	record, err := s.deps.Activities.UpdateProgress(c.Request.Context(), c.Param("caseID"), c.Param("recordID"), actorFrom(c), patch)
	if err != nil {
		s.respondError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, query.NewProgressDTO(record))
}

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATION (STAGE 7) AND RECOMMENDATIONS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleGetEvaluation(c *gin.Context) {
	e, err := s.deps.Evaluation.Get(c.Request.Context(), c.Param("caseID"), actorFrom(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, query.NewEvaluationDTO(e))
}

func (s *Server) handleUpsertEvaluation(c *gin.Context) {
	var req evaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	e, err := s.deps.Evaluation.Upsert(c.Request.Context(), c.Param("caseID"), actorFrom(c), req.fields())
	if err != nil {
		s.respondError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, query.NewEvaluationDTO(e))
}

func (s *Server) handleCompleteCase(c *gin.Context) {
	e, err := s.deps.Evaluation.Complete(c.Request.Context(), c.Param("caseID"), actorFrom(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, query.NewEvaluationDTO(e))
}

func (s *Server) handleEvaluationSummary(c *gin.Context) {
	summary, err := s.deps.EvaluationSummary.Summary(c.Request.Context(), c.Param("caseID"), actorFrom(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, summary)
}

func (s *Server) handleComprehensive(c *gin.Context) {
	data, err := s.deps.Comprehensive.ComprehensiveData(c.Request.Context(), c.Param("caseID"), actorFrom(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, data)
}

func (s *Server) handleListRecommendations(c *gin.Context) {
	session, err := sessionQuery(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	recs, err := s.deps.Recommendations.ListForSession(c.Request.Context(), c.Param("caseID"), session, actorFrom(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	writeList(c, recommendationDTOs(recs))
}

func (s *Server) handleGetMyRecommendation(c *gin.Context) {
	session, err := sessionQuery(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	actor := actorFrom(c)
	rec, err := s.deps.Recommendations.Get(c.Request.Context(), c.Param("caseID"), actor.UserID, session, actor)
	if err != nil {
		s.respondError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, query.NewRecommendationDTO(rec))
}

func (s *Server) handleUpsertRecommendation(c *gin.Context) {
	var req recommendationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rec, err := s.deps.Recommendations.Upsert(c.Request.Context(), c.Param("caseID"), actorFrom(c), req.fields())
	if err != nil {
		s.respondError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, query.NewRecommendationDTO(rec))
}

func recommendationDTOs(recs []*evaluation.Recommendation) []*query.RecommendationDTO {
	out := make([]*query.RecommendationDTO, len(recs))
	for i, r := range recs {
		out[i] = query.NewRecommendationDTO(r)
	}
	return out
}
