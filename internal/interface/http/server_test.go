package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyslexia-hub/therapy-workflow/internal/application/command"
	"github.com/dyslexia-hub/therapy-workflow/internal/application/port"
	"github.com/dyslexia-hub/therapy-workflow/internal/application/query"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
	"github.com/dyslexia-hub/therapy-workflow/internal/infrastructure/external/ml"
	"github.com/dyslexia-hub/therapy-workflow/internal/infrastructure/external/objectstore"
	"github.com/dyslexia-hub/therapy-workflow/internal/infrastructure/persistence/memory"
	"github.com/dyslexia-hub/therapy-workflow/pkg/logger"
)

const testSecret = "test-secret-with-enough-entropy-0123456789"

var (
	teacher = shared.Actor{UserID: "teacher-1", Role: shared.RoleTeacher}
	doctor  = shared.Actor{UserID: "doctor-1", Role: shared.RoleDoctor}
	parent  = shared.Actor{UserID: "parent-1", Role: shared.RoleParent}
)

type fakeAnalyzer struct{ calls int }

func (f *fakeAnalyzer) AnalyzeImage(context.Context, []byte) (port.AnalysisResult, error) {
	f.calls++
	return port.AnalysisResult{Score: 72.5, Label: "High likelihood of dyslexia", LetterCounts: map[string]int{"b": 3}}, nil
}

type gate map[string]bool

func (g gate) EnabledFor(name, _ string) bool { return g[name] }

type testAPI struct {
	t        *testing.T
	server   *Server
	auth     *TokenAuthenticator
	analyzer *fakeAnalyzer
}

func newTestAPI(t *testing.T, features FeatureGate, opts ...func(*Config)) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.New()
	deps := command.Deps{UoW: store, Logger: logger.Nop()}
	analyzer := &fakeAnalyzer{}
	auth := NewTokenAuthenticator(testSecret, "therapy-test")

	cfg := DefaultConfig()
	cfg.Debug = true
	cfg.MaxUploadBytes = 1 << 20
	cfg.UploadRateLimit = RateLimitConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	srv := NewServer(cfg, Dependencies{
		Cases:             command.NewCaseRegistry(deps),
		Stages:            command.NewStageTracker(deps),
		Tasks:             command.NewTaskScoringEngine(deps),
		Assessment:        command.NewAssessmentEngine(deps),
		Activities:        command.NewActivityLifecycleManager(deps),
		Evaluation:        command.NewFinalEvaluationController(deps),
		Recommendations:   command.NewRecommendationStore(deps),
		Archiver:          command.NewSessionArchiver(deps),
		Handwriting:       command.NewHandwritingIntake(deps, analyzer, objectstore.NewMemoryStore(""), ml.NewNormalizer(ml.DefaultMaxWidth)),
		Tracking:          query.NewTrackingHandler(store),
		EvaluationSummary: query.NewEvaluationSummaryHandler(store),
		Comprehensive:     query.NewComprehensiveHandler(store),
		Reports:           query.NewTherapyReportsHandler(store, nil, logger.Nop()),
		Auth:              auth,
		Features:          features,
		Logger:            logger.Nop(),
	})
	return &testAPI{t: t, server: srv, auth: auth, analyzer: analyzer}
}

func (a *testAPI) token(actor shared.Actor) string {
	tok, err := a.auth.Issue(actor, time.Hour)
	require.NoError(a.t, err)
	return tok
}

func (a *testAPI) do(actor *shared.Actor, method, path string, body any) (*httptest.ResponseRecorder, JSONResponse) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(a.t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		req.Header.Set("Authorization", "Bearer "+a.token(*actor))
	}
	w := httptest.NewRecorder()
	a.server.Handler().ServeHTTP(w, req)

	var resp JSONResponse
	if w.Body.Len() > 0 {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w, resp
}

func (a *testAPI) openCase() string {
	w, resp := a.do(&teacher, http.MethodPost, "/api/v1/cases", map[string]any{"name": "Aru", "grade": "3"})
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	data := resp.Data.(map[string]any)
	return data["id"].(string)
}

func (a *testAPI) link(caseID string, actor shared.Actor) {
	w, _ := a.do(&teacher, http.MethodPost, "/api/v1/cases/"+caseID+"/links",
		map[string]string{"user_id": actor.UserID, "role": actor.Role.String()})
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
}

func (a *testAPI) completeStage(caseID string, actor shared.Actor) {
	w, _ := a.do(&actor, http.MethodPost, "/api/v1/cases/"+caseID+"/stage/complete", nil)
	require.Equal(a.t, http.StatusOK, w.Code, w.Body.String())
}

func TestAuth(t *testing.T) {
	api := newTestAPI(t, nil)

	w, resp := api.do(nil, http.MethodGet, "/api/v1/cases", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "missing_token", resp.Error.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cases", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	api.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other := NewTokenAuthenticator("another-secret-another-secret-1234", "therapy-test")
	forged, err := other.Issue(teacher, time.Hour)
	require.NoError(t, err)
	_, err = api.auth.Verify(forged)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := api.auth.Issue(teacher, -time.Minute)
	require.NoError(t, err)
	_, err = api.auth.Verify(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	actor, err := api.auth.Verify(api.token(parent))
	require.NoError(t, err)
	assert.Equal(t, parent, actor)
}

func TestVerify_RejectsUnknownRole(t *testing.T) {
	api := newTestAPI(t, nil)
	tok, err := api.auth.Issue(shared.Actor{UserID: "u-1", Role: shared.Role("admin")}, time.Hour)
	require.NoError(t, err)
	_, err = api.auth.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestErrorMapping(t *testing.T) {
	api := newTestAPI(t, nil)

	w, resp := api.do(&doctor, http.MethodPost, "/api/v1/cases", map[string]any{"name": "Aru"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "role_not_permitted", resp.Error.Code)

	w, resp = api.do(&teacher, http.MethodGet, "/api/v1/cases/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", resp.Error.Code)

	w, _ = api.do(&teacher, http.MethodPost, "/api/v1/cases", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	caseID := api.openCase()
	api.link(caseID, doctor)
	base := "/api/v1/cases/" + caseID

	w, resp = api.do(&teacher, http.MethodPost, base+"/links", map[string]string{"user_id": doctor.UserID, "role": "doctor"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "duplicate_record", resp.Error.Code)

	w, resp = api.do(&parent, http.MethodGet, base+"/stage", nil)
	assert.Equal(t, http.StatusForbidden, w.Code, "unlinked parent")
	assert.Equal(t, "role_not_permitted", resp.Error.Code)

	tasks := map[string]any{"tasks": []map[string]any{{"name": "Reading", "max_score": 10}, {"name": "Spelling", "max_score": 10}}}
	w, resp = api.do(&doctor, http.MethodPost, base+"/tasks", tasks)
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
	assert.Equal(t, "precondition_not_met", resp.Error.Code)

	w, _ = api.do(&doctor, http.MethodPost, base+"/stage/complete", nil)
	assert.Equal(t, http.StatusForbidden, w.Code, "doctor cannot complete stage 1")

	api.completeStage(caseID, teacher)

	w, _ = api.do(&doctor, http.MethodPost, base+"/tasks", map[string]any{"tasks": []map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code, "binding rejects an empty batch")

	w, resp = api.do(&doctor, http.MethodPost, base+"/tasks", map[string]any{"tasks": []map[string]any{{"name": "Reading", "max_score": 0}}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "out_of_range", resp.Error.Code)

	w, _ = api.do(&doctor, http.MethodPost, base+"/tasks", tasks)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	api.completeStage(caseID, doctor)
	w, resp = api.do(&doctor, http.MethodPost, base+"/stage/complete", nil)
	assert.Equal(t, http.StatusForbidden, w.Code, "stage 3 belongs to the teacher")
	assert.Equal(t, "role_not_permitted", resp.Error.Code)
}

func TestAssessmentFlow(t *testing.T) {
	api := newTestAPI(t, nil)
	caseID := api.openCase()
	api.link(caseID, doctor)
	base := "/api/v1/cases/" + caseID

	api.completeStage(caseID, teacher)
	w, resp := api.do(&doctor, http.MethodPost, base+"/tasks", map[string]any{
		"tasks": []map[string]any{{"name": "Reading", "max_score": 10}, {"name": "Spelling", "max_score": 10}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := resp.Data.([]any)
	require.Len(t, created, 2)
	id0 := created[0].(map[string]any)["id"].(string)
	id1 := created[1].(map[string]any)["id"].(string)
	api.completeStage(caseID, doctor)

	w, resp = api.do(&teacher, http.MethodPut, base+"/tasks/scores", map[string]any{
		"scores": []map[string]any{{"task_id": id0, "score": 8}, {"task_id": id1, "score": 11}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "out_of_range", resp.Error.Code)

	w, _ = api.do(&teacher, http.MethodPut, base+"/tasks/scores", map[string]any{
		"scores": []map[string]any{{"task_id": id0, "score": 8}, {"task_id": id1, "score": 6}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	api.completeStage(caseID, teacher)

	w, resp = api.do(&doctor, http.MethodPut, base+"/summary", map[string]any{"cutoff": "70"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	summary := resp.Data.(map[string]any)
	assert.InDelta(t, 70.0, summary["percentage_score"].(float64), 0.001)
	assert.Equal(t, "low", summary["risk_level"])
	assert.Equal(t, false, summary["dyslexia_indication"])

	w, resp = api.do(&teacher, http.MethodGet, base+"/stage", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stage := resp.Data.(map[string]any)
	assert.EqualValues(t, 4, stage["current_stage"])
	assert.Len(t, stage["completed_stages"], 3)
}

// driveToAssignment takes a case through stages 1-4 over the API.
func (a *testAPI) driveToAssignment(caseID string) {
	base := "/api/v1/cases/" + caseID
	a.completeStage(caseID, teacher)
	w, resp := a.do(&doctor, http.MethodPost, base+"/tasks", map[string]any{
		"tasks": []map[string]any{{"name": "Reading", "max_score": 10}},
	})
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	taskID := resp.Data.([]any)[0].(map[string]any)["id"].(string)
	a.completeStage(caseID, doctor)
	w, _ = a.do(&teacher, http.MethodPut, base+"/tasks/scores", map[string]any{
		"scores": []map[string]any{{"task_id": taskID, "score": 5}},
	})
	require.Equal(a.t, http.StatusOK, w.Code, w.Body.String())
	a.completeStage(caseID, teacher)
	w, _ = a.do(&doctor, http.MethodPut, base+"/summary", map[string]any{"cutoff": "70"})
	require.Equal(a.t, http.StatusOK, w.Code, w.Body.String())
	a.completeStage(caseID, doctor)
}

func TestActivityRoutes_AreScopedToTheCaseInThePath(t *testing.T) {
	api := newTestAPI(t, nil)
	caseA := api.openCase()
	caseB := api.openCase()
	for _, id := range []string{caseA, caseB} {
		api.link(id, doctor)
		api.link(id, parent)
	}
	api.driveToAssignment(caseA)
	baseA := "/api/v1/cases/" + caseA
	baseB := "/api/v1/cases/" + caseB

	w, resp := api.do(&doctor, http.MethodPost, baseA+"/activities", map[string]any{
		"activities": []map[string]any{{
			"name": "Rhymes", "activity_type": "phonics", "frequency": "daily",
			"duration_minutes": 10, "target_audience": "both",
		}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assignmentID := resp.Data.([]any)[0].(map[string]any)["id"].(string)

	w, resp = api.do(&doctor, http.MethodPatch, baseB+"/activities/"+assignmentID, map[string]any{"name": "renamed elsewhere"})
	assert.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
	assert.Equal(t, "not_found", resp.Error.Code)

	w, resp = api.do(&doctor, http.MethodPatch, baseA+"/activities/"+assignmentID, map[string]any{})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Rhymes", resp.Data.(map[string]any)["name"])

	api.completeStage(caseA, doctor)
	progress := map[string]any{"session_date": "2024-03-05", "completion_percentage": 50, "student_engagement": 6, "difficulty_level": 4}

	w, _ = api.do(&parent, http.MethodPost, baseB+"/activities/"+assignmentID+"/progress", progress)
	assert.Equal(t, http.StatusNotFound, w.Code, w.Body.String())

	w, resp = api.do(&parent, http.MethodPost, baseA+"/activities/"+assignmentID+"/progress", progress)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	recordID := resp.Data.(map[string]any)["id"].(string)

	w, _ = api.do(&parent, http.MethodPatch, baseB+"/progress/"+recordID, map[string]any{"notes": "moved"})
	assert.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
	w, _ = api.do(&parent, http.MethodPatch, baseA+"/progress/"+recordID, map[string]any{"notes": "steady"})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestHandwritingUpload(t *testing.T) {
	api := newTestAPI(t, gate{"handwriting.analysis": true})
	caseID := api.openCase()
	path := "/api/v1/cases/" + caseID + "/handwriting"

	w := api.upload(teacher, path, pngImage(t, 40, 20))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp JSONResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp.Data.(map[string]any)
	assert.InDelta(t, 72.5, data["dyslexia_score"].(float64), 0.001)
	assert.Contains(t, data["image_url"], "memory://objects/handwriting/"+caseID+"/")
	assert.Equal(t, 1, api.analyzer.calls)

	w = api.upload(teacher, path, []byte("not an image"))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.Header.Set("Authorization", "Bearer "+api.token(teacher))
	rec := httptest.NewRecorder()
	api.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing multipart field")
}

func TestHandwritingUpload_FeatureDisabled(t *testing.T) {
	api := newTestAPI(t, gate{})
	caseID := api.openCase()

	w := api.upload(teacher, "/api/v1/cases/"+caseID+"/handwriting", pngImage(t, 10, 10))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Zero(t, api.analyzer.calls)
}

func TestHandwritingUpload_RateLimited(t *testing.T) {
	api := newTestAPI(t, gate{"handwriting.analysis": true}, func(c *Config) {
		c.UploadRateLimit = RateLimitConfig{RequestsPerMinute: 1, BurstSize: 1}
	})
	caseID := api.openCase()
	path := "/api/v1/cases/" + caseID + "/handwriting"

	w := api.upload(teacher, path, pngImage(t, 10, 10))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = api.upload(teacher, path, pngImage(t, 10, 10))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, 1, api.analyzer.calls)
}

func (a *testAPI) upload(actor shared.Actor, path string, data []byte) *httptest.ResponseRecorder {
	a.t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(imageField, "sample.png")
	require.NoError(a.t, err)
	_, err = fw.Write(data)
	require.NoError(a.t, err)
	require.NoError(a.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+a.token(actor))
	w := httptest.NewRecorder()
	a.server.Handler().ServeHTTP(w, req)
	return w
}

func pngImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.Black)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{shared.ErrNotCaseMember, http.StatusForbidden},
		{shared.ErrTasksNotScored, http.StatusPreconditionFailed},
		{shared.ErrStageCompleted, http.StatusConflict},
		{shared.ErrCaseCompleted, http.StatusConflict},
		{shared.ErrDuplicateSession, http.StatusConflict},
		{shared.ErrInvalidCutoff, http.StatusUnprocessableEntity},
		{shared.ErrInvalidLinkRole, http.StatusUnprocessableEntity},
		{shared.ErrReportNotFound, http.StatusNotFound},
		{shared.ErrChecksumMismatch, http.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", shared.ErrAssignmentNotFound), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		status, _ := statusFor(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
	}
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	api := newTestAPI(t, nil)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	api.server.respondError(c, shared.WrapError("postgres", "Save", shared.ErrInternal, "storage failure", errors.New("dial tcp 10.0.0.1:5432")))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "dial tcp")
	assert.Contains(t, rec.Body.String(), "internal_error")
}
