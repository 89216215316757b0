package daemon

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"sceneforge/internal/editor"
	"sceneforge/internal/orchestrator"
	"sceneforge/internal/production"
	"sceneforge/internal/services"
)

type createProductionRequest struct {
	Title    string               `json:"title" binding:"max=200"`
	Scenes   []string             `json:"scenes" binding:"max=200,dive,max=4000"`
	Settings *production.Settings `json:"settings"`
}

type patchProductionRequest struct {
	Title    *string              `json:"title" binding:"omitempty,max=200"`
	Step     *string              `json:"step"`
	Settings *production.Settings `json:"settings"`
}

type insertSceneRequest struct {
	After       *int   `json:"after" binding:"omitempty,gte=0"`
	Description string `json:"description" binding:"max=4000"`
}

type reorderRequest struct {
	From *int `json:"from" binding:"required,gte=0"`
	To   *int `json:"to" binding:"required,gte=0"`
}

type referenceRequest struct {
	AssetID string `json:"asset_id" binding:"required"`
}

type productionResponse struct {
	Production *production.Production `json:"production"`
	History    editor.HistoryState    `json:"history"`
	Producing  bool                   `json:"producing"`
}

type historyResponse struct {
	Applied bool                `json:"applied"`
	Action  string              `json:"action,omitempty"`
	History editor.HistoryState `json:"history"`
}

type generationAccepted struct {
	ProductionID string             `json:"production_id"`
	SceneID      string             `json:"scene_id"`
	Phase        orchestrator.Phase `json:"phase"`
}

// session opens the production named by the :id route parameter, writing the
// error response itself when it cannot.
func (s *apiServer) session(c *gin.Context) (*editor.Session, bool) {
	id := strings.TrimSpace(c.Param("id"))
	session, err := s.daemon.Workspace().Open(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return nil, false
	}
	return session, true
}

func (s *apiServer) describe(session *editor.Session) productionResponse {
	state, _ := s.daemon.ProduceStatus(session.ID())
	return productionResponse{
		Production: session.Snapshot(),
		History:    session.History(),
		Producing:  state.Running,
	}
}

func (s *apiServer) handleListProductions(c *gin.Context) {
	rows, err := s.daemon.Workspace().List(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"productions": rows})
}

func (s *apiServer) handleCreateProduction(c *gin.Context) {
	var req createProductionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	p := production.New(req.Title)
	for _, description := range req.Scenes {
		p.AppendScene(production.NewScene(description))
	}
	if len(p.Scenes) > 0 {
		p.Step = production.StepScenes
	}
	if req.Settings != nil {
		p.Settings = *req.Settings
	}
	if err := p.Validate(); err != nil {
		s.respondError(c, services.Wrap(services.ErrValidation, "api", "create", "invalid production", err))
		return
	}
	session, err := s.daemon.Workspace().Create(c.Request.Context(), p)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s.describe(session))
}

func (s *apiServer) handleGetProduction(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.describe(session))
}

func (s *apiServer) handleReplaceProduction(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	var next production.Production
	if err := c.ShouldBindJSON(&next); err != nil {
		s.badRequest(c, err)
		return
	}
	if err := session.Replace(&next); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.describe(session))
}

func (s *apiServer) handlePatchProduction(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	var req patchProductionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	if req.Step != nil {
		step, known := production.ParseStep(*req.Step)
		if !known {
			s.badRequest(c, fmt.Errorf("unknown step %q", *req.Step))
			return
		}
		session.SetStep(step)
	}
	if req.Title != nil {
		session.Rename(*req.Title)
	}
	if req.Settings != nil {
		if err := session.UpdateSettings(*req.Settings); err != nil {
			s.respondError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, s.describe(session))
}

func (s *apiServer) handleDeleteProduction(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if state, _ := s.daemon.ProduceStatus(id); state.Running {
		s.respondError(c, orchestrator.ErrAlreadyProducing)
		return
	}
	if err := s.daemon.Workspace().Delete(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *apiServer) handleExport(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	format, err := production.ParseExportFormat(c.DefaultQuery("format", string(production.ExportJSON)))
	if err != nil {
		s.badRequest(c, err)
		return
	}
	var buf bytes.Buffer
	snapshot := session.Snapshot()
	if err := production.Export(&buf, snapshot, format, time.Now().UTC()); err != nil {
		s.respondError(c, err)
		return
	}
	contentType := "application/json"
	if format == production.ExportCSV {
		contentType = "text/csv; charset=utf-8"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", production.ExportFileName(snapshot, format)))
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

func (s *apiServer) handleUndo(c *gin.Context) {
	s.handleHistory(c, (*editor.Session).Undo)
}

func (s *apiServer) handleRedo(c *gin.Context) {
	s.handleHistory(c, (*editor.Session).Redo)
}

func (s *apiServer) handleHistory(c *gin.Context, move func(*editor.Session) (string, bool)) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	action, applied := move(session)
	c.JSON(http.StatusOK, historyResponse{Applied: applied, Action: action, History: session.History()})
}

func (s *apiServer) handleInsertScene(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	var req insertSceneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	if req.After == nil {
		scene := session.AppendScene(production.NewScene(req.Description))
		c.JSON(http.StatusCreated, scene)
		return
	}
	var inserted production.Scene
	added := session.Edit("insert scene", func(p *production.Production) bool {
		scene, ok := p.InsertSceneAfter(*req.After)
		if !ok {
			return false
		}
		if description := strings.TrimSpace(req.Description); description != "" {
			p.Scenes[p.FindScene(scene.ID)].Description = description
			scene.Description = description
		}
		inserted = scene
		return true
	})
	if !added {
		s.badRequest(c, fmt.Errorf("no scene numbered %d", *req.After))
		return
	}
	c.JSON(http.StatusCreated, inserted)
}

func (s *apiServer) handleReorder(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	if !session.Reorder(*req.From, *req.To) {
		s.badRequest(c, fmt.Errorf("cannot move scene %d to %d", *req.From, *req.To))
		return
	}
	c.JSON(http.StatusOK, s.describe(session))
}

// sceneOf resolves :sceneId on session, writing a 404 when it is unknown.
func (s *apiServer) sceneOf(c *gin.Context, session *editor.Session) (production.Scene, bool) {
	scene, ok := session.Snapshot().Scene(c.Param("sceneId"))
	if !ok {
		s.respondError(c, orchestrator.ErrSceneNotFound)
	}
	return scene, ok
}

func (s *apiServer) handleUpdateScene(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	scene, ok := s.sceneOf(c, session)
	if !ok {
		return
	}
	var patch production.ScenePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		s.badRequest(c, err)
		return
	}
	if patch.Empty() {
		s.badRequest(c, errors.New("patch changes nothing"))
		return
	}
	session.UpdateScene(scene.ID, patch)
	updated, _ := session.Snapshot().Scene(scene.ID)
	c.JSON(http.StatusOK, updated)
}

func (s *apiServer) handleDeleteScene(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	scene, ok := s.sceneOf(c, session)
	if !ok {
		return
	}
	session.DeleteScene(scene.ID)
	c.Status(http.StatusNoContent)
}

func (s *apiServer) handleToggleReference(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	scene, ok := s.sceneOf(c, session)
	if !ok {
		return
	}
	var req referenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	session.ToggleReference(scene.ID, req.AssetID)
	updated, _ := session.Snapshot().Scene(scene.ID)
	c.JSON(http.StatusOK, updated)
}

func (s *apiServer) handleGenerateImage(c *gin.Context) {
	s.handleGenerate(c, orchestrator.PhaseImage, s.daemon.GenerateImage)
}

func (s *apiServer) handleGenerateVideo(c *gin.Context) {
	s.handleGenerate(c, orchestrator.PhaseVideo, s.daemon.GenerateVideo)
}

func (s *apiServer) handleGenerate(c *gin.Context, phase orchestrator.Phase, start func(*editor.Session, string) error) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	sceneID := c.Param("sceneId")
	if err := start(session, sceneID); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, generationAccepted{
		ProductionID: session.ID(),
		SceneID:      sceneID,
		Phase:        phase,
	})
}

func (s *apiServer) handleProduce(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	state, err := s.daemon.Produce(session)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, state)
}

func (s *apiServer) handleProduceStatus(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	state, ok := s.daemon.ProduceStatus(id)
	if !ok {
		s.respondError(c, services.Wrap(services.ErrNotFound, "api", "produce", "no production run recorded", nil))
		return
	}
	c.JSON(http.StatusOK, state)
}
