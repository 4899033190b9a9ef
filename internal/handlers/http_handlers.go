package handlers

import (
	"encoding/csv"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"raffle/internal/hub"
	"raffle/internal/importer"
	"raffle/internal/models"
	"raffle/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
)

const maxImportBytes = 8 << 20

// HTTPHandler holds the dependencies for the HTTP handlers, like the lottery service.
type HTTPHandler struct {
	service *services.LotteryService
	hub     *hub.Hub
}

// NewHTTPHandler creates a new HTTPHandler. hub may be nil to disable /ws.
func NewHTTPHandler(service *services.LotteryService, h *hub.Hub) *HTTPHandler {
	return &HTTPHandler{
		service: service,
		hub:     h,
	}
}

// RegisterRoutes registers all the application routes.
func (h *HTTPHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")

	api.GET("/employees", h.ListParticipants)
	api.GET("/employees/:name", h.GetParticipant)
	api.GET("/stats", h.Stats)
	api.POST("/employee", h.AddParticipant)
	api.POST("/employee/:name/add_entry", h.AddEntry)
	api.POST("/employee/:name/reset_points", h.ResetParticipant)
	api.DELETE("/employee/:name", h.RemoveParticipant)
	api.POST("/reset", h.ResetAll)
	api.POST("/import", h.ImportJSON)
	api.POST("/import_csv", h.UploadParticipantsCSV)

	raffle := api.Group("/raffle")
	raffle.GET("", h.SessionStatus)
	raffle.DELETE("", h.Teardown)
	raffle.POST("/arm", h.Arm)
	raffle.POST("/draw", h.Draw)
	raffle.POST("/reveal", h.Reveal)
	raffle.POST("/reset", h.ResetSession)
	raffle.GET("/results", h.Results)
	raffle.GET("/results.csv", h.ExportResultsCSV)

	if h.hub != nil {
		router.GET("/ws", gin.WrapF(h.hub.ServeWS))
		api.GET("/ws/stats", func(c *gin.Context) { c.JSON(http.StatusOK, h.hub.Stats()) })
	}
}

// respondError maps raffle error kinds onto HTTP status codes.
func respondError(c *gin.Context, err error) {
	kind := models.ErrorKind(err)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrDuplicateName),
		errors.Is(err, models.ErrAlreadyDrawing),
		errors.Is(err, models.ErrNotDrawing),
		errors.Is(err, models.ErrNoEligibleParticipants),
		errors.Is(err, models.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, models.ErrInvalidName),
		errors.Is(err, models.ErrInvalidEntryCount),
		errors.Is(err, models.ErrInvalidActivityLabel):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrStorage):
		kind = "Storage"
	}
	if status == http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	body := gin.H{"error": err.Error()}
	if kind != "" {
		body["kind"] = kind
	}
	c.JSON(status, body)
}

// ListParticipants returns every participant, most entries first.
func (h *HTTPHandler) ListParticipants(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.ListParticipants())
}

// GetParticipant returns one participant with its full history.
func (h *HTTPHandler) GetParticipant(c *gin.Context) {
	p, err := h.service.GetParticipant(c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Stats returns participant and entry totals.
func (h *HTTPHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Stats())
}

// AddParticipant handles {"name": "..."}.
func (h *HTTPHandler) AddParticipant(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	p, err := h.service.CreateParticipant(c.Request.Context(), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "employee": p})
}

// AddEntry handles {"activity": "...", "entries": n}; entries defaults to 1.
func (h *HTTPHandler) AddEntry(c *gin.Context) {
	var req struct {
		Activity string   `json:"activity"`
		Entries  *float64 `json:"entries"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	entries := 1
	if req.Entries != nil {
		v := *req.Entries
		if v != math.Trunc(v) || v > importer.MaxEntries || v < math.MinInt32 {
			respondError(c, models.ErrInvalidEntryCount)
			return
		}
		entries = int(v)
	}

	p, err := h.service.AddEntry(c.Request.Context(), c.Param("name"), req.Activity, entries)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "employee": p})
}

// ResetParticipant zeroes a participant's entries.
func (h *HTTPHandler) ResetParticipant(c *gin.Context) {
	p, err := h.service.ResetParticipant(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "employee": p})
}

// RemoveParticipant deletes a participant.
func (h *HTTPHandler) RemoveParticipant(c *gin.Context) {
	if err := h.service.RemoveParticipant(c.Request.Context(), c.Param("name")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ResetAll wipes the ledger.
func (h *HTTPHandler) ResetAll(c *gin.Context) {
	if err := h.service.ResetAll(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ImportJSON handles {"rows": [{"name", "activity", "entries"}, ...]}.
func (h *HTTPHandler) ImportJSON(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Error reading request body"})
		return
	}
	rows, rowErrs, err := importer.ParseJSON(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.runImport(c, rows, rowErrs)
}

// UploadParticipantsCSV handles the CSV upload of name,activity,entries rows.
func (h *HTTPHandler) UploadParticipantsCSV(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Error retrieving file: " + err.Error()})
		return
	}
	defer file.Close()

	rows, rowErrs, err := importer.ParseCSV(io.LimitReader(file, maxImportBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.runImport(c, rows, rowErrs)
}

func (h *HTTPHandler) runImport(c *gin.Context, rows []models.ImportRow, rowErrs []importer.RowError) {
	for _, re := range rowErrs {
		logger.Infof("Skipping malformed import row %d: %s", re.Line, re.Err)
	}

	report, err := h.service.Import(c.Request.Context(), rows)
	for _, re := range rowErrs {
		report.Rows = append(report.Rows, models.ImportRowResult{Line: re.Line, Error: re.Err})
		report.Failed++
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// SessionStatus returns the drawing session with odds.
func (h *HTTPHandler) SessionStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Status())
}

// Arm snapshots eligible participants for a new drawing.
func (h *HTTPHandler) Arm(c *gin.Context) {
	st, err := h.service.Arm()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// Draw commits a winner; the response does not name it.
func (h *HTTPHandler) Draw(c *gin.Context) {
	handle, err := h.service.Draw()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, handle)
}

// Reveal discloses the committed winner.
func (h *HTTPHandler) Reveal(c *gin.Context) {
	res, err := h.service.Reveal()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ResetSession re-arms from the current ledger.
func (h *HTTPHandler) ResetSession(c *gin.Context) {
	st, err := h.service.ResetSession()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// Teardown ends the drawing session.
func (h *HTTPHandler) Teardown(c *gin.Context) {
	h.service.Teardown()
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Results lists every revealed drawing.
func (h *HTTPHandler) Results(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Results())
}

// ExportResultsCSV handles the request to download the drawing results as a CSV file.
func (h *HTTPHandler) ExportResultsCSV(c *gin.Context) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment;filename=raffle_results.csv")

	// Add BOM to ensure UTF-8 compatibility in Excel
	c.Writer.Write([]byte("\xef\xbb\xbf"))

	w := csv.NewWriter(c.Writer)

	if err := w.Write([]string{"drawing_id", "winner", "entries", "total_entries", "probability", "revealed_at"}); err != nil {
		logger.Infof("Error writing CSV header: %v", err)
		c.String(http.StatusInternalServerError, "Error writing CSV")
		return
	}

	for _, r := range h.service.Results() {
		row := []string{
			r.DrawingID,
			r.WinnerName,
			strconv.Itoa(r.Entries),
			strconv.Itoa(r.TotalEntries),
			strconv.FormatFloat(r.Probability, 'f', 4, 64),
			r.RevealedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			logger.Infof("Error writing CSV row: %v", err)
			c.String(http.StatusInternalServerError, "Error writing CSV")
			return
		}
	}

	w.Flush()

	if err := w.Error(); err != nil {
		logger.Infof("Error flushing CSV writer: %v", err)
		c.String(http.StatusInternalServerError, "Error writing CSV")
	}
}
