package handler

import (
	"context"
	"strconv"

	appfiscal "github.com/facturo/backend/internal/application/fiscal"
	"github.com/facturo/backend/internal/domain/fiscal"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DocumentHandler handles the fiscal document lifecycle endpoints
type DocumentHandler struct {
	BaseHandler
	documentService *appfiscal.DocumentService
}

// NewDocumentHandler creates a new DocumentHandler
func NewDocumentHandler(documentService *appfiscal.DocumentService) *DocumentHandler {
	return &DocumentHandler{documentService: documentService}
}

// Emit creates a new document at the head of its numbering series
func (h *DocumentHandler) Emit(c *gin.Context) {
	var req appfiscal.EmitDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid document payload: "+err.Error())
		return
	}

	doc, err := h.documentService.Emit(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, doc)
}

// List returns documents with pagination
func (h *DocumentHandler) List(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		h.BadRequest(c, "Invalid list parameters: "+err.Error())
		return
	}

	docs, total, err := h.documentService.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, docs, total, filter.Page, filter.PageSize)
}

// Get returns a single document by id
func (h *DocumentHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		h.BadRequest(c, "Invalid document id")
		return
	}

	doc, err := h.documentService.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, doc)
}

// GetByNumber returns a document by its series and sequence number
func (h *DocumentHandler) GetByNumber(c *gin.Context) {
	series := fiscal.SeriesKey(c.Param("series"))
	number, err := strconv.ParseInt(c.Param("number"), 10, 64)
	if err != nil || number < 1 {
		h.BadRequest(c, "Invalid sequence number")
		return
	}

	doc, err := h.documentService.GetByNumber(c.Request.Context(), series, number)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, doc)
}

// History returns a document's state change journal
func (h *DocumentHandler) History(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		h.BadRequest(c, "Invalid document id")
		return
	}

	changes, err := h.documentService.History(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, changes)
}

// Graph returns the relation edges touching a document
func (h *DocumentHandler) Graph(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		h.BadRequest(c, "Invalid document id")
		return
	}

	graph, err := h.documentService.Graph(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, graph)
}

// Settle records a payment against an invoice, emitting a receipt
func (h *DocumentHandler) Settle(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		h.BadRequest(c, "Invalid document id")
		return
	}
	var req appfiscal.SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid settlement payload: "+err.Error())
		return
	}

	receipt, err := h.documentService.Settle(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, receipt)
}

// ApplyAdvance consumes an advance against an invoice
func (h *DocumentHandler) ApplyAdvance(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		h.BadRequest(c, "Invalid document id")
		return
	}
	var req appfiscal.ApplyAdvanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid advance payload: "+err.Error())
		return
	}

	invoice, err := h.documentService.ApplyAdvance(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, invoice)
}

// Cancel voids a document. Its sequence number stays consumed.
func (h *DocumentHandler) Cancel(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		h.BadRequest(c, "Invalid document id")
		return
	}
	var req appfiscal.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid cancellation payload: "+err.Error())
		return
	}

	doc, err := h.documentService.Cancel(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, doc)
}

// Convert emits an invoice from a proforma and retires the proforma
func (h *DocumentHandler) Convert(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		h.BadRequest(c, "Invalid document id")
		return
	}
	var req appfiscal.ConvertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid conversion payload: "+err.Error())
		return
	}

	invoice, err := h.documentService.ConvertProforma(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, invoice)
}

// CreditNote emits a credit note against an invoice
func (h *DocumentHandler) CreditNote(c *gin.Context) {
	h.deriveNote(c, h.documentService.CreateCreditNote)
}

// DebitNote emits a debit note against an invoice
func (h *DocumentHandler) DebitNote(c *gin.Context) {
	h.deriveNote(c, h.documentService.CreateDebitNote)
}

func (h *DocumentHandler) deriveNote(c *gin.Context, derive func(context.Context, uuid.UUID, appfiscal.NoteRequest) (*appfiscal.DocumentResponse, error)) {
	id, ok := parseIDParam(c)
	if !ok {
		h.BadRequest(c, "Invalid document id")
		return
	}
	var req appfiscal.NoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid note payload: "+err.Error())
		return
	}

	note, err := derive(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, note)
}

// ListSeries returns every numbering series counter of the tenant
func (h *DocumentHandler) ListSeries(c *gin.Context) {
	series, err := h.documentService.ListSeries(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, series)
}

// GetSeries returns one numbering series counter
func (h *DocumentHandler) GetSeries(c *gin.Context) {
	series, err := h.documentService.GetSeries(c.Request.Context(), fiscal.SeriesKey(c.Param("series")))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, series)
}

// ListSeriesDocuments returns the documents of one series in chain order
func (h *DocumentHandler) ListSeriesDocuments(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		h.BadRequest(c, "Invalid list parameters: "+err.Error())
		return
	}

	docs, err := h.documentService.ListBySeries(c.Request.Context(), fiscal.SeriesKey(c.Param("series")), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, docs)
}

// VerifySeries audits a series' hash chain end to end
func (h *DocumentHandler) VerifySeries(c *gin.Context) {
	result, err := h.documentService.VerifySeries(c.Request.Context(), fiscal.SeriesKey(c.Param("series")))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// HaltSeries blocks further emission on a series
func (h *DocumentHandler) HaltSeries(c *gin.Context) {
	if err := h.documentService.HaltSeries(c.Request.Context(), fiscal.SeriesKey(c.Param("series"))); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"message": "Series halted"})
}

// ReopenSeries lifts a halt after the chain has been repaired
func (h *DocumentHandler) ReopenSeries(c *gin.Context) {
	if err := h.documentService.ReopenSeries(c.Request.Context(), fiscal.SeriesKey(c.Param("series"))); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"message": "Series reopened"})
}
