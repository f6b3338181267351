package fiscal

import (
	"context"
	"fmt"
	"time"

	"github.com/facturo/backend/internal/domain/fiscal"
	"github.com/facturo/backend/internal/domain/shared"
	"github.com/facturo/backend/internal/domain/shared/valueobject"
	"github.com/facturo/backend/internal/infrastructure/telemetry"
	"github.com/facturo/backend/internal/infrastructure/tenancy"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// DocumentService orchestrates the fiscal document lifecycle: emission,
// settlement, cancellation, conversion and note derivation. Every operation
// runs against the tenant datastore carried by the request's
// TenancyContext; the service itself holds no tenant state.
type DocumentService struct {
	docRepo      fiscal.DocumentRepository
	relationRepo fiscal.RelationRepository
	seriesRepo   fiscal.SeriesRepository
	events       shared.EventPublisher
	logger       *zap.Logger
	emitted      metric.Int64Counter
}

// NewDocumentService creates a new DocumentService. A nil publisher
// disables event publication.
func NewDocumentService(
	docRepo fiscal.DocumentRepository,
	relationRepo fiscal.RelationRepository,
	seriesRepo fiscal.SeriesRepository,
	events shared.EventPublisher,
	logger *zap.Logger,
) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	emitted, err := otel.Meter(telemetry.MeterName).Int64Counter("facturo.fiscal.documents_emitted",
		metric.WithDescription("Fiscal documents emitted, by type and series"))
	if err != nil {
		logger.Warn("Emission counter unavailable", zap.Error(err))
	}
	return &DocumentService{
		docRepo:      docRepo,
		relationRepo: relationRepo,
		seriesRepo:   seriesRepo,
		events:       events,
		logger:       logger,
		emitted:      emitted,
	}
}

// publishEvents drains and publishes pending aggregate events after the
// owning transaction has committed
func (s *DocumentService) publishEvents(ctx context.Context, aggs ...shared.AggregateRoot) {
	if s.events == nil {
		return
	}
	for _, agg := range aggs {
		if evts := agg.GetDomainEvents(); len(evts) > 0 {
			if err := s.events.Publish(ctx, evts...); err != nil {
				s.tenantLogger(ctx).Warn("Event publication failed", zap.Error(err))
			}
			agg.ClearDomainEvents()
		}
	}
}

func (s *DocumentService) tenantLogger(ctx context.Context) *zap.Logger {
	if tc := tenancy.FromContext(ctx); tc != nil {
		return s.logger.With(zap.String("tenant_id", tc.TenantID.String()))
	}
	return s.logger
}

func buildLines(requests []LineRequest) ([]fiscal.DocumentLine, error) {
	lines := make([]fiscal.DocumentLine, 0, len(requests))
	for i, req := range requests {
		line, err := fiscal.NewDocumentLine(i+1, req.Description, req.Quantity, req.UnitPrice, req.DiscountPercent, req.TaxRatePercent)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func issueDateOrNow(requested time.Time) time.Time {
	if requested.IsZero() {
		return time.Now().UTC()
	}
	return requested
}

// Emit creates and emits a proforma, invoice or advance. Receipts are
// emitted through Settle and notes through CreateCreditNote or
// CreateDebitNote, so the document graph edge those types require is never
// skipped.
func (s *DocumentService) Emit(ctx context.Context, req EmitDocumentRequest) (*DocumentResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "fiscal_document", "emit")
	defer span.End()

	docType := fiscal.DocumentType(req.Type)
	if err := docType.Validate(); err != nil {
		return nil, err
	}
	switch docType {
	case fiscal.DocumentTypeReceipt:
		return nil, shared.NewDomainError("INVALID_DOCUMENT_TYPE",
			"Receipts are emitted by settling an invoice")
	case fiscal.DocumentTypeCreditNote, fiscal.DocumentTypeDebitNote:
		return nil, shared.NewDomainError("INVALID_DOCUMENT_TYPE",
			"Notes are emitted against an origin invoice")
	}

	lines, err := buildLines(req.Lines)
	if err != nil {
		return nil, err
	}
	doc, err := fiscal.NewFiscalDocument(docType, issueDateOrNow(req.IssueDate), req.DueDate,
		valueobject.Currency(req.Currency), req.WithholdingPercent, lines)
	if err != nil {
		return nil, err
	}
	if req.CustomerID != nil {
		doc.SetCustomer(*req.CustomerID)
	}

	if err := s.emit(ctx, doc, nil, nil); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrDocumentID, doc.ID.String(),
		telemetry.SpanAttrDocumentType, string(doc.Type),
		telemetry.SpanAttrSeries, string(doc.Series),
		telemetry.SpanAttrSequenceNumber, doc.SequenceNumber,
	)

	response := ToDocumentResponse(doc)
	return &response, nil
}

func (s *DocumentService) emit(ctx context.Context, doc *fiscal.FiscalDocument, relations []fiscal.DocumentRelation, sideEffects []fiscal.EmissionSideEffect) error {
	if err := s.docRepo.Emit(ctx, doc, relations, sideEffects); err != nil {
		s.tenantLogger(ctx).Error("Document emission failed",
			zap.String("type", string(doc.Type)),
			zap.Error(err))
		return err
	}
	s.tenantLogger(ctx).Info("Document emitted",
		zap.String("document_id", doc.ID.String()),
		zap.String("type", string(doc.Type)),
		zap.String("series", string(doc.Series)),
		zap.Int64("sequence_number", doc.SequenceNumber))
	if s.emitted != nil {
		s.emitted.Add(ctx, 1, metric.WithAttributes(
			attribute.String("type", string(doc.Type)),
			attribute.String("series", string(doc.Series)),
		))
	}

	aggs := []shared.AggregateRoot{doc}
	for _, se := range sideEffects {
		aggs = append(aggs, se.Document)
	}
	s.publishEvents(ctx, aggs...)
	return nil
}

// Get loads a document. Due-date expiry is evaluated lazily here, and the
// stored hash is re-verified on every read; a mismatch halts the series and
// raises the integrity alarm.
func (s *DocumentService) Get(ctx context.Context, id uuid.UUID) (*DocumentResponse, error) {
	doc, err := s.loadForRead(ctx, id)
	if err != nil {
		return nil, err
	}
	response := ToDocumentResponse(doc)
	return &response, nil
}

// loadForRead loads a document, verifies its stored hash and applies the
// lazy due-date expiry. Every operation that reads a document for business
// use goes through here, so a past-due document is never observed as
// emitted through one endpoint and expired through another.
func (s *DocumentService) loadForRead(ctx context.Context, id uuid.UUID) (*fiscal.FiscalDocument, error) {
	doc, err := s.docRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.verifyOnRead(ctx, doc); err != nil {
		return nil, err
	}
	if err := s.expireOnRead(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// expireOnRead persists the Emitted -> Expired transition when a loaded
// document's due date has passed without settlement
func (s *DocumentService) expireOnRead(ctx context.Context, doc *fiscal.FiscalDocument) error {
	change, expired := doc.ExpireIfDue(time.Now())
	if !expired {
		return nil
	}
	if err := s.docRepo.SaveStateChange(ctx, doc, change); err != nil {
		return err
	}
	s.tenantLogger(ctx).Info("Document expired on read",
		zap.String("document_id", doc.ID.String()),
		zap.String("series", string(doc.Series)))
	s.publishEvents(ctx, doc)
	return nil
}

// verifyOnRead re-checks a stored document's hash and halts its series on a
// mismatch. The document is served to no one once tampering is detected.
func (s *DocumentService) verifyOnRead(ctx context.Context, doc *fiscal.FiscalDocument) error {
	if !doc.IsEmitted() {
		return nil
	}
	if err := fiscal.VerifyDocumentHash(doc); err != nil {
		s.tenantLogger(ctx).Error("Stored document failed hash verification",
			zap.String("document_id", doc.ID.String()),
			zap.String("series", string(doc.Series)),
			zap.Int64("sequence_number", doc.SequenceNumber))
		if haltErr := s.seriesRepo.Halt(ctx, doc.Series); haltErr != nil {
			s.tenantLogger(ctx).Error("Failed to halt series after mismatch", zap.Error(haltErr))
		}
		return err
	}
	return nil
}

// GetByNumber loads a document by its chain position
func (s *DocumentService) GetByNumber(ctx context.Context, series fiscal.SeriesKey, number int64) (*DocumentResponse, error) {
	doc, err := s.docRepo.FindBySeriesAndNumber(ctx, series, number)
	if err != nil {
		return nil, err
	}
	if err := s.verifyOnRead(ctx, doc); err != nil {
		return nil, err
	}
	if err := s.expireOnRead(ctx, doc); err != nil {
		return nil, err
	}
	response := ToDocumentResponse(doc)
	return &response, nil
}

// List lists documents across series
func (s *DocumentService) List(ctx context.Context, filter shared.Filter) ([]DocumentResponse, int64, error) {
	docs, err := s.docRepo.ListAll(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.docRepo.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	responses := make([]DocumentResponse, len(docs))
	for i := range docs {
		if err := s.expireOnRead(ctx, &docs[i]); err != nil {
			return nil, 0, err
		}
		responses[i] = ToDocumentResponse(&docs[i])
	}
	return responses, total, nil
}

// ListBySeries lists a series' documents in sequence order
func (s *DocumentService) ListBySeries(ctx context.Context, series fiscal.SeriesKey, filter shared.Filter) ([]DocumentResponse, error) {
	docs, err := s.docRepo.ListBySeries(ctx, series, filter)
	if err != nil {
		return nil, err
	}
	responses := make([]DocumentResponse, len(docs))
	for i := range docs {
		if err := s.expireOnRead(ctx, &docs[i]); err != nil {
			return nil, err
		}
		responses[i] = ToDocumentResponse(&docs[i])
	}
	return responses, nil
}

// History returns a document's state change journal
func (s *DocumentService) History(ctx context.Context, id uuid.UUID) ([]StateChangeResponse, error) {
	if _, err := s.docRepo.FindByID(ctx, id); err != nil {
		return nil, err
	}
	changes, err := s.docRepo.ListStateChanges(ctx, id)
	if err != nil {
		return nil, err
	}
	responses := make([]StateChangeResponse, len(changes))
	for i := range changes {
		responses[i] = ToStateChangeResponse(&changes[i])
	}
	return responses, nil
}

// Graph returns the document's edges in both directions
func (s *DocumentService) Graph(ctx context.Context, id uuid.UUID) (*DocumentGraphResponse, error) {
	if _, err := s.docRepo.FindByID(ctx, id); err != nil {
		return nil, err
	}
	outgoing, err := s.relationRepo.ListFrom(ctx, id)
	if err != nil {
		return nil, err
	}
	incoming, err := s.relationRepo.ListTo(ctx, id)
	if err != nil {
		return nil, err
	}

	graph := &DocumentGraphResponse{
		DocumentID: id,
		Outgoing:   make([]RelationResponse, len(outgoing)),
		Incoming:   make([]RelationResponse, len(incoming)),
	}
	for i := range outgoing {
		graph.Outgoing[i] = ToRelationResponse(&outgoing[i])
	}
	for i := range incoming {
		graph.Incoming[i] = ToRelationResponse(&incoming[i])
	}
	return graph, nil
}

// Settle emits a receipt against an open invoice. The receipt, the invoice
// state change and the settles edge commit in one transaction: either the
// payment is fully recorded or nothing is.
func (s *DocumentService) Settle(ctx context.Context, invoiceID uuid.UUID, req SettleRequest) (*DocumentResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "fiscal_document", "settle")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrDocumentID, invoiceID.String(),
		telemetry.SpanAttrAmount, req.Amount.String(),
	)

	// An overdue unsettled invoice expires on this read and the settlement
	// is then rejected: expiry precedes settlement.
	invoice, err := s.loadForRead(ctx, invoiceID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	switch invoice.Type {
	case fiscal.DocumentTypeInvoice, fiscal.DocumentTypeDebitNote:
	default:
		return nil, shared.NewDomainError("INVALID_SETTLEMENT",
			"Only invoices and debit notes can be settled")
	}

	change, err := invoice.ApplySettlement(req.Amount)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	receiptLine, err := fiscal.NewDocumentLine(1,
		fmt.Sprintf("Payment against %s", FormatDocumentNumber(invoice.Series, invoice.SequenceNumber)),
		decimal.NewFromInt(1), req.Amount, decimal.Zero, decimal.Zero)
	if err != nil {
		return nil, err
	}
	receipt, err := fiscal.NewFiscalDocument(fiscal.DocumentTypeReceipt, issueDateOrNow(req.IssueDate), nil,
		invoice.Currency, decimal.Zero, []fiscal.DocumentLine{receiptLine})
	if err != nil {
		return nil, err
	}
	receipt.SetOrigin(invoice.ID)
	if invoice.CustomerID != nil {
		receipt.SetCustomer(*invoice.CustomerID)
	}

	relation, err := fiscal.NewDocumentRelation(receipt.ID, invoice.ID, fiscal.RelationSettles)
	if err != nil {
		return nil, err
	}

	sideEffects := []fiscal.EmissionSideEffect{{Document: invoice, Change: change}}
	if err := s.emit(ctx, receipt, []fiscal.DocumentRelation{relation}, sideEffects); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetAttribute(span, telemetry.SpanAttrDocumentState, string(invoice.State))
	response := ToDocumentResponse(receipt)
	return &response, nil
}

// ApplyAdvance consumes an advance against an open invoice: the advance's
// full amount settles the invoice and the advance itself moves to paid, so
// it can never prepay a second invoice. The two state changes and the
// advances edge commit in one transaction.
func (s *DocumentService) ApplyAdvance(ctx context.Context, invoiceID uuid.UUID, req ApplyAdvanceRequest) (*DocumentResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "fiscal_document", "apply_advance")
	defer span.End()
	telemetry.SetAttribute(span, telemetry.SpanAttrDocumentID, invoiceID.String())

	invoice, err := s.loadForRead(ctx, invoiceID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if invoice.Type != fiscal.DocumentTypeInvoice {
		return nil, shared.NewDomainError("INVALID_RELATION",
			"Advances can only be applied to invoices")
	}

	advance, err := s.loadForRead(ctx, req.AdvanceID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if advance.Type != fiscal.DocumentTypeAdvance {
		return nil, shared.NewDomainError("INVALID_RELATION",
			"Document is not an advance")
	}
	applied, err := s.relationRepo.ExistsFrom(ctx, advance.ID, fiscal.RelationAdvances)
	if err != nil {
		return nil, err
	}
	if applied {
		return nil, shared.NewDomainError("INVALID_RELATION",
			"Advance has already been applied")
	}
	amount := advance.Outstanding()
	if amount.GreaterThan(invoice.Outstanding()) {
		return nil, shared.NewDomainError("INVALID_SETTLEMENT",
			fmt.Sprintf("Advance of %s exceeds outstanding %s", amount.String(), invoice.Outstanding().String()))
	}

	invoiceChange, err := invoice.ApplySettlement(amount)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	// The advance is fully consumed
	advanceChange, err := advance.ApplySettlement(amount)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	relation, err := fiscal.NewDocumentRelation(advance.ID, invoice.ID, fiscal.RelationAdvances)
	if err != nil {
		return nil, err
	}
	effects := []fiscal.EmissionSideEffect{
		{Document: invoice, Change: invoiceChange},
		{Document: advance, Change: advanceChange},
	}
	if err := s.docRepo.Link(ctx, &relation, effects); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.tenantLogger(ctx).Info("Advance applied",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("advance_id", advance.ID.String()),
		zap.String("amount", amount.String()))
	s.publishEvents(ctx, invoice, advance)

	telemetry.SetAttribute(span, telemetry.SpanAttrDocumentState, string(invoice.State))
	response := ToDocumentResponse(invoice)
	return &response, nil
}

// Cancel cancels a document with a mandatory reason. The document row is
// kept and the cancellation is journaled into the tamper-evidence chain.
func (s *DocumentService) Cancel(ctx context.Context, id uuid.UUID, req CancelRequest) (*DocumentResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "fiscal_document", "cancel")
	defer span.End()
	telemetry.SetAttribute(span, telemetry.SpanAttrDocumentID, id.String())

	doc, err := s.loadForRead(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	change, err := doc.Cancel(req.Reason)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.docRepo.SaveStateChange(ctx, doc, change); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.tenantLogger(ctx).Info("Document cancelled",
		zap.String("document_id", doc.ID.String()),
		zap.String("series", string(doc.Series)),
		zap.String("reason", req.Reason))
	s.publishEvents(ctx, doc)

	response := ToDocumentResponse(doc)
	return &response, nil
}

// ConvertProforma converts a proforma into an invoice. The invoice copies
// the proforma's lines and commits in the same transaction that terminally
// marks the proforma, so a proforma can never convert twice.
func (s *DocumentService) ConvertProforma(ctx context.Context, proformaID uuid.UUID, req ConvertRequest) (*DocumentResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "fiscal_document", "convert_proforma")
	defer span.End()
	telemetry.SetAttribute(span, telemetry.SpanAttrDocumentID, proformaID.String())

	proforma, err := s.loadForRead(ctx, proformaID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	change, err := proforma.MarkConverted()
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	lines := make([]fiscal.DocumentLine, len(proforma.Lines))
	for i, line := range proforma.Lines {
		lines[i], err = fiscal.NewDocumentLine(line.Position, line.Description,
			line.Quantity, line.UnitPrice, line.DiscountPercent, line.TaxRatePercent)
		if err != nil {
			return nil, err
		}
	}
	invoice, err := fiscal.NewFiscalDocument(fiscal.DocumentTypeInvoice, issueDateOrNow(req.IssueDate), req.DueDate,
		proforma.Currency, decimal.Zero, lines)
	if err != nil {
		return nil, err
	}
	invoice.WithholdingAmount = proforma.WithholdingAmount
	invoice.NetTotal = proforma.NetTotal
	invoice.SetOrigin(proforma.ID)
	if proforma.CustomerID != nil {
		invoice.SetCustomer(*proforma.CustomerID)
	}

	relation, err := fiscal.NewDocumentRelation(invoice.ID, proforma.ID, fiscal.RelationConverts)
	if err != nil {
		return nil, err
	}

	sideEffects := []fiscal.EmissionSideEffect{{Document: proforma, Change: change}}
	if err := s.emit(ctx, invoice, []fiscal.DocumentRelation{relation}, sideEffects); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrSeries, string(invoice.Series),
		telemetry.SpanAttrSequenceNumber, invoice.SequenceNumber,
	)
	response := ToDocumentResponse(invoice)
	return &response, nil
}

// CreateCreditNote derives a credit note from an invoice
func (s *DocumentService) CreateCreditNote(ctx context.Context, originID uuid.UUID, req NoteRequest) (*DocumentResponse, error) {
	return s.deriveNote(ctx, fiscal.DocumentTypeCreditNote, originID, req)
}

// CreateDebitNote derives a debit note from an invoice
func (s *DocumentService) CreateDebitNote(ctx context.Context, originID uuid.UUID, req NoteRequest) (*DocumentResponse, error) {
	return s.deriveNote(ctx, fiscal.DocumentTypeDebitNote, originID, req)
}

// deriveNote emits a credit or debit note linked to its origin invoice via
// a derives_from edge. The note gets its own gap-free number in its own
// series.
func (s *DocumentService) deriveNote(ctx context.Context, noteType fiscal.DocumentType, originID uuid.UUID, req NoteRequest) (*DocumentResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "fiscal_document", "derive_note")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrDocumentID, originID.String(),
		telemetry.SpanAttrDocumentType, string(noteType),
	)

	origin, err := s.loadForRead(ctx, originID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if origin.Type != fiscal.DocumentTypeInvoice {
		return nil, shared.NewDomainError("INVALID_ORIGIN",
			"Notes can only be derived from invoices")
	}
	if err := origin.CanDeriveNote(); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	lines, err := buildLines(req.Lines)
	if err != nil {
		return nil, err
	}
	note, err := fiscal.NewFiscalDocument(noteType, issueDateOrNow(req.IssueDate), nil,
		origin.Currency, decimal.Zero, lines)
	if err != nil {
		return nil, err
	}
	note.SetOrigin(origin.ID)
	if origin.CustomerID != nil {
		note.SetCustomer(*origin.CustomerID)
	}

	relation, err := fiscal.NewDocumentRelation(note.ID, origin.ID, fiscal.RelationDerivesFrom)
	if err != nil {
		return nil, err
	}

	if err := s.emit(ctx, note, []fiscal.DocumentRelation{relation}, nil); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	response := ToDocumentResponse(note)
	return &response, nil
}

// ListSeries lists the tenant's series counters
func (s *DocumentService) ListSeries(ctx context.Context) ([]SeriesResponse, error) {
	counters, err := s.seriesRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	responses := make([]SeriesResponse, len(counters))
	for i := range counters {
		responses[i] = ToSeriesResponse(&counters[i])
	}
	return responses, nil
}

// GetSeries returns one series counter
func (s *DocumentService) GetSeries(ctx context.Context, series fiscal.SeriesKey) (*SeriesResponse, error) {
	counter, err := s.seriesRepo.Find(ctx, series)
	if err != nil {
		return nil, err
	}
	if counter == nil {
		return nil, shared.ErrNotFound
	}
	response := ToSeriesResponse(counter)
	return &response, nil
}

// VerifySeries audits a whole series' hash chain. A broken chain halts the
// series so no further documents are emitted on top of tampered history.
func (s *DocumentService) VerifySeries(ctx context.Context, series fiscal.SeriesKey) (*VerifySeriesResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "fiscal_document", "verify_series")
	defer span.End()
	telemetry.SetAttribute(span, telemetry.SpanAttrSeries, string(series))

	counter, err := s.seriesRepo.Find(ctx, series)
	if err != nil {
		return nil, err
	}
	if counter == nil {
		return nil, shared.ErrNotFound
	}

	filter := shared.Filter{Page: 1, PageSize: int(counter.LastNumber) + 1}
	docs, err := s.docRepo.ListBySeries(ctx, series, filter)
	if err != nil {
		return nil, err
	}

	result := &VerifySeriesResponse{
		Series:    string(series),
		Documents: int64(len(docs)),
		Intact:    true,
		Halted:    counter.Halted,
	}
	if brokenAt, err := fiscal.VerifyChain(docs); err != nil {
		result.Intact = false
		result.BrokenAt = brokenAt
		s.tenantLogger(ctx).Error("Series hash chain broken",
			zap.String("series", string(series)),
			zap.Int64("broken_at", brokenAt))
		telemetry.RecordError(span, err)
		if haltErr := s.seriesRepo.Halt(ctx, series); haltErr != nil {
			return nil, haltErr
		}
		result.Halted = true
	}
	return result, nil
}

// HaltSeries manually halts a series
func (s *DocumentService) HaltSeries(ctx context.Context, series fiscal.SeriesKey) error {
	if err := s.seriesRepo.Halt(ctx, series); err != nil {
		return err
	}
	s.tenantLogger(ctx).Warn("Series halted", zap.String("series", string(series)))
	return nil
}

// ReopenSeries clears a series' halt flag after a manual audit
func (s *DocumentService) ReopenSeries(ctx context.Context, series fiscal.SeriesKey) error {
	if err := s.seriesRepo.ClearHalt(ctx, series); err != nil {
		return err
	}
	s.tenantLogger(ctx).Warn("Series reopened", zap.String("series", string(series)))
	return nil
}
