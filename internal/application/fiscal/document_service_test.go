package fiscal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/facturo/backend/internal/domain/fiscal"
	"github.com/facturo/backend/internal/domain/shared"
	"github.com/facturo/backend/internal/infrastructure/persistence"
	"github.com/facturo/backend/internal/infrastructure/tenancy"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupService(t *testing.T) (context.Context, *DocumentService, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, persistence.AutoMigrateTenant(db))

	ctx := tenancy.NewContext(context.Background(), &tenancy.TenancyContext{
		TenantID: uuid.New(),
		DB:       db,
	})
	svc := NewDocumentService(
		persistence.NewGormDocumentRepository(fiscal.ResetNever),
		persistence.NewGormRelationRepository(),
		persistence.NewGormSeriesRepository(),
		nil,
		nil,
	)
	return ctx, svc, db
}

func invoiceRequest(lines ...LineRequest) EmitDocumentRequest {
	if len(lines) == 0 {
		lines = []LineRequest{{
			Description:    "Consulting",
			Quantity:       decimal.NewFromInt(2),
			UnitPrice:      decimal.NewFromInt(50),
			TaxRatePercent: decimal.NewFromInt(19),
		}}
	}
	return EmitDocumentRequest{
		Type:  string(fiscal.DocumentTypeInvoice),
		Lines: lines,
	}
}

func emitInvoice(t *testing.T, ctx context.Context, svc *DocumentService) *DocumentResponse {
	t.Helper()
	resp, err := svc.Emit(ctx, invoiceRequest())
	require.NoError(t, err)
	return resp
}

func domainCode(t *testing.T, err error) string {
	t.Helper()
	var derr *shared.DomainError
	require.True(t, errors.As(err, &derr), "expected a domain error, got %v", err)
	return derr.Code
}

func TestEmitDocument(t *testing.T) {
	ctx, svc, _ := setupService(t)

	t.Run("emits an invoice with totals and chain position", func(t *testing.T) {
		resp := emitInvoice(t, ctx, svc)
		assert.Equal(t, "INV", resp.Series)
		assert.Equal(t, int64(1), resp.SequenceNumber)
		assert.Equal(t, "INV-000001", resp.Number)
		assert.Equal(t, "emitted", resp.State)
		assert.True(t, resp.TaxableBase.Equal(decimal.NewFromInt(100)))
		assert.True(t, resp.NetTotal.Equal(decimal.NewFromInt(119)))
		assert.NotEmpty(t, resp.Hash)
	})

	t.Run("numbers are sequential per series", func(t *testing.T) {
		second := emitInvoice(t, ctx, svc)
		assert.Equal(t, int64(2), second.SequenceNumber)

		proforma, err := svc.Emit(ctx, EmitDocumentRequest{
			Type:  string(fiscal.DocumentTypeProforma),
			Lines: invoiceRequest().Lines,
		})
		require.NoError(t, err)
		assert.Equal(t, "PRO", proforma.Series)
		assert.Equal(t, int64(1), proforma.SequenceNumber)
	})

	t.Run("rejects receipt and note types", func(t *testing.T) {
		for _, docType := range []fiscal.DocumentType{
			fiscal.DocumentTypeReceipt, fiscal.DocumentTypeCreditNote, fiscal.DocumentTypeDebitNote,
		} {
			req := invoiceRequest()
			req.Type = string(docType)
			_, err := svc.Emit(ctx, req)
			assert.Equal(t, "INVALID_DOCUMENT_TYPE", domainCode(t, err))
		}
	})

	t.Run("rejects unknown type and bad lines", func(t *testing.T) {
		req := invoiceRequest()
		req.Type = "memo"
		_, err := svc.Emit(ctx, req)
		assert.Equal(t, "INVALID_DOCUMENT_TYPE", domainCode(t, err))

		req = invoiceRequest(LineRequest{Description: "", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(10)})
		_, err = svc.Emit(ctx, req)
		assert.Equal(t, "INVALID_LINE", domainCode(t, err))
	})
}

func TestSettleLifecycle(t *testing.T) {
	ctx, svc, _ := setupService(t)
	invoice := emitInvoice(t, ctx, svc) // net 119

	t.Run("partial settlement emits a receipt and advances state", func(t *testing.T) {
		receipt, err := svc.Settle(ctx, invoice.ID, SettleRequest{Amount: decimal.NewFromInt(19)})
		require.NoError(t, err)
		assert.Equal(t, "REC", receipt.Series)
		assert.Equal(t, int64(1), receipt.SequenceNumber)
		require.NotNil(t, receipt.OriginDocumentID)
		assert.Equal(t, invoice.ID, *receipt.OriginDocumentID)

		updated, err := svc.Get(ctx, invoice.ID)
		require.NoError(t, err)
		assert.Equal(t, "partially_paid", updated.State)
		assert.True(t, updated.Outstanding.Equal(decimal.NewFromInt(100)))
	})

	t.Run("full settlement moves the invoice to paid", func(t *testing.T) {
		_, err := svc.Settle(ctx, invoice.ID, SettleRequest{Amount: decimal.NewFromInt(100)})
		require.NoError(t, err)

		updated, err := svc.Get(ctx, invoice.ID)
		require.NoError(t, err)
		assert.Equal(t, "paid", updated.State)
		assert.True(t, updated.Outstanding.IsZero())
	})

	t.Run("over-settlement is rejected", func(t *testing.T) {
		_, err := svc.Settle(ctx, invoice.ID, SettleRequest{Amount: decimal.NewFromInt(1)})
		require.Error(t, err)
	})

	t.Run("receipts link to the invoice in the graph", func(t *testing.T) {
		graph, err := svc.Graph(ctx, invoice.ID)
		require.NoError(t, err)
		assert.Empty(t, graph.Outgoing)
		require.Len(t, graph.Incoming, 2)
		assert.Equal(t, "settles", graph.Incoming[0].Kind)
	})

	t.Run("only invoices and debit notes are settleable", func(t *testing.T) {
		proforma, err := svc.Emit(ctx, EmitDocumentRequest{
			Type:  string(fiscal.DocumentTypeProforma),
			Lines: invoiceRequest().Lines,
		})
		require.NoError(t, err)
		_, err = svc.Settle(ctx, proforma.ID, SettleRequest{Amount: decimal.NewFromInt(10)})
		assert.Equal(t, "INVALID_SETTLEMENT", domainCode(t, err))
	})
}

func TestCancelDocument(t *testing.T) {
	ctx, svc, _ := setupService(t)
	invoice := emitInvoice(t, ctx, svc)

	t.Run("cancellation requires a reason", func(t *testing.T) {
		_, err := svc.Cancel(ctx, invoice.ID, CancelRequest{Reason: "  "})
		assert.Equal(t, "INVALID_CANCEL_REASON", domainCode(t, err))
	})

	t.Run("cancellation keeps the row and journals the change", func(t *testing.T) {
		cancelled, err := svc.Cancel(ctx, invoice.ID, CancelRequest{Reason: "customer withdrew order"})
		require.NoError(t, err)
		assert.Equal(t, "cancelled", cancelled.State)
		assert.Equal(t, invoice.Hash, cancelled.Hash, "emission hash is frozen")

		history, err := svc.History(ctx, invoice.ID)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, "emitted", history[0].FromState)
		assert.Equal(t, "cancelled", history[0].ToState)
		assert.Equal(t, invoice.Hash, history[0].PreviousHash, "journal chains from the emission hash")
	})

	t.Run("cancelled is terminal", func(t *testing.T) {
		_, err := svc.Cancel(ctx, invoice.ID, CancelRequest{Reason: "again"})
		assert.Equal(t, shared.CodeInvalidTransition, domainCode(t, err))

		_, err = svc.Settle(ctx, invoice.ID, SettleRequest{Amount: decimal.NewFromInt(10)})
		require.Error(t, err)
	})
}

func TestConvertProforma(t *testing.T) {
	ctx, svc, _ := setupService(t)

	proforma, err := svc.Emit(ctx, EmitDocumentRequest{
		Type:  string(fiscal.DocumentTypeProforma),
		Lines: invoiceRequest().Lines,
	})
	require.NoError(t, err)

	t.Run("conversion emits an invoice and terminally marks the proforma", func(t *testing.T) {
		invoice, err := svc.ConvertProforma(ctx, proforma.ID, ConvertRequest{})
		require.NoError(t, err)
		assert.Equal(t, "INV", invoice.Series)
		assert.True(t, invoice.NetTotal.Equal(proforma.NetTotal))
		require.NotNil(t, invoice.OriginDocumentID)
		assert.Equal(t, proforma.ID, *invoice.OriginDocumentID)

		stored, err := svc.Get(ctx, proforma.ID)
		require.NoError(t, err)
		assert.Equal(t, "cancelled", stored.State)
		assert.Equal(t, fiscal.CancelReasonConverted, stored.CancelReason)

		graph, err := svc.Graph(ctx, invoice.ID)
		require.NoError(t, err)
		require.Len(t, graph.Outgoing, 1)
		assert.Equal(t, "converts", graph.Outgoing[0].Kind)
	})

	t.Run("a proforma converts at most once", func(t *testing.T) {
		_, err := svc.ConvertProforma(ctx, proforma.ID, ConvertRequest{})
		assert.Equal(t, shared.CodeInvalidTransition, domainCode(t, err))
	})

	t.Run("only proformas convert", func(t *testing.T) {
		invoice := emitInvoice(t, ctx, svc)
		_, err := svc.ConvertProforma(ctx, invoice.ID, ConvertRequest{})
		assert.Equal(t, shared.CodeInvalidTransition, domainCode(t, err))
	})
}

func TestDeriveNotes(t *testing.T) {
	ctx, svc, _ := setupService(t)
	invoice := emitInvoice(t, ctx, svc)

	noteLines := []LineRequest{{
		Description:    "Price correction",
		Quantity:       decimal.NewFromInt(1),
		UnitPrice:      decimal.NewFromInt(20),
		TaxRatePercent: decimal.NewFromInt(19),
	}}

	t.Run("credit note derives from the invoice", func(t *testing.T) {
		note, err := svc.CreateCreditNote(ctx, invoice.ID, NoteRequest{Lines: noteLines})
		require.NoError(t, err)
		assert.Equal(t, "CRN", note.Series)
		assert.Equal(t, int64(1), note.SequenceNumber)

		graph, err := svc.Graph(ctx, note.ID)
		require.NoError(t, err)
		require.Len(t, graph.Outgoing, 1)
		assert.Equal(t, "derives_from", graph.Outgoing[0].Kind)
		assert.Equal(t, invoice.ID, graph.Outgoing[0].ToDocumentID)
	})

	t.Run("debit note gets its own series", func(t *testing.T) {
		note, err := svc.CreateDebitNote(ctx, invoice.ID, NoteRequest{Lines: noteLines})
		require.NoError(t, err)
		assert.Equal(t, "DBN", note.Series)
	})

	t.Run("notes only derive from invoices", func(t *testing.T) {
		proforma, err := svc.Emit(ctx, EmitDocumentRequest{
			Type:  string(fiscal.DocumentTypeProforma),
			Lines: invoiceRequest().Lines,
		})
		require.NoError(t, err)
		_, err = svc.CreateCreditNote(ctx, proforma.ID, NoteRequest{Lines: noteLines})
		assert.Equal(t, "INVALID_ORIGIN", domainCode(t, err))
	})

	t.Run("no notes from cancelled documents", func(t *testing.T) {
		other := emitInvoice(t, ctx, svc)
		_, err := svc.Cancel(ctx, other.ID, CancelRequest{Reason: "void"})
		require.NoError(t, err)
		_, err = svc.CreateCreditNote(ctx, other.ID, NoteRequest{Lines: noteLines})
		assert.Equal(t, shared.CodeInvalidTransition, domainCode(t, err))
	})
}

// emitOverdueInvoice emits an invoice whose due date has already passed at
// emission time
func emitOverdueInvoice(t *testing.T, ctx context.Context, svc *DocumentService) *DocumentResponse {
	t.Helper()
	due := time.Now().Add(-24 * time.Hour)
	req := invoiceRequest()
	req.IssueDate = time.Now().Add(-48 * time.Hour)
	req.DueDate = &due
	invoice, err := svc.Emit(ctx, req)
	require.NoError(t, err)
	return invoice
}

func TestLazyExpiry(t *testing.T) {
	ctx, svc, _ := setupService(t)
	invoice := emitOverdueInvoice(t, ctx, svc)

	resp, err := svc.Get(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, "expired", resp.State)

	history, err := svc.History(ctx, invoice.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "expired", history[0].ToState)
}

func TestExpiryAppliesOnEveryReadPath(t *testing.T) {
	t.Run("lookup by number", func(t *testing.T) {
		ctx, svc, _ := setupService(t)
		invoice := emitOverdueInvoice(t, ctx, svc)

		resp, err := svc.GetByNumber(ctx, "INV", invoice.SequenceNumber)
		require.NoError(t, err)
		assert.Equal(t, "expired", resp.State)
	})

	t.Run("series listing", func(t *testing.T) {
		ctx, svc, _ := setupService(t)
		emitOverdueInvoice(t, ctx, svc)

		docs, err := svc.ListBySeries(ctx, "INV", shared.Filter{})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "expired", docs[0].State)
	})

	t.Run("cross-series listing", func(t *testing.T) {
		ctx, svc, _ := setupService(t)
		emitOverdueInvoice(t, ctx, svc)

		docs, _, err := svc.List(ctx, shared.DefaultFilter())
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "expired", docs[0].State)
	})

	t.Run("settlement of an overdue invoice is refused", func(t *testing.T) {
		ctx, svc, _ := setupService(t)
		invoice := emitOverdueInvoice(t, ctx, svc)

		// Expiry wins: the invoice expires on the read and the payment is
		// rejected instead of reviving it
		_, err := svc.Settle(ctx, invoice.ID, SettleRequest{Amount: decimal.NewFromInt(10)})
		assert.Equal(t, shared.CodeInvalidTransition, domainCode(t, err))

		resp, err := svc.Get(ctx, invoice.ID)
		require.NoError(t, err)
		assert.Equal(t, "expired", resp.State)
	})
}

func advanceRequest(amount int64) EmitDocumentRequest {
	return EmitDocumentRequest{
		Type: string(fiscal.DocumentTypeAdvance),
		Lines: []LineRequest{{
			Description: "Prepayment",
			Quantity:    decimal.NewFromInt(1),
			UnitPrice:   decimal.NewFromInt(amount),
		}},
	}
}

func TestApplyAdvance(t *testing.T) {
	ctx, svc, _ := setupService(t)
	invoice := emitInvoice(t, ctx, svc) // net 119

	advance, err := svc.Emit(ctx, advanceRequest(50))
	require.NoError(t, err)
	assert.Equal(t, "ADV", advance.Series)

	t.Run("advance settles the invoice and is fully consumed", func(t *testing.T) {
		resp, err := svc.ApplyAdvance(ctx, invoice.ID, ApplyAdvanceRequest{AdvanceID: advance.ID})
		require.NoError(t, err)
		assert.Equal(t, "partially_paid", resp.State)
		assert.True(t, resp.Outstanding.Equal(decimal.NewFromInt(69)))

		spent, err := svc.Get(ctx, advance.ID)
		require.NoError(t, err)
		assert.Equal(t, "paid", spent.State)
		assert.True(t, spent.Outstanding.IsZero())

		graph, err := svc.Graph(ctx, invoice.ID)
		require.NoError(t, err)
		require.Len(t, graph.Incoming, 1)
		assert.Equal(t, "advances", graph.Incoming[0].Kind)
		assert.Equal(t, advance.ID, graph.Incoming[0].FromDocumentID)
	})

	t.Run("an advance applies at most once", func(t *testing.T) {
		second := emitInvoice(t, ctx, svc)
		_, err := svc.ApplyAdvance(ctx, second.ID, ApplyAdvanceRequest{AdvanceID: advance.ID})
		assert.Equal(t, "INVALID_RELATION", domainCode(t, err))
	})

	t.Run("an advance larger than the outstanding amount is rejected", func(t *testing.T) {
		oversized, err := svc.Emit(ctx, advanceRequest(200))
		require.NoError(t, err)
		_, err = svc.ApplyAdvance(ctx, invoice.ID, ApplyAdvanceRequest{AdvanceID: oversized.ID})
		assert.Equal(t, "INVALID_SETTLEMENT", domainCode(t, err))
	})

	t.Run("only advances can be applied", func(t *testing.T) {
		other := emitInvoice(t, ctx, svc)
		_, err := svc.ApplyAdvance(ctx, invoice.ID, ApplyAdvanceRequest{AdvanceID: other.ID})
		assert.Equal(t, "INVALID_RELATION", domainCode(t, err))
	})

	t.Run("advances only apply to invoices", func(t *testing.T) {
		proforma, err := svc.Emit(ctx, EmitDocumentRequest{
			Type:  string(fiscal.DocumentTypeProforma),
			Lines: invoiceRequest().Lines,
		})
		require.NoError(t, err)
		fresh, err := svc.Emit(ctx, advanceRequest(10))
		require.NoError(t, err)
		_, err = svc.ApplyAdvance(ctx, proforma.ID, ApplyAdvanceRequest{AdvanceID: fresh.ID})
		assert.Equal(t, "INVALID_RELATION", domainCode(t, err))
	})
}

func TestVerifySeriesAudit(t *testing.T) {
	ctx, svc, db := setupService(t)
	emitInvoice(t, ctx, svc)
	second := emitInvoice(t, ctx, svc)
	emitInvoice(t, ctx, svc)

	t.Run("intact chain verifies clean", func(t *testing.T) {
		result, err := svc.VerifySeries(ctx, "INV")
		require.NoError(t, err)
		assert.True(t, result.Intact)
		assert.Equal(t, int64(3), result.Documents)
		assert.False(t, result.Halted)
	})

	t.Run("tampering breaks the audit and halts the series", func(t *testing.T) {
		require.NoError(t, db.Exec(
			"UPDATE fiscal_documents SET net_total = net_total + 1 WHERE id = ?", second.ID).Error)

		result, err := svc.VerifySeries(ctx, "INV")
		require.NoError(t, err)
		assert.False(t, result.Intact)
		assert.Equal(t, int64(2), result.BrokenAt)
		assert.True(t, result.Halted)

		// Halted series refuses further emissions
		_, err = svc.Emit(ctx, invoiceRequest())
		assert.Equal(t, shared.CodeSeriesHalted, domainCode(t, err))
	})

	t.Run("tampered document is refused on read", func(t *testing.T) {
		_, err := svc.Get(ctx, second.ID)
		assert.ErrorIs(t, err, shared.ErrHashChainMismatch)
	})

	t.Run("reopen clears the halt", func(t *testing.T) {
		// Restore the tampered row before reopening
		require.NoError(t, db.Exec(
			"UPDATE fiscal_documents SET net_total = net_total - 1 WHERE id = ?", second.ID).Error)
		require.NoError(t, svc.ReopenSeries(ctx, "INV"))

		resp, err := svc.Emit(ctx, invoiceRequest())
		require.NoError(t, err)
		assert.Equal(t, int64(4), resp.SequenceNumber)
	})

	t.Run("verify unknown series yields not found", func(t *testing.T) {
		_, err := svc.VerifySeries(ctx, "ADV")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestSeriesAdministration(t *testing.T) {
	ctx, svc, _ := setupService(t)
	emitInvoice(t, ctx, svc)

	t.Run("list and get series counters", func(t *testing.T) {
		series, err := svc.ListSeries(ctx)
		require.NoError(t, err)
		require.Len(t, series, 1)
		assert.Equal(t, "INV", series[0].Series)
		assert.Equal(t, int64(1), series[0].LastNumber)

		counter, err := svc.GetSeries(ctx, "INV")
		require.NoError(t, err)
		assert.False(t, counter.Halted)
	})

	t.Run("manual halt blocks emission", func(t *testing.T) {
		require.NoError(t, svc.HaltSeries(ctx, "INV"))
		_, err := svc.Emit(ctx, invoiceRequest())
		assert.Equal(t, shared.CodeSeriesHalted, domainCode(t, err))

		require.NoError(t, svc.ReopenSeries(ctx, "INV"))
		_, err = svc.Emit(ctx, invoiceRequest())
		assert.NoError(t, err)
	})
}

func TestListDocuments(t *testing.T) {
	ctx, svc, _ := setupService(t)
	for i := 0; i < 3; i++ {
		emitInvoice(t, ctx, svc)
	}

	responses, total, err := svc.List(ctx, shared.DefaultFilter())
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, responses, 3)

	bySeries, err := svc.ListBySeries(ctx, "INV", shared.Filter{})
	require.NoError(t, err)
	require.Len(t, bySeries, 3)
	assert.Equal(t, int64(1), bySeries[0].SequenceNumber)

	byNumber, err := svc.GetByNumber(ctx, "INV", 2)
	require.NoError(t, err)
	assert.Equal(t, bySeries[1].ID, byNumber.ID)
}
