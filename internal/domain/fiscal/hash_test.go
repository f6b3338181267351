package fiscal

import (
	"testing"
	"time"

	"github.com/facturo/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chainOf(t *testing.T, amounts ...float64) []FiscalDocument {
	t.Helper()
	docs := make([]FiscalDocument, 0, len(amounts))
	prev := GenesisHash
	for i, amount := range amounts {
		doc := emittedDocument(t, DocumentTypeInvoice, int64(i+1), prev, amount)
		prev = doc.Hash
		docs = append(docs, *doc)
	}
	return docs
}

func TestComputeHashDeterminism(t *testing.T) {
	issue := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	build := func() *FiscalDocument {
		doc, err := NewFiscalDocument(DocumentTypeInvoice, issue, nil, valueobject.EUR, decimal.Zero, testLines(t, 100, 200))
		require.NoError(t, err)
		doc.Series = "INV-2026"
		doc.SequenceNumber = 7
		return doc
	}

	a := ComputeHash(GenesisHash, build())
	b := ComputeHash(GenesisHash, build())
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	// a different previous hash yields a different hash
	c := ComputeHash("ff", build())
	assert.NotEqual(t, a, c)
}

func TestVerifyDocumentHash(t *testing.T) {
	t.Run("intact document verifies", func(t *testing.T) {
		doc := emittedDocument(t, DocumentTypeInvoice, 1, GenesisHash, 100)
		assert.NoError(t, VerifyDocumentHash(doc))
	})

	t.Run("tampered amount detected", func(t *testing.T) {
		doc := emittedDocument(t, DocumentTypeInvoice, 1, GenesisHash, 100)
		doc.NetTotal = decimal.NewFromInt(1)
		assert.Error(t, VerifyDocumentHash(doc))
	})

	t.Run("tampered line detected", func(t *testing.T) {
		doc := emittedDocument(t, DocumentTypeInvoice, 1, GenesisHash, 100)
		doc.Lines[0].UnitPrice = decimal.NewFromInt(1)
		assert.Error(t, VerifyDocumentHash(doc))
	})

	t.Run("state change does not break the document hash", func(t *testing.T) {
		doc := emittedDocument(t, DocumentTypeInvoice, 1, GenesisHash, 100)
		_, err := doc.Cancel("void")
		require.NoError(t, err)
		assert.NoError(t, VerifyDocumentHash(doc))
	})
}

func TestVerifyChain(t *testing.T) {
	t.Run("intact chain verifies", func(t *testing.T) {
		docs := chainOf(t, 100, 200, 300)
		broken, err := VerifyChain(docs)
		assert.NoError(t, err)
		assert.Zero(t, broken)
	})

	t.Run("empty chain verifies", func(t *testing.T) {
		_, err := VerifyChain(nil)
		assert.NoError(t, err)
	})

	t.Run("verification is idempotent", func(t *testing.T) {
		docs := chainOf(t, 100, 200)
		_, err := VerifyChain(docs)
		require.NoError(t, err)
		_, err = VerifyChain(docs)
		assert.NoError(t, err)
	})

	t.Run("tampering the middle document breaks the chain there", func(t *testing.T) {
		docs := chainOf(t, 100, 200, 300)
		docs[1].TaxableBase = decimal.NewFromInt(999)
		broken, err := VerifyChain(docs)
		assert.Error(t, err)
		assert.Equal(t, int64(2), broken)
	})

	t.Run("re-linked previous hash breaks the chain", func(t *testing.T) {
		docs := chainOf(t, 100, 200, 300)
		docs[2].PreviousHash = docs[0].Hash
		broken, err := VerifyChain(docs)
		assert.Error(t, err)
		assert.Equal(t, int64(3), broken)
	})

	t.Run("removed document breaks the chain", func(t *testing.T) {
		docs := chainOf(t, 100, 200, 300)
		pruned := []FiscalDocument{docs[0], docs[2]}
		broken, err := VerifyChain(pruned)
		assert.Error(t, err)
		assert.Equal(t, int64(3), broken)
	})
}

func TestBuildSeriesKey(t *testing.T) {
	march := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, SeriesKey("INV-2026"), BuildSeriesKey(DocumentTypeInvoice, march, ResetYearly))
	assert.Equal(t, SeriesKey("PRO-2026"), BuildSeriesKey(DocumentTypeProforma, march, ResetYearly))
	assert.Equal(t, SeriesKey("REC"), BuildSeriesKey(DocumentTypeReceipt, march, ResetNever))

	// a new fiscal year starts a fresh series
	nextYear := march.AddDate(1, 0, 0)
	assert.NotEqual(t,
		BuildSeriesKey(DocumentTypeInvoice, march, ResetYearly),
		BuildSeriesKey(DocumentTypeInvoice, nextYear, ResetYearly))
}

func TestDocumentTypeRules(t *testing.T) {
	assert.False(t, DocumentTypeProforma.IsFiscal())
	assert.True(t, DocumentTypeInvoice.IsFiscal())
	assert.True(t, DocumentTypeCreditNote.IsDerived())
	assert.True(t, DocumentTypeDebitNote.IsDerived())
	assert.False(t, DocumentTypeInvoice.IsDerived())
	assert.True(t, DocumentTypeReceipt.CanSettle())
	assert.False(t, DocumentTypeAdvance.CanSettle())
	assert.Error(t, DocumentType("memo").Validate())
}
