package fiscal

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/facturo/backend/internal/domain/shared"
)

// GenesisHash is the previous-hash value of the first document in a series
const GenesisHash = ""

const canonicalDateLayout = "2006-01-02"

// CanonicalBytes produces the deterministic serialization of a document's
// emission-frozen fields. Every field that is immutable after emission is
// included, so recomputing the hash from stored columns detects any
// retroactive edit, including edits to line items. The mutable state field
// is excluded; cancellations are chained through the state journal instead.
//
// Amounts are serialized at fixed scale so the hash survives a database
// round-trip: decimal columns come back with padded trailing zeros.
func CanonicalBytes(doc *FiscalDocument) []byte {
	var b strings.Builder

	write := func(s string) {
		b.WriteString(s)
		b.WriteByte('|')
	}

	write(string(doc.Type))
	write(string(doc.Series))
	write(strconv.FormatInt(doc.SequenceNumber, 10))
	write(doc.IssueDate.UTC().Format(canonicalDateLayout))
	if doc.DueDate != nil {
		write(doc.DueDate.UTC().Format(canonicalDateLayout))
	} else {
		write("")
	}
	write(doc.TaxableBase.StringFixed(4))
	write(doc.TaxAmount.StringFixed(4))
	write(doc.WithholdingAmount.StringFixed(4))
	write(doc.NetTotal.StringFixed(4))
	write(string(doc.Currency))
	if doc.OriginDocumentID != nil {
		write(doc.OriginDocumentID.String())
	} else {
		write("")
	}

	for _, line := range doc.Lines {
		write(strings.Join([]string{
			strconv.Itoa(line.Position),
			line.Description,
			line.Quantity.StringFixed(4),
			line.UnitPrice.StringFixed(4),
			line.DiscountPercent.StringFixed(2),
			line.TaxRatePercent.StringFixed(2),
			line.Subtotal.StringFixed(4),
		}, "~"))
	}

	return []byte(b.String())
}

// ComputeHash commits a document to its series chain position:
// hash = SHA-256(previousHash || canonicalBytes(doc)).
func ComputeHash(previousHash string, doc *FiscalDocument) string {
	h := sha256.New()
	h.Write([]byte(previousHash))
	h.Write(CanonicalBytes(doc))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyDocumentHash recomputes a stored document's hash from its fields
// and stored previous-hash and checks it against the stored hash.
func VerifyDocumentHash(doc *FiscalDocument) error {
	if ComputeHash(doc.PreviousHash, doc) != doc.Hash {
		return shared.ErrHashChainMismatch
	}
	return nil
}

// VerifyChain walks a series' documents in sequence order and verifies that
// every document's hash commits to its predecessor's. Returns the sequence
// number of the first broken link, or 0 when the chain is intact.
func VerifyChain(docs []FiscalDocument) (int64, error) {
	previous := GenesisHash
	for i := range docs {
		doc := &docs[i]
		if doc.PreviousHash != previous {
			return doc.SequenceNumber, shared.ErrHashChainMismatch
		}
		if ComputeHash(previous, doc) != doc.Hash {
			return doc.SequenceNumber, shared.ErrHashChainMismatch
		}
		previous = doc.Hash
	}
	return 0, nil
}
