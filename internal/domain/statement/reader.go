// Package statement reads bank statement exports in the OFX 1.x SGML format.
//
// The reader is tolerant: header fields that are missing fall back to empty
// strings or zero, and transaction blocks without an id, posting date or
// amount are dropped instead of failing the whole file. Every dropped block
// is reported as a Warning so callers can explain what was skipped.
//
// Example usage:
//
//	stmt, err := statement.Read(file)
//	if err != nil {
//		var readErr *statement.ReadError
//		// only I/O or decoding failures end up here
//	}
//	for _, txn := range stmt.Transactions {
//		fmt.Println(txn.PostedDate, txn.Kind, txn.Amount)
//	}
package statement

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// SGML tags the reader understands.
const (
	tagBankID      = "BANKID"
	tagFID         = "FID"
	tagBranchID    = "BRANCHID"
	tagAccountID   = "ACCTID"
	tagLedgerBal   = "LEDGERBAL"
	tagBalanceAmt  = "BALAMT"
	tagTransaction = "STMTTRN"
	tagFITID       = "FITID"
	tagDatePosted  = "DTPOSTED"
	tagAmount      = "TRNAMT"
	tagMemo        = "MEMO"
	tagType        = "TRNTYPE"
)

// field is an optional scalar. The first occurrence wins.
type field struct {
	value string
	ok    bool
}

func (f *field) set(v string) {
	if !f.ok {
		f.value, f.ok = v, true
	}
}

func (f field) present() bool {
	return f.ok && f.value != ""
}

// block collects the sub-fields of one STMTTRN aggregate.
type block struct {
	index    int
	id       field
	posted   field
	amount   field
	memo     field
	declared field
}

func (b *block) collect(tok token) {
	switch tok.name {
	case tagFITID:
		b.id.set(tok.value)
	case tagDatePosted:
		b.posted.set(tok.value)
	case tagAmount:
		b.amount.set(tok.value)
	case tagMemo:
		b.memo.set(tok.value)
	case tagType:
		b.declared.set(tok.value)
	}
}

// validate is the single gate a block passes through before it becomes a
// Transaction. A non-nil drop warning means the block is discarded.
func (b *block) validate() (txn Transaction, drop *Warning, conflict *Warning) {
	warn := func(code WarningCode, detail string) *Warning {
		return &Warning{Block: b.index, ExternalID: b.id.value, Code: code, Detail: detail}
	}

	for _, req := range []struct {
		name string
		f    field
	}{{tagFITID, b.id}, {tagDatePosted, b.posted}, {tagAmount, b.amount}} {
		if !req.f.present() {
			return Transaction{}, warn(WarnMissingField, req.name+" is missing"), nil
		}
	}

	posted, ok := parsePostedDate(b.posted.value)
	if !ok {
		return Transaction{}, warn(WarnInvalidDate, fmt.Sprintf("cannot read date %q", b.posted.value)), nil
	}
	signed, ok := parseAmount(b.amount.value)
	if !ok {
		return Transaction{}, warn(WarnInvalidAmount, fmt.Sprintf("cannot read amount %q", b.amount.value)), nil
	}

	kind := Credit
	if signed.IsNegative() {
		kind = Debit
	}

	description := NoDescription
	if b.memo.present() {
		description = strings.TrimSpace(b.memo.value)
	}

	txn = Transaction{
		ExternalID:   b.id.value,
		PostedDate:   posted,
		Amount:       signed.Abs(),
		Kind:         kind,
		Description:  description,
		Status:       Pending,
		DeclaredType: strings.ToUpper(b.declared.value),
	}

	if declared, err := ParseKind(txn.DeclaredType); err == nil && declared != kind {
		conflict = warn(WarnKindConflict,
			fmt.Sprintf("TRNTYPE says %s but amount sign says %s", declared, kind))
	}
	return txn, nil, conflict
}

// reader is the state machine driven by the token stream.
type reader struct {
	institution field
	fid         field
	branch      field
	account     field
	balance     field

	inLedgerBal bool
	current     *block
	blocks      int

	txns     []Transaction
	warnings []Warning
}

func (r *reader) handle(tok token) {
	if tok.kind == tokenClose {
		switch tok.name {
		case tagLedgerBal:
			r.inLedgerBal = false
		case tagTransaction:
			if r.current != nil {
				r.finish(r.current)
				r.current = nil
			}
		}
		return
	}

	switch tok.name {
	case tagBankID:
		r.institution.set(tok.value)
	case tagFID:
		r.fid.set(tok.value)
	case tagBranchID:
		r.branch.set(tok.value)
	case tagAccountID:
		r.account.set(tok.value)
	case tagLedgerBal:
		r.inLedgerBal = true
	case tagBalanceAmt:
		if r.inLedgerBal {
			r.balance.set(tok.value)
		}
	case tagTransaction:
		if r.current != nil {
			r.unterminated(r.current)
		}
		r.current = &block{index: r.blocks}
		r.blocks++
	default:
		if r.current != nil {
			r.current.collect(tok)
		}
	}
}

func (r *reader) finish(b *block) {
	txn, drop, conflict := b.validate()
	if drop != nil {
		r.warnings = append(r.warnings, *drop)
		return
	}
	if conflict != nil {
		r.warnings = append(r.warnings, *conflict)
	}
	r.txns = append(r.txns, txn)
}

func (r *reader) unterminated(b *block) {
	r.warnings = append(r.warnings, Warning{
		Block:      b.index,
		ExternalID: b.id.value,
		Code:       WarnUnterminatedBlock,
		Detail:     "STMTTRN block has no closing tag",
	})
}

func (r *reader) statement() *Statement {
	if r.current != nil {
		r.unterminated(r.current)
		r.current = nil
	}

	institution := r.institution.value
	if !r.institution.present() {
		institution = r.fid.value
	}

	opening := decimal.Zero
	if r.balance.present() {
		if v, ok := parseAmount(r.balance.value); ok {
			opening = v
		}
	}

	txns := r.txns
	if txns == nil {
		txns = []Transaction{}
	}

	return &Statement{
		InstitutionID:  institution,
		BranchID:       r.branch.value,
		AccountID:      r.account.value,
		OpeningBalance: opening,
		ClosingBalance: DeriveClosingBalance(opening, txns),
		Transactions:   txns,
		Warnings:       r.warnings,
	}
}

// Parse converts statement text into a Statement. It never fails; see the
// package documentation for how malformed input degrades.
func Parse(raw string) *Statement {
	r := &reader{}
	tz := newTokenizer(raw)
	for {
		tok, ok := tz.next()
		if !ok {
			break
		}
		r.handle(tok)
	}
	return r.statement()
}

// parsePostedDate reads the first eight characters as YYYYMMDD. Time and
// timezone suffixes (e.g. "120000[-3:BRT]") are ignored.
func parsePostedDate(raw string) (string, bool) {
	if len(raw) < 8 {
		return "", false
	}
	d := raw[:8]
	for i := 0; i < len(d); i++ {
		if d[i] < '0' || d[i] > '9' {
			return "", false
		}
	}
	return d[0:4] + "-" + d[4:6] + "-" + d[6:8], true
}

// parseAmount treats a comma as the decimal separator, so both "-150,00"
// and "-150.00" are accepted.
func parseAmount(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(strings.ReplaceAll(raw, ",", "."))
	s = strings.TrimPrefix(s, "+")
	if s == "" {
		return decimal.Zero, false
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return v, true
}
