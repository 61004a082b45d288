package reconciliation

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// isoMillis matches the millisecond ISO-8601 timestamps of earlier report files.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

const csvHeader = "transfer_id,quote_id,chain,token,funded_amount_usd,expected_etb,payout_status,ledger_balanced,issue_code,detected_at"

// Row is one line of the CSV report.
type Row struct {
	TransferID     string
	QuoteID        string
	Chain          string
	Token          string
	FundedUSD      decimal.NullDecimal
	ExpectedETB    decimal.NullDecimal
	PayoutStatus   string
	LedgerBalanced bool
	IssueCode      IssueCode
	DetectedAt     time.Time
}

// RowOf builds the report row of issue found on s.
func RowOf(s *Snapshot, issue Issue) Row {
	r := Row{
		TransferID:     s.TransferID,
		QuoteID:        s.QuoteID,
		Chain:          string(s.Chain),
		Token:          string(s.Token),
		FundedUSD:      s.FundedUSD,
		ExpectedETB:    s.ExpectedETB,
		LedgerBalanced: s.Ledger.Balanced(),
		IssueCode:      issue.Code,
		DetectedAt:     issue.DetectedAt,
	}
	if s.PayoutStatus != nil {
		r.PayoutStatus = string(*s.PayoutStatus)
	}
	return r
}

// BuildCSV renders rows under the report header. Lines are joined with "\n"
// and there is no trailing newline.
func BuildCSV(rows []Row) string {
	var b strings.Builder
	b.WriteString(csvHeader)
	for _, r := range rows {
		fields := []string{
			r.TransferID,
			r.QuoteID,
			r.Chain,
			r.Token,
			fixed2(r.FundedUSD),
			fixed2(r.ExpectedETB),
			r.PayoutStatus,
			boolString(r.LedgerBalanced),
			string(r.IssueCode),
			r.DetectedAt.UTC().Format(isoMillis),
		}
		b.WriteByte('\n')
		for i, f := range fields {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(escape(f))
		}
	}
	return b.String()
}

func escape(v string) string {
	if strings.ContainsAny(v, ",\"\n") {
		return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
	}
	return v
}

func fixed2(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.StringFixed(2)
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
