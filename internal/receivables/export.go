package receivables

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"
)

const displayDate = "02/01/2006"

// WriteCSV serialises the already filtered view: unpaid balances first,
// then settled ones, followed by the summary lines.
func WriteCSV(w io.Writer, v View) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := []string{"Status", "Party", "Tempo", "Stores", "Transactions", "Manual Charges", "Paid", "Outstanding", "Last Transaction", "Last Payment", "Due Month", "Rows"}
	if err := writer.Write(header); err != nil {
		return err
	}
	write := func(status string, balances []PartyBalance) error {
		for _, b := range balances {
			record := []string{
				status,
				b.Party,
				b.Tempo,
				strings.Join(b.Stores, " "),
				b.TotalFromTransactions.StringFixed(0),
				b.TotalFromManualCharges.StringFixed(0),
				b.TotalPaid.StringFixed(0),
				b.Outstanding.StringFixed(0),
				formatDisplay(b.LastTransactionDate),
				formatDisplay(b.LastPaymentDate),
				b.DueMonth,
				strconv.Itoa(len(b.Transactions) + len(b.ManualCharges)),
			}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
		return nil
	}
	if err := write("BELUM LUNAS", v.Unpaid); err != nil {
		return err
	}
	if err := write("LUNAS", v.Paid); err != nil {
		return err
	}

	summary := [][]string{
		{"Total Outstanding", v.Stats.TotalOutstanding.StringFixed(0)},
		{"Tempo 3", v.Stats.Tempo3.StringFixed(0)},
		{"Tempo 2", v.Stats.Tempo2.StringFixed(0)},
		{"Tempo 1", v.Stats.Tempo1.StringFixed(0)},
		{"Other", v.Stats.Other.StringFixed(0)},
		{"Paid Total", v.PaidTotal.StringFixed(0)},
	}
	for _, record := range summary {
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatDisplay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(displayDate)
}
