// Package receipt renders table and group statements as PDF.
package receipt

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/kiwari-pos/floorops/internal/order"
	"github.com/kiwari-pos/floorops/internal/service"
	"github.com/phpdave11/gofpdf"
	"github.com/shopspring/decimal"
)

const timeLayout = "2006-01-02 15:04"

// Render draws a statement: one block per order with its lines and bill,
// followed by the statement totals.
func Render(st service.Statement, venue string) (*bytes.Buffer, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(12, 12, 12)
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 14)
	if venue != "" {
		pdf.CellFormat(0, 8, venue, "", 1, "C", false, 0, "")
	}

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 6, title(st), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 5, fmt.Sprintf("Generated: %s", st.GeneratedAt.Format(timeLayout)), "", 1, "C", false, 0, "")
	if st.Vat.Enabled {
		pdf.CellFormat(0, 5, fmt.Sprintf("VAT %s%%", st.Vat.Rate.String()), "", 1, "C", false, 0, "")
	}

	for i, line := range st.Lines {
		o, bill := line.Order, line.Bill
		pdf.Ln(3)
		pdf.SetFont("Arial", "B", 10)
		header := fmt.Sprintf("Order %d - %s", i+1, o.Date.Format(timeLayout))
		if o.IsCancelled() {
			header += " (cancelled)"
		}
		pdf.CellFormat(0, 6, header, "B", 1, "L", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		for _, it := range o.Items {
			name := fmt.Sprintf("%dx %s", it.Quantity, it.Name)
			if note := describe(it.Customization); note != "" {
				name += " (" + note + ")"
			}
			amount := money(it.LineTotal())
			if it.Status == order.ItemCancelled {
				amount = "void"
			}
			pdf.CellFormat(140, 5, name, "", 0, "L", false, 0, "")
			pdf.CellFormat(0, 5, amount, "", 1, "R", false, 0, "")
		}
		row(pdf, "Subtotal", money(bill.Subtotal))
		if bill.Discount.IsPositive() {
			row(pdf, "Discount", "-"+money(bill.Discount))
		}
		if bill.Tax.IsPositive() {
			row(pdf, fmt.Sprintf("Tax (%s%%)", bill.TaxRate.String()), money(bill.Tax))
		}
		status := string(o.PaymentStatus)
		if bill.Frozen {
			status = "paid"
		}
		pdf.SetFont("Arial", "B", 9)
		row(pdf, "Total ("+status+")", money(bill.Total))
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(0, 6, "Totals", "B", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	row(pdf, "Paid", money(st.Summary.Paid))
	pdf.SetFont("Arial", "B", 11)
	row(pdf, "Outstanding", money(st.Summary.Outstanding))
	row(pdf, "Statement", money(st.Summary.Statement))

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Filename names the PDF download.
func Filename(st service.Statement) string {
	id := st.ID
	if st.Scope == service.ScopeGroup && st.GroupName != "" {
		id = st.GroupName
	}
	return fmt.Sprintf("statement_table%d_%s.pdf", st.TableNumber, sanitize(id))
}

func title(st service.Statement) string {
	if st.Scope == service.ScopeGroup {
		name := st.GroupName
		if name == "" {
			name = st.ID
		}
		return fmt.Sprintf("Table %d - %s", st.TableNumber, name)
	}
	return fmt.Sprintf("Table %d", st.TableNumber)
}

func describe(c *order.Customization) string {
	if c == nil {
		return ""
	}
	var parts []string
	if c.Portion != "" {
		parts = append(parts, c.Portion)
	}
	if c.SpiceLevel != "" {
		parts = append(parts, c.SpiceLevel)
	}
	for _, ing := range c.ExcludedIngredients {
		parts = append(parts, "no "+ing)
	}
	return strings.Join(parts, ", ")
}

func row(pdf *gofpdf.Fpdf, label, value string) {
	pdf.CellFormat(140, 5, label, "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 5, value, "", 1, "R", false, 0, "")
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

func sanitize(s string) string {
	s = unsafeChars.ReplaceAllString(strings.TrimSpace(s), "_")
	if s == "" {
		return "statement"
	}
	return s
}
