package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// ReceiptData describes the printable summary handed to a client at a
// relay-point counter after a hand-off code has been issued.
type ReceiptData struct {
	RepairID    string
	Code        string
	RelayName   string
	DeviceLabel string
	Problem     string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// ReceiptRenderer renders hand-off receipts into PDF bytes.
type ReceiptRenderer struct{}

// NewReceiptRenderer constructs a receipt renderer.
func NewReceiptRenderer() *ReceiptRenderer {
	return &ReceiptRenderer{}
}

// Render creates a single-page A6 receipt with the hand-off code printed
// large enough to be typed from paper at the counter.
func (r *ReceiptRenderer) Render(data ReceiptData) ([]byte, error) {
	if data.Code == "" {
		return nil, fmt.Errorf("receipt requires a hand-off code")
	}

	pdf := gofpdf.New("P", "mm", "A6", "")
	pdf.SetMargins(8, 10, 8)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 13)
	pdf.CellFormat(0, 8, "DEVICE HAND-OFF RECEIPT", "", 1, "C", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Arial", "", 9)
	writeRow := func(label, value string) {
		if value == "" {
			return
		}
		pdf.SetFont("Arial", "B", 9)
		pdf.CellFormat(28, 5, label, "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		pdf.MultiCell(0, 5, value, "", "L", false)
	}

	writeRow("Repair", data.RepairID)
	writeRow("Relay point", data.RelayName)
	writeRow("Device", data.DeviceLabel)
	writeRow("Problem", data.Problem)
	writeRow("Issued", data.IssuedAt.UTC().Format(time.RFC1123))
	writeRow("Valid until", data.ExpiresAt.UTC().Format(time.RFC1123))

	pdf.Ln(4)
	pdf.SetFont("Courier", "B", 26)
	pdf.CellFormat(0, 14, data.Code, "1", 1, "C", false, 0, "")

	pdf.Ln(2)
	pdf.SetFont("Arial", "I", 7)
	pdf.MultiCell(0, 4, "Present this code at the relay point. It can be used once and expires 24 hours after issuance.", "", "C", false)

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render receipt pdf: %w", err)
	}
	return buf.Bytes(), nil
}
