package email

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/shopspring/decimal"

	"github.com/example/clinic-pos/internal/domain/order"
)

var receiptTemplate = template.Must(template.New("receipt").Funcs(template.FuncMap{
	"money":   func(d decimal.Decimal) string { return d.StringFixed(2) },
	"pct":     func(d decimal.Decimal) string { return d.String() + "%" },
	"nonzero": func(d decimal.Decimal) bool { return !d.IsZero() },
}).Parse(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background: #0f766e; padding: 24px; border-radius: 10px 10px 0 0;">
		<h1 style="color: white; margin: 0; font-size: 22px;">Thank you for your visit</h1>
	</div>

	<div style="background: #fff; padding: 24px; border: 1px solid #eee; border-top: none; border-radius: 0 0 10px 10px;">
		<div style="background: #f8f9fa; padding: 15px; border-radius: 5px; margin-bottom: 20px;">
			<p style="margin: 0; font-size: 14px; color: #666;">Invoice</p>
			<p style="margin: 5px 0 0 0; font-size: 18px; font-weight: bold; font-family: monospace;">{{.Order.Number}}</p>
			<p style="margin: 5px 0 0 0; font-size: 13px; color: #666;">{{.Order.CreatedAt.Format "02 Jan 2006 15:04 MST"}}</p>
		</div>

		<table style="width: 100%; border-collapse: collapse;">
			<thead>
				<tr style="background: #f8f9fa;">
					<th style="padding: 10px; text-align: left;">Item</th>
					<th style="padding: 10px; text-align: center;">Qty</th>
					<th style="padding: 10px; text-align: right;">Price</th>
					<th style="padding: 10px; text-align: right;">GST</th>
					<th style="padding: 10px; text-align: right;">Amount</th>
				</tr>
			</thead>
			<tbody>
			{{- range .Order.Lines}}
				<tr>
					<td style="padding: 10px; border-bottom: 1px solid #eee;">{{.ProductName}}{{if nonzero .LineDiscount}}<br><small>discount {{pct .DiscountRate}} (-{{money .LineDiscount}})</small>{{end}}</td>
					<td style="padding: 10px; border-bottom: 1px solid #eee; text-align: center;">{{.Quantity}}</td>
					<td style="padding: 10px; border-bottom: 1px solid #eee; text-align: right;">{{money .UnitPrice}}</td>
					<td style="padding: 10px; border-bottom: 1px solid #eee; text-align: right;">{{pct .GSTRate}}</td>
					<td style="padding: 10px; border-bottom: 1px solid #eee; text-align: right;">{{money .LineTotal}}</td>
				</tr>
			{{- end}}
			</tbody>
		</table>

		<table style="width: 100%; margin-top: 16px;">
			<tr><td>Subtotal</td><td style="text-align: right;">{{.Currency}} {{money .Order.Subtotal}}</td></tr>
			<tr><td>Discount</td><td style="text-align: right;">-{{money .Order.Discount}}</td></tr>
			<tr><td>GST</td><td style="text-align: right;">{{money .Order.Tax}}</td></tr>
			<tr style="font-weight: bold;"><td>Total</td><td style="text-align: right;">{{.Currency}} {{money .Order.Total}}</td></tr>
			{{- range .Order.Payments}}
			<tr><td>Paid by {{.Method}}</td><td style="text-align: right;">{{money .Amount}}</td></tr>
			{{- end}}
			{{- if nonzero .Order.Change}}
			<tr><td>Change</td><td style="text-align: right;">{{money .Order.Change}}</td></tr>
			{{- end}}
			{{- if nonzero .Order.Shortfall}}
			<tr style="color: #b91c1c;"><td>Balance due</td><td style="text-align: right;">{{money .Order.Shortfall}}</td></tr>
			{{- end}}
		</table>

		{{- if gt .Order.LoyaltyPointsEarned 0}}
		<p style="margin-top: 20px;">You earned <strong>{{.Order.LoyaltyPointsEarned}}</strong> loyalty points with this purchase.</p>
		{{- end}}
	</div>
</body>
</html>`))

// BuildReceiptBody renders the HTML receipt for an order record.
func BuildReceiptBody(rec order.Record) (string, error) {
	var buf bytes.Buffer
	if err := receiptTemplate.Execute(&buf, rec); err != nil {
		return "", fmt.Errorf("render receipt %s: %w", rec.Order.Number, err)
	}
	return buf.String(), nil
}
