package notify

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/greenlanehq/greenlane/internal/models"
)

// OrderInfo is the pre-formatted view of an order that templates
// render from. Monetary fields are already 2-decimal strings; optional
// fields are empty when absent.
type OrderInfo struct {
	OrderNumber   string
	CustomerName  string
	Items         []ItemInfo
	Subtotal      string
	Tax           string
	DeliveryFee   string
	Total         string
	PaymentMethod string
	Address       string
	Instructions  string
	OrderDate     string
	UpdateType    string
	UpdateMessage string
}

type ItemInfo struct {
	Name       string
	Quantity   int
	UnitPrice  string
	LineTotal  string
	Weight     string
	StrainType string
	THC        string
	CBD        string
}

// BuildOrderInfo formats an order for rendering. Pure.
func BuildOrderInfo(order *models.Order) *OrderInfo {
	info := &OrderInfo{
		OrderNumber:   order.OrderNumber,
		CustomerName:  order.CustomerName,
		Subtotal:      money(order.Subtotal),
		Tax:           money(order.Tax),
		DeliveryFee:   money(order.DeliveryFee),
		Total:         money(order.Total),
		PaymentMethod: string(order.PaymentMethod),
		Address:       formatAddress(order.Delivery),
		Instructions:  order.Delivery.Instructions,
		OrderDate:     order.CreatedAt.Format("January 2, 2006"),
	}

	for _, item := range order.Items {
		itemInfo := ItemInfo{
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  money(item.UnitPrice),
			LineTotal:  money(item.UnitPrice * float64(item.Quantity)),
			Weight:     item.Weight,
			StrainType: item.StrainType,
		}
		if item.THCPercent != nil {
			itemInfo.THC = fmt.Sprintf("%.1f%%", *item.THCPercent)
		}
		if item.CBDPercent != nil {
			itemInfo.CBD = fmt.Sprintf("%.1f%%", *item.CBDPercent)
		}
		info.Items = append(info.Items, itemInfo)
	}

	return info
}

// Renderer renders notification bodies from built-in templates.
type Renderer struct {
	templates *template.Template
}

func NewRenderer() (*Renderer, error) {
	tmpl := template.New("notifications")

	for name, body := range map[string]string{
		string(models.KindOrderConfirmation): orderConfirmationText,
		string(models.KindAdminAlert):        adminAlertText,
		string(models.KindStatusUpdate):      statusUpdateText,
	} {
		if _, err := tmpl.New(name).Parse(body); err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
	}

	return &Renderer{templates: tmpl}, nil
}

// Render produces the subject and body for one notification kind.
// No I/O.
func (r *Renderer) Render(kind models.NotificationKind, info *OrderInfo) (subject, body string, err error) {
	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, string(kind), info); err != nil {
		return "", "", fmt.Errorf("failed to render %s: %w", kind, err)
	}

	switch kind {
	case models.KindOrderConfirmation:
		subject = fmt.Sprintf("Order Confirmed - %s", info.OrderNumber)
	case models.KindAdminAlert:
		subject = fmt.Sprintf("New Order %s - %s", info.OrderNumber, info.Total)
	case models.KindStatusUpdate:
		subject = fmt.Sprintf("Order %s - %s", info.OrderNumber, info.UpdateType)
	default:
		return "", "", fmt.Errorf("unknown notification kind: %s", kind)
	}

	return subject, buf.String(), nil
}

func money(amount float64) string {
	return fmt.Sprintf("$%.2f", amount)
}

func formatAddress(addr models.DeliveryAddress) string {
	var b strings.Builder
	b.WriteString(addr.Street)
	if addr.Apartment != "" {
		b.WriteString(", ")
		b.WriteString(addr.Apartment)
	}
	b.WriteString(", ")
	b.WriteString(addr.City)
	b.WriteString(", ")
	b.WriteString(addr.State)
	b.WriteString(" ")
	b.WriteString(addr.Zipcode)
	return b.String()
}

const orderConfirmationText = `Hi {{.CustomerName}},

Thanks for your order! We've received it and will start preparing it shortly.

Order {{.OrderNumber}} ({{.OrderDate}})
{{range .Items}}
- {{.Name}} x{{.Quantity}} ... {{.LineTotal}}{{if .Weight}} ({{.Weight}}){{end}}{{if .StrainType}}
  {{.StrainType}}{{if .THC}} | THC {{.THC}}{{end}}{{if .CBD}} | CBD {{.CBD}}{{end}}{{end}}{{end}}

Subtotal:     {{.Subtotal}}
Tax:          {{.Tax}}
Delivery fee: {{.DeliveryFee}}
Total:        {{.Total}}

Delivering to: {{.Address}}
{{if .Instructions}}Delivery instructions: {{.Instructions}}
{{end}}
We'll let you know when your order is on its way.
`

const adminAlertText = `New order received.

Order:   {{.OrderNumber}}
Total:   {{.Total}}
Payment: {{.PaymentMethod}}
Items:
{{range .Items}}- {{.Name}} x{{.Quantity}} ({{.LineTotal}})
{{end}}
Deliver to: {{.CustomerName}}, {{.Address}}
{{if .Instructions}}Instructions: {{.Instructions}}
{{end}}
Action checklist:
[ ] Verify payment status
[ ] Check ID requirements for delivery
[ ] Confirm stock and start preparing
[ ] Assign a driver
`

const statusUpdateText = `Hi {{.CustomerName}},

Update for order {{.OrderNumber}}: {{.UpdateType}}

{{.UpdateMessage}}
`
