package checkout

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/greenlanehq/greenlane/internal/models"
)

// moneyTolerance is the permitted drift between client-computed and
// recomputed monetary sums.
const moneyTolerance = 0.01

// Submission is the raw checkout payload as received on the wire.
type Submission struct {
	CustomerName      string            `json:"customer_name" validate:"required,max=120"`
	CustomerEmail     string            `json:"customer_email" validate:"required,email,max=254"`
	CustomerPhone     string            `json:"customer_phone" validate:"required,max=30"`
	DeliveryFirstName string            `json:"delivery_first_name" validate:"required,max=60"`
	DeliveryLastName  string            `json:"delivery_last_name" validate:"required,max=60"`
	DeliveryAddress   SubmissionAddress `json:"delivery_address"`
	Items             []SubmissionItem  `json:"items" validate:"required,min=1,max=50,dive"`
	Subtotal          float64           `json:"subtotal" validate:"gte=0"`
	Tax               float64           `json:"tax" validate:"gte=0"`
	DeliveryFee       float64           `json:"delivery_fee" validate:"gte=0"`
	Total             float64           `json:"total" validate:"gt=0"`
	PaymentMethod     string            `json:"payment_method" validate:"required,oneof=cash card"`
	UserID            string            `json:"user_id" validate:"omitempty,max=64"`
}

type SubmissionAddress struct {
	Street       string `json:"street" validate:"required,max=200"`
	Apartment    string `json:"apartment" validate:"omitempty,max=50"`
	City         string `json:"city" validate:"required,max=80"`
	State        string `json:"state" validate:"required,max=40"`
	Zipcode      string `json:"zipcode" validate:"required,max=12"`
	Instructions string `json:"instructions" validate:"omitempty,max=500"`
}

type SubmissionItem struct {
	ProductID string  `json:"product_id" validate:"required,uuid"`
	Quantity  int     `json:"quantity" validate:"required,gt=0,lte=99"`
	Price     float64 `json:"price" validate:"required,gt=0"`
	Name      string  `json:"name" validate:"required,max=200"`
	Weight    string  `json:"weight" validate:"omitempty,max=40"`
}

// OrderRequest is a validated, normalized submission ready for the
// order processor.
type OrderRequest struct {
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	Delivery      models.DeliveryAddress
	Items         []RequestItem
	Subtotal      float64
	Tax           float64
	DeliveryFee   float64
	Total         float64
	PaymentMethod models.PaymentMethod
	UserID        string
}

type RequestItem struct {
	ProductID uuid.UUID
	Quantity  int
	Price     float64
	Name      string
	Weight    string
}

var submissionValidator = newSubmissionValidator()

func newSubmissionValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate parses and checks a raw order submission. It is a pure
// function over its input: no persistence is touched, and any
// structural or business-rule violation returns a *ValidationError
// before the processor runs.
func Validate(raw []byte) (*OrderRequest, error) {
	var sub Submission
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, &ValidationError{Issues: []FieldIssue{{Field: "body", Message: "invalid JSON payload"}}}
	}
	return ValidateSubmission(&sub)
}

// ValidateSubmission checks an already-decoded submission.
func ValidateSubmission(sub *Submission) (*OrderRequest, error) {
	issues := structuralIssues(sub)

	phone, ok := NormalizePhone(sub.CustomerPhone)
	if sub.CustomerPhone != "" && !ok {
		issues = append(issues, FieldIssue{Field: "customer_phone", Message: "must be a 10-digit number or 11 digits starting with 1"})
	}

	issues = append(issues, businessRuleIssues(sub)...)

	if len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}

	req := &OrderRequest{
		CustomerName:  strings.TrimSpace(sub.CustomerName),
		CustomerEmail: strings.ToLower(strings.TrimSpace(sub.CustomerEmail)),
		CustomerPhone: phone,
		Delivery: models.DeliveryAddress{
			FirstName:    strings.TrimSpace(sub.DeliveryFirstName),
			LastName:     strings.TrimSpace(sub.DeliveryLastName),
			Street:       strings.TrimSpace(sub.DeliveryAddress.Street),
			Apartment:    strings.TrimSpace(sub.DeliveryAddress.Apartment),
			City:         strings.TrimSpace(sub.DeliveryAddress.City),
			State:        strings.TrimSpace(sub.DeliveryAddress.State),
			Zipcode:      strings.TrimSpace(sub.DeliveryAddress.Zipcode),
			Instructions: strings.TrimSpace(sub.DeliveryAddress.Instructions),
			Phone:        phone,
		},
		Subtotal:      sub.Subtotal,
		Tax:           sub.Tax,
		DeliveryFee:   sub.DeliveryFee,
		Total:         sub.Total,
		PaymentMethod: models.PaymentMethod(sub.PaymentMethod),
		UserID:        strings.TrimSpace(sub.UserID),
	}

	req.Items = make([]RequestItem, len(sub.Items))
	for i, item := range sub.Items {
		// uuid tag already validated the format
		productID, err := uuid.Parse(item.ProductID)
		if err != nil {
			return nil, &ValidationError{Issues: []FieldIssue{{Field: "items", Message: "invalid product id"}}}
		}
		req.Items[i] = RequestItem{
			ProductID: productID,
			Quantity:  item.Quantity,
			Price:     item.Price,
			Name:      strings.TrimSpace(item.Name),
			Weight:    strings.TrimSpace(item.Weight),
		}
	}

	return req, nil
}

func structuralIssues(sub *Submission) []FieldIssue {
	err := submissionValidator.Struct(sub)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []FieldIssue{{Field: "body", Message: err.Error()}}
	}

	issues := make([]FieldIssue, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		issues = append(issues, FieldIssue{
			Field:   fieldPath(fe.Namespace()),
			Message: issueMessage(fe),
		})
	}
	return issues
}

func businessRuleIssues(sub *Submission) []FieldIssue {
	var issues []FieldIssue

	computed := sub.Subtotal + sub.Tax + sub.DeliveryFee
	if math.Abs(computed-sub.Total) > moneyTolerance {
		issues = append(issues, FieldIssue{
			Field:   "total",
			Message: "total does not equal subtotal + tax + delivery_fee",
		})
	}

	var lineSum float64
	for _, item := range sub.Items {
		lineSum += item.Price * float64(item.Quantity)
	}
	if len(sub.Items) > 0 && math.Abs(lineSum-sub.Subtotal) > moneyTolerance {
		issues = append(issues, FieldIssue{
			Field:   "subtotal",
			Message: "subtotal does not equal the sum of item line totals",
		})
	}

	return issues
}

// NormalizePhone reduces a phone number to the canonical 11-digit,
// country-code-prefixed form. Inputs that do not reduce to 10 digits,
// or 11 digits starting with 1, are rejected.
func NormalizePhone(raw string) (string, bool) {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}

	switch s := digits.String(); {
	case len(s) == 10:
		return "1" + s, true
	case len(s) == 11 && s[0] == '1':
		return s, true
	default:
		return "", false
	}
}

func fieldPath(namespace string) string {
	// Namespace looks like "Submission.delivery_address.street"; drop
	// the root struct segment.
	if idx := strings.Index(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}
	return namespace
}

func issueMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "max":
		return "exceeds maximum length of " + fe.Param()
	case "min":
		return "must have at least " + fe.Param() + " entries"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must not be negative"
	case "lte":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "uuid":
		return "must be a valid UUID"
	default:
		return "is invalid"
	}
}
