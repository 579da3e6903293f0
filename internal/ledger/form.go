package ledger

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// RequiredFields are the inputs that make a form a transaction form.
var RequiredFields = []string{"type", "amount", "description"}

// IsTransactionForm reports whether a submitted form carries every required field.
// Detection is structural: the values may be empty, the fields must exist.
func IsTransactionForm(fields map[string]string) bool {
	for _, name := range RequiredFields {
		if _, ok := fields[name]; !ok {
			return false
		}
	}
	return true
}

// ParseForm converts submitted form fields into a normalised Draft.
// Only the amount is parsed here; the remaining checks belong to Validator.
func ParseForm(fields map[string]string) (Draft, error) {
	raw := strings.TrimSpace(fields["amount"])
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return Draft{}, &ValidationError{Field: "amount", Message: "amount must be a decimal number"}
	}

	d := Draft{
		Type:        Type(fields["type"]),
		Amount:      amount,
		Description: fields["description"],
		Channel:     Channel(fields["channel"]),
		Category:    fields["category"],
	}
	return d.Normalize(), nil
}

// Normalize trims whitespace, lowercases the enum tags and applies NFC to free text,
// so the same description typed on different keyboards is stored identically.
func (d Draft) Normalize() Draft {
	d.Type = Type(strings.ToLower(strings.TrimSpace(string(d.Type))))
	d.Channel = Channel(strings.ToLower(strings.TrimSpace(string(d.Channel))))
	d.Description = norm.NFC.String(strings.TrimSpace(d.Description))
	d.Category = norm.NFC.String(strings.TrimSpace(d.Category))
	return d
}
