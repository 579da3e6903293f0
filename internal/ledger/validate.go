package ledger

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed transaction.cue
var transactionSchema string

// Validator checks drafts against the embedded CUE schema.
//
// Thread-safety: CUE values are not safe for concurrent use, so Validate
// serialises calls with an internal mutex.
type Validator struct {
	mu  sync.Mutex
	ctx *cue.Context
	def cue.Value
}

// NewValidator compiles the transaction schema.
func NewValidator() (*Validator, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(transactionSchema, cue.Filename("transaction.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile transaction schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Transaction"))
	if err := def.Err(); err != nil {
		return nil, fmt.Errorf("lookup #Transaction: %w", err)
	}

	return &Validator{ctx: ctx, def: def}, nil
}

// MustValidator is NewValidator for package-level defaults; the schema is embedded,
// so a failure is a build defect.
func MustValidator() *Validator {
	v, err := NewValidator()
	if err != nil {
		panic(err)
	}
	return v
}

// Validate returns a *ValidationError describing the first violated constraint.
func (v *Validator) Validate(d Draft) error {
	if !d.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Message: "amount must be greater than zero"}
	}

	fields := map[string]any{
		"type":        string(d.Type),
		"amount":      d.Amount.InexactFloat64(),
		"description": d.Description,
		"channel":     string(d.Channel),
	}
	if d.Category != "" {
		fields["category"] = d.Category
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	val := v.def.Unify(v.ctx.Encode(fields))
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return toValidationError(err)
	}
	return nil
}

func toValidationError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &ValidationError{Field: "transaction", Message: err.Error()}
	}

	first := errs[0]
	field := "transaction"
	if path := first.Path(); len(path) > 0 {
		field = path[len(path)-1]
	}
	return &ValidationError{Field: field, Message: first.Error()}
}
