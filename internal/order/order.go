// Package order provides the Order record model: normalized fields, the
// derived valid flag, and the accumulated validation error list.
//
// The model owns field assignment. Every SetField call normalizes the raw
// value, runs the field's validation rules, and updates the error list
// incrementally; valid is recomputed as "no entries remain" after each
// assignment. Errors are keyed by rule title, so re-failing a rule updates
// its message in place and passing a previously failed rule removes it.
package order

import (
	"encoding/json"
	"time"

	"github.com/winecellarhq/orderimport/internal/rules"
)

// ValidationError is one entry in an order's validation_errors list.
type ValidationError struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Order is the persisted record. ID is externally supplied (from the CSV),
// never generated.
type Order struct {
	ID       string
	Name     string
	Email    string
	State    string
	Zipcode  string
	Birthday string // "" | ISO date | InvalidDate sentinel

	Valid            bool
	ValidationErrors []ValidationError

	CreatedAt time.Time
	UpdatedAt time.Time

	engine    *rules.Engine
	outLayout string
	inLayout  string
	errIndex  map[string]int // rule title -> position in ValidationErrors
}

// New creates an empty order wired to a rule engine and the configured
// birthday layouts. A fresh order is valid until a field assignment says
// otherwise.
func New(engine *rules.Engine, inLayout, outLayout string) *Order {
	return &Order{
		Valid:     true,
		engine:    engine,
		inLayout:  inLayout,
		outLayout: outLayout,
		errIndex:  make(map[string]int),
	}
}

// SetField normalizes and assigns a single field by its CSV header name,
// then re-validates it. Returns false for field names the model does not
// know, which callers treat as ignorable extra columns.
func (o *Order) SetField(name, value string) bool {
	switch name {
	case "id":
		o.ID = NormalizeName(value)
	case "name":
		o.Name = NormalizeName(value)
		o.applyRules("name", o.Name)
	case "email":
		o.Email = NormalizeEmail(value)
		o.applyRules("email", o.Email)
	case "state":
		o.State = NormalizeState(value)
		o.applyRules("state", o.State)
		// The email domain restriction reads state, so a state assignment
		// re-checks email once it is available (either assignment order).
		if o.Email != "" {
			o.applyRules("email", o.Email)
		}
	case "zipcode":
		o.Zipcode = NormalizeZipcode(value)
		o.applyRules("zipcode", o.Zipcode)
	case "birthday":
		o.Birthday = NormalizeBirthday(value, o.inLayout)
		o.applyRules("birthday", o.Birthday)
	default:
		return false
	}
	return true
}

// BirthdayDisplay renders the stored birthday in the configured output
// format. Empty and sentinel values are returned as stored.
func (o *Order) BirthdayDisplay() string {
	t, err := time.Parse(rules.ISODate, o.Birthday)
	if err != nil {
		return o.Birthday
	}
	if o.outLayout == "" {
		return o.Birthday
	}
	return t.Format(o.outLayout)
}

// applyRules evaluates every rule applicable to field against its current
// value and reconciles the error list. An empty value fails only the
// required check; all other rules for the field are skipped.
func (o *Order) applyRules(field, value string) {
	requiredTitle := "Required" + field

	failing := make(map[string]string)
	if value == "" {
		failing[requiredTitle] = "The " + field + " is missing"
	} else {
		for _, f := range o.engine.Evaluate(field, value, o.sibling) {
			failing[f.Rule] = f.Message
		}
	}

	titles := append([]string{requiredTitle}, o.engine.Titles(field)...)
	for _, title := range titles {
		if msg, ok := failing[title]; ok {
			o.setError(title, msg)
		} else {
			o.clearError(title)
		}
	}

	o.Valid = len(o.ValidationErrors) == 0
}

func (o *Order) sibling(field string) string {
	switch field {
	case "name":
		return o.Name
	case "email":
		return o.Email
	case "state":
		return o.State
	case "zipcode":
		return o.Zipcode
	case "birthday":
		return o.Birthday
	}
	return ""
}

// setError inserts a new error entry or updates the message of an existing
// one, preserving first-failure order.
func (o *Order) setError(rule, message string) {
	if i, ok := o.errIndex[rule]; ok {
		o.ValidationErrors[i].Message = message
		return
	}
	o.errIndex[rule] = len(o.ValidationErrors)
	o.ValidationErrors = append(o.ValidationErrors, ValidationError{Rule: rule, Message: message})
}

// clearError removes an entry by rule title if present.
func (o *Order) clearError(rule string) {
	i, ok := o.errIndex[rule]
	if !ok {
		return
	}
	o.ValidationErrors = append(o.ValidationErrors[:i], o.ValidationErrors[i+1:]...)
	delete(o.errIndex, rule)
	for title, j := range o.errIndex {
		if j > i {
			o.errIndex[title] = j - 1
		}
	}
}

// MarshalJSON renders the API shape of an order. Birthday uses the
// configured display format.
func (o *Order) MarshalJSON() ([]byte, error) {
	errs := o.ValidationErrors
	if errs == nil {
		errs = []ValidationError{}
	}
	return json.Marshal(struct {
		ID               string            `json:"id"`
		Name             string            `json:"name"`
		Email            string            `json:"email"`
		State            string            `json:"state"`
		Zipcode          string            `json:"zipcode"`
		Birthday         string            `json:"birthday"`
		Valid            bool              `json:"valid"`
		ValidationErrors []ValidationError `json:"validation_errors"`
	}{
		ID:               o.ID,
		Name:             o.Name,
		Email:            o.Email,
		State:            o.State,
		Zipcode:          o.Zipcode,
		Birthday:         o.BirthdayDisplay(),
		Valid:            o.Valid,
		ValidationErrors: errs,
	})
}

// WithDisplayLayout returns a copy of the order that renders birthdays with
// the given output layout. The store rehydrates orders without a layout;
// the web layer attaches one before marshaling.
func (o Order) WithDisplayLayout(layout string) *Order {
	o.outLayout = layout
	return &o
}
