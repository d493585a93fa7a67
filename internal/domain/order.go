package domain

import "time"

// TenantID identifies a business. It is opaque to galley.
type TenantID string

// Status is the lifecycle state of an order.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusReady      Status = "ready"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// transitions lists the allowed target states for each source state.
var transitions = map[Status][]Status{
	StatusQueued:     {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusReady, StatusCancelled},
	StatusReady:      {StatusCompleted},
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusInProgress, StatusReady, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether an order may move from one status to another.
// A status never transitions to itself; callers that want idempotent terminal
// advances check for that case before calling.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ModifierSnapshot is the display copy of a selected modifier value taken when
// the line was submitted or edited.
type ModifierSnapshot struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Decaf bool   `json:"decaf,omitempty" yaml:"decaf,omitempty"`
}

// OrderLine is an immutable snapshot of one menu item in an order.
//
// MenuItemID, ModifierIDs, Quantity, Note and Voided are supplied by the
// caller. ItemName, UnitPriceCents and Modifiers are filled in from the catalog
// at submit/edit time so later catalog changes never rewrite history.
type OrderLine struct {
	MenuItemID  string   `json:"menu_item_id" yaml:"menu_item_id"`
	ModifierIDs []string `json:"modifier_ids,omitempty" yaml:"modifier_ids,omitempty"`
	Quantity    int      `json:"quantity" yaml:"quantity"`
	Note        string   `json:"note,omitempty" yaml:"note,omitempty"`

	// Voided lines stay on the ticket but are skipped when stock is deducted.
	Voided bool `json:"voided,omitempty" yaml:"voided,omitempty"`

	ItemName       string             `json:"item_name,omitempty" yaml:"item_name,omitempty"`
	UnitPriceCents int64              `json:"unit_price_cents,omitempty" yaml:"unit_price_cents,omitempty"`
	Modifiers      []ModifierSnapshot `json:"modifiers,omitempty" yaml:"modifiers,omitempty"`
}

// Clone returns a deep copy of the line.
func (l OrderLine) Clone() OrderLine {
	out := l
	if l.ModifierIDs != nil {
		out.ModifierIDs = append([]string(nil), l.ModifierIDs...)
	}
	if l.Modifiers != nil {
		out.Modifiers = append([]ModifierSnapshot(nil), l.Modifiers...)
	}
	return out
}

// Order is an entry in a tenant's queue.
type Order struct {
	ID            string      `json:"id"`
	TenantID      TenantID    `json:"tenant_id"`
	Lines         []OrderLine `json:"lines"`
	Status        Status      `json:"status"`
	Position      float64     `json:"position"`
	CustomerRef   string      `json:"customer_ref,omitempty"`
	SkipDeduction bool        `json:"skip_deduction,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`

	// Seq is bumped on every persisted mutation of the order.
	Seq int64 `json:"seq"`
}

// Clone returns a deep copy of the order.
func (o Order) Clone() Order {
	out := o
	out.Lines = CloneLines(o.Lines)
	return out
}

// Active reports whether the order still belongs to the live queue.
func (o Order) Active() bool {
	return !o.Status.Terminal()
}

// CloneLines deep-copies a slice of lines.
func CloneLines(lines []OrderLine) []OrderLine {
	if lines == nil {
		return nil
	}
	out := make([]OrderLine, len(lines))
	for i, l := range lines {
		out[i] = l.Clone()
	}
	return out
}
