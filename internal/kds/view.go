package kds

import (
	"sort"
	"time"

	"github.com/roach88/galley/internal/domain"
	"github.com/roach88/galley/internal/queue"
	"github.com/roach88/galley/internal/recipe"
)

// LabelKind classifies a ticket label for display priority.
type LabelKind string

const (
	LabelDecaf LabelKind = "decaf"
	LabelMilk  LabelKind = "milk"
	LabelOther LabelKind = "other"
	LabelNote  LabelKind = "note"
)

var labelRank = map[LabelKind]int{
	LabelDecaf: 0,
	LabelMilk:  1,
	LabelOther: 2,
	LabelNote:  3,
}

// DefaultMilkMarkers flag alternative-milk modifiers.
var DefaultMilkMarkers = []string{"oat", "soy", "almond", "שיבולת", "סויה", "שקדים"}

// DefaultHiddenMarkers flag modifiers that restate the default and are not shown.
var DefaultHiddenMarkers = []string{"default", "רגיל"}

// Label is one modifier or note line on a ticket item.
type Label struct {
	Text string    `json:"text"`
	Kind LabelKind `json:"kind"`
}

// TicketItem is one order line as the kitchen sees it.
type TicketItem struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Voided   bool    `json:"voided,omitempty"`
	Labels   []Label `json:"labels,omitempty"`
}

// Ticket is one order on a station screen.
type Ticket struct {
	OrderID     string        `json:"order_id"`
	Rank        int           `json:"rank"`
	Status      domain.Status `json:"status"`
	CustomerRef string        `json:"customer_ref,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	Items       []TicketItem  `json:"items"`
}

// View is the projection of a tenant's queue sent to stations. Tickets are
// in queue order; positions are not exposed.
type View struct {
	Tenant  domain.TenantID `json:"tenant_id"`
	Version int64           `json:"version"`
	Tickets []Ticket        `json:"tickets"`
}

// Labeler orders modifier labels: decaf first, alternative milks second,
// everything else in selection order, notes last.
type Labeler struct {
	milk   recipe.Matcher
	hidden recipe.Matcher
}

// NewLabeler creates a labeler with the given milk and hidden markers.
func NewLabeler(milkMarkers, hiddenMarkers []string) Labeler {
	return Labeler{
		milk:   recipe.NewNameMatcher(milkMarkers...),
		hidden: recipe.NewNameMatcher(hiddenMarkers...),
	}
}

// DefaultLabeler uses DefaultMilkMarkers and DefaultHiddenMarkers.
func DefaultLabeler() Labeler {
	return NewLabeler(DefaultMilkMarkers, DefaultHiddenMarkers)
}

// Labels builds the display labels of one line.
func (l Labeler) Labels(line domain.OrderLine) []Label {
	var out []Label
	for _, m := range line.Modifiers {
		name := m.Name
		if name == "" {
			name = m.ID
		}
		switch {
		case m.Decaf:
			out = append(out, Label{Text: name, Kind: LabelDecaf})
		case l.hidden != nil && l.hidden.Match(name):
			continue
		case l.milk != nil && l.milk.Match(name):
			out = append(out, Label{Text: name, Kind: LabelMilk})
		default:
			out = append(out, Label{Text: name, Kind: LabelOther})
		}
	}
	if line.Note != "" {
		out = append(out, Label{Text: line.Note, Kind: LabelNote})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return labelRank[out[i].Kind] < labelRank[out[j].Kind]
	})
	return out
}

// Project turns a queue snapshot into a station view. With statuses set,
// only orders in those statuses are shown; ranks still count every order.
func (l Labeler) Project(s queue.Snapshot, statuses ...domain.Status) View {
	show := func(domain.Status) bool { return true }
	if len(statuses) > 0 {
		set := make(map[domain.Status]bool, len(statuses))
		for _, st := range statuses {
			set[st] = true
		}
		show = func(st domain.Status) bool { return set[st] }
	}

	v := View{Tenant: s.Tenant, Version: s.Version, Tickets: []Ticket{}}
	for i, o := range s.Orders {
		if !show(o.Status) {
			continue
		}
		t := Ticket{
			OrderID:     o.ID,
			Rank:        i + 1,
			Status:      o.Status,
			CustomerRef: o.CustomerRef,
			CreatedAt:   o.CreatedAt,
			Items:       make([]TicketItem, 0, len(o.Lines)),
		}
		for _, line := range o.Lines {
			name := line.ItemName
			if name == "" {
				name = line.MenuItemID
			}
			t.Items = append(t.Items, TicketItem{
				Name:     name,
				Quantity: line.Quantity,
				Voided:   line.Voided,
				Labels:   l.Labels(line),
			})
		}
		v.Tickets = append(v.Tickets, t)
	}
	return v
}
