package kds

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/galley/internal/domain"
	"github.com/roach88/galley/internal/queue"
)

func TestLabels_Priority(t *testing.T) {
	l := DefaultLabeler()
	line := domain.OrderLine{
		Note: "extra hot",
		Modifiers: []domain.ModifierSnapshot{
			{ID: "vanilla", Name: "Vanilla syrup"},
			{ID: "oat", Name: "Oat milk"},
			{ID: "regular", Name: "רגיל"},
			{ID: "decaf", Name: "נטול קפאין", Decaf: true},
			{ID: "cinnamon", Name: "Cinnamon"},
		},
	}

	assert.Equal(t, []Label{
		{Text: "נטול קפאין", Kind: LabelDecaf},
		{Text: "Oat milk", Kind: LabelMilk},
		{Text: "Vanilla syrup", Kind: LabelOther},
		{Text: "Cinnamon", Kind: LabelOther},
		{Text: "extra hot", Kind: LabelNote},
	}, l.Labels(line))
}

func TestLabels_FallsBackToID(t *testing.T) {
	got := DefaultLabeler().Labels(domain.OrderLine{Modifiers: []domain.ModifierSnapshot{{ID: "shot"}}})
	assert.Equal(t, []Label{{Text: "shot", Kind: LabelOther}}, got)
}

func TestProject(t *testing.T) {
	s := queue.Snapshot{
		Tenant:  "cafe-a",
		Version: 7,
		Orders: []domain.Order{
			{ID: "o1", Status: domain.StatusInProgress, Position: 1, Lines: []domain.OrderLine{{MenuItemID: "latte", ItemName: "Latte", Quantity: 2}}},
			{ID: "o2", Status: domain.StatusQueued, Position: 1.5, CustomerRef: "table-4", Lines: []domain.OrderLine{{MenuItemID: "steamer", Quantity: 1, Voided: true}}},
		},
	}
	l := DefaultLabeler()

	v := l.Project(s)
	assert.Equal(t, domain.TenantID("cafe-a"), v.Tenant)
	assert.Equal(t, int64(7), v.Version)
	assert.Equal(t, []Ticket{
		{OrderID: "o1", Rank: 1, Status: domain.StatusInProgress, Items: []TicketItem{{Name: "Latte", Quantity: 2}}},
		{OrderID: "o2", Rank: 2, Status: domain.StatusQueued, CustomerRef: "table-4", Items: []TicketItem{{Name: "steamer", Quantity: 1, Voided: true}}},
	}, v.Tickets)

	queued := l.Project(s, domain.StatusQueued)
	if assert.Len(t, queued.Tickets, 1) {
		assert.Equal(t, "o2", queued.Tickets[0].OrderID)
		assert.Equal(t, 2, queued.Tickets[0].Rank)
	}

	assert.Empty(t, l.Project(s, domain.StatusReady).Tickets)
	assert.NotNil(t, l.Project(s, domain.StatusReady).Tickets)
}
