package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/galley/internal/domain"
	"github.com/roach88/galley/internal/ledger"
	"github.com/roach88/galley/internal/queue"
)

// Scenario is a scripted kitchen session: a catalog, a stock policy, a list
// of queue operations with expected outcomes, and assertions on the final
// queue and stock state.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Tenant is the default tenant for steps and assertions.
	Tenant domain.TenantID `yaml:"tenant"`

	// Policy is the stock policy, "hard" (default) or "soft".
	Policy ledger.Policy `yaml:"policy,omitempty"`

	// Store selects the backend: "memory" (default) or "sqlite".
	Store string `yaml:"store,omitempty"`

	// Append is the submit append policy, "tail" (default) or "head".
	Append queue.AppendPolicy `yaml:"append,omitempty"`

	// Catalog is a YAML or CUE catalog file, relative to the scenario file.
	// Empty means the built-in cafe fixture.
	Catalog string `yaml:"catalog,omitempty"`

	// Stock overrides opening stock levels from the catalog.
	Stock []StockOverride `yaml:"stock,omitempty"`

	// Steps run in order against a fresh engine.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace and final state.
	Assertions []Assertion `yaml:"assertions"`
}

// StockOverride sets the opening level of one inventory row.
type StockOverride struct {
	Tenant   domain.TenantID `yaml:"tenant,omitempty"`
	Item     string          `yaml:"item"`
	Quantity float64         `yaml:"quantity"`
}

// Step is one queue operation.
type Step struct {
	// Op is one of submit, edit, reorder, advance, bump, cancel.
	Op string `yaml:"op"`

	// Tenant overrides the scenario tenant for this step.
	Tenant domain.TenantID `yaml:"tenant,omitempty"`

	// Ref names the order created by submit so later steps can refer to it.
	Ref string `yaml:"ref,omitempty"`

	// Order is the target of every op except submit: a ref from an earlier
	// submit, or a literal order id.
	Order string `yaml:"order,omitempty"`

	// Lines are the order lines for submit and edit.
	Lines []domain.OrderLine `yaml:"lines,omitempty"`

	CustomerRef   string `yaml:"customer_ref,omitempty"`
	SkipDeduction bool   `yaml:"skip_deduction,omitempty"`

	// Status is the target of advance.
	Status domain.Status `yaml:"status,omitempty"`

	// Prev and Next are the reorder neighbors. Either may be empty.
	Prev string `yaml:"prev,omitempty"`
	Next string `yaml:"next,omitempty"`

	// Expect validates the step outcome. Without it the step must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect is the expected outcome of one step. Only set fields are checked.
type Expect struct {
	// Error is the expected error code. Empty means success.
	Error domain.ErrorCode `yaml:"error,omitempty"`

	// Item is the item id the error must carry.
	Item string `yaml:"item,omitempty"`

	Status    domain.Status `yaml:"status,omitempty"`
	Deducted  *bool         `yaml:"deducted,omitempty"`
	Duplicate *bool         `yaml:"duplicate,omitempty"`

	// Warnings are the expected warning codes, in order.
	Warnings []domain.ErrorCode `yaml:"warnings,omitempty"`
}

// Assertion validates the trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Tenant overrides the scenario tenant.
	Tenant domain.TenantID `yaml:"tenant,omitempty"`

	// Op and Outcome select trace events (trace_contains, trace_count).
	// Outcome is "ok" or an error code.
	Op      string `yaml:"op,omitempty"`
	Outcome string `yaml:"outcome,omitempty"`

	// Ops is the expected op order (trace_order).
	Ops []string `yaml:"ops,omitempty"`

	// Order is an order ref (order_status, transition_count, ticket_labels).
	Order string `yaml:"order,omitempty"`

	// Orders is the expected queue order as refs (queue_order).
	Orders []string `yaml:"orders,omitempty"`

	// Status is the expected order status (order_status).
	Status domain.Status `yaml:"status,omitempty"`

	// Item is an inventory id (stock_level, movement_count).
	Item string `yaml:"item,omitempty"`

	// Quantity is the expected stock level (stock_level).
	Quantity *float64 `yaml:"quantity,omitempty"`

	// Count is the expected number of matches (trace_count,
	// movement_count, transition_count).
	Count int `yaml:"count,omitempty"`

	// Labels are the expected label texts of the order's first ticket
	// item (ticket_labels).
	Labels []string `yaml:"labels,omitempty"`
}

// Step ops.
const (
	OpSubmit  = "submit"
	OpEdit    = "edit"
	OpReorder = "reorder"
	OpAdvance = "advance"
	OpBump    = "bump"
	OpCancel  = "cancel"
)

// Assertion type constants.
const (
	AssertTraceContains   = "trace_contains"
	AssertTraceOrder      = "trace_order"
	AssertTraceCount      = "trace_count"
	AssertQueueOrder      = "queue_order"
	AssertOrderStatus     = "order_status"
	AssertStockLevel      = "stock_level"
	AssertMovementCount   = "movement_count"
	AssertTransitionCount = "transition_count"
	AssertTicketLabels    = "ticket_labels"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// LoadScenario reads and parses a scenario YAML file. A relative catalog
// path is resolved against the scenario file's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file, resolving
// the catalog path relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if s.Catalog != "" && !filepath.IsAbs(s.Catalog) && basePath != "" {
		s.Catalog = filepath.Join(basePath, s.Catalog)
	}
	return s, nil
}

// ParseScenario decodes and validates a scenario document. Unknown fields
// are rejected.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks required fields and fills in defaults.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Tenant == "" {
		return fmt.Errorf("tenant is required")
	}

	if s.Policy == "" {
		s.Policy = ledger.PolicyHard
	}
	if _, err := ledger.ParsePolicy(string(s.Policy)); err != nil {
		return err
	}

	switch s.Store {
	case "":
		s.Store = StoreMemory
	case StoreMemory, StoreSQLite:
	default:
		return fmt.Errorf("unknown store %q", s.Store)
	}

	switch s.Append {
	case "":
		s.Append = queue.AppendTail
	case queue.AppendTail, queue.AppendHead:
	default:
		return fmt.Errorf("unknown append policy %q", s.Append)
	}

	for i, o := range s.Stock {
		if o.Item == "" {
			return fmt.Errorf("stock[%d]: item is required", i)
		}
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	refs := make(map[string]bool)
	for i, step := range s.Steps {
		if err := validateStep(i, step, refs); err != nil {
			return err
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step, refs map[string]bool) error {
	switch step.Op {
	case OpSubmit:
		if step.Ref != "" {
			if refs[step.Ref] {
				return fmt.Errorf("steps[%d]: ref %q is already used", i, step.Ref)
			}
			refs[step.Ref] = true
		}
	case OpEdit, OpReorder, OpAdvance, OpBump, OpCancel:
		if step.Order == "" {
			return fmt.Errorf("steps[%d]: order is required for %s", i, step.Op)
		}
		if step.Ref != "" {
			return fmt.Errorf("steps[%d]: ref is only valid on submit", i)
		}
	case "":
		return fmt.Errorf("steps[%d]: op is required", i)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
	}

	if step.Op == OpAdvance {
		if step.Status == "" {
			return fmt.Errorf("steps[%d]: status is required for advance", i)
		}
		if !step.Status.Valid() {
			return fmt.Errorf("steps[%d]: unknown status %q", i, step.Status)
		}
	}
	if step.Expect != nil && step.Expect.Status != "" && !step.Expect.Status.Valid() {
		return fmt.Errorf("steps[%d].expect: unknown status %q", i, step.Expect.Status)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertQueueOrder:
		if a.Orders == nil {
			return fmt.Errorf("assertions[%d]: orders is required for queue_order (use [] for an empty queue)", index)
		}
	case AssertOrderStatus:
		if a.Order == "" || a.Status == "" {
			return fmt.Errorf("assertions[%d]: order and status are required for order_status", index)
		}
	case AssertStockLevel:
		if a.Item == "" || a.Quantity == nil {
			return fmt.Errorf("assertions[%d]: item and quantity are required for stock_level", index)
		}
	case AssertMovementCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for movement_count", index)
		}
	case AssertTransitionCount:
		if a.Order == "" {
			return fmt.Errorf("assertions[%d]: order is required for transition_count", index)
		}
	case AssertTicketLabels:
		if a.Order == "" {
			return fmt.Errorf("assertions[%d]: order is required for ticket_labels", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
