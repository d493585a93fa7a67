// Package redisstock is a Redis stock backend for the inventory ledger.
//
// Stock levels are float strings changed with INCRBYFLOAT. A deduction batch
// runs as a single Lua script, so the fulfillment key check, the whole-batch
// validation, the decrements and the movement log happen atomically on the
// server. Every key for a tenant shares the {tenant} hash tag and therefore
// the same cluster slot.
package redisstock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/galley/internal/domain"
	"github.com/roach88/galley/internal/ledger"
)

const defaultKeyTTL = 24 * time.Hour

// Script result codes.
const (
	resultDuplicate    = 0
	resultApplied      = 1
	resultMissingRow   = -1
	resultInsufficient = -2
)

// applyScript validates the whole batch before writing anything. Levels are
// returned as strings since integer replies would truncate fractions.
//
// KEYS: fulfillment key, movement list, movement seq, then one stock key per
// deduction. ARGV: allow_negative, ttl_seconds, order_id, has_key, fulfillment
// key, then item_id/quantity pairs.
var applyScript = redis.NewScript(`
local has_key = ARGV[4] == '1'
if has_key and redis.call('EXISTS', KEYS[1]) == 1 then
	return {0}
end

local n = #KEYS - 3
local pending = {}
for i = 1, n do
	local key = KEYS[i + 3]
	local qty = tonumber(ARGV[5 + 2 * i])
	local cur = pending[key]
	if cur == nil then
		local raw = redis.call('GET', key)
		if not raw then
			return {-1, i}
		end
		cur = tonumber(raw)
	end
	if ARGV[1] ~= '1' and cur < qty then
		return {-2, i, string.format('%.17g', cur)}
	end
	pending[key] = cur - qty
end

local out = {1}
for i = 1, n do
	local key = KEYS[i + 3]
	local item = ARGV[4 + 2 * i]
	local qty = ARGV[5 + 2 * i]
	local after = redis.call('INCRBYFLOAT', key, '-' .. qty)
	local seq = redis.call('INCR', KEYS[3])
	redis.call('RPUSH', KEYS[2], cjson.encode({
		seq = seq,
		item_id = item,
		order_id = ARGV[3],
		delta = '-' .. qty,
		stock_after = after,
	}))
	out[#out + 1] = after
end

if has_key then
	local ttl = tonumber(ARGV[2])
	if ttl > 0 then
		redis.call('SET', KEYS[1], ARGV[3], 'EX', ttl)
	else
		redis.call('SET', KEYS[1], ARGV[3])
	end
end
return out
`)

// Store is a ledger.StockStore backed by Redis.
type Store struct {
	client redis.UniversalClient
	keyTTL time.Duration
}

var (
	_ ledger.StockStore    = (*Store)(nil)
	_ ledger.HistoryReader = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithKeyTTL sets how long an applied fulfillment key is remembered. Zero
// keeps keys forever. Defaults to 24h.
func WithKeyTTL(d time.Duration) Option {
	return func(s *Store) { s.keyTTL = d }
}

// New wraps a client. The caller owns the client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, keyTTL: defaultKeyTTL}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial connects to addr and pings it.
func Dial(ctx context.Context, addr string, opts ...Option) (*Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisstock: ping %s: %w", addr, err)
	}
	return New(client, opts...), nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func stockKey(tenant domain.TenantID, itemID string) string {
	return fmt.Sprintf("galley:{%s}:stock:%s", tenant, itemID)
}

func itemsKey(tenant domain.TenantID) string {
	return fmt.Sprintf("galley:{%s}:items", tenant)
}

func fulfillmentKey(tenant domain.TenantID, key string) string {
	return fmt.Sprintf("galley:{%s}:fulfillment:%s", tenant, key)
}

func movementsKey(tenant domain.TenantID) string {
	return fmt.Sprintf("galley:{%s}:movements", tenant)
}

func movementSeqKey(tenant domain.TenantID) string {
	return fmt.Sprintf("galley:{%s}:movement_seq", tenant)
}

func formatQty(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}

// SeedInventory creates stock rows. Rows that already exist keep their level.
func (s *Store) SeedInventory(ctx context.Context, items []domain.InventoryItem) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, it := range items {
			pipe.SetNX(ctx, stockKey(it.TenantID, it.ID), formatQty(it.Stock), 0)
			pipe.SAdd(ctx, itemsKey(it.TenantID), it.ID)
		}
		return nil
	})
	if err != nil {
		return classify("seed inventory", err)
	}
	return nil
}

// SetStock overwrites one row's level.
func (s *Store) SetStock(ctx context.Context, tenant domain.TenantID, itemID string, stock float64) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, stockKey(tenant, itemID), formatQty(stock), 0)
		pipe.SAdd(ctx, itemsKey(tenant), itemID)
		return nil
	})
	if err != nil {
		return classify("set stock", err)
	}
	return nil
}

// ApplyDeductions implements ledger.StockStore.
func (s *Store) ApplyDeductions(ctx context.Context, req ledger.ApplyRequest) (ledger.Outcome, error) {
	keys := make([]string, 0, 3+len(req.Deductions))
	keys = append(keys,
		fulfillmentKey(req.Tenant, req.Key),
		movementsKey(req.Tenant),
		movementSeqKey(req.Tenant),
	)
	args := make([]any, 0, 5+2*len(req.Deductions))
	args = append(args,
		boolArg(req.AllowNegative),
		int64(s.keyTTL/time.Second),
		req.OrderID,
		boolArg(req.Key != ""),
		req.Key,
	)
	for _, d := range req.Deductions {
		keys = append(keys, stockKey(req.Tenant, d.ItemID))
		args = append(args, d.ItemID, formatQty(d.Quantity))
	}

	reply, err := applyScript.Run(ctx, s.client, keys, args...).Slice()
	if err != nil {
		return ledger.Outcome{}, classify("apply deductions", err)
	}
	return decodeApply(req, reply)
}

func boolArg(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// decodeApply turns the script's reply into an Outcome or a domain error.
func decodeApply(req ledger.ApplyRequest, reply []any) (ledger.Outcome, error) {
	if len(reply) == 0 {
		return ledger.Outcome{}, fmt.Errorf("apply deductions: empty script reply")
	}
	code, ok := reply[0].(int64)
	if !ok {
		return ledger.Outcome{}, fmt.Errorf("apply deductions: unexpected reply %v", reply)
	}

	switch code {
	case resultDuplicate:
		return ledger.Outcome{Applied: false}, nil

	case resultMissingRow, resultInsufficient:
		idx, err := replyIndex(reply, len(req.Deductions))
		if err != nil {
			return ledger.Outcome{}, err
		}
		d := req.Deductions[idx]
		if code == resultMissingRow {
			return ledger.Outcome{}, domain.NewMissingStockRow(req.Tenant, d.ItemID)
		}
		var cur float64
		if len(reply) > 2 {
			cur, _ = parseFloat(reply[2])
		}
		return ledger.Outcome{}, domain.NewInsufficientStock(req.Tenant, d.ItemID, cur, d.Quantity)

	case resultApplied:
		if len(reply)-1 != len(req.Deductions) {
			return ledger.Outcome{}, fmt.Errorf("apply deductions: %d levels for %d deductions", len(reply)-1, len(req.Deductions))
		}
		levels := make([]domain.StockLevel, len(req.Deductions))
		for i, d := range req.Deductions {
			v, err := parseFloat(reply[i+1])
			if err != nil {
				return ledger.Outcome{}, fmt.Errorf("apply deductions: %w", err)
			}
			levels[i] = domain.StockLevel{ItemID: d.ItemID, Stock: v}
		}
		return ledger.Outcome{Applied: true, Levels: levels}, nil
	}
	return ledger.Outcome{}, fmt.Errorf("apply deductions: unknown result code %d", code)
}

// replyIndex reads the script's 1-based deduction index.
func replyIndex(reply []any, n int) (int, error) {
	if len(reply) < 2 {
		return 0, fmt.Errorf("apply deductions: reply %v has no index", reply)
	}
	i, ok := reply[1].(int64)
	if !ok || i < 1 || int(i) > n {
		return 0, fmt.Errorf("apply deductions: bad index %v", reply[1])
	}
	return int(i) - 1, nil
}

func parseFloat(v any) (float64, error) {
	switch x := v.(type) {
	case string:
		return strconv.ParseFloat(x, 64)
	case int64:
		return float64(x), nil
	}
	return 0, fmt.Errorf("not a number: %v", v)
}

// StockLevels implements ledger.StockStore. Levels are sorted by item id;
// unknown items are omitted.
func (s *Store) StockLevels(ctx context.Context, tenant domain.TenantID, itemIDs []string) ([]domain.StockLevel, error) {
	ids := append([]string(nil), itemIDs...)
	if len(ids) == 0 {
		members, err := s.client.SMembers(ctx, itemsKey(tenant)).Result()
		if err != nil {
			return nil, classify("stock levels", err)
		}
		ids = members
	}
	sort.Strings(ids)
	ids = dedupSorted(ids)

	out := []domain.StockLevel{}
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = stockKey(tenant, id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, classify("stock levels", err)
	}
	for i, v := range vals {
		if v == nil {
			continue
		}
		f, err := parseFloat(v)
		if err != nil {
			return nil, fmt.Errorf("stock level %s: %w", ids[i], err)
		}
		out = append(out, domain.StockLevel{ItemID: ids[i], Stock: f})
	}
	return out, nil
}

func dedupSorted(ids []string) []string {
	out := ids[:0]
	for i, id := range ids {
		if i == 0 || id != ids[i-1] {
			out = append(out, id)
		}
	}
	return out
}

type movementEntry struct {
	Seq        int64  `json:"seq"`
	ItemID     string `json:"item_id"`
	OrderID    string `json:"order_id"`
	Delta      string `json:"delta"`
	StockAfter string `json:"stock_after"`
}

// History implements ledger.HistoryReader.
func (s *Store) History(ctx context.Context, tenant domain.TenantID, itemID string) ([]ledger.Movement, error) {
	raw, err := s.client.LRange(ctx, movementsKey(tenant), 0, -1).Result()
	if err != nil {
		return nil, classify("stock history", err)
	}
	out := []ledger.Movement{}
	for _, r := range raw {
		var e movementEntry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			return nil, fmt.Errorf("decode movement: %w", err)
		}
		if itemID != "" && e.ItemID != itemID {
			continue
		}
		delta, err := strconv.ParseFloat(e.Delta, 64)
		if err != nil {
			return nil, fmt.Errorf("decode movement delta: %w", err)
		}
		after, err := strconv.ParseFloat(e.StockAfter, 64)
		if err != nil {
			return nil, fmt.Errorf("decode movement stock: %w", err)
		}
		out = append(out, ledger.Movement{
			Tenant:     tenant,
			ItemID:     e.ItemID,
			OrderID:    e.OrderID,
			Delta:      delta,
			StockAfter: after,
			Seq:        e.Seq,
		})
	}
	return out, nil
}

func classify(op string, err error) error {
	if errors.Is(err, redis.ErrClosed) {
		return domain.NewStoreUnavailable(op, err)
	}
	return domain.ClassifyStoreError(op, err)
}
