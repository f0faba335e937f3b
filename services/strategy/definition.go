// Package strategy turns a user-authored block graph into per-candle entry and exit signals
// plus the scalar risk configuration consumed by the simulator.
package strategy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Params holds a block's free-form parameters as decoded from JSON.
type Params map[string]any

func (p Params) lookup(keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := p[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// Has reports whether any of keys is set.
func (p Params) Has(keys ...string) bool {
	_, ok := p.lookup(keys...)
	return ok
}

// Float returns the first of keys that holds a number (or a numeric string), else def.
func (p Params) Float(def float64, keys ...string) float64 {
	v, ok := p.lookup(keys...)
	if !ok {
		return def
	}
	if f, ok := toFloat(v); ok {
		return f
	}
	return def
}

// Int is Float truncated to an int.
func (p Params) Int(def int, keys ...string) int {
	return int(p.Float(float64(def), keys...))
}

// String returns the first of keys that holds a string, else def.
func (p Params) String(def string, keys ...string) string {
	v, ok := p.lookup(keys...)
	if !ok {
		return def
	}
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Block is one node of the strategy graph.
type Block struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Label  string `json:"label,omitempty"`
	Params Params `json:"params,omitempty"`
}

// PortRef addresses one named port of a block.
type PortRef struct {
	BlockID string `json:"block_id"`
	Port    string `json:"port"`
}

func (r PortRef) String() string { return r.BlockID + "." + r.Port }

// Connection is a directed edge from an output port to an input port.
type Connection struct {
	From PortRef `json:"from"`
	To   PortRef `json:"to"`
}

type legacyConnection struct {
	From     json.RawMessage `json:"from"`
	To       json.RawMessage `json:"to"`
	FromPort string          `json:"from_port"`
	ToPort   string          `json:"to_port"`
}

type nestedRef struct {
	BlockID string `json:"block_id"`
	Block   string `json:"block"`
	ID      string `json:"id"`
	Port    string `json:"port"`
}

// UnmarshalJSON accepts both {"from":{"block_id","port"},"to":{...}} and the flat
// {"from","from_port","to","to_port"} shape.
func (c *Connection) UnmarshalJSON(b []byte) error {
	var raw legacyConnection
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	from, err := decodeEnd(raw.From, raw.FromPort)
	if err != nil {
		return fmt.Errorf("connection from: %w", err)
	}
	to, err := decodeEnd(raw.To, raw.ToPort)
	if err != nil {
		return fmt.Errorf("connection to: %w", err)
	}
	*c = Connection{From: from, To: to}
	return nil
}

func decodeEnd(raw json.RawMessage, flatPort string) (PortRef, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return PortRef{Port: flatPort}, nil
	}
	if raw[0] == '"' {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			return PortRef{}, err
		}
		return PortRef{BlockID: id, Port: flatPort}, nil
	}
	var n nestedRef
	if err := json.Unmarshal(raw, &n); err != nil {
		return PortRef{}, err
	}
	ref := PortRef{BlockID: n.BlockID, Port: n.Port}
	if ref.BlockID == "" {
		ref.BlockID = n.Block
	}
	if ref.BlockID == "" {
		ref.BlockID = n.ID
	}
	if ref.Port == "" {
		ref.Port = flatPort
	}
	return ref, nil
}

// Definition is a complete strategy graph.
type Definition struct {
	Blocks      []Block      `json:"blocks"`
	Connections []Connection `json:"connections"`
}

// ParseDefinition decodes a JSON strategy definition, normalising legacy connection shapes.
func ParseDefinition(data []byte) (Definition, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var def Definition
	if err := dec.Decode(&def); err != nil {
		return Definition{}, fmt.Errorf("failed to decode strategy definition: %w", err)
	}
	return def, nil
}

// WarmupBars is the largest warm-up among the definition's indicator blocks. Unknown block
// types are ignored here; Interpret reports them.
func (d Definition) WarmupBars() int {
	w := 0
	for _, b := range d.Blocks {
		k, ok := ParseKind(b.Type)
		if !ok {
			continue
		}
		w = max(w, k.Warmup(b.Params))
	}
	return w
}

// TakeProfitLevel is one rung of the take-profit ladder.
type TakeProfitLevel struct {
	ProfitPct float64 `json:"profit_pct"`
	ClosePct  float64 `json:"close_pct"`
}

// Signals is the interpreter output consumed by the simulator. Entry and exit series are
// aligned with the candles. Nil pointers and a nil ladder mean the rule is not configured.
type Signals struct {
	EntryLong        []bool            `json:"entry_long"`
	ExitLong         []bool            `json:"exit_long"`
	PositionSizePct  float64           `json:"position_size_pct"`
	TakeProfitLevels []TakeProfitLevel `json:"take_profit_levels"`
	StopLossPct      *float64          `json:"stop_loss_pct"`
	MaxDrawdownPct   *float64          `json:"max_drawdown_pct"`
	TimeExitBars     *int              `json:"time_exit_bars"`
	TrailingStopPct  *float64          `json:"trailing_stop_pct"`
}
