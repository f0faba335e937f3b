package strategy

import (
	"slices"
	"sort"
	"strings"
)

// graph is the compiled, validated form of a Definition.
type graph struct {
	blocks map[string]*Block
	kinds  map[string]Kind
	order  []string
	// inputs maps a block's canonical input port to the output feeding it.
	inputs map[string]map[string]PortRef
}

// Validate checks def without evaluating it.
func Validate(def Definition) error {
	_, err := compile(def)
	return err
}

func compile(def Definition) (*graph, error) {
	if len(def.Blocks) == 0 {
		return nil, invalid(CodeEmptyStrategy, "", "strategy has no blocks")
	}

	g := &graph{
		blocks: make(map[string]*Block, len(def.Blocks)),
		kinds:  make(map[string]Kind, len(def.Blocks)),
		inputs: make(map[string]map[string]PortRef),
	}
	blocks := slices.Clone(def.Blocks)
	for i := range blocks {
		b := &blocks[i]
		if strings.TrimSpace(b.ID) == "" {
			return nil, invalid(CodeInvalidBlock, "", "block %d has no id", i)
		}
		if _, dup := g.blocks[b.ID]; dup {
			return nil, invalid(CodeInvalidBlock, b.ID, "duplicate block id")
		}
		k, ok := ParseKind(b.Type)
		if !ok {
			return nil, invalid(CodeUnsupportedBlockType, b.ID, "unsupported block type %q", b.Type)
		}
		if b.Params == nil {
			b.Params = Params{}
		}
		g.blocks[b.ID] = b
		g.kinds[b.ID] = k
		g.order = append(g.order, b.ID)
	}

	for _, c := range def.Connections {
		if c.From.BlockID == "" || c.To.BlockID == "" {
			return nil, invalid(CodeInvalidConnection, "", "connection %s -> %s has an empty block id", c.From, c.To)
		}
		if _, ok := g.blocks[c.From.BlockID]; !ok {
			return nil, invalid(CodeUnknownBlockReference, c.From.BlockID, "connection references unknown block %q", c.From.BlockID)
		}
		if _, ok := g.blocks[c.To.BlockID]; !ok {
			return nil, invalid(CodeUnknownBlockReference, c.To.BlockID, "connection references unknown block %q", c.To.BlockID)
		}

		from := PortRef{BlockID: c.From.BlockID, Port: strings.ToLower(strings.TrimSpace(c.From.Port))}
		if err := g.checkOutput(from); err != nil {
			return nil, err
		}

		toKind := g.kinds[c.To.BlockID]
		port := toKind.canonicalInput(c.To.Port)
		if port == "" {
			port = g.nextFreeInput(c.To.BlockID, toKind)
		}
		if !toKind.acceptsInput(port) {
			return nil, invalid(CodeInvalidConnection, c.To.BlockID, "%s block has no input port %q", toKind, port)
		}
		in := g.inputs[c.To.BlockID]
		if in == nil {
			in = make(map[string]PortRef)
			g.inputs[c.To.BlockID] = in
		}
		if _, taken := in[port]; taken {
			return nil, invalid(CodeInvalidConnection, c.To.BlockID, "input port %q is connected more than once", port)
		}
		in[port] = from
	}

	if err := g.checkCycles(); err != nil {
		return nil, err
	}
	return g, nil
}

// checkOutput rejects references to ports a multi-output block does not produce. Single
// output blocks answer on any port name.
func (g *graph) checkOutput(ref PortRef) error {
	k := g.kinds[ref.BlockID]
	outs := k.Outputs()
	if len(outs) == 0 {
		return invalid(CodeInvalidConnection, ref.BlockID, "%s block has no outputs", k)
	}
	if len(outs) == 1 || ref.Port == "" || slices.Contains(outs, ref.Port) {
		return nil
	}
	return invalid(CodeInvalidConnection, ref.BlockID, "%s block has no output port %q", k, ref.Port)
}

// resolveOutput maps a requested port to the port the block actually caches.
func (g *graph) resolveOutput(ref PortRef) PortRef {
	outs := g.kinds[ref.BlockID].Outputs()
	if len(outs) == 0 {
		return ref
	}
	if ref.Port == "" || (len(outs) == 1 && ref.Port != outs[0]) {
		return PortRef{BlockID: ref.BlockID, Port: outs[0]}
	}
	return ref
}

// nextFreeInput assigns an unnamed input to a, b, c... in connection order.
func (g *graph) nextFreeInput(id string, k Kind) string {
	switch k {
	case KindEntrySignal, KindExitSignal:
		return PortSignal
	case KindSMA, KindEMA, KindRSI, KindMACD, KindBollinger, KindPriceVariationPct:
		return PortSource
	}
	in := g.inputs[id]
	for c := 'a'; ; c++ {
		if _, taken := in[string(c)]; !taken {
			return string(c)
		}
	}
}

// inputPorts returns the connected input ports of a block in name order.
func (g *graph) inputPorts(id string) []string {
	in := g.inputs[id]
	ports := make([]string, 0, len(in))
	for p := range in {
		ports = append(ports, p)
	}
	sort.Strings(ports)
	return ports
}

func (g *graph) checkCycles() error {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(g.blocks))
	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case grey:
			return invalid(CodeCycleDetected, id, "block graph contains a cycle through %q", id)
		case black:
			return nil
		}
		color[id] = grey
		for _, p := range g.inputPorts(id) {
			if err := visit(g.inputs[id][p].BlockID); err != nil {
				return err
			}
		}
		color[id] = black
		return nil
	}
	for _, id := range g.order {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}
