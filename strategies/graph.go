package strategies

import "strategylab/services/strategy"

// builder accumulates blocks and connections for a template graph.
type builder struct {
	def strategy.Definition
}

func (b *builder) block(id, typ string, p strategy.Params) string {
	b.def.Blocks = append(b.def.Blocks, strategy.Block{ID: id, Type: typ, Params: p})
	return id
}

func (b *builder) wire(from, fromPort, to, toPort string) {
	b.def.Connections = append(b.def.Connections, strategy.Connection{
		From: strategy.PortRef{BlockID: from, Port: fromPort},
		To:   strategy.PortRef{BlockID: to, Port: toPort},
	})
}

// risk appends the risk block for key when the parameter is positive.
func (b *builder) risk(p strategy.Params, key, typ, param string) {
	if v := p.Float(0, key); v > 0 {
		b.block(typ, typ, strategy.Params{param: v})
	}
}
