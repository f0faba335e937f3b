// Package proto holds the wire types shared by the HTTP and gRPC front ends.
package proto

import (
	"fmt"
	"net/http"
	"time"

	"strategylab/services/engine"
	"strategylab/services/market"
	"strategylab/services/runner"
	"strategylab/services/strategy"
	"strategylab/strategies"
)

// StrategySpec is either an inline block graph or a named template with parameters.
type StrategySpec struct {
	strategy.Definition
	Template string         `json:"template,omitempty"`
	Params   map[string]any `json:"params,omitempty"`
}

type BacktestRequest struct {
	Symbol    string   `json:"symbol,omitempty"`
	Symbols   []string `json:"symbols,omitempty"`
	Timeframe string   `json:"timeframe,omitempty"`
	// Unix milliseconds; zero leaves the bound open.
	StartTime int64           `json:"start_time,omitempty"`
	EndTime   int64           `json:"end_time,omitempty"`
	Strategy  StrategySpec    `json:"strategy"`
	Options   *engine.Options `json:"options,omitempty"`
	Candles   []market.Candle `json:"candles,omitempty"`
	Explain   bool            `json:"explain,omitempty"`
	SkipCache bool            `json:"skip_cache,omitempty"`
}

type JobRequest struct {
	JobID string `json:"job_id"`
}

// ErrorResponse wraps an APIError as the body of a failed call.
type ErrorResponse struct {
	Error *runner.APIError `json:"error"`
}

// BatchItem is one symbol's outcome inside a BatchResponse.
type BatchItem struct {
	Symbol   string           `json:"symbol"`
	JobID    string           `json:"job_id,omitempty"`
	Status   string           `json:"status"`
	Response *runner.Response `json:"response,omitempty"`
	Error    *runner.APIError `json:"error,omitempty"`
}

type BatchResponse struct {
	Results   []BatchItem `json:"results"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
}

type TemplateList struct {
	Templates []strategies.Template `json:"templates"`
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", runner.ErrInvalidParams, fmt.Sprintf(format, args...))
}

// Resolve returns the block graph to run, expanding a template when one is named.
func (s StrategySpec) Resolve() (strategy.Definition, error) {
	if s.Template == "" {
		return s.Definition, nil
	}
	if len(s.Blocks) > 0 {
		return strategy.Definition{}, badRequest("strategy sets both template and blocks")
	}
	def, err := strategies.Build(s.Template, s.Params)
	if err != nil {
		return strategy.Definition{}, &runner.APIError{
			Code:    runner.CodeInvalidStrategy,
			Message: "Strategy template could not be built",
			Details: err.Error(),
		}
	}
	return def, nil
}

// SymbolList merges Symbol and Symbols, dropping duplicates.
func (r *BacktestRequest) SymbolList() []string {
	var out []string
	seen := map[string]bool{}
	for _, s := range append([]string{r.Symbol}, r.Symbols...) {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// ToRunnerRequests expands the request into one runner request per symbol. Inline candles
// produce exactly one request. defaults fill in options when the caller sent none.
func (r *BacktestRequest) ToRunnerRequests(defaults engine.Options) ([]runner.Request, error) {
	def, err := r.Strategy.Resolve()
	if err != nil {
		return nil, err
	}

	var opts *engine.Options
	if r.Options != nil || r.Timeframe != "" {
		o := defaults
		if r.Options != nil {
			o = *r.Options
		}
		if r.Timeframe != "" {
			o.Timeframe = market.Timeframe(r.Timeframe)
		}
		opts = &o
	}

	var from, to time.Time
	if r.StartTime > 0 {
		from = time.UnixMilli(r.StartTime).UTC()
	}
	if r.EndTime > 0 {
		to = time.UnixMilli(r.EndTime).UTC()
	}
	if !from.IsZero() && !to.IsZero() && !to.After(from) {
		return nil, badRequest("end_time must be after start_time")
	}

	base := runner.Request{
		From:      from,
		To:        to,
		Strategy:  def,
		Options:   opts,
		Explain:   r.Explain,
		SkipCache: r.SkipCache,
	}
	symbols := r.SymbolList()
	if len(r.Candles) > 0 {
		if len(symbols) > 1 {
			return nil, badRequest("inline candles accept at most one symbol")
		}
		base.Candles = r.Candles
		if len(symbols) == 1 {
			base.Symbol = symbols[0]
		}
		return []runner.Request{base}, nil
	}
	if len(symbols) == 0 {
		return nil, badRequest("symbol or candles are required")
	}
	out := make([]runner.Request, len(symbols))
	for i, s := range symbols {
		out[i] = base
		out[i].Symbol = s
	}
	return out, nil
}

// NewBatchResponse pairs each outcome with the symbol it ran for.
func NewBatchResponse(reqs []runner.Request, outs []runner.Outcome) *BatchResponse {
	resp := &BatchResponse{Results: make([]BatchItem, len(outs))}
	for i, o := range outs {
		item := BatchItem{Symbol: reqs[o.Index].Symbol, Response: o.Response}
		if o.Response != nil {
			item.JobID = o.Response.JobID
		}
		if o.Err != nil {
			item.Status = runner.StatusFailed
			item.Error = runner.Classify(o.Err)
			item.Response = nil
			resp.Failed++
		} else {
			item.Status = runner.StatusSucceeded
			resp.Succeeded++
		}
		resp.Results[i] = item
	}
	return resp
}

// HTTPStatus maps an API error code onto a response status.
func HTTPStatus(code string) int {
	switch code {
	case runner.CodeInvalidStrategy, runner.CodeInvalidParams:
		return http.StatusBadRequest
	case runner.CodeDataNotFound:
		return http.StatusNotFound
	case runner.CodeTimeout:
		return http.StatusGatewayTimeout
	case runner.CodeOverloaded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
