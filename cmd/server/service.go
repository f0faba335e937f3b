package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"strategylab/proto"
	"strategylab/services/arrowpipeline"
	"strategylab/services/monitoring"
	"strategylab/services/runner"
	"strategylab/services/strategy"
	"strategylab/strategies"
)

const version = "1.0.0"

// BacktestService serves backtests over gRPC and HTTP.
type BacktestService struct {
	proto.UnimplementedBacktestServiceServer
	runner        *runner.Runner
	planner       *runner.Planner
	arrowPipeline *arrowpipeline.Pipeline
	metrics       *monitoring.Metrics
	logger        *zap.Logger
	timeout       time.Duration
	started       time.Time
}

func NewBacktestService(r *runner.Runner, planner *runner.Planner, pipeline *arrowpipeline.Pipeline, metrics *monitoring.Metrics, logger *zap.Logger, timeout time.Duration) *BacktestService {
	return &BacktestService{
		runner:        r,
		planner:       planner,
		arrowPipeline: pipeline,
		metrics:       metrics,
		logger:        logger,
		timeout:       timeout,
		started:       time.Now(),
	}
}

func (s *BacktestService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// runAll executes a request set. Multi-symbol sets go through the planner.
func (s *BacktestService) runAll(ctx context.Context, reqs []runner.Request) []runner.Outcome {
	if len(reqs) == 1 {
		resp, err := s.runner.Run(ctx, reqs[0])
		return []runner.Outcome{{Index: 0, Response: resp, Err: err}}
	}
	symbols := make([]string, len(reqs))
	for i, r := range reqs {
		symbols[i] = r.Symbol
	}
	return s.runner.RunSymbols(ctx, s.planner, reqs[0], symbols)
}

// ExecuteBacktest implements the gRPC ExecuteBacktest method
func (s *BacktestService) ExecuteBacktest(ctx context.Context, req *proto.BacktestRequest) (*proto.BatchResponse, error) {
	reqs, err := req.ToRunnerRequests(s.runner.Defaults())
	if err != nil {
		return nil, proto.StatusError(err)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	s.logger.Info("Starting backtest execution",
		zap.Strings("symbols", req.SymbolList()),
		zap.String("timeframe", req.Timeframe),
		zap.Int64("start_time", req.StartTime),
		zap.Int64("end_time", req.EndTime))
	return proto.NewBatchResponse(reqs, s.runAll(ctx, reqs)), nil
}

func (s *BacktestService) GetBacktest(_ context.Context, req *proto.JobRequest) (*runner.Response, error) {
	resp, ok := s.runner.Jobs().Get(req.JobID)
	if !ok {
		return nil, proto.StatusError(&runner.APIError{Code: runner.CodeDataNotFound, Message: "Unknown job", Details: req.JobID})
	}
	return resp, nil
}

// HTTP handlers for REST API
func (s *BacktestService) setupHTTPRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.POST("/backtest", s.handleBacktestRequest)
		api.POST("/backtest/batch", s.handleBatchRequest)
		api.GET("/backtest/:job_id", s.handleGetBacktestResult)
		api.GET("/backtest/:job_id/trades.arrow", s.handleArrowExport)
		api.GET("/backtest/:job_id/equity.arrow", s.handleArrowExport)
		api.GET("/trades/:trade_id/explanation", s.handleTradeExplanation)
		api.GET("/strategies/templates", s.handleTemplates)
		api.POST("/strategies/validate", s.handleValidateStrategy)
		api.GET("/health", s.handleHealthCheck)
	}
	if s.metrics != nil {
		h := gin.WrapH(s.metrics.Handler())
		r.GET("/metrics", h)
		api.GET("/metrics", h)
	}
}

func abortWithError(c *gin.Context, err error) {
	api := runner.Classify(err)
	c.JSON(proto.HTTPStatus(api.Code), proto.ErrorResponse{Error: api})
}

func (s *BacktestService) bind(c *gin.Context) ([]runner.Request, bool) {
	var req proto.BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, &runner.APIError{Code: runner.CodeInvalidParams, Message: "Malformed request body", Details: err.Error()})
		return nil, false
	}
	reqs, err := req.ToRunnerRequests(s.runner.Defaults())
	if err != nil {
		abortWithError(c, err)
		return nil, false
	}
	return reqs, true
}

func (s *BacktestService) handleBacktestRequest(c *gin.Context) {
	reqs, ok := s.bind(c)
	if !ok {
		return
	}
	ctx, cancel := s.withTimeout(c.Request.Context())
	defer cancel()

	if len(reqs) > 1 {
		c.JSON(http.StatusOK, proto.NewBatchResponse(reqs, s.runAll(ctx, reqs)))
		return
	}
	resp, err := s.runner.Run(ctx, reqs[0])
	if err != nil {
		s.logger.Error("Backtest request failed", zap.Error(err))
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *BacktestService) handleBatchRequest(c *gin.Context) {
	reqs, ok := s.bind(c)
	if !ok {
		return
	}
	ctx, cancel := s.withTimeout(c.Request.Context())
	defer cancel()
	c.JSON(http.StatusOK, proto.NewBatchResponse(reqs, s.runAll(ctx, reqs)))
}

func (s *BacktestService) handleGetBacktestResult(c *gin.Context) {
	resp, err := s.GetBacktest(c.Request.Context(), &proto.JobRequest{JobID: c.Param("job_id")})
	if err != nil {
		abortWithError(c, &runner.APIError{Code: runner.CodeDataNotFound, Message: "Unknown job", Details: c.Param("job_id")})
		return
	}
	c.JSON(http.StatusOK, resp)
}

const arrowStreamType = "application/vnd.apache.arrow.stream"

// handleArrowExport streams a finished job's trades or equity curve as Arrow IPC.
func (s *BacktestService) handleArrowExport(c *gin.Context) {
	resp, ok := s.runner.Jobs().Get(c.Param("job_id"))
	if !ok || resp.Result == nil {
		abortWithError(c, &runner.APIError{Code: runner.CodeDataNotFound, Message: "No result for job", Details: c.Param("job_id")})
		return
	}
	c.Header("Content-Type", arrowStreamType)
	c.Status(http.StatusOK)
	var err error
	if strings.HasSuffix(c.FullPath(), "trades.arrow") {
		err = s.arrowPipeline.WriteTrades(c.Writer, resp.Result.Trades)
	} else {
		err = s.arrowPipeline.WriteEquity(c.Writer, resp.Result.EquityCurve, resp.Result.BenchmarkCurve)
	}
	if err != nil {
		s.logger.Error("Arrow export failed", zap.String("job_id", resp.JobID), zap.Error(err))
	}
}

func (s *BacktestService) handleTradeExplanation(c *gin.Context) {
	x, ok := s.runner.Explanations().Get(c.Param("trade_id"))
	if !ok {
		abortWithError(c, &runner.APIError{
			Code:    runner.CodeDataNotFound,
			Message: "No explanation for trade",
			Details: "run the backtest with explain enabled",
		})
		return
	}
	c.JSON(http.StatusOK, x)
}

func (s *BacktestService) handleTemplates(c *gin.Context) {
	var list proto.TemplateList
	for _, name := range strategies.Names() {
		t, _ := strategies.Lookup(name)
		list.Templates = append(list.Templates, t)
	}
	c.JSON(http.StatusOK, list)
}

func (s *BacktestService) handleValidateStrategy(c *gin.Context) {
	var spec proto.StrategySpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		abortWithError(c, &runner.APIError{Code: runner.CodeInvalidParams, Message: "Malformed request body", Details: err.Error()})
		return
	}
	def, err := spec.Resolve()
	if err == nil {
		err = strategy.Validate(def)
	}
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"valid": false, "error": runner.Classify(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "warmup_bars": def.WarmupBars(), "blocks": len(def.Blocks)})
}

func (s *BacktestService) handleHealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"timestamp":   time.Now().Unix(),
		"version":     version,
		"uptime_s":    int64(time.Since(s.started).Seconds()),
		"queue_depth": s.runner.Backpressure().Len(),
	})
}
