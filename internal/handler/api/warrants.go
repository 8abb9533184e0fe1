package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/danghungithp/chungquyen-VN/internal/domain/models"
	domrepo "github.com/danghungithp/chungquyen-VN/internal/domain/repository"
	"github.com/danghungithp/chungquyen-VN/internal/service/ratelimit"
	"github.com/danghungithp/chungquyen-VN/internal/services/pricing"
	"github.com/danghungithp/chungquyen-VN/internal/usecase"
	xhttp "github.com/danghungithp/chungquyen-VN/pkg/http"
	"github.com/danghungithp/chungquyen-VN/pkg/logger"
	"github.com/danghungithp/chungquyen-VN/pkg/util"
)

// Evaluator prices and scores a single warrant.
type Evaluator interface {
	Evaluate(ctx context.Context, symbol string, in models.PricingInputs, marketPrice float64) (models.PricingResult, error)
}

// BatchService runs the valuation pipeline over a universe or the stored snapshots.
type BatchService interface {
	RunBatch(ctx context.Context, universe []string, total float64) (*models.Portfolio, *models.BatchReport, error)
	AnalyzeSnapshots(ctx context.Context, total float64) (*models.Portfolio, *models.BatchReport, error)
}

// Downloader persists snapshots and trades.
type Downloader interface {
	DownloadSnapshots(ctx context.Context, universe []string) (*usecase.DownloadReport, error)
	DownloadTrades(ctx context.Context, universe []string, day time.Time) (*usecase.DownloadReport, error)
}

// HandlerConfig carries the request-independent settings of the API.
type HandlerConfig struct {
	FXBase      string
	FXQuote     string
	HistoryDays int
}

// BatchResponse is the body of a successful batch run.
type BatchResponse struct {
	Portfolio *models.Portfolio   `json:"portfolio"`
	Report    *models.BatchReport `json:"report"`
	Valuation *models.Valuation   `json:"valuation,omitempty"`
}

// SeriesResponse is the tail of a close history.
type SeriesResponse struct {
	Symbol string              `json:"symbol"`
	Count  int                 `json:"count"`
	Points []models.PricePoint `json:"points"`
}

// WarrantHandler exposes valuation, batch and download operations over HTTP.
type WarrantHandler struct {
	log     *logger.Logger
	eval    Evaluator
	batch   BatchService
	dl      Downloader // nil without storage
	market  domrepo.MarketData
	fx      *usecase.FXValuer
	store   domrepo.SnapshotStore // nil without storage
	limiter *ratelimit.Limiter
	cfg     HandlerConfig
	now     func() time.Time
}

func NewWarrantHandler(
	log *logger.Logger,
	eval Evaluator,
	batch BatchService,
	dl Downloader,
	market domrepo.MarketData,
	fx *usecase.FXValuer,
	store domrepo.SnapshotStore,
	limiter *ratelimit.Limiter,
	cfg HandlerConfig,
) *WarrantHandler {
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = 365
	}
	return &WarrantHandler{
		log:     log,
		eval:    eval,
		batch:   batch,
		dl:      dl,
		market:  market,
		fx:      fx,
		store:   store,
		limiter: limiter,
		cfg:     cfg,
		now:     time.Now,
	}
}

func (h *WarrantHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/api")
	g.POST("/evaluate", h.Evaluate)
	g.POST("/batch", h.Batch)
	g.GET("/quote", h.Quote)
	g.GET("/series/:symbol", h.Series)
	g.POST("/snapshots/download", h.DownloadSnapshots)
	g.POST("/trades/download", h.DownloadTrades)
}

// Evaluate prices one warrant from explicit inputs against a market price.
func (h *WarrantHandler) Evaluate(c echo.Context) error {
	req := &models.EvaluateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	in := models.PricingInputs{
		Spot:            req.Spot,
		Strike:          req.Strike,
		Volatility:      *req.Volatility,
		Rate:            *req.Rate,
		Expiry:          float64(*req.ExpiryDays) / pricing.StepsPerYear,
		ConversionRatio: *req.ConversionRatio,
	}
	res, err := h.eval.Evaluate(c.Request().Context(), req.Symbol, in, req.MarketPrice)
	if err != nil {
		h.log.Warn("evaluate failed", logger.String("symbol", req.Symbol), logger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

// Batch runs the full pipeline and allocates the requested total.
func (h *WarrantHandler) Batch(c echo.Context) error {
	if !h.allow(c, "batch") {
		return xhttp.AppErrorResponse(c, rateLimited())
	}
	req := &models.BatchRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	total, err := usecase.ParseInvestment(req.TotalInvestment)
	if err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	amount, _ := total.Float64()

	ctx := c.Request().Context()
	var (
		pf     *models.Portfolio
		report *models.BatchReport
	)
	if req.FromSnapshots {
		pf, report, err = h.batch.AnalyzeSnapshots(ctx, amount)
	} else {
		pf, report, err = h.batch.RunBatch(ctx, req.Symbols, amount)
	}
	if err != nil {
		appErr := toAppError(err)
		if report != nil {
			appErr.WithParam("run_id", report.RunID).WithParam("failures", report.Failures)
		}
		return xhttp.AppErrorResponse(c, appErr)
	}

	resp := &BatchResponse{Portfolio: pf, Report: report}
	if h.fx != nil && h.cfg.FXQuote != "" && h.cfg.FXQuote != h.cfg.FXBase {
		v, err := h.fx.Value(ctx, pf, h.cfg.FXBase, h.cfg.FXQuote)
		if err != nil {
			h.log.Warn("fx valuation unavailable", logger.String("run_id", report.RunID), logger.Error(err))
		} else {
			resp.Valuation = v
		}
	}
	return xhttp.SuccessResponse(c, resp)
}

// Quote prices a warrant from operator terms with the closed-form model.
func (h *WarrantHandler) Quote(c echo.Context) error {
	req := &models.QuoteRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	q, err := pricing.DirectQuote(pricing.QuoteInput{
		Spot:            req.Spot,
		Strike:          req.Strike,
		Expiry:          req.ExpiryDate,
		RatePercent:     *req.RatePercent,
		Sigma:           *req.Sigma,
		ConversionRatio: *req.ConversionRatio,
		Type:            models.OptionType(req.OptionType),
	}, h.now())
	if err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, q)
}

// Series returns the last closes of a symbol.
func (h *WarrantHandler) Series(c echo.Context) error {
	req := &models.SeriesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	to := h.now()
	s, err := h.market.History(c.Request().Context(), req.Symbol, to.AddDate(0, 0, -h.cfg.HistoryDays), to, domrepo.NormalizeInterval(req.Interval))
	if err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	pts := s.Points
	if tail := *req.Tail; len(pts) > tail {
		pts = pts[len(pts)-tail:]
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.SuccessResponse(c, &SeriesResponse{Symbol: req.Symbol, Count: s.Len(), Points: pts})
}

func (h *WarrantHandler) DownloadSnapshots(c echo.Context) error {
	if appErr := h.downloadAllowed(c); appErr != nil {
		return xhttp.AppErrorResponse(c, appErr)
	}
	req := &models.DownloadRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rep, err := h.dl.DownloadSnapshots(c.Request().Context(), req.Symbols)
	if err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, rep)
}

func (h *WarrantHandler) DownloadTrades(c echo.Context) error {
	if appErr := h.downloadAllowed(c); appErr != nil {
		return xhttp.AppErrorResponse(c, appErr)
	}
	req := &models.DownloadRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	day := util.StartOfDay(h.now())
	if req.Date != "" {
		d, err := util.ParseDate(req.Date)
		if err != nil {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError("date must be YYYY-MM-DD"))
		}
		day = d
	}
	rep, err := h.dl.DownloadTrades(c.Request().Context(), req.Symbols, day)
	if err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, rep)
}

func (h *WarrantHandler) downloadAllowed(c echo.Context) *xhttp.AppError {
	if h.dl == nil {
		return xhttp.NotFoundError("storage is disabled")
	}
	if !h.allow(c, "download") {
		return rateLimited()
	}
	return nil
}

// Health reports storage reachability.
func (h *WarrantHandler) Health(c echo.Context) error {
	if h.store != nil {
		if err := h.store.Health(c.Request().Context()); err != nil {
			h.log.Error("storage unhealthy", logger.Error(err))
			return xhttp.DataResponse(c, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		}
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

func (h *WarrantHandler) allow(c echo.Context, op string) bool {
	return h.limiter == nil || h.limiter.Allow(c.RealIP()+":"+op)
}
