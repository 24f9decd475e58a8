// Package main is the entry point for the DeFi risk monitor, an HTTP
// service that reads positions from lending, staking, and AMM protocols
// and turns them into per-account risk assessments.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/adapters"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/alerting"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/apperrors"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/auth"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/circuitbreaker"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/classify"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/config"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/database"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/degradation"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/model"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/otel"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/pricefeed"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/risk"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/security"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/validation"
)

// startTime records when the service was initialized for uptime reporting
var startTime = time.Now()

// Server wires the protocol adapters, risk calculators, and persistence
// behind the HTTP API.
type Server struct {
	cfg config.Config

	registry    *adapters.Registry
	calculators map[string]risk.Calculator
	store       *database.Store
	executor    *database.SafeExecutor
	degrade     *degradation.Controller
	auth        *auth.Service
	limiter     *auth.RateLimiter
	signer      *security.Signer
	notifier    *alerting.Notifier
	metrics     *serverMetrics

	server *http.Server
}

// serverMetrics holds Prometheus metrics for the server
type serverMetrics struct {
	requestCounter   *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	adapterErrors    *prometheus.CounterVec
	breakerOpen      *prometheus.GaugeVec
	riskScore        *prometheus.GaugeVec
	degradationLevel prometheus.Gauge
}

// registerMetrics sets up Prometheus metrics collection
func registerMetrics() *serverMetrics {
	m := &serverMetrics{
		requestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskmonitor_requests_total",
				Help: "Total number of requests processed",
			},
			[]string{"endpoint", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "riskmonitor_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		adapterErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskmonitor_adapter_errors_total",
				Help: "Total number of protocol adapter errors",
			},
			[]string{"protocol"},
		),
		breakerOpen: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "riskmonitor_circuit_breaker_state",
				Help: "Adapter circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"protocol"},
		),
		riskScore: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "riskmonitor_risk_score",
				Help: "Last computed overall risk score per protocol",
			},
			[]string{"protocol"},
		),
		degradationLevel: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "riskmonitor_degradation_level",
				Help: "Current degradation level (0=normal, 1=read-only, 2=limited, 3=emergency)",
			},
		),
	}

	prometheus.MustRegister(
		m.requestCounter,
		m.requestDuration,
		m.adapterErrors,
		m.breakerOpen,
		m.riskScore,
		m.degradationLevel,
	)

	return m
}

// main is the entry point for the application
func main() {
	setupLogging()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}

	shutdownTracer := otel.InitTracer(cfg.OtelEndpoint)
	defer shutdownTracer()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logrus.Fatalf("Database unavailable: %v", err)
	}
	defer db.Close()

	classifier := classify.NewClassifier()
	controller := degradation.NewController(classifier, degradation.DefaultThresholds())

	notifier := alerting.NewNotifier(alerting.Config{
		WebhookURL:    cfg.AlertWebhookURL,
		WebhookAPIKey: config.GetEnvOrDefault("ALERT_WEBHOOK_API_KEY", ""),
		RiskThreshold: cfg.AlertRiskThreshold,
	})
	defer notifier.Stop()

	writeBreaker := circuitbreaker.New("database_writes", 5, cfg.CircuitResetDelay)
	executor := database.NewSafeExecutor(db, writeBreaker, classifier, controller).
		WithAlertFunc(notifier.SystemAlert)

	eth, err := ethclient.Dial(cfg.EthereumRPCURL)
	if err != nil {
		logrus.Fatalf("Ethereum RPC unavailable: %v", err)
	}
	defer eth.Close()

	prices := pricefeed.NewService(
		pricefeed.NewCoinGeckoClient("", cfg.CoinGeckoAPIKey),
		pricefeed.NewCoinMarketCapClient("", cfg.CoinMarketCapAPIKey),
		pricefeed.NewCryptoCompareClient("", cfg.CryptoCompareAPIKey),
	)

	registry := buildRegistry(eth, prices, cfg)

	signer, err := security.NewSigner(time.Hour)
	if err != nil {
		logrus.Fatalf("Failed to initialize assessment signing: %v", err)
	}

	server := &Server{
		cfg:         cfg,
		registry:    registry,
		calculators: risk.ByProtocol(),
		store:       database.NewStore(db),
		executor:    executor,
		degrade:     controller,
		auth:        auth.NewService(cfg.JWTSecret, "defi-risk-monitor", 24*time.Hour),
		limiter:     auth.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		signer:      signer,
		notifier:    notifier,
		metrics:     registerMetrics(),
	}

	logrus.WithFields(logrus.Fields{
		"port":           cfg.Port,
		"protocols":      len(registry.Protocols()),
		"alert_webhook":  cfg.AlertWebhookURL != "",
		"otel_endpoint":  cfg.OtelEndpoint != "",
		"rate_limit_rps": cfg.RateLimitRPS,
	}).Info("Server initialized")

	server.Start()
}

// setupLogging configures the logging for the application
func setupLogging() {
	logFormat := strings.ToLower(os.Getenv("LOG_FORMAT"))
	logLevel := strings.ToLower(os.Getenv("LOG_LEVEL"))

	switch logFormat {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	switch logLevel {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "warn", "warning":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}

	logrus.Info("Logging configured")
}

// Start begins the HTTP server and sets up graceful shutdown
func (s *Server) Start() {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/assess", s.handleAssess)
	mux.HandleFunc("/assessments", s.handleHistory)
	mux.HandleFunc("/token", s.handleToken)
	mux.HandleFunc("/degradation", s.handleDegradation)

	s.server = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("Server starting on port %s", s.cfg.Port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Error starting server: %v", err)
		}
	}()

	// Idle rate limiter buckets, stale error counters, and degradation
	// recovery all run on the same cadence.
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	go func() {
		for range ticker.C {
			s.sweep()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		logrus.Fatalf("Server shutdown failed: %v", err)
	}

	logrus.Info("Server stopped")
}

// handleHealth is a simple health check endpoint, unauthenticated so load
// balancers can probe it.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "OK",
		"version":           "1.0.0",
		"uptime":            time.Since(startTime).String(),
		"degradation_level": s.degrade.GetCurrentLevel().String(),
		"timestamp":         time.Now().UTC().Format(time.RFC3339),
	})
}

// handleMetrics exposes Prometheus metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.publishGauges()
	promhttp.Handler().ServeHTTP(w, r)
}

// handleStatus provides detailed service status information
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.authorize(w, r, auth.RoleReader)
	if !ok {
		return
	}

	breakers := map[string]string{}
	for _, protocol := range s.registry.Protocols() {
		if state, ok := s.registry.BreakerState(protocol); ok {
			breakers[protocol] = state.String()
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "operational",
		"uptime":            time.Since(startTime).String(),
		"client":            claims.ClientID,
		"protocols":         s.registry.Protocols(),
		"circuit_breakers":  breakers,
		"degradation_level": s.degrade.GetCurrentLevel().String(),
		"capabilities":      s.degrade.GetCapabilities(),
		"pending_alerts":    s.notifier.Pending(),
		"signing_key":       s.signer.PublicKey(),
	})
}

// AssessRequest is the body of POST /assess. An empty protocol requests a
// portfolio assessment across every registered adapter.
type AssessRequest struct {
	Address  string `json:"address"`
	Protocol string `json:"protocol,omitempty"`
}

// AssessResponse wraps a single signed assessment with its persistence
// outcome.
type AssessResponse struct {
	Assessment  security.SignedAssessment `json:"assessment"`
	Persisted   bool                      `json:"persisted"`
	OperationID string                    `json:"operation_id,omitempty"`
	Warnings    []string                  `json:"warnings,omitempty"`
	LatencyMs   int64                     `json:"latency_ms"`
}

// handleAssess runs a risk assessment for one address, either on a single
// protocol or across the whole portfolio.
func (s *Server) handleAssess(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	claims, ok := s.authorize(w, r, auth.RoleReader)
	if !ok {
		return
	}
	if !s.limiter.Allow(claims.ClientID) {
		s.countRequest("assess", "rate_limited")
		s.writeError(w, apperrors.RateLimit("request rate exceeded for client "+claims.ClientID))
		return
	}

	var req AssessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.countRequest("assess", "bad_request")
		s.writeError(w, apperrors.Validation("invalid request body"))
		return
	}
	if !common.IsHexAddress(req.Address) {
		s.countRequest("assess", "bad_request")
		s.writeError(w, apperrors.Validation("address must be a hex Ethereum address"))
		return
	}

	if !s.degrade.CanPerformOperation("calculate_risk") {
		s.countRequest("assess", "degraded")
		s.writeError(w, apperrors.API("risk calculation disabled at current degradation level", nil))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	address := common.HexToAddress(req.Address)

	if req.Protocol != "" {
		s.assessProtocol(ctx, w, req.Protocol, address, start)
		return
	}
	s.assessPortfolio(ctx, w, address, start)
}

// assessProtocol fetches one protocol summary, scores it, signs the
// result, and persists it through the write safety bracket.
func (s *Server) assessProtocol(ctx context.Context, w http.ResponseWriter, protocol string, address common.Address, start time.Time) {
	summary, err := s.registry.Fetch(ctx, protocol, address)
	if err != nil {
		s.metrics.adapterErrors.WithLabelValues(protocol).Inc()
		s.recordError(err)
		otel.RecordError(ctx, err)
		s.countRequest("assess", "error")
		s.writeError(w, err)
		return
	}

	assessment, warnings, err := s.assess(summary)
	if err != nil {
		s.countRequest("assess", "error")
		s.writeError(w, err)
		return
	}

	signed, err := s.signer.Sign(assessment)
	if err != nil {
		s.countRequest("assess", "error")
		s.writeError(w, err)
		return
	}

	resp := AssessResponse{
		Assessment: signed,
		Warnings:   warnings,
		LatencyMs:  time.Since(start).Milliseconds(),
	}
	if result := s.persist(ctx, assessment); result != nil {
		resp.Persisted = result.Success && result.IntegrityVerified
		resp.OperationID = result.OperationID.String()
	}

	s.countRequest("assess", "success")
	s.metrics.requestDuration.WithLabelValues("assess").Observe(time.Since(start).Seconds())
	s.writeJSON(w, http.StatusOK, resp)
}

// PortfolioResponse is the body returned for portfolio-wide assessments.
type PortfolioResponse struct {
	Portfolio      risk.PortfolioAssessment `json:"portfolio"`
	FailedAdapters map[string]string        `json:"failed_adapters,omitempty"`
	LatencyMs      int64                    `json:"latency_ms"`
}

// assessPortfolio fans out across every registered adapter and combines
// the per-protocol assessments value-weighted.
func (s *Server) assessPortfolio(ctx context.Context, w http.ResponseWriter, address common.Address, start time.Time) {
	summaries, fetchErrs := s.registry.FetchAll(ctx, address)

	failed := map[string]string{}
	for protocol, err := range fetchErrs {
		s.metrics.adapterErrors.WithLabelValues(protocol).Inc()
		s.recordError(err)
		failed[protocol] = apperrors.MessageOf(err)
	}
	if len(summaries) == 0 {
		s.countRequest("assess", "error")
		s.writeError(w, apperrors.API("no protocol data available for address", nil))
		return
	}

	var assessments []model.RiskAssessment
	valueByProtocol := map[string]float64{}
	for _, summary := range summaries {
		assessment, _, err := s.assess(summary)
		if err != nil {
			logrus.Warnf("Skipping %s in portfolio: %v", summary.Protocol, err)
			failed[summary.Protocol] = apperrors.MessageOf(err)
			continue
		}
		assessments = append(assessments, assessment)
		valueByProtocol[summary.Protocol] = summary.TotalCollateralUSD + summary.TotalSupplyUSD
		s.persist(ctx, assessment)
	}
	if len(assessments) == 0 {
		s.countRequest("assess", "error")
		s.writeError(w, apperrors.API("no protocol could be assessed for address", nil))
		return
	}

	portfolio := risk.CombinePortfolio(address.Hex(), assessments, valueByProtocol)

	s.countRequest("assess", "success")
	s.metrics.requestDuration.WithLabelValues("assess").Observe(time.Since(start).Seconds())
	s.writeJSON(w, http.StatusOK, PortfolioResponse{
		Portfolio:      portfolio,
		FailedAdapters: failed,
		LatencyMs:      time.Since(start).Milliseconds(),
	})
}

// assess filters a summary's positions, runs the matching calculator, and
// feeds the result to alerting and metrics.
func (s *Server) assess(summary model.AccountSummary) (model.RiskAssessment, []string, error) {
	warnings := validation.ValidateSummary(summary)
	summary.Positions = validation.FilterPositions(summary.Positions)

	calculator, ok := s.calculators[summary.Protocol]
	if !ok {
		return model.RiskAssessment{}, nil, apperrors.NotFound("no risk calculator for protocol " + summary.Protocol)
	}

	assessment := calculator.Calculate(summary)
	s.metrics.riskScore.WithLabelValues(summary.Protocol).Set(assessment.OverallRiskScore)
	s.notifier.ObserveAssessment(assessment)
	return assessment, warnings, nil
}

// persist stores an assessment through the safe write path. Returns nil
// when writes are disabled so read paths keep working during degradation.
func (s *Server) persist(ctx context.Context, a model.RiskAssessment) *database.WriteResult {
	if !s.degrade.CanPerformOperation("write") {
		logrus.Debugf("Skipping persistence for %s/%s: writes disabled", a.Address, a.Protocol)
		return nil
	}

	result := s.executor.ExecuteWrite(ctx, database.WriteOp{
		Name: "save_assessment",
		Execute: func(ctx context.Context) error {
			return s.store.SaveAssessment(ctx, a)
		},
		VerifyCheck: func(ctx context.Context) error {
			_, err := s.store.LatestAssessment(ctx, a.Address, a.Protocol)
			return err
		},
	})
	if !result.Success {
		logrus.Warnf("Failed to persist assessment for %s/%s: %v", a.Address, a.Protocol, result.Errors)
	}
	return &result
}

// handleHistory returns recently persisted assessments for an address.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.authorize(w, r, auth.RoleReader)
	if !ok {
		return
	}
	if !s.limiter.Allow(claims.ClientID) {
		s.writeError(w, apperrors.RateLimit("request rate exceeded for client "+claims.ClientID))
		return
	}

	address := r.URL.Query().Get("address")
	if !common.IsHexAddress(address) {
		s.writeError(w, apperrors.Validation("address must be a hex Ethereum address"))
		return
	}
	limit := intQuery(r, "limit", 20)

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	checksummed := common.HexToAddress(address).Hex()
	assessments, err := s.store.RecentAssessments(ctx, checksummed, limit)
	if err != nil {
		s.recordError(err)
		s.writeError(w, err)
		return
	}
	total, err := s.store.CountAssessments(ctx, checksummed)
	if err != nil {
		total = int64(len(assessments))
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"address":     checksummed,
		"assessments": assessments,
		"count":       len(assessments),
		"total":       total,
	})
}

// TokenRequest is the body of POST /token.
type TokenRequest struct {
	ClientID string `json:"client_id"`
	Role     string `json:"role"`
}

// handleToken mints API tokens for new clients. Admin only; the first
// admin token is minted out of band with the shared secret.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, ok := s.authorize(w, r, auth.RoleAdmin); !ok {
		return
	}

	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperrors.Validation("invalid request body"))
		return
	}
	if req.ClientID == "" {
		s.writeError(w, apperrors.Validation("client_id is required"))
		return
	}
	if req.Role != auth.RoleReader && req.Role != auth.RoleAdmin {
		s.writeError(w, apperrors.Validation("role must be reader or admin"))
		return
	}

	token, err := s.auth.IssueToken(req.ClientID, req.Role)
	if err != nil {
		s.writeError(w, err)
		return
	}

	logrus.Infof("Issued %s token for client %s", req.Role, req.ClientID)
	s.writeJSON(w, http.StatusOK, map[string]string{
		"token":     token,
		"client_id": req.ClientID,
		"role":      req.Role,
	})
}

// handleDegradation views and controls the degradation level. Overrides
// are admin only.
func (s *Server) handleDegradation(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		if _, ok := s.authorize(w, r, auth.RoleReader); !ok {
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"level":        s.degrade.GetCurrentLevel().String(),
			"capabilities": s.degrade.GetCapabilities(),
		})
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, ok := s.authorize(w, r, auth.RoleAdmin); !ok {
		return
	}

	action := r.URL.Query().Get("action")
	switch action {
	case "override":
		level, err := parseLevel(r.URL.Query().Get("level"))
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.degrade.Override(level)
		logrus.Warnf("Degradation level manually overridden to %s", level)
	case "clear":
		s.degrade.ClearOverride()
		logrus.Info("Degradation override cleared")
	default:
		s.writeError(w, apperrors.Validation("action must be override or clear"))
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"level":        s.degrade.GetCurrentLevel().String(),
		"capabilities": s.degrade.GetCapabilities(),
	})
}

// publishGauges refreshes gauges that track slowly changing state so a
// scrape reflects the current picture.
func (s *Server) publishGauges() {
	s.metrics.degradationLevel.Set(float64(s.degrade.GetCurrentLevel()))
	for _, protocol := range s.registry.Protocols() {
		if state, ok := s.registry.BreakerState(protocol); ok {
			s.metrics.breakerOpen.WithLabelValues(protocol).Set(float64(state))
		}
	}
}

func (s *Server) countRequest(endpoint, status string) {
	s.metrics.requestCounter.WithLabelValues(endpoint, status).Inc()
}

// sweep drops idle rate limiter buckets, clears stale error counters, and
// steps the degradation level back toward normal one notch at a time.
func (s *Server) sweep() {
	s.limiter.Cleanup()
	s.degrade.ClearErrorCounters()
	if s.degrade.AttemptRecovery() {
		logrus.Infof("Degradation level recovered to %s", s.degrade.GetCurrentLevel())
	}
}

// recordError feeds a failure to the degradation controller and forwards
// alert-worthy classifications to the webhook notifier.
func (s *Server) recordError(err error) {
	if class := s.degrade.RecordError(err); class.ShouldAlert {
		s.notifier.SystemAlert(class.Severity, apperrors.MessageOf(err))
	}
}
