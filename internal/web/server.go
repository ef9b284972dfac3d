// Package web is the operator surface: portfolio status, the sweep journal
// and the one manual action the system accepts, clearing halts.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/vadiminshakov/mirra/internal/domain"
	"github.com/vadiminshakov/mirra/internal/portfolio"
	"github.com/vadiminshakov/mirra/internal/storage/sweeps"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"
)

type bookReader interface {
	Snapshot() portfolio.Snapshot
}

type riskController interface {
	State() domain.RiskState
	LastErrors() map[string]string
	ClearHalts()
}

// Server exposes the HTTP API.
type Server struct {
	addr    string
	book    bookReader
	risk    riskController
	journal *sweeps.Store
	webhook http.Handler
	// tlsHosts enables autocert for the given hostnames; empty serves plain HTTP
	tlsHosts []string
	l        *zap.Logger
}

func NewServer(addr string, book bookReader, risk riskController, journal *sweeps.Store, webhook http.Handler, tlsHosts []string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		addr:     addr,
		book:     book,
		risk:     risk,
		journal:  journal,
		webhook:  webhook,
		tlsHosts: tlsHosts,
		l:        logger,
	}
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/halts/clear", s.handleClearHalts)
	mux.HandleFunc("/sweeps", s.handleSweeps)
	if s.webhook != nil {
		mux.Handle("/notifications", s.webhook)
	}

	server := &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	var err error
	if len(s.tlsHosts) > 0 {
		manager := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(s.tlsHosts...),
			Cache:      autocert.DirCache("./certs"),
		}
		server.TLSConfig = manager.TLSConfig()
		s.l.Info("web server listening with autocert", zap.String("addr", s.addr))
		err = server.ListenAndServeTLS("", "")
	} else {
		s.l.Info("web server listening", zap.String("addr", s.addr))
		err = server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type statusResponse struct {
	Base           string           `json:"base"`
	Stable         string           `json:"stable"`
	PositionsValue string           `json:"positions_value"`
	Total          string           `json:"total"`
	Positions      []positionStatus `json:"positions"`
	RealizedGain   string           `json:"realized_gain"`
	LastRebalance  time.Time        `json:"last_rebalance,omitempty"`
	LastHarvest    time.Time        `json:"last_harvest,omitempty"`
	Risk           riskStatus       `json:"risk"`
}

type positionStatus struct {
	Token      string `json:"token"`
	Size       string `json:"size"`
	EntryPrice string `json:"entry_price"`
	MarkPrice  string `json:"mark_price"`
	MarkStale  bool   `json:"mark_stale,omitempty"`
	Value      string `json:"value"`
	PnL        string `json:"pnl"`
}

type riskStatus struct {
	Level                string            `json:"level"`
	Drawdown             string            `json:"drawdown"`
	ConsecutiveLosses    int               `json:"consecutive_losses"`
	RequiresManualReview bool              `json:"requires_manual_review"`
	LastErrors           map[string]string `json:"last_errors,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := s.book.Snapshot()
	state := s.risk.State()

	resp := statusResponse{
		Base:           snap.Base.String(),
		Stable:         snap.Stable.String(),
		PositionsValue: snap.PositionsValue.String(),
		Total:          snap.Total.String(),
		RealizedGain:   snap.RealizedGain.String(),
		LastRebalance:  snap.LastRebalance,
		LastHarvest:    snap.LastHarvest,
		Risk: riskStatus{
			Level:                state.Level.String(),
			Drawdown:             state.Drawdown.String(),
			ConsecutiveLosses:    state.ConsecutiveLosses,
			RequiresManualReview: state.RequiresManualReview,
			LastErrors:           s.risk.LastErrors(),
		},
	}
	for _, pos := range snap.Positions {
		resp.Positions = append(resp.Positions, positionStatus{
			Token:      string(pos.Token),
			Size:       pos.Size.String(),
			EntryPrice: pos.EntryPrice.String(),
			MarkPrice:  pos.MarkPrice.String(),
			MarkStale:  pos.MarkStale,
			Value:      pos.Value().String(),
			PnL:        pos.UnrealizedPnL().String(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.l.Warn("status encode failed", zap.Error(err))
	}
}

// handleClearHalts is the operator action that releases a system halt.
func (s *Server) handleClearHalts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	before := s.risk.State().Level
	s.risk.ClearHalts()
	s.l.Warn("halts cleared via API", zap.String("previous_level", before.String()))

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"previous_level": before.String(),
		"level":          domain.HaltNone.String(),
	})
}

func (s *Server) handleSweeps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.journal == nil {
		http.Error(w, "sweep journal not available", http.StatusServiceUnavailable)
		return
	}

	records, err := s.journal.List()
	if err != nil {
		s.l.Warn("sweep journal read failed", zap.Error(err))
		http.Error(w, "failed to read sweep journal", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(records)
}
