package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rrpnode/internal/config"
	"rrpnode/internal/coordinator"
	"rrpnode/internal/keys"
	"rrpnode/internal/provider"
	"rrpnode/internal/request"
)

type Wallets interface {
	Status() keys.Status
	CreateWallet() (common.Address, error)
	ImportPrivateKey(hexKey string) (common.Address, error)
}

type BalanceReader interface {
	Balance(ctx context.Context, addr common.Address) (*uint256.Int, error)
}

// LastCycle holds the most recent coordinator state for readers.
type LastCycle struct {
	mu    sync.RWMutex
	state *coordinator.State
}

func (l *LastCycle) Set(s coordinator.State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = &s
}

func (l *LastCycle) Get() (coordinator.State, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.state == nil {
		return coordinator.State{}, false
	}
	return *l.state, true
}

type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	wallets  Wallets
	balances map[string]BalanceReader
	last     *LastCycle
	worker   http.Handler
}

// NewServer builds the status API. balances is keyed by chain id; worker,
// when non-nil, is mounted on /worker so other nodes can invoke this one as
// a remote function.
func NewServer(cfg *config.Config, logger *slog.Logger, wallets Wallets, balances map[string]BalanceReader, last *LastCycle, worker http.Handler) *Server {
	return &Server{cfg: cfg, logger: logger, wallets: wallets, balances: balances, last: last, worker: worker}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/state", s.withAuth(s.handleState))
	mux.HandleFunc("/requests", s.withAuth(s.handleRequests))
	mux.HandleFunc("/keys", s.withAuth(s.handleKeys))
	mux.HandleFunc("/balances", s.withAuth(s.handleBalances))
	mux.Handle("/metrics", promhttp.Handler())
	if s.worker != nil {
		mux.HandleFunc("/worker", s.withAuth(s.worker.ServeHTTP))
	}
	return mux
}

func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.API.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctxTimeout)
	}()
	s.logger.Info("status api listening", "addr", s.cfg.API.Listen)
	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.API.AuthToken != "" {
			token := r.Header.Get("X-API-Key")
			if token == "" {
				auth := r.Header.Get("Authorization")
				if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
					token = strings.TrimSpace(auth[7:])
				}
			}
			if token != s.cfg.API.AuthToken {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	out := map[string]interface{}{"status": "ok", "stage": s.cfg.Node.Stage}
	if st, ok := s.last.Get(); ok {
		out["lastCycleId"] = st.ID.String()
		out["lastCycleCompletedAt"] = st.CompletedAt
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	st, ok := s.last.Get()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no cycle completed yet")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type requestView struct {
	ChainID  string          `json:"chainId"`
	Provider string          `json:"provider"`
	Type     string          `json:"type"`
	Request  json.RawMessage `json:"request"`
}

// handleRequests lists the requests of the last cycle, optionally filtered
// by ?chain= and ?status=.
func (s *Server) handleRequests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	st, ok := s.last.Get()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no cycle completed yet")
		return
	}
	chain := r.URL.Query().Get("chain")
	var kind *request.Kind
	if v := r.URL.Query().Get("status"); v != "" {
		k, err := request.ParseKind(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		kind = &k
	}

	out := make([]requestView, 0)
	for _, p := range st.Providers {
		if chain != "" && p.ChainID != chain {
			continue
		}
		views, err := providerViews(p, kind)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out = append(out, views...)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"requests": out})
}

func providerViews(p provider.State, kind *request.Kind) ([]requestView, error) {
	var out []requestView
	for _, r := range p.Requests.ApiCalls {
		if kind != nil && r.Kind() != *kind {
			continue
		}
		b, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		out = append(out, requestView{p.ChainID, p.ProviderName, request.TypeApiCall.String(), b})
	}
	for _, r := range p.Requests.Withdrawals {
		if kind != nil && r.Kind() != *kind {
			continue
		}
		b, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		out = append(out, requestView{p.ChainID, p.ProviderName, request.TypeWithdrawal.String(), b})
	}
	return out, nil
}

type importRequest struct {
	PrivateKey string `json:"privateKey"`
}

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.wallets.Status())
	case http.MethodPost:
		var req importRequest
		if r.ContentLength != 0 {
			if err := readJSON(r, &req); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
		}
		var (
			addr common.Address
			err  error
		)
		if req.PrivateKey != "" {
			addr, err = s.wallets.ImportPrivateKey(req.PrivateKey)
		} else {
			addr, err = s.wallets.CreateWallet()
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Info("sponsor wallet added", "address", addr.Hex())
		writeJSON(w, http.StatusOK, map[string]interface{}{"address": addr.Hex()})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	addr, err := parseAddress(r.URL.Query().Get("address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	chain := r.URL.Query().Get("chain")
	reader, ok := s.balances[chain]
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown chain")
		return
	}
	bal, err := reader.Balance(r.Context(), addr)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"chainId": chain, "address": addr.Hex(), "wei": bal.Dec()})
}

func readJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer r.Body.Close()
	b, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	if len(b) == 0 {
		return errors.New("empty body")
	}
	return json.Unmarshal(b, v)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func parseAddress(value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return common.Address{}, errors.New("address is required")
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, errors.New("invalid address")
	}
	return common.HexToAddress(value), nil
}
