package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/wallet-pnl/internal/service"
)

// calculatePnLRequest is the body of POST /calculate_pnl
type calculatePnLRequest struct {
	Address   string  `json:"address"`
	StartTime *string `json:"start_time"`
	EndTime   *string `json:"end_time"`
	Detail    bool    `json:"detail"`
}

// handleCalculatePnL handles POST /calculate_pnl. The response is a JSON
// array of rows, one per timeline hour.
func (s *Server) handleCalculatePnL(w http.ResponseWriter, r *http.Request) {
	var req calculatePnLRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	s.computeAndRespond(w, r, &service.ComputePnLInput{
		Address:   req.Address,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Detail:    req.Detail,
	})
}

// handleGetWalletPnL handles GET /api/wallets/{address}/pnl?start_time=&end_time=&detail=
func (s *Server) handleGetWalletPnL(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	input := &service.ComputePnLInput{Address: mux.Vars(r)["address"]}
	if v := query.Get("start_time"); v != "" {
		input.StartTime = &v
	}
	if v := query.Get("end_time"); v != "" {
		input.EndTime = &v
	}
	if v := query.Get("detail"); v != "" {
		detail, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "detail must be a boolean", map[string]interface{}{
				"detail": v,
			})
			return
		}
		input.Detail = detail
	}

	s.computeAndRespond(w, r, input)
}

func (s *Server) computeAndRespond(w http.ResponseWriter, r *http.Request, input *service.ComputePnLInput) {
	ctx := r.Context()
	if s.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RequestTimeout)
		defer cancel()
	}

	result, err := s.pnlService.ComputePnL(ctx, input)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result.Rows)
}
