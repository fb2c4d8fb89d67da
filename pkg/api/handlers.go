package api

import (
	"context"
	"net/http"

	"github.com/smartkey-protocol/smartkey-go/pkg/delegation"
	"github.com/smartkey-protocol/smartkey-go/pkg/fault"
	"github.com/smartkey-protocol/smartkey-go/pkg/identity"
	"github.com/smartkey-protocol/smartkey-go/pkg/registry"
)

func pathTokenID(r *http.Request) (identity.TokenID, error) {
	id, err := identity.ParseTokenID(r.PathValue("id"))
	if err != nil {
		return identity.ZeroTokenID, fault.BadInput("invalid token id")
	}
	return id, nil
}

func pathAddress(r *http.Request, name string) (identity.Address, error) {
	addr, err := identity.ParseAddress(r.PathValue(name))
	if err != nil {
		return identity.ZeroAddress, fault.BadInput("invalid address: " + name)
	}
	return addr, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ready, err := s.registry.Ready(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	total, err := s.registry.TotalSupply(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := "ok"
	if !ready {
		status = "waiting_for_authority"
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:      status,
		Version:     s.config.Version,
		Registry:    s.registry.Address(),
		Ready:       ready,
		TotalSupply: total,
	})
}

func (s *Server) handleInterface(w http.ResponseWriter, r *http.Request) {
	id, err := registry.ParseInterfaceID(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, fault.BadInput(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, InterfaceResponse{
		ID:        registry.FormatInterfaceID(id),
		Supported: s.registry.SupportsInterface(id),
	})
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req MintRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := s.registry.Mint(r.Context(), CallerFromContext(r.Context()), req.Device, req.Owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tokenIDResponse(id))
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	id, err := pathTokenID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.registry.Record(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	approved, err := s.registry.GetApproved(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{
		TokenIDResponse: tokenIDResponse(id),
		Record:          rec,
		Approved:        approved,
	})
}

func (s *Server) handleBurn(w http.ResponseWriter, r *http.Request) {
	id, err := pathTokenID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.registry.Burn(r.Context(), CallerFromContext(r.Context()), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	id, err := pathTokenID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req TransferRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.registry.TransferFrom(r.Context(), CallerFromContext(r.Context()), req.From, req.To, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	id, err := pathTokenID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req ApproveRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.registry.Approve(r.Context(), CallerFromContext(r.Context()), req.To, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathTokenID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req SetUserRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.registry.SetUser(r.Context(), CallerFromContext(r.Context()), id, req.User); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetTimeout(w http.ResponseWriter, r *http.Request) {
	id, err := pathTokenID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req TimeoutRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.registry.SetTimeout(r.Context(), CallerFromContext(r.Context()), id, req.Timeout); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCheckTimeout(w http.ResponseWriter, r *http.Request) {
	id, err := pathTokenID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	expired, err := s.registry.CheckTimeout(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ExpiryResponse{ID: id, Expired: expired})
}

func (s *Server) handleStartOwnerEngagement(w http.ResponseWriter, r *http.Request) {
	s.startEngagement(w, r, s.registry.StartOwnerEngagement)
}

func (s *Server) handleStartUserEngagement(w http.ResponseWriter, r *http.Request) {
	s.startEngagement(w, r, s.registry.StartUserEngagement)
}

type startFunc = func(ctx context.Context, caller identity.Address, id identity.TokenID, publicKey []byte, expectedHash identity.Hash) error

func (s *Server) startEngagement(w http.ResponseWriter, r *http.Request, start startFunc) {
	id, err := pathTokenID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req StartEngagementRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := start(r.Context(), CallerFromContext(r.Context()), id, req.PublicKey, req.ExpectedHash); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleOwnerEngagement(w http.ResponseWriter, r *http.Request) {
	s.deviceEngagement(w, r, s.registry.OwnerEngagement)
}

func (s *Server) handleUserEngagement(w http.ResponseWriter, r *http.Request) {
	s.deviceEngagement(w, r, s.registry.UserEngagement)
}

type confirmFunc = func(ctx context.Context, caller identity.Address, hash identity.Hash) (identity.TokenID, error)

func (s *Server) deviceEngagement(w http.ResponseWriter, r *http.Request, confirm confirmFunc) {
	var req DeviceEngagementRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := confirm(r.Context(), CallerFromContext(r.Context()), req.Hash)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenIDResponse(id))
}

func (s *Server) handleDelegate(w http.ResponseWriter, r *http.Request) {
	var req DelegateRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	signed := delegation.Request{
		RequestType: req.RequestType,
		Timestamp:   req.Timestamp,
		Nonce:       req.Nonce,
	}
	id, err := s.registry.DelegateUserEngagement(r.Context(), CallerFromContext(r.Context()), signed, req.Signature)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenIDResponse(id))
}

func (s *Server) handleUpdateTimestamp(w http.ResponseWriter, r *http.Request) {
	id, err := s.registry.UpdateTimestamp(r.Context(), CallerFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenIDResponse(id))
}

func (s *Server) handleTokenOfDevice(w http.ResponseWriter, r *http.Request) {
	device, err := pathAddress(r, "addr")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := s.registry.TokenOfDevice(r.Context(), device)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenIDResponse(id))
}

func (s *Server) handleSetOperator(w http.ResponseWriter, r *http.Request) {
	var req OperatorRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	caller := CallerFromContext(r.Context())
	if err := s.registry.SetApprovalForAll(r.Context(), caller, req.Operator, req.Approved); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OperatorResponse{Owner: caller, Operator: req.Operator, Approved: req.Approved})
}

func (s *Server) handleIsOperator(w http.ResponseWriter, r *http.Request) {
	owner, err := pathAddress(r, "addr")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	operator, err := pathAddress(r, "operator")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OperatorResponse{
		Owner:    owner,
		Operator: operator,
		Approved: s.registry.IsApprovedForAll(r.Context(), owner, operator),
	})
}

func (s *Server) handleOwnerBalance(w http.ResponseWriter, r *http.Request) {
	s.balance(w, r, s.registry.BalanceOf)
}

func (s *Server) handleUserBalance(w http.ResponseWriter, r *http.Request) {
	s.balance(w, r, s.registry.UserBalanceOf)
}

func (s *Server) balance(w http.ResponseWriter, r *http.Request, lookup func(context.Context, identity.Address) (uint64, error)) {
	addr, err := pathAddress(r, "addr")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	n, err := lookup(r.Context(), addr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{Address: addr, Balance: n})
}
