package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tolelom/tolarcade/core"
	"github.com/tolelom/tolarcade/indexer"
	"github.com/tolelom/tolarcade/vm/modules/arcade"
)

// Viewer gives consistent read access to ledger state between blocks.
type Viewer interface {
	View(fn func(core.State) error) error
	Now() time.Time
}

// Handler holds all dependencies needed to serve RPC methods.
type Handler struct {
	bc      *core.Blockchain
	mempool *core.Mempool
	viewer  Viewer
	indexer *indexer.Indexer
	chainID string // expected chain_id; used to reject cross-chain replay transactions
}

// NewHandler creates an RPC Handler.
func NewHandler(bc *core.Blockchain, mempool *core.Mempool, viewer Viewer, idx *indexer.Indexer, chainID string) *Handler {
	return &Handler{bc: bc, mempool: mempool, viewer: viewer, indexer: idx, chainID: chainID}
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "getBlockHeight":
		return okResponse(req.ID, h.bc.Height())
	case "getBlock":
		return h.getBlock(req)
	case "getBalance":
		return h.getBalance(req)
	case "sendTx":
		return h.sendTx(req)
	case "getMempoolSize":
		return okResponse(req.ID, h.mempool.Size())
	case "getReceipt":
		return h.getReceipt(req)

	case "getSession":
		return h.getSession(req)
	case "getGame":
		return h.getGame(req)
	case "getDeposit":
		return h.getDeposit(req)
	case "getPendingPayout":
		return h.getPendingPayout(req)
	case "getPlayerStats":
		return h.getPlayerStats(req)
	case "getRemainingCapacity":
		return h.getRemainingCapacity(req)
	case "getActiveSessions":
		return h.getActiveSessions(req)
	case "getBreaker":
		now := h.viewer.Now().UnixNano()
		return h.view(req, func(st core.State) (any, error) { return arcade.Breaker(st, now) })
	case "getProposal":
		return h.getProposal(req)
	case "getParams":
		return h.view(req, func(st core.State) (any, error) { return arcade.Params(st) })
	case "getTotals":
		return h.view(req, func(st core.State) (any, error) { return arcade.Totals(st) })
	case "checkSolvency":
		return h.view(req, func(st core.State) (any, error) { return arcade.CheckSolvency(st) })

	case "getSessionsByPlayer":
		return h.getSessionsByPlayer(req)
	case "getSessionsByGame":
		return h.getSessionsByGame(req)

	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

// view runs fn under a consistent read of state.
func (h *Handler) view(req Request, fn func(core.State) (any, error)) Response {
	var result any
	err := h.viewer.View(func(st core.State) error {
		var err error
		result, err = fn(st)
		return err
	})
	if err != nil {
		return failResponse(req.ID, err)
	}
	return okResponse(req.ID, result)
}

// decode unmarshals params into v. It returns a non-nil Response on
// failure.
func decode(req Request, v any) *Response {
	if len(req.Params) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params, v); err != nil {
		resp := errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
		return &resp
	}
	return nil
}

// require rejects the request if any of the named values is empty. Names
// are checked in order so the error is deterministic.
func require(req Request, namesAndValues ...string) *Response {
	for i := 0; i+1 < len(namesAndValues); i += 2 {
		if namesAndValues[i+1] == "" {
			resp := errResponse(req.ID, CodeInvalidParams, namesAndValues[i]+" is required")
			return &resp
		}
	}
	return nil
}

func (h *Handler) getBlock(req Request) Response {
	var params struct {
		Hash   string `json:"hash"`
		Height *int64 `json:"height"`
	}
	if resp := decode(req, &params); resp != nil {
		return *resp
	}

	var block *core.Block
	var err error
	if params.Hash != "" {
		block, err = h.bc.GetBlock(params.Hash)
	} else if params.Height != nil {
		block, err = h.bc.GetBlockByHeight(*params.Height)
	} else {
		block = h.bc.Tip()
	}
	if err != nil {
		return failResponse(req.ID, err)
	}
	if block == nil {
		return errResponse(req.ID, CodeNotFound, "no block found")
	}
	return okResponse(req.ID, block)
}

func (h *Handler) getBalance(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if resp := decode(req, &params); resp != nil {
		return *resp
	}
	if resp := require(req, "address", params.Address); resp != nil {
		return *resp
	}
	return h.view(req, func(st core.State) (any, error) {
		acc, err := st.GetAccount(params.Address)
		if err != nil {
			return nil, err
		}
		allowance, err := st.GetAllowance(params.Address, core.EscrowAddress)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"address":          params.Address,
			"balance":          acc.Balance,
			"nonce":            acc.Nonce,
			"escrow_allowance": allowance.Amount,
		}, nil
	})
}

func (h *Handler) sendTx(req Request) Response {
	var tx core.Transaction
	if err := json.Unmarshal(req.Params, &tx); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	// Reject transactions destined for a different network to prevent
	// cross-chain replay attacks.
	if tx.ChainID != h.chainID {
		return errResponse(req.ID, CodeInvalidParams,
			fmt.Sprintf("chain ID mismatch: got %q want %q", tx.ChainID, h.chainID))
	}
	// Recompute the ID server-side; do not trust the client-provided value.
	tx.ID = tx.Hash()
	if err := h.mempool.Add(&tx); err != nil {
		return errResponse(req.ID, CodeInvalidRequest, err.Error())
	}
	return okResponse(req.ID, map[string]string{"tx_id": tx.ID})
}

func (h *Handler) getReceipt(req Request) Response {
	var params struct {
		TxID   string `json:"tx_id"`
		Height *int64 `json:"height"`
	}
	if resp := decode(req, &params); resp != nil {
		return *resp
	}
	if resp := require(req, "tx_id", params.TxID); resp != nil {
		return *resp
	}
	// A known height reads the receipt straight from the chain.
	if params.Height != nil {
		r, err := h.bc.ReceiptAt(*params.Height, params.TxID)
		if err != nil {
			return failResponse(req.ID, err)
		}
		return okResponse(req.ID, indexer.ReceiptLocation{Receipt: r, BlockHeight: *params.Height})
	}
	loc, err := h.indexer.GetReceipt(params.TxID)
	if errors.Is(err, core.ErrNotFound) {
		if _, pending := h.mempool.Get(params.TxID); pending {
			return okResponse(req.ID, map[string]any{"tx_id": params.TxID, "pending": true})
		}
	}
	if err != nil {
		return failResponse(req.ID, err)
	}
	return okResponse(req.ID, loc)
}

func (h *Handler) getSession(req Request) Response {
	var params struct {
		ID string `json:"id"`
	}
	if resp := decode(req, &params); resp != nil {
		return *resp
	}
	return h.view(req, func(st core.State) (any, error) { return arcade.GetSession(st, params.ID) })
}

func (h *Handler) getGame(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if resp := decode(req, &params); resp != nil {
		return *resp
	}
	return h.view(req, func(st core.State) (any, error) { return arcade.GetGame(st, params.Address) })
}

func (h *Handler) getDeposit(req Request) Response {
	var params struct {
		SessionID string `json:"session_id"`
		Player    string `json:"player"`
	}
	if resp := decode(req, &params); resp != nil {
		return *resp
	}
	if resp := require(req, "session_id", params.SessionID, "player", params.Player); resp != nil {
		return *resp
	}
	return h.view(req, func(st core.State) (any, error) {
		return arcade.GetDeposit(st, params.SessionID, params.Player)
	})
}

func (h *Handler) getPendingPayout(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if resp := decode(req, &params); resp != nil {
		return *resp
	}
	if resp := require(req, "address", params.Address); resp != nil {
		return *resp
	}
	return h.view(req, func(st core.State) (any, error) {
		amount, err := arcade.PendingPayout(st, params.Address)
		if err != nil {
			return nil, err
		}
		return map[string]any{"address": params.Address, "pending": amount}, nil
	})
}

func (h *Handler) getPlayerStats(req Request) Response {
	var params struct {
		Player string `json:"player"`
	}
	if resp := decode(req, &params); resp != nil {
		return *resp
	}
	if resp := require(req, "player", params.Player); resp != nil {
		return *resp
	}
	return h.view(req, func(st core.State) (any, error) { return arcade.PlayerStats(st, params.Player) })
}

func (h *Handler) getRemainingCapacity(req Request) Response {
	var params struct {
		SessionID string `json:"session_id"`
	}
	if resp := decode(req, &params); resp != nil {
		return *resp
	}
	return h.view(req, func(st core.State) (any, error) {
		rem, err := arcade.RemainingCapacity(st, params.SessionID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"session_id": params.SessionID, "remaining": rem}, nil
	})
}

func (h *Handler) getActiveSessions(req Request) Response {
	var params struct {
		Game string `json:"game"`
	}
	if resp := decode(req, &params); resp != nil {
		return *resp
	}
	if resp := require(req, "game", params.Game); resp != nil {
		return *resp
	}
	return h.view(req, func(st core.State) (any, error) {
		ids, err := arcade.ActiveSessions(st, params.Game)
		if err != nil {
			return nil, err
		}
		if ids == nil {
			ids = []string{}
		}
		return ids, nil
	})
}

func (h *Handler) getProposal(req Request) Response {
	var params struct {
		ID string `json:"id"`
	}
	if resp := decode(req, &params); resp != nil {
		return *resp
	}
	return h.view(req, func(st core.State) (any, error) { return arcade.GetProposal(st, params.ID) })
}

func (h *Handler) getSessionsByPlayer(req Request) Response {
	var params struct {
		Player string `json:"player"`
	}
	if resp := decode(req, &params); resp != nil {
		return *resp
	}
	if resp := require(req, "player", params.Player); resp != nil {
		return *resp
	}
	ids, err := h.indexer.GetSessionsByPlayer(params.Player)
	return listResponse(req, ids, err)
}

func (h *Handler) getSessionsByGame(req Request) Response {
	var params struct {
		Game string `json:"game"`
	}
	if resp := decode(req, &params); resp != nil {
		return *resp
	}
	if resp := require(req, "game", params.Game); resp != nil {
		return *resp
	}
	ids, err := h.indexer.GetSessionsByGame(params.Game)
	return listResponse(req, ids, err)
}

func listResponse(req Request, ids []string, err error) Response {
	if err != nil {
		return failResponse(req.ID, err)
	}
	if ids == nil {
		ids = []string{}
	}
	return okResponse(req.ID, ids)
}
