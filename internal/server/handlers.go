package server

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"poolledger/internal/ledger"
	"poolledger/internal/model"
)

type addLiquidityRequest struct {
	AssetA         string `json:"asset_a"`
	AssetB         string `json:"asset_b"`
	AmountADesired string `json:"amount_a_desired"`
	AmountBDesired string `json:"amount_b_desired"`
	AmountAMin     string `json:"amount_a_min"`
	AmountBMin     string `json:"amount_b_min"`
	Caller         string `json:"caller"`
	Recipient      string `json:"recipient"`
	Deadline       int64  `json:"deadline"`
}

type addLiquidityResponse struct {
	AmountA      string `json:"amount_a"`
	AmountB      string `json:"amount_b"`
	SharesIssued string `json:"shares_issued"`
}

func (s *Server) addLiquidity(c *gin.Context) {
	var req addLiquidityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	assetA, err := parseAddress(req.AssetA, "asset_a")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	assetB, err := parseAddress(req.AssetB, "asset_b")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	caller, err := parseAddress(req.Caller, "caller")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	recipient := caller
	if req.Recipient != "" {
		if recipient, err = parseAddress(req.Recipient, "recipient"); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
	}

	amountADesired, err := parseAmount(req.AmountADesired, "amount_a_desired", true)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	amountBDesired, err := parseAmount(req.AmountBDesired, "amount_b_desired", true)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	amountAMin, err := parseAmount(req.AmountAMin, "amount_a_min", false)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	amountBMin, err := parseAmount(req.AmountBMin, "amount_b_min", false)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	res, err := s.ledger.AddLiquidity(c.Request.Context(), ledger.AddLiquidityParams{
		AssetA:         assetA,
		AssetB:         assetB,
		AmountADesired: amountADesired,
		AmountBDesired: amountBDesired,
		AmountAMin:     amountAMin,
		AmountBMin:     amountBMin,
		Caller:         caller,
		Recipient:      recipient,
		Deadline:       req.Deadline,
	})
	if err != nil {
		c.JSON(statusOf(err), errorResponse{Error: err.Error()})
		return
	}

	s.record(model.OperationRecord{
		Kind:      model.OpAddLiquidity,
		AssetA:    assetA.Hex(),
		AssetB:    assetB.Hex(),
		AmountA:   res.AmountA.String(),
		AmountB:   res.AmountB.String(),
		Shares:    res.SharesIssued.String(),
		Caller:    caller.Hex(),
		Recipient: recipient.Hex(),
	}, assetA, assetB)

	c.JSON(http.StatusOK, addLiquidityResponse{
		AmountA:      res.AmountA.String(),
		AmountB:      res.AmountB.String(),
		SharesIssued: res.SharesIssued.String(),
	})
}

type removeLiquidityRequest struct {
	AssetA     string `json:"asset_a"`
	AssetB     string `json:"asset_b"`
	Shares     string `json:"shares"`
	AmountAMin string `json:"amount_a_min"`
	AmountBMin string `json:"amount_b_min"`
	Caller     string `json:"caller"`
	Recipient  string `json:"recipient"`
	Deadline   int64  `json:"deadline"`
}

type removeLiquidityResponse struct {
	AmountA string `json:"amount_a"`
	AmountB string `json:"amount_b"`
}

func (s *Server) removeLiquidity(c *gin.Context) {
	var req removeLiquidityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	assetA, err := parseAddress(req.AssetA, "asset_a")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	assetB, err := parseAddress(req.AssetB, "asset_b")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	caller, err := parseAddress(req.Caller, "caller")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	recipient := caller
	if req.Recipient != "" {
		if recipient, err = parseAddress(req.Recipient, "recipient"); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
	}

	shares, err := parseAmount(req.Shares, "shares", true)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	amountAMin, err := parseAmount(req.AmountAMin, "amount_a_min", false)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	amountBMin, err := parseAmount(req.AmountBMin, "amount_b_min", false)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	res, err := s.ledger.RemoveLiquidity(c.Request.Context(), ledger.RemoveLiquidityParams{
		AssetA:     assetA,
		AssetB:     assetB,
		Shares:     shares,
		AmountAMin: amountAMin,
		AmountBMin: amountBMin,
		Caller:     caller,
		Recipient:  recipient,
		Deadline:   req.Deadline,
	})
	if err != nil {
		c.JSON(statusOf(err), errorResponse{Error: err.Error()})
		return
	}

	s.record(model.OperationRecord{
		Kind:      model.OpRemoveLiquidity,
		AssetA:    assetA.Hex(),
		AssetB:    assetB.Hex(),
		AmountA:   res.AmountA.String(),
		AmountB:   res.AmountB.String(),
		Shares:    shares.String(),
		Caller:    caller.Hex(),
		Recipient: recipient.Hex(),
	}, assetA, assetB)

	c.JSON(http.StatusOK, removeLiquidityResponse{
		AmountA: res.AmountA.String(),
		AmountB: res.AmountB.String(),
	})
}

type swapRequest struct {
	InputAsset   string `json:"input_asset"`
	OutputAsset  string `json:"output_asset"`
	AmountIn     string `json:"amount_in"`
	AmountOutMin string `json:"amount_out_min"`
	Caller       string `json:"caller"`
	Recipient    string `json:"recipient"`
	Deadline     int64  `json:"deadline"`
}

type swapResponse struct {
	AmountOut string `json:"amount_out"`
}

func (s *Server) swap(c *gin.Context) {
	var req swapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	inputAsset, err := parseAddress(req.InputAsset, "input_asset")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	outputAsset, err := parseAddress(req.OutputAsset, "output_asset")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	caller, err := parseAddress(req.Caller, "caller")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	recipient := caller
	if req.Recipient != "" {
		if recipient, err = parseAddress(req.Recipient, "recipient"); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
	}

	amountIn, err := parseAmount(req.AmountIn, "amount_in", true)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	amountOutMin, err := parseAmount(req.AmountOutMin, "amount_out_min", false)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	amountOut, err := s.ledger.SwapExactIn(c.Request.Context(), ledger.SwapParams{
		InputAsset:   inputAsset,
		OutputAsset:  outputAsset,
		AmountIn:     amountIn,
		AmountOutMin: amountOutMin,
		Caller:       caller,
		Recipient:    recipient,
		Deadline:     req.Deadline,
	})
	if err != nil {
		c.JSON(statusOf(err), errorResponse{Error: err.Error()})
		return
	}

	s.record(model.OperationRecord{
		Kind:      model.OpSwap,
		AssetIn:   inputAsset.Hex(),
		AssetOut:  outputAsset.Hex(),
		AmountIn:  amountIn.String(),
		AmountOut: amountOut.String(),
		Caller:    caller.Hex(),
		Recipient: recipient.Hex(),
	}, inputAsset, outputAsset)

	c.JSON(http.StatusOK, swapResponse{AmountOut: amountOut.String()})
}

type quoteResponse struct {
	AmountOut string `json:"amount_out"`
}

func (s *Server) quote(c *gin.Context) {
	amountIn, err := parseAmount(c.Query("amount_in"), "amount_in", true)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	reserveIn, err := parseAmount(c.Query("reserve_in"), "reserve_in", true)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	reserveOut, err := parseAmount(c.Query("reserve_out"), "reserve_out", true)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	amountOut, err := ledger.GetAmountOut(amountIn, reserveIn, reserveOut)
	if err != nil {
		c.JSON(statusOf(err), errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, quoteResponse{AmountOut: amountOut.String()})
}

func (s *Server) poolSnapshot(c *gin.Context) {
	assetA, err := parseAddress(c.Param("assetA"), "assetA")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	assetB, err := parseAddress(c.Param("assetB"), "assetB")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	snapshot, err := s.ledger.Snapshot(assetA, assetB)
	if err != nil {
		c.JSON(statusOf(err), errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

type priceResponse struct {
	Price        string `json:"price"`
	PriceDecimal string `json:"price_decimal"`
}

func (s *Server) price(c *gin.Context) {
	assetA, err := parseAddress(c.Param("assetA"), "assetA")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	assetB, err := parseAddress(c.Param("assetB"), "assetB")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	price, err := s.ledger.GetPrice(assetA, assetB)
	if err != nil {
		c.JSON(statusOf(err), errorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, priceResponse{
		Price:        price.String(),
		PriceDecimal: decimal.NewFromBigInt(price, -ledger.PriceDecimals).String(),
	})
}

type sharesResponse struct {
	Holder string `json:"holder"`
	Shares string `json:"shares"`
}

func (s *Server) shares(c *gin.Context) {
	assetA, err := parseAddress(c.Param("assetA"), "assetA")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	assetB, err := parseAddress(c.Param("assetB"), "assetB")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	holder, err := parseAddress(c.Param("holder"), "holder")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	shares, err := s.ledger.SharesOf(assetA, assetB, holder)
	if err != nil {
		c.JSON(statusOf(err), errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, sharesResponse{Holder: holder.Hex(), Shares: shares.String()})
}

// persistTimeout bounds the best-effort persistence of an applied operation.
const persistTimeout = 5 * time.Second

// record journals an applied operation and persists the touched pool. Both
// are best effort: the operation itself already succeeded.
func (s *Server) record(record model.OperationRecord, assetA, assetB common.Address) {
	snapshot, err := s.ledger.Snapshot(assetA, assetB)
	if err != nil {
		s.logger.Warn("snapshot after operation", zap.Error(err))
		return
	}
	record.Pair = snapshot.Pair
	record.Timestamp = time.Now().Unix()

	if s.journal != nil {
		journaled, err := s.journal.Append(record)
		if err != nil {
			s.logger.Warn("journal append", zap.Error(err))
		} else {
			record = journaled
		}
	} else {
		record.Seq = s.nextSeq()
	}

	if s.store != nil {
		// The operation is already committed, so persistence must not be
		// cut short by the request context ending.
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := s.store.UpsertPoolState(ctx, snapshot); err != nil {
			s.logger.Warn("persist pool state", zap.Error(err))
		}
		if err := s.store.InsertOperations(ctx, []model.OperationRecord{record}); err != nil {
			s.logger.Warn("persist operation", zap.Error(err))
		}
	}
}

func parseAddress(value, name string) (common.Address, error) {
	if value == "" {
		return common.Address{}, fmt.Errorf("%s is required", name)
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid %s address", name)
	}
	return common.HexToAddress(value), nil
}

func parseAmount(value, name string, required bool) (*big.Int, error) {
	if value == "" {
		if required {
			return nil, fmt.Errorf("%s is required", name)
		}
		return nil, nil
	}
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s", name)
	}
	return amount, nil
}
