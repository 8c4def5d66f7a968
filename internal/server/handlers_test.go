package server

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"poolledger/internal/ledger"
	"poolledger/internal/model"
	"poolledger/internal/transfer"
)

var (
	assetA  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	assetB  = common.HexToAddress("0x2222222222222222222222222222222222222222")
	alice   = common.HexToAddress("0xaaaa00000000000000000000000000000000aaaa")
	custody = common.HexToAddress("0x00000000000000000000000000000000000000ff")
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return newTestServerWithStore(t, nil)
}

func newTestServerWithStore(t *testing.T, store OperationStore) *Server {
	t.Helper()
	bank := transfer.NewBank(custody)
	bank.Credit(assetA, alice, big.NewInt(1_000_000))
	bank.Credit(assetB, alice, big.NewInt(1_000_000))
	return New(ledger.New(bank, nil), nil, store, nil)
}

// captureStore records what the server persists.
type captureStore struct {
	mu        sync.Mutex
	snapshots []model.PoolSnapshot
	records   []model.OperationRecord
	ctxErr    error
}

func (s *captureStore) UpsertPoolState(ctx context.Context, snapshot model.PoolSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctxErr = ctx.Err()
	s.snapshots = append(s.snapshots, snapshot)
	return nil
}

func (s *captureStore) InsertOperations(ctx context.Context, records []model.OperationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	return nil
}

func doJSON(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router().ServeHTTP(w, req)

	var decoded map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode response %q: %v", w.Body.String(), err)
		}
	}
	return w, decoded
}

func TestAddLiquidityEndpoint(t *testing.T) {
	s := newTestServer(t)

	w, body := doJSON(t, s, http.MethodPost, "/v1/liquidity/add", `{
		"asset_a": "0x1111111111111111111111111111111111111111",
		"asset_b": "0x2222222222222222222222222222222222222222",
		"amount_a_desired": "500",
		"amount_b_desired": "500",
		"caller": "0xaaaa00000000000000000000000000000000aaaa"
	}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %v", w.Code, body)
	}
	if body["shares_issued"] != "1000" {
		t.Fatalf("shares_issued: got %v, want 1000", body["shares_issued"])
	}
}

func TestSwapEndpoint(t *testing.T) {
	s := newTestServer(t)

	if w, body := doJSON(t, s, http.MethodPost, "/v1/liquidity/add", `{
		"asset_a": "0x1111111111111111111111111111111111111111",
		"asset_b": "0x2222222222222222222222222222222222222222",
		"amount_a_desired": "1000",
		"amount_b_desired": "1000",
		"caller": "0xaaaa00000000000000000000000000000000aaaa"
	}`); w.Code != http.StatusOK {
		t.Fatalf("seed failed: %d %v", w.Code, body)
	}

	w, body := doJSON(t, s, http.MethodPost, "/v1/swaps", `{
		"input_asset": "0x1111111111111111111111111111111111111111",
		"output_asset": "0x2222222222222222222222222222222222222222",
		"amount_in": "100",
		"caller": "0xaaaa00000000000000000000000000000000aaaa"
	}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %v", w.Code, body)
	}
	if body["amount_out"] != "90" {
		t.Fatalf("amount_out: got %v, want 90", body["amount_out"])
	}
}

func TestSwapEndpointSlippage(t *testing.T) {
	s := newTestServer(t)

	doJSON(t, s, http.MethodPost, "/v1/liquidity/add", `{
		"asset_a": "0x1111111111111111111111111111111111111111",
		"asset_b": "0x2222222222222222222222222222222222222222",
		"amount_a_desired": "1000",
		"amount_b_desired": "1000",
		"caller": "0xaaaa00000000000000000000000000000000aaaa"
	}`)

	w, _ := doJSON(t, s, http.MethodPost, "/v1/swaps", `{
		"input_asset": "0x1111111111111111111111111111111111111111",
		"output_asset": "0x2222222222222222222222222222222222222222",
		"amount_in": "100",
		"amount_out_min": "91",
		"caller": "0xaaaa00000000000000000000000000000000aaaa"
	}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", w.Code)
	}
}

func TestQuoteEndpoint(t *testing.T) {
	s := newTestServer(t)

	w, body := doJSON(t, s, http.MethodGet, "/v1/quote?amount_in=100&reserve_in=1000&reserve_out=1000", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %v", w.Code, body)
	}
	if body["amount_out"] != "90" {
		t.Fatalf("amount_out: got %v, want 90", body["amount_out"])
	}
}

func TestPriceEndpoint(t *testing.T) {
	s := newTestServer(t)

	w, _ := doJSON(t, s, http.MethodGet,
		"/v1/pools/0x1111111111111111111111111111111111111111/0x2222222222222222222222222222222222222222/price", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty pool price status: got %d, want 400", w.Code)
	}

	doJSON(t, s, http.MethodPost, "/v1/liquidity/add", `{
		"asset_a": "0x1111111111111111111111111111111111111111",
		"asset_b": "0x2222222222222222222222222222222222222222",
		"amount_a_desired": "1000",
		"amount_b_desired": "2000",
		"caller": "0xaaaa00000000000000000000000000000000aaaa"
	}`)

	w, body := doJSON(t, s, http.MethodGet,
		"/v1/pools/0x1111111111111111111111111111111111111111/0x2222222222222222222222222222222222222222/price", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %v", w.Code, body)
	}
	if body["price"] != "2000000000000000000" {
		t.Fatalf("price: got %v, want 2*10^18", body["price"])
	}
	if body["price_decimal"] != "2" {
		t.Fatalf("price_decimal: got %v, want 2", body["price_decimal"])
	}
}

func TestPoolSnapshotEndpoint(t *testing.T) {
	s := newTestServer(t)

	doJSON(t, s, http.MethodPost, "/v1/liquidity/add", `{
		"asset_a": "0x1111111111111111111111111111111111111111",
		"asset_b": "0x2222222222222222222222222222222222222222",
		"amount_a_desired": "2000",
		"amount_b_desired": "1000",
		"caller": "0xaaaa00000000000000000000000000000000aaaa"
	}`)

	w, body := doJSON(t, s, http.MethodGet,
		"/v1/pools/0x2222222222222222222222222222222222222222/0x1111111111111111111111111111111111111111", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %v", w.Code, body)
	}
	if body["reserve0"] != "2000" || body["reserve1"] != "1000" {
		t.Fatalf("reserves: got %v/%v, want 2000/1000", body["reserve0"], body["reserve1"])
	}
}

func TestAddLiquidityEndpointInvalidAddress(t *testing.T) {
	s := newTestServer(t)

	w, _ := doJSON(t, s, http.MethodPost, "/v1/liquidity/add", `{
		"asset_a": "not-an-address",
		"asset_b": "0x2222222222222222222222222222222222222222",
		"amount_a_desired": "500",
		"amount_b_desired": "500",
		"caller": "0xaaaa00000000000000000000000000000000aaaa"
	}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", w.Code)
	}
}

func TestStoredOperationsSequencedWithoutJournal(t *testing.T) {
	store := &captureStore{}
	s := newTestServerWithStore(t, store)

	if w, body := doJSON(t, s, http.MethodPost, "/v1/liquidity/add", `{
		"asset_a": "0x1111111111111111111111111111111111111111",
		"asset_b": "0x2222222222222222222222222222222222222222",
		"amount_a_desired": "1000",
		"amount_b_desired": "1000",
		"caller": "0xaaaa00000000000000000000000000000000aaaa"
	}`); w.Code != http.StatusOK {
		t.Fatalf("add failed: %d %v", w.Code, body)
	}
	if w, body := doJSON(t, s, http.MethodPost, "/v1/swaps", `{
		"input_asset": "0x1111111111111111111111111111111111111111",
		"output_asset": "0x2222222222222222222222222222222222222222",
		"amount_in": "100",
		"caller": "0xaaaa00000000000000000000000000000000aaaa"
	}`); w.Code != http.StatusOK {
		t.Fatalf("swap failed: %d %v", w.Code, body)
	}

	if len(store.records) != 2 {
		t.Fatalf("stored operations: got %d, want 2", len(store.records))
	}
	if store.records[0].Seq != 1 || store.records[1].Seq != 2 {
		t.Fatalf("sequences: got %d, %d, want 1, 2", store.records[0].Seq, store.records[1].Seq)
	}
	if store.records[0].Kind != model.OpAddLiquidity || store.records[1].Kind != model.OpSwap {
		t.Fatalf("kinds: got %q, %q", store.records[0].Kind, store.records[1].Kind)
	}
}

func TestSeedSequenceResumes(t *testing.T) {
	store := &captureStore{}
	s := newTestServerWithStore(t, store)
	s.SeedSequence(41)

	if w, body := doJSON(t, s, http.MethodPost, "/v1/liquidity/add", `{
		"asset_a": "0x1111111111111111111111111111111111111111",
		"asset_b": "0x2222222222222222222222222222222222222222",
		"amount_a_desired": "500",
		"amount_b_desired": "500",
		"caller": "0xaaaa00000000000000000000000000000000aaaa"
	}`); w.Code != http.StatusOK {
		t.Fatalf("add failed: %d %v", w.Code, body)
	}

	if len(store.records) != 1 || store.records[0].Seq != 42 {
		t.Fatalf("stored operations: got %+v, want one record with seq 42", store.records)
	}
}

func TestPersistOutlivesRequestContext(t *testing.T) {
	store := &captureStore{}
	s := newTestServerWithStore(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/v1/liquidity/add", strings.NewReader(`{
		"asset_a": "0x1111111111111111111111111111111111111111",
		"asset_b": "0x2222222222222222222222222222222222222222",
		"amount_a_desired": "500",
		"amount_b_desired": "500",
		"caller": "0xaaaa00000000000000000000000000000000aaaa"
	}`)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	if len(store.snapshots) != 1 {
		t.Fatalf("persisted snapshots: got %d, want 1", len(store.snapshots))
	}
	if store.ctxErr != nil {
		t.Fatalf("persistence context already done: %v", store.ctxErr)
	}
}

func TestTransferFailureMapsToConflict(t *testing.T) {
	bank := transfer.NewBank(custody)
	// alice has no funds at all.
	s := New(ledger.New(bank, nil), nil, nil, nil)

	w, _ := doJSON(t, s, http.MethodPost, "/v1/liquidity/add", `{
		"asset_a": "0x1111111111111111111111111111111111111111",
		"asset_b": "0x2222222222222222222222222222222222222222",
		"amount_a_desired": "500",
		"amount_b_desired": "500",
		"caller": "0xaaaa00000000000000000000000000000000aaaa"
	}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want 409", w.Code)
	}
}
