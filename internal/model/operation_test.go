package model

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestOperationRecordJSONRoundTrip(t *testing.T) {
	original := OperationRecord{
		Seq:       42,
		Kind:      OpSwap,
		Pair:      "0xabc123",
		AssetIn:   "0x1111111111111111111111111111111111111111",
		AssetOut:  "0x2222222222222222222222222222222222222222",
		AmountIn:  "100",
		AmountOut: "90",
		Caller:    "0x3333333333333333333333333333333333333333",
		Recipient: "0x4444444444444444444444444444444444444444",
		Timestamp: 1700000000,
	}

	b, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded OperationRecord
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if !reflect.DeepEqual(original, decoded) {
		t.Fatalf("round-trip mismatch: %+v != %+v", original, decoded)
	}
}

func TestOperationRecordOmitsUnusedFields(t *testing.T) {
	record := OperationRecord{
		Seq:       1,
		Kind:      OpAddLiquidity,
		Pair:      "0xabc",
		AssetA:    "0x1111111111111111111111111111111111111111",
		AssetB:    "0x2222222222222222222222222222222222222222",
		AmountA:   "500",
		AmountB:   "500",
		Shares:    "1000",
		Caller:    "0x3333333333333333333333333333333333333333",
		Recipient: "0x3333333333333333333333333333333333333333",
		Timestamp: 1700000000,
	}

	b, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var generic map[string]any
	if err := json.Unmarshal(b, &generic); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if _, ok := generic["amount_in"]; ok {
		t.Fatalf("swap fields must be omitted for liquidity records: %s", b)
	}
}
