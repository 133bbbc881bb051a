package model

import "testing"

func TestBetRecordKey(t *testing.T) {
	rec := BetRecord{BlockNumber: 42, TransactionHash: "0xabc"}
	if got := rec.Key(); got != "42:0xabc" {
		t.Fatalf("key mismatch: %s", got)
	}
	if rec.Key() != BetKey(42, "0xabc") {
		t.Fatalf("key should match BetKey")
	}
}
