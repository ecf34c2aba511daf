package models

import "testing"

func TestParseStatus(t *testing.T) {
	cases := []struct {
		in      string
		want    PaymentStatus
		wantErr bool
	}{
		{"Pending", StatusPending, false},
		{"confirmed", StatusConfirmed, false},
		{"FAILED", StatusFailed, false},
		{"settled", "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		got, err := ParseStatus(tc.in)
		if tc.wantErr != (err != nil) {
			t.Errorf("ParseStatus(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseStatus(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestStatusTransitionTable(t *testing.T) {
	statuses := []PaymentStatus{StatusPending, StatusConfirmed, StatusFailed}
	for _, from := range statuses {
		for _, to := range statuses {
			want := from == StatusPending && to != StatusPending
			if got := from.CanTransitionTo(to); got != want {
				t.Errorf("%s -> %s = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestSumValue(t *testing.T) {
	utxos := []UTXO{
		{TxID: "a", Vout: 0, Value: 10000},
		{TxID: "a", Vout: 1, Value: 2500},
		{TxID: "b", Vout: 0, Value: 500},
	}
	if got := SumValue(utxos); got != 13000 {
		t.Errorf("SumValue = %d, want 13000", got)
	}
	if got := SumValue(nil); got != 0 {
		t.Errorf("SumValue(nil) = %d, want 0", got)
	}
}
