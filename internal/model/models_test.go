package model

import "testing"

func TestTradeKey_NamespacedByVenue(t *testing.T) {
	poly := Trade{Venue: VenuePolymarket, TradeID: "123"}
	kalshi := Trade{Venue: VenueKalshi, TradeID: "123"}

	if poly.Key() == kalshi.Key() {
		t.Error("same trade id on different venues must not collide")
	}
	if got := kalshi.Key().String(); got != "kalshi:123" {
		t.Errorf("Key().String() = %q", got)
	}
}

func TestParseSide(t *testing.T) {
	tests := map[string]Side{
		"BUY":  SideBuy,
		"buy":  SideBuy,
		"Sell": SideSell,
		"yes":  SideUnknown,
		"":     SideUnknown,
	}
	for in, want := range tests {
		if got := ParseSide(in); got != want {
			t.Errorf("ParseSide(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAlertType(t *testing.T) {
	tests := []struct {
		side Side
		want string
	}{
		{SideBuy, AlertWhaleEntry},
		{SideUnknown, AlertWhaleEntry},
		{SideSell, AlertWhaleExit},
	}
	for _, tt := range tests {
		a := Alert{Trade: Trade{Side: tt.side}}
		if got := a.Type(); got != tt.want {
			t.Errorf("Alert{Side: %s}.Type() = %q, want %q", tt.side, got, tt.want)
		}
	}
}

func TestWalletActivityStatus(t *testing.T) {
	tests := []struct {
		act  WalletActivity
		want string
	}{
		{WalletActivity{}, "NEW ACTOR"},
		{WalletActivity{RepeatActor: true}, "REPEAT ACTOR"},
		{WalletActivity{RepeatActor: true, HeavyActor: true}, "HEAVY ACTOR"},
	}
	for _, tt := range tests {
		if got := tt.act.Status(); got != tt.want {
			t.Errorf("Status(%+v) = %q, want %q", tt.act, got, tt.want)
		}
	}
}

func TestVenueNames(t *testing.T) {
	if VenueKalshi.DisplayName() != "Kalshi" || VenueKalshi.Kind() != "regulated" {
		t.Errorf("kalshi = %s/%s", VenueKalshi.DisplayName(), VenueKalshi.Kind())
	}
	if VenuePolymarket.DisplayName() != "Polymarket" || VenuePolymarket.Kind() != "decentralized" {
		t.Errorf("polymarket = %s/%s", VenuePolymarket.DisplayName(), VenuePolymarket.Kind())
	}
}
