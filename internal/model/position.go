package model

import (
	"fmt"
	"strings"
	"unicode"
)

var tickerAssets = []struct{ code, name string }{
	{"ETH", "Ethereum (ETH)"},
	{"BTC", "Bitcoin (BTC)"},
	{"SOL", "Solana (SOL)"},
	{"SPX", "S&P 500"},
	{"TSLA", "Tesla"},
	{"AAPL", "Apple"},
	{"GOOG", "Google"},
	{"META", "Meta"},
	{"AMZN", "Amazon"},
	{"MSFT", "Microsoft"},
	{"NVDA", "NVIDIA"},
	{"BRK", "Berkshire Hathaway"},
}

var tickerSports = []struct{ code, name string }{
	{"NFL", "NFL"},
	{"NBA", "NBA"},
	{"NHL", "NHL"},
	{"MLB", "MLB"},
	{"NCAAF", "College Football"},
	{"CFB", "College Football"},
	{"NCAAB", "College Basketball"},
	{"CBB", "College Basketball"},
	{"SOCCER", "Soccer"},
}

// Position describes in words what a Kalshi taker bet on, derived from the
// market ticker and the side taken, e.g. "CAR wins vs ANA (NHL)". It returns ""
// for other venues and for trades without a known side.
//
// Tickers look like KXNHLGAME-26JAN08ANACAR-CAR, KXNCAAFTOTAL-26JAN08MIAMSS-51
// or KXBTCD-26JAN0818-T97499.99.
func (t Trade) Position() string {
	if t.Venue != VenueKalshi || t.MarketID == "" {
		return ""
	}
	var yes bool
	switch strings.ToUpper(t.Outcome) {
	case "YES":
		yes = true
	case "NO":
	default:
		return ""
	}
	return describeTicker(strings.ToUpper(t.MarketID), yes)
}

func describeTicker(ticker string, yes bool) string {
	parts := strings.Split(ticker, "-")
	last := parts[len(parts)-1]
	pick := func(ifYes, ifNo string) string {
		if yes {
			return ifYes
		}
		return ifNo
	}

	if asset := matchName(ticker, tickerAssets); asset != "" {
		if price, ok := strings.CutPrefix(last, "T"); ok && price != "" {
			return fmt.Sprintf("%s %s $%s at expiry", asset, pick(">=", "<"), price)
		}
	}

	sport := matchName(ticker, tickerSports)
	if sport == "" {
		sport = "Game"
	}

	switch {
	case strings.Contains(ticker, "TOTAL") && isDigits(last):
		desc := fmt.Sprintf("%s %s total", pick("OVER", "UNDER"), last)
		if away, home, ok := teamCodes(parts); ok {
			return fmt.Sprintf("%s | %s @ %s (%s)", desc, away, home, sport)
		}
		return fmt.Sprintf("%s (%s)", desc, sport)

	case strings.Contains(ticker, "GAME") && len(parts) >= 3:
		away, home, ok := teamCodes(parts)
		if !ok {
			break
		}
		opponent := away
		if last == away {
			opponent = home
		}
		if yes {
			return fmt.Sprintf("%s wins vs %s (%s)", last, opponent, sport)
		}
		return fmt.Sprintf("%s wins vs %s (%s)", opponent, last, sport)

	case strings.Contains(ticker, "SPREAD"):
		// CAR3 or CAR_N3.5
		n := strings.IndexFunc(last, func(r rune) bool { return !unicode.IsLetter(r) })
		if n <= 0 {
			break
		}
		team := last[:n]
		spread := strings.Map(func(r rune) rune {
			if unicode.IsDigit(r) || r == '.' {
				return r
			}
			return -1
		}, last[n:])
		if spread != "" {
			return pick(
				fmt.Sprintf("%s wins by %s or more", team, spread),
				fmt.Sprintf("%s loses or wins by less than %s", team, spread),
			)
		}

	case (strings.Contains(ticker, "TD") || strings.Contains(ticker, "SCORE") || strings.Contains(ticker, "POINTS")) && isDigits(last):
		prop := "goals"
		if strings.Contains(ticker, "TD") {
			prop = "touchdowns"
		} else if strings.Contains(ticker, "POINTS") {
			prop = "points"
		}
		return fmt.Sprintf("Player gets %s %s %s", pick(">=", "<"), last, prop)

	case strings.Contains(ticker, "HIGH") || strings.Contains(ticker, "LOW"):
		if temp, ok := strings.CutPrefix(last, "T"); ok && temp != "" {
			metric := "Low"
			if strings.Contains(ticker, "HIGH") {
				metric = "High"
			}
			return fmt.Sprintf("%s temp %s %s°F", metric, pick(">=", "<"), temp)
		}

	case strings.Contains(ticker, "PRES") || strings.Contains(ticker, "SENATE") || strings.Contains(ticker, "HOUSE"):
		return fmt.Sprintf("%s %s", last, pick("wins election", "doesn't win election"))
	}

	switch {
	case strings.Contains(ticker, "COMBO") || strings.Contains(ticker, "PARLAY") || strings.Contains(ticker, "MULTI"):
		return fmt.Sprintf("%s %s combo", pick("Wins", "Loses"), last)
	case strings.Contains(ticker, "OSCAR") || strings.Contains(ticker, "EMMY") || strings.Contains(ticker, "GRAMMY"):
		return fmt.Sprintf("%s %s the award", last, pick("wins", "doesn't win"))
	case strings.Contains(ticker, "TOP") || strings.Contains(ticker, "FINISH") || strings.Contains(ticker, "PLACE"):
		return fmt.Sprintf("%s %s", last, pick("finishes in position", "doesn't finish in position"))
	}

	if len(last) <= 10 && isAlnum(last) {
		return fmt.Sprintf("%s %s", last, pick("happens", "doesn't happen"))
	}
	return pick("YES on ", "NO on ") + ticker
}

func matchName(ticker string, table []struct{ code, name string }) string {
	for _, e := range table {
		if strings.Contains(ticker, e.code) {
			return e.name
		}
	}
	return ""
}

// teamCodes reads the away and home codes from the last six characters of the
// second to last ticker part, e.g. 26JAN08ANACAR gives ANA and CAR.
func teamCodes(parts []string) (away, home string, ok bool) {
	if len(parts) < 3 {
		return "", "", false
	}
	mid := parts[len(parts)-2]
	if len(mid) < 6 {
		return "", "", false
	}
	codes := mid[len(mid)-6:]
	if !isLetters(codes) {
		return "", "", false
	}
	return codes[:3], codes[3:], true
}

func isDigits(s string) bool {
	return s != "" && strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) }) < 0
}

func isLetters(s string) bool {
	return s != "" && strings.IndexFunc(s, func(r rune) bool { return !unicode.IsLetter(r) }) < 0
}

func isAlnum(s string) bool {
	return s != "" && strings.IndexFunc(s, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) }) < 0
}
