package pairx

import "strings"

// 常见 Quote 列表, 顺序即匹配优先级
var knownQuotes = []string{"USDT", "USDC", "BUSD", "BTC", "ETH", "BNB", "EUR", "GBP"}

// Normalize trims and uppercases a raw pair string.
func Normalize(pair string) string {
	return strings.ToUpper(strings.TrimSpace(pair))
}

// Split parses a concatenated ticker like BTCUSDT into base and quote by
// matching known quote suffixes. ok is false when no quote matches or the
// base would be empty.
func Split(ticker string) (base, quote string, ok bool) {
	for _, q := range knownQuotes {
		if strings.HasSuffix(ticker, q) && len(ticker) > len(q) {
			return strings.TrimSuffix(ticker, q), q, true
		}
	}
	return "", "", false
}
