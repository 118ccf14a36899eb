package exchange

import (
	"fmt"
	"strings"
)

// The gateway's uniform symbol form is "BASE/QUOTE", always uppercase with
// exactly one slash. Each platform owns a bidirectional mapping to its
// native format; Normalize(Format(s)) == s holds for every mapper.

// SymbolMapper translates between canonical and native symbol forms.
type SymbolMapper interface {
	// Format converts a canonical "BASE/QUOTE" symbol to the native form.
	Format(canonical string) (string, error)
	// Normalize converts a native symbol back to the canonical form.
	Normalize(native string) (string, error)
}

// ValidateCanonicalSymbol checks the "BASE/QUOTE" shape.
func ValidateCanonicalSymbol(symbol string) error {
	base, quote, ok := strings.Cut(symbol, "/")
	if !ok || base == "" || quote == "" || strings.Contains(quote, "/") {
		return NewValidationError(CodeInvalidSymbol, fmt.Sprintf("symbol %q is not canonical BASE/QUOTE", symbol))
	}
	if symbol != strings.ToUpper(symbol) {
		return NewValidationError(CodeInvalidSymbol, fmt.Sprintf("symbol %q must be uppercase", symbol))
	}
	return nil
}

// splitCanonical validates and splits a canonical symbol.
func splitCanonical(symbol string) (base, quote string, err error) {
	if err := ValidateCanonicalSymbol(symbol); err != nil {
		return "", "", err
	}
	base, quote, _ = strings.Cut(symbol, "/")
	return base, quote, nil
}

// knownQuotes drives suffix detection for platforms whose native form has
// no separator. Longer entries first so USDT wins over USD.
var knownQuotes = []string{"USDT", "USDC", "BUSD", "USD", "EUR", "GBP", "BTC", "XBT", "ETH", "BNB"}

func splitByQuoteSuffix(native string) (base, quote string, ok bool) {
	for _, q := range knownQuotes {
		if strings.HasSuffix(native, q) && len(native) > len(q) {
			return strings.TrimSuffix(native, q), q, true
		}
	}
	return "", "", false
}

// --- Binance -----------------------------------------------------------

// BinanceSymbolMapper joins base and quote with no separator
// ("BTC/USDT" -> "BTCUSDT").
type BinanceSymbolMapper struct{}

func (BinanceSymbolMapper) Format(canonical string) (string, error) {
	base, quote, err := splitCanonical(canonical)
	if err != nil {
		return "", err
	}
	return base + quote, nil
}

func (BinanceSymbolMapper) Normalize(native string) (string, error) {
	base, quote, ok := splitByQuoteSuffix(strings.ToUpper(native))
	if !ok {
		return "", NewValidationError(CodeInvalidSymbol, fmt.Sprintf("cannot normalize Binance symbol %q", native))
	}
	return base + "/" + quote, nil
}

// --- Kraken ------------------------------------------------------------

// Kraken renames a handful of assets and joins with no separator
// ("BTC/USDT" -> "XBTUSDT").
var (
	krakenAssetAliases = map[string]string{
		"BTC":  "XBT",
		"DOGE": "XDG",
	}
	krakenAssetNames = map[string]string{
		"XBT": "BTC",
		"XDG": "DOGE",
	}
)

// KrakenSymbolMapper applies Kraken's asset aliases in both directions.
type KrakenSymbolMapper struct{}

func (KrakenSymbolMapper) Format(canonical string) (string, error) {
	base, quote, err := splitCanonical(canonical)
	if err != nil {
		return "", err
	}
	if alias, ok := krakenAssetAliases[base]; ok {
		base = alias
	}
	if alias, ok := krakenAssetAliases[quote]; ok {
		quote = alias
	}
	return base + quote, nil
}

func (KrakenSymbolMapper) Normalize(native string) (string, error) {
	base, quote, ok := splitByQuoteSuffix(strings.ToUpper(native))
	if !ok {
		return "", NewValidationError(CodeInvalidSymbol, fmt.Sprintf("cannot normalize Kraken symbol %q", native))
	}
	if name, ok := krakenAssetNames[base]; ok {
		base = name
	}
	if name, ok := krakenAssetNames[quote]; ok {
		quote = name
	}
	return base + "/" + quote, nil
}

// --- Coinbase ----------------------------------------------------------

// CoinbaseSymbolMapper joins with a dash ("BTC/USDT" -> "BTC-USDT").
type CoinbaseSymbolMapper struct{}

func (CoinbaseSymbolMapper) Format(canonical string) (string, error) {
	base, quote, err := splitCanonical(canonical)
	if err != nil {
		return "", err
	}
	return base + "-" + quote, nil
}

func (CoinbaseSymbolMapper) Normalize(native string) (string, error) {
	base, quote, ok := strings.Cut(strings.ToUpper(native), "-")
	if !ok || base == "" || quote == "" {
		return "", NewValidationError(CodeInvalidSymbol, fmt.Sprintf("cannot normalize Coinbase symbol %q", native))
	}
	return base + "/" + quote, nil
}

// --- Bitforex ----------------------------------------------------------

// BitforexSymbolMapper uses the vendor's lowercase coin-<quote>-<base>
// form ("BTC/USDT" -> "coin-usdt-btc").
type BitforexSymbolMapper struct{}

func (BitforexSymbolMapper) Format(canonical string) (string, error) {
	base, quote, err := splitCanonical(canonical)
	if err != nil {
		return "", err
	}
	return "coin-" + strings.ToLower(quote) + "-" + strings.ToLower(base), nil
}

func (BitforexSymbolMapper) Normalize(native string) (string, error) {
	parts := strings.Split(strings.ToLower(native), "-")
	if len(parts) != 3 || parts[0] != "coin" || parts[1] == "" || parts[2] == "" {
		return "", NewValidationError(CodeInvalidSymbol, fmt.Sprintf("cannot normalize Bitforex symbol %q", native))
	}
	return strings.ToUpper(parts[2]) + "/" + strings.ToUpper(parts[1]), nil
}

// MapperForPlatform returns the symbol mapper owned by a platform.
func MapperForPlatform(platform Platform) (SymbolMapper, error) {
	switch platform {
	case PlatformBinance:
		return BinanceSymbolMapper{}, nil
	case PlatformKraken:
		return KrakenSymbolMapper{}, nil
	case PlatformCoinbase:
		return CoinbaseSymbolMapper{}, nil
	case PlatformBitforex:
		return BitforexSymbolMapper{}, nil
	default:
		return nil, NewUnknownPlatformError(string(platform))
	}
}
