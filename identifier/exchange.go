// Package identifier holds the strong types used to address a venue, an
// instrument, and a subscription, and the derivation of SubscriptionId used
// to demultiplex an exchange's wire messages.
package identifier

// ExchangeId is a closed enumeration of supported venues. It is stable
// across releases and safe to use as a map key or log field.
type ExchangeId string

const (
	Binance        ExchangeId = "binance"
	BinanceFutures ExchangeId = "binance_futures"
	Coinbase       ExchangeId = "coinbase"
	Kraken         ExchangeId = "kraken"
	Okx            ExchangeId = "okx"
	Bybit          ExchangeId = "bybit"
	GateIo         ExchangeId = "gateio"
	Bitmex         ExchangeId = "bitmex"
	Bitfinex       ExchangeId = "bitfinex"
	Bitstamp       ExchangeId = "bitstamp"
	Kucoin         ExchangeId = "kucoin"
	Hyperliquid    ExchangeId = "hyperliquid"
	OneTrading     ExchangeId = "onetrading"
	Mexc           ExchangeId = "mexc"
)

func (e ExchangeId) String() string { return string(e) }

// Supported lists every ExchangeId in the enumeration. Only Binance,
// Coinbase, Bitstamp, Kraken and Okx have a connector (connector.Default).
func Supported() []ExchangeId {
	return []ExchangeId{
		Binance, BinanceFutures, Coinbase, Kraken, Okx, Bybit, GateIo,
		Bitmex, Bitfinex, Bitstamp, Kucoin, Hyperliquid, OneTrading, Mexc,
	}
}
