package asset

// Well-known assets used across the pipeline.
var (
	ETH = &Asset{Symbol: "ETH", Decimals: 18}
	BNB = &Asset{Symbol: "BNB", Decimals: 18}
	SOL = &Asset{Symbol: "SOL", Decimals: 9}
	USD = &Asset{Symbol: "USD", Decimals: 2}
)

// NativeFor returns the native asset for a chain identifier, or nil when the
// chain is unknown.
func NativeFor(chain string) *Asset {
	switch chain {
	case "ethereum", "mainnet", "goerli", "sepolia":
		return ETH
	case "bsc":
		return BNB
	case "solana":
		return SOL
	default:
		return nil
	}
}
