package eligibility

import "regexp"

// Exclusion categories used in verdict reasons.
const (
	CategoryWrapped         = "wrapped"
	CategoryLiquidStaking   = "liquid_staking"
	CategoryStablecoin      = "stablecoin"
	CategoryLiquidRestaking = "liquid_restaking"
	CategoryBridged         = "bridged"
	CategorySynthetic       = "synthetic"
	CategoryStaked          = "staked"
	CategoryVault           = "vault"
)

// explicitSymbols maps upper-case symbols to their exclusion category.
var explicitSymbols = buildExplicit(map[string][]string{
	CategoryWrapped: {
		"WBTC", "WETH", "WBNB", "WAVAX", "WMATIC", "WPOL", "WSOL", "WTRX", "WFTM",
		"WBETH", "WHBAR", "WCRO", "WKAVA", "WROSE", "WXDC", "CBBTC", "BTCB",
	},
	CategoryLiquidStaking: {
		"STETH", "WSTETH", "RETH", "CBETH", "METH", "SFRXETH", "FRXETH", "ANKRETH",
		"SWETH", "OSETH", "LSETH", "ETHX", "JITOSOL", "MSOL", "BNSOL", "BSOL", "JUPSOL",
		"STSOL", "STMATIC", "MATICX", "STATOM", "SAVAX", "STKAAVE", "SLISBNB",
	},
	CategoryStablecoin: {
		"USDT", "USDC", "DAI", "BUSD", "TUSD", "FDUSD", "USDE", "USDD", "USDJ", "GUSD",
		"PYUSD", "USDP", "LUSD", "SUSD", "FRAX", "USDS", "USD0", "USDX", "CRVUSD", "GHO",
		"RLUSD", "EURC", "EURS", "USDB", "USDY", "SUSDE", "SUSDS", "SDAI", "USD1", "USDG",
	},
	CategoryLiquidRestaking: {
		"EETH", "WEETH", "EZETH", "RSETH", "PUFETH", "RSWETH", "PZETH", "AGETH", "EGETH",
	},
	CategoryBridged: {
		"SOLVBTC", "LBTC", "FBTC", "UNIBTC", "PUMPBTC", "ENZOBTC", "TBTC",
		"USDC.E", "USDT.E", "WETH.E", "WBTC.E", "BTC.B",
	},
	CategorySynthetic: {
		"SETH", "SBTC", "SEUR", "SXAU", "SLINK", "BUIDL", "USTB",
	},
})

func buildExplicit(byCategory map[string][]string) map[string]string {
	out := make(map[string]string)
	for category, symbols := range byCategory {
		for _, s := range symbols {
			out[s] = category
		}
	}
	return out
}

type pattern struct {
	category string
	re       *regexp.Regexp
}

// symbolPatterns catch naming conventions of derivative tokens the explicit list misses.
// Matched against the upper-cased symbol.
var symbolPatterns = []pattern{
	{CategoryWrapped, regexp.MustCompile(`^W(BTC|ETH|BNB|AVAX|MATIC|SOL|TRX|FTM|ONE|CELO|GLMR|MOVR|EGLD|FLR|SGB|TLOS|DOGE|LTC|XRP|ADA|DOT|NEAR|ATOM)$`)},
	{CategoryStaked, regexp.MustCompile(`^(ST|WST|SFR|CB|OS|SW|ANKR|LS|JITO|JUP|BN)(ETH|SOL|MATIC|POL|BNB|AVAX|ATOM|DOT|NEAR|FTM|TIA|INJ|SEI|APT|SUI)$`)},
	{CategoryBridged, regexp.MustCompile(`\.(E|B)$|^(AXL|MULTI|ANY|CEL|WORM)(USDC|USDT|ETH|BTC|WBTC|WETH|DAI)$`)},
	{CategoryVault, regexp.MustCompile(`^YV[A-Z0-9]{2,}$|^(A|C)(ETH|WETH|WBTC|USDC|USDT|DAI)$`)},
}

// namePatterns flag derivative phrasing in asset names.
var namePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bwrapped\b`),
	regexp.MustCompile(`(?i)\bpegged\b|binance-peg`),
	regexp.MustCompile(`(?i)liquid\s+(re)?staking|\b(re)?staked\b`),
	regexp.MustCompile(`(?i)\byield[\s-]bearing\b|\bvault\b|\bsavings\b`),
	regexp.MustCompile(`(?i)\bbridged\b|cross[\s-]chain|\(wormhole\)`),
}
