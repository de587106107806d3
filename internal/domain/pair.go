package domain

// AssetPair is an unordered pair of asset identifiers.
// (A,B) and (B,A) denote the same pair.
type AssetPair struct {
	A string
	B string
}

// Key returns an order-independent map key for the pair.
func (p AssetPair) Key() string {
	if p.A <= p.B {
		return p.A + "|" + p.B
	}
	return p.B + "|" + p.A
}

// Well-known mint addresses used in default pair configuration.
const (
	MintWSOL = "So11111111111111111111111111111111111111112"
	MintUSDC = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	MintUSDT = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
)
