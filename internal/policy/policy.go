// Package policy enforces the static asset-pair allow-list.
// The set is injected at construction and immutable afterwards; adding a
// pair is a configuration change, not a runtime operation.
package policy

import (
	"sort"
	"strings"

	"swap-guard/internal/domain"
)

// PairPolicy validates requested pairs against an allow-list.
// Membership is symmetric: (A,B) and (B,A) are the same pair.
type PairPolicy struct {
	pairs map[string]domain.AssetPair
}

// NewPairPolicy builds a policy from the given pairs. Degenerate pairs
// (empty side or A == B) are ignored.
func NewPairPolicy(pairs []domain.AssetPair) *PairPolicy {
	m := make(map[string]domain.AssetPair, len(pairs))
	for _, p := range pairs {
		if p.A == "" || p.B == "" || p.A == p.B {
			continue
		}
		m[p.Key()] = p
	}
	return &PairPolicy{pairs: m}
}

// DefaultPairs returns the pairs enabled when none are configured:
// WSOL/USDC and WSOL/USDT.
func DefaultPairs() []domain.AssetPair {
	return []domain.AssetPair{
		{A: domain.MintWSOL, B: domain.MintUSDC},
		{A: domain.MintWSOL, B: domain.MintUSDT},
	}
}

// Allows reports whether the (source, destination) pair is permitted,
// in either direction.
func (p *PairPolicy) Allows(source, destination string) bool {
	if source == "" || destination == "" || source == destination {
		return false
	}
	_, ok := p.pairs[domain.AssetPair{A: source, B: destination}.Key()]
	return ok
}

// Pairs returns the allow-listed pairs in deterministic order.
func (p *PairPolicy) Pairs() []domain.AssetPair {
	keys := make([]string, 0, len(p.pairs))
	for k := range p.pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]domain.AssetPair, 0, len(keys))
	for _, k := range keys {
		out = append(out, p.pairs[k])
	}
	return out
}

// ParsePairList parses a comma-separated list of SOURCE:DEST entries,
// as passed on the command line.
func ParsePairList(s string) []domain.AssetPair {
	var pairs []domain.AssetPair
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 {
			continue
		}
		pairs = append(pairs, domain.AssetPair{
			A: strings.TrimSpace(parts[0]),
			B: strings.TrimSpace(parts[1]),
		})
	}
	return pairs
}
