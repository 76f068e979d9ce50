package eligibility

import (
	"errors"
	"fmt"
	"strings"

	"BandSentinel/internal/model"
)

// Verdict reasons.
const (
	ReasonDuplicateLowerRank = "duplicate_role_lower_rank"
	ReasonDuplicateDefault   = "duplicate_role_default"
	ReasonStablecoin         = "database_stablecoin"
	ReasonNameFilter         = "name_filter"
	ReasonManualReview       = "manual_review"
)

// ErrAmbiguousTieBreak is returned when a dual-role pair cannot be resolved by rank and
// the pair has no designated default member.
var ErrAmbiguousTieBreak = errors.New("ambiguous tie-break")

// DualRolePair is two tokens serving the same economic role. Only the higher-ranked one is
// shown. Default, when set, is the member shown if ranks are unavailable.
type DualRolePair struct {
	Members [2]string
	Default string
}

// TokenizedGold is the built-in pair of competing tokenized-gold proxies.
var TokenizedGold = DualRolePair{Members: [2]string{"PAXG", "XAUT"}, Default: "PAXG"}

// Universe is the ranked symbol list of the full asset universe, indexed by symbol.
// A nil *Universe means the list is unavailable.
type Universe struct {
	ranks map[string]int
}

// NewUniverse indexes a ranked list. When a symbol repeats the best (lowest) rank wins.
func NewUniverse(list []model.RankedSymbol) *Universe {
	u := &Universe{ranks: make(map[string]int, len(list))}
	for _, e := range list {
		if e.Rank <= 0 {
			continue
		}
		sym := normalize(e.Symbol)
		if r, ok := u.ranks[sym]; !ok || e.Rank < r {
			u.ranks[sym] = e.Rank
		}
	}
	return u
}

// Rank returns the rank of symbol, if known.
func (u *Universe) Rank(symbol string) (int, bool) {
	if u == nil {
		return 0, false
	}
	r, ok := u.ranks[normalize(symbol)]
	return r, ok
}

// Filter decides which assets are derivative, synthetic or stablecoin tokens.
// It holds no mutable state and is safe for concurrent use.
type Filter struct {
	pairs map[string]DualRolePair // member symbol -> pair
}

// NewFilter creates a Filter with the given dual-role pairs. With no pairs the
// tokenized-gold pair is used.
func NewFilter(pairs ...DualRolePair) (*Filter, error) {
	if len(pairs) == 0 {
		pairs = []DualRolePair{TokenizedGold}
	}
	f := &Filter{pairs: make(map[string]DualRolePair)}
	for _, p := range pairs {
		a, b := normalize(p.Members[0]), normalize(p.Members[1])
		if a == "" || b == "" || a == b {
			return nil, fmt.Errorf("invalid dual-role pair %v", p.Members)
		}
		def := normalize(p.Default)
		if def != "" && def != a && def != b {
			return nil, fmt.Errorf("default %q is not a member of pair %v", p.Default, p.Members)
		}
		np := DualRolePair{Members: [2]string{a, b}, Default: def}
		for _, m := range np.Members {
			if _, dup := f.pairs[m]; dup {
				return nil, fmt.Errorf("symbol %q belongs to more than one pair", m)
			}
			f.pairs[m] = np
		}
	}
	return f, nil
}

// Evaluate returns the verdict for one asset. The first matching rule wins:
// dual-role tie-break, stablecoin flag, explicit symbol list, symbol patterns,
// name patterns. Everything else is included.
func (f *Filter) Evaluate(meta model.AssetMeta, universe *Universe) (model.ExclusionVerdict, error) {
	symbol := normalize(meta.Symbol)

	if pair, ok := f.pairs[symbol]; ok {
		return tieBreak(pair, symbol, universe)
	}
	if meta.IsStablecoin {
		return exclude(ReasonStablecoin), nil
	}
	if category, ok := explicitSymbols[symbol]; ok {
		return exclude("explicit_" + category), nil
	}
	for _, p := range symbolPatterns {
		if p.re.MatchString(symbol) {
			return exclude("pattern_" + p.category), nil
		}
	}
	for _, re := range namePatterns {
		if re.MatchString(meta.Name) {
			return exclude(ReasonNameFilter), nil
		}
	}
	return model.ExclusionVerdict{}, nil
}

func tieBreak(pair DualRolePair, symbol string, universe *Universe) (model.ExclusionVerdict, error) {
	other := pair.Members[0]
	if other == symbol {
		other = pair.Members[1]
	}

	own, ownOK := universe.Rank(symbol)
	rival, rivalOK := universe.Rank(other)
	if ownOK && rivalOK && own != rival {
		if own < rival {
			return model.ExclusionVerdict{}, nil
		}
		return exclude(ReasonDuplicateLowerRank), nil
	}

	switch pair.Default {
	case "":
		return model.ExclusionVerdict{}, fmt.Errorf("%w: %s/%s without ranks", ErrAmbiguousTieBreak, pair.Members[0], pair.Members[1])
	case symbol:
		return model.ExclusionVerdict{}, nil
	default:
		return exclude(ReasonDuplicateDefault), nil
	}
}

// Rejected is an asset the filter excluded, or could not decide on.
type Rejected struct {
	Asset  model.Asset
	Reason string
	Err    error
}

// Apply filters assets with the universe built from the same list. Included assets keep
// their input order. Assets whose tie-break is ambiguous are rejected with ReasonManualReview
// and the error attached.
func (f *Filter) Apply(assets []model.Asset) (included []model.Asset, rejected []Rejected) {
	universe := NewUniverse(model.Universe(assets))
	for _, a := range assets {
		v, err := f.Evaluate(a.AssetMeta, universe)
		switch {
		case err != nil:
			rejected = append(rejected, Rejected{Asset: a, Reason: ReasonManualReview, Err: err})
		case v.Exclude:
			rejected = append(rejected, Rejected{Asset: a, Reason: v.Reason})
		default:
			included = append(included, a)
		}
	}
	return included, rejected
}

func exclude(reason string) model.ExclusionVerdict {
	return model.ExclusionVerdict{Exclude: true, Reason: reason}
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
