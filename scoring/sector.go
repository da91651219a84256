package scoring

import (
	"sort"
	"strings"
	"sync"
)

const SectorUnknown = "Unknown"

// SectorTable maps a sector name to the tickers that make up its peer group.
type SectorTable map[string][]string

// DefaultSectors is the built-in peer table. Every ticker in a sector is a
// peer of every other, the ticker itself included.
var DefaultSectors = SectorTable{
	"Technology":         {"AAPL", "MSFT", "GOOGL", "INTC", "AMD", "NVDA"},
	"Healthcare":         {"AMGN", "GILD", "VRTX", "BIIB", "REGN"},
	"ConsumerServices":   {"CMCSA", "NFLX", "SIRI", "ROKU"},
	"Finance":            {"SCHW", "PYPL", "INTU", "FITB"},
	"Industrials":        {"CTAS", "FAST", "ODFL", "CHRW"},
	"ConsumerGoods":      {"TSLA", "PEP", "MNST", "KDP"},
	"Utilities":          {"SRE", "NEE", "EXC"},
	"Telecommunications": {"TMUS", "CHTR"},
	"Energy":             {"FANG", "OVV", "CTRA"},
	"RealEstate":         {"EQIX", "AMT", "SBAC"},
}

// PeerGroup is the sector a ticker belongs to and its comparison set.
type PeerGroup struct {
	Sector  string   `json:"sector"`
	Symbols []string `json:"symbols"`
}

// IsEmpty reports whether there is nothing to compare against.
func (g PeerGroup) IsEmpty() bool { return len(g.Symbols) == 0 }

// SectorResolver looks tickers up in a SectorTable. The table can be swapped
// at runtime; lookups always see a complete table.
type SectorResolver struct {
	mu      sync.RWMutex
	table   SectorTable
	sectors []string
}

func NewSectorResolver(table SectorTable) *SectorResolver {
	r := &SectorResolver{}
	r.Replace(table)
	return r
}

// NormalizeTicker upper-cases and trims a ticker symbol.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// Resolve returns the peer group for ticker. Unknown tickers get an empty
// group in SectorUnknown. Sectors are scanned in name order, so a ticker
// listed twice resolves to the alphabetically first sector.
func (r *SectorResolver) Resolve(ticker string) PeerGroup {
	ticker = NormalizeTicker(ticker)
	if ticker == "" {
		return PeerGroup{Sector: SectorUnknown}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, sector := range r.sectors {
		symbols := r.table[sector]
		for _, s := range symbols {
			if s == ticker {
				return PeerGroup{Sector: sector, Symbols: append([]string(nil), symbols...)}
			}
		}
	}
	return PeerGroup{Sector: SectorUnknown}
}

// CleanSectorTable normalizes tickers, drops duplicates and blanks, and
// leaves out sectors that end up empty.
func CleanSectorTable(table SectorTable) SectorTable {
	clean := make(SectorTable, len(table))
	for sector, symbols := range table {
		sector = strings.TrimSpace(sector)
		if sector == "" {
			continue
		}
		var list []string
		seen := make(map[string]struct{}, len(symbols))
		for _, s := range symbols {
			s = NormalizeTicker(s)
			if s == "" {
				continue
			}
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			list = append(list, s)
		}
		if len(list) == 0 {
			continue
		}
		clean[sector] = list
	}
	return clean
}

// Replace installs a cleaned copy of table and returns how many sectors it kept.
func (r *SectorResolver) Replace(table SectorTable) int {
	clean := CleanSectorTable(table)
	sectors := make([]string, 0, len(clean))
	for sector := range clean {
		sectors = append(sectors, sector)
	}
	sort.Strings(sectors)

	r.mu.Lock()
	r.table = clean
	r.sectors = sectors
	r.mu.Unlock()
	return len(sectors)
}

// Table returns a copy of the current table.
func (r *SectorResolver) Table() SectorTable {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(SectorTable, len(r.table))
	for sector, symbols := range r.table {
		out[sector] = append([]string(nil), symbols...)
	}
	return out
}
