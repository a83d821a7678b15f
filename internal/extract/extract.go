// Package extract turns free-text launch announcements into structured token fields.
//
// The contract address is the only mandatory field: without it a message is not an
// announcement and no record is produced. Every other field is best effort and falls back to
// a configured default, so template drift in a channel degrades fields instead of dropping
// records.
package extract

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	// addressPattern finds a 32-44 char alphanumeric run. Boundaries are checked separately
	// because RE2 has no lookaround and \b treats '_' as a word character.
	addressPattern = regexp.MustCompile(`[A-Za-z0-9]{32,44}`)

	tickerPattern    = regexp.MustCompile(`\$([A-Za-z0-9][A-Za-z0-9._-]*)`)
	magnitudePattern = regexp.MustCompile(`^[0-9][0-9.,]*[KMBkmb]?$`)
	marketCapPattern = regexp.MustCompile(`(?:市值|(?i:market\s*cap|mcap|mc))\s*[:：]\s*\$?\s*([0-9][0-9.,]*[KMB]?)`)
	communityPattern = regexp.MustCompile(`已在\s*(\d+)\s*个社区`)
	launchAgePattern = regexp.MustCompile(`开盘后\s*(.*?)\s*在`)
)

// Fields is the structured result of a successful extraction.
type Fields struct {
	ContractAddress string `json:"contract_address"`
	Name            string `json:"name"`
	MarketCap       string `json:"market_cap"`
	CommunityCount  string `json:"community_count"`
	TimeSinceLaunch string `json:"time_since_launch"`
}

// Options holds the defaults used when an optional field is missing.
type Options struct {
	NamePlaceholder string
	NameMaxRunes    int
	MarketCapNA     string
	DefaultMentions string
	TimeNA          string
}

// DefaultOptions returns the stock fallback values.
func DefaultOptions() Options {
	return Options{
		NamePlaceholder: "Unknown",
		NameMaxRunes:    15,
		MarketCapNA:     "N/A",
		DefaultMentions: "1",
		TimeNA:          "暂无",
	}
}

// Extractor applies the pattern rules. It holds no mutable state and is safe for concurrent use.
type Extractor struct {
	opts Options
}

// New builds an Extractor, filling zero-valued options with the defaults.
func New(opts Options) *Extractor {
	def := DefaultOptions()
	if opts.NamePlaceholder == "" {
		opts.NamePlaceholder = def.NamePlaceholder
	}
	if opts.NameMaxRunes <= 0 {
		opts.NameMaxRunes = def.NameMaxRunes
	}
	if opts.MarketCapNA == "" {
		opts.MarketCapNA = def.MarketCapNA
	}
	if opts.DefaultMentions == "" {
		opts.DefaultMentions = def.DefaultMentions
	}
	if opts.TimeNA == "" {
		opts.TimeNA = def.TimeNA
	}
	return &Extractor{opts: opts}
}

// Options returns the effective fallback values.
func (e *Extractor) Options() Options {
	return e.opts
}

// Extract parses text. The boolean is false when no contract address is present.
func (e *Extractor) Extract(text string) (Fields, bool) {
	address, ok := FindAddress(text)
	if !ok {
		return Fields{}, false
	}

	return Fields{
		ContractAddress: address,
		Name:            e.name(text),
		MarketCap:       firstGroup(marketCapPattern, text, e.opts.MarketCapNA),
		CommunityCount:  firstGroup(communityPattern, text, e.opts.DefaultMentions),
		TimeSinceLaunch: firstGroup(launchAgePattern, text, e.opts.TimeNA),
	}, true
}

// FindAddress returns the first alphanumeric run of 32-44 characters that is not part of a
// longer alphanumeric run.
func FindAddress(text string) (string, bool) {
	for _, loc := range addressPattern.FindAllStringIndex(text, -1) {
		// FindAll is greedy and non-overlapping, so a run longer than 44 chars shows up
		// as adjacent matches; the boundary check rejects every piece of it.
		if isAlnumAt(text, loc[0]-1) || isAlnumAt(text, loc[1]) {
			continue
		}
		return text[loc[0]:loc[1]], true
	}
	return "", false
}

func isAlnumAt(text string, i int) bool {
	if i < 0 || i >= len(text) {
		return false
	}
	c := text[i]
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func (e *Extractor) name(text string) string {
	for _, m := range tickerPattern.FindAllStringSubmatch(text, -1) {
		ticker := strings.TrimRight(m[1], "._-")
		if ticker == "" || magnitudePattern.MatchString(ticker) {
			continue
		}
		return ticker
	}

	for _, line := range strings.Split(text, "\n") {
		cleaned := stripDecorations(line)
		if cleaned == "" {
			continue
		}
		return truncateRunes(cleaned, e.opts.NameMaxRunes)
	}
	return e.opts.NamePlaceholder
}

func firstGroup(re *regexp.Regexp, text, fallback string) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return fallback
	}
	if v := strings.TrimSpace(m[1]); v != "" {
		return v
	}
	return fallback
}

// decorations are ASCII and typographic marks channels use as bullets or markup.
const decorations = "*_#|~>`•·●▪►▶★☆【】「」"

func stripDecorations(line string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.In(r, unicode.So, unicode.Sk, unicode.Cf, unicode.Co):
			return -1
		case r >= 0x1F3FB && r <= 0x1F3FF, r == 0xFE0F, r == 0x20E3:
			return -1
		case strings.ContainsRune(decorations, r):
			return -1
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, line)
	return strings.Join(strings.Fields(cleaned), " ")
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max]))
}
