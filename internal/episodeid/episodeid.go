package episodeid

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Code identifies one episode within a season.
type Code struct {
	Season  int
	Episode int
}

// Name returns the canonical artifact base name, e.g. S08E30.
func (c Code) Name() string {
	return fmt.Sprintf("S%02dE%02d", c.Season, c.Episode)
}

// Label returns the human readable form used for fallback feed titles.
func (c Code) Label() string {
	return fmt.Sprintf("Season %d Episode %d", c.Season, c.Episode)
}

func (c Code) String() string { return c.Name() }

type pattern struct {
	name string
	re   *regexp.Regexp
}

// patterns are evaluated in order; the first match wins.
var patterns = []pattern{
	{name: "compact", re: regexp.MustCompile(`(?i)\bS\s*(\d+)\s*E(?:p\.?)?\s*(\d+)`)},
	{name: "verbose", re: regexp.MustCompile(`(?i)\bSeason\s*(\d+)\s*[,:\-]?\s*(?:Episode|Ep\.?)\s*(\d+)`)},
	// Cross notation needs a zero-padded episode ("8x05", not "1x2") so
	// counts and dimensions in clip titles are not taken for codes.
	{name: "cross", re: regexp.MustCompile(`(?:^|[\s(\[:|-])(\d{1,2})x(\d{2,3})(?:$|[^\p{L}\p{N}])`)},
}

var namePattern = regexp.MustCompile(`^S(\d+)E(\d+)$`)

// Extract returns the first episode code found in title. The boolean is false
// when no pattern matches.
func Extract(title string) (Code, bool) {
	code, _, ok := ExtractWithPattern(title)
	return code, ok
}

// ExtractWithPattern is Extract plus the name of the pattern that matched,
// which callers log for diagnostics.
func ExtractWithPattern(title string) (Code, string, bool) {
	normalized := strings.TrimSpace(norm.NFKC.String(title))
	if normalized == "" {
		return Code{}, "", false
	}
	for _, p := range patterns {
		matches := p.re.FindStringSubmatch(normalized)
		if len(matches) != 3 {
			continue
		}
		code, ok := parsePair(matches[1], matches[2])
		if !ok {
			continue
		}
		return code, p.name, true
	}
	return Code{}, "", false
}

// ParseName parses a canonical artifact base name produced by Code.Name.
func ParseName(name string) (Code, bool) {
	matches := namePattern.FindStringSubmatch(strings.TrimSpace(name))
	if len(matches) != 3 {
		return Code{}, false
	}
	return parsePair(matches[1], matches[2])
}

func parsePair(seasonText, episodeText string) (Code, bool) {
	season, err := strconv.Atoi(seasonText)
	if err != nil {
		return Code{}, false
	}
	episode, err := strconv.Atoi(episodeText)
	if err != nil {
		return Code{}, false
	}
	return Code{Season: season, Episode: episode}, true
}
