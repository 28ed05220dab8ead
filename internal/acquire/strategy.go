package acquire

import "fmt"

// Strategy is one yt-dlp invocation variant. Strategies are tried in order
// until one produces a file.
type Strategy struct {
	Name string
	Args []string
}

var knownStrategies = map[string][]string{
	"default":    nil,
	"android":    {"--extractor-args", "youtube:player_client=android"},
	"best_audio": {"--audio-quality", "0"},
	"ipv4":       {"--force-ipv4", "--add-header", "Accept-Language:en-US,en;q=0.9"},
	"web_safari": {"--extractor-args", "youtube:player_client=web_safari"},
}

// KnownStrategy reports whether name is a built-in strategy.
func KnownStrategy(name string) bool {
	_, ok := knownStrategies[name]
	return ok
}

// ResolveStrategies maps configured names to strategies, preserving order.
func ResolveStrategies(names []string) ([]Strategy, error) {
	if len(names) == 0 {
		names = []string{"default"}
	}
	out := make([]Strategy, 0, len(names))
	for _, name := range names {
		args, ok := knownStrategies[name]
		if !ok {
			return nil, fmt.Errorf("unknown acquisition strategy %q", name)
		}
		out = append(out, Strategy{Name: name, Args: append([]string(nil), args...)})
	}
	return out, nil
}
