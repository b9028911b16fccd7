package ads

import (
	"errors"
	"strings"
)

var ErrLinkInvalid = errors.New("ad link invalid")

// ValidLink reports whether link may be opened: an http(s) URL that is neither
// a built-in default nor marked as a placeholder.
func ValidLink(link string) bool {
	if !strings.HasPrefix(link, "http://") && !strings.HasPrefix(link, "https://") {
		return false
	}
	if link == DefaultAdsterraDirectLink || link == DefaultMonetagDirectLink {
		return false
	}
	return !strings.Contains(strings.ToLower(link), "placeholder")
}

// other returns the alternate network.
func (n Network) other() Network {
	if n == NetworkAdsterra {
		return NetworkMonetag
	}
	return NetworkAdsterra
}

// pickNetwork applies rotation and link fallback. It returns ErrLinkInvalid when no
// enabled network has a valid link.
func pickNetwork(s Settings, last Network) (Network, string, error) {
	adsterra := s.Enabled(NetworkAdsterra)
	monetag := s.Enabled(NetworkMonetag)

	var chosen Network
	switch {
	case adsterra && monetag:
		chosen = NetworkAdsterra
		if last == NetworkAdsterra {
			chosen = NetworkMonetag
		}
	case adsterra:
		chosen = NetworkAdsterra
	case monetag:
		chosen = NetworkMonetag
	default:
		return "", "", ErrNoNetwork
	}

	if link := s.Link(chosen); ValidLink(link) {
		return chosen, link, nil
	}
	alt := chosen.other()
	if s.Enabled(alt) {
		if link := s.Link(alt); ValidLink(link) {
			return alt, link, nil
		}
	}
	return "", "", ErrLinkInvalid
}
