// Package ads decides when a sponsor direct link is opened for a device,
// enforcing daily and session caps and rotating between the two networks.
package ads

import (
	"encoding/json"
	"fmt"
	"time"
)

type Network string

const (
	NetworkAdsterra Network = "adsterra"
	NetworkMonetag  Network = "monetag"
)

// Built-in links shipped with the default settings. They never count as valid
// targets so an unconfigured deployment does not fire ads.
const (
	DefaultAdsterraDirectLink = "https://www.profitablecpmnetwork.com/g8nhym4yg?key=2b71bf819cb8c5c7f8e011b7b75ea097"
	DefaultMonetagDirectLink  = "https://example.com/monetag"
)

// Settings is the full ad configuration. Every field is always populated;
// build one with DefaultSettings or MergeSettings.
type Settings struct {
	AdsEnabledGlobally bool `json:"adsEnabledGlobally"`

	AdsterraDirectLink          string `json:"adsterraDirectLink"`
	AdsterraDirectLinkEnabled   bool   `json:"adsterraDirectLinkEnabled"`
	AdsterraBannerCode          string `json:"adsterraBannerCode"`
	AdsterraBannerEnabled       bool   `json:"adsterraBannerEnabled"`
	AdsterraNativeBannerCode    string `json:"adsterraNativeBannerCode"`
	AdsterraNativeBannerEnabled bool   `json:"adsterraNativeBannerEnabled"`
	AdsterraSocialBarCode       string `json:"adsterraSocialBarCode"`
	AdsterraSocialBarEnabled    bool   `json:"adsterraSocialBarEnabled"`
	AdsterraPopunderCode        string `json:"adsterraPopunderCode"`
	AdsterraPopunderEnabled     bool   `json:"adsterraPopunderEnabled"`

	MonetagDirectLink          string `json:"monetagDirectLink"`
	MonetagDirectLinkEnabled   bool   `json:"monetagDirectLinkEnabled"`
	MonetagBannerCode          string `json:"monetagBannerCode"`
	MonetagBannerEnabled       bool   `json:"monetagBannerEnabled"`
	MonetagNativeBannerCode    string `json:"monetagNativeBannerCode"`
	MonetagNativeBannerEnabled bool   `json:"monetagNativeBannerEnabled"`
	MonetagSocialBarCode       string `json:"monetagSocialBarCode"`
	MonetagSocialBarEnabled    bool   `json:"monetagSocialBarEnabled"`
	MonetagPopunderCode        string `json:"monetagPopunderCode"`
	MonetagPopunderEnabled     bool   `json:"monetagPopunderEnabled"`

	MaxDirectLinkAdsPerDay      int     `json:"maxDirectLinkAdsPerDay"`
	MaxDirectLinkAdsPerSession  int     `json:"maxDirectLinkAdsPerSession"`
	MessagesPerAdTrigger        int     `json:"messagesPerAdTrigger"`
	InactivityAdTimeoutMs       int64   `json:"inactivityAdTimeoutMs"`
	InactivityAdChance          float64 `json:"inactivityAdChance"`
	UserMediaInterstitialChance float64 `json:"userMediaInterstitialChance"`
}

// DefaultSettings returns the shipped configuration.
func DefaultSettings() Settings {
	return Settings{
		AdsEnabledGlobally: true,

		AdsterraDirectLink:          DefaultAdsterraDirectLink,
		AdsterraDirectLinkEnabled:   true,
		AdsterraBannerCode:          "<!-- Adsterra Banner Code Placeholder -->",
		AdsterraNativeBannerCode:    "<!-- Adsterra Native Banner Code Placeholder -->",
		AdsterraSocialBarCode:       "<!-- Adsterra Social Bar Code Placeholder -->",
		AdsterraSocialBarEnabled:    true,
		AdsterraPopunderCode:        "<!-- Adsterra Popunder Code Placeholder -->",
		MonetagDirectLink:           DefaultMonetagDirectLink,
		MonetagBannerCode:           "<!-- Monetag Banner Code Placeholder -->",
		MonetagNativeBannerCode:     "<!-- Monetag Native Banner Code Placeholder -->",
		MonetagSocialBarCode:        "<!-- Monetag Social Bar Code Placeholder -->",
		MonetagPopunderCode:         "<!-- Monetag Popunder Code Placeholder -->",
		MaxDirectLinkAdsPerDay:      8,
		MaxDirectLinkAdsPerSession:  2,
		MessagesPerAdTrigger:        7,
		InactivityAdTimeoutMs:       45000,
		InactivityAdChance:          0.25,
		UserMediaInterstitialChance: 0.15,
	}
}

// InactivityTimeout is the idle period after which clients report inactivity.
func (s Settings) InactivityTimeout() time.Duration {
	return time.Duration(s.InactivityAdTimeoutMs) * time.Millisecond
}

// Enabled reports whether direct links are turned on for the network.
func (s Settings) Enabled(n Network) bool {
	switch n {
	case NetworkAdsterra:
		return s.AdsterraDirectLinkEnabled
	case NetworkMonetag:
		return s.MonetagDirectLinkEnabled
	default:
		return false
	}
}

// Link returns the configured direct link for the network.
func (s Settings) Link(n Network) string {
	switch n {
	case NetworkAdsterra:
		return s.AdsterraDirectLink
	case NetworkMonetag:
		return s.MonetagDirectLink
	default:
		return ""
	}
}

// PartialSettings is a stored settings blob where any field may be missing.
type PartialSettings struct {
	AdsEnabledGlobally *bool `json:"adsEnabledGlobally,omitempty"`

	AdsterraDirectLink          *string `json:"adsterraDirectLink,omitempty"`
	AdsterraDirectLinkEnabled   *bool   `json:"adsterraDirectLinkEnabled,omitempty"`
	AdsterraBannerCode          *string `json:"adsterraBannerCode,omitempty"`
	AdsterraBannerEnabled       *bool   `json:"adsterraBannerEnabled,omitempty"`
	AdsterraNativeBannerCode    *string `json:"adsterraNativeBannerCode,omitempty"`
	AdsterraNativeBannerEnabled *bool   `json:"adsterraNativeBannerEnabled,omitempty"`
	AdsterraSocialBarCode       *string `json:"adsterraSocialBarCode,omitempty"`
	AdsterraSocialBarEnabled    *bool   `json:"adsterraSocialBarEnabled,omitempty"`
	AdsterraPopunderCode        *string `json:"adsterraPopunderCode,omitempty"`
	AdsterraPopunderEnabled     *bool   `json:"adsterraPopunderEnabled,omitempty"`

	MonetagDirectLink          *string `json:"monetagDirectLink,omitempty"`
	MonetagDirectLinkEnabled   *bool   `json:"monetagDirectLinkEnabled,omitempty"`
	MonetagBannerCode          *string `json:"monetagBannerCode,omitempty"`
	MonetagBannerEnabled       *bool   `json:"monetagBannerEnabled,omitempty"`
	MonetagNativeBannerCode    *string `json:"monetagNativeBannerCode,omitempty"`
	MonetagNativeBannerEnabled *bool   `json:"monetagNativeBannerEnabled,omitempty"`
	MonetagSocialBarCode       *string `json:"monetagSocialBarCode,omitempty"`
	MonetagSocialBarEnabled    *bool   `json:"monetagSocialBarEnabled,omitempty"`
	MonetagPopunderCode        *string `json:"monetagPopunderCode,omitempty"`
	MonetagPopunderEnabled     *bool   `json:"monetagPopunderEnabled,omitempty"`

	MaxDirectLinkAdsPerDay      *int     `json:"maxDirectLinkAdsPerDay,omitempty"`
	MaxDirectLinkAdsPerSession  *int     `json:"maxDirectLinkAdsPerSession,omitempty"`
	MessagesPerAdTrigger        *int     `json:"messagesPerAdTrigger,omitempty"`
	InactivityAdTimeoutMs       *int64   `json:"inactivityAdTimeoutMs,omitempty"`
	InactivityAdChance          *float64 `json:"inactivityAdChance,omitempty"`
	UserMediaInterstitialChance *float64 `json:"userMediaInterstitialChance,omitempty"`
}

// ParsePartial decodes a stored settings blob. An empty blob yields an empty partial.
func ParsePartial(raw []byte) (PartialSettings, error) {
	var p PartialSettings
	if len(raw) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return PartialSettings{}, fmt.Errorf("decode ad settings: %w", err)
	}
	return p, nil
}

// MergeSettings overlays the partial onto DefaultSettings. Negative caps and
// out-of-range chances fall back to their defaults.
func MergeSettings(p PartialSettings) Settings {
	s := DefaultSettings()
	def := s

	setBool(&s.AdsEnabledGlobally, p.AdsEnabledGlobally)

	setString(&s.AdsterraDirectLink, p.AdsterraDirectLink)
	setBool(&s.AdsterraDirectLinkEnabled, p.AdsterraDirectLinkEnabled)
	setString(&s.AdsterraBannerCode, p.AdsterraBannerCode)
	setBool(&s.AdsterraBannerEnabled, p.AdsterraBannerEnabled)
	setString(&s.AdsterraNativeBannerCode, p.AdsterraNativeBannerCode)
	setBool(&s.AdsterraNativeBannerEnabled, p.AdsterraNativeBannerEnabled)
	setString(&s.AdsterraSocialBarCode, p.AdsterraSocialBarCode)
	setBool(&s.AdsterraSocialBarEnabled, p.AdsterraSocialBarEnabled)
	setString(&s.AdsterraPopunderCode, p.AdsterraPopunderCode)
	setBool(&s.AdsterraPopunderEnabled, p.AdsterraPopunderEnabled)

	setString(&s.MonetagDirectLink, p.MonetagDirectLink)
	setBool(&s.MonetagDirectLinkEnabled, p.MonetagDirectLinkEnabled)
	setString(&s.MonetagBannerCode, p.MonetagBannerCode)
	setBool(&s.MonetagBannerEnabled, p.MonetagBannerEnabled)
	setString(&s.MonetagNativeBannerCode, p.MonetagNativeBannerCode)
	setBool(&s.MonetagNativeBannerEnabled, p.MonetagNativeBannerEnabled)
	setString(&s.MonetagSocialBarCode, p.MonetagSocialBarCode)
	setBool(&s.MonetagSocialBarEnabled, p.MonetagSocialBarEnabled)
	setString(&s.MonetagPopunderCode, p.MonetagPopunderCode)
	setBool(&s.MonetagPopunderEnabled, p.MonetagPopunderEnabled)

	if p.MaxDirectLinkAdsPerDay != nil && *p.MaxDirectLinkAdsPerDay >= 0 {
		s.MaxDirectLinkAdsPerDay = *p.MaxDirectLinkAdsPerDay
	}
	if p.MaxDirectLinkAdsPerSession != nil && *p.MaxDirectLinkAdsPerSession >= 0 {
		s.MaxDirectLinkAdsPerSession = *p.MaxDirectLinkAdsPerSession
	}
	if p.MessagesPerAdTrigger != nil && *p.MessagesPerAdTrigger > 0 {
		s.MessagesPerAdTrigger = *p.MessagesPerAdTrigger
	}
	if p.InactivityAdTimeoutMs != nil && *p.InactivityAdTimeoutMs > 0 {
		s.InactivityAdTimeoutMs = *p.InactivityAdTimeoutMs
	}
	s.InactivityAdChance = chance(p.InactivityAdChance, def.InactivityAdChance)
	s.UserMediaInterstitialChance = chance(p.UserMediaInterstitialChance, def.UserMediaInterstitialChance)
	return s
}

// Partial converts s into a fully populated partial, for storing.
func (s Settings) Partial() PartialSettings {
	return PartialSettings{
		AdsEnabledGlobally:          &s.AdsEnabledGlobally,
		AdsterraDirectLink:          &s.AdsterraDirectLink,
		AdsterraDirectLinkEnabled:   &s.AdsterraDirectLinkEnabled,
		AdsterraBannerCode:          &s.AdsterraBannerCode,
		AdsterraBannerEnabled:       &s.AdsterraBannerEnabled,
		AdsterraNativeBannerCode:    &s.AdsterraNativeBannerCode,
		AdsterraNativeBannerEnabled: &s.AdsterraNativeBannerEnabled,
		AdsterraSocialBarCode:       &s.AdsterraSocialBarCode,
		AdsterraSocialBarEnabled:    &s.AdsterraSocialBarEnabled,
		AdsterraPopunderCode:        &s.AdsterraPopunderCode,
		AdsterraPopunderEnabled:     &s.AdsterraPopunderEnabled,
		MonetagDirectLink:           &s.MonetagDirectLink,
		MonetagDirectLinkEnabled:    &s.MonetagDirectLinkEnabled,
		MonetagBannerCode:           &s.MonetagBannerCode,
		MonetagBannerEnabled:        &s.MonetagBannerEnabled,
		MonetagNativeBannerCode:     &s.MonetagNativeBannerCode,
		MonetagNativeBannerEnabled:  &s.MonetagNativeBannerEnabled,
		MonetagSocialBarCode:        &s.MonetagSocialBarCode,
		MonetagSocialBarEnabled:     &s.MonetagSocialBarEnabled,
		MonetagPopunderCode:         &s.MonetagPopunderCode,
		MonetagPopunderEnabled:      &s.MonetagPopunderEnabled,
		MaxDirectLinkAdsPerDay:      &s.MaxDirectLinkAdsPerDay,
		MaxDirectLinkAdsPerSession:  &s.MaxDirectLinkAdsPerSession,
		MessagesPerAdTrigger:        &s.MessagesPerAdTrigger,
		InactivityAdTimeoutMs:       &s.InactivityAdTimeoutMs,
		InactivityAdChance:          &s.InactivityAdChance,
		UserMediaInterstitialChance: &s.UserMediaInterstitialChance,
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func chance(v *float64, fallback float64) float64 {
	if v == nil || *v < 0 || *v > 1 {
		return fallback
	}
	return *v
}
