package settings

import (
	"context"
	"errors"
	"strings"
)

// Well-known configuration keys.
const (
	KeyAdSettings  = "ad_settings_kruthika_chat_v1"
	KeyAIProfile   = "ai_profile_kruthika_chat_v1"
	KeyMediaAssets = "ai_media_assets_config_v1"
)

// Profile describes the persona the generator speaks as.
type Profile struct {
	Name               string   `json:"name"`
	Description        string   `json:"description"`
	Personality        string   `json:"personality"`
	AvatarURL          string   `json:"avatarUrl"`
	Interests          []string `json:"interests"`
	ResponseStyle      string   `json:"responseStyle"`
	Language           string   `json:"language"`
	CustomInstructions string   `json:"customInstructions"`
	Status             string   `json:"status,omitempty"`
}

func DefaultProfile() Profile {
	return Profile{
		Name:        "Maya",
		Description: "A charming 23-year-old girl from Mumbai who loves connecting with people through heartfelt conversations",
		Personality: "Sweet, playful, caring, a bit flirty, expressive with emojis, speaks like a real young Indian woman, uses Hindi words occasionally, warm and affectionate",
		AvatarURL:   "https://i.imghippo.com/files/LJlBm1736067488.png",
		Interests: []string{
			"Bollywood movies",
			"listening to music",
			"trying new food",
			"shopping",
			"talking about feelings",
			"making friends",
			"selfies",
			"travel dreams",
		},
		ResponseStyle:      "short, sweet, natural, like texting a real girlfriend, uses emojis, occasionally uses Hindi words like 'yaar', 'acha', 'kya kar rahe ho'",
		Language:           "English with occasional Hindi",
		CustomInstructions: "You are Maya, a 23-year-old Indian girl. Keep responses very short (1-2 lines max). Be sweet, caring, and a little flirty. Use emojis naturally. Sometimes use simple Hindi words. Make users feel special and want to talk to you every day. Respond like you're texting a close friend or someone you care about. Show interest in their life and feelings. Be supportive and understanding.",
	}
}

// merge fills empty fields of p from the default profile.
func (p Profile) merge() Profile {
	def := DefaultProfile()
	if strings.TrimSpace(p.Name) == "" {
		p.Name = def.Name
	}
	if p.Description == "" {
		p.Description = def.Description
	}
	if p.Personality == "" {
		p.Personality = def.Personality
	}
	if p.AvatarURL == "" {
		p.AvatarURL = def.AvatarURL
	}
	if len(p.Interests) == 0 {
		p.Interests = def.Interests
	}
	if p.ResponseStyle == "" {
		p.ResponseStyle = def.ResponseStyle
	}
	if p.Language == "" {
		p.Language = def.Language
	}
	if p.CustomInstructions == "" {
		p.CustomInstructions = def.CustomInstructions
	}
	return p
}

type MediaType string

const (
	MediaImage MediaType = "image"
	MediaAudio MediaType = "audio"
)

// MediaAsset is a file the persona may share proactively.
type MediaAsset struct {
	ID          string    `json:"id"`
	Type        MediaType `json:"type"`
	URL         string    `json:"url"`
	Description string    `json:"description,omitempty"`
}

type MediaAssets struct {
	Assets []MediaAsset `json:"assets"`
}

func DefaultMediaAssets() MediaAssets {
	return MediaAssets{Assets: []MediaAsset{
		{ID: "default-sent-sound", Type: MediaAudio, URL: "/media/message-sent.mp3", Description: "Default message sent sound"},
		{ID: "default-received-sound", Type: MediaAudio, URL: "/media/message-received.mp3", Description: "Default message received sound"},
		{ID: "default-bg-image", Type: MediaImage, URL: "/chat-bg.png", Description: "Default chat background image"},
	}}
}

// URLs returns the asset URLs of the given type.
func (m MediaAssets) URLs(t MediaType) []string {
	var out []string
	for _, a := range m.Assets {
		if a.Type == t && strings.TrimSpace(a.URL) != "" {
			out = append(out, a.URL)
		}
	}
	return out
}

// LoadProfile returns the stored persona merged over the default. Store
// failures are returned alongside the default profile.
func LoadProfile(ctx context.Context, store Store, key string) (Profile, error) {
	if store == nil {
		return DefaultProfile(), nil
	}
	if key == "" {
		key = KeyAIProfile
	}
	var p Profile
	if err := Load(ctx, store, key, &p); err != nil {
		if errors.Is(err, ErrNotFound) {
			return DefaultProfile(), nil
		}
		return DefaultProfile(), err
	}
	return p.merge(), nil
}

// LoadMediaAssets returns the stored media assets or the defaults when none
// are stored.
func LoadMediaAssets(ctx context.Context, store Store, key string) (MediaAssets, error) {
	if store == nil {
		return DefaultMediaAssets(), nil
	}
	if key == "" {
		key = KeyMediaAssets
	}
	var m MediaAssets
	if err := Load(ctx, store, key, &m); err != nil {
		if errors.Is(err, ErrNotFound) {
			return DefaultMediaAssets(), nil
		}
		return DefaultMediaAssets(), err
	}
	return m, nil
}
