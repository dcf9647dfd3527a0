// Package render localizes engagement notification copy per channel.
package render

import (
	"encoding/json"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	// TypeLevelUp is the level-up notification message type.
	TypeLevelUp = "xp.level_up"
	// TypeRankUp is the rank-up notification message type.
	TypeRankUp = "xp.rank_up"
	// TypeBadgeGranted is the badge-granted notification message type.
	TypeBadgeGranted = "badge.granted"
	// TypeMissionCompleted is the mission-completed notification message type.
	TypeMissionCompleted = "mission.completed"
	// TypeOvertake is the leaderboard-overtake notification message type.
	TypeOvertake = "leaderboard.overtake"

	defaultGenericTitle        = "Notification"
	defaultGenericBody         = "You have a new notification."
	defaultGenericEmailSubject = "Ember Forum notification"
)

// Channel identifies where one notification artifact is rendered.
type Channel string

const (
	// ChannelInApp renders copy for the web inbox/detail view.
	ChannelInApp Channel = "in_app"
	// ChannelPush renders copy for push delivery.
	ChannelPush Channel = "push"
	// ChannelEmail renders copy for email delivery.
	ChannelEmail Channel = "email"
)

// Input is one channel render request for a stored notification artifact.
type Input struct {
	MessageType string
	PayloadJSON string
	Channel     Channel
}

// Output is localized, channel-aware copy derived from one notification artifact.
type Output struct {
	Title        string
	BodyText     string
	EmailSubject string
	ActionURL    string
}

// Localizer is the minimal message-printer contract required by the renderer.
type Localizer interface {
	Sprintf(key message.Reference, args ...any) string
}

var supportedTags = []language.Tag{
	language.English,
	language.BrazilianPortuguese,
}

var tagMatcher = language.NewMatcher(supportedTags)

// NewLocalizer returns a printer for one locale. Locales outside the
// supported set, and locales that fail to parse, resolve to English.
func NewLocalizer(locale string) *message.Printer {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		return message.NewPrinter(language.English)
	}
	_, index, _ := tagMatcher.Match(tag)
	return message.NewPrinter(supportedTags[index])
}

type eventPayload struct {
	Level        string `json:"level"`
	Rank         string `json:"rank"`
	BadgeName    string `json:"badge_name"`
	MissionID    string `json:"mission_id"`
	MissionTitle string `json:"mission_title"`
	XP           string `json:"xp"`
	Role         string `json:"role"`
	OtherUserID  string `json:"other_user_id"`
}

// Render returns localized copy for one notification artifact.
func Render(loc Localizer, input Input) Output {
	payload := eventPayload{}
	if raw := strings.TrimSpace(input.PayloadJSON); raw != "" {
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return genericOutput(loc)
		}
	}

	switch normalizeToken(input.MessageType) {
	case TypeLevelUp:
		return keyedOutput(loc, "engagement.level_up", "/profile", payload.Level)
	case TypeRankUp:
		return keyedOutput(loc, "engagement.rank_up", "/profile", payload.Rank)
	case TypeBadgeGranted:
		return keyedOutput(loc, "engagement.badge_granted", "/profile/badges", payload.BadgeName)
	case TypeMissionCompleted:
		out := keyedOutput(loc, "engagement.mission_completed", "/missions", payload.MissionTitle, payload.XP)
		if payload.MissionID != "" {
			out.ActionURL = "/missions/" + payload.MissionID
		}
		return out
	case TypeOvertake:
		key := "engagement.overtake_won"
		if normalizeToken(payload.Role) == "loser" {
			key = "engagement.overtake_lost"
		}
		return keyedOutput(loc, key, "/leaderboard")
	default:
		return genericOutput(loc)
	}
}

func keyedOutput(loc Localizer, prefix string, actionURL string, args ...any) Output {
	title := localize(loc, prefix+".title")
	body := localize(loc, prefix+".body", args...)
	subject := localize(loc, prefix+".email_subject")
	if title == prefix+".title" || body == prefix+".body" {
		return genericOutput(loc)
	}
	if subject == prefix+".email_subject" {
		subject = title
	}
	return Output{
		Title:        title,
		BodyText:     body,
		EmailSubject: subject,
		ActionURL:    actionURL,
	}
}

func genericOutput(loc Localizer) Output {
	title := localizeWithFallback(loc, "notification.generic.title", defaultGenericTitle)
	body := localizeWithFallback(loc, "notification.generic.body", defaultGenericBody)
	subject := localizeWithFallback(loc, "notification.generic.email_subject", defaultGenericEmailSubject)

	return Output{
		Title:        title,
		BodyText:     body,
		EmailSubject: subject,
	}
}

func localize(loc Localizer, key message.Reference, args ...any) string {
	if loc == nil {
		if asString, ok := key.(string); ok {
			return asString
		}
		return ""
	}
	return loc.Sprintf(key, args...)
}

func localizeWithFallback(loc Localizer, key string, fallback string) string {
	value := strings.TrimSpace(localize(loc, key))
	if value == "" || value == key {
		return fallback
	}
	return value
}

func normalizeToken(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
