package render

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	lang := language.English

	message.SetString(lang, "notification.generic.title", defaultGenericTitle)
	message.SetString(lang, "notification.generic.body", defaultGenericBody)
	message.SetString(lang, "notification.generic.email_subject", defaultGenericEmailSubject)

	message.SetString(lang, "engagement.level_up.title", "Level up!")
	message.SetString(lang, "engagement.level_up.body", "You reached level %s. Keep it going.")
	message.SetString(lang, "engagement.level_up.email_subject", "You leveled up on Ember Forum")

	message.SetString(lang, "engagement.rank_up.title", "New rank unlocked")
	message.SetString(lang, "engagement.rank_up.body", "You are now ranked %s.")
	message.SetString(lang, "engagement.rank_up.email_subject", "You earned a new rank on Ember Forum")

	message.SetString(lang, "engagement.badge_granted.title", "Badge earned")
	message.SetString(lang, "engagement.badge_granted.body", "You earned the %s badge.")
	message.SetString(lang, "engagement.badge_granted.email_subject", "You earned a badge on Ember Forum")

	message.SetString(lang, "engagement.mission_completed.title", "Mission complete")
	message.SetString(lang, "engagement.mission_completed.body", "You finished %s and earned %s XP.")
	message.SetString(lang, "engagement.mission_completed.email_subject", "Mission complete on Ember Forum")

	message.SetString(lang, "engagement.overtake_won.title", "You moved up")
	message.SetString(lang, "engagement.overtake_won.body", "You passed another member on the leaderboard.")
	message.SetString(lang, "engagement.overtake_won.email_subject", "You moved up the Ember Forum leaderboard")

	message.SetString(lang, "engagement.overtake_lost.title", "You were passed")
	message.SetString(lang, "engagement.overtake_lost.body", "Another member passed you on the leaderboard.")
	message.SetString(lang, "engagement.overtake_lost.email_subject", "Your Ember Forum leaderboard spot changed")
}
