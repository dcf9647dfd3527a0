package render

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	lang := language.BrazilianPortuguese

	message.SetString(lang, "notification.generic.title", "Notificação")
	message.SetString(lang, "notification.generic.body", "Você tem uma nova notificação.")
	message.SetString(lang, "notification.generic.email_subject", "Notificação do Ember Forum")

	message.SetString(lang, "engagement.level_up.title", "Subiu de nível!")
	message.SetString(lang, "engagement.level_up.body", "Você alcançou o nível %s. Continue assim.")
	message.SetString(lang, "engagement.level_up.email_subject", "Você subiu de nível no Ember Forum")

	message.SetString(lang, "engagement.rank_up.title", "Novo posto desbloqueado")
	message.SetString(lang, "engagement.rank_up.body", "Agora você tem o posto %s.")
	message.SetString(lang, "engagement.rank_up.email_subject", "Você conquistou um novo posto no Ember Forum")

	message.SetString(lang, "engagement.badge_granted.title", "Medalha conquistada")
	message.SetString(lang, "engagement.badge_granted.body", "Você conquistou a medalha %s.")
	message.SetString(lang, "engagement.badge_granted.email_subject", "Você conquistou uma medalha no Ember Forum")

	message.SetString(lang, "engagement.mission_completed.title", "Missão concluída")
	message.SetString(lang, "engagement.mission_completed.body", "Você concluiu %s e ganhou %s XP.")
	message.SetString(lang, "engagement.mission_completed.email_subject", "Missão concluída no Ember Forum")

	message.SetString(lang, "engagement.overtake_won.title", "Você subiu de posição")
	message.SetString(lang, "engagement.overtake_won.body", "Você ultrapassou outro membro no placar.")
	message.SetString(lang, "engagement.overtake_won.email_subject", "Você subiu no placar do Ember Forum")

	message.SetString(lang, "engagement.overtake_lost.title", "Você foi ultrapassado")
	message.SetString(lang, "engagement.overtake_lost.body", "Outro membro ultrapassou você no placar.")
	message.SetString(lang, "engagement.overtake_lost.email_subject", "Sua posição no placar do Ember Forum mudou")
}
