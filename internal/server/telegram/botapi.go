// Package telegram carries the relay over the Telegram Bot API: it turns
// updates into session events and delivers notices and relayed messages.
package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// botAPI is the part of *tgbotapi.BotAPI the transport uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

var _ botAPI = (*tgbotapi.BotAPI)(nil)

// Commands is the menu registered with the platform. /stats is left out on
// purpose, only the administrator needs to know about it.
var Commands = []tgbotapi.BotCommand{
	{Command: "start", Description: "Start the bot"},
	{Command: "help", Description: "Show the command list"},
	{Command: "chat", Description: "Find a random partner"},
	{Command: "exit", Description: "Leave the current chat"},
	{Command: "newchat", Description: "Leave and find a new partner"},
	{Command: "chat_ai", Description: "Talk to the AI assistant"},
	{Command: "exit_ai", Description: "Stop talking to the AI assistant"},
}
