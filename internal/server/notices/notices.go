// Package notices holds the texts the service sends on its own behalf.
package notices

const (
	Welcome = "Welcome! This bot connects you with a random stranger for an anonymous chat, " +
		"or lets you talk to an AI assistant.\nSend /help to see what I can do."

	Help = "Commands:\n" +
		"/chat - find a random partner\n" +
		"/exit - leave the current chat\n" +
		"/newchat - leave the current chat and look for a new partner\n" +
		"/chat_ai - talk to the AI assistant\n" +
		"/exit_ai - stop talking to the AI assistant\n" +
		"/help - show this list"

	Searching        = "🤖 Looking for a partner..."
	AlreadySearching = "🤖 You are already searching!"
	AlreadyInChat    = "🤖 You are already in a chat, send /exit to leave it."
	Connected        = "🤖 You are connected with a stranger. Say hi!"

	NotInChat         = "🤖 You are not in a chat."
	NotInChatStartOne = "🤖 You are not in a chat, send /chat to find a partner."
	StillSearching    = "🤖 Message not delivered, you are still searching!"

	Leaving     = "🤖 Ending the chat..."
	YouLeft     = "🤖 You left the chat."
	PartnerLeft = "🤖 Your partner left the chat, send /chat to find a new one."

	DeliveryFailed = "🤖 Your message could not be delivered."

	AgentStarted     = "🤖 You are now talking to the AI assistant. Write something!"
	AgentAlready     = "🤖 You are already talking to the AI assistant."
	AgentBusy        = "🤖 You are talking to the AI assistant, send /exit_ai first."
	AgentStopped     = "🤖 You finished talking to the AI assistant. Send /chat to find a partner."
	AgentNotActive   = "🤖 You are not talking to the AI assistant."
	AgentTextOnly    = "🤖 The AI assistant only understands text."
	AgentUnavailable = "🤖 Sorry, the AI assistant is unavailable right now. Please try again later."

	StatsHeader   = "Admin panel"
	StatsNoAccess = "⛔️ You do not have access to the admin panel."

	Unavailable = "🤖 Something went wrong, please try again."
)
