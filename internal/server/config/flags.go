package config

import (
	"flag"

	"github.com/dmitrijs2005/anonchat/internal/flagx"
)

var flagNames = []string{
	"-a", "-d", "-m", "-s", "-t",
	"-b", "-i", "-o",
	"-e", "-n", "-k", "-x",
	"-r", "-l", "-q", "-w", "-p", "-v",
}

// parseFlags overlays command-line flags onto config.
//
// Supported flags:
//
//	-a string    gRPC bind address (e.g. ":50051")
//	-d string    PostgreSQL DSN
//	-m string    store backend: postgres or memory
//	-s string    JWT HMAC secret key
//	-t duration  admin token validity
//	-b string    Telegram bot token
//	-i int       Telegram user id allowed to use /stats
//	-o duration  long-poll timeout
//	-e string    AI agent API base URL
//	-n string    AI agent model
//	-k string    AI agent API key
//	-x duration  AI agent request timeout
//	-r string    Redis URL for update de-duplication
//	-l float     outbound messages per second
//	-q int       outbox size
//	-w int       update workers
//	-p string    key for log pseudonyms
//	-v string    log level
//
// Unknown arguments are filtered out first, so -c can be shared with the
// JSON loader. A malformed value panics.
func parseFlags(config *Config, args []string) {
	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run admin server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.Store, "m", config.Store, "store backend (postgres|memory)")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.DurationVar(&config.AccessTokenValidityDuration, "t", config.AccessTokenValidityDuration, "admin token validity")

	fs.StringVar(&config.TelegramToken, "b", config.TelegramToken, "telegram bot token")
	fs.Int64Var(&config.AdminUserID, "i", config.AdminUserID, "admin telegram user id")
	fs.DurationVar(&config.TelegramPollTimeout, "o", config.TelegramPollTimeout, "long-poll timeout")

	fs.StringVar(&config.AgentEndpoint, "e", config.AgentEndpoint, "AI agent endpoint")
	fs.StringVar(&config.AgentModel, "n", config.AgentModel, "AI agent model")
	fs.StringVar(&config.AgentAPIKey, "k", config.AgentAPIKey, "AI agent API key")
	fs.DurationVar(&config.AgentTimeout, "x", config.AgentTimeout, "AI agent timeout")

	fs.StringVar(&config.RedisURL, "r", config.RedisURL, "redis URL")
	fs.Float64Var(&config.SendRatePerSecond, "l", config.SendRatePerSecond, "outbound messages per second")
	fs.IntVar(&config.OutboxSize, "q", config.OutboxSize, "outbox size")
	fs.IntVar(&config.Workers, "w", config.Workers, "update workers")
	fs.StringVar(&config.PseudonymKey, "p", config.PseudonymKey, "log pseudonym key")
	fs.StringVar(&config.LogLevel, "v", config.LogLevel, "log level")

	if err := fs.Parse(flagx.FilterArgs(args, flagNames)); err != nil {
		panic(err)
	}
}
