package config

import (
	"flag"

	"github.com/dmitrijs2005/anonchat/internal/flagx"
)

// parseFlags populates Config fields from command-line flags.
//
//	-a string    address of the admin gRPC endpoint
//	-s string    JWT secret (prompted when empty)
//	-t duration  lifetime of the minted token
//	-w duration  request timeout
func parseFlags(cfg *Config, args []string) {
	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	fs.StringVar(&cfg.SecretKey, "s", cfg.SecretKey, "JWT secret key")
	fs.DurationVar(&cfg.TokenValidity, "t", cfg.TokenValidity, "token validity")
	fs.DurationVar(&cfg.RequestTimeout, "w", cfg.RequestTimeout, "request timeout")

	if err := fs.Parse(flagx.FilterArgs(args, []string{"-a", "-s", "-t", "-w"})); err != nil {
		panic(err)
	}
}
