package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/keyvault/internal/flagx"
)

var ownFlags = []string{"-m", "-a", "-d", "-k", "-u", "-l", "-e", "-f", "-i", "-t", "-v"}

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-m string   store mode: local or remote
//	-a string   address and port of the backend server
//	-d string   data directory for the local database and key cache
//	-k string   key cache backend: sqlite, bolt or none
//	-u string   server account username
//	-l int      minimum master password length
//	-e string   record encryption algorithm: aes-256-gcm or xchacha20-poly1305
//	-f string   key derivation for new vaults: argon2id or pbkdf2-sha256
//	-i int      online check interval in seconds
//	-t int      request timeout in seconds
//	-v string   log level
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], ownFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.Mode, "m", cfg.Mode, "store mode (local|remote)")
	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "data directory")
	fs.StringVar(&cfg.KeyCache, "k", cfg.KeyCache, "key cache backend (sqlite|bolt|none)")
	fs.StringVar(&cfg.Username, "u", cfg.Username, "server account username")
	fs.IntVar(&cfg.MinPasswordLength, "l", cfg.MinPasswordLength, "minimum master password length")
	fs.StringVar(&cfg.Algorithm, "e", cfg.Algorithm, "record encryption algorithm")
	fs.StringVar(&cfg.KDF, "f", cfg.KDF, "key derivation for new vaults (argon2id|pbkdf2-sha256)")
	fs.StringVar(&cfg.LogLevel, "v", cfg.LogLevel, "log level (debug|info|warn|error)")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	requestTimeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
	cfg.RequestTimeout = time.Duration(*requestTimeout) * time.Second
}
