// Package config loads runtime configuration for the keyvault CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c/-config or $KEYVAULT_CONFIG.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// # JSON schema
//
// Durations use timex.Duration, so values can be strings like "3s" or
// integer nanoseconds:
//
//	{
//	  "mode": "remote",
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "data_dir": "/home/me/.keyvault",
//	  "key_cache": "bolt",
//	  "username": "me@example.com",
//	  "min_password_length": 12,
//	  "algorithm": "xchacha20-poly1305",
//	  "online_check_interval": "3s"
//	}
package config
