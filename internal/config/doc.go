// Package config handles configuration loading for pitstop.
//
// # Configuration File
//
// Default location (in order):
//
//  1. Path from PITSTOP_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/pitstop/config.yaml
//  3. ~/.config/pitstop/config.yaml
//
// A file ending in .toml is decoded as TOML; anything else as YAML. A
// missing file is fine when loaded through LoadOrDefault.
//
// # Environment
//
// Values can reference environment variables:
//
//	agent:
//	  base_url: "${PITSTOP_AGENT_URL}"
//
// After the file is decoded, PITSTOP_* variables override individual fields
// (PITSTOP_BASE_URL, PITSTOP_USER_ID, PITSTOP_LOG_LEVEL, ...).
//
// # Sections
//
//	agent:
//	  base_url: "http://127.0.0.1:8080"
//	  app_name: "agent"
//	  user_id: "user"
//	  request_timeout: "30s"       # session directory and extraction calls
//	  stream_idle_timeout: "2m"    # max gap between bytes of a streamed reply
//
//	auth:
//	  token_file: "~/.config/pitstop/token"
//
//	attachments:
//	  max_bytes: 20971520
//
//	upload:
//	  cache_ttl: "10m"
//	  cache_size: 64
//
//	ledger:
//	  path: "~/.local/share/pitstop/transcript.db"
//	  disabled: false
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
