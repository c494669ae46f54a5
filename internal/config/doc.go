/*
Package config resolves dashboard settings at startup.

# Configuration

Parse returns a Config with all settings:

	cfg, err := config.Parse("dashboard", os.Args[1:])

# Sources

Each setting is taken from the first source that has it:

  - CLI flag
  - process environment
  - the dotenv file named by -env-file (default .env, optional)
  - the compiled-in defaults of the selected environment

# Flags and variables

	-p              PORT             listen port (default 8081)
	-env            DASHBOARD_ENV    production | test | local (default production)
	-api            DATA_API_BASE    statistics API base URL
	-health         HEALTH_API_BASE  base URL serving /ping
	-ping-interval  PING_INTERVAL    online check interval (default 30s)
	-lang           DASHBOARD_LANG   number formatting language (default ja)
	-data-hosts     DATA_HOSTS       extra hosts allowed in save-data URLs, comma-separated

Save-data URLs are only fetched from the hosts of the API and health base
URLs plus DataHosts.

Positional arguments after the flags are returned in Config.Args; the
terminal client uses them as its subcommand.
*/
package config
