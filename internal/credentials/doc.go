/*
Package credentials resolves credential references against a profile file.

A profile names how to log in, never the secret itself: a private key file,
environment variables holding a passphrase or password, and whether to offer
the SSH agent. Secrets are read at resolve time and not retained, so rotating
a key or an environment variable takes effect on the next open.

Profiles may list host patterns (doublestar syntax such as "db*.prod" or
"{web01,web02}.example.com"); a remote spec without a credential reference
uses the first profile, by name, whose pattern matches its host.

YAML:

	profiles:
	  prod:
	    user: ops
	    key_file: ~/.ssh/id_ed25519
	    passphrase_env: PROD_KEY_PASS
	    hosts: ["*.prod.example.com"]

TOML:

	[profiles.lab]
	user = "root"
	password_env = "LAB_PASSWORD"
*/
package credentials
