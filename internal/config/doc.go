// Package config provides the configuration model of the edge router.
//
// A single YAML document declares the listener, the observability stack,
// timeouts, the authorization gate, service discovery, the token bucket
// store, local fallback endpoints and the ordered route list. Route
// order is significant: the first route whose path pattern matches wins.
//
// # Environment Variables
//
// ${VAR} and ${VAR:-default} are substituted before decoding. Write $$
// for a literal dollar sign, which is how rewrite replacements refer to
// named groups:
//
//	rewritePath:
//	  regexp: "/sbdb/accounts/(?<segment>.*)"
//	  replacement: "/$${segment}"
//
// # Loading
//
//	cfg, err := config.LoadConfig("configs/gateway.yaml")
//	if err != nil {
//	    return err
//	}
//	if err := config.ValidateConfig(cfg); err != nil {
//	    return err
//	}
//
// # Hot Reload
//
// Watcher re-reads the file on change and passes each valid document to
// a ReloadFunc; invalid documents are logged and the previous
// configuration stays in force.
package config
