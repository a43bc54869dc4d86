// Package config loads formsync configuration from YAML.
//
// Files are decoded over Default(), so a file only needs the keys it changes.
// ${VAR} references are replaced with environment values before parsing,
// which keeps API keys and DSNs out of the file:
//
//	storage:
//	  backend: redis
//	  redis:
//	    addr: ${REDIS_ADDR}
//	providers:
//	  zoho:
//	    multi_separator: ";"
//	credentials:
//	  cascade:
//	    keap: [infusionsoft]
package config
