package dread

import (
	"strings"

	tm "github.com/jmerrifield20/threatlens/pkg/threatmodel"
)

// traits are the component characteristics the DREAD heuristics key off.
// For a threat spanning several components a trait holds if it holds for
// any of them.
type traits struct {
	internetFacing     bool
	sensitive          bool
	privileged         bool
	regulatory         bool
	coreBusiness       bool
	shared             bool
	dataStore          bool
	noIntegrity        bool
	noLogging          bool
	weakAuth           bool
	noEncryption       bool
	documentedProtocol bool
	custom             bool
	wellKnownTech      bool
	defaultConfig      bool
	hidden             bool
	obscurity          bool
}

// sharedServiceConnections is the connection count at which a component is
// treated as a shared service.
const sharedServiceConnections = 3

var (
	regulatoryKeywords   = []string{"pii", "payment", "card", "health", "medical", "patient", "gdpr", "hipaa", "pci", "ssn", "financial", "bank"}
	coreBusinessKeywords = []string{"core", "payment", "order", "checkout", "billing", "primary", "main", "customer", "transaction"}
	sharedKeywords       = []string{"shared", "common", "gateway", "bus", "queue", "cache", "broker"}
	integrityKeywords    = []string{"hmac", "integrity", "signature", "signing", "checksum"}
	weakAuthMethods      = []string{"none", "basic", "password", "anonymous"}
	documentedProtocols  = []string{"http", "https", "ftp", "smtp", "sql", "rest", "grpc", "ssh", "dns", "ldap", "tcp", "amqp", "mqtt"}
	customKeywords       = []string{"custom", "proprietary", "in-house", "homegrown", "bespoke"}
	wellKnownTech        = []string{
		"apache", "nginx", "iis", "tomcat", "mysql", "postgres", "mongodb", "redis", "wordpress",
		"spring", "express", "django", "rails", "elasticsearch", "oracle", "mssql", "kafka",
		"rabbitmq", "jenkins", "kubernetes", "docker",
	}
	defaultConfigKeywords = []string{"default"}
	hiddenKeywords        = []string{"hidden", "undocumented", "isolated", "air-gapped", "airgapped"}
	obscurityKeywords     = []string{"obscure", "obfuscat", "non-standard port", "obscurity"}
)

func collectTraits(components []tm.Component) traits {
	var tr traits
	for i := range components {
		c := &components[i]
		p := c.Properties
		text := strings.ToLower(c.Name + " " + c.Description + " " + p.Technology)

		tr.internetFacing = tr.internetFacing || p.InternetFacing
		tr.sensitive = tr.sensitive || p.Sensitive
		tr.privileged = tr.privileged || p.Privileged
		tr.regulatory = tr.regulatory || (p.Sensitive && hasKeyword(text, regulatoryKeywords))
		tr.coreBusiness = tr.coreBusiness || hasKeyword(text, coreBusinessKeywords)
		tr.shared = tr.shared || len(c.Connections) >= sharedServiceConnections || hasKeyword(text, sharedKeywords)
		tr.dataStore = tr.dataStore || c.Type == tm.ComponentDataStore
		tr.noIntegrity = tr.noIntegrity || !anyKeyword(p.Encryption, integrityKeywords)
		tr.noLogging = tr.noLogging || len(p.Logging) == 0
		tr.weakAuth = tr.weakAuth || weakAuthentication(p.Authentication)
		tr.noEncryption = tr.noEncryption || len(p.Encryption) == 0
		tr.documentedProtocol = tr.documentedProtocol || anyKeyword(p.Protocols, documentedProtocols)
		tr.custom = tr.custom || hasKeyword(text, customKeywords)
		tr.wellKnownTech = tr.wellKnownTech || hasKeyword(strings.ToLower(p.Technology), wellKnownTech)
		tr.defaultConfig = tr.defaultConfig || hasKeyword(text, defaultConfigKeywords)
		tr.hidden = tr.hidden || (!p.InternetFacing && hasKeyword(text, hiddenKeywords))
		tr.obscurity = tr.obscurity || hasKeyword(text, obscurityKeywords)
	}
	return tr
}

// weakAuthentication is true for no authentication or only weak methods.
func weakAuthentication(methods []string) bool {
	if len(methods) == 0 {
		return true
	}
	for _, m := range methods {
		if !containsFold(weakAuthMethods, m) {
			return false
		}
	}
	return true
}

func hasKeyword(text string, keywords []string) bool {
	if text == "" {
		return false
	}
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// anyKeyword reports whether any item contains any keyword.
func anyKeyword(items, keywords []string) bool {
	for _, it := range items {
		if hasKeyword(strings.ToLower(it), keywords) {
			return true
		}
	}
	return false
}

func containsFold(list []string, s string) bool {
	for _, it := range list {
		if strings.EqualFold(it, s) {
			return true
		}
	}
	return false
}
