package entity

import (
	"fmt"
	"slices"
)

// Kind is one of the fixed set of gateway configuration object categories.
// Its value is the type name used on the wire.
type Kind string

const (
	KindFolder                Kind = "FOLDER"
	KindTrustedCert           Kind = "TRUSTED_CERT"
	KindPrivateKey            Kind = "SSG_KEY_ENTRY"
	KindSecurePassword        Kind = "SECURE_PASSWORD"
	KindClusterProperty       Kind = "CLUSTER_PROPERTY"
	KindIdentityProvider      Kind = "ID_PROVIDER_CONFIG"
	KindJDBCConnection        Kind = "JDBC_CONNECTION"
	KindListenPort            Kind = "LISTEN_PORT"
	KindPolicy                Kind = "POLICY"
	KindEncapsulatedAssertion Kind = "ENCAPSULATED_ASSERTION"
	KindService               Kind = "SERVICE"
	KindScheduledTask         Kind = "SCHEDULED_TASK"
)

type kindInfo struct {
	element       string // wire resource element
	configFile    string // base name of the declarative config file, if any
	policyBearing bool
	environment   bool
}

var kinds = map[Kind]kindInfo{
	KindFolder:                {element: "Folder"},
	KindTrustedCert:           {element: "TrustedCertificate", configFile: "trusted-certs", environment: true},
	KindPrivateKey:            {element: "PrivateKey", configFile: "private-keys", environment: true},
	KindSecurePassword:        {element: "StoredPassword", configFile: "stored-passwords", environment: true},
	KindClusterProperty:       {element: "ClusterProperty", configFile: "static-properties", environment: true},
	KindIdentityProvider:      {element: "IdentityProvider", configFile: "identity-providers", environment: true},
	KindJDBCConnection:        {element: "JDBCConnection", configFile: "jdbc-connections", environment: true},
	KindListenPort:            {element: "ListenPort", configFile: "listen-ports", environment: true},
	KindPolicy:                {element: "Policy", policyBearing: true},
	KindEncapsulatedAssertion: {element: "EncapsulatedAssertion", configFile: "encass"},
	KindService:               {element: "Service", policyBearing: true},
	KindScheduledTask:         {element: "ScheduledTask", configFile: "scheduled-tasks"},
}

// Kinds returns every kind, sorted by name.
func Kinds() []Kind {
	ks := make([]Kind, 0, len(kinds))
	for k := range kinds {
		ks = append(ks, k)
	}
	slices.Sort(ks)
	return ks
}

// ParseKind returns the kind with the given wire type name.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := kinds[k]; !ok {
		return "", fmt.Errorf("unknown entity kind %q", s)
	}
	return k, nil
}

// KindForElement returns the kind whose wire resource element is elem.
func KindForElement(elem string) (Kind, bool) {
	for k, info := range kinds {
		if info.element == elem {
			return k, true
		}
	}
	return "", false
}

func (k Kind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

// Element is the name of the wire resource element carrying entities of
// this kind.
func (k Kind) Element() string { return kinds[k].element }

// ConfigFile is the base name (without extension) of the declarative file
// holding entities of this kind. Kinds that live in the folder tree return
// an empty string.
func (k Kind) ConfigFile() string { return kinds[k].configFile }

// PolicyBearing reports whether entities of this kind carry a policy script.
func (k Kind) PolicyBearing() bool { return kinds[k].policyBearing }

// Environment reports whether the kind describes environment or credential
// configuration rather than deployable logic.
func (k Kind) Environment() bool { return kinds[k].environment }

func (k Kind) String() string { return string(k) }
