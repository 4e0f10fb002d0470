package entity

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// JDBCConnection is the structured payload of a JDBC_CONNECTION entity.
type JDBCConnection struct {
	DriverClass     string         `json:"driverClass"`
	URL             string         `json:"jdbcUrl"`
	User            string         `json:"user,omitempty"`
	Password        string         `json:"password,omitempty"`
	PasswordRef     string         `json:"passwordRef,omitempty"`
	MinimumPoolSize int            `json:"minimumPoolSize,omitempty"`
	MaximumPoolSize int            `json:"maximumPoolSize,omitempty"`
	Properties      map[string]any `json:"properties,omitempty"`
}

// ListenPort is the structured payload of a LISTEN_PORT entity.
type ListenPort struct {
	Port            int      `json:"port"`
	Protocol        string   `json:"protocol"`
	Enabled         *bool    `json:"enabled,omitempty"`
	KeyAlias        string   `json:"keyAlias,omitempty"`
	EnabledFeatures []string `json:"enabledFeatures,omitempty"`
}

type EncassArgument struct {
	Name            string `json:"name"`
	Type            string `json:"type"`
	RequireExplicit bool   `json:"requireExplicit,omitempty"`
	GUIPrompt       bool   `json:"guiPrompt,omitempty"`
}

type EncassResult struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// EncapsulatedAssertion is the structured payload of an
// ENCAPSULATED_ASSERTION entity. Policy is the path of the backing policy
// in declarative form; PolicyID is its id on the wire.
type EncapsulatedAssertion struct {
	Policy     string            `json:"policy,omitempty"`
	PolicyID   string            `json:"policyId,omitempty"`
	Arguments  []EncassArgument  `json:"arguments,omitempty"`
	Results    []EncassResult    `json:"results,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// ScheduledTask is the structured payload of a SCHEDULED_TASK entity.
type ScheduledTask struct {
	Policy         string `json:"policy,omitempty"`
	PolicyID       string `json:"policyId,omitempty"`
	JobType        string `json:"jobType"`
	CronExpression string `json:"cronExpression,omitempty"`
	UseOneNode     bool   `json:"useOneNode,omitempty"`
}

// Service is the structured payload of a SERVICE entity.
type Service struct {
	URL     string   `json:"url"`
	Methods []string `json:"httpMethods,omitempty"`
	Enabled *bool    `json:"enabled,omitempty"`
}

type IdentityProvider struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
}

type StoredPassword struct {
	Password    string `json:"password,omitempty"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
}

type PrivateKey struct {
	KeystoreID       string   `json:"keystoreId,omitempty"`
	Algorithm        string   `json:"algorithm,omitempty"`
	KeySize          int      `json:"keySize,omitempty"`
	CertificateChain []string `json:"certificateChain,omitempty"`
}

// Decode converts the entity's Fields into T, a payload struct using json
// tags.
func Decode[T any](e *Entity) (T, error) {
	var out T
	if e.Fields == nil {
		return out, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return out, err
	}
	if err := dec.Decode(e.Fields); err != nil {
		return out, fmt.Errorf("%s: %w", e, err)
	}
	return out, nil
}

// ConflictingFieldsError is returned when mutually exclusive fields are set
// on the same entity.
type ConflictingFieldsError struct {
	Entity *Entity
	Fields []string
}

func (e *ConflictingFieldsError) Error() string {
	return fmt.Sprintf("%s: fields %s are mutually exclusive", e.Entity, strings.Join(e.Fields, ", "))
}

// InvalidEntityError reports an entity whose payload cannot be accepted.
type InvalidEntityError struct {
	Entity *Entity
	Reason string
}

func (e *InvalidEntityError) Error() string {
	return fmt.Sprintf("%s: %s", e.Entity, e.Reason)
}

// Validate checks the kind-specific constraints on e's payload.
func Validate(e *Entity) error {
	if e.Name == "" && !e.IsRootFolder() {
		return &InvalidEntityError{Entity: e, Reason: "missing name"}
	}

	switch e.Kind {
	case KindJDBCConnection:
		c, err := Decode[JDBCConnection](e)
		if err != nil {
			return err
		}
		if c.Password != "" && c.PasswordRef != "" {
			return &ConflictingFieldsError{Entity: e, Fields: []string{"password", "passwordRef"}}
		}
	case KindListenPort:
		p, err := Decode[ListenPort](e)
		if err != nil {
			return err
		}
		if p.Port < 1 || p.Port > 65535 {
			return &InvalidEntityError{Entity: e, Reason: fmt.Sprintf("port %d out of range", p.Port)}
		}
	case KindEncapsulatedAssertion:
		ea, err := Decode[EncapsulatedAssertion](e)
		if err != nil {
			return err
		}
		if ea.Policy == "" && ea.PolicyID == "" {
			return &InvalidEntityError{Entity: e, Reason: "missing backing policy"}
		}
	case KindScheduledTask:
		st, err := Decode[ScheduledTask](e)
		if err != nil {
			return err
		}
		if st.Policy == "" && st.PolicyID == "" {
			return &InvalidEntityError{Entity: e, Reason: "missing policy"}
		}
	case KindPolicy, KindService:
		if e.Policy == "" {
			return &InvalidEntityError{Entity: e, Reason: "missing policy content"}
		}
	}
	return nil
}
