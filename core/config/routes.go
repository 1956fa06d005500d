package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ExecutionMode selects the orchestrator's scheduling strategy for a route.
type ExecutionMode string

const (
	ExecutionParallel   ExecutionMode = "parallel"
	ExecutionSequential ExecutionMode = "sequential"
)

// RouteDefinition is keyed by (method, path). Immutable after load.
type RouteDefinition struct {
	Method            string                 `yaml:"method"`
	Path              string                 `yaml:"path"`
	Subrequests       []SubrequestDefinition `yaml:"subrequests"`
	ExecutionMode     ExecutionMode          `yaml:"execution_mode"`
	ResponseTransform *ResponseTransform     `yaml:"response_transform"`
	TrafficSplit      *TrafficSplitConfig    `yaml:"traffic_split"`
	TrafficMirror     *TrafficMirrorConfig   `yaml:"traffic_mirror"`
}

// SubrequestDefinition is one declared backend invocation within a route.
type SubrequestDefinition struct {
	Name      string    `yaml:"name"`
	ClientID  string    `yaml:"client_id"`
	Condition Condition `yaml:"condition"`
	DependsOn []string  `yaml:"depends_on"`
	Op        BackendOp `yaml:"-"`

	// Index is this subrequest's position in the route's definition order;
	// used to restore output ordering after concurrent wave execution.
	Index int `yaml:"-"`
}

// BackendOp is the tagged payload describing a subrequest's action.
type BackendOp interface {
	isBackendOp()
}

// HTTPOp describes an HTTP subrequest.
type HTTPOp struct {
	URI     string            `yaml:"uri"`
	Method  string            `yaml:"method"`
	Headers map[string]string `yaml:"headers"`
	Body    *string           `yaml:"body"`
	Query   map[string]string `yaml:"query"`
}

func (HTTPOp) isBackendOp() {}

// SQLOp describes a SQL subrequest (postgres/mysql/sqlite alike).
type SQLOp struct {
	Query  string   `yaml:"query"`
	Params []string `yaml:"params"`
}

func (SQLOp) isBackendOp() {}

// MongoOpKind discriminates a MongoOp's operation.
type MongoOpKind string

const (
	MongoFind    MongoOpKind = "find"
	MongoFindOne MongoOpKind = "findone"
	MongoInsert  MongoOpKind = "insert"
	MongoUpdate  MongoOpKind = "update"
	MongoDelete  MongoOpKind = "delete"
)

// MongoOp describes a document-store subrequest.
type MongoOp struct {
	Collection string
	Operation  MongoOpKind
	Filter     string
	Document   string
	Update     string
	Limit      *int64
}

func (MongoOp) isBackendOp() {}

// KVOpKind discriminates a KVOp's operation.
type KVOpKind string

const (
	KVGet    KVOpKind = "get"
	KVSet    KVOpKind = "set"
	KVDel    KVOpKind = "del"
	KVExists KVOpKind = "exists"
	KVHget   KVOpKind = "hget"
	KVHset   KVOpKind = "hset"
)

// KVOp describes a key-value subrequest.
type KVOp struct {
	Operation  KVOpKind
	Key        string
	Field      string
	Value      string
	TTLSeconds *int
}

func (KVOp) isBackendOp() {}

// subrequestHead decodes the fields common to every subrequest, plus the
// `type` discriminator. The same YAML node is then re-decoded into the
// type-specific operation struct below -- this avoids field-name collisions
// between variants that share a YAML key with different shapes (e.g. "query"
// is a string for a SQL op and a string-map for an HTTP op).
type subrequestHead struct {
	Name      string     `yaml:"name"`
	ClientID  string     `yaml:"client_id"`
	Condition *Condition `yaml:"condition"`
	DependsOn []string   `yaml:"depends_on"`
	Type      string     `yaml:"type"`
}

type mongoOpRaw struct {
	Collection string `yaml:"collection"`
	Operation  struct {
		Op       string `yaml:"op"`
		Filter   string `yaml:"filter"`
		Document string `yaml:"document"`
		Update   string `yaml:"update"`
		Limit    *int64 `yaml:"limit"`
	} `yaml:"operation"`
}

type kvOpRaw struct {
	Operation struct {
		Op         string `yaml:"op"`
		Key        string `yaml:"key"`
		Field      string `yaml:"field"`
		Value      string `yaml:"value"`
		Expiration *int   `yaml:"expiration"`
	} `yaml:"operation"`
}

// UnmarshalYAML decodes a SubrequestDefinition, dispatching the type-tagged
// BackendOp by the subrequest's declared `type` (http|postgres|mysql|sqlite|mongodb|redis).
func (s *SubrequestDefinition) UnmarshalYAML(value *yaml.Node) error {
	var head subrequestHead
	if err := value.Decode(&head); err != nil {
		return err
	}
	s.Name = head.Name
	s.ClientID = head.ClientID
	s.DependsOn = head.DependsOn
	if head.Condition != nil {
		s.Condition = *head.Condition
	} else {
		s.Condition = Condition{Kind: CondAlways}
	}

	switch ClientKind(head.Type) {
	case KindHTTP:
		var op HTTPOp
		if err := value.Decode(&op); err != nil {
			return err
		}
		if op.Method == "" {
			op.Method = "GET"
		}
		s.Op = op
	case KindPostgres, KindMySQL, KindSQLite:
		var op SQLOp
		if err := value.Decode(&op); err != nil {
			return err
		}
		s.Op = op
	case KindMongoDB:
		var raw mongoOpRaw
		if err := value.Decode(&raw); err != nil {
			return err
		}
		s.Op = MongoOp{
			Collection: raw.Collection,
			Operation:  MongoOpKind(raw.Operation.Op),
			Filter:     raw.Operation.Filter,
			Document:   raw.Operation.Document,
			Update:     raw.Operation.Update,
			Limit:      raw.Operation.Limit,
		}
	case KindRedis:
		var raw kvOpRaw
		if err := value.Decode(&raw); err != nil {
			return err
		}
		s.Op = KVOp{
			Operation:  KVOpKind(raw.Operation.Op),
			Key:        raw.Operation.Key,
			Field:      raw.Operation.Field,
			Value:      raw.Operation.Value,
			TTLSeconds: raw.Operation.Expiration,
		}
	default:
		return fmt.Errorf("subrequest: unknown type %q", head.Type)
	}
	return nil
}
