// Package servicepath implements the hierarchical address value type used
// to route messages across the swbus fleet.
//
// A service path is rendered textually as
//
//	region.cluster.node/resource_type/resource_id/service_type/service_id
//
// The trailing resource and service tuples are optional; a path with only
// region.cluster.node addresses the bus daemon itself.
package servicepath

import (
	"strings"

	"github.com/pkg/errors"
)

// ServicePath is the ordered tuple making up a swbus address.
type ServicePath struct {
	Region      string
	Cluster     string
	Node        string
	ResourceType string
	ResourceID   string
	ServiceType  string
	ServiceID    string
}

// ErrMalformed is wrapped by Parse when the input does not match the
// service-path grammar.
var ErrMalformed = errors.New("servicepath: malformed service path")

// isValidComponent reports whether s is non-empty and contains only
// alphanumerics, '-', and '_' as required by the wire grammar. When
// allowDot is set, '.' is also permitted: the node component embeds
// dotted IPv4 addresses (e.g. "10.0.0.2-dpu0", spec §8).
func isValidComponent(s string, allowDot bool) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		case r == '.' && allowDot:
		default:
			return false
		}
	}
	return true
}

// Parse parses the textual form of a service path.
//
// Grammar: region "." cluster "." node ( "/" resource_type "/" resource_id
// ( "/" service_type "/" service_id )? )?
//
// node may itself contain embedded dots (it is commonly a dotted IPv4
// address plus suffix, e.g. "10.0.0.2-dpu0"), so the geo portion is split
// into at most three fields rather than on every dot.
func Parse(text string) (ServicePath, error) {
	var sp ServicePath

	dotParts := strings.SplitN(text, "/", 2)
	geo := strings.SplitN(dotParts[0], ".", 3)
	if len(geo) != 3 {
		return sp, errors.Wrapf(ErrMalformed, "expected region.cluster.node, got %q", dotParts[0])
	}
	sp.Region, sp.Cluster, sp.Node = geo[0], geo[1], geo[2]
	if !isValidComponent(sp.Region, false) || !isValidComponent(sp.Cluster, false) || !isValidComponent(sp.Node, true) {
		return ServicePath{}, errors.Wrapf(ErrMalformed, "empty or invalid region/cluster/node in %q", text)
	}

	if len(dotParts) == 1 {
		return sp, nil
	}

	segs := strings.Split(dotParts[1], "/")
	switch len(segs) {
	case 2:
		sp.ResourceType, sp.ResourceID = segs[0], segs[1]
	case 4:
		sp.ResourceType, sp.ResourceID = segs[0], segs[1]
		sp.ServiceType, sp.ServiceID = segs[2], segs[3]
	default:
		return ServicePath{}, errors.Wrapf(ErrMalformed, "bad resource/service segments in %q", text)
	}

	if !isValidComponent(sp.ResourceType, false) || !isValidComponent(sp.ResourceID, false) {
		return ServicePath{}, errors.Wrapf(ErrMalformed, "empty resource_type/resource_id in %q", text)
	}
	if sp.ServiceType != "" || sp.ServiceID != "" {
		if !isValidComponent(sp.ServiceType, false) || !isValidComponent(sp.ServiceID, false) {
			return ServicePath{}, errors.Wrapf(ErrMalformed, "empty service_type/service_id in %q", text)
		}
	}

	return sp, nil
}

// MustParse is like Parse but panics on error. Intended for constants in
// tests and static route tables, not for parsing untrusted input.
func MustParse(text string) ServicePath {
	sp, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return sp
}

// String formats the service path back to its textual form. Format is
// stable and round-trips through Parse.
func (sp ServicePath) String() string {
	var b strings.Builder
	b.WriteString(sp.Region)
	b.WriteByte('.')
	b.WriteString(sp.Cluster)
	b.WriteByte('.')
	b.WriteString(sp.Node)
	if sp.ResourceType != "" || sp.ResourceID != "" {
		b.WriteByte('/')
		b.WriteString(sp.ResourceType)
		b.WriteByte('/')
		b.WriteString(sp.ResourceID)
		if sp.ServiceType != "" || sp.ServiceID != "" {
			b.WriteByte('/')
			b.WriteString(sp.ServiceType)
			b.WriteByte('/')
			b.WriteString(sp.ServiceID)
		}
	}
	return b.String()
}

// MarshalText implements encoding.TextMarshaler so ServicePath can be used
// directly as a JSON string field.
func (sp ServicePath) MarshalText() ([]byte, error) {
	return []byte(sp.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (sp *ServicePath) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*sp = parsed
	return nil
}

// IsDaemon reports whether the path addresses the bus daemon itself, i.e.
// carries no service_type/service_id.
func (sp ServicePath) IsDaemon() bool {
	return sp.ServiceType == "" && sp.ServiceID == ""
}

// Equal reports componentwise equality.
func (sp ServicePath) Equal(other ServicePath) bool {
	return sp == other
}

// PrefixMatch reports whether sp matches key as a route prefix: every
// non-empty component of key must equal the corresponding component of sp.
// An empty component in key acts as a wildcard.
func (sp ServicePath) PrefixMatch(key ServicePath) bool {
	return matchComponent(key.Region, sp.Region) &&
		matchComponent(key.Cluster, sp.Cluster) &&
		matchComponent(key.Node, sp.Node) &&
		matchComponent(key.ResourceType, sp.ResourceType) &&
		matchComponent(key.ResourceID, sp.ResourceID) &&
		matchComponent(key.ServiceType, sp.ServiceType) &&
		matchComponent(key.ServiceID, sp.ServiceID)
}

func matchComponent(keyComp, spComp string) bool {
	return keyComp == "" || keyComp == spComp
}

// SpecificityLen counts the number of non-empty components, used by the
// multiplexer's longest-prefix-match tie-breaking.
func (sp ServicePath) SpecificityLen() int {
	n := 0
	for _, c := range []string{sp.Region, sp.Cluster, sp.Node, sp.ResourceType, sp.ResourceID, sp.ServiceType, sp.ServiceID} {
		if c != "" {
			n++
		}
	}
	return n
}
