package authz

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// tableYAML is the on-disk shape of a policy override file:
//
//	sensitive: [accounts, roles]
//	grants:
//	  viewer:
//	    products: [read]
type tableYAML struct {
	Sensitive []string                       `yaml:"sensitive"`
	Grants    map[string]map[string][]string `yaml:"grants"`
}

// LoadTableFile reads a YAML policy file. An empty path returns DefaultTable.
func LoadTableFile(path string) (*Table, error) {
	if path == "" {
		return DefaultTable(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("authz: read policy file: %w", err)
	}
	return ParseTableYAML(raw)
}

// ParseTableYAML decodes a policy document. Unknown role, resource or action
// names are rejected so a typo cannot silently drop a grant. The sensitive list
// can only extend DefaultSensitive; accounts and roles stay sensitive.
func ParseTableYAML(raw []byte) (*Table, error) {
	var doc tableYAML
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("authz: decode policy: %w", err)
	}

	grants := make(Grants, len(doc.Grants))
	for roleName, byResource := range doc.Grants {
		role, err := ParseRole(roleName)
		if err != nil {
			return nil, err
		}
		inner := make(map[Resource]ActionSet, len(byResource))
		for resName, actionNames := range byResource {
			res, err := ParseResource(resName)
			if err != nil {
				return nil, err
			}
			var set ActionSet
			for _, name := range actionNames {
				a, err := ParseAction(name)
				if err != nil {
					return nil, fmt.Errorf("%s.%s: %w", role, res, err)
				}
				set |= ActionSet(a)
			}
			inner[res] = set
		}
		grants[role] = inner
	}

	sensitive := DefaultSensitive()
	for _, name := range doc.Sensitive {
		res, err := ParseResource(name)
		if err != nil {
			return nil, err
		}
		sensitive = append(sensitive, res)
	}
	return NewTable(grants, sensitive), nil
}
