package layout

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Schema declaration files are the on-disk form of component schemas: YAML
// documents listing enums and structs in the type grammar. Declaration
// order matters for structs that reference each other by name.

type schemaFile struct {
	Enums   []enumDecl   `yaml:"enums"`
	Structs []structDecl `yaml:"structs"`
}

type enumDecl struct {
	Name    string       `yaml:"name"`
	Base    string       `yaml:"base"`
	Members []memberDecl `yaml:"members"`
}

type memberDecl struct {
	Name  string `yaml:"name"`
	Value int64  `yaml:"value"`
}

type structDecl struct {
	Name   string      `yaml:"name"`
	Fields []fieldDecl `yaml:"fields"`
}

type fieldDecl struct {
	Key  string `yaml:"key"`
	Type string `yaml:"type"`
	Bits uint32 `yaml:"bits"`
}

// LoadSchema registers every enum and struct declared in the YAML document.
// Any malformed declaration aborts loading; partial registrations from
// earlier entries remain, matching the build-tool fail-loudly contract.
func (r *Registry) LoadSchema(data []byte) error {
	var file schemaFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse schema document: %w", err)
	}

	for _, e := range file.Enums {
		members := make([]EnumMember, len(e.Members))
		for i, m := range e.Members {
			members[i] = EnumMember{Name: m.Name, Value: m.Value}
		}
		if err := r.RegisterEnum(e.Name, e.Base, members); err != nil {
			return err
		}
	}
	for _, s := range file.Structs {
		fields := make([]FieldMeta, len(s.Fields))
		for i, f := range s.Fields {
			fields[i] = FieldMeta{Key: f.Key, Type: f.Type, BitWidth: f.Bits}
		}
		if err := r.RegisterStruct(s.Name, fields); err != nil {
			return err
		}
	}
	return nil
}

// LoadSchemaFile reads and registers a schema declaration file.
func (r *Registry) LoadSchemaFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read schema file %s: %w", path, err)
	}
	return r.LoadSchema(data)
}
