package provider

// SchemaType is a JSON schema type name.
type SchemaType string

const (
	TypeObject  SchemaType = "object"
	TypeArray   SchemaType = "array"
	TypeString  SchemaType = "string"
	TypeInteger SchemaType = "integer"
	TypeNumber  SchemaType = "number"
	TypeBoolean SchemaType = "boolean"
)

// Schema is the backend-neutral description of the structured output. The
// long-context adapter converts it to a typed response schema; the fast
// adapter only gets JSON-object mode.
type Schema struct {
	Type        SchemaType
	Description string
	Nullable    bool
	Enum        []string
	Items       *Schema
	Properties  map[string]*Schema
	Required    []string
}

func String(desc string) *Schema {
	return &Schema{Type: TypeString, Description: desc}
}

func NullableString(desc string) *Schema {
	return &Schema{Type: TypeString, Description: desc, Nullable: true}
}

func Integer(desc string) *Schema {
	return &Schema{Type: TypeInteger, Description: desc}
}

func Boolean(desc string) *Schema {
	return &Schema{Type: TypeBoolean, Description: desc}
}

func ArrayOf(items *Schema, desc string) *Schema {
	return &Schema{Type: TypeArray, Items: items, Description: desc}
}

func Object(props map[string]*Schema, required ...string) *Schema {
	return &Schema{Type: TypeObject, Properties: props, Required: required}
}
