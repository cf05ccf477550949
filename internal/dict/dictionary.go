package dict

import (
	"fmt"

	"github.com/Aidin1998/fixengine/internal/fixtype"
)

// FieldRef places a field inside a message layout with its required flag.
// The slice order in MessageDef is the serialization order.
type FieldRef struct {
	Field    *FieldDef
	Required bool
}

// MessageDef is the schema for one message type (or one repeating-group
// instance, in which case MsgType is empty): the ordered field layout, the
// required set, and the first field used for group framing.
type MessageDef struct {
	MsgType string
	Name    string
	Version Version

	first  int
	fields []FieldRef
	index  map[int]int
}

// FirstTag returns the tag that opens the message body. For repeating-group
// schemas it is the tag that begins each instance.
func (m *MessageDef) FirstTag() int { return m.first }

// Fields returns the layout in serialization order. Callers must not modify
// the returned slice.
func (m *MessageDef) Fields() []FieldRef { return m.fields }

// Field looks up a tag within the layout.
func (m *MessageDef) Field(tag int) (FieldRef, bool) {
	i, ok := m.index[tag]
	if !ok {
		return FieldRef{}, false
	}
	return m.fields[i], true
}

// Contains reports whether the tag belongs to this layout.
func (m *MessageDef) Contains(tag int) bool {
	_, ok := m.index[tag]
	return ok
}

// Dictionary is the full schema for one FIX version: the field catalog and
// the message layouts. Immutable after Build.
type Dictionary struct {
	Version     Version
	BeginString string

	fields   map[int]*FieldDef
	messages map[string]*MessageDef
}

// Field resolves a tag in the catalog.
func (d *Dictionary) Field(tag int) (*FieldDef, bool) {
	f, ok := d.fields[tag]
	return f, ok
}

// Message resolves a MsgType code to its layout.
func (d *Dictionary) Message(msgType string) (*MessageDef, bool) {
	m, ok := d.messages[msgType]
	return m, ok
}

// MsgTypes returns the known message type codes, unordered.
func (d *Dictionary) MsgTypes() []string {
	out := make([]string, 0, len(d.messages))
	for t := range d.messages {
		out = append(out, t)
	}
	return out
}

// Builder assembles a Dictionary. Definition errors are collected and
// reported by Build so table code can stay declarative.
type Builder struct {
	version  Version
	fields   map[int]*FieldDef
	messages []*MessageDef
	groups   []*MessageDef
	errs     []error
}

// NewBuilder starts a dictionary for one application version.
func NewBuilder(v Version) *Builder {
	return &Builder{version: v, fields: make(map[int]*FieldDef)}
}

// Define registers a field in the catalog. Redefining a tag with a different
// type or rule is an error: a tag must mean the same thing everywhere.
func (b *Builder) Define(f *FieldDef) *Builder {
	if prev, ok := b.fields[f.Tag]; ok {
		if prev.Type != f.Type || prev.Rule.Kind != f.Rule.Kind || prev.Rule.Tag != f.Rule.Tag || prev.Rule.Group != f.Rule.Group {
			b.errs = append(b.errs, fmt.Errorf("tag %d (%s) redefined with conflicting type or rule", f.Tag, f.Name))
		}
		return b
	}
	b.fields[f.Tag] = f
	return b
}

// DefineMessage registers a message layout. The first tag defaults to the
// first entry of refs.
func (b *Builder) DefineMessage(msgType, name string, refs []FieldRef) *Builder {
	def, err := b.newDef(msgType, name, refs)
	if err != nil {
		b.errs = append(b.errs, err)
		return b
	}
	b.messages = append(b.messages, def)
	return b
}

// DefineGroup registers a repeating-group schema and returns it for use in a
// count field's BeginGroup rule. The group's first field must be required so
// every instance is delimited unambiguously.
func (b *Builder) DefineGroup(name string, refs []FieldRef) *MessageDef {
	def, err := b.newDef("", name, refs)
	if err != nil {
		b.errs = append(b.errs, err)
		return &MessageDef{Name: name, Version: b.version, index: map[int]int{}}
	}
	b.groups = append(b.groups, def)
	return def
}

func (b *Builder) newDef(msgType, name string, refs []FieldRef) (*MessageDef, error) {
	if len(refs) == 0 {
		return nil, fmt.Errorf("message %s has no fields", name)
	}
	def := &MessageDef{
		MsgType: msgType,
		Name:    name,
		Version: b.version,
		first:   refs[0].Field.Tag,
		fields:  refs,
		index:   make(map[int]int, len(refs)),
	}
	for i, ref := range refs {
		if _, dup := def.index[ref.Field.Tag]; dup {
			return nil, fmt.Errorf("message %s lists tag %d twice", name, ref.Field.Tag)
		}
		def.index[ref.Field.Tag] = i
		b.Define(ref.Field)
	}
	return def, nil
}

// Build validates the accumulated schema and returns the dictionary. All
// invariant violations are programmer errors in the schema data, so they are
// reported here rather than surfacing per message at runtime.
func (b *Builder) Build() (*Dictionary, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	for _, def := range b.messages {
		if err := b.validateDef(def, false); err != nil {
			return nil, err
		}
	}
	for _, def := range b.groups {
		if err := b.validateDef(def, true); err != nil {
			return nil, err
		}
	}
	d := &Dictionary{
		Version:     b.version,
		BeginString: b.version.BeginString(),
		fields:      b.fields,
		messages:    make(map[string]*MessageDef, len(b.messages)),
	}
	for _, def := range b.messages {
		if _, dup := d.messages[def.MsgType]; dup {
			return nil, fmt.Errorf("message type %q defined twice", def.MsgType)
		}
		d.messages[def.MsgType] = def
	}
	return d, nil
}

// MustBuild is Build for statically known tables.
func (b *Builder) MustBuild() *Dictionary {
	d, err := b.Build()
	if err != nil {
		panic(err)
	}
	return d
}

func (b *Builder) validateDef(def *MessageDef, group bool) error {
	first, ok := def.Field(def.first)
	if !ok {
		return fmt.Errorf("message %s: first field %d is not in the layout", def.Name, def.first)
	}
	if group && !first.Required {
		return fmt.Errorf("group %s: first field %d must be required", def.Name, def.first)
	}
	for _, ref := range def.fields {
		f := ref.Field
		switch f.Rule.Kind {
		case RulePrepareForBytes:
			data, ok := def.Field(f.Rule.Tag)
			if !ok {
				return fmt.Errorf("message %s: length field %d refers to missing data field %d", def.Name, f.Tag, f.Rule.Tag)
			}
			if data.Field.Rule.Kind != RuleConfirmPreviousTag || data.Field.Rule.Tag != f.Tag {
				return fmt.Errorf("message %s: data field %d does not confirm length field %d", def.Name, f.Rule.Tag, f.Tag)
			}
			if data.Field.Type != fixtype.KindData {
				return fmt.Errorf("message %s: field %d is length-prefixed but not raw data", def.Name, f.Rule.Tag)
			}
		case RuleConfirmPreviousTag:
			prev, ok := def.Field(f.Rule.Tag)
			if !ok {
				return fmt.Errorf("message %s: field %d requires preceding tag %d which is not in the layout", def.Name, f.Tag, f.Rule.Tag)
			}
			if f.Type == fixtype.KindData && (prev.Field.Rule.Kind != RulePrepareForBytes || prev.Field.Rule.Tag != f.Tag) {
				return fmt.Errorf("message %s: length field %d does not prepare for data field %d", def.Name, f.Rule.Tag, f.Tag)
			}
		case RuleBeginGroup:
			if f.Rule.Group == nil {
				return fmt.Errorf("message %s: count field %d has no group schema", def.Name, f.Tag)
			}
			if f.Type != fixtype.KindGroup {
				return fmt.Errorf("message %s: count field %d must have group type", def.Name, f.Tag)
			}
			if err := b.validateDef(f.Rule.Group, true); err != nil {
				return err
			}
		}
	}
	return nil
}
