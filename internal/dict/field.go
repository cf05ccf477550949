package dict

import "github.com/Aidin1998/fixengine/internal/fixtype"

// Well-known tags the codec and session layer refer to by name.
const (
	TagBeginString     = 8
	TagBodyLength      = 9
	TagCheckSum        = 10
	TagMsgSeqNum       = 34
	TagMsgType         = 35
	TagPossDupFlag     = 43
	TagSenderCompID    = 49
	TagSendingTime     = 52
	TagTargetCompID    = 56
	TagText            = 58
	TagOrigSendingTime = 122
	TagApplVerID       = 1128
)

// RuleKind discriminates the structural rule attached to a field.
type RuleKind int

const (
	// RuleNone marks a plain field with no ordering or framing obligations.
	RuleNone RuleKind = iota
	// RulePrepareForBytes marks a length field whose integer value gives the
	// exact byte count of the raw-data field identified by Rule.Tag, which
	// must follow immediately.
	RulePrepareForBytes
	// RuleConfirmPreviousTag marks a field that must be immediately preceded
	// by the field identified by Rule.Tag. Raw-data fields carry this rule
	// pointing back at their length prefix.
	RuleConfirmPreviousTag
	// RuleBeginGroup marks a NumInGroup count field. Rule.Group is the schema
	// of each repeating instance; the group's first field opens every
	// instance.
	RuleBeginGroup
)

// Rule is a structural constraint binding one field to another. Rules are
// declared once per field in the catalog and shared by every message that
// includes the field.
type Rule struct {
	Kind  RuleKind
	Tag   int         // paired tag for PrepareForBytes / ConfirmPreviousTag
	Group *MessageDef // group schema for BeginGroup
}

// FieldDef is the immutable identity of a FIX field: its tag, name, primitive
// type, and structural rule. A tag resolves to the same definition everywhere
// it appears within one dictionary.
type FieldDef struct {
	Tag  int
	Name string
	Type fixtype.Kind
	Rule Rule
}
