// Package errors defines the stable error-code enum and structured error
// types shared across the simlin core: parser, resolver, unit checker,
// compiler and VM all report through Detail rather than ad-hoc error
// strings, so embedders see a stable numeric code plus a human message.
package errors

import "fmt"

// Code is a stable numeric error code. Values must never be renumbered once
// shipped, since FFI callers switch on them directly.
type Code int

// Error codes, matching the enum an embedder switches on across the FFI
// boundary. 0 is reserved for "no error".
const (
	NoError Code = iota
	DoesNotExist
	XmlDeserialization
	VensimConversion
	ProtobufDecode
	InvalidToken
	UnrecognizedEOF
	UnrecognizedToken
	ExtraToken
	UnclosedComment
	UnclosedQuotedIdent
	ExpectedNumber
	UnknownBuiltin
	BadBuiltinArgs
	EmptyEquation
	BadModuleInputSrc
	BadModuleInputDst
	NotSimulatable
	BadTable
	BadSimSpecs
	NoAbsoluteReferences
	CircularDependency
	ArraysNotImplemented
	ArraysMultiDimensionalNotImplemented
	BadDimensionName
	BadModelName
	MismatchedDimensions
	ArrayReferenceNeedsExplicitSubscripts
	DuplicateVariable
	UnknownDependency
	VariablesHaveErrors
	UnitDefinitionErrors
	Generic
)

var codeNames = map[Code]string{
	NoError:                               "NoError",
	DoesNotExist:                          "DoesNotExist",
	XmlDeserialization:                    "XmlDeserialization",
	VensimConversion:                      "VensimConversion",
	ProtobufDecode:                        "ProtobufDecode",
	InvalidToken:                          "InvalidToken",
	UnrecognizedEOF:                       "UnrecognizedEOF",
	UnrecognizedToken:                     "UnrecognizedToken",
	ExtraToken:                            "ExtraToken",
	UnclosedComment:                       "UnclosedComment",
	UnclosedQuotedIdent:                   "UnclosedQuotedIdent",
	ExpectedNumber:                        "ExpectedNumber",
	UnknownBuiltin:                        "UnknownBuiltin",
	BadBuiltinArgs:                        "BadBuiltinArgs",
	EmptyEquation:                         "EmptyEquation",
	BadModuleInputSrc:                     "BadModuleInputSrc",
	BadModuleInputDst:                     "BadModuleInputDst",
	NotSimulatable:                        "NotSimulatable",
	BadTable:                              "BadTable",
	BadSimSpecs:                           "BadSimSpecs",
	NoAbsoluteReferences:                  "NoAbsoluteReferences",
	CircularDependency:                    "CircularDependency",
	ArraysNotImplemented:                  "ArraysNotImplemented",
	ArraysMultiDimensionalNotImplemented:  "ArraysMultiDimensionalNotImplemented",
	BadDimensionName:                      "BadDimensionName",
	BadModelName:                          "BadModelName",
	MismatchedDimensions:                  "MismatchedDimensions",
	ArrayReferenceNeedsExplicitSubscripts: "ArrayReferenceNeedsExplicitSubscripts",
	DuplicateVariable:                     "DuplicateVariable",
	UnknownDependency:                     "UnknownDependency",
	VariablesHaveErrors:                   "VariablesHaveErrors",
	UnitDefinitionErrors:                  "UnitDefinitionErrors",
	Generic:                               "Generic",
}

// String implements fmt.Stringer.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Kind classifies which part of a Project a Detail is attached to.
type Kind int

// Kinds of error detail, mirroring the FFI Error detail "kind" field.
const (
	KindProject Kind = iota
	KindModel
	KindVariable
	KindUnits
	KindSimulation
)

// UnitKind further classifies a KindUnits detail.
type UnitKind int

// Unit error sub-kinds.
const (
	UnitNA UnitKind = iota
	UnitDefinition
	UnitConsistency
	UnitInference
)

// Span is a half-open byte-offset range into the equation text an error was
// produced from. An empty Span (Start == End == 0 with HasSpan false) means
// the error has no precise source location.
type Span struct {
	Start, End int
	HasSpan    bool
}

// NewSpan constructs a populated Span.
func NewSpan(start, end int) Span {
	return Span{Start: start, End: end, HasSpan: true}
}

// Detail is a single reported problem, carrying enough context for an
// embedder to render a squiggly underline or a model/variable-scoped
// message.
type Detail struct {
	Code      Code
	Message   string
	ModelName string
	VarName   string
	Span      Span
	Kind      Kind
	UnitKind  UnitKind
}

// Error implements the error interface for a single Detail.
func (d Detail) Error() string {
	if d.Span.HasSpan {
		return fmt.Sprintf("%d:%d:%s", d.Span.Start, d.Span.End, d.Message)
	}
	return d.Message
}

// Error is a collected set of Details plus an overall top-level Code; it is
// what crosses the FFI boundary and what the patch engine returns.
type Error struct {
	Code    Code
	Details []Detail
}

// New constructs an Error with a single Detail of the given code/message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Details: []Detail{{Code: code, Message: message, Kind: KindProject}}}
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Add appends a Detail, promoting Code to Generic if multiple distinct codes
// have been collected (mirrors the FFI top-level code being "the" code while
// Details carries the rest).
func (e *Error) Add(d Detail) {
	if e.Code == NoError {
		e.Code = d.Code
	} else if e.Code != d.Code {
		e.Code = Generic
	}
	e.Details = append(e.Details, d)
}

// Error implements the error interface, joining all detail messages.
func (e *Error) Error() string {
	if e == nil || len(e.Details) == 0 {
		return "no error"
	}
	if len(e.Details) == 1 {
		return e.Details[0].Error()
	}
	msg := fmt.Sprintf("%d errors:", len(e.Details))
	for _, d := range e.Details {
		msg += "\n  " + d.Error()
	}
	return msg
}

// Empty reports whether no details have been collected.
func (e *Error) Empty() bool {
	return e == nil || len(e.Details) == 0
}

// Collector accumulates Details across a multi-equation / multi-variable
// pass (parsing, resolution, unit checking all work this way: one failing
// equation never prevents its siblings from being attempted).
type Collector struct {
	details []Detail
}

// Add appends a Detail to the collector.
func (c *Collector) Add(d Detail) {
	c.details = append(c.details, d)
}

// Addf appends a formatted Detail with the given code/kind and no span.
func (c *Collector) Addf(code Code, kind Kind, varName, format string, args ...any) {
	c.Add(Detail{Code: code, Message: fmt.Sprintf(format, args...), VarName: varName, Kind: kind})
}

// Details returns the accumulated details.
func (c *Collector) Details() []Detail {
	return c.details
}

// HasErrors reports whether anything has been collected.
func (c *Collector) HasErrors() bool {
	return len(c.details) > 0
}

// Err converts the collector into an *Error, or nil if nothing was collected.
func (c *Collector) Err() *Error {
	if len(c.details) == 0 {
		return nil
	}
	e := &Error{}
	for _, d := range c.details {
		e.Add(d)
	}
	return e
}
