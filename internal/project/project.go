// Package project implements the target side of a materialization: a
// project software (PLC program blocks or HMI screens) whose folder
// hierarchy is created container by container.
package project

import (
	"errors"
	"fmt"
	"strings"

	"github.com/agentic-research/mastercopy/api"
	"github.com/agentic-research/mastercopy/internal/catalog"
)

// Container is a position in the project hierarchy.
type Container interface {
	// Name is the container's own name ("" for the top level).
	Name() string
	// Path is the slash-separated path from the top level ("" for the top level).
	Path() string
	// CreateSubfolder creates a child folder and returns it.
	CreateSubfolder(name string) (Container, error)
	// Instantiate creates a content object from a master copy in this container.
	Instantiate(t catalog.Template) error
}

// Project is one software target inside an engineering project.
type Project interface {
	// Root is the well-known top-level container.
	Root() Container
	// Kind is the content kind this software holds (block or screen).
	Kind() api.Kind
	Close() error
}

// Accepts reports whether content of kind k belongs in p.
func Accepts(p Project, k api.Kind) bool {
	return k.IsContent() && k == p.Kind()
}

// ErrorKind classifies a failed container operation.
type ErrorKind int

const (
	DuplicateName ErrorKind = iota + 1
	InvalidParent
	IncompatibleTemplate
)

func (k ErrorKind) String() string {
	switch k {
	case DuplicateName:
		return "duplicate name"
	case InvalidParent:
		return "invalid parent"
	case IncompatibleTemplate:
		return "incompatible template"
	default:
		return fmt.Sprintf("error kind %d", int(k))
	}
}

// Sentinels for errors.Is. A *MaterializationError matches the sentinel of its kind.
var (
	ErrDuplicateName        = errors.New("duplicate name")
	ErrInvalidParent        = errors.New("invalid parent")
	ErrIncompatibleTemplate = errors.New("incompatible template")
)

// MaterializationError is returned by containers when the project rejects
// an operation.
type MaterializationError struct {
	Kind ErrorKind
	// Path of the parent container.
	Path string
	// Name of the folder or content object being created.
	Name string
	Err  error
}

func (e *MaterializationError) Error() string {
	where := e.Path
	if where == "" {
		where = "<top>"
	}
	msg := fmt.Sprintf("%s: %q in %s", e.Kind, e.Name, where)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MaterializationError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for e.Kind.
func (e *MaterializationError) Is(target error) bool {
	switch e.Kind {
	case DuplicateName:
		return target == ErrDuplicateName
	case InvalidParent:
		return target == ErrInvalidParent
	case IncompatibleTemplate:
		return target == ErrIncompatibleTemplate
	}
	return false
}

func newError(kind ErrorKind, parent, name string, err error) *MaterializationError {
	return &MaterializationError{Kind: kind, Path: parent, Name: name, Err: err}
}

// checkName rejects names that cannot form a path segment.
func checkName(parent, name string) error {
	if strings.TrimSpace(name) == "" {
		return newError(InvalidParent, parent, name, errors.New("empty name"))
	}
	if strings.Contains(name, "/") {
		return newError(InvalidParent, parent, name, errors.New("name contains '/'"))
	}
	if name == "." || name == ".." {
		return newError(InvalidParent, parent, name, errors.New("name is a relative path element"))
	}
	return nil
}

// checkTemplate rejects templates of a kind other than want. Untyped
// templates are accepted everywhere.
func checkTemplate(parent string, want api.Kind, t catalog.Template) error {
	if err := checkName(parent, t.Name); err != nil {
		return err
	}
	if t.Kind != 0 && t.Kind != want {
		return newError(IncompatibleTemplate, parent, t.Name,
			fmt.Errorf("%s template in %s software", t.Kind, want))
	}
	return nil
}
