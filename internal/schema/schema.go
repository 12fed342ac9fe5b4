package schema

import (
	"fmt"
	"os"
	"slices"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/chronicle/internal/audit"
	"github.com/roach88/chronicle/internal/field"
)

// kindsPath is the top-level struct holding one constraint per kind.
const kindsPath = "kind"

// LoadError reports a schema that could not be loaded, with its CUE
// position when known.
type LoadError struct {
	Kind    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	where := "schema"
	if e.Kind != "" {
		where = "kind " + e.Kind
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), where, e.Message)
	}
	return fmt.Sprintf("%s: %s", where, e.Message)
}

// Registry holds the compiled constraint of every declared kind.
//
// Thread-safety: Registry is safe for concurrent use. Validation is
// serialized because CUE values are not safe for concurrent evaluation.
type Registry struct {
	mu    sync.Mutex
	ctx   *cue.Context
	kinds map[string]cue.Value
}

// Load builds a registry from the CUE package in dir.
func Load(dir string) (*Registry, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &LoadError{Message: fmt.Sprintf("schema directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fromCUE("", inst.Err)
	}

	ctx := cuecontext.New()
	return build(ctx, ctx.BuildInstance(inst))
}

// Compile builds a registry from CUE source text.
func Compile(src string) (*Registry, error) {
	ctx := cuecontext.New()
	return build(ctx, ctx.CompileString(src, cue.Filename("schema.cue")))
}

func build(ctx *cue.Context, v cue.Value) (*Registry, error) {
	if err := v.Err(); err != nil {
		return nil, fromCUE("", err)
	}

	r := &Registry{ctx: ctx, kinds: make(map[string]cue.Value)}
	kinds := v.LookupPath(cue.ParsePath(kindsPath))
	if !kinds.Exists() {
		return r, nil
	}

	iter, err := kinds.Fields()
	if err != nil {
		return nil, fromCUE("", err)
	}
	for iter.Next() {
		name := iter.Selector().Unquoted()
		kv := iter.Value()
		if err := kv.Err(); err != nil {
			return nil, fromCUE(name, err)
		}
		if kv.IncompleteKind() != cue.StructKind {
			return nil, &LoadError{Kind: name, Message: "constraint must be a struct", Pos: kv.Pos()}
		}
		r.kinds[name] = kv
	}
	return r, nil
}

// Kinds returns the declared kinds in sorted order.
func (r *Registry) Kinds() []string {
	out := make([]string, 0, len(r.kinds))
	for k := range r.kinds {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Has reports whether kind has a constraint.
func (r *Registry) Has(kind string) bool {
	_, ok := r.kinds[kind]
	return ok
}

// Validate checks fields against the constraint of kind. A kind without a
// constraint always passes. Violations are InvalidArgument errors.
func (r *Registry) Validate(kind string, fields field.Set) error {
	constraint, ok := r.kinds[kind]
	if !ok {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	data := r.ctx.Encode(field.ToGo(field.Group(fields)))
	if err := data.Err(); err != nil {
		return audit.Errorf(audit.CodeInvalidArgument, nil, "kind %s: encode fields: %v", kind, err)
	}
	if err := constraint.Unify(data).Validate(cue.Concrete(true)); err != nil {
		return audit.Errorf(audit.CodeInvalidArgument, nil, "kind %s: %s", kind, firstMessage(err))
	}
	return nil
}

func fromCUE(kind string, err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Kind: kind, Message: err.Error()}
	}
	le := &LoadError{Kind: kind, Message: errs[0].Error()}
	if pos := cueerrors.Positions(errs[0]); len(pos) > 0 {
		le.Pos = pos[0]
	}
	return le
}

func firstMessage(err error) string {
	if errs := cueerrors.Errors(err); len(errs) > 0 {
		return errs[0].Error()
	}
	return err.Error()
}
