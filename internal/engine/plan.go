package engine

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
)

// Plan is a concrete unit of work that will yield a product for one or more
// subjects when executed. Its inputs may embed unresolved PromiseKeys
// arbitrarily nested inside maps and slices; those keys are the plan's
// dependency edges on other plans.
//
// Plans are deduplicated by structural identity: two plans are equal iff
// their runner, subject set, and recursively normalized inputs are equal.
type Plan struct {
	runner   Runner
	subjects map[any]Subject
	order    []Subject
	inputs   map[string]any

	canonicalOnce bool
	canonical     string
	promisesOnce  bool
	promiseKeys   []PromiseKey
}

// NewPlan builds a plan for the given runner, subject set, and named inputs.
// Subjects are deduplicated by primary; inputs are not copied and must not
// be mutated after construction.
func NewPlan(runner Runner, subjects []Subject, inputs map[string]any) *Plan {
	if runner == nil {
		panic("engine: plan runner must not be nil")
	}
	p := &Plan{
		runner:   runner,
		subjects: make(map[any]Subject, len(subjects)),
		inputs:   inputs,
	}
	for _, s := range subjects {
		if _, ok := p.subjects[s.Primary()]; ok {
			continue
		}
		p.subjects[s.Primary()] = s
		p.order = append(p.order, s)
	}
	if len(p.order) == 0 {
		panic("engine: plan must cover at least one subject")
	}
	return p
}

// Runner returns the executable that will run this plan.
func (p *Plan) Runner() Runner { return p.runner }

// Subjects returns the subjects this plan produces for, in registration
// order. When the plan executes, its result is associated with each of them.
func (p *Plan) Subjects() []Subject { return p.order }

// CoversSubject reports whether the given primary entity is among the plan's
// subjects.
func (p *Plan) CoversSubject(primary any) bool {
	_, ok := p.subjects[primary]
	return ok
}

// Inputs returns the plan's named inputs.
func (p *Plan) Inputs() map[string]any { return p.inputs }

// Promises returns the unique PromiseKeys embedded in the plan's inputs, in
// discovery order. They are the plan's dependency edges.
func (p *Plan) Promises() []PromiseKey {
	if !p.promisesOnce {
		seen := make(map[PromiseKey]struct{})
		names := make([]string, 0, len(p.inputs))
		for name := range p.inputs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			collectPromises(p.inputs[name], seen, &p.promiseKeys)
		}
		p.promisesOnce = true
	}
	return p.promiseKeys
}

func collectPromises(item any, seen map[PromiseKey]struct{}, out *[]PromiseKey) {
	switch v := item.(type) {
	case PromiseKey:
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			*out = append(*out, v)
		}
	case map[string]any:
		names := make([]string, 0, len(v))
		for name := range v {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			collectPromises(v[name], seen, out)
		}
	case []any:
		for _, e := range v {
			collectPromises(e, seen, out)
		}
	}
}

// Bind substitutes every embedded PromiseKey with its satisfied value and
// returns a ready-to-invoke Binding. It fails if any embedded key is missing
// from the supplied values.
func (p *Plan) Bind(values map[PromiseKey]any) (Binding, error) {
	bound := make(map[string]any, len(p.inputs))
	for name, value := range p.inputs {
		v, err := bindValue(value, values)
		if err != nil {
			return Binding{}, fmt.Errorf("binding input %q of %s: %w", name, p, err)
		}
		bound[name] = v
	}
	return Binding{runner: p.runner, inputs: bound}, nil
}

func bindValue(item any, values map[PromiseKey]any) (any, error) {
	switch v := item.(type) {
	case PromiseKey:
		bound, ok := values[v]
		if !ok {
			return nil, fmt.Errorf("unsatisfied promise %s", v)
		}
		return bound, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for name, e := range v {
			b, err := bindValue(e, values)
			if err != nil {
				return nil, err
			}
			out[name] = b
		}
		return out, nil
	case []any:
		out := make([]any, 0, len(v))
		for _, e := range v {
			b, err := bindValue(e, values)
			if err != nil {
				return nil, err
			}
			out = append(out, b)
		}
		return out, nil
	default:
		return item, nil
	}
}

// Fingerprint returns a short stable digest of the plan's structural
// identity, suitable for deduplication sets and log lines.
func (p *Plan) Fingerprint() string {
	h := fnv.New64a()
	h.Write([]byte(p.key()))
	return strconv.FormatUint(h.Sum64(), 16)
}

// Equal reports structural equality per the plan identity contract.
func (p *Plan) Equal(other *Plan) bool {
	return other != nil && p.key() == other.key()
}

// key renders the canonical form backing equality: runner name, sorted
// subject identities, and inputs normalized to order-stable form.
func (p *Plan) key() string {
	if !p.canonicalOnce {
		subjects := make([]string, 0, len(p.order))
		for _, s := range p.order {
			subjects = append(subjects, s.Identity())
		}
		sort.Strings(subjects)
		var b strings.Builder
		b.WriteString(p.runner.Name())
		b.WriteString("|{")
		b.WriteString(strings.Join(subjects, ","))
		b.WriteString("}|")
		writeCanonical(&b, p.inputs)
		p.canonical = b.String()
		p.canonicalOnce = true
	}
	return p.canonical
}

// writeCanonical renders a value into a canonical order-stable form: map
// entries sorted by key, sequences in order, promise keys and identifiable
// entities by identity.
func writeCanonical(b *strings.Builder, item any) {
	switch v := item.(type) {
	case nil:
		b.WriteString("nil")
	case PromiseKey:
		b.WriteString("promise(")
		b.WriteString(v.fingerprint())
		b.WriteString(")")
	case Subject:
		b.WriteString("subject(")
		b.WriteString(v.Identity())
		b.WriteString(")")
	case map[string]any:
		names := make([]string, 0, len(v))
		for name := range v {
			names = append(names, name)
		}
		sort.Strings(names)
		b.WriteString("map{")
		for _, name := range names {
			b.WriteString(strconv.Quote(name))
			b.WriteString("=")
			writeCanonical(b, v[name])
			b.WriteString(";")
		}
		b.WriteString("}")
	case []any:
		b.WriteString("seq[")
		for _, e := range v {
			writeCanonical(b, e)
			b.WriteString(";")
		}
		b.WriteString("]")
	case string:
		b.WriteString(strconv.Quote(v))
	default:
		b.WriteString(identityOf(v))
	}
}

func (p *Plan) String() string {
	subjects := make([]string, 0, len(p.order))
	for _, s := range p.order {
		subjects = append(subjects, s.Identity())
	}
	return fmt.Sprintf("Plan(%s, subjects=[%s])", p.runner.Name(), strings.Join(subjects, ", "))
}

// Binding is a plan whose every input has been bound to a concrete value,
// ready for invocation.
type Binding struct {
	runner Runner
	inputs map[string]any
}

// Execute invokes the bound runner and returns its product value.
func (b Binding) Execute(ctx context.Context) (any, error) {
	return b.runner.Invoke(ctx, b.inputs)
}

// Inputs returns the bound input values.
func (b Binding) Inputs() map[string]any { return b.inputs }
