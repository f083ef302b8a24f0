package native

import (
	"fmt"
	"sync"
)

// availableOps lists the node types the bookkeeping graph accepts, with
// the attrs each one requires before Finish succeeds.
var availableOps = map[string][]string{
	"Placeholder": {"dtype"},
	"Const":       {"dtype", "value"},
	"Identity":    nil,
	"NoOp":        nil,
}

// Graph is a structural operation graph. Nodes are validated against
// availableOps when finished; the graph never executes them.
type Graph struct {
	mu    sync.Mutex
	ops   map[string]*Operation
	order []*Operation
}

func NewGraph() *Graph {
	return &Graph{ops: make(map[string]*Operation)}
}

// Operation is a node that has been added to a Graph.
type Operation struct {
	OpType string
	Name   string
	attrs  map[string]any
	inputs []Output
}

// Output identifies one of an operation's result slots.
type Output struct {
	Op    *Operation
	Index int
}

// Output returns the i-th result slot of the operation.
func (op *Operation) Output(i int) Output {
	return Output{Op: op, Index: i}
}

// Attr returns the raw attr value; callers switch on its dynamic type.
func (op *Operation) Attr(name string) (any, bool) {
	v, ok := op.attrs[name]
	return v, ok
}

// AttrType returns a DataType-valued attr.
func (op *Operation) AttrType(name string) (DataType, bool) {
	v, ok := op.attrs[name].(DataType)
	return v, ok
}

// AttrShape returns a shape-valued attr.
func (op *Operation) AttrShape(name string) ([]int64, bool) {
	v, ok := op.attrs[name].([]int64)
	return v, ok
}

// AttrInt returns an int-valued attr.
func (op *Operation) AttrInt(name string) (int64, bool) {
	v, ok := op.attrs[name].(int64)
	return v, ok
}

func (op *Operation) NumInputs() int {
	return len(op.inputs)
}

// Operation looks a node up by name, nil when absent.
func (g *Graph) Operation(name string) *Operation {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ops[name]
}

func (g *Graph) NumOperations() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.order)
}

// Operations returns the nodes in insertion order.
func (g *Graph) Operations() []*Operation {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*Operation, len(g.order))
	copy(out, g.order)
	return out
}

// OperationDescription is a node under construction. Attrs and inputs
// accumulate until Finish validates and installs it.
type OperationDescription struct {
	g        *Graph
	opType   string
	name     string
	attrs    map[string]any
	inputs   []Output
	finished bool
}

// NewOperation starts describing a node of type opType named name.
func (g *Graph) NewOperation(opType, name string) *OperationDescription {
	return &OperationDescription{
		g:      g,
		opType: opType,
		name:   name,
		attrs:  make(map[string]any),
	}
}

func (d *OperationDescription) SetAttrType(name string, dt DataType) {
	d.attrs[name] = dt
}

func (d *OperationDescription) SetAttrShape(name string, dims []int64) {
	s := make([]int64, len(dims))
	copy(s, dims)
	d.attrs[name] = s
}

func (d *OperationDescription) SetAttrInt(name string, v int64) {
	d.attrs[name] = v
}

// SetAttrTensor attaches a tensor-valued attr. The graph holds a
// reference; the tensor must stay alive as long as the graph does.
func (d *OperationDescription) SetAttrTensor(name string, t *Tensor) {
	d.attrs[name] = t
}

func (d *OperationDescription) AddInput(o Output) {
	d.inputs = append(d.inputs, o)
}

// Finish validates the description and installs the node. On any
// failure the status names the first problem and the graph is left
// unchanged.
func (d *OperationDescription) Finish(s *Status) *Operation {
	if d.finished {
		s.Set(FailedPrecondition, fmt.Sprintf("operation %q has already been finished", d.name))
		return nil
	}
	required, known := availableOps[d.opType]
	if !known {
		s.Set(InvalidArgument, fmt.Sprintf("op type %q is not registered", d.opType))
		return nil
	}
	for _, attr := range required {
		if _, ok := d.attrs[attr]; !ok {
			s.Set(InvalidArgument, fmt.Sprintf("op %q of type %q is missing required attr %q", d.name, d.opType, attr))
			return nil
		}
	}

	d.g.mu.Lock()
	defer d.g.mu.Unlock()
	if _, exists := d.g.ops[d.name]; exists {
		s.Set(InvalidArgument, fmt.Sprintf("duplicate node name %q", d.name))
		return nil
	}

	d.finished = true
	op := &Operation{OpType: d.opType, Name: d.name, attrs: d.attrs, inputs: d.inputs}
	d.g.ops[d.name] = op
	d.g.order = append(d.g.order, op)
	s.setOK()
	return op
}
