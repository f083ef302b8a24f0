package native

import "testing"

func TestGraphOperations(t *testing.T) {
	t.Run("PlaceholderFinish", func(t *testing.T) {
		g := NewGraph()
		desc := g.NewOperation("Placeholder", "input")
		desc.SetAttrType("dtype", Int32)
		desc.SetAttrShape("shape", []int64{1, 5})

		s := NewStatus()
		op := desc.Finish(s)
		if s.Code() != OK || op == nil {
			t.Fatalf("Finish: %v %q", s.Code(), s.Message())
		}
		if got := g.Operation("input"); got != op {
			t.Error("finished op not reachable by name")
		}
		dt, ok := op.AttrType("dtype")
		if !ok || dt != Int32 {
			t.Errorf("dtype attr = %v,%v", dt, ok)
		}
		shape, ok := op.AttrShape("shape")
		if !ok || len(shape) != 2 || shape[0] != 1 || shape[1] != 5 {
			t.Errorf("shape attr = %v,%v", shape, ok)
		}
	})

	t.Run("MissingRequiredAttr", func(t *testing.T) {
		g := NewGraph()
		s := NewStatus()
		if op := g.NewOperation("Placeholder", "x").Finish(s); op != nil {
			t.Fatal("finished without dtype")
		}
		if s.Code() != InvalidArgument {
			t.Errorf("code = %v, want INVALID_ARGUMENT", s.Code())
		}
		if g.NumOperations() != 0 {
			t.Error("failed finish mutated the graph")
		}
	})

	t.Run("UnknownOpType", func(t *testing.T) {
		g := NewGraph()
		s := NewStatus()
		if op := g.NewOperation("Conv3DTranspose", "x").Finish(s); op != nil {
			t.Fatal("unregistered op type accepted")
		}
		if s.Code() != InvalidArgument {
			t.Errorf("code = %v, want INVALID_ARGUMENT", s.Code())
		}
	})

	t.Run("DuplicateName", func(t *testing.T) {
		g := NewGraph()
		s := NewStatus()
		d1 := g.NewOperation("NoOp", "node")
		if d1.Finish(s) == nil {
			t.Fatalf("first finish failed: %s", s.Message())
		}
		d2 := g.NewOperation("NoOp", "node")
		if d2.Finish(s) != nil {
			t.Fatal("duplicate node name accepted")
		}
		if s.Code() != InvalidArgument {
			t.Errorf("code = %v, want INVALID_ARGUMENT", s.Code())
		}
		if g.NumOperations() != 1 {
			t.Errorf("graph has %d ops, want 1", g.NumOperations())
		}
	})

	t.Run("DoubleFinish", func(t *testing.T) {
		g := NewGraph()
		s := NewStatus()
		desc := g.NewOperation("NoOp", "once")
		if desc.Finish(s) == nil {
			t.Fatalf("first finish failed: %s", s.Message())
		}
		if desc.Finish(s) != nil {
			t.Fatal("second finish succeeded")
		}
		if s.Code() != FailedPrecondition {
			t.Errorf("code = %v, want FAILED_PRECONDITION", s.Code())
		}
	})

	t.Run("Inputs", func(t *testing.T) {
		g := NewGraph()
		s := NewStatus()

		src := g.NewOperation("NoOp", "src")
		srcOp := src.Finish(s)
		if srcOp == nil {
			t.Fatalf("src finish: %s", s.Message())
		}

		sink := g.NewOperation("Identity", "sink")
		sink.AddInput(srcOp.Output(0))
		sinkOp := sink.Finish(s)
		if sinkOp == nil {
			t.Fatalf("sink finish: %s", s.Message())
		}
		if sinkOp.NumInputs() != 1 {
			t.Errorf("inputs = %d, want 1", sinkOp.NumInputs())
		}
	})
}

func TestStatusReuse(t *testing.T) {
	s := NewStatus()
	s.Set(InvalidArgument, "first failure")
	if s.Err() == nil {
		t.Fatal("non-OK status has nil Err")
	}

	g := NewGraph()
	if g.NewOperation("NoOp", "n").Finish(s) == nil {
		t.Fatalf("finish failed: %s", s.Message())
	}
	if s.Code() != OK || s.Message() != "" {
		t.Errorf("successful call left stale status: %v %q", s.Code(), s.Message())
	}
	if s.Err() != nil {
		t.Errorf("OK status Err = %v", s.Err())
	}
}
