package bridge

import (
	"strings"
	"testing"

	"github.com/23skdu/longbow-nock/internal/script"
)

func shapeArray(t *testing.T, env *script.Env, dims ...int64) script.Value {
	t.Helper()
	arr, st := env.CreateArray(len(dims))
	if st != script.OK {
		t.Fatalf("CreateArray: %v", st)
	}
	for i, d := range dims {
		v, _ := env.CreateInt64(d)
		if st := env.SetElement(arr, uint32(i), v); st != script.OK {
			t.Fatalf("SetElement: %v", st)
		}
	}
	return arr
}

func TestExtractArrayShape(t *testing.T) {
	t.Run("LengthAndElements", func(t *testing.T) {
		env := script.NewEnv()
		arr := shapeArray(t, env, 2, 3, 4)

		shape, ok := ExtractArrayShape(env, arr)
		if !ok {
			t.Fatalf("extraction failed: %v", pendingMessage(t, env))
		}
		if len(shape) != 3 {
			t.Fatalf("len = %d, want 3", len(shape))
		}
		for i, want := range []int64{2, 3, 4} {
			if shape[i] != want {
				t.Errorf("shape[%d] = %d, want %d", i, shape[i], want)
			}
		}
	})

	t.Run("TruncatesFractions", func(t *testing.T) {
		env := script.NewEnv()
		arr, _ := env.CreateArray(1)
		v, _ := env.CreateDouble(3.9)
		env.SetElement(arr, 0, v)

		shape, ok := ExtractArrayShape(env, arr)
		if !ok || shape[0] != 3 {
			t.Errorf("shape = %v,%v, want [3]", shape, ok)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		env := script.NewEnv()
		arr := shapeArray(t, env)

		shape, ok := ExtractArrayShape(env, arr)
		if !ok || len(shape) != 0 {
			t.Errorf("shape = %v,%v, want empty ok", shape, ok)
		}
	})

	t.Run("NonNumericElementAborts", func(t *testing.T) {
		env := script.NewEnv()
		arr, _ := env.CreateArray(3)
		d0, _ := env.CreateInt64(2)
		d1, _ := env.CreateString("three")
		d2, _ := env.CreateInt64(4)
		env.SetElement(arr, 0, d0)
		env.SetElement(arr, 1, d1)
		env.SetElement(arr, 2, d2)

		shape, ok := ExtractArrayShape(env, arr)
		if ok {
			t.Fatal("extraction succeeded over a non-numeric element")
		}
		if shape != nil {
			t.Errorf("aborted extraction leaked a partial result: %v", shape)
		}
		msg := pendingMessage(t, env)
		if !strings.Contains(msg, "Invalid script status:") {
			t.Errorf("message = %q", msg)
		}
	})

	t.Run("NonArrayInput", func(t *testing.T) {
		env := script.NewEnv()
		num, _ := env.CreateDouble(1)

		if _, ok := ExtractArrayShape(env, num); ok {
			t.Fatal("non-array accepted")
		}
		if !env.IsExceptionPending() {
			t.Error("no exception raised")
		}
	})
}
