package native

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ManifestFile is the bundle file a saved model directory must contain.
const ManifestFile = "saved_model.cbor"

// TensorInfo names one tensor endpoint of a signature.
type TensorInfo struct {
	Name  string   `cbor:"name"`
	DType DataType `cbor:"dtype"`
	Shape []int64  `cbor:"shape"`
}

// Signature is a named set of input and output endpoints.
type Signature struct {
	Inputs     map[string]TensorInfo `cbor:"inputs"`
	Outputs    map[string]TensorInfo `cbor:"outputs"`
	MethodName string                `cbor:"method_name"`
}

// Manifest is the serialized form of a saved model bundle.
type Manifest struct {
	FormatVersion int                  `cbor:"format_version"`
	Tags          []string             `cbor:"tags"`
	Signatures    map[string]Signature `cbor:"signatures"`
}

// WriteManifest serializes a bundle into dir. Used by tooling and tests
// to stage model directories.
func WriteManifest(dir string, m Manifest) error {
	if m.FormatVersion == 0 {
		m.FormatVersion = 1
	}
	raw, err := cbor.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "encoding saved model manifest")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating model directory %q", dir)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), raw, 0o644); err != nil {
		return errors.Wrapf(err, "writing manifest to %q", dir)
	}
	return nil
}

// Session is a loaded saved model: the structural graph plus its
// signatures. It does not execute; Run validates feeds and fetches
// against the signatures and materializes declared outputs.
type Session struct {
	Graph      *Graph
	Signatures map[string]Signature
	Tags       []string

	infos map[string]TensorInfo

	mu     sync.Mutex
	closed bool
}

func tagsMatch(want, have []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if w == h {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// LoadSession loads the bundle in dir whose tag set covers tags. On
// failure the status carries NotFound (missing bundle or tag mismatch)
// or DataLoss (unreadable manifest) and nil is returned.
func LoadSession(dir string, tags []string, s *Status) *Session {
	raw, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		s.Set(NotFound, fmt.Sprintf("no saved model bundle at %q: %v", dir, err))
		return nil
	}
	var m Manifest
	if err := cbor.Unmarshal(raw, &m); err != nil {
		s.Set(DataLoss, fmt.Sprintf("corrupt saved model manifest at %q: %v", dir, err))
		return nil
	}
	if !tagsMatch(tags, m.Tags) {
		s.Set(NotFound, fmt.Sprintf("no graph in the bundle matches tags %v; available tags: %v", tags, m.Tags))
		return nil
	}

	g := NewGraph()
	infos := make(map[string]TensorInfo)
	for sigName, sig := range m.Signatures {
		for _, in := range sig.Inputs {
			infos[in.Name] = in
			if g.Operation(in.Name) != nil {
				continue
			}
			desc := g.NewOperation("Placeholder", in.Name)
			desc.SetAttrType("dtype", in.DType)
			if len(in.Shape) > 0 {
				desc.SetAttrShape("shape", in.Shape)
			}
			st := NewStatus()
			if desc.Finish(st) == nil {
				s.Set(Internal, fmt.Sprintf("staging input %q of signature %q: %s", in.Name, sigName, st.Message()))
				return nil
			}
		}
		for _, out := range sig.Outputs {
			infos[out.Name] = out
		}
	}

	sessionsLoaded.Inc()
	log.Debug().
		Str("dir", dir).
		Strs("tags", m.Tags).
		Int("signatures", len(m.Signatures)).
		Msg("Loaded saved model bundle")

	s.setOK()
	return &Session{Graph: g, Signatures: m.Signatures, Tags: m.Tags, infos: infos}
}

// LoadSavedModel is the error-returning convenience form of LoadSession.
func LoadSavedModel(dir string, tags []string) (*Session, error) {
	s := NewStatus()
	sess := LoadSession(dir, tags, s)
	if err := s.Err(); err != nil {
		return nil, errors.Wrapf(err, "loading saved model from %q", dir)
	}
	return sess, nil
}

// TensorInfo looks up a signature endpoint by tensor name.
func (sess *Session) TensorInfo(name string) (TensorInfo, bool) {
	info, ok := sess.infos[name]
	return info, ok
}

// Run checks every feed and fetch against the loaded signatures and
// returns one zero-initialized tensor per fetch, shaped as declared.
// Unknown dims in a declared shape resolve to 1. The caller owns the
// returned tensors.
func (sess *Session) Run(feeds map[string]*Tensor, fetches []string, s *Status) []*Tensor {
	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		s.Set(FailedPrecondition, "session has been closed")
		return nil
	}
	sess.mu.Unlock()

	for name, t := range feeds {
		info, ok := sess.infos[name]
		if !ok {
			s.Set(InvalidArgument, fmt.Sprintf("unknown feed tensor %q", name))
			return nil
		}
		if t == nil {
			s.Set(InvalidArgument, fmt.Sprintf("nil tensor fed for %q", name))
			return nil
		}
		if t.Type() != info.DType {
			s.Set(InvalidArgument, fmt.Sprintf("feed %q expects %v, got %v", name, info.DType, t.Type()))
			return nil
		}
		if len(info.Shape) > 0 {
			if t.NumDims() != len(info.Shape) {
				s.Set(InvalidArgument, fmt.Sprintf("feed %q expects rank %d, got %d", name, len(info.Shape), t.NumDims()))
				return nil
			}
			for i, want := range info.Shape {
				if want >= 0 && t.Dim(i) != want {
					s.Set(InvalidArgument, fmt.Sprintf("feed %q dim %d: expected %d, got %d", name, i, want, t.Dim(i)))
					return nil
				}
			}
		}
	}

	out := make([]*Tensor, 0, len(fetches))
	for _, name := range fetches {
		info, ok := sess.infos[name]
		if !ok {
			for _, t := range out {
				DeleteTensor(t)
			}
			s.Set(InvalidArgument, fmt.Sprintf("unknown fetch tensor %q", name))
			return nil
		}
		dims := make([]int64, len(info.Shape))
		for i, d := range info.Shape {
			if d < 0 {
				d = 1
			}
			dims[i] = d
		}
		size := int(numElements(dims)) * info.DType.Size()
		out = append(out, AllocateTensor(info.DType, dims, size))
	}

	s.setOK()
	return out
}

// Close releases the session. Safe to call more than once.
func (sess *Session) Close() error {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.closed = true
	return nil
}
