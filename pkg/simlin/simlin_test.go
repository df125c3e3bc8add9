package simlin

import (
	"math"
	"testing"
)

// buildGrowthProject assembles the exponential-growth model through the
// public FFI-facing handle layer rather than the internal packages directly.
func buildGrowthProject(t *testing.T) *Project {
	t.Helper()
	proj := NewProject("test")
	mh, err := proj.AddModel("main")
	if err != nil {
		t.Fatalf("AddModel: %s", err.Message())
	}
	defer mh.Unref()

	patchJSON := []byte(`[
		{"op":"setSimSpecs","simSpecs":{"start":0,"stop":10,"dt":"1","method":"euler"}},
		{"op":"upsertStock","variable":{"ident":"p","equation":{"kind":"scalar","expr":"births","initialExpr":"100"},"inflows":["births"],"nonNegative":true}},
		{"op":"upsertFlow","variable":{"ident":"births","equation":{"kind":"scalar","expr":"p * 0.03"}}}
	]`)
	if perr := proj.ApplyPatch("main", patchJSON, false, false); perr != nil {
		t.Fatalf("ApplyPatch: %s", perr.Message())
	}
	return proj
}

func TestRefcountLastUnrefFrees(t *testing.T) {
	proj := NewProject("test")
	proj.Ref()
	if proj.refs() != 2 {
		t.Fatalf("refs = %d, want 2", proj.refs())
	}
	proj.Unref()
	if proj.refs() != 1 {
		t.Fatalf("refs = %d, want 1", proj.refs())
	}
	proj.Unref()
	if proj.refs() != 0 {
		t.Fatalf("refs = %d, want 0", proj.refs())
	}
}

func TestApplyPatchThenSimRuns(t *testing.T) {
	proj := buildGrowthProject(t)
	defer proj.Unref()

	if !proj.IsSimulatable("main") {
		t.Fatalf("model not simulatable: %s", proj.GetErrors().Message())
	}

	mh, ok := proj.ByName("main")
	if !ok {
		t.Fatal("expected model main to exist")
	}
	defer mh.Unref()

	sim, serr := New(mh, SimOptions{Seed: 1})
	if serr != nil {
		t.Fatalf("New: %s", serr.Message())
	}
	defer sim.Unref()

	if err := sim.RunToEnd(); err != nil {
		t.Fatalf("RunToEnd: %s", err.Message())
	}

	v, ok := sim.GetValue("p")
	if !ok {
		t.Fatal("expected p to be readable")
	}
	want := 100.0
	for i := 0; i < 10; i++ {
		want *= 1.03
	}
	if math.Abs(v-want) > 1e-3 {
		t.Errorf("p = %v, want %v", v, want)
	}
}

// TestApplyPatchRejectsBadReference exercises patch atomicity via the
// public handle API: a patch that introduces an unknown dependency is
// rejected and the pre-state's serialized bytes are unchanged.
func TestApplyPatchRejectsBadReference(t *testing.T) {
	proj := buildGrowthProject(t)
	defer proj.Unref()

	before, serr := proj.SerializeProtobuf()
	if serr != nil {
		t.Fatalf("SerializeProtobuf: %s", serr.Message())
	}

	bad := []byte(`[{"op":"upsertAux","variable":{"ident":"broken","equation":{"kind":"scalar","expr":"nonexistent_var + 1"}}}]`)
	if perr := proj.ApplyPatch("main", bad, false, false); perr == nil {
		t.Fatal("expected UnknownDependency to be reported")
	}

	after, serr := proj.SerializeProtobuf()
	if serr != nil {
		t.Fatalf("SerializeProtobuf: %s", serr.Message())
	}
	if string(before) != string(after) {
		t.Error("a rejected patch must leave the serialized project byte-identical")
	}
}

// TestGetVarNamesAndCountRespectMask covers the Model handle's typemask
// filtering.
func TestGetVarNamesAndCountRespectMask(t *testing.T) {
	proj := buildGrowthProject(t)
	defer proj.Unref()

	mh, ok := proj.ByName("main")
	if !ok {
		t.Fatal("expected model main to exist")
	}
	defer mh.Unref()

	if n := mh.GetVarCount(MaskStock, ""); n != 1 {
		t.Errorf("GetVarCount(MaskStock) = %d, want 1", n)
	}
	if n := mh.GetVarCount(MaskFlow, ""); n != 1 {
		t.Errorf("GetVarCount(MaskFlow) = %d, want 1", n)
	}
	names := mh.GetVarNames(MaskAll, "")
	if len(names) != 2 {
		t.Errorf("GetVarNames(MaskAll) = %v, want 2 entries", names)
	}
}

// TestModelHandleKeepsProjectAlive documents that a Model handle's
// reference to its owning Project survives Unref on the caller's own
// Project handle.
func TestModelHandleKeepsProjectAlive(t *testing.T) {
	proj := buildGrowthProject(t)
	mh, ok := proj.ByName("main")
	if !ok {
		t.Fatal("expected model main to exist")
	}
	proj.Unref()

	if got := mh.GetName(); got != "main" {
		t.Errorf("GetName() = %q, want %q", got, "main")
	}
	mh.Unref()
}
