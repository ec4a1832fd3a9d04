package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	testCases := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{in: "", want: KindIndirect},
		{in: "indirect", want: KindIndirect},
		{in: "direct", want: KindDirect},
		{in: "derived", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run("kind_"+tc.in, func(t *testing.T) {
			got, err := ParseKind(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseTargetRef(t *testing.T) {
	testCases := []struct {
		name    string
		in      string
		want    TargetRef
		wantErr bool
	}{
		{name: "bare name", in: "dataset", want: TargetRef{Name: "dataset"}},
		{name: "sibling module", in: "../raw:capture", want: TargetRef{ModulePath: "../raw", Name: "capture"}},
		{name: "nested module", in: "sub/stage:out", want: TargetRef{ModulePath: "sub/stage", Name: "out"}},
		{name: "labelled module dir", in: "../NN.big:weights", want: TargetRef{ModulePath: "../NN.big", Name: "weights"}},
		{name: "empty", in: "", wantErr: true},
		{name: "no target name", in: "../raw:", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseTargetRef(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.in, got.String())
		})
	}
}

func validDecl() *ModuleDecl {
	return &ModuleDecl{
		Dir:  "/data/run",
		Name: "run",
		Targets: []*TargetDecl{
			{Name: "raw", Kind: KindDirect, Output: "raw.bag", Parallelizable: "100%"},
			{
				Name:           "dataset",
				Kind:           KindIndirect,
				Output:         "dataset.npz",
				Command:        "python forge.py",
				DependsOn:      []TargetRef{{Name: "raw"}},
				Parallelizable: "cpu",
			},
		},
	}
}

func TestModuleDeclValidate(t *testing.T) {
	require.NoError(t, validDecl().Validate())

	t.Run("duplicate target name", func(t *testing.T) {
		d := validDecl()
		d.Targets = append(d.Targets, &TargetDecl{
			Name: "raw", Kind: KindDirect, Output: "x", Parallelizable: "100%",
		})
		require.Error(t, d.Validate())
	})

	t.Run("direct with command", func(t *testing.T) {
		d := validDecl()
		d.Targets[0].Command = "touch raw.bag"
		require.Error(t, d.Validate())
	})

	t.Run("direct with dependencies", func(t *testing.T) {
		d := validDecl()
		d.Targets[0].DependsOn = []TargetRef{{Name: "dataset"}}
		require.Error(t, d.Validate())
	})

	t.Run("indirect without command", func(t *testing.T) {
		d := validDecl()
		d.Targets[1].Command = ""
		require.Error(t, d.Validate())
	})

	t.Run("bad name", func(t *testing.T) {
		d := validDecl()
		d.Targets[1].Name = "data set"
		require.Error(t, d.Validate())
	})
}
