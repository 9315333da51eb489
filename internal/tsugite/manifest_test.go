package tsugite

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseTypeRef(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{name: "named", input: "svc.Service", expected: "svc.Service"},
		{name: "pointer", input: "*svc.Service", expected: "*svc.Service"},
		{name: "slice", input: "[]svc.Handler", expected: "[]svc.Handler"},
		{name: "array", input: "[3]svc.Handler", expected: "[3]svc.Handler"},
		{name: "seq", input: "seq[svc.Handler]", expected: "seq[svc.Handler]"},
		{name: "chan", input: "chan svc.Event", expected: "chan svc.Event"},
		{name: "func", input: "func() svc.Service", expected: "func() svc.Service"},
		{name: "generic", input: "box.Box[svc.A,svc.B]", expected: "box.Box[svc.A,svc.B]"},
		{name: "nested generic", input: "box.Box[box.Box[svc.A]]", expected: "box.Box[box.Box[svc.A]]"},
		{name: "pointer to generic", input: "*box.Box[svc.A]", expected: "*box.Box[svc.A]"},
		{name: "whitespace trimmed", input: "  svc.Service ", expected: "svc.Service"},
		{name: "empty", input: "", wantErr: true},
		{name: "bad array length", input: "[x]svc.Handler", wantErr: true},
		{name: "unclosed generic", input: "box.Box[svc.A", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ref, err := ParseTypeRef(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ref.Key())
		})
	}
}

func TestManifestTagDecoding(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected Tag
	}{
		{name: "scalar value", input: `primary`, expected: ValueTag("primary")},
		{name: "any marker", input: `{any: true}`, expected: Tag{Kind: TagAny}},
		{name: "unique marker", input: `{unique: true}`, expected: Tag{Kind: TagUnique}},
		{name: "type marker", input: `{type: "*svc.Service"}`, expected: ValueTag("type:*svc.Service")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var tag manifestTag
			require.NoError(t, yaml.Unmarshal([]byte(tt.input), &tag))
			assert.Equal(t, tt.expected, tag.tag)
		})
	}
}

const sampleManifest = `
composition: App
compositionType: app.Composition
hints:
  threadSafe: true
types:
  - type: "*svc.Service"
    assignableTo: [svc.API]
setups:
  - name: base
    bindings:
      - contracts:
          - type: svc.API
        impl:
          type: "*svc.Service"
          params:
            - name: cfg
              type: svc.Config
      - arg:
          name: cfg
          type: svc.Config
    roots:
      - name: API
        type: svc.API
`

func TestLoadManifestAndBuild(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleManifest), 0o600))

	m, err := LoadManifest(path)
	require.NoError(t, err)

	name, composition, setups, hints, oracle, err := m.Build()
	require.NoError(t, err)

	assert.Equal(t, "App", name)
	assert.Equal(t, "app.Composition", composition.Key())
	assert.True(t, hints.ThreadSafe)
	require.Len(t, setups, 1)
	require.Len(t, setups[0].Bindings, 2)
	require.Len(t, setups[0].Roots, 1)

	impl := setups[0].Bindings[0]
	require.NotNil(t, impl.Impl)
	assert.Equal(t, "*svc.Service", impl.Impl.Type.Key())
	require.Len(t, impl.Impl.Params, 1)
	assert.Equal(t, "svc.Config", impl.Impl.Params[0].Contract.Type.Key())
	assert.Equal(t, InjectCtorParam, impl.Impl.Params[0].Kind)

	arg := setups[0].Bindings[1]
	require.NotNil(t, arg.Arg)
	assert.Equal(t, "cfg", arg.Arg.Name)

	assert.True(t, oracle.AssignableTo(Named("svc.Service"), Named("svc.API")) ||
		oracle.AssignableTo(ptrTo(Named("svc.Service")), Named("svc.API")))
}

func TestManifestMethodArgs(t *testing.T) {
	t.Parallel()

	doc := `
composition: Methods
hints:
  resolveMethods: true
setups:
  - name: base
    bindings:
      - contracts:
          - type: svc.Service
        impl:
          type: "*svc.Service"
          fields:
            - name: Name
              type: string
          methodArgs:
            - name: SetLogger
              type: svc.Logger
`
	path := filepath.Join(t.TempDir(), "methods.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	m, err := LoadManifest(path)
	require.NoError(t, err)

	_, _, setups, hints, _, err := m.Build()
	require.NoError(t, err)
	assert.True(t, hints.ResolveMethods)

	members := setups[0].Bindings[0].Impl.Members
	require.Len(t, members, 2)
	assert.Equal(t, InjectField, members[0].Kind)
	assert.Equal(t, InjectMethodArg, members[1].Kind)
	assert.Equal(t, "SetLogger", members[1].Name)
	assert.Equal(t, "svc.Logger", members[1].Contract.Type.Key())
}

func TestLoadManifestErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{name: "missing composition name", content: "setups: []\n"},
		{name: "invalid yaml", content: ":\n  - ["},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "bad.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			_, err := LoadManifest(path)
			assert.Error(t, err)
		})
	}
}
