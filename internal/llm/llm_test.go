package llm

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"fenced json", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"prose around object", "Claro, aquí está:\n{\"a\": 1}\nEspero que ayude.", `{"a": 1}`},
		{"array", "```json\n[\"una\", \"dos\"]\n```", `["una", "dos"]`},
		{"prose around array", "Respuesta: [\"ruta A\"] fin", `["ruta A"]`},
		{"clean passthrough", `{"a": 1}`, `{"a": 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanJSON(tt.in))
		})
	}
}

func TestUnmarshalValid(t *testing.T) {
	var out struct {
		Tipo string `json:"tipo"`
	}
	require.NoError(t, Unmarshal("```json\n{\"tipo\": \"robo_casa\"}\n```", &out))
	assert.Equal(t, "robo_casa", out.Tipo)
}

func TestUnmarshalRepairsBrokenJSON(t *testing.T) {
	// Trailing comma and single quotes, typical LLM damage.
	var out struct {
		Tipo string `json:"tipo"`
	}
	require.NoError(t, Unmarshal(`{'tipo': 'fraude',}`, &out))
	assert.Equal(t, "fraude", out.Tipo)
}

func TestUnmarshalParseError(t *testing.T) {
	var out map[string]any
	err := Unmarshal("no hay información disponible", &out)
	require.Error(t, err)
	assert.True(t, IsParseError(err))

	var pe *ParseError
	require.True(t, eris.As(err, &pe))
	assert.Contains(t, pe.RawText, "no hay")
}

func TestIsParseErrorWrapped(t *testing.T) {
	err := eris.Wrap(&ParseError{RawText: "x"}, "stage: classify")
	assert.True(t, IsParseError(err))
	assert.False(t, IsParseError(eris.New("other")))
}

func TestParseErrorPreviewTruncated(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'a'
	}
	e := &ParseError{RawText: string(long)}
	assert.Less(t, len(e.Error()), 200)
}
