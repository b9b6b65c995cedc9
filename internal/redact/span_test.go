package redact

import (
	"errors"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestRedact_MaskSingleEntity(t *testing.T) {
	out, err := Redact("John Doe", []Entity{{Text: "John", Label: "first_name", Start: 0, End: 4}}, MethodMask, Params{})
	require.NoError(t, err)
	assert.Equal(t, "[first_name] Doe", out)
}

func TestRedact_Methods(t *testing.T) {
	text := "Call John at 555-0100 today"
	entities := []Entity{
		{Text: "555-0100", Label: "phone_number", Start: 13, End: 21},
		{Text: "John", Label: "first_name", Start: 5, End: 9},
	}
	tests := []struct {
		name   string
		method Method
		params Params
		want   string
	}{
		{"mask", MethodMask, Params{}, "Call [first_name] at [phone_number] today"},
		{"remove", MethodRemove, Params{}, "Call  at  today"},
		{"hash", MethodHash, Params{}, "Call " + HashToken("John") + " at " + HashToken("555-0100") + " today"},
		{"replace without generator degrades to mask", MethodReplace, Params{}, "Call [first_name] at [phone_number] today"},
		{"replace with generator", MethodReplace, Params{Generator: upperGen{}}, "Call JOHN at 555-0100 today"},
		{"shift_dates masks non-date labels", MethodShiftDates, Params{Shifter: DayShifter{Days: 1}}, "Call [first_name] at [phone_number] today"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Redact(text, entities, tt.method, tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestRedact_EmptyEntitiesIsNoop(t *testing.T) {
	for _, m := range Methods {
		for name, p := range map[string]Params{
			"no params":   {},
			"with params": {Shifter: DayShifter{}},
		} {
			t.Run(string(m)+"/"+name, func(t *testing.T) {
				out, err := Redact("DOB 2020-01-02", nil, m, p)
				require.NoError(t, err)
				assert.Equal(t, "DOB 2020-01-02", out)
			})
		}
	}
}

func TestApply_SkipsOutOfRange(t *testing.T) {
	text := "short"
	res := Apply(text, []Entity{
		{Text: "x", Label: "name", Start: 10, End: 12},
		{Text: "x", Label: "name", Start: -1, End: 2},
		{Text: "x", Label: "name", Start: 3, End: 2},
		{Text: "x", Label: "name", Start: 4, End: 6},
	}, maskFragment)
	assert.Equal(t, text, res.Text)
	assert.Equal(t, 4, res.Skipped)
	assert.Empty(t, res.Entities)
}

func TestApply_OverlapIsSkippedNotPanicking(t *testing.T) {
	res := Apply("abcdefgh", []Entity{
		{Label: "a", Start: 0, End: 5},
		{Label: "b", Start: 3, End: 8},
	}, maskFragment)
	// Right-to-left: [3,8) is applied first, [0,5) overlaps it.
	assert.Equal(t, "abc[b]", res.Text)
	assert.Equal(t, 1, res.Skipped)
}

func TestApply_RuneOffsets(t *testing.T) {
	text := "Café Zoë calls"
	res := Apply(text, []Entity{{Text: "Zoë", Label: "first_name", Start: 5, End: 8}}, maskFragment)
	assert.Equal(t, "Café [first_name] calls", res.Text)
}

func TestApply_PreservesInputOrderAndSetsReplacement(t *testing.T) {
	res := Apply("a b c", []Entity{
		{Text: "c", Label: "x", Start: 4, End: 5},
		{Text: "a", Label: "y", Start: 0, End: 1},
	}, maskFragment)
	require.Len(t, res.Entities, 2)
	assert.Equal(t, "c", res.Entities[0].Text)
	assert.Equal(t, "[x]", res.Entities[0].Replacement)
	assert.Equal(t, "[y]", res.Entities[1].Replacement)
}

func TestApply_FragmentErrorFallsBackToMask(t *testing.T) {
	failing := func(Entity) (string, error) { return "", errors.New("boom") }
	res := Apply("on 2024-13-45", []Entity{{Text: "2024-13-45", Label: "date", Start: 3, End: 13}}, failing)
	assert.Equal(t, "on [date]", res.Text)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "boom")
}

func TestApply_ZeroLengthSpanInserts(t *testing.T) {
	res := Apply("ab", []Entity{{Label: "x", Start: 1, End: 1}}, maskFragment)
	assert.Equal(t, "a[x]b", res.Text)
}

type upperGen struct{}

func (upperGen) Synthesize(label, original string) string {
	if label == "first_name" {
		return "JOHN"
	}
	return original
}

// genEntities draws non-overlapping in-bounds entities over a text of n runes.
func genEntities(t *rapid.T, n int) []Entity {
	var out []Entity
	pos := 0
	for pos < n {
		gap := rapid.IntRange(0, 5).Draw(t, "gap")
		start := pos + gap
		if start >= n {
			break
		}
		length := rapid.IntRange(1, n-start).Draw(t, "len")
		out = append(out, Entity{Label: "name", Start: start, End: start + length})
		pos = start + length
	}
	if len(out) > 1 {
		out = rapid.Permutation(out).Draw(t, "order")
	}
	return out
}

func TestProperty_RemoveShrinksBySpanLengths(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := rapid.StringN(0, 60, -1).Draw(t, "text")
		n := utf8.RuneCountInString(text)
		entities := genEntities(t, n)
		total := 0
		for _, e := range entities {
			total += e.Len()
		}
		out, err := Redact(text, entities, MethodRemove, Params{})
		if err != nil {
			t.Fatal(err)
		}
		if got := utf8.RuneCountInString(out); got != n-total {
			t.Fatalf("len = %d, want %d", got, n-total)
		}
	})
}

func TestProperty_EmptyEntitySetIsIdentity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := rapid.String().Draw(t, "text")
		m := rapid.SampledFrom(Methods).Draw(t, "method")
		out, err := Redact(text, []Entity{}, m, Params{})
		if err != nil {
			t.Fatal(err)
		}
		if out != text {
			t.Fatalf("got %q, want %q", out, text)
		}
	})
}

func TestProperty_StartBeyondLengthIsSkipped(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := rapid.StringN(0, 40, -1).Draw(t, "text")
		n := utf8.RuneCountInString(text)
		start := rapid.IntRange(n+1, n+50).Draw(t, "start")
		e := Entity{Label: "ssn", Start: start, End: start + rapid.IntRange(0, 5).Draw(t, "len")}
		out, err := Redact(text, []Entity{e}, MethodMask, Params{})
		if err != nil {
			t.Fatal(err)
		}
		if out != text {
			t.Fatalf("got %q, want %q", out, text)
		}
	})
}

func TestProperty_HashDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		value := rapid.String().Draw(t, "value")
		a := HashToken(value)
		b := HashToken(value)
		if a != b || len(a) != 8 {
			t.Fatalf("tokens %q %q", a, b)
		}
	})
}

func TestHashToken_DistinctValues(t *testing.T) {
	assert.NotEqual(t, HashToken("alice@example.com"), HashToken("bob@example.com"))
	assert.Equal(t, HashToken("John"), HashToken("John"))
}
