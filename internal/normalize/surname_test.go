package normalize

import (
	"slices"
	"strings"
	"testing"
)

func TestSurnameVariants(t *testing.T) {
	tests := []struct {
		name    string
		surname string
		want    []string
	}{
		{
			name:    "mac to mc",
			surname: "Macdonald",
			want:    []string{"mcdonald", "macdonalde"},
		},
		{
			name:    "mc to mac",
			surname: "McDonald",
			want:    []string{"macdonald", "mcdonalde"},
		},
		{
			name:    "trailing e added",
			surname: "Clark",
			want:    []string{"clarke"},
		},
		{
			name:    "trailing e dropped",
			surname: "Clarke",
			want:    []string{"clark"},
		},
		{
			name:    "son to sen",
			surname: "Johnson",
			want:    []string{"johnsone", "johnsen"},
		},
		{
			name:    "sen to son",
			surname: "Johnsen",
			want:    []string{"johnsene", "johnson"},
		},
		{
			name:    "y to ey",
			surname: "Hardy",
			want:    []string{"hardye", "hardey"},
		},
		{
			name:    "ey to y",
			surname: "Hardey",
			want:    []string{"harde", "hardy"},
		},
		{
			name:    "th to t",
			surname: "Smith",
			want:    []string{"smithe", "smit"},
		},
		{
			name:    "ph to f",
			surname: "Phillips",
			want:    []string{"phillipse", "fillips"},
		},
		{
			name:    "oo to ou",
			surname: "Moore",
			want:    []string{"moor", "moure"},
		},
		{
			name:    "ou to oo",
			surname: "Gould",
			want:    []string{"goulde", "goold"},
		},
		{
			name:    "empty",
			surname: "",
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SurnameVariants(tt.surname)

			for _, want := range tt.want {
				if !slices.Contains(got, want) {
					t.Errorf("SurnameVariants(%q) = %v, missing %q", tt.surname, got, want)
				}
			}
		})
	}
}

func TestSurnameVariantsNeverContainInput(t *testing.T) {
	for _, surname := range []string{"Smith", "Clarke", "Johnson", "Macdonald", "Hardy"} {
		lower := strings.ToLower(surname)
		for _, v := range SurnameVariants(surname) {
			if v == lower {
				t.Errorf("SurnameVariants(%q) contains the input itself", surname)
			}
		}
	}
}

func TestSurnameVariantsDropShort(t *testing.T) {
	// "Lee" -> trailing-e variant "le" is too short to search an index for.
	for _, v := range SurnameVariants("Lee") {
		if len(v) < 3 {
			t.Errorf("variant %q shorter than three letters", v)
		}
	}
}

func TestSurnameVariantsDeduplicated(t *testing.T) {
	got := SurnameVariants("Thompson")

	seen := make(map[string]bool, len(got))
	for _, v := range got {
		if seen[v] {
			t.Errorf("duplicate variant %q", v)
		}

		seen[v] = true
	}
}
