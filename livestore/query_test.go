package livestore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fadendb/faden-go/livestore"
)

//nolint:funlen
func Test_QueryBuilder_ValidCombinations(t *testing.T) {
	tests := []struct {
		name     string
		build    func() livestore.QuerySpec
		validate func(t *testing.T, spec livestore.QuerySpec)
	}{
		{
			name: "table_only_query_matches_everything",
			build: func() livestore.QuerySpec {
				return livestore.NewQuery("people")
			},
			validate: func(t *testing.T, spec livestore.QuerySpec) {
				assert.Equal(t, "people", spec.Table())
				assert.Equal(t, 0, spec.Limit())
				assert.False(t, spec.HasFieldMatch())

				field, value := spec.FieldMatch()
				assert.Empty(t, field)
				assert.Empty(t, value)
			},
		},
		{
			name: "field_predicate_query",
			build: func() livestore.QuerySpec {
				return livestore.NewQuery("people").MatchField("city", "Berlin")
			},
			validate: func(t *testing.T, spec livestore.QuerySpec) {
				assert.True(t, spec.HasFieldMatch())

				field, value := spec.FieldMatch()
				assert.Equal(t, "city", field)
				assert.Equal(t, "Berlin", value)
			},
		},
		{
			name: "match_field_replaces_the_previous_predicate",
			build: func() livestore.QuerySpec {
				return livestore.NewQuery("people").
					MatchField("city", "Berlin").
					MatchField("name", "Bob")
			},
			validate: func(t *testing.T, spec livestore.QuerySpec) {
				field, value := spec.FieldMatch()
				assert.Equal(t, "name", field)
				assert.Equal(t, "Bob", value)
			},
		},
		{
			name: "limited_query",
			build: func() livestore.QuerySpec {
				return livestore.NewQuery("people").Limited(5)
			},
			validate: func(t *testing.T, spec livestore.QuerySpec) {
				assert.Equal(t, 5, spec.Limit())
			},
		},
		{
			name: "negative_limit_means_unlimited",
			build: func() livestore.QuerySpec {
				return livestore.NewQuery("people").Limited(-3)
			},
			validate: func(t *testing.T, spec livestore.QuerySpec) {
				assert.Equal(t, 0, spec.Limit())
			},
		},
		{
			name: "builder_returns_copies",
			build: func() livestore.QuerySpec {
				base := livestore.NewQuery("people")
				_ = base.MatchField("city", "Berlin")
				_ = base.Limited(7)

				return base
			},
			validate: func(t *testing.T, spec livestore.QuerySpec) {
				assert.False(t, spec.HasFieldMatch(), "deriving queries must not mutate the base")
				assert.Equal(t, 0, spec.Limit())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := tt.build()

			assert.NoError(t, spec.Validate())
			tt.validate(t, spec)
		})
	}
}

func Test_QuerySpec_Validate_When_TheTableNameIsEmpty(t *testing.T) {
	err := livestore.NewQuery("").Validate()

	assert.ErrorIs(t, err, livestore.ErrEmptyTableName)
}

//nolint:funlen
func Test_QuerySpec_Matches(t *testing.T) {
	tests := []struct {
		name     string
		spec     livestore.QuerySpec
		payload  []byte
		expected bool
	}{
		{
			name:     "no_predicate_matches_any_payload",
			spec:     livestore.NewQuery("people"),
			payload:  []byte(`{"name":"Alice"}`),
			expected: true,
		},
		{
			name:     "string_field_equals",
			spec:     livestore.NewQuery("people").MatchField("city", "Berlin"),
			payload:  []byte(`{"name":"Alice","city":"Berlin"}`),
			expected: true,
		},
		{
			name:     "string_field_differs",
			spec:     livestore.NewQuery("people").MatchField("city", "Berlin"),
			payload:  []byte(`{"name":"Alice","city":"Hamburg"}`),
			expected: false,
		},
		{
			name:     "missing_field_never_matches",
			spec:     livestore.NewQuery("people").MatchField("city", "Berlin"),
			payload:  []byte(`{"name":"Alice"}`),
			expected: false,
		},
		{
			name:     "numeric_field_compares_by_string_form",
			spec:     livestore.NewQuery("people").MatchField("age", "30"),
			payload:  []byte(`{"name":"Alice","age":30}`),
			expected: true,
		},
		{
			name:     "boolean_field_compares_by_string_form",
			spec:     livestore.NewQuery("people").MatchField("active", "true"),
			payload:  []byte(`{"name":"Alice","active":true}`),
			expected: true,
		},
		{
			name:     "invalid_payload_never_matches_a_predicate",
			spec:     livestore.NewQuery("people").MatchField("city", "Berlin"),
			payload:  []byte(`{"city": Berlin}`),
			expected: false,
		},
		{
			name:     "empty_payload_never_matches_a_predicate",
			spec:     livestore.NewQuery("people").MatchField("city", "Berlin"),
			payload:  nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.spec.Matches(tt.payload))
		})
	}
}
