package gateway

import (
	"testing"

	"machrent/internal/models"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLocations(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []models.Location
	}{
		{
			name: "BareArray",
			body: `[{"id":1,"city":"Madrid","street":"Gran Via","number":"12"}]`,
			want: []models.Location{{ID: 1, City: "Madrid", Street: "Gran Via", Number: "12"}},
		},
		{
			name: "EnvelopeWithAlternateKeys",
			body: `{"locations":[{"location_id":"7","city":"Sevilla","address":"Calle Feria","street_number":42}]}`,
			want: []models.Location{{ID: 7, City: "Sevilla", Street: "Calle Feria", Number: "42"}},
		},
		{
			name: "NestedAddress",
			body: `{"data":[{"_id":3,"address":{"street":"Rua Augusta","number":"5B","city":"Lisboa"}}]}`,
			want: []models.Location{{ID: 3, City: "Lisboa", Street: "Rua Augusta", Number: "5B"}},
		},
		{
			name: "EntriesWithoutIDSkipped",
			body: `[{"city":"Nowhere"},{"id":2,"city":"Bilbao"}]`,
			want: []models.Location{{ID: 2, City: "Bilbao"}},
		},
		{
			name: "Empty",
			body: `[]`,
			want: []models.Location{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeLocations([]byte(tt.body))
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("normalizeLocations() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNormalizeLocationsRejectsGarbage(t *testing.T) {
	_, err := normalizeLocations([]byte(`{"unexpected":true}`))
	assert.Error(t, err)

	_, err = normalizeLocations([]byte(`<html>`))
	assert.Error(t, err)
}

func TestNormalizeUnits(t *testing.T) {
	got, err := normalizeUnits([]byte(`["U-1", 2, {"unit_id":"U-3"}, {"name":"no id"}]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"U-1", "2", "U-3"}, got)

	got, err = normalizeUnits([]byte(`{"units":[{"id":"EX-9"}]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"EX-9"}, got)
}
