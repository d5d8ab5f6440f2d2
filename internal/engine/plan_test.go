package engine

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/hackathon-judging/internal/config"
)

var testRooms = []config.Room{
	{ID: "r1", DisplayName: "Room 1", Medium: config.MediumInPerson, Tracks: []string{"x"}},
	{ID: "r2", DisplayName: "Online Room", Medium: config.MediumOnline},
}

func existsIn(names ...string) func(string) bool {
	set := map[string]bool{}
	for _, n := range names {
		set[n] = true
	}
	return func(n string) bool { return set[n] }
}

func TestValidate_RoundTrip(t *testing.T) {
	plans := []Plan{
		{"r1": {Teams: []string{"alpha", "beta", "gamma"}, Current: -1}},
		{"r1": {Teams: []string{"alpha", "beta"}, Current: 1}, "r2": {Teams: []string{"gamma"}, Current: 1}},
		{"r2": {Teams: []string{}, Current: 0}},
	}
	exists := existsIn("alpha", "beta", "gamma")

	for _, p := range plans {
		q, err := Validate(p, testRooms, exists)
		require.NoError(t, err)
		assert.Equal(t, p, q.Plan())
	}
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	p := Plan{
		"r1": {Teams: []string{"alpha", "ghost", "alpha"}, Current: 7},
		"r9": {Teams: []string{"alpha"}, Current: -1},
	}

	q, err := Validate(p, testRooms, existsIn("alpha"))
	require.Error(t, err)
	assert.Nil(t, q)

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Problems, 4)
	msg := err.Error()
	assert.Contains(t, msg, "room id r9 not in config")
	assert.Contains(t, msg, "out of range")
	assert.Contains(t, msg, "team name ghost in room id r1 does not exist")
	assert.Contains(t, msg, "listed more than once")
}

func TestDecodePlan(t *testing.T) {
	p, err := DecodePlan(strings.NewReader(`{"r1": {"teams": ["alpha", "beta"], "current": 0}, "r2": {"current": -1}}`))
	require.NoError(t, err)
	assert.Equal(t, Plan{
		"r1": {Teams: []string{"alpha", "beta"}, Current: 0},
		"r2": {Teams: []string{}, Current: -1},
	}, p)

	var buf bytes.Buffer
	require.NoError(t, p.Encode(&buf))
	again, err := DecodePlan(&buf)
	require.NoError(t, err)
	assert.Equal(t, p, again)
}

func TestDecodePlan_Rejects(t *testing.T) {
	cases := map[string]string{
		"not json":        `{"r1": `,
		"missing current": `{"r1": {"teams": ["a"]}}`,
		"unknown field":   `{"r1": {"teams": [], "current": -1, "extra": []}}`,
		"wrong shape":     `["r1"]`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodePlan(strings.NewReader(doc))
			var ve *ValidationError
			assert.True(t, errors.As(err, &ve), "want ValidationError, got %v", err)
		})
	}
}

func TestPrettyRoom(t *testing.T) {
	q := Queue{"r1": newRoom(0, "alpha", "beta")}
	out := PrettyRoom(q, "r1")
	assert.Contains(t, out, `"current": 0`)
	assert.Contains(t, out, `"alpha"`)
	assert.Equal(t, "{}", PrettyRoom(q, "r9"))
}
