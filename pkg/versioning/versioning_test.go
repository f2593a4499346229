package versioning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatest(t *testing.T) {
	latest, ok, err := Latest([]string{"0.1.0", "1.2.0", "1.10.0", "1.9.9"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1.10.0", latest)
}

func TestLatestEmpty(t *testing.T) {
	_, ok, err := Latest(nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLatestIsFixedPoint(t *testing.T) {
	versions := []string{"0.1.0", "2.0.0", "1.5.3"}
	latest, ok, err := Latest(versions)
	require.NoError(t, err)
	require.True(t, ok)

	again, ok, err := Latest(append(versions, latest))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, latest, again)
}

func TestLatestPrerelease(t *testing.T) {
	latest, ok, err := Latest([]string{"1.0.0-alpha.1", "1.0.0"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1.0.0", latest)
}

func TestIsStrictlyGreater(t *testing.T) {
	existing := []string{"0.1.0", "1.0.0"}

	conflict, err := IsStrictlyGreater("1.0.1", existing)
	require.NoError(t, err)
	assert.Empty(t, conflict)

	conflict, err = IsStrictlyGreater("1.0.0", existing)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", conflict)

	conflict, err = IsStrictlyGreater("0.5.0", existing)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", conflict)
}

func TestIsStrictlyGreaterEmptySet(t *testing.T) {
	conflict, err := IsStrictlyGreater("0.1.0", nil)
	require.NoError(t, err)
	assert.Empty(t, conflict)
}

func TestIsStrictlyGreaterRejectsBadVersion(t *testing.T) {
	_, err := IsStrictlyGreater("not-a-version", nil)
	assert.Error(t, err)
}

func TestMatchRequirement(t *testing.T) {
	versions := []string{"0.9.0", "1.0.0", "1.2.3", "2.0.0"}

	got, ok, err := MatchRequirement(versions, "*")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2.0.0", got)

	got, ok, err = MatchRequirement(versions, "^1.0")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1.2.3", got)

	got, ok, err = MatchRequirement(versions, ">=1.0.0")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2.0.0", got)

	_, ok, err = MatchRequirement(versions, "^3.0")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatchRequirementInvalidExpression(t *testing.T) {
	_, _, err := MatchRequirement([]string{"1.0.0"}, "not a requirement !!")
	assert.Error(t, err)
}
