package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/caselink/internal/model"
)

func similarFixture() []model.Case {
	ref := burglary("CASE_1", "c1", t1, "DC", "DC")

	oneItem := burglary("CASE_2", "c2", t1, "DC", "DC")
	oneItem.TargetItems = []string{"jewelry"}

	door := burglary("CASE_3", "c3", t1, "DC", "DC")
	door.MethodOfEntry = "Front door kicked in"

	twoItems := burglary("CASE_4", "c4", t1, "DC", "DC")
	twoItems.TargetItems = []string{"cash", "electronics", "jewelry"}

	return []model.Case{door, ref, oneItem, twoItems}
}

func TestSimilarCases(t *testing.T) {
	t.Parallel()

	got := SimilarCases(similarFixture(), "CASE_1", 0)
	require.Len(t, got, 3)

	assert.Equal(t, "CASE_4", got[0].CaseID)
	assert.True(t, got[0].MOEMatch)
	assert.Equal(t, 2, got[0].TargetOverlap)

	assert.Equal(t, "CASE_2", got[1].CaseID)
	assert.True(t, got[1].MOEMatch)
	assert.Equal(t, 1, got[1].TargetOverlap)

	assert.Equal(t, "CASE_3", got[2].CaseID)
	assert.False(t, got[2].MOEMatch)
	assert.Equal(t, 2, got[2].TargetOverlap)
}

func TestSimilarCases_Limit(t *testing.T) {
	t.Parallel()
	got := SimilarCases(similarFixture(), "CASE_1", 1)
	require.Len(t, got, 1)
	assert.Equal(t, "CASE_4", got[0].CaseID)
}

func TestSimilarCases_UnknownCase(t *testing.T) {
	t.Parallel()
	assert.Nil(t, SimilarCases(similarFixture(), "CASE_404", 5))
}
