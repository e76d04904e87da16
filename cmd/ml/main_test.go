package main

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetline/internal/domain"
)

func TestAnalysisFailureMessage(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"no reason shows the hint once", &domain.AnalysisError{}, domain.AnalysisHint},
		{"remote reason verbatim", &domain.AnalysisError{Reason: "model is loading"}, "model is loading"},
		{"wrapped", fmt.Errorf("analyze: %w", &domain.AnalysisError{Reason: "quota exceeded"}), "quota exceeded"},
		{"other errors untouched", domain.ErrNoContent, domain.ErrNoContent.Error()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := analysisFailure(tc.err)
			require.Error(t, err)
			assert.Equal(t, tc.want, err.Error())
		})
	}
}

func TestParseNoteID(t *testing.T) {
	id, err := parseNoteID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	for _, bad := range []string{"", "0", "-3", "x1"} {
		_, err := parseNoteID(bad)
		assert.Error(t, err, bad)
	}
}
