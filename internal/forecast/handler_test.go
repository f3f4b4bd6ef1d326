package forecast

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueryFromPartialWindowParams(t *testing.T) {
	h := &Handler{}

	r := httptest.NewRequest("GET", "/?company_id=1&lookback_days=14", nil)
	query, ok := h.queryFrom(httptest.NewRecorder(), r)
	require.True(t, ok)
	require.NotNil(t, query.Config)
	require.Equal(t, 14, query.Config.LookbackDays)
	// safety_days was not named, so it must read as unset, not zero.
	require.Equal(t, -1, query.Config.SafetyDays)

	r = httptest.NewRequest("GET", "/?company_id=1&safety_days=0", nil)
	query, ok = h.queryFrom(httptest.NewRecorder(), r)
	require.True(t, ok)
	require.NotNil(t, query.Config)
	require.Equal(t, 0, query.Config.SafetyDays)
	require.Equal(t, 0, query.Config.LookbackDays)

	// No window params at all leaves the config nil so caching applies.
	r = httptest.NewRequest("GET", "/?company_id=1", nil)
	query, ok = h.queryFrom(httptest.NewRecorder(), r)
	require.True(t, ok)
	require.Nil(t, query.Config)
}

func TestQueryFromRejectsBadWindowParams(t *testing.T) {
	h := &Handler{}

	r := httptest.NewRequest("GET", "/?company_id=1&lookback_days=0", nil)
	w := httptest.NewRecorder()
	_, ok := h.queryFrom(w, r)
	require.False(t, ok)
	require.Equal(t, 400, w.Code)

	r = httptest.NewRequest("GET", "/?company_id=1&safety_days=-2", nil)
	w = httptest.NewRecorder()
	_, ok = h.queryFrom(w, r)
	require.False(t, ok)
	require.Equal(t, 400, w.Code)
}
