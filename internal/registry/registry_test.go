package registry

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := New([]Source{
		{ID: "a", Name: "A", Weight: 1.0, Active: true},
		{ID: "b", Name: "B", Weight: 1.2, Active: false},
		{ID: "c", Name: "C", Weight: 0.8, Active: true},
	})
	require.NoError(t, err)
	return reg
}

func TestNew_Validation(t *testing.T) {
	cases := []struct {
		name    string
		sources []Source
	}{
		{"empty id", []Source{{ID: "", Weight: 1, Active: true}}},
		{"duplicate", []Source{{ID: "a", Weight: 1, Active: true}, {ID: "a", Weight: 1}}},
		{"zero weight", []Source{{ID: "a", Weight: 0, Active: true}}},
		{"none active", []Source{{ID: "a", Weight: 1}}},
		{"no sources", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.sources)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestListPreservesOrder(t *testing.T) {
	reg := newTestRegistry(t)

	ids := make([]string, 0)
	for _, s := range reg.List() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
	assert.Equal(t, []string{"a", "c"}, reg.ActiveIDs())

	active := reg.Active()
	require.Len(t, active, 2)
	assert.Equal(t, 0.8, active[1].Weight)
}

func TestSetActive(t *testing.T) {
	reg := newTestRegistry(t)

	src, err := reg.SetActive("b", true)
	require.NoError(t, err)
	assert.True(t, src.Active)
	assert.Equal(t, []string{"a", "b", "c"}, reg.ActiveIDs())

	_, err = reg.SetActive("missing", true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetActive_LastActiveSource(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.SetActive("a", false)
	require.NoError(t, err)

	before := reg.List()

	_, err = reg.SetActive("c", false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, before, reg.List(), "registry must be unchanged after a rejected mutation")
	assert.Equal(t, []string{"c"}, reg.ActiveIDs())

	// Re-asserting the state of the last active source is allowed.
	_, err = reg.SetActive("c", true)
	assert.NoError(t, err)
}

func TestRecordOutcome(t *testing.T) {
	reg := newTestRegistry(t)

	reg.RecordOutcome("a", 150*time.Millisecond, fmt.Errorf("upstream 503"))
	src, err := reg.Get("a")
	require.NoError(t, err)
	require.NotNil(t, src.LastLatencyMs)
	require.NotNil(t, src.LastError)
	assert.Equal(t, int64(150), *src.LastLatencyMs)
	assert.Equal(t, "upstream 503", *src.LastError)

	reg.RecordOutcome("a", 20*time.Millisecond, nil)
	src, _ = reg.Get("a")
	assert.Equal(t, int64(20), *src.LastLatencyMs)
	assert.Nil(t, src.LastError, "success clears the previous error")

	reg.RecordOutcome("unknown", time.Second, nil)
}

func TestSnapshotsAreIsolated(t *testing.T) {
	reg := newTestRegistry(t)
	reg.RecordOutcome("a", time.Millisecond, fmt.Errorf("boom"))

	src, _ := reg.Get("a")
	*src.LastError = "mutated"
	src.Active = false

	again, _ := reg.Get("a")
	assert.Equal(t, "boom", *again.LastError)
	assert.True(t, again.Active)
}

func TestConcurrentTelemetry(t *testing.T) {
	reg := newTestRegistry(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				err = fmt.Errorf("err %d", i)
			}
			reg.RecordOutcome("a", time.Duration(i)*time.Millisecond, err)
			_ = reg.List()
		}(i)
	}
	wg.Wait()

	src, _ := reg.Get("a")
	require.NotNil(t, src.LastLatencyMs)
	if src.LastError != nil {
		assert.Equal(t, fmt.Sprintf("err %d", *src.LastLatencyMs), *src.LastError,
			"latency and error must come from the same write")
	}
}
