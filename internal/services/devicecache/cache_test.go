package devicecache

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/auralink/plantlink/internal/model/entities"
)

type stubProfileStore struct {
	mu       sync.Mutex
	profiles map[string]entities.DeviceProfile
	err      error
	calls    int
}

func (s *stubProfileStore) Profile(_ context.Context, deviceID string) (entities.DeviceProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return entities.DeviceProfile{}, s.err
	}
	return s.profiles[deviceID], nil
}

func TestReadThroughConsultsStorageOnce(t *testing.T) {
	st := &stubProfileStore{profiles: map[string]entities.DeviceProfile{
		"dev-001": {DeviceID: "dev-001", PlantName: "Basil", NotifyEmail: "basil@example.com"},
	}}
	c := New(st)

	require.Equal(t, "Basil", c.PlantName(context.Background(), "dev-001"))
	require.Equal(t, "basil@example.com", c.NotifyEmail(context.Background(), "dev-001"))
	require.Equal(t, "Basil", c.PlantName(context.Background(), "dev-001"))

	require.Equal(t, 1, st.calls)
}

func TestEmptyProfileIsCachedToo(t *testing.T) {
	st := &stubProfileStore{profiles: map[string]entities.DeviceProfile{}}
	c := New(st)

	require.Empty(t, c.PlantName(context.Background(), "dev-404"))
	require.Empty(t, c.PlantName(context.Background(), "dev-404"))

	// a device with no stored profile still costs only one query
	require.Equal(t, 1, st.calls)
}

func TestStorageErrorIsRetriable(t *testing.T) {
	st := &stubProfileStore{err: errors.New("influx down")}
	c := New(st)

	require.Empty(t, c.PlantName(context.Background(), "dev-001"))
	require.Equal(t, 1, st.calls)

	// the failed lookup is not cached; recovery reaches storage again
	st.mu.Lock()
	st.err = nil
	st.profiles = map[string]entities.DeviceProfile{"dev-001": {DeviceID: "dev-001", PlantName: "Fern"}}
	st.mu.Unlock()

	require.Equal(t, "Fern", c.PlantName(context.Background(), "dev-001"))
	require.Equal(t, 2, st.calls)
}

func TestSetFieldsMergeAndTrim(t *testing.T) {
	c := New(&stubProfileStore{})

	c.SetPlantName("dev-001", "  Basil  ")
	c.SetNotifyEmail("dev-001", " basil@example.com ")

	p := c.Profile(context.Background(), "dev-001")
	require.Equal(t, "Basil", p.PlantName)
	require.Equal(t, "basil@example.com", p.NotifyEmail)

	// updating one field keeps the other
	c.SetPlantName("dev-001", "Thai Basil")
	p = c.Profile(context.Background(), "dev-001")
	require.Equal(t, "Thai Basil", p.PlantName)
	require.Equal(t, "basil@example.com", p.NotifyEmail)
}

func TestSetFieldIgnoresBlankInput(t *testing.T) {
	st := &stubProfileStore{}
	c := New(st)

	c.SetPlantName("", "Basil")
	c.SetPlantName("dev-001", "   ")
	c.SetNotifyEmail("dev-001", "")

	require.Empty(t, c.PlantName(context.Background(), "dev-001"))
}

func TestWarmSwallowsErrors(t *testing.T) {
	st := &stubProfileStore{err: errors.New("influx down")}
	c := New(st)

	c.Warm(context.Background(), "dev-001")
	require.Equal(t, 1, st.calls)

	// nothing was cached, the next read goes back to storage
	c.Profile(context.Background(), "dev-001")
	require.Equal(t, 2, st.calls)
}
